package mctl

import (
	"log/slog"

	"github.com/YuzukiHD/SyterKit/core"
)

// Work mode images used while scanning address lines
const (
	scanRowMode  = 0x6f0 // 16 rows, 4 banks, 512B page
	scanBankMode = 0x6a4 // 11 rows, 8 banks
	scanPageMode = 0xaa0 // 8KB page
)

// Lane codes from DXnGSR0[25:24] after a gating run with both ranks enabled
const laneTrained = 2

// detectDQSGate decides rank count and DQ width from the gating result
// of a trial run and records them in para2.
func (c *Controller) detectDQSGate(p *Params) error {
	if c.r.pgsr0.Read()&pgsr0Gate == 0 {
		// no gate errors: both ranks and both lanes answered
		p.Para2 = p.Para2&0xfffffff0 | 0x1000
		c.debug("dual rank, full DQ")
		return nil
	}

	dx0 := (c.r.dx[0].gsr0.Read() >> 24) & 0x3
	dx1 := (c.r.dx[1].gsr0.Read() >> 24) & 0x3
	switch dx0 {
	case laneTrained:
		p.Para2 &= 0xffff0ff0
		if dx1 != dx0 {
			p.Para2 |= 0x1
			c.debug("single rank, half DQ")
		} else {
			c.debug("single rank, full DQ")
		}
		return nil
	case 0:
		p.Para2 = p.Para2&0xfffffff0 | 0x1001
		c.debug("dual rank, half DQ")
		return nil
	}
	core.RecordTrace(core.EvtScanRankWidth, p.Para2, dx0<<8|dx1)
	c.debug("lane codes", slog.Uint64("dx0", uint64(dx0)), slog.Uint64("dx1", uint64(dx1)))
	return ErrRankWidthDetection
}

// scanRankWidth trains with both ranks and full DQ enabled and DQS
// gating mode 1. tpr13 and para1 are restored afterwards.
func (c *Controller) scanRankWidth(p *Params) error {
	c.enter(StageRankWidth)
	savedFlags, savedPara1 := p.TPR[13], p.Para1
	defer func() {
		p.TPR[13], p.Para1 = savedFlags, savedPara1
	}()

	p.Para1 = 0x00b000b0
	p.Para2 = p.Para2&0xfffffff0 | 0x1000
	p.TPR[13] = savedFlags&^0x8 | 0x5

	if err := c.coreInit(p); err != nil {
		return err
	}
	if pgsr0 := c.r.pgsr0.Read(); pgsr0&pgsr0Error != 0 {
		core.RecordTrace(core.EvtTrainingError, pgsr0, 0)
		return ErrRankWidthDetection
	}
	if err := c.detectDQSGate(p); err != nil {
		return err
	}
	core.RecordTrace(core.EvtScanRankWidth, p.Para2, 0)
	return nil
}

// patternWords is the size of the test pattern at RAMBase
const patternWords = 64

func scanPattern(i uint32) uint32 {
	addr := uint32(RAMBase) + 4*i
	if i&1 != 0 {
		return addr
	}
	return ^addr
}

// aliases reports whether the first n pattern words reappear at offset
func (c *Controller) aliases(offset uint32, n uint32) bool {
	for i := uint32(0); i < n; i++ {
		if c.bus.Read32(RAMBase+offset+4*i) != scanPattern(i) {
			return false
		}
	}
	return true
}

// firstAlias returns the first line in [lo, hi] whose offset aliases the
// pattern, or def when none does.
func (c *Controller) firstAlias(lo, hi uint32, offset func(uint32) uint32, def uint32) uint32 {
	for i := lo; i <= hi; i++ {
		if c.aliases(offset(i), patternWords) {
			return i
		}
	}
	return def
}

// setScanMode rewrites a work mode register and waits for it to stick
func (c *Controller) setScanMode(r core.Reg32, keep, mode uint32) error {
	v := r.Read()&keep | mode
	r.Write(v)
	return c.poll("work mode update", func() bool { return r.Read() == v })
}

// scanSize finds row, bank and page geometry for each rank by looking
// for the first address line whose setting mirrors the base pattern.
func (c *Controller) scanSize(p *Params) error {
	c.enter(StageSizeScan)
	if err := c.coreInit(p); err != nil {
		return err
	}

	for i := uint32(0); i < patternWords; i++ {
		c.bus.Write32(RAMBase+4*i, scanPattern(i))
	}

	maxRank := 1
	if p.Para2&0xf000 != 0 {
		maxRank = 2
	}

	for rank := 0; rank < maxRank; rank++ {
		mode := c.r.workMode[rank]
		var layout RankLayout

		// rank 0 decodes the scan accesses, so it follows each scan mode
		if rank == 1 {
			c.r.workMode[0].ClearSet(0xf0c, scanRowMode)
		}
		if err := c.setScanMode(mode, 0xfffff0f3, scanRowMode); err != nil {
			return c.fail(StageSizeScan, err)
		}
		layout.Rows = c.firstAlias(11, 16, func(i uint32) uint32 { return 1 << (i + 11) }, 16)

		if rank == 1 {
			c.r.workMode[0].ClearSet(0xffc, scanBankMode)
		}
		if err := c.setScanMode(mode, 0xfffff003, scanBankMode); err != nil {
			return c.fail(StageSizeScan, err)
		}
		// BA2 sits above the row lines; a mirror at 4MB means 4 banks
		layout.Banks8 = !c.aliasesBanks()

		if rank == 1 {
			c.r.workMode[0].ClearSet(0xffc, scanPageMode)
		}
		if err := c.setScanMode(mode, 0xfffff003, scanPageMode); err != nil {
			return c.fail(StageSizeScan, err)
		}
		line := c.firstAlias(9, 14, func(i uint32) uint32 { return 1 << i }, 13)
		if line > 9 {
			layout.PageKB = 1 << (line - 10)
		}

		shift := 16 * uint(rank)
		p.Para1 = core.SetField(p.Para1, 4+shift, 8, layout.Rows)
		p.Para1 = core.SetField(p.Para1, 12+shift, 4, boolBit(layout.Banks8))
		p.Para1 = core.SetField(p.Para1, shift, 4, layout.PageKB)

		c.r.rank1Mode[0].ClearSet(0xffc, scanRowMode)
		c.r.rank1Mode[1].ClearSet(0xffc, scanRowMode)

		c.debug("rank geometry",
			slog.Int("rank", rank),
			slog.Uint64("rows", uint64(layout.Rows)),
			slog.Uint64("banks", uint64(layout.Banks())),
			slog.Uint64("page_kb", uint64(layout.PageKB)))
	}
	core.RecordTrace(core.EvtScanSize, p.Para1, p.Para2)
	return nil
}

// aliasesBanks checks 63 words at 4MB against the pattern
func (c *Controller) aliasesBanks() bool {
	return c.aliases(1<<22, patternWords-1)
}

func boolBit(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// autoScan resolves topology: rank/width first, then geometry. Unless
// tpr13 bit 15 forbids it the flags are marked resolved so a re-init
// skips the scan.
func (c *Controller) autoScan(p *Params) error {
	flags := p.Flags()
	if !flags.Has(FlagRankWidthKnown) {
		if err := c.scanRankWidth(p); err != nil {
			return c.fail(StageRankWidth, err)
		}
	}
	if !p.Flags().Has(FlagTopologyKnown) {
		if err := c.scanSize(p); err != nil {
			return c.fail(StageSizeScan, err)
		}
	}
	if !p.Flags().Has(FlagKeepUnresolved) {
		p.setFlags(p.Flags() | FlagsResolved)
	}
	return nil
}

// sizeFromWorkMode computes the DRAM size in MB from the work mode
// registers of both ranks.
func sizeFromWorkMode(low, high uint32) uint32 {
	rankMB := func(v uint32) uint32 {
		bits := (v>>8)&0xf + (v>>4)&0xf + (v>>2)&0x3
		return 1 << (bits - 14)
	}
	size0 := rankMB(low)
	if low&0x3 == 0 {
		return size0
	}
	if high&0x3 == 0 {
		return 2 * size0
	}
	return size0 + rankMB(high)
}

func (c *Controller) dramSize() uint32 {
	return sizeFromWorkMode(c.r.workMode[0].Read(), c.r.workMode[1].Read())
}
