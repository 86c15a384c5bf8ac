package mctl

import (
	"log/slog"

	"github.com/YuzukiHD/SyterKit/core"
)

// setPLLDDR programs PLL_DDR for clk MHz and returns the clock it
// actually produces.
func (c *Controller) setPLLDDR(clk uint32) (uint32, error) {
	const m0, m1 = 2, 1
	n := clk * m0 * m1 / 24

	v := c.r.pllDDR.Read()
	v &^= pllOutGate | 0xff<<pllNShift | pllM1 | pllM0
	v |= (n-1)<<pllNShift | (m0 - 1) | pllEnable | pllLDO
	c.r.pllDDR.Write(v)

	// restart the lock detector
	v &^= pllLockEn
	c.r.pllDDR.Write(v)
	v |= pllLockEn
	c.r.pllDDR.Write(v)

	if err := c.poll("PLL_DDR lock", func() bool { return c.r.pllDDR.Read()&pllLock != 0 }); err != nil {
		return 0, err
	}
	core.RecordTrace(core.EvtPLLLocked, n, 0)
	c.r.pllDDR.Set(pllOutGate)

	// DRAM clock from PLL_DDR, M=N=1
	c.r.dramClk.Modify(func(v uint32) uint32 {
		return v&^(dramClkSrc|dramClkN|dramClkM) | dramClkGate
	})
	return n * 24 / (m0 * m1), nil
}

// sysInit resets the controller and brings up its clocks. p.Clk is
// replaced by the clock the PLL produced.
func (c *Controller) sysInit(p *Params) error {
	c.r.mbusClk.Clear(mbusReset)

	c.r.dramBGR.Clear(dramBGRGate | dramBGRReset)
	c.r.dramClk.Clear(dramClkGate)
	c.r.dramClk.Set(dramClkGate)
	c.delay(10)

	clk := p.Clk
	if p.Flags().Has(FlagClockOverride) {
		clk = p.TPR[9]
	}
	actual, err := c.setPLLDDR(clk)
	if err != nil {
		return err
	}
	p.Clk = actual
	core.RecordTrace(core.EvtSysInit, actual, 0)
	c.debug("PLL_DDR locked", slog.Uint64("mhz", uint64(actual)))
	c.delay(100)
	c.disableAllMasters()

	c.r.dramBGR.Modify(func(v uint32) uint32 { return v&^dramBGRGate | dramBGRReset })
	c.r.mbusClk.Set(mbusReset)
	c.delay(5)

	c.r.dramBGR.Set(dramBGRGate)

	c.r.dramClk.Set(dramClkGate | dramClkUpdate)
	c.delay(5)

	c.r.clken.Write(0x00008000)
	c.delay(10)
	return nil
}

// vrefZQ sets the I/O reference voltages from tpr5 and tpr6
func (c *Controller) vrefZQ(p *Params) {
	flags := p.Flags()
	if flags.Has(FlagSkipVref) {
		return
	}
	c.r.iovcr[0].Modify(func(v uint32) uint32 { return v&0x80808080 | p.TPR[5] })
	if !flags.Has(FlagInternalZQ) {
		c.r.iovcr[1].Modify(func(v uint32) uint32 { return v&0xffffff80 | p.TPR[6]&0x7f })
	}
}

// pageCode converts a page size in KB to the column width field
func pageCode(pageKB uint32) uint32 {
	switch pageKB {
	case 8:
		return 0xa00
	case 4:
		return 0x900
	case 2:
		return 0x800
	case 1:
		return 0x700
	}
	return 0x600
}

// comInit programs type, bus width and per-rank geometry
func (c *Controller) comInit(p *Params) {
	c.r.unk08.Modify(func(v uint32) uint32 { return v&0xffffc0ff | 0x2000 })

	c.r.workMode[0].Modify(func(v uint32) uint32 {
		v &= 0xff000fff
		v |= (uint32(p.Type) & 0x7) << 16
		v |= (^p.Para2 & 0x1) << 12
		if p.Type == LPDDR2 || p.Type == LPDDR3 {
			// always 1T
			v |= 0x480000
		} else {
			v |= ((p.TPR[13] >> 5) & 0x1) << 19
			v |= 0x400000
		}
		return v
	})

	ranks := 1
	if p.Para2&0x100 != 0 && (p.Para2>>12)&0xf != 1 {
		ranks = 2
	}
	for i := 0; i < ranks; i++ {
		shift := uint32(16 * i)
		c.r.workMode[i].Modify(func(v uint32) uint32 {
			v &= 0xfffff000
			v |= (p.Para2 >> 12) & 0x3
			v |= ((p.Para1 >> (shift + 12)) << 2) & 0x4
			v |= (((p.Para1 >> (shift + 4)) - 1) << 4) & 0xff
			v |= pageCode((p.Para1 >> shift) & 0xf)
			return v
		})
	}

	if c.r.workMode[0].Read()&0x1 == 0 {
		c.r.odtmap.Write(0x201)
	} else {
		c.r.odtmap.Write(0x303)
	}

	if p.HalfDQ() {
		c.r.dx[1].gcr0.Write(0)
	}

	if p.TPR[4] != 0 {
		c.r.workMode[0].Set((p.TPR[4] << 25) & 0x06000000)
		c.r.workMode[1].Set(((p.TPR[4] >> 2) << 12) & 0x001ff000)
	}
}
