package mctl

import (
	"log/slog"

	"github.com/YuzukiHD/SyterKit/core"
)

// Timing is the primary JEDEC timing set, in controller clock cycles.
// It packs into tpr0..tpr2.
type Timing struct {
	TCCD  uint32 // tpr0[23:21]
	TFAW  uint32 // tpr0[20:15]
	TRRD  uint32 // tpr0[14:11]
	TRCD  uint32 // tpr0[10:6]
	TRC   uint32 // tpr0[5:0]
	TXP   uint32 // tpr1[27:23]
	TWTR  uint32 // tpr1[22:20]
	TRTP  uint32 // tpr1[19:15]
	TWR   uint32 // tpr1[14:11]
	TRP   uint32 // tpr1[10:6]
	TRAS  uint32 // tpr1[5:0]
	TRFC  uint32 // tpr2[20:12]
	TREFI uint32 // tpr2[11:0]
}

// UnpackTiming decodes tpr0..tpr2
func UnpackTiming(tpr0, tpr1, tpr2 uint32) Timing {
	return Timing{
		TCCD:  core.Field(tpr0, 21, 3),
		TFAW:  core.Field(tpr0, 15, 6),
		TRRD:  core.Field(tpr0, 11, 4),
		TRCD:  core.Field(tpr0, 6, 5),
		TRC:   core.Field(tpr0, 0, 6),
		TXP:   core.Field(tpr1, 23, 5),
		TWTR:  core.Field(tpr1, 20, 3),
		TRTP:  core.Field(tpr1, 15, 5),
		TWR:   core.Field(tpr1, 11, 4),
		TRP:   core.Field(tpr1, 6, 5),
		TRAS:  core.Field(tpr1, 0, 6),
		TRFC:  core.Field(tpr2, 12, 9),
		TREFI: core.Field(tpr2, 0, 12),
	}
}

// Pack encodes the set into tpr0..tpr2; out-of-range values are truncated
// to their field width.
func (t Timing) Pack() (tpr0, tpr1, tpr2 uint32) {
	tpr0 = core.SetField(tpr0, 21, 3, t.TCCD)
	tpr0 = core.SetField(tpr0, 15, 6, t.TFAW)
	tpr0 = core.SetField(tpr0, 11, 4, t.TRRD)
	tpr0 = core.SetField(tpr0, 6, 5, t.TRCD)
	tpr0 = core.SetField(tpr0, 0, 6, t.TRC)

	tpr1 = core.SetField(tpr1, 23, 5, t.TXP)
	tpr1 = core.SetField(tpr1, 20, 3, t.TWTR)
	tpr1 = core.SetField(tpr1, 15, 5, t.TRTP)
	tpr1 = core.SetField(tpr1, 11, 4, t.TWR)
	tpr1 = core.SetField(tpr1, 6, 5, t.TRP)
	tpr1 = core.SetField(tpr1, 0, 6, t.TRAS)

	tpr2 = core.SetField(tpr2, 12, 9, t.TRFC)
	tpr2 = core.SetField(tpr2, 0, 12, t.TREFI)
	return
}

// AutoCalTiming converts ns nanoseconds to cycles of a freq MHz clock,
// rounding up.
func AutoCalTiming(ns, freq uint32) uint32 {
	return core.DivCeil(ns*freq, 1000)
}

func atLeast(v, floor uint32) uint32 {
	if v < floor {
		return floor
	}
	return v
}

// fallbackTiming is the conservative set used for parts with no formula
var fallbackTiming = Timing{
	TRFC: 128, TRP: 6, TREFI: 98, TXP: 10, TWR: 8, TWTR: 3,
	TRAS: 14, TFAW: 16, TRC: 20, TRCD: 6, TRRD: 3,
}

// DeriveTiming computes the primary timing set for typ at clk MHz.
//
// Only DDR3 has validated formulas. The DDR2 and LPDDR formulas are
// used when experimental is set. Otherwise fallback selects the
// conservative constants, and with neither an ErrUnsupportedType is
// returned.
func DeriveTiming(typ DramType, clk uint32, experimental, fallback bool) (Timing, error) {
	f := clk >> 1
	ns := func(v uint32) uint32 { return AutoCalTiming(v, f) }

	var t Timing
	switch {
	case typ == DDR3:
		t.TRFC = ns(350)
		t.TREFI = ns(7800)/32 + 1
		t.TWTR = atLeast(ns(8), 2)
		t.TRCD = ns(15)
		t.TWR = atLeast(t.TRCD, 2)
		t.TRRD = atLeast(ns(10), 2)
		if clk <= 800 {
			t.TFAW = ns(50)
			t.TRC = ns(53)
			t.TRAS = ns(38)
		} else {
			t.TFAW = ns(35)
			t.TRCD = ns(14)
			t.TRC = ns(48)
			t.TRAS = ns(34)
		}
		t.TXP = t.TRRD
		t.TRP = t.TRCD
	case experimental && typ == DDR2:
		t.TFAW = ns(50)
		t.TRRD = ns(10)
		t.TRCD = ns(20)
		t.TRC = ns(65)
		t.TWTR = ns(8)
		t.TRP = ns(15)
		t.TRAS = ns(45)
		t.TREFI = ns(7800) / 32
		t.TRFC = ns(328)
		t.TXP = 2
		t.TWR = t.TRP
	case experimental && typ == LPDDR2:
		t.TFAW = atLeast(ns(50), 4)
		t.TRRD = atLeast(ns(10), 1)
		t.TRCD = atLeast(ns(24), 2)
		t.TRC = ns(70)
		t.TXP = ns(8)
		switch {
		case t.TXP == 0:
			t.TXP, t.TWTR = 1, 2
		case t.TXP < 2:
			t.TXP, t.TWTR = 2, 2
		default:
			t.TWTR = t.TXP
		}
		t.TWR = atLeast(ns(15), 2)
		t.TRP = ns(17)
		t.TRAS = ns(42)
		t.TREFI = ns(3900) / 32
		t.TRFC = ns(210)
	case experimental && typ == LPDDR3:
		t.TFAW = atLeast(ns(50), 4)
		t.TRRD = atLeast(ns(10), 1)
		t.TRCD = atLeast(ns(24), 2)
		t.TRC = ns(70)
		t.TWTR = atLeast(ns(8), 2)
		t.TWR = atLeast(ns(15), 2)
		t.TRP = ns(17)
		t.TRAS = ns(42)
		t.TREFI = ns(3900) / 32
		t.TRFC = ns(210)
		t.TXP = t.TWTR
	case fallback:
		t = fallbackTiming
	default:
		return Timing{}, ErrUnsupportedType
	}
	t.TCCD = 2
	t.TRTP = 4
	return t, nil
}

// PHYTiming is the secondary set: mode registers and PHY latencies
type PHYTiming struct {
	MR       [4]uint32
	TCL      uint32
	TCWL     uint32
	WRLat    uint32 // PHY write latency
	TRDataEn uint32
	TRD2WR   uint32
	TWR2RD   uint32
	TWTP     uint32
	TRASMax  uint32
	TCKSRX   uint32
	TCKESR   uint32
	TCKE     uint32
	TMOD     uint32
	TMRD     uint32
	TMRW     uint32
	TDInit   [4]uint32
}

// defaultPHYTiming applies to any type without a secondary formula
var defaultPHYTiming = PHYTiming{
	TWR2RD: 8, TCKSRX: 4, TCKESR: 3, TRD2WR: 4, TRASMax: 27, TWTP: 12,
	TCKE: 2, TMOD: 6, TMRD: 2, TMRW: 0, TCWL: 3, TCL: 3, WRLat: 1,
	TRDataEn: 1,
}

// SecondaryTiming derives the PHY latencies. mr1 and mr3 are the caller's
// mode register values, which some types pass through.
func SecondaryTiming(typ DramType, clk uint32, flags Flags, t Timing, mr1, mr3 uint32, experimental bool) PHYTiming {
	var pt PHYTiming
	switch {
	case typ == DDR3:
		pt.TRASMax = clk / 30
		if clk <= 800 {
			pt.MR[0] = 0x1c70
			pt.TCL = 6
			pt.WRLat = 2
			pt.TCWL = 4
			pt.MR[2] = 24
		} else {
			pt.MR[0] = 0x1e14
			pt.TCL = 7
			pt.WRLat = 3
			pt.TCWL = 5
			pt.MR[2] = 32
		}
		pt.TWTP = pt.TCWL + 2 + t.TWTR
		pt.TWR2RD = pt.TCWL + t.TWTR
		pt.TDInit = [4]uint32{500*clk + 1, 360*clk/1000 + 1, 200*clk + 1, clk + 1}
		pt.MR[1] = mr1
		pt.TRDataEn = pt.TCWL
		pt.TCKSRX = 5
		pt.TCKESR = 4
		if flags.DQSMode() == 1 || clk < 912 {
			pt.TRD2WR = 5
		} else {
			pt.TRD2WR = 6
		}
		pt.TCKE = 3
		pt.TMOD = 12
		pt.TMRD = 4
	case experimental && typ == DDR2:
		pt.TRASMax = clk / 30
		if clk < 409 {
			pt.TCL = 3
			pt.TRDataEn = 1
			pt.MR[0] = 0x06a3
		} else {
			pt.TCL = 4
			pt.TRDataEn = 2
			pt.MR[0] = 0x0e73
		}
		pt.TMRD = 2
		pt.TWTP = t.TWR + 5
		pt.TCKSRX = 5
		pt.TCKESR = 4
		pt.TRD2WR = 4
		pt.TCKE = 3
		pt.TMOD = 12
		pt.WRLat = 1
		pt.TDInit = [4]uint32{200*clk + 1, 100*clk/1000 + 1, 200*clk + 1, clk + 1}
		pt.TWR2RD = t.TWTR + 5
		pt.MR[1] = mr1
	case experimental && typ == LPDDR2:
		pt.TRASMax = clk / 60
		pt.MR[3] = mr3
		pt.TWTP = t.TWR + 5
		pt.MR[2] = 6
		pt.MR[1] = 195
		pt.TCKSRX = 5
		pt.TCKESR = 5
		pt.TRD2WR = 10
		pt.TCKE = 2
		pt.TMOD = 5
		pt.TMRD = 5
		pt.TMRW = 3
		pt.TCL = 4
		pt.WRLat = 1
		pt.TRDataEn = 1
		pt.TDInit = [4]uint32{200*clk + 1, 100*clk/1000 + 1, 11*clk + 1, clk + 1}
		pt.TWR2RD = t.TWTR + 5
		pt.TCWL = 2
	case experimental && typ == LPDDR3:
		pt.TRASMax = clk / 60
		if clk < 800 {
			pt.TCWL = 4
			pt.WRLat = 3
			pt.TRDataEn = 6
			pt.MR[2] = 12
		} else {
			pt.TCWL = 3
			pt.WRLat = 2
			pt.TRDataEn = 5
			pt.MR[2] = 10
		}
		pt.TWTP = pt.TCWL + 5
		pt.TCL = 7
		pt.MR[3] = mr3
		pt.TCKSRX = 5
		pt.TCKESR = 5
		pt.TRD2WR = 13
		pt.TCKE = 3
		pt.TMOD = 12
		pt.TDInit = [4]uint32{400*clk + 1, 500*clk/1000 + 1, 11*clk + 1, clk + 1}
		pt.TMRD = 5
		pt.TMRW = 5
		pt.TWR2RD = pt.TCWL + t.TWTR + 5
		pt.MR[1] = 195
	default:
		pt = defaultPHYTiming
	}
	return pt
}

// MergeModeRegisters replaces each caller value whose upper 16 bits are
// clear with the computed one.
func MergeModeRegisters(caller *[4]uint32, computed [4]uint32) {
	for i := range caller {
		if caller[i]&0xffff0000 == 0 {
			caller[i] = computed[i]
		}
	}
}

// TimingRegisters are the register images written by the timing stage
type TimingRegisters struct {
	MR       [4]uint32
	LP3MR11  uint32
	DRAMTMG  [6]uint32 // DRAMTMG0..5
	TMG8Bits uint32    // ORed into DRAMTMG8 after masking with 0x0fff0000
	PITMG0   uint32
	PTR3     uint32
	PTR4     uint32
	RFSHTMG  uint32
	RFSHCTL1 uint32
}

// BuildTimingRegisters lays out t and pt in register format
func BuildTimingRegisters(p *Params, t Timing, pt PHYTiming) TimingRegisters {
	r := TimingRegisters{
		MR:      p.MR,
		LP3MR11: (p.ODTEn >> 4) & 0x3,
		DRAMTMG: [6]uint32{
			pt.TWTP<<24 | t.TFAW<<16 | pt.TRASMax<<8 | t.TRAS,
			t.TXP<<16 | t.TRTP<<8 | t.TRC,
			pt.TCWL<<24 | pt.TCL<<16 | pt.TRD2WR<<8 | pt.TWR2RD,
			pt.TMRW<<16 | pt.TMRD<<12 | pt.TMOD,
			t.TRCD<<24 | t.TCCD<<16 | t.TRRD<<8 | t.TRP,
			pt.TCKSRX<<24 | pt.TCKSRX<<16 | pt.TCKESR<<8 | pt.TCKE,
		},
		PITMG0:   2<<24 | pt.TRDataEn<<16 | 1<<8 | pt.WRLat,
		PTR3:     pt.TDInit[0] | pt.TDInit[1]<<20,
		PTR4:     pt.TDInit[2] | pt.TDInit[3]<<20,
		RFSHTMG:  t.TREFI<<16 | t.TRFC,
		RFSHCTL1: 0x0fff0000 & (t.TREFI << 15),
	}
	if p.Clk < 800 {
		r.TMG8Bits = 0xf0006600 | 0x10
	} else {
		r.TMG8Bits = 0xf0007600 | 0x10
	}
	return r
}

// timing resolves the timing set for p, writes it back into tpr0..2 when
// derived, merges the mode registers and programs the controller.
func (c *Controller) timing(p *Params) error {
	flags := p.Flags()
	var t Timing
	if flags.Has(FlagRawTiming) {
		t = UnpackTiming(p.TPR[0], p.TPR[1], p.TPR[2])
	} else {
		var err error
		t, err = DeriveTiming(p.Type, p.Clk, c.opts.ExperimentalTiming, c.opts.AllowFallbackTiming)
		if err != nil {
			return err
		}
		p.TPR[0], p.TPR[1], p.TPR[2] = t.Pack()
	}

	pt := SecondaryTiming(p.Type, p.Clk, flags, t, p.MR[1], p.MR[3], c.opts.ExperimentalTiming)
	// tRTP is fixed regardless of type
	t.TRTP = 4
	MergeModeRegisters(&p.MR, pt.MR)

	regs := BuildTimingRegisters(p, t, pt)
	for i, v := range regs.MR {
		c.r.mr[i].Write(v)
	}
	c.r.lp3mr11.Write(regs.LP3MR11)
	for i, v := range regs.DRAMTMG {
		c.r.dramtmg[i].Write(v)
	}
	c.r.dramtmg[8].Modify(func(v uint32) uint32 { return v&0x0fff0000 | regs.TMG8Bits })
	c.r.pitmg0.Write(regs.PITMG0)
	c.r.ptr3.Write(regs.PTR3)
	c.r.ptr4.Write(regs.PTR4)
	c.r.rfshtmg.Write(regs.RFSHTMG)
	c.r.rfshctl1.Write(regs.RFSHCTL1)

	c.debug("timing",
		slog.Uint64("trfc", uint64(t.TRFC)),
		slog.Uint64("trefi", uint64(t.TREFI)),
		slog.Uint64("tcl", uint64(pt.TCL)),
		slog.Uint64("tcwl", uint64(pt.TCWL)))
	return nil
}
