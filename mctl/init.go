package mctl

import (
	"errors"
	"log/slog"

	"github.com/YuzukiHD/SyterKit/core"
)

// zqSetup prepares the 240 ohm calibration resistor, or the internal
// reference when the board has none.
func (c *Controller) zqSetup(p *Params) {
	c.enter(StageZQ)
	if p.Flags().Has(FlagInternalZQ) {
		c.r.resCal.Set(0x100)
		c.r.res240.Write(0)
		c.delay(10)
		c.debug("internal ZQ only")
		return
	}
	c.r.pwroff.Write(0)
	c.r.resCal.Clear(0x003)
	c.delay(10)
	c.r.resCal.Clear(0x108)
	c.delay(10)
	c.r.resCal.Set(0x001)
	c.delay(20)
	c.debug("ZQ calibrated", slog.Uint64("zq", uint64(c.bus.Read32(zqValue&^3)>>16)))
}

// setVoltage raises the DRAM rail through the PMU when there is one,
// otherwise through the SoC LDO.
func (c *Controller) setVoltage(p *Params) error {
	c.enter(StageVoltage)
	if c.opts.Regulator != nil {
		var mV uint32
		switch p.Type {
		case DDR2:
			mV = 1800
		case DDR3:
			mV = 1500
		default:
			return nil
		}
		if err := c.opts.Regulator.SetDRAMVoltage(mV); err != nil {
			c.logAttrs(slog.LevelWarn, "DRAM rail", slog.Uint64("mv", uint64(mV)), slog.Any("err", err))
			return err
		}
		c.debug("DRAM rail set", slog.Uint64("mv", uint64(mV)))
		return nil
	}

	var code uint32
	switch p.Type {
	case DDR2:
		code = 47 // 1.8V
	case DDR3:
		code = 25 // 1.5V
	}
	c.r.sysLDO.Modify(func(v uint32) uint32 {
		return v&^0xff00&^0x200000 | code<<8
	})
	c.delay(1)
	return nil
}

// finish applies the power, ZQ and ODT settings that follow the final
// programming pass, then opens the bus to all masters.
func (c *Controller) finish(p *Params) {
	flags := p.Flags()
	if flags.Has(FlagAutoSelfRefresh) {
		asrtc := p.TPR[8]
		if asrtc == 0 {
			asrtc = 0x10000200
		}
		c.r.asrtc.Write(asrtc)
		c.r.asrc.Write(0x40a)
		c.r.pwrctl.Set(0x1)
	} else {
		c.r.asrtc.Modify(func(v uint32) uint32 { return v & 0xffff0000 })
		c.r.pwrctl.Clear(0x1)
	}

	pgcr0 := c.r.pgcr0.Read() &^ 0xf000
	if flags.Has(FlagPGCR0Override) {
		c.r.pgcr0.Write(pgcr0 | 0x5000)
	} else if p.Type != LPDDR2 {
		c.r.pgcr0.Write(pgcr0)
	}

	c.r.zqcr.Set(1 << 31)
	if flags.Has(FlagExtraZQ) {
		c.r.zqcrAlt.Write(c.r.zqcr.Read() | 0x300)
	}

	if flags.Has(FlagInternalZQ) {
		c.r.mrctrl0.Clear(0x2000)
	} else {
		c.r.mrctrl0.Set(0x2000)
	}

	if p.Type == LPDDR3 {
		c.r.odtcfg.Modify(func(v uint32) uint32 { return v&0xfff0ffff | 0x1000 })
	}

	c.enableAllMasters()
}

// SelfTest writes words ascending patterns at the base and the middle of
// a sizeMB part and reads both back.
func (c *Controller) SelfTest(sizeMB, words uint32) error {
	const patt1, patt2 = 0x01234567, 0xfedcba98
	half := (sizeMB >> 1) << 20

	for i := uint32(0); i < words; i++ {
		addr := RAMBase + 4*i
		c.bus.Write32(addr, patt1+i)
		c.bus.Write32(addr+half, patt2+i)
	}
	for i := uint32(0); i < words; i++ {
		addr := RAMBase + 4*i
		if got := c.bus.Read32(addr); got != patt1+i {
			return c.selfTestMiss(addr, got, patt1+i)
		}
		if got := c.bus.Read32(addr + half); got != patt2+i {
			return c.selfTestMiss(addr+half, got, patt2+i)
		}
	}
	core.RecordTrace(core.EvtSelfTest, 1, 0)
	return nil
}

func (c *Controller) selfTestMiss(addr, got, want uint32) error {
	core.RecordTrace(core.EvtSelfTest, 0, addr)
	c.debug("self-test mismatch",
		slog.Uint64("addr", uint64(addr)),
		slog.Uint64("got", uint64(got)),
		slog.Uint64("want", uint64(want)))
	return ErrSelfTest
}

// runSelfTest applies the self-test policy to res
func (c *Controller) runSelfTest(res *Result) error {
	c.enter(StageSelfTest)
	var err error
	if c.resuming() {
		// DRAM holds the suspended image; patterns would corrupt it
		err = ErrResumeSelfTest
		res.SelfTest = SelfTestSkipped
	} else if err = c.SelfTest(res.SizeMB, c.opts.SelfTestWords); err != nil {
		res.SelfTest = SelfTestFailed
	} else {
		res.SelfTest = SelfTestPassed
		c.info("DRAM test OK")
	}
	res.SelfTestErr = err
	if err != nil {
		c.logAttrs(slog.LevelWarn, "DRAM test failed", slog.Any("err", err))
		if c.opts.SelfTestPolicy == SelfTestStrict {
			return c.fail(StageSelfTest, err)
		}
	}
	return nil
}

// InitDRAM brings DRAM up with p and reports its size. p is updated in
// place: the produced clock, derived timing, mode registers, discovered
// topology and size are written back so a later init can skip the scan.
func (c *Controller) InitDRAM(p *Params) (Result, error) {
	c.stages = StageLog{}
	c.verbose = p.Flags().Has(FlagVerbose)

	res, err := c.initDRAM(p)
	res.Stages = c.stages
	res.Remap = c.remapID
	if err != nil {
		c.logAttrs(slog.LevelError, "DRAM init failed", slog.Any("err", err))
		return res, err
	}
	return res, nil
}

func (c *Controller) initDRAM(p *Params) (Result, error) {
	var res Result

	// every later step branches on the type; reject unknown ones before
	// touching the hardware, whatever the timing source
	if !p.Type.Valid() {
		return res, c.fail(StageParams, ErrUnsupportedType)
	}

	c.zqSetup(p)
	if err := c.setVoltage(p); err != nil {
		return res, c.fail(StageVoltage, err)
	}

	if !p.Flags().Has(FlagTopologyKnown) {
		if err := c.autoScan(p); err != nil {
			return res, err
		}
	}

	c.info("DRAM", slog.String("type", p.Type.String()), slog.Uint64("mhz", uint64(p.Clk)))
	if p.ODTEn&0x1 == 0 {
		c.debug("ODT off")
	} else {
		c.debug("ZQ", slog.Uint64("zq", uint64(p.ZQ)))
	}

	c.enter(StageFinal)
	if err := c.coreInit(p); err != nil {
		return res, c.fail(StageFinal, err)
	}
	res.ClockMHz = p.Clk

	c.enter(StageSize)
	if p.Para2&(1<<31) != 0 {
		res.SizeMB = (p.Para2 >> 16) &^ (1 << 15)
	} else {
		res.SizeMB = c.dramSize()
		p.Para2 = p.Para2&0xffff | res.SizeMB<<16
	}
	c.info("DRAM size", slog.Uint64("mb", uint64(res.SizeMB)))

	c.finish(p)

	if p.Flags().Has(FlagSelfTest) {
		if err := c.runSelfTest(&res); err != nil {
			return res, err
		}
	}

	if c.opts.Standby != nil {
		c.opts.Standby()
	}
	core.RecordTrace(core.EvtDRAMReady, res.SizeMB, res.ClockMHz)
	return res, nil
}

// Init brings DRAM up and returns its size in MB, or 0 on any failure
func (c *Controller) Init(p *Params) uint32 {
	res, err := c.InitDRAM(p)
	if err != nil {
		return 0
	}
	return res.SizeMB
}

// Init brings DRAM up on bus with default options and returns its size
// in MB, or 0 on failure.
func Init(bus core.RegisterBus, p *Params) uint32 {
	return NewController(bus, Options{}).Init(p)
}

// IsTimeout reports whether err came from a hardware poll giving up
func IsTimeout(err error) bool {
	return errors.Is(err, ErrHardwareTimeout)
}
