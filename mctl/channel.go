package mctl

import (
	"log/slog"

	"github.com/YuzukiHD/SyterKit/core"
)

// eyeDelay applies the per-lane read/write delay trims from tpr10..12
func (c *Controller) eyeDelay(p *Params) {
	tpr10, tpr11, tpr12 := p.TPR[10], p.TPR[11], p.TPR[12]

	for n := range c.r.dx {
		shift := 4 * uint32(n)
		for _, r := range c.r.dx[n].iocr {
			r.Set(((tpr11>>shift)<<9)&0x1e00 | ((tpr12>>shift)<<1)&0x1e)
		}
	}

	// hold the AC loopback FIFO in reset while the DQS trims change
	c.r.pgcr0.Clear(0x04000000)

	for n := range c.r.dx {
		shift := 16 + 4*uint32(n)
		for _, r := range c.r.dx[n].extra[:2] {
			r.Set(((tpr11>>shift)<<9)&0x1e00 | ((tpr12>>shift)<<1)&0x1e)
		}
	}
	for n := range c.r.dx {
		shift := 16 + 4*uint32(n)
		c.r.dx[n].extra[2].Set(((tpr11 >> shift) << 25) & 0x1e000000)
	}

	c.r.pgcr0.Set(0x04000000)
	c.delay(1)

	for i := uint32(0); i < 15; i++ {
		c.r.phy.Offset(0x240 + 4*i).Set(((tpr10 >> 4) << 8) & 0x0f00)
	}
	for i := uint32(0); i < 6; i++ {
		c.r.phy.Offset(0x228 + 4*i).Set(((tpr10 >> 4) << 8) & 0x0f00)
	}
	c.r.phy.Offset(0x218).Set((tpr10 << 8) & 0x0f00)
	c.r.phy.Offset(0x21c).Set((tpr10 << 8) & 0x0f00)
	c.r.phy.Offset(0x280).Set(((tpr10 >> 12) << 8) & 0x0f00)
}

func (c *Controller) waitIDone() error {
	return c.poll("PHY init", func() bool { return c.r.pgsr0.Read()&statusDone != 0 })
}

// channelInit configures the PHY lanes and runs the PIR init/training
// sequence.
func (c *Controller) channelInit(p *Params) error {
	dqsMode := p.Flags().DQSMode()

	c.r.clkDiv.Modify(func(v uint32) uint32 { return v&0xfffff000 | (p.Clk>>1 - 1) })
	c.r.mrctrl0.Modify(func(v uint32) uint32 { return v&0xfffff0ff | 0x300 })

	for n := range c.r.dx {
		c.r.dx[n].gcr0.Modify(func(v uint32) uint32 {
			v &= 0xffffffcf
			v |= ((^p.ODTEn) << 5) & 0x20
			if p.Clk > 672 {
				v &= 0xffff09f1
				v |= 0x400
			} else {
				v &= 0xffff0ff1
			}
			return v
		})
	}

	c.r.aciocr0.Set(0x2)

	c.eyeDelay(p)

	switch dqsMode {
	case 1:
		c.r.mrctrl0.Clear(0xc0)
		c.r.sscg.Modify(func(v uint32) uint32 { return v & 0xfffffef8 })
	case 2:
		c.r.mrctrl0.ClearSet(0xc0, 0x80)
		c.r.sscg.Modify(func(v uint32) uint32 {
			return v&0xfffffef8 | (((p.TPR[13] >> 16) & 0x1f) - 2) | 0x100
		})
		c.r.dxccr.Modify(func(v uint32) uint32 { return v&0x7fffffff | 0x08000000 })
	default:
		c.r.mrctrl0.Clear(0x40)
		c.delay(10)
		c.r.mrctrl0.Set(0xc0)
	}

	c.r.dtcr.Modify(func(v uint32) uint32 {
		v &= 0xf0000000
		if p.Para2&(1<<12) != 0 {
			return v | 0x03000001
		}
		return v | 0x01000007
	})

	resume := c.resuming()
	if resume {
		c.r.someOther.Clear(0x2)
		c.delay(10)
	}

	c.r.zqcr.Modify(func(v uint32) uint32 { return v&0xfc000000 | p.ZQ&0x00ffffff | 0x02000000 })

	var pir uint32
	if dqsMode == 1 {
		// PHY reset, PLL init and impedance calibration first
		c.r.pir.Write(0x52)
		c.r.pir.Write(0x53)
		if err := c.waitIDone(); err != nil {
			return err
		}
		c.delay(10)
		pir = 0x520
		if p.Type == DDR3 {
			pir = 0x5a0
		}
	} else if !resume {
		pir = 0x172
		if p.Type == DDR3 {
			pir = 0x1f2
		}
	} else {
		pir = 0x62
	}
	c.r.pir.Write(pir)
	c.r.pir.Write(pir | 1)
	c.delay(10)
	if err := c.waitIDone(); err != nil {
		return err
	}

	if resume {
		if err := c.exitSelfRefresh(dqsMode); err != nil {
			return err
		}
	}

	pgsr0 := c.r.pgsr0.Read()
	core.RecordTrace(core.EvtPIRDone, pir, pgsr0)
	c.debug("PIR done", slog.Uint64("pir", uint64(pir)), slog.Uint64("pgsr0", uint64(pgsr0)))
	if (pgsr0>>20)&0xff != 0 && pgsr0&pgsr0Error != 0 {
		core.RecordTrace(core.EvtTrainingError, pgsr0, 0)
		return ErrZQCalibration
	}

	if err := c.poll("controller ready", func() bool { return c.r.statr.Read()&0x1 != 0 }); err != nil {
		return err
	}

	c.r.rfshctl0.Set(0x80000000)
	c.delay(10)
	c.r.rfshctl0.Clear(0x80000000)
	c.delay(10)
	c.r.unk14.Set(0x80000000)
	c.delay(10)
	c.r.pgcr3.Clear(0x06000000)

	if dqsMode == 1 {
		c.r.dxccr.Modify(func(v uint32) uint32 { return v&0xffffff3f | 0x40 })
	}
	return nil
}

// exitSelfRefresh takes the DRAM out of self-refresh after a standby
// resume, retraining DQS gating in mode 1.
func (c *Controller) exitSelfRefresh(dqsMode uint32) error {
	c.r.pgcr3.ClearSet(0x06000000, 0x04000000)
	c.delay(10)

	c.r.pwrctl.Set(0x1)
	if err := c.poll("self-refresh entry", func() bool { return c.r.statr.Read()&0x7 == 0x3 }); err != nil {
		return err
	}

	c.r.someOther.Clear(0x1)
	c.delay(10)

	c.r.pwrctl.Clear(0x1)
	if err := c.poll("self-refresh exit", func() bool { return c.r.statr.Read()&0x7 == 0x1 }); err != nil {
		return err
	}
	c.delay(15)

	if dqsMode == 1 {
		c.r.mrctrl0.Clear(0xc0)
		c.r.pgcr3.ClearSet(0x06000000, 0x02000000)
		c.delay(1)
		c.r.pir.Write(0x401)
		return c.waitIDone()
	}
	return nil
}

// coreInit runs one full controller programming pass
func (c *Controller) coreInit(p *Params) error {
	if err := c.sysInit(p); err != nil {
		return c.fail(StageSysInit, err)
	}
	c.vrefZQ(p)
	c.comInit(p)
	c.remap(p)
	if err := c.timing(p); err != nil {
		return c.fail(StageTiming, err)
	}
	if err := c.channelInit(p); err != nil {
		return c.fail(StageChannel, err)
	}
	return nil
}
