// Package twi drives the Allwinner TWI (I2C) master. It implements
// tinygo.org/x/drivers.I2C over a core.RegisterBus so PMU drivers run
// unchanged on the board and against a bus model.
package twi

import (
	"errors"
	"fmt"

	"github.com/YuzukiHD/SyterKit/core"
)

// D1 controller bases
const (
	TWI0Base = 0x02502000
	TWI1Base = 0x02502400
	TWI2Base = 0x02502800
	TWI3Base = 0x02502c00

	ccuTWIBGR = 0x0200191c
)

// Register offsets
const (
	regData   = 0x08
	regCtl    = 0x0c
	regStatus = 0x10
	regClk    = 0x14
	regSRST   = 0x18
	regEFR    = 0x1c
	regLCR    = 0x20
)

// Control bits
const (
	ctlAck   = 1 << 2
	ctlFlag  = 1 << 3
	ctlStop  = 1 << 4
	ctlStart = 1 << 5
	ctlBusEn = 1 << 6
)

// Status codes
const (
	statStart      = 0x08
	statRestart    = 0x10
	statAddrWAck   = 0x18
	statAddrWNack  = 0x20
	statDataWAck   = 0x28
	statDataWNack  = 0x30
	statAddrRAck   = 0x40
	statAddrRNack  = 0x48
	statDataRAck   = 0x50
	statDataRNack  = 0x58
	statIdle       = 0xf8
	lcrLinesHigh   = 0x30
	defaultTimeout = 10000
)

var (
	ErrTimeout = errors.New("twi: timeout")
	ErrNack    = errors.New("twi: no acknowledge")
	ErrStatus  = errors.New("twi: unexpected status")
)

// StatusError reports the controller state when a phase went wrong
type StatusError struct {
	Op     string
	Status uint32
	Err    error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %v (status 0x%02x)", e.Op, e.Err, e.Status)
}

func (e *StatusError) Unwrap() error { return e.Err }

// Config describes one controller instance
type Config struct {
	ID        uint8
	Base      uint32
	Frequency uint32 // Hz, clamped to 100k..400k
	SCL, SDA  core.Pin

	// TimeoutUS bounds each bus phase
	TimeoutUS uint32
	Delay     func(us uint32)
}

// Controller is a polled TWI master
type Controller struct {
	bus    core.RegisterBus
	cfg    Config
	ctl    core.Reg32
	status core.Reg32
	data   core.Reg32
}

// New binds a controller; call Configure before use
func New(bus core.RegisterBus, cfg Config) *Controller {
	if cfg.TimeoutUS == 0 {
		cfg.TimeoutUS = defaultTimeout
	}
	if cfg.Delay == nil {
		cfg.Delay = core.Delay
	}
	return &Controller{
		bus:    bus,
		cfg:    cfg,
		ctl:    core.NewReg32(bus, cfg.Base+regCtl),
		status: core.NewReg32(bus, cfg.Base+regStatus),
		data:   core.NewReg32(bus, cfg.Base+regData),
	}
}

func (c *Controller) reg(off uint32) core.Reg32 {
	return core.NewReg32(c.bus, c.cfg.Base+off)
}

// ClockDivider returns the CLK register value for hz from the 24 MHz APB
func ClockDivider(hz uint32) uint32 {
	khz := min(max(hz/1000, 100), 400)
	var n uint32
	if khz == 100 {
		n = 1
	}
	m := 2400/((1<<n)*khz) - 1
	return m<<3 | n
}

// Configure routes the pins, ungates the controller, recovers a stuck
// bus and sets the clock
func (c *Controller) Configure() error {
	c.cfg.SCL.Apply(c.bus)
	c.cfg.SDA.Apply(c.bus)

	bgr := core.NewReg32(c.bus, ccuTWIBGR)
	id := uint32(c.cfg.ID)
	bgr.Set(1 << (16 + id))
	bgr.Clear(1 << id)
	c.cfg.Delay(1000)
	bgr.Set(1 << id)

	srst := c.reg(regSRST)
	srst.Write(1)
	if !core.WaitFor(func() bool { return srst.Read() == 0 }, c.cfg.TimeoutUS) {
		return &StatusError{Op: "reset", Status: c.status.Read(), Err: ErrTimeout}
	}

	lcr := c.reg(regLCR)
	if lcr.Read()&lcrLinesHigh != lcrLinesHigh {
		// clock SCL until the slave lets go of SDA
		lcr.Write(0x05)
		c.cfg.Delay(500)
		for i := 0; i < 10 && lcr.Read()&0x02 == 0; i++ {
			lcr.Set(0x0a)
			c.cfg.Delay(1000)
			lcr.Clear(0x0a)
			c.cfg.Delay(1000)
		}
		lcr.Write(0)
		c.cfg.Delay(500)
	}

	c.reg(regClk).Write(ClockDivider(c.cfg.Frequency))
	c.ctl.Set(ctlBusEn)
	c.reg(regEFR).Write(0)
	return nil
}

// step waits for the interrupt flag and checks the resulting status
func (c *Controller) step(op string, want uint32) error {
	if !core.WaitFor(func() bool { return c.ctl.Read()&ctlFlag != 0 }, c.cfg.TimeoutUS) {
		return &StatusError{Op: op, Status: c.status.Read(), Err: ErrTimeout}
	}
	if st := c.status.Read(); st != want {
		err := ErrStatus
		switch st {
		case statAddrWNack, statAddrRNack, statDataWNack:
			err = ErrNack
		}
		return &StatusError{Op: op, Status: st, Err: err}
	}
	return nil
}

func (c *Controller) start(restart bool) error {
	if restart {
		c.ctl.Set(ctlStart)
		return c.step("restart", statRestart)
	}
	c.reg(regEFR).Write(0)
	c.reg(regSRST).Write(1)
	c.ctl.Set(ctlStart)
	return c.step("start", statStart)
}

func (c *Controller) address(addr uint16, read bool) error {
	v := uint32(addr&0x7f) << 1
	want := uint32(statAddrWAck)
	if read {
		v |= 1
		want = statAddrRAck
	}
	c.data.Write(v)
	c.ctl.Set(ctlFlag)
	return c.step("address", want)
}

func (c *Controller) send(b byte) error {
	c.data.Write(uint32(b))
	c.ctl.Set(ctlFlag)
	return c.step("write", statDataWAck)
}

func (c *Controller) receive(r []byte) error {
	for i := range r {
		last := i == len(r)-1
		want := uint32(statDataRAck)
		if last {
			c.ctl.ClearSet(ctlAck, ctlFlag)
			want = statDataRNack
		} else {
			c.ctl.Set(ctlFlag | ctlAck)
		}
		if err := c.step("read", want); err != nil {
			return err
		}
		r[i] = byte(c.data.Read())
	}
	return nil
}

func (c *Controller) stop() error {
	c.ctl.Set(ctlStop)
	c.ctl.Set(ctlFlag)
	if !core.WaitFor(func() bool { return c.ctl.Read()&ctlStop == 0 }, c.cfg.TimeoutUS) {
		return &StatusError{Op: "stop", Status: c.status.Read(), Err: ErrTimeout}
	}
	if !core.WaitFor(func() bool { return c.status.Read() == statIdle }, c.cfg.TimeoutUS) {
		return &StatusError{Op: "stop", Status: c.status.Read(), Err: ErrTimeout}
	}
	return nil
}

// Tx writes w to the 7-bit address addr, then reads len(r) bytes after a
// repeated start. The bus is always released with a stop.
func (c *Controller) Tx(addr uint16, w, r []byte) error {
	err := c.transfer(addr, w, r)
	if serr := c.stop(); err == nil {
		err = serr
	}
	return err
}

func (c *Controller) transfer(addr uint16, w, r []byte) error {
	if err := c.start(false); err != nil {
		return err
	}
	if len(w) > 0 || len(r) == 0 {
		if err := c.address(addr, false); err != nil {
			return err
		}
		for _, b := range w {
			if err := c.send(b); err != nil {
				return err
			}
		}
		if len(r) == 0 {
			return nil
		}
		if err := c.start(true); err != nil {
			return err
		}
	}
	if err := c.address(addr, true); err != nil {
		return err
	}
	return c.receive(r)
}

// ReadRegister reads len(buf) bytes starting at register r
func (c *Controller) ReadRegister(addr uint8, r uint8, buf []byte) error {
	return c.Tx(uint16(addr), []byte{r}, buf)
}

// WriteRegister writes buf starting at register r
func (c *Controller) WriteRegister(addr uint8, r uint8, buf []byte) error {
	w := make([]byte, 0, len(buf)+1)
	w = append(w, r)
	return c.Tx(uint16(addr), append(w, buf...), nil)
}
