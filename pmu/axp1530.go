// Package pmu drives the X-Powers AXP1530 family of power management
// chips found next to the D1. The loader only needs it to raise the DRAM
// rail before training, but every regulator of the chip is exposed.
package pmu

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"tinygo.org/x/drivers"
)

// RuntimeAddr is the 7-bit bus address the chip answers on after reset
const RuntimeAddr = 0x36

// Register map
const (
	regVersion     = 0x03
	regOutputCtl   = 0x10
	regDCDC1       = 0x13
	regDCDC2       = 0x14
	regDCDC3       = 0x15
	regALDO1       = 0x16
	regDLDO1       = 0x17
	regPowerDomain = 0x1a

	chipIDMask    = 0xcf
	overTempShutd = 1 << 1
)

// Chip identifies a member of the family from its version register
type Chip uint8

const (
	ChipAXP1530 Chip = 0x48
	ChipAXP323  Chip = 0x49
	ChipAXP313A Chip = 0x4b
	ChipAXP313B Chip = 0x4c
)

func (c Chip) String() string {
	switch c {
	case ChipAXP1530:
		return "AXP1530"
	case ChipAXP323:
		return "AXP323"
	case ChipAXP313A:
		return "AXP313A"
	case ChipAXP313B:
		return "AXP313B"
	}
	return fmt.Sprintf("unknown(%#02x)", uint8(c))
}

var (
	ErrNoPMU       = errors.New("no supported PMU on bus")
	ErrUnknownRail = errors.New("unknown PMU rail")
)

// Output selects what SetVoltage does with a rail's enable bit
type Output int8

const (
	OutputKeep Output = iota
	OutputOn
	OutputOff
)

// Step is one linear segment of a rail's voltage code space
type Step struct {
	Min, Max, Inc uint32 // mV
}

// codes is the number of register codes the segment spans
func (s Step) codes() uint32 {
	return (s.Max - s.Min + s.Inc) / s.Inc
}

// Rail describes one regulator output
type Rail struct {
	Name    string
	Min     uint32 // mV
	Max     uint32
	Reg     uint8
	Mask    uint8
	CtrlBit uint8 // enable bit in the output control register
	Steps   []Step
}

var rails = []Rail{
	{"dcdc1", 500, 3400, regDCDC1, 0x7f, 0, []Step{{500, 1200, 10}, {1220, 1540, 20}, {1600, 3400, 100}}},
	{"dcdc2", 500, 1540, regDCDC2, 0x7f, 1, []Step{{500, 1200, 10}, {1220, 1540, 20}}},
	{"dcdc3", 500, 1840, regDCDC3, 0x7f, 2, []Step{{500, 1200, 10}, {1220, 1840, 20}}},
	{"aldo1", 500, 3500, regALDO1, 0x1f, 3, []Step{{500, 3500, 100}}},
	{"dldo1", 500, 3500, regDLDO1, 0x1f, 4, []Step{{500, 3500, 100}}},
}

// Rails lists the regulators in register order
func Rails() []Rail {
	return rails
}

func lookupRail(name string) (*Rail, error) {
	for i := range rails {
		if rails[i].Name == name {
			return &rails[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownRail, name)
}

// Encode returns the register code for mV, clamped to the rail range.
// A request that falls in the gap between two segments rounds down to
// the top of the lower one.
func (r *Rail) Encode(mV uint32) uint8 {
	mV = max(r.Min, min(mV, r.Max))
	var base uint32
	for i, s := range r.Steps {
		if i+1 < len(r.Steps) && mV > s.Max && mV < r.Steps[i+1].Min {
			mV = s.Max
		}
		if mV <= s.Max {
			return uint8(base + (mV-s.Min)/s.Inc)
		}
		base += s.codes()
	}
	return uint8(base - 1)
}

// Decode converts a register code back to mV. ok is false for codes past
// the last segment.
func (r *Rail) Decode(code uint8) (mV uint32, ok bool) {
	var base uint32
	for _, s := range r.Steps {
		n := s.codes()
		if uint32(code) < base+n {
			return (uint32(code)-base)*s.Inc + s.Min, true
		}
		base += n
	}
	return 0, false
}

// AXP1530 is a PMU on an I2C bus
type AXP1530 struct {
	bus  drivers.I2C
	addr uint16
	chip Chip
	log  *slog.Logger
}

// NewAXP1530 binds a PMU at RuntimeAddr on bus. log may be nil.
func NewAXP1530(bus drivers.I2C, log *slog.Logger) *AXP1530 {
	return &AXP1530{bus: bus, addr: RuntimeAddr, log: log}
}

func (d *AXP1530) debug(msg string, attrs ...slog.Attr) {
	if d.log == nil || !d.log.Enabled(context.Background(), slog.LevelDebug) {
		return
	}
	d.log.LogAttrs(context.Background(), slog.LevelDebug, msg, attrs...)
}

func (d *AXP1530) read(reg uint8) (uint8, error) {
	var buf [1]byte
	if err := d.bus.Tx(d.addr, []byte{reg}, buf[:]); err != nil {
		return 0, fmt.Errorf("pmu read %#02x: %w", reg, err)
	}
	return buf[0], nil
}

func (d *AXP1530) write(reg, val uint8) error {
	if err := d.bus.Tx(d.addr, []byte{reg, val}, nil); err != nil {
		return fmt.Errorf("pmu write %#02x: %w", reg, err)
	}
	return nil
}

// Init probes the chip and enables the over-temperature shutdown
func (d *AXP1530) Init() error {
	v, err := d.read(regVersion)
	if err != nil {
		return err
	}
	chip := Chip(v & chipIDMask)
	switch chip {
	case ChipAXP1530, ChipAXP323, ChipAXP313A, ChipAXP313B:
	default:
		return fmt.Errorf("%w: version %#02x", ErrNoPMU, v)
	}
	d.chip = chip
	if d.log != nil {
		d.log.LogAttrs(context.Background(), slog.LevelInfo, "PMU found", slog.String("chip", chip.String()))
	}

	seq, err := d.read(regPowerDomain)
	if err != nil {
		return err
	}
	return d.write(regPowerDomain, seq|overTempShutd)
}

// Chip returns the model found by Init
func (d *AXP1530) Chip() Chip {
	return d.chip
}

// SetVoltage programs rail to mV and applies out to its enable bit.
// mV of 0 leaves the voltage alone.
func (d *AXP1530) SetVoltage(rail string, mV uint32, out Output) error {
	r, err := lookupRail(rail)
	if err != nil {
		return err
	}
	if mV > 0 {
		v, err := d.read(r.Reg)
		if err != nil {
			return err
		}
		code := r.Encode(mV)
		if err := d.write(r.Reg, v&^r.Mask|code&r.Mask); err != nil {
			return err
		}
		d.debug("rail set", slog.String("rail", rail), slog.Uint64("mv", uint64(mV)), slog.Uint64("code", uint64(code)))
	}

	if out == OutputKeep {
		return nil
	}
	ctl, err := d.read(regOutputCtl)
	if err != nil {
		return err
	}
	if out == OutputOn {
		ctl |= 1 << r.CtrlBit
	} else {
		ctl &^= 1 << r.CtrlBit
	}
	return d.write(regOutputCtl, ctl)
}

// Voltage reads rail back in mV; a disabled rail reads 0
func (d *AXP1530) Voltage(rail string) (uint32, error) {
	r, err := lookupRail(rail)
	if err != nil {
		return 0, err
	}
	ctl, err := d.read(regOutputCtl)
	if err != nil {
		return 0, err
	}
	if ctl&(1<<r.CtrlBit) == 0 {
		return 0, nil
	}
	v, err := d.read(r.Reg)
	if err != nil {
		return 0, err
	}
	mV, ok := r.Decode(v & r.Mask)
	if !ok {
		return 0, fmt.Errorf("%s: code %#02x out of range", rail, v&r.Mask)
	}
	return mV, nil
}

// Dump logs every rail at debug level
func (d *AXP1530) Dump() {
	for _, r := range rails {
		mV, err := d.Voltage(r.Name)
		if err != nil {
			d.debug("rail", slog.String("rail", r.Name), slog.String("err", err.Error()))
			continue
		}
		d.debug("rail", slog.String("rail", r.Name), slog.Uint64("mv", uint64(mV)))
	}
}
