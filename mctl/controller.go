package mctl

import (
	"context"
	"log/slog"

	"github.com/YuzukiHD/SyterKit/core"
)

// VoltageRegulator drives the DRAM supply rail from a PMU
type VoltageRegulator interface {
	SetDRAMVoltage(mV uint32) error
}

// SelfTestPolicy decides what a failed self-test does to the result
type SelfTestPolicy uint8

const (
	// SelfTestReport records the failure in Result and keeps the size
	SelfTestReport SelfTestPolicy = iota
	// SelfTestStrict turns a failure into an init error
	SelfTestStrict
)

// DefaultPollTimeoutUS bounds every hardware poll
const DefaultPollTimeoutUS = 500000

// DefaultSelfTestWords is the word count checked at each half of DRAM
const DefaultSelfTestWords = 4096

// Options configures a Controller. The zero value is usable.
type Options struct {
	Regulator      VoltageRegulator // nil selects the SoC internal LDO
	Logger         *slog.Logger     // nil is silent
	PollTimeoutUS  uint32
	SelfTestPolicy SelfTestPolicy
	SelfTestWords  uint32

	// AllowFallbackTiming accepts conservative constants for types with
	// no timing formula instead of failing
	AllowFallbackTiming bool
	// ExperimentalTiming enables the unvalidated DDR2/LPDDR2/LPDDR3
	// formulas
	ExperimentalTiming bool

	Standby func()         // run last, before reporting success
	Delay   func(us uint32) // defaults to core.Delay
}

// SelfTestVerdict is the outcome of the optional self-test
type SelfTestVerdict uint8

const (
	SelfTestNotRun SelfTestVerdict = iota
	SelfTestPassed
	SelfTestFailed
	SelfTestSkipped
)

func (v SelfTestVerdict) String() string {
	switch v {
	case SelfTestPassed:
		return "passed"
	case SelfTestFailed:
		return "failed"
	case SelfTestSkipped:
		return "skipped"
	}
	return "not run"
}

// Result describes a completed init
type Result struct {
	SizeMB      uint32
	ClockMHz    uint32
	Stages      StageLog
	Remap       RemapID
	SelfTest    SelfTestVerdict
	SelfTestErr error
}

// Controller owns the DRAM controller registers on one bus
type Controller struct {
	r       registers
	bus     core.RegisterBus
	opts    Options
	log     *slog.Logger
	verbose bool
	remapID RemapID
	stages  StageLog
	failure StageError
}

// NewController binds a controller to bus
func NewController(bus core.RegisterBus, opts Options) *Controller {
	if opts.PollTimeoutUS == 0 {
		opts.PollTimeoutUS = DefaultPollTimeoutUS
	}
	if opts.SelfTestWords == 0 {
		opts.SelfTestWords = DefaultSelfTestWords
	}
	if opts.Delay == nil {
		opts.Delay = core.Delay
	}
	return &Controller{
		r:    newRegisters(bus),
		bus:  bus,
		opts: opts,
		log:  opts.Logger,
	}
}

func (c *Controller) logAttrs(level slog.Level, msg string, attrs ...slog.Attr) {
	if !core.Enabled(c.log, level) {
		return
	}
	c.log.LogAttrs(context.Background(), level, msg, attrs...)
}

// debug logs detail; the verbose flag promotes it to info
func (c *Controller) debug(msg string, attrs ...slog.Attr) {
	level := slog.LevelDebug
	if c.verbose {
		level = slog.LevelInfo
	}
	c.logAttrs(level, msg, attrs...)
}

func (c *Controller) info(msg string, attrs ...slog.Attr) {
	c.logAttrs(slog.LevelInfo, msg, attrs...)
}

func (c *Controller) delay(us uint32) {
	c.opts.Delay(us)
}

// poll waits for cond within the configured timeout. A timeout is
// traced with the current stage.
func (c *Controller) poll(what string, cond func() bool) error {
	if core.WaitFor(cond, c.opts.PollTimeoutUS) {
		return nil
	}
	stage, _ := c.stages.Last()
	core.RecordTrace(core.EvtTimeout, uint32(stage), c.opts.PollTimeoutUS)
	c.logAttrs(slog.LevelWarn, "poll timed out", slog.String("wait", what))
	return ErrHardwareTimeout
}

func (c *Controller) enter(s Stage) {
	c.stages.add(s)
}

func (c *Controller) enableAllMasters() {
	c.r.master[0].Write(0xffffffff)
	c.r.master[1].Write(0xff)
	c.r.master[2].Write(0xffff)
	c.delay(10)
}

func (c *Controller) disableAllMasters() {
	c.r.master[0].Write(1)
	c.r.master[1].Write(0)
	c.r.master[2].Write(0)
	c.delay(10)
}

// resuming reports a wake from super standby, where DRAM holds data
func (c *Controller) resuming() bool {
	return c.r.someStatus.Read()&resumeState != 0
}
