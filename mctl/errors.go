package mctl

import (
	"errors"

	"github.com/YuzukiHD/SyterKit/core"
)

var (
	ErrZQCalibration      = errors.New("ZQ calibration error, check external 240 ohm resistor")
	ErrRankWidthDetection = errors.New("rank/width detection failed")
	ErrUnsupportedType    = errors.New("unsupported DRAM type")
	ErrHardwareTimeout    = core.ErrTimeout
	ErrSelfTest           = errors.New("DRAM self-test failed")
	ErrResumeSelfTest     = errors.New("self-test skipped while resuming from standby")
)

// Stage identifies a bring-up phase
type Stage uint8

const (
	StageZQ Stage = iota
	StageVoltage
	StageSysInit
	StageTiming
	StageChannel
	StageRankWidth
	StageSizeScan
	StageFinal
	StageSize
	StageSelfTest
	StageParams
)

var stageNames = [...]string{
	StageZQ:        "zq",
	StageVoltage:   "voltage",
	StageSysInit:   "sys_init",
	StageTiming:    "timing",
	StageChannel:   "channel",
	StageRankWidth: "rank_width",
	StageSizeScan:  "size_scan",
	StageFinal:     "final",
	StageSize:      "size",
	StageSelfTest:  "self_test",
	StageParams:    "params",
}

func (s Stage) String() string {
	if int(s) < len(stageNames) {
		return stageNames[s]
	}
	return "unknown"
}

// StageError reports which phase failed. The Controller returns its own
// instance, which the next init overwrites.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return "mctl " + e.Stage.String() + ": " + e.Err.Error()
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// fail records err against stage s. An error that already names its
// stage is passed through.
func (c *Controller) fail(s Stage, err error) error {
	if _, ok := err.(*StageError); ok {
		return err
	}
	c.failure = StageError{Stage: s, Err: err}
	return &c.failure
}

// maxStages bounds a StageLog; an init enters at most seven stages
const maxStages = 12

// StageLog lists the stages an init entered, in order
type StageLog struct {
	list [maxStages]Stage
	n    uint8
}

func (l *StageLog) add(s Stage) {
	if int(l.n) < len(l.list) {
		l.list[l.n] = s
		l.n++
	}
}

// All returns the entered stages; the slice aliases l
func (l *StageLog) All() []Stage {
	return l.list[:l.n]
}

// Len is the number of stages entered
func (l StageLog) Len() int {
	return int(l.n)
}

// Last returns the most recent stage
func (l StageLog) Last() (Stage, bool) {
	if l.n == 0 {
		return 0, false
	}
	return l.list[l.n-1], true
}
