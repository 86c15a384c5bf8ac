// Package firmware binds the DRAM controller, memory access and the boot
// hand-off to the link command dictionary.
package firmware

import (
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/YuzukiHD/SyterKit/core"
	"github.com/YuzukiHD/SyterKit/mctl"
)

// Status is the result code carried by every firmware response
type Status uint8

const (
	StatusOK Status = iota
	StatusZQ
	StatusRankWidth
	StatusUnsupported
	StatusTimeout
	StatusSelfTest
	StatusFailed
	StatusBadParam
	StatusDenied
	StatusNotReady
)

var statusNames = []string{
	StatusOK:          "ok",
	StatusZQ:          "zq_calibration",
	StatusRankWidth:   "rank_width",
	StatusUnsupported: "unsupported_type",
	StatusTimeout:     "timeout",
	StatusSelfTest:    "self_test",
	StatusFailed:      "failed",
	StatusBadParam:    "bad_param",
	StatusDenied:      "denied",
	StatusNotReady:    "not_ready",
}

func (s Status) String() string {
	if int(s) < len(statusNames) {
		return statusNames[s]
	}
	return "unknown"
}

// StatusOf maps an error to its wire code
func StatusOf(err error) Status {
	switch {
	case err == nil:
		return StatusOK
	case errors.Is(err, mctl.ErrZQCalibration):
		return StatusZQ
	case errors.Is(err, mctl.ErrRankWidthDetection):
		return StatusRankWidth
	case errors.Is(err, mctl.ErrUnsupportedType):
		return StatusUnsupported
	case errors.Is(err, mctl.ErrHardwareTimeout):
		return StatusTimeout
	case errors.Is(err, mctl.ErrSelfTest), errors.Is(err, mctl.ErrResumeSelfTest):
		return StatusSelfTest
	case errors.Is(err, mctl.ErrUnknownParam):
		return StatusBadParam
	}
	return StatusFailed
}

// BootFunc transfers control to entry; it does not return on hardware
type BootFunc func(entry, mode, info uint32)

// RegisterWindows are always readable over the link
var RegisterWindows = []core.Window{
	{Name: "sys", Base: 0x03000000, Size: 0x3000},
	{Name: "ccu", Base: 0x02001000, Size: 0x1000},
	{Name: "memc", Base: 0x03102000, Size: 0x2000},
	{Name: "rtc", Base: 0x07000000, Size: 0x20000},
}

// Service owns the DRAM state the link commands operate on
type Service struct {
	mu      sync.Mutex
	bus     core.RegisterBus
	ctrl    *mctl.Controller
	params  *mctl.Params
	windows []core.Window
	boot    BootFunc
	log     *slog.Logger

	ready   bool
	result  mctl.Result
	lastErr error

	pendingBoot *bootRequest

	// mem_read staging; the link loop is single-threaded
	scratch [MemChunk]byte
}

type bootRequest struct {
	entry, mode, info uint32
}

// Config collects what a Service needs. Windows defaults to
// RegisterWindows.
type Config struct {
	Bus     core.RegisterBus
	Ctrl    *mctl.Controller
	Params  *mctl.Params
	Windows []core.Window
	Boot    BootFunc
	Logger  *slog.Logger
}

// NewService creates a service; DRAM is not touched until InitDRAM
func NewService(cfg Config) *Service {
	windows := cfg.Windows
	if windows == nil {
		windows = RegisterWindows
	}
	return &Service{
		bus:     cfg.Bus,
		ctrl:    cfg.Ctrl,
		params:  cfg.Params,
		windows: windows,
		boot:    cfg.Boot,
		log:     cfg.Logger,
	}
}

// InitDRAM runs the controller with the current parameters and records
// the outcome for dram_status and the memory window.
func (s *Service) InitDRAM() (mctl.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initDRAM()
}

func (s *Service) initDRAM() (mctl.Result, error) {
	res, err := s.ctrl.InitDRAM(s.params)
	s.result, s.lastErr = res, err
	s.ready = err == nil && res.SizeMB != 0
	if err != nil && core.Enabled(s.log, slog.LevelWarn) {
		s.log.Warn("DRAM not available", "err", err)
	}
	return res, err
}

// Ready reports whether DRAM is up and its size
func (s *Service) Ready() (bool, uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready, s.result.SizeMB
}

// Params returns a copy of the current parameter block
func (s *Service) Params() *mctl.Params {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.params.Clone()
}

// dramWindow must be called with the lock held
func (s *Service) dramWindow() (core.Window, bool) {
	if !s.ready {
		return core.Window{}, false
	}
	return core.Window{Name: "dram", Base: mctl.RAMBase, Size: s.result.SizeMB << 20}, true
}

// access decides whether n bytes at addr may be touched over the link.
// Register windows are readable always; DRAM only once it is up.
func (s *Service) access(addr, n uint32) Status {
	if w, ok := s.dramWindow(); ok && w.Contains(addr, n) {
		return StatusOK
	}
	if addr >= mctl.RAMBase {
		if !s.ready {
			return StatusNotReady
		}
		return StatusDenied
	}
	for _, w := range s.windows {
		if w.Contains(addr, n) {
			return StatusOK
		}
	}
	return StatusDenied
}

var active *Service

// Install registers the firmware commands and routes them to s. The core
// commands must already be registered so the bootstrap IDs stay fixed.
func Install(s *Service) {
	active = s
	registerDRAMCommands()
	registerMemCommands()
	registerBootCommands()

	types := make([]string, 8)
	for _, t := range []mctl.DramType{mctl.DDR2, mctl.DDR3, mctl.LPDDR2, mctl.LPDDR3} {
		types[t] = strings.ToLower(t.String())
	}
	core.RegisterEnumeration("dram_type", types)
	core.RegisterEnumeration("status", statusNames)
	core.RegisterConstant("RAM_BASE", uint32(mctl.RAMBase))
	core.RegisterConstant("MEM_CHUNK", uint32(MemChunk))
}
