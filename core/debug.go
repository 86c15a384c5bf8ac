package core

import (
	"context"
	"log/slog"
	"strings"
)

// DebugWriter is a function type for writing debug messages
type DebugWriter func(string)

// TraceEvent records one bring-up milestone for post-mortem dumps
type TraceEvent struct {
	Code  uint8
	Clock uint32 // System clock at event
	Arg0  uint32
	Arg1  uint32
}

// Trace event codes
const (
	EvtSysInit       = 1 // PLL programmed, Arg0 = MHz
	EvtPLLLocked     = 2
	EvtPIRDone       = 3  // Arg0 = PIR word, Arg1 = PGSR0
	EvtTrainingError = 4  // Arg0 = PGSR0
	EvtScanRankWidth = 5  // Arg0 = para2, Arg1 = dx0<<8|dx1 on failure
	EvtScanSize      = 6  // Arg0 = para1
	EvtDRAMReady     = 7  // Arg0 = MB
	EvtSelfTest      = 8  // Arg0 = 1 on pass, Arg1 = failing address
	EvtHandoff       = 9  // Arg0 = entry
	EvtTimeout       = 10 // Arg0 = stage, Arg1 = timeout in us
)

const (
	TraceRingSize = 32
)

var (
	// debugPrintln is the global debug print function (set by platform code)
	debugPrintln DebugWriter = func(s string) {}

	// debugEnabled gates DebugPrintln; enable from the link with set_debug
	debugEnabled bool = false

	traceRing [TraceRingSize]TraceEvent
	traceHead uint8
	traceLen  uint8
)

// SetDebugWriter sets the platform-specific debug output function
func SetDebugWriter(writer DebugWriter) {
	debugPrintln = writer
}

// SetDebugEnabled enables or disables debug output
func SetDebugEnabled(enabled bool) {
	debugEnabled = enabled
}

// IsDebugEnabled returns whether debug output is enabled
func IsDebugEnabled() bool {
	return debugEnabled
}

// DebugPrintln writes a debug message using the platform-specific writer
func DebugPrintln(msg string) {
	if debugEnabled && debugPrintln != nil {
		debugPrintln(msg)
	}
}

// RecordTrace appends an event to the trace ring, overwriting the oldest
func RecordTrace(code uint8, arg0, arg1 uint32) {
	traceRing[traceHead] = TraceEvent{
		Code:  code,
		Clock: GetTime(),
		Arg0:  arg0,
		Arg1:  arg1,
	}
	traceHead = (traceHead + 1) % TraceRingSize
	if traceLen < TraceRingSize {
		traceLen++
	}
}

// TraceEvents returns the recorded events, oldest first
func TraceEvents() []TraceEvent {
	out := make([]TraceEvent, 0, traceLen)
	start := (traceHead + TraceRingSize - traceLen) % TraceRingSize
	for i := uint8(0); i < traceLen; i++ {
		out = append(out, traceRing[(start+i)%TraceRingSize])
	}
	return out
}

// TraceName returns the mnemonic for a trace code
func TraceName(code uint8) string {
	switch code {
	case EvtSysInit:
		return "SYS_INIT"
	case EvtPLLLocked:
		return "PLL_LOCK"
	case EvtPIRDone:
		return "PIR_DONE"
	case EvtTrainingError:
		return "TRAIN_ERR!"
	case EvtScanRankWidth:
		return "SCAN_RW"
	case EvtScanSize:
		return "SCAN_SIZE"
	case EvtDRAMReady:
		return "DRAM_READY"
	case EvtSelfTest:
		return "SELFTEST"
	case EvtHandoff:
		return "HANDOFF"
	case EvtTimeout:
		return "TIMEOUT!"
	default:
		return "UNKNOWN"
	}
}

// DumpTrace writes the trace ring through the debug writer
func DumpTrace() {
	if debugPrintln == nil {
		return
	}
	debugPrintln("[TRACE] === Trace Dump ===")
	for _, evt := range TraceEvents() {
		debugPrintln("[TRACE] " + TraceName(evt.Code) +
			" clock=" + utoa(evt.Clock) +
			" a0=0x" + hex32(evt.Arg0) +
			" a1=0x" + hex32(evt.Arg1))
	}
	debugPrintln("[TRACE] === End Dump ===")
}

// ClearTrace empties the trace ring
func ClearTrace() {
	for i := range traceRing {
		traceRing[i] = TraceEvent{}
	}
	traceHead = 0
	traceLen = 0
}

// debugSink adapts the platform DebugWriter to io.Writer for slog.
// Each record arrives as one Write call ending in a newline.
type debugSink struct{}

func (debugSink) Write(p []byte) (int, error) {
	if debugPrintln != nil {
		debugPrintln(strings.TrimRight(string(p), "\n"))
	}
	return len(p), nil
}

// NewLogger returns a text logger that writes through the debug writer.
// Timestamps are dropped; the UART has no wall clock.
func NewLogger(level slog.Level) *slog.Logger {
	h := slog.NewTextHandler(debugSink{}, &slog.HandlerOptions{
		Level: level,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) == 0 && a.Key == slog.TimeKey {
				return slog.Attr{}
			}
			return a
		},
	})
	return slog.New(h)
}

// Enabled reports whether l would emit a record at level.
// A nil logger is silent.
func Enabled(l *slog.Logger, level slog.Level) bool {
	return l != nil && l.Enabled(context.Background(), level)
}
