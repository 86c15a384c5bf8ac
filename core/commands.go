package core

import (
	"sync/atomic"

	"github.com/YuzukiHD/SyterKit/protocol"
)

// InitCoreCommands registers the link bootstrap and clock commands.
// The host's bootstrap dictionary hardcodes
//
//	identify_response = ID 0
//	identify = ID 1
//
// so these two must be registered first.
func InitCoreCommands() {
	RegisterCommand("identify_response", "offset=%u data=%*s", nil)
	RegisterCommand("identify", "offset=%u count=%c", handleIdentify)

	RegisterCommand("get_uptime", "", handleGetUptime)
	RegisterCommand("get_clock", "", handleGetClock)
	RegisterCommand("debug_read", "order=%c addr=%u", handleDebugRead)
	RegisterCommand("set_debug", "enable=%c", handleSetDebug)
	RegisterCommand("dump_trace", "", handleDumpTrace)
	RegisterCommand("reset", "", handleReset)

	RegisterResponse("clock", "clock=%u")
	RegisterResponse("uptime", "high=%u clock=%u")
	RegisterResponse("debug_result", "val=%u")

	RegisterConstant("MCU", "sun20iw1p1")
	RegisterConstant("CLOCK_FREQ", uint32(TimerFreq))
}

// handleIdentify returns a chunk of the compressed dictionary
func handleIdentify(data *[]byte) error {
	offset, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	count, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	chunk := GetGlobalDictionary().GetChunk(offset, uint8(count))
	SendResponse("identify_response", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQBytes(output, chunk)
	})
	return nil
}

func handleGetUptime(data *[]byte) error {
	uptime := GetUptime()
	SendResponse("uptime", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(uptime>>32))
		protocol.EncodeVLQUint(output, uint32(uptime))
	})
	return nil
}

func handleGetClock(data *[]byte) error {
	clock := GetTime()
	SendResponse("clock", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, clock)
	})
	return nil
}

// handleDebugRead reads a register through the configured bus.
//
//	order: 1 = 16-bit, 2 = 32-bit
//
// Response: debug_result val=%u
func handleDebugRead(data *[]byte) error {
	order, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	addr, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}

	var val uint32
	switch order {
	case 1:
		word := MustBus().Read32(addr &^ 3)
		val = (word >> ((addr & 2) * 8)) & 0xFFFF
	case 2:
		val = MustBus().Read32(addr &^ 3)
	}

	SendResponse("debug_result", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, val)
	})
	return nil
}

func handleSetDebug(data *[]byte) error {
	enable, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	SetDebugEnabled(enable != 0)
	return nil
}

func handleDumpTrace(data *[]byte) error {
	DumpTrace()
	return nil
}

// Global transport for responses (set by main)
var globalTransport *protocol.Transport

// SetGlobalTransport sets the transport used by SendResponse
func SetGlobalTransport(transport *protocol.Transport) {
	globalTransport = transport
}

// SendResponse encodes a registered response on the global transport.
// It is a no-op until a transport is set.
func SendResponse(responseName string, args func(output protocol.OutputBuffer)) {
	if globalTransport == nil {
		return
	}
	cmd, ok := globalRegistry.Lookup(responseName)
	if !ok {
		panic("response not registered: " + responseName)
	}
	globalTransport.SendCommand(cmd.ID, args)
}

var (
	globalResetHandler func()

	// resetPending defers the reset until the ACK has gone out
	resetPending atomic.Bool
)

// SetResetHandler sets the platform-specific reset handler
func SetResetHandler(handler func()) {
	globalResetHandler = handler
}

func handleReset(_ *[]byte) error {
	resetPending.Store(true)
	return nil
}

// CheckPendingReset runs the reset handler if a reset was requested.
// Call it from the main loop after output is flushed.
func CheckPendingReset() bool {
	if !resetPending.CompareAndSwap(true, false) {
		return false
	}
	if globalResetHandler != nil {
		globalResetHandler()
	}
	return true
}
