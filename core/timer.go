package core

import "errors"

// The D1 CLINT mtime counter runs off the 24MHz oscillator.
const (
	TimerFreq = 24000000
)

// ErrTimeout is returned when a hardware poll exceeds its deadline.
var ErrTimeout = errors.New("hardware not responding")

var bootTime uint64 // Time at boot for uptime calculation

// GetTime returns the low 32 bits of the system time in timer ticks
func GetTime() uint32 {
	return uint32(readTicks())
}

// SetTime shifts the system time so that GetTime reads ticks (for testing)
func SetTime(ticks uint32) {
	setTicks(uint64(ticks))
}

// GetUptime returns 64-bit ticks since TimerInit
func GetUptime() uint64 {
	return readTicks() - bootTime
}

// TimerFromUS converts microseconds to timer ticks
func TimerFromUS(us uint32) uint64 {
	return uint64(us) * TimerFreq / 1000000
}

// TimerToUS converts timer ticks to microseconds
func TimerToUS(ticks uint64) uint64 {
	return ticks * 1000000 / TimerFreq
}

// TimerInit latches the boot time
func TimerInit() {
	bootTime = readTicks()
}

// Delay spins for at least us microseconds of wall time.
func Delay(us uint32) {
	start := readTicks()
	wait := TimerFromUS(us)
	for readTicks()-start < wait {
	}
}

// WaitFor polls cond until it returns true or timeoutUS elapses.
// A zero timeout polls forever.
func WaitFor(cond func() bool, timeoutUS uint32) bool {
	start := readTicks()
	limit := TimerFromUS(timeoutUS)
	for !cond() {
		if timeoutUS != 0 && readTicks()-start >= limit {
			return cond()
		}
	}
	return true
}
