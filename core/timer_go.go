//go:build !tinygo

package core

import (
	"sync/atomic"
	"time"
)

var (
	epoch      = time.Now()
	tickOffset atomic.Int64
)

// readTicks derives 24MHz ticks from the monotonic clock
func readTicks() uint64 {
	ns := time.Since(epoch).Nanoseconds()
	return uint64(ns*(TimerFreq/1000000)/1000 + tickOffset.Load())
}

// setTicks moves the tick origin so readTicks returns ticks
func setTicks(ticks uint64) {
	ns := time.Since(epoch).Nanoseconds()
	tickOffset.Store(int64(ticks) - ns*(TimerFreq/1000000)/1000)
}
