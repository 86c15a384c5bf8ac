//go:build tinygo

package core

import (
	"runtime/volatile"
	"unsafe"
)

// CLINT mtime, read as two halves
var (
	mtimeLo = (*volatile.Register32)(unsafe.Pointer(uintptr(0x1400bff8)))
	mtimeHi = (*volatile.Register32)(unsafe.Pointer(uintptr(0x1400bffc)))
)

var tickOffset uint64

func readMtime() uint64 {
	for {
		hi := mtimeHi.Get()
		lo := mtimeLo.Get()
		if mtimeHi.Get() == hi {
			return uint64(hi)<<32 | uint64(lo)
		}
	}
}

// readTicks returns the CLINT counter plus any offset from setTicks
func readTicks() uint64 {
	return readMtime() + tickOffset
}

func setTicks(ticks uint64) {
	tickOffset = ticks - readMtime()
}
