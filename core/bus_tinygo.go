//go:build tinygo

package core

import (
	"runtime/volatile"
	"unsafe"
)

// MMIOBus accesses physical addresses directly.
type MMIOBus struct{}

func (MMIOBus) Read32(addr uint32) uint32 {
	return (*volatile.Register32)(unsafe.Pointer(uintptr(addr))).Get()
}

func (MMIOBus) Write32(addr uint32, val uint32) {
	(*volatile.Register32)(unsafe.Pointer(uintptr(addr))).Set(val)
}

// Bytes aliases n bytes of physical memory at addr
func (MMIOBus) Bytes(addr, n uint32) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), n)
}
