package core

// RegisterBus is the abstract 32-bit memory interface core code uses.
// Platform-specific implementations touch real MMIO; tests supply a model.
// DRAM pattern tests go through the same bus as register programming.
type RegisterBus interface {
	// Read32 returns the 32-bit word at addr
	Read32(addr uint32) uint32

	// Write32 stores a 32-bit word at addr
	Write32(addr uint32, val uint32)
}

// ByteMapper is implemented by buses whose memory the CPU addresses
// directly, so a range can be read without copying.
type ByteMapper interface {
	Bytes(addr, n uint32) []byte
}

// Global singleton used by the host link commands.
var registerBus RegisterBus

// SetRegisterBus is called by target-specific code to register its bus.
func SetRegisterBus(b RegisterBus) {
	registerBus = b
}

// MustBus returns the configured bus or panics if missing.
func MustBus() RegisterBus {
	if registerBus == nil {
		panic("register bus not configured")
	}
	return registerBus
}

// Reg32 is a handle to a single 32-bit register on a bus.
type Reg32 struct {
	bus  RegisterBus
	Addr uint32
}

// NewReg32 binds addr on bus.
func NewReg32(bus RegisterBus, addr uint32) Reg32 {
	return Reg32{bus: bus, Addr: addr}
}

// Read returns the current register value
func (r Reg32) Read() uint32 {
	return r.bus.Read32(r.Addr)
}

// Write replaces the register value
func (r Reg32) Write(val uint32) {
	r.bus.Write32(r.Addr, val)
}

// Modify performs a read-modify-write with fn
func (r Reg32) Modify(fn func(uint32) uint32) {
	r.bus.Write32(r.Addr, fn(r.bus.Read32(r.Addr)))
}

// Set ORs mask into the register
func (r Reg32) Set(mask uint32) {
	r.Modify(func(v uint32) uint32 { return v | mask })
}

// Clear removes mask from the register
func (r Reg32) Clear(mask uint32) {
	r.Modify(func(v uint32) uint32 { return v &^ mask })
}

// ClearSet clears the clear bits, then ORs in set.
func (r Reg32) ClearSet(clear, set uint32) {
	r.Modify(func(v uint32) uint32 { return v&^clear | set })
}

// Offset returns the register off bytes past r on the same bus
func (r Reg32) Offset(off uint32) Reg32 {
	return Reg32{bus: r.bus, Addr: r.Addr + off}
}

// Window is an address range [Base, Base+Size).
type Window struct {
	Name string
	Base uint32
	Size uint32
}

// Contains reports whether n bytes starting at addr fit inside the window.
func (w Window) Contains(addr uint32, n uint32) bool {
	if addr < w.Base {
		return false
	}
	off := uint64(addr-w.Base) + uint64(n)
	return off <= uint64(w.Size)
}

// End returns one past the last address of the window.
func (w Window) End() uint64 {
	return uint64(w.Base) + uint64(w.Size)
}
