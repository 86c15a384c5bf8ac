package core

// GPIOBase is the D1 pin controller
const GPIOBase = 0x02000000

// Pin is a GPIO and the function number that routes it to a peripheral
type Pin struct {
	Port byte // 'B', 'C', ...
	Num  uint8
	Mux  uint8
}

// Valid reports whether p names a pin; the zero Pin is left alone
func (p Pin) Valid() bool {
	return p.Port >= 'A' && p.Port <= 'G' && p.Num < 32
}

// cfgReg returns the config register and field shift for p
func (p Pin) cfgReg() (uint32, uint) {
	port := uint32(p.Port - 'A')
	return GPIOBase + port*0x30 + uint32(p.Num/8)*4, uint(p.Num%8) * 4
}

// Apply selects p's function on bus
func (p Pin) Apply(bus RegisterBus) {
	if !p.Valid() {
		return
	}
	addr, shift := p.cfgReg()
	r := NewReg32(bus, addr)
	r.Write(SetField(r.Read(), shift, 4, uint32(p.Mux)))
}
