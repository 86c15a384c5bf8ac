// Package uart drives the 16550-compatible UARTs of the Allwinner SoCs.
// It polls; the SPL runs with interrupts masked.
package uart

import (
	"io"

	"github.com/YuzukiHD/SyterKit/core"
)

// D1 instances
const (
	UART0Base = 0x02500000
	UART1Base = 0x02500400
	UART2Base = 0x02500800
	UART3Base = 0x02500c00

	ccuUARTBGR = 0x0200190c
	apbClock   = 24000000
)

// Register offsets; the bus strides 4 bytes per 16550 register
const (
	regRBR = 0x00 // also THR, DLL
	regIER = 0x04 // also DLH
	regFCR = 0x08
	regLCR = 0x0c
	regMCR = 0x10
	regLSR = 0x14

	lcrDLAB = 1 << 7
	lcr8N1  = 0x03
	lsrDR   = 1 << 0
	lsrTEMT = 1 << 6

	fifoEnableReset = 0xf7
)

// Config describes one UART
type Config struct {
	ID     uint8
	Base   uint32
	Baud   uint32 // 0 selects 115200
	TX, RX core.Pin
}

// UART is a polled 8N1 port
type UART struct {
	bus core.RegisterBus
	cfg Config
	rbr core.Reg32
	lsr core.Reg32
}

var _ io.ReadWriter = (*UART)(nil)

// New binds a UART; call Configure before use
func New(bus core.RegisterBus, cfg Config) *UART {
	if cfg.Baud == 0 {
		cfg.Baud = 115200
	}
	return &UART{
		bus: bus,
		cfg: cfg,
		rbr: core.NewReg32(bus, cfg.Base+regRBR),
		lsr: core.NewReg32(bus, cfg.Base+regLSR),
	}
}

// Divisor returns the baud divisor for the 24 MHz APB clock, rounded to
// the nearest step
func Divisor(baud uint32) uint32 {
	return (apbClock + 8*baud) / (16 * baud)
}

// Configure ungates the UART, programs 8N1 at the configured rate and
// routes the pins
func (u *UART) Configure() {
	bgr := core.NewReg32(u.bus, ccuUARTBGR)
	bgr.Set(1 << u.cfg.ID)
	bgr.Set(1 << (16 + u.cfg.ID))

	reg := func(off uint32) core.Reg32 { return core.NewReg32(u.bus, u.cfg.Base+off) }
	div := Divisor(u.cfg.Baud)
	reg(regIER).Write(0)
	reg(regFCR).Write(fifoEnableReset)
	reg(regMCR).Write(0)
	reg(regLCR).Set(lcrDLAB)
	reg(regRBR).Write(div & 0xff)
	reg(regIER).Write(div>>8&0xff)
	reg(regLCR).Clear(lcrDLAB)
	reg(regLCR).ClearSet(0x1f, lcr8N1)

	u.cfg.TX.Apply(u.bus)
	u.cfg.RX.Apply(u.bus)
}

// WriteByte waits for the transmitter to drain and sends b
func (u *UART) WriteByte(b byte) error {
	for u.lsr.Read()&lsrTEMT == 0 {
	}
	u.rbr.Write(uint32(b))
	return nil
}

func (u *UART) Write(p []byte) (int, error) {
	for _, b := range p {
		u.WriteByte(b)
	}
	return len(p), nil
}

// WriteString writes s with LF expanded to CRLF
func (u *UART) WriteString(s string) {
	for i := 0; i < len(s); i++ {
		if s[i] == '\n' {
			u.WriteByte('\r')
		}
		u.WriteByte(s[i])
	}
}

// Buffered reports whether a received byte is waiting
func (u *UART) Buffered() bool {
	return u.lsr.Read()&lsrDR != 0
}

// Read returns the bytes already received without blocking. It returns
// 0, nil when nothing is waiting.
func (u *UART) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) && u.Buffered() {
		p[n] = byte(u.rbr.Read())
		n++
	}
	return n, nil
}
