package serial

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Port represents a serial port interface.
// Implementations:
// - tarm (github.com/tarm/serial), portable
// - term (github.com/pkg/term), termios with modem line control
// - test doubles over io.Pipe
type Port interface {
	io.ReadWriteCloser

	// Flush discards buffered data
	Flush() error
}

// Resetter is implemented by ports that can pulse a modem line to
// reset the board
type Resetter interface {
	Reset(pulse time.Duration) error
}

// Backend selects the serial implementation
type Backend string

const (
	BackendTarm Backend = "tarm"
	BackendTerm Backend = "term"
)

// ErrNoReset is returned by Reset on ports without modem line control
var ErrNoReset = errors.New("port cannot drive reset lines")

// ParseBackend accepts a backend name, defaulting to tarm for ""
func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(s)); b {
	case "":
		return BackendTarm, nil
	case BackendTarm, BackendTerm:
		return b, nil
	}
	return "", fmt.Errorf("unknown serial backend %q", s)
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyUSB0", "COM3")
	Device string

	// Baud rate; the D1 boot ROM and SPL UART run at 115200
	Baud int

	// Read timeout in milliseconds (0 = blocking)
	ReadTimeout int

	Backend Backend
}

// DefaultConfig returns the configuration for a D1 UART0 adapter
func DefaultConfig(device string) *Config {
	return &Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100,
		Backend:     BackendTarm,
	}
}

func (c *Config) timeout() time.Duration {
	return time.Duration(c.ReadTimeout) * time.Millisecond
}

// Open opens cfg.Device with the configured backend
func Open(cfg *Config) (Port, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	switch cfg.Backend {
	case "", BackendTarm:
		return openTarm(cfg)
	case BackendTerm:
		return openTerm(cfg)
	}
	return nil, fmt.Errorf("unknown serial backend %q", cfg.Backend)
}

// Reset pulses the reset line if p supports it
func Reset(p Port, pulse time.Duration) error {
	r, ok := p.(Resetter)
	if !ok {
		return ErrNoReset
	}
	return r.Reset(pulse)
}
