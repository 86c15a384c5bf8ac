//go:build !windows

package serial

import (
	"fmt"
	"time"

	"github.com/pkg/term"
)

// TermPort drives a tty through termios. Unlike the tarm backend it
// can toggle DTR and RTS, which USB-UART adapters wire to reset.
type TermPort struct {
	t *term.Term
}

func openTerm(cfg *Config) (Port, error) {
	t, err := term.Open(cfg.Device, term.Speed(cfg.Baud), term.RawMode)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}
	if cfg.ReadTimeout > 0 {
		if err := t.SetReadTimeout(cfg.timeout()); err != nil {
			t.Close()
			return nil, fmt.Errorf("set read timeout on %s: %w", cfg.Device, err)
		}
	}
	return &TermPort{t: t}, nil
}

func (p *TermPort) Read(b []byte) (int, error) {
	return p.t.Read(b)
}

func (p *TermPort) Write(b []byte) (int, error) {
	return p.t.Write(b)
}

func (p *TermPort) Close() error {
	return p.t.Close()
}

func (p *TermPort) Flush() error {
	return p.t.Flush()
}

// Reset holds DTR and RTS asserted for pulse, then releases both
func (p *TermPort) Reset(pulse time.Duration) error {
	if err := p.t.SetDTR(true); err != nil {
		return fmt.Errorf("assert DTR: %w", err)
	}
	if err := p.t.SetRTS(true); err != nil {
		return fmt.Errorf("assert RTS: %w", err)
	}
	time.Sleep(pulse)
	if err := p.t.SetRTS(false); err != nil {
		return fmt.Errorf("release RTS: %w", err)
	}
	if err := p.t.SetDTR(false); err != nil {
		return fmt.Errorf("release DTR: %w", err)
	}
	return p.t.Flush()
}
