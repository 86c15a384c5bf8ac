package serial

import (
	"fmt"

	"github.com/tarm/serial"
)

// tarmPort is the portable backend. It has no modem line control, so
// it does not implement Resetter.
type tarmPort struct {
	*serial.Port
}

func openTarm(cfg *Config) (Port, error) {
	p, err := serial.OpenPort(&serial.Config{
		Name:        cfg.Device,
		Baud:        cfg.Baud,
		ReadTimeout: cfg.timeout(),
	})
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.Device, err)
	}
	return tarmPort{p}, nil
}
