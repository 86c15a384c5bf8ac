package loader

import (
	"errors"
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/YuzukiHD/SyterKit/mctl"
)

// MaxPathLen bounds every path named in the boot config
const MaxPathLen = 128

// DefaultFirmware is loaded when the config names no firmware
const DefaultFirmware = "rustsbi.bin"

var (
	ErrBadMode     = errors.New("unknown privilege mode")
	ErrPathTooLong = errors.New("path too long")
)

// Mode is the RISC-V privilege level the next stage starts in.
type Mode uint8

const (
	ModeUser       Mode = 0
	ModeSupervisor Mode = 1
	ModeMachine    Mode = 3
)

func (m Mode) String() string {
	switch m {
	case ModeUser:
		return "user"
	case ModeSupervisor:
		return "supervisor"
	case ModeMachine:
		return "machine"
	}
	return fmt.Sprintf("mode(%d)", uint8(m))
}

// ParseMode accepts full names and the single-letter forms, in any case.
func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "u", "user":
		return ModeUser, nil
	case "s", "supervisor":
		return ModeSupervisor, nil
	case "m", "machine":
		return ModeMachine, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrBadMode, s)
}

func (m *Mode) UnmarshalText(text []byte) error {
	v, err := ParseMode(string(text))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

func (m Mode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// NextStage is the image started by the firmware. In TOML it is either a
// bare path, which boots in supervisor mode, or a {path, mode} table.
type NextStage struct {
	Path string `toml:"path"`
	Mode Mode   `toml:"mode"`

	modeSet bool
}

// UnmarshalTOML decodes the string-or-table form
func (n *NextStage) UnmarshalTOML(v any) error {
	switch v := v.(type) {
	case string:
		n.Path = v
		n.Mode = ModeSupervisor
		n.modeSet = true
	case map[string]any:
		for k, val := range v {
			s, ok := val.(string)
			if !ok {
				return fmt.Errorf("next_stage.%s: expected string, got %T", k, val)
			}
			switch k {
			case "path":
				n.Path = s
			case "mode":
				m, err := ParseMode(s)
				if err != nil {
					return fmt.Errorf("next_stage.mode: %w", err)
				}
				n.Mode = m
				n.modeSet = true
			default:
				return fmt.Errorf("next_stage: unknown key %q", k)
			}
		}
	default:
		return fmt.Errorf("next_stage: expected string or table, got %T", v)
	}
	return nil
}

// LayoutOverride moves slots away from the defaults. Zero keeps a default.
type LayoutOverride struct {
	Firmware     uint32 `toml:"firmware"`
	FirmwareSize uint32 `toml:"firmware_size"`
	Info         uint32 `toml:"info"`
	Opaque       uint32 `toml:"opaque"`
	NextStage    uint32 `toml:"next_stage"`
}

// BootConfig is the parsed boot configuration
type BootConfig struct {
	Firmware  string    `toml:"firmware"`
	Opaque    string    `toml:"opaque"`
	Bootargs  string    `toml:"bootargs"`
	NextStage NextStage `toml:"next_stage"`

	// DRAM holds parameter words by name, e.g. clk or tpr13
	DRAM   map[string]uint32 `toml:"-"`
	Layout LayoutOverride    `toml:"-"`
}

type configFile struct {
	Configs BootConfig        `toml:"configs"`
	DRAM    map[string]uint32 `toml:"dram"`
	Layout  LayoutOverride    `toml:"layout"`
}

// DefaultConfig is what boots when the card carries no config file
func DefaultConfig() *BootConfig {
	cfg := &BootConfig{}
	applyDefaults(cfg)
	return cfg
}

// ParseConfig parses a TOML boot config and applies defaults
func ParseConfig(data []byte) (*BootConfig, error) {
	var f configFile
	if _, err := toml.Decode(string(data), &f); err != nil {
		return nil, fmt.Errorf("parse boot config: %w", err)
	}

	cfg := f.Configs
	cfg.DRAM = f.DRAM
	cfg.Layout = f.Layout
	applyDefaults(&cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *BootConfig) {
	if cfg.Firmware == "" {
		cfg.Firmware = DefaultFirmware
	}
	if !cfg.NextStage.modeSet {
		cfg.NextStage.Mode = ModeSupervisor
	}
}

func (cfg *BootConfig) validate() error {
	for _, p := range []struct{ key, path string }{
		{"firmware", cfg.Firmware},
		{"opaque", cfg.Opaque},
		{"bootargs", cfg.Bootargs},
		{"next_stage", cfg.NextStage.Path},
	} {
		if len(p.path) > MaxPathLen {
			return fmt.Errorf("%s: %w (%d > %d)", p.key, ErrPathTooLong, len(p.path), MaxPathLen)
		}
	}
	for name := range cfg.DRAM {
		if _, ok := mctl.ParamIndex(name); !ok {
			return fmt.Errorf("dram: %w: %q", mctl.ErrUnknownParam, name)
		}
	}
	return nil
}

// ApplyDRAM overlays the [dram] table onto p. Keys absent from the
// table leave p untouched.
func (cfg *BootConfig) ApplyDRAM(p *mctl.Params) error {
	for name, v := range cfg.DRAM {
		if err := p.Set(name, v); err != nil {
			return fmt.Errorf("dram.%s: %w", name, err)
		}
	}
	return nil
}
