package loader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"

	"zappem.net/pub/debug/xcrc32"
)

// DynamicInfo is the hand-off record the firmware reads at start.
type DynamicInfo struct {
	Magic    uint64
	Version  uint64
	NextAddr uint64
	NextMode uint64
	Options  uint64
	BootHart uint64
}

const (
	InfoMagic   = 0x4942534f
	InfoVersion = 2
)

var ErrBadInfo = errors.New("bad dynamic info record")

// NewDynamicInfo returns a version 2 record for user mode at address 0
func NewDynamicInfo() DynamicInfo {
	return DynamicInfo{Magic: InfoMagic, Version: InfoVersion}
}

func (d DynamicInfo) WithBootHart(hart uint64) DynamicInfo {
	d.BootHart = hart
	return d
}

func (d DynamicInfo) WithNextStage(mode Mode, addr uint64) DynamicInfo {
	d.NextMode = uint64(mode)
	d.NextAddr = addr
	return d
}

// MarshalBinary encodes the record as six little-endian 64-bit words
func (d DynamicInfo) MarshalBinary() ([]byte, error) {
	b := make([]byte, 0, InfoSize)
	for _, v := range [...]uint64{d.Magic, d.Version, d.NextAddr, d.NextMode, d.Options, d.BootHart} {
		b = binary.LittleEndian.AppendUint64(b, v)
	}
	return b, nil
}

func (d *DynamicInfo) UnmarshalBinary(b []byte) error {
	if len(b) < InfoSize {
		return fmt.Errorf("%w: %d bytes", ErrBadInfo, len(b))
	}
	words := [...]*uint64{&d.Magic, &d.Version, &d.NextAddr, &d.NextMode, &d.Options, &d.BootHart}
	for i, w := range words {
		*w = binary.LittleEndian.Uint64(b[i*8:])
	}
	if d.Magic != InfoMagic {
		return fmt.Errorf("%w: magic 0x%x", ErrBadInfo, d.Magic)
	}
	return nil
}

// Image is one blob to place in memory
type Image struct {
	Name  string
	Addr  uint32
	Data  []byte
	CRC32 uint32
}

func newImage(name string, addr uint32, data []byte) Image {
	_, crc := xcrc32.NewCRC32(data)
	return Image{Name: name, Addr: addr, Data: data, CRC32: crc}
}

// Plan is the memory image set and hand-off for one boot
type Plan struct {
	Images    []Image
	Info      DynamicInfo
	InfoAddr  uint32
	Entry     uint32
	EntryMode Mode
	Warnings  []string
}

// zImage header magic, little-endian at offset 0x24
const (
	zImageMagic  = 0x016f2818
	zImageOffset = 0x24
)

// IsZImage reports whether data starts with a compressed ARM kernel header
func IsZImage(data []byte) bool {
	if len(data) < zImageOffset+4 {
		return false
	}
	return binary.LittleEndian.Uint32(data[zImageOffset:]) == zImageMagic
}

// Plan lays the bundle out in memory. The firmware starts in machine
// mode on hart and finds the next stage through the info record.
func (l *Loader) Plan(b *Bundle, hart uint64) (*Plan, error) {
	if len(b.Firmware) == 0 {
		return nil, ErrNoFirmware
	}
	cfg := b.Config
	if cfg == nil {
		cfg = DefaultConfig()
	}

	p := &Plan{
		InfoAddr:  l.Layout.Info,
		Entry:     l.Layout.Firmware.Base,
		EntryMode: ModeMachine,
	}
	p.Images = append(p.Images, newImage("firmware", l.Layout.Firmware.Base, b.Firmware))
	if len(b.Opaque) > 0 {
		p.Images = append(p.Images, newImage("opaque", l.Layout.Opaque.Base, b.Opaque))
	}

	info := NewDynamicInfo().WithBootHart(hart)
	if len(b.NextStage) > 0 {
		p.Images = append(p.Images, newImage("next_stage", l.Layout.NextStage.Base, b.NextStage))
		info = info.WithNextStage(cfg.NextStage.Mode, uint64(l.Layout.NextStage.Base))
		if IsZImage(b.NextStage) {
			p.Warnings = append(p.Warnings,
				fmt.Sprintf("%s is a compressed ARM zImage, not a RISC-V image", cfg.NextStage.Path))
		}
	}
	p.Info = info

	rec, err := info.MarshalBinary()
	if err != nil {
		return nil, err
	}
	p.Images = append(p.Images, newImage("info", l.Layout.Info, rec))

	if err := p.checkOverlap(); err != nil {
		return nil, err
	}

	for _, w := range p.Warnings {
		l.info("warning", slog.String("msg", w))
	}
	l.debug("plan",
		slog.Int("images", len(p.Images)),
		slog.Uint64("entry", uint64(p.Entry)),
		slog.Uint64("next", info.NextAddr),
		slog.String("mode", cfg.NextStage.Mode.String()))
	return p, nil
}

var ErrOverlap = errors.New("images overlap")

func (p *Plan) checkOverlap() error {
	for i, a := range p.Images {
		for _, b := range p.Images[i+1:] {
			aEnd := uint64(a.Addr) + uint64(len(a.Data))
			bEnd := uint64(b.Addr) + uint64(len(b.Data))
			if uint64(a.Addr) < bEnd && uint64(b.Addr) < aEnd {
				return fmt.Errorf("%w: %s and %s", ErrOverlap, a.Name, b.Name)
			}
		}
	}
	return nil
}

// Plan lays out b with the default loader settings
func (b *Bundle) Plan(layout Layout, hart uint64) (*Plan, error) {
	l := &Loader{Layout: layout}
	return l.Plan(b, hart)
}
