package loader

import (
	"github.com/YuzukiHD/SyterKit/core"
	"github.com/YuzukiHD/SyterKit/mctl"
)

// Default load addresses
const (
	FirmwareAddr  = 0x40000000
	FirmwareSize  = 2 << 20
	InfoAddr      = 0x41000000
	OpaqueAddr    = 0x41008000
	NextStageAddr = 0x41800000
)

// InfoSize is the encoded size of a DynamicInfo record
const InfoSize = 6 * 8

// Layout places each image in DRAM
type Layout struct {
	Firmware  core.Window
	Info      uint32
	Opaque    core.Window
	NextStage core.Window
}

// DefaultLayout returns the standard slots for a DRAM of sizeMB. The
// next stage takes everything above NextStageAddr.
func DefaultLayout(sizeMB uint32) Layout {
	return Layout{
		Firmware: core.Window{Name: "firmware", Base: FirmwareAddr, Size: FirmwareSize},
		Info:     InfoAddr,
		Opaque:   core.Window{Name: "opaque", Base: OpaqueAddr, Size: NextStageAddr - OpaqueAddr},
		NextStage: core.Window{
			Name: "next_stage",
			Base: NextStageAddr,
			Size: tail(NextStageAddr, sizeMB),
		},
	}
}

func tail(base uint32, sizeMB uint32) uint32 {
	end := uint64(mctl.RAMBase) + uint64(sizeMB)<<20
	if end > 1<<32 {
		end = 1 << 32
	}
	if end <= uint64(base) {
		return 0
	}
	return uint32(end - uint64(base))
}

// Apply returns l with the overrides from o, resizing the slots that
// follow a moved one so they still end at the same place.
func (l Layout) Apply(o LayoutOverride, sizeMB uint32) Layout {
	if o.Firmware != 0 {
		l.Firmware.Base = o.Firmware
	}
	if o.FirmwareSize != 0 {
		l.Firmware.Size = o.FirmwareSize
	}
	if o.Info != 0 {
		l.Info = o.Info
	}
	if o.NextStage != 0 {
		l.NextStage.Base = o.NextStage
		l.NextStage.Size = tail(o.NextStage, sizeMB)
	}
	if o.Opaque != 0 {
		l.Opaque.Base = o.Opaque
	}
	if l.NextStage.Base > l.Opaque.Base {
		l.Opaque.Size = l.NextStage.Base - l.Opaque.Base
	} else {
		l.Opaque.Size = tail(l.Opaque.Base, sizeMB)
	}
	return l
}

// Slots lists the image windows in load order
func (l Layout) Slots() []core.Window {
	return []core.Window{l.Firmware, l.Opaque, l.NextStage}
}
