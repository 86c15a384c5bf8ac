package firmware

import (
	"github.com/YuzukiHD/SyterKit/core"
	"github.com/YuzukiHD/SyterKit/protocol"
	"zappem.net/pub/debug/xcrc32"
)

// MemChunk is the most data one mem_read or mem_write carries; it keeps
// a response inside a single block.
const MemChunk = 32

// MaxCRCLen bounds one mem_crc request
const MaxCRCLen = 16 << 20

func registerMemCommands() {
	core.RegisterCommand("mem_read", "addr=%u count=%c", handleMemRead)
	core.RegisterCommand("mem_write", "addr=%u data=%*s", handleMemWrite)
	core.RegisterCommand("mem_crc", "addr=%u len=%u", handleMemCRC)

	core.RegisterResponse("mem_data", "addr=%u status=%c data=%*s")
	core.RegisterResponse("mem_ack", "addr=%u count=%c status=%c")
	core.RegisterResponse("mem_crc_result", "addr=%u len=%u status=%c crc=%u")
}

// readBytes fills out from addr on the word bus
func readBytes(bus core.RegisterBus, addr uint32, out []byte) []byte {
	var word uint32
	for i := uint32(0); i < uint32(len(out)); i++ {
		a := addr + i
		if i == 0 || a&3 == 0 {
			word = bus.Read32(a &^ 3)
		}
		out[i] = byte(word >> (8 * (a & 3)))
	}
	return out
}

// viewBytes returns n bytes at addr, in place when the bus maps memory
// and as a copy otherwise
func viewBytes(bus core.RegisterBus, addr, n uint32) []byte {
	if m, ok := bus.(core.ByteMapper); ok {
		return m.Bytes(addr, n)
	}
	return readBytes(bus, addr, make([]byte, n))
}

// writeBytes stores data at addr, merging partial words
func writeBytes(bus core.RegisterBus, addr uint32, data []byte) {
	for i := 0; i < len(data); {
		a := addr + uint32(i)
		if a&3 == 0 && len(data)-i >= 4 {
			bus.Write32(a, uint32(data[i])|uint32(data[i+1])<<8|uint32(data[i+2])<<16|uint32(data[i+3])<<24)
			i += 4
			continue
		}
		shift := 8 * (a & 3)
		w := bus.Read32(a &^ 3)
		bus.Write32(a&^3, w&^(0xff<<shift)|uint32(data[i])<<shift)
		i++
	}
}

func handleMemRead(data *[]byte) error {
	args, err := protocol.DecodeVLQUints(data, 2)
	if err != nil {
		return err
	}
	addr, count := args[0], min(args[1], MemChunk)

	s := active
	s.mu.Lock()
	st := s.access(addr, count)
	out := s.scratch[:0]
	if st == StatusOK {
		out = readBytes(s.bus, addr, s.scratch[:count])
	}
	s.mu.Unlock()

	core.SendResponse("mem_data", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, addr)
		protocol.EncodeVLQUint(output, uint32(st))
		protocol.EncodeVLQBytes(output, out)
	})
	return nil
}

// handleMemWrite only writes DRAM; register pokes go through the
// controller, never the link.
func handleMemWrite(data *[]byte) error {
	addr, err := protocol.DecodeVLQUint(data)
	if err != nil {
		return err
	}
	payload, err := protocol.DecodeVLQBytes(data)
	if err != nil {
		return err
	}

	s := active
	s.mu.Lock()
	st := StatusNotReady
	if w, ok := s.dramWindow(); ok {
		st = StatusDenied
		if len(payload) <= MemChunk && w.Contains(addr, uint32(len(payload))) {
			writeBytes(s.bus, addr, payload)
			st = StatusOK
		}
	}
	s.mu.Unlock()

	core.SendResponse("mem_ack", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, addr)
		protocol.EncodeVLQUint(output, uint32(len(payload)))
		protocol.EncodeVLQUint(output, uint32(st))
	})
	return nil
}

// handleMemCRC checksums a DRAM range so uploads can be verified
// without reading them back.
func handleMemCRC(data *[]byte) error {
	args, err := protocol.DecodeVLQUints(data, 2)
	if err != nil {
		return err
	}
	addr, n := args[0], args[1]

	s := active
	s.mu.Lock()
	st := StatusNotReady
	var crc uint32
	if w, ok := s.dramWindow(); ok {
		st = StatusDenied
		if n <= MaxCRCLen && w.Contains(addr, n) {
			_, crc = xcrc32.NewCRC32(viewBytes(s.bus, addr, n))
			st = StatusOK
		}
	}
	s.mu.Unlock()

	core.SendResponse("mem_crc_result", func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, addr)
		protocol.EncodeVLQUint(output, n)
		protocol.EncodeVLQUint(output, uint32(st))
		protocol.EncodeVLQUint(output, crc)
	})
	return nil
}
