package link

import (
	"fmt"
	"time"

	"github.com/golang/glog"

	"github.com/YuzukiHD/SyterKit/firmware"
	"github.com/YuzukiHD/SyterKit/mctl"
	"github.com/YuzukiHD/SyterKit/protocol"
)

// InitTimeout covers DRAM training plus the self-test
const InitTimeout = 20 * time.Second

// StatusError is a non-OK status returned by the firmware
type StatusError struct {
	Op     string
	Status firmware.Status
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Status)
}

func check(op string, word uint32) error {
	if st := firmware.Status(word); st != firmware.StatusOK {
		return &StatusError{Op: op, Status: st}
	}
	return nil
}

// Clock returns the firmware timer value
func (c *Client) Clock() (uint32, error) {
	w, err := c.CallUints("get_clock", "clock", 1)
	if err != nil {
		return 0, err
	}
	return w[0], nil
}

// Uptime returns the 64-bit tick count since boot
func (c *Client) Uptime() (uint64, error) {
	w, err := c.CallUints("get_uptime", "uptime", 2)
	if err != nil {
		return 0, err
	}
	return uint64(w[0])<<32 | uint64(w[1]), nil
}

// ReadWord reads one 32-bit register through debug_read
func (c *Client) ReadWord(addr uint32) (uint32, error) {
	w, err := c.CallUints("debug_read", "debug_result", 1, 2, addr)
	if err != nil {
		return 0, err
	}
	return w[0], nil
}

// GetParam reads DRAM parameter word i
func (c *Client) GetParam(i int) (uint32, error) {
	w, err := c.CallUints("dram_get_param", "dram_param", 3, uint32(i))
	if err != nil {
		return 0, err
	}
	return w[1], check("dram_get_param "+mctl.ParamName(i), w[2])
}

// SetParam replaces DRAM parameter word i. The firmware refuses once
// DRAM is up.
func (c *Client) SetParam(i int, v uint32) error {
	w, err := c.CallUints("dram_set_param", "dram_param", 3, uint32(i), v)
	if err != nil {
		return err
	}
	return check("dram_set_param "+mctl.ParamName(i), w[2])
}

// Params reads the whole parameter block
func (c *Client) Params() (*mctl.Params, error) {
	p := &mctl.Params{}
	for i := 0; i < mctl.ParamWords; i++ {
		v, err := c.GetParam(i)
		if err != nil {
			return nil, err
		}
		if err := p.SetWord(i, v); err != nil {
			return nil, err
		}
	}
	return p, nil
}

// DRAMResult is the decoded dram_result response
type DRAMResult struct {
	Status   firmware.Status
	SizeMB   uint32
	ClockMHz uint32
	Stage    mctl.Stage
	Remap    mctl.RemapID
	SelfTest mctl.SelfTestVerdict
}

func (r DRAMResult) String() string {
	return fmt.Sprintf("status=%s size=%dMB clock=%dMHz stage=%s remap=%s selftest=%s",
		r.Status, r.SizeMB, r.ClockMHz, r.Stage, r.Remap, r.SelfTest)
}

// InitDRAM runs DRAM init on the board. A board already up reports its
// first result again.
func (c *Client) InitDRAM() (DRAMResult, error) {
	w, err := c.callUints("dram_init", "dram_result", 6, InitTimeout)
	if err != nil {
		return DRAMResult{}, err
	}
	res := DRAMResult{
		Status:   firmware.Status(w[0]),
		SizeMB:   w[1],
		ClockMHz: w[2],
		Stage:    mctl.Stage(w[3]),
		Remap:    mctl.RemapID(w[4]),
		SelfTest: mctl.SelfTestVerdict(w[5]),
	}
	glog.V(1).Infof("dram_init: %s", res)
	return res, check("dram_init at "+res.Stage.String(), w[0])
}

// DRAMState is the decoded dram_state response
type DRAMState struct {
	Ready  bool
	SizeMB uint32
	Para1  uint32
	Para2  uint32
	TPR13  uint32
}

// DRAMStatus reports whether DRAM is up and the key parameter words
func (c *Client) DRAMStatus() (DRAMState, error) {
	w, err := c.CallUints("dram_status", "dram_state", 5)
	if err != nil {
		return DRAMState{}, err
	}
	return DRAMState{Ready: w[0] != 0, SizeMB: w[1], Para1: w[2], Para2: w[3], TPR13: w[4]}, nil
}

// SelfTest reruns the DRAM pattern test over words per region. It
// overwrites DRAM contents.
func (c *Client) SelfTest(words uint32) (uint32, error) {
	w, err := c.callUints("dram_selftest", "selftest_result", 2, InitTimeout, words)
	if err != nil {
		return 0, err
	}
	return w[1], check("dram_selftest", w[0])
}

// ReadMem reads n bytes starting at addr
func (c *Client) ReadMem(addr, n uint32) ([]byte, error) {
	out := make([]byte, 0, n)
	for n > 0 {
		count := min(n, firmware.MemChunk)
		payload, err := c.Call("mem_read", "mem_data", Uints(addr, count), c.Timeout)
		if err != nil {
			return nil, err
		}
		w, err := protocol.DecodeVLQUints(&payload, 2)
		if err != nil {
			return nil, fmt.Errorf("mem_data: %w: %v", ErrShortResponse, err)
		}
		if err := check(fmt.Sprintf("mem_read 0x%08x", addr), w[1]); err != nil {
			return nil, err
		}
		data, err := protocol.DecodeVLQBytes(&payload)
		if err != nil {
			return nil, fmt.Errorf("mem_data: %w", err)
		}
		if uint32(len(data)) != count {
			return nil, fmt.Errorf("mem_read 0x%08x: %w: %d of %d bytes", addr, ErrShortResponse, len(data), count)
		}
		out = append(out, data...)
		addr += count
		n -= count
	}
	return out, nil
}

// WriteMem stores data at addr in chunks. progress, if set, is called
// with the bytes written so far.
func (c *Client) WriteMem(addr uint32, data []byte, progress func(done int)) error {
	for off := 0; off < len(data); {
		chunk := data[off:min(off+firmware.MemChunk, len(data))]
		a := addr + uint32(off)
		payload, err := c.Call("mem_write", "mem_ack", func(output protocol.OutputBuffer) {
			protocol.EncodeVLQUint(output, a)
			protocol.EncodeVLQBytes(output, chunk)
		}, c.Timeout)
		if err != nil {
			return err
		}
		w, err := protocol.DecodeVLQUints(&payload, 3)
		if err != nil {
			return fmt.Errorf("mem_ack: %w: %v", ErrShortResponse, err)
		}
		if err := check(fmt.Sprintf("mem_write 0x%08x", a), w[2]); err != nil {
			return err
		}
		if w[1] != uint32(len(chunk)) {
			return fmt.Errorf("mem_write 0x%08x: wrote %d of %d bytes", a, w[1], len(chunk))
		}
		off += len(chunk)
		if progress != nil {
			progress(off)
		}
	}
	return nil
}

// MemCRC asks the firmware for the CRC32 of n bytes at addr
func (c *Client) MemCRC(addr, n uint32) (uint32, error) {
	w, err := c.callUints("mem_crc", "mem_crc_result", 4, InitTimeout, addr, n)
	if err != nil {
		return 0, err
	}
	return w[3], check(fmt.Sprintf("mem_crc 0x%08x+%d", addr, n), w[2])
}

// Boot asks the firmware to jump to entry in mode with a1 = info. The
// firmware answers before it jumps; the link is gone afterwards.
func (c *Client) Boot(entry, mode, info uint32) error {
	w, err := c.CallUints("boot", "boot_status", 2, entry, mode, info)
	if err != nil {
		return err
	}
	return check(fmt.Sprintf("boot 0x%08x", entry), w[1])
}

// Reset asks the firmware to reset the SoC
func (c *Client) Reset() error {
	return c.Send("reset", nil)
}
