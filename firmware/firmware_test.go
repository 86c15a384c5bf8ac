package firmware

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/YuzukiHD/SyterKit/core"
	"github.com/YuzukiHD/SyterKit/mctl"
	"github.com/YuzukiHD/SyterKit/protocol"
	"zappem.net/pub/debug/xcrc32"
)

// newBoardBus models a board whose PHY trains cleanly and whose DRAM
// never aliases.
func newBoardBus() *core.MemoryBus {
	bus := core.NewMemoryBus()
	bus.OnRead(0x02001010, func(v uint32) uint32 {
		if v&(1<<31) != 0 {
			return v | 1<<28
		}
		return v
	})
	bus.OnRead(0x03103010, func(uint32) uint32 { return 1 })
	bus.OnRead(0x03103018, func(uint32) uint32 { return 1 })
	return bus
}

type harness struct {
	bus   *core.MemoryBus
	svc   *Service
	out   *protocol.ScratchOutput
	boots [][3]uint32
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{bus: newBoardBus()}
	ctrl := mctl.NewController(h.bus, mctl.Options{SelfTestWords: 16, Delay: func(uint32) {}})
	h.svc = NewService(Config{
		Bus:    h.bus,
		Ctrl:   ctrl,
		Params: mctl.NezhaParams(),
		Boot:   func(entry, mode, info uint32) { h.boots = append(h.boots, [3]uint32{entry, mode, info}) },
	})

	core.InitCoreCommands()
	Install(h.svc)
	h.out = protocol.NewScratchOutput()
	core.SetGlobalTransport(protocol.NewTransport(h.out, core.DispatchCommand))
	t.Cleanup(func() {
		core.SetGlobalTransport(nil)
		active = nil
	})
	return h
}

// call dispatches name with raw argument bytes and returns the decoded
// response words; byte-string fields come back in data.
func (h *harness) call(t *testing.T, name, resp string, args []byte) (words []uint32, data []byte) {
	t.Helper()
	cmd, ok := core.GetGlobalRegistry().Lookup(name)
	if !ok {
		t.Fatalf("%s not registered", name)
	}
	payload := append([]byte(nil), args...)
	if err := core.DispatchCommand(cmd.ID, &payload); err != nil {
		t.Fatalf("%s: %v", name, err)
	}

	msg, n, err := protocol.ParseFrame(h.out.Result())
	if err != nil || n == 0 {
		t.Fatalf("%s: no response frame (%v)", name, err)
	}
	h.out.Reset()
	body := msg.Payload
	id, _ := protocol.DecodeVLQUint(&body)
	want, _ := core.GetGlobalRegistry().Lookup(resp)
	if uint16(id) != want.ID {
		t.Fatalf("%s answered with id %d, want %s", name, id, resp)
	}

	// mem_data carries its bytes last
	if resp == "mem_data" {
		words, err = protocol.DecodeVLQUints(&body, 2)
		if err != nil {
			t.Fatal(err)
		}
		data, err = protocol.DecodeVLQBytes(&body)
		if err != nil {
			t.Fatal(err)
		}
		return words, data
	}
	for len(body) > 0 {
		v, err := protocol.DecodeVLQUint(&body)
		if err != nil {
			t.Fatal(err)
		}
		words = append(words, v)
	}
	return words, nil
}

func vlq(args ...uint32) []byte {
	var b []byte
	for _, a := range args {
		b = protocol.AppendVLQ(b, int32(a))
	}
	return b
}

func withBytes(addr uint32, data []byte) []byte {
	b := vlq(addr, uint32(len(data)))
	return append(b, data...)
}

func TestDRAMParams(t *testing.T) {
	h := newHarness(t)

	got, _ := h.call(t, "dram_get_param", "dram_param", vlq(0))
	if got[1] != 792 || Status(got[2]) != StatusOK {
		t.Errorf("clk param %v", got)
	}
	got, _ = h.call(t, "dram_get_param", "dram_param", vlq(40))
	if Status(got[2]) != StatusBadParam {
		t.Errorf("index 40 status %v", Status(got[2]))
	}

	got, _ = h.call(t, "dram_set_param", "dram_param", vlq(1, 4))
	if Status(got[2]) != StatusBadParam || got[1] != 3 {
		t.Errorf("type=4 accepted: %v", got)
	}
	got, _ = h.call(t, "dram_set_param", "dram_param", vlq(19, 0x1234))
	if Status(got[2]) != StatusOK || got[1] != 0x1234 {
		t.Errorf("set tpr9 %v", got)
	}
	if h.svc.Params().TPR[9] != 0x1234 {
		t.Error("tpr9 not stored")
	}
}

func TestDRAMInitAndStatus(t *testing.T) {
	h := newHarness(t)

	got, _ := h.call(t, "dram_status", "dram_state", nil)
	if got[0] != 0 {
		t.Errorf("ready before init: %v", got)
	}

	got, _ = h.call(t, "dram_init", "dram_result", nil)
	want := []uint32{uint32(StatusOK), 512, 792, uint32(mctl.StageSelfTest), uint32(mctl.RemapCFG7), uint32(mctl.SelfTestPassed)}
	if fmt.Sprint(got) != fmt.Sprint(want) {
		t.Errorf("dram_result %v, want %v", got, want)
	}

	got, _ = h.call(t, "dram_status", "dram_state", nil)
	if got[0] != 1 || got[1] != 512 || got[2] != 0x10f2 || got[3] != 512<<16 || got[4] != 0x34050101 {
		t.Errorf("dram_state %#x", got)
	}

	// parameters are frozen once trained
	got, _ = h.call(t, "dram_set_param", "dram_param", vlq(0, 528))
	if Status(got[2]) != StatusDenied || got[1] != 792 {
		t.Errorf("set after init %v", got)
	}

	got, _ = h.call(t, "dram_selftest", "selftest_result", vlq(8))
	if Status(got[0]) != StatusOK || got[1] != 512 {
		t.Errorf("selftest %v", got)
	}
}

func TestDRAMInitFailure(t *testing.T) {
	h := newHarness(t)
	h.bus.OnRead(0x03103010, func(uint32) uint32 { return 1 | 1<<20 })

	got, _ := h.call(t, "dram_init", "dram_result", nil)
	if Status(got[0]) != StatusZQ || got[1] != 0 || mctl.Stage(got[3]) != mctl.StageChannel {
		t.Errorf("dram_result %v", got)
	}
	if ready, _ := h.svc.Ready(); ready {
		t.Error("ready after failed init")
	}
	got, _ = h.call(t, "dram_selftest", "selftest_result", vlq(0))
	if Status(got[0]) != StatusNotReady {
		t.Errorf("selftest before DRAM: %v", Status(got[0]))
	}
}

func TestMemAccess(t *testing.T) {
	h := newHarness(t)
	h.bus.Write32(0x03102000, 0xdeadbeef)

	got, data := h.call(t, "mem_read", "mem_data", vlq(0x03102000, 4))
	if Status(got[1]) != StatusOK || !bytes.Equal(data, []byte{0xef, 0xbe, 0xad, 0xde}) {
		t.Errorf("register read %v % x", got, data)
	}
	got, _ = h.call(t, "mem_read", "mem_data", vlq(mctl.RAMBase, 4))
	if Status(got[1]) != StatusNotReady {
		t.Errorf("DRAM read before init: %v", Status(got[1]))
	}
	got, _ = h.call(t, "mem_read", "mem_data", vlq(0x01000000, 4))
	if Status(got[1]) != StatusDenied {
		t.Errorf("unmapped read: %v", Status(got[1]))
	}
	got, _ = h.call(t, "mem_write", "mem_ack", withBytes(mctl.RAMBase, []byte{1}))
	if Status(got[2]) != StatusNotReady {
		t.Errorf("DRAM write before init: %v", Status(got[2]))
	}

	if _, err := h.svc.InitDRAM(); err != nil {
		t.Fatal(err)
	}

	msg := []byte("syterkit payload")
	addr := uint32(mctl.RAMBase + 0x101)
	got, _ = h.call(t, "mem_write", "mem_ack", withBytes(addr, msg))
	if Status(got[2]) != StatusOK || got[1] != uint32(len(msg)) {
		t.Fatalf("mem_write %v", got)
	}
	got, data = h.call(t, "mem_read", "mem_data", vlq(addr, 64))
	if Status(got[1]) != StatusOK || !bytes.HasPrefix(data, msg) || len(data) != MemChunk {
		t.Errorf("read back %v %q", got, data)
	}

	_, want := xcrc32.NewCRC32(msg)
	got, _ = h.call(t, "mem_crc", "mem_crc_result", vlq(addr, uint32(len(msg))))
	if Status(got[2]) != StatusOK || got[3] != want {
		t.Errorf("mem_crc %#x, want %#x", got, want)
	}

	end := uint32(mctl.RAMBase + 512<<20 - 2)
	got, _ = h.call(t, "mem_write", "mem_ack", withBytes(end, []byte{1, 2, 3, 4}))
	if Status(got[2]) != StatusDenied {
		t.Errorf("write past DRAM end: %v", Status(got[2]))
	}
	got, _ = h.call(t, "mem_write", "mem_ack", withBytes(0x03102000, []byte{0, 0, 0, 0}))
	if Status(got[2]) != StatusDenied || h.bus.Peek(0x03102000) != 0xdeadbeef {
		t.Errorf("register write allowed: %v", Status(got[2]))
	}
}

func TestBootHandoff(t *testing.T) {
	h := newHarness(t)
	entry, info := uint32(mctl.RAMBase), uint32(0x41000000)

	got, _ := h.call(t, "boot", "boot_status", vlq(entry, 1, info))
	if Status(got[1]) != StatusNotReady || CheckPendingBoot() {
		t.Errorf("boot before DRAM: %v", Status(got[1]))
	}

	if _, err := h.svc.InitDRAM(); err != nil {
		t.Fatal(err)
	}
	got, _ = h.call(t, "boot", "boot_status", vlq(0x20000, 1, info))
	if Status(got[1]) != StatusDenied {
		t.Errorf("boot outside DRAM: %v", Status(got[1]))
	}

	got, _ = h.call(t, "boot", "boot_status", vlq(entry, 1, info))
	if Status(got[1]) != StatusOK {
		t.Fatalf("boot: %v", Status(got[1]))
	}
	if len(h.boots) != 0 {
		t.Fatal("jumped inside the handler")
	}
	if !CheckPendingBoot() || len(h.boots) != 1 || h.boots[0] != [3]uint32{entry, 1, info} {
		t.Errorf("hand-off %v", h.boots)
	}
	if CheckPendingBoot() {
		t.Error("hand-off ran twice")
	}
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want Status
	}{
		{nil, StatusOK},
		{&mctl.StageError{Stage: mctl.StageChannel, Err: mctl.ErrZQCalibration}, StatusZQ},
		{fmt.Errorf("x: %w", mctl.ErrRankWidthDetection), StatusRankWidth},
		{mctl.ErrUnsupportedType, StatusUnsupported},
		{fmt.Errorf("PLL: %w", mctl.ErrHardwareTimeout), StatusTimeout},
		{mctl.ErrResumeSelfTest, StatusSelfTest},
		{mctl.ErrUnknownParam, StatusBadParam},
		{errors.New("other"), StatusFailed},
	}
	for _, tt := range tests {
		if got := StatusOf(tt.err); got != tt.want {
			t.Errorf("StatusOf(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestByteAccess(t *testing.T) {
	bus := core.NewMemoryBus()
	bus.Write32(0x100, 0x44332211)
	bus.Write32(0x104, 0x88776655)

	buf := make([]byte, 4)
	if got := readBytes(bus, 0x102, buf); !bytes.Equal(got, []byte{0x33, 0x44, 0x55, 0x66}) || &got[0] != &buf[0] {
		t.Errorf("readBytes % x", got)
	}
	writeBytes(bus, 0x103, []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff})
	if bus.Peek(0x100) != 0xaa332211 || bus.Peek(0x104) != 0xeeddccbb || bus.Peek(0x108) != 0x000000ff {
		t.Errorf("words %#x %#x %#x", bus.Peek(0x100), bus.Peek(0x104), bus.Peek(0x108))
	}
}

// flatBus exposes a byte slice at base the way the MMIO bus exposes DRAM
type flatBus struct {
	*core.MemoryBus
	base uint32
	mem  []byte
}

func (f *flatBus) Bytes(addr, n uint32) []byte {
	return f.mem[addr-f.base : addr-f.base+n]
}

func TestViewBytes(t *testing.T) {
	f := &flatBus{MemoryBus: core.NewMemoryBus(), base: 0x40000000, mem: []byte("0123456789")}
	got := viewBytes(f, 0x40000002, 4)
	if string(got) != "2345" || &got[0] != &f.mem[2] {
		t.Errorf("mapped view %q", got)
	}

	bus := core.NewMemoryBus()
	bus.Write32(0x200, 0x64636261)
	if got := viewBytes(bus, 0x201, 3); string(got) != "bcd" {
		t.Errorf("copied view %q", got)
	}
}
