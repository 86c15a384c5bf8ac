package protocol

import (
	"bytes"
	"errors"
	"io"
	"testing"
	"time"
)

const (
	testCmdEcho  = 5
	testRespEcho = 6
)

func echoHandler(tr *Transport) CommandHandler {
	return func(cmdID uint16, data *[]byte) error {
		if cmdID != testCmdEcho {
			return errors.New("unexpected command")
		}
		v, err := DecodeVLQUint(data)
		if err != nil {
			return err
		}
		tr.SendCommand(testRespEcho, func(out OutputBuffer) {
			EncodeVLQUint(out, v+1)
		})
		return nil
	}
}

func TestTransportReceiveDispatchesAndAcks(t *testing.T) {
	out := NewScratchOutput()
	var tr *Transport
	tr = NewTransport(out, func(id uint16, data *[]byte) error { return echoHandler(tr)(id, data) })

	payload := append(EncodeVLQ(testCmdEcho), EncodeVLQ(41)...)
	frame, _ := AppendFrame(nil, MessageDest, payload)
	tr.Receive(NewSliceInputBuffer(frame))

	if tr.LastError() != nil {
		t.Fatalf("handler error: %v", tr.LastError())
	}

	var msgs []Message
	var s Scanner
	s.Scan(out.Result(), func(m Message) { msgs = append(msgs, m) }, nil)
	if len(msgs) != 2 {
		t.Fatalf("got %d blocks, want response + ACK", len(msgs))
	}
	if msgs[0].IsAck() {
		t.Error("response must precede the ACK")
	}
	p := msgs[0].Payload
	ids, err := DecodeVLQUints(&p, 2)
	if err != nil || ids[0] != testRespEcho || ids[1] != 42 {
		t.Errorf("response = %v err %v", ids, err)
	}
	if !msgs[1].IsAck() || msgs[1].Sequence != MessageDest|1 {
		t.Errorf("ACK = %+v", msgs[1])
	}
}

func TestTransportStaleSequenceIsNotDispatched(t *testing.T) {
	out := NewScratchOutput()
	calls := 0
	tr := NewTransport(out, func(id uint16, data *[]byte) error {
		calls++
		*data = nil
		return nil
	})

	frame, _ := AppendFrame(nil, MessageDest|4, []byte{1})
	tr.Receive(NewSliceInputBuffer(frame))

	if calls != 0 {
		t.Errorf("stale block dispatched %d times", calls)
	}
	msg, _, err := ParseFrame(out.Result())
	if err != nil || !msg.IsAck() || msg.Sequence != MessageDest {
		t.Errorf("expected NAK with seq 0x10, got %+v err %v", msg, err)
	}
}

func TestTransportHostResetCallback(t *testing.T) {
	out := NewScratchOutput()
	tr := NewTransport(out, func(id uint16, data *[]byte) error { *data = nil; return nil })
	resets := 0
	tr.SetResetCallback(func() { resets++ })

	var in []byte
	in, _ = AppendFrame(in, MessageDest, []byte{1})
	in, _ = AppendFrame(in, MessageDest|1, []byte{1})
	in, _ = AppendFrame(in, MessageDest, []byte{1})
	tr.Receive(NewSliceInputBuffer(in))

	if resets != 1 {
		t.Errorf("resets = %d, want 1", resets)
	}
}

type pipePort struct {
	r *io.PipeReader
	w *io.PipeWriter
}

func (p *pipePort) Read(b []byte) (int, error)  { return p.r.Read(b) }
func (p *pipePort) Write(b []byte) (int, error) { return p.w.Write(b) }
func (p *pipePort) Close() error {
	p.r.Close()
	return p.w.Close()
}

// newLoopback connects a HostTransport to a firmware Transport running
// echoHandler in a goroutine.
func newLoopback(t *testing.T) *HostTransport {
	t.Helper()
	toMCU, fromHost := io.Pipe()
	toHost, fromMCU := io.Pipe()

	out := NewScratchOutput()
	var tr *Transport
	tr = NewTransport(out, func(id uint16, data *[]byte) error { return echoHandler(tr)(id, data) })

	go func() {
		defer fromMCU.Close()
		fifo := NewFifoBuffer(256)
		buf := make([]byte, 64)
		for {
			n, err := toMCU.Read(buf)
			if err != nil {
				return
			}
			fifo.Write(buf[:n])
			tr.Receive(fifo)
			if out.CurPosition() > 0 {
				pending := append([]byte(nil), out.Result()...)
				out.Reset()
				if _, err := fromMCU.Write(pending); err != nil {
					return
				}
			}
		}
	}()

	host := NewHostTransport(&pipePort{r: toHost, w: fromHost})
	t.Cleanup(func() { host.Close() })
	return host
}

func TestHostTransportLoopback(t *testing.T) {
	host := newLoopback(t)

	for i, v := range []uint32{1, 1000, 0xfffffff0} {
		err := host.SendCommand(testCmdEcho, func(out OutputBuffer) {
			EncodeVLQUint(out, v)
		})
		if err != nil {
			t.Fatalf("SendCommand %d: %v", i, err)
		}
		resp, err := host.ReceiveResponse(time.Second)
		if err != nil {
			t.Fatalf("ReceiveResponse %d: %v", i, err)
		}
		p := resp.Payload
		vals, err := DecodeVLQUints(&p, 2)
		if err != nil || vals[0] != testRespEcho || vals[1] != v+1 {
			t.Errorf("echo %d: got %v err %v", v, vals, err)
		}
	}

	if seq := host.GetCurrentSequence(); seq != MessageDest|3 {
		t.Errorf("sequence = %#x, want 0x13", seq)
	}
}

func TestHostTransportNakAdoptsSequence(t *testing.T) {
	host := newLoopback(t)
	host.currentSeq.Store(MessageDest | 3)

	err := host.SendCommand(testCmdEcho, func(out OutputBuffer) { EncodeVLQUint(out, 1) })
	if !errors.Is(err, ErrNak) {
		t.Fatalf("expected ErrNak, got %v", err)
	}
	if seq := host.GetCurrentSequence(); seq != MessageDest {
		t.Fatalf("sequence after NAK = %#x, want 0x10", seq)
	}

	if err := host.SendCommand(testCmdEcho, func(out OutputBuffer) { EncodeVLQUint(out, 1) }); err != nil {
		t.Fatalf("retry: %v", err)
	}
	resp, err := host.ReceiveResponse(time.Second)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(resp.Payload, []byte{testRespEcho, 2}) {
		t.Errorf("payload = % x", resp.Payload)
	}
}

func TestHostTransportRejectsOversizedCommand(t *testing.T) {
	host := newLoopback(t)
	err := host.SendCommand(testCmdEcho, func(out OutputBuffer) {
		EncodeVLQBytes(out, make([]byte, MessagePayloadMax))
	})
	if !errors.Is(err, ErrFrameTooLong) {
		t.Errorf("expected ErrFrameTooLong, got %v", err)
	}
}
