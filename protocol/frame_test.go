package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestAppendParseFrame(t *testing.T) {
	payload := []byte{0x01, 0x87, 0x68}
	frame, err := AppendFrame(nil, MessageDest|3, payload)
	if err != nil {
		t.Fatalf("AppendFrame: %v", err)
	}
	if int(frame[0]) != len(frame) || frame[len(frame)-1] != MessageValueSync {
		t.Fatalf("bad framing: % x", frame)
	}

	msg, n, err := ParseFrame(frame)
	if err != nil || n != len(frame) {
		t.Fatalf("ParseFrame: n=%d err=%v", n, err)
	}
	if msg.Sequence != MessageDest|3 || !bytes.Equal(msg.Payload, payload) {
		t.Errorf("parsed %+v", msg)
	}
}

func TestAckFrameBytes(t *testing.T) {
	ack, _ := AppendFrame(nil, MessageDest, nil)
	want := []byte{5, MessageDest, 0x9E, 0x81, MessageValueSync}
	if !bytes.Equal(ack, want) {
		t.Errorf("ACK = % x, want % x", ack, want)
	}
}

func TestAppendFrameTooLong(t *testing.T) {
	_, err := AppendFrame(nil, MessageDest, make([]byte, MessagePayloadMax+1))
	if !errors.Is(err, ErrFrameTooLong) {
		t.Errorf("expected ErrFrameTooLong, got %v", err)
	}
	if _, err := AppendFrame(nil, MessageDest, make([]byte, MessagePayloadMax)); err != nil {
		t.Errorf("maximum payload rejected: %v", err)
	}
}

func TestParseFrameErrors(t *testing.T) {
	good, _ := AppendFrame(nil, MessageDest, []byte{1, 2})

	testCases := []struct {
		name    string
		data    []byte
		wantErr bool
	}{
		{"short", good[:3], false},
		{"partial", good[:len(good)-1], false},
		{"bad length", []byte{2, MessageDest, 0, 0, MessageValueSync}, true},
		{"bad dest", append([]byte{good[0], 0x20}, good[2:]...), true},
		{"bad crc", func() []byte {
			b := append([]byte(nil), good...)
			b[2] ^= 0xff
			return b
		}(), true},
		{"no sync", func() []byte {
			b := append([]byte(nil), good...)
			b[len(b)-1] = 0
			return b
		}(), true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, n, err := ParseFrame(tc.data)
			if n != 0 {
				t.Errorf("n = %d, want 0", n)
			}
			if (err != nil) != tc.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tc.wantErr)
			}
		})
	}
}

func TestScannerSplitInput(t *testing.T) {
	var stream []byte
	for i := 0; i < 3; i++ {
		stream, _ = AppendFrame(stream, NextSequence(MessageDest+uint8(i)-1), []byte{byte(i)})
	}

	var s Scanner
	var got []byte
	var pending []byte
	for _, b := range stream {
		pending = append(pending, b)
		n := s.Scan(pending, func(m Message) { got = append(got, m.Payload[0]) }, nil)
		pending = pending[n:]
	}
	if !bytes.Equal(got, []byte{0, 1, 2}) {
		t.Errorf("payloads = %v", got)
	}
	if len(pending) != 0 {
		t.Errorf("%d bytes left over", len(pending))
	}
}

func TestScannerResync(t *testing.T) {
	frame, _ := AppendFrame(nil, MessageDest, []byte{9})
	data := append([]byte{0x01, 0x02, MessageValueSync}, frame...)

	var s Scanner
	resyncs := 0
	var payloads [][]byte
	n := s.Scan(data, func(m Message) { payloads = append(payloads, m.Payload) }, func() { resyncs++ })

	if n != len(data) {
		t.Errorf("consumed %d of %d", n, len(data))
	}
	if resyncs != 1 {
		t.Errorf("resyncs = %d", resyncs)
	}
	if len(payloads) != 1 || payloads[0][0] != 9 {
		t.Errorf("payloads = %v", payloads)
	}
	if !s.Synchronized() {
		t.Error("scanner still lost")
	}
}
