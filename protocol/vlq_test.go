package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestVLQEncodeDecodeInt(t *testing.T) {
	testCases := []int32{
		0, 1, -1, 95, 96, -32, -33,
		127, -127, 128, -128, 1000, -1000,
		65535, -65535, 1000000, -1000000,
		1 << 30, -(1 << 30),
	}

	for _, expected := range testCases {
		output := NewScratchOutput()
		EncodeVLQInt(output, expected)
		encoded := output.Result()

		data := encoded
		decoded, err := DecodeVLQInt(&data)
		if err != nil {
			t.Errorf("decode %d: %v", expected, err)
			continue
		}
		if decoded != expected {
			t.Errorf("VLQ mismatch: expected %d, got %d (encoded as % x)", expected, decoded, encoded)
		}
		if len(data) != 0 {
			t.Errorf("decode %d left %d bytes", expected, len(data))
		}
	}
}

func TestVLQKnownEncodings(t *testing.T) {
	testCases := []struct {
		v    int32
		want []byte
	}{
		{0, []byte{0x00}},
		{95, []byte{0x5f}},
		{96, []byte{0x80, 0x60}},
		{-32, []byte{0x60}},
		{-33, []byte{0xff, 0x5f}},
		{1000, []byte{0x87, 0x68}},
		{1 << 30, []byte{0x84, 0x80, 0x80, 0x80, 0x00}},
	}

	for _, tc := range testCases {
		if got := EncodeVLQ(tc.v); !bytes.Equal(got, tc.want) {
			t.Errorf("EncodeVLQ(%d) = % x, want % x", tc.v, got, tc.want)
		}
	}
}

func TestVLQUintFullRange(t *testing.T) {
	// addresses above 2GiB travel as negative int32
	for _, v := range []uint32{0x40000000, 0x80000000, 0xfedcba98, 0xffffffff} {
		output := NewScratchOutput()
		EncodeVLQUint(output, v)
		data := output.Result()
		got, err := DecodeVLQUint(&data)
		if err != nil || got != v {
			t.Errorf("uint round trip %#x: got %#x err %v", v, got, err)
		}
	}
}

func TestVLQTruncated(t *testing.T) {
	data := []byte{0x87}
	if _, err := DecodeVLQInt(&data); !errors.Is(err, ErrBufferTooSmall) {
		t.Errorf("expected ErrBufferTooSmall, got %v", err)
	}
	if len(data) != 1 {
		t.Errorf("failed decode must not consume input, %d bytes left", len(data))
	}

	data = []byte{0x81, 0x81, 0x81, 0x81, 0x81, 0x01}
	if _, err := DecodeVLQInt(&data); !errors.Is(err, ErrInvalidVLQ) {
		t.Errorf("expected ErrInvalidVLQ for 6-byte value, got %v", err)
	}
}

func TestVLQBytes(t *testing.T) {
	testCases := [][]byte{
		{},
		{0x01},
		{0x7e, 0x7e, 0x00},
		bytes.Repeat([]byte{0xaa}, 32),
	}

	for _, expected := range testCases {
		output := NewScratchOutput()
		EncodeVLQBytes(output, expected)
		EncodeVLQUint(output, 7)

		data := output.Result()
		decoded, err := DecodeVLQBytes(&data)
		if err != nil {
			t.Fatalf("decode bytes: %v", err)
		}
		if !bytes.Equal(decoded, expected) {
			t.Errorf("bytes mismatch: % x != % x", decoded, expected)
		}
		tail, err := DecodeVLQUint(&data)
		if err != nil || tail != 7 {
			t.Errorf("trailing value: got %d err %v", tail, err)
		}
	}
}

func TestVLQString(t *testing.T) {
	output := NewScratchOutput()
	EncodeVLQString(output, "dram_init")
	data := output.Result()
	s, err := DecodeVLQString(&data)
	if err != nil || s != "dram_init" {
		t.Errorf("got %q err %v", s, err)
	}
}

func TestDecodeVLQUints(t *testing.T) {
	output := NewScratchOutput()
	for _, v := range []uint32{3, 0x41800000, 1} {
		EncodeVLQUint(output, v)
	}
	data := output.Result()
	vals, err := DecodeVLQUints(&data, 3)
	if err != nil {
		t.Fatalf("DecodeVLQUints: %v", err)
	}
	if vals[0] != 3 || vals[1] != 0x41800000 || vals[2] != 1 {
		t.Errorf("got %#x", vals)
	}
	if _, err := DecodeVLQUints(&data, 1); err == nil {
		t.Error("expected error decoding past end")
	}
}
