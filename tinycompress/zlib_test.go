package tinycompress

import (
	"bytes"
	"compress/zlib"
	"errors"
	"io"
	"testing"
)

func TestWriterReadableByZlib(t *testing.T) {
	testCases := []struct {
		name string
		size int
	}{
		{"empty", 0},
		{"small", 37},
		{"dictionary", 3000},
		{"multi block", 70000},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			input := make([]byte, tc.size)
			for i := range input {
				input[i] = byte(i * 7)
			}

			var buf bytes.Buffer
			w := NewWriter(&buf)
			if _, err := w.Write(input); err != nil {
				t.Fatal(err)
			}
			if err := w.Close(); err != nil {
				t.Fatal(err)
			}

			r, err := zlib.NewReader(&buf)
			if err != nil {
				t.Fatalf("zlib.NewReader: %v", err)
			}
			got, err := io.ReadAll(r)
			if err != nil {
				t.Fatalf("inflate: %v", err)
			}
			if !bytes.Equal(got, input) {
				t.Errorf("round trip mismatch: %d bytes vs %d", len(got), len(input))
			}
		})
	}
}

func TestDecode(t *testing.T) {
	input := bytes.Repeat([]byte(`{"commands":{}}`), 5000)
	got, err := Decode(Compress(input))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(got, input) {
		t.Error("Decode mismatch")
	}
}

func TestDecodeErrors(t *testing.T) {
	good := Compress([]byte("hello"))

	corrupt := append([]byte(nil), good...)
	corrupt[len(corrupt)-1] ^= 1
	if _, err := Decode(corrupt); !errors.Is(err, ErrChecksum) {
		t.Errorf("corrupt checksum: %v", err)
	}

	if _, err := Decode(append([]byte{0x00, 0x00}, good[2:]...)); !errors.Is(err, ErrHeader) {
		t.Errorf("bad header: %v", err)
	}

	var real bytes.Buffer
	zw := zlib.NewWriter(&real)
	zw.Write(bytes.Repeat([]byte("syterkit "), 200))
	zw.Close()
	if _, err := Decode(real.Bytes()); !errors.Is(err, ErrBlock) {
		t.Errorf("huffman block should be rejected, got %v", err)
	}
}

func TestWriteAfterClose(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)
	w.Close()
	if _, err := w.Write([]byte{1}); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
}
