// Package tinycompress produces and reads zlib streams made of stored
// (uncompressed) DEFLATE blocks. It needs no tables or window, so the
// firmware can wrap its dictionary without compress/flate.
package tinycompress

import (
	"errors"
	"hash/adler32"
	"io"
)

const (
	zlibCMF      = 0x78
	zlibFLG      = 0x9C
	maxStoredLen = 0xFFFF
)

var (
	ErrHeader   = errors.New("tinycompress: bad zlib header")
	ErrBlock    = errors.New("tinycompress: unsupported or corrupt block")
	ErrChecksum = errors.New("tinycompress: adler32 mismatch")
	ErrClosed   = errors.New("tinycompress: write after close")
)

// Writer buffers everything written and emits the zlib stream on Close.
type Writer struct {
	output io.Writer
	buf    []byte
	closed bool
}

// NewWriter returns a Writer producing to w. The buffer is sized up front
// so dictionary generation does not reallocate on the target.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		output: w,
		buf:    make([]byte, 0, 4096),
	}
}

// Write implements io.Writer
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}
	w.buf = append(w.buf, p...)
	return len(p), nil
}

// Close writes header, stored blocks of up to 64KiB and the checksum
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	out := make([]byte, 0, len(w.buf)+len(w.buf)/maxStoredLen*5+11)
	out = append(out, zlibCMF, zlibFLG)
	rest := w.buf
	for {
		n := min(len(rest), maxStoredLen)
		final := byte(0)
		if n == len(rest) {
			final = 1
		}
		out = append(out, final, byte(n), byte(n>>8), ^byte(n), ^byte(n>>8))
		out = append(out, rest[:n]...)
		rest = rest[n:]
		if final == 1 {
			break
		}
	}
	sum := adler32.Checksum(w.buf)
	out = append(out, byte(sum>>24), byte(sum>>16), byte(sum>>8), byte(sum))
	_, err := w.output.Write(out)
	return err
}

// Compress wraps input in a single zlib stream
func Compress(input []byte) []byte {
	var sink sliceWriter
	w := NewWriter(&sink)
	w.Write(input)
	w.Close()
	return sink
}

type sliceWriter []byte

func (s *sliceWriter) Write(p []byte) (int, error) {
	*s = append(*s, p...)
	return len(p), nil
}

// Decode unpacks a zlib stream of stored blocks, as produced by Writer,
// and verifies its checksum.
func Decode(data []byte) ([]byte, error) {
	if len(data) < 2+5+4 || data[0]&0x0F != 8 || (uint16(data[0])<<8|uint16(data[1]))%31 != 0 {
		return nil, ErrHeader
	}
	pos := 2
	var out []byte
	for {
		if pos+5 > len(data)-4 {
			return nil, ErrBlock
		}
		hdr := data[pos]
		if hdr>>1&0x03 != 0 {
			return nil, ErrBlock
		}
		n := int(data[pos+1]) | int(data[pos+2])<<8
		nn := int(data[pos+3]) | int(data[pos+4])<<8
		if n != ^nn&0xFFFF {
			return nil, ErrBlock
		}
		pos += 5
		if pos+n > len(data)-4 {
			return nil, ErrBlock
		}
		out = append(out, data[pos:pos+n]...)
		pos += n
		if hdr&0x01 != 0 {
			break
		}
	}
	if pos+4 != len(data) {
		return nil, ErrBlock
	}
	want := uint32(data[pos])<<24 | uint32(data[pos+1])<<16 | uint32(data[pos+2])<<8 | uint32(data[pos+3])
	if adler32.Checksum(out) != want {
		return nil, ErrChecksum
	}
	return out, nil
}
