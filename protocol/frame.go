package protocol

import (
	"bytes"
	"errors"
)

var (
	ErrBadFrame     = errors.New("malformed frame")
	ErrFrameTooLong = errors.New("frame exceeds maximum length")
)

// AppendFrame wraps payload in a block with sequence seq and appends it to dst.
func AppendFrame(dst []byte, seq uint8, payload []byte) ([]byte, error) {
	n := len(payload) + MessageLengthMin
	if n > MessageLengthMax {
		return dst, ErrFrameTooLong
	}
	start := len(dst)
	dst = append(dst, byte(n), seq)
	dst = append(dst, payload...)
	crc := CRC16(dst[start:])
	return append(dst, byte(crc>>8), byte(crc), MessageValueSync), nil
}

// ParseFrame decodes the block at the start of data. It returns n == 0 with
// a nil error when more bytes are needed, and ErrBadFrame when the bytes at
// the head of data cannot start a valid block.
func ParseFrame(data []byte) (msg Message, n int, err error) {
	if len(data) < MessageLengthMin {
		return msg, 0, nil
	}
	n = int(data[MessagePositionLen])
	if n < MessageLengthMin || n > MessageLengthMax {
		return msg, 0, ErrBadFrame
	}
	seq := data[MessagePositionSeq]
	if seq&^MessageSeqMask != MessageDest {
		return msg, 0, ErrBadFrame
	}
	if len(data) < n {
		return msg, 0, nil
	}
	if data[n-MessageTrailerSync] != MessageValueSync {
		return msg, 0, ErrBadFrame
	}
	crc := uint16(data[n-MessageTrailerCRC])<<8 | uint16(data[n-MessageTrailerCRC+1])
	if CRC16(data[:n-MessageTrailerSize]) != crc {
		return msg, 0, ErrBadFrame
	}
	return Message{
		Length:   uint8(n),
		Sequence: seq,
		Payload:  data[MessageHeaderSize : n-MessageTrailerSize],
		CRC:      crc,
	}, n, nil
}

// Scanner splits a byte stream into blocks. After a corrupt block it
// discards input up to the next sync byte.
type Scanner struct {
	lost bool
}

// Synchronized reports whether the scanner is aligned on block boundaries
func (s *Scanner) Synchronized() bool {
	return !s.lost
}

// Desync forces a search for the next sync byte
func (s *Scanner) Desync() {
	s.lost = true
}

// Reset marks the stream as aligned
func (s *Scanner) Reset() {
	s.lost = false
}

// Scan calls fn for every complete block in data and returns the number of
// bytes consumed. resync, if set, runs each time alignment is regained.
func (s *Scanner) Scan(data []byte, fn func(Message), resync func()) int {
	total := len(data)
	for len(data) > 0 {
		if s.lost {
			i := bytes.IndexByte(data, MessageValueSync)
			if i < 0 {
				data = nil
				break
			}
			data = data[i+1:]
			s.lost = false
			if resync != nil {
				resync()
			}
			continue
		}
		if data[0] == MessageValueSync {
			data = data[1:]
			continue
		}
		msg, n, err := ParseFrame(data)
		if err != nil {
			s.lost = true
			continue
		}
		if n == 0 {
			break
		}
		data = data[n:]
		fn(msg)
	}
	return total - len(data)
}
