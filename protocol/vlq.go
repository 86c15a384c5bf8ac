package protocol

import "errors"

var (
	ErrInvalidVLQ     = errors.New("invalid VLQ encoding")
	ErrBufferTooSmall = errors.New("buffer too small for VLQ")
)

// vlqShifts are the 7-bit groups above the final byte, most significant first
var vlqShifts = [...]uint{28, 21, 14, 7}

// AppendVLQ appends the encoding of v to dst. A group is emitted only when
// v falls outside the range the remaining groups can carry with the sign
// folded into bits 5-6 of the leading byte.
func AppendVLQ(dst []byte, v int32) []byte {
	for _, sh := range vlqShifts {
		lim := int32(1) << (sh - 2)
		if v < -lim || v >= 3*lim {
			dst = append(dst, byte(v>>sh)&0x7F|0x80)
		}
	}
	return append(dst, byte(v)&0x7F)
}

// EncodeVLQInt writes a signed integer
func EncodeVLQInt(output OutputBuffer, v int32) {
	var buf [5]byte
	output.Output(AppendVLQ(buf[:0], v))
}

// EncodeVLQUint writes an unsigned integer; values above MaxInt32 travel
// as their two's complement and decode back unchanged with DecodeVLQUint.
func EncodeVLQUint(output OutputBuffer, v uint32) {
	EncodeVLQInt(output, int32(v))
}

// DecodeVLQInt decodes one value and advances data past it
func DecodeVLQInt(data *[]byte) (int32, error) {
	buf := *data
	if len(buf) == 0 {
		return 0, ErrBufferTooSmall
	}
	c := uint32(buf[0])
	v := c & 0x7F
	if c&0x60 == 0x60 {
		v |= ^uint32(0x1F)
	}
	i := 1
	for c&0x80 != 0 {
		if i >= len(buf) {
			return 0, ErrBufferTooSmall
		}
		if i >= 5 {
			return 0, ErrInvalidVLQ
		}
		c = uint32(buf[i])
		v = v<<7 | c&0x7F
		i++
	}
	*data = buf[i:]
	return int32(v), nil
}

// DecodeVLQUint decodes one unsigned value
func DecodeVLQUint(data *[]byte) (uint32, error) {
	v, err := DecodeVLQInt(data)
	return uint32(v), err
}

// DecodeVLQUints decodes n consecutive unsigned values
func DecodeVLQUints(data *[]byte, n int) ([]uint32, error) {
	out := make([]uint32, n)
	for i := range out {
		v, err := DecodeVLQUint(data)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// EncodeVLQ returns the encoding of v
func EncodeVLQ(v int32) []byte {
	return AppendVLQ(nil, v)
}

// DecodeVLQ decodes from data without modifying the caller's slice and
// reports how many bytes were consumed.
func DecodeVLQ(data []byte) (int32, int, error) {
	n := len(data)
	v, err := DecodeVLQInt(&data)
	if err != nil {
		return 0, 0, err
	}
	return v, n - len(data), nil
}

// EncodeVLQBytes writes a length-prefixed byte string
func EncodeVLQBytes(output OutputBuffer, data []byte) {
	EncodeVLQUint(output, uint32(len(data)))
	output.Output(data)
}

// DecodeVLQBytes decodes a length-prefixed byte string. The result aliases data.
func DecodeVLQBytes(data *[]byte) ([]byte, error) {
	n, err := DecodeVLQUint(data)
	if err != nil {
		return nil, err
	}
	if uint32(len(*data)) < n {
		return nil, ErrBufferTooSmall
	}
	out := (*data)[:n]
	*data = (*data)[n:]
	return out, nil
}

// EncodeVLQString writes a length-prefixed string
func EncodeVLQString(output OutputBuffer, s string) {
	EncodeVLQBytes(output, []byte(s))
}

// DecodeVLQString decodes a length-prefixed string
func DecodeVLQString(data *[]byte) (string, error) {
	b, err := DecodeVLQBytes(data)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
