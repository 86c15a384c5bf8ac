// Package protocol implements the framed serial link between the D1 loader
// firmware and the host tool.
//
// A block on the wire is
//
//	len | 0x10|seq | payload... | crc_hi | crc_lo | 0x7E
//
// where payload is a sequence of VLQ-encoded messages, each starting with
// its dictionary ID. The receiver answers every block with an empty block
// carrying the next sequence it expects (ACK, or NAK on mismatch).
package protocol

// Version of the link protocol reported in the dictionary
const Version = "syterkit-link-1"

const (
	MessageHeaderSize  = 2
	MessageTrailerSize = 3
	MessageLengthMin   = MessageHeaderSize + MessageTrailerSize
	MessageLengthMax   = 64
	MessagePayloadMax  = MessageLengthMax - MessageLengthMin
	MessagePositionLen = 0
	MessagePositionSeq = 1
	MessageTrailerCRC  = 3
	MessageTrailerSync = 1
	MessageValueSync   = 0x7E
	MessageDest        = 0x10
	MessageSeqMask     = 0x0F

	// OutputMax bounds a ScratchOutput; a flush may carry several blocks
	OutputMax = 512
)

// Message is one parsed block. Payload aliases the receive buffer unless
// the receiver copied it.
type Message struct {
	Length   uint8
	Sequence uint8
	Payload  []byte
	CRC      uint16
}

// IsAck reports whether the block carries no messages
func (m *Message) IsAck() bool {
	return len(m.Payload) == 0
}

// NextSequence returns the sequence that follows seq, wrapping in 0x10..0x1F
func NextSequence(seq uint8) uint8 {
	return ((seq + 1) & MessageSeqMask) | MessageDest
}
