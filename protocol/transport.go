package protocol

import "sync/atomic"

// CommandHandler handles one decoded message; it must consume its
// arguments from data.
type CommandHandler func(cmdID uint16, data *[]byte) error

// Transport is the firmware side of the link: it validates incoming
// blocks, dispatches their messages and answers with ACK/NAK.
type Transport struct {
	scanner Scanner
	// nextSequence is the sequence expected from the host; it also tags
	// every outgoing block
	nextSequence  atomic.Uint32
	output        OutputBuffer
	handler       CommandHandler
	lastErr       error
	resetCallback func()
	flushCallback func()
}

// NewTransport creates a transport writing to output
func NewTransport(output OutputBuffer, handler CommandHandler) *Transport {
	t := &Transport{
		output:  output,
		handler: handler,
	}
	t.nextSequence.Store(MessageDest)
	return t
}

// Receive consumes complete blocks from input
func (t *Transport) Receive(input InputBuffer) {
	n := t.scanner.Scan(input.Data(), t.handleBlock, t.encodeAckNak)
	if n > 0 {
		input.Pop(n)
	}
}

func (t *Transport) handleBlock(msg Message) {
	expected := uint8(t.nextSequence.Load())
	if msg.Sequence == MessageDest && expected != MessageDest {
		// host restarted its sequence
		t.nextSequence.Store(MessageDest)
		expected = MessageDest
		if t.resetCallback != nil {
			t.resetCallback()
		}
	}
	if msg.Sequence == expected {
		t.nextSequence.Store(uint32(NextSequence(expected)))
		t.lastErr = t.parseFrame(msg.Payload)
	}
	// a stale sequence gets the expected one back, which the host reads as NAK
	t.encodeAckNak()
}

// parseFrame dispatches each message of a block in order
func (t *Transport) parseFrame(frame []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			t.scanner.Desync()
			err = ErrBadFrame
		}
	}()

	for len(frame) > 0 {
		cmdID, err := DecodeVLQUint(&frame)
		if err != nil {
			t.scanner.Desync()
			return err
		}
		if t.handler == nil {
			continue
		}
		if err := t.handler(uint16(cmdID), &frame); err != nil {
			return err
		}
	}
	return nil
}

// LastError returns the error from the most recent dispatched block
func (t *Transport) LastError() error {
	return t.lastErr
}

func (t *Transport) encodeAckNak() {
	var buf [MessageLengthMin]byte
	ack, _ := AppendFrame(buf[:0], uint8(t.nextSequence.Load()), nil)
	t.output.Output(ack)
	if t.flushCallback != nil {
		t.flushCallback()
	}
}

// EncodeFrame writes one block whose payload is produced by frameData.
// Responses reuse the current sequence; it only advances on receive.
func (t *Transport) EncodeFrame(frameData func(output OutputBuffer)) {
	start := t.output.CurPosition()
	t.output.Output([]byte{0, uint8(t.nextSequence.Load())})
	frameData(t.output)
	n := len(t.output.DataSince(start)) + MessageTrailerSize
	t.output.Update(start, uint8(n))
	crc := CRC16(t.output.DataSince(start))
	t.output.Output([]byte{byte(crc >> 8), byte(crc), MessageValueSync})
}

// SendCommand encodes a message with ID cmdID and arguments from args
func (t *Transport) SendCommand(cmdID uint16, args func(output OutputBuffer)) {
	t.EncodeFrame(func(output OutputBuffer) {
		EncodeVLQUint(output, uint32(cmdID))
		if args != nil {
			args(output)
		}
	})
}

// Reset returns to the power-on state
func (t *Transport) Reset() {
	t.scanner.Reset()
	t.nextSequence.Store(MessageDest)
	if t.resetCallback != nil {
		t.resetCallback()
	}
}

// SetResetCallback registers a hook run when the host restarts its sequence
func (t *Transport) SetResetCallback(callback func()) {
	t.resetCallback = callback
}

// SetFlushCallback registers a hook run after each ACK is queued
func (t *Transport) SetFlushCallback(callback func()) {
	t.flushCallback = callback
}
