//go:build !tinygo

package protocol

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/golang/glog"
)

var (
	ErrAckTimeout      = errors.New("ACK timeout")
	ErrResponseTimeout = errors.New("response timeout")
	ErrStopped         = errors.New("transport stopped")
	ErrNak             = errors.New("sequence rejected")
)

// ResponseHandler observes every response message as it arrives
type ResponseHandler func(cmdID uint16, data *[]byte) error

// HostTransport is the host side of the link: it sends one block per
// command, waits for the matching ACK and queues responses.
type HostTransport struct {
	port io.ReadWriteCloser

	// sequence tagged on the next outgoing block (0x10..0x1F)
	currentSeq atomic.Uint32

	scanner Scanner
	input   *FifoBuffer

	ackChan      chan Message
	responseChan chan Message

	responseHandler ResponseHandler

	writeMutex sync.Mutex
	readMutex  sync.Mutex

	stopOnce sync.Once
	stopChan chan struct{}
	doneChan chan struct{}
}

// NewHostTransport starts a reader on port
func NewHostTransport(port io.ReadWriteCloser) *HostTransport {
	t := &HostTransport{
		port:         port,
		input:        NewFifoBuffer(1024),
		ackChan:      make(chan Message, 1),
		responseChan: make(chan Message, 32),
		stopChan:     make(chan struct{}),
		doneChan:     make(chan struct{}),
	}
	t.currentSeq.Store(MessageDest)
	go t.readLoop()
	return t
}

// SendCommand sends a command and waits up to two seconds for its ACK
func (t *HostTransport) SendCommand(cmdID uint16, args func(output OutputBuffer)) error {
	return t.SendCommandWithTimeout(cmdID, args, 2*time.Second)
}

// SendCommandWithTimeout sends a command with a custom ACK timeout
func (t *HostTransport) SendCommandWithTimeout(cmdID uint16, args func(output OutputBuffer), timeout time.Duration) error {
	seq := uint8(t.currentSeq.Load())
	msg, err := t.buildCommandMessage(seq, cmdID, args)
	if err != nil {
		return fmt.Errorf("build command %d: %w", cmdID, err)
	}
	if glog.V(2) {
		glog.Infof("tx seq=%#02x % x", seq, msg)
	}
	for len(t.ackChan) > 0 {
		<-t.ackChan
	}
	if err := t.writeMessage(msg); err != nil {
		return fmt.Errorf("write command %d: %w", cmdID, err)
	}
	return t.waitForAck(seq, timeout)
}

func (t *HostTransport) buildCommandMessage(seq uint8, cmdID uint16, args func(output OutputBuffer)) ([]byte, error) {
	scratch := NewScratchOutput()
	EncodeVLQUint(scratch, uint32(cmdID))
	if args != nil {
		args(scratch)
	}
	if scratch.Overflowed() {
		return nil, ErrFrameTooLong
	}
	return AppendFrame(nil, seq, scratch.Result())
}

func (t *HostTransport) writeMessage(msg []byte) error {
	t.writeMutex.Lock()
	defer t.writeMutex.Unlock()

	n, err := t.port.Write(msg)
	if err != nil {
		return err
	}
	if n != len(msg) {
		return fmt.Errorf("incomplete write: %d/%d bytes", n, len(msg))
	}
	return nil
}

// waitForAck expects the MCU to answer with the sequence after seq. Any
// other sequence is a NAK; the MCU's expectation is adopted so a retry
// goes through.
func (t *HostTransport) waitForAck(seq uint8, timeout time.Duration) error {
	want := NextSequence(seq)
	select {
	case ack := <-t.ackChan:
		if ack.Sequence != want {
			t.currentSeq.Store(uint32(ack.Sequence))
			return fmt.Errorf("%w: sent %#02x, mcu expects %#02x", ErrNak, seq, ack.Sequence)
		}
		t.currentSeq.Store(uint32(want))
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("%w after %v", ErrAckTimeout, timeout)
	case <-t.stopChan:
		return ErrStopped
	}
}

// ReceiveResponse returns the next queued response
func (t *HostTransport) ReceiveResponse(timeout time.Duration) (*Message, error) {
	select {
	case resp := <-t.responseChan:
		return &resp, nil
	case <-time.After(timeout):
		return nil, fmt.Errorf("%w after %v", ErrResponseTimeout, timeout)
	case <-t.stopChan:
		return nil, ErrStopped
	}
}

// SetResponseHandler installs a callback run for each response
func (t *HostTransport) SetResponseHandler(handler ResponseHandler) {
	t.responseHandler = handler
}

func (t *HostTransport) readLoop() {
	defer close(t.doneChan)

	buf := make([]byte, 256)
	for {
		n, err := t.port.Read(buf)
		if n > 0 {
			t.input.Write(buf[:n])
			t.processMessages()
		}
		if err != nil {
			select {
			case <-t.stopChan:
				return
			default:
			}
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe) {
				return
			}
			glog.V(1).Infof("serial read: %v", err)
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func (t *HostTransport) processMessages() {
	t.readMutex.Lock()
	defer t.readMutex.Unlock()

	n := t.scanner.Scan(t.input.Data(), func(msg Message) {
		// the input ring is reused; keep a private copy
		msg.Payload = append([]byte(nil), msg.Payload...)
		t.dispatchMessage(msg)
	}, nil)
	t.input.Pop(n)
}

func (t *HostTransport) dispatchMessage(msg Message) {
	if msg.IsAck() {
		select {
		case t.ackChan <- msg:
		default:
			// keep the newest ACK
			select {
			case <-t.ackChan:
			default:
			}
			t.ackChan <- msg
		}
		return
	}

	if glog.V(2) {
		glog.Infof("rx seq=%#02x % x", msg.Sequence, msg.Payload)
	}
	if t.responseHandler != nil {
		payload := msg.Payload
		for len(payload) > 0 {
			before := len(payload)
			cmdID, err := DecodeVLQUint(&payload)
			if err != nil {
				break
			}
			if err := t.responseHandler(uint16(cmdID), &payload); err != nil || len(payload) == before {
				break
			}
		}
	}

	select {
	case t.responseChan <- msg:
	default:
		select {
		case <-t.responseChan:
		default:
		}
		t.responseChan <- msg
	}
}

// Close stops the reader and closes the port
func (t *HostTransport) Close() error {
	var err error
	t.stopOnce.Do(func() {
		close(t.stopChan)
		if t.port != nil {
			err = t.port.Close()
		}
		<-t.doneChan
	})
	return err
}

// Reset drops queued traffic and restarts the sequence at 0x10
func (t *HostTransport) Reset() {
	t.readMutex.Lock()
	defer t.readMutex.Unlock()

	t.scanner.Reset()
	t.currentSeq.Store(MessageDest)
	for len(t.ackChan) > 0 {
		<-t.ackChan
	}
	for len(t.responseChan) > 0 {
		<-t.responseChan
	}
	t.input.Reset()
}

// GetCurrentSequence returns the sequence of the next outgoing block
func (t *HostTransport) GetCurrentSequence() uint8 {
	return uint8(t.currentSeq.Load())
}
