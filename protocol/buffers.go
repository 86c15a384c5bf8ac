package protocol

// InputBuffer is the receive side of a transport
type InputBuffer interface {
	// Data returns the buffered bytes
	Data() []byte

	// Available returns the number of buffered bytes
	Available() int

	// Pop discards n bytes from the front
	Pop(n int)
}

// OutputBuffer collects outgoing bytes
type OutputBuffer interface {
	// Output appends data
	Output(data []byte)

	// CurPosition returns the current write position
	CurPosition() int

	// Update overwrites the byte at pos
	Update(pos int, val byte)

	// DataSince returns everything written after pos
	DataSince(pos int) []byte
}

// SliceInputBuffer implements InputBuffer over a byte slice
type SliceInputBuffer struct {
	data []byte
}

// NewSliceInputBuffer wraps data
func NewSliceInputBuffer(data []byte) *SliceInputBuffer {
	return &SliceInputBuffer{data: data}
}

func (s *SliceInputBuffer) Data() []byte   { return s.data }
func (s *SliceInputBuffer) Available() int { return len(s.data) }

func (s *SliceInputBuffer) Pop(n int) {
	s.data = s.data[min(n, len(s.data)):]
}

// ScratchOutput is a fixed-capacity OutputBuffer. Writes past the end are
// truncated and latch Overflowed.
type ScratchOutput struct {
	buf      [OutputMax]byte
	pos      int
	overflow bool
}

// NewScratchOutput returns an empty buffer
func NewScratchOutput() *ScratchOutput {
	return &ScratchOutput{}
}

func (s *ScratchOutput) Output(data []byte) {
	n := copy(s.buf[s.pos:], data)
	s.pos += n
	if n < len(data) {
		s.overflow = true
	}
}

func (s *ScratchOutput) CurPosition() int {
	return s.pos
}

func (s *ScratchOutput) Update(pos int, val byte) {
	if pos >= 0 && pos < s.pos {
		s.buf[pos] = val
	}
}

func (s *ScratchOutput) DataSince(pos int) []byte {
	if pos < 0 || pos > s.pos {
		return nil
	}
	return s.buf[pos:s.pos]
}

// Result returns everything written so far
func (s *ScratchOutput) Result() []byte {
	return s.buf[:s.pos]
}

// Overflowed reports whether a write was truncated since the last Reset
func (s *ScratchOutput) Overflowed() bool {
	return s.overflow
}

// Reset empties the buffer
func (s *ScratchOutput) Reset() {
	s.pos = 0
	s.overflow = false
}

// FifoBuffer is a ring buffer between the UART and the transport. One slot
// stays empty to tell full from empty.
type FifoBuffer struct {
	buf     []byte
	head    int // next read
	tail    int // next write
	scratch []byte
}

// NewFifoBuffer creates a ring holding capacity-1 bytes
func NewFifoBuffer(capacity int) *FifoBuffer {
	return &FifoBuffer{
		buf:     make([]byte, capacity),
		scratch: make([]byte, 0, capacity),
	}
}

func (f *FifoBuffer) next(i int) int {
	i++
	if i == len(f.buf) {
		return 0
	}
	return i
}

// Write stores as much of data as fits and returns the count
func (f *FifoBuffer) Write(data []byte) int {
	n := 0
	for _, b := range data {
		nt := f.next(f.tail)
		if nt == f.head {
			break
		}
		f.buf[f.tail] = b
		f.tail = nt
		n++
	}
	return n
}

// WriteByte stores one byte; it reports false when the ring is full
func (f *FifoBuffer) WriteByte(b byte) bool {
	return f.Write([]byte{b}) == 1
}

// Read moves up to len(data) bytes out of the ring
func (f *FifoBuffer) Read(data []byte) int {
	n := 0
	for n < len(data) && f.head != f.tail {
		data[n] = f.buf[f.head]
		f.head = f.next(f.head)
		n++
	}
	return n
}

// Available returns the number of buffered bytes
func (f *FifoBuffer) Available() int {
	if f.tail >= f.head {
		return f.tail - f.head
	}
	return len(f.buf) - f.head + f.tail
}

// Free returns the remaining capacity
func (f *FifoBuffer) Free() int {
	return len(f.buf) - f.Available() - 1
}

// Data returns the buffered bytes as one slice. A wrapped ring is
// linearised into a reusable scratch slice, valid until the next call.
func (f *FifoBuffer) Data() []byte {
	if f.head <= f.tail {
		return f.buf[f.head:f.tail]
	}
	f.scratch = append(f.scratch[:0], f.buf[f.head:]...)
	f.scratch = append(f.scratch, f.buf[:f.tail]...)
	return f.scratch
}

// Pop discards up to n bytes
func (f *FifoBuffer) Pop(n int) {
	n = min(n, f.Available())
	f.head = (f.head + n) % len(f.buf)
}

// IsEmpty reports whether nothing is buffered
func (f *FifoBuffer) IsEmpty() bool {
	return f.head == f.tail
}

// Reset drops all buffered bytes
func (f *FifoBuffer) Reset() {
	f.head = 0
	f.tail = 0
}
