package core

import "sync"

// MemoryBus is a sparse word-addressed bus backed by a map. Unwritten
// words read as zero. Hooks let callers model status registers.
type MemoryBus struct {
	mu     sync.Mutex
	words  map[uint32]uint32
	reads  map[uint32]func(stored uint32) uint32
	writes map[uint32]func(val uint32) uint32
}

// NewMemoryBus creates an empty bus
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		words:  make(map[uint32]uint32),
		reads:  make(map[uint32]func(uint32) uint32),
		writes: make(map[uint32]func(uint32) uint32),
	}
}

// OnRead installs a hook that computes the value returned for addr.
func (m *MemoryBus) OnRead(addr uint32, fn func(stored uint32) uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reads[addr&^3] = fn
}

// OnWrite installs a hook that transforms values stored at addr.
func (m *MemoryBus) OnWrite(addr uint32, fn func(val uint32) uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes[addr&^3] = fn
}

func (m *MemoryBus) Read32(addr uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	addr &^= 3
	v := m.words[addr]
	if fn, ok := m.reads[addr]; ok {
		v = fn(v)
	}
	return v
}

func (m *MemoryBus) Write32(addr uint32, val uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	addr &^= 3
	if fn, ok := m.writes[addr]; ok {
		val = fn(val)
	}
	m.words[addr] = val
}

// Peek returns the stored word without running read hooks
func (m *MemoryBus) Peek(addr uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.words[addr&^3]
}
