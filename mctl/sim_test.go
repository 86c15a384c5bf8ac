package mctl

import (
	"github.com/YuzukiHD/SyterKit/core"
)

// simSoC models the controller registers plus a DRAM part behind the
// address decoder. Each rank has cols column bits (byte addressed), rows
// row bits and 8 banks; address bits the controller drives beyond those
// are ignored by the part, which is what makes scan accesses alias.
type simSoC struct {
	*core.MemoryBus

	rows      uint32
	cols      uint32
	ranks     int
	cells     map[uint64]uint32
	pgsr0     uint32 // extra PGSR0 bits
	pwrctl    uint32
	pirWrites []uint32
	mapWrites []uint32
}

func newSimSoC() *simSoC {
	s := &simSoC{
		MemoryBus: core.NewMemoryBus(),
		rows:      14,
		cols:      12,
		ranks:     1,
		cells:     make(map[uint64]uint32),
	}
	s.OnRead(pllDDRCtrl, func(v uint32) uint32 {
		if v&pllEnable != 0 {
			return v | pllLock
		}
		return v
	})
	// the gate error flags a rank that never answered
	s.OnRead(phyBase+phyPGSR0, func(uint32) uint32 {
		v := statusDone | s.pgsr0
		if s.ranks < 2 {
			v |= pgsr0Gate
		}
		return v
	})
	s.OnWrite(phyBase+phyPWRCTL, func(v uint32) uint32 {
		s.pwrctl = v
		return v
	})
	s.OnRead(phyBase+phySTATR, func(uint32) uint32 {
		if s.pwrctl&1 != 0 {
			return 3
		}
		return 1
	})
	s.OnWrite(phyBase+phyPIR, func(v uint32) uint32 {
		s.pirWrites = append(s.pirWrites, v)
		return v
	})
	s.OnWrite(acMap1, func(v uint32) uint32 {
		s.mapWrites = append(s.mapWrites, v)
		return v
	})
	s.setLanes(laneTrained, laneTrained)
	return s
}

func (s *simSoC) setLanes(dx0, dx1 uint32) {
	s.MemoryBus.Write32(phyBase+phyDXGSR0, dx0<<24)
	s.MemoryBus.Write32(phyBase+laneStride+phyDXGSR0, dx1<<24)
}

// geometry decodes column, row and bank address widths from a work mode
func geometry(mode uint32) (cc, rc, bc uint32) {
	return (mode>>8)&0xf + 3, (mode>>4)&0xf + 1, 2 + (mode>>2)&0x1
}

// cell maps a bus address to a cell of the part. With two ranks enabled
// in WORK_MODE0 the rank select sits just above rank 0's span; rank 1
// decodes with WORK_MODE1 unless that reports identical ranks.
func (s *simSoC) cell(addr uint32) uint64 {
	mode := s.Peek(workMode0)
	off := addr - RAMBase
	var rank uint64
	if mode&0x3 != 0 {
		cc, rc, bc := geometry(mode)
		if span := uint64(1) << (cc + rc + bc); uint64(off) >= span {
			off -= uint32(span)
			if s.ranks > 1 {
				rank = 1
			}
			if high := s.Peek(workMode1); high&0x3 != 0 {
				mode = high
			}
		}
	}

	cc, rc, _ := geometry(mode)
	col := off & (1<<cc - 1)
	bank := (off >> cc) & 0x3
	row := (off >> (cc + 2)) & (1<<rc - 1)
	if mode&0x4 != 0 {
		bank |= ((off >> (cc + 2 + rc)) & 0x1) << 2
	}
	col &= 1<<s.cols - 1
	row &= 1<<s.rows - 1
	return rank<<40 | uint64(bank)<<(s.rows+s.cols) | uint64(row)<<s.cols | uint64(col&^3)
}

func (s *simSoC) Read32(addr uint32) uint32 {
	if addr >= RAMBase {
		return s.cells[s.cell(addr)]
	}
	return s.MemoryBus.Read32(addr)
}

func (s *simSoC) Write32(addr uint32, val uint32) {
	if addr >= RAMBase {
		s.cells[s.cell(addr)] = val
		return
	}
	s.MemoryBus.Write32(addr, val)
}

func noDelay(uint32) {}

func newSimController(s *simSoC, opts Options) *Controller {
	if opts.Delay == nil {
		opts.Delay = noDelay
	}
	return NewController(s, opts)
}
