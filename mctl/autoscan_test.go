package mctl

import (
	"fmt"
	"testing"
)

func TestSizeScanRows(t *testing.T) {
	for rows := uint32(11); rows <= 16; rows++ {
		t.Run(fmt.Sprintf("rows=%d", rows), func(t *testing.T) {
			s := newSimSoC()
			s.rows = rows
			p := LicheeRVParams()

			res, err := newSimController(s, Options{SelfTestWords: 64}).InitDRAM(p)
			if err != nil {
				t.Fatalf("InitDRAM: %v", err)
			}
			// 4KB page, 8 banks: 2^(12+3+rows) bytes
			if want := uint32(1) << (rows - 5); res.SizeMB != want {
				t.Errorf("size = %d MB, want %d", res.SizeMB, want)
			}
			if want := rows<<4 | 1<<12 | 4; p.Para1 != want {
				t.Errorf("para1 = %#x, want %#x", p.Para1, want)
			}
			if got := (s.Peek(workMode0) >> 4) & 0xf; got != rows-1 {
				t.Errorf("WORK_MODE0 row field = %d, want %d", got, rows-1)
			}
			if res.SelfTest != SelfTestPassed {
				t.Errorf("self-test %v: %v", res.SelfTest, res.SelfTestErr)
			}
		})
	}
}

func TestSizeScanPage(t *testing.T) {
	tests := []struct {
		cols   uint32
		pageKB uint32
		sizeMB uint32
	}{
		{9, 0, 64}, // 512B page, left as 0 in para1
		{10, 1, 128},
		{11, 2, 256},
		{12, 4, 512},
		{13, 8, 1024},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("cols=%d", tt.cols), func(t *testing.T) {
			s := newSimSoC()
			s.cols = tt.cols
			p := LicheeRVParams()

			res, err := newSimController(s, Options{SelfTestWords: 64}).InitDRAM(p)
			if err != nil {
				t.Fatalf("InitDRAM: %v", err)
			}
			if want := 14<<4 | 1<<12 | tt.pageKB; p.Para1 != want {
				t.Errorf("para1 = %#x, want %#x", p.Para1, want)
			}
			if res.SizeMB != tt.sizeMB {
				t.Errorf("size = %d MB, want %d", res.SizeMB, tt.sizeMB)
			}
			if got := (s.Peek(workMode0) >> 8) & 0xf; got != tt.cols-3 {
				t.Errorf("WORK_MODE0 column field = %d, want %d", got, tt.cols-3)
			}
		})
	}
}

func TestSizeScanDualRank(t *testing.T) {
	s := newSimSoC()
	s.ranks = 2
	p := LicheeRVParams()

	res, err := newSimController(s, Options{SelfTestWords: 64}).InitDRAM(p)
	if err != nil {
		t.Fatalf("InitDRAM: %v", err)
	}
	if p.Para2&0xffff != 0x1000 {
		t.Errorf("para2 = %#x, want dual rank full DQ", p.Para2)
	}
	// rank 1 geometry lands in the upper half of para1
	if p.Para1 != 0x10e410e4 {
		t.Errorf("para1 = %#x, want 0x10e410e4", p.Para1)
	}
	if res.SizeMB != 1024 {
		t.Errorf("size = %d MB, want 1024", res.SizeMB)
	}
	if got := s.Peek(workMode0); got != 0x004319d5 {
		t.Errorf("WORK_MODE0 = %#08x, want 0x004319d5", got)
	}
	// rank count 0 in WORK_MODE1 means rank 1 mirrors rank 0
	if got := s.Peek(workMode1); got&0x3 != 0 {
		t.Errorf("WORK_MODE1 = %#08x, want identical ranks", got)
	}
	if got := s.Peek(rank1Mode0) & 0xffc; got != scanRowMode {
		t.Errorf("rank 1 controller mode = %#x, want row scan mode", got)
	}
	if s.Peek(phyBase+phyODTMAP) != 0x303 {
		t.Errorf("ODTMAP = %#x", s.Peek(phyBase+phyODTMAP))
	}

	if res.SelfTest != SelfTestPassed {
		t.Fatalf("self-test %v: %v", res.SelfTest, res.SelfTestErr)
	}
	upper := 0
	for k := range s.cells {
		if k>>40 == 1 {
			upper++
		}
	}
	if upper == 0 {
		t.Error("self-test never reached rank 1")
	}
}
