// Package mctl brings up the DRAM controller and PHY of the Allwinner D1.
//
// The sequence follows the vendor boot ROM: PLL and reset setup, Vref/ZQ
// calibration, controller work mode, address remapping, timing, PHY
// training. When the memory topology is unknown the controller is
// programmed several times while address lines are tested to discover
// rank count, DQ width, bank count, row width and page size.
package mctl

import (
	"errors"
	"fmt"
	"strings"
)

// DramType is the SDRAM generation wired to the controller
type DramType uint32

const (
	DDR2   DramType = 2
	DDR3   DramType = 3
	LPDDR2 DramType = 6
	LPDDR3 DramType = 7
)

// Valid reports whether the controller knows how to drive t
func (t DramType) Valid() bool {
	switch t {
	case DDR2, DDR3, LPDDR2, LPDDR3:
		return true
	}
	return false
}

func (t DramType) String() string {
	switch t {
	case DDR2:
		return "DDR2"
	case DDR3:
		return "DDR3"
	case LPDDR2:
		return "LPDDR2"
	case LPDDR3:
		return "LPDDR3"
	}
	return "type" + fmt.Sprint(uint32(t))
}

// Flags is the tpr13 option word
type Flags uint32

const (
	FlagTopologyKnown   Flags = 1 << 0
	FlagRawTiming       Flags = 1 << 1
	Flag2T              Flags = 1 << 5
	FlagClockOverride   Flags = 1 << 6
	FlagExtraZQ         Flags = 1 << 8
	FlagPGCR0Override   Flags = 1 << 9
	FlagRankWidthKnown  Flags = 1 << 14
	FlagKeepUnresolved  Flags = 1 << 15
	FlagInternalZQ      Flags = 1 << 16
	FlagSkipVref        Flags = 1 << 17
	FlagSelfTest        Flags = 1 << 28
	FlagVerbose         Flags = 1 << 29
	FlagAutoSelfRefresh Flags = 1 << 30

	// FlagsResolved is ORed in after a successful autoscan
	FlagsResolved Flags = 0x6003
)

// Has reports whether all bits of mask are set
func (f Flags) Has(mask Flags) bool {
	return f&mask == mask
}

// DQSMode is the DQS gating mode in bits 2-3
func (f Flags) DQSMode() uint32 {
	return uint32(f>>2) & 0x3
}

// RemapOverride reports whether bits 18-19 force the CFG7 table
func (f Flags) RemapOverride() bool {
	return (f>>18)&0x3 != 0
}

// RankLayout is one rank's geometry as stored in para1
type RankLayout struct {
	PageKB uint32 // 0 means 512 bytes
	Rows   uint32 // row address bits
	Banks8 bool
}

// Banks returns the bank count
func (l RankLayout) Banks() uint32 {
	if l.Banks8 {
		return 8
	}
	return 4
}

func (l RankLayout) pack() uint32 {
	v := l.PageKB&0xf | (l.Rows&0xff)<<4
	if l.Banks8 {
		v |= 1 << 12
	}
	return v
}

// Params is the DRAM parameter block. Field order matches the layout
// boot0 headers carry, which the link exposes word by word.
type Params struct {
	Clk   uint32 // MHz; tpr9 wins when FlagClockOverride is set
	Type  DramType
	ZQ    uint32
	ODTEn uint32
	Para1 uint32
	Para2 uint32
	MR    [4]uint32
	TPR   [14]uint32
}

// ParamWords is the number of 32-bit words in a serialized Params
const ParamWords = 24

// paramNames are the word names in serialization order
var paramNames = [ParamWords]string{
	"clk", "type", "zq", "odt_en", "para1", "para2",
	"mr0", "mr1", "mr2", "mr3",
	"tpr0", "tpr1", "tpr2", "tpr3", "tpr4", "tpr5", "tpr6",
	"tpr7", "tpr8", "tpr9", "tpr10", "tpr11", "tpr12", "tpr13",
}

// ErrUnknownParam is returned for a name or index outside the block
var ErrUnknownParam = errors.New("unknown DRAM parameter")

// ParamName returns the name of word i
func ParamName(i int) string {
	if i < 0 || i >= ParamWords {
		return ""
	}
	return paramNames[i]
}

// ParamIndex returns the word index for name
func ParamIndex(name string) (int, bool) {
	for i, n := range paramNames {
		if n == name {
			return i, true
		}
	}
	return -1, false
}

func (p *Params) word(i int) *uint32 {
	switch {
	case i == 0:
		return &p.Clk
	case i == 1:
		return (*uint32)(&p.Type)
	case i == 2:
		return &p.ZQ
	case i == 3:
		return &p.ODTEn
	case i == 4:
		return &p.Para1
	case i == 5:
		return &p.Para2
	case i >= 6 && i < 10:
		return &p.MR[i-6]
	case i >= 10 && i < ParamWords:
		return &p.TPR[i-10]
	}
	return nil
}

// Word returns serialized word i
func (p *Params) Word(i int) (uint32, error) {
	w := p.word(i)
	if w == nil {
		return 0, fmt.Errorf("%w: index %d", ErrUnknownParam, i)
	}
	return *w, nil
}

// SetWord replaces serialized word i. The type word only accepts a
// known DRAM generation.
func (p *Params) SetWord(i int, v uint32) error {
	w := p.word(i)
	if w == nil {
		return fmt.Errorf("%w: index %d", ErrUnknownParam, i)
	}
	if i == 1 && !DramType(v).Valid() {
		return fmt.Errorf("%w: %d", ErrUnsupportedType, v)
	}
	*w = v
	return nil
}

// Set assigns a word by name
func (p *Params) Set(name string, v uint32) error {
	i, ok := ParamIndex(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownParam, name)
	}
	return p.SetWord(i, v)
}

// Words serializes the block
func (p *Params) Words() [ParamWords]uint32 {
	var out [ParamWords]uint32
	for i := range out {
		out[i] = *p.word(i)
	}
	return out
}

// Flags returns tpr13
func (p *Params) Flags() Flags {
	return Flags(p.TPR[13])
}

func (p *Params) setFlags(f Flags) {
	p.TPR[13] = uint32(f)
}

// Rank decodes rank r (0 or 1) from para1
func (p *Params) Rank(r int) RankLayout {
	v := p.Para1 >> (16 * uint(r))
	return RankLayout{
		PageKB: v & 0xf,
		Rows:   (v >> 4) & 0xff,
		Banks8: (v>>12)&0xf != 0,
	}
}

// SetRank stores rank r's geometry in para1
func (p *Params) SetRank(r int, l RankLayout) {
	shift := 16 * uint(r)
	p.Para1 = p.Para1&^(0xffff<<shift) | l.pack()<<shift
}

// HalfDQ reports a 8-bit data bus
func (p *Params) HalfDQ() bool {
	return p.Para2&0x1 != 0
}

// DualRank reports the rank selector
func (p *Params) DualRank() bool {
	return (p.Para2>>12)&0xf != 0
}

// SizeMB returns the size recorded in para2, or 0 if none
func (p *Params) SizeMB() uint32 {
	return (p.Para2 >> 16) & 0x7fff
}

// Clone returns an independent copy
func (p *Params) Clone() *Params {
	c := *p
	return &c
}

// String is a one-line summary for logs
func (p *Params) String() string {
	return fmt.Sprintf("%v@%dMHz para1=%#08x para2=%#08x tpr13=%#08x",
		p.Type, p.Clk, p.Para1, p.Para2, p.TPR[13])
}

// Summary renders every word as name=value lines
func (p *Params) Summary() string {
	var b strings.Builder
	for i, v := range p.Words() {
		fmt.Fprintf(&b, "%-7s 0x%08x\n", paramNames[i], v)
	}
	return b.String()
}

// baseParams holds the values shared by the Nezha and LicheeRV boards
func baseParams() *Params {
	return &Params{
		Clk:   792,
		Type:  DDR3,
		ZQ:    0x007b7bfb,
		ODTEn: 0x00000001,
		Para2: 0x00000000,
		MR:    [4]uint32{0x00001c70, 0x00000042, 0x00000000, 0x00000000},
		TPR: [14]uint32{
			0x004a2195, 0x02423190, 0x0008b061, 0xb4787896,
			0x00000000, 0x48484848, 0x00000048, 0x1620121e,
			0x00000000, 0x00000000, 0x00000000,
		},
	}
}

// NezhaParams returns the parameters for the Nezha board
func NezhaParams() *Params {
	p := baseParams()
	p.Para1 = 0x000010f2
	p.TPR[11] = 0x00760000
	p.TPR[12] = 0x00000035
	p.TPR[13] = 0x34050101
	return p
}

// LicheeRVParams returns the parameters for the LicheeRV module. Its
// topology is left unresolved so the first init scans it.
func LicheeRVParams() *Params {
	p := baseParams()
	p.Para1 = 0x000010d2
	p.MR[2] = 0x00000018
	p.TPR[11] = 0x00870000
	p.TPR[12] = 0x00000024
	p.TPR[13] = 0x34050100
	return p
}
