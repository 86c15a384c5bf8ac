package core

import (
	"bytes"
	"strings"
	"testing"

	"github.com/YuzukiHD/SyterKit/tinycompress"
)

func newTestDictionary() *Dictionary {
	dict := NewDictionary(NewCommandRegistry())
	dict.AddConstant("CLOCK_FREQ", uint32(24000000))
	dict.AddConstant("MCU", "sun20iw1p1")
	dict.AddEnumeration("dram_type", []string{"", "", "ddr2", "ddr3", "", "", "lpddr2", "lpddr3"})
	dict.commandReg.Register("identify_response", "offset=%u data=%*s", nil)
	dict.commandReg.Register("identify", "offset=%u count=%c", func(data *[]byte) error { return nil })
	dict.commandReg.Register("dram_init", "", func(data *[]byte) error { return nil })
	return dict
}

func TestDictionaryJSON(t *testing.T) {
	out := string(newTestDictionary().JSON())

	for _, want := range []string{
		`"version":"syterkit-d1"`,
		`"config":{"CLOCK_FREQ":"24000000","MCU":"sun20iw1p1"}`,
		`"commands":{"identify offset=%u count=%c":1,"dram_init":2}`,
		`"responses":{"identify_response offset=%u data=%*s":0}`,
		`"dram_type":{"ddr2":2,"ddr3":3,"lpddr2":6,"lpddr3":7}`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("dictionary missing %s\n%s", want, out)
		}
	}
}

func TestDictionaryCompressed(t *testing.T) {
	dict := newTestDictionary()
	raw, err := tinycompress.Decode(dict.Generate())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if !bytes.Equal(raw, dict.JSON()) {
		t.Error("compressed dictionary does not match JSON")
	}
}

func TestDictionaryChunks(t *testing.T) {
	dict := newTestDictionary()
	full := dict.Generate()

	var rebuilt []byte
	for off := uint32(0); ; off += 40 {
		chunk := dict.GetChunk(off, 40)
		if len(chunk) == 0 {
			break
		}
		if len(chunk) > 40 {
			t.Fatalf("chunk at %d is %d bytes", off, len(chunk))
		}
		rebuilt = append(rebuilt, chunk...)
	}
	if !bytes.Equal(rebuilt, full) {
		t.Error("chunks do not reassemble the dictionary")
	}

	if chunk := dict.GetChunk(uint32(len(full)+100), 10); len(chunk) != 0 {
		t.Error("Chunk beyond end should be empty")
	}

	chunk := dict.GetChunk(0, 4)
	chunk[0] ^= 0xff
	if dict.Generate()[0] == chunk[0] {
		t.Error("GetChunk must return a copy")
	}
}

func TestDictionaryInvalidatedByConstant(t *testing.T) {
	dict := newTestDictionary()
	before := len(dict.Generate())
	dict.AddConstant("RAM_BASE", uint32(0x40000000))
	if len(dict.Generate()) == before {
		t.Error("adding a constant did not rebuild the dictionary")
	}
}
