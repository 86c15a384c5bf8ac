package core

import (
	"bytes"
	"sort"
	"sync"

	"github.com/YuzukiHD/SyterKit/tinycompress"
)

// Constant is a firmware value exposed to the host in the dictionary
type Constant struct {
	Name  string
	Value interface{}
}

// Enumeration maps symbolic names to their index; empty names are skipped
type Enumeration struct {
	Name   string
	Values []string
}

// Dictionary is the self-description the host downloads with identify
type Dictionary struct {
	mu            sync.RWMutex
	constants     map[string]*Constant
	enumerations  map[string]*Enumeration
	commandReg    *CommandRegistry
	version       string
	buildVersions string
	cachedDict    []byte // zlib-wrapped JSON once built
}

var globalDictionary = NewDictionary(globalRegistry)

// NewDictionary creates a dictionary over cmdReg
func NewDictionary(cmdReg *CommandRegistry) *Dictionary {
	return &Dictionary{
		constants:     make(map[string]*Constant),
		enumerations:  make(map[string]*Enumeration),
		commandReg:    cmdReg,
		version:       "syterkit-d1",
		buildVersions: "tinygo",
	}
}

// RegisterConstant adds a constant to the global dictionary
func RegisterConstant(name string, value interface{}) {
	globalDictionary.AddConstant(name, value)
}

// RegisterEnumeration adds an enumeration to the global dictionary
func RegisterEnumeration(name string, values []string) {
	globalDictionary.AddEnumeration(name, values)
}

func (d *Dictionary) AddConstant(name string, value interface{}) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.constants[name] = &Constant{Name: name, Value: value}
	d.cachedDict = nil
}

func (d *Dictionary) AddEnumeration(name string, values []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.enumerations[name] = &Enumeration{
		Name:   name,
		Values: append([]string(nil), values...),
	}
	d.cachedDict = nil
}

func (d *Dictionary) SetVersion(version string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.version = version
	d.cachedDict = nil
}

func (d *Dictionary) SetBuildVersions(versions string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.buildVersions = versions
	d.cachedDict = nil
}

// BuildDictionary compresses and caches the dictionary. Call it after all
// commands are registered; later registrations need another call.
func (d *Dictionary) BuildDictionary() {
	// fetch registry contents before taking our own lock
	commands, responses := d.commandReg.GetCommandsAndResponses()

	d.mu.Lock()
	defer d.mu.Unlock()

	jsonData := d.buildJSON(commands, responses)
	var buf bytes.Buffer
	w := tinycompress.NewWriter(&buf)
	w.Write(jsonData)
	if err := w.Close(); err != nil {
		DebugPrintln("[dict] compress: " + err.Error())
		return
	}
	d.cachedDict = buf.Bytes()
	DebugPrintln("[dict] " + itoa(len(jsonData)) + " bytes json, " + itoa(len(d.cachedDict)) + " wrapped")
}

// Generate returns the compressed dictionary, building it on first use
func (d *Dictionary) Generate() []byte {
	d.mu.RLock()
	cached := d.cachedDict
	d.mu.RUnlock()
	if cached == nil {
		d.BuildDictionary()
		d.mu.RLock()
		cached = d.cachedDict
		d.mu.RUnlock()
	}
	return cached
}

// JSON returns the uncompressed dictionary
func (d *Dictionary) JSON() []byte {
	commands, responses := d.commandReg.GetCommandsAndResponses()
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.buildJSON(commands, responses)
}

func appendQuoted(b []byte, s string) []byte {
	b = append(b, '"')
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\\' {
			b = append(b, '\\')
		}
		b = append(b, c)
	}
	return append(b, '"')
}

// appendIDMap writes {"key":id,...} ordered by id
func appendIDMap(b []byte, m map[string]int) []byte {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return m[keys[i]] < m[keys[j]] })

	b = append(b, '{')
	for i, k := range keys {
		if i > 0 {
			b = append(b, ',')
		}
		b = appendQuoted(b, k)
		b = append(b, ':')
		b = append(b, itoa(m[k])...)
	}
	return append(b, '}')
}

// buildJSON must be called with the lock held
func (d *Dictionary) buildJSON(commands, responses map[string]int) []byte {
	b := make([]byte, 0, 2048)
	b = append(b, `{"version":`...)
	b = appendQuoted(b, d.version)
	b = append(b, `,"build_versions":`...)
	b = appendQuoted(b, d.buildVersions)

	b = append(b, `,"config":{`...)
	names := make([]string, 0, len(d.constants))
	for name := range d.constants {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, name := range names {
		if i > 0 {
			b = append(b, ',')
		}
		b = appendQuoted(b, name)
		b = append(b, ':')
		b = appendQuoted(b, valueToString(d.constants[name].Value))
	}
	b = append(b, '}')

	b = append(b, `,"commands":`...)
	b = appendIDMap(b, commands)
	b = append(b, `,"responses":`...)
	b = appendIDMap(b, responses)

	if len(d.enumerations) > 0 {
		b = append(b, `,"enumerations":{`...)
		names = names[:0]
		for name := range d.enumerations {
			names = append(names, name)
		}
		sort.Strings(names)
		for i, name := range names {
			if i > 0 {
				b = append(b, ',')
			}
			b = appendQuoted(b, name)
			values := make(map[string]int)
			for idx, v := range d.enumerations[name].Values {
				if v != "" {
					values[v] = idx
				}
			}
			b = append(b, ':')
			b = appendIDMap(b, values)
		}
		b = append(b, '}')
	}
	return append(b, '}')
}

// GetChunk returns a copy of count bytes of the compressed dictionary
// starting at offset; past the end it returns an empty slice.
func (d *Dictionary) GetChunk(offset uint32, count uint8) []byte {
	data := d.Generate()
	if offset >= uint32(len(data)) {
		return []byte{}
	}
	end := min(offset+uint32(count), uint32(len(data)))
	chunk := make([]byte, end-offset)
	copy(chunk, data[offset:end])
	return chunk
}

// GetGlobalDictionary returns the global dictionary instance
func GetGlobalDictionary() *Dictionary {
	return globalDictionary
}
