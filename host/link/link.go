// Package link is the host side of the SPL command link. It downloads the
// firmware's command dictionary and sends commands by name.
package link

import (
	"bytes"
	"compress/zlib"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/golang/glog"

	"github.com/YuzukiHD/SyterKit/host/serial"
	"github.com/YuzukiHD/SyterKit/protocol"
)

var (
	ErrNotConnected  = errors.New("not connected")
	ErrNoDictionary  = errors.New("dictionary not loaded")
	ErrUnknownName   = errors.New("unknown command")
	ErrShortResponse = errors.New("short response")
)

// Dictionary is the firmware's self-description. Commands and Responses
// are keyed by "name format", e.g. "mem_read addr=%u count=%c".
type Dictionary struct {
	Version       string                    `json:"version"`
	BuildVersions string                    `json:"build_versions"`
	Config        map[string]string         `json:"config"`
	Commands      map[string]int            `json:"commands"`
	Responses     map[string]int            `json:"responses"`
	Enumerations  map[string]map[string]int `json:"enumerations,omitempty"`

	commandIDs  map[string]int
	responseIDs map[string]int
}

// byName re-keys a "name format" map by name alone
func byName(m map[string]int) map[string]int {
	out := make(map[string]int, len(m))
	for key, id := range m {
		name, _, _ := strings.Cut(key, " ")
		out[name] = id
	}
	return out
}

func (d *Dictionary) index() {
	d.commandIDs = byName(d.Commands)
	d.responseIDs = byName(d.Responses)
}

// CommandID returns the ID of command name
func (d *Dictionary) CommandID(name string) (int, bool) {
	id, ok := d.commandIDs[name]
	return id, ok
}

// ResponseID returns the ID of response name
func (d *Dictionary) ResponseID(name string) (int, bool) {
	id, ok := d.responseIDs[name]
	return id, ok
}

// EnumName returns the symbol for value v in enumeration enum
func (d *Dictionary) EnumName(enum string, v uint32) string {
	for name, idx := range d.Enumerations[enum] {
		if uint32(idx) == v {
			return name
		}
	}
	return fmt.Sprintf("%s(%d)", enum, v)
}

// identifyChunk is the dictionary slice requested per identify
const identifyChunk = 40

// Client talks to one board
type Client struct {
	transport *protocol.HostTransport
	port      serial.Port

	dict    *Dictionary
	rawDict []byte

	// Timeout bounds the ACK and response wait of ordinary commands
	Timeout time.Duration
}

// New wraps an open port
func New(port serial.Port) *Client {
	return &Client{
		transport: protocol.NewHostTransport(port),
		port:      port,
		Timeout:   time.Second,
	}
}

// Dial opens the port described by cfg
func Dial(cfg *serial.Config) (*Client, error) {
	port, err := serial.Open(cfg)
	if err != nil {
		return nil, err
	}
	// give a freshly reset board time to reach the link loop
	time.Sleep(100 * time.Millisecond)
	return New(port), nil
}

// Close stops the transport and closes the port
func (c *Client) Close() error {
	if c.transport == nil {
		return nil
	}
	err := c.transport.Close()
	c.transport = nil
	return err
}

// Port returns the underlying serial port
func (c *Client) Port() serial.Port {
	return c.port
}

// Dictionary returns the downloaded dictionary, or nil
func (c *Client) Dictionary() *Dictionary {
	return c.dict
}

// RawDictionary returns the dictionary JSON
func (c *Client) RawDictionary() []byte {
	return c.rawDict
}

// RetrieveDictionary downloads, inflates and parses the dictionary
func (c *Client) RetrieveDictionary() error {
	if c.transport == nil {
		return ErrNotConnected
	}
	c.transport.Reset()

	var buf bytes.Buffer
	for offset := uint32(0); ; {
		chunk, err := c.identify(offset, identifyChunk)
		if err != nil {
			return fmt.Errorf("dictionary chunk at %d: %w", offset, err)
		}
		buf.Write(chunk)
		offset += uint32(len(chunk))
		if len(chunk) < identifyChunk {
			break
		}
	}
	glog.V(1).Infof("dictionary: %d bytes compressed", buf.Len())

	data, err := inflate(buf.Bytes())
	if err != nil {
		return fmt.Errorf("inflate dictionary: %w", err)
	}
	dict := &Dictionary{}
	if err := json.Unmarshal(data, dict); err != nil {
		return fmt.Errorf("parse dictionary: %w", err)
	}
	dict.index()
	c.rawDict = data
	c.dict = dict
	glog.Infof("dictionary %s: %d commands, %d responses", dict.Version, len(dict.Commands), len(dict.Responses))
	return nil
}

// inflate unwraps a zlib dictionary; plain JSON passes through
func inflate(data []byte) ([]byte, error) {
	if len(data) > 0 && data[0] == '{' {
		return data, nil
	}
	r, err := zlib.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// identify is sent by ID: it is the one command usable before the
// dictionary is known
func (c *Client) identify(offset uint32, count uint8) ([]byte, error) {
	const identifyID, identifyResponseID = 1, 0
	err := c.transport.SendCommandWithTimeout(identifyID, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, offset)
		protocol.EncodeVLQUint(output, uint32(count))
	}, c.Timeout)
	if err != nil {
		return nil, err
	}
	payload, err := c.awaitResponse(identifyResponseID, c.Timeout)
	if err != nil {
		return nil, err
	}
	got, err := protocol.DecodeVLQUint(&payload)
	if err != nil {
		return nil, err
	}
	if got != offset {
		return nil, fmt.Errorf("offset mismatch: asked %d, got %d", offset, got)
	}
	return protocol.DecodeVLQBytes(&payload)
}

// awaitResponse returns the arguments of the next response with ID id.
// Other responses are logged and dropped.
func (c *Client) awaitResponse(id int, timeout time.Duration) ([]byte, error) {
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, fmt.Errorf("%w: waiting for response %d", protocol.ErrResponseTimeout, id)
		}
		msg, err := c.transport.ReceiveResponse(remaining)
		if err != nil {
			return nil, err
		}
		payload := msg.Payload
		got, err := protocol.DecodeVLQUint(&payload)
		if err != nil {
			continue
		}
		if int(got) == id {
			return payload, nil
		}
		glog.V(1).Infof("skipping response %d while waiting for %d", got, id)
	}
}

func (c *Client) lookup(find func(string) (int, bool), name string) (int, error) {
	if c.transport == nil {
		return 0, ErrNotConnected
	}
	id, ok := find(name)
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownName, name)
	}
	return id, nil
}

// Send transmits command name and waits for its ACK
func (c *Client) Send(name string, args func(output protocol.OutputBuffer)) error {
	return c.send(name, args, c.Timeout)
}

func (c *Client) send(name string, args func(output protocol.OutputBuffer), timeout time.Duration) error {
	if c.dict == nil {
		return ErrNoDictionary
	}
	id, err := c.lookup(c.dict.CommandID, name)
	if err != nil {
		return err
	}
	if err := c.transport.SendCommandWithTimeout(uint16(id), args, timeout); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}
	return nil
}

// Call sends name and returns the raw arguments of response resp. The
// timeout covers the ACK, which the firmware sends once the handler has
// finished, and then the response.
func (c *Client) Call(name, resp string, args func(output protocol.OutputBuffer), timeout time.Duration) ([]byte, error) {
	if c.dict == nil {
		return nil, ErrNoDictionary
	}
	respID, err := c.lookup(c.dict.ResponseID, resp)
	if err != nil {
		return nil, err
	}
	if err := c.send(name, args, timeout); err != nil {
		return nil, err
	}
	payload, err := c.awaitResponse(respID, timeout)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return payload, nil
}

// CallUints is Call for commands whose arguments and response fields are
// all integers. It returns exactly n response words.
func (c *Client) CallUints(name, resp string, n int, args ...uint32) ([]uint32, error) {
	return c.callUints(name, resp, n, c.Timeout, args...)
}

func (c *Client) callUints(name, resp string, n int, timeout time.Duration, args ...uint32) ([]uint32, error) {
	payload, err := c.Call(name, resp, Uints(args...), timeout)
	if err != nil {
		return nil, err
	}
	words, err := protocol.DecodeVLQUints(&payload, n)
	if err != nil {
		return nil, fmt.Errorf("%s: %w: %v", resp, ErrShortResponse, err)
	}
	return words, nil
}

// Uints encodes integer arguments
func Uints(args ...uint32) func(output protocol.OutputBuffer) {
	return func(output protocol.OutputBuffer) {
		for _, a := range args {
			protocol.EncodeVLQUint(output, a)
		}
	}
}
