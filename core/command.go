package core

import (
	"errors"
	"strings"
	"sync"
)

// ErrUnknownCommand is returned when dispatching an unregistered ID
var ErrUnknownCommand = errors.New("unknown command")

// CommandHandler decodes its own arguments from the frame payload and
// advances the slice past them.
type CommandHandler func(data *[]byte) error

// Command is one entry of the message dictionary. Responses (MCU -> host)
// share the ID space and carry a nil Handler.
type Command struct {
	ID      uint16
	Name    string
	Format  string // e.g. "addr=%u count=%c"
	Handler CommandHandler
}

// IsResponse reports whether the entry is a response message
func (c *Command) IsResponse() bool {
	return c.Handler == nil
}

// Key is the dictionary form "name format"
func (c *Command) Key() string {
	if c.Format == "" {
		return c.Name
	}
	return c.Name + " " + c.Format
}

// CommandRegistry assigns IDs in registration order. IDs are never
// reused, so the bootstrap pair registered first keeps 0 and 1.
type CommandRegistry struct {
	mu      sync.RWMutex
	entries []*Command
	byName  map[string]*Command
}

var globalRegistry = NewCommandRegistry()

// NewCommandRegistry creates an empty registry
func NewCommandRegistry() *CommandRegistry {
	return &CommandRegistry{byName: make(map[string]*Command)}
}

// RegisterCommand registers a command handler on the global registry
func RegisterCommand(name string, format string, handler CommandHandler) uint16 {
	return globalRegistry.Register(name, format, handler)
}

// RegisterResponse registers a response message (MCU -> host)
func RegisterResponse(name string, format string) uint16 {
	return globalRegistry.Register(name, format, nil)
}

// Register adds an entry and returns its ID. Registering an existing
// name again keeps the original ID, so Install-style functions may run
// twice. Reusing a command name for a response, or the reverse, panics:
// the host resolves both by bare name.
func (r *CommandRegistry) Register(name string, format string, handler CommandHandler) uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byName[name]; ok {
		if prev.IsResponse() != (handler == nil) {
			panic("command and response share name " + name)
		}
		return prev.ID
	}
	cmd := &Command{
		ID:      uint16(len(r.entries)),
		Name:    name,
		Format:  format,
		Handler: handler,
	}
	r.entries = append(r.entries, cmd)
	r.byName[name] = cmd
	return cmd.ID
}

// GetCommand retrieves an entry by ID
func (r *CommandRegistry) GetCommand(id uint16) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if int(id) >= len(r.entries) {
		return nil, false
	}
	return r.entries[id], true
}

// Lookup retrieves an entry by name
func (r *CommandRegistry) Lookup(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.byName[name]
	return cmd, ok
}

// Count returns the number of registered entries
func (r *CommandRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Dispatch calls the handler registered for cmdID
func (r *CommandRegistry) Dispatch(cmdID uint16, data *[]byte) error {
	cmd, ok := r.GetCommand(cmdID)
	if !ok || cmd.Handler == nil {
		return errors.Join(ErrUnknownCommand, errors.New("id "+itoa(int(cmdID))))
	}
	return cmd.Handler(data)
}

// GetDictionary returns the plain-text dictionary, one "name format"
// line per entry in ID order
func (r *CommandRegistry) GetDictionary() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var b strings.Builder
	for _, cmd := range r.entries {
		b.WriteString(cmd.Key())
		b.WriteByte('\n')
	}
	return b.String()
}

// GetCommandsAndResponses splits the registry into the two JSON maps,
// keyed by "name format".
func (r *CommandRegistry) GetCommandsAndResponses() (map[string]int, map[string]int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	commands := make(map[string]int)
	responses := make(map[string]int)
	for _, cmd := range r.entries {
		if cmd.IsResponse() {
			responses[cmd.Key()] = int(cmd.ID)
		} else {
			commands[cmd.Key()] = int(cmd.ID)
		}
	}
	return commands, responses
}

// DispatchCommand dispatches through the global registry
func DispatchCommand(cmdID uint16, data *[]byte) error {
	return globalRegistry.Dispatch(cmdID, data)
}

// GetGlobalRegistry returns the global command registry
func GetGlobalRegistry() *CommandRegistry {
	return globalRegistry
}
