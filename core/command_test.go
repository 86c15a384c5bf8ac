package core

import (
	"errors"
	"testing"
)

func TestCommandRegistry(t *testing.T) {
	registry := NewCommandRegistry()

	var called bool
	id := registry.Register("test_command", "arg=%u", func(data *[]byte) error {
		called = true
		return nil
	})
	if id != 0 {
		t.Errorf("Expected first command to have ID 0, got %d", id)
	}

	cmd, ok := registry.GetCommand(id)
	if !ok || cmd.Name != "test_command" {
		t.Fatalf("GetCommand(%d) = %+v, %v", id, cmd, ok)
	}

	var data []byte
	if err := registry.Dispatch(id, &data); err != nil {
		t.Errorf("Dispatch failed: %v", err)
	}
	if !called {
		t.Error("Command handler was not called")
	}

	err := registry.Dispatch(999, &data)
	if !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("Expected ErrUnknownCommand, got %v", err)
	}
}

func TestCommandRegistryMultiple(t *testing.T) {
	registry := NewCommandRegistry()

	id1 := registry.Register("command1", "arg1=%u", func(data *[]byte) error { return nil })
	id2 := registry.Register("command2", "arg2=%u", func(data *[]byte) error { return nil })
	id3 := registry.Register("command3", "arg3=%u", func(data *[]byte) error { return nil })

	if id1 != 0 || id2 != 1 || id3 != 2 {
		t.Errorf("Command IDs not sequential: %d, %d, %d", id1, id2, id3)
	}
	if registry.Count() != 3 {
		t.Errorf("Expected 3 commands, got %d", registry.Count())
	}
	if again := registry.Register("command2", "", func(data *[]byte) error { return nil }); again != id2 {
		t.Errorf("re-registering returned %d, want %d", again, id2)
	}
}

func TestCommandResponseNameClash(t *testing.T) {
	registry := NewCommandRegistry()
	registry.Register("dram_status", "", func(data *[]byte) error { return nil })
	defer func() {
		if recover() == nil {
			t.Error("response reusing a command name did not panic")
		}
	}()
	registry.Register("dram_status", "ready=%c", nil)
}

func TestResponsesAreNotDispatchable(t *testing.T) {
	registry := NewCommandRegistry()
	id := registry.Register("dram_result", "mb=%u", nil)

	var data []byte
	if err := registry.Dispatch(id, &data); !errors.Is(err, ErrUnknownCommand) {
		t.Errorf("dispatching a response: %v", err)
	}

	cmd, ok := registry.Lookup("dram_result")
	if !ok || !cmd.IsResponse() {
		t.Errorf("Lookup = %+v, %v", cmd, ok)
	}
	if _, ok := registry.Lookup("missing"); ok {
		t.Error("Lookup found unregistered name")
	}
}

func TestGetCommandsAndResponses(t *testing.T) {
	registry := NewCommandRegistry()
	registry.Register("identify_response", "offset=%u data=%*s", nil)
	registry.Register("identify", "offset=%u count=%c", func(data *[]byte) error { return nil })
	registry.Register("get_clock", "", func(data *[]byte) error { return nil })

	commands, responses := registry.GetCommandsAndResponses()
	if commands["identify offset=%u count=%c"] != 1 || commands["get_clock"] != 2 {
		t.Errorf("commands = %v", commands)
	}
	if id, ok := responses["identify_response offset=%u data=%*s"]; !ok || id != 0 {
		t.Errorf("responses = %v", responses)
	}
	want := "identify_response offset=%u data=%*s\nidentify offset=%u count=%c\nget_clock\n"
	if registry.GetDictionary() != want {
		t.Errorf("dictionary text = %q", registry.GetDictionary())
	}
}
