package connection

import (
	"errors"
	"testing"
)

func TestEncodeCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"inline", []string{"get", "foo"}, "get foo\r\n"},
		{"no args", []string{"ping"}, "ping\r\n"},
		{"bulk", []string{"set", "foo", "bar"}, "set foo 3\r\nbar\r\n"},
		{"bulk upper case", []string{"SET", "foo", "bar"}, "SET foo 3\r\nbar\r\n"},
		{"bulk with spaces", []string{"echo", "hello world"}, "echo 11\r\nhello world\r\n"},
		{"bulk with line breaks", []string{"setnx", "k", "a\r\nb"}, "setnx k 4\r\na\r\nb\r\n"},
		{"empty payload", []string{"set", "k", ""}, "set k 0\r\n\r\n"},
		{"bulk command without payload", []string{"set"}, "set\r\n"},
		{"tab stays inline", []string{"get", "a\tb"}, "get a\tb\r\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeCommand(nil, tt.args)
			if err != nil {
				t.Fatalf("EncodeCommand() error = %v", err)
			}
			if string(got) != tt.want {
				t.Errorf("EncodeCommand() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncodeCommand_Errors(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want error
	}{
		{"empty", nil, ErrEmptyCommand},
		{"space in key", []string{"get", "a b"}, ErrInlineArg},
		{"newline in key", []string{"get", "a\nb"}, ErrInlineArg},
		{"empty key", []string{"get", ""}, ErrInlineArg},
		{"space in bulk key", []string{"set", "a b", "v"}, ErrInlineArg},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := EncodeCommand(nil, tt.args); !errors.Is(err, tt.want) {
				t.Errorf("EncodeCommand() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestEncodeCommand_Appends(t *testing.T) {
	got, err := EncodeCommand([]byte("ping\r\n"), []string{"dbsize"})
	if err != nil {
		t.Fatalf("EncodeCommand() error = %v", err)
	}
	if string(got) != "ping\r\ndbsize\r\n" {
		t.Errorf("EncodeCommand() = %q", got)
	}
}

func TestIsBulkCommand(t *testing.T) {
	for _, name := range []string{"set", "SETNX", "Echo"} {
		if !IsBulkCommand(name) {
			t.Errorf("IsBulkCommand(%q) = false, want true", name)
		}
	}
	for _, name := range []string{"get", "incrby", ""} {
		if IsBulkCommand(name) {
			t.Errorf("IsBulkCommand(%q) = true, want false", name)
		}
	}
}
