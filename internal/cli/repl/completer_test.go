package repl

import (
	"reflect"
	"testing"
)

func TestCompleter_Complete(t *testing.T) {
	c := NewCompleter()

	tests := []struct {
		prefix string
		want   []string
	}{
		{"se", []string{"select", "set", "setnx"}},
		{"SE", []string{"select", "set", "setnx"}},
		{"incr", []string{"incr", "incrby"}},
		{"ex", []string{"exists", "exit"}},
		{"h", []string{"help", "history"}},
		{"nonexistent", nil},
	}

	for _, tt := range tests {
		if got := c.Complete(tt.prefix); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Complete(%q) = %v, want %v", tt.prefix, got, tt.want)
		}
	}
}

func TestCompleter_EmptyPrefix(t *testing.T) {
	c := NewCompleter()
	want := len(Commands) + len(localCommands)
	if got := len(c.Complete("")); got != want {
		t.Errorf("Complete(\"\") returned %d items, want %d", got, want)
	}
}
