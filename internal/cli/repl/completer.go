package repl

import (
	"sort"
	"strings"
)

// Commands lists every command known to the server.
var Commands = []string{
	"bgsave", "dbsize", "decr", "decrby", "del", "echo", "exists",
	"flushall", "flushdb", "get", "incr", "incrby", "info", "keys",
	"lastsave", "move", "ping", "quit", "randomkey", "rename", "renamenx",
	"save", "select", "set", "setnx", "shutdown", "type",
}

// localCommands are handled by the REPL itself.
var localCommands = []string{"exit", "help", "history"}

// Completer provides command completion for the REPL.
type Completer struct {
	commands []string
}

// NewCompleter creates a new Completer.
func NewCompleter() *Completer {
	cmds := make([]string, 0, len(Commands)+len(localCommands))
	cmds = append(cmds, Commands...)
	cmds = append(cmds, localCommands...)
	sort.Strings(cmds)
	return &Completer{commands: cmds}
}

// Complete returns the commands starting with prefix, ignoring case.
func (c *Completer) Complete(prefix string) []string {
	prefix = strings.ToLower(prefix)
	var suggestions []string
	for _, cmd := range c.commands {
		if strings.HasPrefix(cmd, prefix) {
			suggestions = append(suggestions, cmd)
		}
	}
	return suggestions
}
