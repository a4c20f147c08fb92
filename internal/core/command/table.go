package command

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/spaolacci/murmur3"

	"github.com/yndnr/emberkv/pkg/dict"
)

// Flag describes how a command's arguments are framed on the wire.
type Flag uint8

const (
	// Inline commands carry every argument on the header line.
	Inline Flag = 1 << iota
	// Bulk commands may carry their last argument as a length-prefixed
	// payload following the header line, announced by a trailing decimal
	// count.
	Bulk
)

// ErrDuplicate is returned when a name is registered twice.
var ErrDuplicate = errors.New("command: duplicate registration")

// Command binds a name to a handler.
//
// Arity counts the command name itself. A non-negative arity requires that
// exact argument count; a negative arity -N requires at least N.
type Command[C any] struct {
	Name  string
	Proc  func(C)
	Arity int
	Flags Flag
}

// IsBulk reports whether the command uses bulk framing.
func (c *Command[C]) IsBulk() bool {
	return c.Flags&Bulk != 0
}

// CheckArity reports whether argc arguments satisfy the command's arity.
func (c *Command[C]) CheckArity(argc int) bool {
	if c.Arity >= 0 {
		return argc == c.Arity
	}
	return argc >= -c.Arity
}

// Table is a case-insensitive command registry.
type Table[C any] struct {
	cmds *dict.Dict[string, *Command[C]]
}

// NewTable creates an empty table.
func NewTable[C any]() *Table[C] {
	return &Table[C]{cmds: dict.New[string, *Command[C]](foldBehavior[C]{})}
}

// Register adds cmd. Registering a name already present, in any case,
// returns ErrDuplicate.
func (t *Table[C]) Register(cmd *Command[C]) error {
	if cmd == nil || cmd.Name == "" || cmd.Proc == nil {
		return errors.New("command: name and proc are required")
	}
	if err := t.cmds.Add(cmd.Name, cmd); err != nil {
		if errors.Is(err, dict.ErrKeyExists) {
			return fmt.Errorf("%w: %s", ErrDuplicate, cmd.Name)
		}
		return err
	}
	return nil
}

// MustRegister registers every cmd and panics on failure.
func (t *Table[C]) MustRegister(cmds ...*Command[C]) {
	for _, c := range cmds {
		if err := t.Register(c); err != nil {
			panic(err)
		}
	}
}

// Lookup finds the command named name, ignoring case.
func (t *Table[C]) Lookup(name []byte) (*Command[C], bool) {
	return t.cmds.Fetch(string(name))
}

// Len returns the number of registered commands.
func (t *Table[C]) Len() int {
	return t.cmds.Len()
}

// Names returns the lower-cased registered names in sorted order.
func (t *Table[C]) Names() []string {
	names := make([]string, 0, t.cmds.Len())
	for name := range t.cmds.All() {
		names = append(names, strings.ToLower(name))
	}
	sort.Strings(names)
	return names
}

// foldBehavior hashes and compares names ignoring ASCII case.
type foldBehavior[C any] struct{}

func (foldBehavior[C]) Hash(key string) uint32 {
	var stack [32]byte
	buf := stack[:0]
	if len(key) > len(stack) {
		buf = make([]byte, 0, len(key))
	}
	for i := 0; i < len(key); i++ {
		c := key[i]
		if 'A' <= c && c <= 'Z' {
			c += 'a' - 'A'
		}
		buf = append(buf, c)
	}
	return murmur3.Sum32(buf)
}

func (foldBehavior[C]) Equal(a, b string) bool {
	return strings.EqualFold(a, b)
}

func (foldBehavior[C]) ReleaseKey(string) {}

func (foldBehavior[C]) ReleaseValue(*Command[C]) {}
