package command

import (
	"errors"
	"reflect"
	"testing"
)

type fakeClient struct {
	called []string
}

func newTestTable(t *testing.T) *Table[*fakeClient] {
	t.Helper()
	tbl := NewTable[*fakeClient]()
	tbl.MustRegister(
		&Command[*fakeClient]{Name: "get", Proc: func(c *fakeClient) { c.called = append(c.called, "get") }, Arity: 2, Flags: Inline},
		&Command[*fakeClient]{Name: "set", Proc: func(c *fakeClient) { c.called = append(c.called, "set") }, Arity: 3, Flags: Bulk},
		&Command[*fakeClient]{Name: "del", Proc: func(c *fakeClient) { c.called = append(c.called, "del") }, Arity: -2, Flags: Inline},
	)
	return tbl
}

// ============================================================
// Lookup
// ============================================================

func TestLookup_CaseInsensitive(t *testing.T) {
	tbl := newTestTable(t)

	for _, name := range []string{"get", "GET", "Get", "gEt"} {
		cmd, ok := tbl.Lookup([]byte(name))
		if !ok {
			t.Errorf("Lookup(%q) not found", name)
			continue
		}
		if cmd.Name != "get" {
			t.Errorf("Lookup(%q).Name = %q, want %q", name, cmd.Name, "get")
		}
	}

	if _, ok := tbl.Lookup([]byte("unknown")); ok {
		t.Error("Lookup(unknown) found a command")
	}
}

func TestLookup_InvokesProc(t *testing.T) {
	tbl := newTestTable(t)
	c := &fakeClient{}

	cmd, _ := tbl.Lookup([]byte("SET"))
	cmd.Proc(c)
	if !reflect.DeepEqual(c.called, []string{"set"}) {
		t.Errorf("called = %v, want [set]", c.called)
	}
	if !cmd.IsBulk() {
		t.Error("set IsBulk() = false, want true")
	}
}

// ============================================================
// Register
// ============================================================

func TestRegister_Duplicate(t *testing.T) {
	tbl := newTestTable(t)
	err := tbl.Register(&Command[*fakeClient]{Name: "GET", Proc: func(*fakeClient) {}, Arity: 2})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("Register(GET) error = %v, want ErrDuplicate", err)
	}
	if tbl.Len() != 3 {
		t.Errorf("Len() = %d, want 3", tbl.Len())
	}
}

func TestRegister_Invalid(t *testing.T) {
	tbl := NewTable[*fakeClient]()
	if err := tbl.Register(&Command[*fakeClient]{Name: "x"}); err == nil {
		t.Error("Register() without proc should fail")
	}
	if err := tbl.Register(nil); err == nil {
		t.Error("Register(nil) should fail")
	}
}

func TestMustRegister_Panics(t *testing.T) {
	tbl := newTestTable(t)
	defer func() {
		if recover() == nil {
			t.Error("MustRegister() with duplicate did not panic")
		}
	}()
	tbl.MustRegister(&Command[*fakeClient]{Name: "del", Proc: func(*fakeClient) {}, Arity: 2})
}

func TestNames(t *testing.T) {
	tbl := newTestTable(t)
	want := []string{"del", "get", "set"}
	if got := tbl.Names(); !reflect.DeepEqual(got, want) {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

// ============================================================
// Arity
// ============================================================

func TestCheckArity(t *testing.T) {
	tests := []struct {
		arity int
		argc  int
		want  bool
	}{
		{3, 3, true},
		{3, 2, false},
		{3, 4, false},
		{-2, 1, false},
		{-2, 2, true},
		{-2, 3, true},
		{-2, 16, true},
		{1, 1, true},
		{0, 0, true},
	}

	for _, tt := range tests {
		c := &Command[*fakeClient]{Arity: tt.arity}
		if got := c.CheckArity(tt.argc); got != tt.want {
			t.Errorf("CheckArity(arity=%d, argc=%d) = %v, want %v", tt.arity, tt.argc, got, tt.want)
		}
	}
}

func TestFoldBehavior(t *testing.T) {
	var b foldBehavior[*fakeClient]
	if b.Hash("SELECT") != b.Hash("select") {
		t.Error("Hash differs by case")
	}
	if !b.Equal("FlushDB", "flushdb") {
		t.Error("Equal(FlushDB, flushdb) = false")
	}
	long := "averyveryverylongcommandnamethatexceedsthestackbuffer"
	if b.Hash(long) != b.Hash("AVERYVERYVERYLONGCOMMANDNAMETHATEXCEEDSTHESTACKBUFFER") {
		t.Error("Hash differs by case for long names")
	}
}
