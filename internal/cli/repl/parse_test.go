package repl

import (
	"errors"
	"reflect"
	"testing"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		line string
		want []string
	}{
		{"get foo", []string{"get", "foo"}},
		{"  set   a  b ", []string{"set", "a", "b"}},
		{"", nil},
		{"   ", nil},
		{`echo "hello world"`, []string{"echo", "hello world"}},
		{`echo "a\nb\t\"c\"\\"`, []string{"echo", "a\nb\t\"c\"\\"}},
		{`echo "\x41\x7a"`, []string{"echo", "Az"}},
		{`echo "\xZZ"`, []string{"echo", "xZZ"}},
		{`echo 'it\'s \n'`, []string{"echo", `it's \n`}},
		{`set k ""`, []string{"set", "k", ""}},
		{`set k"ey" v`, []string{"set", "key", "v"}},
		{"get\tfoo", []string{"get", "foo"}},
	}

	for _, tt := range tests {
		got, err := ParseLine(tt.line)
		if err != nil {
			t.Errorf("ParseLine(%q) error = %v", tt.line, err)
			continue
		}
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ParseLine(%q) = %q, want %q", tt.line, got, tt.want)
		}
	}
}

func TestParseLine_Unbalanced(t *testing.T) {
	for _, line := range []string{`echo "abc`, `echo 'abc`, `echo "abc\"`} {
		if _, err := ParseLine(line); !errors.Is(err, ErrUnbalancedQuotes) {
			t.Errorf("ParseLine(%q) error = %v, want %v", line, err, ErrUnbalancedQuotes)
		}
	}
}
