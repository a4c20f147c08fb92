package output

import (
	"bufio"
	"io"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/yndnr/emberkv/internal/cli/connection"
)

// TextFormatter prints replies the way an interactive user expects:
// strings are quoted, integers and nulls are labelled and arrays are
// numbered.
type TextFormatter struct{}

// Format writes r followed by a newline.
func (f *TextFormatter) Format(w io.Writer, r connection.Reply) error {
	bw := bufio.NewWriter(w)
	writeText(bw, r, "")
	return bw.Flush()
}

func writeText(w *bufio.Writer, r connection.Reply, indent string) {
	switch r.Kind {
	case connection.KindStatus:
		w.WriteString(r.Str)
	case connection.KindError:
		w.WriteString("(error) ")
		w.WriteString(r.Str)
	case connection.KindInteger:
		w.WriteString("(integer) ")
		w.WriteString(strconv.FormatInt(r.Int, 10))
	case connection.KindNull:
		w.WriteString("(nil)")
	case connection.KindBulk:
		if isMultiline(r.Str) {
			w.WriteString(strings.TrimRight(strings.ReplaceAll(r.Str, "\r\n", "\n"), "\n"))
		} else {
			w.WriteString(strconv.Quote(r.Str))
		}
	case connection.KindArray:
		if len(r.Elems) == 0 {
			w.WriteString("(empty array)")
			break
		}
		width := len(strconv.Itoa(len(r.Elems)))
		for i, e := range r.Elems {
			if i > 0 {
				w.WriteString("\n")
				w.WriteString(indent)
			}
			n := strconv.Itoa(i + 1)
			w.WriteString(strings.Repeat(" ", width-len(n)))
			w.WriteString(n)
			w.WriteString(") ")
			writeText(w, e, indent+strings.Repeat(" ", width+2))
		}
	}
	if indent == "" {
		w.WriteString("\n")
	}
}

// isMultiline reports whether s is printable text spanning several lines,
// such as the INFO report.
func isMultiline(s string) bool {
	if !strings.Contains(s, "\n") || !utf8.ValidString(s) {
		return false
	}
	for _, r := range s {
		if r < ' ' && r != '\n' && r != '\r' && r != '\t' {
			return false
		}
	}
	return true
}
