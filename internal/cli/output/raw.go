package output

import (
	"bufio"
	"io"
	"strconv"

	"github.com/yndnr/emberkv/internal/cli/connection"
)

// RawFormatter prints bare values, one per line. Null prints as an empty
// line.
type RawFormatter struct{}

// Format writes r.
func (f *RawFormatter) Format(w io.Writer, r connection.Reply) error {
	bw := bufio.NewWriter(w)
	writeRaw(bw, r)
	return bw.Flush()
}

func writeRaw(w *bufio.Writer, r connection.Reply) {
	switch r.Kind {
	case connection.KindInteger:
		w.WriteString(strconv.FormatInt(r.Int, 10))
		w.WriteByte('\n')
	case connection.KindNull:
		w.WriteByte('\n')
	case connection.KindArray:
		for _, e := range r.Elems {
			writeRaw(w, e)
		}
	default:
		w.WriteString(r.Str)
		w.WriteByte('\n')
	}
}
