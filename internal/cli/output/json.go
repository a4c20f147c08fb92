package output

import (
	"encoding/json"
	"io"

	"github.com/yndnr/emberkv/internal/cli/connection"
)

// JSONFormatter formats replies as JSON. Strings and status replies become
// JSON strings, null becomes null and errors become {"error": "..."}.
type JSONFormatter struct {
	// Indent pretty-prints the document.
	Indent bool
}

// Format writes r as one JSON document.
func (f *JSONFormatter) Format(w io.Writer, r connection.Reply) error {
	encoder := json.NewEncoder(w)
	if f.Indent {
		encoder.SetIndent("", "  ")
	}
	return encoder.Encode(jsonValue(r))
}

func jsonValue(r connection.Reply) any {
	switch r.Kind {
	case connection.KindError:
		return map[string]string{"error": r.Str}
	case connection.KindInteger:
		return r.Int
	case connection.KindNull:
		return nil
	case connection.KindArray:
		elems := make([]any, len(r.Elems))
		for i, e := range r.Elems {
			elems[i] = jsonValue(e)
		}
		return elems
	default:
		return r.Str
	}
}
