package connection

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var (
	ErrEmptyCommand = errors.New("connection: empty command")
	ErrInlineArg    = errors.New("connection: argument can't be sent inline")
)

// bulkCommands take their last argument as a length-prefixed payload.
var bulkCommands = map[string]bool{
	"set":   true,
	"setnx": true,
	"echo":  true,
}

// IsBulkCommand reports whether the named command sends its last argument
// as a payload.
func IsBulkCommand(name string) bool {
	return bulkCommands[strings.ToLower(name)]
}

// EncodeCommand appends the wire form of args to dst. Header arguments
// must be non-empty and free of spaces and line breaks; the payload of a
// bulk command may hold arbitrary bytes.
func EncodeCommand(dst []byte, args []string) ([]byte, error) {
	if len(args) == 0 {
		return dst, ErrEmptyCommand
	}

	header := args
	var payload string
	bulk := len(args) > 1 && IsBulkCommand(args[0])
	if bulk {
		header = args[:len(args)-1]
		payload = args[len(args)-1]
	}

	for i, arg := range header {
		if arg == "" || strings.ContainsAny(arg, " \r\n") {
			return dst, fmt.Errorf("%w: %q", ErrInlineArg, arg)
		}
		if i > 0 {
			dst = append(dst, ' ')
		}
		dst = append(dst, arg...)
	}

	if bulk {
		dst = append(dst, ' ')
		dst = strconv.AppendInt(dst, int64(len(payload)), 10)
		dst = append(dst, '\r', '\n')
		dst = append(dst, payload...)
	}
	return append(dst, '\r', '\n'), nil
}
