// Package dynbuf provides a growable byte buffer.
//
// A Buffer is the building block for per-connection query and reply
// buffers:
//   - amortized O(1) append with at-least-doubling growth
//   - a hard capacity limit; growth past it fails without touching content
//   - range, split and compare helpers used by the protocol parser
package dynbuf

import (
	"bytes"
	"errors"
)

// DefaultMaxCapacity is the default upper bound of a buffer's capacity.
const DefaultMaxCapacity = 1 << 30

// ErrTooLarge is returned when growing a buffer would exceed its limit.
var ErrTooLarge = errors.New("dynbuf: buffer capacity limit exceeded")

// Buffer is a growable byte sequence.
//
// len(buf) is the logical length and cap(buf) the allocated capacity.
// Bytes past the logical length are never read.
type Buffer struct {
	buf   []byte
	limit int
}

// New creates an empty buffer with the given initial capacity.
func New(capacity int) *Buffer {
	if capacity < 0 {
		capacity = 0
	}
	return &Buffer{
		buf:   make([]byte, 0, capacity),
		limit: DefaultMaxCapacity,
	}
}

// FromBytes creates a buffer holding a copy of b.
func FromBytes(b []byte) *Buffer {
	nb := New(len(b))
	nb.buf = append(nb.buf, b...)
	return nb
}

// FromString creates a buffer holding the bytes of s.
func FromString(s string) *Buffer {
	nb := New(len(s))
	nb.buf = append(nb.buf, s...)
	return nb
}

// SetLimit sets the maximum capacity the buffer may grow to.
// A non-positive limit restores DefaultMaxCapacity.
func (b *Buffer) SetLimit(limit int) {
	if limit <= 0 {
		limit = DefaultMaxCapacity
	}
	b.limit = limit
}

// Limit returns the maximum capacity.
func (b *Buffer) Limit() int {
	return b.limit
}

// Len returns the logical length.
func (b *Buffer) Len() int {
	return len(b.buf)
}

// Cap returns the allocated capacity.
func (b *Buffer) Cap() int {
	return cap(b.buf)
}

// Avail returns the free space before the next reallocation.
func (b *Buffer) Avail() int {
	return cap(b.buf) - len(b.buf)
}

// Bytes returns the logical content.
// The slice aliases the buffer and is valid until the next mutation.
func (b *Buffer) Bytes() []byte {
	return b.buf
}

// String returns a copy of the content as a string.
func (b *Buffer) String() string {
	return string(b.buf)
}

// Grow makes room for at least n more bytes.
//
// When the free space is insufficient the capacity becomes at least twice
// the required length. On ErrTooLarge the buffer is unchanged.
func (b *Buffer) Grow(n int) error {
	if n < 0 {
		return errors.New("dynbuf: negative grow")
	}
	if b.Avail() >= n {
		return nil
	}
	need := len(b.buf) + n
	if need > b.limit || need < 0 {
		return ErrTooLarge
	}
	newCap := need * 2
	if newCap > b.limit || newCap < 0 {
		newCap = b.limit
	}
	nb := make([]byte, len(b.buf), newCap)
	copy(nb, b.buf)
	b.buf = nb
	return nil
}

// Append appends p to the buffer.
func (b *Buffer) Append(p []byte) error {
	if err := b.Grow(len(p)); err != nil {
		return err
	}
	b.buf = append(b.buf, p...)
	return nil
}

// AppendString appends s to the buffer.
func (b *Buffer) AppendString(s string) error {
	if err := b.Grow(len(s)); err != nil {
		return err
	}
	b.buf = append(b.buf, s...)
	return nil
}

// AppendByte appends a single byte.
func (b *Buffer) AppendByte(c byte) error {
	if err := b.Grow(1); err != nil {
		return err
	}
	b.buf = append(b.buf, c)
	return nil
}

// IndexByte returns the index of the first c, or -1.
func (b *Buffer) IndexByte(c byte) int {
	return bytes.IndexByte(b.buf, c)
}

// Consume drops the first n bytes and keeps the remainder in place.
func (b *Buffer) Consume(n int) {
	if n <= 0 {
		return
	}
	if n >= len(b.buf) {
		b.buf = b.buf[:0]
		return
	}
	rest := copy(b.buf, b.buf[n:])
	b.buf = b.buf[:rest]
}

// Reset empties the buffer, keeping the allocation.
func (b *Buffer) Reset() {
	b.buf = b.buf[:0]
}

// Range returns a new buffer holding the bytes in [start, end] of the
// logical content, both ends inclusive.
//
// Negative indices count from the end: -1 is the last byte. Indices past
// the end are clamped; an inverted range yields an empty buffer.
func (b *Buffer) Range(start, end int) *Buffer {
	n := len(b.buf)
	if n == 0 {
		return New(0)
	}
	if start < 0 {
		start = n + start
		if start < 0 {
			start = 0
		}
	}
	if end < 0 {
		end = n + end
		if end < 0 {
			end = 0
		}
	}
	if start >= n || start > end {
		return New(0)
	}
	if end >= n {
		end = n - 1
	}
	out := New(end - start + 1)
	out.buf = append(out.buf, b.buf[start:end+1]...)
	out.limit = b.limit
	return out
}

// Split tokenizes the content on a literal separator.
//
// Tokens keep their order. A trailing remainder is returned as the last
// token and zero-length tokens are dropped, so a separator at the very end
// or a run of consecutive separators never produces an empty token.
func (b *Buffer) Split(sep []byte) []*Buffer {
	if len(sep) == 0 || len(b.buf) == 0 {
		return nil
	}

	var out []*Buffer
	rest := b.buf
	for {
		i := bytes.Index(rest, sep)
		if i < 0 {
			break
		}
		if i > 0 {
			out = append(out, FromBytes(rest[:i]))
		}
		rest = rest[i+len(sep):]
	}
	if len(rest) > 0 {
		out = append(out, FromBytes(rest))
	}
	return out
}

// Compare compares a and b lexicographically byte by byte.
// It returns -1, 0 or +1.
func Compare(a, b *Buffer) int {
	return bytes.Compare(a.buf, b.buf)
}
