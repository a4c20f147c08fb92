package dict

import (
	"errors"
	"fmt"
	"iter"
	"math/rand/v2"
	"strings"
)

// InitialSize is the bucket count allocated on the first insert.
const InitialSize = 4

var (
	// ErrKeyExists is returned by Add when the key is already present.
	ErrKeyExists = errors.New("dict: key exists")
	// ErrNotFound is returned by Delete when the key is absent.
	ErrNotFound = errors.New("dict: key not found")
)

// Behavior supplies hashing, equality and release hooks for a table.
//
// Release hooks run when an entry leaves the table (Delete, Empty) and,
// for values, when Replace overwrites an existing value.
type Behavior[K, V any] interface {
	Hash(key K) uint32
	Equal(a, b K) bool
	ReleaseKey(key K)
	ReleaseValue(value V)
}

// Entry is a key/value pair chained within its bucket.
type Entry[K, V any] struct {
	Key   K
	Value V
	next  *Entry[K, V]
}

// Stats describes the bucket distribution of a table.
type Stats struct {
	Size        int // bucket count
	Used        int // non-empty buckets
	Entries     int
	MaxChainLen int
	// ChainLens[i] counts buckets with a chain length of i. The last slot
	// aggregates every longer chain.
	ChainLens [StatsVectorLen]int
}

// StatsVectorLen is the number of chain-length slots tracked by Stats.
const StatsVectorLen = 50

// AvgChainLen returns the mean chain length over used buckets.
func (s Stats) AvgChainLen() float64 {
	if s.Used == 0 {
		return 0
	}
	return float64(s.Entries) / float64(s.Used)
}

// String renders the stats in a human readable block.
func (s Stats) String() string {
	if s.Entries == 0 {
		return "No stats available for empty dictionaries\n"
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Hash table stats:\n")
	fmt.Fprintf(&sb, " table size: %d\n", s.Size)
	fmt.Fprintf(&sb, " number of elements: %d\n", s.Entries)
	fmt.Fprintf(&sb, " different slots: %d\n", s.Used)
	fmt.Fprintf(&sb, " max chain length: %d\n", s.MaxChainLen)
	fmt.Fprintf(&sb, " avg chain length: %.02f\n", s.AvgChainLen())
	fmt.Fprintf(&sb, " Chain length distribution:\n")
	for i, n := range s.ChainLens {
		if n == 0 {
			continue
		}
		fmt.Fprintf(&sb, "   %s%d: %d (%.02f%%)\n", prefixFor(i), i, n, float64(n)/float64(s.Size)*100)
	}
	return sb.String()
}

func prefixFor(i int) string {
	if i == StatsVectorLen-1 {
		return ">= "
	}
	return ""
}

// Dict is a chained hash table.
type Dict[K, V any] struct {
	table    []*Entry[K, V]
	mask     uint32
	used     int
	rehashes int
	behavior Behavior[K, V]
}

// New creates an empty table. Buckets are allocated on the first insert.
func New[K, V any](b Behavior[K, V]) *Dict[K, V] {
	return &Dict[K, V]{behavior: b}
}

// Len returns the number of entries.
func (d *Dict[K, V]) Len() int {
	return d.used
}

// Size returns the number of buckets.
func (d *Dict[K, V]) Size() int {
	return len(d.table)
}

// Rehashes returns how many times the table has grown past its first
// allocation.
func (d *Dict[K, V]) Rehashes() int {
	return d.rehashes
}

// Add inserts key with value. It returns ErrKeyExists if key is present.
func (d *Dict[K, V]) Add(key K, value V) error {
	if d.Find(key) != nil {
		return ErrKeyExists
	}
	d.insert(key, value)
	return nil
}

// Replace sets key to value, inserting it if absent. It reports whether a
// new entry was created. An overwritten value is passed to ReleaseValue.
func (d *Dict[K, V]) Replace(key K, value V) bool {
	if e := d.Find(key); e != nil {
		old := e.Value
		e.Value = value
		d.behavior.ReleaseValue(old)
		return false
	}
	d.insert(key, value)
	return true
}

// Delete removes key, releasing its key and value.
func (d *Dict[K, V]) Delete(key K) error {
	e := d.unlink(key)
	if e == nil {
		return ErrNotFound
	}
	d.behavior.ReleaseKey(e.Key)
	d.behavior.ReleaseValue(e.Value)
	return nil
}

// Unlink removes key without running release hooks and returns the
// detached entry, or nil when absent.
func (d *Dict[K, V]) Unlink(key K) *Entry[K, V] {
	return d.unlink(key)
}

// Find returns the entry for key, or nil.
func (d *Dict[K, V]) Find(key K) *Entry[K, V] {
	if len(d.table) == 0 {
		return nil
	}
	for e := d.table[d.behavior.Hash(key)&d.mask]; e != nil; e = e.next {
		if d.behavior.Equal(e.Key, key) {
			return e
		}
	}
	return nil
}

// Fetch returns the value stored under key.
func (d *Dict[K, V]) Fetch(key K) (V, bool) {
	if e := d.Find(key); e != nil {
		return e.Value, true
	}
	var zero V
	return zero, false
}

// All yields every entry in bucket order.
//
// The table must not be modified while the sequence is being consumed.
func (d *Dict[K, V]) All() iter.Seq2[K, V] {
	return func(yield func(K, V) bool) {
		for _, head := range d.table {
			for e := head; e != nil; e = e.next {
				if !yield(e.Key, e.Value) {
					return
				}
			}
		}
	}
}

// RandomEntry returns a uniformly chosen bucket's random entry, or nil when
// the table is empty. A nil r uses the global source.
func (d *Dict[K, V]) RandomEntry(r *rand.Rand) *Entry[K, V] {
	if d.used == 0 {
		return nil
	}
	intn := rand.IntN
	if r != nil {
		intn = r.IntN
	}

	var head *Entry[K, V]
	for head == nil {
		head = d.table[intn(len(d.table))]
	}

	n := 0
	for e := head; e != nil; e = e.next {
		n++
	}
	e := head
	for i := intn(n); i > 0; i-- {
		e = e.next
	}
	return e
}

// Empty releases every entry and drops the bucket array.
func (d *Dict[K, V]) Empty() {
	for _, head := range d.table {
		for e := head; e != nil; {
			next := e.next
			d.behavior.ReleaseKey(e.Key)
			d.behavior.ReleaseValue(e.Value)
			e = next
		}
	}
	d.table = nil
	d.mask = 0
	d.used = 0
}

// Stats reports the bucket distribution.
func (d *Dict[K, V]) Stats() Stats {
	s := Stats{Size: len(d.table), Entries: d.used}
	for _, head := range d.table {
		if head == nil {
			s.ChainLens[0]++
			continue
		}
		s.Used++
		n := 0
		for e := head; e != nil; e = e.next {
			n++
		}
		if n > s.MaxChainLen {
			s.MaxChainLen = n
		}
		if n >= StatsVectorLen {
			s.ChainLens[StatsVectorLen-1]++
		} else {
			s.ChainLens[n]++
		}
	}
	return s
}

func (d *Dict[K, V]) insert(key K, value V) {
	d.expandIfNeeded()
	idx := d.behavior.Hash(key) & d.mask
	d.table[idx] = &Entry[K, V]{Key: key, Value: value, next: d.table[idx]}
	d.used++
}

func (d *Dict[K, V]) unlink(key K) *Entry[K, V] {
	if len(d.table) == 0 {
		return nil
	}
	idx := d.behavior.Hash(key) & d.mask
	var prev *Entry[K, V]
	for e := d.table[idx]; e != nil; e = e.next {
		if d.behavior.Equal(e.Key, key) {
			if prev == nil {
				d.table[idx] = e.next
			} else {
				prev.next = e.next
			}
			e.next = nil
			d.used--
			return e
		}
		prev = e
	}
	return nil
}

func (d *Dict[K, V]) expandIfNeeded() {
	if len(d.table) == 0 {
		d.resize(InitialSize)
		return
	}
	if d.used+1 > len(d.table) {
		d.resize(len(d.table) * 2)
		d.rehashes++
	}
}

// resize moves every entry into a fresh bucket array of size n, which must
// be a power of two.
func (d *Dict[K, V]) resize(n int) {
	table := make([]*Entry[K, V], n)
	mask := uint32(n - 1)
	for _, head := range d.table {
		for e := head; e != nil; {
			next := e.next
			idx := d.behavior.Hash(e.Key) & mask
			e.next = table[idx]
			table[idx] = e
			e = next
		}
	}
	d.table = table
	d.mask = mask
}
