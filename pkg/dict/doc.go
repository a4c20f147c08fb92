// Package dict provides a chained hash table with pluggable key behavior.
//
// The table is not safe for concurrent use. It is designed to be owned by
// a single event loop goroutine, which is why growth is a plain synchronous
// rehash rather than an incremental one.
//
// Usage:
//
//	d := dict.New[string, []byte](dict.StringBehavior[[]byte]{})
//	_ = d.Add("key", []byte("value"))
//	v, ok := d.Fetch("key")
//
// Growth:
//
// The bucket array is allocated lazily with InitialSize buckets on the first
// insert and doubles whenever an insert would make the entry count exceed the
// bucket count. Every doubling rehashes all entries at once, so a single
// insert may cost O(n).
package dict
