package benchmark

import (
	"math/rand/v2"
	"testing"

	"github.com/yndnr/emberkv/pkg/dict"
)

func newKeyspace(keys []string) *dict.Dict[string, []byte] {
	d := dict.New[string, []byte](dict.StringBehavior[[]byte]{})
	value := randomValue(64)
	for _, k := range keys {
		d.Replace(k, value)
	}
	return d
}

func makeKeys(count int) []string {
	keys := make([]string, count)
	for i := range keys {
		keys[i] = newKey()
	}
	return keys
}

// BenchmarkDictInsert measures filling an empty table, rehashes included.
func BenchmarkDictInsert(b *testing.B) {
	runWithKeyCounts(b, SmallKeyCounts, func(b *testing.B, count int) {
		keys := makeKeys(count)
		value := randomValue(64)

		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			d := dict.New[string, []byte](dict.StringBehavior[[]byte]{})
			for _, k := range keys {
				if err := d.Add(k, value); err != nil {
					b.Fatalf("Add failed: %v", err)
				}
			}
		}
	})
}

func BenchmarkDictFetch(b *testing.B) {
	runWithKeyCounts(b, KeyCounts, func(b *testing.B, count int) {
		keys := makeKeys(count)
		d := newKeyspace(keys)
		rng := rand.New(rand.NewPCG(1, 2))

		b.ReportAllocs()
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if _, ok := d.Fetch(keys[rng.IntN(count)]); !ok {
				b.Fatal("key not found")
			}
		}
		b.StopTimer()
		reportMemory(b, "mem")
	})
}

func BenchmarkDictFetchMiss(b *testing.B) {
	keys := makeKeys(100000)
	d := newKeyspace(keys)
	missing := makeKeys(1024)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, ok := d.Fetch(missing[i%len(missing)]); ok {
			b.Fatal("unexpected hit")
		}
	}
}

func BenchmarkDictDeleteInsert(b *testing.B) {
	keys := makeKeys(100000)
	d := newKeyspace(keys)
	value := randomValue(64)

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		k := keys[i%len(keys)]
		if err := d.Delete(k); err != nil {
			b.Fatalf("Delete failed: %v", err)
		}
		if err := d.Add(k, value); err != nil {
			b.Fatalf("Add failed: %v", err)
		}
	}
}

func BenchmarkDictRandomEntry(b *testing.B) {
	d := newKeyspace(makeKeys(100000))
	rng := rand.New(rand.NewPCG(1, 2))

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if d.RandomEntry(rng) == nil {
			b.Fatal("RandomEntry returned nil")
		}
	}
}

func BenchmarkDictIterate(b *testing.B) {
	runWithKeyCounts(b, SmallKeyCounts, func(b *testing.B, count int) {
		d := newKeyspace(makeKeys(count))

		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			n := 0
			for range d.All() {
				n++
			}
			if n != count {
				b.Fatalf("iterated %d keys, want %d", n, count)
			}
		}
	})
}
