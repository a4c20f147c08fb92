// Package benchmark holds cross-package benchmarks for the keyspace and
// persistence paths.
package benchmark

import (
	"crypto/rand"
	"fmt"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/yndnr/emberkv/internal/storage"
)

// KeyCounts defines the keyspace sizes for benchmarking.
var KeyCounts = []int{10000, 100000, 500000}

// SmallKeyCounts for quick benchmarks.
var SmallKeyCounts = []int{1000, 10000, 50000}

// newKey generates a unique key.
func newKey() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, _ := ulid.New(ulid.Timestamp(time.Now()), entropy)
	return "key:" + strings.ToLower(id.String())
}

func randomValue(size int) []byte {
	v := make([]byte, size)
	rand.Read(v)
	return v
}

// buildSnapshot spreads count keys with 64-byte values over dbs databases.
func buildSnapshot(count, dbs int) *storage.Snapshot {
	snap := &storage.Snapshot{CreatedAt: time.Now(), DBs: make([][]storage.KV, dbs)}
	for i := 0; i < count; i++ {
		db := i % dbs
		snap.DBs[db] = append(snap.DBs[db], storage.KV{Key: newKey(), Value: randomValue(64)})
	}
	return snap
}

// reportMemory reports heap usage after a forced GC.
func reportMemory(b *testing.B, prefix string) {
	var m runtime.MemStats
	runtime.GC()
	runtime.ReadMemStats(&m)
	b.ReportMetric(float64(m.Alloc)/(1024*1024), prefix+"_MB")
	b.ReportMetric(float64(m.NumGC), prefix+"_GC")
}

// runWithKeyCounts runs a benchmark function with various keyspace sizes.
func runWithKeyCounts(b *testing.B, counts []int, benchFn func(b *testing.B, count int)) {
	for _, count := range counts {
		b.Run(fmt.Sprintf("keys_%d", count), func(b *testing.B) {
			benchFn(b, count)
		})
	}
}

func sizeLabel(size int) string {
	switch {
	case size >= 1<<20:
		return fmt.Sprintf("%dMB", size>>20)
	case size >= 1<<10:
		return fmt.Sprintf("%dKB", size>>10)
	default:
		return fmt.Sprintf("%dB", size)
	}
}
