package kvserver

import (
	"context"
	"time"

	"github.com/yndnr/emberkv/internal/core/domain"
	"github.com/yndnr/emberkv/internal/storage"
)

type bgSave struct {
	done         chan error
	started      time.Time
	dirtyAtStart int64
}

// snapshot captures the keyspace. Stored values are never mutated in
// place, so the captured slices stay valid while the loop keeps running.
func (s *Server) snapshot() *storage.Snapshot {
	snap := &storage.Snapshot{
		CreatedAt: s.loop.Now(),
		DBs:       make([][]storage.KV, len(s.dbs)),
	}
	for i, ks := range s.dbs {
		if ks.Len() == 0 {
			continue
		}
		pairs := make([]storage.KV, 0, ks.Len())
		for k, v := range ks.All() {
			pairs = append(pairs, storage.KV{Key: k, Value: v})
		}
		snap.DBs[i] = pairs
	}
	return snap
}

// saveSync writes the keyspace on the loop goroutine.
func (s *Server) saveSync() error {
	if s.persister == nil {
		return domain.ErrPersistenceDisabled
	}
	if s.bg != nil {
		return domain.ErrSaveInProgress
	}

	start := time.Now()
	snap := s.snapshot()
	if err := s.persister.Save(context.Background(), snap); err != nil {
		s.logger.Error("save failed", "error", err)
		return domain.ErrSave.WithCause(err)
	}
	s.stats.dirty = 0
	s.markSaved(snap.CreatedAt)
	s.logger.Info("DB saved on disk", "keys", snap.Len(), "elapsed", time.Since(start))
	return nil
}

// startBackgroundSave captures the keyspace and saves it on a separate
// goroutine. The cron reaps the result.
func (s *Server) startBackgroundSave() error {
	if s.persister == nil {
		return domain.ErrPersistenceDisabled
	}
	if s.bg != nil {
		return domain.ErrSaveInProgress
	}

	snap := s.snapshot()
	bg := &bgSave{
		done:         make(chan error, 1),
		started:      snap.CreatedAt,
		dirtyAtStart: s.stats.dirty,
	}
	p := s.persister
	go func() {
		bg.done <- p.Save(context.Background(), snap)
	}()
	s.bg = bg
	s.logger.Info("background saving started", "keys", snap.Len())
	return nil
}

// reapBackgroundSave collects a finished background save without blocking.
func (s *Server) reapBackgroundSave() {
	if s.bg == nil {
		return
	}
	select {
	case err := <-s.bg.done:
		s.finishBackgroundSave(err)
	default:
	}
}

func (s *Server) finishBackgroundSave(err error) {
	bg := s.bg
	s.bg = nil
	if err != nil {
		s.logger.Error("background saving error", "error", err)
		return
	}
	s.stats.dirty -= bg.dirtyAtStart
	if s.stats.dirty < 0 {
		s.stats.dirty = 0
	}
	s.markSaved(bg.started)
	s.logger.Info("background saving terminated with success", "elapsed", s.loop.Now().Sub(bg.started))
}

func (s *Server) markSaved(at time.Time) {
	s.stats.lastSave = at
	s.metrics.SetLastSave(at)
}

// Load fills the keyspace from the persister. Call it before Serve.
func (s *Server) Load(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	start := time.Now()
	n := 0
	err := s.persister.Load(ctx, func(db int, key, value []byte) error {
		if db < 0 || db >= len(s.dbs) {
			return domain.ErrDBIndex.WithDetails("snapshot holds a database beyond the configured count")
		}
		s.dbs[db].Replace(string(key), value)
		n++
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info("DB loaded from disk", "keys", n, "elapsed", time.Since(start))
	return nil
}
