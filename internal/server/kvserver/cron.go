package kvserver

import (
	"time"

	"github.com/yndnr/emberkv/internal/core/eventloop"
)

// serverCron runs housekeeping every CronInterval. Timers are one-shot, so
// it schedules its next run before returning.
func (s *Server) serverCron(l *eventloop.Loop, _ int64, _ any) {
	s.stats.cronLoops++
	now := l.Now()

	if s.stats.cronLoops%statsEveryLoops == 0 {
		s.logKeyspace()
	}
	if s.cfg.IdleTimeout > 0 {
		s.closeTimedoutClients(now)
	}

	s.reapBackgroundSave()
	if s.bg == nil {
		s.applySaveRules(now)
	}

	s.publishInfo()
	s.cronID = l.CreateTimer(s.cfg.CronInterval, s.serverCron, nil, nil)
}

func (s *Server) logKeyspace() {
	for i, ks := range s.dbs {
		if ks.Len() == 0 && ks.Size() == 0 {
			continue
		}
		s.logger.Debug("keyspace", "db", i, "keys", ks.Len(), "slots", ks.Size())
	}
	s.logger.Debug("clients", "connected", s.clients.Cardinality())
}

func (s *Server) closeTimedoutClients(now time.Time) {
	for _, c := range s.clients.ToSlice() {
		if now.Sub(c.lastInteraction) > s.cfg.IdleTimeout {
			s.logger.Debug("closing idle client", "id", c.id.String(), "addr", c.addr)
			c.free()
		}
	}
}

// applySaveRules starts a background save when any rule is satisfied.
func (s *Server) applySaveRules(now time.Time) {
	if s.persister == nil {
		return
	}
	for _, r := range s.cfg.SaveRules {
		if s.stats.dirty >= int64(r.Changes) && now.Sub(s.stats.lastSave) > time.Duration(r.Seconds)*time.Second {
			s.logger.Info("save rule triggered", "changes", s.stats.dirty, "seconds", r.Seconds)
			if err := s.startBackgroundSave(); err != nil {
				s.logger.Warn("background save not started", "error", err)
			}
			return
		}
	}
}
