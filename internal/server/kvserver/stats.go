package kvserver

import (
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/yndnr/emberkv/internal/infra/buildinfo"
)

type stats struct {
	startTime      time.Time
	lastSave       time.Time
	numConnections int64
	numCommands    int64
	dirty          int64
	cronLoops      int64
}

// DBInfo describes one non-empty database.
type DBInfo struct {
	DB    int `json:"db"`
	Keys  int `json:"keys"`
	Slots int `json:"slots"`
}

// Info is a point-in-time view of server statistics.
type Info struct {
	Version              string    `json:"version"`
	UptimeSeconds        int64     `json:"uptime_seconds"`
	ConnectedClients     int       `json:"connected_clients"`
	UsedMemory           uint64    `json:"used_memory"`
	ChangesSinceLastSave int64     `json:"changes_since_last_save"`
	BgsaveInProgress     bool      `json:"bgsave_in_progress"`
	LastSave             time.Time `json:"last_save_time"`
	TotalConnections     int64     `json:"total_connections_received"`
	TotalCommands        int64     `json:"total_commands_processed"`
	Keyspace             []DBInfo  `json:"keyspace"`
}

// Text renders the INFO reply body.
func (i Info) Text() string {
	bg := 0
	if i.BgsaveInProgress {
		bg = 1
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "emberkv_version:%s\r\n", i.Version)
	fmt.Fprintf(&sb, "uptime_in_seconds:%d\r\n", i.UptimeSeconds)
	fmt.Fprintf(&sb, "uptime_in_days:%d\r\n", i.UptimeSeconds/86400)
	fmt.Fprintf(&sb, "connected_clients:%d\r\n", i.ConnectedClients)
	fmt.Fprintf(&sb, "used_memory:%d\r\n", i.UsedMemory)
	fmt.Fprintf(&sb, "changes_since_last_save:%d\r\n", i.ChangesSinceLastSave)
	fmt.Fprintf(&sb, "bgsave_in_progress:%d\r\n", bg)
	fmt.Fprintf(&sb, "last_save_time:%d\r\n", i.LastSave.Unix())
	fmt.Fprintf(&sb, "total_connections_received:%d\r\n", i.TotalConnections)
	fmt.Fprintf(&sb, "total_commands_processed:%d\r\n", i.TotalCommands)
	sb.WriteString("role:master\r\n")
	for _, db := range i.Keyspace {
		fmt.Fprintf(&sb, "db%d:keys=%d\r\n", db.DB, db.Keys)
	}
	return sb.String()
}

func (s *Server) collectInfo() Info {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	info := Info{
		Version:              buildinfo.Get().Version,
		UptimeSeconds:        int64(s.loop.Now().Sub(s.stats.startTime) / time.Second),
		ConnectedClients:     s.clients.Cardinality(),
		UsedMemory:           ms.HeapAlloc,
		ChangesSinceLastSave: s.stats.dirty,
		BgsaveInProgress:     s.bg != nil,
		LastSave:             s.stats.lastSave,
		TotalConnections:     s.stats.numConnections,
		TotalCommands:        s.stats.numCommands,
	}
	for i, ks := range s.dbs {
		if ks.Len() == 0 {
			continue
		}
		info.Keyspace = append(info.Keyspace, DBInfo{DB: i, Keys: ks.Len(), Slots: ks.Size()})
	}
	return info
}

// publishInfo refreshes the snapshot returned by Info and the gauges.
func (s *Server) publishInfo() {
	info := s.collectInfo()
	s.info.Store(&info)

	if s.metrics == nil {
		return
	}
	var rehashes int64
	for i, ks := range s.dbs {
		s.metrics.SetKeys(i, ks.Len())
		rehashes += int64(ks.Rehashes())
	}
	s.metrics.SetRehashes(rehashes)
}

// Info returns the statistics published by the last housekeeping run. It
// is safe for concurrent use.
func (s *Server) Info() Info {
	if p := s.info.Load(); p != nil {
		return *p
	}
	return Info{}
}
