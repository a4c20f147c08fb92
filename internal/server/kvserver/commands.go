package kvserver

import (
	"errors"
	"math"
	"strconv"

	"github.com/tidwall/match"

	"github.com/yndnr/emberkv/internal/core/command"
	"github.com/yndnr/emberkv/internal/core/domain"
	"github.com/yndnr/emberkv/pkg/dict"
)

func (s *Server) registerCommands() {
	const (
		inline = command.Inline
		bulk   = command.Bulk
	)
	s.commands.MustRegister(
		&command.Command[*Client]{Name: "get", Proc: s.getCommand, Arity: 2, Flags: inline},
		&command.Command[*Client]{Name: "set", Proc: s.setCommand, Arity: 3, Flags: bulk},
		&command.Command[*Client]{Name: "setnx", Proc: s.setnxCommand, Arity: 3, Flags: bulk},
		&command.Command[*Client]{Name: "del", Proc: s.delCommand, Arity: 2, Flags: inline},
		&command.Command[*Client]{Name: "exists", Proc: s.existsCommand, Arity: 2, Flags: inline},
		&command.Command[*Client]{Name: "incr", Proc: s.incrCommand, Arity: 2, Flags: inline},
		&command.Command[*Client]{Name: "decr", Proc: s.decrCommand, Arity: 2, Flags: inline},
		&command.Command[*Client]{Name: "incrby", Proc: s.incrbyCommand, Arity: 3, Flags: inline},
		&command.Command[*Client]{Name: "decrby", Proc: s.decrbyCommand, Arity: 3, Flags: inline},
		&command.Command[*Client]{Name: "select", Proc: s.selectCommand, Arity: 2, Flags: inline},
		&command.Command[*Client]{Name: "randomkey", Proc: s.randomkeyCommand, Arity: 1, Flags: inline},
		&command.Command[*Client]{Name: "keys", Proc: s.keysCommand, Arity: 2, Flags: inline},
		&command.Command[*Client]{Name: "dbsize", Proc: s.dbsizeCommand, Arity: 1, Flags: inline},
		&command.Command[*Client]{Name: "rename", Proc: s.renameCommand, Arity: 3, Flags: inline},
		&command.Command[*Client]{Name: "renamenx", Proc: s.renamenxCommand, Arity: 3, Flags: inline},
		&command.Command[*Client]{Name: "move", Proc: s.moveCommand, Arity: 3, Flags: inline},
		&command.Command[*Client]{Name: "type", Proc: s.typeCommand, Arity: 2, Flags: inline},
		&command.Command[*Client]{Name: "flushdb", Proc: s.flushdbCommand, Arity: 1, Flags: inline},
		&command.Command[*Client]{Name: "flushall", Proc: s.flushallCommand, Arity: 1, Flags: inline},
		&command.Command[*Client]{Name: "save", Proc: s.saveCommand, Arity: 1, Flags: inline},
		&command.Command[*Client]{Name: "bgsave", Proc: s.bgsaveCommand, Arity: 1, Flags: inline},
		&command.Command[*Client]{Name: "lastsave", Proc: s.lastsaveCommand, Arity: 1, Flags: inline},
		&command.Command[*Client]{Name: "shutdown", Proc: s.shutdownCommand, Arity: 1, Flags: inline},
		&command.Command[*Client]{Name: "info", Proc: s.infoCommand, Arity: 1, Flags: inline},
		&command.Command[*Client]{Name: "ping", Proc: s.pingCommand, Arity: 1, Flags: inline},
		&command.Command[*Client]{Name: "echo", Proc: s.echoCommand, Arity: 2, Flags: bulk},
		&command.Command[*Client]{Name: "quit", Proc: s.quitCommand, Arity: 1, Flags: inline},
	)
}

// ============================================================================
// String commands
// ============================================================================

func (s *Server) getCommand(c *Client) {
	v, ok := c.keyspace().Fetch(string(c.argv[1]))
	if !ok {
		c.addReplyNull()
		return
	}
	c.addReplyBulk(v)
}

func (s *Server) setCommand(c *Client) {
	c.keyspace().Replace(string(c.argv[1]), c.argv[2])
	s.stats.dirty++
	c.addReplyOK()
}

func (s *Server) setnxCommand(c *Client) {
	if err := c.keyspace().Add(string(c.argv[1]), c.argv[2]); err != nil {
		c.addReplyInt(0)
		return
	}
	s.stats.dirty++
	c.addReplyInt(1)
}

func (s *Server) delCommand(c *Client) {
	if err := c.keyspace().Delete(string(c.argv[1])); err != nil {
		c.addReplyInt(0)
		return
	}
	s.stats.dirty++
	c.addReplyInt(1)
}

func (s *Server) existsCommand(c *Client) {
	c.addReplyBool(c.keyspace().Find(string(c.argv[1])) != nil)
}

func (s *Server) incrCommand(c *Client) { s.incrDecr(c, 1) }

func (s *Server) decrCommand(c *Client) { s.incrDecr(c, -1) }

func (s *Server) incrbyCommand(c *Client) {
	delta, err := strconv.ParseInt(string(c.argv[2]), 10, 64)
	if err != nil {
		c.addReplyError(domain.ErrNotInteger)
		return
	}
	s.incrDecr(c, delta)
}

func (s *Server) decrbyCommand(c *Client) {
	delta, err := strconv.ParseInt(string(c.argv[2]), 10, 64)
	if err != nil || delta == math.MinInt64 {
		c.addReplyError(domain.ErrNotInteger)
		return
	}
	s.incrDecr(c, -delta)
}

// incrDecr adds delta to the integer stored at the key. A missing key
// counts as 0.
func (s *Server) incrDecr(c *Client, delta int64) {
	key := string(c.argv[1])
	ks := c.keyspace()

	var cur int64
	if v, ok := ks.Fetch(key); ok {
		n, err := strconv.ParseInt(string(v), 10, 64)
		if err != nil {
			c.addReplyError(domain.ErrNotInteger)
			return
		}
		cur = n
	}
	if (delta > 0 && cur > math.MaxInt64-delta) || (delta < 0 && cur < math.MinInt64-delta) {
		c.addReplyError(domain.ErrNotInteger.WithDetails("increment or decrement would overflow"))
		return
	}
	cur += delta

	ks.Replace(key, strconv.AppendInt(nil, cur, 10))
	s.stats.dirty++
	c.addReplyInt(cur)
}

// ============================================================================
// Keyspace commands
// ============================================================================

func (s *Server) selectCommand(c *Client) {
	idx, ok := s.dbIndex(c.argv[1])
	if !ok {
		c.addReplyError(domain.ErrDBIndex)
		return
	}
	c.db = idx
	c.addReplyOK()
}

func (s *Server) dbIndex(arg []byte) (int, bool) {
	idx, err := strconv.Atoi(string(arg))
	if err != nil || idx < 0 || idx >= len(s.dbs) {
		return 0, false
	}
	return idx, true
}

func (s *Server) randomkeyCommand(c *Client) {
	e := c.keyspace().RandomEntry(nil)
	if e == nil {
		c.addReplyNull()
		return
	}
	c.addReplyBulkString(e.Key)
}

func (s *Server) keysCommand(c *Client) {
	pattern := string(c.argv[1])
	var keys []string
	for k := range c.keyspace().All() {
		if match.Match(k, pattern) {
			keys = append(keys, k)
		}
	}
	c.addReplyArrayLen(len(keys))
	for _, k := range keys {
		c.addReplyBulkString(k)
	}
}

func (s *Server) dbsizeCommand(c *Client) {
	c.addReplyInt(int64(c.keyspace().Len()))
}

func (s *Server) renameCommand(c *Client) { s.renameGeneric(c, false) }

func (s *Server) renamenxCommand(c *Client) { s.renameGeneric(c, true) }

func (s *Server) renameGeneric(c *Client, nx bool) {
	src, dst := string(c.argv[1]), string(c.argv[2])
	if src == dst {
		c.addReplyError(domain.ErrSameKey)
		return
	}
	ks := c.keyspace()
	v, ok := ks.Fetch(src)
	if !ok {
		c.addReplyError(domain.ErrNoSuchKey)
		return
	}
	if nx {
		if err := ks.Add(dst, v); errors.Is(err, dict.ErrKeyExists) {
			c.addReplyInt(0)
			return
		}
	} else {
		ks.Replace(dst, v)
	}
	ks.Unlink(src)
	s.stats.dirty++
	if nx {
		c.addReplyInt(1)
	} else {
		c.addReplyOK()
	}
}

func (s *Server) moveCommand(c *Client) {
	idx, ok := s.dbIndex(c.argv[2])
	if !ok {
		c.addReplyError(domain.ErrDBIndex)
		return
	}
	if idx == c.db {
		c.addReplyError(domain.ErrSameKey)
		return
	}

	key := string(c.argv[1])
	src := c.keyspace()
	v, ok := src.Fetch(key)
	if !ok {
		c.addReplyInt(0)
		return
	}
	if err := s.dbs[idx].Add(key, v); err != nil {
		c.addReplyInt(0)
		return
	}
	src.Unlink(key)
	s.stats.dirty++
	c.addReplyInt(1)
}

func (s *Server) typeCommand(c *Client) {
	if c.keyspace().Find(string(c.argv[1])) == nil {
		c.addReplyStatus("none")
		return
	}
	c.addReplyStatus("string")
}

func (s *Server) flushdbCommand(c *Client) {
	ks := c.keyspace()
	s.stats.dirty += int64(ks.Len())
	ks.Empty()
	c.addReplyOK()
}

func (s *Server) flushallCommand(c *Client) {
	for _, ks := range s.dbs {
		s.stats.dirty += int64(ks.Len())
		ks.Empty()
	}
	if s.persister != nil {
		if err := s.saveSync(); err != nil {
			s.logger.Warn("save after flushall failed", "error", err)
		}
	}
	c.addReplyOK()
}

// ============================================================================
// Persistence commands
// ============================================================================

func (s *Server) saveCommand(c *Client) {
	if err := s.saveSync(); err != nil {
		c.addReplyError(err)
		return
	}
	c.addReplyOK()
}

func (s *Server) bgsaveCommand(c *Client) {
	if err := s.startBackgroundSave(); err != nil {
		c.addReplyError(err)
		return
	}
	c.addReplyStatus("Background saving started")
}

func (s *Server) lastsaveCommand(c *Client) {
	c.addReplyInt(s.stats.lastSave.Unix())
}

func (s *Server) shutdownCommand(c *Client) {
	s.logger.Warn("shutdown requested by client", "id", c.id.String(), "addr", c.addr)
	if err := s.prepareShutdown(); err != nil {
		s.logger.Error("saving before shutdown failed", "error", err)
		c.addReplyError(domain.ErrShutdownSave)
		return
	}
	s.logger.Info("server is now ready to exit")
	if s.onShutdown != nil {
		s.onShutdown()
	}
}

// ============================================================================
// Connection and server commands
// ============================================================================

func (s *Server) infoCommand(c *Client) {
	c.addReplyBulkString(s.collectInfo().Text())
}

func (s *Server) pingCommand(c *Client) {
	c.addReplyStatus("PONG")
}

func (s *Server) echoCommand(c *Client) {
	c.addReplyBulk(c.argv[1])
}

func (s *Server) quitCommand(c *Client) {
	c.closeAfterReply = true
	if c.reply.Len() == 0 {
		c.free()
	}
}
