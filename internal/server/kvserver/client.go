package kvserver

import (
	"errors"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/sys/unix"

	"github.com/yndnr/emberkv/internal/core/command"
	"github.com/yndnr/emberkv/internal/core/domain"
	"github.com/yndnr/emberkv/internal/core/eventloop"
	"github.com/yndnr/emberkv/pkg/dict"
	"github.com/yndnr/emberkv/pkg/dynbuf"
)

// Client is the per-connection state. It is only touched on the loop
// goroutine.
type Client struct {
	srv  *Server
	fd   int
	id   ulid.ULID
	addr string

	db int

	querybuf *dynbuf.Buffer
	argv     [][]byte
	bulklen  int
	pending  *command.Command[*Client]

	reply   *dynbuf.Buffer
	sentlen int

	lastInteraction time.Time
	closeAfterReply bool
	closed          bool
}

// ID returns the client's unique id.
func (c *Client) ID() ulid.ULID { return c.id }

// Addr returns the peer address.
func (c *Client) Addr() string { return c.addr }

// DB returns the selected database index.
func (c *Client) DB() int { return c.db }

// Args returns the arguments of the command being executed, name first.
// The slices are owned by the client and valid until the handler returns;
// values stored in the keyspace may keep them.
func (c *Client) Args() [][]byte { return c.argv }

func (c *Client) keyspace() *dict.Dict[string, []byte] {
	return c.srv.dbs[c.db]
}

func (s *Server) createClient(fd int, addr string) (*Client, error) {
	c := &Client{
		srv:             s,
		fd:              fd,
		id:              ulid.Make(),
		addr:            addr,
		querybuf:        dynbuf.New(0),
		bulklen:         -1,
		reply:           s.newReplyBuffer(),
		lastInteraction: s.loop.Now(),
	}
	c.querybuf.SetLimit(MaxBulkBytes + s.cfg.MaxQueryBytes + 2)

	if err := s.loop.CreateFileEvent(fd, eventloop.Readable, s.readQueryFromClient, nil, c); err != nil {
		return nil, err
	}
	s.clients.Add(c)
	s.stats.numConnections++
	s.metrics.ClientConnected()
	s.logger.Debug("client connected", "id", c.id.String(), "addr", addr)
	return c, nil
}

func (s *Server) newReplyBuffer() *dynbuf.Buffer {
	b := dynbuf.New(0)
	b.SetLimit(s.cfg.MaxReplyBytes)
	return b
}

// free deregisters and closes the client. It is idempotent.
func (c *Client) free() {
	if c.closed {
		return
	}
	c.closed = true

	s := c.srv
	s.loop.DeleteFileEvent(c.fd, eventloop.Readable)
	s.loop.DeleteFileEvent(c.fd, eventloop.Writable)
	_ = unix.Close(c.fd)
	s.clients.Remove(c)
	s.metrics.ClientDisconnected()
	s.logger.Debug("client closed", "id", c.id.String(), "addr", c.addr)
}

func (s *Server) readQueryFromClient(l *eventloop.Loop, fd int, data any, _ eventloop.Mask) {
	c := data.(*Client)

	n, err := unix.Read(fd, s.readBuf)
	if err != nil {
		if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
			return
		}
		s.logger.Debug("reading from client", "id", c.id.String(), "error", domain.ErrIO.WithCause(err))
		c.free()
		return
	}
	if n == 0 {
		s.logger.Debug("client closed connection", "id", c.id.String())
		c.free()
		return
	}

	c.lastInteraction = l.Now()
	if err := c.querybuf.Append(s.readBuf[:n]); err != nil {
		s.logger.Warn("closing client with oversized query", "id", c.id.String(), "error", domain.ErrBufferLimit.WithCause(err))
		c.free()
		return
	}
	c.processInput()
}

func (s *Server) sendReplyToClient(l *eventloop.Loop, fd int, data any, _ eventloop.Mask) {
	c := data.(*Client)

	written := 0
	for c.sentlen < c.reply.Len() {
		n, err := unix.Write(fd, c.reply.Bytes()[c.sentlen:])
		if err != nil {
			if errors.Is(err, unix.EINTR) {
				continue
			}
			if errors.Is(err, unix.EAGAIN) {
				break
			}
			s.logger.Debug("writing to client", "id", c.id.String(), "error", domain.ErrIO.WithCause(err))
			c.free()
			return
		}
		c.sentlen += n
		written += n
	}
	if written > 0 {
		c.lastInteraction = l.Now()
	}
	if c.sentlen < c.reply.Len() {
		return
	}

	c.sentlen = 0
	if c.reply.Cap() > replyShrinkBytes {
		c.reply = s.newReplyBuffer()
	} else {
		c.reply.Reset()
	}
	l.DeleteFileEvent(fd, eventloop.Writable)
	if c.closeAfterReply {
		c.free()
	}
}
