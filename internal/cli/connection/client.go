package connection

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/tidwall/redcon"
)

const (
	readChunk = 16 << 10

	// maxReplyBytes bounds a single buffered reply.
	maxReplyBytes = 1 << 30
)

var (
	ErrProtocol      = errors.New("connection: malformed reply")
	ErrReplyTooLarge = errors.New("connection: reply too large")
	ErrClosed        = errors.New("connection: closed")
)

// Options configures a Client.
type Options struct {
	DialTimeout time.Duration
	// ReadTimeout bounds the wait for one reply. Zero waits forever.
	ReadTimeout time.Duration
}

// DefaultOptions returns the default client options.
func DefaultOptions() Options {
	return Options{
		DialTimeout: 5 * time.Second,
		ReadTimeout: 30 * time.Second,
	}
}

// Client is a connection to one server. It is not safe for concurrent
// use.
type Client struct {
	conn net.Conn
	opts Options
	addr string

	wbuf []byte
	rbuf []byte
}

// Dial connects to addr.
func Dial(ctx context.Context, addr string, opts Options) (*Client, error) {
	d := net.Dialer{Timeout: opts.DialTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", addr, err)
	}
	return NewClient(conn, opts), nil
}

// NewClient wraps an established connection.
func NewClient(conn net.Conn, opts Options) *Client {
	return &Client{
		conn: conn,
		opts: opts,
		addr: conn.RemoteAddr().String(),
	}
}

// Addr returns the server address.
func (c *Client) Addr() string {
	return c.addr
}

// Do sends one command and waits for its reply. Error replies are
// returned as a Reply of KindError, not as an error.
func (c *Client) Do(args ...string) (Reply, error) {
	if err := c.Send(args...); err != nil {
		return Reply{}, err
	}
	return c.Receive()
}

// Send writes one command without waiting for the reply.
func (c *Client) Send(args ...string) error {
	if c.conn == nil {
		return ErrClosed
	}
	buf, err := EncodeCommand(c.wbuf[:0], args)
	if err != nil {
		return err
	}
	c.wbuf = buf
	if _, err := c.conn.Write(buf); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	return nil
}

// Receive reads the next reply. It returns io.EOF when the server closed
// the connection between replies.
func (c *Client) Receive() (Reply, error) {
	if c.conn == nil {
		return Reply{}, ErrClosed
	}
	if c.opts.ReadTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.opts.ReadTimeout))
		defer c.conn.SetReadDeadline(time.Time{})
	}

	for {
		if len(c.rbuf) > 0 {
			if !validReplyType(c.rbuf[0]) {
				return Reply{}, fmt.Errorf("%w: unexpected %q", ErrProtocol, c.rbuf[0])
			}
			n, v := redcon.ReadNextRESP(c.rbuf)
			if n > 0 {
				r := fromRESP(v)
				c.rbuf = append(c.rbuf[:0], c.rbuf[n:]...)
				return r, nil
			}
			if len(c.rbuf) > maxReplyBytes {
				return Reply{}, ErrReplyTooLarge
			}
		}

		if err := c.fill(); err != nil {
			if errors.Is(err, io.EOF) && len(c.rbuf) > 0 {
				return Reply{}, fmt.Errorf("%w: truncated", ErrProtocol)
			}
			return Reply{}, err
		}
	}
}

func (c *Client) fill() error {
	if cap(c.rbuf)-len(c.rbuf) < readChunk {
		grown := make([]byte, len(c.rbuf), 2*cap(c.rbuf)+readChunk)
		copy(grown, c.rbuf)
		c.rbuf = grown
	}
	n, err := c.conn.Read(c.rbuf[len(c.rbuf):cap(c.rbuf)])
	c.rbuf = c.rbuf[:len(c.rbuf)+n]
	if n > 0 {
		return nil
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	return err
}

// Close closes the connection.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	return err
}
