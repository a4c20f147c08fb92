package kvserver

import (
	"github.com/tidwall/redcon"

	"github.com/yndnr/emberkv/internal/core/domain"
	"github.com/yndnr/emberkv/internal/core/eventloop"
)

// addReply queues p for c and arms the write handler when the queue was
// empty. Exceeding the reply limit closes the client.
func (c *Client) addReply(p []byte) {
	if c.closed {
		return
	}
	s := c.srv
	if c.reply.Len() == 0 {
		if err := s.loop.CreateFileEvent(c.fd, eventloop.Writable, s.sendReplyToClient, nil, c); err != nil {
			s.logger.Warn("error arming reply handler", "id", c.id.String(), "error", err)
			c.free()
			return
		}
	}
	if err := c.reply.Append(p); err != nil {
		s.logger.Warn("closing client with oversized reply", "id", c.id.String(),
			"limit", c.reply.Limit(), "error", domain.ErrBufferLimit.WithCause(err))
		c.free()
	}
}

func (c *Client) addReplyOK() {
	c.srv.scratch = redcon.AppendOK(c.srv.scratch[:0])
	c.addReply(c.srv.scratch)
}

func (c *Client) addReplyStatus(status string) {
	c.srv.scratch = redcon.AppendString(c.srv.scratch[:0], status)
	c.addReply(c.srv.scratch)
}

func (c *Client) addReplyError(err error) {
	c.srv.scratch = redcon.AppendError(c.srv.scratch[:0], domain.ReplyText(err))
	c.addReply(c.srv.scratch)
}

func (c *Client) addReplyInt(n int64) {
	c.srv.scratch = redcon.AppendInt(c.srv.scratch[:0], n)
	c.addReply(c.srv.scratch)
}

func (c *Client) addReplyBool(b bool) {
	if b {
		c.addReplyInt(1)
	} else {
		c.addReplyInt(0)
	}
}

func (c *Client) addReplyBulk(b []byte) {
	c.srv.scratch = redcon.AppendBulk(c.srv.scratch[:0], b)
	c.addReply(c.srv.scratch)
}

func (c *Client) addReplyBulkString(s string) {
	c.srv.scratch = redcon.AppendBulkString(c.srv.scratch[:0], s)
	c.addReply(c.srv.scratch)
}

func (c *Client) addReplyNull() {
	c.srv.scratch = redcon.AppendNull(c.srv.scratch[:0])
	c.addReply(c.srv.scratch)
}

func (c *Client) addReplyArrayLen(n int) {
	c.srv.scratch = redcon.AppendArray(c.srv.scratch[:0], n)
	c.addReply(c.srv.scratch)
}
