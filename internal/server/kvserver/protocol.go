package kvserver

import (
	"bytes"

	"github.com/yndnr/emberkv/internal/core/command"
	"github.com/yndnr/emberkv/internal/core/domain"
	"github.com/yndnr/emberkv/pkg/dynbuf"
)

var space = []byte{' '}

// processInput executes every complete request buffered for c.
func (c *Client) processInput() {
	for c.querybuf.Len() > 0 && !c.closed && !c.closeAfterReply {
		var more bool
		if c.bulklen < 0 {
			more = c.processHeader()
		} else {
			more = c.processBulk()
		}
		if !more {
			return
		}
	}
}

// processHeader parses one header line. It reports whether another
// request may be processed from the buffer.
func (c *Client) processHeader() bool {
	idx := c.querybuf.IndexByte('\n')
	if idx < 0 {
		if c.querybuf.Len() > c.srv.cfg.MaxQueryBytes {
			c.srv.logger.Debug("client protocol error", "id", c.id.String(),
				"error", domain.ErrQueryTooLarge.WithDetails(c.addr))
			c.free()
		}
		return false
	}

	end := idx - 1
	if end >= 0 && c.querybuf.Bytes()[end] == '\r' {
		end--
	}
	c.argv = c.argv[:0]
	if end >= 0 {
		c.argv = splitArgs(c.argv, c.querybuf.Range(0, end))
	}
	c.querybuf.Consume(idx + 1)

	if len(c.argv) == 0 {
		return true
	}
	return c.processCommand()
}

// splitArgs appends the space separated tokens of line to dst, keeping at
// most MaxArgs. Split drops empty tokens and returns copies, so the
// arguments never alias the query buffer.
func splitArgs(dst [][]byte, line *dynbuf.Buffer) [][]byte {
	for _, tok := range line.Split(space) {
		if len(dst) == MaxArgs {
			break
		}
		dst = append(dst, tok.Bytes())
	}
	return dst
}

func (c *Client) processCommand() bool {
	cmd, ok := c.srv.commands.Lookup(c.argv[0])
	if !ok {
		c.addReplyError(domain.ErrUnknownCommand)
		c.reset()
		return true
	}
	if !cmd.CheckArity(len(c.argv)) {
		c.addReplyError(domain.ErrWrongArity)
		c.reset()
		return true
	}

	// A bulk command whose last token is a decimal count waits for that
	// many payload bytes. Any other last token is an inline argument.
	if cmd.IsBulk() {
		last := c.argv[len(c.argv)-1]
		if isDecimal(last) {
			n, ok := parseBulkCount(last)
			if !ok {
				c.addReplyError(domain.ErrInvalidBulkCount)
				c.reset()
				return true
			}
			c.argv = c.argv[:len(c.argv)-1]
			c.bulklen = n
			c.pending = cmd
			return true
		}
	}

	c.call(cmd)
	return !c.closed
}

// processBulk completes a bulk command once its payload and the two
// terminator bytes are buffered.
func (c *Client) processBulk() bool {
	need := c.bulklen + 2
	if c.querybuf.Len() < need {
		return false
	}
	c.argv = append(c.argv, bytes.Clone(c.querybuf.Bytes()[:c.bulklen]))
	c.querybuf.Consume(need)

	cmd := c.pending
	c.call(cmd)
	return !c.closed
}

func (c *Client) call(cmd *command.Command[*Client]) {
	c.srv.stats.numCommands++
	c.srv.metrics.CommandProcessed(cmd.Name)
	cmd.Proc(c)
	c.reset()
}

func (c *Client) reset() {
	c.argv = c.argv[:0]
	c.bulklen = -1
	c.pending = nil
}

func isDecimal(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	for _, ch := range b {
		if ch < '0' || ch > '9' {
			return false
		}
	}
	return true
}

// parseBulkCount parses a non-negative decimal payload length.
func parseBulkCount(b []byte) (int, bool) {
	if len(b) == 0 || len(b) > 10 {
		return 0, false
	}
	n := 0
	for _, ch := range b {
		if ch < '0' || ch > '9' {
			return 0, false
		}
		n = n*10 + int(ch-'0')
	}
	if n > MaxBulkBytes {
		return 0, false
	}
	return n, true
}
