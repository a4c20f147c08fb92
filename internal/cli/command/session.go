package command

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/yndnr/emberkv/internal/cli/connection"
	"github.com/yndnr/emberkv/internal/cli/output"
	"github.com/yndnr/emberkv/internal/cli/repl"
)

// session owns the connection and tracks the selected database. It
// implements repl.Executor.
type session struct {
	flags  *GlobalFlags
	out    io.Writer
	format output.Formatter
	client *connection.Client
	db     int
}

var _ repl.Executor = (*session)(nil)

func newSession(flags *GlobalFlags, out io.Writer) *session {
	return &session{
		flags:  flags,
		out:    out,
		format: output.NewFormatter(flags.Output),
	}
}

// connect dials the server and selects the configured database.
func (s *session) connect(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	client, err := connection.Dial(ctx, s.flags.Addr(), s.flags.Options)
	if err != nil {
		return err
	}
	s.client = client
	s.db = 0

	if s.flags.DB != 0 {
		r, err := client.Do("select", strconv.Itoa(s.flags.DB))
		if err != nil {
			s.close()
			return err
		}
		if err := r.Err(); err != nil {
			s.close()
			return fmt.Errorf("select %d: %w", s.flags.DB, err)
		}
		s.db = s.flags.DB
	}
	return nil
}

func (s *session) close() {
	if s.client != nil {
		s.client.Close()
		s.client = nil
	}
}

// do sends args, prints the reply and returns it.
func (s *session) do(args []string) (connection.Reply, error) {
	if s.client == nil {
		if err := s.connect(context.Background()); err != nil {
			return connection.Reply{}, err
		}
	}

	r, err := s.client.Do(args...)
	if err != nil {
		if errors.Is(err, connection.ErrInlineArg) || errors.Is(err, connection.ErrEmptyCommand) {
			return connection.Reply{}, err
		}
		s.close()
		return connection.Reply{}, fmt.Errorf("connection lost: %w", err)
	}

	if strings.EqualFold(args[0], "select") && r.Kind == connection.KindStatus && len(args) == 2 {
		if n, err := strconv.Atoi(args[1]); err == nil {
			s.db = n
		}
	}

	if err := s.format.Format(s.out, r); err != nil {
		return r, err
	}
	return r, nil
}

// Execute runs one REPL command. QUIT waits for the server to close the
// connection and ends the session.
func (s *session) Execute(args []string) error {
	if strings.EqualFold(args[0], "quit") {
		if s.client != nil {
			if err := s.client.Send(args...); err == nil {
				s.client.Receive()
			}
		}
		s.close()
		return repl.ErrExit
	}
	_, err := s.do(args)
	return err
}

// Prompt shows the server address and a non-default database.
func (s *session) Prompt() string {
	if s.client == nil {
		return "not connected> "
	}
	if s.db != 0 {
		return fmt.Sprintf("%s[%d]> ", s.flags.Addr(), s.db)
	}
	return s.flags.Addr() + "> "
}
