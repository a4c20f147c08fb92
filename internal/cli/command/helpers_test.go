package command

import (
	"bytes"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/urfave/cli/v2"
)

// fakeServer answers each request with the reply registered for its
// command name and records what it received.
type fakeServer struct {
	ln      net.Listener
	mu      sync.Mutex
	replies map[string]string
	reqs    []string
}

func newFakeServer(t *testing.T, replies map[string]string) *fakeServer {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	s := &fakeServer{ln: ln, replies: replies}
	go s.serve()
	t.Cleanup(func() { ln.Close() })
	return s
}

func (s *fakeServer) serve() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.handle(conn)
	}
}

func (s *fakeServer) handle(conn net.Conn) {
	defer conn.Close()
	buf := make([]byte, 4096)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			return
		}
		req := string(buf[:n])
		name := strings.ToLower(strings.Fields(req)[0])

		s.mu.Lock()
		s.reqs = append(s.reqs, req)
		reply, ok := s.replies[name]
		s.mu.Unlock()

		if name == "quit" {
			return
		}
		if !ok {
			reply = "-ERR unknown command\r\n"
		}
		if _, err := conn.Write([]byte(reply)); err != nil {
			return
		}
	}
}

func (s *fakeServer) port() string {
	return strconv.Itoa(s.ln.Addr().(*net.TCPAddr).Port)
}

func (s *fakeServer) requests() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.reqs...)
}

// runApp runs the CLI against srv and returns its output.
func runApp(t *testing.T, srv *fakeServer, args ...string) (string, error) {
	t.Helper()
	app := App()
	var out bytes.Buffer
	app.Writer = &out
	app.ErrWriter = &out
	app.ExitErrHandler = func(*cli.Context, error) {}

	argv := append([]string{"emberkv-cli", "-H", "127.0.0.1", "-p", srv.port()}, args...)
	err := app.Run(argv)
	return out.String(), err
}
