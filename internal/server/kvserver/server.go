package kvserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync/atomic"

	mapset "github.com/deckarep/golang-set/v2"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"

	"github.com/yndnr/emberkv/internal/core/command"
	"github.com/yndnr/emberkv/internal/core/eventloop"
	"github.com/yndnr/emberkv/internal/storage"
	"github.com/yndnr/emberkv/internal/telemetry/metric"
	"github.com/yndnr/emberkv/pkg/dict"
)

const listenBacklog = 511

var (
	// ErrNotListening is returned by Serve before a successful Listen.
	ErrNotListening = errors.New("kvserver: not listening")
	// ErrAlreadyListening is returned by a second Listen.
	ErrAlreadyListening = errors.New("kvserver: already listening")
)

// Server is a single-threaded key-value protocol server.
type Server struct {
	cfg        Config
	logger     *slog.Logger
	loopOpts   []eventloop.Option
	persister  storage.Persister
	metrics    *metric.Registry
	onShutdown func()

	loop     *eventloop.Loop
	commands *command.Table[*Client]
	dbs      []*dict.Dict[string, []byte]
	clients  mapset.Set[*Client]
	limiter  *rate.Limiter

	listenFd int
	addr     string
	wakeR    int
	wakeW    int
	cronID   int64

	readBuf []byte
	scratch []byte

	stats stats
	bg    *bgSave
	info  atomic.Pointer[Info]

	closed atomic.Bool
}

// New creates a Server with an empty keyspace. It does not listen yet.
func New(cfg Config, opts ...Option) (*Server, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	s := &Server{
		cfg:      cfg,
		commands: command.NewTable[*Client](),
		clients:  mapset.NewThreadUnsafeSet[*Client](),
		listenFd: -1,
		wakeR:    -1,
		wakeW:    -1,
		readBuf:  make([]byte, readChunk),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	s.logger = s.logger.With("component", "kvserver")

	if cfg.AcceptRate > 0 {
		burst := int(cfg.AcceptRate)
		if burst < 1 {
			burst = 1
		}
		s.limiter = rate.NewLimiter(rate.Limit(cfg.AcceptRate), burst)
	}

	loopOpts := []eventloop.Option{eventloop.WithLogger(s.logger)}
	if s.metrics != nil {
		loopOpts = append(loopOpts, eventloop.WithIterationHook(s.metrics.ObserveIteration))
	}
	loop, err := eventloop.New(append(loopOpts, s.loopOpts...)...)
	if err != nil {
		return nil, fmt.Errorf("kvserver: create event loop: %w", err)
	}
	s.loop = loop

	s.dbs = make([]*dict.Dict[string, []byte], cfg.Databases)
	for i := range s.dbs {
		s.dbs[i] = dict.New[string, []byte](dict.StringBehavior[[]byte]{})
	}
	s.registerCommands()

	if err := s.openWakePipe(); err != nil {
		_ = loop.Close()
		return nil, err
	}

	now := loop.Now()
	s.stats.startTime = now
	s.stats.lastSave = now
	s.cronID = loop.CreateTimer(cfg.CronInterval, s.serverCron, nil, nil)
	return s, nil
}

func (s *Server) openWakePipe() error {
	p := make([]int, 2)
	if err := unix.Pipe(p); err != nil {
		return fmt.Errorf("kvserver: wake pipe: %w", err)
	}
	for _, fd := range p {
		unix.CloseOnExec(fd)
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = unix.Close(p[0])
			_ = unix.Close(p[1])
			return fmt.Errorf("kvserver: wake pipe: %w", err)
		}
	}
	if err := s.loop.CreateFileEvent(p[0], eventloop.Readable, s.handleWake, nil, nil); err != nil {
		_ = unix.Close(p[0])
		_ = unix.Close(p[1])
		return fmt.Errorf("kvserver: wake pipe: %w", err)
	}
	s.wakeR, s.wakeW = p[0], p[1]
	return nil
}

// Listen binds the configured address and registers the accept handler.
func (s *Server) Listen() error {
	if s.listenFd >= 0 {
		return ErrAlreadyListening
	}
	fd, addr, err := listenTCP(s.cfg.Bind, s.cfg.Port)
	if err != nil {
		return err
	}
	if err := s.loop.CreateFileEvent(fd, eventloop.Readable, s.acceptHandler, nil, nil); err != nil {
		_ = unix.Close(fd)
		return fmt.Errorf("kvserver: register listener: %w", err)
	}
	s.listenFd = fd
	s.addr = addr
	return nil
}

// Addr returns the bound listen address, or "" before Listen.
func (s *Server) Addr() string {
	return s.addr
}

// Serve runs the event loop until SHUTDOWN, Shutdown or a poller failure.
func (s *Server) Serve() error {
	if s.listenFd < 0 {
		return ErrNotListening
	}
	s.publishInfo()
	s.logger.Info("ready to accept connections", "addr", s.addr, "databases", len(s.dbs))
	err := s.loop.Run()
	if err != nil {
		s.logger.Error("event loop failed", "error", err)
	}
	return err
}

// Shutdown asks a running Serve to stop. It is safe for concurrent use
// and may be called more than once.
func (s *Server) Shutdown() {
	if s.closed.Load() {
		return
	}
	if _, err := unix.Write(s.wakeW, []byte{1}); err != nil && !errors.Is(err, unix.EAGAIN) {
		s.logger.Warn("wake write failed", "error", err)
	}
}

func (s *Server) handleWake(l *eventloop.Loop, fd int, _ any, _ eventloop.Mask) {
	var buf [64]byte
	for {
		n, err := unix.Read(fd, buf[:])
		if err != nil || n <= 0 {
			break
		}
	}
	if l.Stopped() {
		return
	}
	s.logger.Info("shutdown requested")
	if err := s.prepareShutdown(); err != nil {
		s.logger.Error("saving before shutdown failed, exiting anyway", "error", err)
		l.Stop()
	}
}

// prepareShutdown waits for a running background save, performs the final
// save when configured and stops the loop. The loop keeps running when the
// final save fails.
func (s *Server) prepareShutdown() error {
	if s.bg != nil {
		s.logger.Info("waiting for background save before shutdown")
		s.finishBackgroundSave(<-s.bg.done)
	}
	if s.cfg.SaveOnShutdown && s.persister != nil {
		if err := s.saveSync(); err != nil {
			return err
		}
	}
	s.loop.Stop()
	return nil
}

// Close releases every client, the listener and the event loop. Call it
// after Serve has returned.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	for _, c := range s.clients.ToSlice() {
		c.free()
	}
	if s.listenFd >= 0 {
		s.loop.DeleteFileEvent(s.listenFd, eventloop.Readable)
		_ = unix.Close(s.listenFd)
		s.listenFd = -1
	}
	s.loop.DeleteFileEvent(s.wakeR, eventloop.Readable)
	err := s.loop.Close()
	_ = unix.Close(s.wakeR)
	_ = unix.Close(s.wakeW)
	return err
}

func listenTCP(bind string, port int) (int, string, error) {
	ip := net.IPv4zero
	if bind != "" {
		ip = net.ParseIP(bind)
		if ip == nil {
			return -1, "", fmt.Errorf("kvserver: invalid bind address %q", bind)
		}
	}

	family := unix.AF_INET
	var sa unix.Sockaddr
	if ip4 := ip.To4(); ip4 != nil {
		a := &unix.SockaddrInet4{Port: port}
		copy(a.Addr[:], ip4)
		sa = a
	} else {
		family = unix.AF_INET6
		a := &unix.SockaddrInet6{Port: port}
		copy(a.Addr[:], ip.To16())
		sa = a
	}

	fd, err := unix.Socket(family, unix.SOCK_STREAM, 0)
	if err != nil {
		return -1, "", fmt.Errorf("kvserver: socket: %w", err)
	}
	unix.CloseOnExec(fd)

	fail := func(op string, err error) (int, string, error) {
		_ = unix.Close(fd)
		return -1, "", fmt.Errorf("kvserver: %s %s: %w", op, net.JoinHostPort(bind, strconv.Itoa(port)), err)
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		return fail("setsockopt", err)
	}
	if err := unix.Bind(fd, sa); err != nil {
		return fail("bind", err)
	}
	if err := unix.Listen(fd, listenBacklog); err != nil {
		return fail("listen", err)
	}
	if err := unix.SetNonblock(fd, true); err != nil {
		return fail("set nonblock", err)
	}
	local, err := unix.Getsockname(fd)
	if err != nil {
		return fail("getsockname", err)
	}
	return fd, sockaddrString(local), nil
}

func sockaddrString(sa unix.Sockaddr) string {
	switch a := sa.(type) {
	case *unix.SockaddrInet4:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrInet6:
		return net.JoinHostPort(net.IP(a.Addr[:]).String(), strconv.Itoa(a.Port))
	case *unix.SockaddrUnix:
		return a.Name
	}
	return ""
}
