package kvserver

import (
	"errors"

	"github.com/tidwall/redcon"
	"golang.org/x/sys/unix"

	"github.com/yndnr/emberkv/internal/core/domain"
	"github.com/yndnr/emberkv/internal/core/eventloop"
	"github.com/yndnr/emberkv/internal/telemetry/metric"
)

// acceptHandler accepts up to maxAcceptsPerCall pending connections.
// Resource exhaustion is logged and left for the next readiness event.
func (s *Server) acceptHandler(_ *eventloop.Loop, fd int, _ any, _ eventloop.Mask) {
	for i := 0; i < maxAcceptsPerCall; i++ {
		cfd, sa, err := accept(fd)
		if err != nil {
			switch {
			case errors.Is(err, unix.EAGAIN), errors.Is(err, unix.EINTR):
			case errors.Is(err, unix.ECONNABORTED):
				continue
			case errors.Is(err, unix.EMFILE), errors.Is(err, unix.ENFILE),
				errors.Is(err, unix.ENOBUFS), errors.Is(err, unix.ENOMEM):
				s.logger.Warn("accept failed, out of resources", "error", err)
			default:
				s.logger.Warn("accept failed", "error", err)
			}
			return
		}
		s.acceptClient(cfd, sockaddrString(sa))
	}
}

func (s *Server) acceptClient(fd int, addr string) {
	if s.limiter != nil && !s.limiter.Allow() {
		s.logger.Debug("connection rejected by accept rate", "addr", addr)
		s.metrics.ConnectionRejected(metric.ReasonRateLimit)
		_ = unix.Close(fd)
		return
	}
	if s.cfg.MaxClients > 0 && s.clients.Cardinality() >= s.cfg.MaxClients {
		s.logger.Warn("connection rejected", "addr", addr, "error", domain.ErrMaxClients)
		s.metrics.ConnectionRejected(metric.ReasonMaxClients)
		_, _ = unix.Write(fd, redcon.AppendError(nil, domain.ErrMaxClients.Reply()))
		_ = unix.Close(fd)
		return
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, 1)

	if _, err := s.createClient(fd, addr); err != nil {
		s.logger.Warn("error registering client", "addr", addr, "error", err)
		_ = unix.Close(fd)
	}
}
