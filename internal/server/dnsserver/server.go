// Package dnsserver is the thin DNS server loop: accept packets, dispatch
// to the activation engine, write the answer. The wire codec and the
// accept/dispatch loop both belong to github.com/miekg/dns — this package
// intentionally stays a few lines of glue (spec.md §1, §6).
package dnsserver

import (
	"context"
	"log/slog"
	"net"

	"github.com/miekg/dns"
)

// Engine is the subset of activation.Engine this package depends on.
type Engine interface {
	Process(ctx context.Context, req *dns.Msg, src, dst net.Addr) *dns.Msg
}

// Server runs the UDP and TCP DNS listeners and dispatches every query to
// an Engine.
type Server struct {
	udp    *dns.Server
	tcp    *dns.Server
	engine Engine
	logger *slog.Logger
}

// New constructs a Server bound to addr ("host:port") for both UDP and TCP.
func New(addr string, engine Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{engine: engine, logger: logger.With("component", "dnsserver")}
	mux := dns.HandlerFunc(s.serveDNS)
	s.udp = &dns.Server{Addr: addr, Net: "udp", Handler: mux}
	s.tcp = &dns.Server{Addr: addr, Net: "tcp", Handler: mux}
	return s
}

// ListenAndServe blocks serving both transports until either fails or
// ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 2)
	go func() { errCh <- s.udp.ListenAndServe() }()
	go func() { errCh <- s.tcp.ListenAndServe() }()

	select {
	case <-ctx.Done():
		_ = s.Shutdown()
		return ctx.Err()
	case err := <-errCh:
		_ = s.Shutdown()
		return err
	}
}

// Shutdown stops both listeners.
func (s *Server) Shutdown() error {
	udpErr := s.udp.Shutdown()
	tcpErr := s.tcp.Shutdown()
	if udpErr != nil {
		return udpErr
	}
	return tcpErr
}

func (s *Server) serveDNS(w dns.ResponseWriter, req *dns.Msg) {
	resp := s.engine.Process(context.Background(), req, w.RemoteAddr(), w.LocalAddr())
	if resp == nil {
		return
	}
	if err := w.WriteMsg(resp); err != nil {
		s.logger.Warn("write dns response failed", "error", err)
	}
}
