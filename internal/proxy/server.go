package proxy

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/die-net/fetchproxy/internal/logging"
)

const maxAcceptBackoff = time.Second

// Server is the proxy's Listener: it accepts client connections and hands
// each one to a handler on a bounded worker pool.
type Server struct {
	cfg Config
	log *slog.Logger
}

// NewServer returns a Server for cfg. A Workers value below one is treated
// as one.
func NewServer(cfg Config) *Server {
	if cfg.Workers < 1 {
		cfg.Workers = 1
	}
	log := cfg.Logger
	if log == nil {
		log = logging.Discard()
	}
	return &Server{cfg: cfg, log: log}
}

// Serve accepts connections from ln until it is closed, then waits for the
// handlers still running and returns nil. Other accept errors are logged
// and the loop continues after a short backoff.
//
// When all workers are busy, Serve blocks before accepting more work. Handlers
// run under a context that ctx's cancellation does not reach: a dispatched
// request always runs to completion.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	base := context.WithoutCancel(ctx)

	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)

	var backoff time.Duration
	for {
		c, err := ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return g.Wait()
			}

			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff = min(2*backoff, maxAcceptBackoff)
			}
			s.log.Error("accept failed", "err", err, "retry_in", backoff)
			if m := s.cfg.Metrics; m != nil {
				m.AcceptErrors.Inc()
			}
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		if m := s.cfg.Metrics; m != nil {
			m.ConnectionsAccepted.Inc()
		}

		g.Go(func() error {
			s.handle(base, c)
			return nil
		})
	}
}
