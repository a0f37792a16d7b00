package proxy

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"runtime/debug"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/die-net/fetchproxy/internal/fetch"
	"github.com/die-net/fetchproxy/internal/request"
	"github.com/die-net/fetchproxy/internal/wire"
)

// invalidURLBody is sent when the request line does not parse.
const invalidURLBody = "Invalid URL"

type state int

const (
	awaitingRequest state = iota
	parsed
	dispatching
	awaitingUpstream
	responding
	closed
)

func (s state) String() string {
	switch s {
	case awaitingRequest:
		return "awaiting_request"
	case parsed:
		return "parsed"
	case dispatching:
		return "dispatching"
	case awaitingUpstream:
		return "awaiting_upstream"
	case responding:
		return "responding"
	case closed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// session is the state of one client connection. It is owned by a single
// handler goroutine.
type session struct {
	srv  *Server
	conn net.Conn
	log  *slog.Logger

	state   state
	line    string
	req     request.Parsed
	fetcher func(context.Context) fetch.Response
	resp    fetch.Response
	start   time.Time
	elapsed time.Duration

	closeOnce sync.Once
}

func (s *Server) handle(ctx context.Context, c net.Conn) {
	sess := &session{
		srv:   s,
		conn:  c,
		log:   s.log.With("session", uuid.NewString(), "remote", c.RemoteAddr().String()),
		state: awaitingRequest,
		start: time.Now(),
	}
	sess.run(ctx)
}

func (h *session) run(ctx context.Context) {
	m := h.srv.cfg.Metrics
	if m != nil {
		m.InFlight.Inc()
		defer m.InFlight.Dec()
	}

	defer h.close()
	defer func() {
		if r := recover(); r != nil {
			h.log.Error("handler panic", "state", h.state, "panic", r, "stack", string(debug.Stack()))
			if m != nil {
				m.RecoveredPanics.Inc()
			}
		}
	}()

	for h.state != closed {
		h.state = h.step(ctx)
	}
}

// step runs the current state and returns the next one.
func (h *session) step(ctx context.Context) state {
	switch h.state {
	case awaitingRequest:
		return h.readRequest()
	case parsed:
		return h.parse()
	case dispatching:
		return h.dispatch()
	case awaitingUpstream:
		return h.awaitUpstream(ctx)
	case responding:
		return h.respond()
	default:
		return closed
	}
}

// readRequest reads exactly one line. A client that closes without sending
// anything gets the parse failure like any other malformed request.
func (h *session) readRequest() state {
	line, err := wire.NewLineReader(h.conn).ReadLine()
	if err != nil && !errors.Is(err, io.EOF) {
		h.log.Warn("read request failed", "err", err)
		return closed
	}
	h.line = line
	return parsed
}

func (h *session) parse() state {
	req, err := request.Parse(h.line)
	if err != nil {
		h.log.Info("rejected request", "err", err)
		h.resp = fetch.Response{Body: invalidURLBody, Err: err}
		return responding
	}
	h.req = req

	attrs := []any{"protocol", req.Protocol, "host", req.Host, "resource", req.Resource}
	if req.Credentials != nil {
		attrs = append(attrs, "user", req.Credentials.User)
	}
	h.log = h.log.With(attrs...)
	return dispatching
}

func (h *session) dispatch() state {
	cfg := h.srv.cfg
	req := h.req

	switch req.Protocol {
	case request.Web:
		if cfg.Web == nil {
			break
		}
		h.fetcher = func(ctx context.Context) fetch.Response {
			return cfg.Web.Fetch(ctx, req.Host, req.Resource)
		}
	case request.FileTransfer:
		if cfg.FileTransfer == nil {
			break
		}
		h.fetcher = func(ctx context.Context) fetch.Response {
			return cfg.FileTransfer.Fetch(ctx, req.Host, req.Resource, req.Credentials)
		}
	}

	if h.fetcher == nil {
		h.log.Error("no adapter configured")
		h.resp = fetch.Response{Body: invalidURLBody, Err: fmt.Errorf("%w: no %s adapter", request.ErrInvalidURL, req.Protocol)}
		return responding
	}
	return awaitingUpstream
}

func (h *session) awaitUpstream(ctx context.Context) state {
	start := time.Now()
	h.resp = h.fetcher(ctx)
	h.elapsed = time.Since(start)

	if m := h.srv.cfg.Metrics; m != nil {
		m.FetchDuration.WithLabelValues(h.req.Protocol.String()).Observe(h.elapsed.Seconds())
	}
	return responding
}

func (h *session) respond() state {
	m := h.srv.cfg.Metrics
	body := h.resp.Body

	if wire.ContainsTerminator(body) {
		h.log.Warn("response body contains the frame terminator; client will see it truncated")
		if m != nil {
			m.FramingConflicts.Inc()
		}
	}

	bw := bufio.NewWriter(h.conn)
	if err := wire.WriteFrame(bw, body); err != nil {
		h.log.Warn("write response failed", "err", err)
		if m != nil {
			m.ClientWriteErrors.Inc()
		}
		return closed
	}
	if cw, ok := h.conn.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
	}

	protocol := "none"
	if h.req.Protocol != 0 {
		protocol = h.req.Protocol.String()
	}
	outcome := h.outcome()
	if m != nil {
		m.Requests.WithLabelValues(protocol, outcome).Inc()
		m.ResponseSize.WithLabelValues(protocol).Observe(float64(len(body)))
	}

	attrs := []any{
		"outcome", outcome,
		"size", humanize.Bytes(uint64(len(body))),
		"upstream_time", h.elapsed,
		"total_time", time.Since(h.start),
	}
	if h.resp.StatusCode != 0 {
		attrs = append(attrs, "status", h.resp.StatusCode)
	}
	if h.resp.Err != nil {
		attrs = append(attrs, "err", h.resp.Err)
	}
	h.log.Info("request complete", attrs...)
	return closed
}

func (h *session) outcome() string {
	if errors.Is(h.resp.Err, request.ErrInvalidURL) {
		return "invalid_url"
	}
	return h.resp.Outcome()
}

func (h *session) close() {
	h.closeOnce.Do(func() {
		h.state = closed
		if err := h.conn.Close(); err != nil {
			h.log.Debug("close failed", "err", err)
		}
	})
}
