package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"slices"
	"strconv"
	"strings"

	"github.com/die-net/fetchproxy/internal/dialer"
	"github.com/die-net/fetchproxy/internal/wire"
)

// bodyEnd is the line that ends a web body.
const bodyEnd = "0"

// WebAdapter fetches a resource with a single bare GET request.
type WebAdapter struct {
	Dialer dialer.Dialer
	// Port is used for remote hosts.
	Port int
	// LoopbackPort is used when the host names this machine, so a local
	// reference web server can run without a privileged port.
	LoopbackPort int
	// LocalHosts are extra names and addresses of this machine. "localhost"
	// and loopback addresses always count as local.
	LocalHosts []string
	Logger     *slog.Logger
}

// Fetch retrieves resource from host. It never fails; see Response.
func (a *WebAdapter) Fetch(ctx context.Context, host, resource string) Response {
	log := a.logger().With("host", host, "resource", resource)

	addr := net.JoinHostPort(host, strconv.Itoa(a.targetPort(host)))
	conn, err := a.Dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		log.Warn("web upstream connect failed", "addr", addr, "err", err)
		return Response{Body: ConnectFailedBody, Err: fmt.Errorf("%w: %w", ErrConnect, err)}
	}
	defer conn.Close()

	if _, err := io.WriteString(conn, "GET "+resource+" HTTP/1.1\r\n\r\n"); err != nil {
		log.Warn("web upstream write failed", "err", err)
		return Response{Err: fmt.Errorf("%w: send request: %w", ErrUpstreamIO, err)}
	}

	lr := wire.NewLineReader(conn)

	var body strings.Builder
	code, err := readHead(lr, &body)
	if err != nil {
		log.Warn("web upstream header read failed", "err", err)
		return Response{StatusCode: code, Body: body.String(), Err: fmt.Errorf("%w: read header: %w", ErrUpstreamIO, err)}
	}

	switch code {
	case 200:
		for {
			line, err := lr.ReadLine()
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				log.Warn("web upstream body read failed", "err", err)
				return Response{StatusCode: code, Body: body.String(), Err: fmt.Errorf("%w: read body: %w", ErrUpstreamIO, err)}
			}
			if line == bodyEnd {
				break
			}
			body.WriteString(line)
			body.WriteByte('\n')
		}
		if cr, ok := conn.(interface{ CloseRead() error }); ok {
			_ = cr.CloseRead()
		}
		return Response{StatusCode: code, Body: body.String()}
	case 404:
		return Response{StatusCode: code, Body: NotFoundBody, Err: ErrNotFound}
	default:
		log.Info("web upstream status not handled, relaying header only", "status", code)
		return Response{StatusCode: code, Body: body.String(), Err: fmt.Errorf("%w: %d", ErrUnhandledStatus, code)}
	}
}

// readHead copies the status line and header lines, the blank line included,
// to body and returns the parsed status code, or 0 if it is not a number.
func readHead(lr *wire.LineReader, body *strings.Builder) (int, error) {
	first, err := lr.ReadLine()
	if err != nil {
		return 0, err
	}
	body.WriteString(first)
	body.WriteByte('\n')

	code := 0
	if parts := strings.Split(first, " "); len(parts) > 1 {
		if n, err := strconv.Atoi(parts[1]); err == nil {
			code = n
		}
	}

	for {
		line, err := lr.ReadLine()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return code, err
		}
		if line == "" {
			break
		}
		body.WriteString(line)
		body.WriteByte('\n')
	}
	body.WriteByte('\n')
	return code, nil
}

func (a *WebAdapter) targetPort(host string) int {
	if a.isLocal(host) {
		return a.LoopbackPort
	}
	return a.Port
}

func (a *WebAdapter) isLocal(host string) bool {
	if host == "localhost" {
		return true
	}
	if ip := net.ParseIP(host); ip != nil && ip.IsLoopback() {
		return true
	}
	return slices.ContainsFunc(a.LocalHosts, func(h string) bool {
		return strings.EqualFold(h, host)
	})
}

func (a *WebAdapter) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// LocalHosts returns this machine's host name and the addresses it resolves
// to. Lookup failures yield a shorter list, never an error.
func LocalHosts() []string {
	name, err := os.Hostname()
	if err != nil || name == "" {
		return nil
	}
	hosts := []string{strings.ToLower(name)}
	if addrs, err := net.LookupHost(name); err == nil {
		hosts = append(hosts, addrs...)
	}
	return hosts
}
