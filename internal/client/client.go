// Package client sends one request line to a fetch proxy and reads back the
// framed body.
package client

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/die-net/fetchproxy/internal/dialer"
	"github.com/die-net/fetchproxy/internal/wire"
)

// DefaultProxyAddr is where the proxy listens by default.
const DefaultProxyAddr = "localhost:8000"

// ErrUsage reports a wrong number or combination of arguments.
var ErrUsage = errors.New("expected URL, or ftp://URL USER, or ftp://URL USER PASS")

// RequestLine builds the request line for args.
//
//	URL                one web or anonymous file-transfer request
//	ftp://URL USER     file-transfer login with password "anonymous"
//	ftp://URL USER PASS
func RequestLine(args []string) (string, error) {
	switch len(args) {
	case 1:
		if args[0] == "" {
			return "", ErrUsage
		}
		return args[0], nil
	case 2, 3:
		if !strings.HasPrefix(strings.ToLower(args[0]), "ftp://") {
			return "", fmt.Errorf("%w: credentials only apply to ftp:// URLs", ErrUsage)
		}
		pass := "anonymous"
		if len(args) == 3 {
			pass = args[2]
		}
		return strings.Join([]string{args[0], args[1], pass}, " "), nil
	default:
		return "", ErrUsage
	}
}

// Client talks to one proxy.
type Client struct {
	// Addr is the proxy's host:port.
	Addr   string
	Dialer dialer.Dialer
	// Timeout bounds the whole exchange. Zero means none.
	Timeout time.Duration
}

// Fetch sends line and returns the body that precedes the terminator. If
// the proxy closes the connection before the terminator, the partial body is
// returned with io.ErrUnexpectedEOF.
func (c *Client) Fetch(ctx context.Context, line string) (string, error) {
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	d := c.Dialer
	if d == nil {
		d = dialer.NewDirectDialer(dialer.Config{})
	}
	addr := c.Addr
	if addr == "" {
		addr = DefaultProxyAddr
	}

	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return "", fmt.Errorf("connect to proxy: %w", err)
	}
	defer conn.Close()

	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Unix(1, 0))
	})
	defer stop()

	bw := bufio.NewWriter(conn)
	if _, err := bw.WriteString(line + "\r\n"); err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}

	body, err := wire.ReadFrame(conn)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return body, fmt.Errorf("read response: %w", ctxErr)
		}
		return body, fmt.Errorf("read response: %w", err)
	}
	return body, nil
}
