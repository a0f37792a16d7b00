package dialer

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// HTTPProxyDialer tunnels TCP connections through an HTTP proxy with CONNECT.
// For an https upstream the proxy itself is reached over TLS.
type HTTPProxyDialer struct {
	cfg    Config
	addr   string
	tls    *tls.Config
	auth   string
	direct Dialer
}

// NewHTTPProxyDialer returns a CONNECT dialer for an http or https upstream.
// A non-empty User adds Basic Proxy-Authorization.
func NewHTTPProxyDialer(cfg Config, up Upstream) (*HTTPProxyDialer, error) {
	if up.Scheme != "http" && up.Scheme != "https" {
		return nil, fmt.Errorf("http proxy dialer: unsupported scheme: %q", up.Scheme)
	}
	host, _, err := net.SplitHostPort(up.Addr)
	if err != nil || host == "" {
		return nil, fmt.Errorf("http proxy dialer: invalid proxy address %q", up.Addr)
	}

	d := &HTTPProxyDialer{
		cfg:    cfg,
		addr:   up.Addr,
		direct: NewDirectDialer(cfg),
	}
	if up.Scheme == "https" {
		d.tls = &tls.Config{MinVersion: tls.VersionTLS12, ServerName: host}
	}
	if up.User != "" {
		d.auth = "Basic " + base64.StdEncoding.EncodeToString([]byte(up.User+":"+up.Pass))
	}
	return d, nil
}

// ProxyAddr returns the proxy host:port.
func (d *HTTPProxyDialer) ProxyAddr() string {
	return d.addr
}

// DialContext opens a tunnel to address. NegotiationTimeout, if set, bounds
// the TLS handshake and the CONNECT exchange together.
func (d *HTTPProxyDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if !strings.HasPrefix(network, "tcp") {
		return nil, fmt.Errorf("http proxy dial %s %s: unsupported network", network, address)
	}

	c, err := d.direct.DialContext(ctx, network, d.addr)
	if err != nil {
		return nil, fmt.Errorf("http proxy: %w", err)
	}

	if d.cfg.NegotiationTimeout > 0 {
		_ = c.SetDeadline(time.Now().Add(d.cfg.NegotiationTimeout))
	}

	c, err = d.tunnel(ctx, c, address)
	if err != nil {
		_ = c.Close()
		return nil, err
	}

	if d.cfg.NegotiationTimeout > 0 {
		_ = c.SetDeadline(time.Time{})
	}
	return c, nil
}

// tunnel runs the TLS handshake, if any, and the CONNECT exchange on c. The
// returned conn is the one to close on error.
func (d *HTTPProxyDialer) tunnel(ctx context.Context, c net.Conn, address string) (net.Conn, error) {
	if d.tls != nil {
		tc := tls.Client(c, d.tls)
		if err := tc.HandshakeContext(ctx); err != nil {
			return tc, fmt.Errorf("http proxy tls handshake: %w", err)
		}
		c = tc
	}

	req := &http.Request{
		Method: http.MethodConnect,
		URL:    &url.URL{Opaque: address},
		Host:   address,
		Header: make(http.Header),
	}
	if d.auth != "" {
		req.Header.Set("Proxy-Authorization", d.auth)
	}
	if err := req.Write(c); err != nil {
		return c, fmt.Errorf("http proxy connect write: %w", err)
	}

	br := bufio.NewReader(c)
	resp, err := http.ReadResponse(br, req)
	if err != nil {
		return c, fmt.Errorf("http proxy connect read: %w", err)
	}
	_ = resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return c, fmt.Errorf("http proxy connect to %s: %s", address, resp.Status)
	}
	// Bytes past the reply would be lost with br.
	if br.Buffered() > 0 {
		return c, errors.New("http proxy connect: unexpected data after response")
	}
	return c, nil
}
