package dialer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Dialer opens connections to upstream web and file-transfer servers, or to
// the proxy itself from a client.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Upstream describes how outbound connections leave this host.
type Upstream struct {
	// Scheme is one of "direct", "http", "https" or "socks5".
	Scheme string
	// Addr is the proxy's host:port. It is empty for direct.
	Addr string
	User string
	Pass string
}

// ParseUpstream parses one of:
//
//	direct://
//	http://[user:pass@]host[:port]
//	https://[user:pass@]host[:port]
//	socks5://[user:pass@]host[:port]
//
// The scheme is case-insensitive. A missing port defaults to 80, 443 or 1080.
func ParseUpstream(raw string) (Upstream, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Upstream{}, fmt.Errorf("invalid upstream: %w", err)
	}
	if u.Path != "" && u.Path != "/" {
		return Upstream{}, errors.New("invalid upstream: path should be empty")
	}

	up := Upstream{Scheme: strings.ToLower(u.Scheme)}

	switch up.Scheme {
	case "":
		return Upstream{}, errors.New("invalid upstream: missing scheme")
	case "direct":
		return up, nil
	case "http", "https", "socks5":
	default:
		return Upstream{}, fmt.Errorf("invalid upstream scheme: %q", up.Scheme)
	}

	host := u.Hostname()
	if host == "" {
		return Upstream{}, errors.New("invalid upstream: missing host")
	}
	port := u.Port()
	if port == "" {
		port = defaultPort[up.Scheme]
	}
	up.Addr = net.JoinHostPort(host, port)

	if u.User != nil {
		up.User = u.User.Username()
		up.Pass, _ = u.User.Password()
	}
	return up, nil
}

var defaultPort = map[string]string{
	"http":   "80",
	"https":  "443",
	"socks5": "1080",
}

// Redacted returns the upstream as a URL with any password masked, for logs.
func (up Upstream) Redacted() string {
	if up.Scheme == "direct" {
		return "direct://"
	}
	s := up.Scheme + "://"
	if up.User != "" || up.Pass != "" {
		s += up.User + ":xxxxx@"
	}
	return s + up.Addr
}

// Dialer builds the Dialer for up.
func (up Upstream) Dialer(cfg Config) (Dialer, error) {
	switch up.Scheme {
	case "direct":
		return NewDirectDialer(cfg), nil
	case "socks5":
		return NewSOCKS5ProxyDialer(cfg, up.Addr, up.User, up.Pass), nil
	case "http", "https":
		return NewHTTPProxyDialer(cfg, up)
	default:
		return nil, fmt.Errorf("invalid upstream scheme: %q", up.Scheme)
	}
}

// New parses upstream and returns its Dialer.
func New(cfg Config, upstream string) (Dialer, error) {
	up, err := ParseUpstream(upstream)
	if err != nil {
		return nil, err
	}
	return up.Dialer(cfg)
}
