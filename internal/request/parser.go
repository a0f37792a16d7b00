package request

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Parse parses a raw request line. The line is folded to lower case first,
// credentials included.
func Parse(line string) (Parsed, error) {
	line = strings.ToLower(strings.TrimSpace(line))
	if line == "" {
		return Parsed{}, fmt.Errorf("%w: empty request", ErrInvalidURL)
	}

	fields := strings.Fields(line)
	locator := fields[0]

	u, err := parseLocator(locator)
	if err != nil {
		return Parsed{}, err
	}

	var proto Protocol
	switch u.Scheme {
	case "ftp":
		proto = FileTransfer
	case "http", "https":
		proto = Web
	default:
		return Parsed{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidURL, u.Scheme)
	}

	host := u.Hostname()
	if strings.HasSuffix(u.Host, ":") || !validHost(host) {
		return Parsed{}, fmt.Errorf("%w: invalid host %q", ErrInvalidURL, host)
	}

	resource := rawPath(locator)
	if resource == "" {
		resource = "/"
	}

	p := Parsed{
		Protocol: proto,
		Host:     host,
		Resource: resource,
	}
	if proto == FileTransfer && len(fields) == 3 {
		p.Credentials = &Credentials{User: fields[1], Pass: fields[2]}
	}
	return p, nil
}

// parseLocator parses "scheme://host/path" or a bare "host/path". A bare
// locator is treated as a web locator, but only when it has a valid host.
func parseLocator(locator string) (*url.URL, error) {
	if strings.Contains(locator, "://") {
		u, err := url.Parse(locator)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
		}
		if u.Opaque != "" || u.Host == "" {
			return nil, fmt.Errorf("%w: missing host in %q", ErrInvalidURL, locator)
		}
		return u, nil
	}

	u, err := url.Parse("//" + locator)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidURL, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %q", ErrInvalidURL, locator)
	}
	u.Scheme = "http"
	return u, nil
}

// rawPath returns the path of locator as typed, without the query or
// fragment. Percent escapes and non-ASCII bytes are kept unchanged.
func rawPath(locator string) string {
	if _, rest, ok := strings.Cut(locator, "://"); ok {
		locator = rest
	}
	i := strings.IndexAny(locator, "/?#")
	if i < 0 || locator[i] != '/' {
		return ""
	}
	path := locator[i:]
	if j := strings.IndexAny(path, "?#"); j >= 0 {
		path = path[:j]
	}
	return path
}

func validHost(host string) bool {
	if host == "" || len(host) > 253 {
		return false
	}
	if net.ParseIP(host) != nil {
		return true
	}
	for _, label := range strings.Split(host, ".") {
		if label == "" || len(label) > 63 {
			return false
		}
		if label[0] == '-' || label[len(label)-1] == '-' {
			return false
		}
		for i := 0; i < len(label); i++ {
			c := label[i]
			if (c < 'a' || c > 'z') && (c < '0' || c > '9') && c != '-' && c != '_' {
				return false
			}
		}
	}
	return true
}
