package proxy

import (
	"context"
	"fmt"
	"net"
)

// ListenConfig describes the proxy's listening socket.
type ListenConfig struct {
	KeepAlive net.KeepAliveConfig
	// ReusePort sets SO_REUSEPORT so several processes can share the
	// address. Supported on Linux, macOS and the BSDs.
	ReusePort bool
}

// ListenTCP listens on the given network/address and returns a net.Listener
// that applies the keepalive settings to accepted TCP connections.
func ListenTCP(ctx context.Context, network, addr string, cfg ListenConfig) (net.Listener, error) {
	lc := net.ListenConfig{}
	if cfg.ReusePort {
		if !reusePortSupported {
			return nil, fmt.Errorf("listen %s %s: SO_REUSEPORT not supported on this platform", network, addr)
		}
		lc.Control = reusePortControl
	}

	ln, err := lc.Listen(ctx, network, addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s %s: %w", network, addr, err)
	}

	return &KeepAliveListener{Listener: ln, KeepAliveConfig: cfg.KeepAlive}, nil
}

// KeepAliveListener wraps a net.Listener and applies KeepAliveConfig to any
// accepted *net.TCPConn.
type KeepAliveListener struct {
	net.Listener
	net.KeepAliveConfig
}

// Accept accepts the next connection and applies KeepAliveConfig if the
// connection is a *net.TCPConn.
func (l *KeepAliveListener) Accept() (net.Conn, error) {
	conn, err := l.Listener.Accept()
	if err != nil {
		return nil, err
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetKeepAliveConfig(l.KeepAliveConfig)
	}

	return conn, nil
}
