// Package testutil provides loopback servers for tests: single-accept TCP
// servers, a scripted web upstream, an in-process file-transfer server and a
// SOCKS5 proxy.
package testutil

import (
	"context"
	"net"
	"sync"
	"testing"
)

// StartSingleAcceptServer listens on a loopback port, accepts one connection
// and runs handler on it. The returned func closes the listener and waits for
// handler to return.
func StartSingleAcceptServer(t *testing.T, ctx context.Context, handler func(net.Conn)) (net.Listener, func()) {
	t.Helper()

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c, err := ln.Accept()
		if err != nil {
			return
		}
		defer c.Close()
		handler(c)
	}()

	wait := func() {
		_ = ln.Close()
		wg.Wait()
	}

	return ln, wait
}

// ClosedPort returns a loopback address nothing is listening on.
func ClosedPort(t *testing.T) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

// Port returns the numeric port of a listener's address.
func Port(t *testing.T, ln net.Listener) int {
	t.Helper()

	ta, ok := ln.Addr().(*net.TCPAddr)
	if !ok {
		t.Fatalf("not a tcp listener: %T", ln.Addr())
	}
	return ta.Port
}
