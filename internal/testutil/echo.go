package testutil

import (
	"bufio"
	"context"
	"net"
	"sync"
	"testing"
)

// StartLineEchoServer echoes each line it receives, on every connection,
// until the client closes or the test ends.
func StartLineEchoServer(t *testing.T, ctx context.Context) net.Listener {
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
		for {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				defer c.Close()
				sc := bufio.NewScanner(c)
				for sc.Scan() {
					if _, err := c.Write(append(sc.Bytes(), '\n')); err != nil {
						return
					}
				}
			}()
		}
	}()

	t.Cleanup(func() {
		_ = ln.Close()
		wg.Wait()
	})
	return ln
}

// AssertLineEcho sends line over c and expects the same line back.
func AssertLineEcho(t *testing.T, c net.Conn, line string) {
	t.Helper()

	if _, err := c.Write([]byte(line + "\n")); err != nil {
		t.Fatal(err)
	}
	got, err := bufio.NewReader(c).ReadString('\n')
	if err != nil {
		t.Fatalf("read echo: %v", err)
	}
	if got != line+"\n" {
		t.Fatalf("echo=%q want %q", got, line+"\n")
	}
}
