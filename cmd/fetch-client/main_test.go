package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"testing"
	"time"

	"github.com/die-net/fetchproxy/internal/client"
	"github.com/die-net/fetchproxy/internal/testutil"
	"github.com/die-net/fetchproxy/internal/wire"
)

func TestRootCmdUsageErrorsSkipNetwork(t *testing.T) {
	t.Parallel()

	tests := [][]string{
		{},
		{"http://example.com/", "user"},
		{"ftp://h/f", "a", "b", "c"},
	}

	for _, args := range tests {
		cmd := newRootCmd()
		var out bytes.Buffer
		cmd.SetOut(&out)
		cmd.SetErr(&out)
		// Nothing listens here; a dial attempt would fail differently.
		cmd.SetArgs(append([]string{"--proxy", testutil.ClosedPort(t)}, args...))

		err := cmd.Execute()
		if !errors.Is(err, client.ErrUsage) {
			t.Fatalf("args %q: err=%v want ErrUsage", args, err)
		}
		if !bytes.Contains(out.Bytes(), []byte("Usage:")) {
			t.Fatalf("args %q: usage not printed: %q", args, out.String())
		}
	}
}

func TestRootCmdPrintsBody(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	ln, wait := testutil.StartSingleAcceptServer(t, ctx, func(c net.Conn) {
		line, err := wire.NewLineReader(c).ReadLine()
		if err != nil {
			return
		}
		_, _ = io.WriteString(c, "you asked for "+line+"\ndone\n")
	})
	defer wait()

	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--proxy", ln.Addr().String(), "--timeout", "2s", "ftp://h/f", "bob", "pw"})

	if err := cmd.ExecuteContext(ctx); err != nil {
		t.Fatal(err)
	}
	if got, want := out.String(), "you asked for ftp://h/f bob pw\n"; got != want {
		t.Fatalf("output=%q want %q", got, want)
	}
}
