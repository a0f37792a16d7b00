// Command fetch-webserver serves static files in the dialect the fetch
// proxy's web adapter understands. By default it listens on the port the
// proxy uses for hosts that name this machine.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/fetchproxy/internal/logging"
	"github.com/die-net/fetchproxy/internal/webserver"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		listen    = pflag.String("listen", "localhost:800", "Listen address")
		root      = pflag.String("root", ".", "Directory to serve")
		index     = pflag.String("index", "/index.html", "File served for /")
		logLevel  = pflag.String("log-level", "info", "Log level: debug|info|warn|error")
		logFormat = pflag.String("log-format", "text", "Log format: text|json")
	)
	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	if pflag.NArg() != 0 {
		return fmt.Errorf("unexpected arguments: %q", pflag.Args())
	}

	logger, err := logging.New(*logLevel, *logFormat, os.Stderr)
	if err != nil {
		return err
	}

	fi, err := os.Stat(*root)
	if err != nil {
		return fmt.Errorf("invalid --root: %w", err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("invalid --root: %s is not a directory", *root)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	lc := net.ListenConfig{}
	ln, err := lc.Listen(ctx, "tcp", *listen)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}

	srv := webserver.NewServer(&webserver.Handler{Root: *root, Index: *index, Logger: logger})

	var g errgroup.Group
	context.AfterFunc(ctx, func() {
		_ = srv.Shutdown()
	})
	g.Go(func() error {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, net.ErrClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	logger.Info("web server listening", "addr", ln.Addr().String(), "root", *root)

	err = g.Wait()
	logger.Info("shutting down")
	return err
}
