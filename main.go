// Command fetchproxy accepts single-line resource requests and relays the
// resource from a web or file-transfer server, framed by a "done" line.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // Intentionally exposed on the metrics port.
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/fetchproxy/internal/config"
	"github.com/die-net/fetchproxy/internal/dialer"
	"github.com/die-net/fetchproxy/internal/fetch"
	"github.com/die-net/fetchproxy/internal/logging"
	"github.com/die-net/fetchproxy/internal/metrics"
	"github.com/die-net/fetchproxy/internal/proxy"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	path, err := config.Path(os.Args[1:])
	if err != nil {
		return err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}

	_ = pflag.String("config", path, "YAML config file; FETCHPROXY_* environment variables and flags override it")
	config.BindFlags(pflag.CommandLine, &cfg)
	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	ka, err := parseTCPKeepAlive(cfg.TCPKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}

	up, err := dialer.ParseUpstream(cfg.Upstream)
	if err != nil {
		return fmt.Errorf("invalid --upstream: %w", err)
	}
	d, err := up.Dialer(dialer.Config{
		DialTimeout:        cfg.DialTimeout,
		NegotiationTimeout: cfg.NegotiationTimeout,
		KeepAlive:          ka,
	})
	if err != nil {
		return fmt.Errorf("invalid --upstream: %w", err)
	}

	reg := metrics.NewRegistry()
	m := metrics.New(reg, "fetchproxy")

	srv := proxy.NewServer(proxy.Config{
		Workers: cfg.Workers,
		Web: &fetch.WebAdapter{
			Dialer:       d,
			Port:         cfg.WebPort,
			LoopbackPort: cfg.LoopbackWebPort,
			LocalHosts:   fetch.LocalHosts(),
			Logger:       logger,
		},
		FileTransfer: &fetch.FileTransferAdapter{
			Dialer:      d,
			Port:        cfg.FTPPort,
			DisableEPSV: !dialer.IsDirect(d),
			Logger:      logger,
		},
		Logger:  logger,
		Metrics: m,
	})

	g, ctx := errgroup.WithContext(context.Background())

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsListen != "" {
		http.Handle("/metrics", metrics.Handler(reg))
		metricsSrv := &http.Server{Handler: http.DefaultServeMux, ReadHeaderTimeout: 10 * time.Second}
		lc := net.ListenConfig{KeepAliveConfig: ka}
		metricsLn, err := lc.Listen(ctx, "tcp", cfg.MetricsListen)
		if err != nil {
			return fmt.Errorf("metrics listen: %w", err)
		}
		context.AfterFunc(ctx, func() {
			_ = metricsSrv.Close()
			_ = metricsLn.Close()
		})

		g.Go(func() error {
			if err := metricsSrv.Serve(metricsLn); err != nil {
				return fmt.Errorf("metrics serve: %w", err)
			}
			return nil
		})
		logger.Info("metrics listening", "addr", metricsLn.Addr().String())
	}

	ln, err := proxy.ListenTCP(ctx, "tcp", cfg.Listen, proxy.ListenConfig{KeepAlive: ka, ReusePort: cfg.ReusePort})
	if err != nil {
		return err
	}
	context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})

	g.Go(func() error {
		if err := srv.Serve(ctx, ln); err != nil {
			return fmt.Errorf("proxy serve: %w", err)
		}
		return nil
	})
	logger.Info("proxy listening",
		"addr", ln.Addr().String(),
		"workers", cfg.Workers,
		"upstream", up.Redacted(),
	)

	err = g.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}

	logger.Info("shutting down")
	return err
}

func parseTCPKeepAlive(s string) (net.KeepAliveConfig, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return net.KeepAliveConfig{}, errors.New("empty")
	}
	if s == "on" {
		return net.KeepAliveConfig{Enable: true}, nil
	}
	if s == "off" {
		return net.KeepAliveConfig{Enable: false}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return net.KeepAliveConfig{}, errors.New("expected on|off|keepidle:keepintvl:keepcnt")
	}
	keepIdle, err := parsePositiveSeconds(parts[0])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepidle: %w", err)
	}
	keepIntvl, err := parsePositiveSeconds(parts[1])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepintvl: %w", err)
	}
	keepCnt, err := parsePositive(parts[2])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepcnt: %w", err)
	}

	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     keepIdle,
		Interval: keepIntvl,
		Count:    keepCnt,
	}, nil
}

func parsePositiveSeconds(s string) (time.Duration, error) {
	n, err := parsePositive(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func parsePositive(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return n, nil
}
