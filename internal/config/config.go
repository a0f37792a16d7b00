// Package config loads proxy settings. Later sources override earlier ones:
// built-in defaults, a YAML file, the environment (FETCHPROXY_*, optionally
// seeded from a .env file) and finally command-line flags.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "FETCHPROXY_"

// Config holds the proxy's settings.
type Config struct {
	Listen    string `yaml:"listen"     env:"LISTEN"`
	ReusePort bool   `yaml:"reuse_port" env:"REUSE_PORT"`
	Workers   int    `yaml:"workers"    env:"WORKERS"`

	Upstream           string        `yaml:"upstream"            env:"UPSTREAM"`
	DialTimeout        time.Duration `yaml:"dial_timeout"        env:"DIAL_TIMEOUT"`
	NegotiationTimeout time.Duration `yaml:"negotiation_timeout" env:"NEGOTIATION_TIMEOUT"`
	TCPKeepAlive       string        `yaml:"tcp_keepalive"       env:"TCP_KEEPALIVE"`

	WebPort         int `yaml:"web_port"          env:"WEB_PORT"`
	LoopbackWebPort int `yaml:"loopback_web_port" env:"LOOPBACK_WEB_PORT"`
	FTPPort         int `yaml:"ftp_port"          env:"FTP_PORT"`

	MetricsListen string `yaml:"metrics_listen" env:"METRICS_LISTEN"`
	LogLevel      string `yaml:"log_level"      env:"LOG_LEVEL"`
	LogFormat     string `yaml:"log_format"     env:"LOG_FORMAT"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		Listen:          "localhost:8000",
		Workers:         100,
		Upstream:        defaultUpstream(),
		TCPKeepAlive:    "on",
		WebPort:         80,
		LoopbackWebPort: 800,
		FTPPort:         21,
		LogLevel:        "info",
		LogFormat:       "text",
	}
}

// Load returns the defaults overlaid with the YAML file at path (skipped if
// path is empty), then with the environment. A .env file in the working
// directory, if present, seeds variables that are not already set.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := decodeYAML(b, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

func decodeYAML(b []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// BindFlags registers one flag per setting on fs, defaulting to the current
// values in cfg and writing parsed values back into it.
func BindFlags(fs *pflag.FlagSet, cfg *Config) {
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "Proxy listen address")
	fs.BoolVar(&cfg.ReusePort, "reuse-port", cfg.ReusePort, "Set SO_REUSEPORT on the listening socket")
	fs.IntVar(&cfg.Workers, "workers", cfg.Workers, "Maximum number of connections handled concurrently")
	fs.StringVar(&cfg.Upstream, "upstream", cfg.Upstream, "Upstream dialer URL: direct:// | http://[user:pass@]host:port | https://[user:pass@]host:port | socks5://[user:pass@]host:port")
	fs.DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "Timeout for outbound DNS lookup and TCP connect (0 disables)")
	fs.DurationVar(&cfg.NegotiationTimeout, "negotiation-timeout", cfg.NegotiationTimeout, "Timeout for the handshake with an upstream proxy (0 disables)")
	fs.StringVar(&cfg.TCPKeepAlive, "tcp-keepalive", cfg.TCPKeepAlive, "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")
	fs.IntVar(&cfg.WebPort, "web-port", cfg.WebPort, "Port of remote web servers")
	fs.IntVar(&cfg.LoopbackWebPort, "loopback-web-port", cfg.LoopbackWebPort, "Port of the web server on this machine")
	fs.IntVar(&cfg.FTPPort, "ftp-port", cfg.FTPPort, "Port of file-transfer servers")
	fs.StringVar(&cfg.MetricsListen, "metrics-listen", cfg.MetricsListen, "Listen address exposing /metrics and /debug/pprof (e.g. 127.0.0.1:6060). Empty disables.")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug|info|warn|error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: text|json")
}

// Path extracts --config from args without failing on the other flags, so
// the file can be loaded before the full flag set is defined.
func Path(args []string) (string, error) {
	fs := pflag.NewFlagSet("config", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.SetOutput(io.Discard)
	fs.Usage = func() {}

	path := fs.String("config", "", "")
	_ = fs.BoolP("help", "h", false, "")

	if err := fs.Parse(args); err != nil {
		return "", err
	}
	return *path, nil
}

// Validate reports the first setting that cannot be used.
func (c Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address is empty")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	for _, p := range []struct {
		name string
		port int
	}{
		{"web-port", c.WebPort},
		{"loopback-web-port", c.LoopbackWebPort},
		{"ftp-port", c.FTPPort},
	} {
		if p.port < 1 || p.port > 65535 {
			return fmt.Errorf("%s out of range: %d", p.name, p.port)
		}
	}
	if c.DialTimeout < 0 || c.NegotiationTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}

func defaultUpstream() string {
	if p := os.Getenv("ALL_PROXY"); p != "" {
		return p
	}

	if p := os.Getenv("all_proxy"); p != "" {
		return p
	}

	return "direct://"
}
