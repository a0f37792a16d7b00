package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "fetchproxy.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ALL_PROXY", "")
	t.Setenv("all_proxy", "")

	cfg, err := Load("")
	if err != nil {
		t.Fatal(err)
	}
	if cfg != Default() {
		t.Fatalf("Load(\"\")=%+v want %+v", cfg, Default())
	}
	if cfg.Listen != "localhost:8000" || cfg.Workers != 100 || cfg.Upstream != "direct://" {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.DialTimeout != 0 {
		t.Fatalf("DialTimeout=%v want 0", cfg.DialTimeout)
	}
}

func TestLoadPrecedence(t *testing.T) {
	path := writeFile(t, `
listen: "127.0.0.1:9000"
workers: 7
dial_timeout: 3s
ftp_port: 2121
`)
	t.Setenv(EnvPrefix+"WORKERS", "9")
	t.Setenv(EnvPrefix+"LOG_FORMAT", "json")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Listen != "127.0.0.1:9000" {
		t.Errorf("Listen=%q from file", cfg.Listen)
	}
	if cfg.Workers != 9 {
		t.Errorf("Workers=%d, environment should override file", cfg.Workers)
	}
	if cfg.DialTimeout != 3*time.Second {
		t.Errorf("DialTimeout=%v", cfg.DialTimeout)
	}
	if cfg.FTPPort != 2121 {
		t.Errorf("FTPPort=%d", cfg.FTPPort)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat=%q", cfg.LogFormat)
	}
	if cfg.WebPort != 80 {
		t.Errorf("WebPort=%d, default should survive", cfg.WebPort)
	}

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(fs, &cfg)
	if err := fs.Parse([]string{"--workers=3", "--web-port", "8080"}); err != nil {
		t.Fatal(err)
	}
	if cfg.Workers != 3 || cfg.WebPort != 8080 {
		t.Errorf("flags did not override: workers=%d web-port=%d", cfg.Workers, cfg.WebPort)
	}
	if cfg.Listen != "127.0.0.1:9000" {
		t.Errorf("unset flag changed Listen to %q", cfg.Listen)
	}
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name string
		path func(t *testing.T) string
	}{
		{name: "missing_file", path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.yaml") }},
		{name: "unknown_field", path: func(t *testing.T) string { return writeFile(t, "listne: x\n") }},
		{name: "bad_type", path: func(t *testing.T) string { return writeFile(t, "workers: many\n") }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Load(tt.path(t)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeFile(t, ""))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Workers != 100 {
		t.Fatalf("Workers=%d", cfg.Workers)
	}
}

func TestLoadBadEnvironment(t *testing.T) {
	t.Setenv(EnvPrefix+"DIAL_TIMEOUT", "soon")

	if _, err := Load(""); err == nil {
		t.Fatal("expected error")
	}
}

func TestDefaultUpstreamFromAllProxy(t *testing.T) {
	t.Setenv("ALL_PROXY", "socks5://127.0.0.1:1080")

	if got := Default().Upstream; got != "socks5://127.0.0.1:1080" {
		t.Fatalf("Upstream=%q", got)
	}
}

func TestPath(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "absent", args: []string{"--listen", ":9000"}},
		{name: "equals", args: []string{"--config=/etc/fetchproxy.yaml", "--workers", "4"}, want: "/etc/fetchproxy.yaml"},
		{name: "separate", args: []string{"--workers=4", "--config", "a.yaml"}, want: "a.yaml"},
		{name: "help_ignored", args: []string{"-h"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := Path(tt.args)
			if err != nil {
				t.Fatal(err)
			}
			if got != tt.want {
				t.Fatalf("Path()=%q want %q", got, tt.want)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "defaults", mutate: func(*Config) {}},
		{name: "no_listen", mutate: func(c *Config) { c.Listen = "" }, wantErr: true},
		{name: "zero_workers", mutate: func(c *Config) { c.Workers = 0 }, wantErr: true},
		{name: "bad_web_port", mutate: func(c *Config) { c.WebPort = 70000 }, wantErr: true},
		{name: "bad_ftp_port", mutate: func(c *Config) { c.FTPPort = 0 }, wantErr: true},
		{name: "negative_timeout", mutate: func(c *Config) { c.DialTimeout = -time.Second }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cfg := Default()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatal(err)
			}
		})
	}
}
