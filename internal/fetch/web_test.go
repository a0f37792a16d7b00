package fetch

import (
	"context"
	"errors"
	"net"
	"strconv"
	"testing"

	"github.com/die-net/fetchproxy/internal/dialer"
	"github.com/die-net/fetchproxy/internal/testutil"
)

func newTestWebAdapter(port int) *WebAdapter {
	return &WebAdapter{
		Dialer:       dialer.NewDirectDialer(dialer.Config{}),
		Port:         port,
		LoopbackPort: port,
	}
}

func TestWebAdapterFetch(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		reply      string
		wantStatus int
		wantBody   string
		wantErr    error
	}{
		{
			name:       "ok",
			reply:      "HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\n\r\nA\r\nB\r\n0\r\nignored\r\n",
			wantStatus: 200,
			wantBody:   "HTTP/1.1 200 OK\nContent-Type: text/plain\n\nA\nB\n",
		},
		{
			name:       "ok_without_end_line",
			reply:      "HTTP/1.1 200 OK\n\nA\nB",
			wantStatus: 200,
			wantBody:   "HTTP/1.1 200 OK\n\nA\nB\n",
		},
		{
			name:       "not_found_discards_upstream_body",
			reply:      "HTTP/1.1 404 Not Found\r\nServer: x\r\n\r\n<p>custom page</p>\r\n0\r\n",
			wantStatus: 404,
			wantBody:   NotFoundBody,
			wantErr:    ErrNotFound,
		},
		{
			name:       "other_status_relays_header_only",
			reply:      "HTTP/1.1 500 Internal Server Error\r\nServer: x\r\n\r\nboom\r\n0\r\n",
			wantStatus: 500,
			wantBody:   "HTTP/1.1 500 Internal Server Error\nServer: x\n\n",
			wantErr:    ErrUnhandledStatus,
		},
		{
			name:       "unparseable_status",
			reply:      "garbage\r\n\r\nbody\r\n",
			wantStatus: 0,
			wantBody:   "garbage\n\n",
			wantErr:    ErrUnhandledStatus,
		},
		{
			name:    "empty_reply",
			reply:   "",
			wantErr: ErrUpstreamIO,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			up := testutil.StartWebUpstream(t, tt.reply)
			a := newTestWebAdapter(up.Port())

			resp := a.Fetch(context.Background(), "127.0.0.1", "/index.html")
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("StatusCode=%d want %d", resp.StatusCode, tt.wantStatus)
			}
			if resp.Body != tt.wantBody {
				t.Fatalf("Body=%q want %q", resp.Body, tt.wantBody)
			}
			if tt.wantErr == nil && resp.Err != nil {
				t.Fatalf("unexpected error: %v", resp.Err)
			}
			if tt.wantErr != nil && !errors.Is(resp.Err, tt.wantErr) {
				t.Fatalf("Err=%v want %v", resp.Err, tt.wantErr)
			}
		})
	}
}

func TestWebAdapterSendsBareGet(t *testing.T) {
	t.Parallel()

	up := testutil.StartWebUpstream(t, "HTTP/1.1 200 OK\r\n\r\n0\r\n")
	a := newTestWebAdapter(up.Port())

	_ = a.Fetch(context.Background(), "127.0.0.1", "/a/b.txt")

	reqs := up.Requests()
	if len(reqs) != 1 {
		t.Fatalf("got %d requests, want 1", len(reqs))
	}
	if reqs[0] != "GET /a/b.txt HTTP/1.1" {
		t.Fatalf("request=%q", reqs[0])
	}
}

func TestWebAdapterConnectFailure(t *testing.T) {
	t.Parallel()

	_, portStr, err := net.SplitHostPort(testutil.ClosedPort(t))
	if err != nil {
		t.Fatal(err)
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		t.Fatal(err)
	}

	resp := newTestWebAdapter(port).Fetch(context.Background(), "127.0.0.1", "/")
	if resp.Body != ConnectFailedBody {
		t.Fatalf("Body=%q want %q", resp.Body, ConnectFailedBody)
	}
	if !errors.Is(resp.Err, ErrConnect) {
		t.Fatalf("Err=%v want ErrConnect", resp.Err)
	}
	if resp.Outcome() != "connect_error" {
		t.Fatalf("Outcome()=%q", resp.Outcome())
	}
}

func TestWebAdapterThroughSOCKS5(t *testing.T) {
	t.Parallel()

	up := testutil.StartWebUpstream(t, "HTTP/1.1 200 OK\r\n\r\nproxied\r\n0\r\n")
	socksLn := testutil.StartSOCKS5Server(t, context.Background(), "", "")

	a := &WebAdapter{
		Dialer:       dialer.NewSOCKS5ProxyDialer(dialer.Config{}, socksLn.Addr().String(), "", ""),
		Port:         up.Port(),
		LoopbackPort: up.Port(),
	}

	resp := a.Fetch(context.Background(), "127.0.0.1", "/")
	if resp.Err != nil {
		t.Fatal(resp.Err)
	}
	if want := "HTTP/1.1 200 OK\n\nproxied\n"; resp.Body != want {
		t.Fatalf("Body=%q want %q", resp.Body, want)
	}
}

func TestWebAdapterThroughHTTPProxy(t *testing.T) {
	t.Parallel()

	up := testutil.StartWebUpstream(t, "HTTP/1.1 200 OK\r\n\r\nvia connect\r\n0\r\n")
	proxyLn := testutil.StartHTTPConnectProxy(t, context.Background(), "Basic dXNlcjpwYXNz")

	d, err := dialer.New(dialer.Config{}, "http://user:pass@"+proxyLn.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	if dialer.IsDirect(d) {
		t.Fatal("proxy dialer reported as direct")
	}

	a := &WebAdapter{Dialer: d, Port: up.Port(), LoopbackPort: up.Port()}

	resp := a.Fetch(context.Background(), "127.0.0.1", "/index.html")
	if resp.Err != nil {
		t.Fatal(resp.Err)
	}
	if want := "HTTP/1.1 200 OK\n\nvia connect\n"; resp.Body != want {
		t.Fatalf("Body=%q want %q", resp.Body, want)
	}
	if reqs := up.Requests(); len(reqs) != 1 || reqs[0] != "GET /index.html HTTP/1.1" {
		t.Fatalf("upstream requests=%q", reqs)
	}
}

func TestWebAdapterHTTPProxyRejectsAuth(t *testing.T) {
	t.Parallel()

	proxyLn := testutil.StartHTTPConnectProxy(t, context.Background(), "Basic dXNlcjpwYXNz")

	d, err := dialer.New(dialer.Config{}, "http://"+proxyLn.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	a := &WebAdapter{Dialer: d, Port: 80, LoopbackPort: 80}

	resp := a.Fetch(context.Background(), "127.0.0.1", "/")
	if resp.Body != ConnectFailedBody {
		t.Fatalf("Body=%q want %q", resp.Body, ConnectFailedBody)
	}
	if !errors.Is(resp.Err, ErrConnect) {
		t.Fatalf("Err=%v want ErrConnect", resp.Err)
	}
}

func TestWebAdapterTargetPort(t *testing.T) {
	t.Parallel()

	a := &WebAdapter{Port: 80, LoopbackPort: 800, LocalHosts: []string{"myhost", "10.1.2.3"}}

	tests := []struct {
		host string
		want int
	}{
		{host: "localhost", want: 800},
		{host: "127.0.0.1", want: 800},
		{host: "::1", want: 800},
		{host: "myhost", want: 800},
		{host: "10.1.2.3", want: 800},
		{host: "example.com", want: 80},
		{host: "10.1.2.4", want: 80},
	}

	for _, tt := range tests {
		if got := a.targetPort(tt.host); got != tt.want {
			t.Errorf("targetPort(%q)=%d want %d", tt.host, got, tt.want)
		}
	}
}
