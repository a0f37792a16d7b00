package webserver

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/die-net/fetchproxy/internal/dialer"
	"github.com/die-net/fetchproxy/internal/fetch"
	"github.com/die-net/fetchproxy/internal/logging"
)

func startServer(t *testing.T) int {
	t.Helper()

	root := t.TempDir()
	for name, body := range map[string]string{
		"index.html":     "<p>home</p>\n",
		"notes/todo.txt": "one\ntwo",
		"style.css":      "p { }\n",
	} {
		full := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(full, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	srv := NewServer(&Handler{Root: root, Logger: logging.Discard()})
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(ln)
	}()
	t.Cleanup(func() {
		_ = ln.Close()
		<-done
	})

	return ln.Addr().(*net.TCPAddr).Port
}

func rawRequest(t *testing.T, port int, req string) string {
	t.Helper()

	c, err := net.Dial("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	_ = c.SetDeadline(time.Now().Add(5 * time.Second))

	if _, err := io.WriteString(c, req); err != nil {
		t.Fatal(err)
	}
	b, err := io.ReadAll(c)
	if err != nil && !errors.Is(err, io.EOF) {
		t.Fatal(err)
	}
	return string(b)
}

func TestHandlerRaw(t *testing.T) {
	t.Parallel()

	port := startServer(t)

	tests := []struct {
		name       string
		req        string
		wantStatus string
		wantBody   string
	}{
		{
			name:       "index",
			req:        "GET / HTTP/1.1\r\n\r\n",
			wantStatus: "HTTP/1.1 200 OK",
			wantBody:   "<p>home</p>\n0\r\n",
		},
		{
			name:       "unterminated_file",
			req:        "GET /notes/todo.txt HTTP/1.1\r\n\r\n",
			wantStatus: "HTTP/1.1 200 OK",
			wantBody:   "one\ntwo\r\n0\r\n",
		},
		{
			name:       "missing",
			req:        "GET /missing.html HTTP/1.1\r\n\r\n",
			wantStatus: "HTTP/1.1 404 Not Found",
			wantBody:   NotFoundPage,
		},
		{
			name:       "directory",
			req:        "GET /notes HTTP/1.1\r\n\r\n",
			wantStatus: "HTTP/1.1 404 Not Found",
			wantBody:   NotFoundPage,
		},
		{
			name:       "escape_root",
			req:        "GET /../../etc/passwd HTTP/1.1\r\n\r\n",
			wantStatus: "HTTP/1.1 404 Not Found",
			wantBody:   NotFoundPage,
		},
		{
			name:       "post_not_implemented",
			req:        "POST / HTTP/1.1\r\nContent-Length: 0\r\n\r\n",
			wantStatus: "HTTP/1.1 501 Not Implemented",
			wantBody:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			resp := rawRequest(t, port, tt.req)
			head, body, ok := strings.Cut(resp, "\r\n\r\n")
			if !ok {
				t.Fatalf("no header terminator in %q", resp)
			}
			if status, _, _ := strings.Cut(head, "\r\n"); status != tt.wantStatus {
				t.Fatalf("status=%q want %q", status, tt.wantStatus)
			}
			if body != tt.wantBody {
				t.Fatalf("body=%q want %q", body, tt.wantBody)
			}
		})
	}
}

func TestHandlerContentType(t *testing.T) {
	t.Parallel()

	port := startServer(t)
	resp := rawRequest(t, port, "GET /style.css HTTP/1.1\r\n\r\n")
	if !strings.Contains(resp, "Content-Type: text/css") {
		t.Fatalf("missing css content type in %q", resp)
	}
}

func TestHandlerWithWebAdapter(t *testing.T) {
	t.Parallel()

	port := startServer(t)
	a := &fetch.WebAdapter{
		Dialer:       dialer.NewDirectDialer(dialer.Config{}),
		Port:         port,
		LoopbackPort: port,
		Logger:       logging.Discard(),
	}

	resp := a.Fetch(context.Background(), "127.0.0.1", "/")
	if resp.Err != nil {
		t.Fatal(resp.Err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("StatusCode=%d", resp.StatusCode)
	}
	if !strings.HasSuffix(resp.Body, "\n\n<p>home</p>\n") {
		t.Fatalf("Body=%q", resp.Body)
	}

	resp = a.Fetch(context.Background(), "127.0.0.1", "/nope.html")
	if !errors.Is(resp.Err, fetch.ErrNotFound) || resp.Body != fetch.NotFoundBody {
		t.Fatalf("404 fetch: %+v", resp)
	}
}
