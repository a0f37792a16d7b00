package testutil

import (
	"bufio"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
)

// WebUpstream is a scripted web server: every connection gets the same raw
// reply after its request header has been read.
type WebUpstream struct {
	ln    net.Listener
	reply string

	mu       sync.Mutex
	requests []string

	wg sync.WaitGroup
}

// StartWebUpstream serves reply verbatim to every connection until the test
// ends.
func StartWebUpstream(t *testing.T, reply string) *WebUpstream {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	w := &WebUpstream{ln: ln, reply: reply}
	w.wg.Add(1)
	go w.serve()

	t.Cleanup(func() {
		_ = ln.Close()
		w.wg.Wait()
	})
	return w
}

// Port returns the listening port.
func (w *WebUpstream) Port() int {
	return w.ln.Addr().(*net.TCPAddr).Port
}

// Requests returns the request headers received so far, one string per
// connection, lines joined with "\n".
func (w *WebUpstream) Requests() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]string(nil), w.requests...)
}

func (w *WebUpstream) serve() {
	defer w.wg.Done()
	for {
		c, err := w.ln.Accept()
		if err != nil {
			return
		}
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			defer c.Close()
			w.handle(c)
		}()
	}
}

func (w *WebUpstream) handle(c net.Conn) {
	br := bufio.NewReader(c)
	var lines []string
	for {
		line, err := br.ReadString('\n')
		line = strings.TrimRight(line, "\r\n")
		if line == "" || err != nil {
			break
		}
		lines = append(lines, line)
	}

	w.mu.Lock()
	w.requests = append(w.requests, strings.Join(lines, "\n"))
	w.mu.Unlock()

	_, _ = io.WriteString(c, w.reply)
}
