package testutil

import (
	"errors"
	"fmt"
	"io"
	"net"
	"net/textproto"
	"strings"
	"sync"
	"testing"
	"time"
)

// FTPLogin records one USER/PASS exchange seen by an FTPServer.
type FTPLogin struct {
	User string
	Pass string
	OK   bool
}

// FTPServer is a minimal in-process file-transfer server. It understands
// USER, PASS, FEAT, TYPE, OPTS, EPSV, PASV, RETR, NOOP and QUIT.
type FTPServer struct {
	ln    net.Listener
	files map[string]string
	users map[string]string

	mu       sync.Mutex
	logins   []FTPLogin
	commands []string

	wg       sync.WaitGroup
	sessions sync.WaitGroup
}

// StartFTPServer serves files (keyed by the RETR argument) to the accounts in
// users (user name to password) until the test ends.
func StartFTPServer(t *testing.T, files, users map[string]string) *FTPServer {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	s := &FTPServer{ln: ln, files: files, users: users}
	s.wg.Add(1)
	go s.serve()

	t.Cleanup(func() {
		_ = ln.Close()
		s.wg.Wait()
	})
	return s
}

// Port returns the control connection port.
func (s *FTPServer) Port() int {
	return s.ln.Addr().(*net.TCPAddr).Port
}

// Logins returns the login attempts seen so far.
func (s *FTPServer) Logins() []FTPLogin {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]FTPLogin(nil), s.logins...)
}

// Wait blocks until every control connection accepted so far has ended.
// Clients do not wait for the reply to QUIT, so call it before inspecting
// Commands after a client is done.
func (s *FTPServer) Wait() {
	s.sessions.Wait()
}

// Commands returns the command verbs received so far, in order.
func (s *FTPServer) Commands() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.commands...)
}

func (s *FTPServer) serve() {
	defer s.wg.Done()
	for {
		c, err := s.ln.Accept()
		if err != nil {
			return
		}
		s.wg.Add(1)
		s.sessions.Add(1)
		go func() {
			defer s.wg.Done()
			defer s.sessions.Done()
			s.session(c)
		}()
	}
}

func (s *FTPServer) session(c net.Conn) {
	tp := textproto.NewConn(c)
	defer tp.Close()

	var (
		user string
		data net.Listener
	)
	defer func() {
		if data != nil {
			_ = data.Close()
		}
	}()

	reply := func(format string, args ...any) bool {
		return tp.PrintfLine(format, args...) == nil
	}

	if !reply("220 test server ready") {
		return
	}

	for {
		line, err := tp.ReadLine()
		if err != nil {
			return
		}
		verb, arg, _ := strings.Cut(line, " ")
		verb = strings.ToUpper(verb)

		s.mu.Lock()
		s.commands = append(s.commands, verb)
		s.mu.Unlock()

		var ok bool
		switch verb {
		case "USER":
			user = arg
			ok = reply("331 password required for %s", user)
		case "PASS":
			want, known := s.users[user]
			accepted := known && want == arg
			s.mu.Lock()
			s.logins = append(s.logins, FTPLogin{User: user, Pass: arg, OK: accepted})
			s.mu.Unlock()
			if accepted {
				ok = reply("230 logged in")
			} else {
				ok = reply("530 Login incorrect.")
			}
		case "TYPE", "OPTS", "NOOP":
			ok = reply("200 ok")
		case "EPSV", "PASV":
			if data != nil {
				_ = data.Close()
			}
			data, err = net.Listen("tcp", "127.0.0.1:0")
			if err != nil {
				ok = reply("425 cannot open data connection")
				break
			}
			port := data.Addr().(*net.TCPAddr).Port
			if verb == "EPSV" {
				ok = reply("229 Entering Extended Passive Mode (|||%d|)", port)
			} else {
				ok = reply("227 Entering Passive Mode (127,0,0,1,%d,%d)", port>>8, port&0xff)
			}
		case "RETR":
			ok = s.retrieve(tp, data, arg)
			if data != nil {
				_ = data.Close()
				data = nil
			}
		case "QUIT":
			_ = reply("221 bye")
			return
		default:
			ok = reply("502 command not implemented")
		}
		if !ok {
			return
		}
	}
}

func (s *FTPServer) retrieve(tp *textproto.Conn, data net.Listener, name string) bool {
	if data == nil {
		return tp.PrintfLine("425 use PASV first") == nil
	}

	dc, err := acceptWithin(data, 2*time.Second)
	if err != nil {
		return tp.PrintfLine("425 no data connection") == nil
	}

	content, found := s.files[name]
	if !found {
		_ = dc.Close()
		return tp.PrintfLine("550 %s: no such file", name) == nil
	}

	if err := tp.PrintfLine("150 opening binary mode data connection"); err != nil {
		_ = dc.Close()
		return false
	}
	_, _ = io.WriteString(dc, content)
	_ = dc.Close()
	return tp.PrintfLine("226 transfer complete") == nil
}

func acceptWithin(ln net.Listener, d time.Duration) (net.Conn, error) {
	tl, ok := ln.(*net.TCPListener)
	if !ok {
		return nil, errors.New("not a tcp listener")
	}
	if err := tl.SetDeadline(time.Now().Add(d)); err != nil {
		return nil, fmt.Errorf("set deadline: %w", err)
	}
	return tl.Accept()
}
