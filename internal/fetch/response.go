package fetch

import (
	"errors"
)

// Bodies sent to the client for failures it is told about.
const (
	ConnectFailedBody = "Couldn't connect to server"
	AuthFailedBody    = "Invalid Username/Password"
	NotFoundBody      = "<html>\r\n" +
		"<head><title>File Not Found</title>\r\n" +
		"<head>\r\n" +
		"<body><h1>HTTP Error 404: File Not Found</h1>\r\n" +
		"</body></html>\r\n"
)

var (
	// ErrConnect means the upstream (or its data connection) could not be
	// reached.
	ErrConnect = errors.New("couldn't connect to server")
	// ErrAuth means the file-transfer server rejected the credentials.
	ErrAuth = errors.New("login rejected")
	// ErrNotFound means the web upstream answered 404.
	ErrNotFound = errors.New("not found")
	// ErrUnhandledStatus means the web upstream answered something other than
	// 200 or 404; only its header is relayed.
	ErrUnhandledStatus = errors.New("unhandled status")
	// ErrRetrieve means a file-transfer retrieval failed after login.
	ErrRetrieve = errors.New("retrieve failed")
	// ErrUpstreamIO means the upstream connection failed mid-exchange.
	ErrUpstreamIO = errors.New("upstream i/o")
)

// Response is the result of one adapter invocation.
type Response struct {
	// StatusCode is the web status, or 0 when absent or not applicable.
	StatusCode int
	// Body is the newline-joined text relayed to the client.
	Body string
	// Err classifies a failure. It is nil on success.
	Err error
}

// Outcome returns a short, stable label for r, suitable for logs and
// metric labels.
func (r Response) Outcome() string {
	switch {
	case r.Err == nil:
		return "ok"
	case errors.Is(r.Err, ErrConnect):
		return "connect_error"
	case errors.Is(r.Err, ErrAuth):
		return "auth_error"
	case errors.Is(r.Err, ErrNotFound):
		return "not_found"
	case errors.Is(r.Err, ErrUnhandledStatus):
		return "unhandled_status"
	case errors.Is(r.Err, ErrRetrieve):
		return "retrieve_error"
	default:
		return "upstream_error"
	}
}
