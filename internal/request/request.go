package request

import (
	"errors"
	"fmt"
)

// ErrInvalidURL is returned for a malformed locator or an unsupported scheme.
var ErrInvalidURL = errors.New("invalid URL")

// Protocol selects the upstream adapter for a request.
type Protocol int

const (
	// Web fetches the resource with a single GET request.
	Web Protocol = iota + 1
	// FileTransfer retrieves the resource over the file-transfer protocol.
	FileTransfer
)

func (p Protocol) String() string {
	switch p {
	case Web:
		return "web"
	case FileTransfer:
		return "ftp"
	default:
		return fmt.Sprintf("protocol(%d)", int(p))
	}
}

// Credentials are passed through to a file-transfer server.
type Credentials struct {
	User string
	Pass string
}

// Parsed is the immutable result of parsing one request line.
type Parsed struct {
	Protocol Protocol
	Host     string
	// Resource is never empty; it defaults to "/".
	Resource string
	// Credentials is nil unless Protocol is FileTransfer and the line carried
	// a user and a password.
	Credentials *Credentials
}
