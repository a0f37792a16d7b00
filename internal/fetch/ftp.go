package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/textproto"
	"strconv"

	"github.com/jlaffaye/ftp"

	"github.com/die-net/fetchproxy/internal/dialer"
	"github.com/die-net/fetchproxy/internal/request"
)

const anonymous = "anonymous"

// FileTransferAdapter retrieves one file per call from a file-transfer
// server, in passive binary mode.
type FileTransferAdapter struct {
	// Dialer opens both the control and the passive data connections.
	Dialer dialer.Dialer
	Port   int
	// DisableEPSV restricts passive mode to PASV. Set it when Dialer goes
	// through an upstream proxy: EPSV replies carry only a port, which the
	// client would pair with the proxy's address.
	DisableEPSV bool
	Logger      *slog.Logger
}

// Fetch retrieves resource from host. Missing credentials default to
// anonymous/anonymous. It never fails; see Response.
func (a *FileTransferAdapter) Fetch(ctx context.Context, host, resource string, creds *request.Credentials) Response {
	user, pass := anonymous, anonymous
	if creds != nil {
		user, pass = creds.User, creds.Pass
	}
	log := a.logger().With("host", host, "resource", resource, "user", user)

	stage := newStaging()
	defer stage.release()

	addr := net.JoinHostPort(host, strconv.Itoa(a.Port))
	c, err := ftp.Dial(addr,
		ftp.DialWithContext(ctx),
		ftp.DialWithDialFunc(func(network, address string) (net.Conn, error) {
			return a.Dialer.DialContext(ctx, network, address)
		}),
		ftp.DialWithDisabledEPSV(a.DisableEPSV),
	)
	if err != nil {
		log.Warn("ftp connect failed", "addr", addr, "err", err)
		return Response{Body: ConnectFailedBody, Err: fmt.Errorf("%w: %w", ErrConnect, err)}
	}
	defer func() {
		if err := c.Quit(); err != nil {
			log.Debug("ftp quit failed", "err", err)
		}
	}()

	if err := c.Login(user, pass); err != nil {
		if isTransportError(err) {
			log.Warn("ftp connection lost during login", "err", err)
			return Response{Body: ConnectFailedBody, Err: fmt.Errorf("%w: login: %w", ErrConnect, err)}
		}
		log.Warn("ftp login failed", "code", replyCode(err), "err", err)
		return Response{Body: AuthFailedBody, Err: fmt.Errorf("%w: %w", ErrAuth, err)}
	}

	// Binary mode is fixed; Login requests it too.
	if err := c.Type(ftp.TransferTypeBinary); err != nil {
		log.Warn("ftp binary mode failed", "err", err)
	}

	var retrErr error
	if err := a.retrieve(c, resource, stage); err != nil {
		log.Warn("ftp retrieve failed", "staged", stage.Len(), "err", err)
		retrErr = fmt.Errorf("%w: %w", ErrRetrieve, err)
	}

	body, err := stage.Text()
	if err != nil && retrErr == nil {
		retrErr = fmt.Errorf("%w: render: %w", ErrRetrieve, err)
	}
	return Response{Body: body, Err: retrErr}
}

func (a *FileTransferAdapter) retrieve(c *ftp.ServerConn, resource string, w io.Writer) error {
	r, err := c.Retr(resource)
	if err != nil {
		return err
	}
	_, copyErr := io.Copy(w, r)
	closeErr := r.Close()
	if copyErr != nil {
		return copyErr
	}
	return closeErr
}

func (a *FileTransferAdapter) logger() *slog.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return slog.Default()
}

// isTransportError reports whether err came from the control connection
// rather than from a server reply.
func isTransportError(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, net.ErrClosed)
}

// replyCode extracts the server reply code from err, or 0.
func replyCode(err error) int {
	var te *textproto.Error
	if errors.As(err, &te) {
		return te.Code
	}
	return 0
}
