// Package webserver is a small static-file web server that speaks the dialect
// the fetch proxy's web adapter expects: every 200 body is followed by a line
// holding a single "0".
package webserver

import (
	"errors"
	"io/fs"
	"log/slog"
	"mime"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/valyala/fasthttp"
)

// NotFoundPage is the body of every 404 reply.
const NotFoundPage = "<html>\r\n" +
	"<head><title>File Not Found</title>\r\n" +
	"<head>\r\n" +
	"<body><h1>HTTP Error 404: File Not Found</h1>\r\n" +
	"</body></html>\r\n"

const (
	bodyEnd      = "0\r\n"
	defaultIndex = "/index.html"
	serverName   = "fetch-webserver"
)

// Handler serves files below Root.
type Handler struct {
	Root string
	// Index replaces a request for "/". Defaults to /index.html.
	Index  string
	Logger *slog.Logger
}

// NewServer returns a fasthttp server running h.
func NewServer(h *Handler) *fasthttp.Server {
	return &fasthttp.Server{
		Handler:              h.Serve,
		Name:                 serverName,
		NoDefaultContentType: true,
		DisableKeepalive:     true,
		MaxRequestBodySize:   1 << 20,
	}
}

// Serve handles one request.
func (h *Handler) Serve(ctx *fasthttp.RequestCtx) {
	start := time.Now()
	ctx.SetConnectionClose()

	switch {
	case ctx.IsGet():
		h.serveFile(ctx)
	default:
		ctx.SetStatusCode(fasthttp.StatusNotImplemented)
		ctx.SetContentType("text/html")
	}

	if h.Logger != nil {
		h.Logger.Info("request",
			"remote", ctx.RemoteIP().String(),
			"method", string(ctx.Method()),
			"path", string(ctx.Path()),
			"status", ctx.Response.StatusCode(),
			"size", humanize.Bytes(uint64(len(ctx.Response.Body()))),
			"duration", time.Since(start),
		)
	}
}

func (h *Handler) serveFile(ctx *fasthttp.RequestCtx) {
	name := string(ctx.Path())
	if name == "/" {
		name = h.Index
		if name == "" {
			name = defaultIndex
		}
	}

	content, err := h.read(name)
	if err != nil {
		if h.Logger != nil && !errors.Is(err, fs.ErrNotExist) {
			h.Logger.Warn("read file failed", "path", name, "err", err)
		}
		ctx.SetStatusCode(fasthttp.StatusNotFound)
		ctx.SetContentType("text/html")
		ctx.SetBodyString(NotFoundPage)
		return
	}

	ctype := mime.TypeByExtension(path.Ext(name))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	ctx.SetStatusCode(fasthttp.StatusOK)
	ctx.SetContentType(ctype)

	ctx.Response.AppendBody(content)
	if len(content) > 0 && content[len(content)-1] != '\n' && content[len(content)-1] != '\r' {
		ctx.Response.AppendBodyString("\r\n")
	}
	ctx.Response.AppendBodyString(bodyEnd)
}

// read returns the file at the slash-separated name below Root. Names that
// escape Root and directories are reported as not existing.
func (h *Handler) read(name string) ([]byte, error) {
	clean := path.Clean("/" + name)
	if strings.Contains(clean, "\x00") {
		return nil, fs.ErrNotExist
	}
	full := filepath.Join(h.Root, filepath.FromSlash(clean))

	fi, err := os.Stat(full)
	if err != nil {
		return nil, err
	}
	if fi.IsDir() {
		return nil, fs.ErrNotExist
	}
	return os.ReadFile(full)
}
