package proxy

import (
	"log/slog"

	"github.com/die-net/fetchproxy/internal/fetch"
	"github.com/die-net/fetchproxy/internal/metrics"
)

// Config wires a Server to its adapters and observability sinks.
type Config struct {
	// Workers bounds the number of connections handled at once. Accepted
	// connections beyond it wait, without any signal to the client.
	Workers int

	Web          *fetch.WebAdapter
	FileTransfer *fetch.FileTransferAdapter

	Logger  *slog.Logger
	Metrics *metrics.Metrics
}
