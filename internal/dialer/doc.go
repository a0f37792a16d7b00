// Package dialer opens the upstream connections used by the fetch adapters.
//
// Every socket a fetch opens (the web request connection, the file-transfer
// control connection and its passive data connections) goes through a
// Dialer. The default dials directly; an HTTP CONNECT or SOCKS5 upstream
// proxy can be configured instead.
package dialer
