// Package fetch implements the two upstream adapters of the proxy.
//
// WebAdapter sends one bare GET request and reads the reply line by line.
// FileTransferAdapter logs in to a file-transfer server, retrieves one file
// in passive binary mode and renders it as text. Both open every upstream
// socket through a dialer.Dialer and never return an error past Fetch: each
// failure is folded into a Response whose Body is what the client sees and
// whose Err classifies what happened.
package fetch
