// Package request parses the single request line a proxy client sends.
//
// A line is "<locator>" or "<locator> <user> <pass>", where the locator is
// "scheme://host[/path]" or a bare "host[/path]". The ftp scheme selects the
// file-transfer protocol; http and https (and a bare locator with a valid
// host) select the web protocol. Anything else is rejected with
// ErrInvalidURL before any upstream is contacted.
package request
