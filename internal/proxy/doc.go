// Package proxy implements the fetch proxy's listener and per-connection
// handler.
//
// A Server accepts connections and runs one handler per connection on a
// bounded pool. The handler reads a single request line, parses it, fetches
// the resource through the web or file-transfer adapter and writes the body
// back followed by a "done" line, then closes the connection.
package proxy
