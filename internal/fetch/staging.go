package fetch

import (
	"bytes"

	"github.com/valyala/bytebufferpool"

	"github.com/die-net/fetchproxy/internal/wire"
)

var stagingPool bytebufferpool.Pool

// staging holds a downloaded file until it is rendered as text. The backing
// buffer goes back to the pool on release, whatever happened to the fetch.
type staging struct {
	buf *bytebufferpool.ByteBuffer
}

func newStaging() *staging {
	return &staging{buf: stagingPool.Get()}
}

func (s *staging) Write(p []byte) (int, error) {
	return s.buf.Write(p)
}

func (s *staging) Len() int {
	return s.buf.Len()
}

// Text renders the staged bytes line by line, each line followed by "\n".
func (s *staging) Text() (string, error) {
	return wire.NewLineReader(bytes.NewReader(s.buf.B)).ReadLines()
}

func (s *staging) release() {
	if s.buf == nil {
		return
	}
	stagingPool.Put(s.buf)
	s.buf = nil
}
