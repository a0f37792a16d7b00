package wire

import (
	"bufio"
	"errors"
	"io"
	"strings"
)

// LineReader reads text lines terminated by LF, CR or CRLF.
type LineReader struct {
	r      *bufio.Reader
	skipLF bool
}

// NewLineReader returns a LineReader reading from r. If r is already a
// *bufio.Reader it is used as is.
func NewLineReader(r io.Reader) *LineReader {
	br, ok := r.(*bufio.Reader)
	if !ok {
		br = bufio.NewReader(r)
	}
	return &LineReader{r: br}
}

// ReadLine returns the next line without its terminator.
//
// A final line that ends at end-of-stream is returned with a nil error; the
// following call returns io.EOF. Other read errors are returned as is, after
// any partial line has been discarded.
func (lr *LineReader) ReadLine() (string, error) {
	var sb strings.Builder
	for {
		b, err := lr.r.ReadByte()
		if err != nil {
			lr.skipLF = false
			if errors.Is(err, io.EOF) && sb.Len() > 0 {
				return sb.String(), nil
			}
			return "", err
		}

		if lr.skipLF {
			lr.skipLF = false
			if b == '\n' {
				continue
			}
		}

		switch b {
		case '\n':
			return sb.String(), nil
		case '\r':
			lr.skipLF = true
			return sb.String(), nil
		}
		sb.WriteByte(b)
	}
}

// ReadLines reads lines until end-of-stream and returns them joined, each
// followed by "\n". A read error other than io.EOF is returned together with
// the lines read before it.
func (lr *LineReader) ReadLines() (string, error) {
	var sb strings.Builder
	for {
		line, err := lr.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return sb.String(), nil
			}
			return sb.String(), err
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
}
