package wire

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Terminator is the line that ends every framed response.
const Terminator = "done"

// WriteFrame writes body followed by the terminator line and flushes w.
// A body that does not end in a newline gets one, so the terminator always
// starts a line of its own.
func WriteFrame(w *bufio.Writer, body string) error {
	if _, err := w.WriteString(body); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	if body != "" && !strings.HasSuffix(body, "\n") && !strings.HasSuffix(body, "\r") {
		if err := w.WriteByte('\n'); err != nil {
			return fmt.Errorf("write body: %w", err)
		}
	}
	if _, err := w.WriteString(Terminator + "\n"); err != nil {
		return fmt.Errorf("write terminator: %w", err)
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	return nil
}

// ReadFrame reads lines until one equals the terminator and returns the lines
// before it, each followed by "\n". If the stream ends first, the lines read
// so far are returned with io.ErrUnexpectedEOF.
func ReadFrame(r io.Reader) (string, error) {
	lr := NewLineReader(r)

	var sb strings.Builder
	for {
		line, err := lr.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return sb.String(), io.ErrUnexpectedEOF
			}
			return sb.String(), err
		}
		if line == Terminator {
			return sb.String(), nil
		}
		sb.WriteString(line)
		sb.WriteByte('\n')
	}
}

// ContainsTerminator reports whether body has a line equal to the terminator,
// which would end the frame early for a reader.
func ContainsTerminator(body string) bool {
	lr := NewLineReader(strings.NewReader(body))
	for {
		line, err := lr.ReadLine()
		if err != nil {
			return false
		}
		if line == Terminator {
			return true
		}
	}
}
