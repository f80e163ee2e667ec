// Package eol converts bare line feeds to CRLF for terminal display.
package eol

import (
	"bytes"
	"io"
	"strings"
)

// Normalizer rewrites bare "\n" to "\r\n".
// It remembers the last byte it saw, so a "\r\n" split across two calls is left alone.
// A Normalizer must not be shared between streams.
type Normalizer struct {
	lastCR bool
}

func (n *Normalizer) Normalize(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b) + bytes.Count(b, []byte{'\n'}))
	for _, c := range b {
		if c == '\n' && !n.lastCR {
			sb.WriteByte('\r')
		}
		sb.WriteByte(c)
		n.lastCR = c == '\r'
	}
	return sb.String()
}

// Normalize converts every bare "\n" in s to "\r\n". It is idempotent.
func Normalize(s string) string {
	var n Normalizer
	return n.Normalize([]byte(s))
}

type writer struct {
	w    io.Writer
	norm Normalizer
}

// NewWriter returns a writer that normalizes line endings before writing to w,
// for displays that, like a raw-mode TTY, don't return the carriage on "\n".
func NewWriter(w io.Writer) io.Writer {
	return &writer{w: w}
}

func (w *writer) Write(p []byte) (int, error) {
	if _, err := io.WriteString(w.w, w.norm.Normalize(p)); err != nil {
		return 0, err
	}
	return len(p), nil
}
