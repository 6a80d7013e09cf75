// Package framer turns arbitrary-sized chunks of child-process output into a
// stream of complete, cleaned lines.
package framer

import (
	"context"
	"errors"
	"regexp"
	"strings"
)

// ErrNotIterable indicates the framer was wired to a nil chunk source. This
// is a programming error, not a runtime condition.
var ErrNotIterable = errors.New("framer: chunk source is not iterable")

var (
	// ANSI escape sequences: CSI sequences, OSC sequences and bare
	// two-byte escapes.
	ansiRe = regexp.MustCompile(`\x1b(?:\[[0-9;?]*[@-~]|\][^\x07\x1b]*(?:\x07|\x1b\\)|[@-Z\\-_])`)
	// Non-printable control characters, excluding tab, newline and
	// carriage return which the line splitter handles itself.
	controlRe = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]")
)

// Clean strips terminal escape sequences and non-printable control
// characters from a string.
func Clean(s string) string {
	s = ansiRe.ReplaceAllString(s, "")
	return controlRe.ReplaceAllString(s, "")
}

// LineFramer buffers partial line content across chunk boundaries. Bytes are
// never dropped or reordered: every newline-terminated run of input comes
// back out as exactly one line.
type LineFramer struct {
	partial string
}

// Push feeds one chunk into the framer and returns the complete lines it
// terminated. Lines are cleaned and trimmed. Trailing content without a
// newline is retained for the next Push.
func (f *LineFramer) Push(chunk string) []string {
	buf := f.partial + chunk

	parts := strings.Split(buf, "\n")
	f.partial = parts[len(parts)-1]

	lines := make([]string, 0, len(parts)-1)
	for _, part := range parts[:len(parts)-1] {
		lines = append(lines, strings.TrimSpace(Clean(part)))
	}
	return lines
}

// Flush returns the buffered partial line, if any. Used when the upstream
// source ends without a final newline.
func (f *LineFramer) Flush() (string, bool) {
	if f.partial == "" {
		return "", false
	}
	line := strings.TrimSpace(Clean(f.partial))
	f.partial = ""
	return line, line != ""
}

// Gate is consulted before each chunk is consumed. It blocks while the
// session is not ready for more output (backpressure).
type Gate interface {
	Wait(ctx context.Context) error
}

type nopGate struct{}

func (nopGate) Wait(context.Context) error { return nil }

// Run drives the framer over a channel of raw chunks, invoking emit for each
// complete line and once more for a buffered trailing line when the source
// closes. The gate is awaited before every chunk, pausing the stream without
// losing or duplicating bytes. A non-nil error from emit stops consumption.
func Run(ctx context.Context, chunks <-chan []byte, gate Gate, emit func(line string) error) error {
	if chunks == nil {
		return ErrNotIterable
	}
	if gate == nil {
		gate = nopGate{}
	}

	var f LineFramer
	for {
		if err := gate.Wait(ctx); err != nil {
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case chunk, ok := <-chunks:
			if !ok {
				if line, ok := f.Flush(); ok {
					return emit(line)
				}
				return nil
			}
			for _, line := range f.Push(string(chunk)) {
				if err := emit(line); err != nil {
					return err
				}
			}
		}
	}
}
