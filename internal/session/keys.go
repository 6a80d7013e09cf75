package session

import (
	"context"
	"io"
	"log/slog"

	"golang.org/x/term"
)

// KeyName identifies special keys; printable keys carry their rune instead.
type KeyName string

const (
	KeyRune      KeyName = "rune"
	KeyEnter     KeyName = "enter"
	KeyBackspace KeyName = "backspace"
	KeyTab       KeyName = "tab"
	KeyCtrlC     KeyName = "ctrl+c"
	KeyCtrlQ     KeyName = "ctrl+q"
)

// Key is one captured keystroke.
type Key struct {
	Name KeyName
	Rune rune
}

// ExitKey reports whether the key is one of the session-terminating
// combinations.
func (k Key) ExitKey() bool {
	return k.Name == KeyCtrlC || k.Name == KeyCtrlQ
}

// RawMode puts the terminal backing fd into raw mode so keystrokes arrive
// unbuffered and unechoed. The returned restore function is safe to call
// when raw mode could not be established (e.g. tests piping stdin).
func RawMode(fd int) (restore func(), err error) {
	if !term.IsTerminal(fd) {
		return func() {}, nil
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return func() {}, err
	}
	return func() { _ = term.Restore(fd, state) }, nil
}

// ReadKeys decodes keystrokes from r until it is exhausted or the context
// ends. Escape sequences (cursor keys and friends) are consumed and
// discarded; the orchestrator has no use for them yet.
func ReadKeys(ctx context.Context, r io.Reader, logger *slog.Logger) <-chan Key {
	out := make(chan Key, 16)

	go func() {
		defer close(out)

		buf := make([]byte, 1)
		for {
			if _, err := r.Read(buf); err != nil {
				if err != io.EOF {
					logger.Debug("keystroke read failed", "error", err)
				}
				return
			}

			key, ok := decodeKey(buf[0], r)
			if !ok {
				continue
			}

			select {
			case out <- key:
			case <-ctx.Done():
				return
			}
		}
	}()

	return out
}

func decodeKey(b byte, r io.Reader) (Key, bool) {
	switch b {
	case 0x03:
		return Key{Name: KeyCtrlC}, true
	case 0x11:
		return Key{Name: KeyCtrlQ}, true
	case '\r', '\n':
		return Key{Name: KeyEnter}, true
	case 0x7f, 0x08:
		return Key{Name: KeyBackspace}, true
	case '\t':
		return Key{Name: KeyTab}, true
	case 0x1b:
		// Swallow the rest of the escape sequence.
		drainEscape(r)
		return Key{}, false
	default:
		if b < 0x20 {
			return Key{}, false
		}
		return Key{Name: KeyRune, Rune: rune(b)}, true
	}
}

// drainEscape consumes a CSI-style sequence following ESC: an optional '['
// and bytes up to the final letter.
func drainEscape(r io.Reader) {
	buf := make([]byte, 1)
	if _, err := r.Read(buf); err != nil || buf[0] != '[' {
		return
	}
	for {
		if _, err := r.Read(buf); err != nil {
			return
		}
		if buf[0] >= 0x40 && buf[0] <= 0x7e {
			return
		}
	}
}
