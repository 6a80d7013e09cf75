package session

import (
	"context"
	"time"
)

// EventKind tags the source of a combined event.
type EventKind int

const (
	// KindLine carries one cleaned line of child output.
	KindLine EventKind = iota
	// KindTick is a health-check tick with no actionable value.
	KindTick
	// KindKey carries one captured keystroke.
	KindKey
	// KindExit reports child process termination.
	KindExit
)

// Event is one entry of the merged consumption stream.
type Event struct {
	Kind EventKind
	Line string
	Key  Key
	// ExitErr is the child's wait result for KindExit events; nil means a
	// clean exit.
	ExitErr error
}

// Combine merges independently-timed sources into one ordered stream. Within
// a source, arrival order is preserved; across sources only "first ready"
// ordering is promised. The output closes once the line source has closed
// and the exit notification has been delivered, letting already-queued
// events drain before the consumer stops.
func Combine(ctx context.Context, lines <-chan string, ticks <-chan time.Time, keys <-chan Key, exit <-chan error) <-chan Event {
	out := make(chan Event)

	go func() {
		defer close(out)

		for lines != nil || exit != nil {
			select {
			case <-ctx.Done():
				return

			case line, ok := <-lines:
				if !ok {
					lines = nil
					continue
				}
				select {
				case out <- Event{Kind: KindLine, Line: line}:
				case <-ctx.Done():
					return
				}

			case _, ok := <-ticks:
				if !ok {
					ticks = nil
					continue
				}
				select {
				case out <- Event{Kind: KindTick}:
				case <-ctx.Done():
					return
				}

			case key, ok := <-keys:
				if !ok {
					keys = nil
					continue
				}
				select {
				case out <- Event{Kind: KindKey, Key: key}:
				case <-ctx.Done():
					return
				}

			case err, ok := <-exit:
				if !ok {
					exit = nil
					continue
				}
				select {
				case out <- Event{Kind: KindExit, ExitErr: err}:
				case <-ctx.Done():
					return
				}
				exit = nil
			}
		}
	}()

	return out
}
