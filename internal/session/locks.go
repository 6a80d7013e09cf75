package session

import (
	"context"
	"errors"
	"sync"
)

// Named locks gating the session's shared resources.
const (
	// LockStdout guards answer-writing to the child: output consumption
	// pauses while it is held.
	LockStdout = "stdout"
	// LockTraceWindow guards the window during which raw keystrokes are
	// captured instead of auto-answered.
	LockTraceWindow = "traceWindow"
	// LockPendingAnswer expresses "we expect this answer's text to be
	// echoed in subsequent output".
	LockPendingAnswer = "pendingAnswer"
	// LockSession is the general session lock.
	LockSession = "session"
)

// ErrAlreadyOpen signals a trace window re-entry attempt. Recoverable: the
// caller logs and ignores it.
var ErrAlreadyOpen = errors.New("trace window is already open")

type lockState struct {
	held  bool
	freed chan struct{}
}

// Coordinator is a small set of named binary semaphores held in one
// session-state structure. Operations return explicit success/failure rather
// than panicking or blocking unexpectedly.
type Coordinator struct {
	mu    sync.Mutex
	locks map[string]*lockState
}

// NewCoordinator registers the session's named locks, all free.
func NewCoordinator() *Coordinator {
	c := &Coordinator{locks: make(map[string]*lockState)}
	for _, name := range []string{LockStdout, LockTraceWindow, LockPendingAnswer, LockSession} {
		c.locks[name] = &lockState{}
	}
	return c
}

func (c *Coordinator) state(name string) *lockState {
	st, ok := c.locks[name]
	if !ok {
		st = &lockState{}
		c.locks[name] = st
	}
	return st
}

// TryAcquire takes the named lock if it is free, reporting success.
func (c *Coordinator) TryAcquire(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.state(name)
	if st.held {
		return false
	}
	st.held = true
	st.freed = make(chan struct{})
	return true
}

// Acquire blocks until the named lock is taken or the context ends.
func (c *Coordinator) Acquire(ctx context.Context, name string) error {
	for {
		if c.TryAcquire(name) {
			return nil
		}
		if err := c.Wait(ctx, name); err != nil {
			return err
		}
	}
}

// Release frees the named lock and wakes all waiters. Idempotent: releasing
// a free lock is a no-op.
func (c *Coordinator) Release(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	st := c.state(name)
	if !st.held {
		return
	}
	st.held = false
	close(st.freed)
}

// IsHeld reports whether the named lock is currently held.
func (c *Coordinator) IsHeld(name string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state(name).held
}

// Wait blocks until the named lock is free, without acquiring it.
func (c *Coordinator) Wait(ctx context.Context, name string) error {
	for {
		c.mu.Lock()
		st := c.state(name)
		if !st.held {
			c.mu.Unlock()
			return nil
		}
		freed := st.freed
		c.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-freed:
		}
	}
}

// OpenTraceWindow takes the trace-window and stdout locks together. It is
// not reentrant: opening an already-open window fails with ErrAlreadyOpen
// and leaves the stdout lock untouched.
func (c *Coordinator) OpenTraceWindow() error {
	if !c.TryAcquire(LockTraceWindow) {
		return ErrAlreadyOpen
	}
	c.TryAcquire(LockStdout)
	return nil
}

// CloseTraceWindow releases both the stdout and trace-window locks together.
// Never fails, even if one or both are already free.
func (c *Coordinator) CloseTraceWindow() {
	c.Release(LockStdout)
	c.Release(LockTraceWindow)
}

// TraceWindowOpen reports whether the trace window is currently open.
func (c *Coordinator) TraceWindowOpen() bool {
	return c.IsHeld(LockTraceWindow)
}
