// ABOUTME: Response window shared by the controller and the response inputs
// ABOUTME: Resolves the race between a listener signal and the timeout exactly once
package audiometry

import (
	"context"
	"sync"
	"time"
)

// responseWindow accepts at most one signal per arming. Signals that arrive
// while it is not armed are dropped.
type responseWindow struct {
	mu       sync.Mutex
	armed    bool
	resolved chan Response
}

func newResponseWindow() *responseWindow {
	return &responseWindow{resolved: make(chan Response, 1)}
}

// signal delivers a listener response. It reports whether a window was open.
func (w *responseWindow) signal(r Response) bool {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.armed {
		return false
	}
	w.armed = false
	// Capacity 1 and drained on arm, so this never blocks
	w.resolved <- r
	return true
}

// isArmed reports whether a window is currently open
func (w *responseWindow) isArmed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.armed
}

// await opens the window for d and returns the first of: a signal, the
// timeout, or cancellation. onArmed runs after the window is open.
func (w *responseWindow) await(ctx context.Context, d time.Duration, onArmed func()) (Response, error) {
	w.mu.Lock()
	select {
	case <-w.resolved:
	default:
	}
	w.armed = true
	w.mu.Unlock()

	if onArmed != nil {
		onArmed()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case r := <-w.resolved:
		return r, nil

	case <-timer.C:
		w.mu.Lock()
		if w.armed {
			w.armed = false
			w.mu.Unlock()
			return TimedOut, nil
		}
		w.mu.Unlock()
		// A signal won the race and is already buffered
		return <-w.resolved, nil

	case <-ctx.Done():
		w.close()
		return TimedOut, ctx.Err()
	}
}

// close disarms the window without resolving it
func (w *responseWindow) close() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.armed = false
	select {
	case <-w.resolved:
	default:
	}
}
