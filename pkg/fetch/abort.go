package fetch

import (
	"context"
	"errors"
	"sync"
)

// ErrAborted is the default abort reason.
var ErrAborted = errors.New("fetch: operation aborted")

// AbortSignal is an advisory cancellation token. It is observed at each
// suspension point: in-flight body reads and transport calls fail promptly
// once the signal fires.
type AbortSignal struct {
	mu     sync.Mutex
	done   chan struct{}
	reason error
	never  bool
}

// NewNeverAbortsSignal returns a signal that is statically known to never
// fire. Requests detect this and skip cancellation bookkeeping for it.
func NewNeverAbortsSignal() *AbortSignal {
	return &AbortSignal{done: make(chan struct{}), never: true}
}

// AbortController owns an AbortSignal and can fire it.
type AbortController struct {
	signal *AbortSignal
}

func NewAbortController() *AbortController {
	return &AbortController{signal: &AbortSignal{done: make(chan struct{})}}
}

func (c *AbortController) Signal() *AbortSignal { return c.signal }

// Abort fires the signal with the given reason. A nil reason is recorded as
// ErrAborted. Subsequent calls are no-ops.
func (c *AbortController) Abort(reason error) {
	s := c.signal
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return
	default:
	}
	if reason == nil {
		reason = ErrAborted
	}
	s.reason = reason
	close(s.done)
}

// Aborted reports whether the signal has fired.
func (s *AbortSignal) Aborted() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Reason returns the abort reason, or nil if the signal has not fired.
func (s *AbortSignal) Reason() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Done returns a channel closed when the signal fires.
func (s *AbortSignal) Done() <-chan struct{} { return s.done }

// NeverAborts reports whether this signal can never fire.
func (s *AbortSignal) NeverAborts() bool { return s.never }

// Bind derives a context cancelled when either the parent is cancelled or the
// signal fires. The returned stop function releases the watcher and must be
// called when the guarded operation completes.
func (s *AbortSignal) Bind(parent context.Context) (context.Context, context.CancelFunc) {
	if s == nil || s.never {
		return parent, func() {}
	}
	ctx, cancel := context.WithCancelCause(parent)
	stopped := make(chan struct{})
	go func() {
		select {
		case <-s.done:
			cancel(s.Reason())
		case <-ctx.Done():
		case <-stopped:
		}
	}()
	var once sync.Once
	return ctx, func() {
		once.Do(func() {
			close(stopped)
			cancel(nil)
		})
	}
}
