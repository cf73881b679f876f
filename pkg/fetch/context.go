package fetch

import (
	"sync"

	"github.com/google/uuid"
)

// ExecContext represents one short-lived, single-threaded execution context.
// Transport handles resolved through a fetcher are valid only for the lifetime
// of the context that resolved them; holding one across a context boundary is
// a caller error.
type ExecContext struct {
	id       string
	mu       sync.Mutex
	closed   bool
	channels map[uint]Transport
	observer RequestObserver
}

// ExecOption configures a new execution context.
type ExecOption func(*ExecContext)

// WithChannel registers the transport backing a numbered subrequest channel.
func WithChannel(channel uint, t Transport) ExecOption {
	return func(ec *ExecContext) {
		ec.channels[channel] = t
	}
}

// WithObserver attaches a lifecycle observer. Subrequest transports resolved
// in this context are passed through the observer's WrapTransport hook.
func WithObserver(o RequestObserver) ExecOption {
	return func(ec *ExecContext) {
		ec.observer = o
	}
}

func NewExecContext(opts ...ExecOption) *ExecContext {
	ec := &ExecContext{
		id:       uuid.NewString(),
		channels: make(map[uint]Transport),
		observer: NopRequestObserver{},
	}
	for _, opt := range opts {
		opt(ec)
	}
	return ec
}

// ID returns the context's unique identifier.
func (ec *ExecContext) ID() string { return ec.id }

// Alive reports whether the context has not yet been closed.
func (ec *ExecContext) Alive() bool {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	return !ec.closed
}

// Close ends the context. Handles scoped to it become unusable.
func (ec *ExecContext) Close() {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.closed = true
}

// Observer returns the context's lifecycle observer.
func (ec *ExecContext) Observer() RequestObserver { return ec.observer }

// SubrequestTransport resolves a numbered channel to its transport. The
// operation label is recorded for diagnostics only.
func (ec *ExecContext) SubrequestTransport(channel uint, operation string) (Transport, error) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	if ec.closed {
		return nil, statef("subrequest channel %d resolved on a closed execution context (%s)", channel, operation)
	}
	t, ok := ec.channels[channel]
	if !ok {
		return nil, capabilityf("no subrequest channel %d configured (%s)", channel, operation)
	}
	return t, nil
}

// Run executes fn within this context. It is used to resume deferred work,
// such as late body consumption, in the context that was active when the
// owning entity was constructed rather than whichever context is ambient at
// resumption time.
func (ec *ExecContext) Run(fn func() error) error {
	if ec == nil {
		return fn()
	}
	if !ec.Alive() {
		return statef("execution context %s is closed", ec.id)
	}
	return fn()
}
