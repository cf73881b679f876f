package fetch

// FailureSource identifies which stage of request handling a failure was
// observed in.
type FailureSource int

const (
	FailureSourceScript FailureSource = iota
	FailureSourceTransport
	FailureSourceDeferredProxy
	FailureSourceOther
)

// RequestObserver receives best-effort notifications about the lifecycle of an
// inbound request. Every method has a safe no-op default via NopRequestObserver;
// failing to call an observer method is never itself an error.
type RequestObserver interface {
	// Delivered is called when the request is actually delivered.
	Delivered()

	// ScriptDone is called when the script's handler has returned, even
	// though deferred work may continue afterwards.
	ScriptDone()

	// ReportFailure reports that handling failed with the given cause.
	ReportFailure(cause error, source FailureSource)

	// WrapTransport gives the observer a chance to wrap the transport used
	// for a subrequest, e.g. to count or trace outgoing calls.
	WrapTransport(t Transport) Transport
}

// NopRequestObserver is a RequestObserver whose methods all do nothing. Embed
// it to implement only the hooks you care about.
type NopRequestObserver struct{}

func (NopRequestObserver) Delivered()                          {}
func (NopRequestObserver) ScriptDone()                         {}
func (NopRequestObserver) ReportFailure(error, FailureSource)  {}
func (NopRequestObserver) WrapTransport(t Transport) Transport { return t }

var _ RequestObserver = NopRequestObserver{}
