package fetch

import (
	"context"
	"sync"
)

// EventOutcome describes how an event handler run ended.
type EventOutcome int

const (
	OutcomeOK EventOutcome = iota
	OutcomeException
	OutcomeCanceled
)

// ErrNoResponse is returned by Finish when the handler never called
// RespondWith and did not opt into pass-through. The caller decides whether
// that means proxying upstream or failing the event.
type noResponseError struct{}

func (noResponseError) Error() string { return "fetch event handler did not provide a response" }

// ErrNoResponse is the sentinel distinguishing "handler declined to respond"
// from an explicit error.
var ErrNoResponse error = noResponseError{}

type eventState int

const (
	stateAwaitingRespondWith eventState = iota
	stateRespondWithCalled
	stateResponseSent
)

// FetchEvent tracks a single inbound request's lifecycle while a handler
// runs. It enforces the one-response rule: RespondWith may be called at most
// once, and once a response is sent the event is settled.
type FetchEvent struct {
	mu      sync.Mutex
	state   eventState
	request *Request

	response    *Response
	responseErr error
	settled     chan struct{}

	passThrough bool
}

// NewFetchEvent wraps an inbound request in a fresh event awaiting a
// response.
func NewFetchEvent(req *Request) *FetchEvent {
	return &FetchEvent{
		request: req,
		settled: make(chan struct{}),
	}
}

// Request returns the inbound request this event carries.
func (e *FetchEvent) Request() *Request { return e.request }

// RespondWith registers the handler's response for this event. Calling it a
// second time, or after the dispatch has already completed without a
// response, is a state error.
func (e *FetchEvent) RespondWith(resp *Response, err error) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case stateRespondWithCalled:
		return statef("respondWith() has already been called on this event")
	case stateResponseSent:
		return statef("too late to call respondWith() on this event")
	}
	e.state = stateRespondWithCalled
	e.response = resp
	e.responseErr = err
	close(e.settled)
	return nil
}

// PassThroughOnException marks the event so that a handler failure falls back
// to proxying the request instead of failing the client.
func (e *FetchEvent) PassThroughOnException() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.passThrough = true
}

// PassThrough reports whether pass-through on exception was requested.
func (e *FetchEvent) PassThrough() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.passThrough
}

// Finish waits for the handler's response or the context. When the handler
// produced a response it is returned; when the handler signaled an error that
// error is returned; when hadException reports the handler itself failed (or
// the handler simply never responded) ErrNoResponse is returned so the caller
// can apply its pass-through policy.
func (e *FetchEvent) Finish(ctx context.Context, hadException bool) (*Response, error) {
	if hadException {
		e.closeNoResponse()
		return nil, ErrNoResponse
	}

	e.mu.Lock()
	state := e.state
	e.mu.Unlock()
	if state == stateAwaitingRespondWith {
		select {
		case <-e.settled:
		case <-ctx.Done():
			e.closeNoResponse()
			return nil, &TransmissionError{Msg: "fetch event canceled", Err: context.Cause(ctx)}
		}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != stateRespondWithCalled {
		return nil, ErrNoResponse
	}
	if e.responseErr != nil {
		return nil, e.responseErr
	}
	return e.response, nil
}

// markSent records that the pending response has actually been written out.
func (e *FetchEvent) markSent() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = stateResponseSent
}

// closeNoResponse settles the event without a response so later RespondWith
// calls fail cleanly.
func (e *FetchEvent) closeNoResponse() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == stateAwaitingRespondWith {
		e.state = stateResponseSent
		close(e.settled)
	} else if e.state == stateRespondWithCalled {
		e.state = stateResponseSent
	}
}

// ServeOptions configure event dispatch.
type ServeOptions struct {
	AllowWebSocket bool
}

// Serve runs handler against an inbound request and writes the outcome to
// outer. Handler failures honor PassThroughOnException by returning
// ErrNoResponse to the caller, which owns the fallback path.
func Serve(ctx context.Context, ec *ExecContext, outer ServerTransport, req *Request, handler func(*FetchEvent) error, opts *ServeOptions) error {
	event := NewFetchEvent(req)

	var handlerErr error
	if ec != nil {
		ec.Observer().Delivered()
		handlerErr = ec.Run(func() error { return handler(event) })
		ec.Observer().ScriptDone()
	} else {
		handlerErr = handler(event)
	}
	if handlerErr != nil && ec != nil {
		ec.Observer().ReportFailure(handlerErr, FailureSourceScript)
	}

	resp, err := event.Finish(ctx, handlerErr != nil)
	if err != nil {
		if err == ErrNoResponse && event.PassThrough() {
			return ErrNoResponse
		}
		return err
	}

	var sendOpts SendOptions
	if opts != nil {
		sendOpts.AllowWebSocket = opts.AllowWebSocket
	}
	if err := resp.Send(ctx, outer, sendOpts, req.Headers()); err != nil {
		return err
	}
	event.markSent()
	return nil
}
