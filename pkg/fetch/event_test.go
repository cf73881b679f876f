package fetch_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plexar-dev/plexar/pkg/fetch"
)

func newInboundRequest(t *testing.T) *fetch.Request {
	t.Helper()
	req, err := fetch.NewRequest("https://example.com/inbound", nil)
	require.NoError(t, err)
	return req
}

func TestFetchEvent(t *testing.T) {
	ctx := context.Background()

	t.Run("RespondWithOnce", func(t *testing.T) {
		event := fetch.NewFetchEvent(newInboundRequest(t))

		resp, err := fetch.NewResponse("ok", nil)
		require.NoError(t, err)
		require.NoError(t, event.RespondWith(resp, nil))

		got, err := event.Finish(ctx, false)
		require.NoError(t, err)
		assert.Same(t, resp, got)
	})

	t.Run("DoubleRespondWithFails", func(t *testing.T) {
		event := fetch.NewFetchEvent(newInboundRequest(t))

		resp, err := fetch.NewResponse(nil, nil)
		require.NoError(t, err)
		require.NoError(t, event.RespondWith(resp, nil))

		err = event.RespondWith(resp, nil)
		require.Error(t, err)
		assert.True(t, fetch.IsState(err))
	})

	t.Run("RespondWithError", func(t *testing.T) {
		event := fetch.NewFetchEvent(newInboundRequest(t))
		handlerErr := errors.New("handler blew up")
		require.NoError(t, event.RespondWith(nil, handlerErr))

		_, err := event.Finish(ctx, false)
		require.ErrorIs(t, err, handlerErr)
	})

	t.Run("NoDecision", func(t *testing.T) {
		event := fetch.NewFetchEvent(newInboundRequest(t))

		_, err := event.Finish(ctx, true)
		require.ErrorIs(t, err, fetch.ErrNoResponse)

		// Late RespondWith is rejected once the event is settled.
		resp, rerr := fetch.NewResponse(nil, nil)
		require.NoError(t, rerr)
		err = event.RespondWith(resp, nil)
		require.Error(t, err)
		assert.True(t, fetch.IsState(err))
	})

	t.Run("ExceptionDropsResponse", func(t *testing.T) {
		event := fetch.NewFetchEvent(newInboundRequest(t))
		resp, err := fetch.NewResponse(nil, nil)
		require.NoError(t, err)
		require.NoError(t, event.RespondWith(resp, nil))

		_, err = event.Finish(ctx, true)
		require.ErrorIs(t, err, fetch.ErrNoResponse)
	})

	t.Run("CanceledWhileWaiting", func(t *testing.T) {
		event := fetch.NewFetchEvent(newInboundRequest(t))
		cctx, cancel := context.WithCancel(ctx)
		cancel()

		_, err := event.Finish(cctx, false)
		require.Error(t, err)
		assert.True(t, fetch.IsTransmission(err))
	})

	t.Run("PassThrough", func(t *testing.T) {
		event := fetch.NewFetchEvent(newInboundRequest(t))
		require.False(t, event.PassThrough())
		event.PassThroughOnException()
		assert.True(t, event.PassThrough())
	})
}

// lifecycleObserver counts the lifecycle notifications it receives.
type lifecycleObserver struct {
	fetch.NopRequestObserver
	delivered  int
	scriptDone int
	failures   int
}

func (o *lifecycleObserver) Delivered()  { o.delivered++ }
func (o *lifecycleObserver) ScriptDone() { o.scriptDone++ }
func (o *lifecycleObserver) ReportFailure(error, fetch.FailureSource) {
	o.failures++
}

// capturingServer records what Send wrote to it.
type capturingServer struct {
	status  int
	text    string
	headers http.Header
	body    []byte
}

func (c *capturingServer) WriteResponse(ctx context.Context, status int, statusText string, headers http.Header, body io.Reader) error {
	c.status = status
	c.text = statusText
	c.headers = headers.Clone()
	if body != nil {
		data, err := io.ReadAll(body)
		if err != nil {
			return err
		}
		c.body = data
	}
	return nil
}

func TestServe(t *testing.T) {
	ctx := context.Background()

	t.Run("HandlerResponds", func(t *testing.T) {
		srv := &capturingServer{}
		ec := fetch.NewExecContext()
		defer ec.Close()

		err := fetch.Serve(ctx, ec, srv, newInboundRequest(t), func(e *fetch.FetchEvent) error {
			resp, err := fetch.NewResponse("served", nil)
			if err != nil {
				return err
			}
			return e.RespondWith(resp, nil)
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, 200, srv.status)
		assert.Equal(t, "served", string(srv.body))
	})

	t.Run("ObserverSeesLifecycle", func(t *testing.T) {
		srv := &capturingServer{}
		ob := &lifecycleObserver{}
		ec := fetch.NewExecContext(fetch.WithObserver(ob))
		defer ec.Close()

		err := fetch.Serve(ctx, ec, srv, newInboundRequest(t), func(e *fetch.FetchEvent) error {
			assert.Equal(t, 1, ob.delivered)
			assert.Equal(t, 0, ob.scriptDone)
			resp, err := fetch.NewResponse(nil, nil)
			if err != nil {
				return err
			}
			return e.RespondWith(resp, nil)
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, 1, ob.delivered)
		assert.Equal(t, 1, ob.scriptDone)
		assert.Zero(t, ob.failures)
	})

	t.Run("ObserverSeesScriptFailure", func(t *testing.T) {
		srv := &capturingServer{}
		ob := &lifecycleObserver{}
		ec := fetch.NewExecContext(fetch.WithObserver(ob))
		defer ec.Close()

		err := fetch.Serve(ctx, ec, srv, newInboundRequest(t), func(e *fetch.FetchEvent) error {
			return errors.New("script exception")
		}, nil)
		require.Error(t, err)
		assert.Equal(t, 1, ob.delivered)
		assert.Equal(t, 1, ob.scriptDone)
		assert.Equal(t, 1, ob.failures)
	})

	t.Run("RespondWithAfterSendTooLate", func(t *testing.T) {
		srv := &capturingServer{}
		ec := fetch.NewExecContext()
		defer ec.Close()

		var event *fetch.FetchEvent
		err := fetch.Serve(ctx, ec, srv, newInboundRequest(t), func(e *fetch.FetchEvent) error {
			event = e
			resp, err := fetch.NewResponse(nil, nil)
			if err != nil {
				return err
			}
			return e.RespondWith(resp, nil)
		}, nil)
		require.NoError(t, err)

		resp, err := fetch.NewResponse(nil, nil)
		require.NoError(t, err)
		err = event.RespondWith(resp, nil)
		require.Error(t, err)
		assert.True(t, fetch.IsState(err))
		assert.Contains(t, err.Error(), "too late")
	})

	t.Run("HandlerFailsWithPassThrough", func(t *testing.T) {
		srv := &capturingServer{}
		ec := fetch.NewExecContext()
		defer ec.Close()

		err := fetch.Serve(ctx, ec, srv, newInboundRequest(t), func(e *fetch.FetchEvent) error {
			e.PassThroughOnException()
			return errors.New("script exception")
		}, nil)
		require.ErrorIs(t, err, fetch.ErrNoResponse)
	})

	t.Run("HandlerFailsWithoutPassThrough", func(t *testing.T) {
		srv := &capturingServer{}
		ec := fetch.NewExecContext()
		defer ec.Close()

		err := fetch.Serve(ctx, ec, srv, newInboundRequest(t), func(e *fetch.FetchEvent) error {
			return errors.New("script exception")
		}, nil)
		require.Error(t, err)
		assert.NotErrorIs(t, err, context.Canceled)
	})
}
