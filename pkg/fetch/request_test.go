package fetch_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plexar-dev/plexar/pkg/fetch"
)

func TestNewRequest(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		req, err := fetch.NewRequest("https://example.com/path", nil)
		require.NoError(t, err)
		assert.Equal(t, "GET", req.Method())
		assert.Equal(t, "https://example.com/path", req.URL())
		assert.Equal(t, fetch.RedirectFollow, req.Redirect())
		assert.False(t, req.HasBody())
	})

	t.Run("MethodNormalization", func(t *testing.T) {
		req, err := fetch.NewRequest("https://example.com/", &fetch.RequestInit{Method: "post"})
		require.NoError(t, err)
		assert.Equal(t, "POST", req.Method())
	})

	t.Run("CustomMethodPreserved", func(t *testing.T) {
		req, err := fetch.NewRequest("https://example.com/", &fetch.RequestInit{Method: "Purge"})
		require.NoError(t, err)
		assert.Equal(t, "Purge", req.Method())
	})

	t.Run("InvalidMethod", func(t *testing.T) {
		_, err := fetch.NewRequest("https://example.com/", &fetch.RequestInit{Method: "GE T"})
		require.Error(t, err)
		assert.True(t, fetch.IsValidation(err))
	})

	t.Run("RedirectModes", func(t *testing.T) {
		req, err := fetch.NewRequest("https://example.com/", &fetch.RequestInit{Redirect: "manual"})
		require.NoError(t, err)
		assert.Equal(t, fetch.RedirectManual, req.Redirect())

		_, err = fetch.NewRequest("https://example.com/", &fetch.RequestInit{Redirect: "error"})
		require.Error(t, err)
		assert.True(t, fetch.IsValidation(err))
	})

	t.Run("IntegrityRejected", func(t *testing.T) {
		_, err := fetch.NewRequest("https://example.com/", &fetch.RequestInit{Integrity: "sha256-abc"})
		require.Error(t, err)
		assert.True(t, fetch.IsValidation(err))
	})

	t.Run("CacheModeGated", func(t *testing.T) {
		req, err := fetch.NewRequest("https://example.com/", &fetch.RequestInit{Cache: "no-store"})
		require.NoError(t, err)
		assert.Equal(t, fetch.CacheModeNoStore, req.CacheMode())

		_, err = fetch.NewRequest("https://example.com/", &fetch.RequestInit{Cache: "no-cache"})
		require.Error(t, err)
		assert.True(t, fetch.IsValidation(err))
	})

	t.Run("FromRequestInherits", func(t *testing.T) {
		orig, err := fetch.NewRequest("https://example.com/a", &fetch.RequestInit{
			Method:  "POST",
			Headers: map[string][]string{"X-Token": {"abc"}},
			Body:    "payload",
		})
		require.NoError(t, err)

		derived, err := fetch.NewRequest(orig, nil)
		require.NoError(t, err)
		assert.Equal(t, "POST", derived.Method())
		assert.Equal(t, "https://example.com/a", derived.URL())
		assert.Equal(t, "abc", derived.Headers().Get("X-Token"))

		// Both the original and the derived request carry an
		// independently consumable copy of the body.
		a, err := orig.Text(context.Background())
		require.NoError(t, err)
		b, err := derived.Text(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "payload", a)
		assert.Equal(t, "payload", b)
	})

	t.Run("InitOverridesInput", func(t *testing.T) {
		orig, err := fetch.NewRequest("https://example.com/a", &fetch.RequestInit{Method: "POST", Body: "old"})
		require.NoError(t, err)

		derived, err := fetch.NewRequest(orig, &fetch.RequestInit{Method: "PUT", Body: "new"})
		require.NoError(t, err)
		assert.Equal(t, "PUT", derived.Method())

		text, err := derived.Text(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "new", text)
	})

	t.Run("HeadersCopied", func(t *testing.T) {
		init := &fetch.RequestInit{Headers: map[string][]string{"A": {"1"}}}
		req, err := fetch.NewRequest("https://example.com/", init)
		require.NoError(t, err)

		req.Headers().Set("A", "2")
		assert.Equal(t, []string{"1"}, init.Headers["A"])
	})
}

func TestCoerceRequest(t *testing.T) {
	t.Run("PassThrough", func(t *testing.T) {
		orig, err := fetch.NewRequest("https://example.com/", nil)
		require.NoError(t, err)

		got, err := fetch.CoerceRequest(orig, nil)
		require.NoError(t, err)
		assert.Same(t, orig, got)
	})

	t.Run("RebuildsWithInit", func(t *testing.T) {
		orig, err := fetch.NewRequest("https://example.com/", nil)
		require.NoError(t, err)

		got, err := fetch.CoerceRequest(orig, &fetch.RequestInit{Method: "DELETE"})
		require.NoError(t, err)
		assert.NotSame(t, orig, got)
		assert.Equal(t, "DELETE", got.Method())
	})

	t.Run("FromString", func(t *testing.T) {
		got, err := fetch.CoerceRequest("https://example.com/x", nil)
		require.NoError(t, err)
		assert.Equal(t, "https://example.com/x", got.URL())
	})
}

func TestRequestSignal(t *testing.T) {
	t.Run("DefaultNeverAborts", func(t *testing.T) {
		req, err := fetch.NewRequest("https://example.com/", nil)
		require.NoError(t, err)

		sig := req.Signal()
		require.NotNil(t, sig)
		assert.True(t, sig.NeverAborts())
		assert.Nil(t, req.ActiveSignal())
	})

	t.Run("SuppliedSignal", func(t *testing.T) {
		ctrl := fetch.NewAbortController()
		req, err := fetch.NewRequest("https://example.com/", &fetch.RequestInit{Signal: ctrl.Signal()})
		require.NoError(t, err)

		assert.Same(t, ctrl.Signal(), req.Signal())
		assert.Same(t, ctrl.Signal(), req.ActiveSignal())
	})

	t.Run("NeverFiringSignalSubstituted", func(t *testing.T) {
		never := fetch.NewNeverAbortsSignal()
		req, err := fetch.NewRequest("https://example.com/", &fetch.RequestInit{Signal: never})
		require.NoError(t, err)

		// The accessor preserves identity while the request carries no
		// active cancellation source.
		assert.Same(t, never, req.Signal())
		assert.Nil(t, req.ActiveSignal())
	})

	t.Run("NeverFiringSignalSurvivesDerivation", func(t *testing.T) {
		never := fetch.NewNeverAbortsSignal()
		base, err := fetch.NewRequest("https://example.com/", &fetch.RequestInit{Signal: never})
		require.NoError(t, err)

		derived, err := fetch.NewRequest(base, nil)
		require.NoError(t, err)
		assert.Same(t, never, derived.Signal())
		assert.Nil(t, derived.ActiveSignal())
	})

	t.Run("ClearSignalForSubrequest", func(t *testing.T) {
		ctrl := fetch.NewAbortController()
		req, err := fetch.NewRequest("https://example.com/", &fetch.RequestInit{Signal: ctrl.Signal()})
		require.NoError(t, err)

		req.ClearSignalForSubrequest()
		assert.Nil(t, req.ActiveSignal())
	})
}

func TestRequestClone(t *testing.T) {
	req, err := fetch.NewRequest("https://example.com/", &fetch.RequestInit{
		Method:  "POST",
		Headers: map[string][]string{"X-A": {"1"}},
		Body:    "dup",
	})
	require.NoError(t, err)

	clone, err := req.Clone()
	require.NoError(t, err)
	assert.Equal(t, req.Method(), clone.Method())
	assert.Equal(t, req.URL(), clone.URL())
	assert.Equal(t, "1", clone.Headers().Get("X-A"))

	// Header lists are independent after cloning.
	clone.Headers().Set("X-A", "2")
	assert.Equal(t, "1", req.Headers().Get("X-A"))
}

func TestAbortController(t *testing.T) {
	ctrl := fetch.NewAbortController()
	sig := ctrl.Signal()
	require.False(t, sig.Aborted())

	ctrl.Abort(nil)
	assert.True(t, sig.Aborted())
	assert.ErrorIs(t, sig.Reason(), fetch.ErrAborted)

	ctx, stop := sig.Bind(context.Background())
	defer stop()
	<-ctx.Done()
	assert.ErrorIs(t, context.Cause(ctx), fetch.ErrAborted)
}
