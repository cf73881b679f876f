package fetch_test

import (
	"context"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/plexar-dev/plexar/pkg/fetch"
	"github.com/plexar-dev/plexar/pkg/streams"
)

func newBodyRequest(t *testing.T, body any) *fetch.Request {
	t.Helper()
	req, err := fetch.NewRequest("https://example.com/upload", &fetch.RequestInit{
		Method: "POST",
		Body:   body,
	})
	require.NoError(t, err)
	return req
}

func TestExtractBody(t *testing.T) {
	t.Run("String", func(t *testing.T) {
		req := newBodyRequest(t, "hello")
		require.True(t, req.HasBody())
		assert.NotNil(t, req.BodyBuffer())
		assert.Equal(t, "text/plain;charset=UTF-8", req.Headers().Get("Content-Type"))
	})

	t.Run("Bytes", func(t *testing.T) {
		req := newBodyRequest(t, []byte{0x01, 0x02})
		require.True(t, req.HasBody())
		assert.NotNil(t, req.BodyBuffer())
		assert.Empty(t, req.Headers().Get("Content-Type"))
	})

	t.Run("URLValues", func(t *testing.T) {
		req := newBodyRequest(t, url.Values{"a": {"1"}, "b": {"2"}})
		assert.Equal(t, "application/x-www-form-urlencoded;charset=UTF-8", req.Headers().Get("Content-Type"))

		text, err := req.Text(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "a=1&b=2", text)
	})

	t.Run("FormData", func(t *testing.T) {
		form := fetch.NewFormData()
		form.Append("name", "value")
		req := newBodyRequest(t, form)
		assert.True(t, strings.HasPrefix(req.Headers().Get("Content-Type"), "multipart/form-data; boundary="))
	})

	t.Run("Blob", func(t *testing.T) {
		req := newBodyRequest(t, fetch.NewBlob([]byte("blobbed"), "application/octet-stream"))
		assert.Equal(t, "application/octet-stream", req.Headers().Get("Content-Type"))
	})

	t.Run("Stream", func(t *testing.T) {
		req := newBodyRequest(t, streams.New(strings.NewReader("streamed")))
		require.True(t, req.HasBody())
		assert.Nil(t, req.BodyBuffer())
		assert.False(t, req.CanRewind())
	})

	t.Run("NullBody", func(t *testing.T) {
		req := newBodyRequest(t, fetch.NullBody)
		assert.False(t, req.HasBody())
	})

	t.Run("ExplicitContentTypeWins", func(t *testing.T) {
		req, err := fetch.NewRequest("https://example.com/", &fetch.RequestInit{
			Method:  "POST",
			Headers: map[string][]string{"Content-Type": {"application/custom"}},
			Body:    "payload",
		})
		require.NoError(t, err)
		assert.Equal(t, "application/custom", req.Headers().Get("Content-Type"))
	})

	t.Run("Unsupported", func(t *testing.T) {
		_, err := fetch.NewRequest("https://example.com/", &fetch.RequestInit{
			Method: "POST",
			Body:   42,
		})
		require.Error(t, err)
		assert.True(t, fetch.IsValidation(err))
	})
}

func TestBodyConsumption(t *testing.T) {
	ctx := context.Background()

	t.Run("Text", func(t *testing.T) {
		req := newBodyRequest(t, "hello")
		require.False(t, req.BodyUsed())

		text, err := req.Text(ctx)
		require.NoError(t, err)
		assert.Equal(t, "hello", text)
		assert.True(t, req.BodyUsed())
	})

	t.Run("DoubleConsumeFails", func(t *testing.T) {
		req := newBodyRequest(t, "hello")
		_, err := req.Text(ctx)
		require.NoError(t, err)

		_, err = req.Bytes(ctx)
		require.Error(t, err)
		assert.True(t, fetch.IsState(err))
	})

	t.Run("JSON", func(t *testing.T) {
		req := newBodyRequest(t, `{"n": 7}`)
		var out struct{ N int }
		require.NoError(t, req.JSON(ctx, &out))
		assert.Equal(t, 7, out.N)
	})

	t.Run("MalformedJSON", func(t *testing.T) {
		req := newBodyRequest(t, "{not json")
		var out map[string]any
		err := req.JSON(ctx, &out)
		require.Error(t, err)
		assert.True(t, fetch.IsValidation(err))
		assert.True(t, req.BodyUsed())
	})

	t.Run("FormDataRoundTrip", func(t *testing.T) {
		form := fetch.NewFormData()
		form.Append("greeting", "hi")
		form.Append("greeting", "hello")
		req := newBodyRequest(t, form)

		parsed, err := req.FormData(ctx)
		require.NoError(t, err)
		v, ok := parsed.Get("greeting")
		require.True(t, ok)
		assert.Equal(t, "hi", v)
		assert.Len(t, parsed.Entries(), 2)
	})

	t.Run("URLEncodedKeepsFieldOrder", func(t *testing.T) {
		req, err := fetch.NewRequest("https://example.com/", &fetch.RequestInit{
			Method:  "POST",
			Headers: map[string][]string{"Content-Type": {"application/x-www-form-urlencoded"}},
			Body:    "b=2&a=one+two&b=3",
		})
		require.NoError(t, err)

		parsed, err := req.FormData(ctx)
		require.NoError(t, err)
		entries := parsed.Entries()
		require.Len(t, entries, 3)
		assert.Equal(t, "b", entries[0].Name)
		assert.Equal(t, "2", entries[0].Value)
		assert.Equal(t, "a", entries[1].Name)
		assert.Equal(t, "one two", entries[1].Value)
		assert.Equal(t, "b", entries[2].Name)
		assert.Equal(t, "3", entries[2].Value)
	})

	t.Run("Blob", func(t *testing.T) {
		req := newBodyRequest(t, "data")
		blob, err := req.Blob(ctx)
		require.NoError(t, err)
		assert.Equal(t, []byte("data"), blob.Bytes())
		assert.Equal(t, "text/plain;charset=UTF-8", blob.Type())
	})

	t.Run("AbsentBody", func(t *testing.T) {
		req, err := fetch.NewRequest("https://example.com/", nil)
		require.NoError(t, err)
		text, err := req.Text(ctx)
		require.NoError(t, err)
		assert.Empty(t, text)
		assert.False(t, req.BodyUsed())
	})
}

func TestBodyRewind(t *testing.T) {
	ctx := context.Background()

	t.Run("BufferBacked", func(t *testing.T) {
		req := newBodyRequest(t, "again")
		text, err := req.Text(ctx)
		require.NoError(t, err)
		require.Equal(t, "again", text)
		require.True(t, req.BodyUsed())

		require.True(t, req.CanRewind())
		req.Rewind()
		assert.False(t, req.BodyUsed())

		raw, err := req.Bytes(ctx)
		require.NoError(t, err)
		assert.Equal(t, "again", string(raw))
	})

	t.Run("StreamOnlyPanics", func(t *testing.T) {
		req := newBodyRequest(t, streams.New(strings.NewReader("once")))
		require.False(t, req.CanRewind())
		assert.Panics(t, func() { req.Rewind() })
	})

	t.Run("Nullify", func(t *testing.T) {
		req := newBodyRequest(t, "gone")
		req.Nullify()
		assert.False(t, req.HasBody())
		assert.True(t, req.CanRewind())
	})
}

func TestBodyClone(t *testing.T) {
	ctx := context.Background()

	t.Run("BufferBacked", func(t *testing.T) {
		req := newBodyRequest(t, "shared")
		clone, err := req.Clone()
		require.NoError(t, err)

		a, err := req.Text(ctx)
		require.NoError(t, err)
		b, err := clone.Text(ctx)
		require.NoError(t, err)
		assert.Equal(t, "shared", a)
		assert.Equal(t, "shared", b)
	})

	t.Run("StreamOnly", func(t *testing.T) {
		req := newBodyRequest(t, streams.New(strings.NewReader("forked")))
		clone, err := req.Clone()
		require.NoError(t, err)

		a, err := req.Text(ctx)
		require.NoError(t, err)
		b, err := clone.Text(ctx)
		require.NoError(t, err)
		assert.Equal(t, "forked", a)
		assert.Equal(t, "forked", b)
	})

	t.Run("UsedBodyFails", func(t *testing.T) {
		req := newBodyRequest(t, "spent")
		_, err := req.Text(ctx)
		require.NoError(t, err)

		_, err = req.Clone()
		require.Error(t, err)
		assert.True(t, fetch.IsState(err))
	})
}
