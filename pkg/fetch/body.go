package fetch

import (
	"context"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	json "github.com/goccy/go-json"

	"github.com/plexar-dev/plexar/pkg/streams"
)

// refcountedBytes is a shared byte allocation. The owning Body and any streams
// materialized from it hold references; the last release drops the bytes.
type refcountedBytes struct {
	bytes []byte
	refs  atomic.Int32
}

func newRefcountedBytes(b []byte) *refcountedBytes {
	r := &refcountedBytes{bytes: b}
	r.refs.Store(1)
	return r
}

func (r *refcountedBytes) ref() *refcountedBytes {
	r.refs.Add(1)
	return r
}

func (r *refcountedBytes) release() {
	if r.refs.Add(-1) == 0 {
		r.bytes = nil
	}
}

// Buffer is the retained source of a buffer-backed body. The view is a window
// onto the owned allocation and is always contained within it; for blob-backed
// buffers the allocation is shared with the blob rather than owned outright.
type Buffer struct {
	ownBytes *refcountedBytes
	blob     *Blob
	view     []byte
}

func newBufferFromBytes(b []byte) *Buffer {
	own := newRefcountedBytes(b)
	return &Buffer{ownBytes: own, view: own.bytes}
}

func newBufferFromString(s string) *Buffer {
	return newBufferFromBytes([]byte(s))
}

func newBufferFromBlob(b *Blob) *Buffer {
	return &Buffer{blob: b, view: b.Bytes()}
}

// View returns the buffer's visible byte range.
func (b *Buffer) View() []byte { return b.view }

// clone shares the underlying allocation; no bytes are copied.
func (b *Buffer) clone() *Buffer {
	if b.ownBytes != nil {
		return &Buffer{ownBytes: b.ownBytes.ref(), view: b.view}
	}
	return &Buffer{blob: b.blob, view: b.view}
}

func (b *Buffer) release() {
	if b.ownBytes != nil {
		b.ownBytes.release()
	}
}

type bodyImpl struct {
	stream *streams.Stream
	buffer *Buffer // nil for stream-only bodies
}

// ExtractedBody is the result of the body extraction algorithm: a canonical
// stream, the retained buffer when the source was buffer-like, and the content
// type inferred from the source.
type ExtractedBody struct {
	Stream      *streams.Stream
	Buffer      *Buffer
	ContentType string
}

// ExtractBody converts a user-supplied body source into an ExtractedBody.
//
// A *streams.Stream source is adopted directly and retains no buffer, so the
// resulting body cannot be rewound. Every other source synthesizes a retained
// buffer and derives a stream over it, which is what allows bodies built from
// strings, bytes, forms, query params, or blobs to be retransmitted on
// redirects and auth retries.
func ExtractBody(init any) (*ExtractedBody, error) {
	switch v := init.(type) {
	case *streams.Stream:
		return &ExtractedBody{Stream: v}, nil
	case string:
		buf := newBufferFromString(v)
		return &ExtractedBody{
			Stream:      streams.FromBytes(buf.view),
			Buffer:      buf,
			ContentType: "text/plain;charset=UTF-8",
		}, nil
	case []byte:
		buf := newBufferFromBytes(v)
		return &ExtractedBody{Stream: streams.FromBytes(buf.view), Buffer: buf}, nil
	case url.Values:
		buf := newBufferFromString(v.Encode())
		return &ExtractedBody{
			Stream:      streams.FromBytes(buf.view),
			Buffer:      buf,
			ContentType: "application/x-www-form-urlencoded;charset=UTF-8",
		}, nil
	case *FormData:
		boundary := makeRandomBoundary()
		encoded, err := v.encodeMultipart(boundary)
		if err != nil {
			return nil, &ValidationError{Msg: "failed to serialize form data", Err: err}
		}
		buf := newBufferFromBytes(encoded)
		return &ExtractedBody{
			Stream:      streams.FromBytes(buf.view),
			Buffer:      buf,
			ContentType: "multipart/form-data; boundary=" + boundary,
		}, nil
	case *Blob:
		buf := newBufferFromBlob(v)
		return &ExtractedBody{
			Stream:      streams.FromBytes(buf.view),
			Buffer:      buf,
			ContentType: v.Type(),
		}, nil
	case nil:
		return nil, nil
	default:
		return nil, validationf("unsupported body initializer type %T", init)
	}
}

// Body houses the payload functionality common to Request and Response. A body
// is in exactly one of three states: absent, stream-only, or buffer-backed
// with a derived stream.
type Body struct {
	mu       sync.Mutex
	impl     *bodyImpl
	consumed bool

	// headersRef points at the owning entity's header list so consumption
	// can read the effective Content-Type. It is a non-owning reference.
	headersRef http.Header

	// execCtx is the execution context captured at construction. Deferred
	// consumption resumes in this context, not the ambient one.
	execCtx *ExecContext
}

func (b *Body) initBody(eb *ExtractedBody, headers http.Header) {
	b.headersRef = headers
	if eb == nil {
		return
	}
	b.impl = &bodyImpl{stream: eb.Stream, buffer: eb.Buffer}
	if eb.ContentType != "" && headers.Get("Content-Type") == "" {
		headers.Set("Content-Type", eb.ContentType)
	}
}

// HasBody reports whether a body is present.
func (b *Body) HasBody() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.impl != nil
}

// BodyStream returns the body's stream, or nil for an absent body.
func (b *Body) BodyStream() *streams.Stream {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.impl == nil {
		return nil
	}
	return b.impl.stream
}

// BodyBuffer returns the retained buffer for buffer-backed bodies, nil
// otherwise.
func (b *Body) BodyBuffer() *Buffer {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.impl == nil {
		return nil
	}
	return b.impl.buffer
}

// BodyUsed reports whether the body's stream has been started for reading.
func (b *Body) BodyUsed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.impl == nil {
		return false
	}
	return b.consumed || b.impl.stream.Started()
}

// CanRewind reports whether the body can be retransmitted: true iff the body
// is absent or buffer-backed. A stream-only body can never be rewound.
func (b *Body) CanRewind() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.impl == nil || b.impl.buffer != nil
}

// Rewind discards the (possibly used) stream and derives a fresh one from the
// retained buffer, clearing the used state. Precondition: CanRewind. Calling
// Rewind on a stream-only body is a contract violation and panics.
func (b *Body) Rewind() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.impl == nil {
		return
	}
	if b.impl.buffer == nil {
		panic("fetch: Rewind called on a non-rewindable body")
	}
	b.impl.stream = streams.FromBytes(b.impl.buffer.view)
	b.consumed = false
}

// Nullify drops the body to the absent state. Used when a redirect policy
// requires the body to be removed.
func (b *Body) Nullify() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.impl != nil && b.impl.buffer != nil {
		b.impl.buffer.release()
	}
	b.impl = nil
	b.consumed = false
}

// beginConsume marks the body used, failing if it already was.
func (b *Body) beginConsume() (*streams.Stream, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.impl == nil {
		return nil, nil
	}
	if b.consumed || b.impl.stream.Started() {
		return nil, statef("body has already been used")
	}
	b.consumed = true
	return b.impl.stream, nil
}

func (b *Body) readAll(ctx context.Context) ([]byte, error) {
	s, err := b.beginConsume()
	if err != nil {
		return nil, err
	}
	if s == nil {
		return nil, nil
	}
	var out []byte
	run := func() error {
		var rerr error
		out, rerr = s.ReadAll(ctx)
		return rerr
	}
	if b.execCtx != nil {
		err = b.execCtx.Run(run)
	} else {
		err = run()
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil, &TransmissionError{Msg: "body read aborted", Err: err}
		}
		return nil, &TransmissionError{Msg: "body read failed", Err: err}
	}
	return out, nil
}

// ArrayBuffer reads the entire body as raw bytes and marks it used.
func (b *Body) ArrayBuffer(ctx context.Context) ([]byte, error) {
	return b.readAll(ctx)
}

// Bytes is an alias for ArrayBuffer matching the newer standard surface.
func (b *Body) Bytes(ctx context.Context) ([]byte, error) {
	return b.readAll(ctx)
}

// Text reads the entire body and decodes it as UTF-8 text.
func (b *Body) Text(ctx context.Context) (string, error) {
	raw, err := b.readAll(ctx)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// JSON reads the entire body and decodes it into v. Malformed JSON is
// reported as a ValidationError at the point of consumption.
func (b *Body) JSON(ctx context.Context, v any) error {
	raw, err := b.readAll(ctx)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return &ValidationError{Msg: "body is not valid JSON", Err: err}
	}
	return nil
}

// FormData reads the entire body and parses it per the entity's Content-Type.
func (b *Body) FormData(ctx context.Context) (*FormData, error) {
	contentType := b.headersRef.Get("Content-Type")
	raw, err := b.readAll(ctx)
	if err != nil {
		return nil, err
	}
	return parseFormData(raw, contentType)
}

// Blob reads the entire body into a blob typed by the entity's Content-Type.
func (b *Body) Blob(ctx context.Context) (*Blob, error) {
	contentType := b.headersRef.Get("Content-Type")
	raw, err := b.readAll(ctx)
	if err != nil {
		return nil, err
	}
	return NewBlob(raw, contentType), nil
}

// cloneBody splits off an independent copy of the body for entity cloning.
//
// A buffer-backed body shares its buffer (refcounted, no copy) and both sides
// get fresh derived streams. A stream-only body forks the stream into two
// branches that can each be consumed exactly once, in order, independently
// paced. Cloning a used body fails.
func (b *Body) cloneBody() (*ExtractedBody, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.impl == nil {
		return nil, nil
	}
	if b.consumed || b.impl.stream.Started() {
		return nil, statef("cannot clone a body that has already been used")
	}
	if buf := b.impl.buffer; buf != nil {
		dup := buf.clone()
		b.impl.stream = streams.FromBytes(buf.view)
		return &ExtractedBody{Stream: streams.FromBytes(dup.view), Buffer: dup}, nil
	}
	left, right := b.impl.stream.Tee()
	b.impl.stream = left
	return &ExtractedBody{Stream: right}, nil
}
