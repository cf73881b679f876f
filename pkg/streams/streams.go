// Package streams provides the one-shot byte streams that back request and
// response bodies. A stream wraps an arbitrary io.Reader, enforces a single
// active consumer, and can be forked into two independently paced branches.
package streams

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
)

var (
	// ErrBusy is returned when a second consumer attempts to read a stream
	// that already has an active reader. Reads never queue.
	ErrBusy = errors.New("streams: stream has an active reader")

	// ErrClosed is returned when reading a closed stream.
	ErrClosed = errors.New("streams: stream is closed")
)

// Stream is a one-shot byte stream. Once a read has begun the stream is
// considered disturbed; the owning body uses that to track "body used" state.
type Stream struct {
	mu       sync.Mutex
	src      io.Reader
	started  bool
	closed   bool
	reading  bool
	srcClose io.Closer
}

// New adopts r as a one-shot stream. If r is also an io.Closer it is closed
// when the stream is closed.
func New(r io.Reader) *Stream {
	s := &Stream{src: r}
	if c, ok := r.(io.Closer); ok {
		s.srcClose = c
	}
	return s
}

// FromBytes derives a stream over b without copying. The caller must not
// mutate b while the stream is live.
func FromBytes(b []byte) *Stream {
	return &Stream{src: bytes.NewReader(b)}
}

// Started reports whether a read has begun on this stream.
func (s *Stream) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Read implements io.Reader. A concurrent read from a second consumer fails
// immediately with ErrBusy rather than blocking.
func (s *Stream) Read(p []byte) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	if s.reading {
		s.mu.Unlock()
		return 0, ErrBusy
	}
	s.started = true
	s.reading = true
	src := s.src
	s.mu.Unlock()

	n, err := src.Read(p)

	s.mu.Lock()
	s.reading = false
	s.mu.Unlock()
	return n, err
}

// ReadAll drains the stream to completion, observing ctx between chunks.
func (s *Stream) ReadAll(ctx context.Context) ([]byte, error) {
	var buf bytes.Buffer
	chunk := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		n, err := s.Read(chunk)
		if n > 0 {
			buf.Write(chunk[:n])
		}
		if err == io.EOF {
			return buf.Bytes(), nil
		}
		if err != nil {
			return nil, err
		}
	}
}

// Close releases the stream. Further reads fail with ErrClosed.
func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.srcClose != nil {
		return s.srcClose.Close()
	}
	return nil
}

// Tee forks the stream into two branches that can be consumed independently.
// Each branch observes the source's chunks in order; the branches need not be
// paced together. The receiver must not be read again after Tee.
func (s *Stream) Tee() (*Stream, *Stream) {
	src := &teeSource{s: s}
	a := &teeBranch{src: src}
	b := &teeBranch{src: src}
	src.a, src.b = a, b
	return New(a), New(b)
}

// teeSource pulls from the underlying stream on demand, buffering chunks for
// whichever branch is behind.
type teeSource struct {
	mu   sync.Mutex
	s    *Stream
	a, b *teeBranch
	err  error
	done bool
}

type teeBranch struct {
	src *teeSource
	buf bytes.Buffer
}

func (b *teeBranch) Read(p []byte) (int, error) {
	src := b.src
	src.mu.Lock()
	defer src.mu.Unlock()

	for b.buf.Len() == 0 {
		if src.done {
			if src.err != nil {
				return 0, src.err
			}
			return 0, io.EOF
		}
		chunk := make([]byte, 32*1024)
		n, err := src.s.Read(chunk)
		if n > 0 {
			src.a.buf.Write(chunk[:n])
			src.b.buf.Write(chunk[:n])
		}
		if err == io.EOF {
			src.done = true
		} else if err != nil {
			src.done = true
			src.err = err
		}
	}
	return b.buf.Read(p)
}
