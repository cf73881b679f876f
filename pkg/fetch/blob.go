package fetch

// Blob is an immutable, typed byte payload. Buffers built from a Blob share
// its backing bytes by reference instead of copying.
type Blob struct {
	data []byte
	typ  string
}

// NewBlob adopts data as a blob with the given media type.
func NewBlob(data []byte, contentType string) *Blob {
	return &Blob{data: data, typ: contentType}
}

// Bytes returns the blob's contents. Callers must not mutate the result.
func (b *Blob) Bytes() []byte { return b.data }

// Type returns the blob's media type, possibly empty.
func (b *Blob) Type() string { return b.typ }

// Size returns the payload length in bytes.
func (b *Blob) Size() int { return len(b.data) }
