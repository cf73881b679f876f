package fetch

import (
	"bytes"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// FormEntry is one field of a FormData payload. File entries carry a filename
// and raw data; plain fields carry just a value.
type FormEntry struct {
	Name        string
	Value       string
	Filename    string
	ContentType string
	Data        []byte
}

func (e FormEntry) isFile() bool { return e.Filename != "" || e.Data != nil }

// FormData is an ordered multimap of form fields.
type FormData struct {
	entries []FormEntry
}

func NewFormData() *FormData { return &FormData{} }

// Append adds a plain field.
func (f *FormData) Append(name, value string) {
	f.entries = append(f.entries, FormEntry{Name: name, Value: value})
}

// AppendBlob adds a file field backed by a blob.
func (f *FormData) AppendBlob(name string, blob *Blob, filename string) {
	f.entries = append(f.entries, FormEntry{
		Name:        name,
		Filename:    filename,
		ContentType: blob.Type(),
		Data:        blob.Bytes(),
	})
}

// Get returns the first value for name.
func (f *FormData) Get(name string) (string, bool) {
	for _, e := range f.entries {
		if e.Name == name {
			return e.Value, true
		}
	}
	return "", false
}

// Entries returns the fields in insertion order.
func (f *FormData) Entries() []FormEntry { return f.entries }

// makeRandomBoundary generates a fresh multipart boundary for serializing a
// FormData body.
func makeRandomBoundary() string {
	return "plexarFormBoundary" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// encodeMultipart serializes the form with the given boundary.
func (f *FormData) encodeMultipart(boundary string) ([]byte, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if err := w.SetBoundary(boundary); err != nil {
		return nil, err
	}
	for _, e := range f.entries {
		if e.isFile() {
			hdr := make(textproto.MIMEHeader)
			hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, e.Name, e.Filename))
			if e.ContentType != "" {
				hdr.Set("Content-Type", e.ContentType)
			}
			pw, err := w.CreatePart(hdr)
			if err != nil {
				return nil, err
			}
			if _, err := pw.Write(e.Data); err != nil {
				return nil, err
			}
			continue
		}
		if err := w.WriteField(e.Name, e.Value); err != nil {
			return nil, err
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// parseFormData decodes a body into FormData according to its content type,
// accepting multipart/form-data and application/x-www-form-urlencoded.
func parseFormData(data []byte, contentType string) (*FormData, error) {
	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return nil, &ValidationError{Msg: "unrecognized Content-Type for form data", Err: err}
	}
	switch mediaType {
	case "multipart/form-data":
		boundary, ok := params["boundary"]
		if !ok {
			return nil, validationf("multipart/form-data body is missing its boundary parameter")
		}
		fd := NewFormData()
		mr := multipart.NewReader(bytes.NewReader(data), boundary)
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return fd, nil
			}
			if err != nil {
				return nil, &ValidationError{Msg: "malformed multipart body", Err: err}
			}
			content, err := io.ReadAll(part)
			if err != nil {
				return nil, &ValidationError{Msg: "malformed multipart body", Err: err}
			}
			if fn := part.FileName(); fn != "" {
				fd.entries = append(fd.entries, FormEntry{
					Name:        part.FormName(),
					Filename:    fn,
					ContentType: part.Header.Get("Content-Type"),
					Data:        content,
				})
			} else {
				fd.Append(part.FormName(), string(content))
			}
		}
	case "application/x-www-form-urlencoded":
		// Decoded sequentially rather than through url.ParseQuery, whose map
		// loses the field order Entries() promises.
		fd := NewFormData()
		for _, pair := range strings.Split(string(data), "&") {
			if pair == "" {
				continue
			}
			rawName, rawValue, _ := strings.Cut(pair, "=")
			name, err := url.QueryUnescape(rawName)
			if err != nil {
				return nil, &ValidationError{Msg: "malformed urlencoded body", Err: err}
			}
			value, err := url.QueryUnescape(rawValue)
			if err != nil {
				return nil, &ValidationError{Msg: "malformed urlencoded body", Err: err}
			}
			fd.Append(name, value)
		}
		return fd, nil
	default:
		return nil, validationf("cannot parse %q as form data", mediaType)
	}
}
