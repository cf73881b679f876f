package fetch

import (
	"net/http"

	"github.com/mitchellh/mapstructure"
	"github.com/vmihailenco/msgpack/v5"
)

// wireRequest is the serialized form of a Request. Only buffer-backed bodies
// survive serialization; a streaming body cannot cross a context boundary.
type wireRequest struct {
	Method           string              `msgpack:"method"`
	URL              string              `msgpack:"url"`
	Headers          map[string][]string `msgpack:"headers"`
	Redirect         string              `msgpack:"redirect"`
	CacheMode        string              `msgpack:"cacheMode,omitempty"`
	ResponseEncoding string              `msgpack:"responseEncoding"`
	HasBody          bool                `msgpack:"hasBody"`
	Body             []byte              `msgpack:"body,omitempty"`
	BodyType         string              `msgpack:"bodyType,omitempty"`
}

// SerializeRequest encodes a request for transfer to another execution
// context. Requests with a streaming body or an already-used body cannot be
// serialized.
func SerializeRequest(r *Request) ([]byte, error) {
	w := wireRequest{
		Method:           r.Method(),
		URL:              r.URL(),
		Headers:          r.Headers(),
		Redirect:         r.Redirect().String(),
		CacheMode:        r.CacheMode().String(),
		ResponseEncoding: r.ResponseEncoding().String(),
	}
	if r.HasBody() {
		if r.BodyUsed() {
			return nil, statef("cannot serialize a request whose body has been used")
		}
		buf := r.BodyBuffer()
		if buf == nil {
			return nil, validationf("cannot serialize a request with a streaming body")
		}
		w.HasBody = true
		w.Body = buf.View()
		w.BodyType = r.Headers().Get("Content-Type")
	}
	data, err := msgpack.Marshal(&w)
	if err != nil {
		return nil, &ValidationError{Msg: "failed to serialize request", Err: err}
	}
	return data, nil
}

// DeserializeRequest rebuilds a request serialized by SerializeRequest. The
// resulting request has a fresh, unconsumed body.
func DeserializeRequest(data []byte) (*Request, error) {
	var w wireRequest
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return nil, &ValidationError{Msg: "failed to deserialize request", Err: err}
	}
	init := &RequestInit{
		Method:             w.Method,
		Headers:            http.Header(w.Headers),
		Redirect:           w.Redirect,
		Cache:              w.CacheMode,
		EncodeResponseBody: w.ResponseEncoding,
	}
	if w.HasBody {
		init.Body = w.Body
	}
	req, err := NewRequest(w.URL, init)
	if err != nil {
		return nil, err
	}
	if w.HasBody && w.BodyType != "" {
		req.Headers().Set("Content-Type", w.BodyType)
	}
	return req, nil
}

// wireResponse is the serialized form of a Response.
type wireResponse struct {
	Status       int                 `msgpack:"status"`
	StatusText   string              `msgpack:"statusText"`
	Headers      map[string][]string `msgpack:"headers"`
	URLList      []string            `msgpack:"urlList"`
	BodyEncoding string              `msgpack:"bodyEncoding"`
	HasBody      bool                `msgpack:"hasBody"`
	Body         []byte              `msgpack:"body,omitempty"`
}

// SerializeResponse encodes a response for transfer to another execution
// context. WebSocket responses and streaming or used bodies cannot be
// serialized.
func SerializeResponse(r *Response) ([]byte, error) {
	if r.WebSocket() != nil {
		return nil, statef("cannot serialize a WebSocket response")
	}
	w := wireResponse{
		Status:       r.Status(),
		StatusText:   r.StatusText(),
		Headers:      r.Headers(),
		URLList:      r.URLList(),
		BodyEncoding: r.BodyEncoding().String(),
	}
	if r.HasBody() {
		if r.BodyUsed() {
			return nil, statef("cannot serialize a response whose body has been used")
		}
		buf := r.BodyBuffer()
		if buf == nil {
			return nil, validationf("cannot serialize a response with a streaming body")
		}
		w.HasBody = true
		w.Body = buf.View()
	}
	data, err := msgpack.Marshal(&w)
	if err != nil {
		return nil, &ValidationError{Msg: "failed to serialize response", Err: err}
	}
	return data, nil
}

// DeserializeResponse rebuilds a response serialized by SerializeResponse.
// The response is reassembled field by field rather than through NewResponse:
// the script constructor rejects statuses outside [200, 599], but the wire can
// legitimately carry informational statuses and the status-0 network-error
// sentinel.
func DeserializeResponse(data []byte) (*Response, error) {
	var w wireResponse
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return nil, &ValidationError{Msg: "failed to deserialize response", Err: err}
	}
	encoding, err := parseBodyEncoding(w.BodyEncoding)
	if err != nil {
		return nil, err
	}
	headers := http.Header(w.Headers).Clone()
	if headers == nil {
		headers = make(http.Header)
	}
	resp := &Response{
		statusCode:   w.Status,
		statusText:   w.StatusText,
		headers:      headers,
		urlList:      append([]string(nil), w.URLList...),
		bodyEncoding: encoding,
	}
	var body *ExtractedBody
	if w.HasBody {
		eb, err := ExtractBody(w.Body)
		if err != nil {
			return nil, err
		}
		body = eb
	}
	resp.initBody(body, resp.headers)
	return resp, nil
}

// DecodeRequestInit converts a loosely-typed map, as produced by a config
// file or a CLI flag, into a RequestInit.
func DecodeRequestInit(in map[string]any) (*RequestInit, error) {
	var init RequestInit
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &init,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(in); err != nil {
		return nil, &ValidationError{Msg: "invalid request initializer", Err: err}
	}
	return &init, nil
}
