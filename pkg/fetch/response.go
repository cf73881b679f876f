package fetch

import (
	"context"
	"net/http"
	"net/url"

	json "github.com/goccy/go-json"
)

// IsNullBodyStatus reports whether statusCode forbids a response body
// (all 1xx, plus 204, 205 and 304).
func IsNullBodyStatus(statusCode int) bool {
	if statusCode >= 100 && statusCode < 200 {
		return true
	}
	switch statusCode {
	case 204, 205, 304:
		return true
	}
	return false
}

// IsRedirectStatus reports whether statusCode is one of the five redirect
// statuses.
func IsRedirectStatus(statusCode int) bool {
	switch statusCode {
	case 301, 302, 303, 307, 308:
		return true
	}
	return false
}

// ResponseInit is the optional property bag accepted by NewResponse.
type ResponseInit struct {
	Status     int
	StatusText string
	Headers    http.Header
	WebSocket  *WebSocket
	EncodeBody string
}

// Response is the result of a fetch or a script-constructed response.
type Response struct {
	Body

	statusCode int
	statusText string
	headers    http.Header

	// urlList is the ordered sequence of URLs visited while following
	// redirects; empty for script-constructed responses. The last entry is
	// the one exposed by URL().
	urlList []string

	// webSocket is set for successful upgrade handshakes; such responses
	// carry an empty body.
	webSocket *WebSocket

	bodyEncoding BodyEncoding
}

// NewResponse builds a script-constructed response with an optional body.
func NewResponse(bodyInit any, init *ResponseInit) (*Response, error) {
	status := http.StatusOK
	statusText := ""
	headers := make(http.Header)
	var ws *WebSocket
	encoding := EncodingAuto
	if init != nil {
		if init.Status != 0 {
			if init.Status < 200 || init.Status > 599 {
				return nil, validationf("response status must be in [200, 599], got %d", init.Status)
			}
			status = init.Status
		}
		if init.StatusText != "" {
			statusText = init.StatusText
		}
		if init.Headers != nil {
			headers = init.Headers.Clone()
		}
		ws = init.WebSocket
		if init.EncodeBody != "" {
			enc, err := parseBodyEncoding(init.EncodeBody)
			if err != nil {
				return nil, validationf("encodeBody must be \"automatic\" or \"manual\", got %q", init.EncodeBody)
			}
			encoding = enc
		}
	}
	if statusText == "" {
		statusText = http.StatusText(status)
	}

	var body *ExtractedBody
	if bodyInit != nil && bodyInit != NullBody {
		if IsNullBodyStatus(status) {
			return nil, validationf("response with null-body status %d cannot have a body", status)
		}
		eb, err := ExtractBody(bodyInit)
		if err != nil {
			return nil, err
		}
		body = eb
	}
	if ws != nil && body != nil {
		return nil, validationf("a WebSocket response cannot carry a body")
	}

	resp := &Response{
		statusCode:   status,
		statusText:   statusText,
		headers:      headers,
		webSocket:    ws,
		bodyEncoding: encoding,
	}
	resp.initBody(body, resp.headers)
	return resp, nil
}

// NewJSONResponse serializes v as JSON and builds a response around it with
// Content-Type application/json.
func NewJSONResponse(v any, init *ResponseInit) (*Response, error) {
	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, &ValidationError{Msg: "failed to serialize response body to JSON", Err: err}
	}
	resp, err := NewResponse(encoded, init)
	if err != nil {
		return nil, err
	}
	resp.headers.Set("Content-Type", "application/json")
	return resp, nil
}

// RedirectResponse constructs a redirection response. The status must be a
// redirect status if given, else it defaults to 302. The result has an empty
// URL chain, Redirected() == false, a synthetic Location header and an empty
// body.
func RedirectResponse(location string, status int) (*Response, error) {
	if status == 0 {
		status = http.StatusFound
	}
	if !IsRedirectStatus(status) {
		return nil, validationf("invalid redirect status %d", status)
	}
	headers := make(http.Header)
	headers.Set("Location", location)
	resp := &Response{
		statusCode: status,
		statusText: http.StatusText(status),
		headers:    headers,
	}
	resp.initBody(nil, resp.headers)
	return resp, nil
}

// NetworkError constructs the sentinel "the fetch failed by policy" response:
// status 0, empty status text, empty headers, empty body. It is
// distinguishable from every real HTTP status.
func NetworkError() *Response {
	resp := &Response{
		statusCode: 0,
		statusText: "",
		headers:    make(http.Header),
	}
	resp.initBody(nil, resp.headers)
	return resp
}

// MakeHTTPResponse wraps a raw transport result into a Response. Statuses in
// the null-body table get their body dropped; otherwise the transport's body
// stream is adopted as-is.
func MakeHTTPResponse(method string, urlList []*url.URL, raw *RawResponse, encoding BodyEncoding, ec *ExecContext) *Response {
	urls := make([]string, 0, len(urlList))
	for _, u := range urlList {
		urls = append(urls, u.String())
	}
	resp := &Response{
		statusCode:   raw.Status,
		statusText:   raw.StatusText,
		headers:      raw.Headers.Clone(),
		urlList:      urls,
		webSocket:    raw.WebSocket,
		bodyEncoding: encoding,
	}
	var body *ExtractedBody
	if raw.Body != nil && raw.WebSocket == nil &&
		!IsNullBodyStatus(raw.Status) && method != "HEAD" {
		body = &ExtractedBody{Stream: raw.Body}
	}
	resp.initBody(body, resp.headers)
	resp.Body.execCtx = ec
	return resp
}

// Clone deep-copies the response; see Request.Clone for the body contract.
func (r *Response) Clone() (*Response, error) {
	if r.webSocket != nil {
		return nil, statef("cannot clone a WebSocket response")
	}
	eb, err := r.cloneBody()
	if err != nil {
		return nil, err
	}
	clone := &Response{
		statusCode:   r.statusCode,
		statusText:   r.statusText,
		headers:      r.headers.Clone(),
		urlList:      append([]string(nil), r.urlList...),
		bodyEncoding: r.bodyEncoding,
	}
	clone.initBody(eb, clone.headers)
	clone.Body.execCtx = r.Body.execCtx
	return clone, nil
}

func (r *Response) Status() int { return r.statusCode }

func (r *Response) StatusText() string { return r.statusText }

func (r *Response) Headers() http.Header { return r.headers }

// OK reports whether the status is in the 2xx range.
func (r *Response) OK() bool { return r.statusCode >= 200 && r.statusCode < 300 }

// Redirected reports whether the response was reached through at least one
// redirect.
func (r *Response) Redirected() bool { return len(r.urlList) > 1 }

// URL returns the last URL in the chain, or "" for script-constructed
// responses.
func (r *Response) URL() string {
	if len(r.urlList) == 0 {
		return ""
	}
	return r.urlList[len(r.urlList)-1]
}

// URLList returns the ordered list of URLs visited while following
// redirects.
func (r *Response) URLList() []string { return r.urlList }

func (r *Response) WebSocket() *WebSocket { return r.webSocket }

func (r *Response) BodyEncoding() BodyEncoding { return r.bodyEncoding }

// Type reports "error" for the network-error sentinel and "default"
// otherwise.
func (r *Response) Type() string {
	if r.statusCode == 0 {
		return "error"
	}
	return "default"
}

// SendOptions configure Send.
type SendOptions struct {
	AllowWebSocket bool
}

// Send writes status, headers and body to the outer transport. A WebSocket
// response reaching Send without AllowWebSocket is a caller contract
// violation and panics: upgrades must go through the dedicated path.
func (r *Response) Send(ctx context.Context, outer ServerTransport, opts SendOptions, reqHeaders http.Header) error {
	if r.webSocket != nil && !opts.AllowWebSocket {
		panic("fetch: WebSocket response sent through the plain response path")
	}
	headers := r.headers.Clone()
	if r.bodyEncoding == EncodingManual {
		// The body bytes are already encoded; leave Content-Encoding
		// untouched and let them pass through opaquely.
	} else if headers.Get("Content-Encoding") != "" && !r.HasBody() {
		headers.Del("Content-Encoding")
	}

	if IsNullBodyStatus(r.statusCode) || !r.HasBody() {
		return outer.WriteResponse(ctx, r.statusCode, r.statusText, headers, nil)
	}
	stream, err := r.beginConsume()
	if err != nil {
		return err
	}
	return outer.WriteResponse(ctx, r.statusCode, r.statusText, headers, stream)
}
