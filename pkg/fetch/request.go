package fetch

import (
	"net/http"
	"strings"
)

// RedirectMode controls how fetch handles redirect responses.
type RedirectMode int

const (
	RedirectFollow RedirectMode = iota
	RedirectManual
)

func (m RedirectMode) String() string {
	if m == RedirectManual {
		return "manual"
	}
	return "follow"
}

// ParseRedirectMode parses a redirect mode string. Only "follow" and "manual"
// are supported; "error" mode does not apply to this runtime.
func ParseRedirectMode(s string) (RedirectMode, bool) {
	switch s {
	case "", "follow":
		return RedirectFollow, true
	case "manual":
		return RedirectManual, true
	default:
		return RedirectFollow, false
	}
}

// CacheMode controls interaction with an intermediary cache.
type CacheMode int

const (
	// CacheModeNone is the default caching behavior.
	CacheModeNone CacheMode = iota
	CacheModeNoStore
	CacheModeNoCache
)

func (m CacheMode) String() string {
	switch m {
	case CacheModeNoStore:
		return "no-store"
	case CacheModeNoCache:
		return "no-cache"
	default:
		return ""
	}
}

// BodyEncoding controls whether Content-Encoding headers are applied
// automatically or treated as opaque.
type BodyEncoding int

const (
	EncodingAuto BodyEncoding = iota
	EncodingManual
)

func (e BodyEncoding) String() string {
	if e == EncodingManual {
		return "manual"
	}
	return "automatic"
}

// NullBody is the explicit "no body" initializer, distinct from leaving the
// body unspecified.
var NullBody = &nullBody{}

type nullBody struct{}

// RequestInit is the optional property bag accepted by NewRequest and the
// fetch verbs.
type RequestInit struct {
	Method             string
	Headers            http.Header
	Body               any // body initializer; NullBody forces an empty body
	Redirect           string
	Fetcher            *Fetcher
	Cache              string
	Integrity          string
	Signal             *AbortSignal
	EncodeResponseBody string
}

// IsEmpty reports whether the init carries no overrides.
func (init *RequestInit) IsEmpty() bool {
	if init == nil {
		return true
	}
	return init.Method == "" && init.Headers == nil && init.Body == nil &&
		init.Redirect == "" && init.Fetcher == nil && init.Cache == "" &&
		init.Integrity == "" && init.Signal == nil && init.EncodeResponseBody == ""
}

// Request is an outgoing (or inbound) HTTP request. Fields are immutable
// after construction; the header list is owned by the request and mutable
// independently of it.
type Request struct {
	Body

	method   string
	url      string
	redirect RedirectMode
	headers  http.Header
	fetcher  *Fetcher

	// signal is the active cancellation source, nil when none is wired.
	// thisSignal is the always-present own signal exposed when the caller
	// did not supply one (or supplied one that can never fire, in which
	// case the caller's object is stored here so accessor identity is
	// preserved without paying for cancellation bookkeeping).
	signal     *AbortSignal
	thisSignal *AbortSignal

	cacheMode        CacheMode
	responseEncoding BodyEncoding
}

// isTokenChar reports whether c is an RFC 7230 tchar.
func isTokenChar(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	switch c {
	case '!', '#', '$', '%', '&', '\'', '*', '+', '-', '.', '^', '_', '`', '|', '~':
		return true
	}
	return false
}

func validateMethod(method string) (string, error) {
	if method == "" {
		return "", validationf("request method must not be empty")
	}
	for i := 0; i < len(method); i++ {
		if !isTokenChar(method[i]) {
			return "", validationf("invalid request method %q", method)
		}
	}
	// Normalize the methods the standard normalizes; leave extension
	// methods as given.
	switch upper := strings.ToUpper(method); upper {
	case "GET", "POST", "PUT", "DELETE", "HEAD", "OPTIONS", "PATCH":
		return upper, nil
	default:
		return method, nil
	}
}

func parseCacheMode(s string) (CacheMode, error) {
	flags := Compat()
	switch s {
	case "":
		return CacheModeNone, nil
	case "no-store":
		if !flags.cacheModeAllowed("no-store") {
			return CacheModeNone, validationf("cache mode %q is not enabled", s)
		}
		return CacheModeNoStore, nil
	case "no-cache":
		if !flags.cacheModeAllowed("no-cache") {
			return CacheModeNone, validationf("cache mode %q is not enabled", s)
		}
		return CacheModeNoCache, nil
	default:
		return CacheModeNone, validationf("unsupported cache mode %q", s)
	}
}

func parseBodyEncoding(s string) (BodyEncoding, error) {
	switch s {
	case "", "automatic":
		return EncodingAuto, nil
	case "manual":
		return EncodingManual, nil
	default:
		return EncodingAuto, validationf("encodeResponseBody must be \"automatic\" or \"manual\", got %q", s)
	}
}

// NewRequest builds a canonical Request from either a URL string or an
// existing Request, plus an optional init bag. Construction validates the
// method token, the redirect mode, the cache mode against the compatibility
// gates, and rejects non-empty integrity metadata.
func NewRequest(input any, init *RequestInit) (*Request, error) {
	req := &Request{
		method:     "GET",
		redirect:   RedirectFollow,
		headers:    make(http.Header),
		thisSignal: NewNeverAbortsSignal(),
	}

	var inherited *ExtractedBody
	switch in := input.(type) {
	case string:
		req.url = in
	case *Request:
		req.method = in.method
		req.url = in.url
		req.redirect = in.redirect
		req.headers = in.headers.Clone()
		req.fetcher = in.fetcher
		req.signal = in.signal
		// Carry the source's own signal too so Signal() on the derived
		// request keeps returning the same object the source exposed.
		req.thisSignal = in.thisSignal
		req.cacheMode = in.cacheMode
		req.responseEncoding = in.responseEncoding
		if init == nil || init.Body == nil {
			eb, err := in.cloneBody()
			if err != nil {
				return nil, err
			}
			inherited = eb
		}
	default:
		return nil, validationf("request input must be a URL string or a Request, got %T", input)
	}

	if init != nil {
		if init.Method != "" {
			m, err := validateMethod(init.Method)
			if err != nil {
				return nil, err
			}
			req.method = m
		}
		if init.Headers != nil {
			req.headers = init.Headers.Clone()
		}
		if init.Redirect != "" {
			mode, ok := ParseRedirectMode(init.Redirect)
			if !ok {
				return nil, validationf("unsupported redirect mode %q", init.Redirect)
			}
			req.redirect = mode
		}
		if init.Fetcher != nil {
			req.fetcher = init.Fetcher
		}
		if init.Cache != "" {
			mode, err := parseCacheMode(init.Cache)
			if err != nil {
				return nil, err
			}
			req.cacheMode = mode
		}
		if init.Integrity != "" {
			return nil, validationf("subresource integrity is not supported; integrity must be empty")
		}
		if init.EncodeResponseBody != "" {
			enc, err := parseBodyEncoding(init.EncodeResponseBody)
			if err != nil {
				return nil, err
			}
			req.responseEncoding = enc
		}
		if s := init.Signal; s != nil {
			// A signal that can never fire is stored as the request's
			// own signal: accessor identity is preserved while the
			// cancel machinery stays unwired.
			if s.NeverAborts() {
				req.signal = nil
				req.thisSignal = s
			} else {
				req.signal = s
			}
		}
	}

	var body *ExtractedBody
	switch {
	case init != nil && init.Body == NullBody:
		body = nil
	case init != nil && init.Body != nil:
		eb, err := ExtractBody(init.Body)
		if err != nil {
			return nil, err
		}
		body = eb
	default:
		body = inherited
	}
	req.initBody(body, req.headers)
	return req, nil
}

// CoerceRequest returns input unchanged when it is already a Request with no
// overrides, and builds a canonical Request otherwise. Both paths produce
// field-identical results for identical logical input; skipping construction
// is purely an optimization.
func CoerceRequest(input any, init *RequestInit) (*Request, error) {
	if r, ok := input.(*Request); ok && init.IsEmpty() {
		return r, nil
	}
	return NewRequest(input, init)
}

// Clone deep-copies the request: the header list is copied and the body is
// cloned, so the two requests share no mutable state afterwards.
func (r *Request) Clone() (*Request, error) {
	eb, err := r.cloneBody()
	if err != nil {
		return nil, err
	}
	clone := &Request{
		method:           r.method,
		url:              r.url,
		redirect:         r.redirect,
		headers:          r.headers.Clone(),
		fetcher:          r.fetcher,
		signal:           r.signal,
		thisSignal:       r.thisSignal,
		cacheMode:        r.cacheMode,
		responseEncoding: r.responseEncoding,
	}
	clone.initBody(eb, clone.headers)
	return clone, nil
}

func (r *Request) Method() string { return r.method }

func (r *Request) URL() string { return r.url }

func (r *Request) setURL(u string)    { r.url = u }
func (r *Request) setMethod(m string) { r.method = m }

// Headers returns the request's header list. The list is owned by the
// request but mutable by the caller.
func (r *Request) Headers() http.Header { return r.headers }

func (r *Request) Redirect() RedirectMode { return r.redirect }

func (r *Request) Fetcher() *Fetcher { return r.fetcher }

func (r *Request) CacheMode() CacheMode { return r.cacheMode }

func (r *Request) ResponseEncoding() BodyEncoding { return r.responseEncoding }

// Signal returns the request's signal as observed by callers: the supplied
// signal when one was given, else the request's own never-firing signal.
func (r *Request) Signal() *AbortSignal {
	if r.signal != nil {
		return r.signal
	}
	return r.thisSignal
}

// ActiveSignal returns the signal actually wired for cancellation, nil when
// cancellation is not in play for this request.
func (r *Request) ActiveSignal() *AbortSignal { return r.signal }

// ClearSignalForSubrequest detaches the active cancellation source. Used when
// an inbound request is passed through to another fetch so that the
// subrequest is not aborted along with the inbound event.
func (r *Request) ClearSignalForSubrequest() { r.signal = nil }
