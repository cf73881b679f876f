package fetch

import (
	"context"
	"net/http"
	"net/url"
	"strings"
)

// FetchImpl drives a fetch end to end: it coerces the input into a Request,
// resolves a fetcher, sends the request, and follows redirects per the
// request's redirect mode. The explicit fetcher argument wins over the
// fetcher attached to the request; if neither is present the fetch fails.
func FetchImpl(ctx context.Context, ec *ExecContext, fetcher *Fetcher, requestOrURL any, init *RequestInit) (*Response, error) {
	req, err := CoerceRequest(requestOrURL, init)
	if err != nil {
		return nil, err
	}
	// The redirect loop rewrites the request between hops. When the coerced
	// request aliases the caller's own object, derive a private copy so the
	// caller's method, URL and body survive the fetch.
	if r, ok := requestOrURL.(*Request); ok && r == req {
		req, err = NewRequest(r, nil)
		if err != nil {
			return nil, err
		}
	}

	if fetcher == nil {
		fetcher = req.Fetcher()
	}
	if fetcher == nil {
		return nil, validationf("no fetcher available for this request")
	}

	u, err := fetcher.ParseURL(req.URL())
	if err != nil {
		return nil, err
	}

	urlList := []*url.URL{u}
	return fetchLoop(ctx, ec, fetcher, req, urlList)
}

// fetchLoop sends the request and follows redirects. Each hop resolves a
// fresh single-use client; the URL chain accumulates every visited URL so the
// final response can report where it came from.
func fetchLoop(ctx context.Context, ec *ExecContext, fetcher *Fetcher, req *Request, urlList []*url.URL) (*Response, error) {
	maxRedirects := Compat().MaxRedirects

	for {
		current := urlList[len(urlList)-1]

		handle, err := fetcher.GetClient(ec, "", "fetch")
		if err != nil {
			return nil, err
		}

		raw, err := sendOnce(ctx, handle, req, current)
		if err != nil {
			if ec != nil {
				ec.Observer().ReportFailure(err, FailureSourceTransport)
			}
			return nil, err
		}

		if !IsRedirectStatus(raw.Status) || req.Redirect() != RedirectFollow {
			return MakeHTTPResponse(req.Method(), urlList, raw, req.ResponseEncoding(), ec), nil
		}

		location := raw.Headers.Get("Location")
		if location == "" {
			// A redirect status without a Location header is delivered
			// to the caller as-is.
			return MakeHTTPResponse(req.Method(), urlList, raw, req.ResponseEncoding(), ec), nil
		}
		next, err := current.Parse(location)
		if err != nil {
			return nil, validationf("invalid redirect location %q", location)
		}
		if next.Scheme != "http" && next.Scheme != "https" {
			return nil, validationf("redirect to unsupported scheme %q", next.Scheme)
		}

		if raw.Body != nil {
			raw.Body.Close()
		}

		if len(urlList) > maxRedirects {
			return nil, transmissionf("too many redirects (limit %d)", maxRedirects)
		}

		if err := adjustForRedirect(req, raw.Status); err != nil {
			return nil, err
		}

		urlList = append(urlList, next)
		req.setURL(next.String())
	}
}

// sendOnce performs a single transport round trip with the request's abort
// signal bound to the context.
func sendOnce(ctx context.Context, handle *ClientHandle, req *Request, u *url.URL) (*RawResponse, error) {
	if signal := req.ActiveSignal(); signal != nil {
		bound, stop := signal.Bind(ctx)
		defer stop()
		ctx = bound
	}
	req.setURL(u.String())
	return handle.Do(ctx, req)
}

// adjustForRedirect rewrites the request for the next hop. A 303 always
// switches to GET and drops the body; 301 and 302 do the same for POST. A
// 307 or 308 retransmits the original body, which requires a buffer-backed
// body that can be rewound.
func adjustForRedirect(req *Request, status int) error {
	switch status {
	case http.StatusSeeOther:
		req.setMethod("GET")
		req.Nullify()
		stripBodyHeaders(req.Headers())
	case http.StatusMovedPermanently, http.StatusFound:
		if req.Method() == "POST" {
			req.setMethod("GET")
			req.Nullify()
			stripBodyHeaders(req.Headers())
		}
	case http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		if req.HasBody() {
			if !req.CanRewind() {
				return transmissionf("cannot retransmit a streaming body on a %d redirect", status)
			}
			req.Rewind()
		}
	}
	return nil
}

// stripBodyHeaders removes headers that describe a body that no longer
// exists.
func stripBodyHeaders(h http.Header) {
	for name := range h {
		if strings.HasPrefix(http.CanonicalHeaderKey(name), "Content-") {
			h.Del(name)
		}
	}
}
