package fetch

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"strings"
	"sync/atomic"

	"github.com/coder/websocket"

	"github.com/plexar-dev/plexar/build"
	"github.com/plexar-dev/plexar/pkg/streams"
)

// RawResponse is the transport-level result of one outgoing call, before it
// is wrapped into a Response.
type RawResponse struct {
	Status     int
	StatusText string
	Headers    http.Header
	Body       *streams.Stream
	WebSocket  *WebSocket
}

// Transport performs a single outgoing call for a Request-shaped value.
type Transport interface {
	RoundTrip(ctx context.Context, req *Request) (*RawResponse, error)
}

// Connector is implemented by transports that can open raw sockets.
type Connector interface {
	Connect(ctx context.Context, address string, opts *SocketOptions) (*Socket, error)
}

// QueueDispatcher is implemented by transports that can deliver queue events
// to the remote destination.
type QueueDispatcher interface {
	DispatchQueue(ctx context.Context, queueName string, messages []SerializedQueueMessage) (*QueueResult, error)
}

// ScheduledDispatcher is implemented by transports that can deliver scheduled
// events to the remote destination.
type ScheduledDispatcher interface {
	DispatchScheduled(ctx context.Context, opts *ScheduledOptions) (*ScheduledResult, error)
}

// RPCTarget is implemented by transports that support direct method
// invocation on the remote destination.
type RPCTarget interface {
	CallMethod(ctx context.Context, method string, args []any) (any, error)
}

// ServerTransport receives the completed response for an inbound request.
type ServerTransport interface {
	WriteResponse(ctx context.Context, status int, statusText string, headers http.Header, body io.Reader) error
}

// WebSocket is the upgraded-socket handle carried by a Response after a
// successful handshake. A response carrying one has an empty body.
type WebSocket struct {
	conn *websocket.Conn
}

func NewWebSocket(conn *websocket.Conn) *WebSocket { return &WebSocket{conn: conn} }

func (w *WebSocket) Conn() *websocket.Conn { return w.conn }

func (w *WebSocket) Close(code websocket.StatusCode, reason string) error {
	if w.conn == nil {
		return nil
	}
	return w.conn.Close(code, reason)
}

// SocketOptions configure a Connect call. SecureTransport takes "off" (the
// default), "on" for TLS from the start, or "starttls".
type SocketOptions struct {
	SecureTransport string
	AllowHalfOpen   bool
}

// Socket is a raw byte-stream connection to a remote destination.
type Socket struct {
	conn net.Conn
}

func NewSocket(conn net.Conn) *Socket { return &Socket{conn: conn} }

func (s *Socket) Read(p []byte) (int, error)  { return s.conn.Read(p) }
func (s *Socket) Write(p []byte) (int, error) { return s.conn.Write(p) }
func (s *Socket) Close() error                { return s.conn.Close() }

// ClientHandle is a transport handle resolved through a fetcher. It is valid
// only for the lifetime of the execution context that resolved it and can
// perform exactly one outgoing call.
type ClientHandle struct {
	transport Transport
	ec        *ExecContext
	operation string
	used      atomic.Bool
}

// Transport exposes the wrapped transport for capability probing.
func (h *ClientHandle) Transport() Transport { return h.transport }

// Do performs the handle's single outgoing call.
func (h *ClientHandle) Do(ctx context.Context, req *Request) (*RawResponse, error) {
	if !h.ec.Alive() {
		return nil, statef("transport handle used after its execution context ended (%s)", h.operation)
	}
	if h.used.Swap(true) {
		return nil, statef("transport handle reused (%s); handles perform exactly one call", h.operation)
	}
	raw, err := h.transport.RoundTrip(ctx, req)
	if err != nil {
		return nil, &TransmissionError{Msg: "outgoing call failed", Err: err}
	}
	return raw, nil
}

// HTTPTransport performs outgoing calls over HTTP(S), including WebSocket
// upgrades. Redirects are never followed at this level; the orchestrator owns
// the redirect loop.
type HTTPTransport struct {
	Client    *http.Client
	UserAgent string
}

func NewHTTPTransport() *HTTPTransport {
	return &HTTPTransport{
		Client: &http.Client{
			Transport: &http.Transport{
				TLSClientConfig: &tls.Config{},
			},
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		UserAgent: build.UserAgent(),
	}
}

func (t *HTTPTransport) RoundTrip(ctx context.Context, req *Request) (*RawResponse, error) {
	if strings.EqualFold(req.Headers().Get("Upgrade"), "websocket") {
		return t.dialWebSocket(ctx, req)
	}

	var body io.Reader
	if s := req.BodyStream(); s != nil {
		body = s
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method(), req.URL(), body)
	if err != nil {
		return nil, err
	}
	httpReq.Header = req.Headers().Clone()
	if httpReq.Header.Get("User-Agent") == "" {
		httpReq.Header.Set("User-Agent", t.UserAgent)
	}
	switch req.CacheMode() {
	case CacheModeNoStore:
		httpReq.Header.Set("Cache-Control", "no-store")
	case CacheModeNoCache:
		httpReq.Header.Set("Cache-Control", "no-cache")
	}
	// Asking for gzip explicitly suppresses the client's transparent
	// decompression, handing the raw encoded bytes to the caller.
	if req.ResponseEncoding() == EncodingManual && httpReq.Header.Get("Accept-Encoding") == "" {
		httpReq.Header.Set("Accept-Encoding", "gzip")
	}

	resp, err := t.Client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	statusText := http.StatusText(resp.StatusCode)
	if i := strings.IndexByte(resp.Status, ' '); i >= 0 {
		statusText = resp.Status[i+1:]
	}
	return &RawResponse{
		Status:     resp.StatusCode,
		StatusText: statusText,
		Headers:    resp.Header,
		Body:       streams.New(resp.Body),
	}, nil
}

func (t *HTTPTransport) dialWebSocket(ctx context.Context, req *Request) (*RawResponse, error) {
	hdr := req.Headers().Clone()
	hdr.Del("Upgrade")
	hdr.Del("Connection")
	if hdr.Get("User-Agent") == "" {
		hdr.Set("User-Agent", t.UserAgent)
	}
	conn, resp, err := websocket.Dial(ctx, req.URL(), &websocket.DialOptions{
		HTTPClient: t.Client,
		HTTPHeader: hdr,
	})
	if err != nil {
		return nil, err
	}
	headers := make(http.Header)
	status := http.StatusSwitchingProtocols
	if resp != nil {
		headers = resp.Header
		status = resp.StatusCode
	}
	return &RawResponse{
		Status:     status,
		StatusText: http.StatusText(status),
		Headers:    headers,
		WebSocket:  NewWebSocket(conn),
	}, nil
}

// Connect opens a raw socket to address, upgrading to TLS when the options
// ask for secure transport.
func (t *HTTPTransport) Connect(ctx context.Context, address string, opts *SocketOptions) (*Socket, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, err
	}
	if opts != nil && opts.SecureTransport == "on" {
		host, _, err := net.SplitHostPort(address)
		if err != nil {
			host = address
		}
		conn = tls.Client(conn, &tls.Config{ServerName: host})
	}
	return NewSocket(conn), nil
}

var (
	_ Transport = (*HTTPTransport)(nil)
	_ Connector = (*HTTPTransport)(nil)
)
