package fetch

import (
	"context"
	"net/url"
	"strconv"
	"time"

	"github.com/vmihailenco/msgpack/v5"
	"golang.org/x/sync/errgroup"
)

// OutgoingFactory builds ad-hoc, single-use transports for a fetcher tied to
// the current execution context.
type OutgoingFactory interface {
	NewSingleUseClient(metadata string) (Transport, error)
}

// CrossContextOutgoingFactory builds single-use transports for a fetcher that
// is valid across execution contexts; the factory must work from any context.
type CrossContextOutgoingFactory interface {
	NewSingleUseClient(ec *ExecContext, metadata string) (Transport, error)
}

// SubrequestChannel describes a fetcher's destination in a form that can be
// handed to a different execution context.
type SubrequestChannel struct {
	Channel  uint
	Metadata string
}

// SubrequestChannelProvider is optionally implemented by factories that can
// describe themselves as a channel. Factories that cannot generally cross a
// context boundary simply don't implement it, which surfaces as a capability
// error rather than a crash.
type SubrequestChannelProvider interface {
	SubrequestChannel(ec *ExecContext) (*SubrequestChannel, error)
}

// Fetcher is a logical destination for outgoing calls. Exactly one of the
// three routing variants is populated: a stable numbered channel, a per-call
// ad-hoc factory, or a cross-context factory. Resolving a fetcher always
// yields a fresh transport handle, never a cached connection.
type Fetcher struct {
	channel    uint
	hasChannel bool
	outgoing   OutgoingFactory
	crossCtx   CrossContextOutgoingFactory

	requiresHost bool
	inHouse      bool
}

// FetcherOption configures a fetcher.
type FetcherOption func(*Fetcher)

// InHouse marks the fetcher as an internal destination, which bypasses the
// public-API compatibility gating on RPC method resolution.
func InHouse() FetcherOption {
	return func(f *Fetcher) { f.inHouse = true }
}

// NewChannelFetcher routes through a stable numbered subrequest channel.
// Within one runtime instance, the same channel always refers to the same
// destination even though the transport object differs between calls.
func NewChannelFetcher(channel uint, requiresHost bool, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{channel: channel, hasChannel: true, requiresHost: requiresHost}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewFactoryFetcher routes through an ad-hoc factory tied to the current
// execution context.
func NewFactoryFetcher(factory OutgoingFactory, requiresHost bool, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{outgoing: factory, requiresHost: requiresHost}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// NewCrossContextFetcher routes through a factory that remains valid across
// execution contexts.
func NewCrossContextFetcher(factory CrossContextOutgoingFactory, requiresHost bool, opts ...FetcherOption) *Fetcher {
	f := &Fetcher{crossCtx: factory, requiresHost: requiresHost}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// GetClient resolves the fetcher to a transport handle scoped to ec. Callers
// must not retain the handle past the context's lifetime. The operation label
// is used for diagnostics and observer accounting.
func (f *Fetcher) GetClient(ec *ExecContext, metadata string, operation string) (*ClientHandle, error) {
	if ec == nil {
		return nil, validationf("no execution context for %s", operation)
	}
	var (
		t   Transport
		err error
	)
	switch {
	case f.hasChannel:
		t, err = ec.SubrequestTransport(f.channel, operation)
	case f.outgoing != nil:
		t, err = f.outgoing.NewSingleUseClient(metadata)
	case f.crossCtx != nil:
		t, err = f.crossCtx.NewSingleUseClient(ec, metadata)
	default:
		return nil, statef("fetcher has no routing target")
	}
	if err != nil {
		return nil, err
	}
	t = ec.Observer().WrapTransport(t)
	return &ClientHandle{transport: t, ec: ec, operation: operation}, nil
}

// GetSubrequestChannel resolves the fetcher's destination to a channel
// descriptor that can be handed to a different execution context. For factory
// variants this is only possible when the factory implements
// SubrequestChannelProvider; otherwise a capability error is returned.
func (f *Fetcher) GetSubrequestChannel(ec *ExecContext) (*SubrequestChannel, error) {
	if f.hasChannel {
		return &SubrequestChannel{Channel: f.channel}, nil
	}
	var provider SubrequestChannelProvider
	if p, ok := f.outgoing.(SubrequestChannelProvider); ok {
		provider = p
	} else if p, ok := f.crossCtx.(SubrequestChannelProvider); ok {
		provider = p
	}
	if provider == nil {
		return nil, capabilityf("this fetcher does not implement subrequest channel resolution")
	}
	return provider.SubrequestChannel(ec)
}

// ParseURL parses a user-given URL against this fetcher's host and protocol
// requirement. Fetchers for "same-origin" style destinations accept
// schemeless/hostless URLs by resolving them against a placeholder origin;
// fetchers that require a host fail with a validation error instead.
func (f *Fetcher) ParseURL(raw string) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, &ValidationError{Msg: "invalid URL", Err: err}
	}
	if u.Scheme == "" || u.Host == "" {
		if f.requiresHost {
			return nil, validationf("fetcher requires an absolute URL with scheme and host, got %q", raw)
		}
		base := &url.URL{Scheme: "https", Host: "fake-host"}
		u = base.ResolveReference(u)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, validationf("unsupported URL scheme %q", u.Scheme)
	}
	return u, nil
}

// Fetch performs a fetch through this fetcher. It is the verb-level entry
// point; the orchestration itself lives in FetchImpl.
func (f *Fetcher) Fetch(ctx context.Context, ec *ExecContext, requestOrURL any, init *RequestInit) (*Response, error) {
	return FetchImpl(ctx, ec, f, requestOrURL, init)
}

// PutOptions carry optional metadata for Put, originally intended for
// expiring stored values.
type PutOptions struct {
	Expiration    int
	ExpirationTTL int
}

// Get is a helper mapping to fetch with method GET.
func (f *Fetcher) Get(ctx context.Context, ec *ExecContext, rawURL string) (*Response, error) {
	if err := f.verbHelpersEnabled(); err != nil {
		return nil, err
	}
	return FetchImpl(ctx, ec, f, rawURL, &RequestInit{Method: "GET"})
}

// Put is a helper mapping to fetch with method PUT and a body extracted from
// the given initializer.
func (f *Fetcher) Put(ctx context.Context, ec *ExecContext, rawURL string, body any, opts *PutOptions) (*Response, error) {
	if err := f.verbHelpersEnabled(); err != nil {
		return nil, err
	}
	init := &RequestInit{Method: "PUT", Body: body}
	if opts != nil {
		init.Headers = make(map[string][]string)
		if opts.Expiration != 0 {
			init.Headers["Expiration"] = []string{strconv.Itoa(opts.Expiration)}
		}
		if opts.ExpirationTTL != 0 {
			init.Headers["Expiration-Ttl"] = []string{strconv.Itoa(opts.ExpirationTTL)}
		}
	}
	return FetchImpl(ctx, ec, f, rawURL, init)
}

// Delete is a helper mapping to fetch with method DELETE.
func (f *Fetcher) Delete(ctx context.Context, ec *ExecContext, rawURL string) (*Response, error) {
	if err := f.verbHelpersEnabled(); err != nil {
		return nil, err
	}
	return FetchImpl(ctx, ec, f, rawURL, &RequestInit{Method: "DELETE"})
}

func (f *Fetcher) verbHelpersEnabled() error {
	if Compat().DisableVerbHelpers {
		return capabilityf("the get/put/delete helpers are disabled by configuration")
	}
	return nil
}

// Connect opens a raw socket to the given address through this fetcher's
// transport.
func (f *Fetcher) Connect(ctx context.Context, ec *ExecContext, address string, opts *SocketOptions) (*Socket, error) {
	handle, err := f.GetClient(ec, "", "connect")
	if err != nil {
		return nil, err
	}
	conn, ok := handle.Transport().(Connector)
	if !ok {
		return nil, capabilityf("this fetcher's transport does not support connect()")
	}
	sock, err := conn.Connect(ctx, address, opts)
	if err != nil {
		return nil, &TransmissionError{Msg: "connect failed", Err: err}
	}
	return sock, nil
}

// QueueMessage is one message delivered to a queue event handler on the
// remote destination. Either Body (serialized on dispatch) or SerializedBody
// (pre-serialized by the caller) is set, never both.
type QueueMessage struct {
	ID             string
	Timestamp      time.Time
	Body           any
	SerializedBody []byte
	Attempts       uint16
}

// SerializedQueueMessage is the wire form of a QueueMessage.
type SerializedQueueMessage struct {
	ID        string    `msgpack:"id"`
	Timestamp time.Time `msgpack:"timestamp"`
	Body      []byte    `msgpack:"body"`
	Attempts  uint16    `msgpack:"attempts"`
}

// QueueRetryBatch reports whether the whole batch should be retried.
type QueueRetryBatch struct {
	Retry        bool
	DelaySeconds int
}

// QueueRetryMessage identifies a single message to retry.
type QueueRetryMessage struct {
	MsgID        string
	DelaySeconds int
}

// QueueResult is the structured outcome of a queue dispatch.
type QueueResult struct {
	Outcome       string
	AckAll        bool
	RetryBatch    QueueRetryBatch
	ExplicitAcks  []string
	RetryMessages []QueueRetryMessage
}

// ScheduledOptions configure a scheduled event dispatch.
type ScheduledOptions struct {
	ScheduledTime *time.Time
	Cron          string
}

// ScheduledResult is the structured outcome of a scheduled dispatch.
type ScheduledResult struct {
	Outcome string
	NoRetry bool
}

// Queue packages the messages into wire records and dispatches them as a
// logical queue event to the remote destination.
func (f *Fetcher) Queue(ctx context.Context, ec *ExecContext, queueName string, messages []QueueMessage) (*QueueResult, error) {
	if !Compat().EnableExtraHandlers {
		return nil, capabilityf("queue() requires the extra handlers gate")
	}
	handle, err := f.GetClient(ec, "", "queue")
	if err != nil {
		return nil, err
	}
	dispatcher, ok := handle.Transport().(QueueDispatcher)
	if !ok {
		return nil, capabilityf("this fetcher's transport does not support queue()")
	}

	wire := make([]SerializedQueueMessage, len(messages))
	g, gctx := errgroup.WithContext(ctx)
	for i, msg := range messages {
		i, msg := i, msg
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if msg.Body != nil && msg.SerializedBody != nil {
				return validationf("queue message %q has both body and serializedBody", msg.ID)
			}
			body := msg.SerializedBody
			if msg.Body != nil {
				var err error
				body, err = msgpack.Marshal(msg.Body)
				if err != nil {
					return &ValidationError{Msg: "failed to serialize queue message body", Err: err}
				}
			}
			wire[i] = SerializedQueueMessage{
				ID:        msg.ID,
				Timestamp: msg.Timestamp,
				Body:      body,
				Attempts:  msg.Attempts,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result, err := dispatcher.DispatchQueue(ctx, queueName, wire)
	if err != nil {
		return nil, &TransmissionError{Msg: "queue dispatch failed", Err: err}
	}
	return result, nil
}

// Scheduled dispatches a scheduled event to the remote destination.
func (f *Fetcher) Scheduled(ctx context.Context, ec *ExecContext, opts *ScheduledOptions) (*ScheduledResult, error) {
	if !Compat().EnableExtraHandlers {
		return nil, capabilityf("scheduled() requires the extra handlers gate")
	}
	handle, err := f.GetClient(ec, "", "scheduled")
	if err != nil {
		return nil, err
	}
	dispatcher, ok := handle.Transport().(ScheduledDispatcher)
	if !ok {
		return nil, capabilityf("this fetcher's transport does not support scheduled()")
	}
	result, err := dispatcher.DispatchScheduled(ctx, opts)
	if err != nil {
		return nil, &TransmissionError{Msg: "scheduled dispatch failed", Err: err}
	}
	return result, nil
}

// fixedVerbs are the method names that always shadow RPC methods.
var fixedVerbs = map[string]bool{
	"fetch":     true,
	"connect":   true,
	"get":       true,
	"put":       true,
	"delete":    true,
	"queue":     true,
	"scheduled": true,
}

// RPCMethod is a callable bound to a named method on the fetcher's remote
// destination.
type RPCMethod struct {
	fetcher *Fetcher
	name    string
}

func (m *RPCMethod) Name() string { return m.name }

// Call invokes the remote method.
func (m *RPCMethod) Call(ctx context.Context, ec *ExecContext, args ...any) (any, error) {
	handle, err := m.fetcher.GetClient(ec, "", "rpc:"+m.name)
	if err != nil {
		return nil, err
	}
	target, ok := handle.Transport().(RPCTarget)
	if !ok {
		return nil, capabilityf("this fetcher's transport does not support RPC")
	}
	result, err := target.CallMethod(ctx, m.name, args)
	if err != nil {
		return nil, &TransmissionError{Msg: "rpc call failed", Err: err}
	}
	return result, nil
}

// GetRPCMethod resolves a property name that does not match a fixed verb into
// a callable bound to this fetcher's destination, gated by the RPC
// compatibility flag. In-house fetchers bypass the gate.
func (f *Fetcher) GetRPCMethod(name string) (*RPCMethod, error) {
	if !f.inHouse && !Compat().EnableRPCMethods {
		return nil, capabilityf("RPC methods are disabled by configuration")
	}
	return f.getRPCMethodInternal(name)
}

// getRPCMethodInternal skips the compatibility gate for internal callers.
func (f *Fetcher) getRPCMethodInternal(name string) (*RPCMethod, error) {
	if name == "" {
		return nil, validationf("RPC method name must not be empty")
	}
	if fixedVerbs[name] {
		return nil, validationf("%q is shadowed by a fixed verb and cannot be an RPC method", name)
	}
	return &RPCMethod{fetcher: f, name: name}, nil
}
