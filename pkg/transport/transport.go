// Package transport provides transport mechanisms for JSON-RPC 2.0 message
// exchange: a newline-delimited stdio transport and an SSE stream consumer,
// both built on the typed envelope in pkg/protocol.
package transport

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	wireerrors "github.com/mcpwire/mcpwire/pkg/errors"
	"github.com/mcpwire/mcpwire/pkg/logging"
	"github.com/mcpwire/mcpwire/pkg/observability"
	"github.com/mcpwire/mcpwire/pkg/protocol"
)

// Transport is the core interface for message exchange with a peer.
type Transport interface {
	// Initialize prepares the transport for use.
	Initialize(ctx context.Context) error

	// SendRequest sends a request and blocks until its reply arrives, the
	// context is done, or the request timeout elapses. A peer error reply is
	// returned as an error, not a Response.
	SendRequest(ctx context.Context, req *protocol.Request) (*protocol.Response, error)

	// SendNotification sends a one-way message.
	SendNotification(ctx context.Context, notif *protocol.Notification) error

	// CancelRequest advises the peer to stop work on an outstanding request
	// and releases the local pending slot. Cancelling the initialize request
	// is rejected.
	CancelRequest(ctx context.Context, id protocol.RequestID, reason string) error

	// Handler registration.
	RegisterRequestHandler(method protocol.Method, handler RequestHandler)
	RegisterNotificationHandler(method protocol.Method, handler NotificationHandler)
	RegisterProgressHandler(token protocol.ProgressToken, handler ProgressHandler)
	UnregisterProgressHandler(token protocol.ProgressToken)

	// Lifecycle management. Start blocks until the context is done or the
	// peer goes away.
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// RequestHandler handles an incoming request and returns its result, which
// may be any JSON-serializable value. A returned error becomes an error reply.
type RequestHandler func(ctx context.Context, req *protocol.Request) (interface{}, error)

// NotificationHandler handles an incoming notification.
type NotificationHandler func(ctx context.Context, notif *protocol.Notification) error

// ProgressHandler receives progress updates for a token it was registered
// under. Updates are delivered in arrival order with monotonicity already
// enforced.
type ProgressHandler func(params *protocol.ProgressParams)

// ErrorHandler handles stream-level transport errors.
type ErrorHandler func(err error)

// pendingOutcome is the single resolution delivered to a waiting issuer.
type pendingOutcome struct {
	resp *protocol.Response
	err  error
}

// pendingCall is one slot in the correlation table. The channel has capacity
// one so resolution never blocks the receive loop.
type pendingCall struct {
	id protocol.RequestID
	ch chan pendingOutcome
}

// BaseTransport implements the request/response correlation table and inbound
// dispatch shared by concrete transports. Each outstanding request occupies
// one slot keyed by its id; a slot resolves at most once, and answers arriving
// after the slot is released are discarded silently.
type BaseTransport struct {
	mu                   sync.RWMutex
	requestHandlers      map[protocol.Method]RequestHandler
	notificationHandlers map[protocol.Method]NotificationHandler
	progressHandlers     map[protocol.ProgressToken]ProgressHandler
	progressFloor        map[protocol.ProgressToken]float64
	pending              map[protocol.RequestID]*pendingCall
	inbound              map[protocol.RequestID]context.CancelFunc
	initializeID         protocol.RequestID
	nextID               atomic.Int64
	logger               logging.Logger
	metrics              *observability.Metrics
}

// NewBaseTransport creates the shared transport state. A nil logger defaults
// to a no-op logger.
func NewBaseTransport(logger logging.Logger) *BaseTransport {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &BaseTransport{
		requestHandlers:      make(map[protocol.Method]RequestHandler),
		notificationHandlers: make(map[protocol.Method]NotificationHandler),
		progressHandlers:     make(map[protocol.ProgressToken]ProgressHandler),
		progressFloor:        make(map[protocol.ProgressToken]float64),
		pending:              make(map[protocol.RequestID]*pendingCall),
		inbound:              make(map[protocol.RequestID]context.CancelFunc),
		logger:               logger,
	}
}

// Logger returns the transport's logger.
func (t *BaseTransport) Logger() logging.Logger { return t.logger }

// SetMetrics attaches receive-path metrics. Call before Start; a nil receiver
// set disables recording.
func (t *BaseTransport) SetMetrics(m *observability.Metrics) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.metrics = m
}

// recordReceived counts one decoded inbound message.
func (t *BaseTransport) recordReceived(messageType protocol.MessageType) {
	t.mu.RLock()
	m := t.metrics
	t.mu.RUnlock()
	if m != nil {
		m.RecordReceived(string(messageType))
	}
}

// recordDecodeFailure counts one undecodable inbound payload.
func (t *BaseTransport) recordDecodeFailure() {
	t.mu.RLock()
	m := t.metrics
	t.mu.RUnlock()
	if m != nil {
		m.RecordDecodeFailure()
	}
}

// NextRequestID returns a fresh integer request id, unique per transport.
func (t *BaseTransport) NextRequestID() protocol.RequestID {
	return protocol.NewIntRequestID(t.nextID.Add(1))
}

// RegisterRequestHandler registers a handler for incoming requests.
func (t *BaseTransport) RegisterRequestHandler(method protocol.Method, handler RequestHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.requestHandlers[method] = handler
}

// RegisterNotificationHandler registers a handler for incoming notifications.
func (t *BaseTransport) RegisterNotificationHandler(method protocol.Method, handler NotificationHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.notificationHandlers[method] = handler
}

// RegisterProgressHandler registers a handler for progress updates carrying
// the given token.
func (t *BaseTransport) RegisterProgressHandler(token protocol.ProgressToken, handler ProgressHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.progressHandlers[token] = handler
}

// UnregisterProgressHandler removes a progress handler and forgets the
// token's progress floor.
func (t *BaseTransport) UnregisterProgressHandler(token protocol.ProgressToken) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.progressHandlers, token)
	delete(t.progressFloor, token)
}

// trackRequest claims a correlation slot for an outgoing request. A second
// request reusing an in-flight id is refused.
func (t *BaseTransport) trackRequest(req *protocol.Request) (*pendingCall, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, exists := t.pending[req.ID]; exists {
		return nil, wireerrors.Newf(wireerrors.CodeInvalidRequest,
			wireerrors.CategoryInternal, wireerrors.SeverityError,
			"request id %s is already in flight", req.ID)
	}
	call := &pendingCall{id: req.ID, ch: make(chan pendingOutcome, 1)}
	t.pending[req.ID] = call
	if req.Method == protocol.MethodInitialize {
		t.initializeID = req.ID
	}
	return call, nil
}

// resolvePending delivers the single resolution for a slot and releases it.
// Returns false when the slot is gone, meaning the answer arrived late and
// is dropped.
func (t *BaseTransport) resolvePending(id protocol.RequestID, outcome pendingOutcome) bool {
	t.mu.Lock()
	call, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	t.mu.Unlock()
	if !ok {
		return false
	}
	call.ch <- outcome
	return true
}

// releasePending frees a slot without delivering anything. Used by the waiter
// itself on timeout or context cancellation.
func (t *BaseTransport) releasePending(id protocol.RequestID) {
	t.mu.Lock()
	delete(t.pending, id)
	t.mu.Unlock()
}

// PendingCount reports the number of outstanding requests.
func (t *BaseTransport) PendingCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.pending)
}

// WaitForResponse blocks until the slot resolves, the timeout elapses, or the
// context is done. Timeout and cancellation free the slot locally; a reply
// arriving afterwards is discarded by resolvePending.
func (t *BaseTransport) WaitForResponse(ctx context.Context, call *pendingCall, timeout time.Duration) (*protocol.Response, error) {
	var timer <-chan time.Time
	if timeout > 0 {
		tm := time.NewTimer(timeout)
		defer tm.Stop()
		timer = tm.C
	}

	select {
	case outcome := <-call.ch:
		return outcome.resp, outcome.err
	case <-timer:
		t.releasePending(call.id)
		return nil, wireerrors.RequestTimeout(call.id.String(), timeout)
	case <-ctx.Done():
		t.releasePending(call.id)
		return nil, wireerrors.RequestCancelled(call.id.String(), ctx.Err().Error())
	}
}

// HandleResponse resolves the pending slot for a successful reply.
func (t *BaseTransport) HandleResponse(resp *protocol.Response) {
	if !t.resolvePending(resp.ID, pendingOutcome{resp: resp}) {
		t.logger.Debug("discarding late response", logging.String("id", resp.ID.String()))
	}
}

// HandleErrorResponse resolves the pending slot for an error reply. The peer
// error surfaces to the issuer as a WireError.
func (t *BaseTransport) HandleErrorResponse(resp *protocol.ErrorResponse) {
	err := wireerrors.FromWireError(resp.Error)
	if !t.resolvePending(resp.ID, pendingOutcome{err: err}) {
		t.logger.Debug("discarding late error response", logging.String("id", resp.ID.String()))
	}
}

// cancelPending releases the slot for a cancelled request and resolves the
// waiter with a cancellation error. Cancelling the initialize request id is
// a protocol misuse and is rejected. Cancelling an id with no slot is a no-op
// so duplicate cancellations stay advisory.
func (t *BaseTransport) cancelPending(id protocol.RequestID, reason string) error {
	t.mu.Lock()
	if t.initializeID.IsValid() && id == t.initializeID {
		t.mu.Unlock()
		return wireerrors.Newf(wireerrors.CodeInvalidRequest,
			wireerrors.CategoryCancelled, wireerrors.SeverityWarning,
			"the initialize request (id %s) cannot be cancelled", id)
	}
	call, ok := t.pending[id]
	if ok {
		delete(t.pending, id)
	}
	t.mu.Unlock()

	if ok {
		call.ch <- pendingOutcome{err: wireerrors.RequestCancelled(id.String(), reason)}
	}
	return nil
}

// HandleRequest dispatches an incoming request to its registered handler and
// builds the reply. Handler panics become internal-error replies instead of
// crashing the receive loop. The request's context is tracked so a peer
// cancellation can interrupt the handler; the initialize request is exempt
// and runs to completion regardless of cancellation notifications.
func (t *BaseTransport) HandleRequest(ctx context.Context, req *protocol.Request) (msg protocol.Message) {
	defer func() {
		if r := recover(); r != nil {
			t.logger.Error("panic in request handler",
				logging.String("method", string(req.Method)),
				logging.Any("panic", r),
				logging.String("stack", string(debug.Stack())))
			msg = &protocol.ErrorResponse{
				JSONRPC: protocol.JSONRPCVersion,
				ID:      req.ID,
				Error: &protocol.Error{
					Code:    protocol.InternalError,
					Message: fmt.Sprintf("internal error processing %s", req.Method),
				},
			}
		}
	}()

	t.mu.RLock()
	handler, ok := t.requestHandlers[req.Method]
	t.mu.RUnlock()

	if !ok {
		return errorReply(req.ID, wireerrors.MethodNotFound(string(req.Method)))
	}

	handlerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	// The initialize request is never a legal cancellation target, so its
	// context is not exposed to notifications/cancelled.
	if req.Method != protocol.MethodInitialize {
		t.mu.Lock()
		t.inbound[req.ID] = cancel
		t.mu.Unlock()
		defer func() {
			t.mu.Lock()
			delete(t.inbound, req.ID)
			t.mu.Unlock()
		}()
	}

	result, err := handler(handlerCtx, req)
	if err != nil {
		return errorReply(req.ID, err)
	}

	resp, err := protocol.NewResponse(req.ID, result)
	if err != nil {
		return errorReply(req.ID, wireerrors.Wrap(err, wireerrors.CodeInternalError,
			"failed to encode result", wireerrors.CategoryInternal, wireerrors.SeverityError))
	}
	return resp
}

// errorReply converts a handler error into the error reply variant.
func errorReply(id protocol.RequestID, err error) *protocol.ErrorResponse {
	resp, convErr := wireerrors.ToErrorResponse(err, id)
	if convErr != nil {
		return &protocol.ErrorResponse{
			JSONRPC: protocol.JSONRPCVersion,
			ID:      id,
			Error:   &protocol.Error{Code: protocol.InternalError, Message: err.Error()},
		}
	}
	return resp
}

// HandleNotification dispatches an incoming notification. Progress and
// cancellation notifications are part of the correlation protocol and are
// intercepted; everything else goes to the registered handler. Notifications
// for unregistered methods are dropped, they are fire-and-forget.
func (t *BaseTransport) HandleNotification(ctx context.Context, notif *protocol.Notification) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing notification %s: %v", notif.Method, r)
		}
	}()

	switch notif.Method {
	case protocol.MethodProgress:
		return t.handleProgress(notif)
	case protocol.MethodCancelled:
		return t.handleCancelled(notif)
	}

	t.mu.RLock()
	handler, ok := t.notificationHandlers[notif.Method]
	t.mu.RUnlock()

	if !ok {
		t.logger.Debug("ignoring notification for unregistered method",
			logging.String("method", string(notif.Method)))
		return nil
	}
	return handler(ctx, notif)
}

// handleProgress enforces per-token monotonicity and forwards the update to
// the registered handler.
func (t *BaseTransport) handleProgress(notif *protocol.Notification) error {
	params, err := protocol.UnwrapNotification[protocol.ProgressParams](notif)
	if err != nil {
		return wireerrors.InvalidParams(string(protocol.MethodProgress), err)
	}

	t.mu.Lock()
	last, seen := t.progressFloor[params.ProgressToken]
	if seen {
		if vErr := protocol.ValidateProgress(params.ProgressToken, last, params.Progress); vErr != nil {
			t.mu.Unlock()
			return vErr
		}
	}
	t.progressFloor[params.ProgressToken] = params.Progress
	handler := t.progressHandlers[params.ProgressToken]
	m := t.metrics
	t.mu.Unlock()

	if m != nil {
		m.RecordProgress()
	}
	if handler != nil {
		handler(&params)
	} else {
		t.logger.Debug("progress update for unregistered token",
			logging.String("token", params.ProgressToken.String()))
	}
	return nil
}

// handleCancelled cancels the context of the named inbound request. An
// unknown id is a no-op: the work may already have finished, and cancellation
// is advisory.
func (t *BaseTransport) handleCancelled(notif *protocol.Notification) error {
	params, err := protocol.UnwrapNotification[protocol.CancelledParams](notif)
	if err != nil {
		return wireerrors.InvalidParams(string(protocol.MethodCancelled), err)
	}

	t.mu.RLock()
	cancel, ok := t.inbound[params.RequestID]
	t.mu.RUnlock()

	if ok {
		t.logger.Debug("cancelling inbound request",
			logging.String("id", params.RequestID.String()),
			logging.String("reason", params.Reason))
		cancel()
	}
	return nil
}

// Cleanup resolves every outstanding request with a stream-closed error and
// resets the correlation state.
func (t *BaseTransport) Cleanup() {
	t.mu.Lock()
	pending := t.pending
	t.pending = make(map[protocol.RequestID]*pendingCall)
	t.inbound = make(map[protocol.RequestID]context.CancelFunc)
	t.progressFloor = make(map[protocol.ProgressToken]float64)
	t.mu.Unlock()

	for id, call := range pending {
		call.ch <- pendingOutcome{err: wireerrors.StreamClosed("transport", nil)}
		t.logger.Debug("failing pending request on shutdown", logging.String("id", id.String()))
	}
}
