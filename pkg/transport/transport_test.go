package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	wireerrors "github.com/mcpwire/mcpwire/pkg/errors"
	"github.com/mcpwire/mcpwire/pkg/observability"
	"github.com/mcpwire/mcpwire/pkg/protocol"
)

// counterValue sums a counter family across its label sets.
func counterValue(t *testing.T, m *observability.Metrics, name string) float64 {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	var total float64
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			total += metric.GetCounter().GetValue()
		}
	}
	return total
}

func newTestBase(t *testing.T) *BaseTransport {
	t.Helper()
	return NewBaseTransport(nil)
}

func pingRequest(id protocol.RequestID) *protocol.Request {
	req, err := protocol.NewRequest(id, protocol.PingParams{})
	if err != nil {
		panic(err)
	}
	return req
}

func TestPendingResolvesExactlyOnce(t *testing.T) {
	base := newTestBase(t)
	id := protocol.NewIntRequestID(1)

	call, err := base.trackRequest(pingRequest(id))
	require.NoError(t, err)

	resp, err := protocol.NewResponse(id, protocol.PingResult{})
	require.NoError(t, err)

	base.HandleResponse(resp)
	got, err := base.WaitForResponse(context.Background(), call, time.Second)
	require.NoError(t, err)
	assert.Equal(t, id, got.ID)

	// The slot is gone: a second answer for the same id is dropped silently.
	base.HandleResponse(resp)
	assert.Equal(t, 0, base.PendingCount())
}

func TestDuplicateInFlightIDRefused(t *testing.T) {
	base := newTestBase(t)
	id := protocol.NewIntRequestID(1)

	_, err := base.trackRequest(pingRequest(id))
	require.NoError(t, err)
	_, err = base.trackRequest(pingRequest(id))
	require.Error(t, err)
}

func TestTimeoutFreesSlotAndLateAnswerIsDropped(t *testing.T) {
	base := newTestBase(t)
	id := protocol.NewIntRequestID(2)

	call, err := base.trackRequest(pingRequest(id))
	require.NoError(t, err)

	_, err = base.WaitForResponse(context.Background(), call, 10*time.Millisecond)
	require.Error(t, err)
	assert.True(t, wireerrors.IsTimeout(err))
	assert.Equal(t, 0, base.PendingCount(), "timeout releases the slot")

	resp, err := protocol.NewResponse(id, protocol.PingResult{})
	require.NoError(t, err)
	base.HandleResponse(resp) // must not panic or block
}

func TestContextCancellationFreesSlot(t *testing.T) {
	base := newTestBase(t)
	id := protocol.NewIntRequestID(3)

	call, err := base.trackRequest(pingRequest(id))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = base.WaitForResponse(ctx, call, time.Second)
	require.Error(t, err)
	assert.True(t, wireerrors.IsCancelled(err))
	assert.Equal(t, 0, base.PendingCount())
}

func TestErrorResponseSurfacesWireCode(t *testing.T) {
	base := newTestBase(t)
	id := protocol.NewIntRequestID(4)

	call, err := base.trackRequest(pingRequest(id))
	require.NoError(t, err)

	errResp, err := protocol.NewErrorResponse(id, protocol.MethodNotFound, "no such method", nil)
	require.NoError(t, err)
	base.HandleErrorResponse(errResp)

	_, err = base.WaitForResponse(context.Background(), call, time.Second)
	require.Error(t, err)
	assert.True(t, wireerrors.IsCode(err, wireerrors.CodeMethodNotFound))
}

func TestCancelPendingResolvesWaiter(t *testing.T) {
	base := newTestBase(t)
	id := protocol.NewIntRequestID(5)

	call, err := base.trackRequest(pingRequest(id))
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	var waitErr error
	go func() {
		defer wg.Done()
		_, waitErr = base.WaitForResponse(context.Background(), call, time.Second)
	}()

	require.NoError(t, base.cancelPending(id, "tired of waiting"))
	wg.Wait()
	require.Error(t, waitErr)
	assert.True(t, wireerrors.IsCancelled(waitErr))

	// A late real answer finds no slot.
	resp, err := protocol.NewResponse(id, protocol.PingResult{})
	require.NoError(t, err)
	base.HandleResponse(resp)
}

func TestInitializeIDNotCancellable(t *testing.T) {
	base := newTestBase(t)
	id := protocol.NewIntRequestID(1)

	initReq, err := protocol.NewRequest(id, initializeParams{})
	require.NoError(t, err)
	_, err = base.trackRequest(initReq)
	require.NoError(t, err)

	err = base.cancelPending(id, "should not work")
	require.Error(t, err)
	assert.Equal(t, 1, base.PendingCount(), "the slot survives a rejected cancellation")

	// Other ids remain cancellable.
	other := protocol.NewIntRequestID(2)
	_, err = base.trackRequest(pingRequest(other))
	require.NoError(t, err)
	assert.NoError(t, base.cancelPending(other, "fine"))
}

// initializeParams is the minimal initialize payload used by these tests.
type initializeParams struct {
	protocol.BaseParams
}

func (initializeParams) RequestMethod() protocol.Method { return protocol.MethodInitialize }

func TestInboundInitializeCancellationIgnored(t *testing.T) {
	base := newTestBase(t)
	id := protocol.NewIntRequestID(1)

	started := make(chan struct{})
	release := make(chan struct{})
	interrupted := false
	base.RegisterRequestHandler(protocol.MethodInitialize, func(ctx context.Context, req *protocol.Request) (interface{}, error) {
		close(started)
		select {
		case <-ctx.Done():
			interrupted = true
			return nil, ctx.Err()
		case <-release:
			return protocol.BaseResult{}, nil
		}
	})

	initReq, err := protocol.NewRequest(id, initializeParams{})
	require.NoError(t, err)

	replies := make(chan protocol.Message, 1)
	go func() {
		replies <- base.HandleRequest(context.Background(), initReq)
	}()

	<-started
	cancelNotif, err := protocol.NewNotification(protocol.CancelledParams{RequestID: id, Reason: "too slow"})
	require.NoError(t, err)
	require.NoError(t, base.HandleNotification(context.Background(), cancelNotif))

	// Give a wrongly-registered cancel func time to fire before releasing.
	time.Sleep(50 * time.Millisecond)
	close(release)

	select {
	case reply := <-replies:
		_, ok := reply.(*protocol.Response)
		assert.True(t, ok, "initialize runs to completion despite the cancellation")
		assert.False(t, interrupted, "the initialize handler's context must not be cancelled")
	case <-time.After(time.Second):
		t.Fatal("initialize handler did not finish")
	}
}

func TestHandleRequestDispatchAndPanicRecovery(t *testing.T) {
	base := newTestBase(t)

	base.RegisterRequestHandler(protocol.MethodPing, func(ctx context.Context, req *protocol.Request) (interface{}, error) {
		return protocol.PingResult{}, nil
	})
	base.RegisterRequestHandler("explode", func(ctx context.Context, req *protocol.Request) (interface{}, error) {
		panic("boom")
	})

	reply := base.HandleRequest(context.Background(), pingRequest(protocol.NewIntRequestID(1)))
	resp, ok := reply.(*protocol.Response)
	require.True(t, ok)
	assert.Equal(t, protocol.NewIntRequestID(1), resp.ID)

	req := &protocol.Request{
		JSONRPC: protocol.JSONRPCVersion,
		ID:      protocol.NewIntRequestID(2),
		Method:  "explode",
	}
	reply = base.HandleRequest(context.Background(), req)
	errResp, ok := reply.(*protocol.ErrorResponse)
	require.True(t, ok, "a panicking handler produces an error reply")
	assert.Equal(t, protocol.InternalError, errResp.Error.Code)

	req.Method = "unregistered"
	reply = base.HandleRequest(context.Background(), req)
	errResp, ok = reply.(*protocol.ErrorResponse)
	require.True(t, ok)
	assert.Equal(t, protocol.MethodNotFound, errResp.Error.Code)
}

func TestInboundCancellationInterruptsHandler(t *testing.T) {
	base := newTestBase(t)
	id := protocol.NewIntRequestID(9)

	started := make(chan struct{})
	base.RegisterRequestHandler("slow", func(ctx context.Context, req *protocol.Request) (interface{}, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	replies := make(chan protocol.Message, 1)
	go func() {
		req := &protocol.Request{JSONRPC: protocol.JSONRPCVersion, ID: id, Method: "slow"}
		replies <- base.HandleRequest(context.Background(), req)
	}()

	<-started
	cancelNotif, err := protocol.NewNotification(protocol.CancelledParams{RequestID: id, Reason: "peer gave up"})
	require.NoError(t, err)
	require.NoError(t, base.HandleNotification(context.Background(), cancelNotif))

	select {
	case reply := <-replies:
		_, ok := reply.(*protocol.ErrorResponse)
		assert.True(t, ok, "the interrupted handler surfaces an error reply")
	case <-time.After(time.Second):
		t.Fatal("handler was not interrupted")
	}
}

func TestCancelledForUnknownIDIsNoOp(t *testing.T) {
	base := newTestBase(t)
	notif, err := protocol.NewNotification(protocol.CancelledParams{
		RequestID: protocol.NewIntRequestID(404),
	})
	require.NoError(t, err)
	assert.NoError(t, base.HandleNotification(context.Background(), notif))
}

func TestProgressMonotonicityEnforced(t *testing.T) {
	base := newTestBase(t)
	token := protocol.NewStringProgressToken("job")

	var seen []float64
	base.RegisterProgressHandler(token, func(params *protocol.ProgressParams) {
		seen = append(seen, params.Progress)
	})

	send := func(progress float64) error {
		notif, err := protocol.NewNotification(protocol.ProgressParams{
			ProgressToken: token,
			Progress:      progress,
		})
		require.NoError(t, err)
		return base.HandleNotification(context.Background(), notif)
	}

	require.NoError(t, send(1))
	require.NoError(t, send(2))
	require.NoError(t, send(2), "equal values are accepted")

	err := send(1)
	require.Error(t, err, "a decrease is a protocol violation")
	var seqErr *protocol.ProgressSequenceError
	assert.ErrorAs(t, err, &seqErr)

	assert.Equal(t, []float64{1, 2, 2}, seen)
}

func TestProgressUpdatesRecorded(t *testing.T) {
	base := newTestBase(t)
	metrics, err := observability.NewMetrics(observability.MetricsConfig{})
	require.NoError(t, err)
	base.SetMetrics(metrics)

	token := protocol.NewStringProgressToken("job")
	send := func(progress float64) error {
		notif, err := protocol.NewNotification(protocol.ProgressParams{
			ProgressToken: token,
			Progress:      progress,
		})
		require.NoError(t, err)
		return base.HandleNotification(context.Background(), notif)
	}

	require.NoError(t, send(1))
	require.NoError(t, send(2))
	require.Error(t, send(1), "a decrease is rejected and not counted")

	assert.Equal(t, float64(2), counterValue(t, metrics, "mcpwire_progress_updates_total"))
}

func TestProgressFloorIsPerToken(t *testing.T) {
	base := newTestBase(t)

	send := func(token protocol.ProgressToken, progress float64) error {
		notif, err := protocol.NewNotification(protocol.ProgressParams{
			ProgressToken: token,
			Progress:      progress,
		})
		require.NoError(t, err)
		return base.HandleNotification(context.Background(), notif)
	}

	a := protocol.NewStringProgressToken("a")
	b := protocol.NewIntProgressToken(1)
	require.NoError(t, send(a, 5))
	require.NoError(t, send(b, 1), "tokens track independent floors")
	require.Error(t, send(a, 4))
}

func TestUnregisteredNotificationIgnored(t *testing.T) {
	base := newTestBase(t)
	notif := &protocol.Notification{
		JSONRPC: protocol.JSONRPCVersion,
		Method:  "unknown/thing",
	}
	assert.NoError(t, base.HandleNotification(context.Background(), notif))
}

func TestCleanupFailsPending(t *testing.T) {
	base := newTestBase(t)
	call, err := base.trackRequest(pingRequest(protocol.NewIntRequestID(1)))
	require.NoError(t, err)

	base.Cleanup()

	_, err = base.WaitForResponse(context.Background(), call, time.Second)
	require.Error(t, err)
	assert.True(t, wireerrors.IsCode(err, wireerrors.CodeStreamClosed))
	assert.Equal(t, 0, base.PendingCount())
}
