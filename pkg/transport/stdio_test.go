package transport

import (
	"bufio"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcpwire/mcpwire/pkg/observability"
	"github.com/mcpwire/mcpwire/pkg/protocol"
	"github.com/mcpwire/mcpwire/pkg/utils"
)

// stdioHarness wires a transport to in-memory pipes and plays the peer side.
type stdioHarness struct {
	t         *testing.T
	transport Transport
	toPeer    *bufio.Scanner // transport output, read by the peer
	fromPeer  *io.PipeWriter // peer input into the transport
	started   chan error
}

func newStdioHarness(t *testing.T) *stdioHarness {
	t.Helper()

	inReader, inWriter := io.Pipe()
	outReader, outWriter := io.Pipe()

	config := DefaultTransportConfig(TransportTypeStdio)
	config.StdioReader = inReader
	config.StdioWriter = outWriter
	config.RequestTimeout = 2 * time.Second
	config.Observability.EnableMetrics = false

	tr, err := NewTransport(config)
	require.NoError(t, err)

	h := &stdioHarness{
		t:         t,
		transport: tr,
		toPeer:    bufio.NewScanner(outReader),
		fromPeer:  inWriter,
		started:   make(chan error, 1),
	}
	go func() {
		h.started <- tr.Start(context.Background())
	}()
	t.Cleanup(func() {
		_ = inWriter.Close()
		select {
		case <-h.started:
		case <-time.After(2 * time.Second):
			t.Error("transport did not stop")
		}
		_ = tr.Stop(context.Background())
	})
	return h
}

// peerSend writes one raw line into the transport.
func (h *stdioHarness) peerSend(line string) {
	h.t.Helper()
	_, err := h.fromPeer.Write([]byte(line + "\n"))
	require.NoError(h.t, err)
}

// peerReceive reads the next line the transport wrote.
func (h *stdioHarness) peerReceive() []byte {
	h.t.Helper()
	require.True(h.t, h.toPeer.Scan(), "expected a line from the transport")
	line := make([]byte, len(h.toPeer.Bytes()))
	copy(line, h.toPeer.Bytes())
	return line
}

func TestStdioAnswersRequest(t *testing.T) {
	h := newStdioHarness(t)
	h.transport.RegisterRequestHandler(protocol.MethodPing, func(ctx context.Context, req *protocol.Request) (interface{}, error) {
		return protocol.PingResult{}, nil
	})

	h.peerSend(`{"jsonrpc":"2.0","id":1,"method":"ping","params":{}}`)

	msg, err := protocol.DecodeMessage(h.peerReceive())
	require.NoError(t, err)
	resp, ok := msg.(*protocol.Response)
	require.True(t, ok)
	assert.Equal(t, protocol.NewIntRequestID(1), resp.ID)
}

func TestStdioAnswersUnknownMethodWithError(t *testing.T) {
	h := newStdioHarness(t)

	h.peerSend(`{"jsonrpc":"2.0","id":2,"method":"no/such/method"}`)

	msg, err := protocol.DecodeMessage(h.peerReceive())
	require.NoError(t, err)
	errResp, ok := msg.(*protocol.ErrorResponse)
	require.True(t, ok)
	assert.Equal(t, protocol.MethodNotFound, errResp.Error.Code)
	assert.Equal(t, protocol.NewIntRequestID(2), errResp.ID)
}

func TestStdioReportsRecoverableInvalidMessage(t *testing.T) {
	h := newStdioHarness(t)

	// Ambiguous: method alongside result. The id is salvageable, so the
	// peer gets an error reply instead of a dropped line.
	h.peerSend(`{"jsonrpc":"2.0","id":5,"method":"ping","result":{}}`)

	msg, err := protocol.DecodeMessage(h.peerReceive())
	require.NoError(t, err)
	errResp, ok := msg.(*protocol.ErrorResponse)
	require.True(t, ok)
	assert.Equal(t, protocol.NewIntRequestID(5), errResp.ID)
	assert.Equal(t, protocol.InvalidRequest, errResp.Error.Code)
}

func TestStdioSendRequestRoundTrip(t *testing.T) {
	h := newStdioHarness(t)

	req, err := protocol.NewRequest(protocol.NewIntRequestID(7), protocol.PingParams{})
	require.NoError(t, err)

	type result struct {
		resp *protocol.Response
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := h.transport.SendRequest(context.Background(), req)
		done <- result{resp, err}
	}()

	// The peer sees the request and answers it.
	msg, err := protocol.DecodeMessage(h.peerReceive())
	require.NoError(t, err)
	outgoing, ok := msg.(*protocol.Request)
	require.True(t, ok)
	assert.Equal(t, protocol.MethodPing, outgoing.Method)

	h.peerSend(`{"jsonrpc":"2.0","id":7,"result":{}}`)

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, protocol.NewIntRequestID(7), r.resp.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("request did not resolve")
	}
}

func TestStdioSendRequestPeerError(t *testing.T) {
	h := newStdioHarness(t)

	req, err := protocol.NewRequest(protocol.NewIntRequestID(8), protocol.PingParams{})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := h.transport.SendRequest(context.Background(), req)
		done <- err
	}()

	h.peerReceive()
	h.peerSend(`{"jsonrpc":"2.0","id":8,"error":{"code":-32601,"message":"nope"}}`)

	select {
	case err := <-done:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("request did not resolve")
	}
}

func TestStdioNotificationDispatch(t *testing.T) {
	h := newStdioHarness(t)

	received := make(chan protocol.Method, 1)
	h.transport.RegisterNotificationHandler(protocol.MethodInitialized, func(ctx context.Context, notif *protocol.Notification) error {
		received <- notif.Method
		return nil
	})

	h.peerSend(`{"jsonrpc":"2.0","method":"notifications/initialized","params":{}}`)

	select {
	case method := <-received:
		assert.Equal(t, protocol.MethodInitialized, method)
	case <-time.After(2 * time.Second):
		t.Fatal("notification was not dispatched")
	}
}

func TestStdioCancelRequestNotifiesPeer(t *testing.T) {
	h := newStdioHarness(t)

	req, err := protocol.NewRequest(protocol.NewIntRequestID(11), protocol.PingParams{})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := h.transport.SendRequest(context.Background(), req)
		done <- err
	}()
	h.peerReceive() // the request itself

	require.NoError(t, h.transport.CancelRequest(context.Background(), req.ID, "test"))

	msg, err := protocol.DecodeMessage(h.peerReceive())
	require.NoError(t, err)
	notif, ok := msg.(*protocol.Notification)
	require.True(t, ok)
	assert.Equal(t, protocol.MethodCancelled, notif.Method)

	params, err := protocol.UnwrapNotification[protocol.CancelledParams](notif)
	require.NoError(t, err)
	assert.Equal(t, req.ID, params.RequestID)

	select {
	case err := <-done:
		require.Error(t, err, "the local waiter resolves with a cancellation error")
	case <-time.After(2 * time.Second):
		t.Fatal("waiter did not resolve")
	}
}

func TestStdioReceivePathMetrics(t *testing.T) {
	config := DefaultTransportConfig(TransportTypeStdio)
	config.StdioReader = strings.NewReader("")
	config.StdioWriter = io.Discard

	tr, err := newStdioTransport(config)
	require.NoError(t, err)

	metrics, err := observability.NewMetrics(observability.MetricsConfig{})
	require.NoError(t, err)
	tr.SetMetrics(metrics)

	ctx := context.Background()
	tr.processMessage(ctx, []byte(`this is not json`))
	tr.processMessage(ctx, []byte(`{"jsonrpc":"2.0","id":99,"result":{}}`))
	tr.processMessage(ctx, []byte(`{"jsonrpc":"2.0","method":"notifications/initialized","params":{}}`))

	assert.Equal(t, float64(1), counterValue(t, metrics, "mcpwire_decode_failures_total"))
	assert.Equal(t, float64(2), counterValue(t, metrics, "mcpwire_messages_received_total"))
}

func TestStdioLifecycleLeaksNoGoroutines(t *testing.T) {
	detector := utils.NewGoroutineLeakDetector(t).SetAllowedGrowth(1)
	detector.Start()

	inReader, inWriter := io.Pipe()
	_, outWriter := io.Pipe()

	config := DefaultTransportConfig(TransportTypeStdio)
	config.StdioReader = inReader
	config.StdioWriter = outWriter
	config.Observability.EnableMetrics = false

	tr, err := NewTransport(config)
	require.NoError(t, err)

	started := make(chan error, 1)
	go func() {
		started <- tr.Start(context.Background())
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, inWriter.Close())

	select {
	case err := <-started:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("transport did not stop after EOF")
	}
	require.NoError(t, tr.Stop(context.Background()))

	detector.Check()
}
