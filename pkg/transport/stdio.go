package transport

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	wireerrors "github.com/mcpwire/mcpwire/pkg/errors"
	"github.com/mcpwire/mcpwire/pkg/logging"
	"github.com/mcpwire/mcpwire/pkg/protocol"
)

// StdioTransport exchanges newline-delimited JSON-RPC messages over a reader
// and writer pair, by default stdin and stdout. This is the standard pairing
// for peers connected via pipes.
type StdioTransport struct {
	*BaseTransport
	reader         io.Reader
	rawWriter      *bufio.Writer
	writeMu        sync.Mutex
	errorHandler   ErrorHandler
	handlerMu      sync.RWMutex
	requestTimeout time.Duration
	bufferSize     int
	done           chan struct{}
	stopOnce       sync.Once
}

// newStdioTransport creates a stdio transport from config.
func newStdioTransport(config TransportConfig) (*StdioTransport, error) {
	reader := config.StdioReader
	writer := config.StdioWriter
	if reader == nil {
		reader = os.Stdin
	}
	if writer == nil {
		writer = os.Stdout
	}

	bufferSize := config.BufferSize
	if bufferSize <= 0 {
		bufferSize = 1 << 20
	}

	return &StdioTransport{
		BaseTransport:  NewBaseTransport(loggerFromConfig(config)),
		reader:         reader,
		rawWriter:      bufio.NewWriter(writer),
		requestTimeout: config.RequestTimeout,
		bufferSize:     bufferSize,
		done:           make(chan struct{}),
	}, nil
}

// Initialize prepares the transport for use. For stdio this is a no-op, the
// streams already exist.
func (t *StdioTransport) Initialize(ctx context.Context) error {
	return nil
}

// Start reads messages from the input stream and dispatches them. It blocks
// until the context is done, Stop is called, or the stream ends.
func (t *StdioTransport) Start(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	scanner := bufio.NewScanner(t.reader)
	scanner.Buffer(make([]byte, 0, 64*1024), t.bufferSize)

	scannerDone := make(chan struct{})

	g.Go(func() error {
		defer close(scannerDone)

		for scanner.Scan() {
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-t.done:
				return nil
			default:
			}

			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			// Copy before the next Scan overwrites the buffer.
			data := make([]byte, len(line))
			copy(data, line)
			t.processMessage(gctx, data)
		}

		if err := scanner.Err(); err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
			return wireerrors.TransportError("stdio", "scan_input", err).
				WithContext(&wireerrors.Context{
					Component: "StdioTransport",
					Operation: "scan_input",
				})
		}
		return nil
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
			t.closeReader()
			return gctx.Err()
		case <-t.done:
			t.closeReader()
			return nil
		case <-scannerDone:
			return nil
		}
	})

	return g.Wait()
}

// closeReader unblocks a pending Scan by closing the underlying reader when
// it supports closing.
func (t *StdioTransport) closeReader() {
	if closer, ok := t.reader.(io.Closer); ok {
		_ = closer.Close()
	}
}

// Stop halts the transport, flushes buffered output and fails every pending
// request.
func (t *StdioTransport) Stop(ctx context.Context) error {
	var flushErr error

	t.stopOnce.Do(func() {
		close(t.done)

		t.writeMu.Lock()
		flushErr = t.rawWriter.Flush()
		t.writeMu.Unlock()

		t.handlerMu.Lock()
		t.errorHandler = nil
		t.handlerMu.Unlock()

		t.BaseTransport.Cleanup()
	})

	if flushErr != nil {
		return wireerrors.TransportError("stdio", "flush_on_stop", flushErr)
	}
	return nil
}

// SendMessage writes one encoded message followed by a newline and flushes.
func (t *StdioTransport) SendMessage(ctx context.Context, msg protocol.Message) error {
	data, err := protocol.EncodeMessage(msg)
	if err != nil {
		return err
	}
	return t.send(data)
}

func (t *StdioTransport) send(data []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	select {
	case <-t.done:
		return wireerrors.StreamClosed("stdio", nil)
	default:
	}

	if _, err := t.rawWriter.Write(data); err != nil {
		return wireerrors.TransportError("stdio", "write_data", err)
	}
	if err := t.rawWriter.WriteByte('\n'); err != nil {
		return wireerrors.TransportError("stdio", "write_newline", err)
	}
	if err := t.rawWriter.Flush(); err != nil {
		return wireerrors.TransportError("stdio", "flush_output", err)
	}
	return nil
}

// SendRequest sends a request and waits for its reply. A peer error reply
// surfaces as a WireError carrying the wire code.
func (t *StdioTransport) SendRequest(ctx context.Context, req *protocol.Request) (*protocol.Response, error) {
	call, err := t.trackRequest(req)
	if err != nil {
		return nil, err
	}

	if err := t.SendMessage(ctx, req); err != nil {
		t.releasePending(req.ID)
		return nil, err
	}

	return t.WaitForResponse(ctx, call, t.requestTimeout)
}

// SendNotification sends a one-way message.
func (t *StdioTransport) SendNotification(ctx context.Context, notif *protocol.Notification) error {
	return t.SendMessage(ctx, notif)
}

// CancelRequest releases the pending slot for id, failing its waiter with a
// cancellation error, and advises the peer with a notifications/cancelled
// message. The initialize request id is rejected as a cancellation target.
func (t *StdioTransport) CancelRequest(ctx context.Context, id protocol.RequestID, reason string) error {
	if err := t.cancelPending(id, reason); err != nil {
		return err
	}

	notif, err := protocol.NewNotification(protocol.CancelledParams{
		RequestID: id,
		Reason:    reason,
	})
	if err != nil {
		return err
	}
	return t.SendMessage(ctx, notif)
}

// SetErrorHandler sets the handler invoked for stream-level errors.
func (t *StdioTransport) SetErrorHandler(handler ErrorHandler) {
	t.handlerMu.Lock()
	defer t.handlerMu.Unlock()
	t.errorHandler = handler
}

// processMessage decodes one inbound line and dispatches by envelope variant.
// An invalid message that still carries a usable id is answered with an error
// reply; one without an id is reported as a stream-level error.
func (t *StdioTransport) processMessage(ctx context.Context, data []byte) {
	msg, err := protocol.DecodeMessage(data)
	if err != nil {
		t.recordDecodeFailure()
		var invalid *protocol.InvalidMessageError
		if errors.As(err, &invalid) && invalid.Recoverable() {
			if sendErr := t.SendMessage(ctx, invalid.Response()); sendErr != nil {
				t.handleError(sendErr)
			}
			return
		}
		t.handleError(err)
		return
	}
	t.recordReceived(msg.Type())

	switch m := msg.(type) {
	case *protocol.Request:
		// Handled concurrently so a later cancellation notification can
		// reach the handler's context.
		go func() {
			reply := t.HandleRequest(ctx, m)
			if reply == nil {
				return
			}
			if err := t.SendMessage(ctx, reply); err != nil {
				t.handleError(err)
			}
		}()
	case *protocol.Notification:
		if err := t.HandleNotification(ctx, m); err != nil {
			t.handleError(err)
		}
	case *protocol.Response:
		t.HandleResponse(m)
	case *protocol.ErrorResponse:
		t.HandleErrorResponse(m)
	}
}

func (t *StdioTransport) handleError(err error) {
	t.handlerMu.RLock()
	handler := t.errorHandler
	t.handlerMu.RUnlock()

	if handler != nil {
		handler(err)
		return
	}
	t.Logger().WithError(err).Warn("transport error", logging.String("transport", "stdio"))
}
