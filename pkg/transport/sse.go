package transport

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	wireerrors "github.com/mcpwire/mcpwire/pkg/errors"
	"github.com/mcpwire/mcpwire/pkg/logging"
	"github.com/mcpwire/mcpwire/pkg/observability"
	"github.com/mcpwire/mcpwire/pkg/protocol"
)

// SSELineType discriminates the line variants of a server-sent event stream.
type SSELineType int

const (
	// SSELineEmpty is a blank line, terminating the current event.
	SSELineEmpty SSELineType = iota
	// SSELineEvent names the event being assembled.
	SSELineEvent
	// SSELineData carries one line of event payload.
	SSELineData
	// SSELineID sets the stream's last-event-id.
	SSELineID
	// SSELineRetry sets the reconnection interval in milliseconds.
	SSELineRetry
	// SSELineComment is a line starting with a colon, ignored by consumers.
	SSELineComment
	// SSELineUnknown is any line this framer does not recognize, including a
	// retry line whose value is not numeric. It round-trips verbatim.
	SSELineUnknown
)

// SSELine is one framed line of an SSE stream.
type SSELine struct {
	Type SSELineType
	// Value holds the event name, data payload, id, comment text, or the
	// verbatim line for the unknown variant.
	Value string
	// RetryMillis is set for the retry variant only.
	RetryMillis int64
}

// trimFieldValue strips surrounding whitespace from the value portion, so
// "data:\thello " and "data: hello" carry the same payload.
func trimFieldValue(v string) string {
	return strings.TrimSpace(v)
}

// ParseSSELine frames one line of an SSE stream. It is pure: no state, no
// side effects. Unrecognized field names and malformed retry values map to
// the unknown variant carrying the verbatim line.
func ParseSSELine(line string) SSELine {
	if line == "" {
		return SSELine{Type: SSELineEmpty}
	}
	if strings.HasPrefix(line, ":") {
		return SSELine{Type: SSELineComment, Value: trimFieldValue(line[1:])}
	}

	field, value, found := strings.Cut(line, ":")
	if !found {
		return SSELine{Type: SSELineUnknown, Value: line}
	}
	value = trimFieldValue(value)

	switch field {
	case "event":
		return SSELine{Type: SSELineEvent, Value: value}
	case "data":
		return SSELine{Type: SSELineData, Value: value}
	case "id":
		return SSELine{Type: SSELineID, Value: value}
	case "retry":
		millis, err := strconv.ParseInt(value, 10, 64)
		if err != nil || millis < 0 {
			return SSELine{Type: SSELineUnknown, Value: line}
		}
		return SSELine{Type: SSELineRetry, RetryMillis: millis}
	default:
		return SSELine{Type: SSELineUnknown, Value: line}
	}
}

// String renders the line back to its wire form. ParseSSELine(l.String())
// reproduces l for every variant, given that parsed values never carry
// surrounding whitespace; unknown renders verbatim.
func (l SSELine) String() string {
	switch l.Type {
	case SSELineEmpty:
		return ""
	case SSELineEvent:
		return "event: " + l.Value
	case SSELineData:
		return "data: " + l.Value
	case SSELineID:
		return "id: " + l.Value
	case SSELineRetry:
		return "retry: " + strconv.FormatInt(l.RetryMillis, 10)
	case SSELineComment:
		return ": " + l.Value
	default:
		return l.Value
	}
}

// SSEEvent is one assembled server-sent event.
type SSEEvent struct {
	// Name of the event; "message" when the stream did not name it.
	Name string
	// Data is the event payload. Consecutive data lines are joined with a
	// newline.
	Data string
	// ID is the last-event-id in effect when the event was dispatched.
	ID string
	// Retry is the reconnection interval announced so far, zero if none.
	Retry time.Duration
}

// EventAssembler accumulates framed lines into events. An event is emitted
// at the empty line terminating it, and only when at least one data line was
// seen; comment and unknown lines never contribute. The last-event-id
// persists across events per the SSE grammar.
type EventAssembler struct {
	name   string
	data   []string
	lastID string
	retry  time.Duration
}

// NewEventAssembler creates an empty assembler.
func NewEventAssembler() *EventAssembler {
	return &EventAssembler{}
}

// Feed consumes one framed line and returns the completed event, if any.
func (a *EventAssembler) Feed(line SSELine) (*SSEEvent, bool) {
	switch line.Type {
	case SSELineEvent:
		a.name = line.Value
	case SSELineData:
		a.data = append(a.data, line.Value)
	case SSELineID:
		a.lastID = line.Value
	case SSELineRetry:
		a.retry = time.Duration(line.RetryMillis) * time.Millisecond
	case SSELineEmpty:
		if len(a.data) == 0 {
			a.name = ""
			return nil, false
		}
		name := a.name
		if name == "" {
			name = "message"
		}
		event := &SSEEvent{
			Name:  name,
			Data:  strings.Join(a.data, "\n"),
			ID:    a.lastID,
			Retry: a.retry,
		}
		a.name = ""
		a.data = nil
		return event, true
	}
	return nil, false
}

// LastEventID returns the most recent id line seen.
func (a *EventAssembler) LastEventID() string { return a.lastID }

// RetryInterval returns the most recent retry interval announced, zero if
// none.
func (a *EventAssembler) RetryInterval() time.Duration { return a.retry }

// SSEStream consumes a server-sent event stream and decodes each event's
// payload as a JSON-RPC message. It is receive-only: replies travel over a
// separate channel in this pairing.
type SSEStream struct {
	body     io.ReadCloser
	logger   logging.Logger
	metrics  *observability.Metrics
	messages chan protocol.Message

	mu            sync.RWMutex
	lastEventID   string
	retryInterval time.Duration

	closeOnce sync.Once
}

// NewSSEStream wraps a response body carrying text/event-stream data. A nil
// logger defaults to a no-op logger.
func NewSSEStream(body io.ReadCloser, logger logging.Logger) *SSEStream {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &SSEStream{
		body:     body,
		logger:   logger,
		messages: make(chan protocol.Message, 16),
	}
}

// SetMetrics attaches receive-path metrics. Call before Run.
func (s *SSEStream) SetMetrics(m *observability.Metrics) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = m
}

// Messages returns the channel of decoded messages. It is closed when the
// stream ends.
func (s *SSEStream) Messages() <-chan protocol.Message {
	return s.messages
}

// LastEventID returns the id of the last dispatched event, for resumption.
func (s *SSEStream) LastEventID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastEventID
}

// RetryInterval returns the server's announced reconnection interval, zero
// if the server never set one.
func (s *SSEStream) RetryInterval() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.retryInterval
}

// Close terminates the stream.
func (s *SSEStream) Close() error {
	var err error
	s.closeOnce.Do(func() {
		err = s.body.Close()
	})
	return err
}

// Run reads the stream until it ends or the context is done. Context
// cancellation closes the body, which unblocks the pending read promptly.
func (s *SSEStream) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	readerDone := make(chan struct{})

	g.Go(func() error {
		defer close(readerDone)
		defer close(s.messages)

		scanner := bufio.NewScanner(s.body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
		assembler := NewEventAssembler()

		for scanner.Scan() {
			event, complete := assembler.Feed(ParseSSELine(scanner.Text()))
			if !complete {
				continue
			}

			s.mu.Lock()
			s.lastEventID = event.ID
			s.retryInterval = event.Retry
			s.mu.Unlock()

			s.mu.RLock()
			m := s.metrics
			s.mu.RUnlock()

			msg, err := protocol.DecodeMessage([]byte(event.Data))
			if err != nil {
				if m != nil {
					m.RecordDecodeFailure()
				}
				s.logger.WithError(err).Warn("dropping undecodable event",
					logging.String("event", event.Name),
					logging.String("id", event.ID))
				continue
			}
			if m != nil {
				m.RecordReceived(string(msg.Type()))
			}

			select {
			case s.messages <- msg:
			case <-gctx.Done():
				return gctx.Err()
			}
		}

		if err := scanner.Err(); err != nil {
			if gctx.Err() != nil {
				// The body was closed under the reader on cancellation.
				return gctx.Err()
			}
			return wireerrors.StreamClosed("sse", err)
		}
		return nil
	})

	g.Go(func() error {
		select {
		case <-gctx.Done():
			_ = s.Close()
			return gctx.Err()
		case <-readerDone:
			return nil
		}
	})

	return g.Wait()
}

// ConnectSSE opens a server-sent event stream at the configured endpoint.
// lastEventID, when non-empty, asks the server to resume after that event.
func ConnectSSE(ctx context.Context, config TransportConfig, lastEventID string) (*SSEStream, error) {
	if config.Endpoint == "" {
		return nil, fmt.Errorf("endpoint is required for the SSE transport")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, config.Endpoint, nil)
	if err != nil {
		return nil, wireerrors.TransportError("sse", "build_request", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")
	if lastEventID != "" {
		req.Header.Set("Last-Event-ID", lastEventID)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, wireerrors.TransportError("sse", "connect", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, wireerrors.TransportError("sse", "connect",
			fmt.Errorf("unexpected status %d from %s", resp.StatusCode, config.Endpoint))
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		_ = resp.Body.Close()
		return nil, wireerrors.TransportError("sse", "connect",
			fmt.Errorf("unexpected content type %q, want text/event-stream", ct))
	}

	stream := NewSSEStream(resp.Body, loggerFromConfig(config))
	if config.Observability.EnableMetrics {
		metrics, err := observability.NewMetrics(observability.MetricsConfig{
			Namespace: config.Observability.MetricsPrefix,
		})
		if err != nil {
			_ = resp.Body.Close()
			return nil, err
		}
		stream.SetMetrics(metrics)
	}
	return stream, nil
}
