package protocol

import "fmt"

// ProgressParams is the payload of a notifications/progress notification.
// Progress values observed for one token are monotonically non-decreasing;
// equal consecutive values are allowed, a decrease is a protocol violation.
type ProgressParams struct {
	ProgressToken ProgressToken `json:"progressToken"`
	Progress      float64       `json:"progress"`
	Total         *float64      `json:"total,omitempty"`
}

// NotificationMethod implements NotificationPayload.
func (ProgressParams) NotificationMethod() Method { return MethodProgress }

// CancelledParams is the payload of a notifications/cancelled notification.
// It refers to a request previously issued in the same direction. Cancellation
// is advisory: the receiver should stop the associated work but may still
// deliver a late reply, which the canceller must treat as a no-op.
type CancelledParams struct {
	RequestID RequestID `json:"requestId"`
	Reason    string    `json:"reason,omitempty"`
}

// NotificationMethod implements NotificationPayload.
func (CancelledParams) NotificationMethod() Method { return MethodCancelled }

// InitializedParams is the (empty) payload of notifications/initialized.
// Unknown sibling keys are still preserved through BaseParams.
type InitializedParams struct {
	BaseParams
}

// NotificationMethod implements NotificationPayload.
func (InitializedParams) NotificationMethod() Method { return MethodInitialized }

// PingParams is the payload of the ping request, the smallest catalogue
// instance built on the substrate.
type PingParams struct {
	BaseParams
}

// RequestMethod implements RequestPayload.
func (PingParams) RequestMethod() Method { return MethodPing }

// PingResult is the expected result shape for ping.
type PingResult struct {
	BaseResult
}

// ProgressSequenceError reports a progress value that went backwards for a
// token.
type ProgressSequenceError struct {
	Token ProgressToken
	Last  float64
	Got   float64
}

func (e *ProgressSequenceError) Error() string {
	return fmt.Sprintf("progress for token %s decreased from %v to %v", e.Token, e.Last, e.Got)
}

// ValidateProgress checks a newly observed progress value against the last
// one seen for the same token. Equal values pass; a decrease fails.
func ValidateProgress(token ProgressToken, last, got float64) error {
	if got < last {
		return &ProgressSequenceError{Token: token, Last: last, Got: got}
	}
	return nil
}
