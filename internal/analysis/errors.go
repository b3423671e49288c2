package analysis

import (
	"errors"
	"fmt"
)

// ErrAnalysisUnavailable marks every failure to obtain an analysis.
var ErrAnalysisUnavailable = errors.New("analysis unavailable")

// UnavailableMessage is the user-facing text for ErrAnalysisUnavailable.
const UnavailableMessage = "Failed to analyze data. The AI model might be unavailable."

// ReasonCode is a short machine-readable failure reason
type ReasonCode string

const (
	ReasonUnknown   ReasonCode = "unknown"
	ReasonConfig    ReasonCode = "config"
	ReasonTransport ReasonCode = "transport"
	ReasonStatus    ReasonCode = "status"
	ReasonDecode    ReasonCode = "decode"
	ReasonEmpty     ReasonCode = "empty"
)

// ReasonedError wraps an error with a reason code.
type ReasonedError struct {
	Err    error
	Reason ReasonCode
}

func (e ReasonedError) Error() string {
	if e.Err == nil {
		return string(e.Reason)
	}
	return e.Err.Error()
}

func (e ReasonedError) Unwrap() error {
	return e.Err
}

// Reason extracts the reason code from err, if present.
func Reason(err error) ReasonCode {
	var re ReasonedError
	if errors.As(err, &re) {
		return re.Reason
	}
	return ReasonUnknown
}

// HasReason reports whether err carries reason
func HasReason(err error, reason ReasonCode) bool {
	return Reason(err) == reason
}

// unavailable builds an ErrAnalysisUnavailable carrying reason and cause.
func unavailable(reason ReasonCode, cause error) error {
	return ReasonedError{
		Err:    fmt.Errorf("%w: %w", ErrAnalysisUnavailable, cause),
		Reason: reason,
	}
}

// UserMessage turns an analysis error into text suitable for a chat turn.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrAnalysisUnavailable) {
		return UnavailableMessage
	}
	return err.Error()
}
