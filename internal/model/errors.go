package model

import (
	"errors"
	"fmt"
)

// Error codes attached to SourceError.
const (
	ErrCodeNetwork      = "NETWORK_ERROR"
	ErrCodeTimeout      = "TIMEOUT"
	ErrCodeHTTPStatus   = "HTTP_STATUS"
	ErrCodeCircuitOpen  = "CIRCUIT_OPEN"
	ErrCodeInvalidQuote = "INVALID_QUOTE"
	ErrCodeNoQuote      = "NO_QUOTE"
)

// SourceError is a failure talking to or interpreting one quote source.
// Transport-level failures are Temporary and feed the fallback chain and the
// circuit breaker; invalid-quote failures count toward the breaker too but
// are logged distinctly.
type SourceError struct {
	Source     string `json:"source"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"http_status,omitempty"`
	Temporary  bool   `json:"temporary"`
	Cause      error  `json:"-"`
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("source %s: %s (%s)", e.Source, e.Message, e.Code)
}

func (e *SourceError) Unwrap() error {
	return e.Cause
}

// IsTemporary reports whether err is a source failure that may clear on
// retry. Non-source errors are never temporary.
func IsTemporary(err error) bool {
	var se *SourceError
	return errors.As(err, &se) && se.Temporary
}

// NewTransportError wraps a network-level failure for a source.
func NewTransportError(source string, cause error) *SourceError {
	return &SourceError{
		Source:    source,
		Code:      ErrCodeNetwork,
		Message:   cause.Error(),
		Temporary: true,
		Cause:     cause,
	}
}

// NewInvalidQuoteError marks a structurally nonsensical quote from a source.
func NewInvalidQuoteError(source, detail string) *SourceError {
	return &SourceError{
		Source:  source,
		Code:    ErrCodeInvalidQuote,
		Message: detail,
	}
}
