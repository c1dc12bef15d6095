package core

import (
	"fmt"
	"net/url"
)

// Error represents a canonical platform or session error.
type Error struct {
	Type    ErrorType `json:"type"`
	Message string    `json:"message"`
	Param   string    `json:"param,omitempty"`
	Code    string    `json:"code,omitempty"`
	// LogID is the server-side trace identifier attached to platform errors.
	LogID string `json:"log_id,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (code: %s)", e.Type, e.Message, e.Code)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// ErrorType categorizes errors.
type ErrorType string

const (
	ErrInvalidRequest ErrorType = "invalid_request_error"
	ErrAuthentication ErrorType = "authentication_error"
	ErrNotFound       ErrorType = "not_found_error"
	ErrRateLimit      ErrorType = "rate_limit_error"
	ErrAPI            ErrorType = "api_error"
	ErrConnect        ErrorType = "connect_error"
	ErrRecording      ErrorType = "recording_error"
	ErrSession        ErrorType = "session_error"
)

// NewInvalidRequestError creates an invalid request error.
func NewInvalidRequestError(message string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message}
}

// NewInvalidRequestErrorWithParam creates an invalid request error with a parameter.
func NewInvalidRequestErrorWithParam(message, param string) *Error {
	return &Error{Type: ErrInvalidRequest, Message: message, Param: param}
}

// NewAuthenticationError creates an authentication error.
func NewAuthenticationError(message string) *Error {
	return &Error{Type: ErrAuthentication, Message: message}
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(message string) *Error {
	return &Error{Type: ErrNotFound, Message: message}
}

// NewRateLimitError creates a rate limit error.
func NewRateLimitError(message string) *Error {
	return &Error{Type: ErrRateLimit, Message: message}
}

// NewAPIError creates a generic API error.
func NewAPIError(message string) *Error {
	return &Error{Type: ErrAPI, Message: message}
}

// NewConnectError creates an error for a failed realtime connect attempt.
// Connect failures are non-fatal: the session returns to idle without retry.
func NewConnectError(message string) *Error {
	return &Error{Type: ErrConnect, Message: message}
}

// NewRecordingError creates an error for a failed record start/stop request.
// Recording failures reset the recording sub-state but keep the call alive.
func NewRecordingError(message string) *Error {
	return &Error{Type: ErrRecording, Message: message}
}

// NewSessionError creates an error for a server-reported session fault.
// Session errors are fatal to the current call.
func NewSessionError(message, code, logID string) *Error {
	return &Error{Type: ErrSession, Message: message, Code: code, LogID: logID}
}

// IsFatal reports whether the error must tear down the active call session.
func (e *Error) IsFatal() bool {
	return e.Type == ErrSession
}

// IsRetryable returns true if the error is retryable.
func (e *Error) IsRetryable() bool {
	switch e.Type {
	case ErrRateLimit, ErrAPI:
		return true
	default:
		return false
	}
}

// TransportError represents HTTP/WebSocket transport-level failures (DNS,
// timeouts, connection reset, TLS handshake, etc.) while talking to the
// platform.
//
// Use errors.As(err, &TransportError{}) to distinguish transport failures
// from canonical platform errors (*core.Error).
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	switch {
	case e == nil:
		return ""
	case e.Op != "" && e.URL != "":
		return fmt.Sprintf("transport error during %s %s: %v", e.Op, redactURLUserInfo(e.URL), e.Err)
	case e.Op != "":
		return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("transport error: %v", e.Err)
	}
}

func (e *TransportError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func redactURLUserInfo(raw string) string {
	if raw == "" {
		return raw
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed == nil {
		return raw
	}
	parsed.User = nil
	return parsed.String()
}
