package utils

import (
	"errors"
	"fmt"
	"strings"
)

// Kind tags an AppError so callers can branch without string matching.
type Kind string

const (
	KindUnknown    Kind = "unknown"
	KindValidation Kind = "validation"
	KindTransport  Kind = "transport"
	KindProtocol   Kind = "protocol"
	KindShape      Kind = "shape"
)

// AppError wraps an operation, human-facing message, and underlying error.
type AppError struct {
	Kind     Kind
	Op       string
	Msg      string
	Endpoint string
	// Status is the HTTP status line for protocol errors, if one was received.
	Status  string
	Timeout bool
	Err     error
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Msg)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Msg, e.Err)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError constructs an untagged AppError.
func NewAppError(op, msg string, err error) error {
	return &AppError{Kind: KindUnknown, Op: op, Msg: msg, Err: err}
}

// NewValidationError reports local input that never reached the network.
func NewValidationError(op, msg string) error {
	return &AppError{Kind: KindValidation, Op: op, Msg: msg}
}

// NewTransportError reports a request that produced no response.
func NewTransportError(op, endpoint string, timeout bool, err error) error {
	msg := "connection failed"
	if timeout {
		msg = "request timed out"
	}
	return &AppError{Kind: KindTransport, Op: op, Msg: msg, Endpoint: endpoint, Timeout: timeout, Err: err}
}

// NewProtocolError reports a response that was received but not successful.
// serverMsg is the server-supplied error text, if any.
func NewProtocolError(op, endpoint, status, serverMsg string) error {
	return &AppError{Kind: KindProtocol, Op: op, Msg: serverMsg, Endpoint: endpoint, Status: status}
}

// NewShapeError reports a successful response that could not be parsed.
func NewShapeError(op, endpoint, msg string, err error) error {
	return &AppError{Kind: KindShape, Op: op, Msg: msg, Endpoint: endpoint, Err: err}
}

// KindOf returns the kind tag of the first AppError in err's chain.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindUnknown
}

// IsTimeout reports whether err is a transport error caused by a timeout.
func IsTimeout(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Kind == KindTransport && appErr.Timeout
}

// UserMessage renders err as the text shown to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var appErr *AppError
	if !errors.As(err, &appErr) {
		return "Request failed: " + err.Error()
	}

	switch appErr.Kind {
	case KindValidation:
		return appErr.Msg
	case KindTransport:
		if appErr.Timeout {
			return fmt.Sprintf("Request to %s timed out", endpointOrUnknown(appErr.Endpoint))
		}
		return fmt.Sprintf("Cannot reach %s", endpointOrUnknown(appErr.Endpoint))
	case KindProtocol:
		if msg := strings.TrimSpace(appErr.Msg); msg != "" {
			return msg
		}
		if appErr.Status != "" {
			return appErr.Status
		}
		return fmt.Sprintf("Request to %s failed", endpointOrUnknown(appErr.Endpoint))
	case KindShape:
		return fmt.Sprintf("Unexpected response from %s", endpointOrUnknown(appErr.Endpoint))
	default:
		if appErr.Msg != "" {
			return appErr.Msg
		}
		return "Request failed"
	}
}

func endpointOrUnknown(endpoint string) string {
	if endpoint == "" {
		return "the configured endpoint"
	}
	return endpoint
}
