package providers

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Sentinel errors shared by all adapters.
var (
	ErrNoActiveSession      = errors.New("no active session")
	ErrUnsupportedOperation = errors.New("unsupported operation")
	ErrInvalidPayload       = errors.New("invalid payload")
	ErrChannelClosed        = errors.New("provider channel closed")
	ErrTimeout              = errors.New("provider timeout")
)

// ErrorKind classifies a failure for callers that report it.
type ErrorKind string

// Error kinds.
const (
	KindNone                 ErrorKind = ""
	KindNoActiveSession      ErrorKind = "NoActiveSession"
	KindUnsupportedOperation ErrorKind = "UnsupportedOperation"
	KindInvalidPayload       ErrorKind = "InvalidPayload"
	KindTransport            ErrorKind = "ProviderTransportError"
	KindChannelClosed        ErrorKind = "ProviderChannelClosed"
	KindUnknownProvider      ErrorKind = "UnknownProvider"
	KindTimeout              ErrorKind = "ProviderTimeout"
	KindInternal             ErrorKind = "Internal"
)

// TransportError is a network failure, non-2xx status or malformed stream
// from a provider.
type TransportError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *TransportError) Error() string {
	switch {
	case e.StatusCode != 0:
		return fmt.Sprintf("%s API error (HTTP %d): %s", e.Provider, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("%s transport error: %v", e.Provider, e.Err)
	default:
		return e.Provider + " transport error"
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// UnknownProviderError is returned when no factory is registered for a name.
type UnknownProviderError struct {
	Name string
}

func (e *UnknownProviderError) Error() string {
	return "unknown provider: " + e.Name
}

// KindOf maps err onto the error taxonomy.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindNone
	}

	var unknown *UnknownProviderError
	if errors.As(err, &unknown) {
		return KindUnknownProvider
	}
	if isTimeout(err) {
		return KindTimeout
	}

	switch {
	case errors.Is(err, ErrNoActiveSession):
		return KindNoActiveSession
	case errors.Is(err, ErrUnsupportedOperation):
		return KindUnsupportedOperation
	case errors.Is(err, ErrInvalidPayload):
		return KindInvalidPayload
	case errors.Is(err, ErrChannelClosed):
		return KindChannelClosed
	}

	var transport *TransportError
	if errors.As(err, &transport) {
		return KindTransport
	}
	return KindInternal
}

func isTimeout(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
