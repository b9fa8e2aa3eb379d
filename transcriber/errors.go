package transcriber

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"time"
)

// Kind classifies a transport failure. The classification decides
// whether retrying or falling back can possibly help.
type Kind int

const (
	KindNetwork Kind = iota
	KindTimeout
	KindServer
	KindInvalidResponse
	KindUnauthorized
	KindFileTooLarge
	KindEmptyText
	KindFileNotReady
)

func (k Kind) String() string {
	switch k {
	case KindNetwork:
		return "network"
	case KindTimeout:
		return "timeout"
	case KindServer:
		return "server"
	case KindInvalidResponse:
		return "invalid_response"
	case KindUnauthorized:
		return "unauthorized"
	case KindFileTooLarge:
		return "file_too_large"
	case KindEmptyText:
		return "empty_text"
	case KindFileNotReady:
		return "file_not_ready"
	}
	return "unknown"
}

type Error struct {
	Kind    Kind
	Status  int // HTTP status for KindServer, 0 otherwise
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Kind == KindServer:
		return fmt.Sprintf("transcription %s (%d): %s", e.Kind, e.Status, e.Message)
	case e.Err != nil && e.Message == "":
		return fmt.Sprintf("transcription %s: %v", e.Kind, e.Err)
	default:
		return fmt.Sprintf("transcription %s: %s", e.Kind, e.Message)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Recoverable reports whether a retry or transport fallback could
// change the outcome. Auth failures, oversized files and empty results
// will fail identically on every attempt.
func (e *Error) Recoverable() bool {
	switch e.Kind {
	case KindTimeout, KindNetwork, KindInvalidResponse:
		return true
	case KindServer:
		return e.Status == 408 || e.Status == 429 || (e.Status >= 500 && e.Status <= 599)
	default:
		return false
	}
}

func newError(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

func serverError(status int, body string) *Error {
	switch status {
	case 401, 403:
		return &Error{Kind: KindUnauthorized, Status: status, Message: body}
	case 413:
		return &Error{Kind: KindFileTooLarge, Status: status, Message: body}
	default:
		return &Error{Kind: KindServer, Status: status, Message: body}
	}
}

// classify wraps an arbitrary request error into the taxonomy.
func classify(err error) *Error {
	var te *Error
	if errors.As(err, &te) {
		return te
	}
	if errors.Is(err, context.DeadlineExceeded) || os.IsTimeout(err) {
		return &Error{Kind: KindTimeout, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: KindTimeout, Err: err}
	}
	return &Error{Kind: KindNetwork, Err: err}
}

// ShouldRetry reports whether err is worth another attempt on the same
// transport.
func ShouldRetry(err error) bool {
	var te *Error
	if errors.As(err, &te) {
		return te.Recoverable()
	}
	return false
}

// NextDelay doubles the backoff between attempts.
func NextDelay(current time.Duration) time.Duration {
	return current * 2
}
