package apiclient

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
)

var (
	// ErrCanceled marks a request aborted by its caller, typically because a
	// newer filter superseded it. It is not a failure.
	ErrCanceled = errors.New("apiclient: request canceled")
	// ErrTimeout marks a request that exceeded the client timeout.
	ErrTimeout = errors.New("apiclient: request timeout")
)

// Error describes a failed backend call.
type Error struct {
	Method string
	URL    string
	Status int
	Body   string
	Err    error
}

func (e *Error) Error() string {
	if e.Status > 0 {
		if e.Body != "" {
			return fmt.Sprintf("%s %s: status %d: %s", e.Method, e.URL, e.Status, e.Body)
		}
		return fmt.Sprintf("%s %s: status %d", e.Method, e.URL, e.Status)
	}
	return fmt.Sprintf("%s %s: %v", e.Method, e.URL, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// IsCanceled reports whether err comes from an aborted request.
func IsCanceled(err error) bool {
	if errors.Is(err, ErrCanceled) {
		return true
	}
	return errors.Is(err, context.Canceled) && !errors.Is(err, ErrTimeout)
}

// IsTimeout reports whether err comes from an expired request.
func IsTimeout(err error) bool {
	if errors.Is(err, ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsUnsupported reports whether the backend lacks the requested capability:
// a missing route, a disallowed method, or Spring's "No static resource" reply.
func IsUnsupported(err error) bool {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.Status {
	case http.StatusNotFound, http.StatusMethodNotAllowed, http.StatusNotImplemented:
		return true
	}
	return strings.Contains(strings.ToLower(apiErr.Body), "no static resource")
}

func classify(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		return fmt.Errorf("%w: %w", ErrCanceled, err)
	}
	if IsTimeout(err) {
		return fmt.Errorf("%w: %w", ErrTimeout, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %w", ErrCanceled, err)
	}
	return err
}
