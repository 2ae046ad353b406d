package payments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrSessionNotFound indicates the gateway does not (yet) know the session.
	ErrSessionNotFound = errors.New("payments: checkout session not found")
	// ErrEmptySession is returned when a gateway answers without a session or an error.
	ErrEmptySession = errors.New("payments: gateway returned no checkout session")
)

// GatewayError is a failed gateway round trip. Transient errors are worth
// another attempt; the rest (bad credentials, malformed requests) are not.
type GatewayError struct {
	Op         string
	StatusCode int
	Body       string
	Err        error
	transient  bool
}

func (e *GatewayError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("payments: %s status %d: %v", e.Op, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("payments: %s status %d: %s", e.Op, e.StatusCode, e.Body)
	case e.Err != nil:
		return fmt.Sprintf("payments: %s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("payments: %s failed", e.Op)
	}
}

func (e *GatewayError) Unwrap() error { return e.Err }

// Transient reports whether retrying the same call may succeed.
func (e *GatewayError) Transient() bool { return e.transient }

func transportError(op string, err error) *GatewayError {
	return &GatewayError{Op: op, Err: err, transient: true}
}

func statusError(op string, code int, body string) *GatewayError {
	ge := &GatewayError{Op: op, StatusCode: code, Body: body, transient: transientStatus(code)}
	if code == http.StatusNotFound {
		ge.Err = ErrSessionNotFound
	}
	return ge
}

// transientStatus treats 404 as transient: a freshly created session can lag
// behind the redirect on the read side.
func transientStatus(code int) bool {
	switch {
	case code >= 500:
		return true
	case code == http.StatusNotFound,
		code == http.StatusRequestTimeout,
		code == http.StatusConflict,
		code == http.StatusTooEarly,
		code == http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// IsTransient reports whether err is a per-attempt failure the verifier
// should absorb. Context errors are never transient; unclassified errors are.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var ge *GatewayError
	if errors.As(err, &ge) {
		return ge.Transient()
	}
	return true
}
