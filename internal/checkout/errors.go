package checkout

import (
	"errors"
	"fmt"

	"github.com/wolfman30/clinic-checkout/internal/bookings"
	"github.com/wolfman30/clinic-checkout/internal/payments"
)

var (
	// ErrInvalidTransition is returned when an event is not allowed in the current state.
	ErrInvalidTransition = errors.New("checkout: invalid state transition")
	// ErrNoPendingBooking is returned when a retry finds nothing staged.
	ErrNoPendingBooking = errors.New("checkout: no pending booking to retry")
	// ErrUnknownFlow is returned for operations on a scope with no flow.
	ErrUnknownFlow = errors.New("checkout: no checkout flow for scope")
)

// SessionResolutionError means no checkout session could be found for the flow.
type SessionResolutionError struct {
	Reason string
	Err    error
}

func (e *SessionResolutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("checkout: resolve session: %s: %v", e.Reason, e.Err)
	}
	return "checkout: resolve session: " + e.Reason
}

func (e *SessionResolutionError) Unwrap() error { return e.Err }

// VerificationTimeoutError means the gateway never confirmed payment within the schedule.
type VerificationTimeoutError struct {
	SessionID  string
	Attempts   int
	LastStatus payments.Status
	Err        error
}

func (e *VerificationTimeoutError) Error() string {
	msg := fmt.Sprintf("checkout: payment for session %s not confirmed after %d checks (last status %q)", e.SessionID, e.Attempts, e.LastStatus)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *VerificationTimeoutError) Unwrap() error { return e.Err }

// FailureKind classifies why a flow ended in Failed.
type FailureKind string

const (
	FailureSessionResolution   FailureKind = "session_resolution"
	FailureVerificationTimeout FailureKind = "verification_timeout"
	FailureGateway             FailureKind = "gateway"
	FailureFinalization        FailureKind = "finalization"
	FailurePartial             FailureKind = "partial_finalization"
	FailureUnknown             FailureKind = "unknown"
)

func classifyFailure(err error) FailureKind {
	var resolution *SessionResolutionError
	var timeout *VerificationTimeoutError
	var gateway *payments.GatewayError
	var finalization *bookings.FinalizationError
	switch {
	case errors.As(err, &resolution):
		return FailureSessionResolution
	case errors.As(err, &timeout):
		return FailureVerificationTimeout
	case errors.As(err, &finalization):
		if finalization.Partial {
			return FailurePartial
		}
		return FailureFinalization
	case errors.As(err, &gateway):
		return FailureGateway
	default:
		return FailureUnknown
	}
}

func failureMessage(kind FailureKind) string {
	switch kind {
	case FailureSessionResolution:
		return "We could not find your checkout session. Please start the booking again."
	case FailureVerificationTimeout:
		return "We could not confirm your payment yet. If you were charged, your booking details are saved and you can retry."
	case FailureGateway:
		return "The payment provider could not be reached to confirm your payment. Please retry shortly."
	case FailurePartial:
		return "Your appointment was created but the payment record could not be saved. Our support team has been notified."
	case FailureFinalization:
		return "Your payment was received but we could not save your appointment. Our support team has been notified."
	default:
		return "Something went wrong while completing your booking."
	}
}

func partialAppointmentID(err error) string {
	var finalization *bookings.FinalizationError
	if errors.As(err, &finalization) {
		return finalization.AppointmentID
	}
	return ""
}
