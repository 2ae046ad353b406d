package checkout

import (
	"fmt"

	"github.com/wolfman30/clinic-checkout/internal/payments"
	"github.com/wolfman30/clinic-checkout/internal/pending"
)

// StateName is the wire name of a state.
type StateName string

const (
	StateInit            StateName = "init"
	StateLoadingSession  StateName = "loading_session"
	StateAwaitingPayment StateName = "awaiting_payment"
	StateVerifying       StateName = "verifying"
	StateFinalizing      StateName = "finalizing"
	StateSucceeded       StateName = "succeeded"
	StateFailed          StateName = "failed"
	StateCancelled       StateName = "cancelled"
)

// State is one of Init, LoadingSession, AwaitingPayment, Verifying,
// Finalizing, Succeeded, Failed or Cancelled.
type State interface {
	Name() StateName
	isState()
}

// Session is a resolved checkout session plus the staged booking, if any.
type Session struct {
	ID          string
	CheckoutURL string
	Booking     *pending.Booking
}

type Init struct{}

type LoadingSession struct {
	ExplicitURL       string
	ExplicitSessionID string
}

type AwaitingPayment struct{ Session Session }

type Verifying struct{ Session Session }

type Finalizing struct {
	Session      Session
	Verification payments.Verification
}

type Succeeded struct {
	SessionID     string
	AppointmentID string
}

type Failed struct {
	Message       string
	Kind          FailureKind
	SessionID     string
	AppointmentID string
	Booking       *pending.Booking
	Err           error
}

type Cancelled struct{ SessionID string }

func (Init) Name() StateName            { return StateInit }
func (LoadingSession) Name() StateName  { return StateLoadingSession }
func (AwaitingPayment) Name() StateName { return StateAwaitingPayment }
func (Verifying) Name() StateName       { return StateVerifying }
func (Finalizing) Name() StateName      { return StateFinalizing }
func (Succeeded) Name() StateName       { return StateSucceeded }
func (Failed) Name() StateName          { return StateFailed }
func (Cancelled) Name() StateName       { return StateCancelled }

func (Init) isState()            {}
func (LoadingSession) isState()  {}
func (AwaitingPayment) isState() {}
func (Verifying) isState()       {}
func (Finalizing) isState()      {}
func (Succeeded) isState()       {}
func (Failed) isState()          {}
func (Cancelled) isState()       {}

// IsTerminal reports whether s only changes on explicit user action.
func IsTerminal(s State) bool {
	switch s.(type) {
	case Succeeded, Failed, Cancelled:
		return true
	default:
		return false
	}
}

// SessionIDOf returns the checkout session id carried by s, if any.
func SessionIDOf(s State) string {
	switch st := s.(type) {
	case AwaitingPayment:
		return st.Session.ID
	case Verifying:
		return st.Session.ID
	case Finalizing:
		return st.Session.ID
	case Succeeded:
		return st.SessionID
	case Failed:
		return st.SessionID
	case Cancelled:
		return st.SessionID
	case LoadingSession:
		return st.ExplicitSessionID
	default:
		return ""
	}
}

// Event drives the state machine.
type Event interface{ isEvent() }

type Start struct {
	ExplicitURL       string
	ExplicitSessionID string
}

type SessionResolved struct{ Session Session }

type ResolutionFailed struct{ Err error }

type CheckoutCompleted struct{}

type CancelRequested struct{}

type PaymentConfirmed struct{ Verification payments.Verification }

type VerificationFailed struct{ Err error }

type BookingFinalized struct{ AppointmentID string }

type FinalizationFailed struct{ Err error }

// RetryRequested restarts a failed flow. BookingAvailable must reflect the store.
type RetryRequested struct{ BookingAvailable bool }

func (Start) isEvent()              {}
func (SessionResolved) isEvent()    {}
func (ResolutionFailed) isEvent()   {}
func (CheckoutCompleted) isEvent()  {}
func (CancelRequested) isEvent()    {}
func (PaymentConfirmed) isEvent()   {}
func (VerificationFailed) isEvent() {}
func (BookingFinalized) isEvent()   {}
func (FinalizationFailed) isEvent() {}
func (RetryRequested) isEvent()     {}

// Transition is the pure transition function. Any pair not listed below is
// rejected with ErrInvalidTransition and the caller keeps the old state.
func Transition(s State, e Event) (State, error) {
	switch st := s.(type) {
	case Init:
		if ev, ok := e.(Start); ok {
			return LoadingSession{ExplicitURL: ev.ExplicitURL, ExplicitSessionID: ev.ExplicitSessionID}, nil
		}
	case LoadingSession:
		switch ev := e.(type) {
		case SessionResolved:
			return AwaitingPayment{Session: ev.Session}, nil
		case ResolutionFailed:
			return failed(ev.Err, Session{ID: st.ExplicitSessionID}, ""), nil
		}
	case AwaitingPayment:
		switch e.(type) {
		case CheckoutCompleted:
			return Verifying{Session: st.Session}, nil
		case CancelRequested:
			return Cancelled{SessionID: st.Session.ID}, nil
		}
	case Verifying:
		switch ev := e.(type) {
		case PaymentConfirmed:
			return Finalizing{Session: st.Session, Verification: ev.Verification}, nil
		case VerificationFailed:
			return failed(ev.Err, st.Session, ""), nil
		case CancelRequested:
			return Cancelled{SessionID: st.Session.ID}, nil
		}
	case Finalizing:
		switch ev := e.(type) {
		case BookingFinalized:
			return Succeeded{SessionID: st.Session.ID, AppointmentID: ev.AppointmentID}, nil
		case FinalizationFailed:
			return failed(ev.Err, st.Session, partialAppointmentID(ev.Err)), nil
		}
	case Failed:
		if ev, ok := e.(RetryRequested); ok && ev.BookingAvailable {
			return LoadingSession{ExplicitSessionID: st.SessionID}, nil
		}
	}
	return s, fmt.Errorf("%w: %T in %s", ErrInvalidTransition, e, s.Name())
}

func failed(err error, session Session, appointmentID string) Failed {
	kind := classifyFailure(err)
	return Failed{
		Message:       failureMessage(kind),
		Kind:          kind,
		SessionID:     session.ID,
		AppointmentID: appointmentID,
		Booking:       session.Booking,
		Err:           err,
	}
}
