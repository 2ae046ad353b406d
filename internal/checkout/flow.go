package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-checkout/internal/bookings"
	"github.com/wolfman30/clinic-checkout/internal/payments"
	"github.com/wolfman30/clinic-checkout/internal/pending"
	"github.com/wolfman30/clinic-checkout/pkg/logging"
)

var flowTracer = otel.Tracer("clinic.internal.checkout")

type verifier interface {
	Verify(ctx context.Context, sessionID string) (payments.Verification, error)
}

type finalizer interface {
	Finalize(ctx context.Context, req bookings.FinalizeRequest) (string, error)
}

// TransitionEvent is published to observers after every accepted transition.
type TransitionEvent struct {
	Scope string
	From  State
	To    State
	Event Event
	At    time.Time
}

// Observer is notified of transitions. Calls are serialized per flow and
// must not call back into the flow.
type Observer interface {
	OnTransition(ctx context.Context, t TransitionEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, t TransitionEvent)

func (f ObserverFunc) OnTransition(ctx context.Context, t TransitionEvent) { f(ctx, t) }

// Flow drives one checkout through the state machine. All state changes go
// through Transition; the flow only adds the side effects between them.
type Flow struct {
	scope     string
	store     pending.Store
	verifier  verifier
	finalizer finalizer
	observers []Observer
	logger    *logging.Logger
	now       func() time.Time

	mu                sync.Mutex
	state             State
	explicitURL       string
	explicitSessionID string
	completionSeen    bool
	cancelVerify      context.CancelFunc
}

func NewFlow(scope string, store pending.Store, v verifier, f finalizer, logger *logging.Logger) *Flow {
	if v == nil || f == nil {
		panic("checkout: flow requires a verifier and a finalizer")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Flow{
		scope:     scope,
		store:     store,
		verifier:  v,
		finalizer: f,
		logger:    logger.With("scope", scope),
		now:       time.Now,
		state:     Init{},
	}
}

func (f *Flow) WithObservers(observers ...Observer) *Flow {
	for _, o := range observers {
		if o != nil {
			f.observers = append(f.observers, o)
		}
	}
	return f
}

func (f *Flow) Scope() string { return f.scope }

// State returns the current state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// CompletionSeen reports whether the return-URL signal has been received.
func (f *Flow) CompletionSeen() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completionSeen
}

// Run starts the flow and, if a session resolves, immediately verifies and
// finalizes it. It is the synchronous path used when the return signal is
// already known.
func (f *Flow) Run(ctx context.Context, explicitURL, explicitSessionID string) (State, error) {
	st, err := f.Start(ctx, explicitURL, explicitSessionID)
	if err != nil {
		return st, err
	}
	if _, ok := st.(AwaitingPayment); !ok {
		return st, nil
	}
	return f.Complete(ctx)
}

// Start resolves the checkout session. It ends in AwaitingPayment or Failed;
// the error is non-nil only when the flow was not in Init.
func (f *Flow) Start(ctx context.Context, explicitURL, explicitSessionID string) (State, error) {
	f.mu.Lock()
	_, err := f.applyLocked(ctx, Start{ExplicitURL: explicitURL, ExplicitSessionID: explicitSessionID})
	if err == nil {
		f.explicitURL = explicitURL
		f.explicitSessionID = explicitSessionID
	}
	f.mu.Unlock()
	if err != nil {
		return f.State(), err
	}
	return f.load(ctx, explicitURL, explicitSessionID), nil
}

func (f *Flow) load(ctx context.Context, explicitURL, explicitSessionID string) State {
	if err := ctx.Err(); err != nil {
		return f.dispatch(ctx, ResolutionFailed{Err: &SessionResolutionError{Reason: "cancelled before lookup", Err: err}})
	}

	res, err := ResolveSession(ctx, explicitURL, explicitSessionID, f.store)
	if err != nil {
		f.logger.Warn("checkout session could not be resolved", "error", err)
		return f.dispatch(ctx, ResolutionFailed{Err: err})
	}
	switch {
	case res.Mismatched():
		f.logger.Warn("checkout session differs from staged booking; booking not attached",
			"session_id", res.SessionID, "staged_session_id", res.StoredSessionID)
	case !res.FromStore:
		f.rememberSessionID(ctx, res.SessionID)
	}
	if res.Booking == nil {
		f.logger.Warn("no pending booking staged for checkout session", "session_id", res.SessionID)
	}
	return f.dispatch(ctx, SessionResolved{Session: res.session()})
}

// rememberSessionID keeps the store's session id in step with an explicit one
// so a later retry resolves the same session.
func (f *Flow) rememberSessionID(ctx context.Context, sessionID string) {
	if f.store == nil {
		return
	}
	if stored, err := pending.LoadSessionID(ctx, f.store); err == nil && stored == sessionID {
		return
	}
	if err := pending.SaveSessionID(ctx, f.store, sessionID); err != nil {
		f.logger.Warn("failed to persist checkout session id", "error", err, "session_id", sessionID)
	}
}

// stagedBookingFor re-reads the staged booking, unless the store now names a
// different checkout session.
func (f *Flow) stagedBookingFor(ctx context.Context, sessionID string) *pending.Booking {
	if stored, err := pending.LoadSessionID(ctx, f.store); err == nil && stored != sessionID {
		return nil
	}
	b, err := pending.LoadBooking(ctx, f.store)
	if err != nil {
		return nil
	}
	return &b
}

// Complete handles the return-URL signal: it verifies payment and finalizes
// the booking, blocking until the flow is terminal.
func (f *Flow) Complete(ctx context.Context) (State, error) {
	vctx, err := f.beginVerification(ctx)
	if err != nil {
		return f.State(), err
	}
	return f.verifyAndFinalize(ctx, vctx), nil
}

func (f *Flow) beginVerification(ctx context.Context) (context.Context, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, err := f.applyLocked(ctx, CheckoutCompleted{}); err != nil {
		return nil, err
	}
	vctx, cancel := context.WithCancel(ctx)
	f.completionSeen = true
	f.cancelVerify = cancel
	return vctx, nil
}

func (f *Flow) releaseVerify() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.cancelVerify != nil {
		f.cancelVerify()
		f.cancelVerify = nil
	}
}

func (f *Flow) verifyAndFinalize(ctx, vctx context.Context) State {
	defer f.releaseVerify()

	verifying, ok := f.State().(Verifying)
	if !ok {
		return f.State()
	}
	session := verifying.Session

	ctx, span := flowTracer.Start(ctx, "checkout.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.scope", f.scope),
		attribute.String("clinic.session_id", session.ID),
	)
	logger := f.logger.With("session_id", session.ID)

	v, err := f.verifier.Verify(vctx, session.ID)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled):
			// Cancel() already moved the flow; otherwise the caller went away.
			if _, ok := f.State().(Verifying); ok {
				return f.dispatch(ctx, CancelRequested{})
			}
			return f.State()
		case errors.Is(err, context.DeadlineExceeded):
			err = &VerificationTimeoutError{SessionID: session.ID, Attempts: v.Attempts, LastStatus: v.Status, Err: err}
		}
		span.RecordError(err)
		logger.Warn("payment verification failed", "error", err)
		return f.dispatch(ctx, VerificationFailed{Err: err})
	}
	if !v.Confirmed() {
		err := &VerificationTimeoutError{SessionID: session.ID, Attempts: v.Attempts, LastStatus: v.Status}
		logger.Warn("payment not confirmed", "attempts", v.Attempts, "last_status", v.Status)
		return f.dispatch(ctx, VerificationFailed{Err: err})
	}

	st := f.dispatch(ctx, PaymentConfirmed{Verification: v})
	if _, ok := st.(Finalizing); !ok {
		return st
	}

	booking := session.Booking
	if booking == nil && f.store != nil {
		booking = f.stagedBookingFor(ctx, session.ID)
	}
	if booking == nil {
		return f.dispatch(ctx, FinalizationFailed{Err: &bookings.FinalizationError{
			SessionID: session.ID,
			Stage:     "load_booking",
			Err:       ErrNoPendingBooking,
		}})
	}

	// Payment is confirmed; finishing the write matters more than honoring a late cancel.
	appointmentID, err := f.finalizer.Finalize(context.WithoutCancel(ctx), bookings.FinalizeRequest{
		Booking:         booking.WithComputedTotal(),
		SessionID:       session.ID,
		PaymentMethod:   v.PaymentMethod,
		PaymentIntentID: v.PaymentIntentID,
		Store:           f.store,
	})
	if err != nil {
		span.RecordError(err)
		logger.Error("booking finalization failed", "error", err)
		return f.dispatch(ctx, FinalizationFailed{Err: err})
	}
	span.SetAttributes(attribute.String("clinic.appointment_id", appointmentID))
	return f.dispatch(ctx, BookingFinalized{AppointmentID: appointmentID})
}

// Cancel moves an AwaitingPayment or Verifying flow to Cancelled and stops
// any in-flight verification.
func (f *Flow) Cancel(ctx context.Context) (State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, err := f.applyLocked(ctx, CancelRequested{})
	if err != nil {
		return st, err
	}
	if f.cancelVerify != nil {
		f.cancelVerify()
		f.cancelVerify = nil
	}
	return st, nil
}

// Retry re-resolves a Failed flow when its booking is still staged. It does
// not re-enter verification; the caller decides whether to Complete again.
func (f *Flow) Retry(ctx context.Context) (State, error) {
	if _, ok := f.State().(Failed); !ok {
		st := f.State()
		return st, fmt.Errorf("%w: retry in %s", ErrInvalidTransition, st.Name())
	}

	available := false
	if f.store != nil {
		_, err := pending.LoadBooking(ctx, f.store)
		switch {
		case err == nil:
			available = true
		case !errors.Is(err, pending.ErrNotFound):
			return f.State(), fmt.Errorf("checkout: check pending booking: %w", err)
		}
	}
	if !available {
		return f.State(), ErrNoPendingBooking
	}

	f.mu.Lock()
	st, err := f.applyLocked(ctx, RetryRequested{BookingAvailable: true})
	url := f.explicitURL
	f.mu.Unlock()
	if err != nil {
		return st, err
	}

	sessionID := st.(LoadingSession).ExplicitSessionID
	if sessionID == "" {
		sessionID = f.explicitSessionID
	}
	return f.load(ctx, url, sessionID), nil
}

// dispatch applies e, ignoring rejected transitions, and returns the resulting state.
func (f *Flow) dispatch(ctx context.Context, e Event) State {
	f.mu.Lock()
	defer f.mu.Unlock()
	st, err := f.applyLocked(ctx, e)
	if err != nil {
		f.logger.Debug("checkout event ignored", "error", err)
	}
	return st
}

func (f *Flow) applyLocked(ctx context.Context, e Event) (State, error) {
	from := f.state
	to, err := Transition(from, e)
	if err != nil {
		return from, err
	}
	f.state = to

	f.logger.Info("checkout transition", "from", from.Name(), "to", to.Name(), "session_id", SessionIDOf(to))
	t := TransitionEvent{Scope: f.scope, From: from, To: to, Event: e, At: f.now()}
	for _, o := range f.observers {
		o.OnTransition(ctx, t)
	}
	return to, nil
}
