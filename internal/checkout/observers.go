package checkout

import (
	"context"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-checkout/internal/events"
	"github.com/wolfman30/clinic-checkout/internal/observability/metrics"
	"github.com/wolfman30/clinic-checkout/pkg/logging"
)

// MetricsObserver counts transitions and terminal outcomes.
func MetricsObserver(m *metrics.CheckoutMetrics) Observer {
	return ObserverFunc(func(_ context.Context, t TransitionEvent) {
		m.ObserveTransition(string(t.From.Name()), string(t.To.Name()))
		if !IsTerminal(t.To) {
			return
		}
		reason := ""
		if failed, ok := t.To.(Failed); ok {
			reason = string(failed.Kind)
		}
		m.ObserveTerminal(string(t.To.Name()), reason)
	})
}

type outboxWriter interface {
	Insert(ctx context.Context, scope string, eventType string, payload any) (uuid.UUID, error)
}

// OutboxObserver writes every terminal state to the outbox.
type OutboxObserver struct {
	outbox outboxWriter
	logger *logging.Logger
}

func NewOutboxObserver(outbox outboxWriter, logger *logging.Logger) *OutboxObserver {
	if outbox == nil {
		panic("checkout: outbox required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &OutboxObserver{outbox: outbox, logger: logger}
}

func (o *OutboxObserver) OnTransition(ctx context.Context, t TransitionEvent) {
	eventType, payload := terminalEvent(t)
	if payload == nil {
		return
	}
	// The terminal record outlives the request that produced it.
	if _, err := o.outbox.Insert(context.WithoutCancel(ctx), t.Scope, eventType, payload); err != nil {
		o.logger.Error("checkout: failed to record terminal event", "error", err, "type", eventType, "scope", t.Scope)
	}
}

func terminalEvent(t TransitionEvent) (string, any) {
	id := uuid.NewString()
	switch st := t.To.(type) {
	case Succeeded:
		evt := events.BookingConfirmedV1{
			EventID:       id,
			Scope:         t.Scope,
			SessionID:     st.SessionID,
			AppointmentID: st.AppointmentID,
			ConfirmedAt:   t.At,
		}
		if fin, ok := t.From.(Finalizing); ok {
			evt.PaymentMethod = fin.Verification.PaymentMethod
			evt.PaymentIntentID = fin.Verification.PaymentIntentID
			if b := fin.Session.Booking; b != nil {
				evt.PatientID = b.PatientID
				evt.ClinicID = b.ClinicID
				evt.AppointmentDate = b.AppointmentDate
				evt.AppointmentTime = b.AppointmentTime
				evt.Amount = b.WithComputedTotal().TotalAmount
			}
		}
		return events.TypeBookingConfirmed, evt
	case Failed:
		evt := events.BookingFailedV1{
			EventID:       id,
			Scope:         t.Scope,
			SessionID:     st.SessionID,
			Kind:          string(st.Kind),
			Message:       st.Message,
			AppointmentID: st.AppointmentID,
			FailedAt:      t.At,
		}
		if st.Err != nil {
			evt.Error = st.Err.Error()
		}
		if b := st.Booking; b != nil {
			evt.PatientID = b.PatientID
			evt.ClinicID = b.ClinicID
			evt.AppointmentDate = b.AppointmentDate
			evt.AppointmentTime = b.AppointmentTime
			evt.Amount = b.WithComputedTotal().TotalAmount
		}
		return events.TypeBookingFailed, evt
	case Cancelled:
		return events.TypeBookingCancelled, events.BookingCancelledV1{
			EventID:     id,
			Scope:       t.Scope,
			SessionID:   st.SessionID,
			CancelledAt: t.At,
		}
	default:
		return "", nil
	}
}
