package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/wolfman30/clinic-checkout/internal/events"
	"github.com/wolfman30/clinic-checkout/pkg/logging"
)

const alertHandlerName = "support_alert"

// alertKinds are the failure kinds that need a human to reconcile money against records.
var alertKinds = map[string]bool{
	"verification_timeout": true,
	"finalization":         true,
	"partial_finalization": true,
}

type processedTracker interface {
	AlreadyProcessed(ctx context.Context, handler, eventID string) (bool, error)
	MarkProcessed(ctx context.Context, handler, eventID string) (bool, error)
}

// FailureAlerter emails support about checkout failures read from the outbox.
type FailureAlerter struct {
	email     EmailSender
	to        string
	processed processedTracker
	logger    *logging.Logger
}

func NewFailureAlerter(email EmailSender, supportEmail string, logger *logging.Logger) *FailureAlerter {
	if logger == nil {
		logger = logging.Default()
	}
	return &FailureAlerter{
		email:  email,
		to:     strings.TrimSpace(supportEmail),
		logger: logger,
	}
}

// WithProcessedStore dedupes alerts across redeliveries.
func (a *FailureAlerter) WithProcessedStore(store processedTracker) *FailureAlerter {
	a.processed = store
	return a
}

// Handle implements events.DeliveryHandler.
func (a *FailureAlerter) Handle(ctx context.Context, entry events.OutboxEntry) error {
	if entry.Type != events.TypeBookingFailed {
		a.logger.Debug("notify: outbox event needs no alert", "type", entry.Type, "scope", entry.Scope)
		return nil
	}

	var evt events.BookingFailedV1
	if err := json.Unmarshal(entry.Payload, &evt); err != nil {
		// A malformed payload will never decode; drop it rather than block the outbox.
		a.logger.Error("notify: undecodable booking failure event", "error", err, "event_id", entry.ID)
		return nil
	}
	if !alertKinds[evt.Kind] {
		return nil
	}
	if a.email == nil || a.to == "" {
		a.logger.Warn("notify: support alert skipped, no sender or recipient", "kind", evt.Kind, "session_id", evt.SessionID)
		return nil
	}

	eventID := entry.ID.String()
	if a.processed != nil {
		seen, err := a.processed.AlreadyProcessed(ctx, alertHandlerName, eventID)
		if err != nil {
			return err
		}
		if seen {
			return nil
		}
	}

	if err := a.email.Send(ctx, buildAlert(a.to, entry.Scope, evt)); err != nil {
		return fmt.Errorf("notify: send support alert: %w", err)
	}

	if a.processed != nil {
		if _, err := a.processed.MarkProcessed(ctx, alertHandlerName, eventID); err != nil {
			a.logger.Warn("notify: failed to record sent alert", "error", err, "event_id", eventID)
		}
	}
	a.logger.Info("notify: support alert sent", "kind", evt.Kind, "session_id", evt.SessionID, "scope", entry.Scope)
	return nil
}

func buildAlert(to, scope string, evt events.BookingFailedV1) EmailMessage {
	subject := fmt.Sprintf("Checkout needs reconciliation: %s (%s)", evt.Kind, evt.SessionID)

	var b strings.Builder
	fmt.Fprintf(&b, "A checkout ended in failure and may need manual reconciliation.\n\n")
	fmt.Fprintf(&b, "Kind: %s\n", evt.Kind)
	fmt.Fprintf(&b, "Scope: %s\n", scope)
	fmt.Fprintf(&b, "Checkout session: %s\n", evt.SessionID)
	if evt.AppointmentID != "" {
		fmt.Fprintf(&b, "Appointment (created, payment record missing): %s\n", evt.AppointmentID)
	}
	if evt.PatientID != "" {
		fmt.Fprintf(&b, "Patient: %s\n", evt.PatientID)
		fmt.Fprintf(&b, "Clinic: %s\n", evt.ClinicID)
		fmt.Fprintf(&b, "Slot: %s %s\n", evt.AppointmentDate, evt.AppointmentTime)
		fmt.Fprintf(&b, "Amount: %.2f\n", evt.Amount)
	}
	if evt.Error != "" {
		fmt.Fprintf(&b, "Error: %s\n", evt.Error)
	}
	fmt.Fprintf(&b, "Failed at: %s\n", evt.FailedAt.Format("January 2, 2006 at 3:04 PM MST"))

	return EmailMessage{To: to, Subject: subject, Body: b.String()}
}

var _ events.DeliveryHandler = (*FailureAlerter)(nil)
