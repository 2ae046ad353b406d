package bookings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-checkout/internal/observability/metrics"
	"github.com/wolfman30/clinic-checkout/internal/pending"
	"github.com/wolfman30/clinic-checkout/pkg/logging"
)

var bookingsTracer = otel.Tracer("clinic.internal.bookings")

// FinalizationError means payment may have been taken without a complete
// local record. Partial is set when the appointment exists but its payment
// record does not; AppointmentID is populated in that case.
type FinalizationError struct {
	SessionID     string
	AppointmentID string
	Stage         string
	Partial       bool
	Err           error
}

func (e *FinalizationError) Error() string {
	if e.Partial {
		return fmt.Sprintf("bookings: partial finalization for session %s (appointment %s has no payment record): %v", e.SessionID, e.AppointmentID, e.Err)
	}
	return fmt.Sprintf("bookings: finalize session %s failed at %s: %v", e.SessionID, e.Stage, e.Err)
}

func (e *FinalizationError) Unwrap() error { return e.Err }

// FinalizeRequest is everything needed to promote a pending booking.
type FinalizeRequest struct {
	Booking         pending.Booking
	SessionID       string
	PaymentMethod   string
	PaymentIntentID string
	// Store is cleared after success. Optional.
	Store pending.Store
}

// Finalizer turns a confirmed payment into an appointment plus payment record.
// Idempotency comes from the session id: a second call for the same session
// returns the existing appointment and writes nothing.
type Finalizer struct {
	api           API
	logger        *logging.Logger
	metrics       *metrics.CheckoutMetrics
	defaultMethod string
}

func NewFinalizer(api API, logger *logging.Logger) *Finalizer {
	if api == nil {
		panic("bookings: booking api required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Finalizer{api: api, logger: logger, defaultMethod: "paymongo"}
}

func (f *Finalizer) WithMetrics(m *metrics.CheckoutMetrics) *Finalizer {
	f.metrics = m
	return f
}

// WithDefaultPaymentMethod sets the method recorded when the gateway did not report one.
func (f *Finalizer) WithDefaultPaymentMethod(method string) *Finalizer {
	if method = strings.TrimSpace(method); method != "" {
		f.defaultMethod = method
	}
	return f
}

// Finalize returns the appointment id for req.SessionID, creating the
// appointment and payment record if needed.
func (f *Finalizer) Finalize(ctx context.Context, req FinalizeRequest) (string, error) {
	ctx, span := bookingsTracer.Start(ctx, "bookings.finalize")
	defer span.End()

	sessionID := strings.TrimSpace(req.SessionID)
	span.SetAttributes(
		attribute.String("clinic.session_id", sessionID),
		attribute.String("clinic.patient_id", req.Booking.PatientID),
	)
	logger := f.logger.With("session_id", sessionID, "patient_id", req.Booking.PatientID)

	fail := func(stage string, err error) (string, error) {
		span.RecordError(err)
		f.metrics.ObserveFinalization("failed")
		logger.Error("booking finalization failed", "stage", stage, "error", err)
		return "", &FinalizationError{SessionID: sessionID, Stage: stage, Err: err}
	}

	if sessionID == "" {
		return fail("validate", errors.New("session id required"))
	}

	existing, err := f.api.FindAppointmentBySession(ctx, sessionID)
	switch {
	case err == nil:
		// An existing appointment without its payment record is still
		// reported as partial here instead of returning its id.
		return f.reuse(ctx, logger, req, existing)
	case !errors.Is(err, ErrAppointmentNotFound):
		return fail("lookup", err)
	}

	if err := req.Booking.Validate(); err != nil {
		return fail("validate", err)
	}

	appt, err := f.api.CreateAppointment(ctx, NewAppointment{
		SessionID:       sessionID,
		PatientID:       req.Booking.PatientID,
		ClinicID:        req.Booking.ClinicID,
		AppointmentDate: req.Booking.AppointmentDate,
		AppointmentTime: req.Booking.AppointmentTime,
		AppointmentType: req.Booking.AppointmentType,
		PatientNotes:    req.Booking.PatientNotes,
		Duration:        req.Booking.Duration,
	})
	if errors.Is(err, ErrDuplicateSession) {
		// Another finalizer won the insert race.
		existing, lookupErr := f.api.FindAppointmentBySession(ctx, sessionID)
		if lookupErr != nil {
			return fail("lookup", lookupErr)
		}
		return f.reuse(ctx, logger, req, existing)
	}
	if err != nil {
		return fail("create_appointment", err)
	}
	span.SetAttributes(attribute.String("clinic.appointment_id", appt.ID))

	method := strings.TrimSpace(req.PaymentMethod)
	if method == "" {
		method = f.defaultMethod
	}
	payment, err := f.api.CreatePayment(ctx, NewPayment{
		AppointmentID:   appt.ID,
		PaymentMethod:   method,
		PaymentIntentID: req.PaymentIntentID,
		Amount:          req.Booking.TotalAmount,
	})
	if err != nil {
		span.RecordError(err)
		f.metrics.ObserveFinalization("partial")
		logger.Error("appointment created without payment record", "appointment_id", appt.ID, "amount", req.Booking.TotalAmount, "error", err)
		return "", &FinalizationError{SessionID: sessionID, AppointmentID: appt.ID, Stage: "create_payment", Partial: true, Err: err}
	}

	f.clear(ctx, logger, req.Store)
	f.metrics.ObserveFinalization("created")
	logger.Info("booking finalized", "appointment_id", appt.ID, "transaction_number", payment.TransactionNumber, "amount", payment.Amount)
	return appt.ID, nil
}

// reuse handles an appointment that already exists for the session. A
// missing payment record is reported rather than back-filled.
func (f *Finalizer) reuse(ctx context.Context, logger *logging.Logger, req FinalizeRequest, appt *Appointment) (string, error) {
	_, err := f.api.FindPaymentByAppointment(ctx, appt.ID)
	switch {
	case err == nil:
	case errors.Is(err, ErrPaymentNotFound):
		f.metrics.ObserveFinalization("partial")
		logger.Error("existing appointment has no payment record", "appointment_id", appt.ID)
		return "", &FinalizationError{SessionID: appt.SessionID, AppointmentID: appt.ID, Stage: "existing_appointment", Partial: true, Err: err}
	default:
		f.metrics.ObserveFinalization("failed")
		return "", &FinalizationError{SessionID: appt.SessionID, AppointmentID: appt.ID, Stage: "lookup_payment", Err: err}
	}
	f.clear(ctx, logger, req.Store)
	f.metrics.ObserveFinalization("existing")
	logger.Info("booking already finalized", "appointment_id", appt.ID)
	return appt.ID, nil
}

// clear drops the staged booking. Failure leaves stale staging behind but
// the booking itself is complete, so it is only logged.
func (f *Finalizer) clear(ctx context.Context, logger *logging.Logger, store pending.Store) {
	if store == nil {
		return
	}
	if err := pending.Clear(ctx, store); err != nil {
		logger.Warn("failed to clear pending booking", "error", err)
	}
}
