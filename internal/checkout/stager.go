package checkout

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-checkout/internal/payments"
	"github.com/wolfman30/clinic-checkout/internal/pending"
	"github.com/wolfman30/clinic-checkout/pkg/logging"
)

// ErrInvalidScope is returned for an empty or malformed scope key.
var ErrInvalidScope = errors.New("checkout: invalid scope")

// StageOptions customizes the hosted checkout. Empty fields fall back to the
// stager's defaults. SuccessURL and CancelURL may contain "{scope}".
type StageOptions struct {
	Description    string
	SuccessURL     string
	CancelURL      string
	Currency       string
	PaymentMethods []string
}

// Stager captures a booking and opens the hosted checkout for it.
type Stager struct {
	creator       payments.CheckoutCreator
	stores        pending.Provider
	publicBaseURL string
	defaults      StageOptions
	logger        *logging.Logger
}

func NewStager(creator payments.CheckoutCreator, stores pending.Provider, publicBaseURL string, logger *logging.Logger) *Stager {
	if creator == nil || stores == nil {
		panic("checkout: stager requires a checkout creator and a store provider")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Stager{
		creator:       creator,
		stores:        stores,
		publicBaseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
		logger:        logger,
	}
}

// WithDefaults sets the options used when a stage request leaves them empty.
func (s *Stager) WithDefaults(opts StageOptions) *Stager {
	s.defaults = opts
	return s
}

func (s *Stager) withDefaults(opts StageOptions) StageOptions {
	if strings.TrimSpace(opts.SuccessURL) == "" {
		opts.SuccessURL = s.defaults.SuccessURL
	}
	if strings.TrimSpace(opts.CancelURL) == "" {
		opts.CancelURL = s.defaults.CancelURL
	}
	if strings.TrimSpace(opts.Currency) == "" {
		opts.Currency = s.defaults.Currency
	}
	if len(opts.PaymentMethods) == 0 {
		opts.PaymentMethods = s.defaults.PaymentMethods
	}
	return opts
}

// Stage validates the booking, creates the gateway session and then writes
// the booking and session id to the scope's store. Nothing is written when
// validation or session creation fails.
func (s *Stager) Stage(ctx context.Context, scope string, booking pending.Booking, opts StageOptions) (*payments.CheckoutSession, error) {
	ctx, span := flowTracer.Start(ctx, "checkout.stage")
	defer span.End()

	scope, err := normalizeScope(scope)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.String("clinic.scope", scope))

	if err := booking.Validate(); err != nil {
		return nil, err
	}
	booking = booking.WithComputedTotal()
	if booking.TotalAmount <= 0 {
		return nil, fmt.Errorf("%w: total amount must be positive", pending.ErrInvalidBooking)
	}

	opts = s.withDefaults(opts)
	description := strings.TrimSpace(opts.Description)
	if description == "" {
		description = fmt.Sprintf("Appointment on %s at %s", booking.AppointmentDate, booking.AppointmentTime)
		if booking.AppointmentType != "" {
			description = fmt.Sprintf("%s (%s)", description, booking.AppointmentType)
		}
	}

	session, err := s.creator.CreateCheckoutSession(ctx, payments.CheckoutRequest{
		Scope:          scope,
		PatientID:      booking.PatientID,
		ClinicID:       booking.ClinicID,
		Description:    description,
		Amount:         booking.TotalAmount,
		Currency:       opts.Currency,
		SuccessURL:     s.returnURL(opts.SuccessURL, scope, "return"),
		CancelURL:      s.returnURL(opts.CancelURL, scope, "cancel"),
		PaymentMethods: opts.PaymentMethods,
		Reference:      scope,
	})
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("checkout: create checkout session: %w", err)
	}

	store := s.stores.For(scope)
	if err := pending.SaveBooking(ctx, store, booking); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("checkout: stage booking: %w", err)
	}
	if err := pending.SaveSessionID(ctx, store, session.ID); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("checkout: stage session id: %w", err)
	}

	span.SetAttributes(attribute.String("clinic.session_id", session.ID))
	s.logger.Info("checkout staged", "scope", scope, "session_id", session.ID, "patient_id", booking.PatientID, "amount", booking.TotalAmount)
	return session, nil
}

func (s *Stager) returnURL(override, scope, action string) string {
	if override = strings.TrimSpace(override); override != "" {
		return strings.ReplaceAll(override, "{scope}", url.PathEscape(scope))
	}
	if s.publicBaseURL == "" {
		return ""
	}
	return fmt.Sprintf("%s/api/checkout/%s/%s", s.publicBaseURL, url.PathEscape(scope), action)
}

func normalizeScope(scope string) (string, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return "", fmt.Errorf("%w: scope is required", ErrInvalidScope)
	}
	if len(scope) > 128 || strings.ContainsAny(scope, "/?#") {
		return "", fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}
	return scope, nil
}
