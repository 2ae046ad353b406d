package payments

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-checkout/internal/observability/metrics"
	"github.com/wolfman30/clinic-checkout/internal/retry"
	"github.com/wolfman30/clinic-checkout/pkg/logging"
)

var verifyTracer = otel.Tracer("clinic.internal.payments.verify")

// Outcome is the verdict of a verification run.
type Outcome string

const (
	OutcomeConfirmed Outcome = "confirmed"
	OutcomeTimeout   Outcome = "timeout"
)

// Schedule is the wait plan for a verification run.
type Schedule struct {
	InitialDelay  time.Duration
	MaxAttempts   int
	BaseDelay     time.Duration
	DelayStep     time.Duration
	MaxDelay      time.Duration
	FallbackDelay time.Duration
}

// DefaultSchedule waits 2s, polls 6 times with min(3s+2s*i, 15s) between
// polls, then waits 5s for one last check.
func DefaultSchedule() Schedule {
	return Schedule{
		InitialDelay:  2 * time.Second,
		MaxAttempts:   6,
		BaseDelay:     3 * time.Second,
		DelayStep:     2 * time.Second,
		MaxDelay:      15 * time.Second,
		FallbackDelay: 5 * time.Second,
	}
}

// Delay returns the wait between attempt i and i+1.
func (s Schedule) Delay(attempt int) time.Duration {
	return retry.Linear(s.BaseDelay, s.DelayStep, s.MaxDelay)(attempt)
}

// Verification is the result of Verify.
type Verification struct {
	SessionID       string
	Outcome         Outcome
	Status          Status
	PaymentIntentID string
	PaymentMethod   string
	Attempts        int
	Fallback        bool
}

func (v Verification) Confirmed() bool { return v.Outcome == OutcomeConfirmed }

// Verifier polls the gateway until a payment is confirmed or the schedule runs out.
// It never mutates booking state.
type Verifier struct {
	gateway  Gateway
	schedule Schedule
	clock    retry.Clock
	metrics  *metrics.CheckoutMetrics
	logger   *logging.Logger
}

func NewVerifier(gateway Gateway, logger *logging.Logger) *Verifier {
	if gateway == nil {
		panic("payments: verifier requires a gateway")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Verifier{
		gateway:  gateway,
		schedule: DefaultSchedule(),
		clock:    retry.SystemClock{},
		logger:   logger,
	}
}

// WithSchedule overrides the wait plan. Zero fields keep their defaults.
func (v *Verifier) WithSchedule(s Schedule) *Verifier {
	def := v.schedule
	if s.InitialDelay > 0 {
		def.InitialDelay = s.InitialDelay
	}
	if s.MaxAttempts > 0 {
		def.MaxAttempts = s.MaxAttempts
	}
	if s.BaseDelay > 0 {
		def.BaseDelay = s.BaseDelay
	}
	if s.DelayStep > 0 {
		def.DelayStep = s.DelayStep
	}
	if s.MaxDelay > 0 {
		def.MaxDelay = s.MaxDelay
	}
	if s.FallbackDelay > 0 {
		def.FallbackDelay = s.FallbackDelay
	}
	v.schedule = def
	return v
}

func (v *Verifier) WithClock(clock retry.Clock) *Verifier {
	if clock != nil {
		v.clock = clock
	}
	return v
}

func (v *Verifier) WithMetrics(m *metrics.CheckoutMetrics) *Verifier {
	v.metrics = m
	return v
}

// Verify returns a Confirmed or Timeout verification. The error is non-nil
// only when ctx ends or the gateway rejects the lookup permanently.
func (v *Verifier) Verify(ctx context.Context, sessionID string) (Verification, error) {
	ctx, span := verifyTracer.Start(ctx, "payments.verify")
	defer span.End()

	sessionID = strings.TrimSpace(sessionID)
	span.SetAttributes(attribute.String("clinic.session_id", sessionID))
	result := Verification{SessionID: sessionID, Status: StatusUnpaid}
	if sessionID == "" {
		return result, &GatewayError{Op: "verify", Err: errors.New("session id required")}
	}

	started := v.clock.Now()
	logger := v.logger.With("session_id", sessionID)

	if err := v.clock.Sleep(ctx, v.schedule.InitialDelay); err != nil {
		return result, err
	}

	policy := retry.Policy{
		MaxAttempts: v.schedule.MaxAttempts,
		Delay:       v.schedule.Delay,
		Clock:       v.clock,
	}
	session, attempts, err := retry.Run(ctx, policy, func(ctx context.Context, attempt int) retry.Result[*CheckoutSession] {
		return v.check(ctx, logger, attempt+1, &result)
	})
	result.Attempts = attempts
	span.SetAttributes(attribute.Int("clinic.verify_attempts", attempts))
	if err == nil {
		v.confirm(&result, session, false)
		v.finish(logger, result, started)
		return result, nil
	}
	if !errors.Is(err, retry.ErrExhausted) {
		span.RecordError(err)
		return result, err
	}

	logger.Info("payment not confirmed after polling; running fallback check", "attempts", attempts)
	if err := v.clock.Sleep(ctx, v.schedule.FallbackDelay); err != nil {
		return result, err
	}
	res := v.check(ctx, logger, attempts+1, &result)
	result.Attempts = attempts + 1
	switch {
	case res.Done:
		v.confirm(&result, res.Value, true)
	case res.Abort:
		span.RecordError(res.Err)
		return result, res.Err
	default:
		result.Outcome = OutcomeTimeout
	}
	v.finish(logger, result, started)
	return result, nil
}

// check is a single attempt. Transient gateway errors and non-decisive
// statuses ask for another attempt; cancellation and permanent errors stop.
func (v *Verifier) check(ctx context.Context, logger *logging.Logger, attempt int, result *Verification) retry.Result[*CheckoutSession] {
	if err := ctx.Err(); err != nil {
		return retry.Stop[*CheckoutSession](err)
	}
	session, err := v.gateway.GetCheckoutSession(ctx, result.SessionID)
	if err == nil && session == nil {
		err = transportError("get checkout session", ErrEmptySession)
	}
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return retry.Stop[*CheckoutSession](ctxErr)
		}
		if IsTransient(err) {
			v.metrics.ObserveVerificationAttempt("transient_error")
			logger.Warn("payment status check failed; will retry", "attempt", attempt, "error", err)
			return retry.Again[*CheckoutSession](err)
		}
		v.metrics.ObserveVerificationAttempt("error")
		logger.Error("payment status check rejected", "attempt", attempt, "error", err)
		return retry.Stop[*CheckoutSession](err)
	}
	if session.IsConfirmed() {
		v.metrics.ObserveVerificationAttempt("confirmed")
		return retry.Succeed(session)
	}
	if session.Status != "" {
		result.Status = session.Status
	}
	v.metrics.ObserveVerificationAttempt("pending")
	logger.Debug("payment not yet confirmed", "attempt", attempt, "status", string(session.Status), "payments", len(session.Payments))
	return retry.Again[*CheckoutSession](nil)
}

func (v *Verifier) confirm(result *Verification, session *CheckoutSession, fallback bool) {
	result.Outcome = OutcomeConfirmed
	result.Status = StatusPaid
	result.Fallback = fallback
	if session != nil {
		result.PaymentIntentID = session.PaymentIntentID
		result.PaymentMethod = session.PaymentMethod
	}
}

func (v *Verifier) finish(logger *logging.Logger, result Verification, started time.Time) {
	elapsed := v.clock.Now().Sub(started)
	v.metrics.ObserveVerification(string(result.Outcome), elapsed)
	if result.Confirmed() {
		logger.Info("payment confirmed", "attempts", result.Attempts, "fallback", result.Fallback, "payment_intent_id", result.PaymentIntentID)
		return
	}
	logger.Warn("payment verification timed out", "attempts", result.Attempts, "last_status", string(result.Status))
}
