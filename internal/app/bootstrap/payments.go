package bootstrap

import (
	"fmt"

	appconfig "github.com/wolfman30/clinic-checkout/internal/config"
	"github.com/wolfman30/clinic-checkout/internal/payments"
	"github.com/wolfman30/clinic-checkout/pkg/logging"
)

// Gateway is the selected payment gateway plus, for the demo gateway, the
// handler serving its hosted pages.
type Gateway struct {
	Kind     payments.GatewayKind
	Provider payments.Provider
	Demo     *payments.FakeCheckoutHandler
}

// BuildGateway wires PayMongo or the in-process demo gateway.
func BuildGateway(cfg *appconfig.Config, logger *logging.Logger) (*Gateway, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}

	kind, err := payments.SelectGateway(cfg.GatewayProvider, cfg.PayMongoSecretKey, cfg.AllowFakePayments, cfg.IsProduction())
	if err != nil {
		return nil, err
	}

	switch kind {
	case payments.GatewayPayMongo:
		client := payments.NewPayMongoClient(cfg.PayMongoSecretKey, logger).
			WithBaseURL(cfg.PayMongoBaseURL).
			WithCurrency(cfg.CheckoutCurrency).
			WithPaymentMethods(cfg.CheckoutPaymentMethods)
		return &Gateway{Kind: kind, Provider: client}, nil
	default:
		fake := payments.NewFakeGateway(cfg.PublicBaseURL, logger)
		logger.Warn("using demo payment gateway; no real payments are processed")
		return &Gateway{Kind: kind, Provider: fake, Demo: payments.NewFakeCheckoutHandler(fake, logger)}, nil
	}
}

// VerificationSchedule maps the VERIFY_* settings onto the verifier
// schedule. Unset values keep the verifier defaults.
func VerificationSchedule(cfg *appconfig.Config) payments.Schedule {
	if cfg == nil {
		return payments.Schedule{}
	}
	return payments.Schedule{
		InitialDelay:  cfg.VerifyInitialDelay,
		MaxAttempts:   cfg.VerifyMaxAttempts,
		BaseDelay:     cfg.VerifyBaseDelay,
		DelayStep:     cfg.VerifyDelayStep,
		MaxDelay:      cfg.VerifyMaxDelay,
		FallbackDelay: cfg.VerifyFallbackDelay,
	}
}
