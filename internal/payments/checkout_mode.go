package payments

import (
	"errors"
	"strings"
)

// GatewayKind names the gateway implementation the API wires in.
type GatewayKind string

const (
	GatewayPayMongo GatewayKind = "paymongo"
	GatewayFake     GatewayKind = "fake"
)

// ErrFakeGatewayDisabled is returned when the fake gateway is requested but not allowed.
var ErrFakeGatewayDisabled = errors.New("payments: fake gateway requires ALLOW_FAKE_PAYMENTS and a non-production env")

// SelectGateway determines which gateway to use based on a provider string.
// Providers:
// - "paymongo": always PayMongo (requires a secret key)
// - "fake" (or "demo"): the in-process demo gateway
// - "auto" or empty: PayMongo when a secret key is present, otherwise fake if allowed
func SelectGateway(provider, secretKey string, allowFake, production bool) (GatewayKind, error) {
	hasKey := strings.TrimSpace(secretKey) != ""
	fakeOK := allowFake && !production

	switch strings.ToLower(strings.TrimSpace(provider)) {
	case "paymongo":
		if !hasKey {
			return "", errors.New("payments: PAYMONGO_SECRET_KEY is required for the paymongo gateway")
		}
		return GatewayPayMongo, nil
	case "fake", "demo":
		if !fakeOK {
			return "", ErrFakeGatewayDisabled
		}
		return GatewayFake, nil
	case "auto", "":
		if hasKey {
			return GatewayPayMongo, nil
		}
		if fakeOK {
			return GatewayFake, nil
		}
		return "", errors.New("payments: no gateway configured; set PAYMONGO_SECRET_KEY or ALLOW_FAKE_PAYMENTS")
	default:
		return "", errors.New("payments: unknown gateway provider " + provider)
	}
}
