package payments

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/wolfman30/clinic-checkout/pkg/logging"
)

// FakeGateway is a dev/demo gateway that hosts its own checkout page and lets
// the user "complete" a payment without gateway credentials.
//
// Only enable it when ALLOW_FAKE_PAYMENTS is set and never in production.
type FakeGateway struct {
	publicBaseURL string
	logger        *logging.Logger

	mu       sync.Mutex
	sessions map[string]*fakeSession
}

type fakeSession struct {
	session    CheckoutSession
	amount     float64
	currency   string
	successURL string
	cancelURL  string
}

func NewFakeGateway(publicBaseURL string, logger *logging.Logger) *FakeGateway {
	if logger == nil {
		logger = logging.Default()
	}
	return &FakeGateway{
		publicBaseURL: strings.TrimRight(strings.TrimSpace(publicBaseURL), "/"),
		logger:        logger,
		sessions:      make(map[string]*fakeSession),
	}
}

func (g *FakeGateway) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	_ = ctx
	if g.publicBaseURL == "" {
		return nil, errors.New("payments: fake checkout requires PUBLIC_BASE_URL")
	}
	if !isValidBaseURL(g.publicBaseURL) {
		return nil, errors.New("payments: fake checkout PUBLIC_BASE_URL must be an absolute http(s) URL")
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("payments: checkout amount must be positive, got %.2f", req.Amount)
	}

	id := "cs_fake_" + strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
	session := CheckoutSession{
		ID:          id,
		CheckoutURL: fmt.Sprintf("%s/demo/checkout/%s", g.publicBaseURL, id),
		Status:      StatusUnpaid,
	}

	g.mu.Lock()
	g.sessions[id] = &fakeSession{
		session:    session,
		amount:     req.Amount,
		currency:   req.Currency,
		successURL: req.SuccessURL,
		cancelURL:  req.CancelURL,
	}
	g.mu.Unlock()

	g.logger.Info("fake checkout session created", "session_id", id, "patient_id", req.PatientID)
	out := session
	return &out, nil
}

func (g *FakeGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	_ = ctx
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[sessionID]
	if !ok {
		return nil, statusError("fake get", 404, "no such session")
	}
	out := s.session
	out.Payments = append([]Payment(nil), s.session.Payments...)
	return &out, nil
}

// MarkPaid records a settled payment. The session itself stays "unpaid",
// mirroring gateways that only flip the attached payment.
func (g *FakeGateway) MarkPaid(sessionID, method string) error {
	if method == "" {
		method = "card"
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if s.session.PaymentIntentID == "" {
		s.session.PaymentIntentID = "pi_fake_" + strings.TrimPrefix(sessionID, "cs_fake_")
	}
	s.session.PaymentMethod = method
	s.session.Payments = append(s.session.Payments, Payment{
		ID:     "pay_fake_" + uuid.New().String()[:8],
		Status: "paid",
		Method: method,
		Amount: s.amount,
	})
	return nil
}

// Expire marks the session as failed.
func (g *FakeGateway) Expire(sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	s.session.Status = StatusFailed
	return nil
}

func (g *FakeGateway) lookup(sessionID string) (fakeSession, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	s, ok := g.sessions[sessionID]
	if !ok {
		return fakeSession{}, false
	}
	return *s, true
}

func isValidBaseURL(value string) bool {
	parsed, err := url.Parse(value)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return false
	}
	switch strings.ToLower(parsed.Scheme) {
	case "http", "https":
		return true
	default:
		return false
	}
}
