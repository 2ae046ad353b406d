package payments

import (
	"context"
	"strings"
)

// Status is the normalised checkout session status.
type Status string

const (
	StatusUnpaid  Status = "unpaid"
	StatusPaid    Status = "paid"
	StatusFailed  Status = "failed"
	StatusTimeout Status = "timeout"
)

// Payment is one payment attempt attached to a checkout session.
type Payment struct {
	ID     string  `json:"id,omitempty"`
	Status string  `json:"status"`
	Method string  `json:"method,omitempty"`
	Amount float64 `json:"amount,omitempty"`
}

// CheckoutSession is the gateway-owned view of a hosted checkout.
type CheckoutSession struct {
	ID              string    `json:"session_id"`
	CheckoutURL     string    `json:"checkout_url"`
	Status          Status    `json:"status"`
	PaymentIntentID string    `json:"payment_intent_id,omitempty"`
	PaymentMethod   string    `json:"payment_method,omitempty"`
	Payments        []Payment `json:"payments,omitempty"`
}

// IsConfirmed reports whether the session carries a success signal: the
// session itself is paid, or any attached payment reports paid/succeeded.
// The second signal exists because some gateways leave the session "active"
// after the payment settles.
func (s *CheckoutSession) IsConfirmed() bool {
	if s == nil {
		return false
	}
	if s.Status == StatusPaid {
		return true
	}
	for _, p := range s.Payments {
		if isPaidPaymentStatus(p.Status) {
			return true
		}
	}
	return false
}

func isPaidPaymentStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "paid", "succeeded":
		return true
	default:
		return false
	}
}

// Gateway looks up checkout sessions. It never mutates gateway state.
type Gateway interface {
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
}

// CheckoutRequest describes a hosted checkout to create.
type CheckoutRequest struct {
	Scope          string
	PatientID      string
	ClinicID       string
	Description    string
	Amount         float64
	Currency       string
	SuccessURL     string
	CancelURL      string
	PaymentMethods []string
	Reference      string
}

// CheckoutCreator opens hosted checkout sessions.
type CheckoutCreator interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

// Provider is a gateway that can both create and look up sessions.
type Provider interface {
	Gateway
	CheckoutCreator
}
