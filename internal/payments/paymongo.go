package payments

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-checkout/pkg/logging"
)

var paymongoTracer = otel.Tracer("clinic.internal.payments.paymongo")

// PayMongoClient talks to the PayMongo checkout sessions API.
type PayMongoClient struct {
	secretKey  string
	baseURL    string
	currency   string
	methods    []string
	httpClient *http.Client
	logger     *logging.Logger
}

func NewPayMongoClient(secretKey string, logger *logging.Logger) *PayMongoClient {
	if logger == nil {
		logger = logging.Default()
	}
	return &PayMongoClient{
		secretKey:  strings.TrimSpace(secretKey),
		baseURL:    "https://api.paymongo.com",
		currency:   "PHP",
		methods:    []string{"card", "gcash", "paymaya"},
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// WithBaseURL overrides the API base URL (for testing).
func (c *PayMongoClient) WithBaseURL(baseURL string) *PayMongoClient {
	if baseURL = strings.TrimSpace(baseURL); baseURL != "" {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
	return c
}

func (c *PayMongoClient) WithCurrency(currency string) *PayMongoClient {
	if currency = strings.TrimSpace(currency); currency != "" {
		c.currency = strings.ToUpper(currency)
	}
	return c
}

func (c *PayMongoClient) WithPaymentMethods(methods []string) *PayMongoClient {
	if len(methods) > 0 {
		c.methods = methods
	}
	return c
}

func (c *PayMongoClient) WithHTTPClient(client *http.Client) *PayMongoClient {
	if client != nil {
		c.httpClient = client
	}
	return c
}

type paymongoEnvelope struct {
	Data paymongoSessionData `json:"data"`
}

type paymongoSessionData struct {
	ID         string                   `json:"id"`
	Attributes paymongoSessionAttribute `json:"attributes"`
}

type paymongoSessionAttribute struct {
	CheckoutURL       string `json:"checkout_url"`
	Status            string `json:"status"`
	PaymentMethodUsed string `json:"payment_method_used"`
	PaymentIntent     *struct {
		ID         string `json:"id"`
		Attributes struct {
			Status string `json:"status"`
		} `json:"attributes"`
	} `json:"payment_intent"`
	Payments []struct {
		ID         string `json:"id"`
		Attributes struct {
			Status string `json:"status"`
			Amount int64  `json:"amount"`
			Source struct {
				Type string `json:"type"`
			} `json:"source"`
		} `json:"attributes"`
	} `json:"payments"`
}

type paymongoLineItem struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Name     string `json:"name"`
	Quantity int    `json:"quantity"`
}

type paymongoCreateAttributes struct {
	LineItems          []paymongoLineItem `json:"line_items"`
	PaymentMethodTypes []string           `json:"payment_method_types"`
	SuccessURL         string             `json:"success_url,omitempty"`
	CancelURL          string             `json:"cancel_url,omitempty"`
	Description        string             `json:"description,omitempty"`
	ReferenceNumber    string             `json:"reference_number,omitempty"`
	Metadata           map[string]string  `json:"metadata,omitempty"`
	ShowDescription    bool               `json:"show_description"`
	ShowLineItems      bool               `json:"show_line_items"`
	SendEmailReceipt   bool               `json:"send_email_receipt"`
}

// CreateCheckoutSession opens a hosted checkout for req.Amount.
func (c *PayMongoClient) CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error) {
	ctx, span := paymongoTracer.Start(ctx, "paymongo.create_checkout_session")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.patient_id", req.PatientID),
		attribute.String("clinic.clinic_id", req.ClinicID),
		attribute.Float64("clinic.amount", req.Amount),
	)

	if c.secretKey == "" {
		return nil, errors.New("payments: paymongo secret key not configured")
	}
	if req.Amount <= 0 {
		return nil, fmt.Errorf("payments: checkout amount must be positive, got %.2f", req.Amount)
	}

	currency := c.currency
	if strings.TrimSpace(req.Currency) != "" {
		currency = strings.ToUpper(strings.TrimSpace(req.Currency))
	}
	methods := c.methods
	if len(req.PaymentMethods) > 0 {
		methods = req.PaymentMethods
	}
	description := strings.TrimSpace(req.Description)
	if description == "" {
		description = "Clinic appointment"
	}

	metadata := map[string]string{}
	if req.Scope != "" {
		metadata["scope"] = req.Scope
	}
	if req.PatientID != "" {
		metadata["patient_id"] = req.PatientID
	}
	if req.ClinicID != "" {
		metadata["clinic_id"] = req.ClinicID
	}

	payload := map[string]any{
		"data": map[string]any{
			"attributes": paymongoCreateAttributes{
				LineItems: []paymongoLineItem{{
					Amount:   toMinorUnits(req.Amount),
					Currency: currency,
					Name:     description,
					Quantity: 1,
				}},
				PaymentMethodTypes: methods,
				SuccessURL:         req.SuccessURL,
				CancelURL:          req.CancelURL,
				Description:        description,
				ReferenceNumber:    req.Reference,
				Metadata:           metadata,
				ShowDescription:    true,
				ShowLineItems:      true,
			},
		},
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("payments: paymongo encode: %w", err)
	}

	var parsed paymongoEnvelope
	if err := c.do(ctx, "paymongo create", http.MethodPost, "/v1/checkout_sessions", body, &parsed); err != nil {
		span.RecordError(err)
		return nil, err
	}
	session := parsed.toSession()
	if session.ID == "" || session.CheckoutURL == "" {
		return nil, errors.New("payments: paymongo response missing session id or checkout url")
	}
	c.logger.Info("paymongo checkout session created", "session_id", session.ID, "patient_id", req.PatientID, "clinic_id", req.ClinicID)
	return session, nil
}

// GetCheckoutSession fetches and normalises a checkout session.
func (c *PayMongoClient) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	ctx, span := paymongoTracer.Start(ctx, "paymongo.get_checkout_session")
	defer span.End()
	span.SetAttributes(attribute.String("clinic.session_id", sessionID))

	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return nil, &GatewayError{Op: "paymongo get", Err: errors.New("session id required")}
	}
	if c.secretKey == "" {
		return nil, &GatewayError{Op: "paymongo get", Err: errors.New("secret key not configured")}
	}

	var parsed paymongoEnvelope
	if err := c.do(ctx, "paymongo get", http.MethodGet, "/v1/checkout_sessions/"+url.PathEscape(sessionID), nil, &parsed); err != nil {
		span.RecordError(err)
		return nil, err
	}
	session := parsed.toSession()
	if session.ID == "" {
		session.ID = sessionID
	}
	span.SetAttributes(attribute.String("clinic.session_status", string(session.Status)))
	return session, nil
}

func (c *PayMongoClient) do(ctx context.Context, op, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return &GatewayError{Op: op, Err: err}
	}
	req.SetBasicAuth(c.secretKey, "")
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return statusError(op, resp.StatusCode, string(respBody))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return transportError(op+" decode", err)
	}
	return nil
}

func (e paymongoEnvelope) toSession() *CheckoutSession {
	attrs := e.Data.Attributes
	session := &CheckoutSession{
		ID:            e.Data.ID,
		CheckoutURL:   attrs.CheckoutURL,
		Status:        normalizeSessionStatus(attrs.Status),
		PaymentMethod: attrs.PaymentMethodUsed,
	}
	if attrs.PaymentIntent != nil {
		session.PaymentIntentID = attrs.PaymentIntent.ID
	}
	for _, p := range attrs.Payments {
		session.Payments = append(session.Payments, Payment{
			ID:     p.ID,
			Status: p.Attributes.Status,
			Method: p.Attributes.Source.Type,
			Amount: fromMinorUnits(p.Attributes.Amount),
		})
		if session.PaymentMethod == "" && isPaidPaymentStatus(p.Attributes.Status) {
			session.PaymentMethod = p.Attributes.Source.Type
		}
	}
	return session
}

func normalizeSessionStatus(raw string) Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "paid", "succeeded", "completed":
		return StatusPaid
	case "expired", "failed", "cancelled", "canceled":
		return StatusFailed
	default:
		return StatusUnpaid
	}
}

func toMinorUnits(amount float64) int64 {
	return int64(math.Round(amount * 100))
}

func fromMinorUnits(amount int64) float64 {
	return float64(amount) / 100
}
