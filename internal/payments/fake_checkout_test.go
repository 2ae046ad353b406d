package payments

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestFakeGatewayLifecycle(t *testing.T) {
	gw := NewFakeGateway("http://localhost:8080/", nil)
	session, err := gw.CreateCheckoutSession(context.Background(), CheckoutRequest{Amount: 550, SuccessURL: "http://localhost:8080/api/checkout/p1/return"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(session.ID, "cs_fake_") {
		t.Fatalf("unexpected session id %s", session.ID)
	}
	if session.CheckoutURL != "http://localhost:8080/demo/checkout/"+session.ID {
		t.Fatalf("unexpected checkout url %s", session.CheckoutURL)
	}

	got, err := gw.GetCheckoutSession(context.Background(), session.ID)
	if err != nil || got.IsConfirmed() {
		t.Fatalf("expected unconfirmed session, got %+v err=%v", got, err)
	}

	if err := gw.MarkPaid(session.ID, ""); err != nil {
		t.Fatalf("MarkPaid: %v", err)
	}
	got, _ = gw.GetCheckoutSession(context.Background(), session.ID)
	if !got.IsConfirmed() || got.PaymentMethod != "card" || got.PaymentIntentID == "" {
		t.Fatalf("expected confirmed session, got %+v", got)
	}
}

func TestFakeGatewayUnknownSessionIsTransient(t *testing.T) {
	_, err := NewFakeGateway("http://localhost", nil).GetCheckoutSession(context.Background(), "cs_missing")
	if err == nil || !IsTransient(err) {
		t.Fatalf("expected transient not-found error, got %v", err)
	}
}

func TestFakeGatewayRequiresValidBaseURL(t *testing.T) {
	if _, err := NewFakeGateway("", nil).CreateCheckoutSession(context.Background(), CheckoutRequest{Amount: 1}); err == nil {
		t.Fatal("expected error for missing base url")
	}
	if _, err := NewFakeGateway("localhost:8080", nil).CreateCheckoutSession(context.Background(), CheckoutRequest{Amount: 1}); err == nil {
		t.Fatal("expected error for relative base url")
	}
}

func TestFakeCheckoutHandlerCompleteRedirects(t *testing.T) {
	gw := NewFakeGateway("http://localhost:8080", nil)
	session, err := gw.CreateCheckoutSession(context.Background(), CheckoutRequest{Amount: 550, SuccessURL: "/api/checkout/p1/return"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	r := chi.NewRouter()
	r.Mount("/demo", NewFakeCheckoutHandler(gw, nil).Routes())

	page := httptest.NewRecorder()
	r.ServeHTTP(page, httptest.NewRequest(http.MethodGet, "/demo/checkout/"+session.ID, nil))
	if page.Code != http.StatusOK || !strings.Contains(page.Body.String(), "550.00") {
		t.Fatalf("unexpected checkout page %d: %s", page.Code, page.Body.String())
	}

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/demo/checkout/"+session.ID+"/complete", nil))
	if rec.Code != http.StatusSeeOther {
		t.Fatalf("expected redirect, got %d", rec.Code)
	}
	if loc := rec.Header().Get("Location"); loc != "/api/checkout/p1/return" {
		t.Fatalf("unexpected redirect %q", loc)
	}
	got, _ := gw.GetCheckoutSession(context.Background(), session.ID)
	if !got.IsConfirmed() {
		t.Fatal("expected session to be paid after completion")
	}
}

func TestFakeCheckoutHandlerUnknownSession(t *testing.T) {
	r := chi.NewRouter()
	r.Mount("/demo", NewFakeCheckoutHandler(NewFakeGateway("http://localhost", nil), nil).Routes())

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/demo/checkout/cs_nope/complete", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestSelectGateway(t *testing.T) {
	tests := []struct {
		name       string
		provider   string
		key        string
		allowFake  bool
		production bool
		want       GatewayKind
		wantErr    bool
	}{
		{"explicit paymongo", "paymongo", "sk", false, true, GatewayPayMongo, false},
		{"paymongo without key", "paymongo", "", false, false, "", true},
		{"fake allowed", "fake", "", true, false, GatewayFake, false},
		{"fake blocked in production", "fake", "", true, true, "", true},
		{"auto with key", "auto", "sk", true, false, GatewayPayMongo, false},
		{"auto falls back to fake", "", "", true, false, GatewayFake, false},
		{"auto without options", "", "", false, false, "", true},
		{"unknown", "square", "sk", false, false, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SelectGateway(tt.provider, tt.key, tt.allowFake, tt.production)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %s", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %s, got %s", tt.want, got)
			}
		})
	}
}
