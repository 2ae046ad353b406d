package checkout

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-checkout/internal/bookings"
	"github.com/wolfman30/clinic-checkout/internal/observability/metrics"
	"github.com/wolfman30/clinic-checkout/internal/payments"
	"github.com/wolfman30/clinic-checkout/internal/pending"
	"github.com/wolfman30/clinic-checkout/internal/retry"
)

type apiHarness struct {
	server  *httptest.Server
	gateway *payments.FakeGateway
	repo    *bookings.MemoryRepository
	manager *Manager
}

func newAPIHarness(t *testing.T) *apiHarness {
	t.Helper()
	gateway := payments.NewFakeGateway("https://clinic.example", nil)
	repo := bookings.NewMemoryRepository()
	stores := pending.NewMemoryProvider()
	reg := prometheus.NewRegistry()
	m := metrics.NewCheckoutMetrics(reg)

	verifier := payments.NewVerifier(gateway, nil).WithClock(retry.NewRecordingClock(time.Unix(0, 0)))
	manager := NewManager(stores, verifier, bookings.NewFinalizer(repo, nil), nil).WithObservers(MetricsObserver(m))
	handler := NewHandler(NewStager(gateway, stores, "https://clinic.example", nil), manager, nil).WithGatherer(reg)

	r := chi.NewRouter()
	r.Mount("/api/checkout", handler.Routes())
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		_ = manager.Shutdown(context.Background())
	})
	return &apiHarness{server: srv, gateway: gateway, repo: repo, manager: manager}
}

func (a *apiHarness) do(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, a.server.URL+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	out := map[string]any{}
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp, out
}

func TestHandlerStageReturnAndStatus(t *testing.T) {
	api := newAPIHarness(t)

	resp, body := api.do(t, http.MethodPost, "/api/checkout", map[string]any{
		"scope":   "patient-1",
		"booking": sampleBooking(),
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	sessionID, _ := body["session_id"].(string)
	require.NotEmpty(t, sessionID)
	assert.Equal(t, string(StateAwaitingPayment), body["state"])
	assert.Contains(t, body["checkout_url"], "/demo/checkout/"+sessionID)

	require.NoError(t, api.gateway.MarkPaid(sessionID, "gcash"))

	resp, body = api.do(t, http.MethodGet, "/api/checkout/patient-1/return", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode, body)

	require.Eventually(t, func() bool {
		_, status := api.do(t, http.MethodGet, "/api/checkout/patient-1", nil)
		return status["state"] == string(StateSucceeded)
	}, 2*time.Second, 10*time.Millisecond)

	_, status := api.do(t, http.MethodGet, "/api/checkout/patient-1", nil)
	assert.Equal(t, sessionID, status["session_id"])
	assert.NotEmpty(t, status["appointment_id"])
	require.Len(t, api.repo.Payments(), 1)
	assert.Equal(t, 550.0, api.repo.Payments()[0].Amount)

	_, stats := api.do(t, http.MethodGet, "/api/checkout/stats", nil)
	assert.EqualValues(t, 1, stats["succeeded"])
}

func TestHandlerStageValidation(t *testing.T) {
	api := newAPIHarness(t)

	bad := sampleBooking()
	bad.PatientID = ""
	resp, _ := api.do(t, http.MethodPost, "/api/checkout", map[string]any{"scope": "patient-1", "booking": bad})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, _ = api.do(t, http.MethodPost, "/api/checkout", map[string]any{"booking": sampleBooking()})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	req, _ := http.NewRequest(http.MethodPost, api.server.URL+"/api/checkout", bytes.NewBufferString("{"))
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

func TestHandlerCancelAndUnknownScope(t *testing.T) {
	api := newAPIHarness(t)

	resp, _ := api.do(t, http.MethodGet, "/api/checkout/ghost", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp, _ = api.do(t, http.MethodPost, "/api/checkout", map[string]any{"scope": "patient-1", "booking": sampleBooking()})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp, body := api.do(t, http.MethodPost, "/api/checkout/patient-1/cancel", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, string(StateCancelled), body["state"])

	resp, _ = api.do(t, http.MethodPost, "/api/checkout/patient-1/cancel", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp, _ = api.do(t, http.MethodPost, "/api/checkout/patient-1/retry", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestHandlerRetryAfterUnpaidReturn(t *testing.T) {
	api := newAPIHarness(t)

	_, body := api.do(t, http.MethodPost, "/api/checkout", map[string]any{"scope": "patient-1", "booking": sampleBooking()})
	sessionID := body["session_id"].(string)

	resp, _ := api.do(t, http.MethodGet, "/api/checkout/patient-1/return?session_id="+sessionID, nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	require.Eventually(t, func() bool {
		_, status := api.do(t, http.MethodGet, "/api/checkout/patient-1", nil)
		return status["state"] == string(StateFailed)
	}, 2*time.Second, 10*time.Millisecond)

	_, status := api.do(t, http.MethodGet, "/api/checkout/patient-1", nil)
	assert.Equal(t, string(FailureVerificationTimeout), status["failure_kind"])
	assert.NotNil(t, status["booking"])

	require.NoError(t, api.gateway.MarkPaid(sessionID, "card"))
	resp, _ = api.do(t, http.MethodPost, "/api/checkout/patient-1/retry", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		_, status := api.do(t, http.MethodGet, "/api/checkout/patient-1", nil)
		return status["state"] == string(StateSucceeded)
	}, 2*time.Second, 10*time.Millisecond)
}
