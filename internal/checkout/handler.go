package checkout

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/wolfman30/clinic-checkout/internal/observability/metrics"
	"github.com/wolfman30/clinic-checkout/internal/pending"
	"github.com/wolfman30/clinic-checkout/pkg/logging"
)

// View is the JSON shape of a flow's state.
type View struct {
	Scope         string           `json:"scope"`
	State         StateName        `json:"state"`
	SessionID     string           `json:"session_id,omitempty"`
	CheckoutURL   string           `json:"checkout_url,omitempty"`
	AppointmentID string           `json:"appointment_id,omitempty"`
	FailureKind   FailureKind      `json:"failure_kind,omitempty"`
	Message       string           `json:"message,omitempty"`
	Booking       *pending.Booking `json:"booking,omitempty"`
}

// Describe renders st for API responses.
func Describe(scope string, st State) View {
	v := View{Scope: scope, State: st.Name(), SessionID: SessionIDOf(st)}
	switch s := st.(type) {
	case AwaitingPayment:
		v.CheckoutURL = s.Session.CheckoutURL
	case Verifying:
		v.CheckoutURL = s.Session.CheckoutURL
	case Succeeded:
		v.AppointmentID = s.AppointmentID
		v.Message = "Your appointment is confirmed."
	case Failed:
		v.FailureKind = s.Kind
		v.Message = s.Message
		v.AppointmentID = s.AppointmentID
		v.Booking = s.Booking
	case Cancelled:
		v.Message = "Checkout was cancelled."
	}
	return v
}

type stageRequest struct {
	Scope          string          `json:"scope"`
	Booking        pending.Booking `json:"booking"`
	Description    string          `json:"description,omitempty"`
	SuccessURL     string          `json:"success_url,omitempty"`
	CancelURL      string          `json:"cancel_url,omitempty"`
	PaymentMethods []string        `json:"payment_methods,omitempty"`
}

type stageResponse struct {
	SessionID   string    `json:"session_id"`
	CheckoutURL string    `json:"checkout_url"`
	State       StateName `json:"state"`
}

// Handler exposes checkout flows over HTTP.
type Handler struct {
	stager   *Stager
	manager  *Manager
	gatherer prometheus.Gatherer
	stageMW  []func(http.Handler) http.Handler
	logger   *logging.Logger
}

func NewHandler(stager *Stager, manager *Manager, logger *logging.Logger) *Handler {
	if stager == nil || manager == nil {
		panic("checkout: handler requires a stager and a manager")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Handler{stager: stager, manager: manager, logger: logger}
}

// WithGatherer sets where the stats endpoint reads metrics from.
func (h *Handler) WithGatherer(g prometheus.Gatherer) *Handler {
	h.gatherer = g
	return h
}

// WithStageMiddleware wraps only the staging endpoint, e.g. with a rate limiter.
func (h *Handler) WithStageMiddleware(mw ...func(http.Handler) http.Handler) *Handler {
	h.stageMW = append(h.stageMW, mw...)
	return h
}

// Routes mounts under /api/checkout.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.With(h.stageMW...).Post("/", h.HandleStage)
	r.Get("/stats", h.HandleStats)
	r.Get("/{scope}", h.HandleStatus)
	r.Get("/{scope}/return", h.HandleReturn)
	r.Get("/{scope}/cancel", h.HandleCancel)
	r.Post("/{scope}/cancel", h.HandleCancel)
	r.Post("/{scope}/retry", h.HandleRetry)
	return r
}

func (h *Handler) HandleStage(w http.ResponseWriter, r *http.Request) {
	var req stageRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	scope := strings.TrimSpace(req.Scope)
	if h.manager.Busy(scope) {
		jsonError(w, http.StatusConflict, ErrFlowBusy.Error())
		return
	}

	session, err := h.stager.Stage(r.Context(), scope, req.Booking, StageOptions{
		Description:    req.Description,
		SuccessURL:     req.SuccessURL,
		CancelURL:      req.CancelURL,
		PaymentMethods: req.PaymentMethods,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidScope), errors.Is(err, pending.ErrInvalidBooking):
			jsonError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.Error("checkout staging failed", "error", err, "scope", scope)
			jsonError(w, http.StatusBadGateway, "could not create checkout session")
		}
		return
	}

	st, err := h.manager.Begin(r.Context(), scope, session.ID, session.CheckoutURL)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrFlowBusy) {
			status = http.StatusConflict
		}
		jsonError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, stageResponse{
		SessionID:   session.ID,
		CheckoutURL: session.CheckoutURL,
		State:       st.Name(),
	})
}

// HandleReturn is the hosted checkout's success redirect target.
func (h *Handler) HandleReturn(w http.ResponseWriter, r *http.Request) {
	scope := chi.URLParam(r, "scope")
	q := r.URL.Query()
	sessionID := strings.TrimSpace(q.Get("session_id"))
	if sessionID == "" {
		sessionID = strings.TrimSpace(q.Get("checkout_session_id"))
	}

	st, err := h.manager.Complete(r.Context(), scope, strings.TrimSpace(q.Get("checkout_url")), sessionID)
	if err != nil {
		h.logger.Error("checkout return failed", "error", err, "scope", scope)
		jsonError(w, http.StatusInternalServerError, "could not resume checkout")
		return
	}
	writeJSON(w, http.StatusAccepted, Describe(scope, st))
}

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	scope := chi.URLParam(r, "scope")
	st, err := h.manager.Status(scope)
	if err != nil {
		h.writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Describe(scope, st))
}

func (h *Handler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	scope := chi.URLParam(r, "scope")
	st, err := h.manager.Cancel(r.Context(), scope)
	if err != nil {
		h.writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, Describe(scope, st))
}

func (h *Handler) HandleRetry(w http.ResponseWriter, r *http.Request) {
	scope := chi.URLParam(r, "scope")
	st, err := h.manager.Retry(r.Context(), scope)
	if err != nil {
		h.writeFlowError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, Describe(scope, st))
}

// HandleStats summarizes checkout outcomes since process start.
func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, metrics.TakeSnapshot(h.gatherer))
}

func (h *Handler) writeFlowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrUnknownFlow):
		jsonError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrNoPendingBooking):
		jsonError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("checkout request failed", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func jsonError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
