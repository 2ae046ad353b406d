package payments

import (
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/wolfman30/clinic-checkout/pkg/logging"
)

// FakeCheckoutHandler serves the demo checkout pages for FakeGateway.
// Only mount this handler when ALLOW_FAKE_PAYMENTS=true.
type FakeCheckoutHandler struct {
	gateway *FakeGateway
	logger  *logging.Logger
}

func NewFakeCheckoutHandler(gateway *FakeGateway, logger *logging.Logger) *FakeCheckoutHandler {
	if logger == nil {
		logger = logging.Default()
	}
	return &FakeCheckoutHandler{gateway: gateway, logger: logger}
}

func (h *FakeCheckoutHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/checkout/{sessionID}", h.HandleCheckout)
	r.Post("/checkout/{sessionID}/complete", h.HandleComplete)
	r.Post("/checkout/{sessionID}/cancel", h.HandleCancel)
	r.Get("/checkout/{sessionID}/done", h.HandleDone)
	return r
}

func (h *FakeCheckoutHandler) HandleCheckout(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	s, ok := h.gateway.lookup(sessionID)
	if !ok {
		http.Error(w, "checkout session not found", http.StatusNotFound)
		return
	}
	id := html.EscapeString(sessionID)
	currency := s.currency
	if currency == "" {
		currency = "PHP"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprintf(w, `<!doctype html>
<html>
  <head>
    <meta charset="utf-8" />
    <meta name="viewport" content="width=device-width, initial-scale=1" />
    <title>Demo Checkout</title>
    <style>
      body{font-family:system-ui,-apple-system,Segoe UI,Roboto,Ubuntu,Cantarell,Noto Sans,sans-serif;max-width:680px;margin:40px auto;padding:0 16px;}
      .card{border:1px solid #e5e7eb;border-radius:12px;padding:18px;}
      .btn{display:inline-block;background:#111827;color:#fff;padding:12px 16px;border-radius:10px;border:0;cursor:pointer;}
      .muted{color:#6b7280;font-size:14px;}
    </style>
  </head>
  <body>
    <h1>Demo Checkout</h1>
    <div class="card">
      <p><strong>Amount:</strong> %s %.2f</p>
      <p class="muted">This is a demo-only payment page (no real payment is processed).</p>
      <form method="POST" action="/demo/checkout/%s/complete"><button class="btn" type="submit">Pay</button></form>
      <form method="POST" action="/demo/checkout/%s/cancel"><button type="submit">Cancel</button></form>
      <p class="muted">Session: <code>%s</code></p>
    </div>
  </body>
</html>`, html.EscapeString(currency), s.amount, id, id, id)
}

func (h *FakeCheckoutHandler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	if err := h.gateway.MarkPaid(sessionID, r.FormValue("method")); err != nil {
		h.logger.Warn("fake checkout completion failed", "error", err, "session_id", sessionID)
		http.Error(w, "checkout session not found", http.StatusNotFound)
		return
	}
	s, _ := h.gateway.lookup(sessionID)
	target := s.successURL
	if target == "" {
		target = fmt.Sprintf("/demo/checkout/%s/done", sessionID)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *FakeCheckoutHandler) HandleCancel(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionID"))
	s, ok := h.gateway.lookup(sessionID)
	if !ok {
		http.Error(w, "checkout session not found", http.StatusNotFound)
		return
	}
	target := s.cancelURL
	if target == "" {
		target = fmt.Sprintf("/demo/checkout/%s", sessionID)
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *FakeCheckoutHandler) HandleDone(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmt.Fprint(w, `<!doctype html><html><body><h1>Payment received</h1><p>You can close this tab.</p></body></html>`)
}
