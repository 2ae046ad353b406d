package checkout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-checkout/internal/bookings"
	"github.com/wolfman30/clinic-checkout/internal/payments"
	"github.com/wolfman30/clinic-checkout/internal/pending"
	"github.com/wolfman30/clinic-checkout/internal/retry"
)

// pollGateway reports unpaid until paidOnCall, then paid. paidOnCall <= 0 never pays.
type pollGateway struct {
	mu         sync.Mutex
	paidOnCall int
	err        error
	calls      int
	block      chan struct{}
}

func (g *pollGateway) GetCheckoutSession(ctx context.Context, sessionID string) (*payments.CheckoutSession, error) {
	if g.block != nil {
		select {
		case <-g.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return nil, g.err
	}
	if g.paidOnCall > 0 && g.calls >= g.paidOnCall {
		return &payments.CheckoutSession{ID: sessionID, Status: payments.StatusPaid, PaymentIntentID: "pi_1", PaymentMethod: "gcash"}, nil
	}
	return &payments.CheckoutSession{ID: sessionID, Status: payments.StatusUnpaid}, nil
}

func (g *pollGateway) Calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

func sampleBooking() pending.Booking {
	return pending.Booking{
		PatientID:       "P1",
		ClinicID:        "C9",
		AppointmentDate: "2026-11-02",
		AppointmentTime: "10:30",
		AppointmentType: "consultation",
		ConsultationFee: 500,
		BookingFee:      50,
		TotalAmount:     550,
	}
}

type harness struct {
	stores    *pending.MemoryProvider
	repo      *bookings.MemoryRepository
	gateway   *pollGateway
	clock     *retry.RecordingClock
	verifier  *payments.Verifier
	finalizer *bookings.Finalizer
}

func newHarness(t *testing.T, gw *pollGateway) *harness {
	t.Helper()
	clock := retry.NewRecordingClock(time.Unix(0, 0))
	repo := bookings.NewMemoryRepository()
	return &harness{
		stores:    pending.NewMemoryProvider(),
		repo:      repo,
		gateway:   gw,
		clock:     clock,
		verifier:  payments.NewVerifier(gw, nil).WithClock(clock),
		finalizer: bookings.NewFinalizer(repo, nil),
	}
}

func (h *harness) stage(t *testing.T, scope, sessionID string) pending.Store {
	t.Helper()
	store := h.stores.For(scope)
	require.NoError(t, pending.SaveBooking(context.Background(), store, sampleBooking()))
	require.NoError(t, pending.SaveSessionID(context.Background(), store, sessionID))
	return store
}

func (h *harness) flow(scope string) *Flow {
	return NewFlow(scope, h.stores.For(scope), h.verifier, h.finalizer, nil)
}

type recordingObserver struct {
	mu          sync.Mutex
	transitions []TransitionEvent
}

func (r *recordingObserver) OnTransition(_ context.Context, t TransitionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transitions = append(r.transitions, t)
}

func (r *recordingObserver) path() []StateName {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := []StateName{}
	if len(r.transitions) > 0 {
		out = append(out, r.transitions[0].From.Name())
	}
	for _, t := range r.transitions {
		out = append(out, t.To.Name())
	}
	return out
}

type failingFinalizer struct{ err error }

func (f failingFinalizer) Finalize(context.Context, bookings.FinalizeRequest) (string, error) {
	return "", f.err
}

var errBoom = errors.New("boom")
