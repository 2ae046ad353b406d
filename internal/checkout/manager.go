package checkout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/clinic-checkout/internal/pending"
	"github.com/wolfman30/clinic-checkout/pkg/logging"
)

// ErrFlowBusy is returned when a scope's flow is verifying or finalizing.
var ErrFlowBusy = errors.New("checkout: a checkout for this scope is already in progress")

const defaultFlowTimeout = 3 * time.Minute

// Manager keeps one flow per scope and runs verification in the background.
type Manager struct {
	stores    pending.Provider
	verifier  verifier
	finalizer finalizer
	observers []Observer
	timeout   time.Duration
	logger    *logging.Logger

	baseCtx context.Context
	stop    context.CancelFunc
	wg      sync.WaitGroup

	mu    sync.Mutex
	flows map[string]*Flow
}

func NewManager(stores pending.Provider, v verifier, f finalizer, logger *logging.Logger) *Manager {
	if stores == nil || v == nil || f == nil {
		panic("checkout: manager requires stores, a verifier and a finalizer")
	}
	if logger == nil {
		logger = logging.Default()
	}
	ctx, stop := context.WithCancel(context.Background())
	return &Manager{
		stores:    stores,
		verifier:  v,
		finalizer: f,
		timeout:   defaultFlowTimeout,
		logger:    logger,
		baseCtx:   ctx,
		stop:      stop,
		flows:     make(map[string]*Flow),
	}
}

func (m *Manager) WithObservers(observers ...Observer) *Manager {
	m.observers = append(m.observers, observers...)
	return m
}

// WithFlowTimeout bounds each background verification and finalization run.
func (m *Manager) WithFlowTimeout(d time.Duration) *Manager {
	if d > 0 {
		m.timeout = d
	}
	return m
}

func (m *Manager) newFlow(scope string) *Flow {
	return NewFlow(scope, m.stores.For(scope), m.verifier, m.finalizer, m.logger).WithObservers(m.observers...)
}

// Busy reports whether the scope has a flow in Verifying or Finalizing.
func (m *Manager) Busy(scope string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return isBusy(m.flows[scope])
}

func isBusy(f *Flow) bool {
	if f == nil {
		return false
	}
	switch f.State().(type) {
	case Verifying, Finalizing:
		return true
	default:
		return false
	}
}

// Begin replaces the scope's flow with a fresh one for a just-staged session
// and resolves it to AwaitingPayment.
func (m *Manager) Begin(ctx context.Context, scope, sessionID, checkoutURL string) (State, error) {
	m.mu.Lock()
	if isBusy(m.flows[scope]) {
		m.mu.Unlock()
		return nil, ErrFlowBusy
	}
	flow := m.newFlow(scope)
	m.flows[scope] = flow
	m.mu.Unlock()

	return flow.Start(ctx, checkoutURL, sessionID)
}

// Complete handles the hosted checkout's return signal. It starts or resumes
// the scope's flow and launches verification in the background. Repeated
// signals for a flow that is already verifying, finalizing or succeeded
// return the current state.
func (m *Manager) Complete(ctx context.Context, scope, explicitURL, explicitSessionID string) (State, error) {
	flow := m.flowForReturn(scope, explicitURL, explicitSessionID)

	if _, ok := flow.State().(Init); ok {
		if _, err := flow.Start(ctx, explicitURL, explicitSessionID); err != nil && !errors.Is(err, ErrInvalidTransition) {
			return flow.State(), err
		}
	}
	if _, ok := flow.State().(AwaitingPayment); !ok {
		return flow.State(), nil
	}
	return m.launch(flow)
}

func (m *Manager) flowForReturn(scope, explicitURL, explicitSessionID string) *Flow {
	m.mu.Lock()
	defer m.mu.Unlock()

	flow := m.flows[scope]
	if flow != nil && !needsFreshFlow(flow.State(), explicitURL, explicitSessionID) {
		return flow
	}
	flow = m.newFlow(scope)
	m.flows[scope] = flow
	return flow
}

func needsFreshFlow(st State, explicitURL, explicitSessionID string) bool {
	requested := explicitSessionID
	if requested == "" && explicitURL != "" {
		requested = SessionIDFromURL(explicitURL)
	}
	switch st.(type) {
	case Failed, Cancelled:
		return true
	case Succeeded, AwaitingPayment:
		return requested != "" && requested != SessionIDOf(st)
	default:
		return false
	}
}

func (m *Manager) launch(flow *Flow) (State, error) {
	ctx, cancel := context.WithTimeout(m.baseCtx, m.timeout)
	vctx, err := flow.beginVerification(ctx)
	if err != nil {
		cancel()
		if errors.Is(err, ErrInvalidTransition) {
			return flow.State(), nil
		}
		return flow.State(), err
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer cancel()
		st := flow.verifyAndFinalize(ctx, vctx)
		m.logger.Info("checkout flow settled", "scope", flow.Scope(), "state", st.Name(), "session_id", SessionIDOf(st))
	}()
	return flow.State(), nil
}

// Status returns the scope's current state.
func (m *Manager) Status(scope string) (State, error) {
	m.mu.Lock()
	flow := m.flows[scope]
	m.mu.Unlock()
	if flow == nil {
		return nil, ErrUnknownFlow
	}
	return flow.State(), nil
}

// Cancel cancels the scope's flow.
func (m *Manager) Cancel(ctx context.Context, scope string) (State, error) {
	m.mu.Lock()
	flow := m.flows[scope]
	m.mu.Unlock()
	if flow == nil {
		return nil, ErrUnknownFlow
	}
	return flow.Cancel(ctx)
}

// Retry re-resolves a failed flow. When the return signal had already been
// received, verification is relaunched as well.
func (m *Manager) Retry(ctx context.Context, scope string) (State, error) {
	m.mu.Lock()
	flow := m.flows[scope]
	m.mu.Unlock()
	if flow == nil {
		return nil, ErrUnknownFlow
	}

	st, err := flow.Retry(ctx)
	if err != nil {
		return st, err
	}
	if _, ok := st.(AwaitingPayment); ok && flow.CompletionSeen() {
		return m.launch(flow)
	}
	return st, nil
}

// Shutdown cancels background runs and waits for them to settle.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.stop()
	done := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("checkout: shutdown: %w", ctx.Err())
	}
}
