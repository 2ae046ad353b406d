package checkout

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-checkout/internal/events"
	"github.com/wolfman30/clinic-checkout/internal/observability/metrics"
)

type outboxRecord struct {
	scope     string
	eventType string
	payload   []byte
}

type memoryOutbox struct {
	mu      sync.Mutex
	records []outboxRecord
}

func (o *memoryOutbox) Insert(_ context.Context, scope, eventType string, payload any) (uuid.UUID, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, err
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, outboxRecord{scope: scope, eventType: eventType, payload: data})
	return uuid.New(), nil
}

func TestOutboxObserverRecordsConfirmedBooking(t *testing.T) {
	h := newHarness(t, &pollGateway{paidOnCall: 1})
	h.stage(t, "patient-1", "cs_123")
	outbox := &memoryOutbox{}
	flow := h.flow("patient-1").WithObservers(NewOutboxObserver(outbox, nil))

	_, err := flow.Run(context.Background(), "", "")
	require.NoError(t, err)

	require.Len(t, outbox.records, 1)
	rec := outbox.records[0]
	assert.Equal(t, events.TypeBookingConfirmed, rec.eventType)
	assert.Equal(t, "patient-1", rec.scope)

	var evt events.BookingConfirmedV1
	require.NoError(t, json.Unmarshal(rec.payload, &evt))
	assert.Equal(t, "cs_123", evt.SessionID)
	assert.Equal(t, "P1", evt.PatientID)
	assert.Equal(t, 550.0, evt.Amount)
	assert.Equal(t, "gcash", evt.PaymentMethod)
	assert.NotEmpty(t, evt.AppointmentID)
}

func TestOutboxObserverRecordsFailureWithRetainedBooking(t *testing.T) {
	h := newHarness(t, &pollGateway{})
	h.stage(t, "patient-1", "cs_123")
	outbox := &memoryOutbox{}
	flow := h.flow("patient-1").WithObservers(NewOutboxObserver(outbox, nil))

	_, err := flow.Run(context.Background(), "", "")
	require.NoError(t, err)

	require.Len(t, outbox.records, 1)
	var evt events.BookingFailedV1
	require.NoError(t, json.Unmarshal(outbox.records[0].payload, &evt))
	assert.Equal(t, events.TypeBookingFailed, outbox.records[0].eventType)
	assert.Equal(t, string(FailureVerificationTimeout), evt.Kind)
	assert.Equal(t, "P1", evt.PatientID)
	assert.Equal(t, "cs_123", evt.SessionID)
}

func TestOutboxObserverRecordsCancellation(t *testing.T) {
	h := newHarness(t, &pollGateway{})
	h.stage(t, "patient-1", "cs_123")
	outbox := &memoryOutbox{}
	flow := h.flow("patient-1").WithObservers(NewOutboxObserver(outbox, nil))

	_, err := flow.Start(context.Background(), "", "")
	require.NoError(t, err)
	_, err = flow.Cancel(context.Background())
	require.NoError(t, err)

	require.Len(t, outbox.records, 1)
	assert.Equal(t, events.TypeBookingCancelled, outbox.records[0].eventType)
}

func TestMetricsObserverCountsTerminalStates(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewCheckoutMetrics(reg)

	h := newHarness(t, &pollGateway{})
	h.stage(t, "patient-1", "cs_123")
	flow := h.flow("patient-1").WithObservers(MetricsObserver(m))
	_, err := flow.Run(context.Background(), "", "")
	require.NoError(t, err)

	snap := metrics.TakeSnapshot(reg)
	assert.Equal(t, int64(1), snap.Failed)
	assert.Equal(t, int64(1), snap.FailedByReason[string(FailureVerificationTimeout)])
	assert.Zero(t, snap.Succeeded)
}
