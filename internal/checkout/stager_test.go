package checkout

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/clinic-checkout/internal/payments"
	"github.com/wolfman30/clinic-checkout/internal/pending"
)

type capturingCreator struct {
	req payments.CheckoutRequest
	err error
}

func (c *capturingCreator) CreateCheckoutSession(_ context.Context, req payments.CheckoutRequest) (*payments.CheckoutSession, error) {
	c.req = req
	if c.err != nil {
		return nil, c.err
	}
	return &payments.CheckoutSession{ID: "cs_staged", CheckoutURL: "https://pay.example/cs_staged", Status: payments.StatusUnpaid}, nil
}

func TestStageWritesBookingAndSession(t *testing.T) {
	creator := &capturingCreator{}
	stores := pending.NewMemoryProvider()
	stager := NewStager(creator, stores, "https://clinic.example/", nil)

	b := sampleBooking()
	b.TotalAmount = 0
	session, err := stager.Stage(context.Background(), "patient-1", b, StageOptions{})
	require.NoError(t, err)
	assert.Equal(t, "cs_staged", session.ID)

	assert.Equal(t, 550.0, creator.req.Amount)
	assert.Equal(t, "https://clinic.example/api/checkout/patient-1/return", creator.req.SuccessURL)
	assert.Equal(t, "https://clinic.example/api/checkout/patient-1/cancel", creator.req.CancelURL)
	assert.Contains(t, creator.req.Description, "2026-11-02")

	store := stores.For("patient-1")
	staged, err := pending.LoadBooking(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, 550.0, staged.TotalAmount)
	id, err := pending.LoadSessionID(context.Background(), store)
	require.NoError(t, err)
	assert.Equal(t, "cs_staged", id)
}

func TestStageCustomReturnURLs(t *testing.T) {
	creator := &capturingCreator{}
	stager := NewStager(creator, pending.NewMemoryProvider(), "", nil)

	_, err := stager.Stage(context.Background(), "device 7", sampleBooking(), StageOptions{
		SuccessURL: "clinicapp://checkout/{scope}/done",
	})
	require.NoError(t, err)
	assert.Equal(t, "clinicapp://checkout/device%207/done", creator.req.SuccessURL)
	assert.Empty(t, creator.req.CancelURL)
}

func TestStageDefaultsFillEmptyOptions(t *testing.T) {
	creator := &capturingCreator{}
	stager := NewStager(creator, pending.NewMemoryProvider(), "https://clinic.example", nil).WithDefaults(StageOptions{
		CancelURL:      "https://app.example/checkout/{scope}/cancelled",
		Currency:       "PHP",
		PaymentMethods: []string{"card", "gcash"},
	})

	_, err := stager.Stage(context.Background(), "patient-2", sampleBooking(), StageOptions{PaymentMethods: []string{"paymaya"}})
	require.NoError(t, err)
	assert.Equal(t, "https://clinic.example/api/checkout/patient-2/return", creator.req.SuccessURL)
	assert.Equal(t, "https://app.example/checkout/patient-2/cancelled", creator.req.CancelURL)
	assert.Equal(t, "PHP", creator.req.Currency)
	assert.Equal(t, []string{"paymaya"}, creator.req.PaymentMethods)
}

func TestStageRejectsInvalidInput(t *testing.T) {
	creator := &capturingCreator{}
	stores := pending.NewMemoryProvider()
	stager := NewStager(creator, stores, "https://clinic.example", nil)

	_, err := stager.Stage(context.Background(), " ", sampleBooking(), StageOptions{})
	assert.ErrorIs(t, err, ErrInvalidScope)
	_, err = stager.Stage(context.Background(), "a/b", sampleBooking(), StageOptions{})
	assert.ErrorIs(t, err, ErrInvalidScope)

	bad := sampleBooking()
	bad.ClinicID = ""
	_, err = stager.Stage(context.Background(), "patient-1", bad, StageOptions{})
	assert.ErrorIs(t, err, pending.ErrInvalidBooking)

	free := sampleBooking()
	free.ConsultationFee, free.BookingFee, free.TotalAmount = 0, 0, 0
	_, err = stager.Stage(context.Background(), "patient-1", free, StageOptions{})
	assert.ErrorIs(t, err, pending.ErrInvalidBooking)

	_, err = pending.LoadBooking(context.Background(), stores.For("patient-1"))
	assert.ErrorIs(t, err, pending.ErrNotFound)
}

func TestStageGatewayFailureWritesNothing(t *testing.T) {
	creator := &capturingCreator{err: errors.New("paymongo unavailable")}
	stores := pending.NewMemoryProvider()
	stager := NewStager(creator, stores, "https://clinic.example", nil)

	_, err := stager.Stage(context.Background(), "patient-1", sampleBooking(), StageOptions{})
	require.Error(t, err)

	_, err = pending.LoadBooking(context.Background(), stores.For("patient-1"))
	assert.ErrorIs(t, err, pending.ErrNotFound)
}
