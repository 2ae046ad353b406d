package pending

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleBooking() Booking {
	return Booking{
		PatientID:       "P1",
		ClinicID:        "C9",
		AppointmentDate: "2026-11-02",
		AppointmentTime: "10:30",
		AppointmentType: "consultation",
		ConsultationFee: 500,
		BookingFee:      50,
		TotalAmount:     550,
		Duration:        30,
	}
}

func TestBookingRoundTripThroughMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, SaveBooking(ctx, store, sampleBooking()))
	require.NoError(t, SaveSessionID(ctx, store, " cs_123 "))

	got, err := LoadBooking(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, sampleBooking(), got)

	id, err := LoadSessionID(ctx, store)
	require.NoError(t, err)
	assert.Equal(t, "cs_123", id)

	raw, err := store.Get(ctx, KeyBookingData)
	require.NoError(t, err)
	assert.Contains(t, raw, `"patient_id":"P1"`)
	assert.Contains(t, raw, `"total_amount":550`)
}

func TestClearRemovesBothKeys(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, SaveBooking(ctx, store, sampleBooking()))
	require.NoError(t, SaveSessionID(ctx, store, "cs_1"))

	require.NoError(t, Clear(ctx, store))

	_, err := LoadBooking(ctx, store)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = LoadSessionID(ctx, store)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryProviderIsolatesScopes(t *testing.T) {
	ctx := context.Background()
	provider := NewMemoryProvider()
	require.NoError(t, SaveSessionID(ctx, provider.For("a"), "cs_a"))

	_, err := LoadSessionID(ctx, provider.For("b"))
	assert.ErrorIs(t, err, ErrNotFound)

	id, err := LoadSessionID(ctx, provider.For("a"))
	require.NoError(t, err)
	assert.Equal(t, "cs_a", id)
}

func TestStoreRejectsUnknownKey(t *testing.T) {
	err := NewMemoryStore().Put(context.Background(), Key("other"), "x")
	require.Error(t, err)
}

func TestSaveSessionIDRequiresValue(t *testing.T) {
	require.Error(t, SaveSessionID(context.Background(), NewMemoryStore(), "  "))
}

func TestLoadBookingCorruptPayload(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	require.NoError(t, store.Put(ctx, KeyBookingData, "{not json"))
	_, err := LoadBooking(ctx, store)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestBookingValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Booking)
		wantErr bool
	}{
		{"valid", func(b *Booking) {}, false},
		{"missing patient", func(b *Booking) { b.PatientID = "" }, true},
		{"missing time", func(b *Booking) { b.AppointmentTime = " " }, true},
		{"negative fee", func(b *Booking) { b.BookingFee = -1 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b := sampleBooking()
			tt.mutate(&b)
			err := b.Validate()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidBooking)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestWithComputedTotal(t *testing.T) {
	b := Booking{ConsultationFee: 500, BookingFee: 50}
	assert.Equal(t, 550.0, b.WithComputedTotal().TotalAmount)

	b.TotalAmount = 600
	assert.Equal(t, 600.0, b.WithComputedTotal().TotalAmount)
}
