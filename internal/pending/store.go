package pending

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Key names one of the two entries a pending checkout keeps.
type Key string

const (
	KeyBookingData Key = "pending_booking_data"
	KeySessionID   Key = "checkout_session_id"
)

// ErrNotFound indicates the key has no stored value.
var ErrNotFound = errors.New("pending: key not found")

// Store is a durable key/value store scoped to one patient's checkout.
type Store interface {
	Put(ctx context.Context, key Key, value string) error
	// Get returns ErrNotFound when the key is absent.
	Get(ctx context.Context, key Key) (string, error)
	Remove(ctx context.Context, key Key) error
}

// Provider hands out the Store for a scope (patient or device key).
type Provider interface {
	For(scope string) Store
}

func validKey(key Key) error {
	switch key {
	case KeyBookingData, KeySessionID:
		return nil
	default:
		return fmt.Errorf("pending: unknown key %q", key)
	}
}

// SaveBooking serialises b under KeyBookingData.
func SaveBooking(ctx context.Context, s Store, b Booking) error {
	data, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("pending: marshal booking: %w", err)
	}
	return s.Put(ctx, KeyBookingData, string(data))
}

// LoadBooking returns the stored booking or ErrNotFound.
func LoadBooking(ctx context.Context, s Store) (Booking, error) {
	raw, err := s.Get(ctx, KeyBookingData)
	if err != nil {
		return Booking{}, err
	}
	var b Booking
	if err := json.Unmarshal([]byte(raw), &b); err != nil {
		return Booking{}, fmt.Errorf("pending: decode booking: %w", err)
	}
	return b, nil
}

// SaveSessionID stores the checkout session id.
func SaveSessionID(ctx context.Context, s Store, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return errors.New("pending: session id required")
	}
	return s.Put(ctx, KeySessionID, sessionID)
}

// LoadSessionID returns the stored session id or ErrNotFound.
func LoadSessionID(ctx context.Context, s Store) (string, error) {
	id, err := s.Get(ctx, KeySessionID)
	if err != nil {
		return "", err
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return "", ErrNotFound
	}
	return id, nil
}

// Clear removes both entries. Both removals are attempted.
func Clear(ctx context.Context, s Store) error {
	errBooking := s.Remove(ctx, KeyBookingData)
	errSession := s.Remove(ctx, KeySessionID)
	return errors.Join(errBooking, errSession)
}
