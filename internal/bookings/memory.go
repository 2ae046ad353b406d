package bookings

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryRepository is an in-process API with the same uniqueness rules as
// the Postgres schema. Used in tests and single-process dev runs.
type MemoryRepository struct {
	mu           sync.Mutex
	appointments map[string]*Appointment // by id
	bySession    map[string]string
	payments     map[string]*PaymentRecord // by appointment id
	now          func() time.Time

	// FailPayment, when set, makes CreatePayment fail with the returned error.
	FailPayment func(NewPayment) error
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		appointments: make(map[string]*Appointment),
		bySession:    make(map[string]string),
		payments:     make(map[string]*PaymentRecord),
		now:          time.Now,
	}
}

var _ API = (*MemoryRepository)(nil)

func (m *MemoryRepository) FindAppointmentBySession(_ context.Context, sessionID string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.bySession[sessionID]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	out := *m.appointments[id]
	return &out, nil
}

func (m *MemoryRepository) CreateAppointment(_ context.Context, in NewAppointment) (*Appointment, error) {
	if strings.TrimSpace(in.SessionID) == "" {
		return nil, errors.New("bookings: session id required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.bySession[in.SessionID]; exists {
		return nil, ErrDuplicateSession
	}
	a := &Appointment{
		ID:              uuid.New().String(),
		SessionID:       in.SessionID,
		PatientID:       in.PatientID,
		ClinicID:        in.ClinicID,
		AppointmentDate: in.AppointmentDate,
		AppointmentTime: in.AppointmentTime,
		AppointmentType: in.AppointmentType,
		PatientNotes:    in.PatientNotes,
		Duration:        in.Duration,
		Status:          AppointmentStatusConfirmed,
		CreatedAt:       m.now().UTC(),
	}
	m.appointments[a.ID] = a
	m.bySession[a.SessionID] = a.ID
	out := *a
	return &out, nil
}

func (m *MemoryRepository) CreatePayment(_ context.Context, in NewPayment) (*PaymentRecord, error) {
	if m.FailPayment != nil {
		if err := m.FailPayment(in); err != nil {
			return nil, err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.appointments[in.AppointmentID]; !ok {
		return nil, ErrUnknownAppointment
	}
	if _, exists := m.payments[in.AppointmentID]; exists {
		return nil, ErrDuplicatePayment
	}
	now := m.now()
	p := &PaymentRecord{
		ID:                uuid.New().String(),
		AppointmentID:     in.AppointmentID,
		TransactionNumber: newTransactionNumber(now),
		PaymentMethod:     in.PaymentMethod,
		PaymentIntentID:   in.PaymentIntentID,
		Amount:            in.Amount,
		Status:            PaymentStatusPaid,
		CreatedAt:         now.UTC(),
	}
	m.payments[in.AppointmentID] = p
	out := *p
	return &out, nil
}

func (m *MemoryRepository) FindPaymentByAppointment(_ context.Context, appointmentID string) (*PaymentRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.payments[appointmentID]
	if !ok {
		return nil, ErrPaymentNotFound
	}
	out := *p
	return &out, nil
}

// Appointments returns a snapshot of every stored appointment.
func (m *MemoryRepository) Appointments() []Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Appointment, 0, len(m.appointments))
	for _, a := range m.appointments {
		out = append(out, *a)
	}
	return out
}

// Payments returns a snapshot of every stored payment record.
func (m *MemoryRepository) Payments() []PaymentRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PaymentRecord, 0, len(m.payments))
	for _, p := range m.payments {
		out = append(out, *p)
	}
	return out
}
