package bookings

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrAppointmentNotFound indicates no appointment exists for the lookup key.
	ErrAppointmentNotFound = errors.New("bookings: appointment not found")
	// ErrPaymentNotFound indicates the appointment has no payment record.
	ErrPaymentNotFound = errors.New("bookings: payment record not found")
	// ErrDuplicateSession is returned when an appointment already exists for the session id.
	ErrDuplicateSession = errors.New("bookings: appointment already exists for session")
	// ErrDuplicatePayment is returned when the appointment already has a payment record.
	ErrDuplicatePayment = errors.New("bookings: payment already recorded for appointment")
	// ErrUnknownAppointment is returned when a payment references a missing appointment.
	ErrUnknownAppointment = errors.New("bookings: payment references unknown appointment")
)

const (
	AppointmentStatusConfirmed = "confirmed"
	PaymentStatusPaid          = "paid"
)

// Appointment is a persisted booking. SessionID is unique across appointments.
type Appointment struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	PatientID       string    `json:"patient_id"`
	ClinicID        string    `json:"clinic_id"`
	AppointmentDate string    `json:"appointment_date"`
	AppointmentTime string    `json:"appointment_time"`
	AppointmentType string    `json:"appointment_type,omitempty"`
	PatientNotes    string    `json:"patient_notes,omitempty"`
	Duration        int       `json:"duration,omitempty"`
	Status          string    `json:"status"`
	CreatedAt       time.Time `json:"created_at"`
}

// PaymentRecord is the local record of the money captured for an appointment.
type PaymentRecord struct {
	ID                string    `json:"id"`
	AppointmentID     string    `json:"appointment_id"`
	TransactionNumber string    `json:"transaction_number"`
	PaymentMethod     string    `json:"payment_method"`
	PaymentIntentID   string    `json:"payment_intent_id,omitempty"`
	Amount            float64   `json:"amount"`
	Status            string    `json:"status"`
	CreatedAt         time.Time `json:"created_at"`
}

// NewAppointment carries the fields needed to create an appointment.
type NewAppointment struct {
	SessionID       string
	PatientID       string
	ClinicID        string
	AppointmentDate string
	AppointmentTime string
	AppointmentType string
	PatientNotes    string
	Duration        int
}

// NewPayment carries the fields needed to record a payment.
type NewPayment struct {
	AppointmentID   string
	PaymentMethod   string
	PaymentIntentID string
	Amount          float64
}

// API is the booking persistence surface the finalizer depends on.
type API interface {
	FindAppointmentBySession(ctx context.Context, sessionID string) (*Appointment, error)
	// CreateAppointment returns ErrDuplicateSession if the session already has an appointment.
	CreateAppointment(ctx context.Context, in NewAppointment) (*Appointment, error)
	CreatePayment(ctx context.Context, in NewPayment) (*PaymentRecord, error)
	FindPaymentByAppointment(ctx context.Context, appointmentID string) (*PaymentRecord, error)
}
