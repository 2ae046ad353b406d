package events

import "time"

const (
	TypeBookingConfirmed = "checkout.booking_confirmed.v1"
	TypeBookingFailed    = "checkout.booking_failed.v1"
	TypeBookingCancelled = "checkout.booking_cancelled.v1"
)

type BookingConfirmedV1 struct {
	EventID         string    `json:"event_id"`
	Scope           string    `json:"scope"`
	SessionID       string    `json:"session_id"`
	AppointmentID   string    `json:"appointment_id"`
	PatientID       string    `json:"patient_id,omitempty"`
	ClinicID        string    `json:"clinic_id,omitempty"`
	AppointmentDate string    `json:"appointment_date,omitempty"`
	AppointmentTime string    `json:"appointment_time,omitempty"`
	Amount          float64   `json:"amount"`
	PaymentMethod   string    `json:"payment_method,omitempty"`
	PaymentIntentID string    `json:"payment_intent_id,omitempty"`
	ConfirmedAt     time.Time `json:"confirmed_at"`
}

// BookingFailedV1 carries enough of the retained booking for support to
// reconcile a payment by hand.
type BookingFailedV1 struct {
	EventID         string    `json:"event_id"`
	Scope           string    `json:"scope"`
	SessionID       string    `json:"session_id,omitempty"`
	Kind            string    `json:"kind"`
	Message         string    `json:"message"`
	Error           string    `json:"error,omitempty"`
	AppointmentID   string    `json:"appointment_id,omitempty"`
	PatientID       string    `json:"patient_id,omitempty"`
	ClinicID        string    `json:"clinic_id,omitempty"`
	AppointmentDate string    `json:"appointment_date,omitempty"`
	AppointmentTime string    `json:"appointment_time,omitempty"`
	Amount          float64   `json:"amount,omitempty"`
	FailedAt        time.Time `json:"failed_at"`
}

type BookingCancelledV1 struct {
	EventID     string    `json:"event_id"`
	Scope       string    `json:"scope"`
	SessionID   string    `json:"session_id,omitempty"`
	CancelledAt time.Time `json:"cancelled_at"`
}
