package pending

import (
	"errors"
	"fmt"
	"strings"
)

// Booking is the booking payload captured before the patient is redirected
// to the hosted checkout. It survives restarts and is removed only after the
// appointment and its payment record exist.
type Booking struct {
	PatientID       string  `json:"patient_id" dynamodbav:"patient_id"`
	ClinicID        string  `json:"clinic_id" dynamodbav:"clinic_id"`
	AppointmentDate string  `json:"appointment_date" dynamodbav:"appointment_date"`
	AppointmentTime string  `json:"appointment_time" dynamodbav:"appointment_time"`
	AppointmentType string  `json:"appointment_type,omitempty" dynamodbav:"appointment_type,omitempty"`
	PatientNotes    string  `json:"patient_notes,omitempty" dynamodbav:"patient_notes,omitempty"`
	ConsultationFee float64 `json:"consultation_fee" dynamodbav:"consultation_fee"`
	BookingFee      float64 `json:"booking_fee" dynamodbav:"booking_fee"`
	TotalAmount     float64 `json:"total_amount" dynamodbav:"total_amount"`
	Duration        int     `json:"duration,omitempty" dynamodbav:"duration,omitempty"`
}

// ErrInvalidBooking wraps every validation failure.
var ErrInvalidBooking = errors.New("pending: invalid booking")

// Validate checks the fields a booking cannot be finalized without.
func (b Booking) Validate() error {
	var missing []string
	if strings.TrimSpace(b.PatientID) == "" {
		missing = append(missing, "patient_id")
	}
	if strings.TrimSpace(b.ClinicID) == "" {
		missing = append(missing, "clinic_id")
	}
	if strings.TrimSpace(b.AppointmentDate) == "" {
		missing = append(missing, "appointment_date")
	}
	if strings.TrimSpace(b.AppointmentTime) == "" {
		missing = append(missing, "appointment_time")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidBooking, strings.Join(missing, ", "))
	}
	if b.ConsultationFee < 0 || b.BookingFee < 0 || b.TotalAmount < 0 {
		return fmt.Errorf("%w: amounts cannot be negative", ErrInvalidBooking)
	}
	return nil
}

// WithComputedTotal fills TotalAmount from the fee components when it is unset.
func (b Booking) WithComputedTotal() Booking {
	if b.TotalAmount == 0 {
		b.TotalAmount = b.ConsultationFee + b.BookingFee
	}
	return b
}
