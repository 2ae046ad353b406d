package bookings

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const uniqueViolation = "23505"
const foreignKeyViolation = "23503"

// Repository persists appointments and their payment records in Postgres.
type Repository struct {
	db  rowQuerier
	now func() time.Time
}

// NewRepository creates a repository backed by pgx pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	if pool == nil {
		panic("bookings: pgx pool required")
	}
	return &Repository{db: pool, now: time.Now}
}

func newRepositoryWithExec(db rowQuerier) *Repository {
	if db == nil {
		panic("bookings: exec required")
	}
	return &Repository{db: db, now: time.Now}
}

var _ API = (*Repository)(nil)

const appointmentColumns = `id, session_id, patient_id, clinic_id, appointment_date, appointment_time, appointment_type, patient_notes, duration_minutes, status, created_at`

func scanAppointment(row pgx.Row) (*Appointment, error) {
	var a Appointment
	var id uuid.UUID
	if err := row.Scan(&id, &a.SessionID, &a.PatientID, &a.ClinicID, &a.AppointmentDate, &a.AppointmentTime,
		&a.AppointmentType, &a.PatientNotes, &a.Duration, &a.Status, &a.CreatedAt); err != nil {
		return nil, err
	}
	a.ID = id.String()
	return &a, nil
}

func (r *Repository) FindAppointmentBySession(ctx context.Context, sessionID string) (*Appointment, error) {
	query := `SELECT ` + appointmentColumns + ` FROM appointments WHERE session_id = $1`
	a, err := scanAppointment(r.db.QueryRow(ctx, query, sessionID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAppointmentNotFound
		}
		return nil, fmt.Errorf("bookings: find appointment by session: %w", err)
	}
	return a, nil
}

// CreateAppointment inserts a confirmed appointment. A concurrent insert for
// the same session loses on the unique constraint and gets ErrDuplicateSession.
func (r *Repository) CreateAppointment(ctx context.Context, in NewAppointment) (*Appointment, error) {
	if strings.TrimSpace(in.SessionID) == "" {
		return nil, errors.New("bookings: session id required")
	}
	id := uuid.New()
	query := `
		INSERT INTO appointments (id, session_id, patient_id, clinic_id, appointment_date, appointment_time, appointment_type, patient_notes, duration_minutes, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (session_id) DO NOTHING
		RETURNING created_at
	`
	a := &Appointment{
		ID:              id.String(),
		SessionID:       in.SessionID,
		PatientID:       in.PatientID,
		ClinicID:        in.ClinicID,
		AppointmentDate: in.AppointmentDate,
		AppointmentTime: in.AppointmentTime,
		AppointmentType: in.AppointmentType,
		PatientNotes:    in.PatientNotes,
		Duration:        in.Duration,
		Status:          AppointmentStatusConfirmed,
	}
	err := r.db.QueryRow(ctx, query, id, in.SessionID, in.PatientID, in.ClinicID, in.AppointmentDate, in.AppointmentTime,
		in.AppointmentType, in.PatientNotes, in.Duration, AppointmentStatusConfirmed).Scan(&a.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDuplicateSession
		}
		return nil, fmt.Errorf("bookings: insert appointment: %w", err)
	}
	return a, nil
}

// CreatePayment records the payment for an existing appointment.
func (r *Repository) CreatePayment(ctx context.Context, in NewPayment) (*PaymentRecord, error) {
	appointmentID, err := uuid.Parse(in.AppointmentID)
	if err != nil {
		return nil, fmt.Errorf("bookings: invalid appointment id %q: %w", in.AppointmentID, err)
	}
	id := uuid.New()
	p := &PaymentRecord{
		ID:                id.String(),
		AppointmentID:     appointmentID.String(),
		TransactionNumber: newTransactionNumber(r.now()),
		PaymentMethod:     in.PaymentMethod,
		PaymentIntentID:   in.PaymentIntentID,
		Amount:            in.Amount,
		Status:            PaymentStatusPaid,
	}
	query := `
		INSERT INTO appointment_payments (id, appointment_id, transaction_number, payment_method, payment_intent_id, amount, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	err = r.db.QueryRow(ctx, query, id, appointmentID, p.TransactionNumber, p.PaymentMethod, p.PaymentIntentID, p.Amount, p.Status).Scan(&p.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case uniqueViolation:
				return nil, ErrDuplicatePayment
			case foreignKeyViolation:
				return nil, ErrUnknownAppointment
			}
		}
		return nil, fmt.Errorf("bookings: insert payment: %w", err)
	}
	return p, nil
}

func (r *Repository) FindPaymentByAppointment(ctx context.Context, appointmentID string) (*PaymentRecord, error) {
	aid, err := uuid.Parse(appointmentID)
	if err != nil {
		return nil, fmt.Errorf("bookings: invalid appointment id %q: %w", appointmentID, err)
	}
	query := `
		SELECT id, appointment_id, transaction_number, payment_method, payment_intent_id, amount, status, created_at
		FROM appointment_payments
		WHERE appointment_id = $1
	`
	var p PaymentRecord
	var id, apptID uuid.UUID
	if err := r.db.QueryRow(ctx, query, aid).Scan(&id, &apptID, &p.TransactionNumber, &p.PaymentMethod, &p.PaymentIntentID, &p.Amount, &p.Status, &p.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("bookings: find payment: %w", err)
	}
	p.ID = id.String()
	p.AppointmentID = apptID.String()
	return &p, nil
}

// newTransactionNumber returns TXN-YYYYMMDD-XXXXXXXX with a random hex suffix.
func newTransactionNumber(now time.Time) string {
	var buf [4]byte
	if _, err := rand.Read(buf[:]); err != nil {
		copy(buf[:], uuid.New().String())
	}
	return fmt.Sprintf("TXN-%s-%s", now.UTC().Format("20060102"), strings.ToUpper(hex.EncodeToString(buf[:])))
}
