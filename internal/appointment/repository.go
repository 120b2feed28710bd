package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-slot-booking/internal/availability"
	"github.com/hackgods/doctor-slot-booking/internal/slot"
)

var (
	ErrPatientNotFound     = errors.New("patient not found")
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	// ErrSlotTaken is returned by storage when its own uniqueness guard
	// rejects a second live appointment for a slot.
	ErrSlotTaken = errors.New("slot already has an active appointment")
	// ErrStaleAppointment is returned when a conditional update finds a
	// newer version than the one it was based on.
	ErrStaleAppointment = errors.New("appointment was modified concurrently")
)

// Repository contains all storage interactions needed by the service.
type Repository interface {
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)
	GetDoctorProfile(ctx context.Context, id uuid.UUID) (*availability.Profile, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)
	ListAppointmentsByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListAppointmentsByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error)

	// Creation and updates. UpdateAppointment only succeeds when the stored
	// version still equals a.Version and returns the row with the bumped version.
	CreateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)
	UpdateAppointment(ctx context.Context, a *Appointment) (*Appointment, error)

	// ListActiveFrom returns every non-cancelled appointment on or after from.
	ListActiveFrom(ctx context.Context, from slot.Date) ([]Appointment, error)

	// Payment reconciler
	FindAwaitingPayment(ctx context.Context, limit int) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
