package appointment

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hackgods/doctor-slot-booking/internal/payment"
	"github.com/hackgods/doctor-slot-booking/internal/slot"
)

type State string

const (
	StateBooked    State = "booked"
	StatePaid      State = "paid"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
)

type PaymentState string

const (
	PaymentUnpaid PaymentState = "unpaid"
	PaymentPaid   PaymentState = "paid"
)

type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleAdmin   Role = "admin"
	RoleSystem  Role = "system"
)

// Actor is whoever triggers an operation, as vouched for by the auth layer.
type Actor struct {
	Role Role
	ID   uuid.UUID
}

var SystemActor = Actor{Role: RoleSystem}

// privileged actors may act on any appointment.
func (a Actor) privileged() bool {
	return a.Role == RoleAdmin || a.Role == RoleSystem
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Transition struct {
	From  State     `json:"from,omitempty"`
	To    State     `json:"to"`
	Actor Role      `json:"actor"`
	At    time.Time `json:"at"`
	Note  string    `json:"note,omitempty"`
}

type Feedback struct {
	Rating      int
	Comment     string
	SubmittedAt time.Time
}

type Appointment struct {
	ID               uuid.UUID
	PatientID        uuid.UUID
	DoctorID         uuid.UUID
	Date             slot.Date
	Time             slot.Clock
	Status           State
	PaymentStatus    PaymentState
	PaymentMethod    payment.Method
	PaymentReference string
	Amount           decimal.Decimal
	Currency         string
	CancelledBy      Role
	Feedback         *Feedback
	History          []Transition
	// Version is bumped on every write and guards conditional updates.
	Version   int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (a *Appointment) Key() slot.Key {
	return slot.Key{DoctorID: a.DoctorID, Date: a.Date, Time: a.Time}
}

// Active reports whether the appointment still holds its slot.
func (a *Appointment) Active() bool {
	return a.Status != StateCancelled
}

func (a *Appointment) clone() *Appointment {
	c := *a
	c.History = slices.Clone(a.History)
	if a.Feedback != nil {
		fb := *a.Feedback
		c.Feedback = &fb
	}
	return &c
}

func (a *Appointment) record(to State, actor Role, at time.Time, note string) {
	a.History = append(a.History, Transition{From: a.Status, To: to, Actor: actor, At: at, Note: note})
	a.Status = to
	a.UpdatedAt = at
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
