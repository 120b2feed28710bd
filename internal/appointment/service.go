package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/doctor-slot-booking/internal/availability"
	"github.com/hackgods/doctor-slot-booking/internal/config"
	"github.com/hackgods/doctor-slot-booking/internal/ledger"
	"github.com/hackgods/doctor-slot-booking/internal/lock"
	"github.com/hackgods/doctor-slot-booking/internal/payment"
	"github.com/hackgods/doctor-slot-booking/internal/slot"
)

const (
	EventAppointmentBooked      = "APPOINTMENT_BOOKED"
	EventPaymentSessionCreated  = "PAYMENT_SESSION_CREATED"
	EventPaymentConfirmed       = "PAYMENT_CONFIRMED"
	EventPaymentRejected        = "PAYMENT_REJECTED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventRefundRequested        = "REFUND_REQUESTED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
	EventAppointmentCompleted   = "APPOINTMENT_COMPLETED"
	EventFeedbackSubmitted      = "FEEDBACK_SUBMITTED"
	EventSlotReleaseFailed      = "SLOT_RELEASE_FAILED"
)

// storeTimeout bounds writes that must finish even when the caller has gone.
const storeTimeout = 10 * time.Second

var (
	ErrSlotConflict              = ledger.ErrSlotConflict
	ErrInvalidSlot               = errors.New("requested time is not currently offered, refresh availability")
	ErrInvalidTransition         = errors.New("operation not allowed in the appointment's current state")
	ErrPaymentVerificationFailed = errors.New("payment could not be verified, please retry")
	ErrFeedbackAlreadySubmitted  = errors.New("feedback already submitted")
	ErrInvalidRating             = errors.New("rating must be between 1 and 5")
	ErrForbidden                 = errors.New("actor may not act on this appointment")
	ErrAppointmentBusy           = errors.New("appointment is being modified, please retry")
)

type Service struct {
	repo     Repository
	ledger   ledger.Ledger
	locker   lock.Locker
	payments *payment.Reconciler
	refunds  payment.RefundSink
	avail    availability.Options
	now      func() time.Time
	logger   zerolog.Logger
}

type Option func(*Service)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithRefundSink(sink payment.RefundSink) Option {
	return func(s *Service) { s.refunds = sink }
}

func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func NewService(repo Repository, l ledger.Ledger, locker lock.Locker, payments *payment.Reconciler, cfg config.Config, opts ...Option) *Service {
	s := &Service{
		repo:     repo,
		ledger:   l,
		locker:   locker,
		payments: payments,
		avail: availability.Options{
			HorizonDays: cfg.HorizonDays,
			LeadTime:    cfg.LeadTime,
			Location:    cfg.Location,
		},
		now:    time.Now,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.refunds == nil {
		s.refunds = payment.LogRefundSink{Logger: s.logger}
	}
	s.logger = s.logger.With().Str("component", "appointment_service").Logger()
	return s
}

func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), storeTimeout)
}

func (s *Service) profile(ctx context.Context, doctorID uuid.UUID) (*availability.Profile, error) {
	p, err := s.repo.GetDoctorProfile(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor profile: %w", err)
	}
	return p, nil
}

// ListAvailableSlots returns the doctor's bookable markers per day, with
// every claimed marker removed. Days with nothing left are omitted.
func (s *Service) ListAvailableSlots(ctx context.Context, doctorID uuid.UUID) ([]availability.Day, error) {
	p, err := s.profile(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	days := availability.Generate(*p, s.now(), s.avail)

	claimed := make(map[slot.Date]map[slot.Clock]struct{})
	for day := range days {
		set, err := s.ledger.Claimed(ctx, doctorID, day.Date)
		if err != nil {
			return nil, fmt.Errorf("read ledger for %s: %w", day.Date, err)
		}
		claimed[day.Date] = set
	}

	free := availability.Filter(days, func(d slot.Date, t slot.Clock) bool {
		_, ok := claimed[d][t]
		return ok
	})
	return slices.Collect(free), nil
}

// Book validates the requested slot against current availability, claims it
// in the ledger and creates a booked, unpaid appointment. A failure after
// the claim releases the slot again. Patients book for themselves only.
func (s *Service) Book(ctx context.Context, actor Actor, patientID, doctorID uuid.UUID, date slot.Date, at slot.Clock) (*Appointment, error) {
	if !actor.privileged() && (actor.Role != RolePatient || actor.ID != patientID) {
		return nil, ErrForbidden
	}

	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}

	p, err := s.profile(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	if !availability.Offers(*p, s.now(), s.avail, date, at) {
		return nil, ErrInvalidSlot
	}

	key := slot.Key{DoctorID: doctorID, Date: date, Time: at}
	if err := s.ledger.Claim(ctx, key); err != nil {
		if errors.Is(err, ledger.ErrSlotConflict) {
			return nil, ErrSlotConflict
		}
		return nil, fmt.Errorf("claim slot: %w", err)
	}

	// The claim is ours now; it must end up owned by an appointment or be
	// released, whatever happens to the caller's context.
	storeCtx, cancel := detached(ctx)
	defer cancel()

	now := s.now().UTC()
	appt := &Appointment{
		ID:            uuid.New(),
		PatientID:     patientID,
		DoctorID:      doctorID,
		Date:          date,
		Time:          at,
		Status:        StateBooked,
		PaymentStatus: PaymentUnpaid,
		Amount:        p.Fee,
		Currency:      p.Currency,
		History:       []Transition{{To: StateBooked, Actor: actor.Role, At: now}},
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	created, err := s.repo.CreateAppointment(storeCtx, appt)
	if err != nil {
		if errors.Is(err, ErrSlotTaken) {
			// storage already has a live appointment here, so the claim stays
			return nil, ErrSlotConflict
		}
		s.release(storeCtx, key, appt.ID, "booking_failed")
		return nil, fmt.Errorf("create appointment: %w", err)
	}

	s.logEvent(storeCtx, created.ID, EventAppointmentBooked, map[string]any{
		"patient_id": patientID.String(),
		"doctor_id":  doctorID.String(),
		"booked_by":  string(actor.Role),
		"date":       date.String(),
		"time":       at.String(),
		"amount":     created.Amount.String(),
		"currency":   created.Currency,
	})

	return created, nil
}

// SyncLedger claims the slot of every live appointment from today on, so a
// ledger that lost state does not offer booked slots. It returns how many
// claims were missing.
func (s *Service) SyncLedger(ctx context.Context) (int, error) {
	live, err := s.repo.ListActiveFrom(ctx, slot.DateOf(s.now(), s.location()))
	if err != nil {
		return 0, fmt.Errorf("list active appointments: %w", err)
	}

	restored := 0
	for _, a := range live {
		err := s.ledger.Claim(ctx, a.Key())
		switch {
		case err == nil:
			restored++
			s.logger.Warn().
				Str("slot", a.Key().String()).
				Str("appointment_id", a.ID.String()).
				Msg("restored missing slot claim")
		case errors.Is(err, ledger.ErrSlotConflict):
			// already claimed
		default:
			return restored, fmt.Errorf("claim %s: %w", a.Key(), err)
		}
	}
	return restored, nil
}

// PruneLedger drops claims for days before today from ledgers that hold them
// in memory. Other backends are left alone and report zero.
func (s *Service) PruneLedger() int {
	p, ok := s.ledger.(ledger.Pruner)
	if !ok {
		return 0
	}
	return p.Prune(slot.DateOf(s.now(), s.location()))
}

func (s *Service) location() *time.Location {
	if s.avail.Location == nil {
		return time.UTC
	}
	return s.avail.Location
}

// release gives a slot back to the ledger. A failure leaves the slot claimed,
// which only hides it from listings, so it is logged rather than returned.
func (s *Service) release(ctx context.Context, key slot.Key, appointmentID uuid.UUID, reason string) {
	if err := s.ledger.Release(ctx, key); err != nil {
		s.logger.Error().
			Err(err).
			Str("slot", key.String()).
			Str("appointment_id", appointmentID.String()).
			Str("reason", reason).
			Msg("slot release failed")
		s.logEvent(ctx, appointmentID, EventSlotReleaseFailed, map[string]any{
			"slot":   key.String(),
			"reason": reason,
			"error":  err.Error(),
		})
	}
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Warn().Err(err).Str("event", eventType).Msg("failed to marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
		CreatedAt:     s.now().UTC(),
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error().
			Err(err).
			Str("event", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("failed to insert event log")
	}
}

// GetAppointment returns an appointment visible to actor.
func (s *Service) GetAppointment(ctx context.Context, id uuid.UUID, actor Actor) (*Appointment, error) {
	a, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get appointment: %w", err)
	}
	if err := authorize(actor, a, RolePatient, RoleDoctor); err != nil {
		return nil, err
	}
	return a, nil
}

func pageBounds(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// ListAppointmentsByPatient lists a patient's appointments, newest slot first.
func (s *Service) ListAppointmentsByPatient(ctx context.Context, actor Actor, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if !actor.privileged() && (actor.Role != RolePatient || actor.ID != patientID) {
		return nil, ErrForbidden
	}
	limit, offset = pageBounds(limit, offset)

	appointments, err := s.repo.ListAppointmentsByPatient(ctx, patientID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by patient: %w", err)
	}
	return appointments, nil
}

// ListAppointmentsByDoctor lists a doctor's appointments in slot order.
func (s *Service) ListAppointmentsByDoctor(ctx context.Context, actor Actor, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	if !actor.privileged() && (actor.Role != RoleDoctor || actor.ID != doctorID) {
		return nil, ErrForbidden
	}
	limit, offset = pageBounds(limit, offset)

	appointments, err := s.repo.ListAppointmentsByDoctor(ctx, doctorID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list appointments by doctor: %w", err)
	}
	return appointments, nil
}
