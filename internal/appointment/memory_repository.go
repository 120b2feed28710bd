package appointment

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/doctor-slot-booking/internal/availability"
	"github.com/hackgods/doctor-slot-booking/internal/slot"
)

// MemoryRepository keeps everything in process. It enforces the same
// one-live-appointment-per-slot rule and version checks as the Postgres
// schema, and backs APP_STORAGE=memory and the tests.
type MemoryRepository struct {
	mu           sync.RWMutex
	patients     map[uuid.UUID]Patient
	doctors      map[uuid.UUID]availability.Profile
	appointments map[uuid.UUID]*Appointment
	events       []EventLog
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		patients:     make(map[uuid.UUID]Patient),
		doctors:      make(map[uuid.UUID]availability.Profile),
		appointments: make(map[uuid.UUID]*Appointment),
	}
}

func (r *MemoryRepository) AddPatient(p Patient) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patients[p.ID] = p
}

func (r *MemoryRepository) AddDoctor(p availability.Profile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.doctors[p.DoctorID] = p
}

// Events returns a copy of the recorded event log.
func (r *MemoryRepository) Events() []EventLog {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Clone(r.events)
}

func (r *MemoryRepository) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) GetDoctorProfile(_ context.Context, id uuid.UUID) (*availability.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return &p, nil
}

func (r *MemoryRepository) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return a.clone(), nil
}

func (r *MemoryRepository) ListAppointmentsByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return r.list(func(a *Appointment) bool { return a.PatientID == patientID }, true, limit, offset), nil
}

func (r *MemoryRepository) ListAppointmentsByDoctor(_ context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	return r.list(func(a *Appointment) bool { return a.DoctorID == doctorID }, false, limit, offset), nil
}

func (r *MemoryRepository) list(match func(*Appointment) bool, newestFirst bool, limit, offset int) []Appointment {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Appointment
	for _, a := range r.appointments {
		if match(a) {
			out = append(out, *a.clone())
		}
	}

	slices.SortFunc(out, func(x, y Appointment) int {
		c := x.Key().Compare(y.Key())
		if c == 0 {
			c = x.CreatedAt.Compare(y.CreatedAt)
		}
		if newestFirst {
			return -c
		}
		return c
	})

	if offset >= len(out) {
		return nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out
}

// liveHolder returns the id of the active appointment holding key, if any.
// Caller holds r.mu.
func (r *MemoryRepository) liveHolder(key slot.Key) (uuid.UUID, bool) {
	for id, a := range r.appointments {
		if a.Active() && a.Key() == key {
			return id, true
		}
	}
	return uuid.Nil, false
}

func (r *MemoryRepository) CreateAppointment(_ context.Context, a *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.liveHolder(a.Key()); taken {
		return nil, ErrSlotTaken
	}

	stored := a.clone()
	stored.Version = 1
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}
	stored.UpdatedAt = stored.CreatedAt
	r.appointments[stored.ID] = stored
	return stored.clone(), nil
}

func (r *MemoryRepository) UpdateAppointment(_ context.Context, a *Appointment) (*Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.appointments[a.ID]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if current.Version != a.Version {
		return nil, ErrStaleAppointment
	}
	if a.Active() {
		if holder, taken := r.liveHolder(a.Key()); taken && holder != a.ID {
			return nil, ErrSlotTaken
		}
	}

	stored := a.clone()
	stored.Version = current.Version + 1
	stored.CreatedAt = current.CreatedAt
	r.appointments[stored.ID] = stored
	return stored.clone(), nil
}

func (r *MemoryRepository) ListActiveFrom(_ context.Context, from slot.Date) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Appointment
	for _, a := range r.appointments {
		if a.Active() && a.Date >= from {
			out = append(out, *a.clone())
		}
	}
	slices.SortFunc(out, func(x, y Appointment) int { return x.Key().Compare(y.Key()) })
	return out, nil
}

func (r *MemoryRepository) FindAwaitingPayment(_ context.Context, limit int) ([]Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Appointment
	for _, a := range r.appointments {
		if a.Status == StateBooked && a.PaymentStatus == PaymentUnpaid && a.PaymentReference != "" {
			out = append(out, *a.clone())
		}
	}
	slices.SortFunc(out, func(x, y Appointment) int {
		return cmp.Or(x.UpdatedAt.Compare(y.UpdatedAt), cmp.Compare(x.ID.String(), y.ID.String()))
	})
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepository) InsertEvent(_ context.Context, ev EventLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev.ID = int64(len(r.events) + 1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	r.events = append(r.events, ev)
	return nil
}
