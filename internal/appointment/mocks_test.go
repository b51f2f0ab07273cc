package appointment

import (
	"context"
	"sort"
	"sync"
	"time"

	redisclient "github.com/hackgods/clinic-request-desk/internal/redis"
)

// Compile-time checks
var (
	_ Repository         = (*memRepository)(nil)
	_ redisclient.Locker = (*memLocker)(nil)
	_ EventPublisher     = (*memPublisher)(nil)
)

// memRepository is an in-memory Repository. The *Err fields force the
// matching call to fail.
type memRepository struct {
	mu           sync.Mutex
	requests     map[int64]Request
	appointments []Appointment
	patients     []Patient
	events       []EventLog
	nextID       int64

	createAppointmentErr error
	listRequestsErr      error

	createPatientCalls int
	contactLookupCalls int
	createApptCalls    int
}

func newMemRepository() *memRepository {
	return &memRepository{requests: make(map[int64]Request), nextID: 100}
}

func (m *memRepository) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *memRepository) addRequest(r Request) Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.ID == 0 {
		r.ID = m.id()
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	m.requests[r.ID] = r
	return r
}

func (m *memRepository) addPatient(p Patient) Patient {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p.ID == 0 {
		p.ID = m.id()
	}
	m.patients = append(m.patients, p)
	return p
}

func (m *memRepository) addAppointment(a Appointment) Appointment {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a.ID == 0 {
		a.ID = m.id()
	}
	m.appointments = append(m.appointments, a)
	return a
}

func (m *memRepository) ListRequests(_ context.Context) ([]Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listRequestsErr != nil {
		return nil, m.listRequestsErr
	}
	out := make([]Request, 0, len(m.requests))
	for _, r := range m.requests {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *memRepository) GetRequestByID(_ context.Context, id int64) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok {
		return nil, ErrRequestNotFound
	}
	return &r, nil
}

func (m *memRepository) CreateRequest(_ context.Context, r Request) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.ID = m.id()
	r.CreatedAt = time.Now()
	m.requests[r.ID] = r
	return &r, nil
}

func (m *memRepository) MarkRequestRejected(_ context.Context, id int64, at time.Time) (*Request, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.requests[id]
	if !ok || r.RejectedAt != nil {
		return nil, ErrRequestNotFound
	}
	r.RejectedAt = &at
	m.requests[id] = r
	return &r, nil
}

func (m *memRepository) ListAppointments(_ context.Context) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Appointment(nil), m.appointments...), nil
}

func (m *memRepository) ListAppointmentsForRequest(_ context.Context, requestID int64, tag string) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		if (a.RequestID != nil && *a.RequestID == requestID) || (a.RequestID == nil && a.Description == tag) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (m *memRepository) CreateAppointment(_ context.Context, a Appointment) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createApptCalls++
	if m.createAppointmentErr != nil {
		return nil, m.createAppointmentErr
	}
	if a.RequestID != nil {
		for _, existing := range m.appointments {
			if existing.RequestID != nil && *existing.RequestID == *a.RequestID {
				return nil, ErrDuplicateAppointment
			}
		}
	}
	a.ID = m.id()
	a.CreatedAt = time.Now()
	m.appointments = append(m.appointments, a)
	return &a, nil
}

func (m *memRepository) ListPatientsByContact(_ context.Context, email, phone string) ([]Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contactLookupCalls++
	var out []Patient
	for _, p := range m.patients {
		if (email != "" && normalizeEmail(p.Email) == email) || (phone != "" && p.Phone == phone) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memRepository) CreatePatient(_ context.Context, p Patient) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.createPatientCalls++
	p.ID = m.id()
	p.CreatedAt = time.Now()
	m.patients = append(m.patients, p)
	return &p, nil
}

func (m *memRepository) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

func (m *memRepository) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.events))
	for i, ev := range m.events {
		out[i] = ev.EventType
	}
	return out
}

func (m *memRepository) appointmentsFor(requestID int64) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, a := range m.appointments {
		if a.RequestID != nil && *a.RequestID == requestID {
			n++
		}
	}
	return n
}

// memLocker behaves like the Redis locker within one process.
type memLocker struct {
	mu   sync.Mutex
	held map[int64]bool
}

func newMemLocker() *memLocker {
	return &memLocker{held: make(map[int64]bool)}
}

func (l *memLocker) WithRequestLock(ctx context.Context, requestID int64, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	if l.held[requestID] {
		l.mu.Unlock()
		return redisclient.ErrLockNotAcquired
	}
	l.held[requestID] = true
	l.mu.Unlock()

	defer func() {
		l.mu.Lock()
		delete(l.held, requestID)
		l.mu.Unlock()
	}()
	return fn(ctx)
}

type memPublisher struct {
	mu     sync.Mutex
	events []EventLog
}

func (p *memPublisher) Publish(_ context.Context, ev EventLog) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}
