package turno

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clinagenda/turnos/internal/agenda"
	"github.com/clinagenda/turnos/internal/audit"
	"github.com/clinagenda/turnos/pkg/logging"
)

// memRepo is an in-memory Repository that mimics the datastore guarantees
// the service relies on: the partial unique index on active slots and
// transactional rollback of mutation+audit.
type memRepo struct {
	mu        sync.Mutex
	turnos    map[uuid.UUID]*Turno
	audits    []audit.Record
	failAudit bool
}

func newMemRepo() *memRepo {
	return &memRepo{turnos: make(map[uuid.UUID]*Turno)}
}

func (m *memRepo) Find(ctx context.Context, id uuid.UUID) (*Turno, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.turnos[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (m *memRepo) FindActiveBySlot(ctx context.Context, date time.Time, start agenda.MinuteOfDay, staffID uuid.UUID) ([]Turno, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.activeBySlotLocked(date, start, staffID), nil
}

func (m *memRepo) activeBySlotLocked(date time.Time, start agenda.MinuteOfDay, staffID uuid.UUID) []Turno {
	var out []Turno
	for _, t := range m.turnos {
		if t.Estado != EstadoCancelado && t.Date.Equal(agenda.DateOf(date)) && t.Start == start &&
			t.StaffID != nil && *t.StaffID == staffID {
			out = append(out, *t)
		}
	}
	return out
}

func (m *memRepo) Insert(ctx context.Context, t *Turno) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t.StaffID != nil && len(m.activeBySlotLocked(t.Date, t.Start, *t.StaffID)) > 0 {
		return ErrSlotTaken
	}
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = time.Now()
	t.UpdatedAt = t.CreatedAt
	cp := *t
	m.turnos[t.ID] = &cp
	return nil
}

func (m *memRepo) ConditionalUpdateState(ctx context.Context, id uuid.UUID, expected, next Estado) (*Turno, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.turnos[id]
	if !ok || t.Estado != expected {
		return nil, ErrStaleState
	}
	t.Estado = next
	t.UpdatedAt = time.Now()
	cp := *t
	return &cp, nil
}

func (m *memRepo) SetAttendance(ctx context.Context, id uuid.UUID, attended bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.turnos[id]
	if !ok {
		return ErrNotFound
	}
	t.Attendance = &attended
	t.UpdatedAt = time.Now()
	return nil
}

func (m *memRepo) ListByDateRange(ctx context.Context, from, to time.Time) ([]Turno, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Turno
	for _, t := range m.turnos {
		if !t.Date.Before(agenda.DateOf(from)) && t.Date.Before(agenda.DateOf(to)) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memRepo) ListPendingInWindow(ctx context.Context, from, to time.Time) ([]Turno, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Turno
	for _, t := range m.turnos {
		at := t.ScheduledAt()
		if t.Estado == EstadoProgramado && at.After(from) && at.Before(to) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (m *memRepo) InsertAudit(ctx context.Context, rec *audit.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failAudit {
		return errors.New("simulated audit failure")
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	m.audits = append(m.audits, *rec)
	return nil
}

func (m *memRepo) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.turnos[id]; !ok {
		return ErrNotFound
	}
	delete(m.turnos, id)
	return nil
}

func (m *memRepo) InTx(ctx context.Context, fn func(Repository) error) error {
	m.mu.Lock()
	snapTurnos := make(map[uuid.UUID]*Turno, len(m.turnos))
	for id, t := range m.turnos {
		cp := *t
		snapTurnos[id] = &cp
	}
	snapAudits := append([]audit.Record(nil), m.audits...)
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.turnos = snapTurnos
		m.audits = snapAudits
		m.mu.Unlock()
		return err
	}
	return nil
}

func (m *memRepo) auditsFor(id uuid.UUID, action string) []audit.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []audit.Record
	for _, rec := range m.audits {
		if rec.EntityID == id && rec.Action == action {
			out = append(out, rec)
		}
	}
	return out
}

// racingInsertRepo simulates a rival booking landing between validation and
// insert: when armed, the next Insert reports the unique-index violation and
// the rival row appears once the losing transaction has rolled back, the way
// a concurrent commit on another connection would.
type racingInsertRepo struct {
	*memRepo
	armed bool
	rival *Turno
}

func (r *racingInsertRepo) Insert(ctx context.Context, t *Turno) error {
	if r.armed {
		r.armed = false
		rival := *t
		rival.ID = uuid.New()
		rival.PatientID = uuid.New()
		r.rival = &rival
		return ErrSlotTaken
	}
	return r.memRepo.Insert(ctx, t)
}

func (r *racingInsertRepo) InTx(ctx context.Context, fn func(Repository) error) error {
	err := r.memRepo.InTx(ctx, func(Repository) error { return fn(r) })
	if r.rival != nil {
		_ = r.memRepo.Insert(ctx, r.rival)
		r.rival = nil
	}
	return err
}

// memLocker serializes critical sections per key, so racing bookers queue up
// and hit the conflict check instead of a lock rejection.
type memLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newMemLocker() *memLocker {
	return &memLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *memLocker) WithSlotLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	l.mu.Lock()
	lock, ok := l.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[key] = lock
	}
	l.mu.Unlock()

	lock.Lock()
	defer lock.Unlock()
	return fn(ctx)
}

type memExceptions struct {
	mu         sync.Mutex
	exceptions []agenda.ExceptionalDay
}

func (e *memExceptions) ListExceptions(ctx context.Context, centerID uuid.UUID, from, to time.Time) ([]agenda.ExceptionalDay, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []agenda.ExceptionalDay
	for _, ex := range e.exceptions {
		if !ex.Date.Before(from) && ex.Date.Before(to) {
			out = append(out, ex)
		}
	}
	return out, nil
}

type recordedNotification struct {
	TurnoID uuid.UUID
	Event   string
}

type memNotifier struct {
	mu   sync.Mutex
	sent []recordedNotification
	fail bool
}

func (n *memNotifier) Notify(ctx context.Context, turnoID uuid.UUID, eventType string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.fail {
		return errors.New("simulated notification failure")
	}
	n.sent = append(n.sent, recordedNotification{TurnoID: turnoID, Event: eventType})
	return nil
}

var fixedNow = time.Date(2026, 9, 2, 8, 0, 0, 0, time.UTC)

type harness struct {
	repo       *memRepo
	exceptions *memExceptions
	notifier   *memNotifier
	svc        *Service
}

func newHarness() *harness {
	repo := newMemRepo()
	exceptions := &memExceptions{}
	notifier := &memNotifier{}
	validator := NewValidator(exceptions, repo)
	svc := NewService(repo, validator, newMemLocker(), notifier, nil, logging.New("error")).
		WithClock(func() time.Time { return fixedNow })
	return &harness{repo: repo, exceptions: exceptions, notifier: notifier, svc: svc}
}

func validBooking() BookingRequest {
	return BookingRequest{
		Date:        time.Date(2026, 9, 7, 0, 0, 0, 0, time.UTC),
		Start:       agenda.MinuteOfDay(9 * 60),
		End:         agenda.MinuteOfDay(9*60 + 30),
		PatientID:   uuid.New(),
		StaffID:     uuid.New(),
		PhysicianID: uuid.New(),
		RoomID:      uuid.New(),
		SpecialtyID: uuid.New(),
		CenterID:    uuid.New(),
	}
}
