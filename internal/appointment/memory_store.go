package appointment

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/interval"
)

// state is the whole persisted dataset: one flat list per record kind.
type state struct {
	Appointments []Appointment `json:"appointments"`
	Blocks       []BlockedSlot `json:"blockedSlots"`
}

func (s *state) clone() *state {
	return &state{
		Appointments: append([]Appointment(nil), s.Appointments...),
		Blocks:       append([]BlockedSlot(nil), s.Blocks...),
	}
}

// MemoryStore keeps everything in process. InTx works on a copy and swaps
// it in on success.
type MemoryStore struct {
	mu sync.Mutex
	st *state
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{st: &state{}}
}

func newMemoryStoreFrom(st *state) *MemoryStore {
	return &MemoryStore{st: st}
}

func (m *MemoryStore) Appointments() Ledger { return memLedger{m} }

func (m *MemoryStore) Blackouts() Registry { return memRegistry{m} }

func (m *MemoryStore) InTx(ctx context.Context, fn func(tx Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	child := newMemoryStoreFrom(m.st.clone())
	if err := fn(child); err != nil {
		return err
	}
	m.st = child.st
	return nil
}

func (m *MemoryStore) read(fn func(st *state)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(m.st)
}

func (m *MemoryStore) write(fn func(st *state) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return fn(m.st)
}

type memLedger struct{ m *MemoryStore }

func (l memLedger) All(_ context.Context) ([]Appointment, error) {
	var out []Appointment
	l.m.read(func(st *state) {
		out = append(out, st.Appointments...)
	})
	return out, nil
}

func (l memLedger) ByDate(_ context.Context, date interval.Date) ([]Appointment, error) {
	var out []Appointment
	l.m.read(func(st *state) {
		for _, a := range st.Appointments {
			if a.Date == date && a.Status != StatusCancelled {
				out = append(out, a)
			}
		}
	})
	return out, nil
}

func (l memLedger) ByEmail(_ context.Context, email string) ([]Appointment, error) {
	var out []Appointment
	l.m.read(func(st *state) {
		for _, a := range st.Appointments {
			if strings.EqualFold(a.Email, email) {
				out = append(out, a)
			}
		}
	})
	return out, nil
}

func (l memLedger) ByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	var found *Appointment
	l.m.read(func(st *state) {
		if i := indexOfAppointment(st, id); i >= 0 {
			a := st.Appointments[i]
			found = &a
		}
	})
	if found == nil {
		return nil, ErrAppointmentNotFound
	}
	return found, nil
}

func (l memLedger) Append(_ context.Context, a *Appointment) error {
	return l.m.write(func(st *state) error {
		st.Appointments = append(st.Appointments, *a)
		return nil
	})
}

func (l memLedger) ReplaceStatus(_ context.Context, id uuid.UUID, status Status, at time.Time) (*Appointment, error) {
	var updated Appointment
	err := l.m.write(func(st *state) error {
		i := indexOfAppointment(st, id)
		if i < 0 {
			return ErrAppointmentNotFound
		}
		st.Appointments[i].setStatus(status, at)
		updated = st.Appointments[i]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (l memLedger) LinkReschedule(_ context.Context, oldID, newID uuid.UUID, at time.Time) (*Appointment, error) {
	var updated Appointment
	err := l.m.write(func(st *state) error {
		i := indexOfAppointment(st, oldID)
		if i < 0 {
			return ErrAppointmentNotFound
		}
		next := newID
		st.Appointments[i].setStatus(StatusRescheduled, at)
		st.Appointments[i].RescheduledToID = &next
		updated = st.Appointments[i]
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func indexOfAppointment(st *state, id uuid.UUID) int {
	for i := range st.Appointments {
		if st.Appointments[i].ID == id {
			return i
		}
	}
	return -1
}

type memRegistry struct{ m *MemoryStore }

func (r memRegistry) Block(_ context.Context, b *BlockedSlot) error {
	return r.m.write(func(st *state) error {
		for _, existing := range st.Blocks {
			if existing.sameWindow(*b) {
				return ErrAlreadyBlocked
			}
		}
		st.Blocks = append(st.Blocks, *b)
		return nil
	})
}

func (r memRegistry) Unblock(_ context.Context, id uuid.UUID) error {
	return r.m.write(func(st *state) error {
		for i := range st.Blocks {
			if st.Blocks[i].ID == id {
				st.Blocks = append(st.Blocks[:i], st.Blocks[i+1:]...)
				return nil
			}
		}
		return ErrBlockNotFound
	})
}

func (r memRegistry) ForDate(_ context.Context, date interval.Date) ([]BlockedSlot, error) {
	var out []BlockedSlot
	r.m.read(func(st *state) {
		for _, b := range st.Blocks {
			if b.Date == date {
				out = append(out, b)
			}
		}
	})
	return out, nil
}

func (r memRegistry) All(_ context.Context) ([]BlockedSlot, error) {
	var out []BlockedSlot
	r.m.read(func(st *state) {
		out = append(out, st.Blocks...)
	})
	return out, nil
}
