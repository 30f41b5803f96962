package appointment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/interval"
)

var (
	monday   = interval.Date{Year: 2024, Month: time.June, Day: 10}
	tuesday  = interval.Date{Year: 2024, Month: time.June, Day: 11}
	friday   = interval.Date{Year: 2024, Month: time.June, Day: 14}
	saturday = interval.Date{Year: 2024, Month: time.June, Day: 15}

	fixedNow = time.Date(2024, time.June, 1, 8, 0, 0, 0, time.UTC)
)

func testConfig() config.Config {
	return config.Config{
		BusinessStart:       interval.MustClock("07:00"),
		BusinessEnd:         interval.MustClock("18:00"),
		AppointmentDuration: 50,
		AppointmentBuffer:   10,
		RescheduledOccupies: true,
		ReminderChannels:    []string{"email", "whatsapp", "call"},
	}
}

func testPolicy() Policy {
	return Policy{Duration: 50, Buffer: 10, RescheduledOccupies: true}
}

func defaultHours() Hours {
	return Hours{Start: interval.MustClock("07:00"), End: interval.MustClock("18:00")}
}

func clocks(t *testing.T, values ...string) []interval.Clock {
	t.Helper()
	out := make([]interval.Clock, 0, len(values))
	for _, v := range values {
		c, err := interval.ParseClock(v)
		require.NoError(t, err)
		out = append(out, c)
	}
	return out
}

func ptr[T any](v T) *T { return &v }

type recordingReminders struct {
	mu    sync.Mutex
	got   []Reminder
	fails error
}

func (r *recordingReminders) Schedule(_ context.Context, reminders []Reminder) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.got = append(r.got, reminders...)
	return r.fails
}

type recordingAuditor struct {
	mu    sync.Mutex
	got   []AuditEntry
	fails error
}

func (a *recordingAuditor) Record(_ context.Context, entry AuditEntry) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.got = append(a.got, entry)
	return a.fails
}

func (a *recordingAuditor) last() AuditEntry {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.got[len(a.got)-1]
}

type fixture struct {
	svc       *Service
	store     *MemoryStore
	reminders *recordingReminders
	auditor   *recordingAuditor
}

func newFixture(t *testing.T, mutate ...func(*config.Config)) *fixture {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(&cfg)
	}
	f := &fixture{
		store:     NewMemoryStore(),
		reminders: &recordingReminders{},
		auditor:   &recordingAuditor{},
	}
	f.svc = NewService(f.store, NewLocalLocker(), cfg,
		WithReminders(f.reminders),
		WithAuditor(f.auditor),
		WithClock(func() time.Time { return fixedNow }),
		WithLocation(time.UTC),
	)
	return f
}

func booking(date interval.Date, clock string) CreateRequest {
	return CreateRequest{
		Date:            date.String(),
		Time:            clock,
		Name:            "Ana Ruiz",
		Email:           "ana@example.com",
		Phone:           "+34 600 000 000",
		Reason:          "Primera consulta",
		AppointmentType: "first-visit",
		Procedencia:     "web",
	}
}

func (f *fixture) book(t *testing.T, date interval.Date, clock string) *Appointment {
	t.Helper()
	appt, err := f.svc.Create(context.Background(), booking(date, clock))
	require.NoError(t, err)
	return appt
}
