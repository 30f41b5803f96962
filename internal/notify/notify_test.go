package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/interval"
)

type fakeEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   func(task *asynq.Task) error
}

func (f *fakeEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if f.err != nil {
		if err := f.err(task); err != nil {
			return nil, err
		}
	}
	f.tasks = append(f.tasks, task)
	f.opts = append(f.opts, opts)
	return &asynq.TaskInfo{ID: fmt.Sprintf("task-%d", len(f.tasks))}, nil
}

func sampleReminder(ch appointment.Channel) appointment.Reminder {
	return appointment.Reminder{
		AppointmentID: uuid.MustParse("6f1c1c8e-2f3a-4d6e-9d61-0f3e5a1b2c3d"),
		Channel:       ch,
		FireAt:        time.Date(2024, time.June, 10, 9, 0, 0, 0, time.UTC),
		Patient:       appointment.Patient{Name: "Ana Ruiz", Email: "ana@example.com", Phone: "+34 600"},
		Date:          interval.Date{Year: 2024, Month: time.June, Day: 11},
		Time:          interval.MustClock("09:00"),
	}
}

func optionValue(opts []asynq.Option, typ asynq.OptionType) any {
	for _, o := range opts {
		if o.Type() == typ {
			return o.Value()
		}
	}
	return nil
}

func TestNewReminderTask(t *testing.T) {
	r := sampleReminder(appointment.ChannelWhatsApp)

	task, opts, err := NewReminderTask(r)
	require.NoError(t, err)
	assert.Equal(t, TypeSendReminder, task.Type())

	var p ReminderPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &p))
	assert.Equal(t, r.AppointmentID, p.AppointmentID)
	assert.Equal(t, appointment.ChannelWhatsApp, p.Channel)
	assert.Equal(t, "2024-06-11", p.Date)
	assert.Equal(t, "09:00", p.Time)
	assert.Contains(t, p.Body, "Ana Ruiz")

	assert.Equal(t, r.FireAt, optionValue(opts, asynq.ProcessAtOpt))
	assert.Equal(t, "reminder:6f1c1c8e-2f3a-4d6e-9d61-0f3e5a1b2c3d:whatsapp", optionValue(opts, asynq.TaskIDOpt))
}

func TestAsynqReminders_Schedule(t *testing.T) {
	q := &fakeEnqueuer{}
	rem := NewAsynqReminders(q, zerolog.Nop())

	err := rem.Schedule(context.Background(), []appointment.Reminder{
		sampleReminder(appointment.ChannelEmail),
		sampleReminder(appointment.ChannelWhatsApp),
		sampleReminder(appointment.ChannelCall),
	})
	require.NoError(t, err)
	assert.Len(t, q.tasks, 3)
}

func TestAsynqReminders_DuplicateIsNotAnError(t *testing.T) {
	q := &fakeEnqueuer{err: func(*asynq.Task) error { return asynq.ErrTaskIDConflict }}
	err := NewAsynqReminders(q, zerolog.Nop()).Schedule(context.Background(), []appointment.Reminder{sampleReminder(appointment.ChannelEmail)})
	assert.NoError(t, err)
}

func TestAsynqReminders_ContinuesPastFailures(t *testing.T) {
	boom := errors.New("redis down")
	calls := 0
	q := &fakeEnqueuer{err: func(*asynq.Task) error {
		calls++
		if calls == 1 {
			return boom
		}
		return nil
	}}

	err := NewAsynqReminders(q, zerolog.Nop()).Schedule(context.Background(), []appointment.Reminder{
		sampleReminder(appointment.ChannelEmail),
		sampleReminder(appointment.ChannelCall),
	})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, q.tasks, 1)
}

type stubAppointments map[uuid.UUID]*appointment.Appointment

func (s stubAppointments) Get(_ context.Context, id uuid.UUID) (*appointment.Appointment, error) {
	if a, ok := s[id]; ok {
		return a, nil
	}
	return nil, appointment.ErrAppointmentNotFound
}

type recordingDeliverer struct {
	got []ReminderPayload
	err error
}

func (d *recordingDeliverer) Deliver(_ context.Context, p ReminderPayload) error {
	d.got = append(d.got, p)
	return d.err
}

func reminderTask(t *testing.T, r appointment.Reminder) *asynq.Task {
	t.Helper()
	task, _, err := NewReminderTask(r)
	require.NoError(t, err)
	return task
}

func TestReminderHandler_DeliversForConfirmed(t *testing.T) {
	r := sampleReminder(appointment.ChannelEmail)
	appts := stubAppointments{r.AppointmentID: {ID: r.AppointmentID, Status: appointment.StatusConfirmed}}
	d := &recordingDeliverer{}

	err := NewReminderHandler(appts, d, zerolog.Nop())(context.Background(), reminderTask(t, r))
	require.NoError(t, err)
	require.Len(t, d.got, 1)
	assert.Equal(t, "ana@example.com", d.got[0].Email)
}

func TestReminderHandler_SkipsStaleAppointments(t *testing.T) {
	r := sampleReminder(appointment.ChannelEmail)
	d := &recordingDeliverer{}

	for _, st := range []appointment.Status{appointment.StatusCancelled, appointment.StatusRescheduled} {
		appts := stubAppointments{r.AppointmentID: {ID: r.AppointmentID, Status: st}}
		require.NoError(t, NewReminderHandler(appts, d, zerolog.Nop())(context.Background(), reminderTask(t, r)))
	}
	require.NoError(t, NewReminderHandler(stubAppointments{}, d, zerolog.Nop())(context.Background(), reminderTask(t, r)))

	assert.Empty(t, d.got)
}

func TestReminderHandler_BadPayloadSkipsRetry(t *testing.T) {
	task := asynq.NewTask(TypeSendReminder, []byte("{"))
	err := NewReminderHandler(stubAppointments{}, &recordingDeliverer{}, zerolog.Nop())(context.Background(), task)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestReminderHandler_DeliveryFailureRetries(t *testing.T) {
	r := sampleReminder(appointment.ChannelCall)
	appts := stubAppointments{r.AppointmentID: {ID: r.AppointmentID, Status: appointment.StatusConfirmed}}
	boom := errors.New("smtp down")

	err := NewReminderHandler(appts, &recordingDeliverer{err: boom}, zerolog.Nop())(context.Background(), reminderTask(t, r))
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

func TestLogAuditor(t *testing.T) {
	var buf bytes.Buffer
	oldDate := interval.Date{Year: 2024, Month: time.June, Day: 10}
	oldTime := interval.MustClock("09:00")

	err := LogAuditor{Log: zerolog.New(&buf)}.Record(context.Background(), appointment.AuditEntry{
		Event:        appointment.EventAppointmentCancelled,
		Description:  "cancelled",
		PatientEmail: "ana@example.com",
		OldDate:      &oldDate,
		OldTime:      &oldTime,
	})
	require.NoError(t, err)

	var event map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &event))
	assert.Equal(t, appointment.EventAppointmentCancelled, event["event"])
	assert.Equal(t, "2024-06-10 09:00", event["old_slot"])
	assert.NotContains(t, event, "new_slot")
}

type failingAuditor struct{ err error }

func (f failingAuditor) Record(context.Context, appointment.AuditEntry) error { return f.err }

func TestMultiAuditor(t *testing.T) {
	boom := errors.New("db down")
	var buf bytes.Buffer

	m := MultiAuditor{failingAuditor{boom}, LogAuditor{Log: zerolog.New(&buf)}}
	err := m.Record(context.Background(), appointment.AuditEntry{Event: appointment.EventAppointmentCreated})

	assert.ErrorIs(t, err, boom)
	assert.NotZero(t, buf.Len())
}
