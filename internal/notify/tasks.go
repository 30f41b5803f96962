package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

const TypeSendReminder = "reminder:send"

// ReminderPayload is the JSON body of a reminder:send task.
type ReminderPayload struct {
	AppointmentID uuid.UUID           `json:"appointmentId"`
	Channel       appointment.Channel `json:"channel"`
	Name          string              `json:"name"`
	Email         string              `json:"email"`
	Phone         string              `json:"phone"`
	Date          string              `json:"date"`
	Time          string              `json:"time"`
	FireAt        time.Time           `json:"fireAt"`
	Title         string              `json:"title"`
	Body          string              `json:"body"`
}

func payloadFor(r appointment.Reminder) ReminderPayload {
	return ReminderPayload{
		AppointmentID: r.AppointmentID,
		Channel:       r.Channel,
		Name:          r.Patient.Name,
		Email:         r.Patient.Email,
		Phone:         r.Patient.Phone,
		Date:          r.Date.String(),
		Time:          r.Time.String(),
		FireAt:        r.FireAt,
		Title:         "Appointment reminder",
		Body: fmt.Sprintf("Hi %s, this is a reminder of your appointment on %s at %s.",
			r.Patient.Name, r.Date, r.Time),
	}
}

// taskID makes enqueueing idempotent per appointment and channel.
func taskID(r appointment.Reminder) string {
	return fmt.Sprintf("reminder:%s:%s", r.AppointmentID, r.Channel)
}

func NewReminderTask(r appointment.Reminder) (*asynq.Task, []asynq.Option, error) {
	b, err := json.Marshal(payloadFor(r))
	if err != nil {
		return nil, nil, err
	}
	task := asynq.NewTask(TypeSendReminder, b)
	opts := []asynq.Option{
		asynq.ProcessAt(r.FireAt),
		asynq.TaskID(taskID(r)),
		asynq.MaxRetry(5),
	}
	return task, opts, nil
}

// Enqueuer is the part of *asynq.Client used to schedule tasks.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqReminders schedules reminders as delayed asynq tasks.
type AsynqReminders struct {
	client Enqueuer
	log    zerolog.Logger
}

func NewAsynqReminders(client Enqueuer, log zerolog.Logger) *AsynqReminders {
	return &AsynqReminders{client: client, log: log}
}

func (a *AsynqReminders) Schedule(ctx context.Context, reminders []appointment.Reminder) error {
	var errs []error
	for _, r := range reminders {
		task, opts, err := NewReminderTask(r)
		if err != nil {
			errs = append(errs, fmt.Errorf("build %s reminder: %w", r.Channel, err))
			continue
		}

		info, err := a.client.EnqueueContext(ctx, task, opts...)
		switch {
		case errors.Is(err, asynq.ErrTaskIDConflict):
			a.log.Debug().Str("task_id", taskID(r)).Msg("reminder already queued")
		case err != nil:
			errs = append(errs, fmt.Errorf("enqueue %s reminder: %w", r.Channel, err))
		default:
			a.log.Debug().
				Str("task_id", info.ID).
				Str("channel", string(r.Channel)).
				Time("fire_at", r.FireAt).
				Msg("reminder queued")
		}
	}
	return errors.Join(errs...)
}
