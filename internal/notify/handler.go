package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

// Deliverer sends one reminder over its channel.
type Deliverer interface {
	Deliver(ctx context.Context, p ReminderPayload) error
}

// LogDeliverer writes reminders to the log instead of contacting anyone.
type LogDeliverer struct {
	Log zerolog.Logger
}

func (d LogDeliverer) Deliver(_ context.Context, p ReminderPayload) error {
	d.Log.Info().
		Str("appointment_id", p.AppointmentID.String()).
		Str("channel", string(p.Channel)).
		Str("email", p.Email).
		Str("phone", p.Phone).
		Msg(p.Body)
	return nil
}

// AppointmentGetter looks up the current state of an appointment.
type AppointmentGetter interface {
	Get(ctx context.Context, id uuid.UUID) (*appointment.Appointment, error)
}

// NewReminderHandler delivers a reminder if its appointment is still
// confirmed. Reminders for cancelled or superseded bookings are dropped.
func NewReminderHandler(appts AppointmentGetter, d Deliverer, log zerolog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, task *asynq.Task) error {
		var p ReminderPayload
		if err := json.Unmarshal(task.Payload(), &p); err != nil {
			log.Error().Err(err).Msg("invalid reminder payload")
			return fmt.Errorf("decode reminder: %v: %w", err, asynq.SkipRetry)
		}

		appt, err := appts.Get(ctx, p.AppointmentID)
		if errors.Is(err, appointment.ErrNotFound) {
			log.Warn().Str("appointment_id", p.AppointmentID.String()).Msg("reminder for unknown appointment dropped")
			return nil
		}
		if err != nil {
			return fmt.Errorf("load appointment %s: %w", p.AppointmentID, err)
		}
		if appt.Status != appointment.StatusConfirmed {
			log.Info().
				Str("appointment_id", appt.ID.String()).
				Str("status", string(appt.Status)).
				Msg("reminder skipped")
			return nil
		}

		if err := d.Deliver(ctx, p); err != nil {
			log.Error().Err(err).
				Str("appointment_id", p.AppointmentID.String()).
				Str("channel", string(p.Channel)).
				Msg("reminder delivery failed")
			return err
		}
		return nil
	}
}

func NewServeMux(appts AppointmentGetter, d Deliverer, log zerolog.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TypeSendReminder, NewReminderHandler(appts, d, log))
	return mux
}
