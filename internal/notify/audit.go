package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

// LogAuditor writes audit entries to the structured log.
type LogAuditor struct {
	Log zerolog.Logger
}

func (a LogAuditor) Record(_ context.Context, e appointment.AuditEntry) error {
	evt := a.Log.Info().
		Str("event", e.Event).
		Str("appointment_id", e.AppointmentID.String()).
		Str("patient_email", e.PatientEmail)
	if e.OldDate != nil && e.OldTime != nil {
		evt = evt.Str("old_slot", e.OldDate.String()+" "+e.OldTime.String())
	}
	if e.NewDate != nil && e.NewTime != nil {
		evt = evt.Str("new_slot", e.NewDate.String()+" "+e.NewTime.String())
	}
	if len(e.Metadata) > 0 {
		evt = evt.Interface("metadata", e.Metadata)
	}
	evt.Msg(e.Description)
	return nil
}

// MultiAuditor fans an entry out to every auditor and joins their errors.
type MultiAuditor []appointment.Auditor

func (m MultiAuditor) Record(ctx context.Context, e appointment.AuditEntry) error {
	var errs []error
	for _, a := range m {
		if err := a.Record(ctx, e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
