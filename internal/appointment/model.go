package appointment

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/interval"
)

type Status string

const (
	StatusConfirmed   Status = "confirmed"
	StatusCompleted   Status = "completed"
	StatusNoShow      Status = "no-show"
	StatusCancelled   Status = "cancelled"
	StatusRescheduled Status = "rescheduled"
	StatusPatient     Status = "patient"
)

// ParseStatus accepts the statuses an appointment can be moved into.
// "confirmed" is only ever assigned at creation.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusCompleted, StatusNoShow, StatusCancelled, StatusRescheduled, StatusPatient:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

// allowedTransitions is the state machine enforced in strict mode.
var allowedTransitions = map[Status][]Status{
	StatusConfirmed: {StatusCompleted, StatusNoShow, StatusCancelled, StatusRescheduled},
	StatusCompleted: {StatusPatient},
}

func (s Status) CanTransitionTo(next Status) bool {
	for _, st := range allowedTransitions[s] {
		if st == next {
			return true
		}
	}
	return false
}

// Patient is the contact identity carried by an appointment. Email is the
// key that groups a person's appointments.
type Patient struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type Appointment struct {
	ID       uuid.UUID      `json:"id"`
	Date     interval.Date  `json:"date"`
	Time     interval.Clock `json:"time"`
	Duration int            `json:"duration"`
	Patient
	Reason          string `json:"reason,omitempty"`
	AppointmentType string `json:"appointmentType,omitempty"`
	Procedencia     string `json:"procedencia,omitempty"`
	Status          Status `json:"status"`

	CreatedAt     time.Time  `json:"createdAt"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
	NoShowAt      *time.Time `json:"noShowAt,omitempty"`
	CancelledAt   *time.Time `json:"cancelledAt,omitempty"`
	RescheduledAt *time.Time `json:"rescheduledAt,omitempty"`
	PatientAt     *time.Time `json:"patientAt,omitempty"`

	RescheduledToID       *uuid.UUID `json:"rescheduledToId,omitempty"`
	OriginalAppointmentID *uuid.UUID `json:"originalAppointmentId,omitempty"`
}

// Occupied is the buffered range the appointment removes from its date.
func (a Appointment) Occupied(buffer int) interval.Range {
	return interval.Span(a.Time, a.Duration+buffer)
}

// setStatus moves a to status and stamps the matching timestamp field.
func (a *Appointment) setStatus(status Status, at time.Time) {
	a.Status = status
	ts := at
	switch status {
	case StatusCompleted:
		a.CompletedAt = &ts
	case StatusNoShow:
		a.NoShowAt = &ts
	case StatusCancelled:
		a.CancelledAt = &ts
	case StatusRescheduled:
		a.RescheduledAt = &ts
	case StatusPatient:
		a.PatientAt = &ts
	}
}

// BlockedSlot is an administrator-imposed unavailability window. A nil Time
// blocks the whole date.
type BlockedSlot struct {
	ID        uuid.UUID       `json:"id"`
	Date      interval.Date   `json:"date"`
	Time      *interval.Clock `json:"time"`
	Duration  *int            `json:"duration"`
	Reason    string          `json:"reason,omitempty"`
	BlockedAt time.Time       `json:"blockedAt"`
}

func (b BlockedSlot) WholeDay() bool { return b.Time == nil }

// Occupied is the buffered range a timed block removes from its date.
func (b BlockedSlot) Occupied(buffer int) interval.Range {
	duration := 0
	if b.Duration != nil {
		duration = *b.Duration
	}
	return interval.Span(*b.Time, duration+buffer)
}

// sameWindow reports an exact duplicate: same date and same start, where two
// whole-day blocks count as the same.
func (b BlockedSlot) sameWindow(o BlockedSlot) bool {
	if b.Date != o.Date {
		return false
	}
	if b.Time == nil || o.Time == nil {
		return b.Time == nil && o.Time == nil
	}
	return *b.Time == *o.Time
}
