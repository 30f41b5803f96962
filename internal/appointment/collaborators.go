package appointment

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/hackgods/clinic-scheduling/internal/interval"
)

type Channel string

const (
	ChannelEmail    Channel = "email"
	ChannelWhatsApp Channel = "whatsapp"
	ChannelCall     Channel = "call"
)

// Reminder asks the notification side to contact a patient ahead of a visit.
type Reminder struct {
	AppointmentID uuid.UUID      `json:"appointmentId"`
	Channel       Channel        `json:"channel"`
	FireAt        time.Time      `json:"fireAt"`
	Patient       Patient        `json:"patient"`
	Date          interval.Date  `json:"date"`
	Time          interval.Clock `json:"time"`
}

// Reminders accepts reminder requests. Delivery and retries are its concern.
type Reminders interface {
	Schedule(ctx context.Context, reminders []Reminder) error
}

// Metadata is an opaque blob forwarded to the audit trail untouched.
type Metadata map[string]any

// AuditEntry is one interaction recorded against a patient's history.
type AuditEntry struct {
	Event         string          `json:"event"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	AppointmentID uuid.UUID       `json:"appointmentId"`
	PatientEmail  string          `json:"patientEmail"`
	OldDate       *interval.Date  `json:"oldDate,omitempty"`
	OldTime       *interval.Clock `json:"oldTime,omitempty"`
	NewDate       *interval.Date  `json:"newDate,omitempty"`
	NewTime       *interval.Clock `json:"newTime,omitempty"`
	Metadata      Metadata        `json:"metadata,omitempty"`
	At            time.Time       `json:"at"`
}

type Auditor interface {
	Record(ctx context.Context, entry AuditEntry) error
}

type nopReminders struct{}

func (nopReminders) Schedule(context.Context, []Reminder) error { return nil }

type nopAuditor struct{}

func (nopAuditor) Record(context.Context, AuditEntry) error { return nil }

const (
	EventAppointmentCreated     = "APPOINTMENT_CREATED"
	EventAppointmentCancelled   = "APPOINTMENT_CANCELLED"
	EventAppointmentStatus      = "APPOINTMENT_STATUS_CHANGED"
	EventAppointmentRescheduled = "APPOINTMENT_RESCHEDULED"
)
