package api

import (
	"github.com/hackgods/clinic-scheduling/internal/appointment"
)

type StatusRequest struct {
	Status   string               `json:"status"`
	Metadata appointment.Metadata `json:"metadata,omitempty"`
}

type AvailabilityResponse struct {
	Date  string   `json:"date"`
	Start string   `json:"start"`
	End   string   `json:"end"`
	Slots []string `json:"slots"`
}

type AppointmentListResponse struct {
	Appointments []appointment.Appointment `json:"appointments"`
	Count        int                       `json:"count"`
}

type BlockListResponse struct {
	BlockedSlots []appointment.BlockedSlot `json:"blockedSlots"`
	Count        int                       `json:"count"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Field   string `json:"field,omitempty"`
}
