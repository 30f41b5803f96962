package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/interval"
)

type handlers struct {
	svc *appointment.Service
	log zerolog.Logger
}

func (h handlers) availability(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	date, err := interval.ParseDate(q.Get("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
		return
	}

	hours := h.svc.Hours()
	if v := q.Get("start"); v != "" {
		if hours.Start, err = interval.ParseClock(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_start", "start must be HH:MM")
			return
		}
	}
	if v := q.Get("end"); v != "" {
		if hours.End, err = interval.ParseClock(v); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_end", "end must be HH:MM")
			return
		}
	}

	slots, err := h.svc.AvailableSlots(r.Context(), date, hours)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	hours = h.svc.ClampHours(hours)

	resp := AvailabilityResponse{
		Date:  date.String(),
		Start: hours.Start.String(),
		End:   hours.End.String(),
		Slots: make([]string, 0, len(slots)),
	}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, s.String())
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h handlers) createAppointment(w http.ResponseWriter, r *http.Request) {
	var req appointment.CreateRequest
	if !decodeBody(w, r, &req) {
		return
	}

	appt, err := h.svc.Create(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

func (h handlers) listAppointments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	var filter appointment.ListFilter
	if v := q.Get("date"); v != "" {
		date, err := interval.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		filter.Date = &date
	}
	filter.Email = strings.TrimSpace(q.Get("email"))

	appts, err := h.svc.List(r.Context(), filter)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	if appts == nil {
		appts = []appointment.Appointment{}
	}
	writeJSON(w, http.StatusOK, AppointmentListResponse{Appointments: appts, Count: len(appts)})
}

func (h handlers) getAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid_appointment_id")
	if !ok {
		return
	}

	appt, err := h.svc.Get(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h handlers) cancelAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid_appointment_id")
	if !ok {
		return
	}

	appt, err := h.svc.Cancel(r.Context(), id)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h handlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid_appointment_id")
	if !ok {
		return
	}
	var req StatusRequest
	if !decodeBody(w, r, &req) {
		return
	}

	appt, err := h.svc.UpdateStatus(r.Context(), id, req.Status, req.Metadata)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, appt)
}

func (h handlers) rescheduleAppointment(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid_appointment_id")
	if !ok {
		return
	}
	var req appointment.RescheduleRequest
	if !decodeBody(w, r, &req) {
		return
	}

	appt, err := h.svc.Reschedule(r.Context(), id, req)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, appt)
}

func (h handlers) createBlock(w http.ResponseWriter, r *http.Request) {
	var req appointment.BlockRequest
	if !decodeBody(w, r, &req) {
		return
	}

	b, err := h.svc.Block(r.Context(), req)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h handlers) listBlocks(w http.ResponseWriter, r *http.Request) {
	var date *interval.Date
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := interval.ParseDate(v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_date", "date must be YYYY-MM-DD")
			return
		}
		date = &d
	}

	blocks, err := h.svc.Blocks(r.Context(), date)
	if err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	if blocks == nil {
		blocks = []appointment.BlockedSlot{}
	}
	writeJSON(w, http.StatusOK, BlockListResponse{BlockedSlots: blocks, Count: len(blocks)})
}

func (h handlers) deleteBlock(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "invalid_block_id")
	if !ok {
		return
	}

	if err := h.svc.Unblock(r.Context(), id); err != nil {
		writeServiceError(w, h.log, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func pathID(w http.ResponseWriter, r *http.Request, code string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, code, "id must be a valid UUID")
		return uuid.Nil, false
	}
	return id, true
}

const maxBodyBytes = 1 << 20

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid_request_body", "could not parse JSON")
		return false
	}
	return true
}
