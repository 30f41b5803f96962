package appointment

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/interval"
	"github.com/hackgods/clinic-scheduling/internal/metrics"
	redisclient "github.com/hackgods/clinic-scheduling/internal/redis"
)

type Service struct {
	store     Store
	locker    redisclient.Locker
	cfg       config.Config
	reminders Reminders
	auditor   Auditor
	channels  []Channel
	metrics   *metrics.Metrics
	log       zerolog.Logger
	validate  *validator.Validate
	now       func() time.Time
	loc       *time.Location
}

type Option func(*Service)

func WithReminders(r Reminders) Option { return func(s *Service) { s.reminders = r } }

func WithAuditor(a Auditor) Option { return func(s *Service) { s.auditor = a } }

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithLogger(l zerolog.Logger) Option { return func(s *Service) { s.log = l } }

// WithClock replaces time.Now; tests use it to pin timestamps.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithLocation sets the zone reminder fire times are computed in.
func WithLocation(loc *time.Location) Option { return func(s *Service) { s.loc = loc } }

func NewService(store Store, locker redisclient.Locker, cfg config.Config, opts ...Option) *Service {
	s := &Service{
		store:     store,
		locker:    locker,
		cfg:       cfg,
		reminders: nopReminders{},
		auditor:   nopAuditor{},
		log:       zerolog.Nop(),
		validate:  newValidator(),
		now:       time.Now,
		loc:       time.Local,
	}
	for _, opt := range opts {
		opt(s)
	}

	for _, name := range cfg.ReminderChannels {
		switch ch := Channel(name); ch {
		case ChannelEmail, ChannelWhatsApp, ChannelCall:
			s.channels = append(s.channels, ch)
		default:
			s.log.Warn().Str("channel", name).Msg("ignoring unknown reminder channel")
		}
	}
	return s
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" || name == "" {
			return fld.Name
		}
		return name
	})
	return v
}

// Hours is the configured business window.
func (s *Service) Hours() Hours {
	return Hours{Start: s.cfg.BusinessStart, End: s.cfg.BusinessEnd}
}

// ClampHours narrows h to the configured business window so a listing never
// offers a start that Create would refuse.
func (s *Service) ClampHours(h Hours) Hours {
	if h.Start < s.cfg.BusinessStart {
		h.Start = s.cfg.BusinessStart
	}
	if h.End > s.cfg.BusinessEnd {
		h.End = s.cfg.BusinessEnd
	}
	return h
}

func (s *Service) Policy() Policy {
	return Policy{
		Duration:            s.cfg.AppointmentDuration,
		Buffer:              s.cfg.AppointmentBuffer,
		RescheduledOccupies: s.cfg.RescheduledOccupies,
	}
}

type CreateRequest struct {
	Date            string   `json:"date" validate:"required"`
	Time            string   `json:"time" validate:"required"`
	Duration        int      `json:"duration" validate:"omitempty,min=1,max=480"`
	Name            string   `json:"name" validate:"required"`
	Email           string   `json:"email" validate:"required,email"`
	Phone           string   `json:"phone" validate:"required"`
	Reason          string   `json:"reason"`
	AppointmentType string   `json:"appointmentType"`
	Procedencia     string   `json:"procedencia"`
	Metadata        Metadata `json:"metadata,omitempty"`
}

type RescheduleRequest struct {
	Date     string   `json:"date" validate:"required"`
	Time     string   `json:"time" validate:"required"`
	Metadata Metadata `json:"metadata,omitempty"`
}

type BlockRequest struct {
	Date     string  `json:"date" validate:"required"`
	Time     *string `json:"time"`
	Duration *int    `json:"duration" validate:"omitempty,min=1,max=1440"`
	Reason   string  `json:"reason"`
}

// AvailableSlots returns the bookable start times on date within h, clamped
// to the configured business window.
func (s *Service) AvailableSlots(ctx context.Context, date interval.Date, h Hours) ([]interval.Clock, error) {
	if h.End <= h.Start {
		return nil, invalid("end", "business end %s must be after start %s", h.End, h.Start)
	}
	h = s.ClampHours(h)
	if h.End <= h.Start {
		return []interval.Clock{}, nil
	}

	started := time.Now()
	day, err := loadDay(ctx, s.store, date)
	if err != nil {
		return nil, err
	}
	slots := ComputeSlots(day, h, s.Policy())
	s.metrics.ObserveAvailability(started, len(slots))
	return slots, nil
}

// Create books a new confirmed appointment after re-checking the requested
// window under the date lock.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Appointment, error) {
	appt, err := s.create(ctx, req)
	s.metrics.Observe("create", outcome(err))
	return appt, err
}

func (s *Service) create(ctx context.Context, req CreateRequest) (*Appointment, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = strings.TrimSpace(req.Email)
	req.Phone = strings.TrimSpace(req.Phone)

	if err := s.validateStruct(req); err != nil {
		return nil, err
	}
	date, start, err := parseWhen(req.Date, req.Time)
	if err != nil {
		return nil, err
	}
	duration := req.Duration
	if duration == 0 {
		duration = s.cfg.AppointmentDuration
	}

	var created *Appointment
	err = s.withDates(ctx, []interval.Date{date}, func(ctx context.Context, tx Store) error {
		day, err := loadDay(ctx, tx, date)
		if err != nil {
			return err
		}
		if err := CheckSlot(day, s.Hours(), s.Policy(), start, duration); err != nil {
			return err
		}

		appt := &Appointment{
			ID:              uuid.New(),
			Date:            date,
			Time:            start,
			Duration:        duration,
			Patient:         Patient{Name: req.Name, Email: req.Email, Phone: req.Phone},
			Reason:          req.Reason,
			AppointmentType: req.AppointmentType,
			Procedencia:     req.Procedencia,
			Status:          StatusConfirmed,
			CreatedAt:       s.now(),
		}
		if err := tx.Appointments().Append(ctx, appt); err != nil {
			return fmt.Errorf("append appointment: %w", err)
		}
		created = appt
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("appointment_id", created.ID.String()).
		Str("date", created.Date.String()).
		Str("time", created.Time.String()).
		Msg("appointment created")

	s.scheduleReminders(ctx, created)
	s.record(ctx, AuditEntry{
		Event:         EventAppointmentCreated,
		Title:         "Appointment booked",
		Description:   fmt.Sprintf("Booked for %s at %s", created.Date, created.Time),
		AppointmentID: created.ID,
		PatientEmail:  created.Email,
		NewDate:       &created.Date,
		NewTime:       &created.Time,
		Metadata:      req.Metadata,
	})
	return created, nil
}

// Cancel frees the appointment's slot. It never needs re-validation.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	appt, prev, err := s.transition(ctx, id, StatusCancelled, false)
	s.metrics.Observe("cancel", outcome(err))
	if err != nil {
		return nil, err
	}

	s.record(ctx, AuditEntry{
		Event:         EventAppointmentCancelled,
		Title:         "Appointment cancelled",
		Description:   fmt.Sprintf("Appointment on %s at %s cancelled (was %s)", appt.Date, appt.Time, prev),
		AppointmentID: appt.ID,
		PatientEmail:  appt.Email,
		OldDate:       &appt.Date,
		OldTime:       &appt.Time,
	})
	return appt, nil
}

// UpdateStatus moves an appointment to status. Outside strict mode any
// accepted status may be set from any state.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status string, meta Metadata) (*Appointment, error) {
	next, err := ParseStatus(status)
	if err != nil {
		s.metrics.Observe("update_status", outcome(err))
		return nil, err
	}

	appt, prev, err := s.transition(ctx, id, next, s.cfg.StrictStatus)
	s.metrics.Observe("update_status", outcome(err))
	if err != nil {
		return nil, err
	}

	s.record(ctx, AuditEntry{
		Event:         EventAppointmentStatus,
		Title:         fmt.Sprintf("Appointment marked %s", next),
		Description:   fmt.Sprintf("Status changed from %s to %s", prev, next),
		AppointmentID: appt.ID,
		PatientEmail:  appt.Email,
		Metadata:      meta,
	})
	return appt, nil
}

func (s *Service) transition(ctx context.Context, id uuid.UUID, next Status, strict bool) (*Appointment, Status, error) {
	current, err := s.store.Appointments().ByID(ctx, id)
	if err != nil {
		return nil, "", err
	}

	var (
		updated *Appointment
		prev    Status
	)
	err = s.withDates(ctx, []interval.Date{current.Date}, func(ctx context.Context, tx Store) error {
		appt, err := tx.Appointments().ByID(ctx, id)
		if err != nil {
			return err
		}
		prev = appt.Status

		if strict {
			if next == StatusRescheduled {
				return fmt.Errorf("%w: use reschedule to supersede an appointment", ErrInvalidTransition)
			}
			if !appt.Status.CanTransitionTo(next) {
				return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, appt.Status, next)
			}
		}

		updated, err = tx.Appointments().ReplaceStatus(ctx, id, next, s.now())
		if err != nil {
			return fmt.Errorf("replace status: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return updated, prev, nil
}

// Reschedule supersedes appointment id with a new booking at the requested
// date and time. The new record and the link on the old one commit together.
func (s *Service) Reschedule(ctx context.Context, id uuid.UUID, req RescheduleRequest) (*Appointment, error) {
	appt, err := s.reschedule(ctx, id, req)
	s.metrics.Observe("reschedule", outcome(err))
	return appt, err
}

func (s *Service) reschedule(ctx context.Context, id uuid.UUID, req RescheduleRequest) (*Appointment, error) {
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}
	newDate, newTime, err := parseWhen(req.Date, req.Time)
	if err != nil {
		return nil, err
	}

	original, err := s.store.Appointments().ByID(ctx, id)
	if err != nil {
		return nil, err
	}

	var (
		created *Appointment
		old     *Appointment
	)
	err = s.withDates(ctx, []interval.Date{original.Date, newDate}, func(ctx context.Context, tx Store) error {
		orig, err := tx.Appointments().ByID(ctx, id)
		if err != nil {
			return err
		}
		// A cancelled visit has released its slot; it is never revived.
		if orig.Status == StatusCancelled || (s.cfg.StrictStatus && !orig.Status.CanTransitionTo(StatusRescheduled)) {
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, orig.Status, StatusRescheduled)
		}

		day, err := loadDay(ctx, tx, newDate)
		if err != nil {
			return err
		}
		if err := CheckSlot(day, s.Hours(), s.Policy(), newTime, orig.Duration); err != nil {
			return err
		}

		now := s.now()
		origID := orig.ID
		next := &Appointment{
			ID:                    uuid.New(),
			Date:                  newDate,
			Time:                  newTime,
			Duration:              orig.Duration,
			Patient:               orig.Patient,
			Reason:                orig.Reason,
			AppointmentType:       orig.AppointmentType,
			Procedencia:           orig.Procedencia,
			Status:                StatusConfirmed,
			CreatedAt:             now,
			OriginalAppointmentID: &origID,
		}
		if err := tx.Appointments().Append(ctx, next); err != nil {
			return fmt.Errorf("append rescheduled appointment: %w", err)
		}
		if old, err = tx.Appointments().LinkReschedule(ctx, orig.ID, next.ID, now); err != nil {
			return fmt.Errorf("link reschedule: %w", err)
		}
		created = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("appointment_id", old.ID.String()).
		Str("rescheduled_to", created.ID.String()).
		Msg("appointment rescheduled")

	s.scheduleReminders(ctx, created)
	s.record(ctx, AuditEntry{
		Event:         EventAppointmentRescheduled,
		Title:         "Appointment rescheduled",
		Description:   fmt.Sprintf("Moved from %s %s to %s %s", old.Date, old.Time, created.Date, created.Time),
		AppointmentID: created.ID,
		PatientEmail:  created.Email,
		OldDate:       &old.Date,
		OldTime:       &old.Time,
		NewDate:       &created.Date,
		NewTime:       &created.Time,
		Metadata:      req.Metadata,
	})
	return created, nil
}

// Block registers a blackout. A nil time blocks the whole date; a timed
// block without a duration reserves one visit length.
func (s *Service) Block(ctx context.Context, req BlockRequest) (*BlockedSlot, error) {
	b, err := s.block(ctx, req)
	s.metrics.Observe("block", outcome(err))
	return b, err
}

func (s *Service) block(ctx context.Context, req BlockRequest) (*BlockedSlot, error) {
	if err := s.validateStruct(req); err != nil {
		return nil, err
	}
	date, err := interval.ParseDate(req.Date)
	if err != nil {
		return nil, invalid("date", "%v", err)
	}

	b := &BlockedSlot{
		ID:        uuid.New(),
		Date:      date,
		Reason:    strings.TrimSpace(req.Reason),
		BlockedAt: s.now(),
	}
	if req.Time != nil {
		start, err := interval.ParseClock(*req.Time)
		if err != nil {
			return nil, invalid("time", "%v", err)
		}
		duration := s.cfg.AppointmentDuration
		if req.Duration != nil {
			duration = *req.Duration
		}
		b.Time = &start
		b.Duration = &duration
	}

	err = s.withDates(ctx, []interval.Date{date}, func(ctx context.Context, tx Store) error {
		return tx.Blackouts().Block(ctx, b)
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("block_id", b.ID.String()).
		Str("date", b.Date.String()).
		Bool("whole_day", b.WholeDay()).
		Msg("slot blocked")
	return b, nil
}

func (s *Service) Unblock(ctx context.Context, id uuid.UUID) error {
	err := s.store.Blackouts().Unblock(ctx, id)
	s.metrics.Observe("unblock", outcome(err))
	if err != nil {
		return err
	}
	s.log.Info().Str("block_id", id.String()).Msg("slot unblocked")
	return nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Appointment, error) {
	return s.store.Appointments().ByID(ctx, id)
}

// ListFilter narrows List; the zero value lists everything.
type ListFilter struct {
	Date  *interval.Date
	Email string
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Appointment, error) {
	switch {
	case f.Date != nil:
		return s.store.Appointments().ByDate(ctx, *f.Date)
	case f.Email != "":
		return s.store.Appointments().ByEmail(ctx, f.Email)
	default:
		return s.store.Appointments().All(ctx)
	}
}

func (s *Service) Blocks(ctx context.Context, date *interval.Date) ([]BlockedSlot, error) {
	if date != nil {
		return s.store.Blackouts().ForDate(ctx, *date)
	}
	return s.store.Blackouts().All(ctx)
}

// withDates runs fn in one store transaction while holding the locks for
// dates.
func (s *Service) withDates(ctx context.Context, dates []interval.Date, fn func(ctx context.Context, tx Store) error) error {
	err := s.locker.WithDateLock(ctx, dates, func(lockCtx context.Context) error {
		return s.store.InTx(lockCtx, func(tx Store) error {
			return fn(lockCtx, tx)
		})
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		return ErrDateBusy
	}
	return err
}

func (s *Service) scheduleReminders(ctx context.Context, appt *Appointment) {
	if len(s.channels) == 0 {
		return
	}

	fireAt := appt.Date.AddDays(-1).At(appt.Time, s.loc)
	reminders := make([]Reminder, 0, len(s.channels))
	for _, ch := range s.channels {
		reminders = append(reminders, Reminder{
			AppointmentID: appt.ID,
			Channel:       ch,
			FireAt:        fireAt,
			Patient:       appt.Patient,
			Date:          appt.Date,
			Time:          appt.Time,
		})
	}

	if err := s.reminders.Schedule(ctx, reminders); err != nil {
		s.metrics.SideEffectFailed("reminder")
		s.log.Warn().Err(err).
			Str("appointment_id", appt.ID.String()).
			Msg("failed to schedule reminders")
	}
}

func (s *Service) record(ctx context.Context, entry AuditEntry) {
	entry.At = s.now()
	if err := s.auditor.Record(ctx, entry); err != nil {
		s.metrics.SideEffectFailed("audit")
		s.log.Warn().Err(err).
			Str("event", entry.Event).
			Str("appointment_id", entry.AppointmentID.String()).
			Msg("failed to record audit entry")
	}
}

func (s *Service) validateStruct(v any) error {
	err := s.validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return invalid(fe.Field(), "%s", describeRule(fe))
	}
	return fmt.Errorf("validate request: %w", err)
}

func describeRule(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "email":
		return "must be a valid email"
	case "min":
		return "must be at least " + fe.Param()
	case "max":
		return "must be at most " + fe.Param()
	}
	return fe.Error()
}

func parseWhen(date, clock string) (interval.Date, interval.Clock, error) {
	d, err := interval.ParseDate(date)
	if err != nil {
		return interval.Date{}, 0, invalid("date", "%v", err)
	}
	c, err := interval.ParseClock(clock)
	if err != nil {
		return interval.Date{}, 0, invalid("time", "%v", err)
	}
	return d, c, nil
}

// outcome is the metrics label for an operation's result.
func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrValidation):
		return "invalid"
	case errors.Is(err, ErrSlotUnavailable):
		return "slot_unavailable"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrAlreadyBlocked):
		return "already_blocked"
	case errors.Is(err, ErrInvalidStatus), errors.Is(err, ErrInvalidTransition):
		return "invalid_status"
	case errors.Is(err, ErrDateBusy):
		return "busy"
	}
	return "error"
}
