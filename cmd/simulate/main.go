package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/interval"
	"github.com/hackgods/clinic-scheduling/internal/logger"
)

// SimConfig is read from SIM_* variables. Buffer and RescheduledOccupies
// come from the service's own configuration so the audit judges overlaps
// the way the server does.
type SimConfig struct {
	BaseURL  string
	Duration time.Duration
	Workers  int
	From     interval.Date
	Days     int

	// Relative weights; normalised in loadSimConfig.
	Book       float64
	Reschedule float64
	Cancel     float64
	Read       float64

	Buffer              int
	RescheduledOccupies bool
}

// bookedIDs is shared by all workers so reschedules and cancels target
// appointments someone actually created.
type bookedIDs struct {
	mu  sync.RWMutex
	ids []uuid.UUID
}

func (b *bookedIDs) add(id uuid.UUID) {
	b.mu.Lock()
	b.ids = append(b.ids, id)
	b.mu.Unlock()
}

func (b *bookedIDs) pick(rng *rand.Rand) (uuid.UUID, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if len(b.ids) == 0 {
		return uuid.Nil, false
	}
	return b.ids[rng.Intn(len(b.ids))], true
}

type Simulator struct {
	cfg    SimConfig
	dates  []interval.Date
	booked bookedIDs
	http   *http.Client
	stats  *runStats
	log    zerolog.Logger
}

func main() {
	log := logger.Component(logger.New(envOr("APP_ENV", "dev"), envOr("LOG_LEVEL", "info"), os.Stdout), "simulate")

	cfg, err := loadSimConfig()
	if err != nil {
		log.Fatal().Err(err).Msg("invalid simulator config")
	}

	log.Info().
		Str("base_url", cfg.BaseURL).
		Dur("duration", cfg.Duration).
		Int("workers", cfg.Workers).
		Str("from", cfg.From.String()).
		Int("days", cfg.Days).
		Float64("book", cfg.Book).
		Float64("reschedule", cfg.Reschedule).
		Float64("cancel", cfg.Cancel).
		Float64("read", cfg.Read).
		Msg("simulator starting")

	sim := NewSimulator(cfg, log)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Duration)
	sim.Run(ctx)
	cancel()

	sim.stats.report(os.Stdout, cfg)

	violations, err := sim.AuditDoubleBookings(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("audit failed")
	}
	if violations > 0 {
		log.Fatal().Int("violations", violations).Msg("double bookings found")
	}
	log.Info().Int("dates", len(sim.dates)).Msg("audit passed: no overlapping bookings")
}

func NewSimulator(cfg SimConfig, log zerolog.Logger) *Simulator {
	dates := make([]interval.Date, cfg.Days)
	for i := range dates {
		dates[i] = cfg.From.AddDays(i)
	}
	return &Simulator{
		cfg:   cfg,
		dates: dates,
		http:  &http.Client{Timeout: 10 * time.Second},
		stats: newRunStats(),
		log:   log,
	}
}

func loadSimConfig() (SimConfig, error) {
	base, err := config.Load()
	if err != nil {
		return SimConfig{}, fmt.Errorf("base config: %w", err)
	}

	from := interval.DateOf(time.Now()).AddDays(1)
	if v := os.Getenv("SIM_FROM"); v != "" {
		if from, err = interval.ParseDate(v); err != nil {
			return SimConfig{}, fmt.Errorf("SIM_FROM: %w", err)
		}
	}

	cfg := SimConfig{
		BaseURL:    envOr("SIM_API_BASE_URL", "http://localhost:"+base.HTTPPort),
		Duration:   envDuration("SIM_DURATION", 30*time.Second),
		Workers:    envInt("SIM_WORKERS", 10),
		From:       from,
		Days:       envInt("SIM_DAYS", 5),
		Book:       envFloat("SIM_BOOK_WEIGHT", 4),
		Reschedule: envFloat("SIM_RESCHEDULE_WEIGHT", 1),
		Cancel:     envFloat("SIM_CANCEL_WEIGHT", 1),
		Read:       envFloat("SIM_READ_WEIGHT", 4),

		Buffer:              base.AppointmentBuffer,
		RescheduledOccupies: base.RescheduledOccupies,
	}

	switch {
	case cfg.Workers <= 0:
		return SimConfig{}, errors.New("SIM_WORKERS must be > 0")
	case cfg.Duration <= 0:
		return SimConfig{}, errors.New("SIM_DURATION must be > 0")
	case cfg.Days <= 0:
		return SimConfig{}, errors.New("SIM_DAYS must be > 0")
	}

	total := cfg.Book + cfg.Reschedule + cfg.Cancel + cfg.Read
	if total <= 0 {
		return SimConfig{}, errors.New("operation weights must add up to more than zero")
	}
	cfg.Book /= total
	cfg.Reschedule /= total
	cfg.Cancel /= total
	cfg.Read /= total
	return cfg, nil
}

// Run starts cfg.Workers workers and blocks until ctx is done.
func (s *Simulator) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < s.cfg.Workers; i++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			s.work(ctx, rand.New(rand.NewSource(seed)))
		}(time.Now().UnixNano() + int64(i))
	}
	wg.Wait()
	s.log.Info().Msg("workers stopped")
}

func (s *Simulator) work(ctx context.Context, rng *rand.Rand) {
	faker := gofakeit.New(rng.Uint64())
	for ctx.Err() == nil {
		switch r := rng.Float64(); {
		case r < s.cfg.Book:
			s.book(ctx, rng, faker)
		case r < s.cfg.Book+s.cfg.Reschedule:
			s.reschedule(ctx, rng)
		case r < s.cfg.Book+s.cfg.Reschedule+s.cfg.Cancel:
			s.cancel(ctx, rng)
		case rng.Intn(2) == 0:
			s.freeSlot(ctx, rng)
		default:
			s.listDate(ctx, rng)
		}
	}
}

func (s *Simulator) randomDate(rng *rand.Rand) interval.Date {
	return s.dates[rng.Intn(len(s.dates))]
}

// freeSlot asks for availability on a random date and returns one of the
// offered start times.
func (s *Simulator) freeSlot(ctx context.Context, rng *rand.Rand) (interval.Date, string, bool) {
	date := s.randomDate(rng)

	var avail api.AvailabilityResponse
	started := time.Now()
	status, err := s.do(ctx, http.MethodGet, "/availability?date="+date.String(), nil, &avail)
	s.stats.observe(opAvailability, started, http.StatusOK, status, err)

	if err != nil || status != http.StatusOK || len(avail.Slots) == 0 {
		return date, "", false
	}
	return date, avail.Slots[rng.Intn(len(avail.Slots))], true
}

func (s *Simulator) book(ctx context.Context, rng *rand.Rand, faker *gofakeit.Faker) {
	date, slot, ok := s.freeSlot(ctx, rng)
	if !ok {
		return
	}

	req := appointment.CreateRequest{
		Date:            date.String(),
		Time:            slot,
		Name:            faker.Name(),
		Email:           faker.Email(),
		Phone:           faker.Phone(),
		AppointmentType: "follow-up",
		Procedencia:     "simulator",
	}

	var created appointment.Appointment
	started := time.Now()
	status, err := s.do(ctx, http.MethodPost, "/appointments", req, &created)
	s.stats.observe(opBook, started, http.StatusCreated, status, err)

	if err == nil && status == http.StatusCreated {
		s.booked.add(created.ID)
	}
}

func (s *Simulator) reschedule(ctx context.Context, rng *rand.Rand) {
	id, ok := s.booked.pick(rng)
	if !ok {
		return
	}
	date, slot, ok := s.freeSlot(ctx, rng)
	if !ok {
		return
	}

	var moved appointment.Appointment
	started := time.Now()
	status, err := s.do(ctx, http.MethodPost, "/appointments/"+id.String()+"/reschedule",
		appointment.RescheduleRequest{Date: date.String(), Time: slot}, &moved)
	s.stats.observe(opReschedule, started, http.StatusCreated, status, err)

	if err == nil && status == http.StatusCreated {
		s.booked.add(moved.ID)
	}
}

func (s *Simulator) cancel(ctx context.Context, rng *rand.Rand) {
	id, ok := s.booked.pick(rng)
	if !ok {
		return
	}

	started := time.Now()
	status, err := s.do(ctx, http.MethodPost, "/appointments/"+id.String()+"/cancel", nil, nil)
	s.stats.observe(opCancel, started, http.StatusOK, status, err)
}

func (s *Simulator) listDate(ctx context.Context, rng *rand.Rand) {
	started := time.Now()
	status, err := s.do(ctx, http.MethodGet, "/appointments?date="+s.randomDate(rng).String(), nil, nil)
	s.stats.observe(opListDate, started, http.StatusOK, status, err)
}

// AuditDoubleBookings lists every simulated date and counts pairs of
// occupying appointments whose buffered ranges overlap.
func (s *Simulator) AuditDoubleBookings(ctx context.Context) (int, error) {
	violations := 0
	for _, date := range s.dates {
		var list api.AppointmentListResponse
		status, err := s.do(ctx, http.MethodGet, "/appointments?date="+date.String(), nil, &list)
		if err != nil {
			return 0, fmt.Errorf("list %s: %w", date, err)
		}
		if status != http.StatusOK {
			return 0, fmt.Errorf("list %s: unexpected status %d", date, status)
		}

		occupying := make([]appointment.Appointment, 0, len(list.Appointments))
		for _, a := range list.Appointments {
			if a.Status == appointment.StatusRescheduled && !s.cfg.RescheduledOccupies {
				continue
			}
			occupying = append(occupying, a)
		}

		for i, a := range occupying {
			for _, b := range occupying[i+1:] {
				if !a.Occupied(s.cfg.Buffer).Overlaps(b.Occupied(s.cfg.Buffer)) {
					continue
				}
				violations++
				s.log.Error().
					Str("date", date.String()).
					Str("first_id", a.ID.String()).
					Str("first_time", a.Time.String()).
					Str("second_id", b.ID.String()).
					Str("second_time", b.Time.String()).
					Msg("overlapping bookings")
			}
		}
	}
	return violations, nil
}

// do sends in as JSON and decodes a 2xx body into out when out is non-nil.
func (s *Simulator) do(ctx context.Context, method, path string, in, out any) (int, error) {
	var body bytes.Buffer
	if in != nil {
		if err := json.NewEncoder(&body).Encode(in); err != nil {
			return 0, fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, s.cfg.BaseURL+path, &body)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if out != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode response: %w", err)
		}
	}
	return resp.StatusCode, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return d
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if n, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return n
	}
	return fallback
}

func envFloat(key string, fallback float64) float64 {
	if f, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil {
		return f
	}
	return fallback
}
