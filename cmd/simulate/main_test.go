package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/interval"
)

func newTestServer(t *testing.T) (*httptest.Server, *appointment.Service) {
	t.Helper()
	cfg := config.Config{
		BusinessStart:       interval.MustClock("07:00"),
		BusinessEnd:         interval.MustClock("18:00"),
		AppointmentDuration: 50,
		AppointmentBuffer:   10,
		RescheduledOccupies: true,
	}
	svc := appointment.NewService(appointment.NewMemoryStore(), appointment.NewLocalLocker(), cfg)
	srv := httptest.NewServer(api.NewRouter(api.RouterConfig{Service: svc, Logger: zerolog.Nop()}))
	t.Cleanup(srv.Close)
	return srv, svc
}

func testSimConfig(baseURL string) SimConfig {
	return SimConfig{
		BaseURL:             baseURL,
		Duration:            300 * time.Millisecond,
		Workers:             4,
		From:                interval.Date{Year: 2030, Month: time.June, Day: 10},
		Days:                2,
		Book:                0.5,
		Reschedule:          0.1,
		Cancel:              0.1,
		Read:                0.3,
		Buffer:              10,
		RescheduledOccupies: true,
	}
}

func TestSimulator_RunLeavesNoOverlaps(t *testing.T) {
	srv, _ := newTestServer(t)
	sim := NewSimulator(testSimConfig(srv.URL), zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), sim.cfg.Duration)
	defer cancel()
	sim.Run(ctx)

	assert.Positive(t, sim.stats.count(opBook, "ok"))

	violations, err := sim.AuditDoubleBookings(context.Background())
	require.NoError(t, err)
	assert.Zero(t, violations)

	var out bytes.Buffer
	sim.stats.report(&out, sim.cfg)
	assert.Contains(t, out.String(), "SIMULATION REPORT")
	assert.Contains(t, out.String(), "book:")
}

func TestAuditDoubleBookings_FlagsOverlap(t *testing.T) {
	overlapping := api.AppointmentListResponse{
		Appointments: []appointment.Appointment{
			{Time: interval.MustClock("09:00"), Duration: 50, Status: appointment.StatusConfirmed},
			{Time: interval.MustClock("09:30"), Duration: 50, Status: appointment.StatusConfirmed},
			{Time: interval.MustClock("11:00"), Duration: 50, Status: appointment.StatusConfirmed},
		},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		assert.NoError(t, json.NewEncoder(w).Encode(overlapping))
	}))
	defer srv.Close()

	cfg := testSimConfig(srv.URL)
	cfg.Days = 1
	violations, err := NewSimulator(cfg, zerolog.Nop()).AuditDoubleBookings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, violations)
}

func TestAuditDoubleBookings_RescheduledCanBeIgnored(t *testing.T) {
	list := api.AppointmentListResponse{
		Appointments: []appointment.Appointment{
			{Time: interval.MustClock("09:00"), Duration: 50, Status: appointment.StatusRescheduled},
			{Time: interval.MustClock("09:00"), Duration: 50, Status: appointment.StatusConfirmed},
		},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NoError(t, json.NewEncoder(w).Encode(list))
	}))
	defer srv.Close()

	cfg := testSimConfig(srv.URL)
	cfg.Days = 1
	cfg.RescheduledOccupies = false
	violations, err := NewSimulator(cfg, zerolog.Nop()).AuditDoubleBookings(context.Background())
	require.NoError(t, err)
	assert.Zero(t, violations)
}

func TestRunStats_Classifies(t *testing.T) {
	s := newRunStats()
	now := time.Now()

	s.observe(opCancel, now, http.StatusOK, http.StatusOK, nil)
	s.observe(opCancel, now, http.StatusOK, http.StatusConflict, nil)
	s.observe(opCancel, now, http.StatusOK, 0, errors.New("connection refused"))
	s.observe(opCancel, now, http.StatusOK, http.StatusNotFound, nil)

	assert.Equal(t, 1.0, s.count(opCancel, "ok"))
	assert.Equal(t, 1.0, s.count(opCancel, "conflict"))
	assert.Equal(t, 2.0, s.count(opCancel, "error"))
	assert.Equal(t, uint64(4), s.summary(opCancel).GetSampleCount())
}

func TestLoadSimConfig_NormalisesWeights(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("LOCK_DRIVER", "local")
	t.Setenv("SIM_FROM", "2030-01-07")
	t.Setenv("SIM_BOOK_WEIGHT", "2")
	t.Setenv("SIM_RESCHEDULE_WEIGHT", "1")
	t.Setenv("SIM_CANCEL_WEIGHT", "1")
	t.Setenv("SIM_READ_WEIGHT", "0")

	cfg, err := loadSimConfig()
	require.NoError(t, err)
	assert.InDelta(t, 0.5, cfg.Book, 1e-9)
	assert.InDelta(t, 0.25, cfg.Reschedule, 1e-9)
	assert.InDelta(t, 0.25, cfg.Cancel, 1e-9)
	assert.Zero(t, cfg.Read)
	assert.Equal(t, "2030-01-07", cfg.From.String())
}

func TestLoadSimConfig_RejectsZeroWorkers(t *testing.T) {
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("LOCK_DRIVER", "local")
	t.Setenv("SIM_WORKERS", "0")

	_, err := loadSimConfig()
	assert.Error(t, err)
}
