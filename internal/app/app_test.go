package app

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/interval"
)

func memoryConfig() config.Config {
	return config.Config{
		StoreDriver:         config.StoreMemory,
		LockDriver:          config.LockLocal,
		BusinessStart:       interval.MustClock("07:00"),
		BusinessEnd:         interval.MustClock("18:00"),
		AppointmentDuration: 50,
		AppointmentBuffer:   10,
		RescheduledOccupies: true,
		RemindersEnabled:    true,
		RedisQueueDB:        1,
	}
}

func TestNew_MemoryNeedsNoBackends(t *testing.T) {
	ctx := context.Background()
	a, err := New(ctx, memoryConfig(), zerolog.Nop(), Options{})
	require.NoError(t, err)
	defer a.Close()

	assert.Empty(t, a.Checks)

	date, _ := interval.ParseDate("2024-06-11")
	slots, err := a.Service.AvailableSlots(ctx, date, a.Service.Hours())
	require.NoError(t, err)
	assert.NotEmpty(t, slots)

	_, err = a.Service.Create(ctx, appointment.CreateRequest{
		Date: "2024-06-11", Time: "09:00", Name: "Ana", Email: "ana@example.com", Phone: "600",
	})
	require.NoError(t, err)

	families, err := a.Registry.Gather()
	require.NoError(t, err)
	var names []string
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "clinic_scheduling_operations_total")
}

func TestNew_UnknownStore(t *testing.T) {
	cfg := memoryConfig()
	cfg.StoreDriver = "sqlite"
	a, err := New(context.Background(), cfg, zerolog.Nop(), Options{})
	assert.Error(t, err)
	a.Close()
}

func TestQueueRedisOpt(t *testing.T) {
	cfg := memoryConfig()
	cfg.RedisAddr = "redis:6379"
	opt := QueueRedisOpt(cfg)
	assert.Equal(t, "redis:6379", opt.Addr)
	assert.Equal(t, 1, opt.DB)
}
