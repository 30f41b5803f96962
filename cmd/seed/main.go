package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/spf13/cobra"

	"github.com/hackgods/clinic-scheduling/internal/app"
	"github.com/hackgods/clinic-scheduling/internal/appointment"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/interval"
	"github.com/hackgods/clinic-scheduling/internal/logger"
)

type seedOptions struct {
	from            string
	days            int
	perDay          int
	blockedDays     int
	cancelRatio     float64
	rescheduleRatio float64
	seed            uint64
	reminders       bool
}

func main() {
	opts := seedOptions{}

	rootCmd := &cobra.Command{
		Use:   "seed",
		Short: "Book fake appointments through the scheduling engine",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	f := rootCmd.Flags()
	f.StringVar(&opts.from, "from", "", "first date to seed (YYYY-MM-DD, default tomorrow)")
	f.IntVar(&opts.days, "days", 14, "number of consecutive dates to seed")
	f.IntVar(&opts.perDay, "per-day", 5, "appointments to book per date")
	f.IntVar(&opts.blockedDays, "blocked-days", 1, "dates to block entirely")
	f.Float64Var(&opts.cancelRatio, "cancel-ratio", 0.1, "share of bookings to cancel afterwards")
	f.Float64Var(&opts.rescheduleRatio, "reschedule-ratio", 0.1, "share of bookings to reschedule afterwards")
	f.Uint64Var(&opts.seed, "seed", 0, "random seed (0 picks one)")
	f.BoolVar(&opts.reminders, "reminders", false, "enqueue reminders for seeded bookings")

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

type tally struct {
	booked, cancelled, rescheduled, blocked, full int
}

func run(ctx context.Context, opts seedOptions) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config load: %w", err)
	}
	log := logger.Component(logger.New(cfg.Env, cfg.LogLevel, os.Stdout), "seed")

	from := interval.DateOf(time.Now()).AddDays(1)
	if opts.from != "" {
		if from, err = interval.ParseDate(opts.from); err != nil {
			return fmt.Errorf("--from: %w", err)
		}
	}

	a, err := app.New(ctx, cfg, log, app.Options{EnqueueReminders: opts.reminders})
	defer a.Close()
	if err != nil {
		return err
	}

	faker := gofakeit.New(opts.seed)
	svc := a.Service

	log.Info().
		Str("from", from.String()).
		Int("days", opts.days).
		Int("per_day", opts.perDay).
		Msg("seed starting")

	var (
		t      tally
		booked []appointment.Appointment
	)
	for i := 0; i < opts.days; i++ {
		date := from.AddDays(i)

		if i < opts.blockedDays {
			_, err := svc.Block(ctx, appointment.BlockRequest{Date: date.String(), Reason: "Clinic closed"})
			if err != nil && !errors.Is(err, appointment.ErrAlreadyBlocked) {
				return fmt.Errorf("block %s: %w", date, err)
			}
			t.blocked++
			continue
		}

		appts, err := seedDate(ctx, svc, faker, date, opts.perDay, &t)
		if err != nil {
			return err
		}
		booked = append(booked, appts...)
		log.Info().Str("date", date.String()).Int("booked", len(appts)).Msg("date seeded")
	}

	for _, appt := range booked {
		switch r := faker.Float64(); {
		case r < opts.cancelRatio:
			if _, err := svc.Cancel(ctx, appt.ID); err != nil {
				return fmt.Errorf("cancel %s: %w", appt.ID, err)
			}
			t.cancelled++
		case r < opts.cancelRatio+opts.rescheduleRatio:
			if rescheduleSomewhere(ctx, svc, faker, appt, from, opts.days) {
				t.rescheduled++
			}
		}
	}

	log.Info().
		Int("booked", t.booked).
		Int("cancelled", t.cancelled).
		Int("rescheduled", t.rescheduled).
		Int("blocked_days", t.blocked).
		Int("full_days", t.full).
		Msg("seed complete")
	return nil
}

func seedDate(ctx context.Context, svc *appointment.Service, faker *gofakeit.Faker, date interval.Date, n int, t *tally) ([]appointment.Appointment, error) {
	slots, err := svc.AvailableSlots(ctx, date, svc.Hours())
	if err != nil {
		return nil, fmt.Errorf("availability %s: %w", date, err)
	}
	faker.ShuffleAnySlice(slots)

	var out []appointment.Appointment
	for _, slot := range slots {
		if len(out) == n {
			break
		}
		appt, err := svc.Create(ctx, fakeBooking(faker, date, slot))
		if errors.Is(err, appointment.ErrSlotUnavailable) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("book %s %s: %w", date, slot, err)
		}
		out = append(out, *appt)
		t.booked++
	}
	if len(out) < n {
		t.full++
	}
	return out, nil
}

func rescheduleSomewhere(ctx context.Context, svc *appointment.Service, faker *gofakeit.Faker, appt appointment.Appointment, from interval.Date, days int) bool {
	target := from.AddDays(faker.Number(0, days-1))
	slots, err := svc.AvailableSlots(ctx, target, svc.Hours())
	if err != nil || len(slots) == 0 {
		return false
	}
	slot := slots[faker.Number(0, len(slots)-1)]
	_, err = svc.Reschedule(ctx, appt.ID, appointment.RescheduleRequest{
		Date:     target.String(),
		Time:     slot.String(),
		Metadata: appointment.Metadata{"source": "seed"},
	})
	return err == nil
}

var (
	appointmentTypes = []string{"first-visit", "follow-up", "assessment", "online"}
	procedencias     = []string{"web", "phone", "referral", "instagram", "walk-in"}
	reasons          = []string{"Back pain", "Post-surgery follow-up", "Sports injury", "Neck stiffness", "Routine check"}
)

func fakeBooking(faker *gofakeit.Faker, date interval.Date, slot interval.Clock) appointment.CreateRequest {
	return appointment.CreateRequest{
		Date:            date.String(),
		Time:            slot.String(),
		Name:            faker.Name(),
		Email:           faker.Email(),
		Phone:           faker.Phone(),
		Reason:          faker.RandomString(reasons),
		AppointmentType: faker.RandomString(appointmentTypes),
		Procedencia:     faker.RandomString(procedencias),
		Metadata:        appointment.Metadata{"source": "seed"},
	}
}
