package main

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

const (
	opAvailability = "availability"
	opBook         = "book"
	opReschedule   = "reschedule"
	opCancel       = "cancel"
	opListDate     = "list_by_date"
)

var reportOrder = []string{opAvailability, opBook, opReschedule, opCancel, opListDate}

// runStats keeps per-operation outcomes and latencies on a private registry.
type runStats struct {
	results *prometheus.CounterVec
	latency *prometheus.SummaryVec
}

func newRunStats() *runStats {
	reg := prometheus.NewRegistry()
	s := &runStats{
		results: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "simulate",
			Name:      "requests_total",
		}, []string{"operation", "result"}),
		latency: prometheus.NewSummaryVec(prometheus.SummaryOpts{
			Namespace:  "simulate",
			Name:       "request_seconds",
			Objectives: map[float64]float64{0.5: 0.01, 0.95: 0.005, 0.99: 0.001},
			MaxAge:     time.Hour,
		}, []string{"operation"}),
	}
	reg.MustRegister(s.results, s.latency)
	return s
}

// observe classifies one call: the expected status is ok, 409 is a
// conflict, anything else (including transport errors) is an error.
func (s *runStats) observe(op string, started time.Time, want, got int, err error) {
	result := "error"
	switch {
	case err == nil && got == want:
		result = "ok"
	case got == http.StatusConflict:
		result = "conflict"
	}
	s.results.WithLabelValues(op, result).Inc()
	s.latency.WithLabelValues(op).Observe(time.Since(started).Seconds())
}

func (s *runStats) count(op, result string) float64 {
	var m dto.Metric
	if err := s.results.WithLabelValues(op, result).Write(&m); err != nil {
		return 0
	}
	return m.GetCounter().GetValue()
}

func (s *runStats) summary(op string) *dto.Summary {
	var m dto.Metric
	metric, ok := s.latency.WithLabelValues(op).(prometheus.Metric)
	if !ok || metric.Write(&m) != nil {
		return &dto.Summary{}
	}
	return m.GetSummary()
}

func (s *runStats) report(w io.Writer, cfg SimConfig) {
	rule := strings.Repeat("=", 80)
	fmt.Fprintln(w)
	fmt.Fprintln(w, rule)
	fmt.Fprintln(w, "SIMULATION REPORT")
	fmt.Fprintln(w, rule)
	fmt.Fprintf(w, "Duration: %s  Workers: %d  Dates: %s +%d days\n\n", cfg.Duration, cfg.Workers, cfg.From, cfg.Days)

	for _, op := range reportOrder {
		ok, conflict, failed := s.count(op, "ok"), s.count(op, "conflict"), s.count(op, "error")
		total := ok + conflict + failed
		if total == 0 {
			continue
		}

		fmt.Fprintf(w, "%s:\n", op)
		fmt.Fprintf(w, "  total=%.0f ok=%.0f (%.1f%%) conflict=%.0f error=%.0f\n",
			total, ok, ok/total*100, conflict, failed)

		sum := s.summary(op)
		if n := sum.GetSampleCount(); n > 0 {
			mean := time.Duration(sum.GetSampleSum() / float64(n) * float64(time.Second))
			fmt.Fprintf(w, "  latency mean=%s", mean.Round(time.Microsecond))
			for _, q := range sum.GetQuantile() {
				d := time.Duration(q.GetValue() * float64(time.Second))
				fmt.Fprintf(w, " p%.0f=%s", q.GetQuantile()*100, d.Round(time.Microsecond))
			}
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w)
	}
}
