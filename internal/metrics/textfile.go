package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"udpwatch/internal/model"
)

// Gauges describes the last watchdog run for one channel, in the shape a
// node_exporter textfile collector picks up.
type Gauges struct {
	lastOutcome   *prometheus.GaugeVec
	lastBytes     *prometheus.GaugeVec
	lastRun       *prometheus.GaugeVec
	lastDuration  *prometheus.GaugeVec
	lastRemediate *prometheus.GaugeVec
}

func NewGauges(registerer prometheus.Registerer) *Gauges {
	factory := promauto.With(registerer)
	return &Gauges{
		lastOutcome: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "udpwatch_last_outcome",
				Help: "1 for the outcome of the most recent probe, 0 for the others",
			},
			[]string{"channel", "endpoint", "outcome"},
		),
		lastBytes: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "udpwatch_last_received_bytes",
				Help: "Size of the datagram that confirmed liveness, 0 when none arrived",
			},
			[]string{"channel"},
		),
		lastRun: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "udpwatch_last_run_timestamp_seconds",
				Help: "Unix time the most recent probe started",
			},
			[]string{"channel"},
		),
		lastDuration: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "udpwatch_last_duration_seconds",
				Help: "Wall-clock duration of the most recent probe",
			},
			[]string{"channel"},
		),
		lastRemediate: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "udpwatch_last_killed_pid",
				Help: "PID killed by the most recent probe, 0 when nothing was killed",
			},
			[]string{"channel"},
		),
	}
}

// Observe records one run.
func (g *Gauges) Observe(r model.HistoryRecord) {
	for _, kind := range model.OutcomeKinds {
		value := 0.0
		if kind == r.Outcome {
			value = 1
		}
		g.lastOutcome.WithLabelValues(r.Channel, r.Endpoint, kind.String()).Set(value)
	}
	g.lastBytes.WithLabelValues(r.Channel).Set(float64(r.Bytes))
	g.lastRun.WithLabelValues(r.Channel).Set(float64(r.Timestamp.UnixNano()) / 1e9)
	g.lastDuration.WithLabelValues(r.Channel).Set(r.Duration.Seconds())
	killed := 0
	if r.Outcome == model.Remediated {
		killed = r.PID
	}
	g.lastRemediate.WithLabelValues(r.Channel).Set(float64(killed))
}

// TextfilePath returns the per-channel file inside a textfile collector
// directory. Each channel owns its file, so concurrent runs for different
// channels never overwrite each other's series.
func TextfilePath(dir, channel string) string {
	return filepath.Join(dir, "udpwatch_"+channel+".prom")
}

// WriteTextfile renders the run into the channel's file under dir. The write
// goes through a temporary file and a rename so collectors never read a
// partial file.
func WriteTextfile(dir string, r model.HistoryRecord) error {
	if r.Channel == "" || strings.ContainsAny(r.Channel, `/\`) {
		return fmt.Errorf("invalid channel name %q", r.Channel)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	path := TextfilePath(dir, r.Channel)
	registry := prometheus.NewRegistry()
	NewGauges(registry).Observe(r)
	if err := prometheus.WriteToTextfile(path, registry); err != nil {
		return fmt.Errorf("write textfile %s: %w", path, err)
	}
	return nil
}
