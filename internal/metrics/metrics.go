package metrics

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Registry holds every toolsgen collector. It is private to the process so a
// run can be dumped as a textfile without the Go runtime collectors.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		SamplesTotal, StageFailuresTotal,
		LLMAttemptsTotal, LLMTokensTotal,
		RateLimitWaitSeconds,
	)
}

// SamplesTotal counts finished samples by outcome (accepted | failed).
var SamplesTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "toolsgen_samples_total",
		Help: "Finished samples by outcome.",
	},
	[]string{"outcome"},
)

var StageFailuresTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "toolsgen_stage_failures_total",
		Help: "Sample failures by pipeline stage and reason.",
	},
	[]string{"stage", "reason"},
)

// LLMAttemptsTotal counts completion attempts by role and result
// (ok | transient | fatal).
var LLMAttemptsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "toolsgen_llm_attempts_total",
		Help: "Completion attempts by role and result.",
	},
	[]string{"role", "result"},
)

var LLMTokensTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "toolsgen_llm_tokens_total",
		Help: "Tokens consumed by role and direction (input | output).",
	},
	[]string{"role", "direction"},
)

var RateLimitWaitSeconds = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "toolsgen_ratelimit_wait_seconds",
		Help:    "Time spent waiting for rate limiter tokens.",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10, 30},
	},
)

// Write encodes the registry in the Prometheus text format.
func Write(w io.Writer) error {
	families, err := Registry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}

// WriteTextfile writes the registry to path atomically, for node_exporter's
// textfile collector or later inspection.
func WriteTextfile(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("creating metrics file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if err := Write(tmp); err != nil {
		tmp.Close()
		return fmt.Errorf("encoding metrics: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing metrics file: %w", err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return fmt.Errorf("chmod metrics file: %w", err)
	}
	return os.Rename(tmp.Name(), path)
}
