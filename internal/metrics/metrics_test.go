package metrics_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/toolsgen/internal/metrics"
)

func TestWriteTextfile(t *testing.T) {
	metrics.SamplesTotal.WithLabelValues("accepted").Add(3)
	metrics.StageFailuresTotal.WithLabelValues("judge", "low_quality").Inc()

	path := filepath.Join(t.TempDir(), "metrics.prom")
	require.NoError(t, metrics.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, `toolsgen_samples_total{outcome="accepted"}`)
	assert.Contains(t, text, `toolsgen_stage_failures_total{reason="low_quality",stage="judge"} 1`)
}
