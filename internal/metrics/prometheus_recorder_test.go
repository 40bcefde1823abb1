package metrics

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	reg := prom.NewRegistry()
	pr := NewPrometheusRecorder(reg)
	pr.ObserveStageDuration("detect", 150*time.Millisecond)
	pr.ObserveBuildDuration(500 * time.Millisecond)
	pr.IncStageResult("compile", ResultSuccess)
	pr.IncBuildOutcome(OutcomeSuccess)
	pr.ObserveCompileDuration("c++", 2*time.Second, true)
	pr.ObserveCompileDuration("c", time.Second, false)
	pr.SetCompileConcurrency(8)
	pr.SetUnits(12, 3)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	names := map[string]bool{}
	for _, mf := range mfs {
		names[mf.GetName()] = true
	}
	for _, want := range []string{
		"fpmake_build_duration_seconds",
		"fpmake_compile_duration_seconds",
		"fpmake_compile_results_total",
		"fpmake_units_changed",
	} {
		assert.True(t, names[want], "missing %s", want)
	}
}

func TestNilPrometheusRecorderIsSafe(t *testing.T) {
	var pr *PrometheusRecorder
	pr.ObserveBuildDuration(time.Second)
	pr.SetUnits(1, 1)
	pr.IncBuildOutcome(OutcomeError)
}

func TestWriteTextfileAndHTTPHandler(t *testing.T) {
	pr := NewPrometheusRecorder(nil)
	pr.SetUnits(4, 1)

	path := filepath.Join(t.TempDir(), "metrics", "fpmake.prom")
	require.NoError(t, WriteTextfile(path, pr.Registry()))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "fpmake_units 4")

	rr := httptest.NewRecorder()
	HTTPHandler(pr.Registry()).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, strings.Contains(rr.Body.String(), "fpmake_units_changed 1"))
}

var _ Recorder = NoopRecorder{}
var _ Recorder = (*PrometheusRecorder)(nil)
