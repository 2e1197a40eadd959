package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveCycle(t *testing.T) {
	m := New()

	m.ObserveCycle(ResultSuccess, 2*time.Second)
	m.ObserveCycle(ResultSkipped, 0)
	m.ObserveCycle(ResultFailed, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Cycles.WithLabelValues(ResultSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Cycles.WithLabelValues(ResultSkipped)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Cycles.WithLabelValues(ResultFailed)))
	assert.Greater(t, testutil.ToFloat64(m.LastSuccess), 0.0)
}

func TestIndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.RowsPruned.Add(3)

	assert.Equal(t, 3.0, testutil.ToFloat64(a.RowsPruned))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.RowsPruned))
}

func TestHandler(t *testing.T) {
	m := New()
	m.PointsChanged.Add(7)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "leaderboard_points_changed_total 7")
}
