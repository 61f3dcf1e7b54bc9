package metrics

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mesh-intelligence/boards/internal/ranking"
)

func TestRecorder_CountsOperations(t *testing.T) {
	r := New()
	r.ObserveOperation(ranking.OpReposition, "ok", 3, 2*time.Millisecond)
	r.ObserveOperation(ranking.OpReposition, "ok", 1, time.Millisecond)
	r.ObserveOperation(ranking.OpTransfer, "conflict", 0, time.Millisecond)
	r.ObserveRetry(ranking.OpRemove)
	r.ObserveRetry(ranking.OpRemove)

	assert.Equal(t, 2.0, testutil.ToFloat64(r.operations.WithLabelValues(ranking.OpReposition, "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.operations.WithLabelValues(ranking.OpTransfer, "conflict")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.retries.WithLabelValues(ranking.OpRemove)))
	assert.Equal(t, 1, testutil.CollectAndCount(r.shifted), "failed operations record no shift count")
	assert.Equal(t, 2, testutil.CollectAndCount(r.duration))
}

func TestRecorder_GatherAndCompare(t *testing.T) {
	r := New()
	r.ObserveOperation(ranking.OpRemove, "ok", 4, time.Millisecond)

	expected := `
# HELP boards_ranking_retries_total Attempts re-run after a transient storage failure.
# TYPE boards_ranking_retries_total counter
boards_ranking_retries_total{op="append"} 1
`
	r.ObserveRetry(ranking.OpAppend)
	require.NoError(t, testutil.GatherAndCompare(r.Registry(), strings.NewReader(expected), "boards_ranking_retries_total"))

	count, err := testutil.GatherAndCount(r.Registry(), "boards_ranking_shifted_tasks")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := New()
	r.ObserveOperation(ranking.OpAppend, "ok", 0, time.Millisecond)

	path := filepath.Join(t.TempDir(), "boards.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `boards_ranking_operations_total{op="append",outcome="ok"} 1`)
}

func TestRecorder_WriteTextfileBadPath(t *testing.T) {
	r := New()
	err := r.WriteTextfile(filepath.Join(t.TempDir(), "missing", "boards.prom"))
	assert.Error(t, err)
}
