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

	"github.com/solatis/weaver/internal/weave"
)

func TestRunMetrics_ClassDone(t *testing.T) {
	m := New()
	m.ClassDone("run", weave.ClassResult{
		State: weave.ClassWritten,
		Edits: []weave.Edit{{Kind: weave.EditAddMethod}, {Kind: weave.EditInsertBefore}, {Kind: weave.EditAddMethod}},
	}, 3*time.Millisecond)
	m.ClassDone("run", weave.ClassResult{State: weave.ClassSkipped}, time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClassesTotal.WithLabelValues("written")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.ClassesTotal.WithLabelValues("skipped")), "classes without edits are not counted")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EditsTotal.WithLabelValues("add_method")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EditsTotal.WithLabelValues("insert_before")))
}

func TestRunMetrics_StateChanged(t *testing.T) {
	m := New()
	for _, s := range []weave.State{weave.StateConfigLoaded, weave.StateValidated, weave.StateScanning, weave.StateDone} {
		m.StateChanged("run", s)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LastRunSuccess))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StatesTotal.WithLabelValues("scanning")))
	assert.Greater(t, testutil.ToFloat64(m.LastRunTimestamp), 0.0)

	m.StateChanged("run", weave.StateAborted)
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LastRunSuccess))
}

func TestRunMetrics_WriteTextfile(t *testing.T) {
	m := New()
	m.StateChanged("run", weave.StateDone)
	m.ClassDone("run", weave.ClassResult{State: weave.ClassWritten, Edits: []weave.Edit{{Kind: weave.EditFinally}}}, time.Millisecond)

	path := filepath.Join(t.TempDir(), "weaver.prom")
	require.NoError(t, m.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	text := string(data)
	assert.True(t, strings.Contains(text, `weaver_edits_total{kind="insert_finally"} 1`), text)
	assert.Contains(t, text, "weaver_last_run_success 1")
	assert.Contains(t, text, "weaver_class_duration_seconds_count 1")
}
