package monitor

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotCountsActivity(t *testing.T) {
	s := NewStats()
	s.RecordEdit("add")
	s.RecordEdit("add")
	s.RecordEdit("delete")
	s.RecordMove("undo")
	s.ObserveQuery(time.Microsecond)
	s.SetDocuments(3)

	snap := s.Snapshot()
	assert.Equal(t, uint64(2), snap.Edits["add"])
	assert.Equal(t, uint64(0), snap.Edits["change"])
	assert.Equal(t, uint64(1), snap.Edits["delete"])
	assert.Equal(t, uint64(1), snap.Moves["undo"])
	assert.Equal(t, uint64(0), snap.Moves["redo"])
	assert.Equal(t, uint64(1), snap.Queries)
	assert.Equal(t, int64(3), snap.Documents)
}

func TestNilStatsIsNoop(t *testing.T) {
	var s *Stats
	s.RecordEdit("add")
	s.RecordMove("redo")
	s.ObserveQuery(time.Second)
	s.SetDocuments(1)
}

func TestHandlerExposesPrometheusFormat(t *testing.T) {
	s := NewStats()
	s.RecordEdit("change")

	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	for _, m := range []string{
		"historytree_edits_total",
		"historytree_cursor_moves_total",
		"historytree_queries_total",
		"historytree_documents",
		"historytree_children_duration_seconds",
	} {
		assert.Contains(t, body, m)
	}
	assert.Contains(t, body, `historytree_edits_total{op="change"} 1`)
}
