// Package monitor exports document activity as Prometheus metrics.
package monitor

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "historytree"

// Stats counts edits, cursor moves and queries. A nil *Stats records nothing.
type Stats struct {
	registry  *prometheus.Registry
	edits     *prometheus.CounterVec
	moves     *prometheus.CounterVec
	queries   prometheus.Counter
	documents prometheus.Gauge
	latency   prometheus.Histogram
}

// Snapshot is a plain copy of the counters for JSON responses.
type Snapshot struct {
	Edits     map[string]uint64 `json:"edits"`
	Moves     map[string]uint64 `json:"moves"`
	Queries   uint64            `json:"queries"`
	Documents int64             `json:"documents"`
}

var (
	editOps  = []string{"add", "change", "delete"}
	moveDirs = []string{"undo", "redo"}
)

func NewStats() *Stats {
	s := &Stats{
		registry: prometheus.NewRegistry(),
		edits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "edits_total",
			Help:      "Records appended to history, by operation.",
		}, []string{"op"}),
		moves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cursor_moves_total",
			Help:      "Undo and redo calls.",
		}, []string{"dir"}),
		queries: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "queries_total",
			Help:      "Children queries served.",
		}),
		documents: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "documents",
			Help:      "Open documents.",
		}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "children_duration_seconds",
			Help:      "Time spent resolving children.",
			Buckets:   prometheus.ExponentialBuckets(0.000001, 4, 10), // 1us to ~260ms
		}),
	}
	s.registry.MustRegister(s.edits, s.moves, s.queries, s.documents, s.latency)
	for _, op := range editOps {
		s.edits.WithLabelValues(op)
	}
	for _, d := range moveDirs {
		s.moves.WithLabelValues(d)
	}
	return s
}

func (s *Stats) RecordEdit(op string) {
	if s == nil {
		return
	}
	s.edits.WithLabelValues(op).Inc()
}

func (s *Stats) RecordMove(dir string) {
	if s == nil {
		return
	}
	s.moves.WithLabelValues(dir).Inc()
}

func (s *Stats) ObserveQuery(d time.Duration) {
	if s == nil {
		return
	}
	s.queries.Inc()
	s.latency.Observe(d.Seconds())
}

func (s *Stats) SetDocuments(n int) {
	if s == nil {
		return
	}
	s.documents.Set(float64(n))
}

// Handler serves the metrics in the Prometheus text format.
func (s *Stats) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// Snapshot reads the current values back out of the registry.
func (s *Stats) Snapshot() Snapshot {
	snap := Snapshot{Edits: map[string]uint64{}, Moves: map[string]uint64{}}
	families, err := s.registry.Gather()
	if err != nil {
		return snap
	}
	for _, mf := range families {
		for _, m := range mf.GetMetric() {
			switch mf.GetName() {
			case namespace + "_edits_total":
				snap.Edits[labelValue(m.GetLabel(), "op")] = uint64(m.GetCounter().GetValue())
			case namespace + "_cursor_moves_total":
				snap.Moves[labelValue(m.GetLabel(), "dir")] = uint64(m.GetCounter().GetValue())
			case namespace + "_queries_total":
				snap.Queries = uint64(m.GetCounter().GetValue())
			case namespace + "_documents":
				snap.Documents = int64(m.GetGauge().GetValue())
			}
		}
	}
	return snap
}

type labelPair interface {
	GetName() string
	GetValue() string
}

func labelValue[L labelPair](labels []L, name string) string {
	for _, l := range labels {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}
