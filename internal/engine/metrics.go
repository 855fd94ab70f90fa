package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is safe to use as a nil pointer; every method is then a no-op.
type Metrics struct {
	patches       *prometheus.CounterVec
	patchDuration prometheus.Histogram
	moves         *prometheus.CounterVec
	moveAttempts  prometheus.Histogram
	conflicts     prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		patches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kanban",
			Name:      "patches_total",
			Help:      "Board patches by outcome.",
		}, []string{"outcome"}),
		patchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kanban",
			Name:      "patch_duration_seconds",
			Help:      "Time spent applying a board patch, transaction included.",
			Buckets:   prometheus.DefBuckets,
		}),
		moves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kanban",
			Name:      "card_moves_total",
			Help:      "Card moves by outcome.",
		}, []string{"outcome"}),
		moveAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "kanban",
			Name:      "card_move_attempts",
			Help:      "Transaction attempts used per card move.",
			Buckets:   []float64{1, 2, 3, 4, 5, 8},
		}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kanban",
			Name:      "write_conflicts_total",
			Help:      "Serialization failures reported by the store.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.patches, m.patchDuration, m.moves, m.moveAttempts, m.conflicts)
	}
	return m
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(CategoryOf(err))
}

func (m *Metrics) observePatch(started time.Time, err error) {
	if m == nil {
		return
	}
	m.patches.WithLabelValues(outcome(err)).Inc()
	m.patchDuration.Observe(time.Since(started).Seconds())
}

func (m *Metrics) observeMove(attempts int, err error) {
	if m == nil {
		return
	}
	m.moves.WithLabelValues(outcome(err)).Inc()
	m.moveAttempts.Observe(float64(attempts))
}

func (m *Metrics) observeConflict() {
	if m == nil {
		return
	}
	m.conflicts.Inc()
}
