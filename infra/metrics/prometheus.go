package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collectors are the live counters scraped from the engine. CSV sinks cover
// offline analysis; these cover dashboards and alerting.
type Collectors struct {
	EventsProcessed prometheus.Counter
	MalformedLines  prometheus.Counter
	CrossedRepairs  prometheus.Counter
	LevelsRemoved   prometheus.Counter
	Signals         *prometheus.CounterVec
	SnapshotsTaken  prometheus.Counter
}

// NewCollectors builds the counter set and registers it on reg.
func NewCollectors(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		EventsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "argus",
			Name:      "events_processed_total",
			Help:      "Feed events applied to the book.",
		}),
		MalformedLines: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "argus",
			Name:      "malformed_lines_total",
			Help:      "Feed lines skipped because they failed to parse.",
		}),
		CrossedRepairs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "argus",
			Name:      "crossed_repairs_total",
			Help:      "Updates after which the crossed-book repair removed levels.",
		}),
		LevelsRemoved: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "argus",
			Name:      "repair_levels_removed_total",
			Help:      "Price levels discarded by crossed-book repair.",
		}),
		Signals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "argus",
			Name:      "signals_total",
			Help:      "Strategy signals emitted, by action.",
		}, []string{"action"}),
		SnapshotsTaken: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "argus",
			Name:      "snapshots_taken_total",
			Help:      "Book snapshots persisted.",
		}),
	}

	reg.MustRegister(
		c.EventsProcessed,
		c.MalformedLines,
		c.CrossedRepairs,
		c.LevelsRemoved,
		c.Signals,
		c.SnapshotsTaken,
	)
	return c
}
