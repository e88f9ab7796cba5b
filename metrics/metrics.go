// Package metrics exports autosave and flag persistence counters to
// Prometheus.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rustyeddy/tradelog/autosave"
)

const namespace = "tradelog"

// Recorder implements autosave.Observer and pairflags.Observer.
type Recorder struct {
	writes     *prometheus.CounterVec
	rollovers  prometheus.Counter
	flushed    prometheus.Counter
	flagWrites *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Recorder {
	r := &Recorder{
		writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "autosave",
			Name:      "writes_total",
			Help:      "Analysis writes by operation and result.",
		}, []string{"op", "result"}),
		rollovers: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "autosave",
			Name:      "rollovers_total",
			Help:      "Session bucket rollovers observed.",
		}),
		flushed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "autosave",
			Name:      "rollover_flushes_total",
			Help:      "Drafts flushed because their bucket rolled over.",
		}),
		flagWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "flags",
			Name:      "writes_total",
			Help:      "Pair flag writes by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(r.writes, r.rollovers, r.flushed, r.flagWrites)
	return r
}

func (r *Recorder) ObserveWrite(op autosave.Op, err error) {
	r.writes.WithLabelValues(string(op), result(err)).Inc()
}

func (r *Recorder) ObserveRollover(flushed int) {
	r.rollovers.Inc()
	r.flushed.Add(float64(flushed))
}

func (r *Recorder) ObserveFlagWrite(err error) {
	r.flagWrites.WithLabelValues(result(err)).Inc()
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
