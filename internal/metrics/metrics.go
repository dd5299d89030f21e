// Package metrics records controller client activity as Prometheus collectors.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rbright/merion/internal/protocol"
)

const namespace = "merion"

// Recorder implements protocol.Observer on a dedicated registry.
type Recorder struct {
	registry *prometheus.Registry

	connects      *prometheus.CounterVec
	commands      *prometheus.CounterVec
	writeFailures prometheus.Counter
	responses     *prometheus.CounterVec
	readDuration  prometheus.Histogram
	laserState    prometheus.Gauge
	stateKnown    prometheus.Gauge
}

var _ protocol.Observer = (*Recorder)(nil)

// New registers every collector on a fresh registry.
func New() *Recorder {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Recorder{
		registry: registry,
		connects: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connects_total",
			Help:      "Connection attempts to the controller by result",
		}, []string{"result"}),
		commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands written to the controller by kind",
		}, []string{"kind"}),
		writeFailures: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "write_failures_total",
			Help:      "Commands that could not be written",
		}),
		responses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "responses_total",
			Help:      "Response reads by outcome",
		}, []string{"result"}),
		readDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "read_duration_seconds",
			Help:      "Time spent waiting for a response terminator",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}),
		laserState: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "laser_state",
			Help:      "Last state bits reported by the controller",
		}),
		stateKnown: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "laser_state_known",
			Help:      "1 when the last state query returned valid state bits",
		}),
	}
}

func (r *Recorder) Connected(err error) {
	if err != nil {
		r.connects.WithLabelValues("failed").Inc()
		return
	}
	r.connects.WithLabelValues("ok").Inc()
}

func (r *Recorder) CommandSent(cmd protocol.Command, err error) {
	if err != nil {
		r.writeFailures.Inc()
		return
	}
	r.commands.WithLabelValues(cmd.Kind().String()).Inc()
}

func (r *Recorder) ResponseRead(outcome protocol.Outcome, elapsed time.Duration) {
	r.responses.WithLabelValues(string(outcome)).Inc()
	r.readDuration.Observe(elapsed.Seconds())
}

// ObserveState records a QueryState result; UnknownState leaves the last bits in place.
func (r *Recorder) ObserveState(state int) {
	if state == protocol.UnknownState {
		r.stateKnown.Set(0)
		return
	}
	r.stateKnown.Set(1)
	r.laserState.Set(float64(state))
}

// Registry exposes the underlying registry for scraping and tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
