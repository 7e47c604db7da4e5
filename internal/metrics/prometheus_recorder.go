package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "statebridge"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	pushesSent       *prom.CounterVec
	pushesReceived   *prom.CounterVec
	hydrationsServed *prom.CounterVec
	flushDuration    prom.Histogram
	flushSize        prom.Histogram
	calls            *prom.CounterVec
	callDuration     *prom.HistogramVec
	callsInflight    prom.Gauge
}

var _ Recorder = (*PrometheusRecorder)(nil)

// NewPrometheusRecorder constructs the collectors and registers them on reg.
// A nil reg gets a fresh registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		pushesSent: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "pushes_sent_total",
			Help:      "State pushes sent per state uid",
		}, []string{"uid"}),
		pushesReceived: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "pushes_received_total",
			Help:      "State messages received per state uid by outcome",
		}, []string{"uid", "outcome"}),
		hydrationsServed: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "hydrations_served_total",
			Help:      "Hydration requests answered by the controller",
		}, []string{"uid"}),
		flushDuration: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_duration_seconds",
			Help:      "Duration of pending set drains",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1},
		}),
		flushSize: prom.NewHistogram(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_size",
			Help:      "Instances flushed per drain",
			Buckets:   prom.LinearBuckets(0, 1, 10),
		}),
		calls: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "rpc_calls_total",
			Help:      "Pinned method invocations by outcome",
		}, []string{"method", "outcome"}),
		callDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "rpc_call_duration_seconds",
			Help:      "Round-trip duration of proxied calls",
			Buckets:   prom.DefBuckets,
		}, []string{"method"}),
		callsInflight: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "rpc_calls_inflight",
			Help:      "Proxied calls awaiting a reply",
		}),
	}
	reg.MustRegister(pr.pushesSent, pr.pushesReceived, pr.hydrationsServed, pr.flushDuration,
		pr.flushSize, pr.calls, pr.callDuration, pr.callsInflight)
	return pr
}

func (p *PrometheusRecorder) IncPushSent(uid string) {
	if p == nil {
		return
	}
	p.pushesSent.WithLabelValues(uid).Inc()
}

func (p *PrometheusRecorder) IncPushReceived(uid string, outcome PushOutcome) {
	if p == nil {
		return
	}
	p.pushesReceived.WithLabelValues(uid, string(outcome)).Inc()
}

func (p *PrometheusRecorder) IncHydrationServed(uid string) {
	if p == nil {
		return
	}
	p.hydrationsServed.WithLabelValues(uid).Inc()
}

func (p *PrometheusRecorder) ObserveFlush(d time.Duration, size int) {
	if p == nil {
		return
	}
	p.flushDuration.Observe(d.Seconds())
	p.flushSize.Observe(float64(size))
}

func (p *PrometheusRecorder) IncCall(method string, outcome CallOutcome) {
	if p == nil {
		return
	}
	p.calls.WithLabelValues(method, string(outcome)).Inc()
}

func (p *PrometheusRecorder) ObserveCallDuration(method string, d time.Duration) {
	if p == nil {
		return
	}
	p.callDuration.WithLabelValues(method).Observe(d.Seconds())
}

func (p *PrometheusRecorder) AddInflightCalls(delta int) {
	if p == nil {
		return
	}
	p.callsInflight.Add(float64(delta))
}
