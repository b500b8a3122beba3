//Package metrics counts bridge requests for prometheus
package metrics

import (
	"time"

	"bitbucket.org/vservices/ms-vservices-ussd/ussd"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

type Collector struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	pending  prometheus.Gauge
}

func New(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	c := &Collector{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ussd_requests_total",
			Help: "USSD requests by outcome",
		}, []string{"outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ussd_request_duration_seconds",
			Help:    "Time from send until the carrier replied",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60},
		}, []string{"outcome"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ussd_pending_operations",
			Help: "USSD requests sent and waiting for the carrier",
		}),
	}
	for _, collector := range []prometheus.Collector{c.requests, c.duration, c.pending} {
		if err := reg.Register(collector); err != nil {
			return nil, errors.Wrapf(err, "failed to register metrics")
		}
	}
	return c, nil
} //New()

func (c *Collector) Dispatched(req ussd.Request) {
	c.pending.Inc()
}

//Completed is also called for requests rejected before dispatch,
//those were never pending and have no duration
func (c *Collector) Completed(req ussd.Request, outcome string, d time.Duration) {
	c.requests.WithLabelValues(outcome).Inc()
	switch outcome {
	case ussd.OutcomePermissionMissing, ussd.OutcomeNoTelephony:
		return
	}
	c.pending.Dec()
	c.duration.WithLabelValues(outcome).Observe(d.Seconds())
}
