package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "dochub"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	registry         *prom.Registry
	checkoutRequests *prom.CounterVec
	checkoutJobs     *prom.CounterVec
	checkoutDuration *prom.HistogramVec
	renders          *prom.CounterVec
	cachePublishes   *prom.CounterVec
}

// NewPrometheusRecorder constructs and registers the collectors on reg (a new
// registry when nil).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		registry: reg,
		checkoutRequests: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_requests_total",
			Help:      "Checkout requests by synchronous result (accepted|rejected)",
		}, []string{"result"}),
		checkoutJobs: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "checkout_jobs_total",
			Help:      "Checkout jobs by outcome (published|fetch_failed|build_failed|canceled)",
		}, []string{"outcome"}),
		checkoutDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "checkout_job_duration_seconds",
			Help:      "Duration of checkout jobs run by the in-process pool",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 900, 1800},
		}, []string{"outcome"}),
		renders: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "renders_total",
			Help:      "Documentation renders by family and result",
		}, []string{"family", "result"}),
		cachePublishes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "cache_publishes_total",
			Help:      "Render cache writes by result (written|failed)",
		}, []string{"result"}),
	}
	reg.MustRegister(pr.checkoutRequests, pr.checkoutJobs, pr.checkoutDuration, pr.renders, pr.cachePublishes)
	return pr
}

func (p *PrometheusRecorder) IncCheckoutRequest(result string) {
	p.checkoutRequests.WithLabelValues(result).Inc()
}

func (p *PrometheusRecorder) ObserveCheckoutJob(outcome string, d time.Duration) {
	p.checkoutJobs.WithLabelValues(outcome).Inc()
	p.checkoutDuration.WithLabelValues(outcome).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRender(family, result string) {
	p.renders.WithLabelValues(family, result).Inc()
}

func (p *PrometheusRecorder) IncCachePublish(result string) {
	p.cachePublishes.WithLabelValues(result).Inc()
}

// Handler returns an http.Handler serving the recorder's registry.
func (p *PrometheusRecorder) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
