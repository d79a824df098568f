// Package metrics 暴露图片管线的 Prometheus 指标。Recorder 在启动阶段构造并注入，
// 所有方法对 nil 接收者安全，测试中可直接传 nil。
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Recorder 汇总各层命中、降级与晋升结果。
type Recorder struct {
	resolves   *prometheus.CounterVec
	errors     *prometheus.CounterVec
	degraded   *prometheus.CounterVec
	promotions *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewRecorder 创建指标并注册到 reg。
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		resolves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coverhub_resolve_total",
			Help: "Total number of successful resolutions by serving tier.",
		}, []string{"kind", "source"}),
		errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coverhub_resolve_errors_total",
			Help: "Total number of failed resolutions by reason.",
		}, []string{"kind", "reason"}),
		degraded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coverhub_tier_degraded_total",
			Help: "Total number of cache tier failures that were skipped.",
		}, []string{"kind", "tier"}),
		promotions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "coverhub_promotions_total",
			Help: "Total number of disk cache entries promoted to the cover store.",
		}, []string{"kind", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "coverhub_resolve_duration_seconds",
			Help:    "Duration of pipeline resolutions.",
			Buckets: prometheus.DefBuckets,
		}, []string{"kind"}),
	}

	for _, c := range []prometheus.Collector{r.resolves, r.errors, r.degraded, r.promotions, r.duration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Resolved records a successful resolution.
func (r *Recorder) Resolved(kind, source string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.resolves.WithLabelValues(kind, source).Inc()
	r.duration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// Failed records a resolution surfaced as an error.
func (r *Recorder) Failed(kind, reason string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.errors.WithLabelValues(kind, reason).Inc()
	r.duration.WithLabelValues(kind).Observe(elapsed.Seconds())
}

// Degraded records a cache tier failure that was skipped.
func (r *Recorder) Degraded(kind, tier string) {
	if r == nil {
		return
	}
	r.degraded.WithLabelValues(kind, tier).Inc()
}

// Promoted records a promotion attempt.
func (r *Recorder) Promoted(kind string, ok bool) {
	if r == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "failed"
	}
	r.promotions.WithLabelValues(kind, result).Inc()
}
