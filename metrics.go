package imagewarm

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Image request outcomes.
const (
	servedPlaceholder = "placeholder"
	servedStore       = "store"
	servedTransform   = "transform"
	servedLimited     = "limited"
	servedError       = "error"
)

// Metrics holds the collectors exported on /metrics.
type Metrics struct {
	Registry *prometheus.Registry

	WarmRuns              prometheus.Counter
	WarmDuration          prometheus.Histogram
	PagesCrawled          prometheus.Gauge
	ImagesDiscovered      prometheus.Gauge
	PlaceholdersGenerated prometheus.Counter
	WarmFailures          *prometheus.CounterVec
	ImageRequests         *prometheus.CounterVec
}

// NewMetrics creates the collectors on a fresh registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		WarmRuns: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imagewarm_warm_runs_total",
			Help: "Completed cache warm-up runs.",
		}),
		WarmDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "imagewarm_warm_duration_seconds",
			Help:    "Duration of cache warm-up runs.",
			Buckets: prometheus.ExponentialBuckets(0.01, 4, 8),
		}),
		PagesCrawled: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "imagewarm_pages_crawled",
			Help: "Static paths rendered by the last warm-up.",
		}),
		ImagesDiscovered: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "imagewarm_images_discovered",
			Help: "Distinct image variants found by the last warm-up.",
		}),
		PlaceholdersGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "imagewarm_placeholders_generated_total",
			Help: "Placeholders inserted into the cache.",
		}),
		WarmFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imagewarm_warm_failures_total",
			Help: "Warm-up failures by stage.",
		}, []string{"stage"}),
		ImageRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "imagewarm_image_requests_total",
			Help: "Image endpoint requests by how they were served.",
		}, []string{"served"}),
	}
	m.Registry.MustRegister(
		m.WarmRuns,
		m.WarmDuration,
		m.PagesCrawled,
		m.ImagesDiscovered,
		m.PlaceholdersGenerated,
		m.WarmFailures,
		m.ImageRequests,
	)
	return m
}

func (m *Metrics) observeWarm(res *WarmResult) {
	m.WarmRuns.Inc()
	m.WarmDuration.Observe(res.Duration.Seconds())
	m.PagesCrawled.Set(float64(len(res.Paths)))
	m.ImagesDiscovered.Set(float64(len(res.Images)))
	m.PlaceholdersGenerated.Add(float64(res.Generated))
	m.WarmFailures.WithLabelValues("config").Add(float64(len(res.ConfigErrors)))
	m.WarmFailures.WithLabelValues("render").Add(float64(len(res.RenderErrors)))
	m.WarmFailures.WithLabelValues("transform").Add(float64(len(res.TransformErrors)))
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
