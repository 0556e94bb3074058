package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Planner metrics
	IndexSelectedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legdb_planner_index_selected_total",
			Help: "Total number of times an index was selected by the planner, by index name",
		},
		[]string{"table", "index"},
	)

	PlanFullScanTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legdb_planner_full_scan_total",
			Help: "Total number of plans that found no usable index and fell back to a full scan",
		},
		[]string{"table"},
	)

	PlanCacheHitsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "legdb_planner_cache_hits_total",
			Help: "Total number of planner cache hits",
		},
	)

	PlanCacheMissesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "legdb_planner_cache_misses_total",
			Help: "Total number of planner cache misses",
		},
	)

	// Pipeline metrics
	PipelinePagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legdb_pipeline_pages_total",
			Help: "Total number of pages pulled by an executor",
		},
		[]string{"executor"},
	)

	PipelineEntitiesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "legdb_pipeline_entities_total",
			Help: "Total number of entities yielded by an executor",
		},
		[]string{"executor"},
	)

	DanglingEdgesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "legdb_dangling_edges_total",
			Help: "Total number of edges observed pointing at a missing endpoint",
		},
	)

	// Storage/database operation latency
	SaveDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "legdb_save_duration_seconds",
			Help:    "Time taken to save an entity",
			Buckets: prometheus.DefBuckets,
		},
	)

	RangeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "legdb_range_duration_seconds",
			Help:    "Time taken to open a range cursor",
			Buckets: prometheus.DefBuckets,
		},
	)

	SeekDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "legdb_seek_duration_seconds",
			Help:    "Time taken to run an equality seek",
			Buckets: prometheus.DefBuckets,
		},
	)

	CompressDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "legdb_compress_duration_seconds",
			Help:    "Time taken to train and apply table compression",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
	)

	VacuumDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "legdb_vacuum_duration_seconds",
			Help:    "Time taken to vacuum (dump and reload) the database",
			Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 300, 1800},
		},
	)
)

func init() {
	prometheus.MustRegister(IndexSelectedTotal)
	prometheus.MustRegister(PlanFullScanTotal)
	prometheus.MustRegister(PlanCacheHitsTotal)
	prometheus.MustRegister(PlanCacheMissesTotal)
	prometheus.MustRegister(PipelinePagesTotal)
	prometheus.MustRegister(PipelineEntitiesTotal)
	prometheus.MustRegister(DanglingEdgesTotal)
	prometheus.MustRegister(SaveDuration)
	prometheus.MustRegister(RangeDuration)
	prometheus.MustRegister(SeekDuration)
	prometheus.MustRegister(CompressDuration)
	prometheus.MustRegister(VacuumDuration)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	duration := time.Since(t.start).Seconds()
	histogram.Observe(duration)
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	duration := time.Since(t.start).Seconds()
	histogram.WithLabelValues(labels...).Observe(duration)
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
