package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds the pipeline collectors; it is exported as a text file at
// the end of a run rather than scraped.
var Registry = prometheus.NewRegistry()

var (
	stageResults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "captionpipe",
			Name:      "stage_results_total",
			Help:      "Stage executions by stage and result (success or failure kind)",
		},
		[]string{"stage", "result"},
	)

	stageLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "captionpipe",
			Name:      "stage_duration_seconds",
			Help:      "Duration of pipeline stages",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	runs = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "captionpipe",
			Name:      "runs_total",
			Help:      "Pipeline runs by final state",
		},
		[]string{"state"},
	)

	imageBytes = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "captionpipe",
			Name:      "image_bytes",
			Help:      "Size of the last extracted image",
		},
	)

	lastRun = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "captionpipe",
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		},
	)
)

func init() {
	Registry.MustRegister(stageResults, stageLatency, runs, imageBytes, lastRun)
}

// ObserveStage records one stage execution.
func ObserveStage(stage, result string, dur time.Duration) {
	stageResults.WithLabelValues(stage, result).Inc()
	stageLatency.WithLabelValues(stage).Observe(dur.Seconds())
}

func IncRun(state string) {
	runs.WithLabelValues(state).Inc()
	lastRun.SetToCurrentTime()
}

func SetImageBytes(n int64) { imageBytes.Set(float64(n)) }

// WriteTextfile writes all collectors in Prometheus text format, for the
// node_exporter textfile collector.
func WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, Registry)
}
