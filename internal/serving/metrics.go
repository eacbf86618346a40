package serving

import "github.com/prometheus/client_golang/prometheus"

var (
	predictionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "pointd",
			Name:      "predictions_total",
			Help:      "Prediction calls by outcome",
		},
		[]string{"outcome"},
	)

	predictionBatchSize = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "pointd",
			Name:      "prediction_batch_size",
			Help:      "Points per successful prediction call",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		},
	)

	modelReady = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "pointd",
			Name:      "model_ready",
			Help:      "1 once the model is loaded and warmed up",
		},
	)

	modelLoadDuration = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "pointd",
			Name:      "model_load_duration_seconds",
			Help:      "Wall time of the last model load",
		},
		[]string{"outcome"},
	)

	liveTensors = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "pointd",
			Name:      "backend_live_tensors",
			Help:      "Tensors allocated by the backend and not yet released",
		},
		[]string{"backend"},
	)
)

func init() {
	prometheus.MustRegister(predictionsTotal, predictionBatchSize, modelReady, modelLoadDuration, liveTensors)
}

// outcome labels for predictionsTotal.
const (
	outcomeOK       = "ok"
	outcomeNotReady = "not_ready"
	outcomeInvalid  = "invalid"
	outcomeError    = "error"
)
