package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fall-detector metrics, all under the "falldetect" namespace.
// Exposure is gated by logging.export_prometheus at the call site
// (internal/statusapi); importing this package never forces metrics
// collection on.
var (
	FDFramesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "falldetect",
		Name:      "frames_processed_total",
		Help:      "Total number of frames run through pose estimation",
	})

	FDPoseMissing = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "falldetect",
		Name:      "pose_missing_total",
		Help:      "Total number of frames with no usable pose estimate",
	})

	FDFallsDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "falldetect",
		Name:      "falls_detected_total",
		Help:      "Total number of confirmed fall events",
	}, []string{"camera_id"})

	FDInferenceDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "falldetect",
		Name:      "pose_inference_duration_seconds",
		Help:      "Duration of one pose estimation call",
		Buckets:   prometheus.ExponentialBuckets(0.002, 2, 10),
	})

	FDSaverQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "falldetect",
		Name:      "saver_queue_depth",
		Help:      "Number of completed events pending disk write",
	})

	FDFSMState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "falldetect",
		Name:      "fsm_state",
		Help:      "1 if the fall FSM is currently in the named state for this camera",
	}, []string{"camera_id", "state"})
)
