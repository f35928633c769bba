package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	SamplesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiapx_samples_total",
		Help: "Total number of sampling jobs handled, by result",
	}, []string{"result"})

	SampleDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "fiapx_sample_duration_seconds",
		Help:    "Duration of clip sampling pipeline stages",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60, 120, 300},
	}, []string{"stage"})

	FramesDecodedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fiapx_frames_decoded_total",
		Help: "Total number of real frames written into clips",
	})

	PaddingFramesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fiapx_padding_frames_total",
		Help: "Total number of zero frames appended to short clips",
	})

	ActiveWorkers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "fiapx_active_workers",
		Help: "Number of currently active workers sampling clips",
	})

	RetryTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fiapx_retry_total",
		Help: "Total number of retries",
	}, []string{"attempt"})
)
