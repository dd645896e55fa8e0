package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// doseEvents counts log mutations by kind: add, replay, delete, clear, import.
	doseEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dosetimer_dose_events_total",
			Help: "Total number of dose log mutations by kind.",
		},
		[]string{"kind"},
	)

	// droppedLines counts persisted rows skipped while decoding.
	droppedLines = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "dosetimer_decode_dropped_lines_total",
			Help: "Persisted rows that could not be decoded and were skipped.",
		},
	)

	// logSize gauges the number of doses currently held.
	logSize = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "dosetimer_log_size",
			Help: "Number of doses in the in-memory log.",
		},
	)
)

func init() {
	prometheus.MustRegister(doseEvents, droppedLines, logSize)
}
