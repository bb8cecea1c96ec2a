package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// fetch outcomes
const (
	OutcomeFound    = "found"
	OutcomeNotFound = "not_found"
	OutcomeError    = "error"
	OutcomeStale    = "stale"
)

var (
	pollsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "lyricsync_polls_total", Help: "Player polls by result"},
		[]string{"result"},
	)
	fetchTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "lyricsync_fetch_total", Help: "Lyrics fetches by outcome"},
		[]string{"provider", "outcome"},
	)
	fetchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lyricsync_fetch_duration_seconds",
			Help:    "Time spent fetching lyrics",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"provider"},
	)
	lineChanges = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "lyricsync_active_line_changes_total", Help: "Active lyric line changes"},
	)
)

func init() {
	prometheus.MustRegister(pollsTotal, fetchTotal, fetchDuration, lineChanges)
}

// ObservePoll result is one of "playing", "idle" or "error".
func ObservePoll(result string) {
	pollsTotal.WithLabelValues(result).Inc()
}

func ObserveFetch(provider, outcome string, d time.Duration) {
	fetchTotal.WithLabelValues(provider, outcome).Inc()
	fetchDuration.WithLabelValues(provider).Observe(d.Seconds())
}

func ObserveLineChange() {
	lineChanges.Inc()
}

func Handler() http.Handler {
	return promhttp.Handler()
}
