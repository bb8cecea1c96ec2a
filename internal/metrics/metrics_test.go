package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestHandlerExposesCounters(t *testing.T) {
	ObservePoll("playing")
	ObserveFetch("LRCLib", OutcomeFound, 120*time.Millisecond)
	ObserveLineChange()

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, name := range []string{
		`lyricsync_polls_total{result="playing"}`,
		`lyricsync_fetch_total{outcome="found",provider="LRCLib"}`,
		"lyricsync_fetch_duration_seconds_bucket",
		"lyricsync_active_line_changes_total",
	} {
		if !strings.Contains(body, name) {
			t.Errorf("metrics output missing %s", name)
		}
	}
}
