package player

import (
	"context"
	"errors"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
)

func TestEstimateExtrapolates(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := Sample{Elapsed: 30, Rate: 1, At: t0}

	got := Estimate(s, t0.Add(3*time.Second))
	if math.Abs(got-33) > 0.001 {
		t.Errorf("expected ~33s, got %v", got)
	}
}

func TestEstimatePaused(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := Sample{Elapsed: 30, Rate: 0, At: t0}

	if got := Estimate(s, t0.Add(time.Hour)); got != 30 {
		t.Errorf("expected 30s while paused, got %v", got)
	}
}

func TestEstimateWithoutInstant(t *testing.T) {
	s := Sample{Elapsed: 12.5, Rate: 1}
	if got := Estimate(s, time.Now()); got != 12.5 {
		t.Errorf("expected sample to be used as is, got %v", got)
	}
}

func TestEstimateNeverNegative(t *testing.T) {
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s := Sample{Elapsed: 1, Rate: 1, At: t0}

	// 时钟回拨
	if got := Estimate(s, t0.Add(-10*time.Second)); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
}

func TestClockRebase(t *testing.T) {
	var c Clock
	t0 := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	if got := c.Now(t0); got != 0 {
		t.Errorf("expected 0 before any sample, got %v", got)
	}

	c.Rebase(Sample{Elapsed: 10, Rate: 1, At: t0})
	if got := c.Now(t0.Add(2 * time.Second)); math.Abs(got-12) > 0.001 {
		t.Errorf("expected ~12s, got %v", got)
	}

	c.Rebase(Sample{Elapsed: 50, Rate: 2, At: t0})
	if got := c.Now(t0.Add(time.Second)); math.Abs(got-52) > 0.001 {
		t.Errorf("expected ~52s at double rate, got %v", got)
	}

	c.Reset()
	if got := c.Now(t0); got != 0 {
		t.Errorf("expected 0 after reset, got %v", got)
	}
}

func TestTrackKey(t *testing.T) {
	a := Track{Title: "Song", Artist: "Band", Album: "First"}
	b := Track{Title: "SONG", Artist: "band", Album: "Live", Duration: 200}

	// 专辑不参与比较：同名歌曲共享一个 key
	if a.Key() != b.Key() {
		t.Errorf("expected equal keys, got '%s' and '%s'", a.Key(), b.Key())
	}
	if a.Key() == (Track{Title: "Other", Artist: "Band"}).Key() {
		t.Error("expected different titles to produce different keys")
	}

	// 分隔符不能出现在字段中，否则 "a-b"/"c" 与 "a"/"b-c" 会冲突
	x := Track{Artist: "a-b", Title: "c"}
	y := Track{Artist: "a", Title: "b-c"}
	if x.Key() == y.Key() {
		t.Errorf("expected distinct keys for %+v and %+v", x, y)
	}
	if (Track{Artist: "a|b", Title: "c"}).Key() == (Track{Artist: "a", Title: "b|c"}).Key() {
		t.Error("expected '|' in fields not to collide")
	}
}

func TestTrackFromMetadata(t *testing.T) {
	metadata := map[string]dbus.Variant{
		"xesam:title":  dbus.MakeVariant(" Song "),
		"xesam:artist": dbus.MakeVariant([]string{"A", "B"}),
		"xesam:album":  dbus.MakeVariant("Album"),
		"mpris:length": dbus.MakeVariant(int64(215_500_000)),
	}

	track := trackFromMetadata(metadata)
	want := Track{Title: "Song", Artist: "A, B", Album: "Album", Duration: 215.5}
	if track != want {
		t.Errorf("expected %+v, got %+v", want, track)
	}
}

func TestRateFor(t *testing.T) {
	tests := []struct {
		status string
		rate   float64
		want   float64
	}{
		{"Playing", 1, 1},
		{"Playing", 1.5, 1.5},
		{"Paused", 1, 0},
		{"Stopped", 1, 0},
		{"", 1, 1},
	}
	for _, tt := range tests {
		if got := rateFor(tt.status, tt.rate); got != tt.want {
			t.Errorf("rateFor(%q, %v): expected %v, got %v", tt.status, tt.rate, tt.want, got)
		}
	}
}

type staticSource struct {
	snap *Snapshot
}

func (s *staticSource) Current(ctx context.Context) (*Snapshot, error) {
	if s.snap == nil {
		return nil, nil
	}
	cp := *s.snap
	return &cp, nil
}

type countingNormalizer struct {
	calls int
	err   error
}

func (n *countingNormalizer) Normalize(ctx context.Context, title, artist string) (string, string, error) {
	n.calls++
	if n.err != nil {
		return "", "", n.err
	}
	return "Clean Title", "Clean Artist", nil
}

func TestNormalizingCachesPerTrack(t *testing.T) {
	src := &staticSource{snap: &Snapshot{Track: Track{Title: "Band - Song (Official Video)", Artist: "BandVEVO"}}}
	norm := &countingNormalizer{}
	n := NewNormalizing(src, norm)

	for range 3 {
		snap, err := n.Current(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if snap.Track.Title != "Clean Title" || snap.Track.Artist != "Clean Artist" {
			t.Errorf("expected cleaned track, got %+v", snap.Track)
		}
	}
	if norm.calls != 1 {
		t.Errorf("expected 1 normalizer call, got %d", norm.calls)
	}
}

func TestNormalizingFallsBackToRaw(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	raw := Track{Title: "Song", Artist: "Band"}
	src := &staticSource{snap: &Snapshot{Track: raw}}
	norm := &countingNormalizer{err: errors.New("quota exceeded")}
	n := NewNormalizing(src, norm)
	n.now = func() time.Time { return now }

	for range 3 {
		snap, err := n.Current(context.Background())
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if snap.Track != raw {
			t.Errorf("expected raw track, got %+v", snap.Track)
		}
	}
	if norm.calls != 1 {
		t.Errorf("expected failure to be remembered, got %d calls", norm.calls)
	}

	// 冷却结束后重试，成功则缓存结果
	now = now.Add(DefaultNormalizeRetryAfter)
	norm.err = nil
	snap, _ := n.Current(context.Background())
	if norm.calls != 2 || snap.Track.Title != "Clean Title" {
		t.Errorf("expected retry after cool-down, got %d calls and %+v", norm.calls, snap.Track)
	}
}

type blockingNormalizer struct {
	calls atomic.Int32
}

func (b *blockingNormalizer) Normalize(ctx context.Context, title, artist string) (string, string, error) {
	b.calls.Add(1)
	<-ctx.Done()
	return "", "", ctx.Err()
}

func TestNormalizingTimeout(t *testing.T) {
	raw := Track{Title: "Song", Artist: "Band"}
	norm := &blockingNormalizer{}
	n := NewNormalizing(&staticSource{snap: &Snapshot{Track: raw}}, norm)
	n.Timeout = 20 * time.Millisecond

	done := make(chan *Snapshot, 1)
	go func() {
		snap, _ := n.Current(context.Background())
		done <- snap
	}()

	select {
	case snap := <-done:
		if snap == nil || snap.Track != raw {
			t.Errorf("expected raw track after timeout, got %+v", snap)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Current blocked on a stalled normalizer")
	}

	// 超时也算失败，冷却期内不再调用
	n.Current(context.Background())
	if got := norm.calls.Load(); got != 1 {
		t.Errorf("expected cached failure to skip the normalizer, got %d calls", got)
	}
}

func TestNormalizingNothingPlaying(t *testing.T) {
	n := NewNormalizing(&staticSource{}, &countingNormalizer{})
	snap, err := n.Current(context.Background())
	if err != nil || snap != nil {
		t.Errorf("expected nil snapshot, got %+v, %v", snap, err)
	}
}
