package player

import (
	"context"
	"sync"
	"time"
)

const (
	DefaultNormalizeTimeout = 3 * time.Second
	// 失败后在这段时间内直接使用原始信息，避免 AI 故障时每次轮询都请求
	DefaultNormalizeRetryAfter = time.Minute
)

// Normalizer cleans up a title/artist pair reported by a player, e.g. a
// browser tab title such as "Artist - Song (Official Video)".
type Normalizer interface {
	Normalize(ctx context.Context, title, artist string) (string, string, error)
}

// Normalizing wraps a Source and passes every new track through a Normalizer.
// Results are remembered per raw track, so the normalizer runs once per song
// and not on every poll. Each call is bounded by Timeout; a failed track keeps
// its raw metadata until RetryAfter has passed.
type Normalizing struct {
	source     Source
	normalizer Normalizer

	Timeout    time.Duration
	RetryAfter time.Duration
	now        func() time.Time

	cache  sync.Map // raw key -> Track
	failed sync.Map // raw key -> time.Time
}

func NewNormalizing(source Source, normalizer Normalizer) *Normalizing {
	return &Normalizing{
		source:     source,
		normalizer: normalizer,
		Timeout:    DefaultNormalizeTimeout,
		RetryAfter: DefaultNormalizeRetryAfter,
		now:        time.Now,
	}
}

func (n *Normalizing) Current(ctx context.Context) (*Snapshot, error) {
	snap, err := n.source.Current(ctx)
	if err != nil || snap == nil {
		return snap, err
	}

	raw := snap.Track
	key := raw.Key() + keySep + raw.Album
	if cached, ok := n.cache.Load(key); ok {
		snap.Track = cached.(Track)
		return snap, nil
	}
	if at, ok := n.failed.Load(key); ok && n.now().Sub(at.(time.Time)) < n.RetryAfter {
		return snap, nil
	}

	nctx, cancel := context.WithTimeout(ctx, n.Timeout)
	title, artist, err := n.normalizer.Normalize(nctx, raw.Title, raw.Artist)
	cancel()
	if err != nil {
		if ctx.Err() != nil {
			return snap, nil
		}
		logger.Warn().Err(err).Str("title", raw.Title).Str("artist", raw.Artist).Dur("retry_after", n.RetryAfter).Msg("Failed to normalize track, using raw metadata")
		n.failed.Store(key, n.now())
		return snap, nil
	}
	n.failed.Delete(key)

	cleaned := raw
	if title != "" && artist != "" {
		cleaned.Title, cleaned.Artist = title, artist
	}
	n.cache.Store(key, cleaned)
	logger.Info().
		Str("raw_title", raw.Title).
		Str("raw_artist", raw.Artist).
		Str("title", cleaned.Title).
		Str("artist", cleaned.Artist).
		Msg("Normalized track")

	snap.Track = cleaned
	return snap, nil
}
