package music

import (
	"context"
	"errors"
	"fmt"

	"lyricsync/internal/lyrics"

	"github.com/rs/zerolog/log"
)

var logger = log.With().Str("component", "music-fetcher").Logger()

// Fetcher obtains a lyrics Timeline for a track from one Provider: an exact
// lookup first, then a looser search by title and artist. It does no caching.
type Fetcher struct {
	provider Provider
}

func NewFetcher(provider Provider) *Fetcher {
	logger.Info().Str("provider", provider.Name()).Msg("Lyrics fetcher initialized")
	return &Fetcher{provider: provider}
}

func (f *Fetcher) ProviderName() string {
	return f.provider.Name()
}

// Fetch returns a non-empty Timeline or an *Error. Context cancellation is
// returned as is.
func (f *Fetcher) Fetch(ctx context.Context, q Query) (lyrics.Timeline, error) {
	l := logger.With().
		Str("title", q.Title).
		Str("artist", q.Artist).
		Str("provider", f.provider.Name()).
		Logger()

	exact, err := f.provider.Lookup(ctx, q)
	if err != nil {
		l.Warn().Err(err).Msg("Exact lookup failed")
		return lyrics.Timeline{}, normalize(err)
	}
	if exact != nil {
		if tl := lyrics.Parse(exact.SyncedLyrics); !tl.Empty() {
			l.Info().Int("lines", tl.Len()).Msg("Got synced lyrics from exact lookup")
			return tl, nil
		}
		l.Info().Msg("Exact match has no synced lyrics, falling back to search")
	} else {
		l.Info().Msg("No exact match, falling back to search")
	}

	// 搜索不带专辑
	loose := Query{Title: q.Title, Artist: q.Artist, Duration: q.Duration}
	results, err := f.provider.Search(ctx, loose)
	if err != nil {
		l.Warn().Err(err).Msg("Search failed")
		return lyrics.Timeline{}, normalize(err)
	}
	if len(results) == 0 {
		return lyrics.Timeline{}, NotFound(fmt.Errorf("no search results for '%s - %s'", q.Artist, q.Title))
	}

	first := results[0]
	tl := lyrics.Parse(first.SyncedLyrics)
	if tl.Empty() {
		return lyrics.Timeline{}, NotFound(fmt.Errorf("first search result for '%s - %s' has no synced lyrics", q.Artist, q.Title))
	}

	l.Info().
		Int("results", len(results)).
		Str("matched_track", first.TrackName).
		Str("matched_artist", first.ArtistName).
		Int("lines", tl.Len()).
		Msg("Got synced lyrics from search")
	return tl, nil
}

func normalize(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return AsError(err)
}
