package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"lyricsync/internal/lyrics"
	"lyricsync/internal/metrics"
	"lyricsync/internal/player"
	"lyricsync/pkg/music"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	DefaultPollInterval = time.Second
	DefaultSyncInterval = 200 * time.Millisecond

	fetchTimeout = 30 * time.Second
)

// NoLine is the active line when nothing should be highlighted.
const NoLine lyrics.LineID = -1

// Fetcher turns a track into a Timeline. *music.Fetcher implements it.
type Fetcher interface {
	Fetch(ctx context.Context, q music.Query) (lyrics.Timeline, error)
	ProviderName() string
}

// Translator returns one translation per line, aligned by index.
type Translator interface {
	Translate(ctx context.Context, lines []string) ([]string, error)
}

type Options struct {
	PollInterval time.Duration
	SyncInterval time.Duration
	LeadOffset   float64 // 秒，解析当前行前加到估算时间上
	Translator   Translator
	Now          func() time.Time
}

// Snapshot is a consistent copy of the session state for presentation.
type Snapshot struct {
	Session      string          `json:"session"`
	Track        *player.Track   `json:"track,omitempty"`
	Position     float64         `json:"position"`
	Timeline     lyrics.Timeline `json:"-"`
	Translations []string        `json:"-"`
	ActiveLine   lyrics.LineID   `json:"active_line"`
	ActiveText   string          `json:"active_text"`
	Translation  string          `json:"translation,omitempty"`
	Loading      bool            `json:"loading"`
	Err          *music.Error    `json:"-"`
}

// Message is the human readable error, or "" when there is none.
func (s Snapshot) Message() string {
	if s.Err == nil {
		return ""
	}
	return s.Err.Error()
}

type state struct {
	track        *player.Track
	timeline     lyrics.Timeline
	translations []string
	lastKey      string // 最近一次成功获取歌词的曲目
	active       lyrics.LineID
	loading      bool
	err          *music.Error
	leadOffset   float64

	gen         uint64
	cancelFetch context.CancelFunc
	pendingKey  string
}

// Session keeps the lyrics of whatever the Source reports in sync with its
// playback position. Poll runs on the coarse cadence, Tick on the fine one.
type Session struct {
	id         string
	source     player.Source
	fetcher    Fetcher
	translator Translator
	opts       Options
	clock      player.Clock
	logger     zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	st          state
	subscribers map[chan Snapshot]struct{}

	fetches   sync.WaitGroup
	refresh   chan struct{}
	closeOnce sync.Once
}

func New(source player.Source, fetcher Fetcher, opts Options) *Session {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.SyncInterval <= 0 {
		opts.SyncInterval = DefaultSyncInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:          id,
		source:      source,
		fetcher:     fetcher,
		translator:  opts.Translator,
		opts:        opts,
		logger:      log.With().Str("component", "session").Str("session", id).Logger(),
		ctx:         ctx,
		cancel:      cancel,
		subscribers: make(map[chan Snapshot]struct{}),
		refresh:     make(chan struct{}, 1),
	}
	s.st.active = NoLine
	s.st.leadOffset = opts.LeadOffset
	return s
}

func (s *Session) ID() string { return s.id }

// Run drives both cadences until ctx is cancelled, then closes the session.
func (s *Session) Run(ctx context.Context) {
	s.logger.Info().
		Dur("poll_interval", s.opts.PollInterval).
		Dur("sync_interval", s.opts.SyncInterval).
		Str("provider", s.fetcher.ProviderName()).
		Msg("Session started")

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(s.opts.SyncInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Tick(s.opts.Now())
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(s.opts.PollInterval)
	defer ticker.Stop()

	s.Poll(ctx, false)
	for {
		select {
		case <-ticker.C:
			s.Poll(ctx, false)
		case <-s.refresh:
			s.Poll(ctx, true)
		case <-ctx.Done():
			wg.Wait()
			s.Close()
			s.logger.Info().Msg("Session stopped")
			return
		}
	}
}

// Refresh asks Run to re-fetch the current track on its next turn, bypassing
// the payload cache.
func (s *Session) Refresh() {
	select {
	case s.refresh <- struct{}{}:
	default:
	}
}

// Close abandons any in-flight fetch and waits for it to return. Its result
// is never installed.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.st.gen++
		s.mu.Unlock()
		s.cancel()
		s.fetches.Wait()

		s.mu.Lock()
		for ch := range s.subscribers {
			close(ch)
			delete(s.subscribers, ch)
		}
		s.mu.Unlock()
	})
}

// Poll samples the Source once. A fetch starts when force is set or the track
// differs from the one lyrics were last fetched for.
func (s *Session) Poll(ctx context.Context, force bool) {
	snap, err := s.source.Current(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return
		}
		s.logger.Warn().Err(err).Msg("Failed to read player state")
		metrics.ObservePoll("error")
		snap = nil
	}

	if snap == nil || !snap.Track.Valid() {
		if err == nil {
			metrics.ObservePoll("idle")
		}
		s.clock.Reset()
		s.mu.Lock()
		s.stoppedLocked()
		s.mu.Unlock()
		return
	}
	metrics.ObservePoll("playing")

	s.clock.Rebase(snap.Sample)
	track := snap.Track
	key := track.Key()

	s.mu.Lock()
	defer s.mu.Unlock()

	changed := s.st.track == nil || s.st.track.Key() != key
	s.st.track = &track
	if changed {
		s.logger.Info().Str("title", track.Title).Str("artist", track.Artist).Msg("New song detected")
		// 旧歌词已丢弃，切回来时需要重新获取
		s.st.timeline = lyrics.Timeline{}
		s.st.translations = nil
		s.st.active = NoLine
		s.st.lastKey = ""
	}
	if !force && key == s.st.lastKey {
		return
	}
	if !force && s.st.cancelFetch != nil && s.st.pendingKey == key {
		return
	}

	if changed || force {
		s.st.err = nil
	}
	s.startFetchLocked(track, key, force)
	s.publishLocked()
}

// stoppedLocked handles nothing playing.
func (s *Session) stoppedLocked() {
	if s.st.track == nil && s.st.err != nil && s.st.err.Kind == music.KindNotPlaying {
		return
	}
	s.abandonFetchLocked()
	s.st.track = nil
	s.st.timeline = lyrics.Timeline{}
	s.st.translations = nil
	s.st.active = NoLine
	s.st.lastKey = ""
	s.st.loading = false
	s.st.err = music.ErrNotPlaying
	s.publishLocked()
}

func (s *Session) abandonFetchLocked() {
	s.st.gen++
	if s.st.cancelFetch != nil {
		s.st.cancelFetch()
		s.st.cancelFetch = nil
	}
	s.st.pendingKey = ""
}

func (s *Session) startFetchLocked(track player.Track, key string, force bool) {
	s.abandonFetchLocked()
	gen := s.st.gen

	ctx, cancel := context.WithTimeout(s.ctx, fetchTimeout)
	if force {
		ctx = music.WithoutCache(ctx)
	}
	s.st.cancelFetch = cancel
	s.st.pendingKey = key
	s.st.loading = true

	q := music.Query{Title: track.Title, Artist: track.Artist, Album: track.Album, Duration: track.Duration}
	s.fetches.Add(1)
	go s.fetch(ctx, cancel, gen, key, q)
}

func (s *Session) fetch(ctx context.Context, cancel context.CancelFunc, gen uint64, key string, q music.Query) {
	defer s.fetches.Done()
	defer cancel()

	provider := s.fetcher.ProviderName()
	start := time.Now()
	tl, err := s.fetcher.Fetch(ctx, q)

	s.mu.Lock()
	if gen != s.st.gen {
		s.mu.Unlock()
		metrics.ObserveFetch(provider, metrics.OutcomeStale, time.Since(start))
		s.logger.Debug().Str("key", key).Msg("Discarding stale fetch result")
		return
	}
	s.st.pendingKey = ""
	s.st.loading = false

	if err != nil {
		s.st.cancelFetch = nil
		e := music.AsError(err)
		outcome := metrics.OutcomeError
		if e.Kind == music.KindNotFound {
			outcome = metrics.OutcomeNotFound
		}
		metrics.ObserveFetch(provider, outcome, time.Since(start))
		s.logger.Warn().Err(err).Str("key", key).Msg("Failed to get lyrics")

		// lastKey 不变，下次轮询重试
		s.st.timeline = lyrics.Timeline{}
		s.st.translations = nil
		s.st.active = NoLine
		s.st.err = e
		s.publishLocked()
		s.mu.Unlock()
		return
	}

	metrics.ObserveFetch(provider, metrics.OutcomeFound, time.Since(start))
	s.logger.Info().Str("key", key).Int("lines_count", tl.Len()).Msg("Installed lyrics")
	s.st.timeline = tl
	s.st.translations = nil
	s.st.lastKey = key
	s.st.err = nil
	s.st.active = s.resolveLocked(s.opts.Now())
	s.publishLocked()
	if s.translator == nil {
		s.st.cancelFetch = nil
		s.mu.Unlock()
		return
	}
	s.mu.Unlock()

	// 翻译期间保留 cancelFetch，换歌时可以取消
	s.translate(ctx, gen, tl)
	s.mu.Lock()
	if gen == s.st.gen {
		s.st.cancelFetch = nil
	}
	s.mu.Unlock()
}

func (s *Session) translate(ctx context.Context, gen uint64, tl lyrics.Timeline) {
	lines := tl.Lines()
	texts := make([]string, len(lines))
	for i, l := range lines {
		texts[i] = l.Text
	}

	translated, err := s.translator.Translate(ctx, texts)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Failed to translate lyrics")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.st.gen || len(translated) != s.st.timeline.Len() {
		return
	}
	s.st.translations = translated
	s.publishLocked()
}

// Tick re-resolves the active line at now. It does no I/O and reports whether
// the active line changed.
func (s *Session) Tick(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.resolveLocked(now)
	if id == s.st.active {
		return false
	}
	s.st.active = id
	metrics.ObserveLineChange()
	s.publishLocked()
	return true
}

func (s *Session) resolveLocked(now time.Time) lyrics.LineID {
	at := s.clock.Now(now) + s.st.leadOffset
	if id, ok := s.st.timeline.Resolve(at); ok {
		return id
	}
	return NoLine
}

func (s *Session) SetLeadOffset(offset float64) {
	s.mu.Lock()
	s.st.leadOffset = offset
	s.mu.Unlock()
	s.logger.Info().Float64("lead_offset", offset).Msg("Lead offset updated")
}

func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		Session:      s.id,
		Position:     s.clock.Now(s.opts.Now()),
		Timeline:     s.st.timeline,
		Translations: s.st.translations,
		ActiveLine:   s.st.active,
		Loading:      s.st.loading,
		Err:          s.st.err,
	}
	if s.st.track != nil {
		t := *s.st.track
		snap.Track = &t
	}
	if line, ok := s.st.timeline.Line(s.st.active); ok {
		snap.ActiveText = line.Text
		if int(line.ID) < len(s.st.translations) {
			snap.Translation = s.st.translations[line.ID]
		}
	}
	return snap
}

// Subscribe returns a channel that receives the latest snapshot whenever the
// active line, timeline, loading flag or error changes. Slow readers only
// ever see the most recent snapshot. The channel is closed by Close or by
// calling the returned function.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	return ch, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
	}
}

func (s *Session) publishLocked() {
	if len(s.subscribers) == 0 {
		return
	}
	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- snap
	}
}
