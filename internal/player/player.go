package player

import (
	"context"
	"strings"
	"time"
)

// Track identifies the song being played.
type Track struct {
	Title    string  `json:"title"`
	Artist   string  `json:"artist"`
	Album    string  `json:"album,omitempty"`
	Duration float64 `json:"duration,omitempty"` // 秒，0 表示未知
}

// keySep cannot appear in player metadata, so joined fields never collide.
const keySep = "\x00"

// Key is the identity used to decide whether lyrics need to be fetched again.
// Album and duration are deliberately not part of it, so the same song on two
// albums shares one key.
func (t Track) Key() string {
	return strings.ToLower(t.Artist) + keySep + strings.ToLower(t.Title)
}

func (t Track) Valid() bool {
	return strings.TrimSpace(t.Title) != "" && strings.TrimSpace(t.Artist) != ""
}

// Sample is one playback position report.
type Sample struct {
	Elapsed float64   // 采样时刻的播放进度（秒）
	Rate    float64   // 0 暂停，1 正常播放
	At      time.Time // 零值表示不外推
}

// Snapshot is what a Source reports for the currently playing track.
type Snapshot struct {
	Track  Track
	Sample Sample
}

// Source reports what is playing right now. A nil snapshot with a nil error
// means nothing is playing.
type Source interface {
	Current(ctx context.Context) (*Snapshot, error)
}
