package music

import (
	"context"
)

// Query describes the track lyrics are requested for.
type Query struct {
	Title    string
	Artist   string
	Album    string
	Duration float64 // 秒，0 表示未知
}

// Payload is one lyrics record returned by a provider.
type Payload struct {
	ID           int     `json:"id,omitempty"`
	TrackName    string  `json:"trackName,omitempty"`
	ArtistName   string  `json:"artistName,omitempty"`
	AlbumName    string  `json:"albumName,omitempty"`
	Duration     float64 `json:"duration,omitempty"`
	Instrumental bool    `json:"instrumental,omitempty"`
	PlainLyrics  string  `json:"plainLyrics,omitempty"`
	SyncedLyrics string  `json:"syncedLyrics,omitempty"`
}

// Provider is a remote lyrics source.
//
// Adapters translate transport outcomes into a payload, "not found", or one of
// the error kinds in errors.go.
type Provider interface {
	// Lookup 精确查询 (title, artist, album)，未找到时返回 (nil, nil)
	Lookup(ctx context.Context, q Query) (*Payload, error)

	// Search 按 (title, artist) 模糊搜索，结果按相关度排序
	Search(ctx context.Context, q Query) ([]Payload, error)

	// Name 获取提供商名称
	Name() string
}
