package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"
)

// SongInfo AI 返回的曲目信息
type SongInfo struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
	IsSong bool   `json:"is_song"`
}

func formatQuerySong(title, artist string) string {
	return fmt.Sprintf(`请精确地按照以下JSON格式提取歌曲信息: {"is_song": true, "title": "歌曲标题", "artist": "演唱者"}。  输入是播放器上报的媒体标题和艺术家，如果其中包含歌曲信息，请返回符合格式的JSON；否则，返回{"is_song": false}。 请注意，"title" 和 "artist" 必须准确，去掉诸如 "Official Video"、"Lyrics"、"MV" 之类的后缀，切记不要任何markdown格式，并将繁体中文转换为简体。 媒体标题是：%s，艺术家是：%s`, title, artist)
}

// Normalizer 用 AI 把浏览器标签页之类的标题整理成 标题/歌手
type Normalizer struct {
	client AiInterface
}

func NewNormalizer(client AiInterface) *Normalizer {
	return &Normalizer{client: client}
}

// Normalize returns empty strings when the model says the media is not a song.
func (n *Normalizer) Normalize(ctx context.Context, title, artist string) (string, string, error) {
	raw, err := n.client.HandleText(ctx, formatQuerySong(title, artist))
	if err != nil {
		return "", "", fmt.Errorf("%s: %w", n.client.Name(), err)
	}

	var info SongInfo
	if err := json.Unmarshal([]byte(stripCodeFence(raw)), &info); err != nil {
		return "", "", fmt.Errorf("failed to unmarshal song info %q: %w", raw, err)
	}
	if !info.IsSong {
		log.Info().Str("component", "ai").Str("title", title).Msg("Media is not a song")
		return "", "", nil
	}
	return strings.TrimSpace(info.Title), strings.TrimSpace(info.Artist), nil
}

// 模型偶尔还是会包一层 ```json
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
