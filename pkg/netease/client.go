package netease

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"lyricsync/pkg/music"

	"github.com/rs/zerolog/log"
)

const DefaultBaseURL = "https://music.163.com/api"

var logger = log.With().Str("component", "netease").Logger()

var _ music.Provider = (*Client)(nil)

// NeteaseSearchResponse 网易云搜索API响应
type NeteaseSearchResponse struct {
	Code   int `json:"code"`
	Result struct {
		Songs []neteaseSong `json:"songs"`
	} `json:"result"`
}

type neteaseSong struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Artists []struct {
		Name string `json:"name"`
	} `json:"artists"`
	Album struct {
		Name string `json:"name"`
	} `json:"album"`
	Duration int `json:"duration"` // 毫秒
}

// NeteaseLyricResponse 网易云歌词API响应
type NeteaseLyricResponse struct {
	Lrc struct {
		Lyric string `json:"lyric"`
	} `json:"lrc"`
}

// Client 网易云音乐客户端
type Client struct {
	httpClient *http.Client
	baseURL    string
	cookie     string
}

// NewClient 创建新的网易云音乐客户端
func NewClient(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		cookie:     os.Getenv("NETEASE_COOKIE"),
	}
}

// Name 获取提供商名称
func (c *Client) Name() string {
	return "NetEase Cloud Music"
}

// Lookup 网易云没有精确查询接口：搜索后只接受标题和歌手都完全一致的结果
func (c *Client) Lookup(ctx context.Context, q music.Query) (*music.Payload, error) {
	songs, err := c.searchSongs(ctx, q.Title)
	if err != nil {
		return nil, err
	}

	var match *neteaseSong
	for i := range songs {
		s := &songs[i]
		if normalizeString(s.Name) != normalizeString(q.Title) || !hasArtist(s, q.Artist, equalIgnoreCase) {
			continue
		}
		if match == nil {
			match = s
		}
		if q.Album != "" && normalizeString(s.Album.Name) == normalizeString(q.Album) {
			match = s
			break
		}
	}
	if match == nil {
		return nil, nil
	}

	p, err := c.payload(ctx, match)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// Search 模糊匹配，返回最佳的一首
func (c *Client) Search(ctx context.Context, q music.Query) ([]music.Payload, error) {
	songs, err := c.searchSongs(ctx, q.Title)
	if err != nil {
		return nil, err
	}

	match := findBestMatch(songs, q.Artist, q.Title)
	if match == nil {
		return nil, nil
	}
	logger.Info().Str("song", match.Name).Int("id", match.ID).Msg("Found matching song")

	p, err := c.payload(ctx, match)
	if err != nil {
		return nil, err
	}
	return []music.Payload{p}, nil
}

func (c *Client) searchSongs(ctx context.Context, title string) ([]neteaseSong, error) {
	params := url.Values{}
	params.Set("s", title)
	params.Set("type", "1")
	params.Set("limit", "30")

	var searchResp NeteaseSearchResponse
	if err := c.getJSON(ctx, "/search/get/web?"+params.Encode(), &searchResp); err != nil {
		return nil, err
	}
	return searchResp.Result.Songs, nil
}

func (c *Client) payload(ctx context.Context, song *neteaseSong) (music.Payload, error) {
	var lyricResp NeteaseLyricResponse
	path := "/song/lyric?os=pc&lv=-1&kv=-1&tv=-1&id=" + strconv.Itoa(song.ID)
	if err := c.getJSON(ctx, path, &lyricResp); err != nil {
		return music.Payload{}, err
	}

	p := music.Payload{
		ID:           song.ID,
		TrackName:    song.Name,
		AlbumName:    song.Album.Name,
		Duration:     float64(song.Duration) / 1000,
		SyncedLyrics: lyricResp.Lrc.Lyric,
	}
	if len(song.Artists) > 0 {
		p.ArtistName = song.Artists[0].Name
	}
	return p, nil
}

func (c *Client) getJSON(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return music.Unknown(fmt.Errorf("failed to create request: %w", err))
	}
	// 设置Cookie
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return music.ClassifyTransport(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return music.InvalidResponse(fmt.Errorf("request failed with status %d", resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return music.InvalidResponse(fmt.Errorf("failed to decode response: %w", err))
	}
	return nil
}

// findBestMatch 找到最佳匹配的歌曲
func findBestMatch(songs []neteaseSong, targetArtist, targetTitle string) *neteaseSong {
	for i := range songs {
		if containsIgnoreCase(songs[i].Name, targetTitle) && hasArtist(&songs[i], targetArtist, containsIgnoreCase) {
			return &songs[i]
		}
	}

	// 如果没有找到完全匹配的，返回第一个匹配标题的
	if len(songs) > 0 && containsIgnoreCase(songs[0].Name, targetTitle) {
		return &songs[0]
	}
	return nil
}

// hasArtist artists 可能有多个，只要一个满足就算
func hasArtist(s *neteaseSong, target string, match func(a, b string) bool) bool {
	for _, a := range s.Artists {
		if match(a.Name, target) {
			return true
		}
	}
	return false
}

// normalizeString 标准化字符串（转小写，去空格）
func normalizeString(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), " ", "")
}

func equalIgnoreCase(s1, s2 string) bool {
	return normalizeString(s1) == normalizeString(s2)
}

// containsIgnoreCase 忽略大小写和空格的包含关系检查
func containsIgnoreCase(s1, s2 string) bool {
	norm1, norm2 := normalizeString(s1), normalizeString(s2)
	return strings.Contains(norm1, norm2) || strings.Contains(norm2, norm1)
}
