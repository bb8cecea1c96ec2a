package lrclib

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"lyricsync/pkg/music"

	"github.com/rs/zerolog/log"
)

const (
	DefaultBaseURL   = "https://lrclib.net/api"
	DefaultUserAgent = "lyricsync/1.0 (https://github.com/lrclib/lrclib)"
)

var logger = log.With().Str("component", "lrclib").Logger()

var _ music.Provider = (*Client)(nil)

// Client LRCLib客户端
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	maxRetries int
	retryDelay time.Duration
}

// LRCLibResponse LRCLib API响应结构
type LRCLibResponse struct {
	ID           int     `json:"id"`
	Name         string  `json:"name"`
	TrackName    string  `json:"trackName"`
	ArtistName   string  `json:"artistName"`
	AlbumName    string  `json:"albumName"`
	Duration     float64 `json:"duration"`
	Instrumental bool    `json:"instrumental"`
	PlainLyrics  string  `json:"plainLyrics"`
	SyncedLyrics string  `json:"syncedLyrics"`
}

type Option func(*Client)

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

func WithRetries(n int, delay time.Duration) Option {
	return func(c *Client) {
		if n >= 0 {
			c.maxRetries = n
		}
		c.retryDelay = delay
	}
}

// NewClient 创建新的LRCLib客户端
func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
		baseURL:    DefaultBaseURL,
		userAgent:  DefaultUserAgent,
		maxRetries: 2,
		retryDelay: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name 返回提供商名称
func (c *Client) Name() string {
	return "LRCLib"
}

// Lookup 通过 /get 精确查询，404 表示没有匹配。
// /get rejects queries without album or duration with 400, which is treated
// the same as no match so the search fallback still runs.
func (c *Client) Lookup(ctx context.Context, q music.Query) (*music.Payload, error) {
	params := url.Values{}
	params.Set("track_name", q.Title)
	params.Set("artist_name", q.Artist)
	if q.Album != "" {
		params.Set("album_name", q.Album)
	}
	if q.Duration > 0 {
		params.Set("duration", strconv.Itoa(int(q.Duration+0.5)))
	}

	resp, err := c.get(ctx, "/get", params, true)
	if err != nil {
		return nil, err
	}
	if resp == nil {
		logger.Info().Str("title", q.Title).Str("artist", q.Artist).Msg("No exact match")
		return nil, nil
	}
	defer resp.Body.Close()

	var r LRCLibResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, music.InvalidResponse(fmt.Errorf("failed to decode response: %w", err))
	}
	p := r.payload()
	return &p, nil
}

// Search 通过 /search 按标题和艺术家搜索
func (c *Client) Search(ctx context.Context, q music.Query) ([]music.Payload, error) {
	params := url.Values{}
	params.Set("track_name", q.Title)
	params.Set("artist_name", q.Artist)

	resp, err := c.get(ctx, "/search", params, false)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var results []LRCLibResponse
	if err := json.NewDecoder(resp.Body).Decode(&results); err != nil {
		return nil, music.InvalidResponse(fmt.Errorf("failed to decode response: %w", err))
	}

	logger.Info().Int("results", len(results)).Str("title", q.Title).Str("artist", q.Artist).Msg("Search finished")

	payloads := make([]music.Payload, len(results))
	for i, r := range results {
		payloads[i] = r.payload()
	}
	return payloads, nil
}

// get performs a GET with retries. Transport errors and 5xx responses are
// retried; other non-2xx statuses are not. When notFoundOK is set a 404 or
// 400 yields (nil, nil).
func (c *Client) get(ctx context.Context, path string, params url.Values, notFoundOK bool) (*http.Response, error) {
	reqURL := c.baseURL + path + "?" + params.Encode()

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			logger.Info().Int("attempt", attempt).Int("max_retries", c.maxRetries).Str("path", path).Msg("Retrying request")
			select {
			case <-time.After(time.Duration(attempt) * c.retryDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return nil, music.Unknown(fmt.Errorf("failed to create request: %w", err))
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn().Err(err).Int("attempt", attempt+1).Str("path", path).Msg("Request failed")
			lastErr = music.ClassifyTransport(err)
			continue
		}

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return resp, nil
		case notFoundOK && (resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusBadRequest):
			resp.Body.Close()
			return nil, nil
		case resp.StatusCode >= 500:
			logger.Warn().Int("status", resp.StatusCode).Int("attempt", attempt+1).Str("path", path).Msg("Server error")
			resp.Body.Close()
			lastErr = music.InvalidResponse(fmt.Errorf("%s returned status %d", path, resp.StatusCode))
		default:
			resp.Body.Close()
			return nil, music.InvalidResponse(fmt.Errorf("%s returned status %d", path, resp.StatusCode))
		}
	}

	return nil, lastErr
}

func (r LRCLibResponse) payload() music.Payload {
	return music.Payload{
		ID:           r.ID,
		TrackName:    r.TrackName,
		ArtistName:   r.ArtistName,
		AlbumName:    r.AlbumName,
		Duration:     r.Duration,
		Instrumental: r.Instrumental,
		PlainLyrics:  r.PlainLyrics,
		SyncedLyrics: r.SyncedLyrics,
	}
}
