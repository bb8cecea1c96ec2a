package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"lyricsync/internal/config"
	"lyricsync/internal/i3block"
	"lyricsync/internal/ipc"
	"lyricsync/internal/player"
	"lyricsync/internal/session"
	"lyricsync/internal/web"
	"lyricsync/pkg/ai"
	"lyricsync/pkg/ai/gemini"
	"lyricsync/pkg/ai/openai"
	"lyricsync/pkg/lrclib"
	"lyricsync/pkg/music"
	"lyricsync/pkg/netease"
	"lyricsync/pkg/redis"
	"lyricsync/pkg/tencent"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const shutdownTimeout = 5 * time.Second

type App struct {
	cfg       *config.Config
	session   *session.Session
	ipcServer *ipc.Server
	i3block   *i3block.Controller
	web       *web.Server
	closers   []func() error
}

type closingSource interface {
	player.Source
	Close() error
}

type closingStore interface {
	music.Store
	Close() error
}

// 测试中替换
var (
	connectPlayer = func(service string) (closingSource, error) {
		m, err := player.NewMPRIS(service)
		if err != nil {
			return nil, err
		}
		return m, nil
	}
	openRedis = func(cfg config.RedisConfig) (closingStore, error) {
		c, err := redis.NewClient(cfg.Addr, cfg.Password, cfg.DB)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
)

func New(ctx context.Context, cfg *config.Config) (_ *App, err error) {
	// 设置 zerolog 的全局配置
	zerolog.TimeFieldFormat = time.RFC3339
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	setLogLevel(cfg.App.LogLevel)

	a := &App{cfg: cfg}
	defer func() {
		// 启动失败时释放已打开的资源
		if err != nil {
			a.close()
		}
	}()

	provider, err := newProvider(cfg.Provider)
	if err != nil {
		return nil, err
	}
	fetcher := music.NewFetcher(music.NewCachedProvider(provider, a.newStore(cfg.Redis), cfg.Redis.TTL))

	mpris, err := connectPlayer(cfg.Player.MPRISService)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to session bus: %w", err)
	}
	a.closers = append(a.closers, mpris.Close)

	var source player.Source = mpris
	if cfg.AI.Enabled {
		client, aiErr := newAI(ctx, cfg.AI)
		if aiErr != nil {
			log.Warn().Err(aiErr).Msg("Failed to create AI client, using raw track metadata")
		} else {
			if c, ok := client.(interface{ Close() error }); ok {
				a.closers = append(a.closers, c.Close)
			}
			log.Info().Str("module", client.Name()).Msg("Track names will be cleaned up by AI")
			source = player.NewNormalizing(mpris, ai.NewNormalizer(client))
		}
	}

	var translator session.Translator
	if cfg.Translate.Enabled {
		t, tErr := tencent.NewTranslator(cfg.Translate.SecretID, cfg.Translate.SecretKey, cfg.Translate.Region, cfg.Translate.Target)
		if tErr != nil {
			log.Warn().Err(tErr).Msg("Failed to create translator, translation disabled")
		} else {
			translator = t
		}
	}

	a.session = session.New(source, fetcher, session.Options{
		PollInterval: cfg.App.PollInterval,
		SyncInterval: cfg.App.SyncInterval,
		LeadOffset:   cfg.App.LeadOffset.Seconds(),
		Translator:   translator,
	})

	a.ipcServer = ipc.NewServer(cfg.App.SocketPath, cfg.App.StatusFile)
	if cfg.I3Blocks.Enabled {
		a.i3block = i3block.NewController(cfg.I3Blocks.Signal)
	}
	if cfg.Web.Enabled {
		a.web = web.NewServer(cfg.Web.Listen, a.session)
	}
	return a, nil
}

// Run blocks until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if err := a.ipcServer.Start(); err != nil {
		return fmt.Errorf("failed to start IPC server: %w", err)
	}
	defer a.ipcServer.Close()
	defer a.close()

	if a.web != nil {
		if err := a.web.Start(); err != nil {
			return fmt.Errorf("failed to start web server: %w", err)
		}
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			a.web.Shutdown(ctx)
		}()
	}

	if a.i3block != nil {
		go a.i3block.Run(ctx)
	}
	go config.Watch(ctx, config.Path(), a.applyConfig)

	updates, unsubscribe := a.session.Subscribe()
	defer unsubscribe()
	go a.present(updates)

	log.Info().Str("session", a.session.ID()).Msg("Starting lyrics session...")
	a.session.Run(ctx)
	return nil
}

// present forwards session snapshots to the status bar.
func (a *App) present(updates <-chan session.Snapshot) {
	for snap := range updates {
		if !a.ipcServer.Broadcast(ipc.Text(snap)) || a.i3block == nil {
			continue
		}
		if err := a.i3block.Notify(); err != nil {
			log.Debug().Err(err).Msg("Failed to signal i3blocks")
		}
	}
}

// applyConfig 只有部分设置支持热更新
func (a *App) applyConfig(cfg *config.Config) {
	if cfg.App.LeadOffset != a.cfg.App.LeadOffset {
		a.session.SetLeadOffset(cfg.App.LeadOffset.Seconds())
	}
	if cfg.App.LogLevel != a.cfg.App.LogLevel {
		setLogLevel(cfg.App.LogLevel)
	}
	a.cfg.App.LeadOffset = cfg.App.LeadOffset
	a.cfg.App.LogLevel = cfg.App.LogLevel
}

func (a *App) close() {
	for _, c := range a.closers {
		if err := c(); err != nil {
			log.Warn().Err(err).Msg("Failed to close resource")
		}
	}
}

// newStore 使用 Redis，连接失败时退回到内存缓存
func (a *App) newStore(cfg config.RedisConfig) music.Store {
	if !cfg.Enabled {
		return music.NewMemoryStore()
	}
	client, err := openRedis(cfg)
	if err != nil {
		log.Warn().Err(err).Str("addr", cfg.Addr).Msg("Failed to connect to Redis, using in-memory cache")
		return music.NewMemoryStore()
	}
	log.Info().Str("addr", cfg.Addr).Msg("Using Redis lyrics cache")
	a.closers = append(a.closers, client.Close)
	return client
}

func newProvider(cfg config.ProviderConfig) (music.Provider, error) {
	switch cfg.Name {
	case "", "lrclib":
		return lrclib.NewClient(
			lrclib.WithBaseURL(cfg.BaseURL),
			lrclib.WithUserAgent(cfg.UserAgent),
			lrclib.WithTimeout(cfg.RequestTimeout),
			lrclib.WithRetries(cfg.MaxRetries, 500*time.Millisecond),
		), nil
	case "netease":
		return netease.NewClient(cfg.BaseURL, cfg.RequestTimeout), nil
	}
	return nil, fmt.Errorf("unsupported lyrics provider: %s", cfg.Name)
}

var newAI = func(ctx context.Context, cfg config.AIConfig) (ai.AiInterface, error) {
	switch cfg.ModuleName {
	case "gemini":
		return gemini.NewGemini(ctx, cfg.APIKey, cfg.Model)
	case "openai":
		return openai.NewOpenAi(cfg.APIKey, cfg.Model, cfg.BaseURL), nil
	}
	return nil, fmt.Errorf("unsupported AI module: %s", cfg.ModuleName)
}

func setLogLevel(level string) {
	l, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		log.Warn().Str("log_level", level).Msg("Invalid log level, using info")
		l = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(l)
}
