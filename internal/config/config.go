package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/rs/zerolog/log"
)

const (
	DefaultSocketPath     = "/tmp/lyrics_app.sock"
	DefaultStatusFile     = "/tmp/lyrics"
	DefaultPollInterval   = time.Second
	DefaultSyncInterval   = 200 * time.Millisecond
	DefaultProvider       = "lrclib"
	DefaultRequestTimeout = 5 * time.Second
	DefaultMaxRetries     = 2
	DefaultCacheTTL       = 7 * 24 * time.Hour
	DefaultWebListen      = "127.0.0.1:7878"
	DefaultI3BlocksSignal = 55
)

var logger = log.With().Str("component", "config").Logger()

// TomlConfig TOML配置文件结构
type TomlConfig struct {
	App struct {
		SocketPath   string `toml:"socket_path"`
		StatusFile   string `toml:"status_file"`
		PollInterval string `toml:"poll_interval"`
		SyncInterval string `toml:"sync_interval"`
		LeadOffset   string `toml:"lead_offset"` // 例如 "150ms"、"-0.2s"
		LogLevel     string `toml:"log_level"`
	} `toml:"app"`

	Provider struct {
		Name           string `toml:"name"`
		BaseURL        string `toml:"base_url"`
		RequestTimeout string `toml:"request_timeout"`
		MaxRetries     *int   `toml:"max_retries"`
		UserAgent      string `toml:"user_agent"`
	} `toml:"provider"`

	Player struct {
		MPRISService string `toml:"mpris_service"`
	} `toml:"player"`

	Redis struct {
		Enabled  bool   `toml:"enabled"`
		Addr     string `toml:"addr"`
		Password string `toml:"password"`
		DB       int    `toml:"db"`
		TTL      string `toml:"ttl"`
	} `toml:"redis"`

	AI struct {
		Enabled    bool   `toml:"enabled"`
		ModuleName string `toml:"module_name"`
		Model      string `toml:"model"`
		APIKey     string `toml:"api_key"`
		BaseURL    string `toml:"base_url"` // for OpenAI
	} `toml:"ai"`

	Translate struct {
		Enabled   bool   `toml:"enabled"`
		SecretID  string `toml:"secret_id"`
		SecretKey string `toml:"secret_key"`
		Region    string `toml:"region"`
		Target    string `toml:"target"`
	} `toml:"translate"`

	Web struct {
		Enabled bool   `toml:"enabled"`
		Listen  string `toml:"listen"`
	} `toml:"web"`

	I3Blocks struct {
		Enabled bool `toml:"enabled"`
		Signal  int  `toml:"signal"`
	} `toml:"i3blocks"`
}

// AppConfig 应用配置
type AppConfig struct {
	SocketPath   string
	StatusFile   string
	PollInterval time.Duration
	SyncInterval time.Duration
	LeadOffset   time.Duration
	LogLevel     string
}

// ProviderConfig 歌词来源配置
type ProviderConfig struct {
	Name           string // lrclib | netease
	BaseURL        string
	RequestTimeout time.Duration
	MaxRetries     int
	UserAgent      string
}

type PlayerConfig struct {
	MPRISService string // 为空时自动选择
}

// RedisConfig Redis配置
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// AIConfig AI配置
type AIConfig struct {
	Enabled    bool
	ModuleName string
	Model      string
	APIKey     string
	BaseURL    string
}

// TranslateConfig 腾讯云翻译配置
type TranslateConfig struct {
	Enabled   bool
	SecretID  string
	SecretKey string
	Region    string
	Target    string
}

type WebConfig struct {
	Enabled bool
	Listen  string
}

type I3BlocksConfig struct {
	Enabled bool
	Signal  int
}

// Config 主配置结构
type Config struct {
	App       AppConfig
	Provider  ProviderConfig
	Player    PlayerConfig
	Redis     RedisConfig
	AI        AIConfig
	Translate TranslateConfig
	Web       WebConfig
	I3Blocks  I3BlocksConfig
}

// Path 获取配置文件路径
func Path() string {
	// 优先使用 XDG_CONFIG_HOME 环境变量
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, "lyrics", "config.toml")
	}

	// 否则使用用户主目录下的 .config
	homeDir, err := os.UserHomeDir()
	if err != nil {
		logger.Warn().Err(err).Msg("Cannot get user home directory")
		return "config.toml" // 回退到当前目录
	}

	return filepath.Join(homeDir, ".config", "lyrics", "config.toml")
}

func defaults() *Config {
	return &Config{
		App: AppConfig{
			SocketPath:   DefaultSocketPath,
			StatusFile:   DefaultStatusFile,
			PollInterval: DefaultPollInterval,
			SyncInterval: DefaultSyncInterval,
			LogLevel:     "info",
		},
		Provider: ProviderConfig{
			Name:           DefaultProvider,
			RequestTimeout: DefaultRequestTimeout,
			MaxRetries:     DefaultMaxRetries,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			TTL:  DefaultCacheTTL,
		},
		AI: AIConfig{
			ModuleName: "gemini",
		},
		Translate: TranslateConfig{
			Region: "ap-guangzhou",
			Target: "zh",
		},
		Web: WebConfig{
			Listen: DefaultWebListen,
		},
		I3Blocks: I3BlocksConfig{
			Signal: DefaultI3BlocksSignal,
		},
	}
}

// Load 读取默认路径的配置，出错时使用默认值
func Load() *Config {
	cfg, err := LoadFile(Path())
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load config file, using default configuration")
		return defaults()
	}
	return cfg
}

// LoadFile reads path on top of the defaults. A missing file is not an error.
func LoadFile(path string) (*Config, error) {
	var tomlConfig TomlConfig
	if _, err := toml.DecodeFile(path, &tomlConfig); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			logger.Info().Str("path", path).Msg("Config file not found, using defaults")
			return defaults(), nil
		}
		return nil, err
	}

	logger.Info().Str("path", path).Msg("Loaded config")
	config := defaults()
	apply(config, &tomlConfig)
	return config, nil
}

func apply(config *Config, tc *TomlConfig) {
	// 从TOML配置中覆盖App设置
	setString(&config.App.SocketPath, tc.App.SocketPath)
	setString(&config.App.StatusFile, tc.App.StatusFile)
	setDuration(&config.App.PollInterval, tc.App.PollInterval, "app.poll_interval")
	setDuration(&config.App.SyncInterval, tc.App.SyncInterval, "app.sync_interval")
	setDuration(&config.App.LeadOffset, tc.App.LeadOffset, "app.lead_offset")
	setString(&config.App.LogLevel, strings.ToLower(tc.App.LogLevel))

	setString(&config.Provider.Name, strings.ToLower(tc.Provider.Name))
	setString(&config.Provider.BaseURL, tc.Provider.BaseURL)
	setDuration(&config.Provider.RequestTimeout, tc.Provider.RequestTimeout, "provider.request_timeout")
	if tc.Provider.MaxRetries != nil && *tc.Provider.MaxRetries >= 0 {
		config.Provider.MaxRetries = *tc.Provider.MaxRetries
	}
	setString(&config.Provider.UserAgent, tc.Provider.UserAgent)

	setString(&config.Player.MPRISService, tc.Player.MPRISService)

	// 从TOML配置中覆盖Redis设置
	config.Redis.Enabled = tc.Redis.Enabled
	setString(&config.Redis.Addr, tc.Redis.Addr)
	setString(&config.Redis.Password, tc.Redis.Password)
	if tc.Redis.DB != 0 {
		config.Redis.DB = tc.Redis.DB
	}
	setDuration(&config.Redis.TTL, tc.Redis.TTL, "redis.ttl")

	// 从TOML配置中覆盖AI设置
	config.AI.Enabled = tc.AI.Enabled
	setString(&config.AI.ModuleName, tc.AI.ModuleName)
	setString(&config.AI.Model, tc.AI.Model)
	setString(&config.AI.APIKey, tc.AI.APIKey)
	setString(&config.AI.BaseURL, tc.AI.BaseURL)

	config.Translate.Enabled = tc.Translate.Enabled
	setString(&config.Translate.SecretID, tc.Translate.SecretID)
	setString(&config.Translate.SecretKey, tc.Translate.SecretKey)
	setString(&config.Translate.Region, tc.Translate.Region)
	setString(&config.Translate.Target, tc.Translate.Target)

	config.Web.Enabled = tc.Web.Enabled
	setString(&config.Web.Listen, tc.Web.Listen)

	config.I3Blocks.Enabled = tc.I3Blocks.Enabled
	if tc.I3Blocks.Signal > 0 {
		config.I3Blocks.Signal = tc.I3Blocks.Signal
	}

	// 检查必要的配置
	if config.AI.Enabled && config.AI.APIKey == "" {
		logger.Warn().Msg("ai.enabled is set but ai.api_key is empty, track names will not be cleaned up")
		config.AI.Enabled = false
	}
	if config.Translate.Enabled && (config.Translate.SecretID == "" || config.Translate.SecretKey == "") {
		logger.Warn().Msg("translate.enabled is set but credentials are missing, translation disabled")
		config.Translate.Enabled = false
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setDuration(dst *time.Duration, v, name string) {
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		logger.Warn().Str("key", name).Str("value", v).Msg("Invalid duration format, using default")
		return
	}
	*dst = d
}
