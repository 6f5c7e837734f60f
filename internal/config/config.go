package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	DefaultConfigPath      = "config.toml"
	DefaultHTTPAddr        = ":8080"
	DefaultCommandPrefix   = "."
	DefaultCeilingMB       = 99
	DefaultJobExpiry       = 5 * time.Minute
	DefaultJobTimeout      = 10 * time.Minute
	DefaultProviderTimeout = 45 * time.Second
	DefaultFetchTimeout    = 3 * time.Minute
	DefaultSearchTimeout   = 15 * time.Second
	DefaultMaxDuration     = 90 * time.Minute
	DefaultSweepInterval   = 10 * time.Minute
	DefaultSweepMaxAge     = time.Hour
	DefaultAdonixBaseURL   = "https://api-adonix.ultraplus.click"
)

// Provider kinds understood by the resolver.
const (
	ProviderKindAdonix   = "adonix"
	ProviderKindJSONPath = "jsonpath"
	ProviderKindTextScan = "textscan"
)

type Config struct {
	Log       LogConfig        `toml:"log"`
	Server    ServerConfig     `toml:"server"`
	Telegram  TelegramConfig   `toml:"telegram"`
	Discord   DiscordConfig    `toml:"discord"`
	Command   CommandConfig    `toml:"command"`
	Search    SearchConfig     `toml:"search"`
	Pipeline  PipelineConfig   `toml:"pipeline"`
	Media     MediaConfig      `toml:"media"`
	Providers []ProviderConfig `toml:"providers" validate:"required,min=1,dive"`
}

type LogConfig struct {
	Level  string `toml:"level" validate:"omitempty,oneof=debug info warn error"`
	Format string `toml:"format" validate:"omitempty,oneof=text json"`
	File   string `toml:"file"`
}

type ServerConfig struct {
	Addr string `toml:"addr"`
}

type TelegramConfig struct {
	Enabled bool   `toml:"enabled"`
	Token   string `toml:"token" validate:"required_if=Enabled true"`
}

type DiscordConfig struct {
	Enabled bool   `toml:"enabled"`
	Token   string `toml:"token" validate:"required_if=Enabled true"`
}

type CommandConfig struct {
	Prefixes []string `toml:"prefixes"`
}

type SearchConfig struct {
	Instances []string      `toml:"instances" validate:"dive,url"`
	Timeout   time.Duration `toml:"timeout"`
}

type PipelineConfig struct {
	JobExpiry       time.Duration `toml:"job_expiry"`
	JobTimeout      time.Duration `toml:"job_timeout"`
	ProviderTimeout time.Duration `toml:"provider_timeout"`
	MaxDuration     time.Duration `toml:"max_duration"`
	Qualities       []string      `toml:"qualities"`
	DefaultQuality  string        `toml:"default_quality"`
}

type MediaConfig struct {
	TempDir       string        `toml:"temp_dir"`
	CeilingMB     int64         `toml:"ceiling_mb" validate:"gt=0"`
	FetchTimeout  time.Duration `toml:"fetch_timeout"`
	SweepInterval time.Duration `toml:"sweep_interval"`
	SweepMaxAge   time.Duration `toml:"sweep_max_age"`
	FFmpegPath    string        `toml:"ffmpeg_path"`
	AudioBitrate  string        `toml:"audio_bitrate"`
	Transcode     bool          `toml:"transcode"`
}

// ProviderConfig declares one resolver in cascade order.
type ProviderConfig struct {
	Name          string `toml:"name" validate:"required"`
	Kind          string `toml:"kind" validate:"required,oneof=adonix jsonpath textscan"`
	BaseURL       string `toml:"base_url" validate:"omitempty,url"`
	APIKey        string `toml:"api_key"`
	AudioEndpoint string `toml:"audio_endpoint" validate:"required_unless=Kind adonix"`
	VideoEndpoint string `toml:"video_endpoint"`
	URLExpr       string `toml:"url_expr"`
	TitleExpr     string `toml:"title_expr"`
}

// Secrets are overlaid from the environment onto empty credentials.
type Secrets struct {
	TelegramToken string `env:"PLAYBOT_TELEGRAM_TOKEN"`
	DiscordToken  string `env:"PLAYBOT_DISCORD_TOKEN"`
	AdonixKey     string `env:"PLAYBOT_ADONIX_KEY"`
}

// Defaults returns the configuration used when no file is present.
func Defaults() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Command: CommandConfig{
			Prefixes: []string{DefaultCommandPrefix},
		},
		Search: SearchConfig{
			Timeout: DefaultSearchTimeout,
		},
		Pipeline: PipelineConfig{
			JobExpiry:       DefaultJobExpiry,
			JobTimeout:      DefaultJobTimeout,
			ProviderTimeout: DefaultProviderTimeout,
			MaxDuration:     DefaultMaxDuration,
		},
		Media: MediaConfig{
			CeilingMB:     DefaultCeilingMB,
			FetchTimeout:  DefaultFetchTimeout,
			SweepInterval: DefaultSweepInterval,
			SweepMaxAge:   DefaultSweepMaxAge,
			AudioBitrate:  "128k",
			Transcode:     true,
		},
		Providers: []ProviderConfig{
			{Name: "adonix", Kind: ProviderKindAdonix, BaseURL: DefaultAdonixBaseURL},
		},
	}
}

// Load decodes the TOML file at path over the defaults, overlays secrets from
// the environment and validates the result. A missing file yields the defaults.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if !os.IsNotExist(err) {
			return cfg, err
		}
	} else {
		// A file that lists providers replaces the default cascade.
		cfg.Providers = nil
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	var secrets Secrets
	if err := env.Parse(&secrets); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.ApplySecrets(secrets)

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadDotEnv loads a .env file when one exists.
func LoadDotEnv(paths ...string) error {
	if err := godotenv.Load(paths...); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return fmt.Errorf("load .env file: %w", err)
		}
	}
	return nil
}

// ApplySecrets fills empty credentials from s.
func (c *Config) ApplySecrets(s Secrets) {
	if strings.TrimSpace(s.TelegramToken) != "" && c.Telegram.Token == "" {
		c.Telegram.Token = s.TelegramToken
		c.Telegram.Enabled = true
	}
	if strings.TrimSpace(s.DiscordToken) != "" && c.Discord.Token == "" {
		c.Discord.Token = s.DiscordToken
		c.Discord.Enabled = true
	}
	if strings.TrimSpace(s.AdonixKey) != "" {
		for i := range c.Providers {
			if c.Providers[i].Kind == ProviderKindAdonix && c.Providers[i].APIKey == "" {
				c.Providers[i].APIKey = s.AdonixKey
			}
		}
	}
}

// Validate checks struct constraints and cross-field rules.
func (c Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	seen := map[string]struct{}{}
	for _, p := range c.Providers {
		if _, dup := seen[p.Name]; dup {
			return fmt.Errorf("invalid config: duplicate provider name %q", p.Name)
		}
		seen[p.Name] = struct{}{}
	}
	return nil
}
