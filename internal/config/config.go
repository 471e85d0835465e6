package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr    string     `env:"HTTP_ADDR" envDefault:":8080"`
	DBDir       string     `env:"DB_DIR" envDefault:"data"`
	LogLevel    slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	LogFormat   string     `env:"LOG_FORMAT" envDefault:"json"`
	SPADir      string     `env:"SPA_DIR" envDefault:"../web/dist"`
	CORSOrigins []string   `env:"CORS_ORIGINS" envSeparator:","`

	ClipDir         string        `env:"CLIP_DIR" envDefault:"data/clips"`
	ClipURLPrefix   string        `env:"CLIP_URL_PREFIX" envDefault:"/clips"`
	FFmpegPath      string        `env:"FFMPEG_PATH" envDefault:"ffmpeg"`
	ClipTimeout     time.Duration `env:"CLIP_TIMEOUT" envDefault:"20s"`
	ClipBucketWidth time.Duration `env:"CLIP_BUCKET_WIDTH" envDefault:"15m"`
	ClipIndex       string        `env:"CLIP_INDEX" envDefault:"sqlite"`
	RedisURL        string        `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	StationsPrimaryURL   string        `env:"STATIONS_PRIMARY_URL" envDefault:"https://de1.api.radio-browser.info/json/stations?has_geo_info=true&hidebroken=true"`
	StationsFallbackURL  string        `env:"STATIONS_FALLBACK_URL" envDefault:"https://nl1.api.radio-browser.info/json/stations?has_geo_info=true&hidebroken=true"`
	StationsUserAgent    string        `env:"STATIONS_USER_AGENT" envDefault:"radioguessr/1.0"`
	StationsFetchTimeout time.Duration `env:"STATIONS_FETCH_TIMEOUT" envDefault:"60s"`

	CatalogRefreshInterval time.Duration `env:"CATALOG_REFRESH_INTERVAL" envDefault:"12h"`
	CatalogReloadCron      string        `env:"CATALOG_RELOAD_CRON" envDefault:"@every 12h"`
	CatalogSnapshotPath    string        `env:"CATALOG_SNAPSHOT_PATH" envDefault:"data/catalog.bolt"`

	SamplerStrategy     string  `env:"SAMPLER_STRATEGY" envDefault:"station"`
	SamplerMinNeighbors int     `env:"SAMPLER_MIN_NEIGHBORS" envDefault:"3"`
	SamplerMaxAttempts  int     `env:"SAMPLER_MAX_ATTEMPTS" envDefault:"10"`
	SamplerRadiusKm     float64 `env:"SAMPLER_RADIUS_KM" envDefault:"100"`

	RoundSecret string `env:"ROUND_SECRET"`
}

// DBPath is the clip index database inside DBDir.
func (c *Config) DBPath() string {
	return c.DBDir + "/radioguessr.db"
}

// Load reads the environment, after applying a .env file from the working
// directory when one exists. Variables already set take precedence.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}

	switch cfg.ClipIndex {
	case "sqlite", "redis":
	default:
		return nil, fmt.Errorf("CLIP_INDEX must be sqlite or redis, got %q", cfg.ClipIndex)
	}
	switch cfg.SamplerStrategy {
	case "station", "dense":
	default:
		return nil, fmt.Errorf("SAMPLER_STRATEGY must be station or dense, got %q", cfg.SamplerStrategy)
	}
	switch cfg.LogFormat {
	case "json", "text":
	default:
		return nil, fmt.Errorf("LOG_FORMAT must be json or text, got %q", cfg.LogFormat)
	}
	return &cfg, nil
}
