package config

import (
	"errors"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// ErrNoMatches is returned when no match keywords are configured.
var ErrNoMatches = errors.New("VIDEO_MATCHES must list at least one keyword")

type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"local"`

	TGAPIID       int    `env:"TG_API_ID,required"`
	TGAPIHash     string `env:"TG_API_HASH,required"`
	TGPhone       string `env:"TG_PHONE"`
	TG2FAPassword string `env:"TG_2FA_PASSWORD"`
	TGSessionPath string `env:"TG_SESSION_PATH" envDefault:"./tg.session"`

	DataDir         string `env:"DATA_DIR" envDefault:"./data"`
	SortedGroupName string `env:"SORTED_GROUP_NAME" envDefault:"Sorted Videos"`

	VideoMatches    []string `env:"VIDEO_MATCHES" envSeparator:","`
	VideoExclusions []string `env:"VIDEO_EXCLUSIONS" envSeparator:","`
	SourceGroups    []string `env:"SOURCE_GROUPS" envSeparator:","`

	MinVideoDurationSeconds int     `env:"MIN_VIDEO_DURATION_SECONDS" envDefault:"60"`
	MaxVideoDurationSeconds int     `env:"MAX_VIDEO_DURATION_SECONDS" envDefault:"0"`
	MinFileSizeMB           float64 `env:"MIN_FILE_SIZE_MB" envDefault:"0"`
	MaxFileSizeMB           float64 `env:"MAX_FILE_SIZE_MB" envDefault:"0"`
	MaxForwards             int     `env:"MAX_FORWARDS" envDefault:"100"`

	DryRun      bool `env:"DRY_RUN" envDefault:"false"`
	SkipCleanup bool `env:"SKIP_CLEANUP" envDefault:"false"`

	DedupCheckDuration              bool    `env:"DEDUP_CHECK_DURATION" envDefault:"false"`
	DedupDurationToleranceSeconds   int     `env:"DEDUP_DURATION_TOLERANCE_SECONDS" envDefault:"30"`
	DedupCheckFileSize              bool    `env:"DEDUP_CHECK_FILE_SIZE" envDefault:"false"`
	DedupFileSizeTolerancePercent   float64 `env:"DEDUP_FILE_SIZE_TOLERANCE_PERCENT" envDefault:"5"`
	DedupCheckResolution            bool    `env:"DEDUP_CHECK_RESOLUTION" envDefault:"false"`
	DedupResolutionTolerancePercent float64 `env:"DEDUP_RESOLUTION_TOLERANCE_PERCENT" envDefault:"10"`
	DedupCheckMimeType              bool    `env:"DEDUP_CHECK_MIME_TYPE" envDefault:"false"`
	DedupNormalizeFilenames         bool    `env:"DEDUP_NORMALIZE_FILENAMES" envDefault:"true"`

	RateLimitRPS int `env:"RATE_LIMIT_RPS" envDefault:"1"`
	HealthPort   int `env:"HEALTH_PORT" envDefault:"8080"`
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate rejects configurations the run cannot do anything useful with.
func (c *Config) Validate() error {
	matches := c.VideoMatches[:0]

	for _, m := range c.VideoMatches {
		if m != "" {
			matches = append(matches, m)
		}
	}

	c.VideoMatches = matches

	if len(c.VideoMatches) == 0 {
		return ErrNoMatches
	}

	return nil
}
