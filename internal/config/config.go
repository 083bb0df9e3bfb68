// Package config loads the bot configuration from the environment, reading
// a .env file first when one is present.
package config

import (
	"errors"
	"fmt"
	"log"
	"slices"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/keshon/djwillex/internal/voice"
)

type Config struct {
	DiscordToken  string `env:"DISCORD_TOKEN,required"`
	OwnerID       string `env:"OWNER_ID,required"`
	CommandPrefix string `env:"COMMAND_PREFIX" envDefault:"!"`

	AutoPlaylist     bool   `env:"AUTO_PLAYLIST" envDefault:"true"`
	AutoPlaylistFile string `env:"AUTO_PLAYLIST_FILE" envDefault:"config/autoplaylist.txt"`
	BlacklistFile    string `env:"BLACKLIST_FILE" envDefault:"config/blacklist.txt"`

	SkipsRequired   int      `env:"SKIPS_REQUIRED" envDefault:"4"`
	SkipRatio       float64  `env:"SKIP_RATIO" envDefault:"0.5"`
	DefaultVolume   float64  `env:"DEFAULT_VOLUME" envDefault:"0.15"`
	MaxSongsPerUser int      `env:"MAX_SONGS_PER_USER" envDefault:"0"`
	InstaSkipRoles  []string `env:"INSTASKIP_ROLES"`

	BoundChannels      []string `env:"BOUND_CHANNELS"`
	AutojoinChannels   []string `env:"AUTOJOIN_CHANNELS"`
	NowPlayingMentions bool     `env:"NOW_PLAYING_MENTIONS" envDefault:"false"`
	AutoPause          bool     `env:"AUTO_PAUSE" envDefault:"true"`
	DeleteMessages     bool     `env:"DELETE_MESSAGES" envDefault:"true"`
	DeleteInvoking     bool     `env:"DELETE_INVOKING" envDefault:"false"`

	StatusAddr     string `env:"STATUS_ADDR" envDefault:":8080"`
	ExtractorProxy string `env:"EXTRACTOR_PROXY"`
	RestartHour    int    `env:"RESTART_HOUR" envDefault:"-1"`

	VoiceConnectAttempts int           `env:"VOICE_CONNECT_ATTEMPTS" envDefault:"3"`
	VoiceAckTimeout      time.Duration `env:"VOICE_ACK_TIMEOUT" envDefault:"10s"`
	VoiceRetryDelay      time.Duration `env:"VOICE_RETRY_DELAY" envDefault:"1s"`
	VoiceSettleDelay     time.Duration `env:"VOICE_SETTLE_DELAY" envDefault:"100ms"`
}

// Load reads .env (if any) and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[WARN] No .env file found, falling back to system environment variables")
	}
	return parse(env.Options{})
}

// FromMap builds a Config from vars only, ignoring the process environment.
func FromMap(vars map[string]string) (*Config, error) {
	return parse(env.Options{Environment: vars})
}

func parse(opts env.Options) (*Config, error) {
	cfg, err := env.ParseAsWithOptions[Config](opts)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges env tags cannot express.
func (c *Config) Validate() error {
	var errs []error
	if c.SkipRatio <= 0 || c.SkipRatio > 1 {
		errs = append(errs, fmt.Errorf("SKIP_RATIO must be in (0, 1], got %v", c.SkipRatio))
	}
	if c.SkipsRequired < 0 {
		errs = append(errs, fmt.Errorf("SKIPS_REQUIRED must not be negative, got %d", c.SkipsRequired))
	}
	if c.DefaultVolume <= 0 || c.DefaultVolume > 1 {
		errs = append(errs, fmt.Errorf("DEFAULT_VOLUME must be in (0, 1], got %v", c.DefaultVolume))
	}
	if c.RestartHour < -1 || c.RestartHour > 23 {
		errs = append(errs, fmt.Errorf("RESTART_HOUR must be -1 (off) or 0-23, got %d", c.RestartHour))
	}
	if c.VoiceConnectAttempts < 1 {
		errs = append(errs, fmt.Errorf("VOICE_CONNECT_ATTEMPTS must be at least 1, got %d", c.VoiceConnectAttempts))
	}
	if c.CommandPrefix == "" {
		errs = append(errs, errors.New("COMMAND_PREFIX must not be empty"))
	}
	return errors.Join(errs...)
}

// Voice returns the handshake timings.
func (c *Config) Voice() voice.Config {
	return voice.Config{
		Attempts:    c.VoiceConnectAttempts,
		AckTimeout:  c.VoiceAckTimeout,
		RetryDelay:  c.VoiceRetryDelay,
		SettleDelay: c.VoiceSettleDelay,
	}
}

// IsBound reports whether commands are accepted from channelID.
func (c *Config) IsBound(channelID string) bool {
	return len(c.BoundChannels) == 0 || slices.Contains(c.BoundChannels, channelID)
}

// HasInstaSkip reports whether any of roles grants instant skipping.
func (c *Config) HasInstaSkip(roles []string) bool {
	for _, r := range roles {
		if slices.Contains(c.InstaSkipRoles, r) {
			return true
		}
	}
	return false
}
