// Package config provides the configuration schema, loader and file watcher
// for the pulsecord relay.
package config

import (
	"log/slog"
	"time"
)

// LogLevel controls log verbosity for the relay.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Level maps l onto the slog level scale. Unknown values map to info.
func (l LogLevel) Level() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Config is the root configuration structure for pulsecord.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Discord DiscordConfig `yaml:"discord"`
	Source  SourceConfig  `yaml:"source"`
	Capture CaptureConfig `yaml:"capture"`
	Buffer  BufferConfig  `yaml:"buffer"`
	Retry   RetryConfig   `yaml:"retry"`
}

// ServerConfig holds network and logging settings for the status server.
type ServerConfig struct {
	// ListenAddr is the TCP address the status server listens on
	// (e.g., ":8738").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity. Hot-reloadable.
	LogLevel LogLevel `yaml:"log_level"`
}

// DiscordConfig identifies the bot, the guild it serves and the user whose
// voice channel it follows.
//
// BotToken should normally come from the PULSECORD_BOT_TOKEN environment
// variable rather than the config file; a value in the file is only a
// fallback for development setups.
type DiscordConfig struct {
	// BotToken is the bot's authentication token.
	BotToken string `yaml:"bot_token"`

	// GuildID is the guild (server) to operate in.
	GuildID string `yaml:"guild_id"`

	// TargetUserID is the user whose voice channel the bot follows.
	TargetUserID string `yaml:"target_user_id"`
}

// SourceConfig tunes source discovery and selection recovery.
type SourceConfig struct {
	// MatchThreshold is the minimum fuzzy-match similarity, exclusive, for
	// re-resolving a selection against a changed source list. Range (0, 1].
	MatchThreshold float64 `yaml:"match_threshold"`

	// AllowSpotify permits Spotify sink inputs to be listed and captured.
	// Off by default.
	AllowSpotify bool `yaml:"allow_spotify"`
}

// CaptureConfig tunes the parec subprocess.
type CaptureConfig struct {
	// StartTimeout is how long a freshly spawned recorder may stay silent
	// before it is declared failed.
	StartTimeout time.Duration `yaml:"start_timeout"`

	// LatencyMsec is the target capture latency requested from the audio
	// server, in milliseconds.
	LatencyMsec int `yaml:"latency_msec"`
}

// BufferConfig sizes the transfer buffer between capture and delivery.
type BufferConfig struct {
	// CapacityFrames is the maximum number of 20 ms frames held before the
	// oldest audio is dropped.
	CapacityFrames int `yaml:"capacity_frames"`
}

// RetryConfig shapes the backoff applied to capture restarts and voice
// rejoins.
type RetryConfig struct {
	// Initial is the delay before the first retry.
	Initial time.Duration `yaml:"initial"`

	// Max caps the exponentially growing delay.
	Max time.Duration `yaml:"max"`

	// Attempts is how many retries are made before the failure is treated
	// as persistent.
	Attempts int `yaml:"attempts"`
}

// Default returns the built-in configuration. Loading a file overlays
// these values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr: ":8738",
			LogLevel:   LogInfo,
		},
		Source: SourceConfig{
			MatchThreshold: 0.70,
		},
		Capture: CaptureConfig{
			StartTimeout: 5 * time.Second,
			LatencyMsec:  10,
		},
		Buffer: BufferConfig{
			CapacityFrames: 48,
		},
		Retry: RetryConfig{
			Initial:  500 * time.Millisecond,
			Max:      15 * time.Second,
			Attempts: 8,
		},
	}
}
