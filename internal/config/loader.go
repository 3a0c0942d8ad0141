package config

import (
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file values. Credentials belong in
// the environment, not on disk.
const (
	EnvBotToken     = "PULSECORD_BOT_TOKEN"
	EnvGuildID      = "PULSECORD_GUILD_ID"
	EnvTargetUserID = "PULSECORD_TARGET_USER_ID"
)

// Load reads the YAML configuration file at path, applies environment
// overrides and returns a validated [Config].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r on top of [Default], applies
// environment overrides and validates the result. Useful in tests where
// configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyEnv(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays environment variables onto cfg. Environment values win
// over file values.
func applyEnv(cfg *Config) {
	if v := os.Getenv(EnvBotToken); v != "" {
		cfg.Discord.BotToken = v
	}
	if v := os.Getenv(EnvGuildID); v != "" {
		cfg.Discord.GuildID = v
	}
	if v := os.Getenv(EnvTargetUserID); v != "" {
		cfg.Discord.TargetUserID = v
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Server.ListenAddr == "" {
		errs = append(errs, errors.New("server.listen_addr is required"))
	}
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	if cfg.Discord.BotToken == "" {
		errs = append(errs, fmt.Errorf("discord.bot_token is required (set %s)", EnvBotToken))
	}
	if cfg.Discord.GuildID == "" {
		errs = append(errs, fmt.Errorf("discord.guild_id is required (set %s)", EnvGuildID))
	}
	if cfg.Discord.TargetUserID == "" {
		errs = append(errs, fmt.Errorf("discord.target_user_id is required (set %s)", EnvTargetUserID))
	}

	if t := cfg.Source.MatchThreshold; t <= 0 || t > 1 {
		errs = append(errs, fmt.Errorf("source.match_threshold %.2f is out of range (0, 1]", t))
	}

	if cfg.Capture.StartTimeout <= 0 {
		errs = append(errs, fmt.Errorf("capture.start_timeout %v must be positive", cfg.Capture.StartTimeout))
	}
	if cfg.Capture.LatencyMsec <= 0 {
		errs = append(errs, fmt.Errorf("capture.latency_msec %d must be positive", cfg.Capture.LatencyMsec))
	}

	if cfg.Buffer.CapacityFrames <= 0 {
		errs = append(errs, fmt.Errorf("buffer.capacity_frames %d must be positive", cfg.Buffer.CapacityFrames))
	}

	if cfg.Retry.Initial <= 0 {
		errs = append(errs, fmt.Errorf("retry.initial %v must be positive", cfg.Retry.Initial))
	}
	if cfg.Retry.Max < cfg.Retry.Initial {
		errs = append(errs, fmt.Errorf("retry.max %v must not be below retry.initial %v", cfg.Retry.Max, cfg.Retry.Initial))
	}
	if cfg.Retry.Attempts <= 0 {
		errs = append(errs, fmt.Errorf("retry.attempts %d must be positive", cfg.Retry.Attempts))
	}

	return errors.Join(errs...)
}
