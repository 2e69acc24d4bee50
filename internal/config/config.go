// Package config reads server settings from flags, the environment and
// .env files.
//
// PRECEDENCE (highest first):
//
//	--flag  >  POSTBOARD_<KEY> env var  >  .env.local / .env  >  flag default
//
// Keys are the flag names; the env var is the upper-cased key with "-"
// replaced by "_", e.g. --db-path ↔ POSTBOARD_DB_PATH.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const EnvPrefix = "postboard"

// Flag keys.
const (
	KeyPort         = "port"
	KeyDBPath       = "db-path"
	KeyJWTSecret    = "jwt-secret"
	KeyCursorSecret = "cursor-secret"
	KeyTokenTTL     = "token-ttl"
	KeyLogLevel     = "log-level"
	KeyVoteRate     = "vote-rate"
	KeyVoteBurst    = "vote-burst"
)

// MinSecretLength applies to both the JWT and the cursor secret.
const MinSecretLength = 16

type Config struct {
	Port         int
	DBPath       string
	JWTSecret    string
	CursorSecret string
	TokenTTL     time.Duration
	LogLevel     string
	// VoteRate is the sustained number of votes per second a single user
	// may cast; VoteBurst is how many they may cast back to back.
	VoteRate  float64
	VoteBurst int
}

// RegisterFlags adds every config flag with its default to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.Int(KeyPort, 8080, "HTTP port to listen on")
	fs.String(KeyDBPath, "data/postboard.db", "path to the SQLite database file (\":memory:\" for a throwaway database)")
	fs.String(KeyJWTSecret, "", "HMAC secret used to verify access tokens (at least 16 characters)")
	fs.String(KeyCursorSecret, "", "HMAC secret used to sign feed cursors (at least 16 characters)")
	fs.Duration(KeyTokenTTL, 24*time.Hour, "lifetime of tokens minted by 'user create'")
	fs.String(KeyLogLevel, "info", "log level (debug, info, warn, error)")
	fs.Float64(KeyVoteRate, 2, "sustained votes per second allowed per user")
	fs.Int(KeyVoteBurst, 10, "votes a user may cast back to back before being rate limited")
}

// LoadEnvFiles loads .env and .env.local into the process environment.
// Missing files are fine; variables already set are never overwritten.
func LoadEnvFiles() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")
}

// Load binds fs to v, reads every key and validates the result.
func Load(v *viper.Viper, fs *pflag.FlagSet) (Config, error) {
	if err := v.BindPFlags(fs); err != nil {
		return Config{}, fmt.Errorf("config: binding flags: %w", err)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cfg := Config{
		Port:         v.GetInt(KeyPort),
		DBPath:       v.GetString(KeyDBPath),
		JWTSecret:    v.GetString(KeyJWTSecret),
		CursorSecret: v.GetString(KeyCursorSecret),
		TokenTTL:     v.GetDuration(KeyTokenTTL),
		LogLevel:     strings.ToLower(v.GetString(KeyLogLevel)),
		VoteRate:     v.GetFloat64(KeyVoteRate),
		VoteBurst:    v.GetInt(KeyVoteBurst),
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("%s must be between 1 and 65535, got %d", KeyPort, c.Port))
	}
	if c.DBPath == "" {
		errs = append(errs, fmt.Errorf("%s is required", KeyDBPath))
	}
	if len(c.JWTSecret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("%s must be at least %d characters", KeyJWTSecret, MinSecretLength))
	}
	if len(c.CursorSecret) < MinSecretLength {
		errs = append(errs, fmt.Errorf("%s must be at least %d characters", KeyCursorSecret, MinSecretLength))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyTokenTTL))
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.VoteRate <= 0 {
		errs = append(errs, fmt.Errorf("%s must be positive", KeyVoteRate))
	}
	if c.VoteBurst < 1 {
		errs = append(errs, fmt.Errorf("%s must be at least 1", KeyVoteBurst))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// SlogLevel returns the configured level; Validate has already rejected
// anything it cannot parse.
func (c Config) SlogLevel() slog.Level {
	l, _ := parseLevel(c.LogLevel)
	return l
}

func parseLevel(s string) (slog.Level, error) {
	switch s {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return 0, fmt.Errorf("%s must be one of debug, info, warn, error; got %q", KeyLogLevel, s)
}
