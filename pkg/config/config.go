// Package config loads service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Storage backends.
const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

// Config holds the service settings.
type Config struct {
	Addr            string
	TLSCert         string
	TLSKey          string
	Storage         string
	DatabaseURL     string
	RedisAddr       string
	SessionTTL      time.Duration
	DevOwner        string
	OTELHost        string
	OTELProbability float64
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string
}

// Load reads an optional .env file from the working directory and then the
// environment. Variables already set take precedence over the file.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}
	return FromEnv()
}

// FromEnv builds a Config from the process environment.
func FromEnv() (Config, error) {
	cfg := Config{
		Addr:        envOrDefault("SERVER", ":8443"),
		TLSCert:     os.Getenv("TLS_CERT"),
		TLSKey:      os.Getenv("TLS_KEY"),
		Storage:     envOrDefault("STORAGE", StorageMemory),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		DevOwner:    envOrDefault("DEV_OWNER", "dev-user"),
		OTELHost:    os.Getenv("OTEL_HOST"),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
	}

	var err error
	if cfg.SessionTTL, err = durationFromEnv("SESSION_TTL", time.Hour); err != nil {
		return Config{}, err
	}
	if cfg.RequestTimeout, err = durationFromEnv("REQUEST_TIMEOUT", 5*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.ShutdownTimeout, err = durationFromEnv("SHUTDOWN_TIMEOUT", 10*time.Second); err != nil {
		return Config{}, err
	}
	if cfg.OTELProbability, err = floatFromEnv("OTEL_PROBABILITY", 1.0); err != nil {
		return Config{}, err
	}
	return cfg, cfg.Validate()
}

// Validate reports inconsistent settings.
func (c Config) Validate() error {
	switch c.Storage {
	case StorageMemory:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for postgres storage")
		}
	default:
		return fmt.Errorf("unknown STORAGE %q", c.Storage)
	}
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return errors.New("TLS_CERT and TLS_KEY must be set together")
	}
	if c.OTELProbability < 0 || c.OTELProbability > 1 {
		return fmt.Errorf("OTEL_PROBABILITY must be within [0,1], got %v", c.OTELProbability)
	}
	if c.RedisAddr == "" && c.DevOwner == "" {
		return errors.New("DEV_OWNER is required when REDIS_ADDR is not set")
	}
	return nil
}

// TLS reports whether the server should terminate TLS.
func (c Config) TLS() bool {
	return c.TLSCert != "" && c.TLSKey != ""
}

func envOrDefault(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", key, value)
	}
	return d, nil
}

func floatFromEnv(key string, fallback float64) (float64, error) {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return f, nil
}
