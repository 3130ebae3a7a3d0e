package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DefaultAPIURL = "http://localhost:8000"
	// DefaultAPIKey only works against a local development service.
	DefaultAPIKey = "dummy-key-for-local-dev-only"
)

type Config struct {
	APIURL string
	APIKey string

	LogLevel string
	LogFile  string

	ExportDir string

	ChunkSize    int
	ChunkOverlap int

	RateLimitRPS   float64
	RateLimitBurst int

	NATSURL       string
	EventsSubject string

	MetricsPort string

	SecretsFile string
}

// Secrets is the optional YAML file that takes precedence over the environment.
type Secrets struct {
	APIURL string `yaml:"api_url"`
	APIKey string `yaml:"api_key"`
}

// Load reads .env (if present), the environment and the secrets file.
func Load() Config {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		slog.Warn("dotenv_load_failed", "error", err)
	}

	cfg := Config{
		APIURL: mustEnv("RAG_API_URL", DefaultAPIURL),
		APIKey: mustEnv("RAG_API_KEY", DefaultAPIKey),

		LogLevel: mustEnv("LOG_LEVEL", "info"),
		LogFile:  mustEnv("LOG_FILE", ""),

		ExportDir: mustEnv("RAG_EXPORT_DIR", "./exports"),

		ChunkSize:    mustEnvInt("RAG_CHUNK_SIZE", 1000),
		ChunkOverlap: mustEnvInt("RAG_CHUNK_OVERLAP", 200),

		RateLimitRPS:   mustEnvFloat("RAG_RATE_LIMIT_RPS", 5),
		RateLimitBurst: mustEnvInt("RAG_RATE_LIMIT_BURST", 5),

		NATSURL:       mustEnv("NATS_URL", ""),
		EventsSubject: mustEnv("RAG_EVENTS_SUBJECT", "rag.session.events"),

		MetricsPort: mustEnv("METRICS_PORT", ""),

		SecretsFile: mustEnv("RAG_SECRETS_FILE", ".rag/secrets.yaml"),
	}

	secrets, err := LoadSecrets(cfg.SecretsFile)
	if err != nil {
		slog.Warn("secrets_load_failed", "path", cfg.SecretsFile, "error", err)
	}
	cfg.ApplySecrets(secrets)
	return cfg
}

// LoadSecrets returns zero Secrets when path does not exist.
func LoadSecrets(path string) (Secrets, error) {
	if path == "" {
		return Secrets{}, nil
	}
	raw, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Secrets{}, nil
	}
	if err != nil {
		return Secrets{}, fmt.Errorf("read secrets: %w", err)
	}
	var secrets Secrets
	if err := yaml.Unmarshal(raw, &secrets); err != nil {
		return Secrets{}, fmt.Errorf("parse secrets: %w", err)
	}
	return secrets, nil
}

func (c *Config) ApplySecrets(s Secrets) {
	if v := strings.TrimSpace(s.APIURL); v != "" {
		c.APIURL = v
	}
	if v := strings.TrimSpace(s.APIKey); v != "" {
		c.APIKey = v
	}
}

// UsesDefaultAPIKey reports whether no real key was configured.
func (c Config) UsesDefaultAPIKey() bool {
	return c.APIKey == DefaultAPIKey
}

func mustEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func mustEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func mustEnvFloat(key string, fallback float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fallback
	}
	return n
}
