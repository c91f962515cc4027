// Package config holds typed configuration for the brigade server: execution
// profiles, response modes, reasoning phases, latency budgets, and the
// environment-driven server settings loaded at startup.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the umbrella configuration object returned by Load() and
// passed to every long-lived component at construction.
type Config struct {
	// HTTPPort is the port the API server listens on.
	HTTPPort string

	// CORSOrigins is the list of origins allowed by the SSE endpoints.
	CORSOrigins []string

	// DatabaseURL is the Postgres DSN. Empty selects the in-memory store.
	DatabaseURL string

	// AnthropicAPIKey authenticates the chat LLM backend.
	AnthropicAPIKey string

	// ChatModel is the model identifier for response generation.
	ChatModel string

	// PubChemBaseURL is the base URL of the external compound-lookup service.
	PubChemBaseURL string

	// SessionIdleTimeout is how long a session may idle before soft decay
	// clears its history.
	SessionIdleTimeout time.Duration

	// PreferenceDecayAfter is the idle window after which preference
	// confidences decay.
	PreferenceDecayAfter time.Duration

	// PreferenceDecayAmount is subtracted from each confidence after decay.
	PreferenceDecayAmount float64

	// EmbeddingPermits caps concurrent embedding computations process-wide.
	EmbeddingPermits int64

	// HeartbeatInterval is the stream keep-alive period.
	HeartbeatInterval time.Duration

	// EventQueueSize bounds the per-request stream event queue.
	EventQueueSize int

	// ClaimExtractionTimeout caps the LLM claim-extraction fallback.
	ClaimExtractionTimeout time.Duration

	// DataDir holds the ingested retrieval index datasets.
	DataDir string

	// GracefulShutdownTimeout is the max time to drain active streams on exit.
	GracefulShutdownTimeout time.Duration
}

// Load reads configuration from the environment, applying defaults for
// anything unset. It never fails on missing optional values; Validate
// reports hard errors.
func Load() *Config {
	cfg := &Config{
		HTTPPort:                getEnv("HTTP_PORT", "8080"),
		CORSOrigins:             splitList(getEnv("CORS_ORIGINS", "http://localhost:3000")),
		DatabaseURL:             os.Getenv("DATABASE_URL"),
		AnthropicAPIKey:         os.Getenv("ANTHROPIC_API_KEY"),
		ChatModel:               getEnv("CHAT_MODEL", "claude-sonnet-4-20250514"),
		PubChemBaseURL:          getEnv("PUBCHEM_BASE_URL", "https://pubchem.ncbi.nlm.nih.gov/rest/pug"),
		SessionIdleTimeout:      getDuration("SESSION_IDLE_TIMEOUT", 12*time.Hour),
		PreferenceDecayAfter:    getDuration("PREFERENCE_DECAY_AFTER", 90*24*time.Hour),
		PreferenceDecayAmount:   getFloat("PREFERENCE_DECAY_AMOUNT", 0.2),
		EmbeddingPermits:        int64(getInt("EMBEDDING_PERMITS", 2)),
		HeartbeatInterval:       getDuration("HEARTBEAT_INTERVAL", time.Second),
		EventQueueSize:          getInt("EVENT_QUEUE_SIZE", 256),
		ClaimExtractionTimeout:  getDuration("CLAIM_EXTRACTION_TIMEOUT", 25*time.Second),
		DataDir:                 getEnv("DATA_DIR", "./data"),
		GracefulShutdownTimeout: getDuration("GRACEFUL_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
	return cfg
}

// Validate checks hard requirements that cannot be defaulted.
func (c *Config) Validate() error {
	if c.EmbeddingPermits < 1 {
		return fmt.Errorf("embedding permits must be at least 1, got %d", c.EmbeddingPermits)
	}
	if c.EventQueueSize < 1 {
		return fmt.Errorf("event queue size must be at least 1, got %d", c.EventQueueSize)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("heartbeat interval must be positive, got %v", c.HeartbeatInterval)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func splitList(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
