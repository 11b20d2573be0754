// Package config loads service configuration from an optional YAML file with
// environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config holds everything the server, worker, and CLI need.
type Config struct {
	Mode   string `yaml:"mode"`   // "dev" or "prod" (log format)
	Listen string `yaml:"listen"` // HTTP listen address

	Store StoreConfig `yaml:"store"`

	OpenAI OpenAIConfig `yaml:"openai"`

	Retrieval RetrievalConfig `yaml:"retrieval"`

	Window WindowConfig `yaml:"window"`

	Worker WorkerConfig `yaml:"worker"`
}

// StoreConfig selects and locates the persistence backend.
type StoreConfig struct {
	// Driver is "sqlite" (default) or "postgres".
	Driver string `yaml:"driver"`
	// Path is the SQLite database file.
	Path string `yaml:"path"`
	// URL is the postgres:// DSN for the pgvector backend.
	URL string `yaml:"url"`
}

type OpenAIConfig struct {
	APIKey    string `yaml:"api_key"`
	BaseURL   string `yaml:"base_url"`
	ChatModel string `yaml:"chat_model"`
	// EmbedProvider is "openai" (default) or "ollama" for a local embedder.
	EmbedProvider string `yaml:"embed_provider"`
	EmbedModel    string `yaml:"embed_model"`
	EmbedDims     int    `yaml:"embed_dims"`
}

type RetrievalConfig struct {
	TopK          int     `yaml:"top_k"`
	VectorWeight  float64 `yaml:"vector_weight"`
	KeywordWeight float64 `yaml:"keyword_weight"`
	DecayDays     float64 `yaml:"decay_days"`
	CandidateMult int     `yaml:"candidate_mult"`
	CandidateMin  int     `yaml:"candidate_min"`
}

type WindowConfig struct {
	MinLen int `yaml:"min_len"`
	MaxLen int `yaml:"max_len"`
}

type WorkerConfig struct {
	BatchSize  int     `yaml:"batch_size"`
	SleepEmpty float64 `yaml:"sleep_empty_seconds"`
	SleepError float64 `yaml:"sleep_error_seconds"`
}

// Default returns the built-in configuration, matching the tuning the
// service ships with.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		Mode:   "dev",
		Listen: ":8080",
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   home + "/.convomem/convomem.db",
		},
		OpenAI: OpenAIConfig{
			ChatModel:     "gpt-4o-mini",
			EmbedProvider: "openai",
			EmbedModel:    "text-embedding-3-small",
			EmbedDims:     1536,
		},
		Retrieval: RetrievalConfig{
			TopK:          6,
			VectorWeight:  0.7,
			KeywordWeight: 0.3,
			DecayDays:     45.0,
			CandidateMult: 8,
			CandidateMin:  50,
		},
		Window: WindowConfig{MinLen: 2, MaxLen: 4},
		Worker: WorkerConfig{BatchSize: 128, SleepEmpty: 2.0, SleepError: 5.0},
	}
}

// Load reads path (when non-empty) over the defaults, then applies
// environment overrides. A missing file at the default location is fine.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnv(&cfg)
	return cfg, cfg.validate()
}

func applyEnv(cfg *Config) {
	setStr(&cfg.Mode, "CONVOMEM_MODE")
	setStr(&cfg.Listen, "CONVOMEM_LISTEN")
	setStr(&cfg.Store.Driver, "CONVOMEM_STORE_DRIVER")
	setStr(&cfg.Store.Path, "CONVOMEM_DB")
	setStr(&cfg.Store.URL, "DATABASE_URL")
	setStr(&cfg.OpenAI.APIKey, "OPENAI_API_KEY")
	setStr(&cfg.OpenAI.BaseURL, "OPENAI_BASE_URL")
	setStr(&cfg.OpenAI.ChatModel, "CHAT_MODEL")
	setStr(&cfg.OpenAI.EmbedProvider, "EMBED_PROVIDER")
	setStr(&cfg.OpenAI.EmbedModel, "EMBED_MODEL")
	setFloat(&cfg.Retrieval.VectorWeight, "HYBRID_W_VECTOR")
	setFloat(&cfg.Retrieval.KeywordWeight, "HYBRID_W_FTS")
	setFloat(&cfg.Retrieval.DecayDays, "RAG_DECAY_DAYS")
	setInt(&cfg.Retrieval.CandidateMult, "HYBRID_CAND_MULT")
	setInt(&cfg.Retrieval.CandidateMin, "HYBRID_MIN_CANDS")
	setInt(&cfg.Worker.BatchSize, "EMBED_BATCH_SIZE")
	setFloat(&cfg.Worker.SleepEmpty, "WORKER_SLEEP_EMPTY")
	setFloat(&cfg.Worker.SleepError, "WORKER_SLEEP_ERROR")
}

func (c Config) validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == "postgres" && c.Store.URL == "" {
		return fmt.Errorf("postgres driver requires store.url or DATABASE_URL")
	}
	switch c.OpenAI.EmbedProvider {
	case "openai", "ollama":
	default:
		return fmt.Errorf("unknown embed provider %q", c.OpenAI.EmbedProvider)
	}
	if c.Window.MinLen < 1 || c.Window.MaxLen < c.Window.MinLen {
		return fmt.Errorf("invalid window bounds [%d,%d]", c.Window.MinLen, c.Window.MaxLen)
	}
	return nil
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setFloat(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}
