package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	if cfg.Store.Driver != "sqlite" {
		t.Errorf("expected sqlite default, got %q", cfg.Store.Driver)
	}
	if cfg.Retrieval.TopK != 6 || cfg.Retrieval.VectorWeight != 0.7 || cfg.Retrieval.KeywordWeight != 0.3 {
		t.Errorf("unexpected retrieval defaults: %+v", cfg.Retrieval)
	}
	if cfg.Retrieval.DecayDays != 45.0 {
		t.Errorf("expected 45 day decay, got %v", cfg.Retrieval.DecayDays)
	}
	if cfg.Window.MinLen != 2 || cfg.Window.MaxLen != 4 {
		t.Errorf("unexpected window defaults: %+v", cfg.Window)
	}
	if cfg.Worker.BatchSize != 128 {
		t.Errorf("expected batch size 128, got %d", cfg.Worker.BatchSize)
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := "listen: \":9090\"\nretrieval:\n  top_k: 10\n"
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("HYBRID_W_VECTOR", "0.9")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Listen != ":9090" {
		t.Errorf("expected file override for listen, got %q", cfg.Listen)
	}
	if cfg.Retrieval.TopK != 10 {
		t.Errorf("expected top_k 10 from file, got %d", cfg.Retrieval.TopK)
	}
	if cfg.Retrieval.VectorWeight != 0.9 {
		t.Errorf("expected env override 0.9, got %v", cfg.Retrieval.VectorWeight)
	}
	// Untouched fields keep their defaults.
	if cfg.Retrieval.KeywordWeight != 0.3 {
		t.Errorf("expected default keyword weight, got %v", cfg.Retrieval.KeywordWeight)
	}
}

func TestLoad_EmbedProvider(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.OpenAI.EmbedProvider != "openai" {
		t.Errorf("expected default provider openai, got %q", cfg.OpenAI.EmbedProvider)
	}

	t.Setenv("EMBED_PROVIDER", "ollama")
	cfg, err = Load("")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.OpenAI.EmbedProvider != "ollama" {
		t.Errorf("expected env override ollama, got %q", cfg.OpenAI.EmbedProvider)
	}

	t.Setenv("EMBED_PROVIDER", "bedrock")
	if _, err := Load(""); err == nil {
		t.Error("expected error for unknown provider")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Store.Driver = "mysql"
	if err := cfg.validate(); err == nil {
		t.Error("expected error for unknown driver")
	}

	cfg = Default()
	cfg.Store.Driver = "postgres"
	cfg.Store.URL = ""
	if err := cfg.validate(); err == nil {
		t.Error("expected error for postgres without URL")
	}

	cfg = Default()
	cfg.Window.MinLen = 5
	cfg.Window.MaxLen = 2
	if err := cfg.validate(); err == nil {
		t.Error("expected error for inverted window bounds")
	}
}
