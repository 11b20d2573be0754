// Package cli implements the convomem CLI commands.
package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/convomem/convomem/internal/compose"
	"github.com/convomem/convomem/internal/config"
	"github.com/convomem/convomem/internal/embedding"
	"github.com/convomem/convomem/internal/intent"
	"github.com/convomem/convomem/internal/llm"
	"github.com/convomem/convomem/internal/logger"
	"github.com/convomem/convomem/internal/retrieval"
	"github.com/convomem/convomem/internal/store"
)

var (
	cfgPath string
	dbFlag  string
)

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "convomem",
	Short: "Conversation memory with hybrid retrieval",
	Long:  "Windowized conversation memory for assistants. Ingest turns, embed them in the background, and answer questions grounded in what was said before.",
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "Config file (YAML)")
	RootCmd.PersistentFlags().StringVarP(&dbFlag, "db", "d", "", "SQLite database path (overrides config)")
}

func loadConfig() config.Config {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		exitErr("load config", err)
	}
	if dbFlag != "" {
		cfg.Store.Driver = "sqlite"
		cfg.Store.Path = dbFlag
	}
	return cfg
}

func openStore(ctx context.Context, cfg config.Config) store.Store {
	var (
		s   store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "postgres":
		s, err = store.NewPostgresStore(ctx, cfg.Store.URL)
	default:
		s, err = store.NewSQLiteStore(cfg.Store.Path)
	}
	if err != nil {
		exitErr("open store", err)
	}
	return s
}

func newLogger(cfg config.Config) *logger.Logger {
	log, err := logger.New(cfg.Mode)
	if err != nil {
		exitErr("init logger", err)
	}
	return log
}

func newEmbedder(cfg config.Config) embedding.Embedder {
	return embedding.NewFromConfig(cfg.OpenAI.EmbedProvider, cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.EmbedModel, cfg.OpenAI.EmbedDims)
}

func newComposer(cfg config.Config, s store.Store) *compose.Composer {
	opts := retrieval.Options{
		TopK:          cfg.Retrieval.TopK,
		VectorWeight:  cfg.Retrieval.VectorWeight,
		KeywordWeight: cfg.Retrieval.KeywordWeight,
		DecayDays:     cfg.Retrieval.DecayDays,
		CandidateMult: cfg.Retrieval.CandidateMult,
		CandidateMin:  cfg.Retrieval.CandidateMin,
	}
	chat := llm.NewOpenAIChat(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL, cfg.OpenAI.ChatModel)
	return compose.New(intent.New(), retrieval.New(s), newEmbedder(cfg), chat, opts)
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
