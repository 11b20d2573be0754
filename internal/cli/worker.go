package cli

import (
	"context"
	"errors"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/convomem/convomem/internal/config"
	"github.com/convomem/convomem/internal/worker"
)

func init() {
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the embedding backfill worker",
		Long:  "Poll for windows without embeddings, embed them in batches, and write the vectors back. Runs until interrupted.",
		Run:   runWorker,
	}

	cmd.Flags().Bool("once", false, "Process one batch and exit")

	RootCmd.AddCommand(cmd)
}

func runWorker(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	once, _ := cmd.Flags().GetBool("once")

	log := newLogger(cfg)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := openStore(ctx, cfg)
	defer st.Close()

	w := worker.New(st, newEmbedder(cfg), log, workerOptions(cfg))

	if once {
		n, err := w.RunOnce(ctx)
		if err != nil {
			exitErr("worker", err)
		}
		log.Info("batch done", "embedded", n)
		return
	}
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		exitErr("worker", err)
	}
}

func workerOptions(cfg config.Config) worker.Options {
	return worker.Options{
		BatchSize:  cfg.Worker.BatchSize,
		SleepEmpty: time.Duration(cfg.Worker.SleepEmpty * float64(time.Second)),
		SleepError: time.Duration(cfg.Worker.SleepError * float64(time.Second)),
	}
}
