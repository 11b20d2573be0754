package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/convomem/convomem/internal/ingest"
	"github.com/convomem/convomem/internal/server"
	"github.com/convomem/convomem/internal/worker"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Run:   runServe,
	}

	cmd.Flags().String("listen", "", "Listen address (overrides config)")
	cmd.Flags().Bool("with-worker", false, "Also run the embedding backfill worker in-process")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	cfg := loadConfig()
	if v, _ := cmd.Flags().GetString("listen"); v != "" {
		cfg.Listen = v
	}
	withWorker, _ := cmd.Flags().GetBool("with-worker")

	log := newLogger(cfg)
	defer log.Sync()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := openStore(ctx, cfg)
	defer st.Close()

	ing := ingest.New(st, cfg.Window.MinLen, cfg.Window.MaxLen)
	srv := server.New(log, st, ing, newComposer(cfg, st))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Run(gctx, cfg.Listen, cfg.Mode)
	})
	if withWorker {
		w := worker.New(st, newEmbedder(cfg), log, workerOptions(cfg))
		g.Go(func() error {
			return w.Run(gctx)
		})
	}

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		exitErr("serve", err)
	}
}
