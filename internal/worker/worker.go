// Package worker backfills window embeddings out of band so ingestion never
// blocks on model latency.
package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/convomem/convomem/internal/embedding"
	"github.com/convomem/convomem/internal/logger"
	"github.com/convomem/convomem/internal/model"
	"github.com/convomem/convomem/internal/store"
)

// Options tunes the poll loop.
type Options struct {
	BatchSize  int
	SleepEmpty time.Duration
	SleepError time.Duration
}

func DefaultOptions() Options {
	return Options{
		BatchSize:  128,
		SleepEmpty: 2 * time.Second,
		SleepError: 5 * time.Second,
	}
}

// Worker polls for windows with null embeddings and writes vectors back.
type Worker struct {
	store    store.Store
	embedder embedding.Embedder
	log      *logger.Logger
	opts     Options
}

func New(s store.Store, e embedding.Embedder, log *logger.Logger, opts Options) *Worker {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultOptions().BatchSize
	}
	return &Worker{store: s, embedder: e, log: log, opts: opts}
}

// Run loops until ctx is cancelled: fetch pending, embed as one batch, and
// on batch failure fall back to per-row embedding, skipping rows whose
// individual call fails.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info("worker starting", "batch_size", w.opts.BatchSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, err := w.RunOnce(ctx)
		switch {
		case err != nil:
			w.log.Error("worker pass failed", "error", err)
			if !sleep(ctx, w.opts.SleepError) {
				return ctx.Err()
			}
		case n == 0:
			if !sleep(ctx, w.opts.SleepEmpty) {
				return ctx.Err()
			}
		}
	}
}

// RunOnce processes a single batch and reports how many windows got
// embeddings.
func (w *Worker) RunOnce(ctx context.Context) (int, error) {
	pending, err := w.store.PendingWindows(ctx, w.opts.BatchSize)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	texts := make([]string, len(pending))
	for i, p := range pending {
		texts[i] = p.Text
	}

	vecs, err := w.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		w.log.Warn("batch embed failed, falling back to per-row", "error", err)
		done := w.perRow(ctx, pending)
		if done == 0 {
			// Nothing salvaged: the provider is down, not one row bad.
			// Surface the batch error so the loop takes the error cool-off.
			return 0, fmt.Errorf("embed batch of %d: %w", len(pending), err)
		}
		return done, nil
	}

	done := 0
	for i, p := range pending {
		if err := w.store.SetEmbedding(ctx, p.ID, vecs[i]); err != nil {
			w.log.Error("write embedding failed", "window_id", p.ID, "error", err)
			continue
		}
		done++
	}
	w.log.Info("embedded windows", "count", done)
	return done, nil
}

// perRow retries one window at a time; a row whose embedding call fails is
// logged and skipped so one bad row cannot wedge the queue.
func (w *Worker) perRow(ctx context.Context, pending []model.Window) int {
	done := 0
	for _, p := range pending {
		if ctx.Err() != nil {
			return done
		}
		vec, err := w.embedder.Embed(ctx, p.Text)
		if err != nil {
			w.log.Error("row embed failed, skipping", "window_id", p.ID, "error", err)
			continue
		}
		if err := w.store.SetEmbedding(ctx, p.ID, vec); err != nil {
			w.log.Error("write embedding failed", "window_id", p.ID, "error", err)
			continue
		}
		done++
	}
	return done
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
