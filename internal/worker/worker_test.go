package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/convomem/convomem/internal/embedding"
	"github.com/convomem/convomem/internal/logger"
	"github.com/convomem/convomem/internal/model"
	"github.com/convomem/convomem/internal/store"
)

type fakeStore struct {
	store.Store
	pending  []model.Window
	written  map[string][]float32
	writeErr error
}

func (f *fakeStore) PendingWindows(ctx context.Context, limit int) ([]model.Window, error) {
	if len(f.pending) > limit {
		return f.pending[:limit], nil
	}
	return f.pending, nil
}

func (f *fakeStore) SetEmbedding(ctx context.Context, windowID string, vec []float32) error {
	if f.writeErr != nil {
		return f.writeErr
	}
	if f.written == nil {
		f.written = map[string][]float32{}
	}
	f.written[windowID] = vec
	// Written windows stop being pending.
	var rest []model.Window
	for _, p := range f.pending {
		if p.ID != windowID {
			rest = append(rest, p)
		}
	}
	f.pending = rest
	return nil
}

type fakeEmbedder struct {
	batchErr error
	rowErr   map[string]error
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) (embedding.Vector, error) {
	if err := f.rowErr[text]; err != nil {
		return nil, err
	}
	return embedding.Vector{float32(len(text))}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]embedding.Vector, error) {
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	out := make([]embedding.Vector, len(texts))
	for i, t := range texts {
		out[i] = embedding.Vector{float32(len(t))}
	}
	return out, nil
}

func (f *fakeEmbedder) Dims() int { return 1 }

func pending(ids ...string) []model.Window {
	out := make([]model.Window, len(ids))
	for i, id := range ids {
		out[i] = model.Window{ID: id, Text: "text for " + id}
	}
	return out
}

func TestRunOnce_Batch(t *testing.T) {
	st := &fakeStore{pending: pending("w1", "w2", "w3")}
	w := New(st, &fakeEmbedder{}, logger.Nop(), DefaultOptions())

	n, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("run once: %v", err)
	}
	if n != 3 {
		t.Errorf("expected 3 embedded, got %d", n)
	}
	if len(st.written) != 3 {
		t.Errorf("expected 3 writes, got %d", len(st.written))
	}
}

func TestRunOnce_Empty(t *testing.T) {
	w := New(&fakeStore{}, &fakeEmbedder{}, logger.Nop(), DefaultOptions())
	n, err := w.RunOnce(context.Background())
	if err != nil || n != 0 {
		t.Errorf("expected (0, nil), got (%d, %v)", n, err)
	}
}

func TestRunOnce_BatchFailureFallsBackPerRow(t *testing.T) {
	st := &fakeStore{pending: pending("w1", "w2", "w3")}
	emb := &fakeEmbedder{
		batchErr: errors.New("rate limited"),
		rowErr:   map[string]error{"text for w2": errors.New("bad row")},
	}
	w := New(st, emb, logger.Nop(), DefaultOptions())

	n, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("fallback must not surface the batch error: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 embedded (w2 skipped), got %d", n)
	}
	if _, ok := st.written["w2"]; ok {
		t.Error("failed row should be skipped, not written")
	}
	if _, ok := st.written["w1"]; !ok {
		t.Error("w1 should be written despite w2 failing")
	}
}

func TestRunOnce_ProviderDownSurfacesError(t *testing.T) {
	st := &fakeStore{pending: pending("w1", "w2")}
	down := errors.New("connection refused")
	emb := &fakeEmbedder{
		batchErr: down,
		rowErr: map[string]error{
			"text for w1": down,
			"text for w2": down,
		},
	}
	w := New(st, emb, logger.Nop(), DefaultOptions())

	// Per-row fallback salvaged nothing, so the batch error must come back
	// and the loop must take the error cool-off, not the idle one.
	n, err := w.RunOnce(context.Background())
	if n != 0 {
		t.Errorf("expected 0 embedded, got %d", n)
	}
	if !errors.Is(err, down) {
		t.Errorf("expected the batch error, got %v", err)
	}
}

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	w := New(&fakeStore{}, &fakeEmbedder{}, logger.Nop(), DefaultOptions())
	if err := w.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
