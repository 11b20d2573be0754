// Package retrieval implements hybrid candidate retrieval: late fusion of
// vector similarity and keyword rank with exponential time decay.
package retrieval

import (
	"context"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/convomem/convomem/internal/apperr"
	"github.com/convomem/convomem/internal/model"
	"github.com/convomem/convomem/internal/store"
)

// Options tunes one retrieval call. Weights need not sum to 1; callers own
// weight-normalization policy.
type Options struct {
	TopK          int
	VectorWeight  float64
	KeywordWeight float64
	DecayDays     float64
	CandidateMult int
	CandidateMin  int
}

// DefaultOptions mirrors the service's shipped tuning.
func DefaultOptions() Options {
	return Options{
		TopK:          6,
		VectorWeight:  0.7,
		KeywordWeight: 0.3,
		DecayDays:     45.0,
		CandidateMult: 8,
		CandidateMin:  50,
	}
}

func (o Options) candidateLimit() int {
	n := o.TopK * o.CandidateMult
	if n < o.CandidateMin {
		n = o.CandidateMin
	}
	return n
}

// Retriever ranks stored windows against a query. It only reads from the
// store and holds no cross-call state.
type Retriever struct {
	store store.Store
}

func New(s store.Store) *Retriever {
	return &Retriever{store: s}
}

// Retrieve runs the hybrid pipeline: fetch vector and keyword candidates
// concurrently, union on window identity, max-normalize each signal, decay
// the vector signal by age, fuse with the configured weights, and return the
// topK windows by fused score.
func (r *Retriever) Retrieve(ctx context.Context, userID, queryText string, qvec []float32, opts Options) ([]model.RankedSnippet, error) {
	if opts.TopK <= 0 {
		return []model.RankedSnippet{}, nil
	}
	limit := opts.candidateLimit()

	var vecCands, keyCands []model.Candidate
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		vecCands, err = r.store.VectorCandidates(gctx, userID, qvec, limit)
		return err
	})
	g.Go(func() error {
		var err error
		keyCands, err = r.store.KeywordCandidates(gctx, userID, queryText, limit)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, apperr.Retrieval(err)
	}

	merged := merge(vecCands, keyCands)
	normalize(merged)

	for i := range merged {
		c := &merged[i]
		decay := math.Exp(-c.AgeDays / opts.DecayDays)
		c.VectorSim = c.VectorSim * decay
	}

	return rank(merged, func(c model.Candidate) float64 {
		return opts.VectorWeight*c.VectorSim + opts.KeywordWeight*c.KeywordRank
	}, opts.TopK), nil
}

// RetrieveVector is the vector-only pipeline: no keyword branch, no fusion.
// Decay applies directly to the raw similarity, which is the only signal.
func (r *Retriever) RetrieveVector(ctx context.Context, userID string, qvec []float32, opts Options) ([]model.RankedSnippet, error) {
	if opts.TopK <= 0 {
		return []model.RankedSnippet{}, nil
	}
	cands, err := r.store.VectorCandidates(ctx, userID, qvec, opts.candidateLimit())
	if err != nil {
		return nil, apperr.Retrieval(err)
	}
	return rank(cands, func(c model.Candidate) float64 {
		return c.VectorSim * math.Exp(-c.AgeDays/opts.DecayDays)
	}, opts.TopK), nil
}

// merge unions both candidate sets keyed by window ID. A window in only one
// set keeps a zero score for the missing signal; a window in both carries
// both signals and its vector-side age.
func merge(vec, key []model.Candidate) []model.Candidate {
	byID := make(map[string]int, len(vec)+len(key))
	out := make([]model.Candidate, 0, len(vec)+len(key))

	for _, c := range vec {
		byID[c.WindowID] = len(out)
		out = append(out, c)
	}
	for _, c := range key {
		if i, ok := byID[c.WindowID]; ok {
			out[i].KeywordRank = c.KeywordRank
			continue
		}
		// Keyword-only candidates keep age zero: the keyword signal is not
		// decayed, and the vector term is zero anyway.
		byID[c.WindowID] = len(out)
		out = append(out, c)
	}
	return out
}

// normalize rescales each signal to ~[0,1] by its max within the candidate
// set. A signal with max zero stays all-zero.
func normalize(cands []model.Candidate) {
	var maxVec, maxKey float64
	for _, c := range cands {
		if c.VectorSim > maxVec {
			maxVec = c.VectorSim
		}
		if c.KeywordRank > maxKey {
			maxKey = c.KeywordRank
		}
	}
	for i := range cands {
		if maxVec > 0 {
			cands[i].VectorSim /= maxVec
		} else {
			cands[i].VectorSim = 0
		}
		if maxKey > 0 {
			cands[i].KeywordRank /= maxKey
		} else {
			cands[i].KeywordRank = 0
		}
	}
}

func rank(cands []model.Candidate, score func(model.Candidate) float64, topK int) []model.RankedSnippet {
	out := make([]model.RankedSnippet, 0, len(cands))
	for _, c := range cands {
		out = append(out, model.RankedSnippet{
			WindowID:       c.WindowID,
			ConversationID: c.ConversationID,
			Text:           c.Text,
			Score:          score(c),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > topK {
		out = out[:topK]
	}
	return out
}
