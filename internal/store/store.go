// Package store provides the conversation storage interface and its SQLite
// and Postgres/pgvector implementations.
package store

import (
	"context"

	"github.com/convomem/convomem/internal/model"
)

// Store is the single source of truth for turn and window state. It exposes
// the two retrieval primitives (vector top-N, keyword top-N); merging,
// normalization, and fusion happen in the retriever, not in SQL.
type Store interface {
	// EnsureUser inserts the user row if absent.
	EnsureUser(ctx context.Context, userID string) error

	// AppendTurn persists one turn at the given index.
	AppendTurn(ctx context.Context, userID, conversationID, role, content string, turnIndex int) error

	// NextTurnIndex returns the next unused turn index for the conversation.
	// Two concurrent callers may race; callers needing strict ordering must
	// serialize writes per conversation externally.
	NextTurnIndex(ctx context.Context, userID, conversationID string) (int, error)

	// Turns returns the conversation's turns ordered by turn index.
	Turns(ctx context.Context, userID, conversationID string, limit int) ([]model.StoredTurn, error)

	// RecentTurns returns the conversation's last lastN turns in ascending
	// index order. Live-chat windowing reads the tail through this so long
	// conversations never truncate away the newest turn.
	RecentTurns(ctx context.Context, userID, conversationID string, lastN int) ([]model.StoredTurn, error)

	// Conversations lists a user's conversations, most recently active first.
	Conversations(ctx context.Context, userID string, limit int) ([]model.ConversationSummary, error)

	// InsertWindow inserts a window row with a null embedding. Idempotent on
	// (user, conversation, start, end): re-inserting is a no-op and returns
	// false.
	InsertWindow(ctx context.Context, w model.Window) (bool, error)

	// VectorCandidates returns up to limit windows with non-null embeddings
	// for the user, ordered by similarity to qvec descending. Each candidate
	// carries VectorSim and AgeDays.
	VectorCandidates(ctx context.Context, userID string, qvec []float32, limit int) ([]model.Candidate, error)

	// KeywordCandidates returns up to limit windows matching the keyword
	// query (quoted phrases and AND/OR supported), ordered by rank
	// descending. Each candidate carries KeywordRank; AgeDays is zero.
	KeywordCandidates(ctx context.Context, userID, query string, limit int) ([]model.Candidate, error)

	// PendingWindows returns up to limit windows with null embeddings,
	// oldest first. Used by the backfill worker.
	PendingWindows(ctx context.Context, limit int) ([]model.Window, error)

	// SetEmbedding writes the computed vector for a window.
	SetEmbedding(ctx context.Context, windowID string, vec []float32) error

	// ResetConversation deletes the conversation's turns and windows.
	ResetConversation(ctx context.Context, userID, conversationID string) error

	// DeleteUser removes the user and all dependent rows.
	DeleteUser(ctx context.Context, userID string) error

	// LogEvent records an analytics event. Failures are swallowed; analytics
	// must never fail the primary request.
	LogEvent(ctx context.Context, userID, event string, data map[string]interface{})

	// Stats returns database statistics.
	Stats(ctx context.Context) (*Stats, error)

	// Ping checks store liveness.
	Ping(ctx context.Context) error

	// Close closes the store.
	Close() error
}
