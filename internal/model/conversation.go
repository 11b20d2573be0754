// Package model defines the core conversation and retrieval data types.
package model

import "time"

// Roles carried by conversation turns. Only user and assistant turns are
// windowed; system turns are kept in the log but never indexed.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Turn is a single conversation message as supplied by a client. CreatedAt
// is kept as the raw wire string: clients send a variety of timestamp
// shapes, and a bad one must degrade to "no timestamp" rather than reject
// the whole request. Parsing happens at windowing time.
type Turn struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at,omitempty"`
}

// StoredTurn is a turn row persisted in the conversation log.
type StoredTurn struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	TurnIndex int       `json:"turn_index"`
	CreatedAt time.Time `json:"created_at"`
}

// Window is a contiguous, possibly overlapping span of turns treated as one
// retrievable unit. (StartIndex, EndIndex) is inclusive and, together with
// the user and conversation, uniquely identifies the row.
type Window struct {
	ID             string     `json:"window_id"`
	UserID         string     `json:"user_id"`
	ConversationID string     `json:"conversation_id"`
	StartIndex     int        `json:"start_index"`
	EndIndex       int        `json:"end_index"`
	TurnCount      int        `json:"turn_count"`
	Text           string     `json:"text"`
	Fingerprint    string     `json:"text_hash"`
	FirstTurnAt    *time.Time `json:"first_turn_at,omitempty"`
	LastTurnAt     *time.Time `json:"last_turn_at,omitempty"`
	Embedding      []float32  `json:"-"`
	CreatedAt      time.Time  `json:"created_at"`
}

// Candidate is a retrieval-stage window carrying raw relevance signals
// before fusion. It exists only within a single retrieval call.
type Candidate struct {
	WindowID       string
	ConversationID string
	Text           string
	VectorSim      float64 // 1 - cosine distance; 0 when keyword-only
	KeywordRank    float64 // full-text rank; 0 when vector-only
	AgeDays        float64 // now - last activity, floored at zero
}

// RankedSnippet is a fused, ranked retrieval result.
type RankedSnippet struct {
	WindowID       string  `json:"window_id"`
	ConversationID string  `json:"conversation_id"`
	Text           string  `json:"text"`
	Score          float64 `json:"score"`
}

// ConversationSummary describes one conversation in a user's listing.
type ConversationSummary struct {
	ConversationID string    `json:"conversation_id"`
	TurnCount      int       `json:"turn_count"`
	LastAt         time.Time `json:"last_at"`
}
