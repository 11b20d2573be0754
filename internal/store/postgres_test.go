package store

import (
	"strings"
	"testing"
)

// The pgvector backend needs a live server for query tests; the schema DDL
// itself can at least be checked against what the queries reference.
func TestPostgresSchema_CoversQueriedObjects(t *testing.T) {
	for _, want := range []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		"CREATE TABLE IF NOT EXISTS users",
		"CREATE TABLE IF NOT EXISTS conv_turns",
		"CREATE TABLE IF NOT EXISTS conv_windows",
		"CREATE TABLE IF NOT EXISTS analytics_events",
		"vector(1536)",
		"tsvector",
		"UNIQUE (user_id, conversation_id, start_index, end_index)",
	} {
		if !strings.Contains(PostgresSchema, want) {
			t.Errorf("schema is missing %q", want)
		}
	}
}

func TestVectorLiteral(t *testing.T) {
	got := vectorLiteral([]float32{0.5, -1, 0})
	if got != "[0.500000,-1.000000,0.000000]" {
		t.Errorf("unexpected literal %q", got)
	}
}
