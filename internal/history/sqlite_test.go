package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragserver/internal/domain"
)

func TestAppendPersistsInteractions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interactions.db")
	store, err := NewStore(path)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Append(ctx, domain.Interaction{
		SessionID: "s1",
		Query:     "How is AI used in healthcare?",
		Answer:    "For imaging triage.",
		SourceIDs: []string{"1:0", "1:1"},
	}))
	require.NoError(t, store.Append(ctx, domain.Interaction{
		SessionID: "s2",
		Query:     "another question",
		Answer:    "another answer",
		CreatedAt: time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC),
	}))

	var count int
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(*) FROM interactions`).Scan(&count))
	assert.Equal(t, 2, count)

	var sources string
	require.NoError(t, store.db.QueryRow(
		`SELECT source_ids FROM interactions WHERE session_id = ?`, "s1").Scan(&sources))
	assert.JSONEq(t, `["1:0","1:1"]`, sources)
}

func TestAppendGeneratesIDs(t *testing.T) {
	path := filepath.Join(t.TempDir(), "interactions.db")
	store, err := NewStore(path)
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	require.NoError(t, store.Append(ctx, domain.Interaction{SessionID: "s1", Query: "q", Answer: "a"}))
	require.NoError(t, store.Append(ctx, domain.Interaction{SessionID: "s1", Query: "q", Answer: "a"}))

	var distinct int
	require.NoError(t, store.db.QueryRow(`SELECT COUNT(DISTINCT id) FROM interactions`).Scan(&distinct))
	assert.Equal(t, 2, distinct)
}
