package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragserver/internal/domain"
)

func TestGetSetRoundTrip(t *testing.T) {
	c := NewCache()
	ctx := context.Background()
	answer := domain.Answer{Text: "hi", Sources: []domain.Source{{Title: "Doc", Relevance: 0.9}}}

	_, ok := c.Get(ctx, "s1", "query")
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "s1", "query", answer, time.Minute))
	got, ok := c.Get(ctx, "s1", "query")
	require.True(t, ok)
	assert.Equal(t, answer, got)

	// Normalized variants of the query hit the same entry.
	got, ok = c.Get(ctx, "s1", "  QUERY ")
	require.True(t, ok)
	assert.Equal(t, answer, got)
}

func TestEntriesExpire(t *testing.T) {
	c := NewCache()
	ctx := context.Background()
	now := time.Now()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(ctx, "s1", "query", domain.Answer{Text: "hi"}, time.Minute))
	_, ok := c.Get(ctx, "s1", "query")
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	_, ok = c.Get(ctx, "s1", "query")
	assert.False(t, ok)
}

func TestInvalidateSession(t *testing.T) {
	c := NewCache()
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "s1", "q1", domain.Answer{Text: "a1"}, time.Minute))
	require.NoError(t, c.Set(ctx, "s1", "q2", domain.Answer{Text: "a2"}, time.Minute))
	require.NoError(t, c.Set(ctx, "s2", "q1", domain.Answer{Text: "a3"}, time.Minute))

	require.NoError(t, c.Invalidate(ctx, "s1"))

	_, ok := c.Get(ctx, "s1", "q1")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "s1", "q2")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "s2", "q1")
	assert.True(t, ok)
}
