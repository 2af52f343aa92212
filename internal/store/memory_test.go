package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_Seen(t *testing.T) {
	m := NewMemoryStore(time.Minute, 100)
	ctx := context.Background()

	seen, err := m.Seen(ctx, "wamid.1")
	require.NoError(t, err)
	assert.False(t, seen)

	seen, err = m.Seen(ctx, "wamid.1")
	require.NoError(t, err)
	assert.True(t, seen)
}

func TestMemoryStore_ExpiresAfterTTL(t *testing.T) {
	m := NewMemoryStore(time.Minute, 100)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return now }

	seen, _ := m.Seen(context.Background(), "wamid.2")
	assert.False(t, seen)

	now = now.Add(2 * time.Minute)
	seen, _ = m.Seen(context.Background(), "wamid.2")
	assert.False(t, seen)
}

func TestMemoryStore_BoundedSize(t *testing.T) {
	m := NewMemoryStore(time.Hour, 3)
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m.now = func() time.Time {
		now = now.Add(time.Second)
		return now
	}

	for i := 0; i < 5; i++ {
		_, _ = m.Seen(context.Background(), fmt.Sprintf("k%d", i))
	}
	assert.Equal(t, 3, m.Len())

	// Oldest keys were evicted first.
	seen, _ := m.Seen(context.Background(), "k4")
	assert.True(t, seen)
}
