package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySequencerFormatsAndIncrements(t *testing.T) {
	seq := NewMemorySequencer()
	at := time.Date(2026, 8, 5, 9, 0, 0, 0, time.UTC)

	first, err := seq.Next(context.Background(), at)
	require.NoError(t, err)
	assert.Equal(t, "CNR2026080001", first)

	second, err := seq.Next(context.Background(), at)
	require.NoError(t, err)
	assert.Equal(t, "CNR2026080002", second)
}

func TestMemorySequencerResetsEachMonth(t *testing.T) {
	seq := NewMemorySequencer()
	august := time.Date(2026, 8, 31, 23, 0, 0, 0, time.UTC)
	september := time.Date(2026, 9, 1, 0, 30, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		_, err := seq.Next(context.Background(), august)
		require.NoError(t, err)
	}

	ref, err := seq.Next(context.Background(), september)
	require.NoError(t, err)
	assert.Equal(t, "CNR2026090001", ref)
}
