package persistence

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ReferenceSequencer issues human-readable concern reference numbers in
// the CNR<year><month><seq> format. The sequence resets each month and is
// monotonic within a month.
type ReferenceSequencer interface {
	Next(ctx context.Context, at time.Time) (string, error)
}

func formatReference(at time.Time, seq int64) string {
	return fmt.Sprintf("CNR%04d%02d%04d", at.Year(), int(at.Month()), seq)
}

type redisSequencer struct {
	client *redis.Client
}

// NewRedisSequencer issues reference numbers from a Redis counter keyed by
// month, so multiple instances share one sequence.
func NewRedisSequencer(client *redis.Client) ReferenceSequencer {
	return &redisSequencer{client: client}
}

func (s *redisSequencer) Next(ctx context.Context, at time.Time) (string, error) {
	key := fmt.Sprintf("concern:seq:%04d%02d", at.Year(), int(at.Month()))
	seq, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return "", fmt.Errorf("increment reference sequence: %w", err)
	}
	// Expire stale monthly counters after they can no longer be current.
	s.client.Expire(ctx, key, 40*24*time.Hour)
	return formatReference(at, seq), nil
}

type memorySequencer struct {
	mu       sync.Mutex
	month    string
	sequence int64
}

// NewMemorySequencer issues reference numbers from process memory. Used when
// Redis is not configured and in tests.
func NewMemorySequencer() ReferenceSequencer {
	return &memorySequencer{}
}

func (s *memorySequencer) Next(ctx context.Context, at time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	month := fmt.Sprintf("%04d%02d", at.Year(), int(at.Month()))
	if month != s.month {
		s.month = month
		s.sequence = 0
	}
	s.sequence++
	return formatReference(at, s.sequence), nil
}
