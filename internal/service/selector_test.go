package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/spec-kit/concern-service/internal/domain"
)

func candidate(id string, workload int, avg time.Duration, hasHistory bool) AssignmentCandidate {
	return AssignmentCandidate{
		Handler:       domain.Handler{ID: id},
		Workload:      workload,
		AvgResolution: avg,
		HasHistory:    hasHistory,
	}
}

func TestRankCandidatesLowestWorkloadFirst(t *testing.T) {
	ranked := RankCandidates([]AssignmentCandidate{
		candidate("h3", 5, 0, false),
		candidate("h1", 2, 0, false),
		candidate("h2", 0, 0, false),
	})
	assert.Equal(t, "h2", ranked[0].Handler.ID)
	assert.Equal(t, "h1", ranked[1].Handler.ID)
	assert.Equal(t, "h3", ranked[2].Handler.ID)
}

func TestRankCandidatesTieBrokenByAvgResolution(t *testing.T) {
	ranked := RankCandidates([]AssignmentCandidate{
		candidate("h1", 3, 10*time.Hour, true),
		candidate("h2", 3, 2*time.Hour, true),
	})
	assert.Equal(t, "h2", ranked[0].Handler.ID)
}

func TestRankCandidatesNoHistorySortsAfterKnownAverage(t *testing.T) {
	ranked := RankCandidates([]AssignmentCandidate{
		candidate("h1", 3, 0, false),
		candidate("h2", 3, 20*time.Hour, true),
	})
	assert.Equal(t, "h2", ranked[0].Handler.ID)
}

func TestRankCandidatesFinalTieBrokenByID(t *testing.T) {
	ranked := RankCandidates([]AssignmentCandidate{
		candidate("hB", 1, time.Hour, true),
		candidate("hA", 1, time.Hour, true),
	})
	assert.Equal(t, "hA", ranked[0].Handler.ID)
}

func TestSelectHandlerSkipsAtCapacity(t *testing.T) {
	outcome := SelectHandler([]AssignmentCandidate{
		candidate("h1", 10, 0, false),
		candidate("h2", 4, 0, false),
	}, 10)
	assert.False(t, outcome.NoAssignee)
	assert.Equal(t, "h2", outcome.Handler.ID)
}

func TestSelectHandlerPoolExhausted(t *testing.T) {
	outcome := SelectHandler([]AssignmentCandidate{
		candidate("h1", 10, 0, false),
		candidate("h2", 12, 0, false),
	}, 10)
	assert.True(t, outcome.NoAssignee)
	assert.Nil(t, outcome.Handler)
	assert.NotEmpty(t, outcome.Reason)
}
