package service

import (
	"sort"
	"time"

	"github.com/spec-kit/concern-service/internal/domain"
)

// AssignmentCandidate pairs a handler with its workload snapshot.
type AssignmentCandidate struct {
	Handler       domain.Handler
	Workload      int
	AvgResolution time.Duration
	HasHistory    bool
}

// AssignmentOutcome describes the result of a selection attempt.
// NoAssigneeAvailable is a valid outcome, not an error: the concern stays
// unassigned and a later retry (or manual review) handles it.
type AssignmentOutcome struct {
	Handler         *domain.Handler
	CrossDepartment bool
	SourceDept      *string
	NoAssignee      bool
	Reason          string
}

// BuildCandidates merges a handler pool with a workload snapshot.
func BuildCandidates(handlers []domain.Handler, workloads map[string]int, resolution map[string]time.Duration) []AssignmentCandidate {
	candidates := make([]AssignmentCandidate, 0, len(handlers))
	for i := range handlers {
		avg, ok := resolution[handlers[i].ID]
		candidates = append(candidates, AssignmentCandidate{
			Handler:       handlers[i],
			Workload:      workloads[handlers[i].ID],
			AvgResolution: avg,
			HasHistory:    ok,
		})
	}
	return candidates
}

// RankCandidates orders candidates by the selection rule: lowest workload
// first, ties broken by lowest historical average resolution time, then by
// handler identity for determinism. Handlers with no resolution history
// sort after those with a known average at the same workload.
func RankCandidates(candidates []AssignmentCandidate) []AssignmentCandidate {
	ranked := append([]AssignmentCandidate(nil), candidates...)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Workload != ranked[j].Workload {
			return ranked[i].Workload < ranked[j].Workload
		}
		if ranked[i].HasHistory != ranked[j].HasHistory {
			return ranked[i].HasHistory
		}
		if ranked[i].HasHistory && ranked[i].AvgResolution != ranked[j].AvgResolution {
			return ranked[i].AvgResolution < ranked[j].AvgResolution
		}
		return ranked[i].Handler.ID < ranked[j].Handler.ID
	})
	return ranked
}

// SelectHandler applies the capacity cap to ranked candidates and returns
// the best one, or a NoAssignee outcome when the pool is exhausted.
func SelectHandler(candidates []AssignmentCandidate, capacity int) AssignmentOutcome {
	for _, candidate := range RankCandidates(candidates) {
		if candidate.Workload >= capacity {
			continue
		}
		handler := candidate.Handler
		return AssignmentOutcome{Handler: &handler}
	}
	return AssignmentOutcome{NoAssignee: true, Reason: "no handler with spare capacity"}
}
