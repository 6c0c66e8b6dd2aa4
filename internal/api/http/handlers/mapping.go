package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/concern-service/internal/api/dto"
	"github.com/spec-kit/concern-service/internal/domain"
	"github.com/spec-kit/concern-service/internal/repository"
	"github.com/spec-kit/concern-service/internal/service"
)

func concernSummary(c *domain.Concern) dto.ConcernSummary {
	return dto.ConcernSummary{
		ID:              c.ID,
		ReferenceNumber: c.ReferenceNumber,
		DepartmentID:    c.DepartmentID,
		Subject:         c.Subject,
		Category:        c.Category,
		Priority:        string(c.Priority),
		Status:          string(c.Status),
		EscalationLevel: string(c.EscalationLevel),
		AssignedTo:      c.AssignedTo,
		CreatedAt:       c.CreatedAt,
		UpdatedAt:       c.UpdatedAt,
		ResolvedAt:      c.ResolvedAt,
	}
}

func concernDetail(c *domain.Concern, history []domain.ConcernHistory) dto.ConcernDetail {
	detail := dto.ConcernDetail{
		ConcernSummary:   concernSummary(c),
		StudentID:        c.StudentID,
		FacilityID:       c.FacilityID,
		Description:      c.Description,
		EscalationReason: c.EscalationReason,
		Archived:         c.Archived,
		Attachments:      c.Attachments,
		ApprovedAt:       c.ApprovedAt,
		AssignedAt:       c.AssignedAt,
		EscalatedAt:      c.EscalatedAt,
		ConfirmedAt:      c.ConfirmedAt,
		DisputedAt:       c.DisputedAt,
	}
	for i := range history {
		detail.History = append(detail.History, dto.HistoryEntry{
			ChangedByType: string(history[i].ChangedByType),
			ChangedByID:   history[i].ChangedByID,
			ChangeType:    string(history[i].ChangeType),
			OldValue:      history[i].OldValue,
			NewValue:      history[i].NewValue,
			CreatedAt:     history[i].CreatedAt,
		})
	}
	return detail
}

func analysisView(a service.PriorityAnalysis) dto.PriorityAnalysisView {
	return dto.PriorityAnalysisView{
		Priority:       string(a.Priority),
		Category:       a.Category,
		DepartmentHint: a.DepartmentHint,
		Sentiment:      string(a.Sentiment),
		AutoEscalation: a.AutoEscalation,
		Confidence:     a.Confidence,
	}
}

func assignmentView(o service.AssignmentOutcome) dto.AssignmentView {
	view := dto.AssignmentView{
		CrossDepartment: o.CrossDepartment,
		NoAssignee:      o.NoAssignee,
		Reason:          o.Reason,
	}
	if o.Handler != nil {
		view.HandlerID = &o.Handler.ID
	}
	return view
}

func parseConcernQuery(c *fiber.Ctx) repository.ConcernFilter {
	filter := repository.ConcernFilter{}
	if statuses := c.Query("status"); statuses != "" {
		for _, s := range strings.Split(statuses, ",") {
			filter.Statuses = append(filter.Statuses, domain.ConcernStatus(strings.ToUpper(strings.TrimSpace(s))))
		}
	}
	if priorities := c.Query("priority"); priorities != "" {
		for _, p := range strings.Split(priorities, ",") {
			filter.Priorities = append(filter.Priorities, domain.ConcernPriority(strings.ToUpper(strings.TrimSpace(p))))
		}
	}
	if dept := c.Query("department_id"); dept != "" {
		filter.DepartmentID = &dept
	}
	if search := c.Query("search"); search != "" {
		filter.SearchTerm = &search
	}
	filter.IncludeArchived = c.QueryBool("include_archived")
	filter.Unassigned = c.QueryBool("unassigned")
	if limit, err := strconv.Atoi(c.Query("limit", "50")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(c.Query("offset", "0")); err == nil {
		filter.Offset = offset
	}
	return filter
}
