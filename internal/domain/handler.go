package domain

import "time"

// HandlerRole enumerates staff authority tiers.
type HandlerRole string

const (
	HandlerRoleStaff          HandlerRole = "STAFF"
	HandlerRoleDepartmentHead HandlerRole = "DEPARTMENT_HEAD"
	HandlerRoleAdmin          HandlerRole = "ADMIN"
)

// Handler models a staff member, department head, or administrator
// capable of being assigned a concern. Workload is derived from
// concern records, never stored here.
type Handler struct {
	ID                     string
	Name                   string
	Email                  string
	PasswordHash           string
	Role                   HandlerRole
	DepartmentID           *string
	CrossDepartmentCapable bool
	Active                 bool
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// InDepartment reports whether the handler belongs to the given department.
func (h *Handler) InDepartment(departmentID string) bool {
	return h.DepartmentID != nil && *h.DepartmentID == departmentID
}
