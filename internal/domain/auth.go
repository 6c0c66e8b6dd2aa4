package domain

import "time"

// SubjectType differentiates student vs handler tokens.
type SubjectType string

const (
	SubjectTypeStudent SubjectType = "STUDENT"
	SubjectTypeHandler SubjectType = "HANDLER"
)

// Token represents issued authentication token metadata.
type Token struct {
	ID        string
	SubjectID string
	Subject   SubjectType
	Role      *HandlerRole
	ExpiresAt time.Time
	IssuedAt  time.Time
}
