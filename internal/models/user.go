package models

import "github.com/google/uuid"

type Role string

const (
	RoleViewer   Role = "viewer"
	RoleReviewer Role = "reviewer"
	RoleAdmin    Role = "admin"
)

// CanReview reports whether the role may approve, reject or manually match
func (r Role) CanReview() bool {
	return r == RoleReviewer || r == RoleAdmin
}

// Principal is the authenticated caller. Identity is issued by the outer
// platform; this service only reads it from the token.
type Principal struct {
	UserID         uuid.UUID `json:"user_id"`
	OrganizationID uuid.UUID `json:"organization_id"`
	Email          string    `json:"email,omitempty"`
	Role           Role      `json:"role"`
}
