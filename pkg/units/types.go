// Package units owns organizational units and the user↔unit
// entitlement edges. Each edge carries the RLS filter param presented
// upstream when that user operates in that unit's context; the value is
// per-edge, so one user may hold a different RLS identity in each unit.
package units

import (
	"time"

	"github.com/reportgate/reportgate/pkg/identity"
)

// Unit represents an organizational scoping boundary
type Unit struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Membership is a unit as seen from a user's perspective, including the
// RLS identity the edge carries.
type Membership struct {
	Unit           Unit   `json:"unit"`
	RLSFilterParam string `json:"rls_filter_param"`
}

// Member is a user as seen from a unit's perspective.
type Member struct {
	UserID         int64         `json:"user_id"`
	Username       string        `json:"username"`
	Role           identity.Role `json:"role"`
	RLSFilterParam string        `json:"rls_filter_param"`
}

// CreateUnitRequest represents a request to create a unit
type CreateUnitRequest struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// UpdateUnitRequest represents a request to update a unit
type UpdateUnitRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}

// GrantRequest associates a user with a unit under an RLS identity
type GrantRequest struct {
	UserID         int64  `json:"user_id"`
	RLSFilterParam string `json:"rls_filter_param"`
}
