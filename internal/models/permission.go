package models

import (
	"time"

	"github.com/uptrace/bun"
)

// Role maps a role id to its permission set. Roles are shared, long-lived
// and admin-managed; the resolver caches them with a TTL.
type Role struct {
	bun.BaseModel `bun:"table:roles"`

	RoleID      string    `bun:"role_id,pk" json:"role_id"`
	Name        string    `bun:"name" json:"name"`
	Permissions []string  `bun:"permissions,type:jsonb" json:"permissions"`
	UpdatedAt   time.Time `bun:"updated_at" json:"updated_at"`
}

type User struct {
	bun.BaseModel `bun:"table:users"`

	UserID   string `bun:"user_id,pk" json:"user_id"`
	RoleID   string `bun:"role_id" json:"role_id"`
	IsActive bool   `bun:"is_active" json:"is_active"`

	// PermissionOverrides grant per-user permissions on top of the role
	// set; they short-circuit the role lookup.
	PermissionOverrides []string `bun:"permission_overrides,type:jsonb" json:"permission_overrides,omitempty"`

	CreatedAt time.Time `bun:"created_at" json:"created_at"`
}

// HasOverride reports whether the user carries a direct grant for the
// given permission.
func (u *User) HasOverride(permissionID string) bool {
	for _, p := range u.PermissionOverrides {
		if p == permissionID {
			return true
		}
	}
	return false
}
