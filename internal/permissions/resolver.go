package permissions

import (
	"context"
	"fmt"

	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/models"
)

// Store fetches actor and role records.
type Store interface {
	GetUser(ctx context.Context, userID string) (*models.User, error)
	GetRole(ctx context.Context, roleID string) (*models.Role, error)
}

// Resolver decides whether an actor may perform an action. Every fetch
// error resolves to false: permission checks fail closed, never open.
type Resolver struct {
	store Store
	cache *RoleCache
	log   *logger.Logger
}

func NewResolver(store Store, cache *RoleCache, log *logger.Logger) *Resolver {
	return &Resolver{store: store, cache: cache, log: log}
}

// HasPermission resolves role-based and per-user-override permissions for
// an actor. claimedRole is advisory: if it disagrees with the stored
// role, the stored role wins and a warning is raised, defending against
// stale role claims from earlier in the request pipeline.
func (r *Resolver) HasPermission(ctx context.Context, actorID, claimedRole, permissionID string) bool {
	if actorID == "" {
		return false
	}

	user, err := r.store.GetUser(ctx, actorID)
	if err != nil {
		r.log.Error("PERMS", fmt.Sprintf("Failed to fetch actor %s, resolving to deny: %v", actorID, err))
		return false
	}
	if user == nil || !user.IsActive {
		return false
	}

	// Direct per-actor overrides short-circuit the role lookup.
	if user.HasOverride(permissionID) {
		return true
	}

	if claimedRole != "" && claimedRole != user.RoleID {
		r.log.LogSecurity("ROLE_MISMATCH", fmt.Sprintf("actor %s claimed role %s but has role %s", actorID, claimedRole, user.RoleID))
	}

	permissions := r.cache.Get(user.RoleID)
	if permissions == nil {
		role, err := r.store.GetRole(ctx, user.RoleID)
		if err != nil {
			r.log.Error("PERMS", fmt.Sprintf("Failed to fetch role %s, resolving to deny: %v", user.RoleID, err))
			return false
		}
		if role == nil {
			return false
		}
		r.cache.Set(user.RoleID, role.Permissions)
		permissions = r.cache.Get(user.RoleID)
	}

	_, ok := permissions[permissionID]
	return ok
}
