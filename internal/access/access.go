// Package access resolves what an authenticated user may do: the permission
// codes granted by their role, role gates for the sale and delivery
// operations, and the row-level view applied to sale queries.
package access

import (
	"context"
	"fmt"
	"slices"
	"time"

	"go.uber.org/zap"

	"tiendapos/backend/internal/cache"
	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/store"
)

type Resolver struct {
	repo   store.AccessStore
	cache  cache.PermissionCache
	ttl    time.Duration
	logger *zap.Logger
}

// NewResolver builds a resolver. With a zero ttl or a nil cache every call
// re-reads the role's permissions from the store.
func NewResolver(repo store.AccessStore, permCache cache.PermissionCache, ttl time.Duration, logger *zap.Logger) *Resolver {
	if permCache == nil {
		permCache = cache.NoopPermissionCache{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		repo:   repo,
		cache:  permCache,
		ttl:    ttl,
		logger: logger,
	}
}

// Permissions returns the codes held by the role. Cache failures fall back
// to the store.
func (r *Resolver) Permissions(ctx context.Context, roleID int64) ([]string, error) {
	if r.ttl > 0 {
		codes, ok, err := r.cache.Get(ctx, roleID)
		if err != nil {
			r.logger.Warn("permission cache read failed", zap.Int64("role_id", roleID), zap.Error(err))
		}
		if ok {
			return codes, nil
		}
	}

	codes, err := r.repo.RolePermissions(ctx, roleID)
	if err != nil {
		return nil, err
	}

	if r.ttl > 0 {
		if err := r.cache.Set(ctx, roleID, codes, r.ttl); err != nil {
			r.logger.Warn("permission cache write failed", zap.Int64("role_id", roleID), zap.Error(err))
		}
	}
	return codes, nil
}

// Invalidate drops the cached codes of a role after it changes.
func (r *Resolver) Invalidate(ctx context.Context, roleID int64) {
	if err := r.cache.Invalidate(ctx, roleID); err != nil {
		r.logger.Warn("permission cache invalidate failed", zap.Int64("role_id", roleID), zap.Error(err))
	}
}

// RequirePermission fails with store.ErrForbidden unless the actor's role
// holds every code.
func (r *Resolver) RequirePermission(ctx context.Context, actor domain.Actor, codes ...string) error {
	held, err := r.Permissions(ctx, actor.RoleID)
	if err != nil {
		return err
	}
	for _, code := range codes {
		if !slices.Contains(held, code) {
			return fmt.Errorf("%w: missing permission %s", store.ErrForbidden, code)
		}
	}
	return nil
}

// RequireRole fails with store.ErrForbidden unless the actor's role name is
// one of roles.
func RequireRole(actor domain.Actor, roles ...string) error {
	if slices.Contains(roles, actor.Role) {
		return nil
	}
	return fmt.Errorf("%w: role %q not allowed", store.ErrForbidden, actor.Role)
}
