package cache

import (
	"context"
	"time"
)

// PermissionCache holds the permission codes granted to a role.
type PermissionCache interface {
	Get(ctx context.Context, roleID int64) ([]string, bool, error)
	Set(ctx context.Context, roleID int64, codes []string, ttl time.Duration) error
	Invalidate(ctx context.Context, roleID int64) error
}

type NoopPermissionCache struct{}

func (NoopPermissionCache) Get(_ context.Context, _ int64) ([]string, bool, error) {
	return nil, false, nil
}

func (NoopPermissionCache) Set(_ context.Context, _ int64, _ []string, _ time.Duration) error {
	return nil
}

func (NoopPermissionCache) Invalidate(_ context.Context, _ int64) error {
	return nil
}
