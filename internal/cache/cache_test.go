package cache

import (
	"context"
	"testing"
	"time"
)

func TestNoopPermissionCacheNeverHits(t *testing.T) {
	var c PermissionCache = NoopPermissionCache{}
	ctx := context.Background()

	if err := c.Set(ctx, 3, []string{"sales.create"}, time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	if _, ok, err := c.Get(ctx, 3); ok || err != nil {
		t.Fatalf("expected miss without error, got ok=%v err=%v", ok, err)
	}
	if err := c.Invalidate(ctx, 3); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
}

func TestRoleKeyIsNamespaced(t *testing.T) {
	if got := roleKey(42); got != "tiendapos:role-permissions:42" {
		t.Fatalf("unexpected key %q", got)
	}
}
