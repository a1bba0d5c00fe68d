package access

import (
	"context"
	"errors"
	"testing"
	"time"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/store"
	"tiendapos/backend/internal/store/memory"
	"tiendapos/backend/internal/store/seed"
)

type mapCache struct {
	entries map[int64][]string
	hits    int
}

func (c *mapCache) Get(_ context.Context, roleID int64) ([]string, bool, error) {
	codes, ok := c.entries[roleID]
	if ok {
		c.hits++
	}
	return codes, ok, nil
}

func (c *mapCache) Set(_ context.Context, roleID int64, codes []string, _ time.Duration) error {
	c.entries[roleID] = codes
	return nil
}

func (c *mapCache) Invalidate(_ context.Context, roleID int64) error {
	delete(c.entries, roleID)
	return nil
}

func cashier() domain.Actor {
	return domain.Actor{UserID: seed.UserCashier, Username: "cajero1", RoleID: seed.RoleCashier, Role: domain.RoleCashier}
}

func TestRequirePermission(t *testing.T) {
	r := NewResolver(memory.NewSeeded(), nil, 0, nil)
	ctx := context.Background()

	if err := r.RequirePermission(ctx, cashier(), "sales.create"); err != nil {
		t.Fatalf("expected cashier to create sales, got %v", err)
	}
	err := r.RequirePermission(ctx, cashier(), "sales.create", "sales.reports")
	if !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected forbidden when one code is missing, got %v", err)
	}
}

func TestPermissionsAreCachedUntilInvalidated(t *testing.T) {
	repo := memory.NewSeeded()
	c := &mapCache{entries: map[int64][]string{}}
	r := NewResolver(repo, c, time.Minute, nil)
	ctx := context.Background()

	if _, err := r.Permissions(ctx, seed.RoleCashier); err != nil {
		t.Fatalf("permissions: %v", err)
	}
	if _, err := r.Permissions(ctx, seed.RoleCashier); err != nil {
		t.Fatalf("permissions: %v", err)
	}
	if c.hits != 1 {
		t.Fatalf("expected second lookup served from cache, hits=%d", c.hits)
	}

	role, err := repo.GetRole(ctx, seed.RoleCashier)
	if err != nil {
		t.Fatalf("get role: %v", err)
	}
	role.Permissions = append(role.Permissions, "sales.reports")
	if _, err := repo.UpdateRole(ctx, *role); err != nil {
		t.Fatalf("update role: %v", err)
	}
	r.Invalidate(ctx, seed.RoleCashier)

	if err := r.RequirePermission(ctx, cashier(), "sales.reports"); err != nil {
		t.Fatalf("expected fresh permissions after invalidation, got %v", err)
	}
}

func TestRequireRole(t *testing.T) {
	if err := RequireRole(cashier(), domain.RoleSuperadmin, domain.RoleAdmin, domain.RoleCashier); err != nil {
		t.Fatalf("expected cashier allowed, got %v", err)
	}
	if err := RequireRole(cashier(), domain.RoleSuperadmin, domain.RoleAdmin); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestSaleViewScope(t *testing.T) {
	branch := seed.BranchNorth
	other := seed.UserCashier2
	requested := domain.SaleFilter{BranchID: &branch, CashierID: &other, Status: domain.SaleStatusCompleted}

	scoped := ViewFor(cashier()).Scope(requested)
	if scoped.CashierID == nil || *scoped.CashierID != seed.UserCashier {
		t.Fatalf("expected cashier filter forced to self, got %+v", scoped.CashierID)
	}
	if scoped.BranchID == nil || *scoped.BranchID != seed.BranchNorth {
		t.Fatalf("expected branch filter kept for cashier view, got %+v", scoped.BranchID)
	}
	if scoped.Status != domain.SaleStatusCompleted {
		t.Fatalf("expected status filter kept, got %q", scoped.Status)
	}

	admin := domain.Actor{UserID: seed.UserManager, Role: domain.RoleAdmin}
	if got := ViewFor(admin).Scope(requested); got.CashierID == nil || *got.CashierID != other {
		t.Fatalf("expected admin filter untouched")
	}
	if ViewFor(domain.Actor{Role: "auditor"}).Kind != ViewAdmin {
		t.Fatalf("expected custom roles to get the admin view")
	}
}

func TestSaleViewAllows(t *testing.T) {
	courier := seed.UserDelivery
	customer := seed.UserCustomer
	sale := &domain.Sale{CashierID: seed.UserCashier, DeliveryPersonID: &courier, CustomerID: &customer}

	cases := []struct {
		name  string
		actor domain.Actor
		want  bool
	}{
		{"own cashier", cashier(), true},
		{"other cashier", domain.Actor{UserID: seed.UserCashier2, Role: domain.RoleCashier}, false},
		{"assigned courier", domain.Actor{UserID: seed.UserDelivery, Role: domain.RoleDelivery}, true},
		{"other courier", domain.Actor{UserID: seed.UserDelivery2, Role: domain.RoleDelivery}, false},
		{"buyer", domain.Actor{UserID: seed.UserCustomer, Role: domain.RoleCustomer}, true},
		{"admin", domain.Actor{UserID: seed.UserManager, Role: domain.RoleAdmin}, true},
	}
	for _, tc := range cases {
		if got := ViewFor(tc.actor).Allows(sale); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}
}

func TestSaleViewRequire(t *testing.T) {
	dispatcher := ViewFor(domain.Actor{UserID: 99, Role: "dispatcher"})
	if err := dispatcher.Require(ViewAdmin, ViewDelivery); err != nil {
		t.Fatalf("expected custom role to pass an admin gate, got %v", err)
	}
	courier := ViewFor(domain.Actor{UserID: seed.UserDelivery, Role: domain.RoleDelivery})
	if err := courier.Require(ViewAdmin, ViewDelivery); err != nil {
		t.Fatalf("expected courier to pass, got %v", err)
	}
	if err := ViewFor(cashier()).Require(ViewAdmin, ViewDelivery); !errors.Is(err, store.ErrForbidden) {
		t.Fatalf("expected cashier to be forbidden, got %v", err)
	}
}
