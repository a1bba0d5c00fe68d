package sqlstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/store"
	"tiendapos/backend/internal/store/seed"
)

func newSQLiteStore(t *testing.T) *Store {
	t.Helper()

	ctx := context.Background()
	s, err := OpenSQLite(ctx, ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = s.Close()
	})

	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	ds, err := seed.Default()
	if err != nil {
		t.Fatalf("seed data: %v", err)
	}
	if seeded, err := s.Seed(ctx, ds); err != nil || !seeded {
		t.Fatalf("seed: seeded=%v err=%v", seeded, err)
	}
	return s
}

// wholeUnitPlanner prices each line at list price and rejects lines the
// locked stock cannot cover.
func wholeUnitPlanner(number string, lines map[int64]float64) store.SalePlanner {
	return func(snap store.SaleSnapshot) (*domain.Sale, error) {
		now := time.Now().UTC()
		sale := &domain.Sale{
			SaleNumber:     number,
			BranchID:       snap.Branch.ID,
			CashierID:      seed.UserCashier,
			PaymentMethod:  domain.PaymentCash,
			Status:         domain.SaleStatusCompleted,
			DeliveryStatus: domain.DeliveryNotRequired,
			CreatedAt:      now,
			CompletedAt:    &now,
			UpdatedAt:      now,
		}
		var totals domain.SaleTotals
		for _, id := range store.SortedIDs(mapKeysFloat(lines)) {
			p := snap.Products[id]
			qty := lines[id]
			if bp, ok := snap.Stock[id]; ok && float64(bp.Stock) < qty {
				return nil, &store.StockShortage{ProductID: id, ProductName: p.Name, Available: bp.Stock, Requested: qty}
			}
			amounts := domain.PriceLine(p.PriceCents, qty, p.TaxRate, 0)
			totals.Add(amounts)
			sale.Items = append(sale.Items, domain.SaleItem{
				ProductID:      id,
				ProductName:    p.Name,
				ProductSKU:     p.SKU,
				Quantity:       qty,
				UnitPriceCents: p.PriceCents,
				TaxRate:        p.TaxRate,
				SubtotalCents:  amounts.SubtotalCents,
				TaxCents:       amounts.TaxCents,
				DiscountCents:  amounts.DiscountCents,
				TotalCents:     amounts.TotalCents,
			})
		}
		sale.SubtotalCents = totals.SubtotalCents
		sale.TaxCents = totals.TaxCents
		sale.TotalCents = totals.TotalCents
		sale.AmountReceivedCents = totals.TotalCents
		return sale, nil
	}
}

func mapKeysFloat(m map[int64]float64) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func stockOf(t *testing.T, s *Store, branchID, productID int64) int {
	t.Helper()
	items, err := s.ListBranchInventory(context.Background(), branchID, false)
	if err != nil {
		t.Fatalf("list inventory: %v", err)
	}
	for _, item := range items {
		if item.ProductID == productID {
			return item.Stock
		}
	}
	t.Fatalf("product %d not stocked at branch %d", productID, branchID)
	return 0
}

func TestSeedIsSkippedWhenRolesExist(t *testing.T) {
	s := newSQLiteStore(t)

	ds, err := seed.Default()
	if err != nil {
		t.Fatalf("seed data: %v", err)
	}
	seeded, err := s.Seed(context.Background(), ds)
	if err != nil {
		t.Fatalf("second seed: %v", err)
	}
	if seeded {
		t.Fatalf("expected second seed to be skipped")
	}
}

func TestCreateSaleDecrementsStockAndRecordsMovements(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	sale, err := s.CreateSale(ctx, seed.BranchMain,
		[]int64{seed.ProductSandwich, seed.ProductCola},
		wholeUnitPlanner("SUC001-1", map[int64]float64{seed.ProductCola: 2, seed.ProductSandwich: 1}))
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if sale.ID == 0 || len(sale.Items) != 2 || sale.Items[0].ID == 0 {
		t.Fatalf("expected persisted sale with item ids, got %+v", sale)
	}
	if got := stockOf(t, s, seed.BranchMain, seed.ProductCola); got != 8 {
		t.Fatalf("expected cola stock 8, got %d", got)
	}
	if got := stockOf(t, s, seed.BranchMain, seed.ProductSandwich); got != 19 {
		t.Fatalf("expected sandwich stock 19, got %d", got)
	}

	loaded, err := s.GetSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if loaded.TotalCents != sale.TotalCents || len(loaded.Items) != 2 {
		t.Fatalf("expected stored sale to match, got %+v", loaded)
	}

	movements, err := s.ListStockMovements(ctx, seed.BranchMain, seed.ProductCola, 10)
	if err != nil {
		t.Fatalf("list movements: %v", err)
	}
	if len(movements) != 1 || movements[0].Delta != -2 || movements[0].StockAfter != 8 {
		t.Fatalf("expected one sale movement of -2, got %+v", movements)
	}
	if movements[0].SaleID == nil || *movements[0].SaleID != sale.ID {
		t.Fatalf("expected movement linked to sale %d", sale.ID)
	}
}

func TestCreateSaleFailureLeavesNoTrace(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	_, err := s.CreateSale(ctx, seed.BranchMain,
		[]int64{seed.ProductCola, seed.ProductCookies},
		wholeUnitPlanner("SUC001-2", map[int64]float64{seed.ProductCola: 1, seed.ProductCookies: 4}))
	if !errors.Is(err, store.ErrInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}
	if got := stockOf(t, s, seed.BranchMain, seed.ProductCola); got != 10 {
		t.Fatalf("expected cola stock untouched, got %d", got)
	}
	sales, err := s.ListSales(ctx, domain.SaleFilter{})
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(sales) != 0 {
		t.Fatalf("expected no sales, got %d", len(sales))
	}
}

func TestCreateSaleRejectsUnknownOrInactive(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	_, err := s.CreateSale(ctx, seed.BranchClosed, []int64{seed.ProductCola},
		wholeUnitPlanner("SUC003-1", map[int64]float64{seed.ProductCola: 1}))
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for inactive branch, got %v", err)
	}

	_, err = s.CreateSale(ctx, seed.BranchMain, []int64{999},
		wholeUnitPlanner("SUC001-3", map[int64]float64{999: 1}))
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected not found for unknown product, got %v", err)
	}
}

func TestDuplicateSaleNumberIsReported(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	plan := wholeUnitPlanner("SUC001-DUP", map[int64]float64{seed.ProductWater: 1})
	if _, err := s.CreateSale(ctx, seed.BranchMain, []int64{seed.ProductWater}, plan); err != nil {
		t.Fatalf("first sale: %v", err)
	}
	_, err := s.CreateSale(ctx, seed.BranchMain, []int64{seed.ProductWater}, plan)
	if !errors.Is(err, store.ErrDuplicateSaleNumber) {
		t.Fatalf("expected duplicate sale number, got %v", err)
	}
	if got := stockOf(t, s, seed.BranchMain, seed.ProductWater); got != 49 {
		t.Fatalf("expected water stock 49 after rollback, got %d", got)
	}
}

func TestConcurrentSalesNeverOversell(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.CreateSale(ctx, seed.BranchMain, []int64{seed.ProductCola},
				wholeUnitPlanner(fmt.Sprintf("SUC001-RACE-%d", i), map[int64]float64{seed.ProductCola: 6}))
		}(i)
	}
	wg.Wait()

	failures := 0
	for _, err := range errs {
		if err == nil {
			continue
		}
		failures++
		if !errors.Is(err, store.ErrInsufficientStock) {
			t.Fatalf("expected insufficient stock, got %v", err)
		}
	}
	if failures != 1 {
		t.Fatalf("expected exactly one failed sale, got %d", failures)
	}
	if got := stockOf(t, s, seed.BranchMain, seed.ProductCola); got != 4 {
		t.Fatalf("expected cola stock 4, got %d", got)
	}
}

func TestCancelSaleRestoresStockOnce(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	sale, err := s.CreateSale(ctx, seed.BranchMain, []int64{seed.ProductChips},
		wholeUnitPlanner("SUC001-C", map[int64]float64{seed.ProductChips: 3}))
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	cancelled, err := s.CancelSale(ctx, sale.ID, seed.UserManager, time.Now().UTC())
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.SaleStatusCancelled || cancelled.CancelledAt == nil {
		t.Fatalf("expected cancelled sale, got %+v", cancelled)
	}
	if got := stockOf(t, s, seed.BranchMain, seed.ProductChips); got != 40 {
		t.Fatalf("expected chips stock restored to 40, got %d", got)
	}

	_, err = s.CancelSale(ctx, sale.ID, seed.UserManager, time.Now().UTC())
	if !errors.Is(err, store.ErrAlreadyCancelled) {
		t.Fatalf("expected already cancelled, got %v", err)
	}
	if got := stockOf(t, s, seed.BranchMain, seed.ProductChips); got != 40 {
		t.Fatalf("expected chips stock to stay 40, got %d", got)
	}

	summary, err := s.SalesSummary(ctx, domain.SaleFilter{})
	if err != nil {
		t.Fatalf("summary: %v", err)
	}
	if summary.Count != 0 {
		t.Fatalf("expected cancelled sales excluded from summary, got %+v", summary)
	}
}

func TestUpdateDeliveryPersistsMutation(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	sale, err := s.CreateSale(ctx, seed.BranchMain, []int64{seed.ProductSalad},
		wholeUnitPlanner("SUC001-D", map[int64]float64{seed.ProductSalad: 1}))
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}

	courier := seed.UserDelivery
	_, err = s.UpdateDelivery(ctx, sale.ID, func(sale *domain.Sale) error {
		sale.DeliveryStatus = domain.DeliveryAssigned
		sale.DeliveryPersonID = &courier
		sale.UpdatedAt = time.Now().UTC()
		return nil
	})
	if err != nil {
		t.Fatalf("update delivery: %v", err)
	}

	assigned, err := s.ListSales(ctx, domain.SaleFilter{DeliveryPersonID: &courier})
	if err != nil {
		t.Fatalf("list sales: %v", err)
	}
	if len(assigned) != 1 || assigned[0].DeliveryStatus != domain.DeliveryAssigned {
		t.Fatalf("expected assigned sale for courier, got %+v", assigned)
	}

	boom := errors.New("boom")
	_, err = s.UpdateDelivery(ctx, sale.ID, func(sale *domain.Sale) error {
		sale.DeliveryStatus = domain.DeliveryFailed
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected mutation error, got %v", err)
	}
	loaded, err := s.GetSale(ctx, sale.ID)
	if err != nil {
		t.Fatalf("get sale: %v", err)
	}
	if loaded.DeliveryStatus != domain.DeliveryAssigned {
		t.Fatalf("expected rejected mutation to leave status assigned, got %s", loaded.DeliveryStatus)
	}
}

func TestAdjustBranchStockRejectsNegative(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	_, err := s.AdjustBranchStock(ctx, seed.BranchMain, seed.ProductCookies, -4, "shrinkage", seed.UserManager, time.Now().UTC())
	if !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}

	bp, err := s.AdjustBranchStock(ctx, seed.BranchMain, seed.ProductCookies, 12, "restock", seed.UserManager, time.Now().UTC())
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if bp.Stock != 15 || bp.LastRestock == nil {
		t.Fatalf("expected stock 15 with restock time, got %+v", bp)
	}

	low, err := s.ListBranchInventory(ctx, seed.BranchMain, true)
	if err != nil {
		t.Fatalf("low stock: %v", err)
	}
	for _, item := range low {
		if item.ProductID == seed.ProductCookies {
			t.Fatalf("expected cookies to leave the low stock list")
		}
	}
}

func TestRoleLifecycle(t *testing.T) {
	s := newSQLiteStore(t)
	ctx := context.Background()

	role, err := s.CreateRole(ctx, domain.Role{
		Name:        "supervisor",
		DisplayName: "Supervisor",
		Permissions: []string{"sales.view", "sales.reports"},
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("create role: %v", err)
	}

	codes, err := s.RolePermissions(ctx, role.ID)
	if err != nil {
		t.Fatalf("role permissions: %v", err)
	}
	if len(codes) != 2 {
		t.Fatalf("expected 2 permissions, got %v", codes)
	}

	if _, err := s.CreateRole(ctx, domain.Role{Name: "Supervisor", DisplayName: "x", CreatedAt: time.Now().UTC()}); !errors.Is(err, store.ErrDuplicate) {
		t.Fatalf("expected duplicate role, got %v", err)
	}

	role.Permissions = []string{"sales.view", "nope.nope"}
	if _, err := s.UpdateRole(ctx, *role); !errors.Is(err, store.ErrValidation) {
		t.Fatalf("expected unknown permission rejected, got %v", err)
	}

	role.Permissions = nil
	cleared, err := s.UpdateRole(ctx, *role)
	if err != nil {
		t.Fatalf("clear permissions: %v", err)
	}
	body, err := json.Marshal(cleared)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if !strings.Contains(string(body), `"permissions":[]`) {
		t.Fatalf("expected cleared permissions to encode as [], got %s", body)
	}

	if err := s.DeleteRole(ctx, seed.RoleCashier); !errors.Is(err, store.ErrRoleInUse) {
		t.Fatalf("expected role in use, got %v", err)
	}
	if err := s.DeleteRole(ctx, role.ID); err != nil {
		t.Fatalf("delete role: %v", err)
	}
	if _, err := s.GetRole(ctx, role.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected deleted role not found, got %v", err)
	}
}

func TestUserLookupCarriesRoleName(t *testing.T) {
	s := newSQLiteStore(t)

	u, err := s.GetUserByUsername(context.Background(), "CAJERO1")
	if err != nil {
		t.Fatalf("get user: %v", err)
	}
	if u.ID != seed.UserCashier || u.RoleName != domain.RoleCashier {
		t.Fatalf("expected cashier user, got %+v", u)
	}
}
