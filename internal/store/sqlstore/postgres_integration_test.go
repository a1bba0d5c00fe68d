package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"tiendapos/backend/internal/store"
	"tiendapos/backend/internal/store/seed"
)

func openPostgresTestStore(t *testing.T) *Store {
	t.Helper()

	databaseURL := os.Getenv("TIENDAPOS_TEST_DATABASE_URL")
	if databaseURL == "" {
		t.Skip("set TIENDAPOS_TEST_DATABASE_URL to run postgres integration test")
	}

	ctx := context.Background()
	s, err := OpenPostgres(ctx, databaseURL)
	if err != nil {
		t.Fatalf("open store: %v", err)
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
	if _, err := s.Seed(ctx, ds); err != nil {
		t.Fatalf("seed: %v", err)
	}
	return s
}

// insertStockedProduct creates a product stocked at the main branch and
// removes it, with every sale numbered under salePrefix, when the test ends.
func insertStockedProduct(t *testing.T, s *Store, stock int, salePrefix string) int64 {
	t.Helper()

	ctx := context.Background()
	sku := fmt.Sprintf("SKU-IT-%d", time.Now().UnixNano())

	var productID int64
	if err := s.db.QueryRowContext(ctx, `
		INSERT INTO products (sku, name, price_cents, tax_rate, unit, is_active, created_at)
		VALUES ($1, 'Producto IT', 1800, 0.16, 'pieza', true, now())
		RETURNING id
	`, sku).Scan(&productID); err != nil {
		t.Fatalf("insert product: %v", err)
	}
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO branch_products (branch_id, product_id, stock, updated_at)
		VALUES ($1, $2, $3, now())
	`, seed.BranchMain, productID, stock); err != nil {
		t.Fatalf("seed stock: %v", err)
	}

	t.Cleanup(func() {
		_, _ = s.db.ExecContext(ctx, `DELETE FROM stock_movements WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sale_items WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM sales WHERE sale_number LIKE $1`, salePrefix+"%")
		_, _ = s.db.ExecContext(ctx, `DELETE FROM branch_products WHERE product_id = $1`, productID)
		_, _ = s.db.ExecContext(ctx, `DELETE FROM products WHERE id = $1`, productID)
	})
	return productID
}

func postgresStock(t *testing.T, s *Store, productID int64) int {
	t.Helper()

	var qty int
	if err := s.db.QueryRowContext(context.Background(), `
		SELECT stock FROM branch_products WHERE branch_id = $1 AND product_id = $2
	`, seed.BranchMain, productID).Scan(&qty); err != nil {
		t.Fatalf("query stock: %v", err)
	}
	return qty
}

func TestPostgresCancelSaleRestocksInventory(t *testing.T) {
	s := openPostgresTestStore(t)
	ctx := context.Background()

	prefix := fmt.Sprintf("SUC001-IT-CANCEL-%d", time.Now().UnixNano())
	productID := insertStockedProduct(t, s, 10, prefix)

	sale, err := s.CreateSale(ctx, seed.BranchMain, []int64{productID},
		wholeUnitPlanner(prefix+"-1", map[int64]float64{productID: 6}))
	if err != nil {
		t.Fatalf("create sale: %v", err)
	}
	if qty := postgresStock(t, s, productID); qty != 4 {
		t.Fatalf("expected stock 4 after sale, got %d", qty)
	}

	if _, err := s.CancelSale(ctx, sale.ID, seed.UserManager, time.Now().UTC()); err != nil {
		t.Fatalf("cancel sale: %v", err)
	}
	if qty := postgresStock(t, s, productID); qty != 10 {
		t.Fatalf("expected stock 10 after cancel restock, got %d", qty)
	}

	var status string
	if err := s.db.QueryRowContext(ctx, `SELECT status FROM sales WHERE id = $1`, sale.ID).Scan(&status); err != nil {
		t.Fatalf("query sale status: %v", err)
	}
	if status != "cancelled" {
		t.Fatalf("expected sale status cancelled, got %s", status)
	}
}

func TestPostgresConcurrentSalesNeverOversell(t *testing.T) {
	s := openPostgresTestStore(t)
	ctx := context.Background()

	prefix := fmt.Sprintf("SUC001-IT-RACE-%d", time.Now().UnixNano())
	productID := insertStockedProduct(t, s, 10, prefix)

	// Both transactions are opened before either locks, so the loser has to
	// wait on the row lock and re-read the committed stock.
	start := make(chan struct{})
	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = s.CreateSale(ctx, seed.BranchMain, []int64{productID},
				wholeUnitPlanner(fmt.Sprintf("%s-%d", prefix, i), map[int64]float64{productID: 6}))
		}(i)
	}
	close(start)
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
	if qty := postgresStock(t, s, productID); qty != 4 {
		t.Fatalf("expected stock 4, got %d", qty)
	}

	var movements int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM stock_movements WHERE product_id = $1`, productID).Scan(&movements); err != nil {
		t.Fatalf("count movements: %v", err)
	}
	if movements != 1 {
		t.Fatalf("expected one movement for the winning sale, got %d", movements)
	}
}

func TestPostgresCartsInOppositeOrderDoNotDeadlock(t *testing.T) {
	s := openPostgresTestStore(t)
	ctx := context.Background()

	prefix := fmt.Sprintf("SUC001-IT-ORDER-%d", time.Now().UnixNano())
	first := insertStockedProduct(t, s, 50, prefix)
	second := insertStockedProduct(t, s, 50, prefix)
	lines := map[int64]float64{first: 1, second: 1}

	const rounds = 10
	start := make(chan struct{})
	var wg sync.WaitGroup
	errs := make([]error, rounds*2)
	for i := 0; i < rounds; i++ {
		for j, ids := range [][]int64{{first, second}, {second, first}} {
			n := i*2 + j
			wg.Add(1)
			go func(n int, ids []int64) {
				defer wg.Done()
				<-start
				_, errs[n] = s.CreateSale(ctx, seed.BranchMain, ids,
					wholeUnitPlanner(fmt.Sprintf("%s-%d", prefix, n), lines))
			}(n, ids)
		}
	}
	close(start)
	wg.Wait()

	for n, err := range errs {
		if err != nil {
			t.Fatalf("sale %d: expected success without deadlock, got %v", n, err)
		}
	}
	for _, productID := range []int64{first, second} {
		if qty := postgresStock(t, s, productID); qty != 50-rounds*2 {
			t.Fatalf("product %d: expected stock %d, got %d", productID, 50-rounds*2, qty)
		}
	}
}
