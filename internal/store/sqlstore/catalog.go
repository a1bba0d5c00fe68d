package sqlstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/store"
)

const branchColumns = `id, code, name, address, phone, is_active, is_main, created_at`

const productColumns = `id, sku, barcode, name, description, price_cents, cost_cents, tax_rate,
	category_id, unit, is_active, allow_decimal_qty, created_at`

const branchProductColumns = `id, branch_id, product_id, stock, min_stock, max_stock,
	custom_price_cents, is_available, last_restock, updated_at`

func (s *Store) ListBranches(ctx context.Context) ([]domain.Branch, error) {
	var branches []domain.Branch
	err := s.db.SelectContext(ctx, &branches, `SELECT `+branchColumns+` FROM branches ORDER BY id`)
	if err != nil {
		return nil, translateError(err)
	}
	return branches, nil
}

func (s *Store) GetBranch(ctx context.Context, id int64) (*domain.Branch, error) {
	var b domain.Branch
	err := s.db.GetContext(ctx, &b, s.db.Rebind(`SELECT `+branchColumns+` FROM branches WHERE id = ?`), id)
	if err != nil {
		return nil, notFound(err, "branch %d", id)
	}
	return &b, nil
}

func (s *Store) ListCategories(ctx context.Context) ([]domain.Category, error) {
	var categories []domain.Category
	err := s.db.SelectContext(ctx, &categories, `SELECT id, name, slug, parent_id FROM categories ORDER BY id`)
	if err != nil {
		return nil, translateError(err)
	}
	return categories, nil
}

func (s *Store) ListProducts(ctx context.Context) ([]domain.Product, error) {
	var products []domain.Product
	err := s.db.SelectContext(ctx, &products,
		`SELECT `+productColumns+` FROM products WHERE is_active = TRUE ORDER BY name`)
	if err != nil {
		return nil, translateError(err)
	}
	return products, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (*domain.Product, error) {
	var p domain.Product
	err := s.db.GetContext(ctx, &p, s.db.Rebind(`SELECT `+productColumns+` FROM products WHERE id = ?`), id)
	if err != nil {
		return nil, notFound(err, "product %d", id)
	}
	return &p, nil
}

func (s *Store) ListBranchInventory(ctx context.Context, branchID int64, lowStockOnly bool) ([]domain.BranchInventoryItem, error) {
	if _, err := s.GetBranch(ctx, branchID); err != nil {
		return nil, err
	}

	query := `SELECT bp.id, bp.branch_id, bp.product_id, bp.stock, bp.min_stock, bp.max_stock,
			bp.custom_price_cents, bp.is_available, bp.last_restock, bp.updated_at,
			p.sku AS product_sku, p.name AS product_name, p.price_cents
		FROM branch_products bp
		JOIN products p ON p.id = bp.product_id
		WHERE bp.branch_id = ?`
	if lowStockOnly {
		query += ` AND bp.stock <= bp.min_stock`
	}
	query += ` ORDER BY bp.product_id`

	var items []domain.BranchInventoryItem
	if err := s.db.SelectContext(ctx, &items, s.db.Rebind(query), branchID); err != nil {
		return nil, translateError(err)
	}
	for i := range items {
		items[i].LowStock = items[i].IsLowStock()
	}
	return items, nil
}

func (s *Store) AddBranchProduct(ctx context.Context, bp domain.BranchProduct, actorID int64) (*domain.BranchProduct, error) {
	tx, err := s.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var exists int
	if err := tx.GetContext(ctx, &exists, tx.Rebind(`SELECT COUNT(*) FROM branches WHERE id = ?`), bp.BranchID); err != nil {
		return nil, translateError(err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: branch %d", store.ErrNotFound, bp.BranchID)
	}
	if err := tx.GetContext(ctx, &exists, tx.Rebind(`SELECT COUNT(*) FROM products WHERE id = ?`), bp.ProductID); err != nil {
		return nil, translateError(err)
	}
	if exists == 0 {
		return nil, fmt.Errorf("%w: product %d", store.ErrNotFound, bp.ProductID)
	}

	query, args, err := tx.BindNamed(`INSERT INTO branch_products
		(branch_id, product_id, stock, min_stock, max_stock, custom_price_cents, is_available, last_restock, updated_at)
		VALUES (:branch_id, :product_id, :stock, :min_stock, :max_stock, :custom_price_cents, :is_available, :last_restock, :updated_at)
		RETURNING id`, bp)
	if err != nil {
		return nil, err
	}
	if err := tx.GetContext(ctx, &bp.ID, query, args...); err != nil {
		return nil, translateError(err)
	}

	if bp.Stock > 0 {
		err = insertMovement(ctx, tx, domain.StockMovement{
			BranchID:    bp.BranchID,
			ProductID:   bp.ProductID,
			Kind:        domain.MovementInitial,
			Delta:       bp.Stock,
			StockBefore: 0,
			StockAfter:  bp.Stock,
			ActorID:     nullIfZero(actorID),
			CreatedAt:   bp.UpdatedAt,
		})
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, translateError(err)
	}
	return &bp, nil
}

func (s *Store) AdjustBranchStock(ctx context.Context, branchID int64, productID int64, delta int, note string, actorID int64, at time.Time) (*domain.BranchProduct, error) {
	tx, err := s.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var bp domain.BranchProduct
	err = tx.GetContext(ctx, &bp, tx.Rebind(`SELECT `+branchProductColumns+`
		FROM branch_products WHERE branch_id = ? AND product_id = ?`+s.dialect.forUpdate), branchID, productID)
	if err != nil {
		return nil, notFound(err, "product %d at branch %d", productID, branchID)
	}

	after := bp.Stock + delta
	if after < 0 {
		return nil, fmt.Errorf("%w: stock cannot go below zero (current %d, delta %d)", store.ErrValidation, bp.Stock, delta)
	}

	before := bp.Stock
	bp.Stock = after
	bp.UpdatedAt = at
	if delta > 0 {
		restock := at
		bp.LastRestock = &restock
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE branch_products
		SET stock = ?, last_restock = ?, updated_at = ? WHERE id = ?`),
		bp.Stock, bp.LastRestock, bp.UpdatedAt, bp.ID)
	if err != nil {
		return nil, translateError(err)
	}

	err = insertMovement(ctx, tx, domain.StockMovement{
		BranchID:    branchID,
		ProductID:   productID,
		Kind:        domain.MovementAdjust,
		Delta:       delta,
		StockBefore: before,
		StockAfter:  after,
		ActorID:     nullIfZero(actorID),
		Note:        note,
		CreatedAt:   at,
	})
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, translateError(err)
	}
	return &bp, nil
}

func (s *Store) ListStockMovements(ctx context.Context, branchID int64, productID int64, limit int) ([]domain.StockMovement, error) {
	query := `SELECT id, branch_id, product_id, kind, delta, stock_before, stock_after, sale_id, actor_id, note, created_at
		FROM stock_movements WHERE branch_id = ? AND product_id = ? ORDER BY id DESC`
	args := []any{branchID, productID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var movements []domain.StockMovement
	if err := s.db.SelectContext(ctx, &movements, s.db.Rebind(query), args...); err != nil {
		return nil, translateError(err)
	}
	return movements, nil
}

func insertMovement(ctx context.Context, tx *sqlx.Tx, m domain.StockMovement) error {
	_, err := tx.NamedExecContext(ctx, `INSERT INTO stock_movements
		(branch_id, product_id, kind, delta, stock_before, stock_after, sale_id, actor_id, note, created_at)
		VALUES (:branch_id, :product_id, :kind, :delta, :stock_before, :stock_after, :sale_id, :actor_id, :note, :created_at)`, m)
	return translateError(err)
}
