package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/store"
)

const saleColumns = `id, sale_number, branch_id, cashier_id, customer_id, delivery_person_id,
	subtotal_cents, tax_cents, discount_cents, total_cents, amount_received_cents, change_cents,
	payment_method, status, requires_delivery, delivery_status, delivery_address, delivery_notes, notes,
	created_at, completed_at, cancelled_at, delivered_at, updated_at`

const saleItemColumns = `id, sale_id, product_id, product_name, product_sku, quantity, unit_price_cents,
	tax_rate, subtotal_cents, tax_cents, discount_cents, total_cents`

func (s *Store) CreateSale(ctx context.Context, branchID int64, productIDs []int64, plan store.SalePlanner) (*domain.Sale, error) {
	tx, err := s.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	var branch domain.Branch
	err = tx.GetContext(ctx, &branch, tx.Rebind(`SELECT `+branchColumns+` FROM branches WHERE id = ?`), branchID)
	if err != nil {
		return nil, notFound(err, "branch %d", branchID)
	}
	if !branch.IsActive {
		return nil, fmt.Errorf("%w: branch %d", store.ErrNotFound, branchID)
	}

	ids := store.SortedIDs(productIDs)
	snapshot := store.SaleSnapshot{
		Branch:   branch,
		Products: make(map[int64]domain.Product, len(ids)),
		Stock:    make(map[int64]domain.BranchProduct, len(ids)),
	}
	if len(ids) > 0 {
		query, args, err := s.in(`SELECT `+productColumns+` FROM products WHERE id IN (?)`, ids)
		if err != nil {
			return nil, err
		}
		var products []domain.Product
		if err := tx.SelectContext(ctx, &products, query, args...); err != nil {
			return nil, translateError(err)
		}
		for _, p := range products {
			snapshot.Products[p.ID] = p
		}
		for _, id := range ids {
			if p, ok := snapshot.Products[id]; !ok || !p.IsActive {
				return nil, fmt.Errorf("%w: product %d", store.ErrNotFound, id)
			}
		}

		// Rows are locked in ascending product order so two carts sharing
		// products always queue on the same first row.
		query, args, err = s.in(`SELECT `+branchProductColumns+` FROM branch_products
			WHERE branch_id = ? AND product_id IN (?) ORDER BY product_id`+s.dialect.forUpdate, branchID, ids)
		if err != nil {
			return nil, err
		}
		var rows []domain.BranchProduct
		if err := tx.SelectContext(ctx, &rows, query, args...); err != nil {
			return nil, translateError(err)
		}
		for _, bp := range rows {
			snapshot.Stock[bp.ProductID] = bp
		}
	}

	sale, err := plan(snapshot)
	if err != nil {
		return nil, err
	}

	query, args, err := tx.BindNamed(`INSERT INTO sales (sale_number, branch_id, cashier_id, customer_id, delivery_person_id,
			subtotal_cents, tax_cents, discount_cents, total_cents, amount_received_cents, change_cents,
			payment_method, status, requires_delivery, delivery_status, delivery_address, delivery_notes, notes,
			created_at, completed_at, cancelled_at, delivered_at, updated_at)
		VALUES (:sale_number, :branch_id, :cashier_id, :customer_id, :delivery_person_id,
			:subtotal_cents, :tax_cents, :discount_cents, :total_cents, :amount_received_cents, :change_cents,
			:payment_method, :status, :requires_delivery, :delivery_status, :delivery_address, :delivery_notes, :notes,
			:created_at, :completed_at, :cancelled_at, :delivered_at, :updated_at)
		RETURNING id`, sale)
	if err != nil {
		return nil, err
	}
	if err := tx.GetContext(ctx, &sale.ID, query, args...); err != nil {
		return nil, translateError(err)
	}

	for i := range sale.Items {
		sale.Items[i].SaleID = sale.ID
		query, args, err := tx.BindNamed(`INSERT INTO sale_items (sale_id, product_id, product_name, product_sku,
				quantity, unit_price_cents, tax_rate, subtotal_cents, tax_cents, discount_cents, total_cents)
			VALUES (:sale_id, :product_id, :product_name, :product_sku,
				:quantity, :unit_price_cents, :tax_rate, :subtotal_cents, :tax_cents, :discount_cents, :total_cents)
			RETURNING id`, sale.Items[i])
		if err != nil {
			return nil, err
		}
		if err := tx.GetContext(ctx, &sale.Items[i].ID, query, args...); err != nil {
			return nil, translateError(err)
		}
	}

	saleID := sale.ID
	units := store.StockUnitsByProduct(sale.Items)
	for _, productID := range ids {
		bp, ok := snapshot.Stock[productID]
		n := units[productID]
		if !ok || n == 0 {
			continue
		}
		res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE branch_products SET stock = stock - ?, updated_at = ?
			WHERE id = ? AND stock >= ?`), n, sale.CreatedAt, bp.ID, n)
		if err != nil {
			return nil, translateError(err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return nil, err
		}
		if affected == 0 {
			return nil, fmt.Errorf("%w: stock for product %d changed during sale", store.ErrConflict, productID)
		}
		err = insertMovement(ctx, tx, domain.StockMovement{
			BranchID:    branchID,
			ProductID:   productID,
			Kind:        domain.MovementSale,
			Delta:       -n,
			StockBefore: bp.Stock,
			StockAfter:  bp.Stock - n,
			SaleID:      &saleID,
			ActorID:     nullIfZero(sale.CashierID),
			CreatedAt:   sale.CreatedAt,
		})
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, translateError(err)
	}
	return sale, nil
}

func (s *Store) CancelSale(ctx context.Context, saleID int64, actorID int64, at time.Time) (*domain.Sale, error) {
	tx, err := s.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sale, err := s.lockSale(ctx, tx, saleID)
	if err != nil {
		return nil, err
	}
	if sale.Status == domain.SaleStatusCancelled {
		return nil, fmt.Errorf("%w: %s", store.ErrAlreadyCancelled, sale.SaleNumber)
	}

	units := store.StockUnitsByProduct(sale.Items)
	for _, productID := range store.SortedIDs(mapKeys(units)) {
		var bp domain.BranchProduct
		err := tx.GetContext(ctx, &bp, tx.Rebind(`SELECT `+branchProductColumns+`
			FROM branch_products WHERE branch_id = ? AND product_id = ?`+s.dialect.forUpdate), sale.BranchID, productID)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return nil, translateError(err)
		}
		n := units[productID]
		if _, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE branch_products SET stock = stock + ?, updated_at = ? WHERE id = ?`),
			n, at, bp.ID); err != nil {
			return nil, translateError(err)
		}
		err = insertMovement(ctx, tx, domain.StockMovement{
			BranchID:    sale.BranchID,
			ProductID:   productID,
			Kind:        domain.MovementCancel,
			Delta:       n,
			StockBefore: bp.Stock,
			StockAfter:  bp.Stock + n,
			SaleID:      &saleID,
			ActorID:     nullIfZero(actorID),
			CreatedAt:   at,
		})
		if err != nil {
			return nil, err
		}
	}

	cancelledAt := at
	sale.Status = domain.SaleStatusCancelled
	sale.CancelledAt = &cancelledAt
	sale.UpdatedAt = at
	_, err = tx.ExecContext(ctx, tx.Rebind(`UPDATE sales SET status = ?, cancelled_at = ?, updated_at = ? WHERE id = ?`),
		sale.Status, sale.CancelledAt, sale.UpdatedAt, sale.ID)
	if err != nil {
		return nil, translateError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, translateError(err)
	}
	return sale, nil
}

func (s *Store) GetSale(ctx context.Context, id int64) (*domain.Sale, error) {
	var sale domain.Sale
	err := s.db.GetContext(ctx, &sale, s.db.Rebind(`SELECT `+saleColumns+` FROM sales WHERE id = ?`), id)
	if err != nil {
		return nil, notFound(err, "sale %d", id)
	}
	if err := s.attachItems(ctx, s.db, []*domain.Sale{&sale}); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	where, args := saleWhere(filter)
	order := ` ORDER BY created_at DESC, id DESC`
	if filter.OldestFirst {
		order = ` ORDER BY created_at ASC, id ASC`
	}
	query := `SELECT ` + saleColumns + ` FROM sales` + where + order
	limit := filter.Limit
	if limit <= 0 && filter.Offset > 0 {
		// SQLite only accepts OFFSET after a LIMIT.
		limit = math.MaxInt32
	}
	if limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, limit, max(filter.Offset, 0))
	}

	query, args, err := s.in(query, args...)
	if err != nil {
		return nil, err
	}
	sales := []domain.Sale{}
	if err := s.db.SelectContext(ctx, &sales, query, args...); err != nil {
		return nil, translateError(err)
	}

	ptrs := make([]*domain.Sale, len(sales))
	for i := range sales {
		ptrs[i] = &sales[i]
	}
	if err := s.attachItems(ctx, s.db, ptrs); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) UpdateDelivery(ctx context.Context, saleID int64, mutate store.DeliveryMutation) (*domain.Sale, error) {
	tx, err := s.beginTx(ctx)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	sale, err := s.lockSale(ctx, tx, saleID)
	if err != nil {
		return nil, err
	}
	if err := mutate(sale); err != nil {
		return nil, err
	}

	_, err = tx.NamedExecContext(ctx, `UPDATE sales SET delivery_status = :delivery_status,
			delivery_person_id = :delivery_person_id, delivery_notes = :delivery_notes,
			delivered_at = :delivered_at, updated_at = :updated_at
		WHERE id = :id`, sale)
	if err != nil {
		return nil, translateError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, translateError(err)
	}
	return sale, nil
}

func (s *Store) SalesSummary(ctx context.Context, filter domain.SaleFilter) (domain.SalesSummary, error) {
	filter.Status = domain.SaleStatusCompleted
	where, args := saleWhere(filter)
	query, args, err := s.in(`SELECT COUNT(*) AS sale_count,
			CAST(COALESCE(SUM(total_cents), 0) AS BIGINT) AS total_cents,
			CAST(COALESCE(SUM(tax_cents), 0) AS BIGINT) AS tax_cents,
			CAST(COALESCE(SUM(discount_cents), 0) AS BIGINT) AS discount_cents
		FROM sales`+where, args...)
	if err != nil {
		return domain.SalesSummary{}, err
	}

	var summary domain.SalesSummary
	if err := s.db.GetContext(ctx, &summary, query, args...); err != nil {
		return domain.SalesSummary{}, translateError(err)
	}
	return summary, nil
}

func (s *Store) lockSale(ctx context.Context, tx *sqlx.Tx, saleID int64) (*domain.Sale, error) {
	var sale domain.Sale
	err := tx.GetContext(ctx, &sale, tx.Rebind(`SELECT `+saleColumns+` FROM sales WHERE id = ?`+s.dialect.forUpdate), saleID)
	if err != nil {
		return nil, notFound(err, "sale %d", saleID)
	}
	if err := s.attachItems(ctx, tx, []*domain.Sale{&sale}); err != nil {
		return nil, err
	}
	return &sale, nil
}

func (s *Store) attachItems(ctx context.Context, q sqlx.QueryerContext, sales []*domain.Sale) error {
	if len(sales) == 0 {
		return nil
	}
	ids := make([]int64, len(sales))
	byID := make(map[int64]*domain.Sale, len(sales))
	for i, sale := range sales {
		ids[i] = sale.ID
		byID[sale.ID] = sale
		sale.Items = []domain.SaleItem{}
	}

	query, args, err := s.in(`SELECT `+saleItemColumns+` FROM sale_items WHERE sale_id IN (?) ORDER BY id`, ids)
	if err != nil {
		return err
	}
	var items []domain.SaleItem
	if err := sqlx.SelectContext(ctx, q, &items, query, args...); err != nil {
		return translateError(err)
	}
	for _, item := range items {
		sale := byID[item.SaleID]
		sale.Items = append(sale.Items, item)
	}
	return nil
}

// saleWhere renders the filter with `?` placeholders; callers pass the
// result through in so the delivery status list is expanded.
func saleWhere(f domain.SaleFilter) (string, []any) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, values ...any) {
		clauses = append(clauses, clause)
		args = append(args, values...)
	}

	if f.BranchID != nil {
		add(`branch_id = ?`, *f.BranchID)
	}
	if f.CashierID != nil {
		add(`cashier_id = ?`, *f.CashierID)
	}
	if f.CustomerID != nil {
		add(`customer_id = ?`, *f.CustomerID)
	}
	if f.DeliveryPersonID != nil {
		add(`delivery_person_id = ?`, *f.DeliveryPersonID)
	}
	if f.Status != "" {
		add(`status = ?`, f.Status)
	}
	if f.DeliveryStatus != "" {
		add(`delivery_status = ?`, f.DeliveryStatus)
	}
	if len(f.DeliveryStatuses) > 0 {
		add(`delivery_status IN (?)`, f.DeliveryStatuses)
	}
	if f.AssignedOrUnassigned != nil {
		add(`(delivery_person_id = ? OR delivery_status = ?)`, *f.AssignedOrUnassigned, domain.DeliveryPending)
	}
	if f.From != nil {
		add(`created_at >= ?`, *f.From)
	}
	if f.To != nil {
		add(`created_at <= ?`, *f.To)
	}

	if len(clauses) == 0 {
		return "", args
	}
	return ` WHERE ` + strings.Join(clauses, ` AND `), args
}

func mapKeys(m map[int64]int) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}
