package sqlstore

import (
	"context"
	"fmt"

	"tiendapos/backend/internal/store/seed"
)

// %[1]s is the dialect's id column definition.
var schema = []string{
	`CREATE TABLE IF NOT EXISTS permissions (
		id %[1]s,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		module TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE TABLE IF NOT EXISTS roles (
		id %[1]s,
		name TEXT NOT NULL UNIQUE,
		display_name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		is_system BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS role_permissions (
		role_id BIGINT NOT NULL REFERENCES roles(id) ON DELETE CASCADE,
		permission_id BIGINT NOT NULL REFERENCES permissions(id) ON DELETE CASCADE,
		PRIMARY KEY (role_id, permission_id)
	)`,
	`CREATE TABLE IF NOT EXISTS branches (
		id %[1]s,
		code TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		address TEXT NOT NULL DEFAULT '',
		phone TEXT NOT NULL DEFAULT '',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		is_main BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS categories (
		id %[1]s,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		parent_id BIGINT REFERENCES categories(id)
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id %[1]s,
		sku TEXT NOT NULL UNIQUE,
		barcode TEXT UNIQUE,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		price_cents BIGINT NOT NULL,
		cost_cents BIGINT NOT NULL DEFAULT 0,
		tax_rate DOUBLE PRECISION NOT NULL DEFAULT 0.16,
		category_id BIGINT REFERENCES categories(id),
		unit TEXT NOT NULL DEFAULT 'pieza',
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		allow_decimal_qty BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS users (
		id %[1]s,
		username TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL UNIQUE,
		full_name TEXT NOT NULL DEFAULT '',
		password_hash TEXT NOT NULL,
		role_id BIGINT NOT NULL REFERENCES roles(id),
		primary_branch_id BIGINT REFERENCES branches(id),
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS branch_products (
		id %[1]s,
		branch_id BIGINT NOT NULL REFERENCES branches(id),
		product_id BIGINT NOT NULL REFERENCES products(id),
		stock INTEGER NOT NULL DEFAULT 0 CHECK (stock >= 0),
		min_stock INTEGER NOT NULL DEFAULT 5,
		max_stock INTEGER NOT NULL DEFAULT 100,
		custom_price_cents BIGINT,
		is_available BOOLEAN NOT NULL DEFAULT TRUE,
		last_restock TIMESTAMP,
		updated_at TIMESTAMP NOT NULL,
		UNIQUE (branch_id, product_id)
	)`,
	`CREATE TABLE IF NOT EXISTS sales (
		id %[1]s,
		sale_number TEXT NOT NULL UNIQUE,
		branch_id BIGINT NOT NULL REFERENCES branches(id),
		cashier_id BIGINT NOT NULL REFERENCES users(id),
		customer_id BIGINT REFERENCES users(id),
		delivery_person_id BIGINT REFERENCES users(id),
		subtotal_cents BIGINT NOT NULL,
		tax_cents BIGINT NOT NULL,
		discount_cents BIGINT NOT NULL,
		total_cents BIGINT NOT NULL,
		amount_received_cents BIGINT NOT NULL,
		change_cents BIGINT NOT NULL,
		payment_method TEXT NOT NULL,
		status TEXT NOT NULL,
		requires_delivery BOOLEAN NOT NULL DEFAULT FALSE,
		delivery_status TEXT NOT NULL,
		delivery_address TEXT NOT NULL DEFAULT '',
		delivery_notes TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL,
		completed_at TIMESTAMP,
		cancelled_at TIMESTAMP,
		delivered_at TIMESTAMP,
		updated_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_created_at ON sales (created_at)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_cashier ON sales (cashier_id)`,
	`CREATE INDEX IF NOT EXISTS idx_sales_delivery_person ON sales (delivery_person_id)`,
	`CREATE TABLE IF NOT EXISTS sale_items (
		id %[1]s,
		sale_id BIGINT NOT NULL REFERENCES sales(id) ON DELETE CASCADE,
		product_id BIGINT NOT NULL REFERENCES products(id),
		product_name TEXT NOT NULL,
		product_sku TEXT NOT NULL,
		quantity DOUBLE PRECISION NOT NULL,
		unit_price_cents BIGINT NOT NULL,
		tax_rate DOUBLE PRECISION NOT NULL,
		subtotal_cents BIGINT NOT NULL,
		tax_cents BIGINT NOT NULL,
		discount_cents BIGINT NOT NULL,
		total_cents BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sale_items_sale ON sale_items (sale_id)`,
	`CREATE TABLE IF NOT EXISTS stock_movements (
		id %[1]s,
		branch_id BIGINT NOT NULL REFERENCES branches(id),
		product_id BIGINT NOT NULL REFERENCES products(id),
		kind TEXT NOT NULL,
		delta INTEGER NOT NULL,
		stock_before INTEGER NOT NULL,
		stock_after INTEGER NOT NULL,
		sale_id BIGINT REFERENCES sales(id),
		actor_id BIGINT REFERENCES users(id),
		note TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_stock_movements_row ON stock_movements (branch_id, product_id)`,
	`CREATE TABLE IF NOT EXISTS audit_logs (
		id %[1]s,
		actor_id BIGINT,
		actor_username TEXT NOT NULL,
		actor_role TEXT NOT NULL,
		action TEXT NOT NULL,
		entity_type TEXT NOT NULL,
		entity_id TEXT NOT NULL,
		detail TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMP NOT NULL
	)`,
}

// seededTables are the tables whose ids are set explicitly by Seed.
var seededTables = []string{"permissions", "roles", "branches", "categories", "products", "users", "branch_products"}

// Migrate creates the schema if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(stmt, s.dialect.idColumn)); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}

// Seed loads the dataset into an empty database. It reports false when
// roles already exist and nothing was written.
func (s *Store) Seed(ctx context.Context, ds seed.Dataset) (bool, error) {
	var roles int
	if err := s.db.GetContext(ctx, &roles, `SELECT COUNT(*) FROM roles`); err != nil {
		return false, err
	}
	if roles > 0 {
		return false, nil
	}

	tx, err := s.beginTx(ctx)
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback() }()

	inserts := []struct {
		query string
		rows  any
		n     int
	}{
		{`INSERT INTO permissions (id, code, name, module, description)
			VALUES (:id, :code, :name, :module, :description)`, ds.Permissions, len(ds.Permissions)},
		{`INSERT INTO roles (id, name, display_name, description, is_system, created_at)
			VALUES (:id, :name, :display_name, :description, :is_system, :created_at)`, ds.Roles, len(ds.Roles)},
		{`INSERT INTO branches (id, code, name, address, phone, is_active, is_main, created_at)
			VALUES (:id, :code, :name, :address, :phone, :is_active, :is_main, :created_at)`, ds.Branches, len(ds.Branches)},
		{`INSERT INTO categories (id, name, slug, parent_id)
			VALUES (:id, :name, :slug, :parent_id)`, ds.Categories, len(ds.Categories)},
		{`INSERT INTO products (id, sku, barcode, name, description, price_cents, cost_cents, tax_rate,
				category_id, unit, is_active, allow_decimal_qty, created_at)
			VALUES (:id, :sku, :barcode, :name, :description, :price_cents, :cost_cents, :tax_rate,
				:category_id, :unit, :is_active, :allow_decimal_qty, :created_at)`, ds.Products, len(ds.Products)},
		{`INSERT INTO users (id, username, email, full_name, password_hash, role_id, primary_branch_id, is_active, created_at)
			VALUES (:id, :username, :email, :full_name, :password_hash, :role_id, :primary_branch_id, :is_active, :created_at)`, ds.Users, len(ds.Users)},
		{`INSERT INTO branch_products (id, branch_id, product_id, stock, min_stock, max_stock,
				custom_price_cents, is_available, last_restock, updated_at)
			VALUES (:id, :branch_id, :product_id, :stock, :min_stock, :max_stock,
				:custom_price_cents, :is_available, :last_restock, :updated_at)`, ds.Stock, len(ds.Stock)},
	}
	for _, ins := range inserts {
		if ins.n == 0 {
			continue
		}
		if _, err := tx.NamedExecContext(ctx, ins.query, ins.rows); err != nil {
			return false, fmt.Errorf("seed: %w", err)
		}
	}

	for _, role := range ds.Roles {
		if err := setRolePermissions(ctx, tx, role.ID, role.Permissions); err != nil {
			return false, fmt.Errorf("seed role %s: %w", role.Name, err)
		}
	}

	if s.dialect.driver == postgresDialect.driver {
		for _, table := range seededTables {
			_, err := tx.ExecContext(ctx, fmt.Sprintf(
				`SELECT setval(pg_get_serial_sequence('%[1]s', 'id'), (SELECT MAX(id) FROM %[1]s))`, table))
			if err != nil {
				return false, fmt.Errorf("seed sequence %s: %w", table, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return false, translateError(err)
	}
	return true, nil
}
