package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/store"
	"tiendapos/backend/internal/store/seed"
)

type stockKey struct {
	branchID  int64
	productID int64
}

type Store struct {
	mu          sync.RWMutex
	branches    map[int64]domain.Branch
	categories  []domain.Category
	products    map[int64]domain.Product
	stock       map[stockKey]domain.BranchProduct
	movements   []domain.StockMovement
	sales       map[int64]*domain.Sale
	saleNumbers map[string]int64
	users       map[int64]domain.User
	roles       map[int64]domain.Role
	permissions []domain.Permission
	auditLogs   []domain.AuditLog
	nextID      map[string]int64
}

func New() *Store {
	return &Store{
		branches:    make(map[int64]domain.Branch),
		products:    make(map[int64]domain.Product),
		stock:       make(map[stockKey]domain.BranchProduct),
		sales:       make(map[int64]*domain.Sale),
		saleNumbers: make(map[string]int64),
		users:       make(map[int64]domain.User),
		roles:       make(map[int64]domain.Role),
		nextID:      make(map[string]int64),
	}
}

// NewSeeded returns a store loaded with the demo dataset. It panics if the
// seed passwords cannot be hashed.
func NewSeeded() *Store {
	ds, err := seed.Default()
	if err != nil {
		panic(fmt.Sprintf("memory store: build seed data: %v", err))
	}
	s := New()
	s.Load(ds)
	return s
}

func (s *Store) Load(ds seed.Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.permissions = append(s.permissions, ds.Permissions...)
	for _, r := range ds.Roles {
		s.roles[r.ID] = r
		s.bumpID("roles", r.ID)
	}
	for _, b := range ds.Branches {
		s.branches[b.ID] = b
		s.bumpID("branches", b.ID)
	}
	s.categories = append(s.categories, ds.Categories...)
	for _, p := range ds.Products {
		s.products[p.ID] = p
		s.bumpID("products", p.ID)
	}
	for _, bp := range ds.Stock {
		s.stock[stockKey{bp.BranchID, bp.ProductID}] = bp
		s.bumpID("branch_products", bp.ID)
	}
	for _, u := range ds.Users {
		s.users[u.ID] = u
		s.bumpID("users", u.ID)
	}
}

func (s *Store) bumpID(table string, id int64) {
	if id > s.nextID[table] {
		s.nextID[table] = id
	}
}

func (s *Store) newID(table string) int64 {
	s.nextID[table]++
	return s.nextID[table]
}

func (s *Store) ListBranches(_ context.Context) ([]domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Branch, 0, len(s.branches))
	for _, b := range s.branches {
		result = append(result, b)
	}
	slices.SortFunc(result, func(a, b domain.Branch) int { return cmp.Compare(a.ID, b.ID) })
	return result, nil
}

func (s *Store) GetBranch(_ context.Context, id int64) (*domain.Branch, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.branches[id]
	if !ok {
		return nil, fmt.Errorf("%w: branch %d", store.ErrNotFound, id)
	}
	return &b, nil
}

func (s *Store) ListCategories(_ context.Context) ([]domain.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.categories), nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		if p.IsActive {
			result = append(result, p)
		}
	}
	slices.SortFunc(result, func(a, b domain.Product) int { return strings.Compare(a.Name, b.Name) })
	return result, nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, fmt.Errorf("%w: product %d", store.ErrNotFound, id)
	}
	return &p, nil
}

func (s *Store) ListBranchInventory(_ context.Context, branchID int64, lowStockOnly bool) ([]domain.BranchInventoryItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.branches[branchID]; !ok {
		return nil, fmt.Errorf("%w: branch %d", store.ErrNotFound, branchID)
	}

	result := make([]domain.BranchInventoryItem, 0, 16)
	for key, bp := range s.stock {
		if key.branchID != branchID {
			continue
		}
		if lowStockOnly && !bp.IsLowStock() {
			continue
		}
		p := s.products[key.productID]
		result = append(result, domain.BranchInventoryItem{
			BranchProduct: bp,
			ProductSKU:    p.SKU,
			ProductName:   p.Name,
			PriceCents:    p.PriceCents,
			LowStock:      bp.IsLowStock(),
		})
	}
	slices.SortFunc(result, func(a, b domain.BranchInventoryItem) int { return cmp.Compare(a.ProductID, b.ProductID) })
	return result, nil
}

func (s *Store) AddBranchProduct(_ context.Context, bp domain.BranchProduct, actorID int64) (*domain.BranchProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.branches[bp.BranchID]; !ok {
		return nil, fmt.Errorf("%w: branch %d", store.ErrNotFound, bp.BranchID)
	}
	if _, ok := s.products[bp.ProductID]; !ok {
		return nil, fmt.Errorf("%w: product %d", store.ErrNotFound, bp.ProductID)
	}
	key := stockKey{bp.BranchID, bp.ProductID}
	if _, exists := s.stock[key]; exists {
		return nil, fmt.Errorf("%w: product %d already stocked at branch %d", store.ErrDuplicate, bp.ProductID, bp.BranchID)
	}

	bp.ID = s.newID("branch_products")
	s.stock[key] = bp
	if bp.Stock > 0 {
		s.appendMovement(domain.StockMovement{
			BranchID:    bp.BranchID,
			ProductID:   bp.ProductID,
			Kind:        domain.MovementInitial,
			Delta:       bp.Stock,
			StockBefore: 0,
			StockAfter:  bp.Stock,
			ActorID:     optionalID(actorID),
			CreatedAt:   bp.UpdatedAt,
		})
	}
	return &bp, nil
}

func (s *Store) AdjustBranchStock(_ context.Context, branchID int64, productID int64, delta int, note string, actorID int64, at time.Time) (*domain.BranchProduct, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := stockKey{branchID, productID}
	bp, ok := s.stock[key]
	if !ok {
		return nil, fmt.Errorf("%w: product %d at branch %d", store.ErrNotFound, productID, branchID)
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
	s.stock[key] = bp
	s.appendMovement(domain.StockMovement{
		BranchID:    branchID,
		ProductID:   productID,
		Kind:        domain.MovementAdjust,
		Delta:       delta,
		StockBefore: before,
		StockAfter:  after,
		ActorID:     optionalID(actorID),
		Note:        note,
		CreatedAt:   at,
	})
	return &bp, nil
}

func (s *Store) ListStockMovements(_ context.Context, branchID int64, productID int64, limit int) ([]domain.StockMovement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.StockMovement, 0, 16)
	for i := len(s.movements) - 1; i >= 0; i-- {
		m := s.movements[i]
		if m.BranchID != branchID || m.ProductID != productID {
			continue
		}
		result = append(result, m)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

// appendMovement expects s.mu to be held for writing.
func (s *Store) appendMovement(m domain.StockMovement) {
	m.ID = s.newID("stock_movements")
	s.movements = append(s.movements, m)
}

func (s *Store) CreateSale(ctx context.Context, branchID int64, productIDs []int64, plan store.SalePlanner) (*domain.Sale, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	branch, ok := s.branches[branchID]
	if !ok || !branch.IsActive {
		return nil, fmt.Errorf("%w: branch %d", store.ErrNotFound, branchID)
	}

	snapshot := store.SaleSnapshot{
		Branch:   branch,
		Products: make(map[int64]domain.Product, len(productIDs)),
		Stock:    make(map[int64]domain.BranchProduct, len(productIDs)),
	}
	for _, id := range store.SortedIDs(productIDs) {
		p, ok := s.products[id]
		if !ok || !p.IsActive {
			return nil, fmt.Errorf("%w: product %d", store.ErrNotFound, id)
		}
		snapshot.Products[id] = p
		if bp, ok := s.stock[stockKey{branchID, id}]; ok {
			snapshot.Stock[id] = bp
		}
	}

	sale, err := plan(snapshot)
	if err != nil {
		return nil, err
	}
	if _, dup := s.saleNumbers[sale.SaleNumber]; dup {
		return nil, store.ErrDuplicateSaleNumber
	}

	units := store.StockUnitsByProduct(sale.Items)
	for productID, n := range units {
		if bp, ok := snapshot.Stock[productID]; ok && bp.Stock < n {
			return nil, fmt.Errorf("%w: stock for product %d changed during sale", store.ErrConflict, productID)
		}
	}

	sale.ID = s.newID("sales")
	saleID := sale.ID
	for i := range sale.Items {
		sale.Items[i].ID = s.newID("sale_items")
		sale.Items[i].SaleID = sale.ID
	}
	for _, productID := range store.SortedIDs(mapKeys(units)) {
		bp, ok := snapshot.Stock[productID]
		if !ok {
			continue
		}
		before := bp.Stock
		bp.Stock -= units[productID]
		bp.UpdatedAt = sale.CreatedAt
		s.stock[stockKey{branchID, productID}] = bp
		s.appendMovement(domain.StockMovement{
			BranchID:    branchID,
			ProductID:   productID,
			Kind:        domain.MovementSale,
			Delta:       -units[productID],
			StockBefore: before,
			StockAfter:  bp.Stock,
			SaleID:      &saleID,
			ActorID:     optionalID(sale.CashierID),
			CreatedAt:   sale.CreatedAt,
		})
	}

	stored := cloneSale(sale)
	s.sales[sale.ID] = stored
	s.saleNumbers[sale.SaleNumber] = sale.ID
	return cloneSale(stored), nil
}

func (s *Store) CancelSale(ctx context.Context, saleID int64, actorID int64, at time.Time) (*domain.Sale, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[saleID]
	if !ok {
		return nil, fmt.Errorf("%w: sale %d", store.ErrNotFound, saleID)
	}
	if sale.Status == domain.SaleStatusCancelled {
		return nil, fmt.Errorf("%w: %s", store.ErrAlreadyCancelled, sale.SaleNumber)
	}

	saleID = sale.ID
	units := store.StockUnitsByProduct(sale.Items)
	for _, productID := range store.SortedIDs(mapKeys(units)) {
		key := stockKey{sale.BranchID, productID}
		bp, ok := s.stock[key]
		if !ok {
			continue
		}
		before := bp.Stock
		bp.Stock += units[productID]
		bp.UpdatedAt = at
		s.stock[key] = bp
		s.appendMovement(domain.StockMovement{
			BranchID:    sale.BranchID,
			ProductID:   productID,
			Kind:        domain.MovementCancel,
			Delta:       units[productID],
			StockBefore: before,
			StockAfter:  bp.Stock,
			SaleID:      &saleID,
			ActorID:     optionalID(actorID),
			CreatedAt:   at,
		})
	}

	cancelledAt := at
	sale.Status = domain.SaleStatusCancelled
	sale.CancelledAt = &cancelledAt
	sale.UpdatedAt = at
	return cloneSale(sale), nil
}

func (s *Store) GetSale(_ context.Context, id int64) (*domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sale, ok := s.sales[id]
	if !ok {
		return nil, fmt.Errorf("%w: sale %d", store.ErrNotFound, id)
	}
	return cloneSale(sale), nil
}

func (s *Store) ListSales(_ context.Context, filter domain.SaleFilter) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]domain.Sale, 0, 32)
	for _, sale := range s.sales {
		if matchesSale(sale, filter) {
			matched = append(matched, *cloneSale(sale))
		}
	}
	slices.SortFunc(matched, func(a, b domain.Sale) int {
		if filter.OldestFirst {
			a, b = b, a
		}
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(b.ID, a.ID)
	})

	if filter.Offset > 0 {
		if filter.Offset >= len(matched) {
			return []domain.Sale{}, nil
		}
		matched = matched[filter.Offset:]
	}
	if filter.Limit > 0 && len(matched) > filter.Limit {
		matched = matched[:filter.Limit]
	}
	return matched, nil
}

func (s *Store) UpdateDelivery(ctx context.Context, saleID int64, mutate store.DeliveryMutation) (*domain.Sale, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.sales[saleID]
	if !ok {
		return nil, fmt.Errorf("%w: sale %d", store.ErrNotFound, saleID)
	}
	working := cloneSale(stored)
	if err := mutate(working); err != nil {
		return nil, err
	}

	stored.DeliveryStatus = working.DeliveryStatus
	stored.DeliveryPersonID = working.DeliveryPersonID
	stored.DeliveryNotes = working.DeliveryNotes
	stored.DeliveredAt = working.DeliveredAt
	stored.UpdatedAt = working.UpdatedAt
	return cloneSale(stored), nil
}

func (s *Store) SalesSummary(_ context.Context, filter domain.SaleFilter) (domain.SalesSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	filter.Status = domain.SaleStatusCompleted
	var summary domain.SalesSummary
	for _, sale := range s.sales {
		if !matchesSale(sale, filter) {
			continue
		}
		summary.Count++
		summary.TotalCents += sale.TotalCents
		summary.TaxCents += sale.TaxCents
		summary.DiscountCents += sale.DiscountCents
	}
	return summary, nil
}

func (s *Store) GetUser(_ context.Context, id int64) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, fmt.Errorf("%w: user %d", store.ErrNotFound, id)
	}
	u.RoleName = s.roles[u.RoleID].Name
	return &u, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			u.RoleName = s.roles[u.RoleID].Name
			return &u, nil
		}
	}
	return nil, fmt.Errorf("%w: user %s", store.ErrNotFound, username)
}

func (s *Store) ListPermissions(_ context.Context) ([]domain.Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.permissions), nil
}

func (s *Store) RolePermissions(_ context.Context, roleID int64) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.roles[roleID]
	if !ok {
		return nil, fmt.Errorf("%w: role %d", store.ErrNotFound, roleID)
	}
	return permissionCodes(r.Permissions), nil
}

func (s *Store) ListRoles(_ context.Context) ([]domain.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Role, 0, len(s.roles))
	for _, r := range s.roles {
		r.Permissions = permissionCodes(r.Permissions)
		result = append(result, r)
	}
	slices.SortFunc(result, func(a, b domain.Role) int { return cmp.Compare(a.ID, b.ID) })
	return result, nil
}

func (s *Store) GetRole(_ context.Context, id int64) (*domain.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.roles[id]
	if !ok {
		return nil, fmt.Errorf("%w: role %d", store.ErrNotFound, id)
	}
	r.Permissions = permissionCodes(r.Permissions)
	return &r, nil
}

func (s *Store) CreateRole(_ context.Context, role domain.Role) (*domain.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.roles {
		if strings.EqualFold(existing.Name, role.Name) {
			return nil, fmt.Errorf("%w: role %s", store.ErrDuplicate, role.Name)
		}
	}
	if err := s.checkPermissionCodes(role.Permissions); err != nil {
		return nil, err
	}

	role.ID = s.newID("roles")
	role.Permissions = permissionCodes(role.Permissions)
	s.roles[role.ID] = role
	role.Permissions = permissionCodes(role.Permissions)
	return &role, nil
}

func (s *Store) UpdateRole(_ context.Context, role domain.Role) (*domain.Role, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.roles[role.ID]
	if !ok {
		return nil, fmt.Errorf("%w: role %d", store.ErrNotFound, role.ID)
	}
	if err := s.checkPermissionCodes(role.Permissions); err != nil {
		return nil, err
	}

	existing.DisplayName = role.DisplayName
	existing.Description = role.Description
	existing.Permissions = permissionCodes(role.Permissions)
	s.roles[role.ID] = existing
	existing.Permissions = permissionCodes(existing.Permissions)
	return &existing, nil
}

func (s *Store) DeleteRole(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.roles[id]; !ok {
		return fmt.Errorf("%w: role %d", store.ErrNotFound, id)
	}
	for _, u := range s.users {
		if u.RoleID == id {
			return store.ErrRoleInUse
		}
	}
	delete(s.roles, id)
	return nil
}

func (s *Store) checkPermissionCodes(codes []string) error {
	for _, code := range codes {
		known := slices.ContainsFunc(s.permissions, func(p domain.Permission) bool { return p.Code == code })
		if !known {
			return fmt.Errorf("%w: unknown permission %s", store.ErrValidation, code)
		}
	}
	return nil
}

func (s *Store) CreateAuditLog(_ context.Context, entry domain.AuditLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry.ID = s.newID("audit_logs")
	s.auditLogs = append(s.auditLogs, entry)
	return nil
}

func (s *Store) ListAuditLogs(_ context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.AuditLog, 0, 32)
	for i := len(s.auditLogs) - 1; i >= 0; i-- {
		entry := s.auditLogs[i]
		if entry.CreatedAt.Before(from) || !entry.CreatedAt.Before(to) {
			continue
		}
		result = append(result, entry)
		if limit > 0 && len(result) >= limit {
			break
		}
	}
	return result, nil
}

func matchesSale(sale *domain.Sale, f domain.SaleFilter) bool {
	if f.BranchID != nil && sale.BranchID != *f.BranchID {
		return false
	}
	if f.CashierID != nil && sale.CashierID != *f.CashierID {
		return false
	}
	if f.CustomerID != nil && !sameID(sale.CustomerID, *f.CustomerID) {
		return false
	}
	if f.DeliveryPersonID != nil && !sameID(sale.DeliveryPersonID, *f.DeliveryPersonID) {
		return false
	}
	if f.Status != "" && sale.Status != f.Status {
		return false
	}
	if f.DeliveryStatus != "" && sale.DeliveryStatus != f.DeliveryStatus {
		return false
	}
	if len(f.DeliveryStatuses) > 0 && !slices.Contains(f.DeliveryStatuses, sale.DeliveryStatus) {
		return false
	}
	if f.AssignedOrUnassigned != nil {
		if !sameID(sale.DeliveryPersonID, *f.AssignedOrUnassigned) && sale.DeliveryStatus != domain.DeliveryPending {
			return false
		}
	}
	if f.From != nil && sale.CreatedAt.Before(*f.From) {
		return false
	}
	if f.To != nil && sale.CreatedAt.After(*f.To) {
		return false
	}
	return true
}

func sameID(ptr *int64, id int64) bool {
	return ptr != nil && *ptr == id
}

func optionalID(id int64) *int64 {
	if id == 0 {
		return nil
	}
	return &id
}

func mapKeys(m map[int64]int) []int64 {
	keys := make([]int64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	return keys
}

func cloneSale(sale *domain.Sale) *domain.Sale {
	cp := *sale
	cp.Items = slices.Clone(sale.Items)
	cp.CustomerID = cloneInt64(sale.CustomerID)
	cp.DeliveryPersonID = cloneInt64(sale.DeliveryPersonID)
	cp.CompletedAt = cloneTime(sale.CompletedAt)
	cp.CancelledAt = cloneTime(sale.CancelledAt)
	cp.DeliveredAt = cloneTime(sale.DeliveredAt)
	return &cp
}

func cloneInt64(v *int64) *int64 {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

func cloneTime(v *time.Time) *time.Time {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

// permissionCodes copies a role's codes; an empty set stays a non-nil slice.
func permissionCodes(codes []string) []string {
	return append([]string{}, codes...)
}
