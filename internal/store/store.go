package store

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"tiendapos/backend/internal/domain"
)

var (
	ErrNotFound                = errors.New("not found")
	ErrValidation              = errors.New("validation error")
	ErrInsufficientStock       = errors.New("insufficient stock")
	ErrAlreadyCancelled        = errors.New("sale already cancelled")
	ErrDeliveryNotApplicable   = errors.New("delivery not applicable")
	ErrInvalidDeliveryAssignee = errors.New("invalid delivery assignee")
	ErrForbidden               = errors.New("forbidden")
	ErrConflict                = errors.New("concurrent update conflict")
)

var (
	ErrDuplicate           = fmt.Errorf("%w: duplicate key", ErrValidation)
	ErrDuplicateSaleNumber = fmt.Errorf("%w: sale number already used", ErrDuplicate)
	ErrInvalidTransition   = fmt.Errorf("%w: invalid delivery transition", ErrValidation)
	ErrSystemRole          = fmt.Errorf("%w: system roles cannot be modified", ErrValidation)
	ErrRoleInUse           = fmt.Errorf("%w: role is assigned to users", ErrValidation)
)

// StockShortage reports the first product whose branch stock cannot cover
// the requested quantity.
type StockShortage struct {
	ProductID   int64
	ProductName string
	Available   int
	Requested   float64
}

func (e *StockShortage) Error() string {
	return fmt.Sprintf("insufficient stock for %s (product %d): available %d, requested %g",
		e.ProductName, e.ProductID, e.Available, e.Requested)
}

func (e *StockShortage) Unwrap() error {
	return ErrInsufficientStock
}

// Kind maps an error onto its machine-checkable kind.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInsufficientStock):
		return "insufficient_stock"
	case errors.Is(err, ErrAlreadyCancelled):
		return "already_cancelled"
	case errors.Is(err, ErrDeliveryNotApplicable):
		return "delivery_not_applicable"
	case errors.Is(err, ErrInvalidDeliveryAssignee):
		return "invalid_delivery_assignee"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrValidation):
		return "validation_error"
	default:
		return "internal"
	}
}

// SaleSnapshot is the consistent view a SalePlanner prices a cart against.
// Stock holds only the branch rows that exist; they are locked for the
// duration of the plan.
type SaleSnapshot struct {
	Branch   domain.Branch
	Products map[int64]domain.Product
	Stock    map[int64]domain.BranchProduct
}

// SalePlanner validates every line against the snapshot and returns the
// sale to persist. It must not touch the store; any error aborts the sale
// before anything is written.
type SalePlanner func(snapshot SaleSnapshot) (*domain.Sale, error)

// DeliveryMutation applies a delivery transition to a locked sale.
type DeliveryMutation func(sale *domain.Sale) error

type CatalogStore interface {
	ListBranches(ctx context.Context) ([]domain.Branch, error)
	GetBranch(ctx context.Context, id int64) (*domain.Branch, error)
	ListCategories(ctx context.Context) ([]domain.Category, error)
	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	ListBranchInventory(ctx context.Context, branchID int64, lowStockOnly bool) ([]domain.BranchInventoryItem, error)
	AddBranchProduct(ctx context.Context, bp domain.BranchProduct, actorID int64) (*domain.BranchProduct, error)
	AdjustBranchStock(ctx context.Context, branchID int64, productID int64, delta int, note string, actorID int64, at time.Time) (*domain.BranchProduct, error)
	ListStockMovements(ctx context.Context, branchID int64, productID int64, limit int) ([]domain.StockMovement, error)
}

type SaleStore interface {
	CreateSale(ctx context.Context, branchID int64, productIDs []int64, plan SalePlanner) (*domain.Sale, error)
	CancelSale(ctx context.Context, saleID int64, actorID int64, at time.Time) (*domain.Sale, error)
	GetSale(ctx context.Context, id int64) (*domain.Sale, error)
	ListSales(ctx context.Context, filter domain.SaleFilter) ([]domain.Sale, error)
	UpdateDelivery(ctx context.Context, saleID int64, mutate DeliveryMutation) (*domain.Sale, error)
	SalesSummary(ctx context.Context, filter domain.SaleFilter) (domain.SalesSummary, error)
}

type AccessStore interface {
	GetUser(ctx context.Context, id int64) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)
	ListPermissions(ctx context.Context) ([]domain.Permission, error)
	RolePermissions(ctx context.Context, roleID int64) ([]string, error)
	ListRoles(ctx context.Context) ([]domain.Role, error)
	GetRole(ctx context.Context, id int64) (*domain.Role, error)
	CreateRole(ctx context.Context, role domain.Role) (*domain.Role, error)
	UpdateRole(ctx context.Context, role domain.Role) (*domain.Role, error)
	DeleteRole(ctx context.Context, id int64) error
}

type AuditStore interface {
	CreateAuditLog(ctx context.Context, entry domain.AuditLog) error
	ListAuditLogs(ctx context.Context, from time.Time, to time.Time, limit int) ([]domain.AuditLog, error)
}

type Repository interface {
	CatalogStore
	SaleStore
	AccessStore
	AuditStore
}

// StockUnitsByProduct sums the whole stock units each product consumes
// across the sale lines.
func StockUnitsByProduct(items []domain.SaleItem) map[int64]int {
	units := make(map[int64]int, len(items))
	for _, item := range items {
		units[item.ProductID] += domain.StockUnits(item.Quantity)
	}
	return units
}

// SortedIDs returns the distinct ids in ascending order, the order in
// which stock rows are locked.
func SortedIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}
