package access

import (
	"fmt"
	"slices"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/store"
)

type ViewKind int

const (
	ViewAdmin ViewKind = iota
	ViewCashier
	ViewDelivery
	ViewCustomer
)

func (k ViewKind) String() string {
	switch k {
	case ViewCashier:
		return "cashier"
	case ViewDelivery:
		return "delivery"
	case ViewCustomer:
		return "customer"
	default:
		return "admin"
	}
}

// SaleView is the set of sales an actor may read. OwnerID is the actor's
// user id for every kind but ViewAdmin.
type SaleView struct {
	Kind    ViewKind
	OwnerID int64
}

// ViewFor derives the view from the actor's role. Roles other than
// cashier, delivery and customer see every sale.
func ViewFor(actor domain.Actor) SaleView {
	switch actor.Role {
	case domain.RoleCashier:
		return SaleView{Kind: ViewCashier, OwnerID: actor.UserID}
	case domain.RoleDelivery:
		return SaleView{Kind: ViewDelivery, OwnerID: actor.UserID}
	case domain.RoleCustomer:
		return SaleView{Kind: ViewCustomer, OwnerID: actor.UserID}
	default:
		return SaleView{Kind: ViewAdmin}
	}
}

// Scope narrows a caller's filter to the view. Restricted views replace
// the ownership filters with their own owner column and keep the rest,
// branch included.
func (v SaleView) Scope(f domain.SaleFilter) domain.SaleFilter {
	if v.Kind == ViewAdmin {
		return f
	}

	owner := v.OwnerID
	f.CashierID = nil
	f.CustomerID = nil
	f.DeliveryPersonID = nil
	switch v.Kind {
	case ViewCashier:
		f.CashierID = &owner
	case ViewDelivery:
		f.DeliveryPersonID = &owner
	case ViewCustomer:
		f.CustomerID = &owner
	}
	return f
}

// Require fails with ErrForbidden unless the view is one of kinds. Custom
// roles carry the admin view, so a gate listing ViewAdmin admits them.
func (v SaleView) Require(kinds ...ViewKind) error {
	if slices.Contains(kinds, v.Kind) {
		return nil
	}
	return fmt.Errorf("%w: %s view not allowed", store.ErrForbidden, v.Kind)
}

// Allows reports whether a single sale is inside the view.
func (v SaleView) Allows(sale *domain.Sale) bool {
	switch v.Kind {
	case ViewCashier:
		return sale.CashierID == v.OwnerID
	case ViewDelivery:
		return sale.DeliveryPersonID != nil && *sale.DeliveryPersonID == v.OwnerID
	case ViewCustomer:
		return sale.CustomerID != nil && *sale.CustomerID == v.OwnerID
	default:
		return true
	}
}
