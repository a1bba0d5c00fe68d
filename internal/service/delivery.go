package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"tiendapos/backend/internal/access"
	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/store"
)

// AssignDelivery hands a delivery sale to a courier. Reassignment is allowed
// until the courier picks it up.
func (s *Service) AssignDelivery(ctx context.Context, saleID int64, req domain.AssignDeliveryRequest) (domain.Sale, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	if err := access.RequireRole(actor, domain.RoleSuperadmin, domain.RoleAdmin, domain.RoleCashier); err != nil {
		return domain.Sale{}, err
	}

	// The assignee is looked up before the sale row is locked; its verdict
	// is reported only after the sale's own state checks pass.
	courierID := req.DeliveryPersonID
	assigneeErr := s.checkAssignee(ctx, courierID)
	at := s.now()
	sale, err := s.repo.UpdateDelivery(ctx, saleID, func(sale *domain.Sale) error {
		if err := deliveryOpen(sale); err != nil {
			return err
		}
		switch sale.DeliveryStatus {
		case domain.DeliveryPending, domain.DeliveryAssigned:
		default:
			return fmt.Errorf("%w: cannot assign a delivery that is %s", store.ErrInvalidTransition, sale.DeliveryStatus)
		}
		if assigneeErr != nil {
			return assigneeErr
		}

		sale.DeliveryPersonID = &courierID
		sale.DeliveryStatus = domain.DeliveryAssigned
		sale.UpdatedAt = at
		return nil
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, "delivery_assign", "sale", strconv.FormatInt(sale.ID, 10),
		fmt.Sprintf("delivery_person=%d", courierID))
	s.publish(ctx, domain.EventDeliveryUpdated, sale, actor.UserID)

	return *sale, nil
}

// UpdateDeliveryStatus moves a delivery forward. Delivery staff may only
// update sales assigned to them.
func (s *Service) UpdateDeliveryStatus(ctx context.Context, saleID int64, req domain.UpdateDeliveryStatusRequest) (domain.Sale, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	view := access.ViewFor(actor)
	if err := view.Require(access.ViewAdmin, access.ViewDelivery); err != nil {
		return domain.Sale{}, err
	}

	switch req.Status {
	case domain.DeliveryInTransit, domain.DeliveryDelivered, domain.DeliveryFailed:
	default:
		return domain.Sale{}, fmt.Errorf("%w: status must be in_transit, delivered or failed", store.ErrValidation)
	}

	at := s.now()
	sale, err := s.repo.UpdateDelivery(ctx, saleID, func(sale *domain.Sale) error {
		if view.Kind == access.ViewDelivery && !view.Allows(sale) {
			return fmt.Errorf("%w: sale %d is not assigned to you", store.ErrForbidden, sale.ID)
		}
		if err := deliveryOpen(sale); err != nil {
			return err
		}
		switch sale.DeliveryStatus {
		case domain.DeliveryPending, domain.DeliveryAssigned, domain.DeliveryInTransit:
		default:
			return fmt.Errorf("%w: delivery is already %s", store.ErrInvalidTransition, sale.DeliveryStatus)
		}

		sale.DeliveryStatus = req.Status
		if req.Status == domain.DeliveryDelivered {
			sale.DeliveredAt = &at
		}
		if req.Notes != nil {
			sale.DeliveryNotes = *req.Notes
		}
		sale.UpdatedAt = at
		return nil
	})
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, "delivery_status", "sale", strconv.FormatInt(sale.ID, 10),
		fmt.Sprintf("status=%s", sale.DeliveryStatus))
	s.publish(ctx, domain.EventDeliveryUpdated, sale, actor.UserID)

	return *sale, nil
}

func deliveryOpen(sale *domain.Sale) error {
	if sale.DeliveryStatus == domain.DeliveryNotRequired {
		return fmt.Errorf("%w: sale %s was not sold for delivery", store.ErrDeliveryNotApplicable, sale.SaleNumber)
	}
	if sale.Status == domain.SaleStatusCancelled {
		return fmt.Errorf("%w: sale %s is cancelled", store.ErrValidation, sale.SaleNumber)
	}
	return nil
}

func (s *Service) checkAssignee(ctx context.Context, userID int64) error {
	user, err := s.repo.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("%w: user %d does not exist", store.ErrInvalidDeliveryAssignee, userID)
	}
	if err != nil {
		return err
	}
	if !user.IsActive || user.RoleName != domain.RoleDelivery {
		return fmt.Errorf("%w: %s is not active delivery staff", store.ErrInvalidDeliveryAssignee, user.Username)
	}
	return nil
}
