package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"tiendapos/backend/internal/access"
	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/store"
)

const (
	defaultSaleListLimit = 100
	maxSaleListLimit     = 500
)

// CreateSale prices the cart against the branch's locked stock and records
// the sale for the calling cashier. Either the sale, its items and every
// stock decrement are committed, or nothing is.
func (s *Service) CreateSale(ctx context.Context, req domain.CreateSaleRequest) (domain.Sale, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	if err := s.access.RequirePermission(ctx, actor, "sales.create"); err != nil {
		return domain.Sale{}, err
	}

	req.PaymentMethod = strings.ToLower(strings.TrimSpace(req.PaymentMethod))
	if req.PaymentMethod == "" {
		req.PaymentMethod = domain.PaymentCash
	}
	req.DeliveryAddress = strings.TrimSpace(req.DeliveryAddress)
	if err := validateSaleRequest(req); err != nil {
		return domain.Sale{}, err
	}

	if req.CustomerID != nil {
		if _, err := s.repo.GetUser(ctx, *req.CustomerID); err != nil {
			return domain.Sale{}, err
		}
	}

	branch, err := s.repo.GetBranch(ctx, req.BranchID)
	if err != nil {
		return domain.Sale{}, err
	}
	if !branch.IsActive {
		return domain.Sale{}, fmt.Errorf("%w: branch %d", store.ErrNotFound, req.BranchID)
	}

	productIDs := make([]int64, 0, len(req.Items))
	for _, item := range req.Items {
		productIDs = append(productIDs, item.ProductID)
	}

	var sale *domain.Sale
	for attempt := 1; ; attempt++ {
		at := s.now()
		number := s.saleNumber(branch.Code, at)
		sale, err = s.repo.CreateSale(ctx, req.BranchID, productIDs, planSale(req, actor.UserID, number, at))
		if errors.Is(err, store.ErrDuplicateSaleNumber) && attempt < s.saleNumberAttempts {
			s.logger.Debug("sale number collision, retrying",
				zap.String("sale_number", number),
				zap.Int("attempt", attempt),
			)
			continue
		}
		if err != nil {
			return domain.Sale{}, err
		}
		break
	}

	s.logAudit(ctx, "sale_create", "sale", strconv.FormatInt(sale.ID, 10), fmt.Sprintf(
		"number=%s,branch=%d,total=%d,payment=%s,items=%d,delivery=%t",
		sale.SaleNumber, sale.BranchID, sale.TotalCents, sale.PaymentMethod, len(sale.Items), sale.RequiresDelivery,
	))
	s.publish(ctx, domain.EventSaleCreated, sale, actor.UserID)

	return *sale, nil
}

func validateSaleRequest(req domain.CreateSaleRequest) error {
	if req.BranchID < 1 {
		return fmt.Errorf("%w: branch_id is required", store.ErrValidation)
	}
	if len(req.Items) == 0 {
		return fmt.Errorf("%w: sale needs at least one item", store.ErrValidation)
	}
	for i, item := range req.Items {
		if item.ProductID < 1 {
			return fmt.Errorf("%w: item %d: product_id is required", store.ErrValidation, i+1)
		}
		if math.IsNaN(item.Quantity) || math.IsInf(item.Quantity, 0) || item.Quantity <= 0 {
			return fmt.Errorf("%w: item %d: quantity must be positive", store.ErrValidation, i+1)
		}
		if item.DiscountCents < 0 {
			return fmt.Errorf("%w: item %d: discount cannot be negative", store.ErrValidation, i+1)
		}
	}
	if !domain.IsPaymentMethod(req.PaymentMethod) {
		return fmt.Errorf("%w: unsupported payment method %q", store.ErrValidation, req.PaymentMethod)
	}
	if req.AmountReceivedCents < 0 {
		return fmt.Errorf("%w: amount received cannot be negative", store.ErrValidation)
	}
	if req.RequiresDelivery && req.DeliveryAddress == "" {
		return fmt.Errorf("%w: delivery address is required for delivery sales", store.ErrValidation)
	}
	return nil
}

// planSale validates every line against the snapshot before pricing any of
// them, so a rejected cart never reaches the write phase.
func planSale(req domain.CreateSaleRequest, cashierID int64, number string, at time.Time) store.SalePlanner {
	return func(snap store.SaleSnapshot) (*domain.Sale, error) {
		requested := make(map[int64]float64, len(req.Items))
		order := make([]int64, 0, len(req.Items))
		for i, item := range req.Items {
			p := snap.Products[item.ProductID]
			if !p.AllowDecimalQty && !domain.IsWholeQuantity(item.Quantity) {
				return nil, fmt.Errorf("%w: item %d: %s is sold in whole units", store.ErrValidation, i+1, p.Name)
			}
			if _, seen := requested[p.ID]; !seen {
				order = append(order, p.ID)
			}
			requested[p.ID] += item.Quantity
		}
		for _, id := range order {
			bp, tracked := snap.Stock[id]
			if tracked && float64(bp.Stock) < requested[id] {
				return nil, &store.StockShortage{
					ProductID:   id,
					ProductName: snap.Products[id].Name,
					Available:   bp.Stock,
					Requested:   requested[id],
				}
			}
		}

		sale := &domain.Sale{
			SaleNumber:       number,
			BranchID:         snap.Branch.ID,
			CashierID:        cashierID,
			CustomerID:       req.CustomerID,
			PaymentMethod:    req.PaymentMethod,
			Status:           domain.SaleStatusCompleted,
			RequiresDelivery: req.RequiresDelivery,
			DeliveryStatus:   domain.DeliveryNotRequired,
			DeliveryAddress:  req.DeliveryAddress,
			DeliveryNotes:    req.DeliveryNotes,
			Notes:            req.Notes,
			CreatedAt:        at,
			CompletedAt:      &at,
			UpdatedAt:        at,
			Items:            make([]domain.SaleItem, 0, len(req.Items)),
		}
		if req.RequiresDelivery {
			sale.DeliveryStatus = domain.DeliveryPending
		}

		var totals domain.SaleTotals
		for i, item := range req.Items {
			p := snap.Products[item.ProductID]
			unitPrice := p.PriceCents
			if bp, ok := snap.Stock[p.ID]; ok && bp.CustomPriceCents != nil {
				unitPrice = *bp.CustomPriceCents
			}

			line := domain.PriceLine(unitPrice, item.Quantity, p.TaxRate, item.DiscountCents)
			if line.TotalCents < 0 {
				return nil, fmt.Errorf("%w: item %d: discount %d exceeds line amount %d",
					store.ErrValidation, i+1, item.DiscountCents, line.SubtotalCents+line.TaxCents)
			}
			totals.Add(line)

			sale.Items = append(sale.Items, domain.SaleItem{
				ProductID:      p.ID,
				ProductName:    p.Name,
				ProductSKU:     p.SKU,
				Quantity:       item.Quantity,
				UnitPriceCents: unitPrice,
				TaxRate:        p.TaxRate,
				SubtotalCents:  line.SubtotalCents,
				TaxCents:       line.TaxCents,
				DiscountCents:  line.DiscountCents,
				TotalCents:     line.TotalCents,
			})
		}

		sale.SubtotalCents = totals.SubtotalCents
		sale.TaxCents = totals.TaxCents
		sale.DiscountCents = totals.DiscountCents
		sale.TotalCents = totals.TotalCents
		sale.AmountReceivedCents = req.AmountReceivedCents
		sale.ChangeCents = domain.ChangeDue(req.AmountReceivedCents, totals.TotalCents)
		return sale, nil
	}
}

// CancelSale reverses a sale's stock decrements. Financial fields and
// completed_at are kept as the historical record.
func (s *Service) CancelSale(ctx context.Context, saleID int64) (domain.Sale, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	if err := access.RequireRole(actor, domain.RoleSuperadmin, domain.RoleAdmin); err != nil {
		return domain.Sale{}, err
	}

	sale, err := s.repo.CancelSale(ctx, saleID, actor.UserID, s.now())
	if err != nil {
		return domain.Sale{}, err
	}

	s.logAudit(ctx, "sale_cancel", "sale", strconv.FormatInt(sale.ID, 10),
		fmt.Sprintf("number=%s,total=%d", sale.SaleNumber, sale.TotalCents))
	s.publish(ctx, domain.EventSaleCancelled, sale, actor.UserID)

	return *sale, nil
}

func (s *Service) GetSale(ctx context.Context, saleID int64) (domain.Sale, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.Sale{}, err
	}

	sale, err := s.repo.GetSale(ctx, saleID)
	if err != nil {
		return domain.Sale{}, err
	}
	if !access.ViewFor(actor).Allows(sale) {
		return domain.Sale{}, fmt.Errorf("%w: sale %d belongs to another user", store.ErrForbidden, saleID)
	}
	return *sale, nil
}

// ListSales returns the sales visible to the caller, newest first. Owner
// filters supplied by non-admin callers are replaced by their own id.
func (s *Service) ListSales(ctx context.Context, filter domain.SaleFilter) (domain.SaleListResponse, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.SaleListResponse{}, err
	}

	filter = access.ViewFor(actor).Scope(filter)
	if filter.Limit < 1 {
		filter.Limit = defaultSaleListLimit
	}
	if filter.Limit > maxSaleListLimit {
		filter.Limit = maxSaleListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	if filter.Status != "" && !isSaleStatus(filter.Status) {
		return domain.SaleListResponse{}, fmt.Errorf("%w: unknown sale status %q", store.ErrValidation, filter.Status)
	}
	if filter.DeliveryStatus != "" && !domain.IsDeliveryStatus(filter.DeliveryStatus) {
		return domain.SaleListResponse{}, fmt.Errorf("%w: unknown delivery status %q", store.ErrValidation, filter.DeliveryStatus)
	}

	sales, err := s.repo.ListSales(ctx, filter)
	if err != nil {
		return domain.SaleListResponse{}, err
	}
	return domain.SaleListResponse{Sales: sales, Count: len(sales)}, nil
}

// SalesSummary aggregates completed sales. Cancelled sales are excluded.
func (s *Service) SalesSummary(ctx context.Context, filter domain.SaleFilter) (domain.SalesSummary, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.SalesSummary{}, err
	}
	if err := s.access.RequirePermission(ctx, actor, "sales.reports"); err != nil {
		return domain.SalesSummary{}, err
	}

	summary, err := s.repo.SalesSummary(ctx, domain.SaleFilter{
		BranchID: filter.BranchID,
		From:     filter.From,
		To:       filter.To,
	})
	if err != nil {
		return domain.SalesSummary{}, err
	}
	if summary.Count > 0 {
		summary.AverageCents = int64(math.Round(float64(summary.TotalCents) / float64(summary.Count)))
	}
	return summary, nil
}

// PendingDeliveries lists the dispatch queue oldest first, optionally for
// one branch. Delivery staff see the ones assigned to them plus the
// unassigned queue.
func (s *Service) PendingDeliveries(ctx context.Context, branchID *int64) ([]domain.Sale, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return nil, err
	}
	if err := access.RequireRole(actor, domain.RoleSuperadmin, domain.RoleAdmin, domain.RoleCashier, domain.RoleDelivery); err != nil {
		return nil, err
	}

	filter := domain.SaleFilter{
		BranchID:         branchID,
		Status:           domain.SaleStatusCompleted,
		DeliveryStatuses: []string{domain.DeliveryPending, domain.DeliveryAssigned},
		OldestFirst:      true,
		Limit:            maxSaleListLimit,
	}
	if access.ViewFor(actor).Kind == access.ViewDelivery {
		me := actor.UserID
		filter.AssignedOrUnassigned = &me
	}
	return s.repo.ListSales(ctx, filter)
}

func isSaleStatus(status string) bool {
	switch status {
	case domain.SaleStatusPending, domain.SaleStatusCompleted, domain.SaleStatusCancelled, domain.SaleStatusRefunded:
		return true
	}
	return false
}
