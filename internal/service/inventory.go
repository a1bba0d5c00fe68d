package service

import (
	"context"
	"fmt"
	"strings"

	"tiendapos/backend/internal/domain"
	"tiendapos/backend/internal/store"
)

func (s *Service) ListBranchInventory(ctx context.Context, branchID int64, lowStockOnly bool) ([]domain.BranchInventoryItem, error) {
	if err := s.requirePermission(ctx, "inventory.view"); err != nil {
		return nil, err
	}
	return s.repo.ListBranchInventory(ctx, branchID, lowStockOnly)
}

func (s *Service) AddProductToBranch(ctx context.Context, branchID int64, req domain.AddBranchProductRequest) (domain.BranchProduct, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.BranchProduct{}, err
	}
	if err := s.access.RequirePermission(ctx, actor, "inventory.manage"); err != nil {
		return domain.BranchProduct{}, err
	}

	bp := domain.BranchProduct{
		BranchID:         branchID,
		ProductID:        req.ProductID,
		Stock:            req.Stock,
		MinStock:         5,
		MaxStock:         100,
		CustomPriceCents: req.CustomPriceCents,
		IsAvailable:      true,
		UpdatedAt:        s.now(),
	}
	if req.MinStock != nil {
		bp.MinStock = *req.MinStock
	}
	if req.MaxStock != nil {
		bp.MaxStock = *req.MaxStock
	}
	if bp.ProductID < 1 {
		return domain.BranchProduct{}, fmt.Errorf("%w: product_id is required", store.ErrValidation)
	}
	if bp.Stock < 0 || bp.MinStock < 0 || bp.MaxStock < bp.MinStock {
		return domain.BranchProduct{}, fmt.Errorf("%w: stock levels must satisfy 0 <= min_stock <= max_stock and stock >= 0", store.ErrValidation)
	}
	if bp.CustomPriceCents != nil && *bp.CustomPriceCents < 0 {
		return domain.BranchProduct{}, fmt.Errorf("%w: custom price cannot be negative", store.ErrValidation)
	}
	if bp.Stock > 0 {
		restock := bp.UpdatedAt
		bp.LastRestock = &restock
	}

	created, err := s.repo.AddBranchProduct(ctx, bp, actor.UserID)
	if err != nil {
		return domain.BranchProduct{}, err
	}

	s.logAudit(ctx, "branch_product_add", "branch_product", fmt.Sprintf("%d/%d", branchID, req.ProductID),
		fmt.Sprintf("stock=%d", created.Stock))
	return *created, nil
}

func (s *Service) AdjustStock(ctx context.Context, branchID int64, productID int64, req domain.StockAdjustRequest) (domain.BranchProduct, error) {
	actor, err := requireActor(ctx)
	if err != nil {
		return domain.BranchProduct{}, err
	}
	if err := s.access.RequirePermission(ctx, actor, "inventory.manage"); err != nil {
		return domain.BranchProduct{}, err
	}
	if req.Delta == 0 {
		return domain.BranchProduct{}, fmt.Errorf("%w: delta cannot be zero", store.ErrValidation)
	}
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = "manual adjustment"
	}

	bp, err := s.repo.AdjustBranchStock(ctx, branchID, productID, req.Delta, reason, actor.UserID, s.now())
	if err != nil {
		return domain.BranchProduct{}, err
	}

	s.logAudit(ctx, "stock_adjust", "branch_product", fmt.Sprintf("%d/%d", branchID, productID),
		fmt.Sprintf("delta=%d,stock=%d,reason=%s", req.Delta, bp.Stock, reason))
	return *bp, nil
}

func (s *Service) ListStockMovements(ctx context.Context, branchID int64, productID int64, limit int) ([]domain.StockMovement, error) {
	if err := s.requirePermission(ctx, "inventory.view"); err != nil {
		return nil, err
	}
	if limit < 1 || limit > 500 {
		limit = 100
	}
	return s.repo.ListStockMovements(ctx, branchID, productID, limit)
}
