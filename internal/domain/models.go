package domain

import "time"

type Actor struct {
	UserID          int64  `json:"user_id"`
	Username        string `json:"username"`
	RoleID          int64  `json:"role_id"`
	Role            string `json:"role"`
	PrimaryBranchID *int64 `json:"primary_branch_id,omitempty"`
}

type Branch struct {
	ID        int64     `db:"id" json:"id"`
	Code      string    `db:"code" json:"code"`
	Name      string    `db:"name" json:"name"`
	Address   string    `db:"address" json:"address"`
	Phone     string    `db:"phone" json:"phone"`
	IsActive  bool      `db:"is_active" json:"is_active"`
	IsMain    bool      `db:"is_main" json:"is_main"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

type Category struct {
	ID       int64  `db:"id" json:"id"`
	Name     string `db:"name" json:"name"`
	Slug     string `db:"slug" json:"slug"`
	ParentID *int64 `db:"parent_id" json:"parent_id,omitempty"`
}

type Product struct {
	ID              int64     `db:"id" json:"id"`
	SKU             string    `db:"sku" json:"sku"`
	Barcode         *string   `db:"barcode" json:"barcode,omitempty"`
	Name            string    `db:"name" json:"name"`
	Description     string    `db:"description" json:"description"`
	PriceCents      int64     `db:"price_cents" json:"price_cents"`
	CostCents       int64     `db:"cost_cents" json:"cost_cents"`
	TaxRate         float64   `db:"tax_rate" json:"tax_rate"`
	CategoryID      *int64    `db:"category_id" json:"category_id,omitempty"`
	Unit            string    `db:"unit" json:"unit"`
	IsActive        bool      `db:"is_active" json:"is_active"`
	AllowDecimalQty bool      `db:"allow_decimal_qty" json:"allow_decimal_qty"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

// BranchProduct is the stock-on-hand row for one product at one branch.
type BranchProduct struct {
	ID               int64      `db:"id" json:"id"`
	BranchID         int64      `db:"branch_id" json:"branch_id"`
	ProductID        int64      `db:"product_id" json:"product_id"`
	Stock            int        `db:"stock" json:"stock"`
	MinStock         int        `db:"min_stock" json:"min_stock"`
	MaxStock         int        `db:"max_stock" json:"max_stock"`
	CustomPriceCents *int64     `db:"custom_price_cents" json:"custom_price_cents,omitempty"`
	IsAvailable      bool       `db:"is_available" json:"is_available"`
	LastRestock      *time.Time `db:"last_restock" json:"last_restock,omitempty"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

func (bp BranchProduct) IsLowStock() bool {
	return bp.Stock <= bp.MinStock
}

type BranchInventoryItem struct {
	BranchProduct
	ProductSKU  string `db:"product_sku" json:"product_sku"`
	ProductName string `db:"product_name" json:"product_name"`
	PriceCents  int64  `db:"price_cents" json:"price_cents"`
	LowStock    bool   `db:"-" json:"low_stock"`
}

type StockMovement struct {
	ID          int64     `db:"id" json:"id"`
	BranchID    int64     `db:"branch_id" json:"branch_id"`
	ProductID   int64     `db:"product_id" json:"product_id"`
	Kind        string    `db:"kind" json:"kind"`
	Delta       int       `db:"delta" json:"delta"`
	StockBefore int       `db:"stock_before" json:"stock_before"`
	StockAfter  int       `db:"stock_after" json:"stock_after"`
	SaleID      *int64    `db:"sale_id" json:"sale_id,omitempty"`
	ActorID     *int64    `db:"actor_id" json:"actor_id,omitempty"`
	Note        string    `db:"note" json:"note"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

type Sale struct {
	ID                  int64      `db:"id" json:"id"`
	SaleNumber          string     `db:"sale_number" json:"sale_number"`
	BranchID            int64      `db:"branch_id" json:"branch_id"`
	CashierID           int64      `db:"cashier_id" json:"cashier_id"`
	CustomerID          *int64     `db:"customer_id" json:"customer_id,omitempty"`
	DeliveryPersonID    *int64     `db:"delivery_person_id" json:"delivery_person_id,omitempty"`
	SubtotalCents       int64      `db:"subtotal_cents" json:"subtotal_cents"`
	TaxCents            int64      `db:"tax_cents" json:"tax_cents"`
	DiscountCents       int64      `db:"discount_cents" json:"discount_cents"`
	TotalCents          int64      `db:"total_cents" json:"total_cents"`
	AmountReceivedCents int64      `db:"amount_received_cents" json:"amount_received_cents"`
	ChangeCents         int64      `db:"change_cents" json:"change_cents"`
	PaymentMethod       string     `db:"payment_method" json:"payment_method"`
	Status              string     `db:"status" json:"status"`
	RequiresDelivery    bool       `db:"requires_delivery" json:"requires_delivery"`
	DeliveryStatus      string     `db:"delivery_status" json:"delivery_status"`
	DeliveryAddress     string     `db:"delivery_address" json:"delivery_address,omitempty"`
	DeliveryNotes       string     `db:"delivery_notes" json:"delivery_notes,omitempty"`
	Notes               string     `db:"notes" json:"notes,omitempty"`
	CreatedAt           time.Time  `db:"created_at" json:"created_at"`
	CompletedAt         *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	CancelledAt         *time.Time `db:"cancelled_at" json:"cancelled_at,omitempty"`
	DeliveredAt         *time.Time `db:"delivered_at" json:"delivered_at,omitempty"`
	UpdatedAt           time.Time  `db:"updated_at" json:"updated_at"`
	Items               []SaleItem `db:"-" json:"items"`
}

// SaleItem snapshots name, sku, price and tax rate at the time of sale.
type SaleItem struct {
	ID             int64   `db:"id" json:"id"`
	SaleID         int64   `db:"sale_id" json:"sale_id"`
	ProductID      int64   `db:"product_id" json:"product_id"`
	ProductName    string  `db:"product_name" json:"product_name"`
	ProductSKU     string  `db:"product_sku" json:"product_sku"`
	Quantity       float64 `db:"quantity" json:"quantity"`
	UnitPriceCents int64   `db:"unit_price_cents" json:"unit_price_cents"`
	TaxRate        float64 `db:"tax_rate" json:"tax_rate"`
	SubtotalCents  int64   `db:"subtotal_cents" json:"subtotal_cents"`
	TaxCents       int64   `db:"tax_cents" json:"tax_cents"`
	DiscountCents  int64   `db:"discount_cents" json:"discount_cents"`
	TotalCents     int64   `db:"total_cents" json:"total_cents"`
}

type SalesSummary struct {
	Count         int64 `db:"sale_count" json:"count"`
	TotalCents    int64 `db:"total_cents" json:"total_cents"`
	TaxCents      int64 `db:"tax_cents" json:"tax_cents"`
	DiscountCents int64 `db:"discount_cents" json:"discount_cents"`
	AverageCents  int64 `db:"-" json:"average_cents"`
}

type Role struct {
	ID          int64     `db:"id" json:"id"`
	Name        string    `db:"name" json:"name"`
	DisplayName string    `db:"display_name" json:"display_name"`
	Description string    `db:"description" json:"description"`
	IsSystem    bool      `db:"is_system" json:"is_system"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	Permissions []string  `db:"-" json:"permissions"`
}

type Permission struct {
	ID          int64  `db:"id" json:"id"`
	Code        string `db:"code" json:"code"`
	Name        string `db:"name" json:"name"`
	Module      string `db:"module" json:"module"`
	Description string `db:"description" json:"description"`
}

type User struct {
	ID              int64     `db:"id" json:"id"`
	Username        string    `db:"username" json:"username"`
	Email           string    `db:"email" json:"email"`
	FullName        string    `db:"full_name" json:"full_name"`
	PasswordHash    string    `db:"password_hash" json:"-"`
	RoleID          int64     `db:"role_id" json:"role_id"`
	RoleName        string    `db:"role_name" json:"role"`
	PrimaryBranchID *int64    `db:"primary_branch_id" json:"primary_branch_id,omitempty"`
	IsActive        bool      `db:"is_active" json:"is_active"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
}

func (u User) Actor() Actor {
	return Actor{
		UserID:          u.ID,
		Username:        u.Username,
		RoleID:          u.RoleID,
		Role:            u.RoleName,
		PrimaryBranchID: u.PrimaryBranchID,
	}
}

type AuditLog struct {
	ID            int64     `db:"id" json:"id"`
	ActorID       *int64    `db:"actor_id" json:"actor_id,omitempty"`
	ActorUsername string    `db:"actor_username" json:"actor_username"`
	ActorRole     string    `db:"actor_role" json:"actor_role"`
	Action        string    `db:"action" json:"action"`
	EntityType    string    `db:"entity_type" json:"entity_type"`
	EntityID      string    `db:"entity_id" json:"entity_id"`
	Detail        string    `db:"detail" json:"detail"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// SaleEvent is published after a sale mutation commits.
type SaleEvent struct {
	ID             string    `json:"id"`
	Type           string    `json:"type"`
	SaleID         int64     `json:"sale_id"`
	SaleNumber     string    `json:"sale_number"`
	BranchID       int64     `json:"branch_id"`
	Status         string    `json:"status"`
	DeliveryStatus string    `json:"delivery_status"`
	TotalCents     int64     `json:"total_cents"`
	ActorID        int64     `json:"actor_id"`
	OccurredAt     time.Time `json:"occurred_at"`
}

const (
	RoleSuperadmin = "superadmin"
	RoleAdmin      = "admin"
	RoleCashier    = "cashier"
	RoleDelivery   = "delivery"
	RoleCustomer   = "customer"
)

const (
	PaymentCash     = "cash"
	PaymentCard     = "card"
	PaymentTransfer = "transfer"
	PaymentMixed    = "mixed"
)

const (
	SaleStatusPending   = "pending"
	SaleStatusCompleted = "completed"
	SaleStatusCancelled = "cancelled"
	SaleStatusRefunded  = "refunded"
)

const (
	DeliveryNotRequired = "not_required"
	DeliveryPending     = "pending"
	DeliveryAssigned    = "assigned"
	DeliveryInTransit   = "in_transit"
	DeliveryDelivered   = "delivered"
	DeliveryFailed      = "failed"
)

const (
	MovementSale    = "sale"
	MovementCancel  = "cancel"
	MovementAdjust  = "adjust"
	MovementInitial = "initial"
)

const (
	EventSaleCreated     = "sale.created"
	EventSaleCancelled   = "sale.cancelled"
	EventDeliveryUpdated = "delivery.updated"
)

func IsPaymentMethod(method string) bool {
	switch method {
	case PaymentCash, PaymentCard, PaymentTransfer, PaymentMixed:
		return true
	}
	return false
}

func IsDeliveryStatus(status string) bool {
	switch status {
	case DeliveryNotRequired, DeliveryPending, DeliveryAssigned, DeliveryInTransit, DeliveryDelivered, DeliveryFailed:
		return true
	}
	return false
}
