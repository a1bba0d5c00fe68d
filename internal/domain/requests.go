package domain

import "time"

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	UserID      int64  `json:"user_id"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type MeResponse struct {
	Actor       Actor    `json:"actor"`
	Permissions []string `json:"permissions"`
}

type SaleItemRequest struct {
	ProductID     int64   `json:"product_id"`
	Quantity      float64 `json:"quantity"`
	DiscountCents int64   `json:"discount_cents"`
}

type CreateSaleRequest struct {
	BranchID            int64             `json:"branch_id"`
	CustomerID          *int64            `json:"customer_id,omitempty"`
	PaymentMethod       string            `json:"payment_method"`
	Items               []SaleItemRequest `json:"items"`
	AmountReceivedCents int64             `json:"amount_received_cents"`
	RequiresDelivery    bool              `json:"requires_delivery"`
	DeliveryAddress     string            `json:"delivery_address,omitempty"`
	DeliveryNotes       string            `json:"delivery_notes,omitempty"`
	Notes               string            `json:"notes,omitempty"`
}

type AssignDeliveryRequest struct {
	DeliveryPersonID int64 `json:"delivery_person_id"`
}

type UpdateDeliveryStatusRequest struct {
	Status string  `json:"status"`
	Notes  *string `json:"notes,omitempty"`
}

// SaleFilter narrows ListSales and SalesSummary. Nil pointers mean no filter.
type SaleFilter struct {
	BranchID         *int64
	CashierID        *int64
	CustomerID       *int64
	DeliveryPersonID *int64
	Status           string
	DeliveryStatus   string
	DeliveryStatuses []string
	// AssignedOrUnassigned restricts to sales assigned to this user or
	// still waiting in the pending queue.
	AssignedOrUnassigned *int64
	From                 *time.Time
	To                   *time.Time
	// OldestFirst sorts by creation ascending instead of newest first.
	OldestFirst bool
	Offset      int
	Limit       int
}

type SaleListResponse struct {
	Sales []Sale `json:"sales"`
	Count int    `json:"count"`
}

type RoleCreateRequest struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"display_name"`
	Description string   `json:"description"`
	Permissions []string `json:"permissions"`
}

type RoleUpdateRequest struct {
	DisplayName *string   `json:"display_name,omitempty"`
	Description *string   `json:"description,omitempty"`
	Permissions *[]string `json:"permissions,omitempty"`
}

type AddBranchProductRequest struct {
	ProductID        int64  `json:"product_id"`
	Stock            int    `json:"stock"`
	MinStock         *int   `json:"min_stock,omitempty"`
	MaxStock         *int   `json:"max_stock,omitempty"`
	CustomPriceCents *int64 `json:"custom_price_cents,omitempty"`
}

type StockAdjustRequest struct {
	Delta  int    `json:"delta"`
	Reason string `json:"reason"`
}
