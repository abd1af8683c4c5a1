package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "Pending"
	OrderCompleted OrderStatus = "Completed"
	OrderCancelled OrderStatus = "Cancelled"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderPending, OrderCompleted, OrderCancelled:
		return true
	}
	return false
}

// ParseOrderStatus matches a status name case-insensitively.
func ParseOrderStatus(raw string) (OrderStatus, bool) {
	for _, status := range []OrderStatus{OrderPending, OrderCompleted, OrderCancelled} {
		if strings.EqualFold(strings.TrimSpace(raw), string(status)) {
			return status, true
		}
	}
	return "", false
}

const (
	StockInStock    = "in_stock"
	StockLow        = "low_stock"
	StockOutOfStock = "out_of_stock"
)

type Product struct {
	ID           int64           `json:"id"`
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	OriginalRate decimal.Decimal `json:"original_rate"`
	Stock        int             `json:"stock"`
	RestockDate  *time.Time      `json:"restock_date,omitempty"`
}

type ProductCreateRequest struct {
	Name         string          `json:"name"`
	Price        decimal.Decimal `json:"price"`
	OriginalRate decimal.Decimal `json:"original_rate"`
	Stock        int             `json:"stock"`
	RestockDate  *time.Time      `json:"restock_date,omitempty"`
}

type ProductUpdateRequest struct {
	Name             *string          `json:"name,omitempty"`
	Price            *decimal.Decimal `json:"price,omitempty"`
	OriginalRate     *decimal.Decimal `json:"original_rate,omitempty"`
	Stock            *int             `json:"stock,omitempty"`
	RestockDate      *time.Time       `json:"restock_date,omitempty"`
	ClearRestockDate bool             `json:"clear_restock_date,omitempty"`
}

type Customer struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type CustomerRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
}

type CartLine struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

func (l CartLine) Amount() decimal.Decimal {
	return l.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

type Totals struct {
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
	// Clamped is set when the discount exceeded the subtotal and Total was floored at zero.
	Clamped bool `json:"clamped"`
}

type Order struct {
	ID       int64           `json:"id"`
	Customer string          `json:"customer"`
	Items    []CartLine      `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
	Discount decimal.Decimal `json:"discount"`
	Total    decimal.Decimal `json:"total"`
	Date     time.Time       `json:"date"`
	Status   OrderStatus     `json:"status"`
}

func (o Order) ItemCount() int {
	total := 0
	for _, item := range o.Items {
		total += item.Quantity
	}
	return total
}

type ProductAvailability struct {
	Product       Product `json:"product"`
	Remaining     int     `json:"remaining"`
	StockState    string  `json:"stock_state"`
	CanAdd        bool    `json:"can_add"`
	MaxSelectable int     `json:"max_selectable"`
	RestockNote   string  `json:"restock_note,omitempty"`
}

type CartView struct {
	TerminalID string     `json:"terminal_id"`
	Lines      []CartLine `json:"lines"`
	Totals     Totals     `json:"totals"`
	Customer   *Customer  `json:"customer,omitempty"`
	Processing bool       `json:"processing"`
}

type AddToCartRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type UpdateQuantityRequest struct {
	Delta int `json:"delta"`
}

// DiscountRequest accepts the discount as typed by the operator, either a
// JSON number or a string.
type DiscountRequest struct {
	Discount any `json:"discount"`
}

type SelectCustomerRequest struct {
	CustomerID int64 `json:"customer_id"`
}

type SaleResponse struct {
	Order   Order   `json:"order"`
	Receipt Receipt `json:"receipt"`
}

type Receipt struct {
	OrderID      int64    `json:"order_id"`
	Preview      bool     `json:"preview"`
	Lines        []string `json:"lines"`
	PreviewText  string   `json:"preview_text"`
	EscposBase64 string   `json:"escpos_base64"`
	FileName     string   `json:"file_name"`
}

type InventoryItem struct {
	ID       int64  `json:"id"`
	Product  string `json:"product"`
	Stock    int    `json:"stock"`
	LowStock bool   `json:"low_stock"`
}

type OrderRow struct {
	ID       int64           `json:"id"`
	Customer string          `json:"customer"`
	Total    string          `json:"total"`
	Amount   decimal.Decimal `json:"amount"`
	Status   OrderStatus     `json:"status"`
	Date     string          `json:"date"`
}

type SalesSummary struct {
	TotalSales    decimal.Decimal `json:"total_sales"`
	Orders        int             `json:"orders"`
	ThisMonth     decimal.Decimal `json:"this_month"`
	LastMonth     decimal.Decimal `json:"last_month"`
	GrowthPercent decimal.Decimal `json:"growth_percent"`
}

type DashboardStats struct {
	Customers        int `json:"customers"`
	Products         int `json:"products"`
	Orders           int `json:"orders"`
	InventoryStock   int `json:"inventory_stock"`
	LowStockProducts int `json:"low_stock_products"`
}

type DailySales struct {
	Date   string          `json:"date"`
	Orders int             `json:"orders"`
	Total  decimal.Decimal `json:"total"`
}

type ReportOverview struct {
	GeneratedAt time.Time      `json:"generated_at"`
	Summary     SalesSummary   `json:"summary"`
	Dashboard   DashboardStats `json:"dashboard"`
	Daily       []DailySales   `json:"daily"`
}

type AuditLog struct {
	ID            string    `json:"id"`
	ActorUsername string    `json:"actor_username"`
	ActorRole     string    `json:"actor_role"`
	Action        string    `json:"action"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Detail        string    `json:"detail"`
	CreatedAt     time.Time `json:"created_at"`
}

type Actor struct {
	Username string `json:"username"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Username    string `json:"username"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expires_at"`
}

type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"-"`
	Role      string    `json:"role"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}
