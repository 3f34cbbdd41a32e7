package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type Role string

const (
	RoleHO     Role = "ho"
	RoleOutlet Role = "outlet"
)

func (r Role) Valid() bool {
	return r == RoleHO || r == RoleOutlet
}

type OrderStatus string

const (
	OrderStatusPending OrderStatus = "pending"
	OrderStatusPaid    OrderStatus = "paid"
	OrderStatusShipped OrderStatus = "shipped"
)

// OrderStatuses lists every accepted status in display order.
var OrderStatuses = []OrderStatus{OrderStatusPending, OrderStatusPaid, OrderStatusShipped}

func (s OrderStatus) Valid() bool {
	for _, v := range OrderStatuses {
		if s == v {
			return true
		}
	}
	return false
}

type User struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         Role      `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type Product struct {
	ID        int64           `json:"id"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Stock     int             `json:"stock"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Version   int             `json:"version"`
}

// ProductSummary is the product as seen from a historical order item. It
// still resolves after the product has been removed from the catalog.
type ProductSummary struct {
	ID      int64           `json:"id"`
	Name    string          `json:"name"`
	Price   decimal.Decimal `json:"price"`
	Deleted bool            `json:"deleted,omitempty"`
}

type OutletSummary struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type Order struct {
	ID         int64           `json:"id"`
	OutletID   int64           `json:"outlet_id"`
	TotalPrice decimal.Decimal `json:"total_price"`
	Status     OrderStatus     `json:"status"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
	Outlet     *OutletSummary  `json:"outlet,omitempty"`
	Items      []OrderItem     `json:"items"`
}

type OrderItem struct {
	ID        int64           `json:"id"`
	OrderID   int64           `json:"order_id"`
	ProductID int64           `json:"product_id"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
	Product   *ProductSummary `json:"product,omitempty"`
}

// LineTotal is quantity times the captured unit price.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// ItemRequest is one requested (product, quantity) pair.
type ItemRequest struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type DashboardSummary struct {
	TotalProducts  int64           `json:"total_products"`
	TotalOrders    int64           `json:"total_orders"`
	TotalRevenue   decimal.Decimal `json:"total_revenue"`
	OrdersByStatus StatusCounts    `json:"orders_by_status"`
}

type StatusCounts struct {
	Pending int64 `json:"pending"`
	Paid    int64 `json:"paid"`
	Shipped int64 `json:"shipped"`
}
