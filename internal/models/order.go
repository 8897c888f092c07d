package models

import (
	"time"

	"github.com/google/uuid"
)

// Order statuses. Status is a cached pointer to the latest
// OrderStatusHistory entry; the history table is authoritative.
const (
	OrderStatusPending   = "pending"
	OrderStatusPaid      = "paid"
	OrderStatusPicking   = "picking"
	OrderStatusShipped   = "shipped"
	OrderStatusDelivered = "delivered"
	OrderStatusCanceled  = "canceled"
	OrderStatusRefunded  = "refunded"
)

type Order struct {
	BaseModel
	UserID          uuid.UUID            `gorm:"type:uuid;index" json:"user_id"`
	User            *User                `json:"user,omitempty"`
	OrderNumber     string               `gorm:"uniqueIndex" json:"order_number"`
	Status          string               `gorm:"index" json:"status"`
	PaymentStatus   string               `json:"payment_status"`
	PlacedAt        time.Time            `json:"placed_at"`
	Subtotal        float64              `json:"subtotal"`
	DiscountTotal   float64              `json:"discount_total"`
	GrandTotal      float64              `json:"grand_total"`
	Currency        string               `json:"currency"`
	CouponID        *uuid.UUID           `gorm:"type:uuid" json:"coupon_id"`
	CouponCode      string               `json:"coupon_code"`
	ShippingCarrier string               `json:"shipping_carrier"`
	TrackingCode    string               `json:"tracking_code"`
	Notes           string               `json:"notes"`
	Items           []OrderLineItem      `json:"items,omitempty"`
	StatusHistory   []OrderStatusHistory `json:"status_history,omitempty"`
	Payment         *Payment             `json:"payment,omitempty"`
}

// OrderLineItem snapshots product name and price at order time. Immutable
// after creation.
type OrderLineItem struct {
	BaseModel
	OrderID     uuid.UUID  `gorm:"type:uuid;index" json:"order_id"`
	ProductID   *uuid.UUID `gorm:"type:uuid;index" json:"product_id"`
	ProductName string     `json:"product_name"`
	ItemCode    string     `json:"item_code"`
	Quantity    int        `json:"quantity"`
	UnitPrice   float64    `json:"unit_price"`
	LineTotal   float64    `json:"line_total"`
}

// OrderStatusHistory is the append-only transition audit trail. The
// sequence of ToStatus values in creation order is the authoritative
// lifecycle walk for an order.
type OrderStatusHistory struct {
	BaseModel
	OrderID    uuid.UUID  `gorm:"type:uuid;index" json:"order_id"`
	FromStatus string     `json:"from_status"`
	ToStatus   string     `json:"to_status"`
	ActorID    *uuid.UUID `gorm:"type:uuid" json:"actor_id"`
	Note       string     `json:"note"`
}
