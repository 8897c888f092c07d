package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

// Coupon types and statuses.
const (
	CouponTypePercent = "percent"
	CouponTypeFixed   = "fixed"

	CouponStatusActive = "active"
	CouponStatusPaused = "paused"
)

// Coupon holds a promotion code and its eligibility rules. Codes are
// stored upper-cased so uniqueness is case-insensitive. Coupons are never
// deleted; they are paused via Status.
type Coupon struct {
	BaseModel
	Code                  string         `gorm:"uniqueIndex" json:"code"`
	Type                  string         `json:"type"`
	Value                 float64        `json:"value"`
	ValidFrom             *time.Time     `json:"valid_from"`
	ValidTo               *time.Time     `json:"valid_to"`
	MinSubtotal           float64        `json:"min_subtotal"`
	MaxUses               int            `json:"max_uses"`
	PerUserLimit          int            `json:"per_user_limit"`
	AllowedThemes         pq.StringArray `gorm:"type:text[]" json:"allowed_themes"`
	DisallowedProductRefs pq.StringArray `gorm:"type:text[]" json:"disallowed_product_refs"`
	Stackable             bool           `json:"stackable"`
	Status                string         `json:"status"`
}

// CouponUsage records one successful application of a coupon to an order.
// The composite unique index enforces at most one row per (coupon, order).
type CouponUsage struct {
	BaseModel
	CouponID uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_coupon_usage_order;index" json:"coupon_id"`
	UserID   uuid.UUID `gorm:"type:uuid;index" json:"user_id"`
	OrderID  uuid.UUID `gorm:"type:uuid;uniqueIndex:idx_coupon_usage_order" json:"order_id"`
}
