package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/brickline/internal/models"
	"github.com/example/brickline/internal/utils"
)

// Coupon failure codes, stable across releases.
const (
	CodeCouponInvalid       = "COUPON_INVALID"
	CodeCouponExpired       = "COUPON_EXPIRED"
	CodeCouponLimitReached  = "COUPON_LIMIT_REACHED"
	CodeCouponNotApplicable = "COUPON_NOT_APPLICABLE"
	CodeCouponMinSubtotal   = "COUPON_MIN_SUBTOTAL"
)

// PricedCartItem is one cart line with the product facts the coupon rules
// need, snapshotted by the caller.
type PricedCartItem struct {
	ProductID    uuid.UUID
	ItemCode     string
	Theme        string
	AllowCoupons bool
	Quantity     int
	UnitPrice    float64
	LineTotal    float64
}

// CouponUsageCounts carries the usage tallies the engine consults. The
// engine itself owns no mutable state.
type CouponUsageCounts struct {
	Global int64
	ByUser int64
}

// CouponResult is the outcome of validation plus pricing. On failure only
// Code and Message are set; on success the priced totals are populated.
type CouponResult struct {
	OK         bool    `json:"ok"`
	Code       string  `json:"code,omitempty"`
	Message    string  `json:"message,omitempty"`
	Subtotal   float64 `json:"subtotal"`
	Discount   float64 `json:"discount"`
	GrandTotal float64 `json:"grand_total"`
}

// CartSubtotal sums line totals.
func CartSubtotal(cart []PricedCartItem) float64 {
	var subtotal float64
	for _, item := range cart {
		subtotal += item.LineTotal
	}
	return subtotal
}

// EvaluateCoupon runs the fixed validation pipeline and, if every rule
// passes, prices the discount. Checks run in order and short-circuit at
// the first failure.
func EvaluateCoupon(coupon models.Coupon, usage CouponUsageCounts, cart []PricedCartItem, now time.Time) CouponResult {
	if coupon.Status != models.CouponStatusActive {
		return couponFailure(CodeCouponInvalid, "coupon is not active")
	}

	if coupon.ValidFrom != nil && now.Before(*coupon.ValidFrom) {
		return couponFailure(CodeCouponExpired, "coupon is not yet valid")
	}
	if coupon.ValidTo != nil && now.After(*coupon.ValidTo) {
		return couponFailure(CodeCouponExpired, "coupon has expired")
	}

	if coupon.MaxUses > 0 && usage.Global >= int64(coupon.MaxUses) {
		return couponFailure(CodeCouponLimitReached, "coupon usage limit reached")
	}
	if coupon.PerUserLimit > 0 && usage.ByUser >= int64(coupon.PerUserLimit) {
		return couponFailure(CodeCouponLimitReached, "per-user coupon limit reached")
	}

	if len(cart) == 0 {
		return couponFailure(CodeCouponNotApplicable, "cart is empty")
	}

	subtotal := CartSubtotal(cart)
	if coupon.MinSubtotal > 0 && subtotal < coupon.MinSubtotal {
		return couponFailure(CodeCouponMinSubtotal,
			fmt.Sprintf("cart subtotal must be at least %.2f", coupon.MinSubtotal))
	}

	for _, item := range cart {
		if !item.AllowCoupons {
			return couponFailure(CodeCouponNotApplicable, "a product in the cart does not accept coupons")
		}
	}

	for _, item := range cart {
		if couponRefMatches(coupon.DisallowedProductRefs, item) {
			return couponFailure(CodeCouponNotApplicable, "a product in the cart is excluded from this coupon")
		}
	}

	if len(coupon.AllowedThemes) > 0 && !cartHasAllowedTheme(coupon.AllowedThemes, cart) {
		return couponFailure(CodeCouponNotApplicable, "coupon does not apply to any product in the cart")
	}

	var discount float64
	switch coupon.Type {
	case models.CouponTypeFixed:
		discount = coupon.Value
		if discount > subtotal {
			discount = subtotal
		}
		discount = utils.RoundHalfEven(discount)
	case models.CouponTypePercent:
		discount = utils.RoundHalfEven(subtotal * coupon.Value / 100)
	default:
		return couponFailure(CodeCouponInvalid, "unknown coupon type")
	}

	return CouponResult{
		OK:         true,
		Subtotal:   subtotal,
		Discount:   discount,
		GrandTotal: utils.RoundHalfEven(subtotal - discount),
	}
}

func couponFailure(code, message string) CouponResult {
	return CouponResult{Code: code, Message: message}
}

func couponRefMatches(refs []string, item PricedCartItem) bool {
	for _, ref := range refs {
		if strings.EqualFold(ref, item.ProductID.String()) || strings.EqualFold(ref, item.ItemCode) {
			return true
		}
	}
	return false
}

func cartHasAllowedTheme(themes []string, cart []PricedCartItem) bool {
	for _, item := range cart {
		for _, theme := range themes {
			if strings.EqualFold(theme, item.Theme) {
				return true
			}
		}
	}
	return false
}
