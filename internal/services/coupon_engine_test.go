package services

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/brickline/internal/models"
)

func activeCoupon(typ string, value float64) models.Coupon {
	return models.Coupon{
		Type:   typ,
		Value:  value,
		Status: models.CouponStatusActive,
	}
}

func cartLine(theme string, qty int, unitPrice float64) PricedCartItem {
	return PricedCartItem{
		ProductID:    uuid.New(),
		ItemCode:     "BL-" + uuid.NewString()[:8],
		Theme:        theme,
		AllowCoupons: true,
		Quantity:     qty,
		UnitPrice:    unitPrice,
		LineTotal:    unitPrice * float64(qty),
	}
}

func TestEvaluateCouponPercent(t *testing.T) {
	coupon := activeCoupon(models.CouponTypePercent, 10)
	cart := []PricedCartItem{cartLine("City", 2, 15.00)}

	result := EvaluateCoupon(coupon, CouponUsageCounts{}, cart, time.Now())

	require.True(t, result.OK)
	assert.InDelta(t, 30.00, result.Subtotal, 1e-9)
	assert.InDelta(t, 3.00, result.Discount, 1e-9)
	assert.InDelta(t, 27.00, result.GrandTotal, 1e-9)
}

func TestEvaluateCouponFixedCappedAtSubtotal(t *testing.T) {
	coupon := activeCoupon(models.CouponTypeFixed, 50)
	cart := []PricedCartItem{cartLine("City", 2, 15.00)}

	result := EvaluateCoupon(coupon, CouponUsageCounts{}, cart, time.Now())

	require.True(t, result.OK)
	assert.InDelta(t, 30.00, result.Discount, 1e-9)
	assert.InDelta(t, 0.00, result.GrandTotal, 1e-9)
}

func TestEvaluateCouponMinSubtotal(t *testing.T) {
	coupon := activeCoupon(models.CouponTypePercent, 10)
	coupon.MinSubtotal = 50
	cart := []PricedCartItem{cartLine("City", 1, 10.00)}

	result := EvaluateCoupon(coupon, CouponUsageCounts{}, cart, time.Now())

	require.False(t, result.OK)
	assert.Equal(t, CodeCouponMinSubtotal, result.Code)
}

func TestEvaluateCouponThemeRestriction(t *testing.T) {
	coupon := activeCoupon(models.CouponTypePercent, 10)
	coupon.AllowedThemes = []string{"Star Wars"}

	cityOnly := []PricedCartItem{cartLine("City", 1, 20.00)}
	result := EvaluateCoupon(coupon, CouponUsageCounts{}, cityOnly, time.Now())
	require.False(t, result.OK)
	assert.Equal(t, CodeCouponNotApplicable, result.Code)

	mixed := append(cityOnly, cartLine("Star Wars", 1, 40.00))
	result = EvaluateCoupon(coupon, CouponUsageCounts{}, mixed, time.Now())
	assert.True(t, result.OK)
}

func TestEvaluateCouponWindow(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	before := now.Add(-time.Hour)
	after := now.Add(time.Hour)
	cart := []PricedCartItem{cartLine("City", 1, 20.00)}

	notYet := activeCoupon(models.CouponTypePercent, 10)
	notYet.ValidFrom = &after
	result := EvaluateCoupon(notYet, CouponUsageCounts{}, cart, now)
	require.False(t, result.OK)
	assert.Equal(t, CodeCouponExpired, result.Code)

	expired := activeCoupon(models.CouponTypePercent, 10)
	expired.ValidTo = &before
	result = EvaluateCoupon(expired, CouponUsageCounts{}, cart, now)
	require.False(t, result.OK)
	assert.Equal(t, CodeCouponExpired, result.Code)

	open := activeCoupon(models.CouponTypePercent, 10)
	open.ValidFrom = &before
	open.ValidTo = &after
	result = EvaluateCoupon(open, CouponUsageCounts{}, cart, now)
	assert.True(t, result.OK)
}

func TestEvaluateCouponUsageLimits(t *testing.T) {
	cart := []PricedCartItem{cartLine("City", 1, 20.00)}

	coupon := activeCoupon(models.CouponTypePercent, 10)
	coupon.MaxUses = 100
	result := EvaluateCoupon(coupon, CouponUsageCounts{Global: 100}, cart, time.Now())
	require.False(t, result.OK)
	assert.Equal(t, CodeCouponLimitReached, result.Code)

	coupon = activeCoupon(models.CouponTypePercent, 10)
	coupon.PerUserLimit = 1
	result = EvaluateCoupon(coupon, CouponUsageCounts{Global: 5, ByUser: 1}, cart, time.Now())
	require.False(t, result.OK)
	assert.Equal(t, CodeCouponLimitReached, result.Code)

	result = EvaluateCoupon(coupon, CouponUsageCounts{Global: 5, ByUser: 0}, cart, time.Now())
	assert.True(t, result.OK)
}

func TestEvaluateCouponPausedAndUnknownType(t *testing.T) {
	cart := []PricedCartItem{cartLine("City", 1, 20.00)}

	paused := activeCoupon(models.CouponTypePercent, 10)
	paused.Status = models.CouponStatusPaused
	result := EvaluateCoupon(paused, CouponUsageCounts{}, cart, time.Now())
	require.False(t, result.OK)
	assert.Equal(t, CodeCouponInvalid, result.Code)

	odd := activeCoupon("bogof", 1)
	result = EvaluateCoupon(odd, CouponUsageCounts{}, cart, time.Now())
	require.False(t, result.OK)
	assert.Equal(t, CodeCouponInvalid, result.Code)
}

func TestEvaluateCouponProductOptOut(t *testing.T) {
	coupon := activeCoupon(models.CouponTypePercent, 10)

	optedOut := cartLine("City", 1, 20.00)
	optedOut.AllowCoupons = false
	cart := []PricedCartItem{cartLine("City", 1, 10.00), optedOut}

	result := EvaluateCoupon(coupon, CouponUsageCounts{}, cart, time.Now())
	require.False(t, result.OK)
	assert.Equal(t, CodeCouponNotApplicable, result.Code)
}

func TestEvaluateCouponDisallowedRefs(t *testing.T) {
	line := cartLine("City", 1, 20.00)

	byID := activeCoupon(models.CouponTypePercent, 10)
	byID.DisallowedProductRefs = []string{line.ProductID.String()}
	result := EvaluateCoupon(byID, CouponUsageCounts{}, []PricedCartItem{line}, time.Now())
	require.False(t, result.OK)
	assert.Equal(t, CodeCouponNotApplicable, result.Code)

	byCode := activeCoupon(models.CouponTypePercent, 10)
	byCode.DisallowedProductRefs = []string{line.ItemCode}
	result = EvaluateCoupon(byCode, CouponUsageCounts{}, []PricedCartItem{line}, time.Now())
	require.False(t, result.OK)
	assert.Equal(t, CodeCouponNotApplicable, result.Code)
}

func TestEvaluateCouponEmptyCart(t *testing.T) {
	coupon := activeCoupon(models.CouponTypePercent, 10)
	result := EvaluateCoupon(coupon, CouponUsageCounts{}, nil, time.Now())
	require.False(t, result.OK)
	assert.Equal(t, CodeCouponNotApplicable, result.Code)
}

func TestEvaluateCouponDiscountRoundsHalfEven(t *testing.T) {
	// 12.5% of 17.00 is 2.125, which rounds to the even cent.
	coupon := activeCoupon(models.CouponTypePercent, 12.5)
	cart := []PricedCartItem{cartLine("City", 1, 17.00)}

	result := EvaluateCoupon(coupon, CouponUsageCounts{}, cart, time.Now())

	require.True(t, result.OK)
	assert.InDelta(t, 2.12, result.Discount, 1e-9)
	assert.InDelta(t, 14.88, result.GrandTotal, 1e-9)
}
