package handlers

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/example/brickline/internal/models"
	"github.com/example/brickline/internal/utils"
)

// CouponHandler manages promotion codes.
type CouponHandler struct {
	db *gorm.DB
}

func NewCouponHandler(db *gorm.DB) *CouponHandler {
	return &CouponHandler{db: db}
}

type couponRequest struct {
	Code                  string     `json:"code" validate:"required"`
	Type                  string     `json:"type" validate:"required,oneof=percent fixed"`
	Value                 float64    `json:"value" validate:"required,gt=0"`
	ValidFrom             *time.Time `json:"valid_from"`
	ValidTo               *time.Time `json:"valid_to"`
	MinSubtotal           float64    `json:"min_subtotal" validate:"gte=0"`
	MaxUses               int        `json:"max_uses" validate:"gte=0"`
	PerUserLimit          int        `json:"per_user_limit" validate:"gte=0"`
	AllowedThemes         []string   `json:"allowed_themes"`
	DisallowedProductRefs []string   `json:"disallowed_product_refs"`
	Stackable             bool       `json:"stackable"`
}

// Create registers a new coupon. The code is stored upper-cased.
func (h *CouponHandler) Create(c *fiber.Ctx) error {
	var req couponRequest
	if err := utils.ParseAndValidate(c, &req); err != nil {
		return err
	}

	if req.Type == models.CouponTypePercent && req.Value > 100 {
		return fiber.NewError(fiber.StatusBadRequest, "percent value cannot exceed 100")
	}

	coupon := models.Coupon{
		Code:                  strings.ToUpper(strings.TrimSpace(req.Code)),
		Type:                  req.Type,
		Value:                 req.Value,
		ValidFrom:             req.ValidFrom,
		ValidTo:               req.ValidTo,
		MinSubtotal:           req.MinSubtotal,
		MaxUses:               req.MaxUses,
		PerUserLimit:          req.PerUserLimit,
		AllowedThemes:         pq.StringArray(req.AllowedThemes),
		DisallowedProductRefs: pq.StringArray(req.DisallowedProductRefs),
		Stackable:             req.Stackable,
		Status:                models.CouponStatusActive,
	}

	if err := h.db.Create(&coupon).Error; err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return fiber.NewError(fiber.StatusConflict, "coupon code already exists")
		}
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": coupon})
}

type couponUpdateRequest struct {
	Value        *float64   `json:"value" validate:"omitempty,gt=0"`
	ValidFrom    *time.Time `json:"valid_from"`
	ValidTo      *time.Time `json:"valid_to"`
	MinSubtotal  *float64   `json:"min_subtotal" validate:"omitempty,gte=0"`
	MaxUses      *int       `json:"max_uses" validate:"omitempty,gte=0"`
	PerUserLimit *int       `json:"per_user_limit" validate:"omitempty,gte=0"`
	Status       *string    `json:"status" validate:"omitempty,oneof=active paused"`
}

// Update edits mutable coupon fields. Code and type are immutable once
// the coupon exists; pausing goes through Status.
func (h *CouponHandler) Update(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req couponUpdateRequest
	if err := utils.ParseAndValidate(c, &req); err != nil {
		return err
	}

	var coupon models.Coupon
	if err := h.db.First(&coupon, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "coupon not found")
		}
		return err
	}

	updates := map[string]any{}
	if req.Value != nil {
		if coupon.Type == models.CouponTypePercent && *req.Value > 100 {
			return fiber.NewError(fiber.StatusBadRequest, "percent value cannot exceed 100")
		}
		updates["value"] = *req.Value
	}
	if req.ValidFrom != nil {
		updates["valid_from"] = *req.ValidFrom
	}
	if req.ValidTo != nil {
		updates["valid_to"] = *req.ValidTo
	}
	if req.MinSubtotal != nil {
		updates["min_subtotal"] = *req.MinSubtotal
	}
	if req.MaxUses != nil {
		updates["max_uses"] = *req.MaxUses
	}
	if req.PerUserLimit != nil {
		updates["per_user_limit"] = *req.PerUserLimit
	}
	if req.Status != nil {
		updates["status"] = *req.Status
	}

	if len(updates) > 0 {
		if err := h.db.Model(&coupon).Updates(updates).Error; err != nil {
			return err
		}
	}

	return c.JSON(fiber.Map{"success": true, "data": coupon})
}

// List returns all coupons with their global usage counts.
func (h *CouponHandler) List(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Coupon{})

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var coupons []models.Coupon
	if err := query.Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&coupons).Error; err != nil {
		return err
	}

	type couponWithUsage struct {
		models.Coupon
		UsedCount int64 `json:"used_count"`
	}

	data := make([]couponWithUsage, 0, len(coupons))
	for _, coupon := range coupons {
		var used int64
		if err := h.db.Model(&models.CouponUsage{}).
			Where("coupon_id = ?", coupon.ID).
			Count(&used).Error; err != nil {
			return err
		}
		data = append(data, couponWithUsage{Coupon: coupon, UsedCount: used})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    data,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

// Get returns a single coupon by id or code.
func (h *CouponHandler) Get(c *fiber.Ctx) error {
	param := c.Params("id")

	var coupon models.Coupon
	var err error
	if id, parseErr := uuid.Parse(param); parseErr == nil {
		err = h.db.First(&coupon, "id = ?", id).Error
	} else {
		err = h.db.First(&coupon, "code = ?", strings.ToUpper(param)).Error
	}
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "coupon not found")
		}
		return err
	}

	var used int64
	if err := h.db.Model(&models.CouponUsage{}).
		Where("coupon_id = ?", coupon.ID).
		Count(&used).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"coupon":     coupon,
			"used_count": used,
		},
	})
}

// Usages lists the redemption rows for a coupon, newest first.
func (h *CouponHandler) Usages(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	pg := utils.ParsePagination(c)

	var total int64
	if err := h.db.Model(&models.CouponUsage{}).
		Where("coupon_id = ?", id).
		Count(&total).Error; err != nil {
		return err
	}

	var usages []models.CouponUsage
	if err := h.db.Where("coupon_id = ?", id).
		Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&usages).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    usages,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}
