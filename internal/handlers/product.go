package handlers

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/brickline/internal/models"
	"github.com/example/brickline/internal/utils"
)

// ProductHandler manages the catalog snapshot the order core sells from.
type ProductHandler struct {
	db *gorm.DB
}

func NewProductHandler(db *gorm.DB) *ProductHandler {
	return &ProductHandler{db: db}
}

// List returns active products for the storefront. Supports ?theme= and
// text search over name and set number.
func (h *ProductHandler) List(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Product{}).Where("is_active = ?", true)

	if theme := c.Query("theme"); theme != "" {
		query = query.Where("theme = ?", theme)
	}
	if search := c.Query("search"); search != "" {
		like := "%" + search + "%"
		query = query.Where("name ILIKE ? OR set_number ILIKE ?", like, like)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var products []models.Product
	if err := query.Order("name asc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&products).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    products,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

// Get returns a single product by id.
func (h *ProductHandler) Get(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var product models.Product
	if err := h.db.First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "product not found")
		}
		return err
	}

	return c.JSON(fiber.Map{"success": true, "data": product})
}

type createProductRequest struct {
	Name              string  `json:"name" validate:"required"`
	ItemCode          string  `json:"item_code" validate:"required"`
	SetNumber         string  `json:"set_number"`
	Theme             string  `json:"theme"`
	BasePrice         float64 `json:"base_price" validate:"required,gt=0"`
	Currency          string  `json:"currency"`
	AllowCoupons      *bool   `json:"allow_coupons"`
	InitialStock      int     `json:"initial_stock" validate:"gte=0"`
	SafetyStock       int     `json:"safety_stock" validate:"gte=0"`
	WarehouseLocation string  `json:"warehouse_location"`
}

// Create registers a product together with its inventory record so stock
// tracking starts at creation.
func (h *ProductHandler) Create(c *fiber.Ctx) error {
	var req createProductRequest
	if err := utils.ParseAndValidate(c, &req); err != nil {
		return err
	}

	product := models.Product{
		Name:         req.Name,
		ItemCode:     req.ItemCode,
		SetNumber:    req.SetNumber,
		Theme:        req.Theme,
		BasePrice:    req.BasePrice,
		Currency:     req.Currency,
		AllowCoupons: true,
		IsActive:     true,
	}
	if req.Currency == "" {
		product.Currency = "USD"
	}
	if req.AllowCoupons != nil {
		product.AllowCoupons = *req.AllowCoupons
	}

	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&product).Error; err != nil {
			return err
		}
		record := models.InventoryRecord{
			ProductID:         product.ID,
			Stock:             req.InitialStock,
			SafetyStock:       req.SafetyStock,
			WarehouseLocation: req.WarehouseLocation,
		}
		return tx.Create(&record).Error
	})
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key") {
			return fiber.NewError(fiber.StatusConflict, "item code already exists")
		}
		return err
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"success": true, "data": product})
}

type updateProductRequest struct {
	Name         *string  `json:"name"`
	Theme        *string  `json:"theme"`
	BasePrice    *float64 `json:"base_price" validate:"omitempty,gt=0"`
	AllowCoupons *bool    `json:"allow_coupons"`
	IsActive     *bool    `json:"is_active"`
}

// Update edits mutable product fields. Item code is immutable; line items
// already reference it as a snapshot.
func (h *ProductHandler) Update(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req updateProductRequest
	if err := utils.ParseAndValidate(c, &req); err != nil {
		return err
	}

	var product models.Product
	if err := h.db.First(&product, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "product not found")
		}
		return err
	}

	updates := map[string]any{}
	if req.Name != nil {
		updates["name"] = *req.Name
	}
	if req.Theme != nil {
		updates["theme"] = *req.Theme
	}
	if req.BasePrice != nil {
		updates["base_price"] = *req.BasePrice
	}
	if req.AllowCoupons != nil {
		updates["allow_coupons"] = *req.AllowCoupons
	}
	if req.IsActive != nil {
		updates["is_active"] = *req.IsActive
	}

	if len(updates) > 0 {
		if err := h.db.Model(&product).Updates(updates).Error; err != nil {
			return err
		}
	}

	return c.JSON(fiber.Map{"success": true, "data": product})
}
