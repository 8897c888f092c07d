package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/example/brickline/internal/middleware"
	"github.com/example/brickline/internal/services"
	"github.com/example/brickline/internal/utils"
)

// InventoryHandler exposes the back-office stock endpoints.
type InventoryHandler struct {
	inventory *services.InventoryService
}

func NewInventoryHandler(inventory *services.InventoryService) *InventoryHandler {
	return &InventoryHandler{inventory: inventory}
}

// List returns the stock projection with derived reserved and available
// quantities. Supports ?search=, ?low_stock=true, and pagination.
func (h *InventoryHandler) List(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)

	views, total, err := h.inventory.List(c.Context(), services.InventoryFilter{
		Query:   c.Query("search"),
		LowOnly: c.Query("low_stock") == "true",
		Limit:   pg.Limit,
		Offset:  pg.Offset,
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    views,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

type adjustStockRequest struct {
	Delta  int    `json:"delta" validate:"required"`
	Reason string `json:"reason" validate:"required"`
}

// AdjustStock applies a signed manual correction to a product's stock.
func (h *InventoryHandler) AdjustStock(c *fiber.Ctx) error {
	actorID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	productID, err := uuid.Parse(c.Params("productId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid product id")
	}

	var req adjustStockRequest
	if err := utils.ParseAndValidate(c, &req); err != nil {
		return err
	}

	record, err := h.inventory.AdjustStock(c.Context(), productID, req.Delta, req.Reason, actorID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": record})
}

type safetyStockRequest struct {
	SafetyStock *int `json:"safety_stock" validate:"required"`
}

// SetSafetyStock updates the low-stock alert threshold for a product.
func (h *InventoryHandler) SetSafetyStock(c *fiber.Ctx) error {
	productID, err := uuid.Parse(c.Params("productId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid product id")
	}

	var req safetyStockRequest
	if err := utils.ParseAndValidate(c, &req); err != nil {
		return err
	}

	record, err := h.inventory.SetSafetyStock(c.Context(), productID, *req.SafetyStock)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": record})
}

// Movements returns the newest movement rows for a product.
func (h *InventoryHandler) Movements(c *fiber.Ctx) error {
	productID, err := uuid.Parse(c.Params("productId"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid product id")
	}

	movements, err := h.inventory.Movements(c.Context(), productID, c.QueryInt("limit"))
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": movements})
}
