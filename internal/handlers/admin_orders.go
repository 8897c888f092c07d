package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/brickline/internal/middleware"
	"github.com/example/brickline/internal/models"
	"github.com/example/brickline/internal/services"
	"github.com/example/brickline/internal/utils"
)

// AdminOrderHandler exposes the back-office order operations.
type AdminOrderHandler struct {
	db     *gorm.DB
	orders *services.OrderService
}

func NewAdminOrderHandler(db *gorm.DB, orders *services.OrderService) *AdminOrderHandler {
	return &AdminOrderHandler{db: db, orders: orders}
}

// ListOrders returns all orders with optional status filter and
// order-number search.
func (h *AdminOrderHandler) ListOrders(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)
	query := h.db.Model(&models.Order{})

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}
	if search := c.Query("search"); search != "" {
		query = query.Where("order_number ILIKE ?", "%"+search+"%")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return err
	}

	var orders []models.Order
	if err := query.Preload("Items").Preload("Payment").
		Order("placed_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&orders).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    orders,
		"pagination": fiber.Map{
			"current_page":   pg.Page,
			"items_per_page": pg.Limit,
			"total_items":    total,
		},
	})
}

// GetOrder returns a single order with full history, regardless of owner.
func (h *AdminOrderHandler) GetOrder(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	order, err := h.orders.GetOrder(c.Context(), id)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": order})
}

type transitionRequest struct {
	To   string `json:"to" validate:"required"`
	Note string `json:"note"`
}

// Transition moves an order to a new status through the admin table.
func (h *AdminOrderHandler) Transition(c *fiber.Ctx) error {
	actorID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req transitionRequest
	if err := utils.ParseAndValidate(c, &req); err != nil {
		return err
	}

	order, err := h.orders.Transition(c.Context(), id, req.To, req.Note, actorID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": order})
}

type shipRequest struct {
	Carrier      string `json:"carrier" validate:"required"`
	TrackingCode string `json:"tracking_code" validate:"required"`
}

// MarkShipped records carrier and tracking data and ships the order.
func (h *AdminOrderHandler) MarkShipped(c *fiber.Ctx) error {
	actorID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req shipRequest
	if err := utils.ParseAndValidate(c, &req); err != nil {
		return err
	}

	order, err := h.orders.MarkShipped(c.Context(), id, req.Carrier, req.TrackingCode, actorID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": order})
}

type refundRequest struct {
	Amount float64 `json:"amount" validate:"required,gt=0"`
	Reason string  `json:"reason" validate:"required"`
}

// Refund records a refund against the order's payment. A full refund also
// moves the order to refunded.
func (h *AdminOrderHandler) Refund(c *fiber.Ctx) error {
	actorID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}

	var req refundRequest
	if err := utils.ParseAndValidate(c, &req); err != nil {
		return err
	}

	order, err := h.orders.Refund(c.Context(), id, req.Amount, req.Reason, actorID)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"success": true, "data": order})
}
