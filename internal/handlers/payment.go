package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/example/brickline/internal/config"
	"github.com/example/brickline/internal/middleware"
	"github.com/example/brickline/internal/models"
	"github.com/example/brickline/internal/services"
	"github.com/example/brickline/internal/utils"
)

// PaymentHandler manages payment initiation and the provider webhook.
type PaymentHandler struct {
	db      *gorm.DB
	webhook *services.WebhookService
	cfg     *config.Config
}

func NewPaymentHandler(db *gorm.DB, webhook *services.WebhookService, cfg *config.Config) *PaymentHandler {
	return &PaymentHandler{db: db, webhook: webhook, cfg: cfg}
}

type checkoutRequest struct {
	OrderID string `json:"order_id" validate:"required,uuid4"`
}

// Checkout initiates a payment attempt for a pending order: creates (or
// reuses) the order's Payment row and returns the provider checkout URL.
func (h *PaymentHandler) Checkout(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req checkoutRequest
	if err := utils.ParseAndValidate(c, &req); err != nil {
		return err
	}

	orderID, err := uuid.Parse(req.OrderID)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid order id")
	}

	var order models.Order
	if err := h.db.First(&order, "id = ? AND user_id = ?", orderID, userID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return services.ErrOrderNotFound
		}
		return err
	}

	if order.Status != models.OrderStatusPending {
		return services.ErrInvalidTransition(order.Status, models.OrderStatusPaid)
	}

	var payment models.Payment
	err = h.db.Where("order_id = ?", order.ID).First(&payment).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		payment = models.Payment{
			OrderID:    order.ID,
			Provider:   "brickpay",
			ExternalID: uuid.NewString(),
			Status:     models.PaymentStatusPending,
			Amount:     order.GrandTotal,
			Currency:   order.Currency,
		}
		if err := h.db.Create(&payment).Error; err != nil {
			return err
		}
		if err := h.db.Model(&models.Order{}).Where("id = ?", order.ID).
			Update("payment_status", models.PaymentStatusPending).Error; err != nil {
			return err
		}
	case err != nil:
		return err
	case payment.Status == models.PaymentStatusApproved:
		return fiber.NewError(fiber.StatusConflict, "order is already paid")
	}

	amountCents := int64(payment.Amount * 100)
	payload := fmt.Sprintf("ac.payment_id=%s;a=%d;c=%s", payment.ExternalID, amountCents, order.OrderNumber)
	encoded := base64.StdEncoding.EncodeToString([]byte(payload))

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"payment_id":   payment.ExternalID,
			"checkout_url": strings.TrimRight(h.cfg.CheckoutBaseURL, "/") + "/" + encoded,
		},
	})
}

type webhookPayload struct {
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
	Time      int64  `json:"time"`
}

// Webhook ingests a provider payment-status event. The signature has
// already been verified by middleware; the same payload delivered twice
// produces the same effect once.
func (h *PaymentHandler) Webhook(c *fiber.Ctx) error {
	var payload webhookPayload
	if err := json.Unmarshal(c.Body(), &payload); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid webhook payload")
	}
	if payload.PaymentID == "" || payload.Status == "" {
		return fiber.NewError(fiber.StatusBadRequest, "payment_id and status are required")
	}

	raw := make([]byte, len(c.Body()))
	copy(raw, c.Body())

	result, err := h.webhook.HandleEvent(c.Context(), services.WebhookEvent{
		PaymentID: payload.PaymentID,
		Status:    payload.Status,
		Time:      payload.Time,
		Raw:       raw,
		Signature: middleware.GetWebhookSignature(c),
	})
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    result,
	})
}
