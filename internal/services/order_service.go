package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/brickline/internal/models"
	"github.com/example/brickline/internal/utils"
)

// refundEpsilon absorbs float noise when comparing a refund amount against
// the order total.
const refundEpsilon = 1e-6

// holdingStatuses are the order statuses whose line items count as
// reserved inventory.
var holdingStatuses = []string{
	models.OrderStatusPending,
	models.OrderStatusPaid,
	models.OrderStatusPicking,
}

// adminTransitions is the table exposed to the admin transition endpoint.
// pending->paid is deliberately absent: it is reachable only through the
// payment webhook reconciler.
var adminTransitions = map[string][]string{
	models.OrderStatusPending: {models.OrderStatusCanceled},
	models.OrderStatusPaid:    {models.OrderStatusPicking, models.OrderStatusCanceled},
	models.OrderStatusPicking: {models.OrderStatusShipped, models.OrderStatusCanceled},
	models.OrderStatusShipped: {models.OrderStatusDelivered},
}

// lifecycleTransitions is the full walk the status-history invariant
// allows, covering admin moves plus the system-only edges (payment
// approval, payment-driven cancel, refunds, mark-shipped from paid).
var lifecycleTransitions = map[string][]string{
	models.OrderStatusPending:   {models.OrderStatusPaid, models.OrderStatusCanceled, models.OrderStatusRefunded},
	models.OrderStatusPaid:      {models.OrderStatusPicking, models.OrderStatusShipped, models.OrderStatusCanceled, models.OrderStatusRefunded},
	models.OrderStatusPicking:   {models.OrderStatusShipped, models.OrderStatusCanceled, models.OrderStatusRefunded},
	models.OrderStatusShipped:   {models.OrderStatusDelivered, models.OrderStatusRefunded},
	models.OrderStatusDelivered: {models.OrderStatusRefunded},
	models.OrderStatusCanceled:  {models.OrderStatusRefunded},
}

// AdminCanTransition reports whether the admin endpoint may move an order
// from one status to another.
func AdminCanTransition(from, to string) bool {
	return containsStatus(adminTransitions[from], to)
}

// CanTransition reports whether any path (admin or system) may move an
// order from one status to another.
func CanTransition(from, to string) bool {
	return containsStatus(lifecycleTransitions[from], to)
}

// IsTerminalStatus reports whether no further transition leaves a status.
func IsTerminalStatus(status string) bool {
	switch status {
	case models.OrderStatusDelivered, models.OrderStatusRefunded:
		return true
	}
	return false
}

func containsStatus(list []string, status string) bool {
	for _, s := range list {
		if s == status {
			return true
		}
	}
	return false
}

// OrderService owns the order lifecycle state machine.
type OrderService struct {
	db       *gorm.DB
	telegram *TelegramService
}

func NewOrderService(db *gorm.DB, telegram *TelegramService) *OrderService {
	return &OrderService{db: db, telegram: telegram}
}

// CartItemInput is one requested line of a checkout.
type CartItemInput struct {
	ProductID uuid.UUID
	Quantity  int
}

// CreateOrderInput carries a checkout request into the service.
type CreateOrderInput struct {
	Items          []CartItemInput
	CouponCode     string
	Currency       string
	Notes          string
	IdempotencyKey string
}

// CreateOrder prices the cart (applying a coupon when given), verifies
// availability, and persists the order with its line items, coupon usage,
// and status-history head in a single transaction. Replays with the same
// idempotency key return the original order.
func (s *OrderService) CreateOrder(ctx context.Context, userID uuid.UUID, in CreateOrderInput) (*models.Order, error) {
	if len(in.Items) == 0 {
		return nil, ErrCartEmpty
	}

	orderID := uuid.New()
	resultID := orderID

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.IdempotencyKey != "" {
			key := CallerIdempotencyKey(in.IdempotencyKey, EndpointCreateOrder, userID.String())
			replay, existing, err := ReserveIdempotencyKey(tx, key, EndpointCreateOrder, orderID.String())
			if err != nil {
				return err
			}
			if replay {
				prior, err := uuid.Parse(existing.ResultRef)
				if err != nil {
					return fmt.Errorf("idempotency record %s holds invalid result ref: %w", existing.ID, err)
				}
				resultID = prior
				return nil
			}
		}

		order, cart, err := s.buildOrder(tx, orderID, userID, in)
		if err != nil {
			return err
		}

		if in.CouponCode != "" {
			if err := s.applyCoupon(tx, order, userID, in.CouponCode, cart); err != nil {
				return err
			}
		}
		order.GrandTotal = utils.RoundHalfEven(order.Subtotal - order.DiscountTotal)

		if err := s.checkAvailability(tx, in.Items); err != nil {
			return err
		}

		if err := tx.Create(order).Error; err != nil {
			return err
		}

		if order.CouponID != nil {
			usage := models.CouponUsage{
				CouponID: *order.CouponID,
				UserID:   userID,
				OrderID:  order.ID,
			}
			if err := tx.Create(&usage).Error; err != nil {
				return err
			}
		}

		head := models.OrderStatusHistory{
			OrderID:  order.ID,
			ToStatus: models.OrderStatusPending,
			ActorID:  &userID,
			Note:     "order placed",
		}
		return tx.Create(&head).Error
	})
	if err != nil {
		return nil, err
	}

	order, err := s.GetOrder(ctx, resultID)
	if err != nil {
		return nil, err
	}

	if resultID == orderID && s.telegram != nil {
		go s.notifyNewOrder(*order)
	}

	return order, nil
}

// buildOrder snapshots products into line items and computes the subtotal.
func (s *OrderService) buildOrder(tx *gorm.DB, orderID, userID uuid.UUID, in CreateOrderInput) (*models.Order, []PricedCartItem, error) {
	ids := make([]uuid.UUID, 0, len(in.Items))
	for _, item := range in.Items {
		if item.Quantity <= 0 {
			return nil, nil, ErrCartEmpty
		}
		ids = append(ids, item.ProductID)
	}

	var products []models.Product
	if err := tx.Where("id IN ?", ids).Find(&products).Error; err != nil {
		return nil, nil, err
	}
	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	order := &models.Order{
		BaseModel: models.BaseModel{ID: orderID},
		UserID:    userID,
		Status:    models.OrderStatusPending,
		PlacedAt:  time.Now(),
		Currency:  in.Currency,
		Notes:     in.Notes,
	}
	if order.Currency == "" {
		order.Currency = "USD"
	}
	order.OrderNumber = generateOrderNumber()

	cart := make([]PricedCartItem, 0, len(in.Items))
	var subtotal float64
	for _, item := range in.Items {
		product, ok := byID[item.ProductID]
		if !ok {
			return nil, nil, ErrProductNotFound
		}

		lineTotal := utils.RoundHalfEven(product.BasePrice * float64(item.Quantity))
		productID := product.ID
		order.Items = append(order.Items, models.OrderLineItem{
			ProductID:   &productID,
			ProductName: product.Name,
			ItemCode:    product.ItemCode,
			Quantity:    item.Quantity,
			UnitPrice:   product.BasePrice,
			LineTotal:   lineTotal,
		})
		cart = append(cart, PricedCartItem{
			ProductID:    product.ID,
			ItemCode:     product.ItemCode,
			Theme:        product.Theme,
			AllowCoupons: product.AllowCoupons,
			Quantity:     item.Quantity,
			UnitPrice:    product.BasePrice,
			LineTotal:    lineTotal,
		})
		subtotal += lineTotal
	}

	order.Subtotal = utils.RoundHalfEven(subtotal)
	return order, cart, nil
}

func (s *OrderService) applyCoupon(tx *gorm.DB, order *models.Order, userID uuid.UUID, code string, cart []PricedCartItem) error {
	var coupon models.Coupon
	normalized := strings.ToUpper(strings.TrimSpace(code))
	if err := tx.Where("code = ?", normalized).First(&coupon).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrCouponNotFound
		}
		return err
	}

	var usage CouponUsageCounts
	if err := tx.Model(&models.CouponUsage{}).
		Where("coupon_id = ?", coupon.ID).
		Count(&usage.Global).Error; err != nil {
		return err
	}
	if err := tx.Model(&models.CouponUsage{}).
		Where("coupon_id = ? AND user_id = ?", coupon.ID, userID).
		Count(&usage.ByUser).Error; err != nil {
		return err
	}

	result := EvaluateCoupon(coupon, usage, cart, time.Now())
	if !result.OK {
		return CouponError(result.Code, result.Message)
	}

	couponID := coupon.ID
	order.CouponID = &couponID
	order.CouponCode = coupon.Code
	order.DiscountTotal = result.Discount
	return nil
}

// checkAvailability locks each tracked inventory row and verifies the
// requested quantity fits within stock minus the derived reservation.
// Quantities are summed per product first, so a cart splitting one product
// across lines is checked against availability once. Products without an
// inventory record are untracked and pass.
func (s *OrderService) checkAvailability(tx *gorm.DB, items []CartItemInput) error {
	for _, item := range aggregateCartQuantities(items) {
		var record models.InventoryRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("product_id = ?", item.ProductID).
			First(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return err
		}

		reserved, err := ReservedQuantity(tx, item.ProductID)
		if err != nil {
			return err
		}

		available := record.Stock - reserved
		if item.Quantity > available {
			var product models.Product
			name := item.ProductID.String()
			if err := tx.First(&product, "id = ?", item.ProductID).Error; err == nil {
				name = product.Name
			}
			return ErrInsufficientStock(name, item.Quantity, available)
		}
	}
	return nil
}

// aggregateCartQuantities merges duplicate product lines, keeping first-seen
// order.
func aggregateCartQuantities(items []CartItemInput) []CartItemInput {
	index := make(map[uuid.UUID]int, len(items))
	merged := make([]CartItemInput, 0, len(items))
	for _, item := range items {
		if pos, ok := index[item.ProductID]; ok {
			merged[pos].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(merged)
		merged = append(merged, item)
	}
	return merged
}

// Transition applies an admin- or system-initiated status move through the
// admin table. The current status is re-read under a row lock so a losing
// concurrent caller is rejected against the up-to-date state.
func (s *OrderService) Transition(ctx context.Context, orderID uuid.UUID, to, note string, actorID uuid.UUID) (*models.Order, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if !AdminCanTransition(order.Status, to) {
			return ErrInvalidTransition(order.Status, to)
		}
		return applyTransition(tx, order, to, &actorID, note)
	})
	if err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, orderID)
}

// MarkShipped records carrier/tracking data and moves the order to
// shipped. Valid only from paid or picking. The outbound notification is
// fire-and-forget and never rolls back the transition.
func (s *OrderService) MarkShipped(ctx context.Context, orderID uuid.UUID, carrier, tracking string, actorID uuid.UUID) (*models.Order, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderStatusPaid && order.Status != models.OrderStatusPicking {
			return ErrInvalidTransition(order.Status, models.OrderStatusShipped)
		}

		if err := tx.Model(order).Updates(map[string]any{
			"shipping_carrier": carrier,
			"tracking_code":    tracking,
		}).Error; err != nil {
			return err
		}

		return applyTransition(tx, order, models.OrderStatusShipped, &actorID,
			fmt.Sprintf("shipped via %s (%s)", carrier, tracking))
	})
	if err != nil {
		return nil, err
	}

	order, err := s.GetOrder(ctx, orderID)
	if err != nil {
		return nil, err
	}

	if s.telegram != nil {
		go func(o models.Order) {
			if err := s.telegram.NotifyOrderShipped(o.OrderNumber, carrier, tracking); err != nil {
				log.Printf("[Order] shipment notification failed for %s: %v", o.OrderNumber, err)
			}
		}(*order)
	}

	return order, nil
}

// Refund marks the attached payment refunded. A refund covering the order
// total (within epsilon) moves the order to refunded; a partial refund
// leaves the status unchanged but still appends a history row carrying the
// resulting (unchanged) status.
func (s *OrderService) Refund(ctx context.Context, orderID uuid.UUID, amount float64, reason string, actorID uuid.UUID) (*models.Order, error) {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := lockOrder(tx, orderID)
		if err != nil {
			return err
		}

		var payment models.Payment
		if err := tx.Where("order_id = ?", order.ID).First(&payment).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPaymentNotFound
			}
			return err
		}

		if err := tx.Model(&payment).Update("status", models.PaymentStatusRefunded).Error; err != nil {
			return err
		}
		if err := tx.Model(order).Update("payment_status", models.PaymentStatusRefunded).Error; err != nil {
			return err
		}

		full := amount+refundEpsilon >= order.GrandTotal
		if full && CanTransition(order.Status, models.OrderStatusRefunded) {
			return applyTransition(tx, order, models.OrderStatusRefunded, &actorID, reason)
		}

		// Partial refund: same-to-same history row, status untouched.
		history := models.OrderStatusHistory{
			OrderID:    order.ID,
			FromStatus: order.Status,
			ToStatus:   order.Status,
			ActorID:    &actorID,
			Note:       fmt.Sprintf("partial refund %.2f: %s", amount, reason),
		}
		return tx.Create(&history).Error
	})
	if err != nil {
		return nil, err
	}
	return s.GetOrder(ctx, orderID)
}

// GetOrder returns a fully hydrated order.
func (s *OrderService) GetOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).
		Preload("Items").
		Preload("Payment").
		Preload("StatusHistory", func(db *gorm.DB) *gorm.DB {
			return db.Order("created_at asc")
		}).
		First(&order, "id = ?", orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

func (s *OrderService) notifyNewOrder(order models.Order) {
	items := make([]OrderItemNotification, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemNotification{
			Name:     item.ProductName,
			Quantity: item.Quantity,
			Price:    item.UnitPrice,
		})
	}
	err := s.telegram.NotifyNewOrder(OrderNotification{
		OrderNumber: order.OrderNumber,
		Items:       items,
		GrandTotal:  order.GrandTotal,
		Currency:    order.Currency,
		Status:      order.Status,
	})
	if err != nil {
		log.Printf("[Order] new-order notification failed for %s: %v", order.OrderNumber, err)
	}
}

// lockOrder loads an order under FOR UPDATE so status validation sees the
// committed current state.
func lockOrder(tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&order, "id = ?", orderID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOrderNotFound
		}
		return nil, err
	}
	return &order, nil
}

// applyTransition is the single authoritative transition function shared
// by the admin path and the webhook reconciler. It validates against the
// lifecycle table, performs status-driven inventory side effects, appends
// exactly one history row, and updates the cached status.
func applyTransition(tx *gorm.DB, order *models.Order, to string, actorID *uuid.UUID, note string) error {
	from := order.Status
	if !CanTransition(from, to) {
		return ErrInvalidTransition(from, to)
	}

	switch to {
	case models.OrderStatusShipped:
		if err := recordStockMovements(tx, order, models.MovementTypeSale, actorID); err != nil {
			return err
		}
	case models.OrderStatusRefunded:
		// Stock comes back only if it already left the warehouse.
		if from == models.OrderStatusShipped || from == models.OrderStatusDelivered {
			if err := recordStockMovements(tx, order, models.MovementTypeReturn, actorID); err != nil {
				return err
			}
		}
	}

	history := models.OrderStatusHistory{
		OrderID:    order.ID,
		FromStatus: from,
		ToStatus:   to,
		ActorID:    actorID,
		Note:       note,
	}
	if err := tx.Create(&history).Error; err != nil {
		return err
	}

	if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).
		Update("status", to).Error; err != nil {
		return err
	}
	order.Status = to
	return nil
}

// recordStockMovements writes one movement per tracked line item and the
// matching stock delta, in the caller's transaction. Sales decrement,
// returns increment.
func recordStockMovements(tx *gorm.DB, order *models.Order, movementType string, actorID *uuid.UUID) error {
	var items []models.OrderLineItem
	if err := tx.Where("order_id = ?", order.ID).Find(&items).Error; err != nil {
		return err
	}

	for _, item := range items {
		if item.ProductID == nil {
			continue
		}

		var record models.InventoryRecord
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("product_id = ?", *item.ProductID).
			First(&record).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			continue
		}
		if err != nil {
			return err
		}

		delta := -item.Quantity
		if movementType == models.MovementTypeReturn {
			delta = item.Quantity
		}

		newStock := record.Stock + delta
		if newStock < 0 {
			return ErrStockNegative
		}

		if err := tx.Model(&record).Update("stock", newStock).Error; err != nil {
			return err
		}

		orderID := order.ID
		movement := models.InventoryMovement{
			ProductID: *item.ProductID,
			Delta:     delta,
			Type:      movementType,
			Reason:    fmt.Sprintf("order %s", order.OrderNumber),
			OrderID:   &orderID,
			ActorID:   actorID,
		}
		if err := tx.Create(&movement).Error; err != nil {
			return err
		}
	}

	return nil
}

// ReservedQuantity derives the reserved units for a product from orders in
// a stock-holding status. Statuses are the source of truth; no separate
// counter is maintained.
func ReservedQuantity(tx *gorm.DB, productID uuid.UUID) (int, error) {
	var reserved int64
	err := tx.Model(&models.OrderLineItem{}).
		Select("COALESCE(SUM(order_line_items.quantity), 0)").
		Joins("JOIN orders ON orders.id = order_line_items.order_id").
		Where("order_line_items.product_id = ? AND orders.status IN ?", productID, holdingStatuses).
		Scan(&reserved).Error
	if err != nil {
		return 0, err
	}
	if reserved > math.MaxInt32 {
		return 0, fmt.Errorf("reserved quantity overflow for product %s", productID)
	}
	return int(reserved), nil
}

// generateOrderNumber folds a UUID fragment into the timestamp so the
// unique index on order_number cannot fail a checkout on a clock collision.
func generateOrderNumber() string {
	return fmt.Sprintf("#%d-%s", time.Now().UnixNano()%1000000000,
		strings.ToUpper(uuid.NewString()[:8]))
}
