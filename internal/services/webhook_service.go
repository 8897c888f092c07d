package services

import (
	"context"
	"errors"
	"log"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/brickline/internal/models"
)

// Provider event statuses that drive order transitions. Anything else is
// stored on the payment but leaves the order alone.
const (
	EventStatusApproved  = "approved"
	EventStatusRejected  = "rejected"
	EventStatusCancelled = "cancelled"
	EventStatusRefunded  = "refunded"
	EventStatusPending   = "pending"
)

// WebhookEvent is one inbound provider notification.
type WebhookEvent struct {
	PaymentID string
	Status    string
	Time      int64
	Raw       []byte
	Signature string
}

// WebhookResult reports what applying an event did. Duplicate and Stale
// deliveries are acknowledged successes with no side effect.
type WebhookResult struct {
	Duplicate bool `json:"duplicate"`
	Stale     bool `json:"stale"`
	Applied   bool `json:"applied"`
}

// WebhookService reconciles provider payment events against payment and
// order state.
type WebhookService struct {
	db       *gorm.DB
	telegram *TelegramService
}

func NewWebhookService(db *gorm.DB, telegram *TelegramService) *WebhookService {
	return &WebhookService{db: db, telegram: telegram}
}

// HandleEvent deduplicates, audits, and applies one provider event. The
// idempotency record, the payment-event audit row, and every state
// mutation commit in the same transaction, so a crash cannot leave the
// event seen but unapplied. Safe to call again with the same delivery.
func (s *WebhookService) HandleEvent(ctx context.Context, evt WebhookEvent) (WebhookResult, error) {
	var result WebhookResult
	var notifyOrder *models.Order
	var notifyAmount float64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		key := EventIdempotencyKey(evt.PaymentID, evt.Signature)
		replay, _, err := ReserveIdempotencyKey(tx, key, EndpointPaymentWebhook, evt.PaymentID)
		if err != nil {
			return err
		}
		if replay {
			result.Duplicate = true
			return nil
		}

		var payment models.Payment
		err = tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("external_id = ?", evt.PaymentID).
			First(&payment).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPaymentNotFound
			}
			return err
		}

		stale := evt.Time > 0 && evt.Time < payment.EventSeq
		sameStatus := evt.Status == payment.Status
		applied := !stale && !sameStatus

		event := models.PaymentEvent{
			PaymentID:    payment.ID,
			Status:       evt.Status,
			ProviderTime: evt.Time,
			Payload:      evt.Raw,
			Applied:      applied,
		}
		if err := tx.Create(&event).Error; err != nil {
			return err
		}

		if stale {
			result.Stale = true
			return nil
		}
		if sameStatus {
			return nil
		}

		updates := map[string]any{
			"status":      evt.Status,
			"raw_payload": evt.Raw,
		}
		if evt.Time > payment.EventSeq {
			updates["event_seq"] = evt.Time
		}
		if err := tx.Model(&payment).Updates(updates).Error; err != nil {
			return err
		}

		order, err := lockOrder(tx, payment.OrderID)
		if err != nil {
			return err
		}

		switch evt.Status {
		case EventStatusApproved:
			if err := setOrderPaymentStatus(tx, order, models.PaymentStatusApproved); err != nil {
				return err
			}
			if order.Status == models.OrderStatusPending {
				if err := applyTransition(tx, order, models.OrderStatusPaid, nil, "payment approved"); err != nil {
					return err
				}
			}
			notifyOrder = order
			notifyAmount = payment.Amount
		case EventStatusRejected, EventStatusCancelled:
			if err := setOrderPaymentStatus(tx, order, models.PaymentStatusRejected); err != nil {
				return err
			}
			if CanTransition(order.Status, models.OrderStatusCanceled) {
				if err := applyTransition(tx, order, models.OrderStatusCanceled, nil, "payment "+evt.Status); err != nil {
					return err
				}
			}
		case EventStatusRefunded:
			if err := setOrderPaymentStatus(tx, order, models.PaymentStatusRefunded); err != nil {
				return err
			}
			if CanTransition(order.Status, models.OrderStatusRefunded) {
				if err := applyTransition(tx, order, models.OrderStatusRefunded, nil, "payment refunded"); err != nil {
					return err
				}
			}
		default:
			// Stored on the payment, no order transition.
		}

		result.Applied = true
		return nil
	})
	if err != nil {
		return WebhookResult{}, err
	}

	if notifyOrder != nil && s.telegram != nil {
		go func(orderNumber, currency string, amount float64) {
			if err := s.telegram.NotifyPaymentApproved(orderNumber, amount, currency); err != nil {
				log.Printf("[Webhook] payment notification failed for %s: %v", orderNumber, err)
			}
		}(notifyOrder.OrderNumber, notifyOrder.Currency, notifyAmount)
	}

	return result, nil
}

func setOrderPaymentStatus(tx *gorm.DB, order *models.Order, status string) error {
	if err := tx.Model(&models.Order{}).Where("id = ?", order.ID).
		Update("payment_status", status).Error; err != nil {
		return err
	}
	order.PaymentStatus = status
	return nil
}
