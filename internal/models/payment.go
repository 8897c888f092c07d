package models

import (
	"github.com/google/uuid"
)

// Payment statuses mirror the provider's event vocabulary.
const (
	PaymentStatusPending  = "pending"
	PaymentStatusApproved = "approved"
	PaymentStatusRejected = "rejected"
	PaymentStatusRefunded = "refunded"
)

// Payment is the 1:1 payment attempt attached to an order. Mutated only by
// the webhook reconciler after creation.
type Payment struct {
	BaseModel
	OrderID    uuid.UUID      `gorm:"type:uuid;uniqueIndex" json:"order_id"`
	Order      *Order         `json:"order,omitempty"`
	Provider   string         `json:"provider"`
	ExternalID string         `gorm:"uniqueIndex" json:"external_id"`
	Status     string         `json:"status"`
	Amount     float64        `json:"amount"`
	Currency   string         `json:"currency"`
	RawPayload []byte         `gorm:"type:jsonb" json:"raw_payload"`
	EventSeq   int64          `json:"event_seq"`
	Events     []PaymentEvent `json:"events,omitempty"`
}

// PaymentEvent is an append-only audit record of every webhook payload
// received for a payment, including ones that caused no state change.
type PaymentEvent struct {
	BaseModel
	PaymentID    uuid.UUID `gorm:"type:uuid;index" json:"payment_id"`
	Status       string    `json:"status"`
	ProviderTime int64     `json:"provider_time"`
	Payload      []byte    `gorm:"type:jsonb" json:"payload"`
	Applied      bool      `json:"applied"`
}
