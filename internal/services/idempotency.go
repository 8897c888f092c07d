package services

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/brickline/internal/models"
)

// Endpoint names the idempotency ledger partitions keys by.
const (
	EndpointCreateOrder    = "orders.create"
	EndpointPaymentWebhook = "payments.webhook"
)

// CallerIdempotencyKey derives the ledger key for a caller-supplied token:
// the client token scoped by endpoint and caller identity, so two users
// reusing the same token never collide.
func CallerIdempotencyKey(token, endpoint, callerID string) string {
	return sha256Hex(fmt.Sprintf("%s\n%s\n%s", token, endpoint, callerID))
}

// EventIdempotencyKey derives the ledger key for a provider webhook event
// from the provider payment id and the transport signature. It guards
// against the same delivery arriving twice, not against distinct stale
// events; ordering is handled separately by the reconciler.
func EventIdempotencyKey(paymentID, signature string) string {
	return sha256Hex(paymentID + "\n" + signature)
}

// ReserveIdempotencyKey atomically records that this key is being
// processed, inside the caller's transaction. If the key already exists
// the stored record is returned with replay=true and the caller must
// short-circuit to the referenced result without re-running side effects.
func ReserveIdempotencyKey(tx *gorm.DB, key, endpoint, resultRef string) (replay bool, existing models.IdempotencyRecord, err error) {
	record := models.IdempotencyRecord{
		Key:       key,
		Endpoint:  endpoint,
		ResultRef: resultRef,
	}

	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&record)
	if res.Error != nil {
		return false, models.IdempotencyRecord{}, res.Error
	}

	if res.RowsAffected == 0 {
		if err := tx.Where("key = ? AND endpoint = ?", key, endpoint).
			First(&existing).Error; err != nil {
			return false, models.IdempotencyRecord{}, err
		}
		return true, existing, nil
	}

	return false, record, nil
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}
