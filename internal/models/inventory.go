package models

import (
	"github.com/google/uuid"
)

// Inventory movement types.
const (
	MovementTypeAdjust = "adjust"
	MovementTypeSale   = "sale"
	MovementTypeReturn = "return"
)

// InventoryRecord tracks owned units on hand per product. Reserved
// quantity is not stored here: it is derived at query time from orders in
// a stock-holding status.
type InventoryRecord struct {
	BaseModel
	ProductID         uuid.UUID `gorm:"type:uuid;uniqueIndex" json:"product_id"`
	Product           *Product  `json:"product,omitempty"`
	Stock             int       `json:"stock"`
	SafetyStock       int       `json:"safety_stock"`
	WarehouseLocation string    `json:"warehouse_location"`
}

// InventoryMovement is the append-only stock mutation log. Every stock
// write produces exactly one movement row in the same transaction.
type InventoryMovement struct {
	BaseModel
	ProductID uuid.UUID  `gorm:"type:uuid;index" json:"product_id"`
	Delta     int        `json:"delta"`
	Type      string     `json:"type"`
	Reason    string     `json:"reason"`
	OrderID   *uuid.UUID `gorm:"type:uuid" json:"order_id"`
	ActorID   *uuid.UUID `gorm:"type:uuid" json:"actor_id"`
}
