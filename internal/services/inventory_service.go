package services

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/example/brickline/internal/models"
)

// InventoryService owns stock accounting. Reserved quantity is always the
// derived view over order statuses; the stock column only changes through
// movements.
type InventoryService struct {
	db *gorm.DB
}

func NewInventoryService(db *gorm.DB) *InventoryService {
	return &InventoryService{db: db}
}

// InventoryView is the read projection joining live stock with the
// derived reservation fields.
type InventoryView struct {
	ProductID         uuid.UUID `json:"product_id"`
	Name              string    `json:"name"`
	ItemCode          string    `json:"item_code"`
	SetNumber         string    `json:"set_number"`
	Theme             string    `json:"theme"`
	Stock             int       `json:"stock"`
	SafetyStock       int       `json:"safety_stock"`
	WarehouseLocation string    `json:"warehouse_location"`
	Reserved          int       `json:"reserved"`
	Available         int       `json:"available"`
	Low               bool      `json:"low"`
}

// InventoryFilter narrows the inventory listing.
type InventoryFilter struct {
	Query   string
	LowOnly bool
	Limit   int
	Offset  int
}

const reservedSubquery = `COALESCE((
	SELECT SUM(order_line_items.quantity)
	FROM order_line_items
	JOIN orders ON orders.id = order_line_items.order_id
	WHERE order_line_items.product_id = inventory_records.product_id
	  AND orders.status IN ('pending','paid','picking')
), 0)`

// AdjustStock applies a signed correction to a product's stock. The stock
// row is re-read under lock, the new value must stay non-negative, and
// exactly one movement row is written with the update.
func (s *InventoryService) AdjustStock(ctx context.Context, productID uuid.UUID, delta int, reason string, actorID uuid.UUID) (*models.InventoryRecord, error) {
	var record models.InventoryRecord

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("product_id = ?", productID).
			First(&record).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProductNotFound
			}
			return err
		}

		newStock := record.Stock + delta
		if newStock < 0 {
			return ErrStockNegative
		}

		if err := tx.Model(&record).Update("stock", newStock).Error; err != nil {
			return err
		}
		record.Stock = newStock

		movement := models.InventoryMovement{
			ProductID: productID,
			Delta:     delta,
			Type:      models.MovementTypeAdjust,
			Reason:    reason,
			ActorID:   &actorID,
		}
		return tx.Create(&movement).Error
	})
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// SetSafetyStock updates the low-stock alert threshold.
func (s *InventoryService) SetSafetyStock(ctx context.Context, productID uuid.UUID, value int) (*models.InventoryRecord, error) {
	if value < 0 {
		return nil, &DomainError{
			Status:  400,
			Code:    "INVALID_SAFETY_STOCK",
			Message: "safety stock must be non-negative",
		}
	}

	var record models.InventoryRecord
	err := s.db.WithContext(ctx).
		Where("product_id = ?", productID).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrProductNotFound
		}
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(&record).
		Update("safety_stock", value).Error; err != nil {
		return nil, err
	}
	record.SafetyStock = value
	return &record, nil
}

// List returns the inventory projection with derived reserved/available/
// low fields, optionally filtered to low stock or a text search over
// name, item code, and set number.
func (s *InventoryService) List(ctx context.Context, filter InventoryFilter) ([]InventoryView, int64, error) {
	query := s.db.WithContext(ctx).
		Model(&models.InventoryRecord{}).
		Joins("JOIN products ON products.id = inventory_records.product_id")

	if filter.Query != "" {
		like := "%" + filter.Query + "%"
		query = query.Where(
			"products.name ILIKE ? OR products.item_code ILIKE ? OR products.set_number ILIKE ?",
			like, like, like,
		)
	}
	if filter.LowOnly {
		query = query.Where("inventory_records.stock - " + reservedSubquery + " <= inventory_records.safety_stock")
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var views []InventoryView
	err := query.
		Select(`inventory_records.product_id,
			products.name,
			products.item_code,
			products.set_number,
			products.theme,
			inventory_records.stock,
			inventory_records.safety_stock,
			inventory_records.warehouse_location,
			` + reservedSubquery + ` AS reserved`).
		Order("products.name asc").
		Limit(filter.Limit).
		Offset(filter.Offset).
		Scan(&views).Error
	if err != nil {
		return nil, 0, err
	}

	for i := range views {
		views[i].Available = views[i].Stock - views[i].Reserved
		views[i].Low = views[i].Available <= views[i].SafetyStock
	}
	return views, total, nil
}

// Movements returns the newest movement rows for a product.
func (s *InventoryService) Movements(ctx context.Context, productID uuid.UUID, limit int) ([]models.InventoryMovement, error) {
	if limit <= 0 {
		limit = 50
	}

	var movements []models.InventoryMovement
	err := s.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at desc").
		Limit(limit).
		Find(&movements).Error
	if err != nil {
		return nil, err
	}
	return movements, nil
}
