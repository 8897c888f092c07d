package services

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/example/brickline/internal/models"
)

// testDB opens the database named by TEST_DATABASE_URL, migrates the
// schema, and clears all rows so each test starts from an empty state.
// Skipped when no test database is configured.
func testDB(t *testing.T) *gorm.DB {
	t.Helper()

	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&models.User{}, &models.Product{},
		&models.Coupon{}, &models.CouponUsage{},
		&models.Order{}, &models.OrderLineItem{}, &models.OrderStatusHistory{},
		&models.Payment{}, &models.PaymentEvent{},
		&models.InventoryRecord{}, &models.InventoryMovement{},
		&models.IdempotencyRecord{},
	))

	tables := []string{
		"payment_events", "payments", "order_status_histories",
		"order_line_items", "coupon_usages", "orders", "coupons",
		"inventory_movements", "inventory_records", "products", "users",
		"idempotency_records",
	}
	for _, table := range tables {
		require.NoError(t, db.Exec("DELETE FROM "+table).Error)
	}

	return db
}

func seedUser(t *testing.T, db *gorm.DB) models.User {
	t.Helper()
	user := models.User{
		FirstName: "Casey",
		Phone:     "+" + uuid.NewString()[:12],
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func seedProduct(t *testing.T, db *gorm.DB, stock int) models.Product {
	t.Helper()
	product := models.Product{
		Name:         "Galaxy Cruiser",
		ItemCode:     "BL-" + uuid.NewString()[:8],
		SetNumber:    "75300",
		Theme:        "Star Wars",
		BasePrice:    10.00,
		Currency:     "USD",
		AllowCoupons: true,
		IsActive:     true,
	}
	require.NoError(t, db.Create(&product).Error)

	record := models.InventoryRecord{
		ProductID:   product.ID,
		Stock:       stock,
		SafetyStock: 1,
	}
	require.NoError(t, db.Create(&record).Error)
	return product
}

func seedPendingOrder(t *testing.T, db *gorm.DB, user models.User, product models.Product, qty int) models.Order {
	t.Helper()
	total := product.BasePrice * float64(qty)
	order := models.Order{
		UserID:      user.ID,
		OrderNumber: generateOrderNumber(),
		Status:      models.OrderStatusPending,
		PlacedAt:    time.Now(),
		Subtotal:    total,
		GrandTotal:  total,
		Currency:    "USD",
		Items: []models.OrderLineItem{{
			ProductID:   &product.ID,
			ProductName: product.Name,
			ItemCode:    product.ItemCode,
			Quantity:    qty,
			UnitPrice:   product.BasePrice,
			LineTotal:   total,
		}},
	}
	require.NoError(t, db.Create(&order).Error)

	head := models.OrderStatusHistory{
		OrderID:  order.ID,
		ToStatus: models.OrderStatusPending,
	}
	require.NoError(t, db.Create(&head).Error)
	return order
}

func seedPayment(t *testing.T, db *gorm.DB, order models.Order) models.Payment {
	t.Helper()
	payment := models.Payment{
		OrderID:    order.ID,
		Provider:   "brickpay",
		ExternalID: uuid.NewString(),
		Status:     models.PaymentStatusPending,
		Amount:     order.GrandTotal,
		Currency:   order.Currency,
	}
	require.NoError(t, db.Create(&payment).Error)
	return payment
}

func countRows(t *testing.T, db *gorm.DB, model any, query string, args ...any) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(model).Where(query, args...).Count(&count).Error)
	return count
}

func TestHandleEventDuplicateDelivery(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	user := seedUser(t, db)
	product := seedProduct(t, db, 10)
	order := seedPendingOrder(t, db, user, product, 2)
	payment := seedPayment(t, db, order)

	svc := NewWebhookService(db, nil)
	evt := WebhookEvent{
		PaymentID: payment.ExternalID,
		Status:    EventStatusApproved,
		Time:      1000,
		Raw:       []byte(`{"status":"approved"}`),
		Signature: "sig-approved-1",
	}

	result, err := svc.HandleEvent(ctx, evt)
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.False(t, result.Duplicate)

	var reloaded models.Order
	require.NoError(t, db.First(&reloaded, "id = ?", order.ID).Error)
	assert.Equal(t, models.OrderStatusPaid, reloaded.Status)
	assert.Equal(t, models.PaymentStatusApproved, reloaded.PaymentStatus)

	assert.EqualValues(t, 1, countRows(t, db, &models.PaymentEvent{}, "payment_id = ?", payment.ID))
	assert.EqualValues(t, 2, countRows(t, db, &models.OrderStatusHistory{}, "order_id = ?", order.ID))

	// Re-delivery of the same signed payload is acknowledged with no effect.
	result, err = svc.HandleEvent(ctx, evt)
	require.NoError(t, err)
	assert.True(t, result.Duplicate)
	assert.False(t, result.Applied)

	require.NoError(t, db.First(&reloaded, "id = ?", order.ID).Error)
	assert.Equal(t, models.OrderStatusPaid, reloaded.Status)
	assert.EqualValues(t, 1, countRows(t, db, &models.PaymentEvent{}, "payment_id = ?", payment.ID))
	assert.EqualValues(t, 2, countRows(t, db, &models.OrderStatusHistory{}, "order_id = ?", order.ID))
}

func TestHandleEventStaleDeliveryIsAuditedOnly(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	user := seedUser(t, db)
	product := seedProduct(t, db, 10)
	order := seedPendingOrder(t, db, user, product, 1)
	payment := seedPayment(t, db, order)

	svc := NewWebhookService(db, nil)

	result, err := svc.HandleEvent(ctx, WebhookEvent{
		PaymentID: payment.ExternalID,
		Status:    EventStatusApproved,
		Time:      1000,
		Raw:       []byte(`{"status":"approved"}`),
		Signature: "sig-1",
	})
	require.NoError(t, err)
	require.True(t, result.Applied)

	// A delayed older event must not rewind the payment or the order.
	result, err = svc.HandleEvent(ctx, WebhookEvent{
		PaymentID: payment.ExternalID,
		Status:    EventStatusRejected,
		Time:      500,
		Raw:       []byte(`{"status":"rejected"}`),
		Signature: "sig-2",
	})
	require.NoError(t, err)
	assert.True(t, result.Stale)
	assert.False(t, result.Applied)

	var reloaded models.Order
	require.NoError(t, db.First(&reloaded, "id = ?", order.ID).Error)
	assert.Equal(t, models.OrderStatusPaid, reloaded.Status)

	var reloadedPayment models.Payment
	require.NoError(t, db.First(&reloadedPayment, "id = ?", payment.ID).Error)
	assert.Equal(t, models.PaymentStatusApproved, reloadedPayment.Status)
	assert.EqualValues(t, 1000, reloadedPayment.EventSeq)

	var events []models.PaymentEvent
	require.NoError(t, db.Where("payment_id = ?", payment.ID).
		Order("created_at asc").Find(&events).Error)
	require.Len(t, events, 2)
	assert.True(t, events[0].Applied)
	assert.False(t, events[1].Applied)
}

func TestHandleEventRefundedOnPendingOrder(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	user := seedUser(t, db)
	product := seedProduct(t, db, 10)
	order := seedPendingOrder(t, db, user, product, 1)
	payment := seedPayment(t, db, order)

	svc := NewWebhookService(db, nil)
	result, err := svc.HandleEvent(ctx, WebhookEvent{
		PaymentID: payment.ExternalID,
		Status:    EventStatusRefunded,
		Raw:       []byte(`{"status":"refunded"}`),
		Signature: "sig-refund",
	})
	require.NoError(t, err)
	assert.True(t, result.Applied)

	// The order must not stay pending (holding stock) once its payment is
	// refunded.
	var reloaded models.Order
	require.NoError(t, db.First(&reloaded, "id = ?", order.ID).Error)
	assert.Equal(t, models.OrderStatusRefunded, reloaded.Status)
	assert.Equal(t, models.PaymentStatusRefunded, reloaded.PaymentStatus)

	// No stock left the warehouse, so nothing comes back.
	assert.EqualValues(t, 0, countRows(t, db, &models.InventoryMovement{}, "product_id = ?", product.ID))
}

func TestAdjustStockNegativeLeavesStateUntouched(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	product := seedProduct(t, db, 5)
	svc := NewInventoryService(db)

	_, err := svc.AdjustStock(ctx, product.ID, -8, "shrinkage", uuid.New())
	require.ErrorIs(t, err, ErrStockNegative)

	var record models.InventoryRecord
	require.NoError(t, db.First(&record, "product_id = ?", product.ID).Error)
	assert.Equal(t, 5, record.Stock)
	assert.EqualValues(t, 0, countRows(t, db, &models.InventoryMovement{}, "product_id = ?", product.ID))

	// A valid adjustment afterwards applies normally with one movement.
	updated, err := svc.AdjustStock(ctx, product.ID, -3, "damaged in storage", uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 2, updated.Stock)
	assert.EqualValues(t, 1, countRows(t, db, &models.InventoryMovement{}, "product_id = ?", product.ID))
}

func TestOrderWalkHistoryRecordsPriorStatus(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	user := seedUser(t, db)
	product := seedProduct(t, db, 10)
	order := seedPendingOrder(t, db, user, product, 2)
	payment := seedPayment(t, db, order)

	webhooks := NewWebhookService(db, nil)
	orders := NewOrderService(db, nil)

	_, err := webhooks.HandleEvent(ctx, WebhookEvent{
		PaymentID: payment.ExternalID,
		Status:    EventStatusApproved,
		Raw:       []byte(`{"status":"approved"}`),
		Signature: "sig-approve",
	})
	require.NoError(t, err)

	_, err = orders.Transition(ctx, order.ID, models.OrderStatusPicking, "picking started", user.ID)
	require.NoError(t, err)

	shipped, err := orders.MarkShipped(ctx, order.ID, "DHL", "JD0123456789", user.ID)
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusShipped, shipped.Status)

	var history []models.OrderStatusHistory
	require.NoError(t, db.Where("order_id = ?", order.ID).
		Order("created_at asc").Find(&history).Error)
	require.Len(t, history, 4)

	walk := []string{
		models.OrderStatusPending,
		models.OrderStatusPaid,
		models.OrderStatusPicking,
		models.OrderStatusShipped,
	}
	prior := ""
	for i, row := range history {
		assert.Equalf(t, prior, row.FromStatus, "history row %d from", i)
		assert.Equalf(t, walk[i], row.ToStatus, "history row %d to", i)
		prior = row.ToStatus
	}

	// Shipping converts the reservation into a sale movement.
	var record models.InventoryRecord
	require.NoError(t, db.First(&record, "product_id = ?", product.ID).Error)
	assert.Equal(t, 8, record.Stock)

	var movements []models.InventoryMovement
	require.NoError(t, db.Where("product_id = ?", product.ID).Find(&movements).Error)
	require.Len(t, movements, 1)
	assert.Equal(t, models.MovementTypeSale, movements[0].Type)
	assert.Equal(t, -2, movements[0].Delta)
}

func TestCreateOrderRejectsSplitLineOversell(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	user := seedUser(t, db)
	product := seedProduct(t, db, 4)
	orders := NewOrderService(db, nil)

	// Two lines of the same product must be checked as one requested total.
	_, err := orders.CreateOrder(ctx, user.ID, CreateOrderInput{
		Items: []CartItemInput{
			{ProductID: product.ID, Quantity: 3},
			{ProductID: product.ID, Quantity: 3},
		},
	})

	var domainErr *DomainError
	require.ErrorAs(t, err, &domainErr)
	assert.Equal(t, "INSUFFICIENT_STOCK", domainErr.Code)
	assert.EqualValues(t, 0, countRows(t, db, &models.Order{}, "user_id = ?", user.ID))

	// The aggregate fits when it stays within availability.
	order, err := orders.CreateOrder(ctx, user.ID, CreateOrderInput{
		Items: []CartItemInput{
			{ProductID: product.ID, Quantity: 2},
			{ProductID: product.ID, Quantity: 2},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, models.OrderStatusPending, order.Status)
}

func TestCreateOrderIdempotencyReplay(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	user := seedUser(t, db)
	product := seedProduct(t, db, 10)
	orders := NewOrderService(db, nil)

	input := CreateOrderInput{
		Items:          []CartItemInput{{ProductID: product.ID, Quantity: 1}},
		IdempotencyKey: "retry-" + uuid.NewString(),
	}

	first, err := orders.CreateOrder(ctx, user.ID, input)
	require.NoError(t, err)

	second, err := orders.CreateOrder(ctx, user.ID, input)
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.EqualValues(t, 1, countRows(t, db, &models.Order{}, "user_id = ?", user.ID))
	assert.EqualValues(t, 1, countRows(t, db, &models.OrderStatusHistory{}, "order_id = ?", first.ID))
}
