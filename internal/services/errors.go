package services

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// DomainError is a business-rule violation with a stable machine-readable
// code. Handlers surface these as-is; they are never silently retried.
type DomainError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *DomainError) Error() string {
	return e.Code + ": " + e.Message
}

var (
	ErrCartEmpty = &DomainError{
		Status:  fiber.StatusBadRequest,
		Code:    "CART_EMPTY",
		Message: "order requires at least one line item",
	}
	ErrStockNegative = &DomainError{
		Status:  fiber.StatusUnprocessableEntity,
		Code:    "STOCK_NEGATIVE",
		Message: "stock adjustment would make stock negative",
	}
	ErrOrderNotFound = &DomainError{
		Status:  fiber.StatusNotFound,
		Code:    "ORDER_NOT_FOUND",
		Message: "order not found",
	}
	ErrPaymentNotFound = &DomainError{
		Status:  fiber.StatusNotFound,
		Code:    "PAYMENT_NOT_FOUND",
		Message: "payment not found",
	}
	ErrProductNotFound = &DomainError{
		Status:  fiber.StatusNotFound,
		Code:    "PRODUCT_NOT_FOUND",
		Message: "product not found",
	}
	ErrCouponNotFound = &DomainError{
		Status:  fiber.StatusUnprocessableEntity,
		Code:    CodeCouponInvalid,
		Message: "coupon code is not valid",
	}
)

// ErrInvalidTransition reports a rejected order-status transition.
func ErrInvalidTransition(from, to string) *DomainError {
	return &DomainError{
		Status:  fiber.StatusUnprocessableEntity,
		Code:    "INVALID_TRANSITION",
		Message: fmt.Sprintf("cannot transition order from %q to %q", from, to),
	}
}

// ErrInsufficientStock reports a checkout exceeding available inventory.
func ErrInsufficientStock(productName string, requested, available int) *DomainError {
	return &DomainError{
		Status:  fiber.StatusUnprocessableEntity,
		Code:    "INSUFFICIENT_STOCK",
		Message: fmt.Sprintf("requested %d of %q but only %d available", requested, productName, available),
	}
}

// CouponError wraps a coupon-engine failure code for the HTTP surface.
func CouponError(code, message string) *DomainError {
	return &DomainError{
		Status:  fiber.StatusUnprocessableEntity,
		Code:    code,
		Message: message,
	}
}
