package order

import (
	"errors"
	"fmt"
)

var (
	// ErrForbidden means the caller's role does not permit the operation.
	ErrForbidden = errors.New("forbidden")
	// ErrAddressRequired means checkout was called with a blank shipping address.
	ErrAddressRequired = errors.New("shipping address is required")
	// ErrEmptyCart means checkout was called with no cart entries.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrOrderNotFound means the order does not exist or does not belong to the caller.
	ErrOrderNotFound = errors.New("order not found")
	// ErrProductNotFound means a cart entry references a product that no longer exists.
	ErrProductNotFound = errors.New("product not found")
	// ErrInvalidStatus means the requested status is not part of the vocabulary.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrInvalidTransition means the order is not in a state that permits the change.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// InsufficientStockError names the offending product so the caller can act.
type InsufficientStockError struct {
	ProductID   uint
	ProductName string
	Requested   uint
	Available   uint
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: requested %d, available %d",
		e.ProductName, e.Requested, e.Available)
}
