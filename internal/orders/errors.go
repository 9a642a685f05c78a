package orders

import (
	"errors"
	"fmt"
)

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrItemNotFound      = errors.New("order item not found")
	ErrAlreadyCancelled  = errors.New("order already cancelled")
	ErrNotEditable       = errors.New("order can no longer be changed")
	ErrProductInUse      = errors.New("product is referenced by orders")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInconsistentState = errors.New("inventory ledger inconsistent")
	ErrValidation        = errors.New("validation failed")
	ErrOverpayment       = errors.New("payment exceeds due amount")
)

type InsufficientStockError struct {
	ProductID   string
	ProductName string
	Requested   int
	Available   int
}

func (e *InsufficientStockError) Error() string {
	name := e.ProductName
	if name == "" {
		name = e.ProductID
	}
	return fmt.Sprintf("%d units of %s available", e.Available, name)
}

func (e *InsufficientStockError) Is(target error) bool { return target == ErrInsufficientStock }

type InvalidTransitionError struct {
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("cannot move order from %s to %s", e.From, e.To)
}

func (e *InvalidTransitionError) Is(target error) bool { return target == ErrInvalidTransition }

// InconsistentStateError means a ledger counter would have gone negative.
type InconsistentStateError struct {
	ProductID string
	Op        string
	Qty       int
	Stock     int
	Reserved  int
}

func (e *InconsistentStateError) Error() string {
	return fmt.Sprintf("%s %d of product %s: stock=%d reserved=%d", e.Op, e.Qty, e.ProductID, e.Stock, e.Reserved)
}

func (e *InconsistentStateError) Is(target error) bool { return target == ErrInconsistentState }

type ValidationError struct {
	Field string
	Msg   string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return e.Field + ": " + e.Msg
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

type OverpaymentError struct {
	Due string
}

func (e *OverpaymentError) Error() string {
	return "payment exceeds due amount of " + e.Due
}

func (e *OverpaymentError) Is(target error) bool { return target == ErrOverpayment }
