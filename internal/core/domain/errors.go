package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrBranchMismatch      = errors.New("branch mismatch")
	ErrInvalidTransition   = errors.New("invalid lot status transition")
	ErrInvalidTargetStatus = errors.New("invalid target status")
	ErrInvalidQuantity     = errors.New("invalid quantity")
	ErrInsufficientStock   = errors.New("insufficient stock")
	ErrTransactionConflict = errors.New("transaction conflict")
	ErrDuplicateRequest    = errors.New("duplicate request")
)

// InsufficientStockError carries the amounts involved in a rejected allocation.
// It matches ErrInsufficientStock under errors.Is.
type InsufficientStockError struct {
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock: available %d, requested %d", e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}
