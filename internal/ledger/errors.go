package ledger

import (
	"errors" // Sentinel error values
	"fmt"    // Error message formatting
)

// Errors returned by ledger operations. Handlers map these to HTTP statuses.
var (
	ErrInvalidAmount    = errors.New("expense amount must be positive")     // Amount <= 0
	ErrCategoryNotFound = errors.New("category not found")                  // Category reference does not resolve
	ErrNotFound         = errors.New("expense not found")                   // Expense row absent
	ErrNotOwner         = errors.New("expense belongs to a different user") // Mutation attempted by a non-owner
	ErrConflict         = errors.New("balance changed concurrently")        // Guarded balance write lost a race, caller may retry
)

// InsufficientBalanceError reports a debit that the current balance cannot cover.
type InsufficientBalanceError struct {
	Current  float64 // Balance at the time of the failed debit
	Required float64 // Amount the operation needed
}

// Error formats the shortfall with both quantities for caller display
func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: current %.2f, required %.2f", e.Current, e.Required)
}
