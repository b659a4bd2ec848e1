package ledger

import (
	"budget_system/internal/domain" // Importing domain models
	"context"                       // Context for DB operations
	"errors"                        // Error inspection
	"time"                          // Timestamps for log entries

	"github.com/sirupsen/logrus" // Logging library
	"gorm.io/gorm"               // GORM ORM library
)

// Ledger applies expense mutations and the paired balance changes atomically.
// It maintains, for every user: balance + sum(owned expense amounts) == initial balance,
// with balance never dropping below zero.
type Ledger struct {
	db *gorm.DB // Database handle, every operation opens its own transaction
}

// New returns a Ledger backed by db
func New(db *gorm.DB) *Ledger {
	return &Ledger{db: db}
}

// debit subtracts amount from the owner's balance, guarded so the write only
// lands when the balance covers it. The guard is a conditional UPDATE, so two
// concurrent debits against the same user serialize at the row.
func debit(tx *gorm.DB, ownerID uint, amount float64) error {
	res := tx.Model(&domain.User{}).
		Where("id = ? AND balance >= ?", ownerID, amount).
		Update("balance", gorm.Expr("balance - ?", amount))
	if res.Error != nil {
		return res.Error // Return error to rollback
	}
	// Zero rows means the guard rejected the write
	if res.RowsAffected == 0 {
		var user domain.User // Re-read to tell a shortfall from a lost race
		if err := tx.First(&user, ownerID).Error; err != nil {
			return err
		}
		if user.Balance < amount {
			// Report both quantities for caller display
			return &InsufficientBalanceError{Current: user.Balance, Required: amount}
		}
		return ErrConflict // Balance moved between read and write, caller retries
	}
	return nil
}

// overwriteExpense replaces the mutable fields of an expense, guarded on the
// amount the caller computed its balance delta from. Zero rows means another
// transaction changed or removed the row after it was read, so the delta no
// longer matches the row and the write must not land.
func overwriteExpense(tx *gorm.DB, expense *domain.Expense, amount float64, description string, categoryID uint) error {
	res := tx.Model(&domain.Expense{}).
		Where("id = ? AND amount = ?", expense.ID, expense.Amount).
		Updates(map[string]any{
			"amount":      amount,      // New amount
			"description": description, // New description, may clear the old one
			"category_id": categoryID,  // New category
		})
	if res.Error != nil {
		return res.Error
	}
	// Zero rows means the guard rejected the write
	if res.RowsAffected == 0 {
		return ErrConflict // Row changed under us, caller retries
	}
	return nil
}

// removeExpense deletes an expense row, guarded on the amount the caller
// computed its refund from.
func removeExpense(tx *gorm.DB, expense *domain.Expense) error {
	res := tx.Where("amount = ?", expense.Amount).Delete(&domain.Expense{}, expense.ID)
	if res.Error != nil {
		return res.Error
	}
	// Zero rows means the guard rejected the delete
	if res.RowsAffected == 0 {
		return ErrConflict // Row changed or vanished under us, caller retries
	}
	return nil
}

// Create persists a new expense and deducts its amount from the owner's
// balance in one transaction; both writes commit together or neither does.
func (l *Ledger) Create(ctx context.Context, ownerID uint, amount float64, description string, categoryID uint) (*domain.Expense, error) {
	// Validate amount before touching any state
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	var expense domain.Expense // Created expense row
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Validate that the category exists
		var category domain.Category
		if err := tx.First(&category, categoryID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCategoryNotFound
			}
			return err // Return error to rollback
		}
		// Deduct amount from the owner's balance (guarded)
		if err := debit(tx, ownerID, amount); err != nil {
			return err // Return error to rollback
		}
		// Persist the expense row
		expense = domain.Expense{
			Amount:      amount,      // Expense amount
			Description: description, // Optional description
			OwnerID:     ownerID,     // Owning user, immutable
			CategoryID:  categoryID,  // Referenced category
		}
		if err := tx.Create(&expense).Error; err != nil {
			return err // Return error to rollback
		}
		// Reload with the category relation for the response
		return tx.Preload("Category").First(&expense, expense.ID).Error
	})
	if err != nil {
		return nil, err
	}
	// Log successful creation
	logrus.WithFields(logrus.Fields{
		"user_id":    ownerID,                         // Owning user ID
		"expense_id": expense.ID,                      // Created expense ID
		"amount":     amount,                          // Deducted amount
		"type":       "expense_create",                // Operation type
		"timestamp":  time.Now().Format(time.RFC3339), // Current timestamp
	}).Info("Expense created")
	return &expense, nil
}

// Update overwrites amount, description and category of an owned expense and
// applies the amount delta inversely to the owner's balance, all in one
// transaction. A decreased amount refunds the difference immediately.
func (l *Ledger) Update(ctx context.Context, ownerID, expenseID uint, amount float64, description string, categoryID uint) (*domain.Expense, error) {
	// Validate amount before touching any state
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	var expense domain.Expense // Updated expense row
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Fetch the existing expense
		if err := tx.First(&expense, expenseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		// Ownership check, distinct from absence
		if expense.OwnerID != ownerID {
			return ErrNotOwner
		}
		// Validate that the new category exists
		var category domain.Category
		if err := tx.First(&category, categoryID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrCategoryNotFound
			}
			return err
		}
		// Delta between new and old amount, applied inversely to balance
		delta := amount - expense.Amount
		if delta > 0 {
			// An increase must be covered by the current balance
			if err := debit(tx, ownerID, delta); err != nil {
				return err // Return error to rollback
			}
		} else {
			// A decrease refunds the difference; a zero delta keeps the write
			// so every update runs the same balance path
			if err := tx.Model(&domain.User{}).Where("id = ?", ownerID).
				Update("balance", gorm.Expr("balance - ?", delta)).Error; err != nil {
				return err // Return error to rollback
			}
		}
		// Overwrite the mutable fields, guarded on the amount the delta was
		// computed from; a guard miss rolls the balance write back too
		if err := overwriteExpense(tx, &expense, amount, description, categoryID); err != nil {
			return err // Return error to rollback
		}
		// Reload with the category relation for the response
		return tx.Preload("Category").First(&expense, expense.ID).Error
	})
	if err != nil {
		return nil, err
	}
	// Log successful update
	logrus.WithFields(logrus.Fields{
		"user_id":    ownerID,                         // Owning user ID
		"expense_id": expense.ID,                      // Updated expense ID
		"amount":     amount,                          // New amount
		"type":       "expense_update",                // Operation type
		"timestamp":  time.Now().Format(time.RFC3339), // Current timestamp
	}).Info("Expense updated")
	return &expense, nil
}

// Delete removes an owned expense and refunds its amount to the owner's
// balance in one transaction. Returns the refunded amount for caller display.
func (l *Ledger) Delete(ctx context.Context, ownerID, expenseID uint) (float64, error) {
	var refund float64 // Refunded amount
	err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Fetch the expense
		var expense domain.Expense
		if err := tx.First(&expense, expenseID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotFound
			}
			return err
		}
		// Ownership check, distinct from absence
		if expense.OwnerID != ownerID {
			return ErrNotOwner
		}
		// Refund the amount to the owner's balance
		if err := tx.Model(&domain.User{}).Where("id = ?", ownerID).
			Update("balance", gorm.Expr("balance + ?", expense.Amount)).Error; err != nil {
			return err // Return error to rollback
		}
		// Delete the expense row, guarded on the amount the refund was
		// computed from; a guard miss rolls the refund back too
		if err := removeExpense(tx, &expense); err != nil {
			return err // Return error to rollback
		}
		refund = expense.Amount // Report the refunded amount
		return nil              // Commit transaction
	})
	if err != nil {
		return 0, err
	}
	// Log successful deletion
	logrus.WithFields(logrus.Fields{
		"user_id":    ownerID,                         // Owning user ID
		"expense_id": expenseID,                       // Deleted expense ID
		"amount":     refund,                          // Refunded amount
		"type":       "expense_delete",                // Operation type
		"timestamp":  time.Now().Format(time.RFC3339), // Current timestamp
	}).Info("Expense deleted")
	return refund, nil
}

// Get returns a single expense, only if owned by ownerID
func (l *Ledger) Get(ctx context.Context, ownerID, expenseID uint) (*domain.Expense, error) {
	var expense domain.Expense
	if err := l.db.WithContext(ctx).Preload("Category").First(&expense, expenseID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	// Ownership check, distinct from absence
	if expense.OwnerID != ownerID {
		return nil, ErrNotOwner
	}
	return &expense, nil
}

// Filter narrows an expense listing; zero values leave a dimension open
type Filter struct {
	CategoryID uint     // Filter by category when non-zero
	MinAmount  *float64 // Lower amount bound when set
	MaxAmount  *float64 // Upper amount bound when set
	Offset     int      // Pagination offset
	Limit      int      // Page size, 0 disables pagination
}

// List returns the owner's expenses matching f, newest first, with the total
// count of matching rows for pagination.
func (l *Ledger) List(ctx context.Context, ownerID uint, f Filter) ([]domain.Expense, int64, error) {
	// Start building the query
	query := l.db.WithContext(ctx).Model(&domain.Expense{}).Where("owner_id = ?", ownerID)
	if f.CategoryID != 0 {
		query = query.Where("category_id = ?", f.CategoryID) // Filter by category
	}
	if f.MinAmount != nil {
		query = query.Where("amount >= ?", *f.MinAmount) // Filter by minimum amount
	}
	if f.MaxAmount != nil {
		query = query.Where("amount <= ?", *f.MaxAmount) // Filter by maximum amount
	}
	var total int64 // Total count of matching expenses
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	// Apply pagination when requested
	if f.Limit > 0 {
		query = query.Offset(f.Offset).Limit(f.Limit)
	}
	var expenses []domain.Expense // Slice to hold expenses
	if err := query.Preload("Category").Order("date desc").Find(&expenses).Error; err != nil {
		return nil, 0, err
	}
	return expenses, total, nil
}

// Summary aggregates all of the owner's expenses with the remaining balance
type Summary struct {
	TotalExpenses     float64            `json:"total_expenses"`     // Sum of all expense amounts
	ExpenseCount      int                `json:"expense_count"`      // Number of expenses
	RemainingBalance  float64            `json:"remaining_balance"`  // Current balance
	CategoryBreakdown map[string]float64 `json:"category_breakdown"` // Totals per category name
}

// Summarize computes the owner's expense summary
func (l *Ledger) Summarize(ctx context.Context, ownerID uint) (*Summary, error) {
	// Fetch the owner for the remaining balance
	var user domain.User
	if err := l.db.WithContext(ctx).First(&user, ownerID).Error; err != nil {
		return nil, err
	}
	// Fetch all expenses with their categories
	var expenses []domain.Expense
	if err := l.db.WithContext(ctx).Preload("Category").
		Where("owner_id = ?", ownerID).Find(&expenses).Error; err != nil {
		return nil, err
	}
	summary := &Summary{
		RemainingBalance:  user.Balance,         // Current balance
		ExpenseCount:      len(expenses),        // Number of expenses
		CategoryBreakdown: map[string]float64{}, // Totals per category name
	}
	// Accumulate totals
	for _, e := range expenses {
		summary.TotalExpenses += e.Amount
		summary.CategoryBreakdown[e.Category.Name] += e.Amount
	}
	return summary, nil
}
