package ledger

import (
	"budget_system/internal/domain"
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupDB opens a per-test in-memory database with the full schema
func setupDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&domain.User{}, &domain.Category{}, &domain.Expense{}))
	return db
}

func createUser(t *testing.T, db *gorm.DB, email string, balance float64) *domain.User {
	t.Helper()
	user := &domain.User{Email: email, Password: "hash", Balance: balance}
	require.NoError(t, db.Create(user).Error)
	return user
}

func createCategory(t *testing.T, db *gorm.DB, name string) *domain.Category {
	t.Helper()
	category := &domain.Category{Name: name}
	require.NoError(t, db.Create(category).Error)
	return category
}

func balanceOf(t *testing.T, db *gorm.DB, userID uint) float64 {
	t.Helper()
	var user domain.User
	require.NoError(t, db.First(&user, userID).Error)
	return user.Balance
}

func expenseTotal(t *testing.T, db *gorm.DB, userID uint) float64 {
	t.Helper()
	var total float64
	require.NoError(t, db.Model(&domain.Expense{}).Where("owner_id = ?", userID).
		Select("COALESCE(SUM(amount), 0)").Scan(&total).Error)
	return total
}

// requireInvariant checks balance + sum(expenses) == initial and balance >= 0
func requireInvariant(t *testing.T, db *gorm.DB, userID uint, initial float64) {
	t.Helper()
	balance := balanceOf(t, db, userID)
	require.GreaterOrEqual(t, balance, 0.0)
	require.InDelta(t, initial, balance+expenseTotal(t, db, userID), 1e-9)
}

func TestCreateDeductsBalance(t *testing.T) {
	db := setupDB(t)
	led := New(db)
	user := createUser(t, db, "a@example.com", 100)
	food := createCategory(t, db, "Food")

	expense, err := led.Create(context.Background(), user.ID, 30, "groceries", food.ID)
	require.NoError(t, err)
	require.Equal(t, 30.0, expense.Amount)
	require.Equal(t, user.ID, expense.OwnerID)
	require.Equal(t, "Food", expense.Category.Name)
	require.Equal(t, 70.0, balanceOf(t, db, user.ID))
	requireInvariant(t, db, user.ID, 100)
}

func TestCreateInvalidAmount(t *testing.T) {
	db := setupDB(t)
	led := New(db)
	user := createUser(t, db, "a@example.com", 100)
	food := createCategory(t, db, "Food")

	for _, amount := range []float64{0, -5} {
		_, err := led.Create(context.Background(), user.ID, amount, "", food.ID)
		require.ErrorIs(t, err, ErrInvalidAmount)
	}
	require.Equal(t, 100.0, balanceOf(t, db, user.ID))
	require.Equal(t, 0.0, expenseTotal(t, db, user.ID))
}

func TestCreateCategoryMissing(t *testing.T) {
	db := setupDB(t)
	led := New(db)
	user := createUser(t, db, "a@example.com", 100)

	_, err := led.Create(context.Background(), user.ID, 10, "", 999)
	require.ErrorIs(t, err, ErrCategoryNotFound)
	require.Equal(t, 100.0, balanceOf(t, db, user.ID))
}

func TestCreateInsufficientBalance(t *testing.T) {
	db := setupDB(t)
	led := New(db)
	user := createUser(t, db, "a@example.com", 50)
	food := createCategory(t, db, "Food")

	_, err := led.Create(context.Background(), user.ID, 60, "", food.ID)
	var insufficient *InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, 50.0, insufficient.Current)
	require.Equal(t, 60.0, insufficient.Required)
	// Nothing committed
	require.Equal(t, 50.0, balanceOf(t, db, user.ID))
	require.Equal(t, 0.0, expenseTotal(t, db, user.ID))
}

func TestUpdateSameAmountKeepsBalance(t *testing.T) {
	db := setupDB(t)
	led := New(db)
	user := createUser(t, db, "a@example.com", 100)
	food := createCategory(t, db, "Food")
	travel := createCategory(t, db, "Travel")

	expense, err := led.Create(context.Background(), user.ID, 40, "old", food.ID)
	require.NoError(t, err)

	// Same amount, new description and category: balance must not move
	updated, err := led.Update(context.Background(), user.ID, expense.ID, 40, "new", travel.ID)
	require.NoError(t, err)
	require.Equal(t, "new", updated.Description)
	require.Equal(t, travel.ID, updated.CategoryID)
	require.Equal(t, 60.0, balanceOf(t, db, user.ID))
	requireInvariant(t, db, user.ID, 100)
}

func TestUpdateIncreaseDeductsDelta(t *testing.T) {
	db := setupDB(t)
	led := New(db)
	user := createUser(t, db, "a@example.com", 100)
	food := createCategory(t, db, "Food")

	expense, err := led.Create(context.Background(), user.ID, 30, "", food.ID)
	require.NoError(t, err)
	require.Equal(t, 70.0, balanceOf(t, db, user.ID))

	_, err = led.Update(context.Background(), user.ID, expense.ID, 50, "", food.ID)
	require.NoError(t, err)
	require.Equal(t, 50.0, balanceOf(t, db, user.ID))
	requireInvariant(t, db, user.ID, 100)
}

func TestUpdateDecreaseRefundsDelta(t *testing.T) {
	db := setupDB(t)
	led := New(db)
	user := createUser(t, db, "a@example.com", 100)
	food := createCategory(t, db, "Food")

	expense, err := led.Create(context.Background(), user.ID, 80, "", food.ID)
	require.NoError(t, err)
	require.Equal(t, 20.0, balanceOf(t, db, user.ID))

	_, err = led.Update(context.Background(), user.ID, expense.ID, 25, "", food.ID)
	require.NoError(t, err)
	require.Equal(t, 75.0, balanceOf(t, db, user.ID))
	requireInvariant(t, db, user.ID, 100)
}

func TestUpdateInsufficientDelta(t *testing.T) {
	db := setupDB(t)
	led := New(db)
	user := createUser(t, db, "a@example.com", 100)
	food := createCategory(t, db, "Food")

	expense, err := led.Create(context.Background(), user.ID, 90, "keep", food.ID)
	require.NoError(t, err)
	require.Equal(t, 10.0, balanceOf(t, db, user.ID))

	// Raising 90 -> 110 needs 20 more than the remaining 10
	_, err = led.Update(context.Background(), user.ID, expense.ID, 110, "changed", food.ID)
	var insufficient *InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, 10.0, insufficient.Current)
	require.Equal(t, 20.0, insufficient.Required)
	// Failed precondition leaves everything untouched
	require.Equal(t, 10.0, balanceOf(t, db, user.ID))
	var unchanged domain.Expense
	require.NoError(t, db.First(&unchanged, expense.ID).Error)
	require.Equal(t, 90.0, unchanged.Amount)
	require.Equal(t, "keep", unchanged.Description)
}

func TestOwnershipDistinctFromAbsence(t *testing.T) {
	db := setupDB(t)
	led := New(db)
	owner := createUser(t, db, "owner@example.com", 100)
	other := createUser(t, db, "other@example.com", 100)
	food := createCategory(t, db, "Food")

	expense, err := led.Create(context.Background(), owner.ID, 10, "", food.ID)
	require.NoError(t, err)

	// Another user mutating an existing expense is NotOwner, not NotFound
	_, err = led.Update(context.Background(), other.ID, expense.ID, 15, "", food.ID)
	require.ErrorIs(t, err, ErrNotOwner)
	_, err = led.Delete(context.Background(), other.ID, expense.ID)
	require.ErrorIs(t, err, ErrNotOwner)
	_, err = led.Get(context.Background(), other.ID, expense.ID)
	require.ErrorIs(t, err, ErrNotOwner)

	// An absent expense is NotFound for everyone
	_, err = led.Update(context.Background(), owner.ID, 999, 15, "", food.ID)
	require.ErrorIs(t, err, ErrNotFound)
	_, err = led.Delete(context.Background(), owner.ID, 999)
	require.ErrorIs(t, err, ErrNotFound)

	// The failed attempts changed nothing
	require.Equal(t, 90.0, balanceOf(t, db, owner.ID))
	require.Equal(t, 100.0, balanceOf(t, db, other.ID))
}

func TestDeleteRefundsAndRoundTrips(t *testing.T) {
	db := setupDB(t)
	led := New(db)
	user := createUser(t, db, "a@example.com", 100)
	food := createCategory(t, db, "Food")

	expense, err := led.Create(context.Background(), user.ID, 35, "", food.ID)
	require.NoError(t, err)

	refund, err := led.Delete(context.Background(), user.ID, expense.ID)
	require.NoError(t, err)
	require.Equal(t, 35.0, refund)
	require.Equal(t, 100.0, balanceOf(t, db, user.ID))

	// Recreating with the same amount lands on the same balance as before
	_, err = led.Create(context.Background(), user.ID, 35, "", food.ID)
	require.NoError(t, err)
	require.Equal(t, 65.0, balanceOf(t, db, user.ID))
	requireInvariant(t, db, user.ID, 100)
}

// TestBalanceWalkthrough runs the canonical create/update/create/delete
// sequence and checks the balance after every step.
func TestBalanceWalkthrough(t *testing.T) {
	db := setupDB(t)
	led := New(db)
	user := createUser(t, db, "a@example.com", 100)
	food := createCategory(t, db, "Food")
	ctx := context.Background()

	// Create 30.00 -> balance 70.00
	first, err := led.Create(ctx, user.ID, 30, "", food.ID)
	require.NoError(t, err)
	require.Equal(t, 70.0, balanceOf(t, db, user.ID))
	requireInvariant(t, db, user.ID, 100)

	// Update to 50.00 -> delta 20.00 deducted, balance 50.00
	_, err = led.Update(ctx, user.ID, first.ID, 50, "", food.ID)
	require.NoError(t, err)
	require.Equal(t, 50.0, balanceOf(t, db, user.ID))
	requireInvariant(t, db, user.ID, 100)

	// Second create of 60.00 fails, 50.00 < 60.00
	_, err = led.Create(ctx, user.ID, 60, "", food.ID)
	var insufficient *InsufficientBalanceError
	require.ErrorAs(t, err, &insufficient)
	require.Equal(t, 50.0, balanceOf(t, db, user.ID))
	requireInvariant(t, db, user.ID, 100)

	// Delete the first expense -> refund 50.00, balance back to 100.00
	refund, err := led.Delete(ctx, user.ID, first.ID)
	require.NoError(t, err)
	require.Equal(t, 50.0, refund)
	require.Equal(t, 100.0, balanceOf(t, db, user.ID))
	requireInvariant(t, db, user.ID, 100)
}

// TestGuardedWritesDetectLostRace drives the guarded expense write and delete
// with a copy whose amount another committed mutation has since changed. The
// guards must refuse to land, otherwise the stale delta or refund would break
// the balance equation.
func TestGuardedWritesDetectLostRace(t *testing.T) {
	db := setupDB(t)
	led := New(db)
	user := createUser(t, db, "a@example.com", 100)
	food := createCategory(t, db, "Food")
	ctx := context.Background()

	expense, err := led.Create(ctx, user.ID, 50, "", food.ID)
	require.NoError(t, err)

	// Hold a copy read before a second mutation commits
	stale := *expense
	_, err = led.Update(ctx, user.ID, expense.ID, 30, "", food.ID)
	require.NoError(t, err)

	// Both guards key on the amount the copy was read with and miss
	err = overwriteExpense(db, &stale, 40, "", food.ID)
	require.ErrorIs(t, err, ErrConflict)
	err = removeExpense(db, &stale)
	require.ErrorIs(t, err, ErrConflict)

	// The committed update stands untouched
	require.Equal(t, 70.0, balanceOf(t, db, user.ID))
	var current domain.Expense
	require.NoError(t, db.First(&current, expense.ID).Error)
	require.Equal(t, 30.0, current.Amount)
	requireInvariant(t, db, user.ID, 100)

	// Once the row is gone the guards miss for everyone, so a refund can
	// never be paid twice
	_, err = led.Delete(ctx, user.ID, expense.ID)
	require.NoError(t, err)
	stale.Amount = 30
	err = removeExpense(db, &stale)
	require.ErrorIs(t, err, ErrConflict)
	require.Equal(t, 100.0, balanceOf(t, db, user.ID))
}

// TestConcurrentSameExpenseKeepsInvariant races an update against a delete on
// one expense repeatedly; whichever transaction loses must roll back whole,
// so the balance equation holds after every round.
func TestConcurrentSameExpenseKeepsInvariant(t *testing.T) {
	db := setupDB(t)
	led := New(db)
	user := createUser(t, db, "a@example.com", 5000)
	food := createCategory(t, db, "Food")
	ctx := context.Background()

	for round := 0; round < 20; round++ {
		expense, err := led.Create(ctx, user.ID, 50, "", food.ID)
		require.NoError(t, err)

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, _ = led.Update(ctx, user.ID, expense.ID, 30, "", food.ID) // May lose to the delete
		}()
		go func() {
			defer wg.Done()
			_, _ = led.Delete(ctx, user.ID, expense.ID) // May lose to the update
		}()
		wg.Wait()

		// Whatever interleaving happened, nothing half-committed
		requireInvariant(t, db, user.ID, 5000)

		// Drop the expense when the update won the round
		if _, err := led.Get(ctx, user.ID, expense.ID); err == nil {
			_, err := led.Delete(ctx, user.ID, expense.ID)
			require.NoError(t, err)
		}
		requireInvariant(t, db, user.ID, 5000)
	}
	// Every round cleaned up after itself
	require.Equal(t, 5000.0, balanceOf(t, db, user.ID))
}

func TestListFiltersAndPagination(t *testing.T) {
	db := setupDB(t)
	led := New(db)
	user := createUser(t, db, "a@example.com", 1000)
	food := createCategory(t, db, "Food")
	travel := createCategory(t, db, "Travel")
	ctx := context.Background()

	for _, amount := range []float64{10, 20, 30} {
		_, err := led.Create(ctx, user.ID, amount, "", food.ID)
		require.NoError(t, err)
	}
	_, err := led.Create(ctx, user.ID, 200, "", travel.ID)
	require.NoError(t, err)

	// Category filter
	expenses, total, err := led.List(ctx, user.ID, Filter{CategoryID: food.ID})
	require.NoError(t, err)
	require.EqualValues(t, 3, total)
	require.Len(t, expenses, 3)

	// Amount bounds
	minAmount, maxAmount := 15.0, 35.0
	expenses, total, err = led.List(ctx, user.ID, Filter{MinAmount: &minAmount, MaxAmount: &maxAmount})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	for _, e := range expenses {
		require.GreaterOrEqual(t, e.Amount, minAmount)
		require.LessOrEqual(t, e.Amount, maxAmount)
	}

	// Pagination keeps the full count
	expenses, total, err = led.List(ctx, user.ID, Filter{Limit: 2})
	require.NoError(t, err)
	require.EqualValues(t, 4, total)
	require.Len(t, expenses, 2)
}

func TestSummarize(t *testing.T) {
	db := setupDB(t)
	led := New(db)
	user := createUser(t, db, "a@example.com", 100)
	food := createCategory(t, db, "Food")
	travel := createCategory(t, db, "Travel")
	ctx := context.Background()

	_, err := led.Create(ctx, user.ID, 40, "", food.ID)
	require.NoError(t, err)
	_, err = led.Create(ctx, user.ID, 10, "", travel.ID)
	require.NoError(t, err)

	summary, err := led.Summarize(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, 50.0, summary.TotalExpenses)
	require.Equal(t, 2, summary.ExpenseCount)
	require.Equal(t, 50.0, summary.RemainingBalance)
	require.Equal(t, 40.0, summary.CategoryBreakdown["Food"])
	require.Equal(t, 10.0, summary.CategoryBreakdown["Travel"])
}
