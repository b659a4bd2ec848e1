package analytics

import (
	"budget_system/internal/domain" // Importing domain models
	"context"                       // Context for DB operations
	"math"                          // Rounding
	"sort"                          // Deterministic result ordering
	"time"                          // Time window resolution

	"gorm.io/gorm" // GORM ORM library
)

// Engine computes read-only spending aggregates over a user's expenses.
// All windows are half-open intervals [start, now); monetary outputs are
// rounded to 2 decimal places only at the boundary so rounding error never
// compounds across aggregations.
type Engine struct {
	db *gorm.DB // Database handle, reads only
}

// New returns an Engine backed by db
func New(db *gorm.DB) *Engine {
	return &Engine{db: db}
}

// Period is a symbolic analysis window
type Period string

// Supported analysis periods
const (
	PeriodWeek    Period = "week"     // Last 7 days
	PeriodMonth   Period = "month"    // Last 30 days
	PeriodQuarter Period = "quarter"  // Last 90 days
	PeriodYear    Period = "year"     // Last 365 days
	PeriodAllTime Period = "all_time" // Unbounded
)

// Valid reports whether p is a supported period
func (p Period) Valid() bool {
	switch p {
	case PeriodWeek, PeriodMonth, PeriodQuarter, PeriodYear, PeriodAllTime:
		return true
	}
	return false
}

// Days returns the window length in days, 0 for all_time
func (p Period) Days() int {
	switch p {
	case PeriodWeek:
		return 7
	case PeriodMonth:
		return 30
	case PeriodQuarter:
		return 90
	case PeriodYear:
		return 365
	}
	return 0 // all_time has no fixed length
}

// Start resolves p into an absolute lower bound relative to now.
// Returns nil for all_time, meaning no lower bound.
func (p Period) Start(now time.Time) *time.Time {
	days := p.Days()
	if days == 0 {
		return nil // Unbounded window
	}
	start := now.AddDate(0, 0, -days)
	return &start
}

// Round2 rounds a monetary value to 2 decimal places. Aggregations run on
// raw values and round through this only at the boundary.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// TotalSpending summarizes a user's spending within a window
type TotalSpending struct {
	TotalSpent        float64 `json:"total_spent"`         // Sum of expense amounts
	ExpenseCount      int64   `json:"expense_count"`       // Number of expenses
	AveragePerExpense float64 `json:"average_per_expense"` // Total divided by count, 0 when empty
}

// TotalSpending returns the total, count and average of the user's expenses
// from start onward; a nil start means all time.
func (e *Engine) TotalSpending(ctx context.Context, ownerID uint, start *time.Time) (TotalSpending, error) {
	query := e.db.WithContext(ctx).Model(&domain.Expense{}).Where("owner_id = ?", ownerID)
	if start != nil {
		query = query.Where("date >= ?", *start) // Apply the window lower bound
	}
	var row struct {
		Total float64 // Raw sum before rounding
		Cnt   int64   // Expense count
	}
	if err := query.Select("COALESCE(SUM(amount), 0) AS total, COUNT(id) AS cnt").
		Scan(&row).Error; err != nil {
		return TotalSpending{}, err
	}
	avg := 0.0 // Average is 0 when there are no expenses
	if row.Cnt > 0 {
		avg = row.Total / float64(row.Cnt)
	}
	return TotalSpending{
		TotalSpent:        Round2(row.Total), // Rounded at the boundary
		ExpenseCount:      row.Cnt,           // Expense count
		AveragePerExpense: Round2(avg),       // Rounded at the boundary
	}, nil
}

// RemainingBalance returns the user's current balance, reported next to the
// spending totals.
func (e *Engine) RemainingBalance(ctx context.Context, ownerID uint) (float64, error) {
	var user domain.User
	if err := e.db.WithContext(ctx).First(&user, ownerID).Error; err != nil {
		return 0, err
	}
	return user.Balance, nil
}

// CategorySpending is one category's share of a spending window
type CategorySpending struct {
	CategoryID     uint    `json:"category_id"`         // Category identity
	CategoryName   string  `json:"category_name"`       // Category name
	TotalSpent     float64 `json:"total_spent"`         // Sum of amounts in this category
	ExpenseCount   int64   `json:"expense_count"`       // Number of expenses in this category
	AverageAmount  float64 `json:"average_amount"`      // Average amount in this category
	PercentOfTotal float64 `json:"percentage_of_total"` // Share of the window's grand total, 0 when the total is 0
}

// SpendingByCategory breaks the window down per category, sorted descending
// by total with ties broken by category ID so repeated queries are stable.
// The grand total underlying the percentages equals TotalSpending's total for
// the same window.
func (e *Engine) SpendingByCategory(ctx context.Context, ownerID uint, start *time.Time) ([]CategorySpending, error) {
	query := e.db.WithContext(ctx).Model(&domain.Expense{}).
		Select("categories.id AS category_id, categories.name AS category_name, "+
			"SUM(expenses.amount) AS total, COUNT(expenses.id) AS cnt, AVG(expenses.amount) AS avg_amount").
		Joins("JOIN categories ON categories.id = expenses.category_id").
		Where("expenses.owner_id = ?", ownerID).
		Group("categories.id, categories.name")
	if start != nil {
		query = query.Where("expenses.date >= ?", *start) // Apply the window lower bound
	}
	var rows []struct {
		CategoryID   uint    // Category identity
		CategoryName string  // Category name
		Total        float64 // Raw per-category sum
		Cnt          int64   // Per-category count
		AvgAmount    float64 // Raw per-category average
	}
	if err := query.Scan(&rows).Error; err != nil {
		return nil, err
	}
	// Grand total for percentages, computed on raw sums before rounding
	grandTotal := 0.0
	for _, r := range rows {
		grandTotal += r.Total
	}
	// Sort descending by total, ties by category ID for determinism
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Total != rows[j].Total {
			return rows[i].Total > rows[j].Total
		}
		return rows[i].CategoryID < rows[j].CategoryID
	})
	breakdown := make([]CategorySpending, len(rows))
	for i, r := range rows {
		percentage := 0.0 // Percentage is 0 when nothing was spent
		if grandTotal > 0 {
			percentage = r.Total / grandTotal * 100
		}
		breakdown[i] = CategorySpending{
			CategoryID:     r.CategoryID,        // Category identity
			CategoryName:   r.CategoryName,      // Category name
			TotalSpent:     Round2(r.Total),     // Rounded at the boundary
			ExpenseCount:   r.Cnt,               // Per-category count
			AverageAmount:  Round2(r.AvgAmount), // Rounded at the boundary
			PercentOfTotal: Round2(percentage),  // Rounded at the boundary
		}
	}
	return breakdown, nil
}

// DailySpending is one calendar day's spending
type DailySpending struct {
	Date         string  `json:"date"`          // Calendar day, YYYY-MM-DD
	TotalSpent   float64 `json:"total_spent"`   // Sum of amounts on that day
	ExpenseCount int64   `json:"expense_count"` // Number of expenses on that day
}

// DailySpending returns per-day totals for the last days days, ascending by
// date. Days with no expenses are omitted; the series is deliberately sparse.
func (e *Engine) DailySpending(ctx context.Context, ownerID uint, days int) ([]DailySpending, error) {
	start := time.Now().AddDate(0, 0, -days) // Window lower bound
	var expenses []domain.Expense
	if err := e.db.WithContext(ctx).
		Where("owner_id = ? AND date >= ?", ownerID, start).
		Order("date").Find(&expenses).Error; err != nil {
		return nil, err
	}
	// Bucket by calendar day; Find keeps the date ordering so days appear in
	// ascending order as they are first seen
	buckets := map[string]*DailySpending{}
	var order []string // Ascending day keys
	for _, exp := range expenses {
		day := exp.Date.Format("2006-01-02")
		b, ok := buckets[day]
		if !ok {
			b = &DailySpending{Date: day}
			buckets[day] = b
			order = append(order, day)
		}
		b.TotalSpent += exp.Amount // Raw sum, rounded below
		b.ExpenseCount++
	}
	breakdown := make([]DailySpending, len(order))
	for i, day := range order {
		b := buckets[day]
		breakdown[i] = DailySpending{
			Date:         b.Date,               // Calendar day
			TotalSpent:   Round2(b.TotalSpent), // Rounded at the boundary
			ExpenseCount: b.ExpenseCount,       // Day's expense count
		}
	}
	return breakdown, nil
}

// Spending trends between two adjacent windows
const (
	TrendIncreased = "increased" // Current window spent more
	TrendDecreased = "decreased" // Current window spent less
	TrendUnchanged = "unchanged" // Both windows spent the same
)

// PeriodComparison contrasts the current window with the preceding one
type PeriodComparison struct {
	CurrentSpending  float64 `json:"current_spending"`  // Spending in [now-period, now)
	PreviousSpending float64 `json:"previous_spending"` // Spending in [now-2*period, now-period)
	Difference       float64 `json:"difference"`        // Current minus previous
	PercentageChange float64 `json:"percentage_change"` // Relative change; 0 by policy when previous is 0
	Trend            string  `json:"trend"`             // increased, decreased or unchanged
}

// PeriodComparison compares the last periodDays days against the equally long
// window immediately before it. When the previous window is empty the
// percentage change is reported as 0 rather than dividing by zero; that is a
// policy value, not a true percentage.
func (e *Engine) PeriodComparison(ctx context.Context, ownerID uint, periodDays int) (PeriodComparison, error) {
	now := time.Now()
	currentStart := now.AddDate(0, 0, -periodDays)    // Current window lower bound
	previousStart := now.AddDate(0, 0, -2*periodDays) // Previous window lower bound
	// Current window total
	current, err := e.sumBetween(ctx, ownerID, currentStart, nil)
	if err != nil {
		return PeriodComparison{}, err
	}
	// Previous window total, bounded above by the current window's start
	previous, err := e.sumBetween(ctx, ownerID, previousStart, &currentStart)
	if err != nil {
		return PeriodComparison{}, err
	}
	difference := current - previous
	percentage := 0.0 // 0 by policy when there is nothing to compare against
	if previous > 0 {
		percentage = difference / previous * 100
	}
	// Trend follows the sign of the difference
	trend := TrendUnchanged
	if difference > 0 {
		trend = TrendIncreased
	} else if difference < 0 {
		trend = TrendDecreased
	}
	return PeriodComparison{
		CurrentSpending:  Round2(current),    // Rounded at the boundary
		PreviousSpending: Round2(previous),   // Rounded at the boundary
		Difference:       Round2(difference), // Rounded at the boundary
		PercentageChange: Round2(percentage), // Rounded at the boundary
		Trend:            trend,              // Spending trend
	}, nil
}

// sumBetween sums the user's expense amounts in [from, to); a nil to leaves
// the window open-ended.
func (e *Engine) sumBetween(ctx context.Context, ownerID uint, from time.Time, to *time.Time) (float64, error) {
	query := e.db.WithContext(ctx).Model(&domain.Expense{}).
		Where("owner_id = ? AND date >= ?", ownerID, from)
	if to != nil {
		query = query.Where("date < ?", *to) // Half-open upper bound
	}
	var total float64
	if err := query.Select("COALESCE(SUM(amount), 0)").Scan(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}
