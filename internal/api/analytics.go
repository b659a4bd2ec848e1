package api

import (
	"budget_system/internal/analytics" // Analytics engine core
	"budget_system/internal/utils"     // Utility functions
	"context"                          // Context for Redis operations
	"net/http"                         // HTTP status codes
	"strconv"                          // String conversion
	"time"                             // Time durations

	"github.com/gin-gonic/gin" // Gin web framework
)

// analyticsCacheTTL keeps analytics responses around; mutations invalidate
// them eagerly so the TTL is a backstop.
const analyticsCacheTTL = 60 * time.Second

// queryPeriod reads and validates the period query parameter
func queryPeriod(c *gin.Context, fallback analytics.Period) (analytics.Period, bool) {
	period := analytics.Period(c.DefaultQuery("period", string(fallback)))
	if !period.Valid() {
		// Unknown period, return bad request
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid period"})
		return "", false
	}
	return period, true
}

// TotalSpendingHandler returns the user's total spending for a period
func TotalSpendingHandler(engine *analytics.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c) // Get userID from context
		if !ok {
			// If missing, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		period, ok := queryPeriod(c, analytics.PeriodAllTime) // Period defaults to all_time
		if !ok {
			return
		}
		// Cache key for this user and period
		cacheKey := "analytics:total:user:" + strconv.Itoa(int(userID)) + ":period:" + string(period)
		ctx := context.Background() // Context for Redis operations
		rdb, hasRedis := redisFrom(c)
		var cached struct {
			Period string `json:"period"` // Requested period
			analytics.TotalSpending
			RemainingBalance float64 `json:"remaining_balance"` // Current balance next to the totals
		}
		// Try to get from cache
		if hasRedis {
			found, err := utils.GetCache(ctx, rdb, cacheKey, &cached)
			if err == nil && found {
				c.JSON(http.StatusOK, cached) // Return cached totals
				return
			}
		}
		// Resolve the window and compute
		start := period.Start(time.Now())
		totals, err := engine.TotalSpending(c.Request.Context(), userID, start)
		if err != nil {
			// If computing fails, return internal server error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute total spending"})
			return
		}
		// The remaining balance rides along with every window
		balance, err := engine.RemainingBalance(c.Request.Context(), userID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute total spending"})
			return
		}
		cached.Period = string(period)    // Requested period
		cached.TotalSpending = totals     // Computed totals
		cached.RemainingBalance = balance // Current balance
		// Cache the result
		if hasRedis {
			_ = utils.SetCache(ctx, rdb, cacheKey, cached, analyticsCacheTTL)
		}
		c.JSON(http.StatusOK, cached) // Return the totals
	}
}

// SpendingByCategoryHandler returns the user's per-category breakdown for a period
func SpendingByCategoryHandler(engine *analytics.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c) // Get userID from context
		if !ok {
			// If missing, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		period, ok := queryPeriod(c, analytics.PeriodAllTime) // Period defaults to all_time
		if !ok {
			return
		}
		// Cache key for this user and period
		cacheKey := "analytics:bycategory:user:" + strconv.Itoa(int(userID)) + ":period:" + string(period)
		ctx := context.Background() // Context for Redis operations
		rdb, hasRedis := redisFrom(c)
		var cached struct {
			Period     string                       `json:"period"`      // Requested period
			TotalSpent float64                      `json:"total_spent"` // Grand total across categories
			Categories []analytics.CategorySpending `json:"categories"`  // Ordered breakdown
		}
		// Try to get from cache
		if hasRedis {
			found, err := utils.GetCache(ctx, rdb, cacheKey, &cached)
			if err == nil && found {
				c.JSON(http.StatusOK, cached) // Return cached breakdown
				return
			}
		}
		// Resolve the window and compute
		start := period.Start(time.Now())
		categories, err := engine.SpendingByCategory(c.Request.Context(), userID, start)
		if err != nil {
			// If computing fails, return internal server error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute category breakdown"})
			return
		}
		// Grand total across the returned categories
		total := 0.0
		for _, cat := range categories {
			total += cat.TotalSpent
		}
		cached.Period = string(period) // Requested period
		cached.TotalSpent = total      // Grand total
		cached.Categories = categories // Ordered breakdown
		// Cache the result
		if hasRedis {
			_ = utils.SetCache(ctx, rdb, cacheKey, cached, analyticsCacheTTL)
		}
		c.JSON(http.StatusOK, cached) // Return the breakdown
	}
}

// DailySpendingHandler returns the user's per-day spending for the last N days
func DailySpendingHandler(engine *analytics.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c) // Get userID from context
		if !ok {
			// If missing, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		days := 30 // Default day count
		// If days exists in query
		if d := c.Query("days"); d != "" {
			// Convert days to integer, bounded to one year
			v, err := strconv.Atoi(d)
			if err != nil || v < 1 || v > 365 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "Days must be between 1 and 365"})
				return
			}
			days = v // Set days if valid
		}
		// Cache key for this user and day count
		cacheKey := "analytics:daily:user:" + strconv.Itoa(int(userID)) + ":days:" + strconv.Itoa(days)
		ctx := context.Background() // Context for Redis operations
		rdb, hasRedis := redisFrom(c)
		var cached struct {
			PeriodDays           int                       `json:"period_days"`            // Requested day count
			TotalSpent           float64                   `json:"total_spent"`            // Window total
			TotalExpenses        int64                     `json:"total_expenses"`         // Window expense count
			AverageDailySpending float64                   `json:"average_daily_spending"` // Total divided by the day count
			DailyBreakdown       []analytics.DailySpending `json:"daily_breakdown"`        // Sparse ascending series
		}
		// Try to get from cache
		if hasRedis {
			found, err := utils.GetCache(ctx, rdb, cacheKey, &cached)
			if err == nil && found {
				c.JSON(http.StatusOK, cached) // Return cached series
				return
			}
		}
		// Compute the sparse daily series
		breakdown, err := engine.DailySpending(c.Request.Context(), userID, days)
		if err != nil {
			// If computing fails, return internal server error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute daily spending"})
			return
		}
		// Summary statistics over the series
		var totalSpent float64
		var totalExpenses int64
		for _, day := range breakdown {
			totalSpent += day.TotalSpent
			totalExpenses += day.ExpenseCount
		}
		cached.PeriodDays = days                                                   // Requested day count
		cached.TotalSpent = totalSpent                                             // Window total
		cached.TotalExpenses = totalExpenses                                       // Window expense count
		cached.AverageDailySpending = analytics.Round2(totalSpent / float64(days)) // Average over every day in the window
		cached.DailyBreakdown = breakdown                                          // Sparse ascending series
		// Cache the result
		if hasRedis {
			_ = utils.SetCache(ctx, rdb, cacheKey, cached, analyticsCacheTTL)
		}
		c.JSON(http.StatusOK, cached) // Return the series
	}
}

// PeriodComparisonHandler compares the current period with the previous one
func PeriodComparisonHandler(engine *analytics.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c) // Get userID from context
		if !ok {
			// If missing, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		period, ok := queryPeriod(c, analytics.PeriodMonth) // Period defaults to month
		if !ok {
			return
		}
		// Cache key for this user and period
		cacheKey := "analytics:comparison:user:" + strconv.Itoa(int(userID)) + ":period:" + string(period)
		ctx := context.Background() // Context for Redis operations
		rdb, hasRedis := redisFrom(c)
		var cached struct {
			CurrentPeriod string `json:"current_period"` // Requested period
			analytics.PeriodComparison
		}
		// Try to get from cache
		if hasRedis {
			found, err := utils.GetCache(ctx, rdb, cacheKey, &cached)
			if err == nil && found {
				c.JSON(http.StatusOK, cached) // Return cached comparison
				return
			}
		}
		// all_time has no preceding window to compare against; return the
		// total with an explicit no_comparison trend
		if period == analytics.PeriodAllTime {
			totals, err := engine.TotalSpending(c.Request.Context(), userID, nil)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute comparison"})
				return
			}
			cached.CurrentPeriod = string(period)
			cached.PeriodComparison = analytics.PeriodComparison{
				CurrentSpending:  totals.TotalSpent, // All-time total
				PreviousSpending: 0,                 // Nothing precedes all time
				Difference:       totals.TotalSpent, // Difference equals the total
				PercentageChange: 0,                 // No comparison basis
				Trend:            "no_comparison",   // Explicit marker
			}
			if hasRedis {
				_ = utils.SetCache(ctx, rdb, cacheKey, cached, analyticsCacheTTL)
			}
			c.JSON(http.StatusOK, cached)
			return
		}
		// Compare against the immediately preceding equal-length window
		comparison, err := engine.PeriodComparison(c.Request.Context(), userID, period.Days())
		if err != nil {
			// If computing fails, return internal server error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute comparison"})
			return
		}
		cached.CurrentPeriod = string(period) // Requested period
		cached.PeriodComparison = comparison  // Computed comparison
		// Cache the result
		if hasRedis {
			_ = utils.SetCache(ctx, rdb, cacheKey, cached, analyticsCacheTTL)
		}
		c.JSON(http.StatusOK, cached) // Return the comparison
	}
}
