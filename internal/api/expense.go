package api

import (
	"budget_system/internal/analytics" // Analysis periods for cache invalidation
	"budget_system/internal/domain"    // Importing domain models
	"budget_system/internal/ledger"    // Balance ledger core
	"budget_system/internal/utils"     // Utility functions
	"context"                          // Context for Redis operations
	"errors"                           // Error inspection
	"net/http"                         // HTTP status codes
	"strconv"                          // String conversion
	"time"                             // Time durations

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
)

// Request struct for expense create/update
type ExpenseRequest struct {
	Amount      float64 `json:"amount" binding:"required"`      // Expense amount
	Description string  `json:"description"`                    // Optional description
	CategoryID  uint    `json:"category_id" binding:"required"` // Referenced category
}

// currentUserID pulls the authenticated user ID the JWT middleware stored
func currentUserID(c *gin.Context) (uint, bool) {
	v, exists := c.Get("userID")
	if !exists {
		return 0, false
	}
	id, ok := v.(uint)
	return id, ok
}

// redisFrom returns the Redis client injected by the route group, if any.
// Handlers work without one, they just skip caching.
func redisFrom(c *gin.Context) (*redis.Client, bool) {
	v, exists := c.Get("redisClient")
	if !exists {
		return nil, false
	}
	rdb, ok := v.(*redis.Client)
	return rdb, ok && rdb != nil
}

// writeLedgerError maps ledger errors to HTTP responses, keeping the
// quantities the caller needs visible.
func writeLedgerError(c *gin.Context, err error) {
	var insufficient *ledger.InsufficientBalanceError
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount):
		// Amount failed the positivity precondition
		c.JSON(http.StatusBadRequest, gin.H{"error": "Expense amount must be positive"})
	case errors.Is(err, ledger.ErrCategoryNotFound):
		// Referenced category does not exist
		c.JSON(http.StatusNotFound, gin.H{"error": "Category not found"})
	case errors.Is(err, ledger.ErrNotFound):
		// Expense row absent
		c.JSON(http.StatusNotFound, gin.H{"error": "Expense not found"})
	case errors.Is(err, ledger.ErrNotOwner):
		// Mutation attempted by a non-owner
		c.JSON(http.StatusForbidden, gin.H{"error": "Not authorized to access this expense"})
	case errors.Is(err, ledger.ErrConflict):
		// Balance moved concurrently, the client retries
		c.JSON(http.StatusConflict, gin.H{"error": "Balance changed concurrently, please retry"})
	case errors.As(err, &insufficient):
		// Report both quantities for caller display
		c.JSON(http.StatusBadRequest, gin.H{
			"error":           "Insufficient balance",
			"current_balance": insufficient.Current,  // Balance at the failed debit
			"required_amount": insufficient.Required, // Amount the operation needed
		})
	default:
		// Anything else is an internal failure
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Operation failed"})
	}
}

// invalidateUserCaches drops the user's cached analytics and expense listings
// after a committed mutation (simple version: known periods and the first 5
// list pages).
func invalidateUserCaches(ctx context.Context, rdb *redis.Client, userID uint) {
	user := strconv.Itoa(int(userID)) // User ID as cache key fragment
	var keys []string                 // Keys to delete in one round trip
	// Analytics caches per symbolic period
	for _, p := range []analytics.Period{analytics.PeriodWeek, analytics.PeriodMonth,
		analytics.PeriodQuarter, analytics.PeriodYear, analytics.PeriodAllTime} {
		keys = append(keys,
			"analytics:total:user:"+user+":period:"+string(p),      // Total spending cache
			"analytics:bycategory:user:"+user+":period:"+string(p), // Category breakdown cache
			"analytics:comparison:user:"+user+":period:"+string(p), // Period comparison cache
		)
	}
	// Daily spending caches for the common day counts
	for _, d := range []int{7, 30, 90, 365} {
		keys = append(keys, "analytics:daily:user:"+user+":days:"+strconv.Itoa(d))
	}
	// Expense list caches (first 5 pages, default size)
	for i := 1; i <= 5; i++ {
		keys = append(keys, "expenses:user:"+user+":page:"+strconv.Itoa(i)+":size:20")
	}
	keys = append(keys, "expenses:summary:user:"+user) // Summary cache
	_ = utils.DeleteCache(ctx, rdb, keys...)           // Invalidate all keys
}

// CreateExpenseHandler records a new expense for the authenticated user and
// deducts its amount from their balance.
func CreateExpenseHandler(led *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c) // Get userID from context
		if !ok {
			// If missing, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		var req ExpenseRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		// Apply the creation through the ledger
		expense, err := led.Create(c.Request.Context(), userID, req.Amount, req.Description, req.CategoryID)
		if err != nil {
			writeLedgerError(c, err) // Map ledger errors to HTTP responses
			return
		}
		// Invalidate the user's cached reads
		if rdb, ok := redisFrom(c); ok {
			invalidateUserCaches(context.Background(), rdb, userID)
		}
		c.JSON(http.StatusCreated, expense) // Return the created expense
	}
}

// UpdateExpenseHandler overwrites an owned expense and settles the amount
// delta against the balance.
func UpdateExpenseHandler(led *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c) // Get userID from context
		if !ok {
			// If missing, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		// Parse the expense ID from the path
		expenseID, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid expense ID"})
			return
		}
		var req ExpenseRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		// Apply the update through the ledger
		expense, err := led.Update(c.Request.Context(), userID, uint(expenseID), req.Amount, req.Description, req.CategoryID)
		if err != nil {
			writeLedgerError(c, err) // Map ledger errors to HTTP responses
			return
		}
		// Invalidate the user's cached reads
		if rdb, ok := redisFrom(c); ok {
			invalidateUserCaches(context.Background(), rdb, userID)
		}
		c.JSON(http.StatusOK, expense) // Return the updated expense
	}
}

// DeleteExpenseHandler removes an owned expense and refunds its amount
func DeleteExpenseHandler(led *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c) // Get userID from context
		if !ok {
			// If missing, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		// Parse the expense ID from the path
		expenseID, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid expense ID"})
			return
		}
		// Apply the deletion through the ledger
		refund, err := led.Delete(c.Request.Context(), userID, uint(expenseID))
		if err != nil {
			writeLedgerError(c, err) // Map ledger errors to HTTP responses
			return
		}
		// Invalidate the user's cached reads
		if rdb, ok := redisFrom(c); ok {
			invalidateUserCaches(context.Background(), rdb, userID)
		}
		// Return success response with the refunded amount
		c.JSON(http.StatusOK, gin.H{"message": "Expense deleted successfully", "refunded_amount": refund})
	}
}

// GetExpenseHandler returns one owned expense by ID
func GetExpenseHandler(led *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c) // Get userID from context
		if !ok {
			// If missing, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		// Parse the expense ID from the path
		expenseID, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid expense ID"})
			return
		}
		// Fetch through the ledger's ownership check
		expense, err := led.Get(c.Request.Context(), userID, uint(expenseID))
		if err != nil {
			writeLedgerError(c, err) // Map ledger errors to HTTP responses
			return
		}
		c.JSON(http.StatusOK, expense) // Return the expense
	}
}

// ListExpensesHandler returns the user's expenses with optional filters and
// pagination, served from cache when possible.
func ListExpensesHandler(led *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c) // Get userID from context
		if !ok {
			// If missing, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		page := 1      // Default page
		pageSize := 20 // Default page size
		// If page exists in query
		if p := c.Query("page"); p != "" {
			// Convert page to integer
			if v, err := strconv.Atoi(p); err == nil && v > 0 {
				page = v // Set page if valid
			}
		}
		// If page_size exists in query
		if ps := c.Query("page_size"); ps != "" {
			// Convert page_size to integer
			if v, err := strconv.Atoi(ps); err == nil && v > 0 && v <= 100 {
				pageSize = v // Set page size if valid
			}
		}
		// Collect the optional filters
		filter := ledger.Filter{
			Offset: (page - 1) * pageSize, // Pagination offset
			Limit:  pageSize,              // Page size
		}
		if v := c.Query("category_id"); v != "" {
			if id, err := strconv.ParseUint(v, 10, 64); err == nil {
				filter.CategoryID = uint(id) // Filter by category
			}
		}
		if v := c.Query("min_amount"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				filter.MinAmount = &f // Filter by minimum amount
			}
		}
		if v := c.Query("max_amount"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				filter.MaxAmount = &f // Filter by maximum amount
			}
		}
		// Only unfiltered pages are cached; filtered listings hit the database
		cacheable := filter.CategoryID == 0 && filter.MinAmount == nil && filter.MaxAmount == nil
		cacheKey := "expenses:user:" + strconv.Itoa(int(userID)) +
			":page:" + strconv.Itoa(page) + ":size:" + strconv.Itoa(pageSize)
		ctx := context.Background() // Context for Redis operations
		rdb, hasRedis := redisFrom(c)
		var cached struct {
			Expenses   []domain.Expense `json:"expenses"`    // List of expenses
			Page       int              `json:"page"`        // Current page
			PageSize   int              `json:"page_size"`   // Page size
			Total      int64            `json:"total"`       // Total expenses
			TotalPages int              `json:"total_pages"` // Total pages
		}
		// Try to get from cache
		if hasRedis && cacheable {
			found, err := utils.GetCache(ctx, rdb, cacheKey, &cached)
			if err == nil && found {
				c.JSON(http.StatusOK, gin.H{
					"expenses":    cached.Expenses,   // Cached expenses
					"page":        cached.Page,       // Current page
					"page_size":   cached.PageSize,   // Page size
					"total":       cached.Total,      // Total expenses
					"total_pages": cached.TotalPages, // Total pages
					"cached":      true,              // Indicate response is from cache
				})
				return
			}
		}
		// Fetch from the ledger
		expenses, total, err := led.List(c.Request.Context(), userID, filter)
		if err != nil {
			// If fetching fails, return internal server error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch expenses"})
			return
		}
		// Calculate total pages
		totalPages := (int(total) + pageSize - 1) / pageSize
		resp := gin.H{
			"expenses":    expenses,   // List of expenses
			"page":        page,       // Current page
			"page_size":   pageSize,   // Page size
			"total":       total,      // Total expenses
			"total_pages": totalPages, // Total pages
			"cached":      false,      // Not from cache
		}
		// Cache the result for 60 seconds
		if hasRedis && cacheable {
			_ = utils.SetCache(ctx, rdb, cacheKey, resp, 60*time.Second)
		}
		c.JSON(http.StatusOK, resp) // Return the expense list
	}
}

// ExpenseSummaryHandler returns the user's overall expense summary
func ExpenseSummaryHandler(led *ledger.Ledger) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := currentUserID(c) // Get userID from context
		if !ok {
			// If missing, return unauthorized
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized"})
			return
		}
		cacheKey := "expenses:summary:user:" + strconv.Itoa(int(userID)) // Summary cache key
		ctx := context.Background()                                      // Context for Redis operations
		rdb, hasRedis := redisFrom(c)
		var cached ledger.Summary // Cached summary
		// Try to get from cache
		if hasRedis {
			found, err := utils.GetCache(ctx, rdb, cacheKey, &cached)
			if err == nil && found {
				c.JSON(http.StatusOK, cached) // Return cached summary
				return
			}
		}
		// Compute through the ledger
		summary, err := led.Summarize(c.Request.Context(), userID)
		if err != nil {
			// If computing fails, return internal server error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to compute summary"})
			return
		}
		// Cache the result for 60 seconds
		if hasRedis {
			_ = utils.SetCache(ctx, rdb, cacheKey, summary, 60*time.Second)
		}
		c.JSON(http.StatusOK, summary) // Return the summary
	}
}
