package api

import (
	"budget_system/internal/analytics"
	"budget_system/internal/domain"
	"budget_system/internal/ledger"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
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

// setupRouter wires the expense and analytics routes behind a stub auth
// middleware that fixes the authenticated user. No Redis client is injected,
// so handlers run uncached.
func setupRouter(db *gorm.DB, userID uint) *gin.Engine {
	gin.SetMode(gin.TestMode)
	led := ledger.New(db)
	engine := analytics.New(db)
	r := gin.New()
	authStub := func(c *gin.Context) {
		c.Set("userID", userID) // Authenticated identity for the request
		c.Next()
	}
	expenseGroup := r.Group("/expenses", authStub)
	expenseGroup.POST("", CreateExpenseHandler(led))
	expenseGroup.GET("", ListExpensesHandler(led))
	expenseGroup.GET("/stats/summary", ExpenseSummaryHandler(led))
	expenseGroup.GET("/:id", GetExpenseHandler(led))
	expenseGroup.PUT("/:id", UpdateExpenseHandler(led))
	expenseGroup.DELETE("/:id", DeleteExpenseHandler(led))
	analyticsGroup := r.Group("/analytics", authStub)
	analyticsGroup.GET("/spending/total", TotalSpendingHandler(engine))
	analyticsGroup.GET("/spending/by-category", SpendingByCategoryHandler(engine))
	analyticsGroup.GET("/spending/daily", DailySpendingHandler(engine))
	return r
}

func doJSON(r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCreateExpenseEndpoint(t *testing.T) {
	db := setupDB(t)
	user := &domain.User{Email: "a@example.com", Password: "hash", Balance: 100}
	require.NoError(t, db.Create(user).Error)
	category := &domain.Category{Name: "Food"}
	require.NoError(t, db.Create(category).Error)
	r := setupRouter(db, user.ID)

	w := doJSON(r, http.MethodPost, "/expenses", gin.H{
		"amount": 30.0, "description": "groceries", "category_id": category.ID,
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var created domain.Expense
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &created))
	require.Equal(t, 30.0, created.Amount)
	require.Equal(t, "Food", created.Category.Name)

	// The balance deduction committed with the expense
	var reloaded domain.User
	require.NoError(t, db.First(&reloaded, user.ID).Error)
	require.Equal(t, 70.0, reloaded.Balance)
}

func TestCreateExpenseErrorMapping(t *testing.T) {
	db := setupDB(t)
	user := &domain.User{Email: "a@example.com", Password: "hash", Balance: 50}
	require.NoError(t, db.Create(user).Error)
	category := &domain.Category{Name: "Food"}
	require.NoError(t, db.Create(category).Error)
	r := setupRouter(db, user.ID)

	// Missing category
	w := doJSON(r, http.MethodPost, "/expenses", gin.H{"amount": 10.0, "category_id": 999})
	require.Equal(t, http.StatusNotFound, w.Code)

	// Non-positive amount
	w = doJSON(r, http.MethodPost, "/expenses", gin.H{"amount": -3.0, "category_id": category.ID})
	require.Equal(t, http.StatusBadRequest, w.Code)

	// Insufficient balance carries both quantities
	w = doJSON(r, http.MethodPost, "/expenses", gin.H{"amount": 60.0, "category_id": category.ID})
	require.Equal(t, http.StatusBadRequest, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 50.0, body["current_balance"])
	require.Equal(t, 60.0, body["required_amount"])

	// None of the failures moved the balance
	var reloaded domain.User
	require.NoError(t, db.First(&reloaded, user.ID).Error)
	require.Equal(t, 50.0, reloaded.Balance)
}

func TestDeleteExpenseReportsRefund(t *testing.T) {
	db := setupDB(t)
	user := &domain.User{Email: "a@example.com", Password: "hash", Balance: 100}
	require.NoError(t, db.Create(user).Error)
	category := &domain.Category{Name: "Food"}
	require.NoError(t, db.Create(category).Error)
	led := ledger.New(db)
	expense, err := led.Create(context.Background(), user.ID, 35, "", category.ID)
	require.NoError(t, err)
	r := setupRouter(db, user.ID)

	w := doJSON(r, http.MethodDelete, fmt.Sprintf("/expenses/%d", expense.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, 35.0, body["refunded_amount"])

	var reloaded domain.User
	require.NoError(t, db.First(&reloaded, user.ID).Error)
	require.Equal(t, 100.0, reloaded.Balance)
}

func TestUpdateExpenseForbiddenForNonOwner(t *testing.T) {
	db := setupDB(t)
	owner := &domain.User{Email: "owner@example.com", Password: "hash", Balance: 100}
	require.NoError(t, db.Create(owner).Error)
	other := &domain.User{Email: "other@example.com", Password: "hash", Balance: 100}
	require.NoError(t, db.Create(other).Error)
	category := &domain.Category{Name: "Food"}
	require.NoError(t, db.Create(category).Error)
	led := ledger.New(db)
	expense, err := led.Create(context.Background(), owner.ID, 10, "", category.ID)
	require.NoError(t, err)

	// The router authenticates as the non-owner
	r := setupRouter(db, other.ID)
	w := doJSON(r, http.MethodPut, fmt.Sprintf("/expenses/%d", expense.ID), gin.H{
		"amount": 15.0, "category_id": category.ID,
	})
	require.Equal(t, http.StatusForbidden, w.Code)

	// An absent expense is a plain not found
	w = doJSON(r, http.MethodPut, "/expenses/999", gin.H{"amount": 15.0, "category_id": category.ID})
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestAnalyticsEndpoints(t *testing.T) {
	db := setupDB(t)
	user := &domain.User{Email: "a@example.com", Password: "hash", Balance: 100}
	require.NoError(t, db.Create(user).Error)
	catA := &domain.Category{Name: "Food"}
	require.NoError(t, db.Create(catA).Error)
	catB := &domain.Category{Name: "Travel"}
	require.NoError(t, db.Create(catB).Error)
	led := ledger.New(db)
	_, err := led.Create(context.Background(), user.ID, 40, "", catA.ID)
	require.NoError(t, err)
	_, err = led.Create(context.Background(), user.ID, 10, "", catB.ID)
	require.NoError(t, err)
	r := setupRouter(db, user.ID)

	// Totals for the default all_time window
	w := doJSON(r, http.MethodGet, "/analytics/spending/total", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var totals struct {
		Period            string  `json:"period"`
		TotalSpent        float64 `json:"total_spent"`
		ExpenseCount      int64   `json:"expense_count"`
		AveragePerExpense float64 `json:"average_per_expense"`
		RemainingBalance  float64 `json:"remaining_balance"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &totals))
	require.Equal(t, "all_time", totals.Period)
	require.Equal(t, 50.0, totals.TotalSpent)
	require.EqualValues(t, 2, totals.ExpenseCount)
	require.Equal(t, 25.0, totals.AveragePerExpense)
	require.Equal(t, 50.0, totals.RemainingBalance)

	// Category breakdown ordered by total
	w = doJSON(r, http.MethodGet, "/analytics/spending/by-category?period=month", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var breakdown struct {
		TotalSpent float64                      `json:"total_spent"`
		Categories []analytics.CategorySpending `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &breakdown))
	require.Equal(t, 50.0, breakdown.TotalSpent)
	require.Len(t, breakdown.Categories, 2)
	require.Equal(t, "Food", breakdown.Categories[0].CategoryName)

	// Daily series rounds the average at the boundary: 50 / 30 = 1.666...
	w = doJSON(r, http.MethodGet, "/analytics/spending/daily?days=30", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var daily struct {
		PeriodDays           int     `json:"period_days"`
		TotalSpent           float64 `json:"total_spent"`
		AverageDailySpending float64 `json:"average_daily_spending"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &daily))
	require.Equal(t, 30, daily.PeriodDays)
	require.Equal(t, 50.0, daily.TotalSpent)
	require.Equal(t, 1.67, daily.AverageDailySpending)

	// Unknown period is rejected
	w = doJSON(r, http.MethodGet, "/analytics/spending/total?period=fortnight", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
