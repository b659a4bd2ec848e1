package main

import (
	"budget_system/internal/analytics"  // Custom package for the analytics engine
	"budget_system/internal/api"        // Custom package for API handlers
	"budget_system/internal/config"     // Custom package for configuration
	"budget_system/internal/ledger"     // Custom package for the balance ledger
	"budget_system/internal/middleware" // Custom package for middleware
	"context"                           // context package is needed for Redis operations
	"log"                               // log package is needed for logging

	// For loading .env files
	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
	"gorm.io/driver/mysql"         // MySQL driver for GORM
	"gorm.io/gorm"                 // GORM ORM library
)

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration

	// Setup logger
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Setup Data Source Name (DSN) and connect to the database
	dsn := cfg.DBUser + ":" + cfg.DBPassword + "@tcp(" + cfg.DBHost + ":" + cfg.DBPort + ")/" + cfg.DBName + "?parseTime=true"
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err) // Fatal error if DB connection fails
	}

	// Setup Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr, // Redis server address
		Password: cfg.RedisPass, // Redis password
		DB:       cfg.RedisDB,   // Redis database number
	})

	// Test Redis connection
	_, err = redisClient.Ping(context.Background()).Result()
	if err != nil {
		logrus.Fatalf("failed to connect to Redis: %v", err)
	}

	// Core components over the shared database handle
	led := ledger.New(db)       // Balance ledger
	engine := analytics.New(db) // Analytics engine

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	// Setup Gin
	r := gin.Default() // Gin router instance

	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	// Auth routes
	r.POST("/auth/register", api.RegisterHandler(db, cfg.InitialBalance)) // Registration endpoint
	r.POST("/auth/login", api.LoginHandler(db, cfg.JWTSecret))            // Login endpoint
	// Profile route (protected by JWT)
	r.GET("/auth/me", middleware.JWTAuthMiddleware(cfg.JWTSecret), api.MeHandler(db))

	// Category routes
	categoryGroup := r.Group("/categories")
	categoryGroup.POST("", api.CreateCategoryHandler(db))       // Create category endpoint
	categoryGroup.GET("", api.ListCategoriesHandler(db))        // List categories endpoint
	categoryGroup.GET("/:id", api.GetCategoryHandler(db))       // Get category endpoint
	categoryGroup.PUT("/:id", api.UpdateCategoryHandler(db))    // Update category endpoint
	categoryGroup.DELETE("/:id", api.DeleteCategoryHandler(db)) // Delete category endpoint

	// Expense routes (protected by JWT)
	expenseGroup := r.Group("/expenses")
	// Protect expense routes with JWT middleware and inject Redis client into context
	expenseGroup.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret), func(c *gin.Context) {
		c.Set("redisClient", redisClient)
		c.Next()
	})
	expenseGroup.POST("", api.CreateExpenseHandler(led))               // Create expense endpoint
	expenseGroup.GET("", api.ListExpensesHandler(led))                 // List expenses endpoint
	expenseGroup.GET("/stats/summary", api.ExpenseSummaryHandler(led)) // Expense summary endpoint
	expenseGroup.GET("/:id", api.GetExpenseHandler(led))               // Get expense endpoint
	expenseGroup.PUT("/:id", api.UpdateExpenseHandler(led))            // Update expense endpoint
	expenseGroup.DELETE("/:id", api.DeleteExpenseHandler(led))         // Delete expense endpoint

	// Analytics routes (protected by JWT)
	analyticsGroup := r.Group("/analytics")
	// Protect analytics routes with JWT middleware and inject Redis client into context
	analyticsGroup.Use(middleware.JWTAuthMiddleware(cfg.JWTSecret), func(c *gin.Context) {
		c.Set("redisClient", redisClient)
		c.Next()
	})
	analyticsGroup.GET("/spending/total", api.TotalSpendingHandler(engine))            // Total spending endpoint
	analyticsGroup.GET("/spending/by-category", api.SpendingByCategoryHandler(engine)) // Category breakdown endpoint
	analyticsGroup.GET("/spending/daily", api.DailySpendingHandler(engine))            // Daily spending endpoint
	analyticsGroup.GET("/spending/comparison", api.PeriodComparisonHandler(engine))    // Period comparison endpoint

	log.Println("Server running on " + cfg.AppPort) // Log server start
	r.Run(":" + cfg.AppPort)                        // Start the server on port cfg.AppPort
}
