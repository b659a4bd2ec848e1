package db

import (
	"budget_system/internal/domain" // Importing domain models

	"github.com/sirupsen/logrus"

	"gorm.io/driver/mysql" // MySQL driver for GORM
	"gorm.io/gorm"         // GORM ORM library
)

// Predefined categories created on migration if they don't exist
var predefinedCategories = []string{
	"Food",
	"Car",
	"Accommodation",
	"Gifts",
	"Entertainment",
	"Healthcare",
	"Utilities",
	"Shopping",
	"Travel",
	"Education",
}

// Migrate performs automatic migration for the database schema
func Migrate(dsn string) {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{}) // Open a connection to the database
	if err != nil {
		logrus.Fatalf("failed to connect database: %v", err) // Log fatal error if connection fails
	}
	// AutoMigrate will create tables, missing foreign keys, constraints, columns and indexes
	err = db.AutoMigrate(&domain.User{}, &domain.Category{}, &domain.Expense{})
	if err != nil {
		logrus.Fatalf("migration failed: %v", err) // Log fatal error if migration fails
	}
	// Seed the predefined categories
	if err := SeedCategories(db); err != nil {
		logrus.Fatalf("category seeding failed: %v", err) // Log fatal error if seeding fails
	}
	logrus.Info("Migration completed.") // Log successful migration
}

// SeedCategories creates the predefined categories that don't exist yet
func SeedCategories(db *gorm.DB) error {
	for _, name := range predefinedCategories {
		category := domain.Category{Name: name}
		// FirstOrCreate keeps existing rows untouched
		if err := db.Where("name = ?", name).FirstOrCreate(&category).Error; err != nil {
			return err
		}
	}
	return nil
}
