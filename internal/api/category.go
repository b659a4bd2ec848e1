package api

import (
	"budget_system/internal/domain" // Importing domain models
	"net/http"                      // HTTP status codes

	"github.com/gin-gonic/gin" // Gin web framework
	"gorm.io/gorm"             // GORM ORM library
)

// Request struct for category create/update
type CategoryRequest struct {
	Name string `json:"name" binding:"required"` // Category name must be provided
}

// CreateCategoryHandler creates a new category with a unique name
func CreateCategoryHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CategoryRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		// Check if the category name already exists
		var existing domain.Category
		if err := db.Where("name = ?", req.Name).First(&existing).Error; err == nil {
			// If it exists, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Category already exists"})
			return
		}
		// Create the new category
		category := domain.Category{Name: req.Name}
		if err := db.Create(&category).Error; err != nil {
			// If creation fails, return internal server error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create category"})
			return
		}
		// Return the created category
		c.JSON(http.StatusCreated, category)
	}
}

// ListCategoriesHandler returns all categories
func ListCategoriesHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var categories []domain.Category // Slice to hold categories
		if err := db.Order("id").Find(&categories).Error; err != nil {
			// If fetching fails, return internal server error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch categories"})
			return
		}
		c.JSON(http.StatusOK, categories) // Return all categories
	}
}

// GetCategoryHandler returns a single category by ID
func GetCategoryHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var category domain.Category // Category struct to hold data
		if err := db.First(&category, c.Param("id")).Error; err != nil {
			// If category not found, return not found
			c.JSON(http.StatusNotFound, gin.H{"error": "Category not found"})
			return
		}
		c.JSON(http.StatusOK, category) // Return the category
	}
}

// UpdateCategoryHandler renames a category, keeping names unique
func UpdateCategoryHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CategoryRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request"})
			return
		}
		var category domain.Category // Fetch the existing category
		if err := db.First(&category, c.Param("id")).Error; err != nil {
			// If category not found, return not found
			c.JSON(http.StatusNotFound, gin.H{"error": "Category not found"})
			return
		}
		// Check if the new name is taken by a different category
		var existing domain.Category
		if err := db.Where("name = ? AND id <> ?", req.Name, category.ID).First(&existing).Error; err == nil {
			// If taken, return bad request
			c.JSON(http.StatusBadRequest, gin.H{"error": "Category name already exists"})
			return
		}
		// Apply the rename
		if err := db.Model(&category).Update("name", req.Name).Error; err != nil {
			// If the update fails, return internal server error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update category"})
			return
		}
		c.JSON(http.StatusOK, category) // Return the updated category
	}
}

// DeleteCategoryHandler deletes a category that no expense references.
// Deletion is rejected while references exist so expense rows never point at
// a missing category.
func DeleteCategoryHandler(db *gorm.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		var category domain.Category // Fetch the category
		if err := db.First(&category, c.Param("id")).Error; err != nil {
			// If category not found, return not found
			c.JSON(http.StatusNotFound, gin.H{"error": "Category not found"})
			return
		}
		// Count expenses that still reference this category
		var refs int64
		if err := db.Model(&domain.Expense{}).Where("category_id = ?", category.ID).Count(&refs).Error; err != nil {
			// If counting fails, return internal server error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to check category references"})
			return
		}
		// Reject deletion while expenses reference the category
		if refs > 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "Category is referenced by existing expenses"})
			return
		}
		// Delete the category row
		if err := db.Delete(&category).Error; err != nil {
			// If deletion fails, return internal server error
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to delete category"})
			return
		}
		// Return success response
		c.JSON(http.StatusOK, gin.H{"message": "Category deleted successfully"})
	}
}
