package domain

import "time"

// Expense Model
type Expense struct {
	ID          uint      `gorm:"primaryKey" json:"id"`           // Primary key
	Amount      float64   `gorm:"not null" json:"amount"`         // Expense amount, always positive
	Description string    `json:"description"`                    // Optional free-text description
	Date        time.Time `gorm:"autoCreateTime" json:"date"`     // Creation timestamp, immutable
	OwnerID     uint      `gorm:"index;not null" json:"owner_id"` // Foreign key to User, set once at creation
	CategoryID  uint      `gorm:"not null" json:"category_id"`    // Foreign key to Category, mutable via update
	Category    Category  `json:"category"`                       // Category relation for responses
}
