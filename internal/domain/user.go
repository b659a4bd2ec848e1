package domain

// User Model
type User struct {
	ID       uint      `gorm:"primaryKey"`         // Primary key
	Email    string    `gorm:"unique;not null"`    // Unique email address
	Password string    `gorm:"not null" json:"-"`  // Hashed password, never serialized
	Balance  float64   `gorm:"not null;default:0"` // Remaining balance, mutated only by the ledger
	Expenses []Expense `gorm:"foreignKey:OwnerID"` // One-to-many relationship with Expense
}
