package model

// User is the profile entity other subsystems (orders, carts) reference.
// The auth core owns its creation during registration; everything else about
// it lives elsewhere.
type User struct {
	Base
	FirstName string  `gorm:"column:first_name" json:"first_name"`
	LastName  *string `gorm:"column:last_name" json:"last_name,omitempty"`
	// Email is duplicated from the account for denormalized reads.
	Email    string `gorm:"column:email;not null" json:"email"`
	IsActive bool   `gorm:"column:is_active;default:true" json:"is_active"`
}

func (User) TableName() string {
	return "users"
}
