package model

import "time"

// Account is the login credential record, one per email. PasswordHash is
// null for OAuth-only accounts; RefreshTokenHash is null when no session is
// active and is rotated on every successful token issuance.
type Account struct {
	Base
	Email            string     `gorm:"column:email;unique;not null" json:"email"`
	PasswordHash     *string    `gorm:"column:password" json:"-"`
	RefreshTokenHash *string    `gorm:"column:refresh_token" json:"-"`
	LastLogin        *time.Time `gorm:"column:last_login" json:"last_login,omitempty"`
	Active           bool       `gorm:"column:active;default:false" json:"active"`

	UserID string `gorm:"column:user_id;type:uuid;uniqueIndex;not null" json:"user_id"`
	User   User   `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"user"`
}

func (Account) TableName() string {
	return "authentication"
}
