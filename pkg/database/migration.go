package database

import (
	"github.com/theluxar/auth-service/internal/model"
	"gorm.io/gorm"
)

// AutoMigrate runs database migrations for the auth entities.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&model.User{},
		&model.Account{},
		&model.UserPermission{},
	)
}
