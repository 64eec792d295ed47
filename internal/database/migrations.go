package database

import (
	"errors"

	"gorm.io/gorm"

	"github.com/charlesng35/proctorrelay/internal/models"
)

// AutoMigrate creates or updates the tables the relay reads and writes.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return errors.New("nil database handle")
	}

	return db.AutoMigrate(
		&models.User{},
		&models.ChatRoom{},
	)
}
