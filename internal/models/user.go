package models

import (
	"time"

	"gorm.io/gorm"
)

// User is the subset of the account record the relay needs to resolve an identity.
// Accounts are created and managed by the account service sharing this database.
type User struct {
	ID       int64    `gorm:"primaryKey;autoIncrement" json:"id"`
	Username string   `gorm:"uniqueIndex;not null" json:"username"`
	Email    string   `gorm:"uniqueIndex" json:"email"`
	Type     UserType `gorm:"column:type;type:varchar(16);not null;default:member" json:"type"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BeforeSave rejects rows carrying an unknown user type.
func (u *User) BeforeSave(tx *gorm.DB) error {
	if u.Type == "" {
		u.Type = UserTypeMember
	}
	parsed, err := ParseUserType(string(u.Type))
	if err != nil {
		return err
	}
	u.Type = parsed
	return nil
}
