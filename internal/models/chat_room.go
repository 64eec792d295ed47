package models

import "time"

// ChatRoom records a room key that has been used at least once.
type ChatRoom struct {
	RoomID    string    `gorm:"primaryKey;type:varchar(191)" json:"room_id"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// TableName pins the table name shared with the account service.
func (ChatRoom) TableName() string {
	return "chat_rooms"
}
