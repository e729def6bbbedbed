package domain

import "time"

// Message is a single chat message persisted for a room. Records are
// immutable once created; history queries order them by creation time.
type Message struct {
	ID        uint      `gorm:"primaryKey" json:"-"`
	RoomID    string    `gorm:"index;size:191;not null" json:"roomId"`
	SenderID  string    `gorm:"size:64;not null" json:"senderId"`
	Username  string    `gorm:"size:64;not null" json:"username"`
	Body      string    `gorm:"type:text;not null" json:"message"`
	CreatedAt time.Time `gorm:"autoCreateTime;index" json:"createdAt"`
}
