package models

import (
	"time"

	"github.com/google/uuid"
)

// Message is a one-to-one chat message. Bodies are immutable; the only
// mutation is deletion.
type Message struct {
	ID         uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	SenderID   string    `json:"senderId" gorm:"not null;index:idx_messages_pair"`
	ReceiverID string    `json:"receiverId" gorm:"not null;index:idx_messages_pair"`
	Body       string    `json:"body" gorm:"not null"`
	CreatedAt  time.Time `json:"createdAt" gorm:"not null;index"`
}

func (Message) TableName() string {
	return "messages"
}

type SendMessageRequest struct {
	ReceiverID string `json:"receiverId" binding:"required"`
	Body       string `json:"body" binding:"required"`
}
