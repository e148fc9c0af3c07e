package types

import (
	"time"
)

type User struct {
	Id           int       `json:"id"`
	Username     string    `json:"username"`
	EmailAddress string    `json:"email_address,omitempty"`
	Password     string    `json:"-"`
	CreatedAt    time.Time `json:"created_at,omitempty"`
}

type Chat struct {
	Id             int           `json:"id"`
	ExternalId     string        `json:"external_id"`
	Name           string        `json:"name,omitempty"`
	OwnerId        int           `json:"owner_id"`
	Participants   []Participant `json:"participants,omitempty"`
	UnreadCount    int           `json:"unread_count"`
	LastMessage    *Message      `json:"last_message,omitempty"`
	CreatedAt      time.Time     `json:"created_at,omitempty"`
	LastActivityAt time.Time     `json:"last_activity_at,omitempty"`
}

type Participant struct {
	UserId       int        `json:"user_id"`
	Username     string     `json:"username"`
	Role         string     `json:"role"`
	JoinedAt     time.Time  `json:"joined_at,omitempty"`
	LastActiveAt *time.Time `json:"last_active_at,omitempty"`
}

type Message struct {
	Id          int          `json:"id"`
	ChatId      int          `json:"chat_id"`
	SenderId    int          `json:"sender_id"`
	ReplyToId   *int         `json:"reply_to_id,omitempty"`
	Content     *string      `json:"content"`
	Status      string       `json:"status"`
	Attachments []Attachment `json:"attachments,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	EditedAt    *time.Time   `json:"edited_at,omitempty"`
	DeletedAt   *time.Time   `json:"deleted_at,omitempty"`
}

type Attachment struct {
	Id        int       `json:"id"`
	MessageId int       `json:"message_id"`
	FileName  string    `json:"file_name"`
	SizeBytes int64     `json:"size_bytes"`
	MimeType  string    `json:"mime_type"`
	Url       string    `json:"url,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty"`
}
