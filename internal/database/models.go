package database

import (
	"database/sql"
	"time"
)

const (
	RoleAdmin  = "admin"
	RoleMember = "member"

	StatusSent    = "sent"
	StatusDeleted = "deleted"
)

type User struct {
	Id           int
	Username     string
	EmailAddress string
	PasswordHash string
	CreatedAt    time.Time
}

type Session struct {
	Id        int
	AccountId int
	CreatedAt time.Time
	ExpiresAt time.Time
}

type Chat struct {
	Id             int
	ExternalId     string
	Name           sql.NullString
	OwnerId        int
	UnreadCount    int
	CreatedAt      time.Time
	LastActivityAt time.Time
}

type Participant struct {
	ChatId       int
	AccountId    int
	Username     string
	Role         string
	JoinedAt     time.Time
	LastActiveAt sql.NullTime
}

type Message struct {
	Id          int
	ChatId      int
	SenderId    int
	ReplyToId   sql.NullInt64
	Content     sql.NullString
	Status      string
	Attachments []Attachment
	CreatedAt   time.Time
	EditedAt    sql.NullTime
	DeletedAt   sql.NullTime
}

type Attachment struct {
	Id         int
	MessageId  int
	FileName   string
	SizeBytes  int64
	MimeType   string
	StorageKey string
	CreatedAt  time.Time
}

type CreateAccountParams struct {
	Username     string
	EmailAddress string
	PasswordHash string
}

type CreateSessionParams struct {
	AccountId int
	ExpiresAt time.Time
}

type CreateChatParams struct {
	Name       string
	ExternalId string
	OwnerId    int
	// MemberIds are the non-owner participants. The owner row is
	// inserted with the admin role, members with the member role.
	MemberIds []int
}

type AttachmentPayload struct {
	FileName string
	MimeType string
	Data     []byte
}

type CreateMessageParams struct {
	ChatId      int
	SenderId    int
	Content     *string
	ReplyToId   *int
	Attachments []AttachmentPayload
}

// AttachmentUploader stores attachment bytes under the given key. It runs
// inside the message transaction window, before the attachment row insert.
type AttachmentUploader func(key string, data []byte, contentType string) error
