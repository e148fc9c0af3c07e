package server

import (
	"encoding/json"
	"errors"

	"github.com/pingpad/pingpad/internal/chat"
)

// Event kinds pushed to clients.
const (
	EventConnectionEstablished = "connection_established"
	EventUnreadMessages        = "unread_messages"
	EventNewMessage            = "new_message"
	EventMessagesRead          = "messages_read"
	EventTyping                = "typing"
)

// ServerEvent is the discriminated envelope every outbound frame uses:
// {event, data} for pushes, {error} for per-frame rejections. An error
// frame never closes the connection.
type ServerEvent struct {
	Event string `json:"event,omitempty"`
	Data  any    `json:"data,omitempty"`
	Error string `json:"error,omitempty"`
}

func errorFrame(msg string) *ServerEvent {
	return &ServerEvent{Error: msg}
}

// ClientEvent is an inbound frame. Data stays raw until the event kind
// routes it to a payload type.
type ClientEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type SendMessagePayload struct {
	ChatId      int                 `json:"chat_id"`
	Content     string              `json:"content"`
	ReplyToId   *int                `json:"reply_to_id,omitempty"`
	Attachments []AttachmentPayload `json:"attachments,omitempty"`
}

type AttachmentPayload struct {
	FileName string `json:"file_name"`
	MimeType string `json:"mime_type"`
	Data     []byte `json:"data"`
}

type MarkReadPayload struct {
	ChatId int `json:"chat_id"`
}

type TypingPayload struct {
	ChatId int `json:"chat_id"`
}

type TypingNotification struct {
	ChatId   int    `json:"chat_id"`
	UserId   int    `json:"user_id"`
	Username string `json:"username"`
}

type MessagesReadNotification struct {
	ChatId int `json:"chat_id"`
	UserId int `json:"user_id"`
}

// errorText maps service errors to the client-facing message; internals are
// never leaked over the wire.
func errorText(err error) string {
	switch {
	case errors.Is(err, chat.ErrForbidden):
		return "not a participant of this chat"
	case errors.Is(err, chat.ErrBadRequest):
		return "invalid request"
	case errors.Is(err, chat.ErrNotFound):
		return "not found"
	case errors.Is(err, chat.ErrUnauthorized):
		return "unauthorized"
	default:
		return "internal server error"
	}
}
