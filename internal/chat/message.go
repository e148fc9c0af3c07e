package chat

import (
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/pingpad/pingpad/internal/blob"
	"github.com/pingpad/pingpad/internal/database"
	"github.com/pingpad/pingpad/internal/types"
)

const attachmentURLTTL = 15 * time.Minute

// FetchMode selects which slice of a chat's history Fetch returns.
type FetchMode string

const (
	FetchAll     FetchMode = "all"
	FetchUnread  FetchMode = "unread"
	FetchPreview FetchMode = "preview"
)

func ParseFetchMode(s string) (FetchMode, error) {
	switch FetchMode(s) {
	case FetchAll, "":
		return FetchAll, nil
	case FetchUnread, FetchPreview:
		return FetchMode(s), nil
	default:
		return "", fmt.Errorf("%w: unknown fetch mode %q", ErrBadRequest, s)
	}
}

type MessageService struct {
	log   *log.Logger
	db    database.ChatRepository
	blobs blob.Store
}

func NewMessageService(logger *log.Logger, db database.ChatRepository, blobs blob.Store) *MessageService {
	return &MessageService{log: logger, db: db, blobs: blobs}
}

// Send persists a message for a chat the sender belongs to. The message row,
// attachment rows and chat activity bump commit atomically; attachment bytes
// are uploaded to the blob store inside that transaction window, so a failed
// upload leaves no rows behind.
func (s *MessageService) Send(chatId, senderId int, content string, replyTo *int, attachments []database.AttachmentPayload) (types.Message, error) {
	if content == "" && len(attachments) == 0 {
		return types.Message{}, fmt.Errorf("%w: message needs text content or attachments", ErrBadRequest)
	}

	if !s.db.IsParticipant(chatId, senderId) {
		return types.Message{}, fmt.Errorf("%w: sender %d is not a participant of chat %d", ErrForbidden, senderId, chatId)
	}

	params := database.CreateMessageParams{
		ChatId:      chatId,
		SenderId:    senderId,
		ReplyToId:   replyTo,
		Attachments: attachments,
	}
	if content != "" {
		params.Content = &content
	}

	msg, err := s.db.CreateMessage(params, s.blobs.Put)
	if err != nil {
		return types.Message{}, fmt.Errorf("create message: %w", err)
	}

	return s.resolveURLs(toMessage(msg))
}

// Fetch returns a chat's messages for a participant. FetchUnread returns
// messages created strictly after the caller's last-activity marker; a
// participant with no marker gets nothing, not everything. FetchPreview
// returns only the most recent message.
func (s *MessageService) Fetch(chatId, userId int, mode FetchMode) ([]types.Message, error) {
	if !s.db.IsParticipant(chatId, userId) {
		return nil, fmt.Errorf("%w: user %d is not a participant of chat %d", ErrForbidden, userId, chatId)
	}

	var dbMsgs []database.Message
	switch mode {
	case FetchAll:
		var err error
		dbMsgs, err = s.db.GetMessages(chatId)
		if err != nil {
			return nil, fmt.Errorf("get messages: %w", err)
		}
	case FetchUnread:
		participant, err := s.db.GetParticipant(chatId, userId)
		if err != nil {
			return nil, fmt.Errorf("get participant: %w", err)
		}
		if !participant.LastActiveAt.Valid {
			return []types.Message{}, nil
		}

		dbMsgs, err = s.db.GetMessagesSince(chatId, participant.LastActiveAt.Time)
		if err != nil {
			return nil, fmt.Errorf("get messages since marker: %w", err)
		}
	case FetchPreview:
		latest, err := s.db.GetLatestMessage(chatId)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return []types.Message{}, nil
			}
			return nil, fmt.Errorf("get latest message: %w", err)
		}
		dbMsgs = []database.Message{latest}
	default:
		return nil, fmt.Errorf("%w: unknown fetch mode %q", ErrBadRequest, mode)
	}

	messages := make([]types.Message, 0, len(dbMsgs))
	for _, dbMsg := range dbMsgs {
		msg, err := s.resolveURLs(toMessage(dbMsg))
		if err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

// MarkRead moves the caller's last-activity marker to now.
func (s *MessageService) MarkRead(chatId, userId int) error {
	if !s.db.IsParticipant(chatId, userId) {
		return fmt.Errorf("%w: user %d is not a participant of chat %d", ErrForbidden, userId, chatId)
	}

	if err := s.db.UpdateParticipantLastActive(chatId, userId, time.Now()); err != nil {
		return fmt.Errorf("update last active: %w", err)
	}

	return nil
}

func (s *MessageService) resolveURLs(msg types.Message) (types.Message, error) {
	for i, att := range msg.Attachments {
		url, err := s.blobs.PresignGet(att.Url, attachmentURLTTL)
		if err != nil {
			return types.Message{}, fmt.Errorf("resolve attachment url: %w", err)
		}
		msg.Attachments[i].Url = url
	}

	return msg, nil
}

func toMessage(m database.Message) types.Message {
	msg := types.Message{
		Id:        m.Id,
		ChatId:    m.ChatId,
		SenderId:  m.SenderId,
		Status:    m.Status,
		CreatedAt: m.CreatedAt,
	}
	if m.Content.Valid {
		content := m.Content.String
		msg.Content = &content
	}
	if m.ReplyToId.Valid {
		replyTo := int(m.ReplyToId.Int64)
		msg.ReplyToId = &replyTo
	}
	if m.EditedAt.Valid {
		t := m.EditedAt.Time
		msg.EditedAt = &t
	}
	if m.DeletedAt.Valid {
		t := m.DeletedAt.Time
		msg.DeletedAt = &t
	}

	for _, att := range m.Attachments {
		msg.Attachments = append(msg.Attachments, types.Attachment{
			Id:        att.Id,
			MessageId: att.MessageId,
			FileName:  att.FileName,
			SizeBytes: att.SizeBytes,
			MimeType:  att.MimeType,
			// carries the storage key until resolveURLs replaces it
			Url:       att.StorageKey,
			CreatedAt: att.CreatedAt,
		})
	}

	return msg
}
