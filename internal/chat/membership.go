package chat

import (
	"database/sql"
	"errors"
	"fmt"
	"log"

	"github.com/teris-io/shortid"

	"github.com/pingpad/pingpad/internal/database"
	"github.com/pingpad/pingpad/internal/types"
)

type MembershipService struct {
	log *log.Logger
	db  database.ChatRepository
}

func NewMembershipService(logger *log.Logger, db database.ChatRepository) *MembershipService {
	return &MembershipService{log: logger, db: db}
}

// CreateChat deduplicates the creator plus the given member ids into one
// participant set and creates a chat for it. When a chat with exactly that
// set already exists it is returned instead of an error, so "open a chat
// with X" is idempotent from the client's point of view. The find-then-create
// is not atomic; two concurrent creates for the same set can both land.
func (m *MembershipService) CreateChat(creatorId int, memberIds []int, name string) (types.Chat, error) {
	seen := map[int]struct{}{creatorId: {}}
	participantIds := []int{creatorId}
	var members []int
	for _, id := range memberIds {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		participantIds = append(participantIds, id)
		members = append(members, id)
	}

	if len(participantIds) < 2 {
		return types.Chat{}, fmt.Errorf("%w: a chat needs at least 2 distinct participants", ErrBadRequest)
	}

	existing, err := m.db.FindDirectChat(participantIds)
	if err == nil {
		m.log.Printf("chat %q already exists for participant set, returning existing", existing.ExternalId)
		return m.chatWithParticipants(existing)
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return types.Chat{}, fmt.Errorf("find direct chat: %w", err)
	}

	externalId, err := shortid.Generate()
	if err != nil {
		return types.Chat{}, fmt.Errorf("generate external id: %w", err)
	}

	created, err := m.db.CreateChat(database.CreateChatParams{
		Name:       name,
		ExternalId: externalId,
		OwnerId:    creatorId,
		MemberIds:  members,
	})
	if err != nil {
		return types.Chat{}, fmt.Errorf("create chat: %w", err)
	}

	return m.chatWithParticipants(created)
}

// FindDirectChat resolves a chat by exact participant-set equality.
func (m *MembershipService) FindDirectChat(participantIds []int) (types.Chat, bool, error) {
	dbChat, err := m.db.FindDirectChat(participantIds)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Chat{}, false, nil
		}
		return types.Chat{}, false, fmt.Errorf("find direct chat: %w", err)
	}

	chat, err := m.chatWithParticipants(dbChat)
	return chat, err == nil, err
}

func (m *MembershipService) GetChat(chatId int) (types.Chat, error) {
	dbChat, err := m.db.GetChatById(chatId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Chat{}, ErrNotFound
		}
		return types.Chat{}, fmt.Errorf("get chat: %w", err)
	}

	return m.chatWithParticipants(dbChat)
}

func (m *MembershipService) GetChatByExternalId(externalId string) (types.Chat, error) {
	dbChat, err := m.db.GetChatByExternalId(externalId)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Chat{}, ErrNotFound
		}
		return types.Chat{}, fmt.Errorf("get chat: %w", err)
	}

	return m.chatWithParticipants(dbChat)
}

func (m *MembershipService) IsParticipant(chatId, userId int) bool {
	return m.db.IsParticipant(chatId, userId)
}

// ListParticipants returns the chat's participants in insertion order.
func (m *MembershipService) ListParticipants(chatId int) ([]types.Participant, error) {
	dbParticipants, err := m.db.ListParticipants(chatId)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	participants := make([]types.Participant, len(dbParticipants))
	for i, p := range dbParticipants {
		participants[i] = toParticipant(p)
	}

	return participants, nil
}

// ParticipantIds returns just the user ids, for fan-out resolution.
func (m *MembershipService) ParticipantIds(chatId int) ([]int, error) {
	dbParticipants, err := m.db.ListParticipants(chatId)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}

	ids := make([]int, len(dbParticipants))
	for i, p := range dbParticipants {
		ids[i] = p.AccountId
	}

	return ids, nil
}

// ListChatsForUser returns the user's chats newest-activity first, each with
// its unread count and latest message preview.
func (m *MembershipService) ListChatsForUser(userId int) ([]types.Chat, error) {
	dbChats, err := m.db.ListChatsForAccount(userId)
	if err != nil {
		return nil, fmt.Errorf("list chats: %w", err)
	}

	chats := make([]types.Chat, 0, len(dbChats))
	for _, dbChat := range dbChats {
		chat := toChat(dbChat)

		latest, err := m.db.GetLatestMessage(dbChat.Id)
		if err == nil {
			msg := toMessage(latest)
			chat.LastMessage = &msg
		} else if !errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("latest message for chat %d: %w", dbChat.Id, err)
		}

		chats = append(chats, chat)
	}

	return chats, nil
}

func (m *MembershipService) chatWithParticipants(dbChat database.Chat) (types.Chat, error) {
	chat := toChat(dbChat)

	participants, err := m.ListParticipants(dbChat.Id)
	if err != nil {
		return types.Chat{}, err
	}
	chat.Participants = participants

	return chat, nil
}

func toChat(c database.Chat) types.Chat {
	return types.Chat{
		Id:             c.Id,
		ExternalId:     c.ExternalId,
		Name:           c.Name.String,
		OwnerId:        c.OwnerId,
		UnreadCount:    c.UnreadCount,
		CreatedAt:      c.CreatedAt,
		LastActivityAt: c.LastActivityAt,
	}
}

func toParticipant(p database.Participant) types.Participant {
	participant := types.Participant{
		UserId:   p.AccountId,
		Username: p.Username,
		Role:     p.Role,
		JoinedAt: p.JoinedAt,
	}
	if p.LastActiveAt.Valid {
		t := p.LastActiveAt.Time
		participant.LastActiveAt = &t
	}

	return participant
}
