package chat

import (
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/pingpad/pingpad/internal/database"
	"github.com/pingpad/pingpad/internal/testutil"
)

func TestCreateChat(t *testing.T) {
	t.Run("creates a new chat with a deduplicated participant set", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		// creator repeated in the member list, member 2 repeated twice
		mockRepo.On("FindDirectChat", []int{1, 2, 3}).Return(database.Chat{}, sql.ErrNoRows).Once()
		mockRepo.On("CreateChat", mock.MatchedBy(func(params database.CreateChatParams) bool {
			return params.OwnerId == 1 &&
				assert.ObjectsAreEqual([]int{2, 3}, params.MemberIds) &&
				params.ExternalId != ""
		})).Return(database.Chat{Id: 10, ExternalId: "abc123", OwnerId: 1}, nil).Once()
		mockRepo.On("ListParticipants", 10).Return([]database.Participant{
			{ChatId: 10, AccountId: 1, Role: database.RoleAdmin},
			{ChatId: 10, AccountId: 2, Role: database.RoleMember},
			{ChatId: 10, AccountId: 3, Role: database.RoleMember},
		}, nil).Once()

		svc := NewMembershipService(testutil.TestLogger(t), mockRepo)
		chat, err := svc.CreateChat(1, []int{2, 1, 2, 3}, "")
		assert.NoError(t, err, "expected no error creating chat")
		assert.Equal(t, "abc123", chat.ExternalId, "expected external id to be set")
		assert.Len(t, chat.Participants, 3, "expected all participants attached")
		assert.Equal(t, database.RoleAdmin, chat.Participants[0].Role, "expected creator to be admin")
	})

	t.Run("returns the existing chat for a duplicate participant set", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		mockRepo.On("FindDirectChat", []int{1, 2}).Return(database.Chat{Id: 5, ExternalId: "exists"}, nil).Once()
		mockRepo.On("ListParticipants", 5).Return([]database.Participant{
			{ChatId: 5, AccountId: 1}, {ChatId: 5, AccountId: 2},
		}, nil).Once()

		svc := NewMembershipService(testutil.TestLogger(t), mockRepo)
		chat, err := svc.CreateChat(1, []int{2}, "")
		assert.NoError(t, err, "expected no error for duplicate participant set")
		assert.Equal(t, "exists", chat.ExternalId, "expected the existing chat back")
		mockRepo.AssertNotCalled(t, "CreateChat", mock.Anything)
	})

	t.Run("rejects fewer than two distinct participants", func(t *testing.T) {
		mockRepo := &database.MockChatRepository{}
		defer mockRepo.AssertExpectations(t)

		svc := NewMembershipService(testutil.TestLogger(t), mockRepo)

		_, err := svc.CreateChat(1, nil, "")
		assert.ErrorIs(t, err, ErrBadRequest, "expected bad request for empty member list")

		// the creator listed as their own peer still counts as one
		_, err = svc.CreateChat(1, []int{1, 1}, "")
		assert.ErrorIs(t, err, ErrBadRequest, "expected bad request for self-only chat")

		mockRepo.AssertNotCalled(t, "FindDirectChat", mock.Anything)
	})
}

func TestFindDirectChat(t *testing.T) {
	mockRepo := &database.MockChatRepository{}
	defer mockRepo.AssertExpectations(t)

	mockRepo.On("FindDirectChat", []int{1, 2}).Return(database.Chat{Id: 5, ExternalId: "exists"}, nil).Once()
	mockRepo.On("ListParticipants", 5).Return([]database.Participant{
		{ChatId: 5, AccountId: 1}, {ChatId: 5, AccountId: 2},
	}, nil).Once()
	mockRepo.On("FindDirectChat", []int{1, 3}).Return(database.Chat{}, sql.ErrNoRows).Once()

	svc := NewMembershipService(testutil.TestLogger(t), mockRepo)

	chat, found, err := svc.FindDirectChat([]int{1, 2})
	assert.NoError(t, err, "expected no error finding chat")
	assert.True(t, found, "expected a match for the exact set")
	assert.Equal(t, "exists", chat.ExternalId, "expected external id to match")

	_, found, err = svc.FindDirectChat([]int{1, 3})
	assert.NoError(t, err, "expected no-match to not be an error")
	assert.False(t, found, "expected no match for a different set")
}

func TestGetChatByExternalId(t *testing.T) {
	mockRepo := &database.MockChatRepository{}
	defer mockRepo.AssertExpectations(t)

	mockRepo.On("GetChatByExternalId", "abc123").Return(database.Chat{Id: 10, ExternalId: "abc123"}, nil).Once()
	mockRepo.On("ListParticipants", 10).Return([]database.Participant{{ChatId: 10, AccountId: 1}}, nil).Once()
	mockRepo.On("GetChatByExternalId", "missing").Return(database.Chat{}, sql.ErrNoRows).Once()

	svc := NewMembershipService(testutil.TestLogger(t), mockRepo)

	chat, err := svc.GetChatByExternalId("abc123")
	assert.NoError(t, err, "expected no error fetching chat")
	assert.Equal(t, 10, chat.Id, "expected chat id to match")

	_, err = svc.GetChatByExternalId("missing")
	assert.ErrorIs(t, err, ErrNotFound, "expected not found for unknown external id")
}

func TestListChatsForUser(t *testing.T) {
	mockRepo := &database.MockChatRepository{}
	defer mockRepo.AssertExpectations(t)

	now := time.Now()
	mockRepo.On("ListChatsForAccount", 1).Return([]database.Chat{
		{Id: 10, ExternalId: "first", UnreadCount: 2, LastActivityAt: now},
		{Id: 11, ExternalId: "second"},
	}, nil).Once()
	mockRepo.On("GetLatestMessage", 10).Return(database.Message{
		Id:      100,
		ChatId:  10,
		Content: sql.NullString{String: "hello", Valid: true},
	}, nil).Once()
	// a chat with no messages yet must not fail the listing
	mockRepo.On("GetLatestMessage", 11).Return(database.Message{}, sql.ErrNoRows).Once()

	svc := NewMembershipService(testutil.TestLogger(t), mockRepo)
	chats, err := svc.ListChatsForUser(1)
	assert.NoError(t, err, "expected no error listing chats")
	assert.Len(t, chats, 2, "expected both chats")
	assert.Equal(t, 2, chats[0].UnreadCount, "expected unread count carried through")
	assert.NotNil(t, chats[0].LastMessage, "expected a preview for the active chat")
	assert.Equal(t, "hello", *chats[0].LastMessage.Content, "expected preview content")
	assert.Nil(t, chats[1].LastMessage, "expected no preview for the empty chat")
}

func TestParticipantIds(t *testing.T) {
	mockRepo := &database.MockChatRepository{}
	defer mockRepo.AssertExpectations(t)

	mockRepo.On("ListParticipants", 10).Return([]database.Participant{
		{ChatId: 10, AccountId: 1}, {ChatId: 10, AccountId: 2}, {ChatId: 10, AccountId: 3},
	}, nil).Once()

	svc := NewMembershipService(testutil.TestLogger(t), mockRepo)
	ids, err := svc.ParticipantIds(10)
	assert.NoError(t, err, "expected no error resolving participant ids")
	assert.Equal(t, []int{1, 2, 3}, ids, "expected ids in insertion order")
}
