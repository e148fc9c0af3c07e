package database

import (
	"time"

	"github.com/stretchr/testify/mock"
)

type MockChatRepository struct {
	mock.Mock
}

func (m *MockChatRepository) Ping() error {
	args := m.Called()
	return args.Error(0)
}
func (m *MockChatRepository) CreateAccount(params CreateAccountParams) (User, error) {
	args := m.Called(params)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) GetAccountById(accountId int) (User, error) {
	args := m.Called(accountId)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) GetAccountByEmail(email string) (User, error) {
	args := m.Called(email)
	return args.Get(0).(User), args.Error(1)
}
func (m *MockChatRepository) CreateSession(params CreateSessionParams) (Session, error) {
	args := m.Called(params)
	return args.Get(0).(Session), args.Error(1)
}
func (m *MockChatRepository) GetSessionById(sessionId int) (Session, error) {
	args := m.Called(sessionId)
	return args.Get(0).(Session), args.Error(1)
}
func (m *MockChatRepository) CreateChat(params CreateChatParams) (Chat, error) {
	args := m.Called(params)
	return args.Get(0).(Chat), args.Error(1)
}
func (m *MockChatRepository) GetChatById(chatId int) (Chat, error) {
	args := m.Called(chatId)
	return args.Get(0).(Chat), args.Error(1)
}
func (m *MockChatRepository) GetChatByExternalId(externalId string) (Chat, error) {
	args := m.Called(externalId)
	return args.Get(0).(Chat), args.Error(1)
}
func (m *MockChatRepository) FindDirectChat(participantIds []int) (Chat, error) {
	args := m.Called(participantIds)
	return args.Get(0).(Chat), args.Error(1)
}
func (m *MockChatRepository) IsParticipant(chatId, accountId int) bool {
	args := m.Called(chatId, accountId)
	return args.Bool(0)
}
func (m *MockChatRepository) GetParticipant(chatId, accountId int) (Participant, error) {
	args := m.Called(chatId, accountId)
	return args.Get(0).(Participant), args.Error(1)
}
func (m *MockChatRepository) ListParticipants(chatId int) ([]Participant, error) {
	args := m.Called(chatId)
	return args.Get(0).([]Participant), args.Error(1)
}
func (m *MockChatRepository) ListChatsForAccount(accountId int) ([]Chat, error) {
	args := m.Called(accountId)
	return args.Get(0).([]Chat), args.Error(1)
}
func (m *MockChatRepository) CreateMessage(params CreateMessageParams, upload AttachmentUploader) (Message, error) {
	args := m.Called(params, upload)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) GetMessages(chatId int) ([]Message, error) {
	args := m.Called(chatId)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockChatRepository) GetMessagesSince(chatId int, since time.Time) ([]Message, error) {
	args := m.Called(chatId, since)
	return args.Get(0).([]Message), args.Error(1)
}
func (m *MockChatRepository) GetLatestMessage(chatId int) (Message, error) {
	args := m.Called(chatId)
	return args.Get(0).(Message), args.Error(1)
}
func (m *MockChatRepository) UpdateParticipantLastActive(chatId, accountId int, ts time.Time) error {
	args := m.Called(chatId, accountId, ts)
	return args.Error(0)
}
