package database

import "time"

type ChatRepository interface {
	Ping() error
	CreateAccount(params CreateAccountParams) (User, error)
	GetAccountById(accountId int) (User, error)
	GetAccountByEmail(email string) (User, error)
	CreateSession(params CreateSessionParams) (Session, error)
	GetSessionById(sessionId int) (Session, error)
	CreateChat(params CreateChatParams) (Chat, error)
	GetChatById(chatId int) (Chat, error)
	GetChatByExternalId(externalId string) (Chat, error)
	FindDirectChat(participantIds []int) (Chat, error)
	IsParticipant(chatId, accountId int) bool
	GetParticipant(chatId, accountId int) (Participant, error)
	ListParticipants(chatId int) ([]Participant, error)
	ListChatsForAccount(accountId int) ([]Chat, error)
	CreateMessage(params CreateMessageParams, upload AttachmentUploader) (Message, error)
	GetMessages(chatId int) ([]Message, error)
	GetMessagesSince(chatId int, since time.Time) ([]Message, error)
	GetLatestMessage(chatId int) (Message, error)
	UpdateParticipantLastActive(chatId, accountId int, ts time.Time) error
}
