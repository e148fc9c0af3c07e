package server

import (
	"log"

	"github.com/gorilla/websocket"

	"github.com/pingpad/pingpad/internal/chat"
	"github.com/pingpad/pingpad/internal/stats"
	"github.com/pingpad/pingpad/internal/types"
)

// ChatServer owns the realtime side of the system: the connection registry,
// the fan-out engine and the per-connection clients. Persistence and
// membership rules live in the chat services it is handed.
type ChatServer struct {
	log         *log.Logger
	registry    *Registry
	broadcaster *Broadcaster
	membership  *chat.MembershipService
	messages    *chat.MessageService
	stats       stats.StatsProvider
}

func NewChatServer(logger *log.Logger, membership *chat.MembershipService, messages *chat.MessageService, statsProvider stats.StatsProvider) *ChatServer {
	registry := NewRegistry(logger, statsProvider)

	return &ChatServer{
		log:         logger,
		registry:    registry,
		broadcaster: NewBroadcaster(logger, membership, registry, statsProvider),
		membership:  membership,
		messages:    messages,
		stats:       statsProvider,
	}
}

func (cs *ChatServer) Registry() *Registry {
	return cs.registry
}

func (cs *ChatServer) Broadcaster() *Broadcaster {
	return cs.broadcaster
}

// Connect takes ownership of an upgraded, authenticated connection:
// registers it, starts its pumps and pushes the hello frame. When the
// client connected for a specific chat it is also sent the unread catch-up
// payload so missed events are reconciled immediately.
func (cs *ChatServer) Connect(user types.User, session chat.Identity, conn *websocket.Conn, chatId int) *Client {
	client := NewClient(user, session, conn, cs, cs.log)

	cs.registry.Register(user.Id, client)
	go client.Write()
	go client.Read()

	client.queueEvent(&ServerEvent{Event: EventConnectionEstablished, Data: user})

	if chatId != 0 {
		unread, err := cs.messages.Fetch(chatId, user.Id, chat.FetchUnread)
		if err != nil {
			cs.log.Printf("catch-up fetch for user %d chat %d: %v", user.Id, chatId, err)
			client.queueError(errorText(err))
			return client
		}

		client.queueEvent(&ServerEvent{Event: EventUnreadMessages, Data: unread})
	}

	return client
}

// Shutdown closes every live connection.
func (cs *ChatServer) Shutdown() {
	cs.log.Println("closing live connections")
	cs.registry.Shutdown()
}
