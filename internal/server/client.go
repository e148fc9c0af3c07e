package server

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/pingpad/pingpad/internal/chat"
	"github.com/pingpad/pingpad/internal/database"
	"github.com/pingpad/pingpad/internal/stats"
	"github.com/pingpad/pingpad/internal/types"
)

const (
	writeWait    = 10 * time.Second
	pongWait     = 60 * time.Second
	pingInterval = (pongWait * 9) / 10
	// attachments travel base64-encoded inside frames
	maxMessageSize = 1 << 20

	inboundRatePerSecond = 10
	inboundBurst         = 20
)

// Client is one live connection. Its lifecycle is
// upgrade -> authenticate -> open -> closed; Read and Write run as the
// connection's two goroutines and the registry entry is removed
// unconditionally on teardown.
type Client struct {
	conn       *websocket.Conn
	chatServer *ChatServer
	log        *log.Logger
	user       types.User
	session    chat.Identity
	send       chan *ServerEvent
	limiter    *rate.Limiter
	stop       chan struct{}
	stopOnce   sync.Once
}

func NewClient(user types.User, session chat.Identity, conn *websocket.Conn, cs *ChatServer, l *log.Logger) *Client {
	return &Client{
		conn:       conn,
		chatServer: cs,
		log:        l,
		user:       user,
		session:    session,
		send:       make(chan *ServerEvent, 256),
		limiter:    rate.NewLimiter(rate.Limit(inboundRatePerSecond), inboundBurst),
		stop:       make(chan struct{}),
	}
}

func (c *Client) Write() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case event, ok := <-c.send:
			if !ok {
				return
			}

			bytes, err := json.Marshal(event)
			if err != nil {
				c.log.Println("failed to serialize event:", err)
				continue
			}

			if !c.writeFrame(websocket.TextMessage, bytes) {
				return
			}
		case <-c.stop:
			return
		case <-ticker.C:
			if !c.writeFrame(websocket.PingMessage, nil) {
				return
			}
		}
	}
}

func (c *Client) Read() {
	defer func() {
		c.conn.Close()
		c.cleanup()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(appData string) error { c.conn.SetReadDeadline(time.Now().Add(pongWait)); return nil })
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
				websocket.CloseNormalClosure) {
				c.log.Printf("ws: read: %v", err)
			}
			break
		}

		if !c.limiter.Allow() {
			c.queueError("rate limit exceeded")
			continue
		}

		var event ClientEvent
		if err := json.Unmarshal(raw, &event); err != nil {
			c.log.Println("error parsing frame:", err)
			c.queueError("invalid frame")
			continue
		}

		c.dispatch(&event)
	}
}

// dispatch routes one inbound frame. The sender identity is always the
// authenticated user; a client-supplied sender id is never trusted. Frame
// errors are answered with an error event and leave the connection open.
func (c *Client) dispatch(event *ClientEvent) {
	switch event.Event {
	case EventNewMessage:
		var payload SendMessagePayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			c.queueError("invalid frame")
			return
		}
		c.handleNewMessage(&payload)
	case EventMessagesRead:
		var payload MarkReadPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			c.queueError("invalid frame")
			return
		}
		c.handleMarkRead(&payload)
	case EventTyping:
		var payload TypingPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			c.queueError("invalid frame")
			return
		}
		c.handleTyping(&payload)
	default:
		c.queueError("unknown event")
	}
}

func (c *Client) handleNewMessage(payload *SendMessagePayload) {
	attachments := make([]database.AttachmentPayload, len(payload.Attachments))
	for i, att := range payload.Attachments {
		attachments[i] = database.AttachmentPayload{
			FileName: att.FileName,
			MimeType: att.MimeType,
			Data:     att.Data,
		}
	}

	msg, err := c.chatServer.messages.Send(payload.ChatId, c.user.Id, payload.Content, payload.ReplyToId, attachments)
	if err != nil {
		c.log.Printf("send message from user %d: %v", c.user.Id, err)
		c.queueError(errorText(err))
		return
	}

	event := &ServerEvent{Event: EventNewMessage, Data: msg}
	// echo to the sender, fan out to everyone else
	c.queueEvent(event)
	c.chatServer.broadcaster.Broadcast(msg.ChatId, event, c.user.Id)
	c.chatServer.stats.Incr(stats.MessagesSent)
}

func (c *Client) handleMarkRead(payload *MarkReadPayload) {
	if err := c.chatServer.messages.MarkRead(payload.ChatId, c.user.Id); err != nil {
		c.log.Printf("mark read for user %d: %v", c.user.Id, err)
		c.queueError(errorText(err))
		return
	}

	c.chatServer.broadcaster.Broadcast(payload.ChatId, &ServerEvent{
		Event: EventMessagesRead,
		Data:  MessagesReadNotification{ChatId: payload.ChatId, UserId: c.user.Id},
	})
}

func (c *Client) handleTyping(payload *TypingPayload) {
	if !c.chatServer.membership.IsParticipant(payload.ChatId, c.user.Id) {
		c.queueError("not a participant of this chat")
		return
	}

	c.chatServer.broadcaster.Broadcast(payload.ChatId, &ServerEvent{
		Event: EventTyping,
		Data:  TypingNotification{ChatId: payload.ChatId, UserId: c.user.Id, Username: c.user.Username},
	}, c.user.Id)
}

func (c *Client) queueEvent(event *ServerEvent) bool {
	select {
	case c.send <- event:
	default:
		c.log.Printf("send buffer full for user %d, dropping event", c.user.Id)
		c.chatServer.stats.Incr(stats.DroppedFrames)
		return false
	}

	return true
}

func (c *Client) queueError(msg string) {
	select {
	case c.send <- errorFrame(msg):
	default:
		c.log.Printf("send buffer full for user %d, dropping error", c.user.Id)
	}
}

func (c *Client) writeFrame(msgType int, data []byte) bool {
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))

	if err := c.conn.WriteMessage(msgType, data); err != nil {
		if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure,
			websocket.CloseNormalClosure) {
			c.log.Printf("write frame: %s", err)
		}
		return false
	}

	return true
}

func (c *Client) stopClient() {
	c.stopOnce.Do(func() {
		close(c.stop)
	})
}

// cleanup runs on the open -> closed transition, whatever caused it.
func (c *Client) cleanup() {
	c.chatServer.registry.Unregister(c.user.Id, c)
	c.stopClient()
}
