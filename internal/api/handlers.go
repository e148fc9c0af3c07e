package api

import (
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"slices"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pingpad/pingpad/internal/chat"
	"github.com/pingpad/pingpad/internal/types"
)

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginResponse struct {
	User  types.User `json:"user"`
	Token string     `json:"token"`
}

type CreateChatRequest struct {
	Name           string `json:"name"`
	ParticipantIds []int  `json:"participant_ids"`
}

func (s *PingpadApp) writeJson(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if v == nil {
		return
	}

	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Printf("json encode: %v", err)
	}
}

func (s *PingpadApp) register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.sessions.Register(req.Username, req.Email, req.Password)
	if err != nil {
		errResp := apiError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, user)
}

func (s *PingpadApp) login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if req.Email == "" || req.Password == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, token, err := s.sessions.Login(req.Email, req.Password)
	if err != nil {
		errResp := apiError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	http.SetCookie(w, createSessionCookie(token, s.sessionTTL))

	s.writeJson(w, http.StatusOK, LoginResponse{User: user, Token: token})
}

func (s *PingpadApp) logout(w http.ResponseWriter, _ *http.Request) {
	// instruct browser to delete cookie by overwriting it with an expired token
	http.SetCookie(w, createSessionCookie("", time.Duration(time.Unix(0, 0).Unix())))
	w.WriteHeader(http.StatusNoContent)
}

func (s *PingpadApp) session(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.sessions.User(identity.UserId)
	if err != nil {
		errResp := apiError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, user)
}

func createSessionCookie(tokenString string, exp time.Duration) *http.Cookie {
	return &http.Cookie{
		Name:     tokenCookieKey,
		Value:    tokenString,
		Path:     "/",
		Expires:  time.Now().Add(exp),
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	}
}

func (s *PingpadApp) createChat(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	var req CreateChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	newChat, err := s.membership.CreateChat(identity.UserId, req.ParticipantIds, req.Name)
	if err != nil {
		errResp := apiError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusCreated, newChat)
}

// getChats returns a single chat when an external id is supplied and the
// caller's full chat list otherwise.
func (s *PingpadApp) getChats(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	externalId := r.URL.Query().Get("id")
	if externalId == "" {
		chats, err := s.membership.ListChatsForUser(identity.UserId)
		if err != nil {
			errResp := apiError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		s.writeJson(w, http.StatusOK, chats)
		return
	}

	ch, err := s.membership.GetChatByExternalId(externalId)
	if err != nil {
		errResp := apiError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !s.membership.IsParticipant(ch.Id, identity.UserId) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, ch)
}

func (s *PingpadApp) getParticipants(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	externalId := r.URL.Query().Get("chat_id")
	if externalId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	ch, err := s.membership.GetChatByExternalId(externalId)
	if err != nil {
		errResp := apiError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	if !s.membership.IsParticipant(ch.Id, identity.UserId) {
		errResp := NewForbiddenError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	participants, err := s.membership.ListParticipants(ch.Id)
	if err != nil {
		errResp := apiError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, participants)
}

func (s *PingpadApp) getMessages(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	externalId := r.URL.Query().Get("chat_id")
	if externalId == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	ch, err := s.membership.GetChatByExternalId(externalId)
	if err != nil {
		errResp := apiError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	mode, err := chat.ParseFetchMode(r.URL.Query().Get("mode"))
	if err != nil {
		errResp := apiError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	messages, err := s.messages.Fetch(ch.Id, identity.UserId, mode)
	if err != nil {
		errResp := apiError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	s.writeJson(w, http.StatusOK, messages)
}

func (s *PingpadApp) downloadAttachment(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")
	if key == "" {
		errResp := NewBadRequestError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	rc, err := s.blobs.Open(key)
	if err != nil {
		errResp := NewNotFoundError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}
	defer rc.Close()

	if contentType := mime.TypeByExtension(filepath.Ext(key)); contentType != "" {
		w.Header().Set("Content-Type", contentType)
	}

	if _, err := io.Copy(w, rc); err != nil {
		s.log.Printf("serve attachment %s: %v", key, err)
	}
}

func (s *PingpadApp) serveWs(w http.ResponseWriter, r *http.Request) {
	identity, ok := IdentityFrom(r.Context())
	if !ok {
		errResp := NewUnauthorizedError()
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	user, err := s.sessions.User(identity.UserId)
	if err != nil {
		errResp := apiError(err)
		s.writeJson(w, errResp.StatusCode, errResp)
		return
	}

	// resolve the optional catch-up chat before upgrading so errors can
	// still be reported over HTTP
	var chatId int
	if externalId := r.URL.Query().Get("chat_id"); externalId != "" {
		ch, err := s.membership.GetChatByExternalId(externalId)
		if err != nil {
			errResp := apiError(err)
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		if !s.membership.IsParticipant(ch.Id, identity.UserId) {
			errResp := NewForbiddenError()
			s.writeJson(w, errResp.StatusCode, errResp)
			return
		}

		chatId = ch.Id
	}

	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			// only allow connections from allowed origins
			origin := r.Header.Get("Origin")
			if origin == "" {
				// if no origin header, allow the request
				return true
			}

			return slices.Contains(s.allowedOrigins, origin)
		},
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Println("error upgrading connection:", err)
		return
	}

	s.cs.Connect(user, identity, conn, chatId)
}
