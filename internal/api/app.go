package api

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/handlers"

	"github.com/pingpad/pingpad/internal/blob"
	"github.com/pingpad/pingpad/internal/chat"
	"github.com/pingpad/pingpad/internal/config"
	"github.com/pingpad/pingpad/internal/server"
)

type PingpadApp struct {
	log            *log.Logger
	sessions       *chat.SessionService
	membership     *chat.MembershipService
	messages       *chat.MessageService
	cs             *server.ChatServer
	blobs          blob.Store
	mux            *http.Server
	allowedOrigins []string
	sessionTTL     time.Duration
}

func NewPingpadApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, sessions *chat.SessionService, membership *chat.MembershipService, messages *chat.MessageService, blobs blob.Store, cfg *config.Config) *PingpadApp {
	s := &PingpadApp{
		log:            logger,
		sessions:       sessions,
		membership:     membership,
		messages:       messages,
		cs:             cs,
		blobs:          blobs,
		allowedOrigins: cfg.AllowedOrigins,
		sessionTTL:     cfg.SessionTTL,
	}

	mux.HandleFunc("POST /api/auth/register", s.register)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.Handle("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("POST /api/chats", s.authMiddleware(s.createChat))
	mux.Handle("GET /api/chats", s.authMiddleware(s.getChats))
	mux.Handle("GET /api/participants", s.authMiddleware(s.getParticipants))
	mux.Handle("GET /api/messages", s.authMiddleware(s.getMessages))
	mux.Handle("GET /api/uploads/{key}", s.authMiddleware(s.downloadAttachment))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *PingpadApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *PingpadApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
