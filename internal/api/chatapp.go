package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"

	"github.com/pondapp/chat-server/internal/auth"
	"github.com/pondapp/chat-server/internal/chat"
	"github.com/pondapp/chat-server/internal/config"
	"github.com/pondapp/chat-server/internal/database"
	"github.com/pondapp/chat-server/internal/server"
	"github.com/pondapp/chat-server/internal/stats"
)

type ChatApp struct {
	log            *log.Logger
	db             database.ChatRepository
	rooms          *chat.RoomService
	messages       *chat.MessageService
	cs             *server.ChatServer
	auth           auth.TokenVerifier
	stats          stats.StatsProvider
	allowedOrigins []string
	mux            *http.Server
}

func NewChatApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db database.ChatRepository,
	rooms *chat.RoomService, messages *chat.MessageService, verifier auth.TokenVerifier,
	sp stats.StatsProvider, cfg *config.Config) *ChatApp {
	s := &ChatApp{
		log:            logger,
		db:             db,
		rooms:          rooms,
		messages:       messages,
		cs:             cs,
		auth:           verifier,
		stats:          sp,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.Handle("POST /api/chat/rooms/init", s.authMiddleware(s.initRoom))
	mux.Handle("GET /api/chat/rooms", s.authMiddleware(s.listRooms))
	mux.Handle("GET /api/chat/rooms/{roomId}", s.authMiddleware(s.getRoom))
	mux.Handle("GET /api/chat/rooms/{roomId}/messages", s.authMiddleware(s.getMessages))
	mux.Handle("POST /api/chat/rooms/{roomId}/read", s.authMiddleware(s.markRead))
	mux.Handle("GET /api/chat/unread-count", s.authMiddleware(s.unreadCount))
	mux.HandleFunc("GET /ws", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
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

func (s *ChatApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *ChatApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
