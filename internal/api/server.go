package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/imap143/go-signaling/internal/config"
	"github.com/imap143/go-signaling/internal/database"
	"github.com/imap143/go-signaling/internal/room"
	"github.com/imap143/go-signaling/internal/session"
	"github.com/imap143/go-signaling/internal/signaling"
	"github.com/imap143/go-signaling/internal/stats"
	"github.com/imap143/go-signaling/internal/transport"
)

type SignalingApp struct {
	log      *log.Logger
	db       database.SignalRepository
	mux      *http.Server
	hub      *transport.Hub
	relay    *signaling.Relay
	registry *session.Registry
	rooms    *room.Directory
	stats    stats.StatsProvider

	allowedOrigins []string
	uploadDir      string
}

func NewSignalingApp(mux *http.ServeMux, logger *log.Logger, hub *transport.Hub,
	relay *signaling.Relay, registry *session.Registry, rooms *room.Directory,
	db database.SignalRepository, sp stats.StatsProvider, cfg *config.Config) *SignalingApp {
	s := &SignalingApp{
		log:            logger,
		db:             db,
		hub:            hub,
		relay:          relay,
		registry:       registry,
		rooms:          rooms,
		stats:          sp,
		allowedOrigins: cfg.AllowedOrigins,
		uploadDir:      cfg.UploadDir,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.Handle("POST /api/rooms", s.identityMiddleware(s.createRoom))
	mux.HandleFunc("GET /api/rooms", s.listRooms)
	mux.Handle("GET /api/rooms/user", s.identityMiddleware(s.getUserRooms))
	mux.Handle("GET /api/rooms/user/active", s.identityMiddleware(s.getActiveUserRooms))
	mux.HandleFunc("GET /api/rooms/{roomId}", s.getRoom)
	mux.HandleFunc("GET /api/rooms/{roomId}/participants", s.getParticipants)
	mux.Handle("POST /api/rooms/{roomId}/join", s.identityMiddleware(s.joinRoom))
	mux.Handle("POST /api/rooms/{roomId}/leave", s.identityMiddleware(s.leaveRoom))
	mux.HandleFunc("GET /api/rooms/{roomId}/messages", s.getRoomMessages)
	mux.Handle("POST /api/upload", s.identityMiddleware(s.uploadFile))
	mux.Handle("GET /uploads/", http.StripPrefix("/uploads/", http.FileServer(http.Dir(cfg.UploadDir))))
	mux.HandleFunc("GET /ws", s.serveWs)

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", UserIDHeader}),
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

func (s *SignalingApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *SignalingApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
