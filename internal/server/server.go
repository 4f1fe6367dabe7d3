package server

import (
	"context"
	"database/sql"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"campuschat/internal/chat"
	"campuschat/internal/config"
	"campuschat/internal/connection"
	"campuschat/internal/course"
	"campuschat/internal/httpx"
	myMiddleware "campuschat/internal/middleware"
	"campuschat/internal/realtime"
	"campuschat/internal/user"
)

type Server struct {
	cfg  config.Config
	db   *sql.DB
	log  *zap.Logger
	auth *myMiddleware.AuthMiddleware

	users       *user.Handler
	connections *connection.Handler
	chats       *chat.Handler
	courses     *course.Handler
	ws          *realtime.Handler
}

// NewServer wires repositories, services and handlers around one hub.
func NewServer(cfg config.Config, conn *sql.DB, hub *realtime.Hub, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}

	userService := user.NewService(user.NewRepository(conn), cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL)
	connectionService := connection.NewService(connection.NewRepository(conn), hub, log.Named("connection"))
	chatService := chat.NewService(chat.NewRepository(conn), connectionService, hub, log.Named("chat"))
	courseService := course.NewService(course.NewRepository(conn), hub, log.Named("course"))

	return &Server{
		cfg:         cfg,
		db:          conn,
		log:         log,
		auth:        myMiddleware.NewAuthMiddleware(userService),
		users:       user.NewHandler(userService, log),
		connections: connection.NewHandler(connectionService, log),
		chats:       chat.NewHandler(chatService, log),
		courses:     course.NewHandler(courseService, log),
		ws:          realtime.NewHandler(hub, chatService, cfg.AllowedOrigins),
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ready", s.ready)
	r.Handle("/metrics", promhttp.Handler())

	// Public Routes
	r.Post("/register", s.users.Register)
	r.Post("/login", s.users.Login)

	// Protected Routes (Require JWT)
	r.Group(func(r chi.Router) {
		r.Use(s.auth.Handle)

		// WebSocket (Real-time). No request timeout: the connection outlives the handler.
		r.Get("/ws", s.ws.ServeWs)

		r.Route("/api", func(r chi.Router) {
			r.Use(middleware.Timeout(s.cfg.RequestTimeout))

			r.Get("/users/search", s.users.SearchUsers)
			r.Get("/users/{userId}", s.users.GetProfile)

			r.Route("/connections", func(r chi.Router) {
				r.Post("/request", s.connections.Request)
				r.Post("/{connectionId}/accept", s.connections.Accept)
				r.Post("/{connectionId}/reject", s.connections.Reject)
				r.Delete("/{connectionId}", s.connections.Remove)
				r.Get("/user/{userId}", s.connections.ListAccepted)
				r.Get("/pending/{userId}", s.connections.ListPending)
				r.Get("/sent/{userId}", s.connections.ListSent)
				r.Get("/suggestions/{userId}", s.connections.ListSuggestions)
			})

			r.Route("/chats", func(r chi.Router) {
				r.Get("/user/{userId}", s.chats.ListForUser)
				r.Post("/create", s.chats.Create)
				r.Get("/{chatId}/messages", s.chats.Messages)
				r.Post("/{chatId}/messages", s.chats.Send)
				r.Get("/{chatId}", s.chats.Header)
				r.Delete("/{chatId}", s.chats.Delete)
			})

			r.Route("/courses", func(r chi.Router) {
				r.Get("/", s.courses.List)
				r.Post("/", s.courses.Create)
				r.Get("/user/{userId}", s.courses.ListForUser)
				r.Post("/{courseId}/enroll", s.courses.Enroll)
				r.Get("/{courseId}/messages", s.courses.Messages)
				r.Post("/{courseId}/messages", s.courses.Send)
			})
		})
	})

	return r
}

func (s *Server) ready(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "no database"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.PingContext(ctx); err != nil {
		s.log.Warn("readiness check failed", zap.Error(err))
		httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "database unavailable"})
		return
	}
	httpx.WriteJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
