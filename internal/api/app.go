package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/npezzotti/ravenchat/internal/config"
	"github.com/npezzotti/ravenchat/internal/connect"
	"github.com/npezzotti/ravenchat/internal/server"
	"go.uber.org/zap"
)

type App struct {
	log            *zap.Logger
	svc            *connect.Service
	srv            *http.Server
	cs             *server.ChatServer
	signingKey     []byte
	allowedOrigins []string
}

// NewApp registers the HTTP routes on mux. Other handlers, such as the
// metrics endpoint, may already be mounted on it.
func NewApp(mux *http.ServeMux, logger *zap.Logger, cs *server.ChatServer, svc *connect.Service, cfg *config.Config) *App {
	s := &App{
		log:            logger,
		svc:            svc,
		cs:             cs,
		signingKey:     cfg.SigningKey,
		allowedOrigins: cfg.AllowedOrigins,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.requireSession(s.session))
	mux.HandleFunc("GET /api/auth/logout", s.requireSession(s.logout))
	mux.HandleFunc("GET /api/users", s.requireSession(s.listUsers))
	mux.HandleFunc("POST /api/connections/attempt", s.requireSession(s.attemptConnection))
	mux.HandleFunc("GET /api/connections", s.requireSession(s.listConnections))
	mux.HandleFunc("GET /api/messages", s.requireSession(s.getMessages))
	mux.HandleFunc("POST /api/messages", s.requireSession(s.sendMessage))
	mux.HandleFunc("GET /ws", s.requireSession(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.ExposedHeaders([]string{"Retry-After"}),
		handlers.AllowCredentials(),
	)(mux)

	s.srv = &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: s.recoverPanics(h),
	}

	return s
}

func (s *App) Start() error {
	s.log.Info("starting server", zap.String("addr", s.srv.Addr))
	return s.srv.ListenAndServe()
}

func (s *App) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
