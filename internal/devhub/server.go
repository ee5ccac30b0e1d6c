// Package devhub is an in-memory messaging backend speaking the same REST API
// and hub protocol as the production service. It backs the integration tests
// and the "chatctl devhub" command.
package devhub

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/devpool/chatsync/internal/api"
	"github.com/devpool/chatsync/internal/domain"
	chatmw "github.com/devpool/chatsync/internal/middleware"
)

// DefaultSendRateLimit is the per-user limit on POST /api/messages, per minute.
const DefaultSendRateLimit = 120

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Message string `json:"message"`
}

// Server holds the dev backend's state and its HTTP surface.
type Server struct {
	e      *echo.Echo
	state  *state
	hub    *hub
	logger *slog.Logger

	sendRateLimit int

	ctx    context.Context
	cancel context.CancelFunc
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = l
	}
}

// WithSendRateLimit sets the per-user message send limit per minute.
func WithSendRateLimit(perMinute int) Option {
	return func(s *Server) {
		s.sendRateLimit = perMinute
	}
}

// New creates a Server seeded with seed.
func New(seed Seed, opts ...Option) *Server {
	s := &Server{
		state:         newState(seed),
		logger:        slog.Default(),
		sendRateLimit: DefaultSendRateLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "devhub")
	s.hub = newHub(s.logger)
	s.ctx, s.cancel = context.WithCancel(context.Background())

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = s.handleError
	e.Validator = requestValidator{}
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	s.e = e
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	auth := chatmw.BearerAuth(s)

	g := s.e.Group("/api", auth, chatmw.Logger)
	g.GET("/conversations", s.listConversations)
	g.GET("/conversations/:id", s.getConversation)
	g.GET("/conversations/:id/messages", s.listMessages)
	g.POST("/conversations/direct/:userId", s.startDirect)
	g.POST("/conversations/group", s.createGroup)
	g.POST("/conversations/:id/read", s.markRead)
	g.POST("/messages", s.sendMessage, chatmw.RateLimiter(s.sendRateLimit))
	g.GET("/users/search", s.searchUsers)
	g.GET("/users/online", s.onlineUsers)
	g.GET("/entities/search", s.searchEntities)

	s.e.GET("/hubs/chat", s.serveHub, auth, chatmw.Logger)
}

// ResolveToken maps a bearer token to its user id.
func (s *Server) ResolveToken(token string) (string, bool) {
	return s.state.resolveToken(token)
}

// Handler returns the HTTP handler serving /api and /hubs/chat.
func (s *Server) Handler() http.Handler {
	return s.e
}

// Start listens on addr and blocks until the server stops.
func (s *Server) Start(addr string) error {
	s.logger.Info("Dev hub listening", "addr", addr)
	if err := s.e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("devhub: %w", err)
	}
	return nil
}

// Shutdown drops every hub connection and stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.cancel()
	s.hub.closeAll()
	return s.e.Shutdown(ctx)
}

// handleError maps domain errors onto status codes and writes {"message"}.
func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	message := http.StatusText(status)

	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		status = he.Code
		message = fmt.Sprint(he.Message)
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
		message = err.Error()
	case errors.Is(err, domain.ErrInvalidInput):
		status = http.StatusBadRequest
		message = err.Error()
	default:
		chatmw.FromContext(c.Request().Context()).Error("Unhandled request error", "error", err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(status)
	} else {
		err = c.JSON(status, ErrorResponse{Message: message})
	}
	if err != nil {
		s.logger.Debug("Failed to write error response", "error", err)
	}
}

// requestValidator adapts api.Validate to echo.Validator.
type requestValidator struct{}

func (requestValidator) Validate(i any) error {
	return api.Validate(i)
}
