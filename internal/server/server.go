package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "mailpilot/docs" // registers the swagger spec
	"mailpilot/internal/accounts"
	"mailpilot/internal/ai"
	"mailpilot/internal/config"
	"mailpilot/internal/dispatch"
	"mailpilot/internal/handlers"
	"mailpilot/internal/ledger"
	"mailpilot/internal/scan"
)

// Deps are the engine components the HTTP layer drives
type Deps struct {
	DB           *sqlx.DB // nil when running on in-memory stores
	Accounts     *accounts.Service
	Ledger       ledger.Ledger
	Orchestrator *ai.Orchestrator
	Dispatcher   *dispatch.Dispatcher
	Mailbox      handlers.MailboxTester
	Coordinator  *scan.Coordinator
}

// Server represents the application server
type Server struct {
	echo   *echo.Echo
	deps   Deps
	config *config.Config
	logger zerolog.Logger
}

// New creates a new server instance
func New(cfg *config.Config, deps Deps, logger zerolog.Logger) *Server {
	return &Server{
		config: cfg,
		deps:   deps,
		logger: logger.With().Str("component", "http").Logger(),
	}
}

// zerologMiddleware creates a zerolog-based logging middleware for Echo
func (s *Server) zerologMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			req := c.Request()
			res := c.Response()

			event := s.logger.Info()
			if res.Status >= http.StatusInternalServerError {
				event = s.logger.Error().Err(err)
			}
			event.
				Str("method", req.Method).
				Str("uri", req.RequestURI).
				Str("remote_ip", c.RealIP()).
				Str("tenant_id", req.Header.Get(handlers.TenantHeader)).
				Int("status", res.Status).
				Int64("latency_ms", time.Since(start).Milliseconds()).
				Str("user_agent", req.UserAgent()).
				Msg("HTTP request")

			return nil
		}
	}
}

// Initialize sets up the Echo framework with middleware and routes
func (s *Server) Initialize() {
	s.echo = echo.New()

	// Middleware
	s.echo.Use(s.zerologMiddleware())
	s.echo.Use(middleware.Recover())
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization, handlers.TenantHeader},
	}))

	// Hide Echo banner
	s.echo.HideBanner = true
	s.echo.HidePort = true

	// Setup routes
	s.setupRoutes()
}

// setupRoutes configures all the application routes
func (s *Server) setupRoutes() {
	d := s.deps

	// Swagger documentation
	s.echo.GET("/swagger/*", echoSwagger.WrapHandler)

	// Health endpoints (keep at root level for monitoring)
	s.echo.GET("/", handlers.RootHandler(s.config.Version))
	s.echo.GET("/healthz", handlers.HealthHandler(s.config.Version))
	s.echo.GET("/healthz/db", handlers.DBHealthHandler(d.DB))

	// Every API route acts for the tenant named by the auth layer
	api := s.echo.Group("/api", handlers.TenantMiddleware(d.Accounts.Store()))

	aiGroup := api.Group("/ai")
	aiGroup.GET("/settings", handlers.GetAISettingsHandler(d.Accounts))
	aiGroup.POST("/settings", handlers.UpdateAISettingsHandler(d.Accounts, d.Orchestrator))
	aiGroup.POST("/test", handlers.TestAIProviderHandler(d.Accounts, d.Orchestrator))
	aiGroup.GET("/usage", handlers.UsageHandler(d.Accounts, d.Ledger))
	aiGroup.POST("/auto-reply/scan", handlers.ScanHandler(d.Coordinator))
	aiGroup.GET("/auto-reply/status", handlers.ScanStatusHandler(d.Coordinator))

	imap := api.Group("/imap")
	imap.POST("/test-account", handlers.TestAccountHandler(d.Accounts, d.Mailbox))
	imap.POST("/sync", handlers.SyncAccountHandler(d.Accounts, d.Coordinator))
	imap.GET("/inbox", handlers.InboxHandler(d.Accounts, d.Ledger))
	imap.GET("/accounts", handlers.ListAccountsHandler(d.Accounts))
	imap.PATCH("/accounts/:id", handlers.PatchAccountHandler(d.Accounts))
	imap.POST("/retry", handlers.RetryMessageHandler(d.Accounts, d.Ledger))
	imap.GET("/messages/:id/attempts", handlers.MessageAttemptsHandler(d.Accounts, d.Ledger))

	inbox := api.Group("/mail-inbox")
	inbox.GET("/contacts", handlers.ContactsHandler(d.Accounts, d.Ledger))
	inbox.GET("/messages", handlers.ConversationHandler(d.Accounts, d.Ledger))
	inbox.POST("/send", handlers.SendMailHandler(d.Accounts, d.Dispatcher))

	api.POST("/mail/send", handlers.BulkSendHandler(d.Accounts, d.Dispatcher))
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start starts the HTTP server. It returns nil after a graceful Shutdown.
func (s *Server) Start() error {
	s.logger.Info().Str("port", s.config.Port).Msg("Server starting")
	if err := s.echo.Start(":" + s.config.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}
