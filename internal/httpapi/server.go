// Package httpapi exposes the M-Pesa callback, initiation registration, the
// dashboard read API and a chat webhook over HTTP.
package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/edgard/shulebot/internal/config"
	"github.com/edgard/shulebot/internal/database"
	"github.com/edgard/shulebot/internal/logger"
	"github.com/edgard/shulebot/internal/mpesa"
)

const (
	callbackPath    = "/api/mpesa/callback"
	maxRequestBytes = 1 << 20
)

// Router answers chat messages.
type Router interface {
	Route(ctx context.Context, userID, text string) string
}

// Reconciler writes payment flow results to the ledger.
type Reconciler interface {
	Reconcile(ctx context.Context, raw []byte) (*database.PaymentRecord, error)
	RecordInitiation(ctx context.Context, reg mpesa.Registration, rawResponse string) (*database.PaymentRecord, error)
}

// Store is the conversation and moderation data the API reads and edits.
type Store interface {
	Ping(ctx context.Context) error
	GetHistory(ctx context.Context, userID string, limit int) ([]database.ConversationEntry, error)
	Ban(ctx context.Context, userID string) error
	Unban(ctx context.Context, userID string) error
	ListBanned(ctx context.Context) ([]string, error)
}

// Deps holds the server's collaborators.
type Deps struct {
	Router     Router
	Reconciler Reconciler
	Ledger     database.Ledger
	Store      Store
	Logger     *slog.Logger
}

// Server is the HTTP API server.
type Server struct {
	cfg    config.HTTPConfig
	deps   Deps
	log    *slog.Logger
	router *gin.Engine
}

// NewServer creates the server and registers its routes.
func NewServer(cfg config.HTTPConfig, deps Deps) (*Server, error) {
	if deps.Router == nil || deps.Reconciler == nil || deps.Ledger == nil || deps.Store == nil {
		return nil, errors.New("httpapi requires router, reconciler, ledger and store")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	log := deps.Logger.With("component", "http_api")

	router := gin.New()
	router.Use(logger.GinMiddleware(log), gin.CustomRecovery(recoveryHandler(log)))

	s := &Server{
		cfg:    cfg,
		deps:   deps,
		log:    log,
		router: router,
	}

	router.GET("/healthz", s.handleHealth)

	api := router.Group("/api")
	{
		api.POST("/mpesa/callback", s.handleCallback)
		api.POST("/mpesa/register-init", s.handleRegisterInit)
		api.POST("/chat/messages", s.requireWebhookToken, s.handleChatMessage)
	}
	if cfg.WebhookToken == "" {
		log.Warn("No webhook token configured, chat webhook will reject all requests")
	}

	admin := router.Group("/api", s.requireAdminToken)
	{
		admin.GET("/payments", s.handleListPayments)
		admin.GET("/payments/:checkout_id", s.handleGetPayment)
		admin.GET("/conversations/:user_id", s.handleConversation)
		admin.GET("/bans", s.handleListBans)
		admin.POST("/bans/:user_id", s.handleBan)
		admin.DELETE("/bans/:user_id", s.handleUnban)
	}

	return s, nil
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("HTTP server listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server failed: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info("Shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown failed: %w", err)
	}
	return <-errCh
}

// recoveryHandler answers panics on the callback route with the gateway's
// error object and everywhere else with the API error envelope.
func recoveryHandler(log *slog.Logger) gin.RecoveryFunc {
	return func(c *gin.Context, recovered any) {
		log.ErrorContext(c.Request.Context(), "Recovered from panic in HTTP handler",
			"panic", recovered, "path", c.FullPath())
		if c.FullPath() == callbackPath {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gatewayError)
			return
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "internal error",
		})
	}
}

func (s *Server) requireAdminToken(c *gin.Context) {
	if s.cfg.AdminToken == "" {
		c.Next()
		return
	}
	s.checkBearer(c, s.cfg.AdminToken)
}

// requireWebhookToken rejects every request while no webhook token is
// configured.
func (s *Server) requireWebhookToken(c *gin.Context) {
	s.checkBearer(c, s.cfg.WebhookToken)
}

func (s *Server) checkBearer(c *gin.Context, secret string) {
	token, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
	if !ok || secret == "" || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
		s.log.WarnContext(c.Request.Context(), "Rejected unauthenticated request", "path", c.FullPath())
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   "unauthorized",
		})
		return
	}
	c.Next()
}

func (s *Server) handleHealth(c *gin.Context) {
	if err := s.deps.Store.Ping(c.Request.Context()); err != nil {
		s.log.WarnContext(c.Request.Context(), "Health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
