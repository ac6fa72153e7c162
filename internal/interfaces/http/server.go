// Package http provides HTTP server adapter for the application layer.
// This is a thin adapter layer that translates HTTP requests to application service calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/entity"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
}

// Services groups the application services exposed over HTTP
type Services struct {
	Engine    service.ApprovalEngine
	Config    service.ConfigService
	Directory service.DirectoryService
	Expenses  service.ExpenseService
	Audit     service.AuditService
	Exporter  port.ReportExporter
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	services   Services
	tokens     *TokenManager
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, services Services, tokens *TokenManager, logger Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	server := &Server{
		config:   config,
		router:   gin.New(),
		services: services,
		tokens:   tokens,
		logger:   logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(requestIDMiddleware())
	s.router.Use(s.loggingMiddleware())
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	h := NewHandlers(s.services, s.logger)

	s.router.GET("/health", h.HealthCheck)

	api := s.router.Group("/api")
	api.POST("/companies", h.RegisterCompany)

	authed := api.Group("", s.authMiddleware())
	{
		users := authed.Group("/users", requireCapability(entity.CapManageUsers))
		users.POST("", h.CreateUser)
		users.GET("", h.ListUsers)

		company := authed.Group("/company", requireCapability(entity.CapConfigureRules))
		company.PUT("/approvers", h.SetApprovers)
		company.GET("/approvers", h.GetApprovers)
		company.PUT("/approval-rule", h.SetApprovalRule)
		company.GET("/approval-rule", h.GetApprovalRule)

		expenses := authed.Group("/expenses")
		expenses.POST("", requireCapability(entity.CapSubmitExpense), h.SubmitExpense)
		expenses.GET("", requireCapability(entity.CapViewCompanyItems), h.ListCompanyExpenses)
		expenses.GET("/mine", h.ListMyExpenses)
		expenses.GET("/export", requireCapability(entity.CapViewCompanyItems), h.ExportExpenses)
		expenses.GET("/:id", h.GetExpense)
		expenses.GET("/:id/audit", requireCapability(entity.CapViewAuditLog), h.GetExpenseAudit)
		expenses.POST("/:id/evaluate", requireCapability(entity.CapConfigureRules), h.EvaluateExpense)

		approvals := authed.Group("/approvals", requireCapability(entity.CapDecideApproval))
		approvals.GET("/pending", h.PendingApprovals)
		approvals.POST("/:id/decide", h.Decide)

		authed.GET("/audit/logs", requireCapability(entity.CapViewAuditLog), h.ListAuditLogs)
	}
}

// Start starts the HTTP server
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
