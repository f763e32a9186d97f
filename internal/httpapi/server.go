// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stockroom Contributors

// Package httpapi exposes the credential operations over HTTP. Sessions
// travel in an HttpOnly cookie; handlers map service error codes onto
// HTTP statuses.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/oops"

	"github.com/stockroom/stockroom/internal/auth"
	"github.com/stockroom/stockroom/internal/observability"
)

// Server serves the /api/auth endpoints.
type Server struct {
	addr    string
	engine  *gin.Engine
	httpSrv *http.Server
	ln      net.Listener
	running atomic.Bool

	svc     *auth.Service
	issuer  *auth.TokenIssuer
	metrics *observability.Metrics
	logger  *slog.Logger
}

// New creates the API server. metrics may be nil; counters are then skipped.
func New(addr string, svc *auth.Service, issuer *auth.TokenIssuer, metrics *observability.Metrics, logger *slog.Logger) (*Server, error) {
	if addr == "" {
		return nil, oops.Errorf("listen address is required")
	}
	if svc == nil {
		return nil, oops.Errorf("auth service is required")
	}
	if issuer == nil {
		return nil, oops.Errorf("token issuer is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		addr:    addr,
		svc:     svc,
		issuer:  issuer,
		metrics: metrics,
		logger:  logger,
	}
	s.engine = s.buildEngine()
	return s, nil
}

func (s *Server) buildEngine() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger(s.logger))

	api := engine.Group("/api/auth")
	api.POST("/register", s.handleRegister)
	api.POST("/login", s.handleLogin)
	api.POST("/logout", s.handleLogout)
	api.POST("/request-password-reset", s.handleRequestPasswordReset)
	api.POST("/reset-password", s.handleResetPassword)
	api.GET("/me", SessionRequired(s.issuer), s.handleMe)

	return engine
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start begins serving. The returned channel yields the terminal serve
// error, or nil after a clean Stop.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Errorf("api server already running")
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("API_LISTEN_FAILED").
			With("addr", s.addr).
			Wrap(err)
	}
	s.ln = ln
	s.httpSrv = &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		defer s.running.Store(false)
		serveErr := s.httpSrv.Serve(ln)
		if errors.Is(serveErr, http.ErrServerClosed) {
			serveErr = nil
		}
		errCh <- serveErr
		close(errCh)
	}()

	s.logger.Info("api server listening", "addr", ln.Addr().String())
	return errCh, nil
}

// Stop shuts the server down gracefully, bounded by ctx.
func (s *Server) Stop(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	if err := s.httpSrv.Shutdown(ctx); err != nil {
		return oops.Code("API_SHUTDOWN_FAILED").Wrap(err)
	}
	return nil
}

// Addr reports the bound listen address once Start has succeeded.
func (s *Server) Addr() string {
	if s.ln == nil {
		return s.addr
	}
	return s.ln.Addr().String()
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Info("request handled",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
