// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stockroom Contributors

package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/stockroom/stockroom/internal/auth"
	"github.com/stockroom/stockroom/pkg/errutil"
)

type registerRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	FullName string `json:"fullName" binding:"required"`
	Role     string `json:"role"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type resetRequestRequest struct {
	Email string `json:"email" binding:"required,email"`
}

type resetPerformRequest struct {
	Email       string `json:"email" binding:"required,email"`
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

type messageResponse struct {
	Message string `json:"message"`
}

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

type loginResponse struct {
	Message   string        `json:"message"`
	Profile   *auth.Profile `json:"profile"`
	ExpiresAt string        `json:"expiresAt"`
}

// statusForCode maps service error codes onto HTTP statuses. Unknown codes
// are treated as internal errors.
func statusForCode(code string) int {
	switch code {
	case "AUTH_NOT_FOUND":
		return http.StatusNotFound
	case "AUTH_INVALID_CREDENTIALS", "SESSION_INVALID":
		return http.StatusUnauthorized
	case "AUTH_ALREADY_EXISTS", "AUTH_UNVERIFIED_EXISTS", "RESET_ALREADY_PENDING":
		return http.StatusConflict
	case "AUTH_INVALID_ROLE", "AUTH_WEAK_PASSWORD",
		"RESET_TOKEN_EXPIRED", "RESET_TOKEN_USED", "RESET_TOKEN_INVALID":
		return http.StatusBadRequest
	case "NOTIFY_DELIVERY_FAILED":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(c *gin.Context, err error) {
	code := errutil.Code(err)
	status := statusForCode(code)
	if status >= http.StatusInternalServerError {
		errutil.LogError(s.logger, "request failed", err)
		c.JSON(status, errorResponse{Error: "internal error", Code: code})
		return
	}
	c.JSON(status, errorResponse{Error: err.Error(), Code: code})
}

func (s *Server) count(vec *prometheus.CounterVec, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	vec.WithLabelValues(status).Inc()
}

func (s *Server) handleRegister(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	err := s.svc.Register(c.Request.Context(), req.Email, req.Password, req.FullName, req.Role)
	if s.metrics != nil {
		s.count(s.metrics.RegistrationsTotal, err)
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, messageResponse{Message: "registration successful"})
}

func (s *Server) handleLogin(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	profile, token, expiresAt, err := s.svc.Login(c.Request.Context(), req.Email, req.Password)
	if s.metrics != nil {
		s.count(s.metrics.LoginsTotal, err)
	}
	if err != nil {
		s.writeError(c, err)
		return
	}

	http.SetCookie(c.Writer, s.issuer.Cookie(token, expiresAt))
	c.JSON(http.StatusOK, loginResponse{
		Message:   "login successful",
		Profile:   profile,
		ExpiresAt: expiresAt.UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleLogout(c *gin.Context) {
	http.SetCookie(c.Writer, s.svc.Logout())
	c.JSON(http.StatusOK, messageResponse{Message: "logged out"})
}

func (s *Server) handleRequestPasswordReset(c *gin.Context) {
	var req resetRequestRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	err := s.svc.RequestPasswordReset(c.Request.Context(), req.Email)
	if s.metrics != nil {
		s.count(s.metrics.ResetRequestsTotal, err)
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "password reset link sent"})
}

func (s *Server) handleResetPassword(c *gin.Context) {
	var req resetPerformRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	err := s.svc.PerformPasswordReset(c.Request.Context(), req.Email, req.Token, req.NewPassword)
	if s.metrics != nil {
		s.count(s.metrics.ResetPerformsTotal, err)
	}
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, messageResponse{Message: "password reset successful, please login"})
}

func (s *Server) handleMe(c *gin.Context) {
	claims := SessionFrom(c)
	if claims == nil {
		c.JSON(http.StatusUnauthorized, errorResponse{Error: "no session", Code: "SESSION_INVALID"})
		return
	}

	profile, err := s.svc.GetProfile(c.Request.Context(), claims.Email)
	if err != nil {
		s.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}
