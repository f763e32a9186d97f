// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Stockroom Contributors

package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/stockroom/stockroom/internal/auth"
)

const sessionContextKey = "session_claims"

// SessionRequired reads the session cookie, verifies it and stores the
// claims in the request context. Requests without a valid session are
// rejected with 401.
func SessionRequired(issuer *auth.TokenIssuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie, err := c.Request.Cookie(auth.SessionCookieName)
		if err != nil || cookie.Value == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{
				Error: "authentication required",
				Code:  "SESSION_INVALID",
			})
			return
		}

		claims, err := issuer.Verify(cookie.Value)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse{
				Error: "invalid or expired session",
				Code:  "SESSION_INVALID",
			})
			return
		}

		c.Set(sessionContextKey, claims)
		c.Next()
	}
}

// SessionFrom returns the verified session claims set by SessionRequired,
// or nil when the request carries none.
func SessionFrom(c *gin.Context) *auth.SessionClaims {
	v, ok := c.Get(sessionContextKey)
	if !ok {
		return nil
	}
	claims, ok := v.(*auth.SessionClaims)
	if !ok {
		return nil
	}
	return claims
}
