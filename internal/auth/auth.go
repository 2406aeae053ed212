// Package auth provides the bearer-token gate placed in front of protected
// routes. It fails closed: anything unexpected while authenticating ends in
// 401.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/patric-chuzhbe/userapi/internal/logger"
	"github.com/patric-chuzhbe/userapi/internal/models"
	"github.com/patric-chuzhbe/userapi/internal/token"
)

// Messages of the 401 responses.
const (
	MessageMissingHeader = "Authorization header missing"
	MessageBadFormat     = "Invalid authorization format. Use: Bearer <token>"
	MessageInvalidToken  = "Invalid or expired token"
	MessageFailed        = "Authentication failed"
)

type verifier interface {
	Verify(tokenString string) token.Result
}

// ContextKey is a custom type for storing values in context to avoid collisions.
type ContextKey string

// ClaimsKey is the context key holding the verified *token.Claims.
const ClaimsKey ContextKey = "claims"

// Gate authenticates requests with an Authorization: Bearer header.
type Gate struct {
	verifier verifier
}

func New(verifier verifier) *Gate {
	return &Gate{
		verifier: verifier,
	}
}

// Authenticate lets the request through only with a valid token; the claims
// are then available through ClaimsFromContext.
func (g *Gate) Authenticate(h http.Handler) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		claims, failure := g.authenticate(request)
		if failure != "" {
			models.WriteError(response, http.StatusUnauthorized, failure)
			return
		}

		ctx := context.WithValue(request.Context(), ClaimsKey, claims)
		h.ServeHTTP(response, request.WithContext(ctx))
	}

	return http.HandlerFunc(middleware)
}

func (g *Gate) authenticate(request *http.Request) (claims *token.Claims, failure string) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Log.Errorw("authentication panicked", "panic", fmt.Sprint(recovered))
			claims, failure = nil, MessageFailed
		}
	}()

	header := request.Header.Get("Authorization")
	if header == "" {
		return nil, MessageMissingHeader
	}

	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return nil, MessageBadFormat
	}

	result := g.verifier.Verify(parts[1])
	if !result.Valid || result.Claims == nil || result.Claims.UserID == "" {
		logger.Log.Debugw("token rejected", "reason", result.Reason)
		return nil, MessageInvalidToken
	}

	return result.Claims, ""
}

// ClaimsFromContext returns the claims stored by Authenticate.
func ClaimsFromContext(ctx context.Context) (*token.Claims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*token.Claims)
	return claims, ok && claims != nil
}

// UserIDFromContext returns the authenticated user id, or "" outside the gate.
func UserIDFromContext(ctx context.Context) string {
	claims, ok := ClaimsFromContext(ctx)
	if !ok {
		return ""
	}

	return claims.UserID
}
