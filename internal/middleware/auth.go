// Package middleware содержит HTTP middleware для сервиса Greenfill Hub.
package middleware

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/mmeshcher/greenfill-hub/internal/auth"
)

type contextKey string

const claimsKey contextKey = "claims"

// TokenParser проверяет bearer-токен.
type TokenParser interface {
	Parse(token string) (*auth.Claims, error)
}

// RevocationChecker сообщает, отозван ли токен.
type RevocationChecker interface {
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// AuthMiddleware выполняет проверку bearer-токена из заголовка Authorization.
type AuthMiddleware struct {
	tokens  TokenParser
	revoked RevocationChecker
	logger  *zap.Logger
}

// NewAuthMiddleware создаёт AuthMiddleware. revoked может быть nil, если список отзыва не настроен.
func NewAuthMiddleware(tokens TokenParser, revoked RevocationChecker, logger *zap.Logger) *AuthMiddleware {
	return &AuthMiddleware{
		tokens:  tokens,
		revoked: revoked,
		logger:  logger,
	}
}

// Middleware проверяет токен и добавляет его содержимое в контекст запроса.
func (a *AuthMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := BearerToken(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "No authorization token provided")
			return
		}

		claims, err := a.tokens.Parse(token)
		if err != nil {
			a.logger.Info("authorization error", zap.String("path", r.URL.Path), zap.Error(err))
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}

		if a.revoked != nil {
			revoked, err := a.revoked.IsRevoked(r.Context(), claims.TokenID)
			if err != nil {
				a.logger.Error("revocation check error", zap.Error(err))
				writeError(w, http.StatusInternalServerError, "Internal server error")
				return
			}
			if revoked {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// AnonKey требует bearer-токен, равный публичному анонимному ключу. Пустой ключ отключает проверку.
func AnonKey(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if key == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := BearerToken(r)
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(key)) != 1 {
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// BearerToken извлекает токен из заголовка "Authorization: Bearer <token>".
func BearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// WithClaims кладёт содержимое токена в контекст.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, claimsKey, claims)
}

// GetClaimsFromContext извлекает содержимое токена из контекста запроса.
func GetClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(claimsKey).(*auth.Claims)
	return claims, ok && claims != nil
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
