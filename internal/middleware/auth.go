package middleware

import (
	"context"
	"net/http"
	"strings"

	"citizen-voice/internal/model"
	"citizen-voice/internal/service"
)

type tokenValidator interface {
	ValidateAccessToken(ctx context.Context, raw string) (*model.AuthClaims, error)
}

// SecurityAuditor records security events raised by middleware.
type SecurityAuditor interface {
	Log(ctx context.Context, action string, actor model.AuditActor, status string, resource string, details any, errText string)
}

type contextKey string

const (
	authClaimsContextKey  contextKey = "auth_claims"
	accessTokenContextKey contextKey = "access_token"
)

type AuthMiddleware struct {
	validator tokenValidator
	audit     SecurityAuditor
}

func NewAuthMiddleware(validator tokenValidator, audit SecurityAuditor) *AuthMiddleware {
	return &AuthMiddleware{validator: validator, audit: audit}
}

// RequireAuth accepts only unexpired, non-blacklisted access tokens.
func (m *AuthMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if len(header) < 7 || !strings.EqualFold(header[:7], "bearer ") {
			writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing or invalid authorization header")
			return
		}

		raw := strings.TrimSpace(header[7:])
		claims, err := m.validator.ValidateAccessToken(r.Context(), raw)
		if err != nil {
			if m.audit != nil {
				m.audit.Log(r.Context(), service.AuditInvalidToken, model.AuditActor{IP: ClientIP(r)},
					model.AuditDenied, r.Method+" "+r.URL.Path, nil, err.Error())
			}
			writeJSONError(w, http.StatusUnauthorized, "INVALID_OR_EXPIRED_TOKEN", "invalid or expired token")
			return
		}

		recordIdentity(r.Context(), claims)
		ctx := context.WithValue(r.Context(), authClaimsContextKey, claims)
		ctx = context.WithValue(ctx, accessTokenContextKey, raw)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *AuthMiddleware) RequireRoles(allowedRoles ...model.Role) func(http.Handler) http.Handler {
	roleSet := make(map[model.Role]struct{}, len(allowedRoles))
	for _, role := range allowedRoles {
		roleSet[role] = struct{}{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, ok := ClaimsFromContext(r.Context())
			if !ok {
				writeJSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required")
				return
			}

			if _, exists := roleSet[claims.Role]; !exists {
				writeJSONError(w, http.StatusForbidden, "FORBIDDEN", "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func ClaimsFromContext(ctx context.Context) (*model.AuthClaims, bool) {
	claims, ok := ctx.Value(authClaimsContextKey).(*model.AuthClaims)
	return claims, ok
}

// AccessTokenFromContext returns the raw bearer token accepted by RequireAuth.
func AccessTokenFromContext(ctx context.Context) string {
	raw, _ := ctx.Value(accessTokenContextKey).(string)
	return raw
}
