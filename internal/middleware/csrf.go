package middleware

import (
	"mime"
	"net/http"
	"strings"

	"citizen-voice/internal/csrf"
	"citizen-voice/internal/model"
	"citizen-voice/internal/service"
)

const (
	SessionCookieName = "cv_session"
	csrfFormField     = "_csrf"
)

var csrfHeaders = []string{"X-CSRF-Token", "CSRF-Token"}

type CSRFMiddleware struct {
	guard *csrf.Guard
	audit SecurityAuditor
}

// NewCSRFMiddleware protects state-changing requests on the routes it is mounted on.
func NewCSRFMiddleware(guard *csrf.Guard, audit SecurityAuditor) *CSRFMiddleware {
	return &CSRFMiddleware{guard: guard, audit: audit}
}

func (m *CSRFMiddleware) Protect(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next.ServeHTTP(w, r)
			return
		}
		ok, err := m.guard.Verify(r.Context(), SessionID(r), suppliedCSRFToken(r))
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Unexpected server error")
			return
		}
		if ok {
			next.ServeHTTP(w, r)
			return
		}

		if m.audit != nil {
			actor := model.AuditActor{IP: ClientIP(r)}
			if claims, ok := ClaimsFromContext(r.Context()); ok {
				actor.UserID = claims.UserID
				actor.Role = claims.Role
			}
			m.audit.Log(r.Context(), service.AuditCSRFMismatch, actor, model.AuditDenied, r.Method+" "+r.URL.Path, nil, model.ErrCSRFMismatch.Error())
		}
		writeJSONError(w, http.StatusForbidden, "CSRF_MISMATCH", "missing or invalid CSRF token")
	})
}

// SessionID returns the CSRF session bound to the request cookie, or "".
func SessionID(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(cookie.Value)
}

func suppliedCSRFToken(r *http.Request) string {
	for _, header := range csrfHeaders {
		if value := strings.TrimSpace(r.Header.Get(header)); value != "" {
			return value
		}
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/x-www-form-urlencoded" || mediaType == "multipart/form-data" {
		return strings.TrimSpace(r.PostFormValue(csrfFormField))
	}
	return ""
}
