package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"citizen-voice/internal/model"
)

const requestIDHeader = "X-Request-ID"

const (
	requestIDContextKey contextKey = "request_id"
	identityContextKey  contextKey = "request_identity"
)

// Only the head of an error body is kept; the envelope fits well within it.
const maxCapturedErrorBody = 4 << 10

// requestIdentity is filled in by RequireAuth further down the chain and read
// back by Logging once the handler returns.
type requestIdentity struct {
	mu     sync.Mutex
	userID string
	role   model.Role
}

func (id *requestIdentity) set(claims *model.AuthClaims) {
	id.mu.Lock()
	id.userID = claims.UserID
	id.role = claims.Role
	id.mu.Unlock()
}

func (id *requestIdentity) attrs() []any {
	id.mu.Lock()
	defer id.mu.Unlock()
	if id.userID == "" {
		return nil
	}
	return []any{"user_id", id.userID, "role", string(id.role)}
}

func recordIdentity(ctx context.Context, claims *model.AuthClaims) {
	if id, ok := ctx.Value(identityContextKey).(*requestIdentity); ok && claims != nil {
		id.set(claims)
	}
}

// Logging writes one access line per request, tagged with the request id, the
// resolved client address and, once authenticated, the caller's user id and role.
// Error responses also carry the envelope's code and message.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		identity := &requestIdentity{}
		ctx := context.WithValue(r.Context(), requestIDContextKey, requestID)
		ctx = context.WithValue(ctx, identityContextKey, identity)
		r = r.WithContext(ctx)

		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		attrs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(started).Milliseconds(),
			"client_ip", ClientIP(r),
		}
		attrs = append(attrs, identity.attrs()...)
		if rec.status >= 400 {
			attrs = append(attrs, rec.errorAttrs()...)
		}

		switch {
		case rec.status >= 500:
			slog.Error("request", attrs...)
		case rec.status >= 400:
			slog.Warn("request", attrs...)
		default:
			slog.Info("request", attrs...)
		}
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	errBody     bytes.Buffer
	wroteHeader bool
}

func (rec *statusRecorder) WriteHeader(statusCode int) {
	if rec.wroteHeader {
		return
	}
	rec.status = statusCode
	rec.wroteHeader = true
	rec.ResponseWriter.WriteHeader(statusCode)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	if !rec.wroteHeader {
		rec.WriteHeader(http.StatusOK)
	}
	if rec.status >= 400 {
		if room := maxCapturedErrorBody - rec.errBody.Len(); room > 0 {
			rec.errBody.Write(b[:min(len(b), room)])
		}
	}
	return rec.ResponseWriter.Write(b)
}

func (rec *statusRecorder) errorAttrs() []any {
	if rec.errBody.Len() == 0 {
		return nil
	}
	var parsed model.APIResponse
	if err := json.Unmarshal(rec.errBody.Bytes(), &parsed); err != nil || parsed.Error == nil {
		return nil
	}
	attrs := []any{"error_code", parsed.Error.Code, "error_message", parsed.Error.Message}
	if parsed.Error.Details != "" {
		attrs = append(attrs, "error_details", parsed.Error.Details)
	}
	return attrs
}

// RequestIDFromContext returns the id assigned by Logging, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDContextKey).(string)
	return id
}
