package router

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"citizen-voice/internal/config"
	"citizen-voice/internal/handler"
	"citizen-voice/internal/middleware"
	"citizen-voice/internal/model"
)

type Handlers struct {
	Auth      *handler.AuthHandler
	User      *handler.UserHandler
	Complaint *handler.ComplaintHandler
	Audit     *handler.AuditHandler
}

type Middleware struct {
	Auth *middleware.AuthMiddleware
	CSRF *middleware.CSRFMiddleware
}

// HealthCheck reports whether the backing stores are reachable.
type HealthCheck func(ctx context.Context) error

func New(cfg *config.Config, mw Middleware, h Handlers, health HealthCheck) http.Handler {
	r := chi.NewRouter()
	rateLimitMiddleware := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Use(middleware.Recovery)
	r.Use(middleware.NewClientIPMiddleware(cfg.TrustedProxies).Handler)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders(cfg.CookieSecure))
	r.Use(rateLimitMiddleware.Handler)

	r.Get("/health", func(w http.ResponseWriter, req *http.Request) {
		if health != nil {
			ctx, cancel := context.WithTimeout(req.Context(), 2*time.Second)
			defer cancel()
			if err := health(ctx); err != nil {
				slog.Warn("health check failed", "error", err)
				http.Error(w, "unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	requireAuth := mw.Auth.RequireAuth
	adminOnly := mw.Auth.RequireRoles(model.RoleAdmin)
	// CSRF runs after authentication so an anonymous caller gets 401, not 403.
	csrf := mw.CSRF.Protect

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))

		api.Route("/auth", func(auth chi.Router) {
			auth.Post("/register", h.Auth.Register)
			auth.Post("/login", h.Auth.Login)
			auth.Post("/refresh-token", h.Auth.Refresh)
			auth.Post("/forgot-password", h.Auth.ForgotPassword)
			auth.Post("/reset-password", h.Auth.ResetPassword)
			auth.Get("/csrf-token", h.Auth.CSRFToken)

			auth.With(requireAuth).Post("/logout", h.Auth.Logout)
			auth.With(requireAuth).Get("/profile", h.Auth.Profile)
			auth.With(requireAuth, csrf).Put("/profile", h.Auth.UpdateProfile)
			auth.With(requireAuth).Get("/status", h.Auth.Status)

			auth.With(requireAuth, adminOnly).Get("/pending-institutions", h.User.PendingInstitutions)
			auth.With(requireAuth, adminOnly, csrf).Put("/approve-institution/{id}", h.User.Approve)
		})

		api.Route("/complaints", func(complaints chi.Router) {
			complaints.Use(requireAuth, csrf)
			complaints.Post("/", h.Complaint.Create)
			complaints.Get("/", h.Complaint.List)
			complaints.Get("/{id}", h.Complaint.Get)
			complaints.Put("/{id}", h.Complaint.Update)
			complaints.Post("/{id}/responses", h.Complaint.Respond)
		})

		api.Route("/admin", func(admin chi.Router) {
			admin.Use(requireAuth, adminOnly, csrf)
			admin.Get("/complaints", h.Complaint.List)
			admin.Put("/complaints/{id}", h.Complaint.Update)
			admin.Get("/institutions/pending", h.User.PendingInstitutions)
			admin.Put("/institutions/{id}/approve", h.User.Approve)
			admin.Put("/institutions/{id}/revoke", h.User.Revoke)
			admin.Get("/audit", h.Audit.List)
		})
	})

	return r
}
