package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"citizen-voice/internal/authz"
	"citizen-voice/internal/config"
	"citizen-voice/internal/csrf"
	"citizen-voice/internal/handler"
	"citizen-voice/internal/lockout"
	"citizen-voice/internal/middleware"
	"citizen-voice/internal/password"
	"citizen-voice/internal/revocation"
	"citizen-voice/internal/router"
	"citizen-voice/internal/service"
	"citizen-voice/internal/token"
)

type HealthCheckFunc func(ctx context.Context) error

// Components is the wired service graph behind the HTTP handler.
type Components struct {
	Tokens     *token.Issuer
	Revoked    *revocation.Registry
	Lockout    *lockout.Guard
	CSRF       *csrf.Guard
	Audit      *service.AuditService
	Auth       *service.AuthService
	Complaints *service.ComplaintService
	Handler    http.Handler
}

// Build wires services, middleware and routes over the given stores.
func Build(cfg *config.Config, stores Stores, mailer service.Mailer, health HealthCheckFunc) (*Components, error) {
	hasher, err := password.NewArgon2(password.Config{
		MemoryKB:    cfg.Argon2MemoryKB,
		Time:        cfg.Argon2Time,
		Parallelism: cfg.Argon2Parallelism,
		SaltLength:  16,
		KeyLength:   32,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize password hasher: %w", err)
	}

	issuer, err := token.NewIssuer(token.Config{
		Secret:              []byte(cfg.JWTSecret),
		Issuer:              cfg.JWTIssuer,
		AccessTTL:           cfg.JWTAccessTTL,
		RefreshTTL:          cfg.JWTRefreshTTL,
		RevokeFamilyOnReuse: cfg.RefreshReuseRevokeAll,
	}, stores.Users)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token issuer: %w", err)
	}

	guard, err := lockout.NewGuard(lockout.Config{
		Threshold: cfg.LockoutThreshold,
		Window:    cfg.LockoutWindow,
		Duration:  cfg.LockoutDuration,
	}, stores.Lockout)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize lockout guard: %w", err)
	}

	registry := revocation.NewRegistry(stores.Revocation)
	csrfGuard := csrf.NewGuard(stores.CSRF, cfg.CSRFSessionTTL)
	gate := authz.NewGate()
	auditService := service.NewAuditService(stores.Audit)

	authService := service.NewAuthService(service.AuthDeps{
		Users:         stores.Users,
		Complaints:    stores.Complaints,
		Hasher:        hasher,
		Tokens:        issuer,
		Revoked:       registry,
		Lockout:       guard,
		Gate:          gate,
		Audit:         auditService,
		Mailer:        mailer,
		ResetTokenTTL: cfg.ResetTokenTTL,
		FrontendURL:   cfg.FrontendURL,
	})
	complaintService := service.NewComplaintService(stores.Complaints, stores.Users, gate, auditService)

	appRouter := router.New(cfg, router.Middleware{
		Auth: middleware.NewAuthMiddleware(authService, auditService),
		CSRF: middleware.NewCSRFMiddleware(csrfGuard, auditService),
	}, router.Handlers{
		Auth:      handler.NewAuthHandler(authService, csrfGuard, cfg.CSRFSessionTTL, cfg.CookieSecure),
		User:      handler.NewUserHandler(authService),
		Complaint: handler.NewComplaintHandler(complaintService),
		Audit:     handler.NewAuditHandler(auditService),
	}, router.HealthCheck(health))

	return &Components{
		Tokens:     issuer,
		Revoked:    registry,
		Lockout:    guard,
		CSRF:       csrfGuard,
		Audit:      auditService,
		Auth:       authService,
		Complaints: complaintService,
		Handler:    appRouter,
	}, nil
}

// SweepTasks are the periodic cleanups of expired security state.
func (c *Components) SweepTasks(cfg *config.Config) []service.SweepTask {
	return []service.SweepTask{
		{Name: "lockout", Interval: cfg.LockoutSweepInterval, Run: c.Lockout.Sweep},
		{Name: "blacklist", Interval: cfg.BlacklistSweepInterval, Run: c.Revoked.Sweep},
		{Name: "csrf", Interval: cfg.CSRFSweepInterval, Run: c.CSRF.Sweep},
		{Name: "refresh_tokens", Interval: cfg.RefreshPruneInterval, Run: func(ctx context.Context) (int, error) {
			removed, err := c.Tokens.Prune(ctx)
			return int(removed), err
		}},
	}
}

type App struct {
	server       *http.Server
	sweeper      *service.Sweeper
	cancelSweeps context.CancelFunc
	cleanupFuncs []closer
}

func New(cfg *config.Config) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	stores, health, closers, err := openStores(ctx, cfg)
	if err != nil {
		return nil, err
	}

	components, err := Build(cfg, stores, service.LogMailer{}, health)
	if err != nil {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		return nil, err
	}

	if err := components.Auth.EnsureAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword, cfg.AdminName); err != nil {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		return nil, fmt.Errorf("failed to bootstrap admin: %w", err)
	}

	sweepCtx, cancelSweeps := context.WithCancel(context.Background())
	sweeper := service.NewSweeper(components.SweepTasks(cfg)...)
	sweeper.Start(sweepCtx)

	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           components.Handler,
		ReadHeaderTimeout: cfg.ServerReadHeaderTimeout,
		WriteTimeout:      cfg.ServerWriteTimeout,
		IdleTimeout:       cfg.ServerIdleTimeout,
	}

	return &App{
		server:       server,
		sweeper:      sweeper,
		cancelSweeps: cancelSweeps,
		cleanupFuncs: closers,
	}, nil
}

func (a *App) Run() error {
	serveErr := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-stop:
		slog.Info("shutdown signal received", "signal", sig.String())
	case err := <-serveErr:
		runErr = fmt.Errorf("server failed: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.server.Shutdown(ctx); err != nil && runErr == nil {
		runErr = fmt.Errorf("graceful shutdown failed: %w", err)
	}

	a.cancelSweeps()
	a.sweeper.Wait()

	for i := len(a.cleanupFuncs) - 1; i >= 0; i-- {
		a.cleanupFuncs[i]()
	}

	slog.Info("server stopped")
	return runErr
}
