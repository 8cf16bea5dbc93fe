package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"citizen-voice/internal/config"
	"citizen-voice/internal/csrf"
	"citizen-voice/internal/database"
	"citizen-voice/internal/lockout"
	"citizen-voice/internal/repository"
	"citizen-voice/internal/revocation"
	"citizen-voice/internal/service"
)

// Stores is every persistence dependency of the services.
type Stores struct {
	Users      service.UserStore
	Complaints service.ComplaintStore
	Audit      service.AuditStore
	Revocation revocation.Store
	Lockout    lockout.Store
	CSRF       csrf.Store
}

// MemoryStores keeps all state in process. Used by tests and DATABASE_DRIVER=memory.
func MemoryStores() Stores {
	return Stores{
		Users:      repository.NewMemoryUserStore(),
		Complaints: repository.NewMemoryComplaintStore(),
		Audit:      repository.NewMemoryAuditStore(),
		Revocation: revocation.NewMemoryStore(),
		Lockout:    lockout.NewMemoryStore(),
		CSRF:       csrf.NewMemoryStore(),
	}
}

type closer func()

// openStores connects the configured data driver and state backend. The
// returned closers release them in reverse order of opening.
func openStores(ctx context.Context, cfg *config.Config) (Stores, HealthCheckFunc, []closer, error) {
	stores := MemoryStores()
	var closers []closer
	var checks []HealthCheckFunc

	fail := func(err error) (Stores, HealthCheckFunc, []closer, error) {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
		return Stores{}, nil, nil, err
	}

	switch cfg.DatabaseDriver {
	case config.DriverPostgres:
		slog.Info("connecting to PostgreSQL")
		db, err := database.NewPostgres(ctx, database.PostgresOptions{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		})
		if err != nil {
			return fail(fmt.Errorf("failed to connect to database: %w", err))
		}
		closers = append(closers, db.Close)

		if err := db.Migrate(ctx); err != nil {
			return fail(fmt.Errorf("failed to migrate database: %w", err))
		}

		stores.Users = repository.NewUserRepository(db.Pool)
		stores.Complaints = repository.NewComplaintRepository(db.Pool)
		stores.Audit = repository.NewAuditRepository(db.Pool)
		checks = append(checks, db.Health)

	case config.DriverMongo:
		slog.Info("connecting to MongoDB")
		m, err := database.NewMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return fail(fmt.Errorf("failed to connect to mongo: %w", err))
		}
		closers = append(closers, m.Close)

		users, err := repository.NewMongoUserRepository(ctx, m.DB)
		if err != nil {
			return fail(err)
		}
		complaints, err := repository.NewMongoComplaintRepository(ctx, m.DB)
		if err != nil {
			return fail(err)
		}
		audit, err := repository.NewMongoAuditRepository(ctx, m.DB)
		if err != nil {
			return fail(err)
		}
		stores.Users = users
		stores.Complaints = complaints
		stores.Audit = audit
		checks = append(checks, m.Health)

	case config.DriverMemory:
		slog.Warn("using in-memory data store; all accounts and complaints are lost on restart")
	}

	switch cfg.StateBackend {
	case config.StateRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fail(fmt.Errorf("failed to parse REDIS_URL: %w", err))
		}
		client := redis.NewClient(opts)
		closers = append(closers, func() {
			if err := client.Close(); err != nil {
				slog.Warn("redis close failed", "error", err)
			}
		})

		if err := client.Ping(ctx).Err(); err != nil {
			return fail(fmt.Errorf("failed to connect to redis: %w", err))
		}
		slog.Info("redis connected", "addr", opts.Addr)

		stores.Revocation = revocation.NewRedisStore(client)
		stores.Lockout = lockout.NewRedisStore(client)
		stores.CSRF = csrf.NewRedisStore(client)
		checks = append(checks, func(ctx context.Context) error {
			return client.Ping(ctx).Err()
		})

	case config.StateMemory:
		slog.Warn("lockout, token blacklist and CSRF sessions are per-process; use STATE_BACKEND=redis when running more than one instance")
	}

	health := func(ctx context.Context) error {
		for _, check := range checks {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}

	return stores, health, closers, nil
}
