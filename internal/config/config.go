package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverMemory   = "memory"

	StateMemory = "memory"
	StateRedis  = "redis"
)

const minJWTSecretBytes = 32

type Config struct {
	AppEnv                  string
	ServerPort              string
	ServerReadHeaderTimeout time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	RequestTimeout          time.Duration

	DatabaseDriver string
	DatabaseURL    string
	DBMaxConns     int32
	DBMinConns     int32
	MongoURI       string
	MongoDatabase  string

	StateBackend string
	RedisURL     string

	JWTSecret             string
	JWTIssuer             string
	JWTAccessTTL          time.Duration
	JWTRefreshTTL         time.Duration
	RefreshReuseRevokeAll bool

	Argon2MemoryKB    uint32
	Argon2Time        uint32
	Argon2Parallelism uint8

	LockoutThreshold       int
	LockoutWindow          time.Duration
	LockoutDuration        time.Duration
	LockoutSweepInterval   time.Duration
	BlacklistSweepInterval time.Duration
	RefreshPruneInterval   time.Duration
	CSRFSweepInterval      time.Duration

	CSRFSessionTTL time.Duration
	CookieSecure   bool

	ResetTokenTTL time.Duration
	FrontendURL   string

	CORSOrigins      []string
	RateLimitRPM     int
	AuthRateLimitRPM int
	TrustedProxies   []netip.Prefix

	AdminEmail    string
	AdminPassword string
	AdminName     string

	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppEnv:                  getEnv("APP_ENV", "development"),
		ServerPort:              getEnv("SERVER_PORT", "8080"),
		ServerReadHeaderTimeout: getDuration("SERVER_READ_HEADER_TIMEOUT", 10*time.Second),
		ServerWriteTimeout:      getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:       getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:          getDuration("REQUEST_TIMEOUT", 30*time.Second),

		DatabaseDriver: strings.ToLower(getEnv("DATABASE_DRIVER", DriverPostgres)),
		DatabaseURL:    strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:     int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:     int32(getInt("DB_MIN_CONNS", 2)),
		MongoURI:       strings.TrimSpace(os.Getenv("MONGO_URI")),
		MongoDatabase:  getEnv("MONGO_DATABASE", "citizen_voice"),

		StateBackend: strings.ToLower(getEnv("STATE_BACKEND", StateMemory)),
		RedisURL:     strings.TrimSpace(os.Getenv("REDIS_URL")),

		JWTSecret:             os.Getenv("JWT_SECRET"),
		JWTIssuer:             getEnv("JWT_ISSUER", "citizen-voice"),
		JWTAccessTTL:          getDuration("JWT_ACCESS_TTL", 15*time.Minute),
		JWTRefreshTTL:         getDuration("JWT_REFRESH_TTL", 168*time.Hour),
		RefreshReuseRevokeAll: getBool("REFRESH_REUSE_REVOKE_ALL", false),

		Argon2MemoryKB:    uint32(getInt("ARGON2_MEMORY_KB", 64*1024)),
		Argon2Time:        uint32(getInt("ARGON2_TIME", 3)),
		Argon2Parallelism: uint8(getInt("ARGON2_PARALLELISM", 2)),

		LockoutThreshold:       getInt("LOCKOUT_THRESHOLD", 5),
		LockoutWindow:          getDuration("LOCKOUT_WINDOW", 15*time.Minute),
		LockoutDuration:        getDuration("LOCKOUT_DURATION", 15*time.Minute),
		LockoutSweepInterval:   getDuration("LOCKOUT_SWEEP_INTERVAL", 5*time.Minute),
		BlacklistSweepInterval: getDuration("BLACKLIST_SWEEP_INTERVAL", time.Hour),
		RefreshPruneInterval:   getDuration("REFRESH_PRUNE_INTERVAL", time.Hour),
		CSRFSweepInterval:      getDuration("CSRF_SWEEP_INTERVAL", time.Hour),

		CSRFSessionTTL: getDuration("CSRF_SESSION_TTL", 24*time.Hour),
		CookieSecure:   getBool("COOKIE_SECURE", false),

		ResetTokenTTL: getDuration("RESET_TOKEN_TTL", time.Hour),
		FrontendURL:   getEnv("FRONTEND_URL", "http://localhost:3000"),

		CORSOrigins:      splitCSV(getEnv("CORS_ORIGINS", "http://localhost:3000,http://localhost:5173")),
		RateLimitRPM:     getInt("RATE_LIMIT_RPM", 100),
		AuthRateLimitRPM: getInt("AUTH_RATE_LIMIT_RPM", 10),

		AdminEmail:    strings.TrimSpace(os.Getenv("ADMIN_EMAIL")),
		AdminPassword: os.Getenv("ADMIN_PASSWORD"),
		AdminName:     strings.TrimSpace(os.Getenv("ADMIN_NAME")),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "pretty"),
	}

	trusted, err := ParseTrustedProxies(splitCSV(os.Getenv("TRUSTED_PROXIES")))
	if err != nil {
		return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}
	cfg.TrustedProxies = trusted

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ParseTrustedProxies accepts CIDR prefixes and bare addresses.
func ParseTrustedProxies(raw []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(raw))
	for _, entry := range raw {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if strings.Contains(entry, "/") {
			prefix, err := netip.ParsePrefix(entry)
			if err != nil {
				return nil, err
			}
			out = append(out, prefix.Masked())
			continue
		}
		addr, err := netip.ParseAddr(entry)
		if err != nil {
			return nil, err
		}
		addr = addr.Unmap()
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.JWTSecret) == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}

	if len(c.JWTSecret) < minJWTSecretBytes {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretBytes)
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	switch c.DatabaseDriver {
	case DriverPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when DATABASE_DRIVER=%s", DriverPostgres)
		}
		if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("DB_MIN_CONNS/DB_MAX_CONNS are inconsistent")
		}
	case DriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MONGO_URI is required when DATABASE_DRIVER=%s", DriverMongo)
		}
		if c.MongoDatabase == "" {
			return fmt.Errorf("MONGO_DATABASE cannot be empty")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("DATABASE_DRIVER must be one of %s, %s, %s", DriverPostgres, DriverMongo, DriverMemory)
	}

	switch c.StateBackend {
	case StateRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when STATE_BACKEND=%s", StateRedis)
		}
	case StateMemory:
	default:
		return fmt.Errorf("STATE_BACKEND must be %s or %s", StateMemory, StateRedis)
	}

	if c.JWTAccessTTL <= 0 || c.JWTRefreshTTL <= 0 {
		return fmt.Errorf("JWT_ACCESS_TTL and JWT_REFRESH_TTL must be positive")
	}

	if c.Argon2MemoryKB == 0 || c.Argon2Time == 0 || c.Argon2Parallelism == 0 {
		return fmt.Errorf("ARGON2_MEMORY_KB, ARGON2_TIME and ARGON2_PARALLELISM must be positive")
	}

	if c.LockoutThreshold <= 0 || c.LockoutWindow <= 0 || c.LockoutDuration <= 0 {
		return fmt.Errorf("LOCKOUT_THRESHOLD, LOCKOUT_WINDOW and LOCKOUT_DURATION must be positive")
	}

	if c.CSRFSessionTTL <= 0 || c.ResetTokenTTL <= 0 {
		return fmt.Errorf("CSRF_SESSION_TTL and RESET_TOKEN_TTL must be positive")
	}

	if (c.AdminEmail == "") != (c.AdminPassword == "") {
		return fmt.Errorf("ADMIN_EMAIL and ADMIN_PASSWORD must be set together")
	}

	return nil
}

// IsProduction reports whether APP_ENV selects production behaviour.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
