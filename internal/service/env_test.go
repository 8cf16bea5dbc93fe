package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"citizen-voice/internal/authz"
	"citizen-voice/internal/lockout"
	"citizen-voice/internal/model"
	"citizen-voice/internal/password"
	"citizen-voice/internal/repository"
	"citizen-voice/internal/revocation"
	"citizen-voice/internal/token"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type captureMailer struct {
	mu    sync.Mutex
	links []string
}

func (m *captureMailer) SendPasswordReset(_ context.Context, _ model.User, link string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = append(m.links, link)
	return nil
}

func (m *captureMailer) last() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.links) == 0 {
		return ""
	}
	return m.links[len(m.links)-1]
}

type testEnv struct {
	clock      *testClock
	users      *repository.MemoryUserStore
	complaints *repository.MemoryComplaintStore
	auditStore *repository.MemoryAuditStore
	mailer     *captureMailer
	auth       *AuthService
	complaint  *ComplaintService
	issuer     *token.Issuer
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	clk := &testClock{now: time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)}
	users := repository.NewMemoryUserStore()
	complaints := repository.NewMemoryComplaintStore()
	auditStore := repository.NewMemoryAuditStore()

	hasher, err := password.NewArgon2(password.Config{MemoryKB: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	require.NoError(t, err)

	issuer, err := token.NewIssuer(token.Config{
		Secret:     []byte("service-test-secret-0123456789abcdef"),
		Issuer:     "citizen-voice",
		AccessTTL:  15 * time.Minute,
		RefreshTTL: 7 * 24 * time.Hour,
	}, users)
	require.NoError(t, err)
	issuer.SetClock(clk.Now)

	registry := revocation.NewRegistry(revocation.NewMemoryStore())
	registry.SetClock(clk.Now)

	guard, err := lockout.NewGuard(lockout.DefaultConfig(), lockout.NewMemoryStore())
	require.NoError(t, err)
	guard.SetClock(clk.Now)

	audit := NewAuditService(auditStore)
	audit.SetClock(clk.Now)

	gate := authz.NewGate()
	mailer := &captureMailer{}

	auth := NewAuthService(AuthDeps{
		Users:         users,
		Complaints:    complaints,
		Hasher:        hasher,
		Tokens:        issuer,
		Revoked:       registry,
		Lockout:       guard,
		Gate:          gate,
		Audit:         audit,
		Mailer:        mailer,
		ResetTokenTTL: time.Hour,
		FrontendURL:   "http://localhost:3000/",
	})
	auth.SetClock(clk.Now)

	complaint := NewComplaintService(complaints, users, gate, audit)
	complaint.SetClock(clk.Now)

	return &testEnv{
		clock:      clk,
		users:      users,
		complaints: complaints,
		auditStore: auditStore,
		mailer:     mailer,
		auth:       auth,
		complaint:  complaint,
		issuer:     issuer,
	}
}

func (e *testEnv) register(t *testing.T, name, email, role, category string) model.AuthResult {
	t.Helper()

	res, err := e.auth.Register(context.Background(), model.RegisterRequest{
		Name:     name,
		Email:    email,
		Password: "Sup3r-secret!",
		Role:     role,
		Category: category,
	}, model.AuditActor{IP: "198.51.100.7"})
	require.NoError(t, err)
	return res
}

func (e *testEnv) claims(t *testing.T, res model.AuthResult) *model.AuthClaims {
	t.Helper()

	claims, err := e.auth.ValidateAccessToken(context.Background(), res.AccessToken)
	require.NoError(t, err)
	return claims
}

func (e *testEnv) admin(t *testing.T) *model.AuthClaims {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, e.auth.EnsureAdmin(ctx, "admin@example.com", "Adm1n-secret!", "Root"))
	res, err := e.auth.Login(ctx, "admin@example.com", "Adm1n-secret!", model.AuditActor{})
	require.NoError(t, err)
	return e.claims(t, res)
}

func (e *testEnv) auditActions(t *testing.T, action string) []model.AuditEntry {
	t.Helper()

	entries, _, err := e.auditStore.Query(context.Background(), model.AuditQuery{Action: action, Limit: 200})
	require.NoError(t, err)
	return entries
}
