package token

import (
	"context"
	"encoding/hex"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"citizen-voice/internal/model"
	"citizen-voice/internal/repository"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestIssuer(t *testing.T, revokeFamily bool) (*Issuer, *repository.MemoryUserStore, *clock, model.User) {
	t.Helper()

	store := repository.NewMemoryUserStore()
	clk := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}

	issuer, err := NewIssuer(Config{
		Secret:              testSecret,
		Issuer:              "citizen-voice",
		AccessTTL:           15 * time.Minute,
		RefreshTTL:          7 * 24 * time.Hour,
		RevokeFamilyOnReuse: revokeFamily,
	}, store)
	require.NoError(t, err)
	issuer.SetClock(clk.Now)

	user, err := store.Create(context.Background(), model.User{
		Name:      "Institution",
		Email:     "roads@example.com",
		Role:      model.RoleInstitution,
		Category:  model.CategoryRoad,
		Status:    model.StatusApproved,
		CreatedAt: clk.now,
	})
	require.NoError(t, err)

	return issuer, store, clk, user
}

func TestNewIssuerRejectsShortSecret(t *testing.T) {
	_, err := NewIssuer(Config{Secret: []byte("short"), AccessTTL: time.Minute, RefreshTTL: time.Hour}, repository.NewMemoryUserStore())
	assert.Error(t, err)
}

func TestAccessTokenValidUntilExpiry(t *testing.T) {
	issuer, _, clk, user := newTestIssuer(t, false)

	signed, expiresAt, err := issuer.IssueAccessToken(user)
	require.NoError(t, err)
	assert.Equal(t, clk.now.Add(15*time.Minute), expiresAt)

	claims, err := issuer.ParseAccessToken(signed)
	require.NoError(t, err)
	assert.Equal(t, user.ID, claims.UserID)
	assert.Equal(t, model.RoleInstitution, claims.Role)
	assert.Equal(t, model.CategoryRoad, claims.Category)
	assert.Equal(t, TypeAccess, claims.Type)
	assert.NotEmpty(t, claims.TokenID)

	clk.Advance(14 * time.Minute)
	_, err = issuer.ParseAccessToken(signed)
	require.NoError(t, err)

	clk.Advance(2 * time.Minute)
	_, err = issuer.ParseAccessToken(signed)
	assert.ErrorIs(t, err, model.ErrInvalidToken)
}

func TestParseAccessTokenRejectsForgeries(t *testing.T) {
	issuer, _, clk, user := newTestIssuer(t, false)

	sign := func(method jwt.SigningMethod, key any, claims jwt.Claims) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	registered := jwt.RegisteredClaims{
		Subject:   user.ID,
		Issuer:    "citizen-voice",
		IssuedAt:  jwt.NewNumericDate(clk.now),
		ExpiresAt: jwt.NewNumericDate(clk.now.Add(time.Hour)),
	}

	tests := []struct {
		name  string
		token string
	}{
		{"wrong secret", sign(jwt.SigningMethodHS256, []byte("another-secret-another-secret-xx"),
			accessClaims{Role: model.RoleAdmin, Type: TypeAccess, RegisteredClaims: registered})},
		{"other hmac algorithm", sign(jwt.SigningMethodHS512, testSecret,
			accessClaims{Role: model.RoleAdmin, Type: TypeAccess, RegisteredClaims: registered})},
		{"none algorithm", sign(jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType,
			accessClaims{Role: model.RoleAdmin, Type: TypeAccess, RegisteredClaims: registered})},
		{"wrong type", sign(jwt.SigningMethodHS256, testSecret,
			accessClaims{Role: model.RoleCitizen, Type: "refresh", RegisteredClaims: registered})},
		{"unknown role", sign(jwt.SigningMethodHS256, testSecret,
			accessClaims{Role: "superuser", Type: TypeAccess, RegisteredClaims: registered})},
		{"no expiry", sign(jwt.SigningMethodHS256, testSecret,
			accessClaims{Role: model.RoleCitizen, Type: TypeAccess, RegisteredClaims: jwt.RegisteredClaims{Subject: user.ID, Issuer: "citizen-voice"}})},
		{"garbage", "not.a.jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := issuer.ParseAccessToken(tt.token)
			assert.ErrorIs(t, err, model.ErrInvalidToken)
		})
	}
}

func TestRefreshTokenIsOpaque(t *testing.T) {
	issuer, _, _, _ := newTestIssuer(t, false)

	raw, err := issuer.IssueRefreshToken()
	require.NoError(t, err)
	assert.Len(t, raw, 128)
	_, err = hex.DecodeString(raw)
	require.NoError(t, err)
	assert.Len(t, Hash(raw), 64)

	other, err := issuer.IssueRefreshToken()
	require.NoError(t, err)
	assert.NotEqual(t, raw, other)
}

func TestRefreshIsSingleUse(t *testing.T) {
	ctx := context.Background()
	issuer, store, clk, user := newTestIssuer(t, false)

	pair, err := issuer.IssueTokenPair(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, "Bearer", pair.TokenType)
	assert.Equal(t, int64(900), pair.AccessTTL)
	assert.Equal(t, int64(604800), pair.RefreshTTL)

	rotated, owner, err := issuer.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, owner.ID)
	assert.NotEqual(t, pair.RefreshToken, rotated.RefreshToken)

	_, _, err = issuer.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, model.ErrInvalidRefreshToken)
	assert.ErrorIs(t, err, model.ErrRefreshTokenReused)

	// Family revocation is off, so the rotated token survives the replay.
	assert.Equal(t, 1, store.ActiveRefreshTokens(user.ID, clk.now))
	_, _, err = issuer.Refresh(ctx, rotated.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshReuseRevokesFamily(t *testing.T) {
	ctx := context.Background()
	issuer, store, clk, user := newTestIssuer(t, true)

	pair, err := issuer.IssueTokenPair(ctx, user)
	require.NoError(t, err)
	rotated, _, err := issuer.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)

	_, _, err = issuer.Refresh(ctx, pair.RefreshToken)
	var reuse *model.RefreshReuseError
	require.True(t, errors.As(err, &reuse))
	assert.Equal(t, user.ID, reuse.UserID)
	assert.Equal(t, 0, store.ActiveRefreshTokens(user.ID, clk.now))

	_, _, err = issuer.Refresh(ctx, rotated.RefreshToken)
	assert.ErrorIs(t, err, model.ErrInvalidRefreshToken)
}

func TestRefreshExpires(t *testing.T) {
	ctx := context.Background()
	issuer, _, clk, user := newTestIssuer(t, false)

	pair, err := issuer.IssueTokenPair(ctx, user)
	require.NoError(t, err)

	clk.Advance(7*24*time.Hour + time.Second)
	_, _, err = issuer.Refresh(ctx, pair.RefreshToken)
	assert.ErrorIs(t, err, model.ErrInvalidRefreshToken)
	assert.NotErrorIs(t, err, model.ErrRefreshTokenReused)

	pruned, err := issuer.Prune(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	_, _, err = issuer.Refresh(ctx, "")
	assert.ErrorIs(t, err, model.ErrInvalidRefreshToken)
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	issuer, store, clk, user := newTestIssuer(t, false)

	first, err := issuer.IssueTokenPair(ctx, user)
	require.NoError(t, err)
	_, err = issuer.IssueTokenPair(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 2, store.ActiveRefreshTokens(user.ID, clk.now))

	require.NoError(t, issuer.Revoke(ctx, user.ID, first.RefreshToken))
	assert.Equal(t, 1, store.ActiveRefreshTokens(user.ID, clk.now))

	require.NoError(t, issuer.Revoke(ctx, user.ID, ""))
	assert.Equal(t, 0, store.ActiveRefreshTokens(user.ID, clk.now))
}
