// Package token mints signed access tokens and opaque, single-use refresh tokens.
package token

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"citizen-voice/internal/model"
)

const (
	TypeAccess        = "access"
	refreshTokenBytes = 64
	minSecretBytes    = 32
)

// Store persists refresh-token records. ConsumeRefreshToken must deactivate the
// presented record and append the replacement as one atomic step so that a token
// can be exchanged at most once.
type Store interface {
	AppendRefreshToken(ctx context.Context, userID string, record model.RefreshTokenRecord) error
	ConsumeRefreshToken(ctx context.Context, tokenHash string, now time.Time, replacement model.RefreshTokenRecord) (model.User, error)
	DeactivateRefreshTokens(ctx context.Context, userID string, tokenHash string) error
	PruneExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

type Config struct {
	Secret              []byte
	Issuer              string
	AccessTTL           time.Duration
	RefreshTTL          time.Duration
	RevokeFamilyOnReuse bool
}

type Issuer struct {
	cfg   Config
	store Store
	now   func() time.Time
}

type accessClaims struct {
	Role     model.Role     `json:"role"`
	Category model.Category `json:"category,omitempty"`
	Type     string         `json:"typ"`
	jwt.RegisteredClaims
}

func NewIssuer(cfg Config, store Store) (*Issuer, error) {
	if len(cfg.Secret) < minSecretBytes {
		return nil, fmt.Errorf("signing secret must be at least %d bytes", minSecretBytes)
	}
	if cfg.AccessTTL <= 0 || cfg.RefreshTTL <= 0 {
		return nil, errors.New("token TTLs must be positive")
	}
	if store == nil {
		return nil, errors.New("refresh token store is required")
	}

	return &Issuer{cfg: cfg, store: store, now: time.Now}, nil
}

// SetClock replaces the time source; tests use it to step past TTLs.
func (i *Issuer) SetClock(now func() time.Time) {
	i.now = now
}

func (i *Issuer) AccessTTL() time.Duration {
	return i.cfg.AccessTTL
}

func (i *Issuer) IssueAccessToken(user model.User) (string, time.Time, error) {
	now := i.now().UTC()
	expiresAt := now.Add(i.cfg.AccessTTL)

	claims := accessClaims{
		Role:     user.Role,
		Category: user.Category,
		Type:     TypeAccess,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    i.cfg.Issuer,
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.cfg.Secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign access token: %w", err)
	}

	return signed, expiresAt, nil
}

// IssueRefreshToken returns a random opaque value. It carries no claims and is only
// meaningful through the record stored alongside its hash.
func (i *Issuer) IssueRefreshToken() (string, error) {
	buf := make([]byte, refreshTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate refresh token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func (i *Issuer) IssueTokenPair(ctx context.Context, user model.User) (model.TokenPair, error) {
	raw, record, err := i.newRefreshRecord()
	if err != nil {
		return model.TokenPair{}, err
	}

	if err := i.store.AppendRefreshToken(ctx, user.ID, record); err != nil {
		return model.TokenPair{}, fmt.Errorf("store refresh token: %w", err)
	}

	return i.pair(user, raw)
}

// Refresh exchanges a refresh token for a new pair. The presented token is spent
// whether or not the caller ever receives the new pair.
func (i *Issuer) Refresh(ctx context.Context, presented string) (model.TokenPair, model.User, error) {
	presented = strings.TrimSpace(presented)
	if presented == "" {
		return model.TokenPair{}, model.User{}, model.ErrInvalidRefreshToken
	}

	raw, record, err := i.newRefreshRecord()
	if err != nil {
		return model.TokenPair{}, model.User{}, err
	}

	user, err := i.store.ConsumeRefreshToken(ctx, Hash(presented), i.now().UTC(), record)
	if err != nil {
		var reuse *model.RefreshReuseError
		if errors.As(err, &reuse) && i.cfg.RevokeFamilyOnReuse {
			if revokeErr := i.store.DeactivateRefreshTokens(ctx, reuse.UserID, ""); revokeErr != nil {
				return model.TokenPair{}, model.User{}, fmt.Errorf("revoke token family: %w", revokeErr)
			}
		}
		return model.TokenPair{}, model.User{}, err
	}

	pair, err := i.pair(user, raw)
	if err != nil {
		return model.TokenPair{}, model.User{}, err
	}
	return pair, user, nil
}

// ParseAccessToken validates signature, algorithm, expiry and token type.
func (i *Issuer) ParseAccessToken(tokenString string) (*model.AuthClaims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(i.now),
	}
	if i.cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(i.cfg.Issuer))
	}

	var claims accessClaims
	parsed, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (any, error) {
		return i.cfg.Secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, model.ErrInvalidToken
	}

	if claims.Type != TypeAccess || claims.Subject == "" {
		return nil, model.ErrInvalidToken
	}
	if _, ok := model.ParseRole(string(claims.Role)); !ok {
		return nil, model.ErrInvalidToken
	}

	out := &model.AuthClaims{
		UserID:   claims.Subject,
		Role:     claims.Role,
		Category: claims.Category,
		Type:     claims.Type,
		TokenID:  claims.ID,
		Expiry:   claims.ExpiresAt.Time,
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = claims.IssuedAt.Time
	}
	return out, nil
}

// Revoke deactivates one refresh token of the user, or all of them when raw is empty.
func (i *Issuer) Revoke(ctx context.Context, userID string, raw string) error {
	hash := ""
	if strings.TrimSpace(raw) != "" {
		hash = Hash(strings.TrimSpace(raw))
	}
	return i.store.DeactivateRefreshTokens(ctx, userID, hash)
}

func (i *Issuer) Prune(ctx context.Context) (int64, error) {
	return i.store.PruneExpiredRefreshTokens(ctx, i.now().UTC())
}

func (i *Issuer) newRefreshRecord() (string, model.RefreshTokenRecord, error) {
	raw, err := i.IssueRefreshToken()
	if err != nil {
		return "", model.RefreshTokenRecord{}, err
	}

	now := i.now().UTC()
	return raw, model.RefreshTokenRecord{
		TokenHash: Hash(raw),
		CreatedAt: now,
		ExpiresAt: now.Add(i.cfg.RefreshTTL),
		Active:    true,
	}, nil
}

func (i *Issuer) pair(user model.User, refresh string) (model.TokenPair, error) {
	access, _, err := i.IssueAccessToken(user)
	if err != nil {
		return model.TokenPair{}, err
	}

	return model.TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		AccessTTL:    int64(i.cfg.AccessTTL.Seconds()),
		RefreshTTL:   int64(i.cfg.RefreshTTL.Seconds()),
	}, nil
}

// Hash is the lookup key under which opaque tokens are persisted.
func Hash(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}
