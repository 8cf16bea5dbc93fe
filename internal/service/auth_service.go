package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"citizen-voice/internal/authz"
	"citizen-voice/internal/lockout"
	"citizen-voice/internal/model"
	"citizen-voice/internal/password"
	"citizen-voice/internal/revocation"
	"citizen-voice/internal/token"
	"citizen-voice/internal/util"
	"citizen-voice/pkg/apierror"
)

const resetTokenBytes = 32

type AuthDeps struct {
	Users         UserStore
	Complaints    ComplaintStore
	Hasher        *password.Argon2
	Tokens        *token.Issuer
	Revoked       *revocation.Registry
	Lockout       *lockout.Guard
	Gate          *authz.Gate
	Audit         *AuditService
	Mailer        Mailer
	ResetTokenTTL time.Duration
	FrontendURL   string
}

type AuthService struct {
	users         UserStore
	complaints    ComplaintStore
	hasher        *password.Argon2
	tokens        *token.Issuer
	revoked       *revocation.Registry
	lockout       *lockout.Guard
	gate          *authz.Gate
	audit         *AuditService
	mailer        Mailer
	resetTokenTTL time.Duration
	frontendURL   string
	now           func() time.Time
}

func NewAuthService(deps AuthDeps) *AuthService {
	mailer := deps.Mailer
	if mailer == nil {
		mailer = LogMailer{}
	}
	gate := deps.Gate
	if gate == nil {
		gate = authz.NewGate()
	}
	resetTTL := deps.ResetTokenTTL
	if resetTTL <= 0 {
		resetTTL = time.Hour
	}

	return &AuthService{
		users:         deps.Users,
		complaints:    deps.Complaints,
		hasher:        deps.Hasher,
		tokens:        deps.Tokens,
		revoked:       deps.Revoked,
		lockout:       deps.Lockout,
		gate:          gate,
		audit:         deps.Audit,
		mailer:        mailer,
		resetTokenTTL: resetTTL,
		frontendURL:   strings.TrimRight(deps.FrontendURL, "/"),
		now:           time.Now,
	}
}

func (s *AuthService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest, actor model.AuditActor) (model.AuthResult, error) {
	role := model.RoleCitizen
	if strings.TrimSpace(req.Role) != "" {
		parsed, ok := model.ParseRole(req.Role)
		if !ok {
			return model.AuthResult{}, validationError("invalid role", req.Role)
		}
		role = parsed
	}

	switch role {
	case model.RoleAdmin:
		return model.AuthResult{}, validationError("admin accounts cannot be self-registered", "")
	case model.RoleInstitution:
		role = model.RolePendingInstitution
	case model.RoleCitizen, model.RolePendingInstitution:
	}

	var category model.Category
	if role.RequiresCategory() {
		parsed, ok := model.ParseCategory(req.Category)
		if !ok {
			return model.AuthResult{}, validationError("institutions must select a valid category", req.Category)
		}
		category = parsed
	}

	name := util.SanitizeLine(req.Name, 100)
	if name == "" {
		return model.AuthResult{}, validationError("name is required", "")
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return model.AuthResult{}, fmt.Errorf("hash password: %w", err)
	}

	now := s.now().UTC()
	user, err := s.users.Create(ctx, model.User{
		Name:         name,
		Email:        model.NormalizeEmail(req.Email),
		PasswordHash: hash,
		Role:         role,
		Category:     category,
		Status:       model.DefaultStatus(role),
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if errors.Is(err, model.ErrDuplicateEmail) {
			actor.Email = model.NormalizeEmail(req.Email)
			s.audit.Log(ctx, AuditRegister, actor, model.AuditFailure, "", nil, "duplicate email")
		}
		return model.AuthResult{}, err
	}

	result, err := s.authResult(ctx, user)
	if err != nil {
		return model.AuthResult{}, err
	}

	s.audit.Log(ctx, AuditRegister, actorFor(user, actor.IP), model.AuditSuccess, "user:"+user.ID,
		map[string]any{"role": user.Role, "category": user.Category}, "")
	return result, nil
}

// Login verifies credentials under the lockout policy. A locked identifier is
// refused before the store is consulted, and unknown emails cost a full hash
// verification and count toward lockout like known ones.
func (s *AuthService) Login(ctx context.Context, email string, plaintext string, actor model.AuditActor) (model.AuthResult, error) {
	id := model.NormalizeEmail(email)
	actor.Email = id

	status, err := s.lockout.Check(ctx, id)
	if err != nil {
		return model.AuthResult{}, err
	}
	if status.Locked {
		s.audit.Log(ctx, AuditLoginBlocked, actor, model.AuditDenied, "", nil, "identifier locked")
		return model.AuthResult{}, &LockedError{RetryAfter: status.Remaining}
	}

	user, err := s.users.FindByEmail(ctx, id)
	switch {
	case errors.Is(err, model.ErrUserNotFound):
		s.hasher.DummyVerify(plaintext)
		return model.AuthResult{}, s.loginFailed(ctx, id, actor, "unknown email")
	case err != nil:
		return model.AuthResult{}, err
	}

	ok, err := s.hasher.Verify(user.PasswordHash, plaintext)
	switch {
	case errors.Is(err, password.ErrMalformedInput):
		ok = false
	case err != nil:
		slog.Error("stored password hash is unusable", "user_id", user.ID, "error", err)
		return model.AuthResult{}, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		actor.UserID = user.ID
		return model.AuthResult{}, s.loginFailed(ctx, id, actor, "wrong password")
	}

	if err := s.lockout.Clear(ctx, id); err != nil {
		slog.Warn("failed to clear lockout state", "error", err)
	}

	result, err := s.authResult(ctx, user)
	if err != nil {
		return model.AuthResult{}, err
	}

	s.audit.Log(ctx, AuditLogin, actorFor(user, actor.IP), model.AuditSuccess, "", nil, "")
	return result, nil
}

func (s *AuthService) loginFailed(ctx context.Context, id string, actor model.AuditActor, reason string) error {
	status, err := s.lockout.RecordFailure(ctx, id)
	if err != nil {
		return err
	}

	s.audit.Log(ctx, AuditLogin, actor, model.AuditFailure, "", map[string]any{"failures": status.Failures}, reason)
	if status.Locked {
		s.audit.Log(ctx, AuditLockout, actor, model.AuditDenied, "", map[string]any{"failures": status.Failures}, "")
		return &LockedError{RetryAfter: status.Remaining}
	}
	return model.ErrInvalidCredentials
}

func (s *AuthService) Refresh(ctx context.Context, presented string, actor model.AuditActor) (model.AuthResult, error) {
	pair, user, err := s.tokens.Refresh(ctx, presented)
	if err != nil {
		var reuse *model.RefreshReuseError
		if errors.As(err, &reuse) {
			actor.UserID = reuse.UserID
			s.audit.Log(ctx, AuditRefreshReuse, actor, model.AuditDenied, "user:"+reuse.UserID, nil, "rotated refresh token presented again")
			return model.AuthResult{}, model.ErrInvalidRefreshToken
		}
		return model.AuthResult{}, err
	}

	s.audit.Log(ctx, AuditRefresh, actorFor(user, actor.IP), model.AuditSuccess, "", nil, "")
	return model.AuthResult{TokenPair: pair, Role: user.Role, Category: user.Category, User: user.Public()}, nil
}

// Logout blacklists the presented access token for the rest of its lifetime and
// deactivates the given refresh token, or every refresh token of the user when
// none is given.
func (s *AuthService) Logout(ctx context.Context, claims *model.AuthClaims, rawAccess string, refresh string, actor model.AuditActor) error {
	if claims == nil {
		return model.ErrUnauthorized
	}

	if err := s.revoked.Blacklist(ctx, rawAccess, claims.Expiry); err != nil {
		return err
	}
	if err := s.tokens.Revoke(ctx, claims.UserID, refresh); err != nil {
		return err
	}

	scope := "session"
	if strings.TrimSpace(refresh) == "" {
		scope = "all"
	}
	s.audit.Log(ctx, AuditLogout, actor, model.AuditSuccess, "user:"+claims.UserID, map[string]any{"scope": scope}, "")
	return nil
}

// ValidateAccessToken is the bearer check run by the auth middleware.
func (s *AuthService) ValidateAccessToken(ctx context.Context, raw string) (*model.AuthClaims, error) {
	claims, err := s.tokens.ParseAccessToken(raw)
	if err != nil {
		return nil, err
	}

	revoked, err := s.revoked.IsBlacklisted(ctx, raw)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, model.ErrInvalidToken
	}
	return claims, nil
}

func (s *AuthService) Profile(ctx context.Context, claims *model.AuthClaims) (model.AuthUser, error) {
	if d := s.gate.Permits(claims, authz.ActionViewProfile); !d.Allowed {
		return model.AuthUser{}, apierror.Forbidden(d.Reason)
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		return model.AuthUser{}, err
	}
	return user.Public(), nil
}

func (s *AuthService) UpdateProfile(ctx context.Context, claims *model.AuthClaims, req model.UpdateProfileRequest, actor model.AuditActor) (model.AuthUser, error) {
	if d := s.gate.Permits(claims, authz.ActionUpdateProfile); !d.Allowed {
		return model.AuthUser{}, apierror.Forbidden(d.Reason)
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		return model.AuthUser{}, err
	}

	before := user.Public()
	if strings.TrimSpace(req.Name) != "" {
		name := util.SanitizeLine(req.Name, 100)
		if name == "" {
			return model.AuthUser{}, validationError("name is required", "")
		}
		user.Name = name
	}
	if strings.TrimSpace(req.Email) != "" {
		user.Email = model.NormalizeEmail(req.Email)
	}
	user.UpdatedAt = s.now().UTC()

	if err := s.users.Save(ctx, user); err != nil {
		return model.AuthUser{}, err
	}

	after := user.Public()
	s.audit.Log(ctx, AuditProfileUpdate, actor, model.AuditSuccess, "user:"+user.ID,
		map[string]any{"before": before, "after": after}, "")
	return after, nil
}

// Status reads the account fresh from the store, so an approval shows up before
// the caller's access token is renewed.
func (s *AuthService) Status(ctx context.Context, claims *model.AuthClaims) (model.AccountStatus, error) {
	if d := s.gate.Permits(claims, authz.ActionViewStatus); !d.Allowed {
		return model.AccountStatus{}, apierror.Forbidden(d.Reason)
	}

	user, err := s.users.FindByID(ctx, claims.UserID)
	if err != nil {
		return model.AccountStatus{}, err
	}
	return model.AccountStatus{Role: user.Role, Status: user.Status, Category: user.Category}, nil
}

// ForgotPassword never reveals whether the email is registered: every outcome,
// including store failures, looks the same to the caller.
func (s *AuthService) ForgotPassword(ctx context.Context, email string, actor model.AuditActor) {
	id := model.NormalizeEmail(email)
	actor.Email = id

	user, err := s.users.FindByEmail(ctx, id)
	if err != nil {
		if !errors.Is(err, model.ErrUserNotFound) {
			slog.Error("password reset lookup failed", "error", err)
		}
		s.audit.Log(ctx, AuditPasswordResetRequest, actor, model.AuditFailure, "", nil, "no matching account")
		return
	}

	buf := make([]byte, resetTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		slog.Error("generate reset token", "error", err)
		return
	}
	raw := hex.EncodeToString(buf)

	expiry := s.now().UTC().Add(s.resetTokenTTL)
	user.ResetTokenHash = token.Hash(raw)
	user.ResetTokenExpiry = &expiry
	user.UpdatedAt = s.now().UTC()
	if err := s.users.Save(ctx, user); err != nil {
		slog.Error("store reset token", "user_id", user.ID, "error", err)
		return
	}

	link := s.frontendURL + "/reset-password?token=" + url.QueryEscape(raw)
	if err := s.mailer.SendPasswordReset(ctx, user, link); err != nil {
		slog.Error("send password reset email", "user_id", user.ID, "error", err)
	}

	s.audit.Log(ctx, AuditPasswordResetRequest, actorFor(user, actor.IP), model.AuditSuccess, "user:"+user.ID, nil, "")
}

// ResetPassword consumes a reset token. Every refresh token of the account is
// deactivated and any lockout on its email is lifted.
func (s *AuthService) ResetPassword(ctx context.Context, raw string, newPassword string, actor model.AuditActor) error {
	user, err := s.users.FindByResetTokenHash(ctx, token.Hash(strings.TrimSpace(raw)))
	if errors.Is(err, model.ErrUserNotFound) {
		s.audit.Log(ctx, AuditPasswordReset, actor, model.AuditFailure, "", nil, "unknown reset token")
		return model.ErrInvalidResetToken
	}
	if err != nil {
		return err
	}

	now := s.now().UTC()
	if user.ResetTokenExpiry == nil || !now.Before(*user.ResetTokenExpiry) {
		s.audit.Log(ctx, AuditPasswordReset, actorFor(user, actor.IP), model.AuditFailure, "user:"+user.ID, nil, "expired reset token")
		return model.ErrInvalidResetToken
	}

	hash, err := s.hasher.Hash(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	user.PasswordHash = hash
	user.ResetTokenHash = ""
	user.ResetTokenExpiry = nil
	user.UpdatedAt = now
	if err := s.users.Save(ctx, user); err != nil {
		return err
	}

	if err := s.tokens.Revoke(ctx, user.ID, ""); err != nil {
		return err
	}
	if err := s.lockout.Clear(ctx, model.NormalizeEmail(user.Email)); err != nil {
		slog.Warn("failed to clear lockout after reset", "user_id", user.ID, "error", err)
	}

	s.audit.Log(ctx, AuditPasswordReset, actorFor(user, actor.IP), model.AuditSuccess, "user:"+user.ID, nil, "")
	return nil
}

// EnsureAdmin creates the bootstrap admin account when it does not exist yet.
func (s *AuthService) EnsureAdmin(ctx context.Context, email string, plaintext string, name string) error {
	email = model.NormalizeEmail(email)
	if email == "" || plaintext == "" {
		return nil
	}

	existing, err := s.users.FindByEmail(ctx, email)
	if err == nil {
		if existing.Role != model.RoleAdmin {
			slog.Warn("bootstrap admin email belongs to a non-admin account", "user_id", existing.ID, "role", existing.Role)
		}
		return nil
	}
	if !errors.Is(err, model.ErrUserNotFound) {
		return fmt.Errorf("look up bootstrap admin: %w", err)
	}

	hash, err := s.hasher.Hash(plaintext)
	if err != nil {
		return fmt.Errorf("hash bootstrap admin password: %w", err)
	}

	if strings.TrimSpace(name) == "" {
		name = "Administrator"
	}

	now := s.now().UTC()
	admin, err := s.users.Create(ctx, model.User{
		Name:         util.SanitizeLine(name, 100),
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleAdmin,
		Status:       model.StatusApproved,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if errors.Is(err, model.ErrDuplicateEmail) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("create bootstrap admin: %w", err)
	}

	slog.Info("bootstrap admin created", "user_id", admin.ID, "email", admin.Email)
	return nil
}

func (s *AuthService) authResult(ctx context.Context, user model.User) (model.AuthResult, error) {
	pair, err := s.tokens.IssueTokenPair(ctx, user)
	if err != nil {
		return model.AuthResult{}, err
	}
	return model.AuthResult{TokenPair: pair, Role: user.Role, Category: user.Category, User: user.Public()}, nil
}

func actorFor(user model.User, ip string) model.AuditActor {
	return model.AuditActor{UserID: user.ID, Email: user.Email, Role: user.Role, IP: ip}
}
