package service

import (
	"context"
	"errors"
	"log/slog"

	"citizen-voice/internal/authz"
	"citizen-voice/internal/model"
	"citizen-voice/pkg/apierror"
)

func (s *AuthService) ListPendingInstitutions(ctx context.Context, claims *model.AuthClaims) ([]model.AuthUser, error) {
	if d := s.gate.Permits(claims, authz.ActionManageInstitutions); !d.Allowed {
		return nil, apierror.Forbidden(d.Reason)
	}

	users, err := s.users.ListInstitutions(ctx, model.StatusPending)
	if err != nil {
		return nil, err
	}

	out := make([]model.AuthUser, 0, len(users))
	for _, u := range users {
		out = append(out, u.Public())
	}
	return out, nil
}

// ApproveInstitution moves a pending or revoked institution to approved and hands
// it the unassigned complaints of its category.
func (s *AuthService) ApproveInstitution(ctx context.Context, claims *model.AuthClaims, userID string, actor model.AuditActor) (model.AuthUser, error) {
	user, err := s.transition(ctx, claims, userID, model.EventApprove, actor, AuditInstitutionApprove)
	if err != nil {
		return model.AuthUser{}, err
	}

	if s.complaints != nil {
		assigned, err := s.complaints.AssignUnassigned(ctx, user.Category, user.ID)
		if err != nil {
			slog.Error("assign backlog to approved institution", "user_id", user.ID, "error", err)
		} else if assigned > 0 {
			slog.Info("assigned complaint backlog", "user_id", user.ID, "category", user.Category, "count", assigned)
		}
	}

	return user.Public(), nil
}

// RevokeInstitution withdraws approval and deactivates every refresh token of
// the account. Access tokens already issued stay valid until they expire.
func (s *AuthService) RevokeInstitution(ctx context.Context, claims *model.AuthClaims, userID string, actor model.AuditActor) (model.AuthUser, error) {
	user, err := s.transition(ctx, claims, userID, model.EventRevoke, actor, AuditInstitutionRevoke)
	if err != nil {
		return model.AuthUser{}, err
	}

	if err := s.tokens.Revoke(ctx, user.ID, ""); err != nil {
		return model.AuthUser{}, err
	}
	return user.Public(), nil
}

func (s *AuthService) transition(ctx context.Context, claims *model.AuthClaims, userID string, event model.LifecycleEvent, actor model.AuditActor, action string) (model.User, error) {
	if d := s.gate.Permits(claims, authz.ActionManageInstitutions); !d.Allowed {
		s.audit.Log(ctx, action, actor, model.AuditDenied, "user:"+userID, nil, d.Reason)
		return model.User{}, apierror.Forbidden(d.Reason)
	}

	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return model.User{}, err
	}

	before := model.AccountStatus{Role: user.Role, Status: user.Status, Category: user.Category}
	if err := user.Transition(claims.Role, event, s.now().UTC()); err != nil {
		status := model.AuditFailure
		if errors.Is(err, model.ErrForbidden) {
			status = model.AuditDenied
		}
		s.audit.Log(ctx, action, actor, status, "user:"+userID, before, err.Error())
		return model.User{}, err
	}

	if err := s.users.Save(ctx, user); err != nil {
		return model.User{}, err
	}

	after := model.AccountStatus{Role: user.Role, Status: user.Status, Category: user.Category}
	s.audit.Log(ctx, action, actor, model.AuditSuccess, "user:"+userID,
		map[string]any{"before": before, "after": after}, "")
	return user, nil
}
