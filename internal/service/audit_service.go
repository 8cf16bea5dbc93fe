package service

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"citizen-voice/internal/model"
)

const (
	AuditRegister             = "auth.register"
	AuditLogin                = "auth.login"
	AuditLoginBlocked         = "auth.login_blocked"
	AuditLockout              = "auth.lockout"
	AuditRefresh              = "auth.refresh"
	AuditRefreshReuse         = "auth.refresh_reuse"
	AuditLogout               = "auth.logout"
	AuditPasswordResetRequest = "auth.password_reset_requested"
	AuditPasswordReset        = "auth.password_reset"
	AuditProfileUpdate        = "auth.profile_update"
	AuditInvalidToken         = "auth.invalid_token"
	AuditCSRFMismatch         = "csrf.mismatch"
	AuditAccessDenied         = "authz.denied"
	AuditInstitutionApprove   = "institution.approve"
	AuditInstitutionRevoke    = "institution.revoke"
	AuditComplaintCreate      = "complaint.create"
	AuditComplaintUpdate      = "complaint.update"
	AuditComplaintRespond     = "complaint.respond"
)

// AuditService records security and workflow events. Recording never fails the
// calling operation: store errors are logged and swallowed.
type AuditService struct {
	store AuditStore
	now   func() time.Time
}

func NewAuditService(store AuditStore) *AuditService {
	return &AuditService{store: store, now: time.Now}
}

func (s *AuditService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *AuditService) Log(ctx context.Context, action string, actor model.AuditActor, status string, resource string, details any, errText string) {
	if s == nil {
		return
	}

	entry := model.AuditEntry{
		Action:     action,
		OccurredAt: s.now().UTC().Format(time.RFC3339Nano),
		Actor:      actor,
		Status:     status,
		Resource:   resource,
		Details:    details,
		Error:      errText,
	}

	attrs := []any{
		"action", action,
		"status", status,
		"actor_id", actor.UserID,
		"actor_role", actor.Role,
		"ip", actor.IP,
	}
	if resource != "" {
		attrs = append(attrs, "resource", resource)
	}
	if errText != "" {
		attrs = append(attrs, "error", errText)
	}
	if status == model.AuditSuccess {
		slog.Info("audit", attrs...)
	} else {
		slog.Warn("security event", attrs...)
	}

	if s.store == nil {
		return
	}
	if err := s.store.Log(context.WithoutCancel(ctx), entry); err != nil {
		slog.Error("failed to persist audit entry", "action", action, "error", err)
	}
}

func (s *AuditService) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	if _, err := parseOptionalAuditTime(query.From); err != nil {
		return nil, model.Meta{}, validationError("invalid 'from' datetime format", query.From)
	}
	if _, err := parseOptionalAuditTime(query.To); err != nil {
		return nil, model.Meta{}, validationError("invalid 'to' datetime format", query.To)
	}

	return s.store.Query(ctx, query)
}

func parseOptionalAuditTime(raw string) (time.Time, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, trimmed)
}
