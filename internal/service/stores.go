package service

import (
	"context"

	"citizen-voice/internal/model"
	"citizen-voice/internal/token"
)

// UserStore is the credential store: accounts plus their refresh-token records.
type UserStore interface {
	token.Store

	FindByID(ctx context.Context, id string) (model.User, error)
	FindByEmail(ctx context.Context, email string) (model.User, error)
	FindByResetTokenHash(ctx context.Context, hash string) (model.User, error)
	Create(ctx context.Context, u model.User) (model.User, error)
	Save(ctx context.Context, u model.User) error
	ListInstitutions(ctx context.Context, status model.Status) ([]model.User, error)
	FindApprovedInstitution(ctx context.Context, category model.Category) (model.User, error)
}

type ComplaintStore interface {
	Create(ctx context.Context, c model.Complaint) (model.Complaint, error)
	FindByID(ctx context.Context, id string) (model.Complaint, error)
	List(ctx context.Context, filter model.ComplaintFilter) ([]model.Complaint, error)
	Save(ctx context.Context, c model.Complaint) error
	AssignUnassigned(ctx context.Context, category model.Category, agencyID string) (int64, error)
}

type AuditStore interface {
	Log(ctx context.Context, entry model.AuditEntry) error
	Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error)
}
