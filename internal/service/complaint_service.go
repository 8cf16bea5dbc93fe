package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"citizen-voice/internal/authz"
	"citizen-voice/internal/model"
	"citizen-voice/internal/util"
	"citizen-voice/pkg/apierror"
)

type ComplaintService struct {
	complaints ComplaintStore
	users      UserStore
	gate       *authz.Gate
	audit      *AuditService
	now        func() time.Time
}

func NewComplaintService(complaints ComplaintStore, users UserStore, gate *authz.Gate, audit *AuditService) *ComplaintService {
	if gate == nil {
		gate = authz.NewGate()
	}
	return &ComplaintService{complaints: complaints, users: users, gate: gate, audit: audit, now: time.Now}
}

func (s *ComplaintService) SetClock(now func() time.Time) {
	s.now = now
}

func (s *ComplaintService) forbidden(ctx context.Context, claims *model.AuthClaims, action authz.Action, resource string, d authz.Decision) error {
	actor := model.AuditActor{}
	if claims != nil {
		actor = model.AuditActor{UserID: claims.UserID, Role: claims.Role}
	}
	s.audit.Log(ctx, AuditAccessDenied, actor, model.AuditDenied, resource, map[string]any{"action": action}, d.Reason)
	return apierror.Forbidden(d.Reason)
}

// Create files a complaint for the calling citizen and routes it to the approved
// institution of its category, if one exists.
func (s *ComplaintService) Create(ctx context.Context, claims *model.AuthClaims, req model.CreateComplaintRequest, actor model.AuditActor) (model.Complaint, error) {
	if d := s.gate.Permits(claims, authz.ActionCreate); !d.Allowed {
		return model.Complaint{}, s.forbidden(ctx, claims, authz.ActionCreate, "complaint", d)
	}

	category, ok := model.ParseCategory(req.Category)
	if !ok {
		return model.Complaint{}, validationError("invalid category", req.Category)
	}

	title := util.SanitizeLine(req.Title, 200)
	description := util.SanitizeText(req.Description, 5000)
	if title == "" || description == "" {
		return model.Complaint{}, validationError("title and description are required", "")
	}

	agency := ""
	institution, err := s.users.FindApprovedInstitution(ctx, category)
	switch {
	case err == nil:
		agency = institution.ID
	case !errors.Is(err, model.ErrUserNotFound):
		return model.Complaint{}, err
	}

	now := s.now().UTC()
	complaint, err := s.complaints.Create(ctx, model.Complaint{
		Title:          title,
		Description:    description,
		Category:       category,
		Location:       util.SanitizeLine(req.Location, 200),
		CitizenID:      claims.UserID,
		AssignedAgency: agency,
		Status:         model.ComplaintPending,
		Responses:      []model.ComplaintResponse{},
		History: []model.ComplaintHistory{{
			Action:    "Complaint created",
			UpdatedBy: claims.UserID,
			Timestamp: now,
		}},
		CreatedAt: now,
		UpdatedAt: now,
	})
	if err != nil {
		return model.Complaint{}, err
	}

	s.audit.Log(ctx, AuditComplaintCreate, actor, model.AuditSuccess, "complaint:"+complaint.ID,
		map[string]any{"category": category, "assigned": agency != ""}, "")
	return complaint, nil
}

func (s *ComplaintService) List(ctx context.Context, claims *model.AuthClaims, status string, category string) ([]model.Complaint, error) {
	filter, d := s.gate.ListFilter(claims)
	if !d.Allowed {
		return nil, s.forbidden(ctx, claims, authz.ActionList, "complaints", d)
	}

	if strings.TrimSpace(status) != "" {
		parsed, ok := model.ParseComplaintStatus(status)
		if !ok {
			return nil, validationError("invalid status filter", status)
		}
		filter.Status = parsed
	}
	if strings.TrimSpace(category) != "" {
		parsed, ok := model.ParseCategory(category)
		if !ok {
			return nil, validationError("invalid category filter", category)
		}
		filter.Category = parsed
	}

	return s.complaints.List(ctx, filter)
}

// load runs the role check before touching the store, then the ownership check.
func (s *ComplaintService) load(ctx context.Context, claims *model.AuthClaims, action authz.Action, id string) (model.Complaint, error) {
	if d := s.gate.Permits(claims, action); !d.Allowed {
		return model.Complaint{}, s.forbidden(ctx, claims, action, "complaint:"+id, d)
	}

	complaint, err := s.complaints.FindByID(ctx, id)
	if err != nil {
		return model.Complaint{}, err
	}

	if d := s.gate.Authorize(claims, action, &complaint); !d.Allowed {
		return model.Complaint{}, s.forbidden(ctx, claims, action, "complaint:"+id, d)
	}
	return complaint, nil
}

func (s *ComplaintService) Get(ctx context.Context, claims *model.AuthClaims, id string) (model.Complaint, error) {
	return s.load(ctx, claims, authz.ActionView, id)
}

// Update changes status, adds a note or, for admins, reassigns the complaint.
// Each change is appended to the complaint history.
func (s *ComplaintService) Update(ctx context.Context, claims *model.AuthClaims, id string, req model.UpdateComplaintRequest, actor model.AuditActor) (model.Complaint, error) {
	if strings.TrimSpace(req.Status) == "" && strings.TrimSpace(req.Note) == "" && strings.TrimSpace(req.AssignedAgency) == "" {
		return model.Complaint{}, validationError("nothing to update", "")
	}

	complaint, err := s.load(ctx, claims, authz.ActionUpdateStatus, id)
	if err != nil {
		return model.Complaint{}, err
	}

	now := s.now().UTC()
	note := util.SanitizeText(req.Note, 1000)
	before := map[string]any{"status": complaint.Status, "assignedAgency": complaint.AssignedAgency}
	changed := false

	if agency := strings.TrimSpace(req.AssignedAgency); agency != "" && agency != complaint.AssignedAgency {
		if claims.Role != model.RoleAdmin {
			return model.Complaint{}, s.forbidden(ctx, claims, authz.ActionUpdate, "complaint:"+id,
				authz.Decision{Reason: "only admins can reassign complaints"})
		}
		institution, err := s.users.FindByID(ctx, agency)
		if err != nil || institution.Role != model.RoleInstitution || institution.Status != model.StatusApproved {
			return model.Complaint{}, validationError("assigned agency must be an approved institution", agency)
		}
		complaint.AssignedAgency = institution.ID
		complaint.History = append(complaint.History, model.ComplaintHistory{
			Action:    fmt.Sprintf("Assigned to %s", institution.Name),
			Notes:     note,
			UpdatedBy: claims.UserID,
			Timestamp: now,
		})
		changed = true
	}

	if raw := strings.TrimSpace(req.Status); raw != "" {
		status, ok := model.ParseComplaintStatus(raw)
		if !ok {
			return model.Complaint{}, validationError("invalid status", raw)
		}
		if status != complaint.Status {
			complaint.Status = status
			complaint.History = append(complaint.History, model.ComplaintHistory{
				Action:    fmt.Sprintf("Status changed to %s", status),
				Notes:     note,
				UpdatedBy: claims.UserID,
				Timestamp: now,
			})
			changed = true
		}
	}

	if !changed {
		if note == "" {
			return complaint, nil
		}
		complaint.History = append(complaint.History, model.ComplaintHistory{
			Action:    "Note added",
			Notes:     note,
			UpdatedBy: claims.UserID,
			Timestamp: now,
		})
	}

	complaint.UpdatedAt = now
	if err := s.complaints.Save(ctx, complaint); err != nil {
		return model.Complaint{}, err
	}

	s.audit.Log(ctx, AuditComplaintUpdate, actor, model.AuditSuccess, "complaint:"+complaint.ID,
		map[string]any{"before": before, "after": map[string]any{"status": complaint.Status, "assignedAgency": complaint.AssignedAgency}}, "")
	return complaint, nil
}

func (s *ComplaintService) Respond(ctx context.Context, claims *model.AuthClaims, id string, req model.RespondComplaintRequest, actor model.AuditActor) (model.Complaint, error) {
	complaint, err := s.load(ctx, claims, authz.ActionRespond, id)
	if err != nil {
		return model.Complaint{}, err
	}

	text := util.SanitizeText(req.Text, 2000)
	if text == "" {
		return model.Complaint{}, validationError("response text is required", "")
	}

	now := s.now().UTC()
	complaint.Responses = append(complaint.Responses, model.ComplaintResponse{
		Text: text,
		From: string(claims.Role),
		Date: now,
	})
	complaint.UpdatedAt = now

	if err := s.complaints.Save(ctx, complaint); err != nil {
		return model.Complaint{}, err
	}

	s.audit.Log(ctx, AuditComplaintRespond, actor, model.AuditSuccess, "complaint:"+complaint.ID, nil, "")
	return complaint, nil
}
