package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"citizen-voice/internal/model"
	"citizen-voice/internal/service"
	"citizen-voice/pkg/apierror"
)

// UserHandler serves the admin institution workflow.
type UserHandler struct {
	service *service.AuthService
}

func NewUserHandler(service *service.AuthService) *UserHandler {
	return &UserHandler{service: service}
}

func (h *UserHandler) PendingInstitutions(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	users, err := h.service.ListPendingInstitutions(r.Context(), claims)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.PendingInstitutionList{Users: users}, nil)
}

func (h *UserHandler) Approve(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.ApproveInstitution)
}

func (h *UserHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.service.RevokeInstitution)
}

type institutionTransition func(ctx context.Context, claims *model.AuthClaims, userID string, actor model.AuditActor) (model.AuthUser, error)

func (h *UserHandler) transition(w http.ResponseWriter, r *http.Request, apply institutionTransition) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	userID := chi.URLParam(r, "id")
	if userID == "" {
		writeError(w, apierror.Validation("user id is required", "id"))
		return
	}

	user, err := apply(r.Context(), claims, userID, actorFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, user, nil)
}
