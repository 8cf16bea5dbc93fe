package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"citizen-voice/internal/model"
	"citizen-voice/internal/service"
)

type ComplaintHandler struct {
	service *service.ComplaintService
}

func NewComplaintHandler(service *service.ComplaintService) *ComplaintHandler {
	return &ComplaintHandler{service: service}
}

func (h *ComplaintHandler) Create(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	var payload model.CreateComplaintRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	complaint, err := h.service.Create(r.Context(), claims, payload, actorFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, complaint, nil)
}

// List returns only the complaints the caller may see; status and category
// narrow the result further.
func (h *ComplaintHandler) List(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	query := r.URL.Query()
	items, err := h.service.List(r.Context(), claims,
		strings.TrimSpace(query.Get("status")),
		strings.TrimSpace(query.Get("category")))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, model.ComplaintList{Items: items}, nil)
}

func (h *ComplaintHandler) Get(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	complaint, err := h.service.Get(r.Context(), claims, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, complaint, nil)
}

func (h *ComplaintHandler) Update(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	var payload model.UpdateComplaintRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	complaint, err := h.service.Update(r.Context(), claims, chi.URLParam(r, "id"), payload, actorFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, complaint, nil)
}

func (h *ComplaintHandler) Respond(w http.ResponseWriter, r *http.Request) {
	claims, ok := requireClaims(w, r)
	if !ok {
		return
	}

	var payload model.RespondComplaintRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	complaint, err := h.service.Respond(r.Context(), claims, chi.URLParam(r, "id"), payload, actorFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, complaint, nil)
}
