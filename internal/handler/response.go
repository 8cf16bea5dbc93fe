package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"citizen-voice/internal/model"
	"citizen-voice/internal/service"
	"citizen-voice/pkg/apierror"
)

const maxBodyBytes = 1 << 20

func writeSuccess(w http.ResponseWriter, status int, data any, meta *model.Meta) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	body := &model.APIError{
		Code:    "INTERNAL_ERROR",
		Message: "Unexpected server error",
	}

	var apiErr *apierror.APIError
	var locked *service.LockedError
	switch {
	case errors.As(err, &apiErr):
		status = apiErr.HTTPStatus
		body.Code = apiErr.Code
		body.Message = apiErr.Message
		body.Details = apiErr.Details
	case errors.As(err, &locked):
		seconds := strconv.Itoa(locked.RetryAfterSeconds())
		w.Header().Set("Retry-After", seconds)
		status = http.StatusLocked
		body.Code = "ACCOUNT_LOCKED"
		body.Message = "Too many failed login attempts, try again later"
		body.Details = "retry_after_seconds=" + seconds
	case errors.Is(err, model.ErrInvalidCredentials):
		status = http.StatusUnauthorized
		body.Code = "INVALID_CREDENTIALS"
		body.Message = "Invalid email or password"
	case errors.Is(err, model.ErrDuplicateEmail):
		status = http.StatusBadRequest
		body.Code = "DUPLICATE_EMAIL"
		body.Message = "Email already registered"
	case errors.Is(err, model.ErrInvalidRefreshToken):
		status = http.StatusUnauthorized
		body.Code = "INVALID_REFRESH_TOKEN"
		body.Message = "Invalid or expired refresh token"
	case errors.Is(err, model.ErrInvalidToken), errors.Is(err, model.ErrInvalidResetToken):
		status = http.StatusUnauthorized
		body.Code = "INVALID_OR_EXPIRED_TOKEN"
		body.Message = "Invalid or expired token"
	case errors.Is(err, model.ErrUnauthorized):
		status = http.StatusUnauthorized
		body.Code = "UNAUTHORIZED"
		body.Message = "Authentication required"
	case errors.Is(err, model.ErrCSRFMismatch):
		status = http.StatusForbidden
		body.Code = "CSRF_MISMATCH"
		body.Message = "Missing or invalid CSRF token"
	case errors.Is(err, model.ErrForbidden):
		status = http.StatusForbidden
		body.Code = "FORBIDDEN"
		body.Message = "Access denied"
	case errors.Is(err, model.ErrUserNotFound):
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		body.Message = "User not found"
	case errors.Is(err, model.ErrComplaintNotFound):
		status = http.StatusNotFound
		body.Code = "NOT_FOUND"
		body.Message = "Complaint not found"
	case errors.Is(err, model.ErrInvalidInput):
		status = http.StatusBadRequest
		body.Code = "VALIDATION_ERROR"
		body.Message = "Invalid input"
	case errors.Is(err, model.ErrInvalidTransition):
		status = http.StatusConflict
		body.Code = "INVALID_TRANSITION"
		body.Message = "Account cannot make that transition"
		body.Details = err.Error()
	default:
		// Log unclassified errors so they are visible in container logs.
		slog.Error("unhandled error in writeError", "error", err.Error())
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(model.APIResponse{
		Success: false,
		Error:   body,
	})
}

// decodeJSON reads a bounded JSON body into dst and runs struct validation.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	defer r.Body.Close()

	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst); err != nil {
		return apierror.Validation("invalid JSON body", "")
	}
	return validateStruct(dst)
}

func parseIntOrDefault(raw string, fallback int) int {
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
