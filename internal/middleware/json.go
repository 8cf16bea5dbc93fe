package middleware

import (
	"encoding/json"
	"net/http"

	"citizen-voice/internal/model"
)

func errorEnvelope(code string, message string) model.APIResponse {
	return model.APIResponse{
		Success: false,
		Error:   &model.APIError{Code: code, Message: message},
	}
}

// writeJSONError renders the same envelope as the handlers for failures that
// are decided before a request reaches them.
func writeJSONError(w http.ResponseWriter, status int, code string, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorEnvelope(code, message))
}

func mustMarshalEnvelope(code string, message string) string {
	raw, err := json.Marshal(errorEnvelope(code, message))
	if err != nil {
		panic(err)
	}
	return string(raw)
}
