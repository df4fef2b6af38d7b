package server

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/bunbase/bunbase/internal/apperrors"
)

// errorBody is the uniform error response shape.
type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps an error kind to its HTTP status.
func statusFor(kind apperrors.Kind) int {
	switch kind {
	case apperrors.KindValidation:
		return http.StatusBadRequest
	case apperrors.KindUnauthorized:
		return http.StatusUnauthorized
	case apperrors.KindForbidden:
		return http.StatusForbidden
	case apperrors.KindNotFound:
		return http.StatusNotFound
	case apperrors.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// writeError converts err into the JSON error body with the mapped
// status. Untyped errors are 500s; their messages leak only in
// development mode.
func (a *App) writeError(w http.ResponseWriter, err error) {
	kind := apperrors.KindOf(err)
	status := statusFor(kind)

	message := err.Error()
	if kind == apperrors.KindInternal {
		log.Printf("ERROR: %v", err)
		if !a.Cfg.Development {
			message = "internal server error"
		}
	}

	writeJSON(w, status, errorBody{Error: message})
}

// writeJSON writes a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		if err := json.NewEncoder(w).Encode(body); err != nil {
			log.Printf("ERROR: encode response: %v", err)
		}
	}
}
