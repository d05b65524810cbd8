package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/goccy/go-json"

	"github.com/mcraigtyler/map-editor/internal/api"
	"github.com/mcraigtyler/map-editor/internal/domain"
)

// writeJSON encodes v as the response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"message":"Internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

// validationBody builds the 422 body. Field issues win over free-form details.
func validationBody(ve *domain.ValidationError) api.ErrorResponse {
	body := api.ErrorResponse{Message: ve.Message}
	switch {
	case len(ve.Issues) > 0:
		body.Details = ve.Issues
	case len(ve.Details) > 0:
		body.Details = ve.Details
	}
	return body
}

// requestBody returns a 422 body for input rejected before reaching the
// service layer, e.g. a malformed JSON body or query parameter.
func requestBody(message, field, rule string) api.ErrorResponse {
	return api.ErrorResponse{
		Message: message,
		Details: []domain.FieldIssue{{Field: field, Message: message, Rule: rule}},
	}
}

// writeError maps a service error to a status code and body.
// notFoundMessage is used for domain.ErrNotFound.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error, notFoundMessage string) {
	var (
		ve *domain.ValidationError
		ie *domain.InternalError
	)
	switch {
	case errors.As(err, &ve):
		writeJSON(w, http.StatusUnprocessableEntity, validationBody(ve))
	case errors.Is(err, domain.ErrValidation):
		writeJSON(w, http.StatusUnprocessableEntity, api.ErrorResponse{Message: err.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Message: notFoundMessage})
	case errors.As(err, &ie):
		s.log.ErrorContext(r.Context(), "internal error", "error", err, "path", r.URL.Path)
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Message: ie.Message})
	default:
		s.log.ErrorContext(r.Context(), "unhandled error", "error", err, "path", r.URL.Path)
		writeJSON(w, http.StatusInternalServerError, api.ErrorResponse{Message: "Internal server error"})
	}
}

// decodeBody reads a JSON request body into dst. It writes the error
// response itself and reports whether decoding succeeded.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	b, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, api.ErrorResponse{Message: "Request body is too large"})
			return false
		}
		writeJSON(w, http.StatusBadRequest, api.ErrorResponse{Message: "Request body could not be read"})
		return false
	}
	if err := json.Unmarshal(b, dst); err == nil {
		return true
	}
	writeJSON(w, http.StatusUnprocessableEntity, requestBody("Request body must be a valid JSON object", "body", "json"))
	return false
}
