package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"
	openapi_types "github.com/oapi-codegen/runtime/types"

	"github.com/mcraigtyler/map-editor/internal/api"
	"github.com/mcraigtyler/map-editor/internal/service"
	"github.com/mcraigtyler/map-editor/internal/tags"
)

// featureRequest is the body of POST and PUT. Geometry stays raw so the
// geometry validator sees exactly what the client sent.
type featureRequest struct {
	Kind     string            `json:"kind"`
	Geometry json.RawMessage   `json:"geometry"`
	Tags     map[string]string `json:"tags"`
}

func (fr featureRequest) input() service.FeatureInput {
	return service.FeatureInput{Kind: fr.Kind, Geometry: fr.Geometry, Tags: fr.Tags}
}

// bindID parses the {id} path parameter. An id that is not a UUID cannot
// name a feature, so the caller answers 404.
func bindID(r *http.Request) (uuid.UUID, string, bool) {
	raw := chi.URLParam(r, "id")
	var id openapi_types.UUID
	err := runtime.BindStyledParameterWithOptions("simple", "id", raw, &id, runtime.BindStyledParameterOptions{
		ParamLocation: runtime.ParamLocationPath,
		Explode:       false,
		Required:      true,
	})
	if err != nil {
		return uuid.Nil, raw, false
	}
	return id, raw, true
}

func notFoundMessage(id string) string {
	return "Feature not found: " + id
}

// ListFeatures handles GET /features?bbox=&limit=&offset=.
func (s *Server) ListFeatures(w http.ResponseWriter, r *http.Request) {
	var q service.ListQuery
	query := r.URL.Query()

	if err := runtime.BindQueryParameter("form", false, false, "bbox", query, &q.BBox); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity,
			requestBody("bbox must contain four comma-separated numbers", "bbox", "format"))
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "limit", query, &q.Limit); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, requestBody("limit must be an integer", "limit", "integer"))
		return
	}
	if err := runtime.BindQueryParameter("form", true, false, "offset", query, &q.Offset); err != nil {
		writeJSON(w, http.StatusUnprocessableEntity, requestBody("offset must be an integer", "offset", "integer"))
		return
	}

	page, err := s.features.List(r.Context(), q)
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusOK, api.FromPage(page))
}

// GetFeature handles GET /features/{id}.
func (s *Server) GetFeature(w http.ResponseWriter, r *http.Request) {
	id, raw, ok := bindID(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Message: notFoundMessage(raw)})
		return
	}

	f, err := s.features.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err, notFoundMessage(raw))
		return
	}
	writeJSON(w, http.StatusOK, api.FromFeature(f))
}

// CreateFeature handles POST /features.
func (s *Server) CreateFeature(w http.ResponseWriter, r *http.Request) {
	var req featureRequest
	if !decodeBody(w, r, &req) {
		return
	}

	f, err := s.features.Create(r.Context(), req.input())
	if err != nil {
		s.writeError(w, r, err, "")
		return
	}
	writeJSON(w, http.StatusCreated, api.FromFeature(f))
}

// UpdateFeature handles PUT /features/{id}: a full replace.
func (s *Server) UpdateFeature(w http.ResponseWriter, r *http.Request) {
	id, raw, ok := bindID(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Message: notFoundMessage(raw)})
		return
	}
	var req featureRequest
	if !decodeBody(w, r, &req) {
		return
	}

	f, err := s.features.Update(r.Context(), id, req.input())
	if err != nil {
		s.writeError(w, r, err, notFoundMessage(raw))
		return
	}
	writeJSON(w, http.StatusOK, api.FromFeature(f))
}

// UpdateFeatureTags handles PATCH /features/{id}/tags.
func (s *Server) UpdateFeatureTags(w http.ResponseWriter, r *http.Request) {
	id, raw, ok := bindID(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Message: notFoundMessage(raw)})
		return
	}
	var m tags.Mutation
	if !decodeBody(w, r, &m) {
		return
	}

	f, err := s.features.UpdateTags(r.Context(), id, m)
	if err != nil {
		s.writeError(w, r, err, notFoundMessage(raw))
		return
	}
	writeJSON(w, http.StatusOK, api.FromFeature(f))
}

// DeleteFeature handles DELETE /features/{id}.
func (s *Server) DeleteFeature(w http.ResponseWriter, r *http.Request) {
	id, raw, ok := bindID(r)
	if !ok {
		writeJSON(w, http.StatusNotFound, api.ErrorResponse{Message: notFoundMessage(raw)})
		return
	}

	if err := s.features.Delete(r.Context(), id); err != nil {
		s.writeError(w, r, err, notFoundMessage(raw))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
