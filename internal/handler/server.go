// Package handler implements the HTTP handlers for the map editor API.
// All handlers are methods on Server. Methods are split into resource files
// (status.go, feature.go) but share the same struct and its dependencies.
package handler

import (
	"context"
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mcraigtyler/map-editor/internal/domain"
	"github.com/mcraigtyler/map-editor/internal/service"
	"github.com/mcraigtyler/map-editor/internal/tags"
)

// FeatureServicer defines the business operations the feature handlers depend on.
// Declaring it here, in the consumer package, lets handler tests inject a mock
// without touching the database or service layer.
type FeatureServicer interface {
	List(ctx context.Context, q service.ListQuery) (domain.FeaturePage, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Feature, error)
	Create(ctx context.Context, in service.FeatureInput) (domain.Feature, error)
	Update(ctx context.Context, id uuid.UUID, in service.FeatureInput) (domain.Feature, error)
	UpdateTags(ctx context.Context, id uuid.UUID, m tags.Mutation) (domain.Feature, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// Server serves every API endpoint.
type Server struct {
	features FeatureServicer
	version  string
	log      *slog.Logger
}

// NewServer constructs the Server with all its dependencies.
// A nil logger falls back to slog.Default().
func NewServer(features FeatureServicer, version string, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{features: features, version: version, log: log}
}

// Routes returns a chi router with every endpoint registered.
// Middleware is applied by the caller.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/health", s.GetHealth)
	r.Get("/version", s.GetVersion)
	r.Get("/openapi.yaml", s.GetOpenAPI)

	r.Route("/features", func(r chi.Router) {
		r.Get("/", s.ListFeatures)
		r.Post("/", s.CreateFeature)
		r.Get("/{id}", s.GetFeature)
		r.Put("/{id}", s.UpdateFeature)
		r.Patch("/{id}/tags", s.UpdateFeatureTags)
		r.Delete("/{id}", s.DeleteFeature)
	})

	return r
}
