// Package api holds the JSON wire types of the map editor REST API, shared
// by the HTTP handlers and the Go client. The shapes follow spec/openapi.yaml.
package api

import (
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"

	"github.com/mcraigtyler/map-editor/internal/domain"
)

// Feature is a GeoJSON Feature whose properties carry kind, tags and timestamps.
type Feature struct {
	Type       string            `json:"type"`
	ID         uuid.UUID         `json:"id"`
	Geometry   *geojson.Geometry `json:"geometry"`
	Properties FeatureProperties `json:"properties"`
}

type FeatureProperties struct {
	Kind      domain.Kind       `json:"kind"`
	Tags      map[string]string `json:"tags"`
	CreatedAt time.Time         `json:"createdAt"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// FeatureCollection is a page of features plus pagination metadata.
type FeatureCollection struct {
	Type       string     `json:"type"`
	Features   []Feature  `json:"features"`
	BBox       []float64  `json:"bbox,omitempty"`
	Pagination Pagination `json:"pagination"`
}

type Pagination struct {
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

// FeaturePayload is the body of POST /features and PUT /features/{id}.
type FeaturePayload struct {
	Kind     string            `json:"kind"`
	Geometry *geojson.Geometry `json:"geometry"`
	Tags     map[string]string `json:"tags"`
}

// TagMutationPayload is the body of PATCH /features/{id}/tags.
type TagMutationPayload struct {
	Set    map[string]string `json:"set,omitempty"`
	Delete []string          `json:"delete,omitempty"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

type VersionResponse struct {
	Version string `json:"version"`
}

// FromFeature converts a domain feature to its wire form.
func FromFeature(f domain.Feature) Feature {
	t := make(map[string]string, len(f.Tags))
	for k, v := range f.Tags {
		t[k] = v
	}
	return Feature{
		Type:     "Feature",
		ID:       f.ID,
		Geometry: geojson.NewGeometry(f.Geometry),
		Properties: FeatureProperties{
			Kind:      f.Kind,
			Tags:      t,
			CreatedAt: f.CreatedAt,
			UpdatedAt: f.UpdatedAt,
		},
	}
}

// FromPage converts a listing page to a FeatureCollection.
func FromPage(p domain.FeaturePage) FeatureCollection {
	out := FeatureCollection{
		Type:     "FeatureCollection",
		Features: make([]Feature, 0, len(p.Features)),
		Pagination: Pagination{
			Total:  p.Total,
			Limit:  p.Limit,
			Offset: p.Offset,
		},
	}
	for _, f := range p.Features {
		out.Features = append(out.Features, FromFeature(f))
	}
	if p.BBox != nil {
		out.BBox = p.BBox.Slice()
	}
	return out
}

// ToDomain converts a wire feature back into a domain feature.
func (f Feature) ToDomain() domain.Feature {
	out := domain.Feature{
		ID:        f.ID,
		Kind:      f.Properties.Kind,
		Tags:      domain.Tags(f.Properties.Tags).Clone(),
		CreatedAt: f.Properties.CreatedAt,
		UpdatedAt: f.Properties.UpdatedAt,
	}
	if f.Geometry != nil {
		out.Geometry = f.Geometry.Geometry()
	}
	return out
}

// ToDomain converts a wire collection back into a page.
func (c FeatureCollection) ToDomain() domain.FeaturePage {
	p := domain.FeaturePage{
		Features: make([]domain.Feature, 0, len(c.Features)),
		Total:    c.Pagination.Total,
		Limit:    c.Pagination.Limit,
		Offset:   c.Pagination.Offset,
	}
	for _, f := range c.Features {
		p.Features = append(p.Features, f.ToDomain())
	}
	if len(c.BBox) == 4 {
		p.BBox = &domain.BBox{MinLon: c.BBox[0], MinLat: c.BBox[1], MaxLon: c.BBox[2], MaxLat: c.BBox[3]}
	}
	return p
}
