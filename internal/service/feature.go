// Package service implements the business rules of the map editor: it
// validates geometry and tags, applies listing defaults, and translates
// store results into domain errors.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/mcraigtyler/map-editor/internal/domain"
	"github.com/mcraigtyler/map-editor/internal/geometry"
	"github.com/mcraigtyler/map-editor/internal/repo"
	"github.com/mcraigtyler/map-editor/internal/tags"
	"github.com/mcraigtyler/map-editor/internal/validation"
)

// FeatureInput is an unvalidated create or replace request.
type FeatureInput struct {
	Kind     string
	Geometry []byte
	Tags     map[string]string
}

// ListQuery carries optional listing parameters as they arrive from the transport.
type ListQuery struct {
	BBox   []float64
	Limit  *int
	Offset *int
}

// FeatureService implements the feature operations. It holds no per-call
// state and is safe for concurrent use.
type FeatureService struct {
	features repo.FeatureRepo
}

// NewFeatureService constructs a FeatureService backed by the provided FeatureRepo.
func NewFeatureService(features repo.FeatureRepo) *FeatureService {
	return &FeatureService{features: features}
}

// List returns one page of features, newest first.
func (s *FeatureService) List(ctx context.Context, q ListQuery) (domain.FeaturePage, error) {
	filter, err := validateListQuery(q)
	if err != nil {
		return domain.FeaturePage{}, fmt.Errorf("service.FeatureService.List: %w", err)
	}

	records, total, err := s.features.List(ctx, filter)
	if err != nil {
		return domain.FeaturePage{}, fmt.Errorf("service.FeatureService.List: %w", err)
	}

	features := make([]domain.Feature, 0, len(records))
	for _, rec := range records {
		f, err := decodeRecord(rec)
		if err != nil {
			return domain.FeaturePage{}, fmt.Errorf("service.FeatureService.List: %w", err)
		}
		features = append(features, f)
	}

	return domain.FeaturePage{
		Features: features,
		Total:    total,
		Limit:    filter.Limit,
		Offset:   filter.Offset,
		BBox:     filter.BBox,
	}, nil
}

// Get returns the feature with the given id.
func (s *FeatureService) Get(ctx context.Context, id uuid.UUID) (domain.Feature, error) {
	rec, err := s.features.GetByID(ctx, id)
	if err != nil {
		return domain.Feature{}, fmt.Errorf("service.FeatureService.Get: %w", notFound(err, id))
	}
	f, err := decodeRecord(rec)
	if err != nil {
		return domain.Feature{}, fmt.Errorf("service.FeatureService.Get: %w", err)
	}
	return f, nil
}

// Create validates the input and persists it exactly once.
func (s *FeatureService) Create(ctx context.Context, in FeatureInput) (domain.Feature, error) {
	w, err := validateInput(in)
	if err != nil {
		return domain.Feature{}, fmt.Errorf("service.FeatureService.Create: %w", err)
	}

	rec, err := s.features.Create(ctx, w)
	if errors.Is(err, domain.ErrNotFound) {
		return domain.Feature{}, fmt.Errorf("service.FeatureService.Create: %w",
			&domain.InternalError{Message: "Feature could not be loaded after creation", Cause: flatten(err)})
	}
	if err != nil {
		return domain.Feature{}, fmt.Errorf("service.FeatureService.Create: %w", err)
	}

	f, err := decodeRecord(rec)
	if err != nil {
		return domain.Feature{}, fmt.Errorf("service.FeatureService.Create: %w", err)
	}
	return f, nil
}

// Update replaces kind, geometry and tags of an existing feature.
func (s *FeatureService) Update(ctx context.Context, id uuid.UUID, in FeatureInput) (domain.Feature, error) {
	w, err := validateInput(in)
	if err != nil {
		return domain.Feature{}, fmt.Errorf("service.FeatureService.Update: %w", err)
	}

	rec, err := s.features.Update(ctx, id, w)
	if err != nil {
		return domain.Feature{}, fmt.Errorf("service.FeatureService.Update: %w", notFound(err, id))
	}

	f, err := decodeRecord(rec)
	if err != nil {
		return domain.Feature{}, fmt.Errorf("service.FeatureService.Update: %w", err)
	}
	return f, nil
}

// UpdateTags applies a partial tag mutation: deletes first, then sets.
// The read and the write are separate statements, so concurrent mutations
// of the same feature resolve as last write wins.
func (s *FeatureService) UpdateTags(ctx context.Context, id uuid.UUID, in tags.Mutation) (domain.Feature, error) {
	m, err := tags.ValidateMutation(in)
	if err != nil {
		return domain.Feature{}, fmt.Errorf("service.FeatureService.UpdateTags: %w", err)
	}

	current, err := s.Get(ctx, id)
	if err != nil {
		return domain.Feature{}, fmt.Errorf("service.FeatureService.UpdateTags: %w", err)
	}

	rec, err := s.features.ReplaceTags(ctx, id, m.Apply(current.Tags))
	if err != nil {
		return domain.Feature{}, fmt.Errorf("service.FeatureService.UpdateTags: %w", notFound(err, id))
	}

	f, err := decodeRecord(rec)
	if err != nil {
		return domain.Feature{}, fmt.Errorf("service.FeatureService.UpdateTags: %w", err)
	}
	return f, nil
}

// Delete removes a feature. Deleting twice reports not found the second time.
func (s *FeatureService) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.features.Delete(ctx, id); err != nil {
		return fmt.Errorf("service.FeatureService.Delete: %w", notFound(err, id))
	}
	return nil
}

// validateInput checks kind, geometry and tags and prepares the store write.
func validateInput(in FeatureInput) (domain.FeatureWrite, error) {
	kind := domain.Kind(in.Kind)
	if !kind.Valid() {
		return domain.FeatureWrite{}, domain.NewValidationError("kind is not supported", map[string]any{
			"kind":    in.Kind,
			"allowed": domain.Kinds,
		})
	}

	g, err := geometry.Validate(in.Geometry, kind)
	if err != nil {
		return domain.FeatureWrite{}, err
	}

	t, err := tags.ValidateTags(in.Tags)
	if err != nil {
		return domain.FeatureWrite{}, err
	}

	text, err := geometry.Marshal(g)
	if err != nil {
		return domain.FeatureWrite{}, &domain.InternalError{Message: "Geometry could not be encoded", Cause: err}
	}
	return domain.FeatureWrite{Kind: kind, Geometry: string(text), Tags: t}, nil
}

// notFound adds the feature id to a not-found error from the store.
func notFound(err error, id uuid.UUID) error {
	if errors.Is(err, domain.ErrNotFound) {
		return fmt.Errorf("feature %s: %w", id, domain.ErrNotFound)
	}
	return err
}

// decodeRecord turns a stored row into a domain.Feature. Anything that does
// not decode is an internal error: the data was accepted once and is now corrupt.
func decodeRecord(rec domain.FeatureRecord) (domain.Feature, error) {
	kind := domain.Kind(rec.Kind)
	if !kind.Valid() {
		return domain.Feature{}, &domain.InternalError{
			Message: "Stored feature kind is not supported",
			Cause:   fmt.Errorf("feature %s has kind %q", rec.ID, rec.Kind),
		}
	}

	g, err := geometry.Decode(rec.Geometry)
	if err != nil {
		return domain.Feature{}, &domain.InternalError{Message: "Stored feature geometry is malformed", Cause: flatten(err)}
	}

	t, err := decodeTags(rec.Tags)
	if err != nil {
		return domain.Feature{}, &domain.InternalError{Message: "Stored feature tags are malformed", Cause: flatten(err)}
	}

	return domain.Feature{
		ID:        rec.ID,
		Kind:      kind,
		Geometry:  g,
		Tags:      t,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}, nil
}

func decodeTags(v any) (domain.Tags, error) {
	var obj map[string]any
	switch t := v.(type) {
	case nil:
		return domain.Tags{}, nil
	case domain.Tags:
		return t.Clone(), nil
	case map[string]string:
		return domain.Tags(t).Clone(), nil
	case map[string]any:
		obj = t
	case string:
		if err := json.Unmarshal([]byte(t), &obj); err != nil {
			return nil, err
		}
	case []byte:
		if err := json.Unmarshal(t, &obj); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unsupported stored tags type %T", v)
	}

	out := make(domain.Tags, len(obj))
	for k, val := range obj {
		s, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("tag %q has non-string value %T", k, val)
		}
		out[k] = s
	}
	return out, nil
}

// flatten keeps the text of err but drops its chain, so a decode failure
// wrapped in an InternalError no longer matches domain.ErrValidation.
func flatten(err error) error {
	return errors.New(err.Error())
}

// ---- listing parameters ----------------------------------------------------

type listParams struct {
	Limit  int         `json:"limit" validate:"gt=0,lte=100"`
	Offset int         `json:"offset" validate:"gte=0"`
	BBox   *bboxParams `json:"bbox" validate:"omitempty"`
}

type bboxParams struct {
	MinLon float64 `json:"minLon" validate:"longitude,ltfield=MaxLon"`
	MinLat float64 `json:"minLat" validate:"latitude,ltfield=MaxLat"`
	MaxLon float64 `json:"maxLon" validate:"longitude"`
	MaxLat float64 `json:"maxLat" validate:"latitude"`
}

const msgInvalidQuery = "Invalid query parameters"

func validateListQuery(q ListQuery) (domain.FeatureFilter, error) {
	p := listParams{Limit: domain.DefaultLimit}
	if q.Limit != nil {
		p.Limit = *q.Limit
	}
	if q.Offset != nil {
		p.Offset = *q.Offset
	}

	if q.BBox != nil {
		if len(q.BBox) != 4 {
			return domain.FeatureFilter{}, &domain.ValidationError{
				Message: msgInvalidQuery,
				Issues: []domain.FieldIssue{{
					Field:   "bbox",
					Message: "bbox must contain four comma-separated numbers",
					Rule:    "len",
				}},
			}
		}
		p.BBox = &bboxParams{MinLon: q.BBox[0], MinLat: q.BBox[1], MaxLon: q.BBox[2], MaxLat: q.BBox[3]}
	}

	if err := validation.ValidateStruct(&p, msgInvalidQuery); err != nil {
		return domain.FeatureFilter{}, err
	}

	f := domain.FeatureFilter{Limit: p.Limit, Offset: p.Offset}
	if b := p.BBox; b != nil {
		f.BBox = &domain.BBox{MinLon: b.MinLon, MinLat: b.MinLat, MaxLon: b.MaxLon, MaxLat: b.MaxLat}
	}
	return f, nil
}
