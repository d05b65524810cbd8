package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcraigtyler/map-editor/internal/api"
	"github.com/mcraigtyler/map-editor/internal/domain"
	"github.com/mcraigtyler/map-editor/internal/handler"
	"github.com/mcraigtyler/map-editor/internal/service"
	"github.com/mcraigtyler/map-editor/internal/tags"
)

// mockFeatureServicer is a test double for handler.FeatureServicer.
// Set only the method fields your test needs.
type mockFeatureServicer struct {
	list       func(ctx context.Context, q service.ListQuery) (domain.FeaturePage, error)
	get        func(ctx context.Context, id uuid.UUID) (domain.Feature, error)
	create     func(ctx context.Context, in service.FeatureInput) (domain.Feature, error)
	update     func(ctx context.Context, id uuid.UUID, in service.FeatureInput) (domain.Feature, error)
	updateTags func(ctx context.Context, id uuid.UUID, m tags.Mutation) (domain.Feature, error)
	delete     func(ctx context.Context, id uuid.UUID) error
}

func (m *mockFeatureServicer) List(ctx context.Context, q service.ListQuery) (domain.FeaturePage, error) {
	return m.list(ctx, q)
}
func (m *mockFeatureServicer) Get(ctx context.Context, id uuid.UUID) (domain.Feature, error) {
	return m.get(ctx, id)
}
func (m *mockFeatureServicer) Create(ctx context.Context, in service.FeatureInput) (domain.Feature, error) {
	return m.create(ctx, in)
}
func (m *mockFeatureServicer) Update(ctx context.Context, id uuid.UUID, in service.FeatureInput) (domain.Feature, error) {
	return m.update(ctx, id, in)
}
func (m *mockFeatureServicer) UpdateTags(ctx context.Context, id uuid.UUID, mu tags.Mutation) (domain.Feature, error) {
	return m.updateTags(ctx, id, mu)
}
func (m *mockFeatureServicer) Delete(ctx context.Context, id uuid.UUID) error {
	return m.delete(ctx, id)
}

// compile-time check: mockFeatureServicer must satisfy handler.FeatureServicer.
var _ handler.FeatureServicer = (*mockFeatureServicer)(nil)

// ---- helpers ---------------------------------------------------------------

// newHTTPHandler wires a Server with the given mock the same way main.go does.
func newHTTPHandler(svc handler.FeatureServicer) http.Handler {
	return handler.NewServer(svc, "test", nil).Routes()
}

func featureFixture() domain.Feature {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return domain.Feature{
		ID:        uuid.New(),
		Kind:      domain.KindPoint,
		Geometry:  orb.Point{0, 0},
		Tags:      domain.Tags{"name": "Null Island"},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func jsonBody(t *testing.T, v any) *bytes.Buffer {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewBuffer(b)
}

func serve(h http.Handler, method, target string, body *bytes.Buffer) *httptest.ResponseRecorder {
	var req *http.Request
	if body == nil {
		req = httptest.NewRequest(method, target, nil)
	} else {
		req = httptest.NewRequest(method, target, body)
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

// ---- GET /features ---------------------------------------------------------

func TestListFeatures_200(t *testing.T) {
	var got service.ListQuery
	f := featureFixture()
	svc := &mockFeatureServicer{
		list: func(_ context.Context, q service.ListQuery) (domain.FeaturePage, error) {
			got = q
			return domain.FeaturePage{
				Features: []domain.Feature{f},
				Total:    1,
				Limit:    10,
				Offset:   0,
				BBox:     &domain.BBox{MinLon: -1, MinLat: -1, MaxLon: 1, MaxLat: 1},
			}, nil
		},
	}

	rec := serve(newHTTPHandler(svc), http.MethodGet, "/features?bbox=-1,-1,1,1&limit=10", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []float64{-1, -1, 1, 1}, got.BBox)
	require.NotNil(t, got.Limit)
	assert.Equal(t, 10, *got.Limit)
	assert.Nil(t, got.Offset)

	var resp api.FeatureCollection
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "FeatureCollection", resp.Type)
	assert.Equal(t, api.Pagination{Total: 1, Limit: 10, Offset: 0}, resp.Pagination)
	assert.Equal(t, []float64{-1, -1, 1, 1}, resp.BBox)
	require.Len(t, resp.Features, 1)
	assert.Equal(t, f.ID, resp.Features[0].ID)
	assert.Equal(t, domain.KindPoint, resp.Features[0].Properties.Kind)
	assert.Equal(t, orb.Point{0, 0}, resp.Features[0].Geometry.Geometry())
}

func TestListFeatures_422_NonNumericBBox(t *testing.T) {
	rec := serve(newHTTPHandler(&mockFeatureServicer{}), http.MethodGet, "/features?bbox=a,b,c,d", nil)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "bbox must contain four comma-separated numbers", body["message"])
}

func TestListFeatures_422_NonIntegerLimit(t *testing.T) {
	rec := serve(newHTTPHandler(&mockFeatureServicer{}), http.MethodGet, "/features?limit=1.5", nil)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestListFeatures_422_ServiceValidation(t *testing.T) {
	svc := &mockFeatureServicer{
		list: func(_ context.Context, _ service.ListQuery) (domain.FeaturePage, error) {
			return domain.FeaturePage{}, fmt.Errorf("service.FeatureService.List: %w", &domain.ValidationError{
				Message: "Invalid query parameters",
				Issues:  []domain.FieldIssue{{Field: "limit", Message: "limit must be at most 100", Rule: "lte"}},
			})
		},
	}

	rec := serve(newHTTPHandler(svc), http.MethodGet, "/features?limit=500", nil)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decodeError(t, rec)
	assert.Equal(t, "Invalid query parameters", body["message"])
	details, ok := body["details"].([]any)
	require.True(t, ok)
	require.Len(t, details, 1)
	assert.Equal(t, "limit", details[0].(map[string]any)["field"])
}

// ---- GET /features/{id} ----------------------------------------------------

func TestGetFeature_200(t *testing.T) {
	f := featureFixture()
	svc := &mockFeatureServicer{
		get: func(_ context.Context, id uuid.UUID) (domain.Feature, error) {
			assert.Equal(t, f.ID, id)
			return f, nil
		},
	}

	rec := serve(newHTTPHandler(svc), http.MethodGet, "/features/"+f.ID.String(), nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp api.Feature
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "Feature", resp.Type)
	assert.Equal(t, map[string]string{"name": "Null Island"}, resp.Properties.Tags)
}

func TestGetFeature_404(t *testing.T) {
	id := uuid.New()
	svc := &mockFeatureServicer{
		get: func(_ context.Context, _ uuid.UUID) (domain.Feature, error) {
			return domain.Feature{}, fmt.Errorf("service.FeatureService.Get: %w", domain.ErrNotFound)
		},
	}

	rec := serve(newHTTPHandler(svc), http.MethodGet, "/features/"+id.String(), nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Feature not found: "+id.String(), decodeError(t, rec)["message"])
}

func TestGetFeature_404_InvalidID(t *testing.T) {
	rec := serve(newHTTPHandler(&mockFeatureServicer{}), http.MethodGet, "/features/not-a-uuid", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetFeature_500_Internal(t *testing.T) {
	svc := &mockFeatureServicer{
		get: func(_ context.Context, _ uuid.UUID) (domain.Feature, error) {
			return domain.Feature{}, &domain.InternalError{Message: "Stored feature geometry is malformed"}
		},
	}

	rec := serve(newHTTPHandler(svc), http.MethodGet, "/features/"+uuid.NewString(), nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "Stored feature geometry is malformed", decodeError(t, rec)["message"])
}

// ---- POST /features --------------------------------------------------------

func TestCreateFeature_201(t *testing.T) {
	f := featureFixture()
	var got service.FeatureInput
	svc := &mockFeatureServicer{
		create: func(_ context.Context, in service.FeatureInput) (domain.Feature, error) {
			got = in
			return f, nil
		},
	}

	body := jsonBody(t, map[string]any{
		"kind":     "point",
		"geometry": map[string]any{"type": "Point", "coordinates": []float64{0, 0}},
		"tags":     map[string]string{"name": "Null Island"},
	})
	rec := serve(newHTTPHandler(svc), http.MethodPost, "/features", body)

	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "point", got.Kind)
	assert.JSONEq(t, `{"type":"Point","coordinates":[0,0]}`, string(got.Geometry))
	assert.Equal(t, map[string]string{"name": "Null Island"}, got.Tags)

	var resp api.Feature
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, f.ID, resp.ID)
}

func TestCreateFeature_422_GeometryDetails(t *testing.T) {
	svc := &mockFeatureServicer{
		create: func(_ context.Context, _ service.FeatureInput) (domain.Feature, error) {
			return domain.Feature{}, domain.NewValidationError("geometry type is incompatible with feature kind",
				map[string]any{"kind": "point", "geometryType": "LineString"})
		},
	}

	body := jsonBody(t, map[string]any{
		"kind":     "point",
		"geometry": map[string]any{"type": "LineString", "coordinates": [][]float64{{0, 0}, {1, 1}}},
	})
	rec := serve(newHTTPHandler(svc), http.MethodPost, "/features", body)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	resp := decodeError(t, rec)
	assert.Equal(t, map[string]any{"kind": "point", "geometryType": "LineString"}, resp["details"])
}

func TestCreateFeature_422_MalformedJSON(t *testing.T) {
	rec := serve(newHTTPHandler(&mockFeatureServicer{}), http.MethodPost, "/features",
		bytes.NewBufferString(`{"kind":`))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCreateFeature_413_BodyTooLarge(t *testing.T) {
	h := http.MaxBytesHandler(newHTTPHandler(&mockFeatureServicer{}), 16)

	rec := serve(h, http.MethodPost, "/features",
		bytes.NewBufferString(`{"kind":"point","tags":{"note":"`+strings.Repeat("x", 64)+`"}}`))

	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

// ---- PUT /features/{id} ----------------------------------------------------

func TestUpdateFeature_200(t *testing.T) {
	f := featureFixture()
	svc := &mockFeatureServicer{
		update: func(_ context.Context, id uuid.UUID, in service.FeatureInput) (domain.Feature, error) {
			assert.Equal(t, f.ID, id)
			assert.Equal(t, "point", in.Kind)
			return f, nil
		},
	}

	body := jsonBody(t, map[string]any{
		"kind":     "point",
		"geometry": map[string]any{"type": "Point", "coordinates": []float64{1, 1}},
	})
	rec := serve(newHTTPHandler(svc), http.MethodPut, "/features/"+f.ID.String(), body)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestUpdateFeature_404(t *testing.T) {
	svc := &mockFeatureServicer{
		update: func(_ context.Context, _ uuid.UUID, _ service.FeatureInput) (domain.Feature, error) {
			return domain.Feature{}, domain.ErrNotFound
		},
	}

	body := jsonBody(t, map[string]any{"kind": "point"})
	rec := serve(newHTTPHandler(svc), http.MethodPut, "/features/"+uuid.NewString(), body)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// ---- PATCH /features/{id}/tags ---------------------------------------------

func TestUpdateFeatureTags_200(t *testing.T) {
	f := featureFixture()
	var got tags.Mutation
	svc := &mockFeatureServicer{
		updateTags: func(_ context.Context, _ uuid.UUID, m tags.Mutation) (domain.Feature, error) {
			got = m
			return f, nil
		},
	}

	body := jsonBody(t, map[string]any{"set": map[string]string{"x": "2"}, "delete": []string{"x"}})
	rec := serve(newHTTPHandler(svc), http.MethodPatch, "/features/"+f.ID.String()+"/tags", body)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, tags.Mutation{Set: map[string]string{"x": "2"}, Delete: []string{"x"}}, got)
}

func TestUpdateFeatureTags_422_EmptyMutation(t *testing.T) {
	svc := &mockFeatureServicer{
		updateTags: func(_ context.Context, _ uuid.UUID, m tags.Mutation) (domain.Feature, error) {
			return domain.Feature{}, &domain.ValidationError{
				Message: tags.MsgInvalidMutation,
				Issues:  []domain.FieldIssue{{Field: "mutation", Message: tags.MsgEmptyMutation, Rule: tags.RuleEmptyMutation}},
			}
		},
	}

	rec := serve(newHTTPHandler(svc), http.MethodPatch, "/features/"+uuid.NewString()+"/tags", jsonBody(t, map[string]any{}))

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

// ---- DELETE /features/{id} -------------------------------------------------

func TestDeleteFeature_204(t *testing.T) {
	svc := &mockFeatureServicer{
		delete: func(_ context.Context, _ uuid.UUID) error { return nil },
	}

	rec := serve(newHTTPHandler(svc), http.MethodDelete, "/features/"+uuid.NewString(), nil)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())
}

func TestDeleteFeature_404(t *testing.T) {
	svc := &mockFeatureServicer{
		delete: func(_ context.Context, _ uuid.UUID) error { return domain.ErrNotFound },
	}

	rec := serve(newHTTPHandler(svc), http.MethodDelete, "/features/"+uuid.NewString(), nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
