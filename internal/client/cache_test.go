package client_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcraigtyler/map-editor/internal/client"
	"github.com/mcraigtyler/map-editor/internal/domain"
	"github.com/mcraigtyler/map-editor/internal/tags"
)

// mockFeatureAPI is a test double for client.FeatureAPI.
// Set only the method fields your test needs.
type mockFeatureAPI struct {
	list       func(ctx context.Context, p client.ListParams) (domain.FeaturePage, error)
	get        func(ctx context.Context, id uuid.UUID) (domain.Feature, error)
	create     func(ctx context.Context, d domain.FeatureDraft) (domain.Feature, error)
	update     func(ctx context.Context, id uuid.UUID, d domain.FeatureDraft) (domain.Feature, error)
	updateTags func(ctx context.Context, id uuid.UUID, m domain.TagMutation) (domain.Feature, error)
	delete     func(ctx context.Context, id uuid.UUID) error
}

func (m *mockFeatureAPI) ListFeatures(ctx context.Context, p client.ListParams) (domain.FeaturePage, error) {
	return m.list(ctx, p)
}
func (m *mockFeatureAPI) GetFeature(ctx context.Context, id uuid.UUID) (domain.Feature, error) {
	return m.get(ctx, id)
}
func (m *mockFeatureAPI) CreateFeature(ctx context.Context, d domain.FeatureDraft) (domain.Feature, error) {
	return m.create(ctx, d)
}
func (m *mockFeatureAPI) UpdateFeature(ctx context.Context, id uuid.UUID, d domain.FeatureDraft) (domain.Feature, error) {
	return m.update(ctx, id, d)
}
func (m *mockFeatureAPI) UpdateFeatureTags(ctx context.Context, id uuid.UUID, mu domain.TagMutation) (domain.Feature, error) {
	return m.updateTags(ctx, id, mu)
}
func (m *mockFeatureAPI) DeleteFeature(ctx context.Context, id uuid.UUID) error {
	return m.delete(ctx, id)
}

// compile-time check: mockFeatureAPI must satisfy client.FeatureAPI.
var _ client.FeatureAPI = (*mockFeatureAPI)(nil)

func cachedFeature(id uuid.UUID, t domain.Tags) domain.Feature {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	return domain.Feature{ID: id, Kind: domain.KindPoint, Geometry: orb.Point{0, 0}, Tags: t, CreatedAt: ts, UpdatedAt: ts}
}

// ---- reads -----------------------------------------------------------------

func TestFeatureCache_Feature_fetchesOnce(t *testing.T) {
	id := uuid.New()
	var gets int
	api := &mockFeatureAPI{
		get: func(_ context.Context, _ uuid.UUID) (domain.Feature, error) {
			gets++
			return cachedFeature(id, domain.Tags{"a": "1"}), nil
		},
	}
	c := client.NewFeatureCache(api)

	first, err := c.Feature(context.Background(), id)
	require.NoError(t, err)
	first.Tags["a"] = "mutated"

	second, err := c.Feature(context.Background(), id)
	require.NoError(t, err)

	assert.Equal(t, 1, gets)
	assert.Equal(t, "1", second.Tags["a"], "callers must not be able to mutate the cache")
}

func TestFeatureCache_CreateFeature_invalidatesLists(t *testing.T) {
	var lists int
	api := &mockFeatureAPI{
		list: func(_ context.Context, _ client.ListParams) (domain.FeaturePage, error) {
			lists++
			return domain.FeaturePage{}, nil
		},
		create: func(_ context.Context, d domain.FeatureDraft) (domain.Feature, error) {
			return cachedFeature(uuid.New(), d.Tags), nil
		},
	}
	c := client.NewFeatureCache(api)
	ctx := context.Background()

	_, _ = c.List(ctx, client.ListParams{})
	_, _ = c.List(ctx, client.ListParams{})
	require.Equal(t, 1, lists)

	_, err := c.CreateFeature(ctx, domain.FeatureDraft{Kind: domain.KindPoint, Geometry: orb.Point{0, 0}})
	require.NoError(t, err)

	_, _ = c.List(ctx, client.ListParams{})
	assert.Equal(t, 2, lists)
}

// ---- optimistic tag updates ------------------------------------------------

// TestFeatureCache_UpdateTags_optimisticThenReconciled verifies the three
// phases: the speculative value is visible while the request is in flight,
// and the refetched server state wins afterwards.
func TestFeatureCache_UpdateTags_optimisticThenReconciled(t *testing.T) {
	id := uuid.New()
	ctx := context.Background()
	var c *client.FeatureCache
	var inFlight domain.Feature
	var gets int

	api := &mockFeatureAPI{
		get: func(_ context.Context, _ uuid.UUID) (domain.Feature, error) {
			gets++
			if gets == 1 {
				return cachedFeature(id, domain.Tags{"x": "1", "y": "2"}), nil
			}
			return cachedFeature(id, domain.Tags{"x": "2", "server": "yes"}), nil
		},
		updateTags: func(_ context.Context, _ uuid.UUID, _ domain.TagMutation) (domain.Feature, error) {
			var err error
			inFlight, err = c.Feature(ctx, id)
			require.NoError(t, err)
			return cachedFeature(id, domain.Tags{"x": "2"}), nil
		},
		list: func(_ context.Context, _ client.ListParams) (domain.FeaturePage, error) {
			return domain.FeaturePage{}, nil
		},
	}
	c = client.NewFeatureCache(api)
	_, err := c.Feature(ctx, id)
	require.NoError(t, err)

	updated, err := c.UpdateTags(ctx, id, domain.TagMutation{Set: domain.Tags{"x": "2"}, Delete: []string{"y"}})
	require.NoError(t, err)

	assert.Equal(t, domain.Tags{"x": "2"}, inFlight.Tags)
	assert.Equal(t, domain.Tags{"x": "2"}, updated.Tags)

	after, err := c.Feature(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.Tags{"x": "2", "server": "yes"}, after.Tags)
	assert.Equal(t, 2, gets)
}

// TestFeatureCache_UpdateTags_rollbackOnFailure verifies that a failed
// mutation restores the snapshot when the refetch also fails.
func TestFeatureCache_UpdateTags_rollbackOnFailure(t *testing.T) {
	id := uuid.New()
	ctx := context.Background()
	var gets int
	api := &mockFeatureAPI{
		get: func(_ context.Context, _ uuid.UUID) (domain.Feature, error) {
			gets++
			if gets == 1 {
				return cachedFeature(id, domain.Tags{"x": "1"}), nil
			}
			return domain.Feature{}, errors.New("network down")
		},
		updateTags: func(_ context.Context, _ uuid.UUID, _ domain.TagMutation) (domain.Feature, error) {
			return domain.Feature{}, &client.APIError{Status: 500, Message: "boom"}
		},
	}
	c := client.NewFeatureCache(api)
	_, err := c.Feature(ctx, id)
	require.NoError(t, err)

	_, err = c.UpdateTags(ctx, id, domain.TagMutation{Set: domain.Tags{"x": "9"}})
	require.Error(t, err)

	f, err := c.Feature(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, domain.Tags{"x": "1"}, f.Tags)
}

// ---- tag editor ------------------------------------------------------------

func TestFeatureCache_EditTags_noChanges(t *testing.T) {
	id := uuid.New()
	api := &mockFeatureAPI{
		get: func(_ context.Context, _ uuid.UUID) (domain.Feature, error) {
			return cachedFeature(id, domain.Tags{"name": "Main"}), nil
		},
	}
	c := client.NewFeatureCache(api)

	_, err := c.EditTags(context.Background(), id, []tags.Row{{Key: " name ", Value: "Main"}})

	var ve *domain.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, tags.MsgNoChanges, ve.Message)
}

func TestFeatureCache_EditTags_sendsDiff(t *testing.T) {
	id := uuid.New()
	var got domain.TagMutation
	api := &mockFeatureAPI{
		get: func(_ context.Context, _ uuid.UUID) (domain.Feature, error) {
			return cachedFeature(id, domain.Tags{"name": "Main", "old": "x"}), nil
		},
		updateTags: func(_ context.Context, _ uuid.UUID, m domain.TagMutation) (domain.Feature, error) {
			got = m
			return cachedFeature(id, m.Apply(domain.Tags{"name": "Main", "old": "x"})), nil
		},
		list: func(_ context.Context, _ client.ListParams) (domain.FeaturePage, error) {
			return domain.FeaturePage{}, nil
		},
	}
	c := client.NewFeatureCache(api)

	f, err := c.EditTags(context.Background(), id, []tags.Row{
		{Key: "name", Value: "Main"},
		{Key: "lanes", Value: "2"},
	})

	require.NoError(t, err)
	assert.Equal(t, domain.Tags{"lanes": "2"}, got.Set)
	assert.Equal(t, []string{"old"}, got.Delete)
	assert.Equal(t, domain.Tags{"name": "Main", "lanes": "2"}, f.Tags)
}

func TestFeatureCache_EditTags_invalidRows(t *testing.T) {
	c := client.NewFeatureCache(&mockFeatureAPI{})

	_, err := c.EditTags(context.Background(), uuid.New(), []tags.Row{
		{Key: "name", Value: "a"},
		{Key: "NAME", Value: "b"},
	})

	require.ErrorIs(t, err, domain.ErrValidation)
}
