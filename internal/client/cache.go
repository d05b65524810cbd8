package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/mcraigtyler/map-editor/internal/domain"
	"github.com/mcraigtyler/map-editor/internal/tags"
)

// FeatureAPI is the subset of Client the cache needs.
type FeatureAPI interface {
	ListFeatures(ctx context.Context, p ListParams) (domain.FeaturePage, error)
	GetFeature(ctx context.Context, id uuid.UUID) (domain.Feature, error)
	CreateFeature(ctx context.Context, d domain.FeatureDraft) (domain.Feature, error)
	UpdateFeature(ctx context.Context, id uuid.UUID, d domain.FeatureDraft) (domain.Feature, error)
	UpdateFeatureTags(ctx context.Context, id uuid.UUID, m domain.TagMutation) (domain.Feature, error)
	DeleteFeature(ctx context.Context, id uuid.UUID) error
}

var _ FeatureAPI = (*Client)(nil)

// FeatureCache keeps the last fetched feature details and listing pages so a
// UI can render without a round trip, and invalidates them after mutations.
type FeatureCache struct {
	api FeatureAPI
	now func() time.Time

	mu      sync.Mutex
	details map[uuid.UUID]domain.Feature
	lists   map[string]domain.FeaturePage
}

// NewFeatureCache wraps api with a cache.
func NewFeatureCache(api FeatureAPI) *FeatureCache {
	return &FeatureCache{
		api:     api,
		now:     time.Now,
		details: make(map[uuid.UUID]domain.Feature),
		lists:   make(map[string]domain.FeaturePage),
	}
}

// Feature returns the cached detail for id, fetching it on a miss.
func (c *FeatureCache) Feature(ctx context.Context, id uuid.UUID) (domain.Feature, error) {
	c.mu.Lock()
	f, ok := c.details[id]
	c.mu.Unlock()
	if ok {
		return cloneFeature(f), nil
	}

	f, err := c.api.GetFeature(ctx, id)
	if err != nil {
		return domain.Feature{}, err
	}
	c.mu.Lock()
	c.details[id] = f
	c.mu.Unlock()
	return cloneFeature(f), nil
}

// List returns the cached page for p, fetching it on a miss.
func (c *FeatureCache) List(ctx context.Context, p ListParams) (domain.FeaturePage, error) {
	key := listKey(p)
	c.mu.Lock()
	page, ok := c.lists[key]
	c.mu.Unlock()
	if ok {
		return page, nil
	}

	page, err := c.api.ListFeatures(ctx, p)
	if err != nil {
		return domain.FeaturePage{}, err
	}
	c.mu.Lock()
	c.lists[key] = page
	c.mu.Unlock()
	return page, nil
}

// CreateFeature creates a feature and invalidates every listing.
func (c *FeatureCache) CreateFeature(ctx context.Context, d domain.FeatureDraft) (domain.Feature, error) {
	f, err := c.api.CreateFeature(ctx, d)
	if err != nil {
		return domain.Feature{}, err
	}
	c.InvalidateList()
	c.Invalidate(f.ID)
	return f, nil
}

// UpdateFeature replaces a feature and invalidates its detail and every listing.
func (c *FeatureCache) UpdateFeature(ctx context.Context, id uuid.UUID, d domain.FeatureDraft) (domain.Feature, error) {
	f, err := c.api.UpdateFeature(ctx, id, d)
	if err != nil {
		return domain.Feature{}, err
	}
	c.InvalidateList()
	c.Invalidate(id)
	return f, nil
}

// DeleteFeature deletes a feature and drops it from the cache.
func (c *FeatureCache) DeleteFeature(ctx context.Context, id uuid.UUID) error {
	if err := c.api.DeleteFeature(ctx, id); err != nil {
		return err
	}
	c.InvalidateList()
	c.Invalidate(id)
	return nil
}

// UpdateTags applies m optimistically.
//
// The cached detail (if any) is snapshotted and replaced by a speculative
// copy with m applied. Once the server answers, a failure restores the
// snapshot. In both cases listings are invalidated and the detail is
// re-fetched so the cache converges on the server state.
func (c *FeatureCache) UpdateTags(ctx context.Context, id uuid.UUID, m domain.TagMutation) (domain.Feature, error) {
	c.mu.Lock()
	snapshot, cached := c.details[id]
	if cached {
		optimistic := cloneFeature(snapshot)
		optimistic.Tags = m.Apply(snapshot.Tags)
		optimistic.UpdatedAt = c.now()
		c.details[id] = optimistic
	}
	c.mu.Unlock()

	updated, err := c.api.UpdateFeatureTags(ctx, id, m)

	c.mu.Lock()
	switch {
	case err != nil && cached:
		c.details[id] = snapshot
	case err == nil:
		c.details[id] = updated
	}
	c.mu.Unlock()

	c.reconcile(ctx, id)

	if err != nil {
		return domain.Feature{}, err
	}
	return updated, nil
}

// EditTags turns the rows of a tag editor into a mutation and applies it.
// Rows are validated first. When the rows match the current tags nothing is
// sent and a validation error carrying tags.MsgNoChanges is returned.
func (c *FeatureCache) EditTags(ctx context.Context, id uuid.UUID, rows []tags.Row) (domain.Feature, error) {
	next, err := tags.ValidateRows(rows)
	if err != nil {
		return domain.Feature{}, err
	}
	current, err := c.Feature(ctx, id)
	if err != nil {
		return domain.Feature{}, fmt.Errorf("client.FeatureCache.EditTags: %w", err)
	}
	m := tags.Diff(current.Tags, next)
	if m.IsEmpty() {
		return domain.Feature{}, &domain.ValidationError{Message: tags.MsgNoChanges}
	}
	return c.UpdateTags(ctx, id, m)
}

// Invalidate drops the cached detail for id.
func (c *FeatureCache) Invalidate(id uuid.UUID) {
	c.mu.Lock()
	delete(c.details, id)
	c.mu.Unlock()
}

// InvalidateList drops every cached listing.
func (c *FeatureCache) InvalidateList() {
	c.mu.Lock()
	clear(c.lists)
	c.mu.Unlock()
}

func (c *FeatureCache) reconcile(ctx context.Context, id uuid.UUID) {
	c.InvalidateList()
	fresh, err := c.api.GetFeature(ctx, id)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			c.Invalidate(id)
		}
		return
	}
	c.mu.Lock()
	c.details[id] = fresh
	c.mu.Unlock()
}

func listKey(p ListParams) string {
	key := fmt.Sprint(p.BBox)
	if p.Limit != nil {
		key += fmt.Sprintf("|l=%d", *p.Limit)
	}
	if p.Offset != nil {
		key += fmt.Sprintf("|o=%d", *p.Offset)
	}
	return key
}

func cloneFeature(f domain.Feature) domain.Feature {
	f.Tags = f.Tags.Clone()
	if f.Geometry != nil {
		f.Geometry = orb.Clone(f.Geometry)
	}
	return f
}
