// Package client is the Go client of the map editor REST API. It is the
// transport used by the drawing controller and by any UI shell embedding it.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"
	"github.com/sony/gobreaker/v2"

	"github.com/mcraigtyler/map-editor/internal/api"
	"github.com/mcraigtyler/map-editor/internal/domain"
	"github.com/mcraigtyler/map-editor/internal/geometry"
)

// ErrUnavailable is returned while the circuit breaker rejects requests.
var ErrUnavailable = errors.New("map editor API unavailable")

// APIError is a non-2xx response from the API.
type APIError struct {
	Status  int
	Message string
	Details any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d: %s", e.Status, e.Message)
}

// ListParams are the optional listing filters.
type ListParams struct {
	BBox   []float64
	Limit  *int
	Offset *int
}

type response struct {
	status int
	body   []byte
}

// Client talks to the REST API. It is safe for concurrent use.
type Client struct {
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker[response]
	log     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithLogger sets the logger used for breaker state transitions.
func WithLogger(log *slog.Logger) Option {
	return func(c *Client) { c.log = log }
}

// New returns a Client for the API rooted at baseURL.
//
// Requests pass through a circuit breaker that opens after 5 consecutive
// failures and probes again after 30 seconds. Only transport errors and 5xx
// responses count as failures; a 4xx is the caller's problem.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
		log:     slog.Default(),
	}
	for _, o := range opts {
		o(c)
	}

	c.cb = gobreaker.NewCircuitBreaker[response](gobreaker.Settings{
		Name:        "map-editor-api",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		IsSuccessful: func(err error) bool {
			var apiErr *APIError
			if errors.As(err, &apiErr) {
				return apiErr.Status < http.StatusInternalServerError
			}
			return err == nil
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			c.log.Warn("circuit breaker state change", "breaker", name, "from", from.String(), "to", to.String())
		},
	})
	return c
}

// ListFeatures calls GET /features.
func (c *Client) ListFeatures(ctx context.Context, p ListParams) (domain.FeaturePage, error) {
	q := url.Values{}
	if len(p.BBox) > 0 {
		parts := make([]string, len(p.BBox))
		for i, v := range p.BBox {
			parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
		}
		q.Set("bbox", strings.Join(parts, ","))
	}
	if p.Limit != nil {
		q.Set("limit", strconv.Itoa(*p.Limit))
	}
	if p.Offset != nil {
		q.Set("offset", strconv.Itoa(*p.Offset))
	}

	path := "/features"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out api.FeatureCollection
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return domain.FeaturePage{}, fmt.Errorf("client.ListFeatures: %w", err)
	}
	return out.ToDomain(), nil
}

// GetFeature calls GET /features/{id}.
func (c *Client) GetFeature(ctx context.Context, id uuid.UUID) (domain.Feature, error) {
	var out api.Feature
	if err := c.do(ctx, http.MethodGet, "/features/"+id.String(), nil, &out); err != nil {
		return domain.Feature{}, fmt.Errorf("client.GetFeature: %w", err)
	}
	return out.ToDomain(), nil
}

// CreateFeature calls POST /features. The draft is checked locally first so
// an obviously invalid geometry never leaves the process.
func (c *Client) CreateFeature(ctx context.Context, d domain.FeatureDraft) (domain.Feature, error) {
	payload, err := draftPayload(d)
	if err != nil {
		return domain.Feature{}, fmt.Errorf("client.CreateFeature: %w", err)
	}
	var out api.Feature
	if err := c.do(ctx, http.MethodPost, "/features", payload, &out); err != nil {
		return domain.Feature{}, fmt.Errorf("client.CreateFeature: %w", err)
	}
	return out.ToDomain(), nil
}

// UpdateFeature calls PUT /features/{id}.
func (c *Client) UpdateFeature(ctx context.Context, id uuid.UUID, d domain.FeatureDraft) (domain.Feature, error) {
	payload, err := draftPayload(d)
	if err != nil {
		return domain.Feature{}, fmt.Errorf("client.UpdateFeature: %w", err)
	}
	var out api.Feature
	if err := c.do(ctx, http.MethodPut, "/features/"+id.String(), payload, &out); err != nil {
		return domain.Feature{}, fmt.Errorf("client.UpdateFeature: %w", err)
	}
	return out.ToDomain(), nil
}

// UpdateFeatureTags calls PATCH /features/{id}/tags.
func (c *Client) UpdateFeatureTags(ctx context.Context, id uuid.UUID, m domain.TagMutation) (domain.Feature, error) {
	payload := api.TagMutationPayload{Set: m.Set, Delete: m.Delete}
	var out api.Feature
	if err := c.do(ctx, http.MethodPatch, "/features/"+id.String()+"/tags", payload, &out); err != nil {
		return domain.Feature{}, fmt.Errorf("client.UpdateFeatureTags: %w", err)
	}
	return out.ToDomain(), nil
}

// DeleteFeature calls DELETE /features/{id}.
func (c *Client) DeleteFeature(ctx context.Context, id uuid.UUID) error {
	if err := c.do(ctx, http.MethodDelete, "/features/"+id.String(), nil, nil); err != nil {
		return fmt.Errorf("client.DeleteFeature: %w", err)
	}
	return nil
}

func draftPayload(d domain.FeatureDraft) (api.FeaturePayload, error) {
	if err := geometry.ValidateShape(d.Geometry, d.Kind); err != nil {
		return api.FeaturePayload{}, err
	}
	t := d.Tags
	if t == nil {
		t = domain.Tags{}
	}
	return api.FeaturePayload{
		Kind:     string(d.Kind),
		Geometry: geojson.NewGeometry(d.Geometry),
		Tags:     t,
	}, nil
}

// do sends one request through the breaker and decodes a 2xx body into out.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = b
	}

	res, err := c.cb.Execute(func() (response, error) {
		return c.send(ctx, method, path, body)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err != nil {
		return err
	}

	if out == nil || len(res.body) == 0 {
		return nil
	}
	if err := json.Unmarshal(res.body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, method, path string, body []byte) (response, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return response{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return response{}, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return response{}, fmt.Errorf("read response: %w", err)
	}
	res := response{status: resp.StatusCode, body: raw}
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return res, nil
	}
	return res, apiError(resp.StatusCode, resp.Header.Get("Content-Type"), raw)
}

// apiError builds an APIError, taking the message from a JSON body when
// there is one.
func apiError(status int, contentType string, raw []byte) *APIError {
	e := &APIError{Status: status, Message: fmt.Sprintf("Request failed with status %d", status)}
	if len(raw) == 0 {
		return e
	}
	if !strings.Contains(contentType, "application/json") {
		e.Details = string(raw)
		return e
	}
	var body api.ErrorResponse
	if err := json.Unmarshal(raw, &body); err != nil {
		e.Details = string(raw)
		return e
	}
	if body.Message != "" {
		e.Message = body.Message
	}
	e.Details = body.Details
	return e
}
