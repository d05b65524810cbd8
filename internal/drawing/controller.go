package drawing

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mcraigtyler/map-editor/internal/client"
	"github.com/mcraigtyler/map-editor/internal/domain"
	"github.com/mcraigtyler/map-editor/internal/geometry"
)

// ToolMode is a mode of the map drawing tool.
type ToolMode string

const (
	ToolSimpleSelect   ToolMode = "simple_select"
	ToolDirectSelect   ToolMode = "direct_select"
	ToolDrawPoint      ToolMode = "draw_point"
	ToolDrawLineString ToolMode = "draw_line_string"
	ToolDrawPolygon    ToolMode = "draw_polygon"
)

// User-facing messages.
const (
	MsgLaneletFailed = "Unable to generate lanelet geometry. Try drawing a longer centerline."
	MsgCreateFailed  = "Failed to create feature."
	MsgUpdateFailed  = "Failed to update feature geometry."
)

// ErrNotEditing is returned by CommitEdit when no session is open.
var ErrNotEditing = errors.New("drawing: no feature is being edited")

// ModeForIntent returns the tool mode used to draw intent. Lanelets are
// drawn as their centerline.
func ModeForIntent(intent domain.Kind) ToolMode {
	switch intent {
	case domain.KindLine, domain.KindLanelet:
		return ToolDrawLineString
	case domain.KindPolygon:
		return ToolDrawPolygon
	default:
		return ToolDrawPoint
	}
}

// Tool is the map drawing toolkit the UI embeds.
type Tool interface {
	// DeleteAll removes every sketch from the tool.
	DeleteAll()
	// Add puts an existing geometry into the tool under id.
	Add(id string, g orb.Geometry)
	// ChangeMode switches the tool. featureID is only used by ToolDirectSelect.
	ChangeMode(mode ToolMode, featureID string)
}

// FeatureWriter persists drawn and edited features. client.FeatureCache
// implements it.
type FeatureWriter interface {
	CreateFeature(ctx context.Context, d domain.FeatureDraft) (domain.Feature, error)
	UpdateFeature(ctx context.Context, id uuid.UUID, d domain.FeatureDraft) (domain.Feature, error)
}

// Controller mediates between the drawing tool, the store and the API.
// Its methods block on the API; the UI calls the create and commit paths
// from a goroutine. It does not guard against calls while IsSaving is set,
// so the UI must disable its triggers.
type Controller struct {
	store  *Store
	tool   Tool
	writer FeatureWriter
	log    *slog.Logger
}

// NewController wires a controller. A nil logger falls back to slog.Default().
func NewController(store *Store, tool Tool, writer FeatureWriter, log *slog.Logger) *Controller {
	if log == nil {
		log = slog.Default()
	}
	return &Controller{store: store, tool: tool, writer: writer, log: log}
}

// Store returns the controller's state store.
func (c *Controller) Store() *Store { return c.store }

// StartDrawing enters drawing mode and arms the tool.
func (c *Controller) StartDrawing(intent domain.Kind) error {
	if err := c.store.StartDrawing(intent); err != nil {
		return err
	}
	c.tool.DeleteAll()
	c.tool.ChangeMode(ModeForIntent(intent), "")
	return nil
}

// StartSelecting toggles selecting mode and clears the tool.
func (c *Controller) StartSelecting() {
	c.store.StartSelecting()
	c.tool.DeleteAll()
	c.tool.ChangeMode(ToolSimpleSelect, "")
}

// HandleCreate handles a sketch completed by the tool. It is ignored unless
// drawing. A lanelet sketch is its centerline and is expanded into three
// lines first; if that fails the sketch is discarded and nothing is sent.
// New features get empty tags. After the request settles the tool is put
// back into the intent's drawing mode.
func (c *Controller) HandleCreate(ctx context.Context, g orb.Geometry) {
	st := c.store.State()
	if st.Mode != ModeDrawing || st.Intent == "" || g == nil {
		return
	}

	if st.Intent == domain.KindLanelet {
		lanelet, err := laneletFromSketch(g, st.LaneletOffset)
		if err != nil {
			c.log.DebugContext(ctx, "lanelet generation failed", "error", err)
			c.store.Fail(MsgLaneletFailed)
			c.tool.DeleteAll()
			return
		}
		g = lanelet
	}

	c.store.MarkSaving()
	c.tool.DeleteAll()

	_, err := c.writer.CreateFeature(ctx, domain.FeatureDraft{
		Kind:     st.Intent,
		Geometry: g,
		Tags:     domain.Tags{},
	})
	if err != nil {
		c.log.WarnContext(ctx, "create feature failed", "kind", st.Intent, "error", err)
		c.store.Fail(userMessage(err, MsgCreateFailed))
	} else {
		c.store.CompleteDrawing()
	}
	c.resumeDrawing()
}

// HandleUpdate records a reshaped geometry as the editing draft.
func (c *Controller) HandleUpdate(g orb.Geometry) {
	if g == nil {
		return
	}
	c.store.SetDraft(g)
}

// HandleSelectionChange keeps the edited feature selected: if the tool drops
// it from the selection it is selected again.
func (c *Controller) HandleSelectionChange(selectedIDs []string) {
	st := c.store.State()
	if st.Mode != ModeEditing || st.Editing == nil {
		return
	}
	id := st.Editing.FeatureID.String()
	for _, sel := range selectedIDs {
		if sel == id {
			return
		}
	}
	c.tool.ChangeMode(ToolDirectSelect, id)
}

// HandleModeChange re-arms the tool when it falls back to simple_select
// while the user is still drawing.
func (c *Controller) HandleModeChange(mode ToolMode) {
	st := c.store.State()
	if st.Mode == ModeDrawing && st.Intent != "" && !st.IsSaving && mode == ToolSimpleSelect {
		c.tool.ChangeMode(ModeForIntent(st.Intent), "")
	}
}

// SelectFeature handles a click on a rendered feature while selecting.
// featureID may be a lanelet segment id ("<id>::left"). On success the
// store is reset and the feature id is returned for navigation.
func (c *Controller) SelectFeature(featureID string) (uuid.UUID, bool) {
	if c.store.State().Mode != ModeSelecting {
		return uuid.Nil, false
	}
	raw, _, _ := strings.Cut(featureID, segmentIDSeparator)
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, false
	}
	c.store.Reset()
	return id, true
}

// StartEditing opens an editing session on f and loads it into the tool.
func (c *Controller) StartEditing(f domain.Feature) {
	c.store.StartEditing(f)
	id := f.ID.String()
	c.tool.DeleteAll()
	c.tool.Add(id, f.Geometry)
	c.tool.ChangeMode(ToolDirectSelect, id)
}

// CommitEdit saves the editing session with the draft geometry, or the
// original when there is no draft. Kind and tags are sent unchanged. On
// success the editor returns to idle; on failure it stays in editing mode
// with the error set.
func (c *Controller) CommitEdit(ctx context.Context) (domain.Feature, error) {
	st := c.store.State()
	if st.Mode != ModeEditing || st.Editing == nil {
		return domain.Feature{}, ErrNotEditing
	}
	session := st.Editing
	g := session.DraftGeometry
	if g == nil {
		g = session.OriginalGeometry
	}

	c.store.MarkSaving()
	f, err := c.writer.UpdateFeature(ctx, session.FeatureID, domain.FeatureDraft{
		Kind:     session.Kind,
		Geometry: g,
		Tags:     session.Tags,
	})
	if err != nil {
		c.log.WarnContext(ctx, "update feature geometry failed", "id", session.FeatureID, "error", err)
		c.store.Fail(userMessage(err, MsgUpdateFailed))
		return domain.Feature{}, err
	}

	c.store.Reset()
	c.tool.DeleteAll()
	c.tool.ChangeMode(ToolSimpleSelect, "")
	return f, nil
}

// Cancel abandons whatever is in progress and returns to idle.
func (c *Controller) Cancel() {
	c.store.Reset()
	c.tool.DeleteAll()
	c.tool.ChangeMode(ToolSimpleSelect, "")
}

// NudgeLaneletOffset widens (steps > 0) or narrows the lanelet by whole
// OffsetSteps. It only applies while drawing a lanelet.
func (c *Controller) NudgeLaneletOffset(steps int) {
	st := c.store.State()
	if st.Mode != ModeDrawing || st.Intent != domain.KindLanelet {
		return
	}
	c.store.AdjustLaneletOffset(float64(steps) * geometry.OffsetStep)
}

// PreviewLanelet returns the three lines a lanelet would have if sketch were
// committed now. The collection is empty unless a lanelet is being drawn and
// sketch is a line the engine can offset.
func (c *Controller) PreviewLanelet(sketch orb.Geometry) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	st := c.store.State()
	if st.Mode != ModeDrawing || st.Intent != domain.KindLanelet {
		return fc
	}
	ls, ok := sketch.(orb.LineString)
	if !ok || len(ls) < 2 {
		return fc
	}
	segs, err := geometry.ComputeLaneletSegments(geometry.Positions(ls), st.LaneletOffset)
	if err != nil {
		return fc
	}
	for i, line := range geometry.LaneletGeometry(segs) {
		role := geometry.LaneletRoles[i]
		f := geojson.NewFeature(line)
		f.ID = "preview-" + role
		f.Properties["laneletRole"] = role
		fc.Append(f)
	}
	return fc
}

func (c *Controller) resumeDrawing() {
	st := c.store.State()
	if st.Mode == ModeDrawing && st.Intent != "" {
		c.tool.ChangeMode(ModeForIntent(st.Intent), "")
	}
}

func laneletFromSketch(g orb.Geometry, offset float64) (orb.MultiLineString, error) {
	ls, ok := g.(orb.LineString)
	if !ok {
		return nil, geometry.ErrCenterlineTooShort
	}
	segs, err := geometry.ComputeLaneletSegments(geometry.Positions(ls), offset)
	if err != nil {
		return nil, err
	}
	return geometry.LaneletGeometry(segs), nil
}

// userMessage picks the text shown to the user: the server's message for
// API errors, the validation message for local rejections, else fallback.
func userMessage(err error, fallback string) string {
	var apiErr *client.APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	var ve *domain.ValidationError
	if errors.As(err, &ve) && ve.Message != "" {
		return ve.Message
	}
	return fallback
}
