// Package drawing holds the editor's drawing and editing state and the
// controller that turns map drawing tool events into feature mutations.
package drawing

import (
	"errors"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/paulmach/orb"

	"github.com/mcraigtyler/map-editor/internal/domain"
	"github.com/mcraigtyler/map-editor/internal/geometry"
)

// Mode is the top-level editor state.
type Mode string

const (
	ModeIdle      Mode = "idle"
	ModeDrawing   Mode = "drawing"
	ModeEditing   Mode = "editing"
	ModeSelecting Mode = "selecting"
)

// Intents are the feature kinds that can be drawn. Roads are created by
// other means.
var Intents = []domain.Kind{domain.KindPoint, domain.KindLine, domain.KindPolygon, domain.KindLanelet}

// ErrInvalidIntent is returned when drawing is started for a kind that
// cannot be drawn.
var ErrInvalidIntent = errors.New("drawing: kind cannot be drawn")

// EditingSession is the feature being reshaped. OriginalGeometry is kept so
// the edit can be saved unchanged when no draft was produced.
type EditingSession struct {
	FeatureID        uuid.UUID
	Kind             domain.Kind
	Tags             domain.Tags
	OriginalGeometry orb.Geometry
	DraftGeometry    orb.Geometry
}

func (s *EditingSession) clone() *EditingSession {
	if s == nil {
		return nil
	}
	out := *s
	out.Tags = s.Tags.Clone()
	out.OriginalGeometry = cloneGeometry(s.OriginalGeometry)
	out.DraftGeometry = cloneGeometry(s.DraftGeometry)
	return &out
}

// State is a snapshot of the store. Intent is empty unless Mode is
// ModeDrawing; Editing is nil unless Mode is ModeEditing.
type State struct {
	Mode          Mode
	Intent        domain.Kind
	Editing       *EditingSession
	IsSaving      bool
	Error         string
	LaneletOffset float64
}

func (s State) clone() State {
	s.Editing = s.Editing.clone()
	return s
}

// Store is the drawing state machine. It is safe for concurrent use so that
// goroutines settling API calls can transition it. Subscribers are called
// after the lock is released.
type Store struct {
	mu     sync.Mutex
	state  State
	nextID int
	subs   map[int]func(State)
}

// NewStore returns a store in the idle state with the default lanelet offset.
func NewStore() *Store {
	return &Store{
		state: State{Mode: ModeIdle, LaneletOffset: geometry.DefaultOffset},
		subs:  make(map[int]func(State)),
	}
}

// State returns a snapshot of the current state.
func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Subscribe registers fn to receive a snapshot after every change and
// returns a function that removes it.
func (s *Store) Subscribe(fn func(State)) (unsubscribe func()) {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		s.mu.Unlock()
	}
}

// update applies fn under the lock. fn reports whether it changed anything;
// only then are subscribers notified.
func (s *Store) update(fn func(st *State) bool) {
	s.mu.Lock()
	if !fn(&s.state) {
		s.mu.Unlock()
		return
	}
	snap := s.state.clone()
	subs := make([]func(State), 0, len(s.subs))
	for _, f := range s.subs {
		subs = append(subs, f)
	}
	s.mu.Unlock()

	for _, f := range subs {
		f(snap)
	}
}

// StartDrawing enters drawing mode for intent, discarding any edit and error.
// Entering lanelet drawing resets the offset to its default.
func (s *Store) StartDrawing(intent domain.Kind) error {
	if !slices.Contains(Intents, intent) {
		return ErrInvalidIntent
	}
	s.update(func(st *State) bool {
		offset := st.LaneletOffset
		if intent == domain.KindLanelet {
			offset = geometry.DefaultOffset
		}
		*st = State{Mode: ModeDrawing, Intent: intent, LaneletOffset: offset}
		return true
	})
	return nil
}

// StartSelecting enters selecting mode, or returns to idle when already selecting.
func (s *Store) StartSelecting() {
	s.update(func(st *State) bool {
		mode := ModeSelecting
		if st.Mode == ModeSelecting {
			mode = ModeIdle
		}
		*st = State{Mode: mode, LaneletOffset: st.LaneletOffset}
		return true
	})
}

// StartEditing opens an editing session on f. The draft starts as a copy of
// the current geometry.
func (s *Store) StartEditing(f domain.Feature) {
	s.update(func(st *State) bool {
		*st = State{
			Mode: ModeEditing,
			Editing: &EditingSession{
				FeatureID:        f.ID,
				Kind:             f.Kind,
				Tags:             f.Tags.Clone(),
				OriginalGeometry: cloneGeometry(f.Geometry),
				DraftGeometry:    cloneGeometry(f.Geometry),
			},
			LaneletOffset: st.LaneletOffset,
		}
		return true
	})
}

// SetDraft replaces the draft geometry of the editing session. It does
// nothing outside editing mode.
func (s *Store) SetDraft(g orb.Geometry) {
	s.update(func(st *State) bool {
		if st.Mode != ModeEditing || st.Editing == nil {
			return false
		}
		st.Editing.DraftGeometry = cloneGeometry(g)
		return true
	})
}

// MarkSaving flags a request in flight and clears the error.
func (s *Store) MarkSaving() {
	s.update(func(st *State) bool {
		st.IsSaving = true
		st.Error = ""
		return true
	})
}

// CompleteDrawing settles a successful create. The mode stays drawing so the
// user can draw the next feature. Outside drawing mode it does nothing.
func (s *Store) CompleteDrawing() {
	s.update(func(st *State) bool {
		if st.Mode != ModeDrawing {
			return false
		}
		st.IsSaving = false
		st.Error = ""
		return true
	})
}

// Fail records message and clears the saving flag.
func (s *Store) Fail(message string) {
	s.update(func(st *State) bool {
		st.IsSaving = false
		st.Error = message
		return true
	})
}

// ClearError drops the current error.
func (s *Store) ClearError() {
	s.update(func(st *State) bool {
		if st.Error == "" {
			return false
		}
		st.Error = ""
		return true
	})
}

// Reset returns to idle and restores the default lanelet offset.
func (s *Store) Reset() {
	s.update(func(st *State) bool {
		*st = State{Mode: ModeIdle, LaneletOffset: geometry.DefaultOffset}
		return true
	})
}

// SetLaneletOffset sets the lanelet half-width, clamped into range.
func (s *Store) SetLaneletOffset(v float64) {
	s.setOffset(geometry.ClampOffset(v))
}

// AdjustLaneletOffset moves the lanelet half-width by delta, clamped into
// range. Subscribers are not notified when the clamped value is unchanged.
func (s *Store) AdjustLaneletOffset(delta float64) {
	s.update(func(st *State) bool {
		next := geometry.ClampOffset(st.LaneletOffset + delta)
		if next == st.LaneletOffset {
			return false
		}
		st.LaneletOffset = next
		return true
	})
}

func (s *Store) setOffset(v float64) {
	s.update(func(st *State) bool {
		if v == st.LaneletOffset {
			return false
		}
		st.LaneletOffset = v
		return true
	})
}

func cloneGeometry(g orb.Geometry) orb.Geometry {
	if g == nil {
		return nil
	}
	return orb.Clone(g)
}
