// Package geometry validates GeoJSON geometries against feature kinds and
// derives lanelet boundary lines from a drawn centerline.
package geometry

import (
	"bytes"
	"errors"
	"fmt"
	"math"

	"github.com/goccy/go-json"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mcraigtyler/map-editor/internal/domain"
)

const (
	msgNotGeometry  = "geometry must be a GeoJSON geometry object"
	msgUnsupported  = "geometry type is not supported"
	msgCoordinates  = "geometry coordinates are invalid"
	msgIncompatible = "geometry type is incompatible with feature kind"
	msgLaneletLines = "lanelet geometry must contain exactly 3 lines"
)

// rawGeometry is the shape every GeoJSON geometry object shares.
type rawGeometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates"`
	Geometries  json.RawMessage `json:"geometries"`
}

// Validate decodes raw as a GeoJSON geometry and checks it is allowed for kind.
// Every failure is a *domain.ValidationError.
func Validate(raw []byte, kind domain.Kind) (orb.Geometry, error) {
	g, err := Parse(raw)
	if err != nil {
		return nil, err
	}
	if err := ValidateShape(g, kind); err != nil {
		return nil, err
	}
	return g, nil
}

// Parse decodes raw into one of the six supported orb geometry types.
// GeometryCollection and unknown types are rejected.
func Parse(raw []byte) (orb.Geometry, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return nil, domain.NewValidationError(msgNotGeometry, nil)
	}

	var rg rawGeometry
	if err := json.Unmarshal(trimmed, &rg); err != nil {
		return nil, domain.NewValidationError(msgNotGeometry, map[string]any{"reason": err.Error()})
	}

	switch rg.Type {
	case domain.TypePoint, domain.TypeMultiPoint, domain.TypeLineString,
		domain.TypeMultiLineString, domain.TypePolygon, domain.TypeMultiPolygon:
	case "":
		return nil, domain.NewValidationError(msgNotGeometry, nil)
	default:
		return nil, domain.NewValidationError(msgUnsupported, map[string]any{"geometryType": rg.Type})
	}

	if len(rg.Coordinates) == 0 {
		return nil, coordinatesError(rg.Type, errors.New("coordinates are missing"))
	}

	g, err := decodeCoordinates(rg.Type, rg.Coordinates)
	if err != nil {
		return nil, coordinatesError(rg.Type, err)
	}
	return g, nil
}

// ValidateShape applies the structural and kind rules to an already built geometry.
func ValidateShape(g orb.Geometry, kind domain.Kind) error {
	if g == nil {
		return domain.NewValidationError(msgNotGeometry, nil)
	}
	geometryType := g.GeoJSONType()
	if _, ok := g.(orb.Collection); ok {
		return domain.NewValidationError(msgUnsupported, map[string]any{"geometryType": geometryType})
	}
	if _, ok := g.(orb.Bound); ok {
		return domain.NewValidationError(msgUnsupported, map[string]any{"geometryType": "Bound"})
	}
	if _, ok := g.(orb.Ring); ok {
		return domain.NewValidationError(msgUnsupported, map[string]any{"geometryType": "Ring"})
	}
	if err := checkStructure(g); err != nil {
		return coordinatesError(geometryType, err)
	}
	if !kind.Accepts(geometryType) {
		return domain.NewValidationError(msgIncompatible, map[string]any{
			"kind":         string(kind),
			"geometryType": geometryType,
		})
	}
	if kind == domain.KindLanelet {
		if n := len(g.(orb.MultiLineString)); n != domain.LaneletLineCount {
			return domain.NewValidationError(msgLaneletLines, map[string]any{
				"kind":      string(kind),
				"lineCount": n,
			})
		}
	}
	return nil
}

// Decode turns a stored geometry value into an orb geometry. The store may
// hand back GeoJSON text, raw bytes, or an already decoded object.
func Decode(v any) (orb.Geometry, error) {
	switch t := v.(type) {
	case nil:
		return nil, errors.New("geometry is null")
	case string:
		return Parse([]byte(t))
	case []byte:
		return Parse(t)
	case json.RawMessage:
		return Parse(t)
	case map[string]any:
		b, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("re-encode geometry object: %w", err)
		}
		return Parse(b)
	case orb.Geometry:
		if err := checkStructure(t); err != nil {
			return nil, err
		}
		return t, nil
	default:
		return nil, fmt.Errorf("unsupported stored geometry type %T", v)
	}
}

// Marshal encodes g as a GeoJSON geometry object.
func Marshal(g orb.Geometry) ([]byte, error) {
	return geojson.NewGeometry(g).MarshalJSON()
}

func coordinatesError(geometryType string, err error) error {
	return domain.NewValidationError(msgCoordinates, map[string]any{
		"geometryType": geometryType,
		"reason":       err.Error(),
	})
}

func decodeCoordinates(geometryType string, raw json.RawMessage) (orb.Geometry, error) {
	switch geometryType {
	case domain.TypePoint:
		var c []float64
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		return toPoint(c)
	case domain.TypeMultiPoint:
		var c [][]float64
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		mp := make(orb.MultiPoint, 0, len(c))
		for _, pos := range c {
			p, err := toPoint(pos)
			if err != nil {
				return nil, err
			}
			mp = append(mp, p)
		}
		return mp, nil
	case domain.TypeLineString:
		var c [][]float64
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		return toLineString(c)
	case domain.TypeMultiLineString:
		var c [][][]float64
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		mls := make(orb.MultiLineString, 0, len(c))
		for _, line := range c {
			ls, err := toLineString(line)
			if err != nil {
				return nil, err
			}
			mls = append(mls, ls)
		}
		return mls, nil
	case domain.TypePolygon:
		var c [][][]float64
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		return toPolygon(c)
	case domain.TypeMultiPolygon:
		var c [][][][]float64
		if err := json.Unmarshal(raw, &c); err != nil {
			return nil, err
		}
		mp := make(orb.MultiPolygon, 0, len(c))
		for _, poly := range c {
			p, err := toPolygon(poly)
			if err != nil {
				return nil, err
			}
			mp = append(mp, p)
		}
		return mp, nil
	}
	return nil, fmt.Errorf("unexpected geometry type %q", geometryType)
}

// toPoint keeps the first two ordinates; altitude and beyond are dropped.
func toPoint(pos []float64) (orb.Point, error) {
	if len(pos) < 2 {
		return orb.Point{}, fmt.Errorf("position needs at least 2 numbers, got %d", len(pos))
	}
	p := orb.Point{pos[0], pos[1]}
	if !finitePoint(p) {
		return orb.Point{}, errors.New("position contains a non-finite number")
	}
	return p, nil
}

func toLineString(c [][]float64) (orb.LineString, error) {
	if len(c) < 2 {
		return nil, fmt.Errorf("line string needs at least 2 positions, got %d", len(c))
	}
	ls := make(orb.LineString, 0, len(c))
	for _, pos := range c {
		p, err := toPoint(pos)
		if err != nil {
			return nil, err
		}
		ls = append(ls, p)
	}
	return ls, nil
}

func toPolygon(c [][][]float64) (orb.Polygon, error) {
	if len(c) == 0 {
		return nil, errors.New("polygon needs at least one ring")
	}
	poly := make(orb.Polygon, 0, len(c))
	for _, ring := range c {
		if len(ring) < 4 {
			return nil, fmt.Errorf("polygon ring needs at least 4 positions, got %d", len(ring))
		}
		r := make(orb.Ring, 0, len(ring))
		for _, pos := range ring {
			p, err := toPoint(pos)
			if err != nil {
				return nil, err
			}
			r = append(r, p)
		}
		poly = append(poly, r)
	}
	return poly, nil
}

// checkStructure mirrors the decode rules for geometries built in code.
func checkStructure(g orb.Geometry) error {
	switch t := g.(type) {
	case orb.Point:
		return checkPoints(t)
	case orb.MultiPoint:
		return checkPoints(t...)
	case orb.LineString:
		return checkLine(t)
	case orb.MultiLineString:
		if len(t) == 0 {
			return errors.New("multi line string has no lines")
		}
		for _, ls := range t {
			if err := checkLine(ls); err != nil {
				return err
			}
		}
		return nil
	case orb.Polygon:
		return checkPolygon(t)
	case orb.MultiPolygon:
		if len(t) == 0 {
			return errors.New("multi polygon has no polygons")
		}
		for _, p := range t {
			if err := checkPolygon(p); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("unsupported geometry %s", g.GeoJSONType())
}

func checkPoints(pts ...orb.Point) error {
	for _, p := range pts {
		if !finitePoint(p) {
			return errors.New("position contains a non-finite number")
		}
	}
	return nil
}

func checkLine(ls orb.LineString) error {
	if len(ls) < 2 {
		return fmt.Errorf("line string needs at least 2 positions, got %d", len(ls))
	}
	return checkPoints(ls...)
}

func checkPolygon(p orb.Polygon) error {
	if len(p) == 0 {
		return errors.New("polygon needs at least one ring")
	}
	for _, r := range p {
		if len(r) < 4 {
			return fmt.Errorf("polygon ring needs at least 4 positions, got %d", len(r))
		}
		if err := checkPoints(r...); err != nil {
			return err
		}
	}
	return nil
}

func finitePoint(p orb.Point) bool {
	return finite(p[0]) && finite(p[1])
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}
