// Package domain contains the core types of the map editor.
// It has no knowledge of HTTP or SQL; geometries are modelled with orb.
package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
)

// Kind is the semantic category of a feature. It decides which geometry
// types the feature may carry.
type Kind string

const (
	KindPoint   Kind = "point"
	KindLine    Kind = "line"
	KindPolygon Kind = "polygon"
	KindRoad    Kind = "road"
	KindLanelet Kind = "lanelet"
)

// Kinds lists every accepted feature kind in declaration order.
var Kinds = []Kind{KindPoint, KindLine, KindPolygon, KindRoad, KindLanelet}

// GeoJSON geometry type names.
const (
	TypePoint              = "Point"
	TypeMultiPoint         = "MultiPoint"
	TypeLineString         = "LineString"
	TypeMultiLineString    = "MultiLineString"
	TypePolygon            = "Polygon"
	TypeMultiPolygon       = "MultiPolygon"
	TypeGeometryCollection = "GeometryCollection"
)

// LaneletLineCount is the number of component lines of a lanelet: left, center, right.
const LaneletLineCount = 3

var geometryByKind = map[Kind][]string{
	KindPoint:   {TypePoint, TypeMultiPoint},
	KindLine:    {TypeLineString, TypeMultiLineString},
	KindPolygon: {TypePolygon, TypeMultiPolygon},
	KindRoad:    {TypeLineString, TypeMultiLineString},
	KindLanelet: {TypeMultiLineString},
}

// Valid reports whether k is one of the known kinds.
func (k Kind) Valid() bool {
	_, ok := geometryByKind[k]
	return ok
}

// AllowedGeometry returns the GeoJSON types a feature of kind k may carry.
func (k Kind) AllowedGeometry() []string {
	return slices.Clone(geometryByKind[k])
}

// Accepts reports whether geometryType is allowed for k.
func (k Kind) Accepts(geometryType string) bool {
	return slices.Contains(geometryByKind[k], geometryType)
}

// Feature is a persisted map feature.
type Feature struct {
	ID        uuid.UUID
	Kind      Kind
	Geometry  orb.Geometry
	Tags      Tags
	CreatedAt time.Time
	UpdatedAt time.Time
}

// FeatureDraft is the client-side payload for creating or replacing a feature.
type FeatureDraft struct {
	Kind     Kind
	Geometry orb.Geometry
	Tags     Tags
}

// FeatureWrite is what the service hands to the store: a validated kind,
// the geometry serialized as GeoJSON text, and normalized tags.
type FeatureWrite struct {
	Kind     Kind
	Geometry string
	Tags     Tags
}

// FeatureRecord is a row as the store returns it. Geometry and Tags are
// left untyped because drivers hand back either serialized text or a
// decoded object; the service owns the decoding.
type FeatureRecord struct {
	ID        uuid.UUID
	Kind      string
	Geometry  any
	Tags      any
	CreatedAt time.Time
	UpdatedAt time.Time
}
