package geometry

import (
	"errors"
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"
	"gonum.org/v1/gonum/spatial/r2"

	"github.com/mcraigtyler/map-editor/internal/domain"
)

// Lanelet half-width limits, in meters.
const (
	MinOffset     = 1.5
	MaxOffset     = 10.0
	DefaultOffset = 3.5
	OffsetStep    = 0.5
)

// Lanelet roles by position inside the stored MultiLineString.
const (
	RoleLeft   = "left"
	RoleCenter = "center"
	RoleRight  = "right"
)

// LaneletRoles is the order of component lines in a lanelet geometry.
var LaneletRoles = [domain.LaneletLineCount]string{RoleLeft, RoleCenter, RoleRight}

var (
	ErrOffsetTooSmall     = errors.New("lanelet offset is below the minimum")
	ErrCenterlineTooShort = errors.New("lanelet centerline needs at least 2 valid vertices")
	ErrDegenerateOffset   = errors.New("lanelet offset produced a degenerate line")
	ErrNotLanelet         = errors.New("geometry is not a 3-line lanelet")
)

// maxMercatorLat is where Web Mercator stops being usable.
const maxMercatorLat = 85.05112878

// miterLimit caps how far a joint is pushed out on sharp turns, as a
// multiple of the offset distance.
const miterLimit = 4.0

// LaneletSegments are the three boundary lines of a lanelet.
// Center is the sanitized input; Left and Right have the same vertex count.
type LaneletSegments struct {
	Left   orb.LineString
	Center orb.LineString
	Right  orb.LineString
}

// ClampOffset forces v into [MinOffset, MaxOffset]. NaN becomes DefaultOffset.
func ClampOffset(v float64) float64 {
	if math.IsNaN(v) {
		return DefaultOffset
	}
	return math.Min(MaxOffset, math.Max(MinOffset, v))
}

// SanitizeCenterline drops vertices that are malformed (fewer than two
// ordinates) or not finite.
func SanitizeCenterline(coords [][]float64) orb.LineString {
	out := make(orb.LineString, 0, len(coords))
	for _, c := range coords {
		if len(c) < 2 || !finite(c[0]) || !finite(c[1]) {
			continue
		}
		out = append(out, orb.Point{c[0], c[1]})
	}
	return out
}

// Positions converts a line string to raw coordinate pairs.
func Positions(ls orb.LineString) [][]float64 {
	out := make([][]float64, len(ls))
	for i, p := range ls {
		out[i] = []float64{p[0], p[1]}
	}
	return out
}

// ComputeLaneletSegments offsets the centerline by halfWidth meters on each
// side. Left is the left-hand side in the direction of travel.
//
// Each vertex is moved along the miter of its adjacent segment normals in
// Web Mercator, scaled by sec(lat) so the displacement is halfWidth ground
// meters at that vertex.
func ComputeLaneletSegments(centerline [][]float64, halfWidth float64) (LaneletSegments, error) {
	if math.IsNaN(halfWidth) || halfWidth < MinOffset {
		return LaneletSegments{}, ErrOffsetTooSmall
	}
	center := SanitizeCenterline(centerline)
	if len(center) < 2 {
		return LaneletSegments{}, ErrCenterlineTooShort
	}

	left, err := offsetLine(center, halfWidth)
	if err != nil {
		return LaneletSegments{}, err
	}
	right, err := offsetLine(center, -halfWidth)
	if err != nil {
		return LaneletSegments{}, err
	}
	return LaneletSegments{Left: left, Center: center, Right: right}, nil
}

// LaneletGeometry assembles the segments as [left, center, right].
func LaneletGeometry(s LaneletSegments) orb.MultiLineString {
	return orb.MultiLineString{s.Left, s.Center, s.Right}
}

// SplitLanelet assigns roles to the lines of a stored lanelet by position.
func SplitLanelet(g orb.Geometry) (LaneletSegments, error) {
	mls, ok := g.(orb.MultiLineString)
	if !ok || len(mls) != domain.LaneletLineCount {
		return LaneletSegments{}, ErrNotLanelet
	}
	return LaneletSegments{Left: mls[0], Center: mls[1], Right: mls[2]}, nil
}

func offsetLine(center orb.LineString, distance float64) (orb.LineString, error) {
	n := len(center)
	merc := make([]r2.Vec, n)
	for i, p := range center {
		if math.Abs(p.Lat()) > maxMercatorLat {
			return nil, ErrDegenerateOffset
		}
		m := project.Point(p, project.WGS84.ToMercator)
		merc[i] = r2.Vec{X: m[0], Y: m[1]}
	}

	normals, err := segmentNormals(merc)
	if err != nil {
		return nil, err
	}

	out := make(orb.LineString, n)
	for i := range merc {
		dir, scale := joinDirection(normals, i)
		d := distance * scale / math.Cos(center[i].Lat()*math.Pi/180)
		q := r2.Add(merc[i], r2.Scale(d, dir))
		p := project.Point(orb.Point{q.X, q.Y}, project.Mercator.ToWGS84)
		if !finitePoint(p) {
			return nil, ErrDegenerateOffset
		}
		out[i] = p
	}

	if !hasDistinctPoints(out) {
		return nil, ErrDegenerateOffset
	}
	return out, nil
}

// segmentNormals returns the unit left normal of every segment. Zero-length
// segments borrow the normal of the nearest segment that has length.
func segmentNormals(pts []r2.Vec) ([]r2.Vec, error) {
	normals := make([]r2.Vec, len(pts)-1)
	first := -1
	for i := range normals {
		d := r2.Sub(pts[i+1], pts[i])
		if r2.Norm(d) == 0 {
			continue
		}
		u := r2.Unit(d)
		normals[i] = r2.Vec{X: -u.Y, Y: u.X}
		if first < 0 {
			first = i
		}
	}
	if first < 0 {
		return nil, ErrDegenerateOffset
	}

	prev := normals[first]
	for i := range normals {
		if normals[i] == (r2.Vec{}) {
			normals[i] = prev
		}
		prev = normals[i]
	}
	return normals, nil
}

// joinDirection returns the unit offset direction at vertex i and the
// miter scale factor.
func joinDirection(normals []r2.Vec, i int) (r2.Vec, float64) {
	switch {
	case i == 0:
		return normals[0], 1
	case i == len(normals):
		return normals[i-1], 1
	}
	a, b := normals[i-1], normals[i]
	sum := r2.Add(a, b)
	if r2.Norm(sum) < 1e-9 {
		// The line doubles back on itself.
		return a, 1
	}
	dir := r2.Unit(sum)
	cos := r2.Dot(dir, a)
	return dir, math.Min(1/cos, miterLimit)
}

func hasDistinctPoints(ls orb.LineString) bool {
	for _, p := range ls[1:] {
		if !p.Equal(ls[0]) {
			return true
		}
	}
	return false
}
