package drawing

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/mcraigtyler/map-editor/internal/domain"
	"github.com/mcraigtyler/map-editor/internal/geometry"
)

const segmentIDSeparator = "::"

// SegmentID is the render id of one line of a lanelet.
func SegmentID(featureID, role string) string {
	return featureID + segmentIDSeparator + role
}

// LaneletSegmentCollection splits every lanelet in features into one
// LineString feature per component line so each can be styled by role.
// Roles come from position; lines past the third are labelled left. Empty
// lines and non-lanelet features are skipped.
func LaneletSegmentCollection(features []domain.Feature) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		if f.Kind != domain.KindLanelet {
			continue
		}
		mls, ok := f.Geometry.(orb.MultiLineString)
		if !ok {
			continue
		}
		id := f.ID.String()
		for i, line := range mls {
			if len(line) == 0 {
				continue
			}
			role := geometry.RoleLeft
			if i < len(geometry.LaneletRoles) {
				role = geometry.LaneletRoles[i]
			}
			seg := geojson.NewFeature(line)
			seg.ID = SegmentID(id, role)
			seg.Properties["kind"] = string(f.Kind)
			seg.Properties["tags"] = map[string]string(f.Tags.Clone())
			seg.Properties["featureId"] = id
			seg.Properties["laneletRole"] = role
			fc.Append(seg)
		}
	}
	return fc
}
