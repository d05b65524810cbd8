package domain

// Paging limits for feature listings.
const (
	DefaultLimit = 50
	MaxLimit     = 100
)

// BBox is a WGS84 bounding box used to filter feature listings.
type BBox struct {
	MinLon float64
	MinLat float64
	MaxLon float64
	MaxLat float64
}

// Slice returns the box as [minLon, minLat, maxLon, maxLat].
func (b BBox) Slice() []float64 {
	return []float64{b.MinLon, b.MinLat, b.MaxLon, b.MaxLat}
}

// FeatureFilter carries validated listing parameters from the service to the repo.
type FeatureFilter struct {
	BBox   *BBox
	Limit  int
	Offset int
}

// FeaturePage is one page of a feature listing.
// Total counts every feature matching the filter, ignoring Limit and Offset.
type FeaturePage struct {
	Features []Feature
	Total    int64
	Limit    int
	Offset   int
	BBox     *BBox
}
