package geometry_test

import (
	"errors"
	"math"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcraigtyler/map-editor/internal/domain"
	"github.com/mcraigtyler/map-editor/internal/geometry"
)

func validationDetails(t *testing.T, err error) *domain.ValidationError {
	t.Helper()
	var ve *domain.ValidationError
	require.True(t, errors.As(err, &ve), "expected *domain.ValidationError, got %v", err)
	require.ErrorIs(t, err, domain.ErrValidation)
	return ve
}

func TestValidate_AcceptsAllowedTypesPerKind(t *testing.T) {
	cases := []struct {
		name string
		kind domain.Kind
		raw  string
	}{
		{"point", domain.KindPoint, `{"type":"Point","coordinates":[1,2]}`},
		{"multipoint", domain.KindPoint, `{"type":"MultiPoint","coordinates":[[1,2],[3,4]]}`},
		{"line", domain.KindLine, `{"type":"LineString","coordinates":[[0,0],[1,1]]}`},
		{"multiline", domain.KindLine, `{"type":"MultiLineString","coordinates":[[[0,0],[1,1]]]}`},
		{"road", domain.KindRoad, `{"type":"LineString","coordinates":[[0,0],[1,1]]}`},
		{"polygon", domain.KindPolygon, `{"type":"Polygon","coordinates":[[[0,0],[1,0],[1,1],[0,0]]]}`},
		{"multipolygon", domain.KindPolygon, `{"type":"MultiPolygon","coordinates":[[[[0,0],[1,0],[1,1],[0,0]]]]}`},
		{"lanelet", domain.KindLanelet, `{"type":"MultiLineString","coordinates":[[[0,1],[1,1]],[[0,0],[1,0]],[[0,-1],[1,-1]]]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			g, err := geometry.Validate([]byte(tc.raw), tc.kind)
			require.NoError(t, err)
			assert.NotNil(t, g)
		})
	}
}

func TestValidate_PointDecodesCoordinates(t *testing.T) {
	g, err := geometry.Validate([]byte(`{"type":"Point","coordinates":[0,0,12.5]}`), domain.KindPoint)

	require.NoError(t, err)
	assert.Equal(t, orb.Point{0, 0}, g)
}

func TestValidate_IncompatibleKind(t *testing.T) {
	_, err := geometry.Validate([]byte(`{"type":"LineString","coordinates":[[0,0],[1,1]]}`), domain.KindPoint)

	ve := validationDetails(t, err)
	assert.Equal(t, "geometry type is incompatible with feature kind", ve.Message)
	assert.Equal(t, "point", ve.Details["kind"])
	assert.Equal(t, "LineString", ve.Details["geometryType"])
}

func TestValidate_LaneletNeedsThreeLines(t *testing.T) {
	_, err := geometry.Validate([]byte(`{"type":"MultiLineString","coordinates":[[[0,0],[1,0]],[[0,1],[1,1]]]}`), domain.KindLanelet)

	ve := validationDetails(t, err)
	assert.Equal(t, 2, ve.Details["lineCount"])
}

func TestValidate_LaneletRejectsLineString(t *testing.T) {
	_, err := geometry.Validate([]byte(`{"type":"LineString","coordinates":[[0,0],[1,1]]}`), domain.KindLanelet)

	ve := validationDetails(t, err)
	assert.Equal(t, "LineString", ve.Details["geometryType"])
}

func TestValidate_RejectsGeometryCollection(t *testing.T) {
	raw := `{"type":"GeometryCollection","geometries":[{"type":"Point","coordinates":[0,0]}]}`
	for _, kind := range domain.Kinds {
		_, err := geometry.Validate([]byte(raw), kind)
		ve := validationDetails(t, err)
		assert.Equal(t, "GeometryCollection", ve.Details["geometryType"], kind)
	}
}

func TestValidate_RejectsMalformedInput(t *testing.T) {
	cases := map[string]string{
		"not an object":        `[1,2]`,
		"empty":                ``,
		"null":                 `null`,
		"missing type":         `{"coordinates":[0,0]}`,
		"unknown type":         `{"type":"Circle","coordinates":[0,0]}`,
		"missing coordinates":  `{"type":"Point"}`,
		"wrong nesting":        `{"type":"Point","coordinates":[[0,0]]}`,
		"short position":       `{"type":"Point","coordinates":[1]}`,
		"string ordinate":      `{"type":"Point","coordinates":["a",1]}`,
		"single vertex line":   `{"type":"LineString","coordinates":[[0,0]]}`,
		"short polygon ring":   `{"type":"Polygon","coordinates":[[[0,0],[1,0],[0,0]]]}`,
		"polygon without ring": `{"type":"Polygon","coordinates":[]}`,
		"overflowing number":   `{"type":"Point","coordinates":[1e400,0]}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := geometry.Validate([]byte(raw), domain.KindPoint)
			assert.ErrorIs(t, err, domain.ErrValidation)
		})
	}
}

func TestValidateShape_RejectsNonFinite(t *testing.T) {
	err := geometry.ValidateShape(orb.LineString{{0, 0}, {math.NaN(), 1}}, domain.KindLine)
	assert.ErrorIs(t, err, domain.ErrValidation)

	err = geometry.ValidateShape(orb.Point{math.Inf(1), 0}, domain.KindPoint)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestValidateShape_RejectsCollection(t *testing.T) {
	err := geometry.ValidateShape(orb.Collection{orb.Point{0, 0}}, domain.KindPoint)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestDecode_StoredForms(t *testing.T) {
	const text = `{"type":"Point","coordinates":[3,4]}`
	want := orb.Point{3, 4}

	for name, v := range map[string]any{
		"string": text,
		"bytes":  []byte(text),
		"object": map[string]any{"type": "Point", "coordinates": []any{3.0, 4.0}},
	} {
		t.Run(name, func(t *testing.T) {
			g, err := geometry.Decode(v)
			require.NoError(t, err)
			assert.Equal(t, want, g)
		})
	}
}

func TestDecode_Corrupt(t *testing.T) {
	_, err := geometry.Decode(nil)
	assert.Error(t, err)

	_, err = geometry.Decode(`{"type":"Point","coordinates":"oops"}`)
	assert.Error(t, err)

	_, err = geometry.Decode(42)
	assert.Error(t, err)
}

func TestMarshal_RoundTrip(t *testing.T) {
	b, err := geometry.Marshal(orb.LineString{{0, 0}, {1, 1}})
	require.NoError(t, err)

	g, err := geometry.Parse(b)
	require.NoError(t, err)
	assert.Equal(t, orb.LineString{{0, 0}, {1, 1}}, g)
}
