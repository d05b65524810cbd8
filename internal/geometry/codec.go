package geometry

import (
	"github.com/goccy/go-json"
	"github.com/paulmach/orb/geojson"
)

// JSONCodec plugs goccy/go-json into orb's geojson encoder hooks.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

func (JSONCodec) Unmarshal(data []byte, v any) error { return json.Unmarshal(data, v) }

// UseJSONCodec makes orb/geojson encode and decode through JSONCodec.
// Call once from main before serving traffic.
func UseJSONCodec() {
	geojson.CustomJSONMarshaler = JSONCodec{}
	geojson.CustomJSONUnmarshaler = JSONCodec{}
}
