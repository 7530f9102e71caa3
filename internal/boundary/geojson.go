package boundary

import (
	"os"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
)

// ReadGeoJSON reads a FeatureCollection of municipalities.
func ReadGeoJSON(path string, fm FieldMap) ([]Boundary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: read %s", path)
	}
	return ParseGeoJSON(data, fm)
}

// ParseGeoJSON parses a FeatureCollection of municipalities.
func ParseGeoJSON(data []byte, fm FieldMap) ([]Boundary, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, eris.Wrap(err, "boundary: decode feature collection")
	}

	out := make([]Boundary, 0, len(fc.Features))
	for i, f := range fc.Features {
		b, err := fm.build(propAttrs(f.Properties), f.Geometry)
		if err != nil {
			return nil, eris.Wrapf(err, "boundary: feature %d", i)
		}
		out = append(out, b)
	}
	if err := CheckUnique(out); err != nil {
		return nil, err
	}
	return out, nil
}

func propAttrs(props geojson.Properties) attrs {
	a := make(attrs, len(props))
	for k, v := range props {
		var s string
		switch t := v.(type) {
		case string:
			s = t
		case float64:
			s = strconv.FormatFloat(t, 'f', -1, 64)
		case bool:
			s = strconv.FormatBool(t)
		case nil:
			continue
		default:
			continue
		}
		a[strings.ToLower(k)] = s
	}
	return a
}
