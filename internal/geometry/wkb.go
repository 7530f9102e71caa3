package geometry

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// SRID is the spatial reference of every geometry handled here (WGS84).
const SRID = 4326

// EncodeEWKB converts an orb geometry to EWKB bytes with SRID 4326, ready to
// be bound as a PostGIS query parameter or COPY value.
func EncodeEWKB(g orb.Geometry) ([]byte, error) {
	t, err := ToGeom(g)
	if err != nil {
		return nil, err
	}
	data, err := ewkb.Marshal(t, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrap(err, "geometry: encode EWKB")
	}
	return data, nil
}

// DecodeEWKB parses WKB or EWKB (as returned by ST_AsEWKB) into an orb geometry.
func DecodeEWKB(data []byte) (orb.Geometry, error) {
	if len(data) == 0 {
		return nil, ErrMissingGeometry
	}
	t, err := ewkb.Unmarshal(data)
	if err != nil {
		return nil, eris.Wrap(err, "geometry: decode EWKB")
	}
	return FromGeom(t)
}

// ToGeom converts Point, Polygon and MultiPolygon values to go-geom.
func ToGeom(g orb.Geometry) (geom.T, error) {
	switch t := g.(type) {
	case nil:
		return nil, ErrMissingGeometry
	case orb.Point:
		return geom.NewPointFlat(geom.XY, []float64{t[0], t[1]}).SetSRID(SRID), nil
	case orb.Polygon:
		poly, err := geom.NewPolygon(geom.XY).SetCoords(polygonCoords(t))
		if err != nil {
			return nil, eris.Wrap(err, "geometry: build polygon")
		}
		return poly.SetSRID(SRID), nil
	case orb.MultiPolygon:
		coords := make([][][]geom.Coord, len(t))
		for i, p := range t {
			coords[i] = polygonCoords(p)
		}
		mp, err := geom.NewMultiPolygon(geom.XY).SetCoords(coords)
		if err != nil {
			return nil, eris.Wrap(err, "geometry: build multipolygon")
		}
		return mp.SetSRID(SRID), nil
	default:
		return nil, eris.Wrapf(ErrUnsupportedGeometryKind, "geometry: convert %s", g.GeoJSONType())
	}
}

// FromGeom converts go-geom Point, Polygon and MultiPolygon values to orb.
func FromGeom(t geom.T) (orb.Geometry, error) {
	switch g := t.(type) {
	case *geom.Point:
		c := g.Coords()
		return orb.Point{c.X(), c.Y()}, nil
	case *geom.Polygon:
		return orbPolygon(g.Coords()), nil
	case *geom.MultiPolygon:
		coords := g.Coords()
		mp := make(orb.MultiPolygon, len(coords))
		for i, p := range coords {
			mp[i] = orbPolygon(p)
		}
		return mp, nil
	default:
		return nil, eris.Wrapf(ErrUnsupportedGeometryKind, "geometry: convert %T", t)
	}
}

func polygonCoords(p orb.Polygon) [][]geom.Coord {
	rings := make([][]geom.Coord, len(p))
	for i, ring := range p {
		coords := make([]geom.Coord, len(ring))
		for j, pt := range ring {
			coords[j] = geom.Coord{pt[0], pt[1]}
		}
		rings[i] = coords
	}
	return rings
}

func orbPolygon(rings [][]geom.Coord) orb.Polygon {
	poly := make(orb.Polygon, len(rings))
	for i, ring := range rings {
		r := make(orb.Ring, len(ring))
		for j, c := range ring {
			r[j] = orb.Point{c[0], c[1]}
		}
		poly[i] = r
	}
	return poly
}

// AreaM2 returns the geodesic area of a Polygon or MultiPolygon in square
// meters. It stands in for projecting to a national metric CRS and measuring.
func AreaM2(g orb.Geometry) float64 {
	if g == nil {
		return 0
	}
	return math.Abs(geo.Area(g))
}

// AreaKm2 is AreaM2 in square kilometers.
func AreaKm2(g orb.Geometry) float64 {
	return AreaM2(g) / 1_000_000
}
