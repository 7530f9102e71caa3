package boundary

import (
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ReadShapefile reads municipalities from a WGS84 polygon shapefile.
func ReadShapefile(path string, fm FieldMap) ([]Boundary, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "boundary: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	fields := reader.Fields()
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = strings.ToLower(strings.TrimRight(f.String(), "\x00"))
	}

	var (
		out     []Boundary
		noShape int
	)
	for reader.Next() {
		n, shape := reader.Shape()

		a := make(attrs, len(names))
		for i, name := range names {
			a[name] = strings.TrimSpace(strings.TrimRight(reader.Attribute(i), "\x00"))
		}

		g := shapeGeometry(shape)
		if g == nil {
			noShape++
		}
		b, err := fm.build(a, g)
		if err != nil {
			return nil, eris.Wrapf(err, "boundary: record %d", n)
		}
		out = append(out, b)
	}
	if err := reader.Err(); err != nil {
		return nil, eris.Wrapf(err, "boundary: read shapefile %s", path)
	}

	if noShape > 0 {
		zap.L().Warn("boundary: records without polygon geometry",
			zap.String("path", path),
			zap.Int("count", noShape),
		)
	}
	if err := CheckUnique(out); err != nil {
		return nil, err
	}
	return out, nil
}

// shapeGeometry converts a shapefile polygon to orb. Clockwise parts are
// shells and counter-clockwise parts are holes of the preceding shell. A
// single shell yields a Polygon, several a MultiPolygon.
func shapeGeometry(shape shp.Shape) orb.Geometry {
	p, ok := shape.(*shp.Polygon)
	if !ok || p == nil || p.NumParts == 0 || len(p.Points) == 0 {
		return nil
	}

	var mp orb.MultiPolygon
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}
		if start < 0 || end > int32(len(p.Points)) || start >= end {
			continue
		}

		ring := make(orb.Ring, 0, end-start)
		for _, pt := range p.Points[start:end] {
			ring = append(ring, orb.Point{pt.X, pt.Y})
		}

		if ring.Orientation() == orb.CCW && len(mp) > 0 {
			last := len(mp) - 1
			mp[last] = append(mp[last], ring)
			continue
		}
		mp = append(mp, orb.Polygon{ring})
	}

	switch len(mp) {
	case 0:
		return nil
	case 1:
		return mp[0]
	}
	return mp
}
