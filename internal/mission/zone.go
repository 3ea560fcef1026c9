package mission

import (
	"fmt"
	"strings"

	sf "github.com/peterstace/simplefeatures/geom"

	"squadfire/battlecore/internal/geom"
)

// Zone is an area of the map in tile coordinates, such as the exit area.
type Zone struct {
	area sf.Geometry
	wkt  string
}

// ParseZone reads a WKT polygon expressed in tile units. An empty string yields an empty zone.
func ParseZone(wkt string) (Zone, error) {
	wkt = strings.TrimSpace(wkt)
	if wkt == "" {
		return Zone{}, nil
	}
	g, err := sf.UnmarshalWKT(wkt)
	if err != nil {
		return Zone{}, fmt.Errorf("parse zone: %w", err)
	}
	return Zone{area: g, wkt: wkt}, nil
}

// Empty reports whether the zone covers nothing.
func (z Zone) Empty() bool { return z.wkt == "" || z.area.IsEmpty() }

// String returns the zone WKT.
func (z Zone) String() string { return z.wkt }

// Contains reports whether the center of the tile lies inside the zone.
func (z Zone) Contains(p geom.Position) bool {
	if z.Empty() {
		return false
	}
	center := sf.NewPoint(sf.Coordinates{XY: sf.XY{X: float64(p.X) + 0.5, Y: float64(p.Y) + 0.5}})
	return sf.Intersects(z.area, center.AsGeometry())
}
