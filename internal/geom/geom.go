package geom

import (
	"fmt"
	"math"
)

// Voxel dimensions of a single tile.
const (
	TileWidth  = 16
	TileDepth  = 16
	TileHeight = 24
)

// Position addresses a tile on the battlefield.
type Position struct {
	X int `json:"x" yaml:"x"`
	Y int `json:"y" yaml:"y"`
	Z int `json:"z" yaml:"z"`
}

func (p Position) String() string { return fmt.Sprintf("(%d,%d,%d)", p.X, p.Y, p.Z) }

// Add offsets the position.
func (p Position) Add(o Position) Position {
	return Position{X: p.X + o.X, Y: p.Y + o.Y, Z: p.Z + o.Z}
}

// Center returns the voxel at the middle of the tile, lifted by the given height.
func (p Position) Center(lift int) Voxel {
	return Voxel{X: p.X*TileWidth + TileWidth/2, Y: p.Y*TileDepth + TileDepth/2, Z: p.Z*TileHeight + lift}
}

// Voxel addresses a point inside the voxel space of the map.
type Voxel struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Tile returns the tile containing the voxel.
func (v Voxel) Tile() Position {
	return Position{X: floorDiv(v.X, TileWidth), Y: floorDiv(v.Y, TileDepth), Z: floorDiv(v.Z, TileHeight)}
}

// Sub returns the component-wise difference.
func (v Voxel) Sub(o Voxel) Voxel { return Voxel{X: v.X - o.X, Y: v.Y - o.Y, Z: v.Z - o.Z} }

// Add returns the component-wise sum.
func (v Voxel) Add(o Voxel) Voxel { return Voxel{X: v.X + o.X, Y: v.Y + o.Y, Z: v.Z + o.Z} }

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Direction is one of eight compass headings, 0 being north and increasing clockwise.
type Direction int

// NoDirection marks a missing heading.
const NoDirection Direction = -1

var directionVectors = [8]Position{
	{X: 0, Y: -1}, {X: 1, Y: -1}, {X: 1, Y: 0}, {X: 1, Y: 1},
	{X: 0, Y: 1}, {X: -1, Y: 1}, {X: -1, Y: 0}, {X: -1, Y: -1},
}

// Vector returns the tile offset of one step in the direction.
func (d Direction) Vector() Position {
	if d < 0 || d > 7 {
		return Position{}
	}
	return directionVectors[d]
}

// Valid reports whether the direction is one of the eight headings.
func (d Direction) Valid() bool { return d >= 0 && d <= 7 }

// DirectionTo returns the heading that best points from origin towards target.
func DirectionTo(origin, target Position) Direction {
	dx := float64(target.X - origin.X)
	dy := float64(target.Y - origin.Y)
	if dx == 0 && dy == 0 {
		return NoDirection
	}
	angle := math.Atan2(dx, -dy)
	if angle < 0 {
		angle += 2 * math.Pi
	}
	return Direction(int(math.Round(angle/(math.Pi/4))) % 8)
}

// TurnStep returns the single clockwise or counter-clockwise step from current towards
// desired following the shorter arc.
func TurnStep(current, desired Direction) Direction {
	if current == desired || !current.Valid() || !desired.Valid() {
		return desired
	}
	delta := (int(desired) - int(current) + 8) % 8
	if delta <= 4 {
		return Direction((int(current) + 1) % 8)
	}
	return Direction((int(current) + 7) % 8)
}

// Distance returns the euclidean tile distance in the XY plane.
func Distance(a, b Position) int {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	return int(math.Round(math.Sqrt(dx*dx + dy*dy)))
}

// HitKind classifies what a traced trajectory ran into.
type HitKind int

const (
	HitEmpty HitKind = iota
	HitFloor
	HitWall
	HitObject
	HitUnit
	HitOutOfBounds
)

func (k HitKind) String() string {
	switch k {
	case HitEmpty:
		return "empty"
	case HitFloor:
		return "floor"
	case HitWall:
		return "wall"
	case HitObject:
		return "object"
	case HitUnit:
		return "unit"
	case HitOutOfBounds:
		return "out-of-bounds"
	default:
		return "unknown"
	}
}

// LightLayer selects the lighting layer to recompute.
type LightLayer int

const (
	LightAmbient LightLayer = iota
	LightFire
	LightUnits
)

// NoExclusion disables occupant exclusion in traces.
const NoExclusion = -1

// Oracle resolves line of sight, trajectories and lighting over the tile grid.
type Oracle interface {
	// TraceLine follows a straight line and reports the first thing it meets together
	// with the voxels travelled. The occupant with id exclude is ignored.
	TraceLine(origin, target Voxel, exclude int) (HitKind, []Voxel)
	// TraceParabola follows an arc of the given curvature towards target shifted by delta.
	TraceParabola(origin, target Voxel, curvature float64, delta Voxel, exclude int) (HitKind, []Voxel)
	// ValidateThrow solves the launch curvature connecting origin and target.
	ValidateThrow(origin, target Voxel) (float64, bool)
	// ComputeFieldOfView returns the tiles visible from origin within maxDistance.
	ComputeFieldOfView(origin Position, maxDistance int) []Position
	// ComputeLighting refreshes a lighting layer around a position.
	ComputeLighting(layer LightLayer, at Position)
	// InBounds reports whether the tile exists.
	InBounds(p Position) bool
	// LandingBlocked reports an impassable object standing on the tile.
	LandingBlocked(p Position) bool
}

// Pathfinder computes routes between tiles.
type Pathfinder interface {
	// ComputePath searches a route and reports whether one exists.
	ComputePath(from, destination Position, mover int) bool
	// FirstStepDirection returns the heading of the first step of the last route.
	FirstStepDirection() (Direction, bool)
	// Route returns the remaining steps of the last route.
	Route() []Direction
}

// Occupants exposes which actor stands on a tile.
type Occupants interface {
	OccupantAt(p Position) (int, bool)
}
