package geom

import (
	"math"
)

const (
	objectHeight = 20
	unitHeight   = 20
	maxArcSteps  = 512
)

type tile struct {
	blocked bool
	wall    bool
	noFloor bool
}

// Grid is a bounded tile map implementing Oracle and Pathfinder for headless battles.
type Grid struct {
	sizeX, sizeY, sizeZ int
	tiles               []tile
	occupants           Occupants
	route               []Direction
}

// NewGrid creates an open map of the given dimensions.
func NewGrid(sizeX, sizeY, sizeZ int) *Grid {
	if sizeX <= 0 {
		sizeX = 1
	}
	if sizeY <= 0 {
		sizeY = 1
	}
	if sizeZ <= 0 {
		sizeZ = 1
	}
	return &Grid{sizeX: sizeX, sizeY: sizeY, sizeZ: sizeZ, tiles: make([]tile, sizeX*sizeY*sizeZ)}
}

// Size returns the map dimensions.
func (g *Grid) Size() (int, int, int) { return g.sizeX, g.sizeY, g.sizeZ }

// SetOccupants wires the actor lookup used for unit hits and path blocking.
func (g *Grid) SetOccupants(o Occupants) { g.occupants = o }

// Block places an impassable object on the tile.
func (g *Grid) Block(p Position) {
	if t := g.tile(p); t != nil {
		t.blocked = true
	}
}

// Wall places a full-height wall on the tile.
func (g *Grid) Wall(p Position) {
	if t := g.tile(p); t != nil {
		t.wall = true
	}
}

// RemoveFloor opens the tile to the level below.
func (g *Grid) RemoveFloor(p Position) {
	if t := g.tile(p); t != nil {
		t.noFloor = true
	}
}

func (g *Grid) tile(p Position) *tile {
	if !g.InBounds(p) {
		return nil
	}
	return &g.tiles[(p.Z*g.sizeY+p.Y)*g.sizeX+p.X]
}

// InBounds reports whether the tile exists.
func (g *Grid) InBounds(p Position) bool {
	return p.X >= 0 && p.Y >= 0 && p.Z >= 0 && p.X < g.sizeX && p.Y < g.sizeY && p.Z < g.sizeZ
}

// LandingBlocked reports an impassable object or wall on the tile.
func (g *Grid) LandingBlocked(p Position) bool {
	t := g.tile(p)
	return t != nil && (t.blocked || t.wall)
}

func (g *Grid) voxelHit(v Voxel, exclude int) HitKind {
	p := v.Tile()
	t := g.tile(p)
	if t == nil {
		return HitOutOfBounds
	}
	local := v.Z - p.Z*TileHeight
	if t.wall {
		return HitWall
	}
	if t.blocked && local < objectHeight {
		return HitObject
	}
	if g.occupants != nil && local < unitHeight {
		if id, ok := g.occupants.OccupantAt(p); ok && id != exclude {
			return HitUnit
		}
	}
	if local == 0 && !t.noFloor && p.Z > 0 {
		return HitFloor
	}
	return HitEmpty
}

// TraceLine walks the voxels between origin and target with a 3D Bresenham line.
func (g *Grid) TraceLine(origin, target Voxel, exclude int) (HitKind, []Voxel) {
	dx, dy, dz := abs(target.X-origin.X), abs(target.Y-origin.Y), abs(target.Z-origin.Z)
	sx, sy, sz := sign(target.X-origin.X), sign(target.Y-origin.Y), sign(target.Z-origin.Z)
	steps := max3(dx, dy, dz)
	path := make([]Voxel, 0, steps)
	cur := origin
	ex, ey, ez := steps/2, steps/2, steps/2
	for i := 0; i < steps; i++ {
		ex -= dx
		if ex < 0 {
			cur.X += sx
			ex += steps
		}
		ey -= dy
		if ey < 0 {
			cur.Y += sy
			ey += steps
		}
		ez -= dz
		if ez < 0 {
			cur.Z += sz
			ez += steps
		}
		path = append(path, cur)
		if kind := g.voxelHit(cur, exclude); kind != HitEmpty {
			return kind, path
		}
	}
	return HitEmpty, path
}

// TraceParabola samples an arc whose apex height grows with curvature and horizontal distance.
func (g *Grid) TraceParabola(origin, target Voxel, curvature float64, delta Voxel, exclude int) (HitKind, []Voxel) {
	end := target.Add(delta)
	horizontal := math.Hypot(float64(end.X-origin.X), float64(end.Y-origin.Y))
	samples := int(horizontal)
	if samples < 8 {
		samples = 8
	}
	if samples > maxArcSteps {
		samples = maxArcSteps
	}
	apex := curvature * horizontal / 4
	path := make([]Voxel, 0, samples)
	for i := 1; i <= samples; i++ {
		t := float64(i) / float64(samples)
		v := Voxel{
			X: origin.X + int(math.Round(float64(end.X-origin.X)*t)),
			Y: origin.Y + int(math.Round(float64(end.Y-origin.Y)*t)),
			Z: origin.Z + int(math.Round(float64(end.Z-origin.Z)*t+apex*4*t*(1-t))),
		}
		path = append(path, v)
		kind := g.voxelHit(v, exclude)
		if kind == HitFloor && i < samples {
			continue
		}
		if kind != HitEmpty {
			return kind, path
		}
	}
	return HitFloor, path
}

// ValidateThrow increases curvature until an undeviated arc lands on the target tile.
func (g *Grid) ValidateThrow(origin, target Voxel) (float64, bool) {
	if !g.InBounds(target.Tile()) {
		return 0, false
	}
	for curvature := 1.0; curvature <= 5.0; curvature += 0.5 {
		kind, path := g.TraceParabola(origin, target, curvature, Voxel{}, NoExclusion)
		if kind == HitOutOfBounds || len(path) == 0 {
			continue
		}
		if path[len(path)-1].Tile() == target.Tile() {
			return curvature, true
		}
	}
	return 0, false
}

// ComputeFieldOfView returns every tile on the origin level whose center is reachable by an
// unobstructed line within maxDistance.
func (g *Grid) ComputeFieldOfView(origin Position, maxDistance int) []Position {
	visible := make([]Position, 0)
	from := origin.Center(TileHeight - 2)
	for y := origin.Y - maxDistance; y <= origin.Y+maxDistance; y++ {
		for x := origin.X - maxDistance; x <= origin.X+maxDistance; x++ {
			p := Position{X: x, Y: y, Z: origin.Z}
			if !g.InBounds(p) || Distance(origin, p) > maxDistance {
				continue
			}
			if p == origin {
				visible = append(visible, p)
				continue
			}
			kind, path := g.TraceLine(from, p.Center(TileHeight-2), NoExclusion)
			if kind == HitEmpty || kind == HitUnit || (len(path) > 0 && path[len(path)-1].Tile() == p) {
				visible = append(visible, p)
			}
		}
	}
	return visible
}

// ComputeLighting is a no-op; the headless grid has no light model.
func (g *Grid) ComputeLighting(LightLayer, Position) {}

// ComputePath runs a breadth-first search over walkable tiles on the mover's level.
func (g *Grid) ComputePath(from, destination Position, mover int) bool {
	g.route = nil
	if !g.InBounds(destination) || g.LandingBlocked(destination) || from == destination {
		return false
	}
	type node struct {
		at  Position
		via Direction
	}
	prev := map[Position]node{from: {at: from, via: NoDirection}}
	queue := []Position{from}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == destination {
			break
		}
		for d := Direction(0); d < 8; d++ {
			next := cur.Add(d.Vector())
			if _, seen := prev[next]; seen || !g.InBounds(next) || g.LandingBlocked(next) {
				continue
			}
			if g.occupants != nil && next != destination {
				if id, ok := g.occupants.OccupantAt(next); ok && id != mover {
					continue
				}
			}
			prev[next] = node{at: cur, via: d}
			queue = append(queue, next)
		}
	}
	if _, ok := prev[destination]; !ok {
		return false
	}
	var reversed []Direction
	for at := destination; at != from; {
		n := prev[at]
		reversed = append(reversed, n.via)
		at = n.at
	}
	g.route = make([]Direction, len(reversed))
	for i := range reversed {
		g.route[i] = reversed[len(reversed)-1-i]
	}
	return true
}

// FirstStepDirection returns the first heading of the last computed route.
func (g *Grid) FirstStepDirection() (Direction, bool) {
	if len(g.route) == 0 {
		return NoDirection, false
	}
	return g.route[0], true
}

// Route returns a copy of the last computed route.
func (g *Grid) Route() []Direction {
	return append([]Direction(nil), g.route...)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func sign(v int) int {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	}
	return 0
}

func max3(a, b, c int) int {
	m := a
	if b > m {
		m = b
	}
	if c > m {
		m = c
	}
	return m
}

var (
	_ Oracle     = (*Grid)(nil)
	_ Pathfinder = (*Grid)(nil)
)
