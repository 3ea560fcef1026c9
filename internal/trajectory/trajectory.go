// Package trajectory computes where shots and throws end up given an accuracy scalar.
package trajectory

import (
	"errors"
	"math"

	"squadfire/battlecore/internal/action"
	"squadfire/battlecore/internal/combat"
	"squadfire/battlecore/internal/dice"
	"squadfire/battlecore/internal/geom"
	"squadfire/battlecore/internal/unit"
)

const (
	// DefaultThrowAttempts bounds how often a deviated throw is re-solved.
	DefaultThrowAttempts = 20
	// unlimitedRange is the extension length of a shot in voxels.
	unlimitedRange = 16 * 1000
	// meleeRange is the extension length of a melee hit in voxels.
	meleeRange = 46
	// Launch accuracies replace the actor's skill for guided launchers.
	PlayerLaunchAccuracy  = 0.60
	HostileLaunchAccuracy = 0.55
	kneelingBonus         = 1.15
)

var (
	// ErrNoTrajectory is returned when no arc reaches the target.
	ErrNoTrajectory = errors.New("no valid trajectory")
	// ErrThrowBudgetExhausted is returned when every deviated arc left the map.
	ErrThrowBudgetExhausted = errors.New("throw attempt budget exhausted")
)

// Shot describes a single projectile or throw request.
type Shot struct {
	Kind      action.Kind
	Weapon    *combat.Weapon
	Origin    geom.Voxel
	Target    geom.Voxel
	Accuracy  float64
	Exclude   int
	Waypoints int
	Faction   unit.Faction
}

// Result is the traced outcome of a shot.
type Result struct {
	Hit  geom.HitKind
	Path []geom.Voxel
	// Aim is the deviated aim point the trace was fired at.
	Aim geom.Voxel
}

// Impact returns the last voxel of the path, or the aim point for empty paths.
func (r Result) Impact() geom.Voxel {
	if len(r.Path) == 0 {
		return r.Aim
	}
	return r.Path[len(r.Path)-1]
}

// Model resolves trajectories against a geometry oracle.
type Model struct {
	oracle        geom.Oracle
	src           dice.Source
	throwAttempts int
}

// Option configures a Model.
type Option func(*Model)

// WithThrowAttempts overrides the throw re-solve budget.
func WithThrowAttempts(n int) Option {
	return func(m *Model) {
		if n > 0 {
			m.throwAttempts = n
		}
	}
}

// New creates a trajectory model.
func New(oracle geom.Oracle, src dice.Source, opts ...Option) *Model {
	m := &Model{oracle: oracle, src: src, throwAttempts: DefaultThrowAttempts}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Line traces a straight shot. Launches use the fixed launch accuracy and only extend past
// the target when at most one waypoint is set.
func (m *Model) Line(shot Shot) Result {
	accuracy := shot.Accuracy
	extend := true
	if shot.Kind == action.KindLaunch {
		accuracy = HostileLaunchAccuracy
		if shot.Faction == unit.FactionPlayer {
			accuracy = PlayerLaunchAccuracy
		}
		extend = shot.Waypoints <= 1
	}
	aim := m.applyAccuracy(shot, shot.Target, accuracy, false, extend)
	hit, path := m.oracle.TraceLine(shot.Origin, aim, shot.Exclude)
	return Result{Hit: hit, Path: path, Aim: aim}
}

// Throw solves a lobbed arc, perturbs its landing with the same deviation as a shot and
// re-solves until the landing stays on the map and off impassable objects.
func (m *Model) Throw(shot Shot) (Result, error) {
	curvature, ok := m.oracle.ValidateThrow(shot.Origin, shot.Target)
	if !ok {
		return Result{}, ErrNoTrajectory
	}
	for attempt := 0; attempt < m.throwAttempts; attempt++ {
		//1.- Deviate around the target without stretching the throw past it.
		aim := m.applyAccuracy(shot, shot.Target, shot.Accuracy, true, false)
		delta := aim.Sub(shot.Target)
		hit, path := m.oracle.TraceParabola(shot.Origin, shot.Target, curvature, delta, shot.Exclude)
		if hit == geom.HitOutOfBounds || len(path) == 0 {
			continue
		}
		//2.- A landing on an impassable object is rejected like leaving the map.
		if m.oracle.LandingBlocked(path[len(path)-1].Tile()) {
			continue
		}
		return Result{Hit: hit, Path: path, Aim: aim}, nil
	}
	return Result{}, ErrThrowBudgetExhausted
}

func (m *Model) applyAccuracy(shot Shot, target geom.Voxel, accuracy float64, keepRange, extend bool) geom.Voxel {
	dx := float64(shot.Origin.X - target.X)
	dy := float64(shot.Origin.Y - target.Y)
	realDistance := math.Hypot(dx, dy)
	maxRange := float64(unlimitedRange)
	if keepRange {
		maxRange = realDistance
	}
	if shot.Kind == action.KindMelee {
		maxRange = meleeRange
	}

	//1.- Outside the weapon's comfortable band accuracy falls off linearly per tile.
	if shot.Kind != action.KindThrow && shot.Kind != action.KindMelee && shot.Weapon != nil {
		accuracy = math.Max(0, accuracy-rangePenalty(shot.Weapon, realDistance))
	}

	//2.- Spread grows with the dominant horizontal axis, then with height.
	xDist := absInt(shot.Origin.X - target.X)
	yDist := absInt(shot.Origin.Y - target.Y)
	zDist := absInt(shot.Origin.Z - target.Z)
	var xyShift, zShift int
	if xDist/2 <= yDist {
		xyShift = xDist/4 + yDist
	} else {
		xyShift = (xDist + yDist) / 2
	}
	if xyShift <= zDist {
		zShift = xyShift/2 + zDist
	} else {
		zShift = xyShift + zDist/2
	}

	//3.- Favourable rolls pull the deviation towards zero harder than unfavourable ones.
	deviation := dice.Gen(m.src, 0, 100) - int(accuracy*100)
	if deviation >= 0 {
		deviation += 50
	} else {
		deviation += 10
	}
	spread := zShift * deviation / 200

	aim := target
	if spread > 0 {
		aim.X += dice.Gen(m.src, 0, spread) - spread/2
		aim.Y += dice.Gen(m.src, 0, spread) - spread/2
		aim.Z += dice.Gen(m.src, 0, spread/2)/2 - spread/8
	}
	if !extend {
		return aim
	}

	//4.- Stretch the line to the maximum range along the deviated heading.
	ex := float64(aim.X - shot.Origin.X)
	ey := float64(aim.Y - shot.Origin.Y)
	ez := float64(aim.Z - shot.Origin.Z)
	rotation := math.Atan2(ey, ex)
	tilt := math.Atan2(ez, math.Hypot(ex, ey))
	return geom.Voxel{
		X: shot.Origin.X + int(maxRange*math.Cos(tilt)*math.Cos(rotation)),
		Y: shot.Origin.Y + int(maxRange*math.Cos(tilt)*math.Sin(rotation)),
		Z: shot.Origin.Z + int(maxRange*math.Sin(tilt)),
	}
}

// rangePenalty measures the horizontal distance in fractional tiles against the weapon's band.
func rangePenalty(w *combat.Weapon, planar float64) float64 {
	tiles := planar / geom.TileWidth
	switch {
	case tiles < float64(w.MinRange):
		return float64(w.Dropoff) * (float64(w.MinRange) - tiles) / 100
	case w.AimRange > 0 && tiles > float64(w.AimRange):
		return float64(w.Dropoff) * (tiles - float64(w.AimRange)) / 100
	}
	return 0
}

// Accuracy returns the accuracy scalar of an actor using the weapon in the action's mode.
func Accuracy(kind action.Kind, weapon *combat.Weapon, actor *unit.Actor) float64 {
	if actor == nil || weapon == nil {
		return 0
	}
	skill := actor.Stats.FiringAccuracy
	switch kind {
	case action.KindThrow:
		skill = actor.Stats.ThrowingAccuracy
	case action.KindMelee:
		skill = actor.Stats.Melee
	}
	accuracy := weapon.Accuracy(kind.Mode()) * float64(skill) / 100
	if actor.Status() == unit.StatusKneeling && kind != action.KindThrow && kind != action.KindMelee {
		accuracy *= kneelingBonus
	}
	return accuracy
}

// Muzzle returns the voxel a standing or kneeling actor fires from.
func Muzzle(actor *unit.Actor) geom.Voxel {
	lift := 20
	if actor.Status() == unit.StatusKneeling {
		lift = 14
	}
	return actor.Position.Center(lift)
}

// Aimpoint returns the voxel an attack aims at on a tile.
func Aimpoint(p geom.Position) geom.Voxel { return p.Center(12) }

// ThrowTarget returns the voxel a throw lands at on a tile.
func ThrowTarget(p geom.Position) geom.Voxel { return p.Center(2) }

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
