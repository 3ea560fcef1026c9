package trajectory

import (
	"errors"
	"math"
	"testing"

	"squadfire/battlecore/internal/action"
	"squadfire/battlecore/internal/combat"
	"squadfire/battlecore/internal/dice"
	"squadfire/battlecore/internal/geom"
)

type scriptedOracle struct {
	outOfBounds int
	blocked     map[geom.Position]bool
	calls       int
	deltas      []geom.Voxel
}

func (o *scriptedOracle) TraceLine(origin, target geom.Voxel, exclude int) (geom.HitKind, []geom.Voxel) {
	return geom.HitEmpty, []geom.Voxel{target}
}

func (o *scriptedOracle) TraceParabola(origin, target geom.Voxel, curvature float64, delta geom.Voxel, exclude int) (geom.HitKind, []geom.Voxel) {
	o.calls++
	o.deltas = append(o.deltas, delta)
	if o.calls <= o.outOfBounds {
		return geom.HitOutOfBounds, []geom.Voxel{{X: -1}}
	}
	return geom.HitFloor, []geom.Voxel{target.Add(delta)}
}

func (o *scriptedOracle) ValidateThrow(origin, target geom.Voxel) (float64, bool) { return 2, true }

func (o *scriptedOracle) ComputeFieldOfView(geom.Position, int) []geom.Position { return nil }

func (o *scriptedOracle) ComputeLighting(geom.LightLayer, geom.Position) {}

func (o *scriptedOracle) InBounds(geom.Position) bool { return true }

func (o *scriptedOracle) LandingBlocked(p geom.Position) bool { return o.blocked[p] }

type occupants map[geom.Position]int

func (f occupants) OccupantAt(p geom.Position) (int, bool) {
	id, ok := f[p]
	return id, ok
}

func TestAdjacentShotWithMaximumAccuracyIsDeterministic(t *testing.T) {
	grid := geom.NewGrid(5, 5, 1)
	grid.SetOccupants(occupants{{X: 1, Y: 1}: 1, {X: 2, Y: 1}: 2})
	//1.- A roll of zero against 150% accuracy floors the spread at zero.
	model := New(grid, &dice.Sequence{Values: []int{0}})
	result := model.Line(Shot{
		Kind:     action.KindAimedShot,
		Weapon:   combat.MustResolveWeapon("rifle"),
		Origin:   geom.Position{X: 1, Y: 1}.Center(20),
		Target:   Aimpoint(geom.Position{X: 2, Y: 1}),
		Accuracy: 1.5,
		Exclude:  1,
	})
	if result.Hit != geom.HitUnit {
		t.Fatalf("expected a unit hit, got %s", result.Hit)
	}
	if result.Impact().Tile() != (geom.Position{X: 2, Y: 1}) {
		t.Fatalf("expected impact on the target tile, got %v", result.Impact().Tile())
	}
}

func TestThrowUsesEleventhSolution(t *testing.T) {
	oracle := &scriptedOracle{outOfBounds: 10}
	model := New(oracle, &dice.Sequence{Values: []int{0}})
	shot := Shot{Kind: action.KindThrow, Origin: geom.Voxel{X: 24, Y: 24, Z: 20}, Target: geom.Voxel{X: 104, Y: 24, Z: 2}, Accuracy: 1.5}

	result, err := model.Throw(shot)
	if err != nil {
		t.Fatalf("expected the 11th arc to be accepted: %v", err)
	}
	if oracle.calls != 11 {
		t.Fatalf("expected 11 parabola solves, got %d", oracle.calls)
	}
	if result.Hit != geom.HitFloor {
		t.Fatalf("expected a floor landing, got %s", result.Hit)
	}

	//1.- The same script with a budget of ten rejects the throw.
	oracle = &scriptedOracle{outOfBounds: 10}
	model = New(oracle, &dice.Sequence{Values: []int{0}}, WithThrowAttempts(10))
	if _, err := model.Throw(shot); !errors.Is(err, ErrThrowBudgetExhausted) {
		t.Fatalf("expected budget exhaustion, got %v", err)
	}
}

func TestThrowRejectsImpassableLanding(t *testing.T) {
	target := geom.Voxel{X: 104, Y: 24, Z: 2}
	oracle := &scriptedOracle{blocked: map[geom.Position]bool{target.Tile(): true}}
	model := New(oracle, &dice.Sequence{Values: []int{0}}, WithThrowAttempts(3))
	_, err := model.Throw(Shot{Kind: action.KindThrow, Origin: geom.Voxel{X: 24, Y: 24, Z: 20}, Target: target, Accuracy: 1.5})
	if !errors.Is(err, ErrThrowBudgetExhausted) || oracle.calls != 3 {
		t.Fatalf("expected every landing on the blocked tile to be retried, got %v after %d", err, oracle.calls)
	}
}

func TestThrowDeviationFollowsSpread(t *testing.T) {
	oracle := &scriptedOracle{}
	//1.- Roll 70 against 50% gives deviation 70; zShift 49 yields a spread of 17.
	model := New(oracle, &dice.Sequence{Values: []int{70, 10, 4, 6}})
	_, err := model.Throw(Shot{Kind: action.KindThrow, Origin: geom.Voxel{X: 24, Y: 24, Z: 20}, Target: geom.Voxel{X: 104, Y: 24, Z: 2}, Accuracy: 0.5})
	if err != nil {
		t.Fatalf("throw: %v", err)
	}
	want := geom.Voxel{X: 2, Y: -4, Z: 1}
	if oracle.deltas[0] != want {
		t.Fatalf("expected delta %+v, got %+v", want, oracle.deltas[0])
	}
}

func TestLaunchAccuracyDependsOnSide(t *testing.T) {
	oracle := &scriptedOracle{}
	model := New(oracle, &dice.Sequence{Values: []int{0}})
	shot := Shot{Kind: action.KindLaunch, Origin: geom.Voxel{X: 8, Y: 8, Z: 20}, Target: geom.Voxel{X: 8, Y: 200, Z: 12}, Waypoints: 3, Accuracy: 0}
	//1.- Several waypoints keep the aim point instead of extending the line.
	result := model.Line(shot)
	if result.Aim.Y > 400 {
		t.Fatalf("expected no extension with waypoints, got %+v", result.Aim)
	}
	shot.Waypoints = 1
	result = model.Line(shot)
	if result.Aim.Y < 1000 {
		t.Fatalf("expected the line extended to maximum range, got %+v", result.Aim)
	}
}

func TestRangePenaltyUsesFractionalTiles(t *testing.T) {
	w := &combat.Weapon{MinRange: 2, AimRange: 10, Dropoff: 4}
	cases := []struct {
		name   string
		planar float64
		want   float64
	}{
		{name: "inside band", planar: 5 * geom.TileWidth, want: 0},
		{name: "half a tile too close", planar: 1.5 * geom.TileWidth, want: 0.02},
		{name: "two and a half tiles too far", planar: 12.5 * geom.TileWidth, want: 0.1},
	}
	for _, tc := range cases {
		if got := rangePenalty(w, tc.planar); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("%s: expected %.3f, got %.3f", tc.name, tc.want, got)
		}
	}
}
