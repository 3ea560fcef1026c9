package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"squadfire/battlecore/internal/action"
	"squadfire/battlecore/internal/cost"
	"squadfire/battlecore/internal/geom"
	"squadfire/battlecore/internal/unit"
)

type world struct {
	roster *unit.Roster
	armory *unit.Armory
}

func (w *world) Actor(h unit.Handle) *unit.Actor { return w.roster.Get(h) }

func (w *world) HeldItem(a *unit.Actor) *unit.Item { return w.armory.Held(a) }

func (w *world) VisibleEnemies(a *unit.Actor) []*unit.Actor {
	var out []*unit.Actor
	for _, v := range a.VisibleUnits {
		if other := w.roster.Get(v); other != nil && !other.Out() && other.Faction != a.Faction {
			out = append(out, other)
		}
	}
	return out
}

func newWorld(t *testing.T, weapon string) (*world, *unit.Actor, *unit.Actor) {
	t.Helper()
	w := &world{roster: unit.NewRoster(), armory: unit.NewArmory()}
	alien := w.roster.Get(w.roster.Add(unit.Actor{
		Faction:  unit.FactionHostile,
		Position: geom.Position{X: 5, Y: 5},
		Stats:    unit.Stats{TimeUnits: 60, Health: 40},
		Pools:    cost.Pools{TimeUnits: 60, Health: 40, Morale: 80},
	}, unit.StatusStanding))
	soldier := w.roster.Get(w.roster.Add(unit.Actor{
		Faction:  unit.FactionPlayer,
		Position: geom.Position{X: 5, Y: 9},
		Stats:    unit.Stats{TimeUnits: 50, Health: 30},
		Pools:    cost.Pools{TimeUnits: 50, Health: 30, Morale: 60},
	}, unit.StatusStanding))
	if weapon != "" {
		_, err := w.armory.Issue(alien, weapon)
		require.NoError(t, err)
	}
	alien.VisibleUnits = []unit.Handle{soldier.Handle}
	return w, alien, soldier
}

func TestDefaultDoctrineCompiles(t *testing.T) {
	d := Default()
	assert.Equal(t, "skirmisher", d.Name())
	assert.Equal(t, cost.ReserveSnap, d.Reserve())
}

func TestCompileRejectsBadRules(t *testing.T) {
	_, err := Parse([]byte(`
name: broken
reserve: sometimes
rules:
  - name: typo
    when: Morale <
    action: snapshot
  - name: unknown-action
    action: dance
`))
	require.ErrorIs(t, err, ErrInvalidDoctrine)
	assert.Contains(t, err.Error(), "reserve")
	assert.Contains(t, err.Error(), "typo")
	assert.Contains(t, err.Error(), "dance")
}

func TestAgentAimsFirstThenSnaps(t *testing.T) {
	w, alien, soldier := newWorld(t, "rifle")
	agent := Default().For(alien.Handle, w)

	first := agent.ProposeAction(1)
	assert.Equal(t, action.KindAimedShot, first.Kind)
	assert.Equal(t, soldier.Handle, first.TargetUnit)
	assert.Equal(t, soldier.Position, first.Target)
	assert.True(t, first.Weapon.Valid())

	second := agent.ProposeAction(2)
	assert.Equal(t, action.KindSnapshot, second.Kind)
	assert.Equal(t, "snap-on-sight", agent.LastRule)
}

func TestAgentChargesWithMelee(t *testing.T) {
	w, alien, soldier := newWorld(t, "claws")
	agent := Default().For(alien.Handle, w)

	got := agent.ProposeAction(1)
	assert.Equal(t, action.KindWalk, got.Kind)
	assert.Equal(t, soldier.Handle, alien.Charging)
}

func TestAgentRetreatsWhenBroken(t *testing.T) {
	w, alien, _ := newWorld(t, "rifle")
	alien.Pools.Morale = 10
	got := Default().For(alien.Handle, w).ProposeAction(1)
	require.Equal(t, action.KindWalk, got.Kind)
	//1.- The soldier stands south, so the retreat heads north.
	assert.Equal(t, geom.Position{X: 5, Y: 1}, got.Target)
}

func TestAgentRethinksOnlyOnce(t *testing.T) {
	w, alien, _ := newWorld(t, "rifle")
	alien.VisibleUnits = nil
	w.armory.Held(alien).Ammo = 0
	agent := Default().For(alien.Handle, w)

	assert.Equal(t, action.KindRethink, agent.ProposeAction(1).Kind)
	assert.Equal(t, action.KindNone, agent.ProposeAction(1).Kind)
}

func TestAgentWithoutEnemiesHolds(t *testing.T) {
	w, alien, _ := newWorld(t, "")
	alien.VisibleUnits = nil
	got := Default().For(alien.Handle, w).ProposeAction(1)
	assert.Equal(t, action.KindNone, got.Kind)
}
