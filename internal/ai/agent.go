package ai

import (
	"squadfire/battlecore/internal/action"
	"squadfire/battlecore/internal/cost"
	"squadfire/battlecore/internal/geom"
	"squadfire/battlecore/internal/unit"
)

// retreatDistance is how many tiles a fleeing actor tries to put between itself and the threat.
const retreatDistance = 4

// Awareness is the battlefield view an agent reasons over.
type Awareness interface {
	Actor(h unit.Handle) *unit.Actor
	HeldItem(a *unit.Actor) *unit.Item
	VisibleEnemies(a *unit.Actor) []*unit.Actor
}

// Agent binds a doctrine to one actor and implements action.Behavior.
type Agent struct {
	doctrine  *Doctrine
	actor     unit.Handle
	world     Awareness
	rethought bool
	// LastRule names the rule behind the latest proposal.
	LastRule string
}

// For returns the behavior of the actor under the doctrine.
func (d *Doctrine) For(actor unit.Handle, world Awareness) *Agent {
	return &Agent{doctrine: d, actor: actor, world: world}
}

// ReserveMode implements action.ReserveModer.
func (a *Agent) ReserveMode() cost.ReserveMode { return a.doctrine.reserve }

// ProposeAction implements action.Behavior. A reconsider proposal is never repeated on the
// immediate re-ask.
func (a *Agent) ProposeAction(number int) action.Pending {
	proposal := action.Pending{Actor: a.actor, Kind: action.KindNone, Number: number}
	self := a.world.Actor(a.actor)
	if self == nil || self.Out() {
		return proposal
	}
	skipRethink := a.rethought
	a.rethought = false

	enemies := a.world.VisibleEnemies(self)
	nearest, distance := closest(self, enemies)
	env := Env{
		Number:         number,
		TimeUnits:      self.Pools.TimeUnits,
		BaseTimeUnits:  self.Stats.TimeUnits,
		Energy:         self.Pools.Energy,
		Morale:         self.Pools.Morale,
		Health:         self.Pools.Health,
		MaxHealth:      self.Stats.Health,
		Stun:           self.Pools.Stun,
		VisibleEnemies: len(enemies),
		NearestEnemy:   distance,
		Kneeling:       self.Status() == unit.StatusKneeling,
		Charging:       self.Charging.Valid(),
	}
	if item := a.world.HeldItem(self); item != nil {
		env.HasWeapon = true
		env.Ammo = item.Ammo
		env.Primed = item.Primed()
		env.weapon = item.Weapon
		proposal.Weapon = item.Handle
	}

	//1.- Walk the rules by priority, skipping reconsiderations on a re-ask.
	var chosen rule
	found := false
	for _, r := range a.doctrine.rules {
		if skipRethink && r.kind == action.KindRethink {
			continue
		}
		if a.doctrine.eval(r, env) {
			chosen, found = r, true
			break
		}
	}
	if !found {
		return proposal
	}
	a.LastRule = chosen.spec.Name
	proposal.Kind = chosen.kind
	if chosen.kind == action.KindRethink {
		a.rethought = true
		return proposal
	}

	//2.- Resolve the target the rule asks for.
	switch chosen.spec.Target {
	case TargetEnemy:
		if nearest == nil {
			proposal.Kind = action.KindNone
			return proposal
		}
		proposal.Target = nearest.Position
		proposal.TargetUnit = nearest.Handle
	case TargetCharge:
		if nearest == nil {
			proposal.Kind = action.KindNone
			return proposal
		}
		self.Charging = nearest.Handle
		proposal.Target = nearest.Position
		proposal.TargetUnit = nearest.Handle
	case TargetRetreat:
		if nearest == nil {
			proposal.Kind = action.KindNone
			return proposal
		}
		away := geom.DirectionTo(nearest.Position, self.Position)
		step := away.Vector()
		proposal.Target = geom.Position{
			X: self.Position.X + step.X*retreatDistance,
			Y: self.Position.Y + step.Y*retreatDistance,
			Z: self.Position.Z,
		}
	case TargetSelf:
		proposal.Target = self.Position
		proposal.TargetUnit = self.Handle
	}
	return proposal
}

func closest(self *unit.Actor, enemies []*unit.Actor) (*unit.Actor, int) {
	var best *unit.Actor
	bestDistance := -1
	for _, e := range enemies {
		d := geom.Distance(self.Position, e.Position)
		if best == nil || d < bestDistance {
			best, bestDistance = e, d
		}
	}
	return best, bestDistance
}

var (
	_ action.Behavior     = (*Agent)(nil)
	_ action.ReserveModer = (*Agent)(nil)
)
