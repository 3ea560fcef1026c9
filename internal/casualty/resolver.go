// Package casualty converts health and stun thresholds into deaths and knockouts, attributes
// kills and spreads the resulting morale shock across both sides.
package casualty

import (
	"context"

	"squadfire/battlecore/internal/logging"
	"squadfire/battlecore/internal/unit"
)

// Outcome classifies a casualty.
type Outcome string

const (
	OutcomeDeath       Outcome = "death"
	OutcomeUnconscious Outcome = "unconscious"
)

// Morale constants of the sweep.
const (
	DefaultFactionModifier   = 100
	DefaultFriendlyFireFloor = 10
	opposingKillBonus        = 20
	friendlyFirePenalty      = 2000
	neutralKillPenalty       = 1000
	neutralKillBonus         = 10
	allyLossScale            = 200
	winnerBonus              = 10
)

// Modifiers scale morale changes per side.
type Modifiers struct {
	// Player and Hostile are the faction morale modifiers, in percent.
	Player  int
	Hostile int
	// FriendlyFireFloor bounds the divisor of friendly-fire and neutral-kill penalties.
	FriendlyFireFloor int
}

// DefaultModifiers returns neutral modifiers.
func DefaultModifiers() Modifiers {
	return Modifiers{Player: DefaultFactionModifier, Hostile: DefaultFactionModifier, FriendlyFireFloor: DefaultFriendlyFireFloor}
}

func (m Modifiers) faction(playerSide bool) int {
	v := m.Hostile
	if playerSide {
		v = m.Player
	}
	if v <= 0 {
		return DefaultFactionModifier
	}
	return v
}

func (m Modifiers) clamp(mod int) int {
	floor := m.FriendlyFireFloor
	if floor <= 0 {
		floor = DefaultFriendlyFireFloor
	}
	if mod < floor {
		return floor
	}
	return mod
}

// Sweep describes what caused the damage being resolved.
type Sweep struct {
	Murderer         unit.Handle
	Weapon           string
	TerrainExplosion bool
}

// Casualty is a finalized death or knockout.
type Casualty struct {
	Victim   unit.Handle
	Murderer unit.Handle
	// Credited owns the kill record: the murderer, or its mind controller.
	Credited unit.Handle
	Outcome  Outcome
	Weapon   string
	// MurdererMorale is the morale change applied to the murderer.
	MurdererMorale int
}

// LoggingFields describes the casualty for structured logs.
func (c Casualty) LoggingFields() []logging.Field {
	return []logging.Field{
		logging.Int("victim", c.Victim.Index),
		logging.Int("murderer", c.Murderer.Index),
		logging.Int("credited", c.Credited.Index),
		logging.String("outcome", string(c.Outcome)),
		logging.String("weapon", c.Weapon),
		logging.Int("murderer_morale", c.MurdererMorale),
	}
}

// Resolver runs casualty sweeps over a roster.
type Resolver struct {
	roster *unit.Roster
	mods   Modifiers
	logger *logging.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithModifiers overrides the morale modifiers.
func WithModifiers(m Modifiers) Option {
	return func(r *Resolver) { r.mods = m }
}

// WithLogger routes sweep diagnostics to the provided logger.
func WithLogger(l *logging.Logger) Option {
	return func(r *Resolver) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewResolver creates a resolver bound to the roster.
func NewResolver(roster *unit.Roster, opts ...Option) *Resolver {
	r := &Resolver{roster: roster, mods: DefaultModifiers(), logger: logging.L()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetModifiers replaces the morale modifiers.
func (r *Resolver) SetModifiers(m Modifiers) { r.mods = m }

// Resolve sweeps every actor and returns the casualties in roster order. Victims transition
// to their final status before Resolve returns.
func (r *Resolver) Resolve(ctx context.Context, sweep Sweep) []Casualty {
	if r == nil || r.roster == nil {
		return nil
	}
	explicit := r.roster.Get(sweep.Murderer)

	var casualties []Casualty
	for _, victim := range r.roster.All() {
		status := victim.Status()
		if status == unit.StatusIgnored || status == unit.StatusDead {
			continue
		}
		death := victim.Pools.Health <= 0
		knockout := !death && victim.Pools.Stun >= victim.Pools.Health && status != unit.StatusUnconscious
		if !death && !knockout {
			continue
		}

		//1.- Without an explicit murderer the last attacker takes the credit, per victim.
		murderer := explicit
		if murderer == nil && !sweep.TerrainExplosion {
			murderer = r.roster.Get(victim.LastAttacker)
		}
		murderer = r.throughDeathBlast(murderer)

		//2.- A mind-controlled murderer keeps the morale, its controller keeps the record.
		credited := murderer
		if murderer != nil && murderer.Faction == unit.FactionPlayer && murderer.OriginalFaction != unit.FactionPlayer {
			if controller := r.roster.Get(murderer.MindController); controller != nil && controller.Soldier {
				credited = controller
			}
		}

		c := Casualty{Victim: victim.Handle, Weapon: sweep.Weapon, Outcome: OutcomeUnconscious}
		if murderer != nil {
			c.Murderer = murderer.Handle
			c.Credited = credited.Handle
			victim.KilledBy = credited.Handle
		}
		if death {
			c.Outcome = OutcomeDeath
			c.MurdererMorale = r.creditKill(victim, murderer)
			r.shockSides(victim)
			if err := victim.Transition(ctx, unit.EventKill); err != nil {
				r.logger.Warn("casualty transition failed", logging.Error(err), logging.Int("victim", victim.ID))
			}
		} else if err := victim.Transition(ctx, unit.EventKnockout); err != nil {
			r.logger.Warn("casualty transition failed", logging.Error(err), logging.Int("victim", victim.ID))
		}
		r.logger.Debug("casualty resolved", c.LoggingFields()...)
		casualties = append(casualties, c)
	}
	return casualties
}

// throughDeathBlast swaps a dead exploding murderer for whoever killed it.
func (r *Resolver) throughDeathBlast(m *unit.Actor) *unit.Actor {
	if m == nil || m.Soldier || !m.ExplodesOnDeath || m.Status() != unit.StatusDead || !m.KilledBy.Valid() {
		return m
	}
	if killer := r.roster.Get(m.KilledBy); killer != nil {
		return killer
	}
	return m
}

func (r *Resolver) creditKill(victim, murderer *unit.Actor) int {
	if murderer == nil {
		return 0
	}
	murderer.Kills++
	modifier := DefaultFactionModifier
	if murderer.Faction == unit.FactionPlayer {
		modifier = r.mods.faction(true)
	}
	delta := 0
	if (victim.OriginalFaction == unit.FactionPlayer && murderer.Faction == unit.FactionHostile) ||
		(victim.OriginalFaction == unit.FactionHostile && murderer.Faction == unit.FactionPlayer) {
		delta += opposingKillBonus * modifier / 100
	}
	if victim.OriginalFaction == murderer.OriginalFaction {
		delta -= friendlyFirePenalty / r.mods.clamp(modifier)
	}
	if victim.OriginalFaction == unit.FactionNeutral {
		if murderer.OriginalFaction == unit.FactionPlayer {
			delta -= neutralKillPenalty / r.mods.clamp(modifier)
		} else {
			delta += neutralKillBonus
		}
	}
	murderer.Pools.Morale += delta
	murderer.ClampMorale()
	return delta
}

func (r *Resolver) shockSides(victim *unit.Actor) {
	if victim.Faction == unit.FactionNeutral {
		return
	}
	unitMod := DefaultFactionModifier
	if victim.Faction == unit.FactionPlayer {
		unitMod = r.mods.faction(true)
	}
	loserMod := r.mods.faction(victim.OriginalFaction != unit.FactionHostile)
	winnerMod := r.mods.faction(victim.OriginalFaction == unit.FactionHostile)
	for _, other := range r.roster.All() {
		if other == victim || other.Out() || other.Size != 1 {
			continue
		}
		if other.OriginalFaction == victim.OriginalFaction {
			other.Pools.Morale -= unitMod * allyLossScale * other.BraveryFactor() / loserMod / 100
		} else {
			other.Pools.Morale += winnerBonus * winnerMod / 100
		}
		other.ClampMorale()
	}
}

// Conversions returns the actors that turn into their spawn type: alive, conscious and flagged.
func (r *Resolver) Conversions() []unit.Handle {
	if r == nil || r.roster == nil {
		return nil
	}
	var out []unit.Handle
	for _, a := range r.roster.All() {
		if a.Respawn && a.SpawnType != "" && a.Pools.Health > 0 && a.Pools.Health >= a.Pools.Stun && !a.Out() {
			out = append(out, a.Handle)
		}
	}
	return out
}
