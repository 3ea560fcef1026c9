package unit

import (
	"context"

	"github.com/looplab/fsm"

	"squadfire/battlecore/internal/cost"
	"squadfire/battlecore/internal/dice"
	"squadfire/battlecore/internal/geom"
)

// Faction identifies a side. Sides take turns in declaration order.
type Faction int

const (
	FactionPlayer Faction = iota
	FactionHostile
	FactionNeutral
)

func (f Faction) String() string {
	switch f {
	case FactionPlayer:
		return "player"
	case FactionHostile:
		return "hostile"
	case FactionNeutral:
		return "neutral"
	default:
		return "unknown"
	}
}

// ParseFaction maps a textual side name.
func ParseFaction(raw string) (Faction, bool) {
	switch raw {
	case "player":
		return FactionPlayer, true
	case "hostile":
		return FactionHostile, true
	case "neutral":
		return FactionNeutral, true
	}
	return FactionPlayer, false
}

// Next returns the side that plays after f.
func (f Faction) Next() Faction { return (f + 1) % 3 }

// Stats are the base attributes an actor recovers towards.
type Stats struct {
	TimeUnits        int `json:"timeUnits" yaml:"timeUnits"`
	Energy           int `json:"energy" yaml:"energy"`
	Health           int `json:"health" yaml:"health"`
	Bravery          int `json:"bravery" yaml:"bravery"`
	Reactions        int `json:"reactions" yaml:"reactions"`
	FiringAccuracy   int `json:"firing" yaml:"firing"`
	ThrowingAccuracy int `json:"throwing" yaml:"throwing"`
	Melee            int `json:"melee" yaml:"melee"`
	PsiStrength      int `json:"psiStrength" yaml:"psiStrength"`
	PsiSkill         int `json:"psiSkill" yaml:"psiSkill"`
}

// Actor is a combatant on the battlefield.
type Actor struct {
	ID              int
	Handle          Handle
	Name            string
	Type            string
	Soldier         bool
	Faction         Faction
	OriginalFaction Faction
	Position        geom.Position
	Direction       geom.Direction
	Size            int
	Stats           Stats
	Pools           cost.Pools
	FatalWounds     int

	Kills int
	// Murderer is set by damage for the current casualty sweep; KilledBy keeps the final credit.
	Murderer     Handle
	KilledBy     Handle
	LastAttacker Handle
	// ExplodesOnDeath marks actors whose death is itself a triggered explosion.
	ExplodesOnDeath bool
	MindController  Handle

	DontReselect bool
	Charging     Handle
	AggroSound   string
	VisibleUnits []Handle

	SpawnType string
	Respawn   bool

	AutoSurrender    bool
	CanSurrender     bool
	WantsToSurrender bool

	MainHand ItemHandle
	OffHand  ItemHandle

	status *fsm.FSM
}

// Status returns the current lifecycle state.
func (a *Actor) Status() Status {
	if a == nil || a.status == nil {
		return StatusIgnored
	}
	return Status(a.status.Current())
}

// Out reports whether the actor no longer takes part in the battle.
func (a *Actor) Out() bool {
	switch a.Status() {
	case StatusDead, StatusUnconscious, StatusIgnored:
		return true
	}
	return false
}

// Transition applies a status event.
func (a *Actor) Transition(ctx context.Context, event Event) error {
	if a == nil || a.status == nil {
		return ErrIllegalTransition
	}
	return fire(ctx, a.status, event)
}

// Can reports whether the event applies to the current status.
func (a *Actor) Can(event Event) bool {
	return a != nil && a.status != nil && a.status.Can(string(event))
}

// restoreStatus forces a status without running callbacks; used when loading snapshots.
func (a *Actor) restoreStatus(s Status) {
	if a.status != nil {
		a.status.SetState(string(s))
	}
}

// Selectable reports whether the actor can be picked by the side.
func (a *Actor) Selectable(side Faction, checkReselect bool) bool {
	if a == nil || a.Out() || a.Faction != side {
		return false
	}
	return !checkReselect || !a.DontReselect
}

// HasEmptyHands reports whether the actor holds nothing.
func (a *Actor) HasEmptyHands() bool {
	return !a.MainHand.Valid() && !a.OffHand.Valid()
}

// BraveryFactor converts bravery into the morale-loss multiplier used on ally deaths.
func (a *Actor) BraveryFactor() int {
	return (110 - a.Stats.Bravery) / 10
}

// Sees reports whether target is in the actor's visible list.
func (a *Actor) Sees(target Handle) bool {
	for _, h := range a.VisibleUnits {
		if h == target {
			return true
		}
	}
	return false
}

// PrepareNewTurn restores pools at the start of the actor's side turn and rolls for panic.
func (a *Actor) PrepareNewTurn(ctx context.Context, src dice.Source) {
	if a == nil || a.Status() == StatusDead || a.Status() == StatusIgnored {
		return
	}
	a.DontReselect = false
	a.Charging = Handle{}
	//1.- Stun wears off and fatal wounds bleed.
	if a.Pools.Stun > 0 {
		a.Pools.Stun--
	}
	if a.FatalWounds > 0 {
		a.Pools.Health -= a.FatalWounds
		if a.Pools.Health < 0 {
			a.Pools.Health = 0
		}
	}
	if a.Status() == StatusUnconscious {
		if a.Pools.Health > 0 && a.Pools.Stun < a.Pools.Health {
			_ = a.Transition(ctx, EventWake)
		} else {
			return
		}
	}
	//2.- Time units refill and energy recovers by a third of its base.
	a.Pools.TimeUnits = a.Stats.TimeUnits
	a.Pools.Energy += a.Stats.Energy / 3
	if a.Pools.Energy > a.Stats.Energy {
		a.Pools.Energy = a.Stats.Energy
	}
	if a.Status() == StatusPanicking || a.Status() == StatusBerserk {
		_ = a.Transition(ctx, EventRecover)
	}
	//3.- Low morale may break the actor.
	if src == nil || a.Pools.Morale >= 50 {
		return
	}
	chance := 100 - 2*a.Pools.Morale
	if dice.Gen(src, 0, 100) > chance {
		return
	}
	if dice.Gen(src, 0, 100) <= 33 {
		_ = a.Transition(ctx, EventBerserk)
	} else {
		_ = a.Transition(ctx, EventPanic)
	}
	a.Pools.Morale += 15
}

// ClampMorale keeps morale in 0..100.
func (a *Actor) ClampMorale() {
	if a.Pools.Morale < 0 {
		a.Pools.Morale = 0
	}
	if a.Pools.Morale > 100 {
		a.Pools.Morale = 100
	}
}
