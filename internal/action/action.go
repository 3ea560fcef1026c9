// Package action describes the pending actions actors request and the behavior contract that
// proposes them.
package action

import (
	"squadfire/battlecore/internal/combat"
	"squadfire/battlecore/internal/cost"
	"squadfire/battlecore/internal/geom"
	"squadfire/battlecore/internal/unit"
)

// Kind enumerates what an actor wants to do.
type Kind int

const (
	KindNone Kind = iota
	KindWalk
	KindTurn
	KindKneel
	KindSnapshot
	KindAutoshot
	KindAimedShot
	KindThrow
	KindMelee
	KindMindControl
	KindPanic
	KindUse
	KindPrime
	KindLaunch
	KindRethink
)

var kindNames = map[Kind]string{
	KindNone:        "none",
	KindWalk:        "walk",
	KindTurn:        "turn",
	KindKneel:       "kneel",
	KindSnapshot:    "snapshot",
	KindAutoshot:    "autoshot",
	KindAimedShot:   "aimed",
	KindThrow:       "throw",
	KindMelee:       "melee",
	KindMindControl: "mindcontrol",
	KindPanic:       "panic",
	KindUse:         "use",
	KindPrime:       "prime",
	KindLaunch:      "launch",
	KindRethink:     "rethink",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// ParseKind maps a textual action name; unknown names map to KindNone.
func ParseKind(raw string) (Kind, bool) {
	for k, name := range kindNames {
		if name == raw {
			return k, true
		}
	}
	return KindNone, false
}

// Mode returns the weapon mode exercised by the action kind.
func (k Kind) Mode() combat.Mode {
	switch k {
	case KindSnapshot:
		return combat.ModeSnap
	case KindAutoshot:
		return combat.ModeAuto
	case KindAimedShot:
		return combat.ModeAimed
	case KindThrow:
		return combat.ModeThrow
	case KindMelee:
		return combat.ModeMelee
	case KindMindControl:
		return combat.ModeMindControl
	case KindPanic:
		return combat.ModePanic
	case KindUse:
		return combat.ModeUse
	case KindPrime:
		return combat.ModePrime
	case KindLaunch:
		return combat.ModeLaunch
	}
	return ""
}

// Shot reports whether the kind fires a projectile along a line.
func (k Kind) Shot() bool {
	return k == KindSnapshot || k == KindAutoshot || k == KindAimedShot || k == KindLaunch
}

// Attack reports whether the kind needs the actor to face the target first.
func (k Kind) Attack() bool {
	return k.Shot() || k == KindThrow || k == KindMelee
}

// Psionic reports whether the kind is resolved without facing or a projectile.
func (k Kind) Psionic() bool {
	return k == KindMindControl || k == KindPanic || k == KindUse
}

// Time-unit prices of actions not tied to a weapon.
const (
	WalkStepTimeUnits     = 4
	DiagonalStepTimeUnits = 6
	TurnStepTimeUnits     = 1
)

// Pending is an action an actor has requested but not yet executed.
type Pending struct {
	Actor      unit.Handle
	Kind       Kind
	Target     geom.Position
	TargetUnit unit.Handle
	Weapon     unit.ItemHandle
	Cost       cost.Cost
	Waypoints  []geom.Position
	// Number is the think-cycle counter the behavior proposed the action at.
	Number int
	// Result carries the failure message for the presentation layer.
	Result    string
	Targeting bool
}

// Clear resets the action to an idle state for the same actor.
func (p *Pending) Clear() {
	actor := p.Actor
	*p = Pending{Actor: actor}
}

// Price computes the cost of the action for the actor wielding the weapon.
func Price(kind Kind, weapon *combat.Weapon, actor *unit.Actor) cost.Cost {
	if actor == nil {
		return cost.Cost{}
	}
	switch kind {
	case KindWalk:
		return cost.Cost{TimeUnits: WalkStepTimeUnits}
	case KindTurn:
		return cost.Cost{TimeUnits: TurnStepTimeUnits}
	case KindKneel:
		if actor.Status() == unit.StatusKneeling {
			return cost.Cost{TimeUnits: cost.StandTimeUnits}
		}
		return cost.Cost{TimeUnits: cost.KneelTimeUnits}
	case KindNone, KindRethink:
		return cost.Cost{}
	}
	mode := kind.Mode()
	return cost.Cost{
		TimeUnits: weapon.TimeUnits(mode, actor.Stats.TimeUnits),
		Energy:    weapon.Energy(mode),
	}
}

// Behavior proposes actions for a non-player actor.
type Behavior interface {
	// ProposeAction returns the next action; KindRethink asks to be consulted once more.
	ProposeAction(number int) Pending
}

// ReserveModer is implemented by behaviors that hold back time units for a shot mode.
type ReserveModer interface {
	ReserveMode() cost.ReserveMode
}

// BehaviorFunc adapts a function to Behavior.
type BehaviorFunc func(number int) Pending

// ProposeAction implements Behavior.
func (f BehaviorFunc) ProposeAction(number int) Pending { return f(number) }
