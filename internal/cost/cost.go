package cost

import (
	"errors"
	"fmt"
)

// Reason names the single pool check that rejected a cost.
type Reason string

const (
	// ReasonNone is reported for affordable costs and for zero time-unit costs.
	ReasonNone Reason = ""
	// ReasonTimeUnits rejects costs above the available time units.
	ReasonTimeUnits Reason = "time-units"
	// ReasonEnergy rejects costs above the available energy.
	ReasonEnergy Reason = "energy"
	// ReasonMorale rejects actors whose morale does not exceed the floor.
	ReasonMorale Reason = "morale"
	// ReasonHealth rejects actors whose health does not exceed the floor.
	ReasonHealth Reason = "health"
	// ReasonStun rejects actors too close to losing consciousness.
	ReasonStun Reason = "stun"
)

var (
	// ErrNoAction marks a cost without time units; it is never surfaced as a failure reason.
	ErrNoAction = errors.New("cost: zero time-unit cost is not an action")
	// ErrInsufficientTimeUnits matches AffordError values failing on time units.
	ErrInsufficientTimeUnits = errors.New("insufficient time units")
	// ErrInsufficientEnergy matches AffordError values failing on energy.
	ErrInsufficientEnergy = errors.New("insufficient energy")
	// ErrInsufficientMorale matches AffordError values failing on morale.
	ErrInsufficientMorale = errors.New("insufficient morale")
	// ErrInsufficientHealth matches AffordError values failing on health.
	ErrInsufficientHealth = errors.New("insufficient health")
	// ErrTooStunned matches AffordError values failing on stun.
	ErrTooStunned = errors.New("too stunned")
)

var reasonErrors = map[Reason]error{
	ReasonTimeUnits: ErrInsufficientTimeUnits,
	ReasonEnergy:    ErrInsufficientEnergy,
	ReasonMorale:    ErrInsufficientMorale,
	ReasonHealth:    ErrInsufficientHealth,
	ReasonStun:      ErrTooStunned,
}

// Err converts the reason into its sentinel error, or nil for ReasonNone.
func (r Reason) Err() error {
	return reasonErrors[r]
}

// AffordError reports a rejected spend together with the failing reason.
type AffordError struct {
	Reason Reason
	Cost   Cost
}

func (e *AffordError) Error() string {
	return fmt.Sprintf("cannot afford %s: %s", e.Cost, e.Reason)
}

// Unwrap lets errors.Is match the reason sentinel.
func (e *AffordError) Unwrap() error {
	return e.Reason.Err()
}

// Cost is the resolved price of a single action instance.
type Cost struct {
	TimeUnits   int
	Energy      int
	MoraleFloor int
	HealthFloor int
	StunFloor   int
}

func (c Cost) String() string {
	return fmt.Sprintf("tu=%d energy=%d morale>%d health>%d stun>%d", c.TimeUnits, c.Energy, c.MoraleFloor, c.HealthFloor, c.StunFloor)
}

// Add sums two costs field by field.
func (c Cost) Add(other Cost) Cost {
	return Cost{
		TimeUnits:   c.TimeUnits + other.TimeUnits,
		Energy:      c.Energy + other.Energy,
		MoraleFloor: c.MoraleFloor + other.MoraleFloor,
		HealthFloor: c.HealthFloor + other.HealthFloor,
		StunFloor:   c.StunFloor + other.StunFloor,
	}
}

// validate panics on negative fields; a negative cost means the caller computed it wrong.
func (c Cost) validate() {
	if c.TimeUnits < 0 || c.Energy < 0 || c.MoraleFloor < 0 || c.HealthFloor < 0 || c.StunFloor < 0 {
		panic(fmt.Sprintf("cost: negative resolved cost %s", c))
	}
}

// Pools holds the depletable resources of an actor.
type Pools struct {
	TimeUnits int `json:"time_units"`
	Energy    int `json:"energy"`
	Health    int `json:"health"`
	Stun      int `json:"stun"`
	Morale    int `json:"morale"`
}

// CanAfford checks the pools against the cost in the fixed order time units, energy,
// morale, health, stun and reports the first failing check.
func CanAfford(p Pools, c Cost) (bool, Reason) {
	c.validate()
	if c.TimeUnits == 0 {
		return false, ReasonNone
	}
	switch {
	case c.TimeUnits > p.TimeUnits:
		return false, ReasonTimeUnits
	case c.Energy > p.Energy:
		return false, ReasonEnergy
	case p.Morale <= c.MoraleFloor:
		return false, ReasonMorale
	case p.Health <= c.HealthFloor:
		return false, ReasonHealth
	case p.Health-p.Stun <= c.StunFloor+c.HealthFloor:
		return false, ReasonStun
	}
	return true, ReasonNone
}

// Spend deducts time units and energy when the cost is affordable. Nothing is deducted
// otherwise. A zero time-unit cost returns ErrNoAction.
func Spend(p *Pools, c Cost) error {
	if p == nil {
		panic("cost: spend on nil pools")
	}
	ok, reason := CanAfford(*p, c)
	if !ok {
		if reason == ReasonNone {
			return ErrNoAction
		}
		return &AffordError{Reason: reason, Cost: c}
	}
	p.TimeUnits -= c.TimeUnits
	p.Energy -= c.Energy
	return nil
}
