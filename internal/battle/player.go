package battle

import (
	"context"
	"errors"
	"fmt"

	"squadfire/battlecore/internal/action"
	"squadfire/battlecore/internal/combat"
	"squadfire/battlecore/internal/cost"
	"squadfire/battlecore/internal/geom"
	"squadfire/battlecore/internal/logging"
	"squadfire/battlecore/internal/mission"
	"squadfire/battlecore/internal/tasks"
	"squadfire/battlecore/internal/unit"
)

// controllable resolves an actor the local player may command right now.
func (g *Game) controllable(h unit.Handle) (*unit.Actor, error) {
	if g.outcome.Finished {
		return nil, ErrBattleOver
	}
	if g.session.Side != unit.FactionPlayer && !g.session.DebugPlay {
		return nil, ErrNotActive
	}
	a := g.roster.Get(h)
	if !a.Selectable(g.session.Side, false) {
		return nil, ErrNotActive
	}
	if !g.queue.Empty() {
		return nil, ErrBusy
	}
	return a, nil
}

// Select makes the actor the current selection of the active side.
func (g *Game) Select(h unit.Handle) error {
	if _, err := g.controllable(h); err != nil {
		return err
	}
	if h != g.selected {
		g.cancelTargeting()
	}
	g.selected = h
	return nil
}

// SubmitAction validates a player request and queues its tasks. Nothing is mutated when the
// request is refused.
func (g *Game) SubmitAction(ctx context.Context, p action.Pending) error {
	a, err := g.controllable(p.Actor)
	if err != nil {
		return err
	}
	p.Result = ""
	switch {
	case p.Kind == action.KindWalk:
		if !g.checkReservedTU(a, action.WalkStepTimeUnits, action.KindWalk) {
			return ErrReserved
		}
		if !g.paths.ComputePath(a.Position, p.Target, a.ID) {
			return ErrNoPath
		}
		if _, ok := g.paths.FirstStepDirection(); !ok {
			return ErrNoPath
		}
		g.pushBack(ctx, newWalkTask(g, p))
	case p.Kind == action.KindTurn:
		g.pushBack(ctx, newTurnTask(g, p, true))
	case p.Kind == action.KindKneel:
		return g.kneel(ctx, a)
	case p.Kind == action.KindPrime:
		item := g.itemFor(a, p.Weapon)
		if item == nil {
			return ErrNoWeapon
		}
		return g.prime(ctx, a, item, p.Number)
	case p.Kind.Attack() || p.Kind.Psionic():
		item := g.itemFor(a, p.Weapon)
		if item == nil {
			return ErrNoWeapon
		}
		if !item.Weapon.Supports(p.Kind.Mode()) {
			return ErrUnsupported
		}
		if p.Kind == action.KindLaunch {
			//1.- Launches fly through the targeted waypoints and end at the last one.
			if len(p.Waypoints) == 0 && g.current.Kind == action.KindLaunch && g.current.Actor == a.Handle {
				p.Waypoints = append(p.Waypoints, g.current.Waypoints...)
			}
			if len(p.Waypoints) > item.Weapon.Waypoints && item.Weapon.Waypoints > 0 {
				return ErrWaypointLimit
			}
			if n := len(p.Waypoints); n > 0 {
				p.Target = p.Waypoints[n-1]
			}
		}
		if p.Kind == action.KindMelee && !adjacent(a.Position, p.Target) {
			return ErrNotAdjacent
		}
		p.Weapon = item.Handle
		p.Cost = action.Price(p.Kind, item.Weapon, a)
		//2.- Reserved time units only protect the shots they are reserved for.
		if !p.Kind.Shot() && p.Kind != action.KindMelee && !g.checkReservedTU(a, p.Cost.TimeUnits, p.Kind) {
			return ErrReserved
		}
		if ok, reason := cost.CanAfford(a.Pools, p.Cost); !ok {
			g.metrics.refused(ctx, reason)
			return &cost.AffordError{Reason: reason, Cost: p.Cost}
		}
		g.current.Targeting = false
		g.queueAttack(ctx, p)
	default:
		return fmt.Errorf("%w: %s", ErrUnsupported, p.Kind)
	}
	g.selected = a.Handle
	return nil
}

// BeginTargeting starts a targeting action for the actor with the item.
func (g *Game) BeginTargeting(h unit.Handle, kind action.Kind, weapon unit.ItemHandle) error {
	a, err := g.controllable(h)
	if err != nil {
		return err
	}
	item := g.itemFor(a, weapon)
	if item == nil {
		return ErrNoWeapon
	}
	if !item.Weapon.Supports(kind.Mode()) {
		return ErrUnsupported
	}
	g.current = action.Pending{Actor: a.Handle, Kind: kind, Weapon: item.Handle, Targeting: true}
	return nil
}

// AddWaypoint appends a waypoint to the launch being targeted.
func (g *Game) AddWaypoint(p geom.Position) error {
	if !g.current.Targeting || g.current.Kind != action.KindLaunch {
		return ErrNotTargeting
	}
	item := g.armory.Get(g.current.Weapon)
	if item == nil {
		return ErrNoWeapon
	}
	if len(g.current.Waypoints) >= item.Weapon.Waypoints {
		return ErrWaypointLimit
	}
	g.current.Waypoints = append(g.current.Waypoints, p)
	g.current.Target = p
	return nil
}

// Cancel aborts the executing task when there is one. Otherwise it removes the last launch
// waypoint, or drops the targeting action once no waypoint is left. It reports whether
// anything was cancelled.
func (g *Game) Cancel() bool {
	if front, ok := g.queue.Front(); ok && front != nil {
		front.Cancel()
		return true
	}
	if !g.current.Targeting {
		return false
	}
	if n := len(g.current.Waypoints); n > 0 {
		g.current.Waypoints = g.current.Waypoints[:n-1]
		if n > 1 {
			g.current.Target = g.current.Waypoints[n-2]
		}
		return true
	}
	g.cancelTargeting()
	return true
}

// Kneel toggles kneeling for a soldier of the active side.
func (g *Game) Kneel(ctx context.Context, h unit.Handle) error {
	a, err := g.controllable(h)
	if err != nil {
		return err
	}
	return g.kneel(ctx, a)
}

func (g *Game) kneel(ctx context.Context, a *unit.Actor) error {
	if !a.Soldier {
		return ErrNotSoldier
	}
	price := action.Price(action.KindKneel, nil, a)
	if !g.checkReservedTU(a, price.TimeUnits, action.KindKneel) {
		return ErrReserved
	}
	if err := cost.Spend(&a.Pools, price); err != nil {
		var afford *cost.AffordError
		if errors.As(err, &afford) {
			g.metrics.refused(ctx, afford.Reason)
		}
		return err
	}
	event := unit.EventKneel
	if a.Status() == unit.StatusKneeling {
		event = unit.EventStand
	}
	if err := a.Transition(ctx, event); err != nil {
		return err
	}
	g.logger.Debug("actor posture changed", logging.Int("actor", a.ID), logging.String("status", string(a.Status())))
	return nil
}

// PrimeGrenade sets the fuse of a held grenade.
func (g *Game) PrimeGrenade(ctx context.Context, h unit.Handle, item unit.ItemHandle, fuse int) error {
	a, err := g.controllable(h)
	if err != nil {
		return err
	}
	it := g.itemFor(a, item)
	if it == nil {
		return ErrNoWeapon
	}
	return g.prime(ctx, a, it, fuse)
}

func (g *Game) prime(ctx context.Context, a *unit.Actor, item *unit.Item, fuse int) error {
	w := item.Weapon
	if !w.Grenade() || !w.Supports(combat.ModePrime) {
		return ErrUnsupported
	}
	if w.FuseType == combat.FuseInstant || fuse < 0 {
		fuse = 0
	}
	price := action.Price(action.KindPrime, w, a)
	if !g.checkReservedTU(a, price.TimeUnits, action.KindPrime) {
		return ErrReserved
	}
	if err := cost.Spend(&a.Pools, price); err != nil {
		var afford *cost.AffordError
		if errors.As(err, &afford) {
			g.metrics.refused(ctx, afford.Reason)
		}
		return err
	}
	item.FuseTimer = fuse
	g.logger.Debug("grenade primed", logging.Int("actor", a.ID), logging.String("weapon", w.ID), logging.Int("fuse", fuse))
	return nil
}

// SetReserve changes the player's time-unit reservation.
func (g *Game) SetReserve(mode cost.ReserveMode) error {
	switch mode {
	case cost.ReserveNone, cost.ReserveSnap, cost.ReserveAuto, cost.ReserveAimed:
		g.session.Reserve = mode
		return nil
	case cost.ReserveKneel:
		g.session.KneelReserved = true
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownMode, mode)
}

// SetKneelReserved toggles keeping time units back to kneel.
func (g *Game) SetKneelReserved(on bool) { g.session.KneelReserved = on }

// checkReservedTU reports whether spending tu leaves the reservation of the actor's side
// intact. Actors acting outside their own side's turn never hit the reserve.
func (g *Game) checkReservedTU(a *unit.Actor, tu int, kind action.Kind) bool {
	if a.Faction != g.session.Side {
		return tu <= a.Pools.TimeUnits
	}
	reserved := 0
	switch a.Faction {
	case unit.FactionPlayer:
		kneelReserve := g.session.KneelReserved && a.Soldier && a.Status() == unit.StatusStanding && kind != action.KindKneel
		_, reserved = cost.PlayerReserve(g.session.Reserve, g.modeCosts(a), kneelReserve)
	case unit.FactionHostile:
		if rm, ok := g.behaviors[a.Handle].(action.ReserveModer); ok {
			reserved = cost.HostileReserve(rm.ReserveMode(), a.Stats.TimeUnits)
		}
	}
	return tu+reserved <= a.Pools.TimeUnits
}

func (g *Game) modeCosts(a *unit.Actor) cost.ModeCosts {
	item := g.armory.Held(a)
	if item == nil {
		return cost.ModeCosts{}
	}
	base := a.Stats.TimeUnits
	return cost.ModeCosts{
		Snap:  item.Weapon.TimeUnits(combat.ModeSnap, base),
		Auto:  item.Weapon.TimeUnits(combat.ModeAuto, base),
		Aimed: item.Weapon.TimeUnits(combat.ModeAimed, base),
	}
}

// Snapshot is the persisted battle state between ticks.
type Snapshot struct {
	MissionID string                `json:"missionId"`
	Turn      int                   `json:"turn"`
	Side      unit.Faction          `json:"side"`
	Reserve   cost.ReserveMode      `json:"reserve"`
	Pools     map[int]cost.Pools    `json:"pools"`
	Statuses  map[int]unit.Status   `json:"statuses"`
	Positions map[int]geom.Position `json:"positions"`
	Kills     map[int]int           `json:"kills,omitempty"`
}

// Snapshot captures the per-actor state and the session position.
func (g *Game) Snapshot() Snapshot {
	s := Snapshot{
		MissionID: g.session.MissionID,
		Turn:      g.session.Turn,
		Side:      g.session.Side,
		Reserve:   g.session.Reserve,
		Pools:     make(map[int]cost.Pools),
		Statuses:  make(map[int]unit.Status),
		Positions: make(map[int]geom.Position),
		Kills:     make(map[int]int),
	}
	for _, a := range g.roster.All() {
		s.Pools[a.ID] = a.Pools
		s.Statuses[a.ID] = a.Status()
		s.Positions[a.ID] = a.Position
		if a.Kills > 0 {
			s.Kills[a.ID] = a.Kills
		}
	}
	return s
}

// Restore applies a snapshot taken from the same roster. The queue is cleared.
func (g *Game) Restore(s Snapshot) error {
	for id := range s.Statuses {
		if g.roster.ByID(id) == nil {
			return fmt.Errorf("restore actor %d: %w", id, unit.ErrUnknownActor)
		}
	}
	for id, status := range s.Statuses {
		a := g.roster.ByID(id)
		if err := g.roster.Restore(a.Handle, status); err != nil {
			return fmt.Errorf("restore actor %d: %w", id, err)
		}
		if p, ok := s.Pools[id]; ok {
			a.Pools = p
		}
		if p, ok := s.Positions[id]; ok {
			a.Position = p
		}
		a.Kills = s.Kills[id]
	}
	if s.MissionID != "" {
		g.session.MissionID = s.MissionID
	}
	g.session.Turn = s.Turn
	g.session.Side = s.Side
	if s.Reserve != "" {
		g.session.Reserve = s.Reserve
	}
	for !g.queue.Empty() {
		g.queue.PopFront()
	}
	g.queue.CollectGarbage()
	g.started = make(map[tasks.Task]bool)
	g.cancelTargeting()
	g.endTurnRequested = false
	g.outcome = mission.Outcome{}
	g.refreshVisibility()
	g.selected = g.roster.NextSelectable(g.session.Side, unit.Handle{}, false)
	return nil
}
