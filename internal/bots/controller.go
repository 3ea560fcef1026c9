package bots

import (
	"context"
	"errors"
	"sync"

	"squadfire/battlecore/internal/action"
	"squadfire/battlecore/internal/ai"
	"squadfire/battlecore/internal/battle"
	"squadfire/battlecore/internal/logging"
	"squadfire/battlecore/internal/mission"
	"squadfire/battlecore/internal/unit"
)

// DefaultActionBound caps the actions one soldier attempts per turn.
const DefaultActionBound = 6

// Commander is the part of the battle a squad controller drives. *battle.Game satisfies it.
type Commander interface {
	ai.Awareness
	Session() battle.Session
	Outcome() mission.Outcome
	Queued() []action.Kind
	Roster() *unit.Roster
	Select(h unit.Handle) error
	SubmitAction(ctx context.Context, p action.Pending) error
	RequestEndTurn(ctx context.Context, confirm bool) bool
}

// Planner builds the behavior that picks actions for one soldier.
type Planner func(h unit.Handle, world ai.Awareness) action.Behavior

// DoctrinePlanner plans soldiers with the doctrine's rule table.
func DoctrinePlanner(d *ai.Doctrine) Planner {
	return func(h unit.Handle, world ai.Awareness) action.Behavior {
		return d.For(h, world)
	}
}

// Snapshot exposes what the controller has done for metrics export.
type Snapshot struct {
	Turn      int
	Submitted int
	Refused   int
	EndTurns  int
}

// ControllerConfig configures the squad controller.
type ControllerConfig struct {
	Side unit.Faction
	// ActionBound caps the proposals asked of one soldier per turn.
	ActionBound int
	// MinTimeUnits retires a soldier for the turn once its pool falls below it.
	MinTimeUnits int
	Planner      Planner
	Logger       *logging.Logger
}

// Controller plays one side through the same requests a human player would issue.
type Controller struct {
	mu sync.Mutex

	side      unit.Faction
	bound     int
	minTU     int
	planner   Planner
	log       *logging.Logger
	behaviors map[unit.Handle]action.Behavior

	turn   int
	counts map[unit.Handle]int
	ended  bool
	stats  Snapshot
}

// NewController constructs a controller for the configured side.
func NewController(cfg ControllerConfig) *Controller {
	c := &Controller{
		side:      cfg.Side,
		bound:     cfg.ActionBound,
		minTU:     cfg.MinTimeUnits,
		planner:   cfg.Planner,
		log:       cfg.Logger,
		behaviors: make(map[unit.Handle]action.Behavior),
		counts:    make(map[unit.Handle]int),
	}
	//1.- Fall back to the stock doctrine and a sane per-turn bound.
	if c.bound <= 0 {
		c.bound = DefaultActionBound
	}
	if c.planner == nil {
		c.planner = DoctrinePlanner(ai.Default())
	}
	if c.log == nil {
		c.log = logging.L()
	}
	return c
}

// Step issues at most one request and reports whether it did. It must run on the goroutine
// that owns the battle, between ticks.
func (c *Controller) Step(ctx context.Context, cmd Commander) bool {
	if c == nil || cmd == nil {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if cmd.Outcome().Finished {
		return false
	}
	session := cmd.Session()
	if session.Side != c.side || len(cmd.Queued()) > 0 {
		return false
	}
	//1.- A new turn clears the per-soldier budgets.
	if session.Turn != c.turn {
		c.turn = session.Turn
		c.stats.Turn = session.Turn
		c.ended = false
		clear(c.counts)
	}
	if c.ended {
		return false
	}

	for _, a := range cmd.Roster().All() {
		for c.ready(a) {
			if c.act(ctx, cmd, a) {
				return true
			}
		}
	}

	//2.- Nobody has anything left to try this turn.
	if cmd.RequestEndTurn(ctx, false) {
		c.ended = true
		c.stats.EndTurns++
		c.log.Debug("squad controller ended turn", logging.Int("turn", session.Turn), logging.String("side", c.side.String()))
		return true
	}
	return false
}

func (c *Controller) ready(a *unit.Actor) bool {
	if !a.Selectable(c.side, false) || c.counts[a.Handle] >= c.bound {
		return false
	}
	return a.Pools.TimeUnits >= c.minTU
}

// act asks the soldier's behavior for one proposal and submits it.
func (c *Controller) act(ctx context.Context, cmd Commander, a *unit.Actor) bool {
	behavior, ok := c.behaviors[a.Handle]
	if !ok {
		behavior = c.planner(a.Handle, cmd)
		c.behaviors[a.Handle] = behavior
	}
	c.counts[a.Handle]++
	number := c.counts[a.Handle]
	proposal := behavior.ProposeAction(number)
	if proposal.Kind == action.KindRethink {
		proposal = behavior.ProposeAction(number)
	}
	if proposal.Kind == action.KindNone || proposal.Kind == action.KindRethink {
		//1.- An idle proposal retires the soldier for the rest of the turn.
		c.counts[a.Handle] = c.bound
		return false
	}
	proposal.Actor = a.Handle
	if err := cmd.Select(a.Handle); err != nil {
		c.counts[a.Handle] = c.bound
		return false
	}
	if err := cmd.SubmitAction(ctx, proposal); err != nil {
		c.stats.Refused++
		if errors.Is(err, battle.ErrBattleOver) {
			c.ended = true
		}
		c.log.Debug("squad controller request refused",
			logging.Int("actor", a.ID),
			logging.String("action", proposal.Kind.String()),
			logging.Error(err),
		)
		return false
	}
	c.stats.Submitted++
	return true
}

// Snapshot returns the controller counters.
func (c *Controller) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// Reset forgets behaviors and budgets so a restored battle starts clean.
func (c *Controller) Reset() {
	if c == nil {
		return
	}
	c.mu.Lock()
	clear(c.behaviors)
	clear(c.counts)
	c.turn = 0
	c.ended = false
	c.mu.Unlock()
}
