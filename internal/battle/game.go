// Package battle sequences the action tasks of a tactical battle: it drives the AI side,
// runs player requests, resolves casualties and advances turns until the mission ends.
package battle

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"squadfire/battlecore/internal/action"
	"squadfire/battlecore/internal/casualty"
	"squadfire/battlecore/internal/combat"
	"squadfire/battlecore/internal/cost"
	"squadfire/battlecore/internal/dice"
	"squadfire/battlecore/internal/geom"
	"squadfire/battlecore/internal/logging"
	"squadfire/battlecore/internal/mission"
	"squadfire/battlecore/internal/tasks"
	"squadfire/battlecore/internal/trajectory"
	"squadfire/battlecore/internal/unit"
)

const (
	// DefaultAITimeUnitThreshold marks AI actors with this many time units or fewer as done for the turn.
	DefaultAITimeUnitThreshold = 5
	// DefaultAIActionBound is how many think cycles an AI actor gets per selection.
	DefaultAIActionBound = 2
	// viewDistance bounds the field of view in tiles.
	viewDistance = 20
)

var (
	ErrBattleOver    = errors.New("battle is over")
	ErrNotActive     = errors.New("actor cannot act on this turn")
	ErrBusy          = errors.New("an action is still executing")
	ErrNoWeapon      = errors.New("actor holds no suitable item")
	ErrUnsupported   = errors.New("item does not support the action")
	ErrReserved      = errors.New("time units are reserved")
	ErrNoPath        = errors.New("destination is unreachable")
	ErrNotSoldier    = errors.New("only soldiers can kneel")
	ErrNotTargeting  = errors.New("no targeting action in progress")
	ErrWaypointLimit = errors.New("waypoint limit reached")
	ErrUnknownMode   = errors.New("unknown reserve mode")
	ErrNotAdjacent   = errors.New("target is out of reach")
)

// Session holds the per-battle flags the orchestrator consults.
type Session struct {
	MissionID           string
	Turn                int
	Side                unit.Faction
	DebugPlay           bool
	Reserve             cost.ReserveMode
	KneelReserved       bool
	AITimeUnitThreshold int
	AIActionBound       int
}

// BehaviorFactory builds the behavior of a non-player actor.
type BehaviorFactory func(g *Game, a *unit.Actor) action.Behavior

// Spawner produces the actor a converted actor turns into.
type Spawner func(spawnType string, from *unit.Actor) (unit.Actor, bool)

// Option configures a Game.
type Option func(*Game)

// WithMissionID fixes the mission identifier instead of generating one.
func WithMissionID(id string) Option {
	return func(g *Game) {
		if id != "" {
			g.session.MissionID = id
		}
	}
}

// WithRules sets the mission rules checked at every end of turn.
func WithRules(r mission.Rules) Option {
	return func(g *Game) { g.rules = r }
}

// WithObjectives marks the tiles that count as destroyable objectives.
func WithObjectives(tiles []geom.Position) Option {
	return func(g *Game) {
		for _, p := range tiles {
			g.objectives[p] = true
		}
	}
}

// WithModifiers overrides the faction morale modifiers.
func WithModifiers(m casualty.Modifiers) Option {
	return func(g *Game) { g.modifiers = m }
}

// WithRandom injects the random source.
func WithRandom(src dice.Source) Option {
	return func(g *Game) {
		if src != nil {
			g.src = src
		}
	}
}

// WithThrowAttempts overrides the throw re-solve budget.
func WithThrowAttempts(n int) Option {
	return func(g *Game) { g.throwAttempts = n }
}

// WithAILimits overrides the AI time-unit threshold and action bound.
func WithAILimits(threshold, bound int) Option {
	return func(g *Game) {
		if threshold > 0 {
			g.session.AITimeUnitThreshold = threshold
		}
		if bound > 0 {
			g.session.AIActionBound = bound
		}
	}
}

// WithDebugPlay lets the player drive every side.
func WithDebugPlay(on bool) Option {
	return func(g *Game) { g.session.DebugPlay = on }
}

// WithSink routes notices to the presentation layer.
func WithSink(s Sink) Option {
	return func(g *Game) { g.sink = s }
}

// WithLogger routes diagnostics to the provided logger.
func WithLogger(l *logging.Logger) Option {
	return func(g *Game) {
		if l != nil {
			g.logger = l
		}
	}
}

// WithBehaviors installs the factory used for non-player actors.
func WithBehaviors(f BehaviorFactory) Option {
	return func(g *Game) { g.behaviorFactory = f }
}

// WithSpawner installs the conversion spawner.
func WithSpawner(s Spawner) Option {
	return func(g *Game) { g.spawner = s }
}

// Game is the battle orchestrator. It is not safe for concurrent use; the tick loop owns it.
type Game struct {
	session Session
	roster  *unit.Roster
	armory  *unit.Armory
	oracle  geom.Oracle
	paths   geom.Pathfinder
	src     dice.Source

	trajectory      *trajectory.Model
	resolver        *casualty.Resolver
	modifiers       casualty.Modifiers
	throwAttempts   int
	rules           mission.Rules
	objectives      map[geom.Position]bool
	behaviors       map[unit.Handle]action.Behavior
	behaviorFactory BehaviorFactory
	spawner         Spawner

	queue   tasks.Queue
	started map[tasks.Task]bool

	selected unit.Handle
	current  action.Pending

	aiActionCounter     int
	aiSecondMove        bool
	playedAggroSound    bool
	playerPanicHandled  bool
	endTurnRequested    bool
	confirmShown        bool
	objectivesDestroyed int
	outcome             mission.Outcome

	sink    Sink
	logger  *logging.Logger
	metrics *instruments
}

// New creates a battle over the roster and armory using the geometry and path oracles.
func New(roster *unit.Roster, armory *unit.Armory, oracle geom.Oracle, paths geom.Pathfinder, opts ...Option) *Game {
	g := &Game{
		session: Session{
			Turn:                1,
			Side:                unit.FactionPlayer,
			Reserve:             cost.ReserveNone,
			AITimeUnitThreshold: DefaultAITimeUnitThreshold,
			AIActionBound:       DefaultAIActionBound,
		},
		roster:             roster,
		armory:             armory,
		oracle:             oracle,
		paths:              paths,
		modifiers:          casualty.DefaultModifiers(),
		throwAttempts:      trajectory.DefaultThrowAttempts,
		objectives:         make(map[geom.Position]bool),
		behaviors:          make(map[unit.Handle]action.Behavior),
		started:            make(map[tasks.Task]bool),
		playerPanicHandled: true,
		logger:             logging.L(),
	}
	//1.- Apply options before wiring the collaborators that depend on them.
	for _, opt := range opts {
		if opt != nil {
			opt(g)
		}
	}
	if g.session.MissionID == "" {
		g.session.MissionID = uuid.NewString()
	}
	if g.src == nil {
		g.src = dice.New(time.Now().UnixNano())
	}
	if g.armory == nil {
		g.armory = unit.NewArmory()
	}
	if g.rules.Objective == mission.ObjectiveMustDestroy && g.rules.ObjectivesTotal == 0 {
		g.rules.ObjectivesTotal = len(g.objectives)
	}
	g.logger = g.logger.With(logging.String("mission_id", g.session.MissionID))
	//2.- Build the trajectory model and the casualty resolver over the shared state.
	g.trajectory = trajectory.New(oracle, g.src, trajectory.WithThrowAttempts(g.throwAttempts))
	g.resolver = casualty.NewResolver(roster, casualty.WithModifiers(g.modifiers), casualty.WithLogger(g.logger))
	metrics, err := newInstruments(g.queue.Len)
	if err != nil {
		g.logger.Warn("battle metrics disabled", logging.Error(err))
		metrics = noopInstruments()
	}
	g.metrics = metrics
	return g
}

// Start assigns behaviors, refreshes visibility and selects the first player actor.
func (g *Game) Start(ctx context.Context) {
	for _, a := range g.roster.All() {
		g.ensureBehavior(a)
	}
	g.refreshVisibility()
	g.checkForCasualties(ctx, casualty.Sweep{})
	g.selected = g.roster.NextSelectable(g.session.Side, unit.Handle{}, false)
	g.logger.Info("battle started", logging.Int("actors", g.roster.Len()), logging.String("side", g.session.Side.String()))
	g.publish(Notice{Kind: NoticeBattleStarted, Fields: map[string]any{"actors": g.roster.Len()}})
}

// Assign sets the behavior of a non-player actor.
func (g *Game) Assign(h unit.Handle, b action.Behavior) {
	if b == nil {
		delete(g.behaviors, h)
		return
	}
	g.behaviors[h] = b
}

func (g *Game) ensureBehavior(a *unit.Actor) {
	if a == nil || a.Faction == unit.FactionPlayer || g.behaviorFactory == nil {
		return
	}
	if _, ok := g.behaviors[a.Handle]; ok {
		return
	}
	if b := g.behaviorFactory(g, a); b != nil {
		g.behaviors[a.Handle] = b
	}
}

// Tick advances the battle by one step and reports whether the mission is still running.
func (g *Game) Tick(ctx context.Context) bool {
	if g.outcome.Finished {
		return false
	}
	g.queue.CollectGarbage()
	front, ok := g.queue.Front()
	switch {
	case !ok:
		//1.- Nothing queued: the AI side thinks, the player side resolves panicking units.
		if g.session.Side != unit.FactionPlayer && !g.session.DebugPlay {
			g.handleAI(ctx)
		} else if !g.playerPanicHandled {
			g.playerPanicHandled = g.handlePanickingPlayer(ctx)
		}
	case front == nil:
		//2.- Consecutive end-of-turn markers collapse into one, which waits for queued work.
		g.queue.PopSentinels()
		if !g.queue.Empty() {
			g.queue.PushBack(nil)
			break
		}
		g.endTurn(ctx)
	default:
		if !g.started[front] {
			g.started[front] = true
			front.Init(ctx)
		}
		if front.Step(ctx) {
			g.popTask(ctx)
		}
	}
	return !g.outcome.Finished
}

// popTask retires the front task and runs the side bookkeeping that follows it.
func (g *Game) popTask(ctx context.Context) {
	t := g.queue.PopFront()
	if t == nil {
		return
	}
	delete(g.started, t)
	act := t.Action()
	g.metrics.taskCompleted(ctx, act.Kind)
	actorID := 0
	actor := g.roster.Get(act.Actor)
	if actor != nil {
		actorID = actor.ID
	}
	g.logger.Debug("task completed", logging.String("kind", act.Kind.String()), logging.Int("actor", actorID), logging.String("result", act.Result))
	g.publish(Notice{Kind: NoticeTaskCompleted, Actor: actorID, Action: act.Kind.String(), Position: act.Target})
	if act.Result != "" {
		g.publish(Notice{Kind: NoticeActionFailed, Actor: actorID, Action: act.Kind.String(), Message: act.Result})
	}

	//1.- Once the actor has nothing else queued, its faction catches up on selection.
	if actor != nil && !g.queue.HasPendingFor(act.Actor) {
		switch {
		case actor.Faction == unit.FactionPlayer:
			if g.session.Side == unit.FactionPlayer || g.session.DebugPlay {
				if act.Kind == action.KindThrow || (act.Kind == action.KindLaunch && len(act.Waypoints) > 1) {
					g.cancelTargeting()
				}
			}
		case g.session.Side != unit.FactionPlayer && !g.session.DebugPlay:
			//2.- The selected unit, not the finished task's actor, decides the handover.
			selected := g.roster.Get(g.selected)
			if g.aiActionCounter > g.session.AIActionBound || selected == nil || selected.Out() {
				g.aiActionCounter = 0
				if g.queue.Empty() && !g.selectNext(g.aiSecondMove).Valid() {
					g.requestAIEndTurn(ctx)
					return
				}
			}
		}
	}

	//3.- A drained queue ending on markers ends the turn right away; otherwise the marker
	// goes back behind the remaining work.
	if g.queue.FrontIsSentinel() {
		g.queue.PopSentinels()
		if g.queue.Empty() {
			g.endTurn(ctx)
			return
		}
		g.queue.PushBack(nil)
	}
}

func (g *Game) pushFront(t tasks.Task) {
	g.logPush("front", t)
	g.queue.PushFront(t)
}

func (g *Game) pushNext(t tasks.Task) {
	g.logPush("next", t)
	g.queue.PushNext(t)
}

// pushBack appends the task. An end-of-turn marker pushed on an idle queue ends the turn
// immediately.
func (g *Game) pushBack(ctx context.Context, t tasks.Task) {
	g.logPush("back", t)
	if g.queue.Empty() && t == nil {
		g.endTurn(ctx)
		return
	}
	g.queue.PushBack(t)
}

func (g *Game) logPush(mode string, t tasks.Task) {
	if t == nil {
		g.logger.Debug("end of turn queued", logging.String("insert", mode))
		return
	}
	act := t.Action()
	g.logger.Debug("task pushed", logging.String("insert", mode), logging.String("kind", act.Kind.String()), logging.Int("actor", act.Actor.Index))
}

// selectNext moves the selection to the next actor of the active side and flags a wrap as
// the second move.
func (g *Game) selectNext(markCurrent bool) unit.Handle {
	prev := g.roster.Get(g.selected)
	next := g.roster.NextSelectable(g.session.Side, g.selected, markCurrent)
	if n := g.roster.Get(next); n != nil && prev != nil && n.ID <= prev.ID {
		g.aiSecondMove = true
	}
	if next != g.selected {
		g.aiActionCounter = 0
	}
	g.selected = next
	return next
}

func (g *Game) publish(n Notice) {
	if g.sink == nil {
		return
	}
	n.Mission = g.session.MissionID
	n.Turn = g.session.Turn
	n.Side = g.session.Side
	g.sink.Publish(n)
}

// refuse records an affordability failure.
func (g *Game) refuse(ctx context.Context, act *action.Pending, err error) {
	var afford *cost.AffordError
	if errors.As(err, &afford) {
		g.metrics.refused(ctx, afford.Reason)
		act.Result = string(afford.Reason)
		return
	}
	act.Result = err.Error()
}

// refreshVisibility recomputes every active actor's visible list from the oracle.
func (g *Game) refreshVisibility() {
	for _, a := range g.roster.All() {
		a.VisibleUnits = a.VisibleUnits[:0]
		if a.Out() {
			continue
		}
		for _, tile := range g.oracle.ComputeFieldOfView(a.Position, viewDistance) {
			if other := g.roster.ActorAt(tile); other != nil && other != a {
				a.VisibleUnits = append(a.VisibleUnits, other.Handle)
			}
		}
	}
}

// applyDamage subtracts a damage roll from the victim and records the attacker.
func (g *Game) applyDamage(victim, attacker *unit.Actor, dmg combat.DamageResult) {
	victim.Pools.Health -= dmg.Health
	if victim.Pools.Health < 0 {
		victim.Pools.Health = 0
	}
	victim.Pools.Stun += dmg.Stun
	if attacker != nil {
		victim.LastAttacker = attacker.Handle
	}
}

// checkForCasualties runs a casualty sweep and queues one die task per casualty right after
// the executing task, in roster order.
func (g *Game) checkForCasualties(ctx context.Context, sweep casualty.Sweep) {
	found := g.resolver.Resolve(ctx, sweep)
	for _, c := range found {
		g.metrics.casualty(ctx, c.Outcome)
	}
	if g.queue.Empty() {
		for _, c := range found {
			t := newDieTask(g, c)
			g.logPush("back", t)
			g.queue.PushBack(t)
		}
	} else {
		for i := len(found) - 1; i >= 0; i-- {
			g.pushNext(newDieTask(g, found[i]))
		}
	}
	if len(found) > 0 {
		g.refreshVisibility()
	}
	g.convertInfected(ctx)
}

// convertInfected replaces living actors flagged for respawn with their spawn type.
func (g *Game) convertInfected(ctx context.Context) {
	if g.spawner == nil {
		return
	}
	for _, h := range g.resolver.Conversions() {
		victim := g.roster.Get(h)
		victim.Respawn = false
		spawned, ok := g.spawner(victim.SpawnType, victim)
		if !ok {
			continue
		}
		g.armory.DropAll(victim)
		if err := victim.Transition(ctx, unit.EventKill); err != nil {
			g.logger.Warn("conversion transition failed", logging.Error(err), logging.Int("actor", victim.ID))
			continue
		}
		spawned.ID = 0
		spawned.Position = victim.Position
		spawned.Direction = victim.Direction
		nh := g.roster.Add(spawned, unit.StatusStanding)
		created := g.roster.Get(nh)
		g.ensureBehavior(created)
		g.logger.Info("actor converted", logging.Int("from", victim.ID), logging.Int("to", created.ID), logging.String("spawn_type", victim.SpawnType))
		g.publish(Notice{Kind: NoticeConversion, Actor: created.ID, Target: victim.ID, Position: created.Position, Message: victim.SpawnType})
	}
}

func (g *Game) cancelTargeting() {
	g.current = action.Pending{}
}

// Actor implements the AI awareness view.
func (g *Game) Actor(h unit.Handle) *unit.Actor { return g.roster.Get(h) }

// HeldItem returns the first item held by the actor.
func (g *Game) HeldItem(a *unit.Actor) *unit.Item { return g.armory.Held(a) }

// VisibleEnemies returns the active actors of other factions the actor sees.
func (g *Game) VisibleEnemies(a *unit.Actor) []*unit.Actor {
	if a == nil {
		return nil
	}
	var out []*unit.Actor
	for _, h := range a.VisibleUnits {
		if other := g.roster.Get(h); other != nil && !other.Out() && other.Faction != a.Faction {
			out = append(out, other)
		}
	}
	return out
}

// Session returns a copy of the session flags.
func (g *Game) Session() Session { return g.session }

// Outcome returns the mission outcome; Finished is false while the battle runs.
func (g *Game) Outcome() mission.Outcome { return g.outcome }

// Selected returns the selected actor handle.
func (g *Game) Selected() unit.Handle { return g.selected }

// Roster exposes the actors of the battle.
func (g *Game) Roster() *unit.Roster { return g.roster }

// Armory exposes the items of the battle.
func (g *Game) Armory() *unit.Armory { return g.armory }

// Queued returns the kinds of the queued tasks; end-of-turn markers read as none.
func (g *Game) Queued() []action.Kind { return g.queue.Kinds() }

// Targeting returns the player's pending targeting action.
func (g *Game) Targeting() action.Pending { return g.current }
