package battle

import (
	"context"

	"squadfire/battlecore/internal/action"
	"squadfire/battlecore/internal/casualty"
	"squadfire/battlecore/internal/combat"
	"squadfire/battlecore/internal/dice"
	"squadfire/battlecore/internal/geom"
	"squadfire/battlecore/internal/logging"
	"squadfire/battlecore/internal/mission"
	"squadfire/battlecore/internal/unit"
)

const (
	fleeAttempts = 20
	fleeRadius   = 5
)

// handleAI runs one think cycle for the selected actor of a non-player side.
func (g *Game) handleAI(ctx context.Context) {
	actor := g.roster.Get(g.selected)
	if !actor.Selectable(g.session.Side, false) {
		if !g.selectNext(false).Valid() {
			g.requestAIEndTurn(ctx)
			return
		}
		actor = g.roster.Get(g.selected)
	}
	if g.handlePanickingUnit(ctx, actor) {
		return
	}

	//1.- Drained actors and actors past their action bound hand over to the next one.
	if actor.Pools.TimeUnits <= g.session.AITimeUnitThreshold {
		actor.DontReselect = true
	}
	if g.aiActionCounter >= g.session.AIActionBound || actor.DontReselect {
		g.aiActionCounter = 0
		if !g.selectNext(g.aiSecondMove).Valid() {
			g.requestAIEndTurn(ctx)
		}
		return
	}
	g.aiActionCounter++
	if g.aiActionCounter == 1 {
		g.playedAggroSound = false
	}

	//2.- Ask the behavior, honouring a single reconsideration.
	behavior := g.behaviors[actor.Handle]
	if behavior == nil {
		actor.DontReselect = true
		return
	}
	proposal := behavior.ProposeAction(g.aiActionCounter)
	if proposal.Kind == action.KindRethink {
		proposal = behavior.ProposeAction(g.aiActionCounter)
	}
	proposal.Actor = actor.Handle

	if !g.playedAggroSound && actor.AggroSound != "" {
		if target := g.roster.Get(actor.Charging); target != nil && !target.Out() {
			g.playedAggroSound = true
			g.publish(Notice{Kind: NoticeAggro, Actor: actor.ID, Target: target.ID, Message: actor.AggroSound})
		}
	}

	//3.- Turn the proposal into tasks.
	switch {
	case proposal.Kind == action.KindWalk:
		if g.paths.ComputePath(actor.Position, proposal.Target, actor.ID) {
			if _, ok := g.paths.FirstStepDirection(); ok {
				g.pushBack(ctx, newWalkTask(g, proposal))
			}
		}
	case proposal.Kind == action.KindTurn:
		g.pushBack(ctx, newTurnTask(g, proposal, true))
	case proposal.Kind == action.KindKneel:
		g.pushBack(ctx, newKneelTask(g, proposal))
	case proposal.Kind == action.KindPrime:
		if item := g.itemFor(actor, proposal.Weapon); item != nil {
			if err := g.prime(ctx, actor, item, 0); err != nil {
				g.logger.Debug("ai prime refused", logging.Error(err), logging.Int("actor", actor.ID))
			}
		}
	case proposal.Kind.Attack() || proposal.Kind.Psionic():
		item := g.itemFor(actor, proposal.Weapon)
		if item == nil || !item.Weapon.Supports(proposal.Kind.Mode()) {
			return
		}
		proposal.Weapon = item.Handle
		proposal.Cost = action.Price(proposal.Kind, item.Weapon, actor)
		if proposal.Kind == action.KindThrow && item.Weapon.Grenade() && !item.Primed() {
			item.FuseTimer = 0
		}
		g.queueAttack(ctx, proposal)
	case proposal.Kind == action.KindNone:
		g.aiActionCounter = 0
		if !g.selectNext(true).Valid() {
			g.requestAIEndTurn(ctx)
		}
	}
}

// queueAttack pushes turn-to-face plus the attack task; psionics skip facing.
func (g *Game) queueAttack(ctx context.Context, p action.Pending) {
	switch {
	case p.Kind.Psionic():
		g.pushBack(ctx, newPsiTask(g, p))
	case p.Kind == action.KindMelee:
		g.pushBack(ctx, newTurnTask(g, p, false))
		g.pushBack(ctx, newMeleeTask(g, p))
	default:
		g.pushBack(ctx, newTurnTask(g, p, false))
		g.pushBack(ctx, newProjectileTask(g, p))
	}
}

func (g *Game) requestAIEndTurn(ctx context.Context) {
	if g.endTurnRequested {
		return
	}
	g.endTurnRequested = true
	g.pushBack(ctx, nil)
}

// itemFor returns the item held by the actor, preferring the requested one.
func (g *Game) itemFor(a *unit.Actor, h unit.ItemHandle) *unit.Item {
	if item := g.armory.Get(h); item != nil && item.Owner == a.Handle && item.Weapon != nil {
		return item
	}
	if item := g.armory.Held(a); item != nil && item.Weapon != nil {
		return item
	}
	return nil
}

// handlePanickingPlayer handles one panicking soldier and reports whether none are left.
func (g *Game) handlePanickingPlayer(ctx context.Context) bool {
	for _, a := range g.roster.All() {
		if a.Faction == unit.FactionPlayer && a.OriginalFaction == unit.FactionPlayer && g.handlePanickingUnit(ctx, a) {
			return false
		}
	}
	return true
}

// handlePanickingUnit queues the flight and the panic task of a panicking or berserk actor.
func (g *Game) handlePanickingUnit(ctx context.Context, a *unit.Actor) bool {
	status := a.Status()
	if status != unit.StatusPanicking && status != unit.StatusBerserk {
		return false
	}
	g.selected = a.Handle
	g.logger.Debug("actor lost control", logging.Int("actor", a.ID), logging.String("status", string(status)))
	g.publish(Notice{Kind: NoticePanic, Actor: a.ID, Position: a.Position, Message: string(status)})

	flee := dice.Gen(g.src, 0, 100)
	p := action.Pending{Actor: a.Handle, Kind: action.KindPanic}
	if status == unit.StatusPanicking && flee <= 50 {
		//1.- Drop everything and run for a random reachable tile, trying lower levels late.
		g.armory.DropAll(a)
		for i := 0; i < fleeAttempts; i++ {
			target := geom.Position{
				X: a.Position.X + dice.Gen(g.src, -fleeRadius, fleeRadius),
				Y: a.Position.Y + dice.Gen(g.src, -fleeRadius, fleeRadius),
				Z: a.Position.Z,
			}
			if i >= 10 && target.Z > 0 {
				target.Z--
				if i >= 15 && target.Z > 0 {
					target.Z--
				}
			}
			if !g.oracle.InBounds(target) || !g.paths.ComputePath(a.Position, target, a.ID) {
				continue
			}
			if _, ok := g.paths.FirstStepDirection(); ok {
				g.pushBack(ctx, newWalkTask(g, action.Pending{Actor: a.Handle, Kind: action.KindWalk, Target: target}))
				break
			}
		}
	}
	g.pushBack(ctx, newPanicTask(g, p))
	return true
}

// RequestEndTurn asks for the end of the player's turn. With confirm set and a living soldier
// carrying fatal wounds, a confirmation notice is emitted once and the turn goes on; later
// confirm requests are ignored until the answer arrives as a request without confirm.
func (g *Game) RequestEndTurn(ctx context.Context, confirm bool) bool {
	if g.outcome.Finished {
		return false
	}
	g.cancelTargeting()
	if confirm && g.confirmShown {
		return false
	}
	if confirm {
		wounded := 0
		for _, a := range g.roster.All() {
			if a.OriginalFaction == unit.FactionPlayer && a.Status() != unit.StatusDead && a.FatalWounds > 0 {
				wounded++
			}
		}
		if wounded > 0 {
			g.confirmShown = true
			g.publish(Notice{Kind: NoticeConfirmEndTurn, Fields: map[string]any{"wounded": wounded}})
			return false
		}
	}
	if !g.endTurnRequested {
		g.endTurnRequested = true
		g.pushBack(ctx, nil)
	}
	return true
}

// endTurn detonates expired grenades, rotates the side and checks the mission conditions.
func (g *Game) endTurn(ctx context.Context) {
	g.cancelTargeting()
	g.aiSecondMove = false
	g.session.DebugPlay = false

	//1.- Grenades lying on the ground with an expired fuse go off one turn-end pass at a time.
	exploded := false
	for _, item := range g.armory.Ground() {
		w := item.Weapon
		if item.FuseTimer != 0 || w == nil || w.FuseType == combat.FuseInstant || w.Archetype != combat.ArchetypeGrenade {
			continue
		}
		if dice.Percent(g.src, w.SpecialChance) {
			g.pushNext(newExplosionTask(g, item.PreviousOwner, w, item.Position, item.Handle))
			exploded = true
		} else if w.FuseType == combat.FuseSet {
			item.FuseTimer = 1
		} else {
			item.FuseTimer = unit.Unprimed
		}
	}
	if exploded {
		g.queue.PushBack(nil)
		return
	}

	//2.- Fuses burn down on every side but the neutral one, then the next side takes over.
	ended := g.session.Side
	if ended != unit.FactionNeutral {
		for _, item := range g.armory.All() {
			if item.FuseTimer > 0 {
				item.FuseTimer--
			}
		}
	}
	g.advanceSide(ctx)
	g.checkForCasualties(ctx, casualty.Sweep{})
	g.oracle.ComputeLighting(geom.LightFire, geom.Position{})
	g.refreshVisibility()

	//3.- Tally the forces and decide whether the mission is over.
	tally := mission.TallyUnits(g.roster.All(), g.rules)
	outcome := mission.Evaluate(g.rules, tally, g.session.Turn, g.objectivesDestroyed)
	g.metrics.turnEnded(ctx, ended.String())
	g.logger.Debug("turn ended",
		logging.String("ended", ended.String()),
		logging.String("side", g.session.Side.String()),
		logging.Int("turn", g.session.Turn),
		logging.Int("live_hostiles", tally.LiveAliens),
		logging.Int("live_soldiers", tally.LiveSoldiers),
	)
	g.publish(Notice{Kind: NoticeTurnEnded, Message: ended.String(), Fields: map[string]any{
		"live_hostiles": tally.LiveAliens,
		"live_soldiers": tally.LiveSoldiers,
		"in_exit":       tally.InExit,
	}})
	g.endTurnRequested = false
	g.confirmShown = false
	if outcome.Finished {
		g.settleCasualties(ctx)
		g.finish(outcome)
	}
}

// settleCasualties runs the die tasks at the front of the queue in place, so a battle that
// ends on a casualty still reports it before the result.
func (g *Game) settleCasualties(ctx context.Context) {
	for {
		front, ok := g.queue.Front()
		die, isDie := front.(*dieTask)
		if !ok || !isDie {
			return
		}
		die.Step(ctx)
		g.queue.PopFront()
		delete(g.started, front)
	}
}

// advanceSide rotates player, hostile, neutral. The neutral side is skipped when nobody can
// act on it; the turn counter grows when play returns to the player.
func (g *Game) advanceSide(ctx context.Context) {
	next := g.session.Side.Next()
	if next == unit.FactionNeutral && !g.roster.NextSelectable(unit.FactionNeutral, unit.Handle{}, false).Valid() {
		next = unit.FactionPlayer
	}
	if next == unit.FactionPlayer {
		g.session.Turn++
		g.playerPanicHandled = false
	}
	g.session.Side = next
	g.selected = unit.Handle{}
	g.aiActionCounter = 0
	for _, a := range g.roster.All() {
		if a.Faction == next {
			a.PrepareNewTurn(ctx, g.src)
		}
	}
	if next == unit.FactionPlayer {
		g.selected = g.roster.NextSelectable(next, unit.Handle{}, false)
	}
}

func (g *Game) finish(outcome mission.Outcome) {
	g.outcome = outcome
	g.logger.Info("mission finished", outcome.LoggingFields()...)
	g.publish(Notice{Kind: NoticeMissionFinished, Message: outcome.Reason, Fields: map[string]any{
		"aborted":    outcome.Aborted,
		"won":        outcome.Won,
		"exit_count": outcome.ExitCount,
	}})
}
