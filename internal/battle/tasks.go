package battle

import (
	"context"
	"errors"

	"squadfire/battlecore/internal/action"
	"squadfire/battlecore/internal/casualty"
	"squadfire/battlecore/internal/combat"
	"squadfire/battlecore/internal/cost"
	"squadfire/battlecore/internal/dice"
	"squadfire/battlecore/internal/geom"
	"squadfire/battlecore/internal/logging"
	"squadfire/battlecore/internal/tasks"
	"squadfire/battlecore/internal/trajectory"
	"squadfire/battlecore/internal/unit"
)

// deathBlastWeapon is the catalog entry used when an actor explodes on death.
const deathBlastWeapon = "alien-grenade"

// Result messages attached to failed actions.
const (
	resultReserved     = "time units reserved"
	resultBlocked      = "path blocked"
	resultNoAmmo       = "out of ammunition"
	resultNoWeapon     = "no weapon"
	resultCannotThrow  = "unable to throw here"
	resultOutOfReach   = "target out of reach"
	resultNothingToUse = "nothing to use"
)

// task carries the state every action task shares. Tasks that complete only push with next
// or back insertion so the completed task is still the front when it is retired.
type task struct {
	game      *Game
	act       action.Pending
	cancelled bool
}

func (t *task) Init(context.Context)     {}
func (t *task) Cancel()                  { t.cancelled = true }
func (t *task) Action() *action.Pending  { return &t.act }
func (t *task) actor() *unit.Actor {
	a := t.game.roster.Get(t.act.Actor)
	if a == nil || a.Out() {
		return nil
	}
	return a
}

// walkTask moves the actor one tile per tick along the computed route.
type walkTask struct {
	task
	route []geom.Direction
}

func newWalkTask(g *Game, p action.Pending) *walkTask {
	p.Kind = action.KindWalk
	return &walkTask{task: task{game: g, act: p}}
}

func (t *walkTask) Init(context.Context) {
	a := t.actor()
	if a == nil {
		return
	}
	if t.game.paths.ComputePath(a.Position, t.act.Target, a.ID) {
		t.route = t.game.paths.Route()
	}
}

func (t *walkTask) Step(ctx context.Context) bool {
	a := t.actor()
	if a == nil || t.cancelled || len(t.route) == 0 {
		return true
	}
	g := t.game
	dir := t.route[0]
	next := a.Position.Add(dir.Vector())
	price := cost.Cost{TimeUnits: action.WalkStepTimeUnits}
	if dir%2 == 1 {
		price.TimeUnits = action.DiagonalStepTimeUnits
	}
	//1.- Every step is priced on its own and stops the walk when the reserve would be touched.
	if !g.checkReservedTU(a, price.TimeUnits, action.KindWalk) {
		t.act.Result = resultReserved
		return true
	}
	if other, ok := g.roster.OccupantAt(next); ok && other != a.ID {
		t.act.Result = resultBlocked
		return true
	}
	if err := cost.Spend(&a.Pools, price); err != nil {
		g.refuse(ctx, &t.act, err)
		return true
	}
	a.Position = next
	a.Direction = dir
	t.route = t.route[1:]
	g.refreshVisibility()
	//2.- Stepping next to an armed proximity grenade ends the walk.
	if g.checkForProximityGrenades(a) {
		return true
	}
	return len(t.route) == 0
}

// checkForProximityGrenades arms the explosions of primed proximity grenades around the actor.
func (g *Game) checkForProximityGrenades(a *unit.Actor) bool {
	exploded := false
	for _, item := range g.armory.Ground() {
		w := item.Weapon
		if w == nil || w.Archetype != combat.ArchetypeProximity || item.FuseTimer < 0 {
			continue
		}
		dx, dy := item.Position.X-a.Position.X, item.Position.Y-a.Position.Y
		if item.Position.Z != a.Position.Z || dx < -1 || dy < -1 || dx > a.Size || dy > a.Size {
			continue
		}
		if dice.Percent(g.src, w.SpecialChance) {
			item.FuseTimer = unit.Unprimed
			g.pushNext(newExplosionTask(g, item.PreviousOwner, w, item.Position, item.Handle))
			exploded = true
		}
	}
	return exploded
}

// turnTask rotates the actor one heading step per tick until it faces the target.
type turnTask struct {
	task
	desired geom.Direction
	// standalone turns respect the reserve; turns that precede an attack do not.
	standalone bool
}

func newTurnTask(g *Game, p action.Pending, standalone bool) *turnTask {
	p.Kind = action.KindTurn
	return &turnTask{task: task{game: g, act: p}, desired: geom.NoDirection, standalone: standalone}
}

func (t *turnTask) Init(context.Context) {
	if a := t.actor(); a != nil {
		t.desired = geom.DirectionTo(a.Position, t.act.Target)
	}
}

func (t *turnTask) Step(ctx context.Context) bool {
	a := t.actor()
	if a == nil || t.cancelled || !t.desired.Valid() || a.Direction == t.desired {
		return true
	}
	price := cost.Cost{TimeUnits: action.TurnStepTimeUnits}
	if t.standalone && !t.game.checkReservedTU(a, price.TimeUnits, action.KindTurn) {
		t.act.Result = resultReserved
		return true
	}
	if err := cost.Spend(&a.Pools, price); err != nil {
		t.game.refuse(ctx, &t.act, err)
		return true
	}
	a.Direction = geom.TurnStep(a.Direction, t.desired)
	return a.Direction == t.desired
}

// projectileTask resolves shots, throws and launches in a single step.
type projectileTask struct {
	task
}

func newProjectileTask(g *Game, p action.Pending) *projectileTask {
	return &projectileTask{task: task{game: g, act: p}}
}

func (t *projectileTask) Step(ctx context.Context) bool {
	a := t.actor()
	if a == nil || t.cancelled {
		return true
	}
	g := t.game
	item := g.itemFor(a, t.act.Weapon)
	if item == nil || !item.Weapon.Supports(t.act.Kind.Mode()) {
		t.act.Result = resultNoWeapon
		return true
	}
	w := item.Weapon
	if t.act.Kind != action.KindThrow && w.Rounds > 0 && item.Ammo <= 0 {
		t.act.Result = resultNoAmmo
		return true
	}
	price := action.Price(t.act.Kind, w, a)
	if ok, reason := cost.CanAfford(a.Pools, price); !ok {
		g.refuse(ctx, &t.act, &cost.AffordError{Reason: reason, Cost: price})
		return true
	}
	shot := trajectory.Shot{
		Kind:      t.act.Kind,
		Weapon:    w,
		Origin:    trajectory.Muzzle(a),
		Target:    trajectory.Aimpoint(t.act.Target),
		Accuracy:  trajectory.Accuracy(t.act.Kind, w, a),
		Exclude:   a.ID,
		Waypoints: len(t.act.Waypoints),
		Faction:   a.Faction,
	}

	if t.act.Kind == action.KindThrow {
		//1.- A throw is solved before paying for it; impossible throws are dropped quietly.
		shot.Target = trajectory.ThrowTarget(t.act.Target)
		res, err := g.trajectory.Throw(shot)
		if err != nil {
			t.act.Result = resultCannotThrow
			return true
		}
		if err := cost.Spend(&a.Pools, price); err != nil {
			g.refuse(ctx, &t.act, err)
			return true
		}
		landing := res.Impact().Tile()
		g.armory.Drop(a, item.Handle, landing)
		g.publish(Notice{Kind: NoticeShot, Actor: a.ID, Action: t.act.Kind.String(), Position: landing, Message: res.Hit.String()})
		return true
	}

	if err := cost.Spend(&a.Pools, price); err != nil {
		g.refuse(ctx, &t.act, err)
		return true
	}
	shots := 1
	if t.act.Kind == action.KindAutoshot && w.AutoShots > 1 {
		shots = w.AutoShots
	}
	damaged := false
	for i := 0; i < shots; i++ {
		if w.Rounds > 0 {
			if item.Ammo <= 0 {
				break
			}
			item.Ammo--
		}
		res := g.trajectory.Line(shot)
		if g.impact(a, w, res, t.act.Kind) {
			damaged = true
		}
	}
	if damaged {
		g.checkForCasualties(ctx, casualty.Sweep{Murderer: a.Handle, Weapon: w.ID})
	}
	return true
}

// impact applies a traced shot and reports whether direct damage was dealt.
func (g *Game) impact(shooter *unit.Actor, w *combat.Weapon, res trajectory.Result, kind action.Kind) bool {
	at := res.Impact().Tile()
	g.publish(Notice{Kind: NoticeShot, Actor: shooter.ID, Action: kind.String(), Position: at, Message: res.Hit.String()})
	if w.Explosive() {
		g.pushNext(newExplosionTask(g, shooter.Handle, w, at, unit.ItemHandle{}))
		return false
	}
	if res.Hit != geom.HitUnit {
		return false
	}
	victim := g.roster.ActorAt(at)
	if victim == nil {
		return false
	}
	dmg := combat.ResolveHit(w, g.src)
	g.applyDamage(victim, shooter, dmg)
	g.logger.Debug("actor hit", append([]logging.Field{logging.Int("victim", victim.ID), logging.Int("attacker", shooter.ID)}, dmg.LoggingFields()...)...)
	g.publish(Notice{Kind: NoticeHit, Actor: shooter.ID, Target: victim.ID, Position: at, Fields: map[string]any{
		"damage_health": dmg.Health,
		"damage_stun":   dmg.Stun,
		"damage_type":   string(dmg.Type),
	}})
	return true
}

// meleeTask strikes an adjacent tile.
type meleeTask struct {
	task
}

func newMeleeTask(g *Game, p action.Pending) *meleeTask {
	return &meleeTask{task: task{game: g, act: p}}
}

func (t *meleeTask) Step(ctx context.Context) bool {
	a := t.actor()
	if a == nil || t.cancelled {
		return true
	}
	g := t.game
	item := g.itemFor(a, t.act.Weapon)
	if item == nil || !item.Weapon.Supports(combat.ModeMelee) {
		t.act.Result = resultNoWeapon
		return true
	}
	if !adjacent(a.Position, t.act.Target) {
		t.act.Result = resultOutOfReach
		return true
	}
	if err := cost.Spend(&a.Pools, action.Price(action.KindMelee, item.Weapon, a)); err != nil {
		g.refuse(ctx, &t.act, err)
		return true
	}
	victim := g.roster.ActorAt(t.act.Target)
	chance := int(trajectory.Accuracy(action.KindMelee, item.Weapon, a) * 100)
	if victim == nil || !dice.Percent(g.src, chance) {
		g.publish(Notice{Kind: NoticeShot, Actor: a.ID, Action: t.act.Kind.String(), Position: t.act.Target, Message: geom.HitEmpty.String()})
		return true
	}
	dmg := combat.ResolveHit(item.Weapon, g.src)
	g.applyDamage(victim, a, dmg)
	g.publish(Notice{Kind: NoticeHit, Actor: a.ID, Target: victim.ID, Position: t.act.Target, Fields: map[string]any{
		"damage_health": dmg.Health,
		"damage_stun":   dmg.Stun,
		"damage_type":   string(dmg.Type),
	}})
	g.checkForCasualties(ctx, casualty.Sweep{Murderer: a.Handle, Weapon: item.Weapon.ID})
	return true
}

func adjacent(a, b geom.Position) bool {
	dx, dy := a.X-b.X, a.Y-b.Y
	return a.Z == b.Z && dx >= -1 && dx <= 1 && dy >= -1 && dy <= 1 && (dx != 0 || dy != 0)
}

// Psionic and item-use constants.
const (
	psiSkillDivisor    = 50
	psiDefenseBase     = 10
	psiRollMax         = 55
	mindControlPenalty = 20
	medikitHeal        = 10
)

// psiTask resolves mind control, morale attacks and item use without facing the target.
type psiTask struct {
	task
}

func newPsiTask(g *Game, p action.Pending) *psiTask {
	return &psiTask{task: task{game: g, act: p}}
}

func (t *psiTask) Step(ctx context.Context) bool {
	a := t.actor()
	if a == nil || t.cancelled {
		return true
	}
	g := t.game
	item := g.itemFor(a, t.act.Weapon)
	if item == nil || !item.Weapon.Supports(t.act.Kind.Mode()) {
		t.act.Result = resultNoWeapon
		return true
	}
	victim := g.roster.Get(t.act.TargetUnit)
	if victim == nil {
		victim = g.roster.ActorAt(t.act.Target)
	}
	if victim == nil || victim.Out() {
		t.act.Result = resultOutOfReach
		return true
	}
	if t.act.Kind == action.KindUse && (item.Weapon.Archetype != combat.ArchetypeMedikit || (victim != a && !adjacent(a.Position, victim.Position))) {
		t.act.Result = resultNothingToUse
		return true
	}
	if err := cost.Spend(&a.Pools, action.Price(t.act.Kind, item.Weapon, a)); err != nil {
		g.refuse(ctx, &t.act, err)
		return true
	}

	if t.act.Kind == action.KindUse {
		//1.- A medikit stops one fatal wound and restores some health.
		if victim.FatalWounds > 0 {
			victim.FatalWounds--
		}
		victim.Pools.Health += medikitHeal
		if victim.Pools.Health > victim.Stats.Health {
			victim.Pools.Health = victim.Stats.Health
		}
		g.publish(Notice{Kind: NoticePsi, Actor: a.ID, Target: victim.ID, Action: t.act.Kind.String(), Message: "healed"})
		return true
	}

	//2.- Psionic strength plus a roll must beat the victim's defence, less the distance.
	attack := a.Stats.PsiStrength*a.Stats.PsiSkill/psiSkillDivisor - geom.Distance(a.Position, victim.Position) + dice.Gen(g.src, 0, psiRollMax)
	defense := victim.Stats.PsiStrength + psiDefenseBase + victim.Stats.PsiSkill/5
	if t.act.Kind == action.KindMindControl {
		defense += mindControlPenalty
	}
	success := attack > defense
	g.publish(Notice{Kind: NoticePsi, Actor: a.ID, Target: victim.ID, Action: t.act.Kind.String(), Fields: map[string]any{"success": success}})
	if !success {
		return true
	}
	victim.LastAttacker = a.Handle
	if t.act.Kind == action.KindPanic {
		if loss := 110 - victim.Stats.Bravery; loss > 0 {
			victim.Pools.Morale -= loss
			victim.ClampMorale()
		}
		return true
	}
	victim.Faction = a.Faction
	victim.MindController = a.Handle
	victim.Pools.TimeUnits = victim.Stats.TimeUnits
	victim.DontReselect = false
	g.ensureBehavior(victim)
	g.refreshVisibility()
	return true
}

// explosionTask damages every actor within the blast radius and sweeps the casualties.
type explosionTask struct {
	task
	source unit.Handle
	weapon *combat.Weapon
	center geom.Position
	item   unit.ItemHandle
}

func newExplosionTask(g *Game, source unit.Handle, w *combat.Weapon, center geom.Position, item unit.ItemHandle) *explosionTask {
	return &explosionTask{
		task:   task{game: g, act: action.Pending{Actor: source, Kind: action.KindNone, Target: center}},
		source: source,
		weapon: w,
		center: center,
		item:   item,
	}
}

func (t *explosionTask) Step(ctx context.Context) bool {
	g := t.game
	radius := t.weapon.BlastRadius
	attacker := g.roster.Get(t.source)
	hit := 0
	for _, victim := range g.roster.All() {
		if victim.Out() || victim.Position.Z != t.center.Z {
			continue
		}
		d := geom.Distance(t.center, victim.Position)
		if d > radius {
			continue
		}
		g.applyDamage(victim, attacker, combat.ResolveBlast(t.weapon, d, g.src))
		hit++
	}
	//1.- Objectives inside the blast are destroyed.
	for p, alive := range g.objectives {
		if alive && p.Z == t.center.Z && geom.Distance(t.center, p) <= radius {
			g.objectives[p] = false
			g.objectivesDestroyed++
		}
	}
	if t.item.Valid() {
		g.armory.Remove(t.item)
	}
	g.oracle.ComputeLighting(geom.LightFire, t.center)
	g.logger.Debug("explosion", logging.String("weapon", t.weapon.ID), logging.Int("radius", radius), logging.Int("actors_hit", hit))
	sourceID := 0
	if attacker != nil {
		sourceID = attacker.ID
	}
	g.publish(Notice{Kind: NoticeExplosion, Actor: sourceID, Position: t.center, Message: t.weapon.ID, Fields: map[string]any{"radius": radius, "actors_hit": hit}})
	g.checkForCasualties(ctx, casualty.Sweep{Murderer: t.source, Weapon: t.weapon.ID})
	return true
}

// dieTask notifies a finalized casualty, drops the victim's items and detonates actors that
// explode on death.
type dieTask struct {
	task
	casualty casualty.Casualty
}

func newDieTask(g *Game, c casualty.Casualty) *dieTask {
	return &dieTask{task: task{game: g, act: action.Pending{Actor: c.Victim, Kind: action.KindNone}}, casualty: c}
}

func (t *dieTask) Step(context.Context) bool {
	g := t.game
	victim := g.roster.Get(t.casualty.Victim)
	if victim == nil {
		return true
	}
	t.act.Target = victim.Position
	g.armory.DropAll(victim)
	murdererID, creditedID := 0, 0
	if m := g.roster.Get(t.casualty.Murderer); m != nil {
		murdererID = m.ID
	}
	if c := g.roster.Get(t.casualty.Credited); c != nil {
		creditedID = c.ID
	}
	g.logger.Debug("casualty", t.casualty.LoggingFields()...)
	g.publish(Notice{Kind: NoticeCasualty, Actor: murdererID, Target: victim.ID, Position: victim.Position, Message: string(t.casualty.Outcome), Fields: map[string]any{
		"victim":          victim.ID,
		"victim_side":     victim.OriginalFaction.String(),
		"murderer":        murdererID,
		"credited":        creditedID,
		"outcome":         string(t.casualty.Outcome),
		"weapon":          t.casualty.Weapon,
		"murderer_morale": t.casualty.MurdererMorale,
	}})
	if t.casualty.Outcome == casualty.OutcomeDeath && victim.ExplodesOnDeath {
		if w, err := combat.ResolveWeapon(deathBlastWeapon); err == nil {
			g.pushNext(newExplosionTask(g, victim.Handle, w, victim.Position, unit.ItemHandle{}))
		}
	}
	return true
}

// panicTask finishes a loss of control: a berserk actor fires once at what it sees, then the
// actor calms down with its time units spent.
type panicTask struct {
	task
	fired bool
}

func newPanicTask(g *Game, p action.Pending) *panicTask {
	p.Kind = action.KindPanic
	return &panicTask{task: task{game: g, act: p}}
}

func (t *panicTask) Step(ctx context.Context) bool {
	g := t.game
	a := t.actor()
	if a == nil {
		return true
	}
	if a.Status() == unit.StatusBerserk && !t.fired {
		t.fired = true
		item := g.armory.Held(a)
		enemies := g.VisibleEnemies(a)
		if item != nil && item.Weapon.Supports(combat.ModeSnap) && len(enemies) > 0 {
			target := enemies[dice.Gen(g.src, 0, len(enemies)-1)]
			p := action.Pending{Actor: a.Handle, Kind: action.KindSnapshot, Target: target.Position, TargetUnit: target.Handle, Weapon: item.Handle}
			g.pushFront(newProjectileTask(g, p))
			g.pushFront(newTurnTask(g, p, false))
			return false
		}
	}
	a.Pools.TimeUnits = 0
	a.DontReselect = true
	if err := a.Transition(ctx, unit.EventRecover); err != nil && !errors.Is(err, unit.ErrIllegalTransition) {
		g.logger.Warn("panic recovery failed", logging.Error(err), logging.Int("actor", a.ID))
	}
	return true
}

// kneelTask kneels or stands the actor for the AI side.
type kneelTask struct {
	task
}

func newKneelTask(g *Game, p action.Pending) *kneelTask {
	p.Kind = action.KindKneel
	return &kneelTask{task: task{game: g, act: p}}
}

func (t *kneelTask) Step(ctx context.Context) bool {
	a := t.actor()
	if a == nil || t.cancelled {
		return true
	}
	if err := t.game.kneel(ctx, a); err != nil {
		t.game.refuse(ctx, &t.act, err)
	}
	return true
}

var (
	_ tasks.Task = (*walkTask)(nil)
	_ tasks.Task = (*turnTask)(nil)
	_ tasks.Task = (*projectileTask)(nil)
	_ tasks.Task = (*meleeTask)(nil)
	_ tasks.Task = (*psiTask)(nil)
	_ tasks.Task = (*explosionTask)(nil)
	_ tasks.Task = (*dieTask)(nil)
	_ tasks.Task = (*panicTask)(nil)
	_ tasks.Task = (*kneelTask)(nil)
)
