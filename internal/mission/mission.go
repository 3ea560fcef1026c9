// Package mission tallies the sides and decides when a battle is over.
package mission

import (
	"squadfire/battlecore/internal/logging"
	"squadfire/battlecore/internal/unit"
)

// ChronoTrigger decides what happens when the turn limit expires.
type ChronoTrigger string

const (
	ChronoForceLose  ChronoTrigger = "force-lose"
	ChronoForceAbort ChronoTrigger = "force-abort"
	ChronoForceWin   ChronoTrigger = "force-win"
)

// Objective is the mission-specific win condition.
type Objective string

const (
	ObjectiveNone        Objective = ""
	ObjectiveMustDestroy Objective = "must-destroy"
)

// Surrender modes.
const (
	SurrenderNever = iota
	SurrenderWhenBroken
	SurrenderWhenWilling
	SurrenderWhenDisarmed
)

// Rules are the mission parameters the lifecycle checks at every end of turn.
type Rules struct {
	TurnLimit       int
	Chrono          ChronoTrigger
	Objective       Objective
	ObjectivesTotal int
	SurrenderMode   int
	ExitZone        Zone
}

// Tally counts the live forces of both sides.
type Tally struct {
	LiveAliens   int
	LiveSoldiers int
	InExit       int
}

// Outcome reports whether and how the battle finished.
type Outcome struct {
	Finished  bool
	Aborted   bool
	Won       bool
	ExitCount int
	Reason    string
}

// LoggingFields describes the outcome for structured logs.
func (o Outcome) LoggingFields() []logging.Field {
	return []logging.Field{
		logging.Bool("finished", o.Finished),
		logging.Bool("aborted", o.Aborted),
		logging.Bool("won", o.Won),
		logging.Int("exit_count", o.ExitCount),
		logging.String("reason", o.Reason),
	}
}

// IsSurrendering reports whether a hostile actor has given up under the surrender mode.
func IsSurrendering(a *unit.Actor, mode int) bool {
	if a == nil || mode <= SurrenderNever {
		return false
	}
	if a.AutoSurrender {
		return true
	}
	switch mode {
	case SurrenderWhenBroken:
		status := a.Status()
		return a.CanSurrender && (status == unit.StatusPanicking || status == unit.StatusBerserk)
	case SurrenderWhenWilling:
		return a.CanSurrender && a.WantsToSurrender
	case SurrenderWhenDisarmed:
		return a.HasEmptyHands() && a.WantsToSurrender
	}
	return false
}

// TallyUnits counts live hostiles, live soldiers and soldiers standing in the exit zone.
// Player-original actors under hostile control count as hostiles; captured hostiles and
// surrendering hostiles do not count at all.
func TallyUnits(actors []*unit.Actor, rules Rules) Tally {
	var t Tally
	for _, a := range actors {
		if a.Out() {
			continue
		}
		switch a.OriginalFaction {
		case unit.FactionHostile:
			if a.Faction == unit.FactionPlayer || IsSurrendering(a, rules.SurrenderMode) {
				continue
			}
			t.LiveAliens++
		case unit.FactionPlayer:
			if a.Faction == unit.FactionPlayer {
				t.LiveSoldiers++
			} else {
				t.LiveAliens++
			}
			if rules.ExitZone.Contains(a.Position) {
				t.InExit++
			}
		}
	}
	return t
}

// Evaluate checks the end-of-battle conditions in order: destroyed objectives, the turn
// limit, then elimination of either side.
func Evaluate(rules Rules, tally Tally, turn, objectivesDestroyed int) Outcome {
	if rules.Objective == ObjectiveMustDestroy && rules.ObjectivesTotal > 0 && objectivesDestroyed >= rules.ObjectivesTotal {
		return Outcome{Finished: true, Won: true, ExitCount: tally.LiveSoldiers, Reason: "objective-destroyed"}
	}
	if rules.TurnLimit > 0 && turn > rules.TurnLimit {
		switch rules.Chrono {
		case ChronoForceAbort:
			return Outcome{Finished: true, Aborted: true, ExitCount: tally.InExit, Reason: "turn-limit-abort"}
		case ChronoForceWin:
			return Outcome{Finished: true, Won: true, ExitCount: tally.LiveSoldiers, Reason: "turn-limit-win"}
		default:
			return Outcome{Finished: true, Aborted: true, ExitCount: 0, Reason: "turn-limit-lose"}
		}
	}
	if tally.LiveAliens == 0 || tally.LiveSoldiers == 0 {
		return Outcome{
			Finished:  true,
			Won:       tally.LiveAliens == 0 && tally.LiveSoldiers > 0,
			ExitCount: tally.LiveSoldiers,
			Reason:    "elimination",
		}
	}
	return Outcome{}
}
