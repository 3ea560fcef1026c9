package scenario

import (
	"fmt"

	"squadfire/battlecore/internal/cost"
	"squadfire/battlecore/internal/geom"
	"squadfire/battlecore/internal/mission"
	"squadfire/battlecore/internal/unit"
)

// Battlefield is a scenario instantiated into live battle state.
type Battlefield struct {
	Name       string
	Seed       int64
	Grid       *geom.Grid
	Roster     *unit.Roster
	Armory     *unit.Armory
	Rules      mission.Rules
	Objectives []geom.Position
}

// Build creates the grid, the roster and the armory. Every call returns fresh state.
func (s *Scenario) Build() (*Battlefield, error) {
	rules, err := s.missionRules()
	if err != nil {
		return nil, err
	}
	grid := geom.NewGrid(s.Map.Width, s.Map.Length, s.Map.Height)
	for _, c := range s.Map.Walls {
		grid.Wall(c.Position())
	}
	for _, c := range s.Map.Blocks {
		grid.Block(c.Position())
	}
	for _, c := range s.Map.Holes {
		grid.RemoveFloor(c.Position())
	}

	roster := unit.NewRoster()
	armory := unit.NewArmory()
	grid.SetOccupants(roster)
	for i, spec := range s.Units {
		side, ok := unit.ParseFaction(spec.Side)
		if !ok {
			return nil, fmt.Errorf("unit %d: unknown side %q", i, spec.Side)
		}
		morale := spec.Morale
		if morale <= 0 {
			morale = DefaultMorale
		}
		//1.- Pools start full; morale comes from the scenario.
		actor := roster.Get(roster.Add(unit.Actor{
			Name:            spec.Name,
			Type:            spec.Type,
			Soldier:         spec.Soldier,
			Faction:         side,
			OriginalFaction: side,
			Position:        spec.Position.Position(),
			Direction:       geom.Direction(spec.Direction),
			Stats:           spec.Stats,
			Pools: cost.Pools{
				TimeUnits: spec.Stats.TimeUnits,
				Energy:    spec.Stats.Energy,
				Health:    spec.Stats.Health,
				Morale:    morale,
			},
			SpawnType:       spec.SpawnType,
			Respawn:         spec.Respawn,
			ExplodesOnDeath: spec.ExplodesOnDeath,
			AggroSound:      spec.AggroSound,
			CanSurrender:    spec.CanSurrender,
		}, unit.StatusStanding))
		for _, weapon := range spec.Weapons {
			if _, err := armory.Issue(actor, weapon); err != nil {
				return nil, fmt.Errorf("%s: %w", actor.Name, err)
			}
		}
	}

	objectives := make([]geom.Position, 0, len(s.Objectives))
	for _, c := range s.Objectives {
		objectives = append(objectives, c.Position())
	}
	return &Battlefield{
		Name:       s.Name,
		Seed:       s.Seed,
		Grid:       grid,
		Roster:     roster,
		Armory:     armory,
		Rules:      rules,
		Objectives: objectives,
	}, nil
}

func (s *Scenario) missionRules() (mission.Rules, error) {
	zone, err := mission.ParseZone(s.Rules.ExitZone)
	if err != nil {
		return mission.Rules{}, err
	}
	chrono := mission.ChronoTrigger(s.Rules.Chrono)
	switch chrono {
	case "":
		chrono = mission.ChronoForceLose
	case mission.ChronoForceLose, mission.ChronoForceAbort, mission.ChronoForceWin:
	default:
		return mission.Rules{}, fmt.Errorf("unknown chrono trigger %q", s.Rules.Chrono)
	}
	objective := mission.Objective(s.Rules.Objective)
	if objective != mission.ObjectiveNone && objective != mission.ObjectiveMustDestroy {
		return mission.Rules{}, fmt.Errorf("unknown objective %q", s.Rules.Objective)
	}
	if s.Rules.Surrender < mission.SurrenderNever || s.Rules.Surrender > mission.SurrenderWhenDisarmed {
		return mission.Rules{}, fmt.Errorf("surrender mode %d outside 0..3", s.Rules.Surrender)
	}
	return mission.Rules{
		TurnLimit:     s.Rules.TurnLimit,
		Chrono:        chrono,
		Objective:     objective,
		SurrenderMode: s.Rules.Surrender,
		ExitZone:      zone,
	}, nil
}

// RulesSummary flattens the numeric rules for replay headers.
func (s *Scenario) RulesSummary() map[string]int {
	return map[string]int{
		"turn_limit": s.Rules.TurnLimit,
		"surrender":  s.Rules.Surrender,
		"units":      len(s.Units),
		"objectives": len(s.Objectives),
	}
}
