// Package scenario loads battle setups: the map, the mission rules and the forces.
package scenario

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"

	_ "embed"

	"gopkg.in/yaml.v3"

	"squadfire/battlecore/internal/geom"
	"squadfire/battlecore/internal/unit"
)

// DefaultMorale is the starting morale of units that do not set one.
const DefaultMorale = 100

// Coord is a tile written as [x, y] or [x, y, z].
type Coord struct {
	X, Y, Z int
}

// UnmarshalYAML accepts a two or three element sequence.
func (c *Coord) UnmarshalYAML(node *yaml.Node) error {
	var parts []int
	if err := node.Decode(&parts); err != nil {
		return fmt.Errorf("line %d: coordinates must be a list of integers: %w", node.Line, err)
	}
	switch len(parts) {
	case 2:
		*c = Coord{X: parts[0], Y: parts[1]}
	case 3:
		*c = Coord{X: parts[0], Y: parts[1], Z: parts[2]}
	default:
		return fmt.Errorf("line %d: coordinates need 2 or 3 values, got %d", node.Line, len(parts))
	}
	return nil
}

// MarshalYAML writes the coordinates as a flow sequence.
func (c Coord) MarshalYAML() (any, error) {
	node := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
	for _, v := range []int{c.X, c.Y, c.Z} {
		node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!int", Value: fmt.Sprint(v)})
	}
	return node, nil
}

// Position converts to a map tile.
func (c Coord) Position() geom.Position { return geom.Position{X: c.X, Y: c.Y, Z: c.Z} }

// Map describes the terrain.
type Map struct {
	Width  int     `yaml:"width"`
	Length int     `yaml:"length"`
	Height int     `yaml:"height"`
	Walls  []Coord `yaml:"walls"`
	Blocks []Coord `yaml:"blocks"`
	Holes  []Coord `yaml:"holes"`
}

// Rules are the mission parameters.
type Rules struct {
	TurnLimit int    `yaml:"turn_limit"`
	Chrono    string `yaml:"chrono"`
	Objective string `yaml:"objective"`
	Surrender int    `yaml:"surrender"`
	// ExitZone is a WKT polygon in tile units.
	ExitZone string `yaml:"exit_zone"`
}

// Unit is one combatant and its kit.
type Unit struct {
	Name            string     `yaml:"name"`
	Type            string     `yaml:"type"`
	Side            string     `yaml:"side"`
	Soldier         bool       `yaml:"soldier"`
	Position        Coord      `yaml:"position"`
	Direction       int        `yaml:"direction"`
	Stats           unit.Stats `yaml:"stats"`
	Morale          int        `yaml:"morale"`
	Weapons         []string   `yaml:"weapons"`
	SpawnType       string     `yaml:"spawn_type"`
	Respawn         bool       `yaml:"respawn"`
	ExplodesOnDeath bool       `yaml:"explodes_on_death"`
	AggroSound      string     `yaml:"aggro_sound"`
	CanSurrender    bool       `yaml:"can_surrender"`
}

// Scenario is a complete battle setup.
type Scenario struct {
	Name       string  `yaml:"name"`
	Seed       int64   `yaml:"seed"`
	Map        Map     `yaml:"map"`
	Rules      Rules   `yaml:"rules"`
	Objectives []Coord `yaml:"objectives"`
	Units      []Unit  `yaml:"units"`
}

// Parse decodes and validates a YAML scenario. Unknown keys are rejected.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Load reads a scenario file.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	s, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

// Validate reports every structural problem at once.
func (s *Scenario) Validate() error {
	var problems []error
	if strings.TrimSpace(s.Name) == "" {
		problems = append(problems, errors.New("name is required"))
	}
	if s.Map.Width <= 0 || s.Map.Length <= 0 {
		problems = append(problems, errors.New("map width and length must be positive"))
	}
	inside := func(c Coord) bool {
		height := max(s.Map.Height, 1)
		return c.X >= 0 && c.Y >= 0 && c.Z >= 0 && c.X < s.Map.Width && c.Y < s.Map.Length && c.Z < height
	}
	sides := make(map[unit.Faction]int)
	occupied := make(map[Coord]string)
	for i, u := range s.Units {
		label := u.Name
		if label == "" {
			label = fmt.Sprintf("unit %d", i)
		}
		side, ok := unit.ParseFaction(u.Side)
		if !ok {
			problems = append(problems, fmt.Errorf("%s: unknown side %q", label, u.Side))
		}
		sides[side]++
		if !inside(u.Position) {
			problems = append(problems, fmt.Errorf("%s: position %v is off the map", label, u.Position))
		}
		if other, taken := occupied[u.Position]; taken {
			problems = append(problems, fmt.Errorf("%s: position %v already holds %s", label, u.Position, other))
		}
		occupied[u.Position] = label
		if u.Stats.TimeUnits <= 0 || u.Stats.Health <= 0 {
			problems = append(problems, fmt.Errorf("%s: time units and health must be positive", label))
		}
		if !geom.Direction(u.Direction).Valid() {
			problems = append(problems, fmt.Errorf("%s: direction %d outside 0..7", label, u.Direction))
		}
		if len(u.Weapons) > 2 {
			problems = append(problems, fmt.Errorf("%s: at most two hands of weapons", label))
		}
	}
	if sides[unit.FactionPlayer] == 0 || sides[unit.FactionHostile] == 0 {
		problems = append(problems, errors.New("both the player and the hostile side need units"))
	}
	for _, c := range s.Objectives {
		if !inside(c) {
			problems = append(problems, fmt.Errorf("objective %v is off the map", c))
		}
	}
	return errors.Join(problems...)
}

//go:embed skirmish.yaml
var skirmishPayload []byte

var (
	skirmishOnce sync.Once
	skirmishData *Scenario
	skirmishErr  error
)

// Default returns the built-in skirmish. The embedded file is parsed once.
func Default() *Scenario {
	skirmishOnce.Do(func() {
		skirmishData, skirmishErr = Parse(skirmishPayload)
	})
	//1.- A broken built-in scenario is a build defect.
	if skirmishErr != nil {
		panic(fmt.Sprintf("built-in skirmish: %v", skirmishErr))
	}
	clone := *skirmishData
	clone.Units = append([]Unit(nil), skirmishData.Units...)
	clone.Objectives = append([]Coord(nil), skirmishData.Objectives...)
	return &clone
}
