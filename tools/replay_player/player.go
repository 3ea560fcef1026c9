package replayplayer

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"squadfire/battlecore/internal/replay"
)

// Line is one rendered entry of the battle timeline.
type Line struct {
	Sequence uint64 `json:"seq"`
	Turn     int    `json:"turn"`
	Kind     string `json:"kind"`
	Text     string `json:"text"`
}

// Summary aggregates a replay for quick inspection.
type Summary struct {
	Mission    string         `json:"mission"`
	Scenario   string         `json:"scenario,omitempty"`
	Seed       int64          `json:"seed"`
	Events     int            `json:"events"`
	Turns      int            `json:"turns"`
	Kinds      map[string]int `json:"kinds"`
	Casualties []string       `json:"casualties,omitempty"`
	Result     string         `json:"result,omitempty"`
	Timeline   []Line         `json:"timeline"`
}

// Load reads the bundle at path and builds its summary.
func Load(path string) (Summary, error) {
	bundle, err := replay.LoadBundle(path)
	if err != nil {
		return Summary{}, err
	}
	return Summarise(bundle)
}

// Summarise walks the bundle in replay order.
func Summarise(bundle *replay.Bundle) (Summary, error) {
	s := Summary{
		Mission:  bundle.Manifest.MissionID,
		Scenario: bundle.Header.Scenario,
		Seed:     bundle.Header.Seed,
		Kinds:    make(map[string]int),
	}
	//1.- Events become timeline lines; turn frames only add a marker.
	err := bundle.Replay(
		func(e replay.EventRecord) error {
			payload := map[string]any{}
			if len(e.Payload) > 0 {
				if err := json.Unmarshal(e.Payload, &payload); err != nil {
					return fmt.Errorf("event %d: %w", e.Sequence, err)
				}
			}
			s.Events++
			s.Kinds[e.Kind]++
			text := describe(e.Kind, payload)
			switch e.Kind {
			case "casualty":
				s.Casualties = append(s.Casualties, text)
			case "mission-finished":
				s.Result = text
			}
			s.Timeline = append(s.Timeline, Line{Sequence: e.Sequence, Turn: e.Turn, Kind: e.Kind, Text: text})
			return nil
		},
		func(f replay.TurnFrame) error {
			s.Turns++
			s.Timeline = append(s.Timeline, Line{Sequence: f.Sequence, Turn: f.Turn, Kind: "frame", Text: fmt.Sprintf("state saved (%d bytes)", len(f.State))})
			return nil
		},
	)
	return s, err
}

// describe renders the payload fields that matter for each notice kind.
func describe(kind string, p map[string]any) string {
	field := func(key string) string {
		if v, ok := p[key]; ok && v != nil && v != "" {
			return fmt.Sprint(v)
		}
		return "?"
	}
	position := func() string {
		return fmt.Sprintf("(%s,%s,%s)", field("x"), field("y"), field("z"))
	}
	switch kind {
	case "shot":
		return fmt.Sprintf("actor %s fires %s at %s", field("actor"), field("action"), position())
	case "hit":
		return fmt.Sprintf("actor %s hit at %s", field("target"), position())
	case "explosion":
		return fmt.Sprintf("explosion at %s", position())
	case "casualty":
		return fmt.Sprintf("%s %s (%s) by %s with %s", field("victim_side"), field("victim"), field("outcome"), field("murderer"), field("weapon"))
	case "turn-ended":
		return fmt.Sprintf("%s turn ends", field("message"))
	case "mission-finished":
		return fmt.Sprintf("mission finished: %s", field("message"))
	case "action-failed":
		return fmt.Sprintf("actor %s: %s", field("actor"), field("message"))
	}
	if msg, ok := p["message"].(string); ok && msg != "" {
		return msg
	}
	return kind
}

// WriteText prints the summary for a terminal.
func WriteText(w io.Writer, s Summary) error {
	var b strings.Builder
	fmt.Fprintf(&b, "mission %s", s.Mission)
	if s.Scenario != "" {
		fmt.Fprintf(&b, " (%s, seed %d)", s.Scenario, s.Seed)
	}
	fmt.Fprintf(&b, "\n%d events, %d turn frames\n", s.Events, s.Turns)
	kinds := make([]string, 0, len(s.Kinds))
	for k := range s.Kinds {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		fmt.Fprintf(&b, "  %-18s %d\n", k, s.Kinds[k])
	}
	for _, line := range s.Timeline {
		fmt.Fprintf(&b, "[%5d] turn %-3d %-16s %s\n", line.Sequence, line.Turn, line.Kind, line.Text)
	}
	if s.Result != "" {
		fmt.Fprintf(&b, "%s\n", s.Result)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
