package battle

import (
	"squadfire/battlecore/internal/geom"
	"squadfire/battlecore/internal/unit"
)

// NoticeKind classifies presentation notifications.
type NoticeKind string

const (
	NoticeBattleStarted   NoticeKind = "battle-started"
	NoticeTaskCompleted   NoticeKind = "task-completed"
	NoticeActionFailed    NoticeKind = "action-failed"
	NoticeShot            NoticeKind = "shot"
	NoticeHit             NoticeKind = "hit"
	NoticeExplosion       NoticeKind = "explosion"
	NoticeCasualty        NoticeKind = "casualty"
	NoticeConversion      NoticeKind = "conversion"
	NoticePanic           NoticeKind = "panic"
	NoticePsi             NoticeKind = "psi"
	NoticeAggro           NoticeKind = "aggro"
	NoticeConfirmEndTurn  NoticeKind = "confirm-end-turn"
	NoticeTurnEnded       NoticeKind = "turn-ended"
	NoticeMissionFinished NoticeKind = "mission-finished"
)

// Notice is an ordered notification for the presentation layer. The core never waits for
// it to be acknowledged.
type Notice struct {
	Mission  string
	Turn     int
	Side     unit.Faction
	Kind     NoticeKind
	Actor    int
	Target   int
	Action   string
	Position geom.Position
	Message  string
	Fields   map[string]any
}

// Payload flattens the notice into plain values suitable for structured encoders.
func (n Notice) Payload() map[string]any {
	out := map[string]any{
		"mission": n.Mission,
		"turn":    n.Turn,
		"side":    n.Side.String(),
		"kind":    string(n.Kind),
		"x":       n.Position.X,
		"y":       n.Position.Y,
		"z":       n.Position.Z,
	}
	if n.Actor != 0 {
		out["actor"] = n.Actor
	}
	if n.Target != 0 {
		out["target"] = n.Target
	}
	if n.Action != "" {
		out["action"] = n.Action
	}
	if n.Message != "" {
		out["message"] = n.Message
	}
	for k, v := range n.Fields {
		if _, taken := out[k]; !taken {
			out[k] = v
		}
	}
	return out
}

// Sink receives notices in the order the battle produced them.
type Sink interface {
	Publish(Notice)
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(Notice)

// Publish implements Sink.
func (f SinkFunc) Publish(n Notice) { f(n) }

// Sinks fans a notice out to every member.
type Sinks []Sink

// Publish implements Sink.
func (s Sinks) Publish(n Notice) {
	for _, sink := range s {
		if sink != nil {
			sink.Publish(n)
		}
	}
}
