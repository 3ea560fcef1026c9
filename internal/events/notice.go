package events

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"

	"squadfire/battlecore/internal/battle"
	"squadfire/battlecore/internal/logging"
)

// Sink adapts the stream to the battle notice interface.
type Sink struct {
	stream *Stream
	clock  func() time.Time
	log    *logging.Logger
}

// NewSink wraps the stream so the battle can publish into it. A nil clock uses time.Now.
func NewSink(stream *Stream, clock func() time.Time, log *logging.Logger) *Sink {
	if clock == nil {
		clock = time.Now
	}
	if log == nil {
		log = logging.L()
	}
	return &Sink{stream: stream, clock: clock, log: log}
}

// Publish implements battle.Sink.
func (s *Sink) Publish(n battle.Notice) {
	env, err := EnvelopeFromNotice(n, s.clock())
	if err != nil {
		s.log.Warn("dropping notice", logging.String("kind", string(n.Kind)), logging.Error(err))
		return
	}
	if _, err := s.stream.Publish(env); err != nil {
		s.log.Warn("stream publish failed", logging.String("kind", string(n.Kind)), logging.Error(err))
	}
}

// EnvelopeFromNotice converts a notice into its protobuf envelope.
func EnvelopeFromNotice(n battle.Notice, at time.Time) (*Envelope, error) {
	//1.- Normalise domain types to values structpb understands.
	raw := n.Payload()
	fields := make(map[string]any, len(raw))
	for key, value := range raw {
		if key == "" {
			continue
		}
		fields[key] = plain(value)
	}
	payload, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, fmt.Errorf("encode %s notice: %w", n.Kind, err)
	}
	return &Envelope{
		Kind:       string(n.Kind),
		Mission:    n.Mission,
		Turn:       n.Turn,
		OccurredAt: timestamppb.New(at),
		Payload:    payload,
	}, nil
}

func plain(value any) any {
	switch v := value.(type) {
	case nil, bool, string, int, int32, int64, uint32, uint64, float32, float64:
		return v
	case []string:
		out := make([]any, len(v))
		for i, s := range v {
			out[i] = s
		}
		return out
	case []int:
		out := make([]any, len(v))
		for i, n := range v {
			out[i] = n
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = plain(item)
		}
		return out
	case fmt.Stringer:
		return v.String()
	case error:
		return v.Error()
	default:
		return fmt.Sprint(v)
	}
}
