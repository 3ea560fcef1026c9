package events

import (
	"errors"
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// FrameFromEnvelope flattens an envelope into its wire frame.
func FrameFromEnvelope(env *Envelope) *structpb.Struct {
	frame := &structpb.Struct{Fields: map[string]*structpb.Value{
		"sequence": structpb.NewNumberValue(float64(env.Sequence)),
		"kind":     structpb.NewStringValue(env.Kind),
		"mission":  structpb.NewStringValue(env.Mission),
		"turn":     structpb.NewNumberValue(float64(env.Turn)),
	}}
	if env.OccurredAt != nil {
		frame.Fields["occurred_at"] = structpb.NewStringValue(env.OccurredAt.AsTime().Format(time.RFC3339Nano))
	}
	if env.Payload != nil {
		frame.Fields["payload"] = structpb.NewStructValue(env.Payload)
	}
	return frame
}

// EnvelopeFromFrame restores an envelope from its wire frame.
func EnvelopeFromFrame(frame *structpb.Struct) (*Envelope, error) {
	fields := frame.GetFields()
	kind := fields["kind"].GetStringValue()
	if kind == "" {
		return nil, errors.New("frame without kind")
	}
	env := &Envelope{
		Sequence: uint64(fields["sequence"].GetNumberValue()),
		Kind:     kind,
		Mission:  fields["mission"].GetStringValue(),
		Turn:     int(fields["turn"].GetNumberValue()),
		Payload:  fields["payload"].GetStructValue(),
	}
	if raw := fields["occurred_at"].GetStringValue(); raw != "" {
		at, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			return nil, fmt.Errorf("frame timestamp: %w", err)
		}
		env.OccurredAt = timestamppb.New(at)
	}
	return env, nil
}
