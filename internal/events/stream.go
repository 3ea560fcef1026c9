package events

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Envelope is one sequenced battle notice.
type Envelope struct {
	Sequence   uint64
	Kind       string
	Mission    string
	Turn       int
	OccurredAt *timestamppb.Timestamp
	Payload    *structpb.Struct
}

// Clone deep-copies the protobuf parts.
func (e *Envelope) Clone() *Envelope {
	if e == nil {
		return nil
	}
	out := *e
	if e.Payload != nil {
		out.Payload = proto.Clone(e.Payload).(*structpb.Struct)
	}
	if e.OccurredAt != nil {
		out.OccurredAt = proto.Clone(e.OccurredAt).(*timestamppb.Timestamp)
	}
	return &out
}

// Config tunes the stream. Retain is the history kept for late subscribers.
type Config struct {
	Retain int
}

const (
	defaultRetention = 512
	defaultBuffer    = 32
)

var (
	// ErrOutOfOrderAck means the ack did not name the oldest unacknowledged envelope.
	ErrOutOfOrderAck = errors.New("ack sequence must match the next pending envelope")
	// ErrNilStream is returned by methods invoked on a nil stream.
	ErrNilStream = errors.New("nil stream")
)

// Stream is an ordered log of envelopes with at-least-once delivery per named subscriber.
// Subscribers ack in order; the log keeps the newest Retain envelopes plus everything
// some known subscriber has not acked yet.
type Stream struct {
	mu        sync.Mutex
	seq       uint64
	retain    int
	log       []*Envelope
	consumers map[string]*consumer
}

// consumer outlives connections so a reconnecting subscriber resumes after its last ack.
type consumer struct {
	acked uint64
	ch    chan *Envelope
}

// Subscription is one live connection of a named subscriber.
type Subscription struct {
	id     string
	stream *Stream
	events chan *Envelope
	once   sync.Once
}

// NewStream builds an empty stream.
func NewStream(cfg Config) *Stream {
	retain := cfg.Retain
	if retain <= 0 {
		retain = defaultRetention
	}
	return &Stream{retain: retain, consumers: make(map[string]*consumer)}
}

// Subscribe (re)attaches subscriberID and queues every retained envelope it has not acked.
// A previous connection under the same id is closed.
func (s *Stream) Subscribe(_ context.Context, subscriberID string, buffer int) (*Subscription, error) {
	if s == nil {
		return nil, ErrNilStream
	}
	if subscriberID == "" {
		return nil, errors.New("subscriber id must be provided")
	}
	if buffer <= 0 {
		buffer = defaultBuffer
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.consumers[subscriberID]
	if !ok {
		c = &consumer{}
		s.consumers[subscriberID] = c
	}
	if c.ch != nil {
		close(c.ch)
	}
	backlog := s.log[s.firstAfter(c.acked):]
	//1.- The channel holds the whole backlog so replay never blocks under the lock.
	c.ch = make(chan *Envelope, len(backlog)+buffer)
	for _, env := range backlog {
		c.ch <- env.Clone()
	}
	return &Subscription{id: subscriberID, stream: s, events: c.ch}, nil
}

// Events is the delivery channel; it closes when the subscription is replaced or closed.
func (s *Subscription) Events() <-chan *Envelope {
	if s == nil {
		return nil
	}
	return s.events
}

// ID is the subscriber name.
func (s *Subscription) ID() string {
	if s == nil {
		return ""
	}
	return s.id
}

// Ack confirms the oldest pending envelope. Re-acking an old sequence with nothing pending
// is a no-op.
func (s *Subscription) Ack(sequence uint64) error {
	if s == nil || s.stream == nil {
		return errors.New("subscription closed")
	}
	return s.stream.ack(s.id, sequence)
}

// Close detaches the connection; the ack position is kept.
func (s *Subscription) Close() {
	if s == nil || s.stream == nil {
		return
	}
	s.once.Do(func() { s.stream.detach(s.id, s.events) })
}

// Publish assigns the next sequence and fans the envelope out. Slow subscribers miss the
// live copy and get it again on resubscribe.
func (s *Stream) Publish(envelope *Envelope) (uint64, error) {
	if s == nil {
		return 0, ErrNilStream
	}
	if envelope == nil || envelope.Kind == "" {
		return 0, errors.New("envelope with a kind required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	stored := envelope.Clone()
	stored.Sequence = s.seq
	s.log = append(s.log, stored)
	for _, c := range s.consumers {
		if c.ch == nil {
			continue
		}
		select {
		case c.ch <- stored.Clone():
		default:
		}
	}
	s.trim()
	return s.seq, nil
}

// Latest is the highest sequence published.
func (s *Stream) Latest() uint64 {
	if s == nil {
		return 0
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seq
}

// Retained copies the log, oldest first.
func (s *Stream) Retained() []*Envelope {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Envelope, len(s.log))
	for i, env := range s.log {
		out[i] = env.Clone()
	}
	return out
}

// firstAfter is the log index of the first envelope newer than seq.
func (s *Stream) firstAfter(seq uint64) int {
	return sort.Search(len(s.log), func(i int) bool { return s.log[i].Sequence > seq })
}

// trim drops envelopes outside the retention window that every consumer has acked.
func (s *Stream) trim() {
	excess := len(s.log) - s.retain
	if excess <= 0 {
		return
	}
	keepFrom := s.log[excess].Sequence
	for _, c := range s.consumers {
		if c.acked+1 < keepFrom {
			keepFrom = c.acked + 1
		}
	}
	if drop := s.firstAfter(keepFrom - 1); drop > 0 {
		s.log = append([]*Envelope(nil), s.log[drop:]...)
	}
}

func (s *Stream) ack(subscriberID string, sequence uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.consumers[subscriberID]
	if !ok {
		return fmt.Errorf("unknown subscriber %q", subscriberID)
	}
	next := s.firstAfter(c.acked)
	if next == len(s.log) {
		if sequence <= c.acked {
			return nil
		}
		return ErrOutOfOrderAck
	}
	if sequence != s.log[next].Sequence {
		return ErrOutOfOrderAck
	}
	c.acked = sequence
	s.trim()
	return nil
}

func (s *Stream) detach(subscriberID string, events chan *Envelope) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.consumers[subscriberID]
	//1.- A newer connection under the same id owns the channel now.
	if !ok || c.ch == nil || c.ch != events {
		return
	}
	close(c.ch)
	c.ch = nil
}
