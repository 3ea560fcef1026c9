package replay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"google.golang.org/protobuf/encoding/protojson"

	"squadfire/battlecore/internal/battle"
	"squadfire/battlecore/internal/events"
	"squadfire/battlecore/internal/logging"
)

// StateFunc captures the battle state stored in a turn frame. It runs on the battle
// goroutine, inside the notice fan-out.
type StateFunc func() any

// Recorder is a battle sink that writes every notice into a bundle and a state frame
// whenever a turn ends.
type Recorder struct {
	mu       sync.Mutex
	writer   *Writer
	state    StateFunc
	now      func() time.Time
	log      *logging.Logger
	sequence uint64
	failures int
	lastErr  error
}

// Stats summarises recorder health.
type Stats struct {
	Directory string
	Events    int
	Turns     int
	Failures  int
}

// NewRecorder wraps an open writer.
func NewRecorder(writer *Writer, state StateFunc, log *logging.Logger) *Recorder {
	if log == nil {
		log = logging.L()
	}
	return &Recorder{writer: writer, state: state, now: time.Now, log: log}
}

// Publish implements battle.Sink.
func (r *Recorder) Publish(n battle.Notice) {
	if r == nil || r.writer == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	//1.- Every notice becomes one event line carrying the structpb payload as JSON.
	r.sequence++
	at := r.now()
	env, err := events.EnvelopeFromNotice(n, at)
	if err != nil {
		r.fail(err)
		return
	}
	payload, err := protojson.Marshal(env.Payload)
	if err != nil {
		r.fail(err)
		return
	}
	record := EventRecord{
		Sequence:   r.sequence,
		Turn:       n.Turn,
		Kind:       string(n.Kind),
		CapturedAt: at.UTC().Format(time.RFC3339Nano),
		Payload:    payload,
	}
	if err := r.writer.AppendEvent(record); err != nil {
		r.fail(err)
		return
	}

	//2.- Turn boundaries and the final outcome also snapshot the state.
	if n.Kind != battle.NoticeTurnEnded && n.Kind != battle.NoticeMissionFinished {
		return
	}
	if r.state == nil {
		return
	}
	state, err := json.Marshal(r.state())
	if err != nil {
		r.fail(fmt.Errorf("encode turn state: %w", err))
		return
	}
	if err := r.writer.AppendTurn(n.Turn, r.sequence, state); err != nil {
		r.fail(err)
	}
}

func (r *Recorder) fail(err error) {
	r.failures++
	if r.lastErr == nil {
		r.log.Warn("replay recording failed", logging.String("directory", r.writer.Directory()), logging.Error(err))
	}
	r.lastErr = err
}

// FlushReplay forces buffered records to disk and reports the bundle directory.
func (r *Recorder) FlushReplay(context.Context) (string, error) {
	if r == nil || r.writer == nil {
		return "", fmt.Errorf("recorder not configured")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.writer.Flush(); err != nil {
		return "", err
	}
	return r.writer.Directory(), nil
}

// Close finalises the bundle.
func (r *Recorder) Close() error {
	if r == nil || r.writer == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.writer.Close()
}

// Snapshot returns recorder statistics.
func (r *Recorder) Snapshot() Stats {
	if r == nil || r.writer == nil {
		return Stats{}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	eventsWritten, turns := r.writer.Counts()
	return Stats{Directory: r.writer.Directory(), Events: eventsWritten, Turns: turns, Failures: r.failures}
}

var _ battle.Sink = (*Recorder)(nil)
