package replay

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

var missionIDCleaner = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

// Bundle file names.
const (
	ManifestFile = "manifest.json"
	HeaderFile   = "header.json"
	EventsFile   = "events.jsonl.sz"
	FramesFile   = "turns.bin.zst"
)

// ManifestVersion is the bundle layout version written by this package.
const ManifestVersion = 2

const frameHeaderSize = 8 + 8 + 8 + 4

// Manifest describes the replay bundle layout so tooling can locate artefacts.
type Manifest struct {
	Version    int    `json:"version"`
	CreatedAt  string `json:"created_at"`
	MissionID  string `json:"mission_id"`
	EventsPath string `json:"events_path"`
	FramesPath string `json:"frames_path"`
}

// EventRecord is one line of the event log.
type EventRecord struct {
	Sequence   uint64          `json:"seq"`
	Turn       int             `json:"turn"`
	Kind       string          `json:"kind"`
	CapturedAt string          `json:"captured_at"`
	Payload    json.RawMessage `json:"payload,omitempty"`
}

// Writer streams a battle into a bundle: every notice as a snappy JSON line and one zstd
// frame per ended turn.
type Writer struct {
	mu          sync.Mutex
	dir         string
	now         func() time.Time
	eventFile   *os.File
	eventStream *snappy.Writer
	frameFile   *os.File
	frameStream *zstd.Encoder
	header      Header
	events      int
	frames      int
	closed      bool
}

// NewWriter prepares the bundle directory under root and opens the compressed sinks.
func NewWriter(root, missionID string, clock func() time.Time) (*Writer, Manifest, error) {
	if root == "" {
		return nil, Manifest{}, fmt.Errorf("replay root must be provided")
	}
	if clock == nil {
		clock = time.Now
	}

	cleaned := missionIDCleaner.ReplaceAllString(missionID, "")
	if cleaned == "" {
		cleaned = "battle"
	}
	created := clock().UTC()
	path := filepath.Join(root, fmt.Sprintf("%s-%s", cleaned, created.Format("20060102T150405Z")))
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, Manifest{}, err
	}

	manifest := Manifest{
		Version:    ManifestVersion,
		CreatedAt:  created.Format(time.RFC3339Nano),
		MissionID:  missionID,
		EventsPath: EventsFile,
		FramesPath: FramesFile,
	}
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, Manifest{}, err
	}
	if err := os.WriteFile(filepath.Join(path, ManifestFile), data, 0o644); err != nil {
		return nil, Manifest{}, err
	}

	//1.- Open both sinks, unwinding the first when the second fails.
	eventFile, err := os.Create(filepath.Join(path, EventsFile))
	if err != nil {
		return nil, Manifest{}, err
	}
	frameFile, err := os.Create(filepath.Join(path, FramesFile))
	if err != nil {
		eventFile.Close()
		return nil, Manifest{}, err
	}
	frameStream, err := zstd.NewWriter(frameFile)
	if err != nil {
		eventFile.Close()
		frameFile.Close()
		return nil, Manifest{}, err
	}

	return &Writer{
		dir:         path,
		now:         clock,
		eventFile:   eventFile,
		eventStream: snappy.NewBufferedWriter(eventFile),
		frameFile:   frameFile,
		frameStream: frameStream,
		header:      Header{SchemaVersion: HeaderSchemaVersion, MissionID: missionID, FilePointer: ManifestFile},
	}, manifest, nil
}

// Directory exposes the directory backing the replay bundle.
func (w *Writer) Directory() string {
	if w == nil {
		return ""
	}
	return w.dir
}

// SetHeader records the seed and scenario persisted when the writer closes.
func (w *Writer) SetHeader(seed int64, scenario string, rules map[string]int) {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.header.Seed = seed
	w.header.Scenario = scenario
	w.header.Rules = cloneRules(rules)
}

// AppendEvent writes a single JSON line to the compressed event log.
func (w *Writer) AppendEvent(record EventRecord) error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("writer closed")
	}
	if record.CapturedAt == "" {
		record.CapturedAt = w.now().UTC().Format(time.RFC3339Nano)
	}
	line, err := json.Marshal(record)
	if err != nil {
		return err
	}
	if _, err := w.eventStream.Write(append(line, '\n')); err != nil {
		return err
	}
	w.events++
	return nil
}

// AppendTurn writes one length-prefixed frame holding the state after a turn ended.
func (w *Writer) AppendTurn(turn int, sequence uint64, payload []byte) error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return fmt.Errorf("writer closed")
	}
	header := make([]byte, frameHeaderSize)
	binary.LittleEndian.PutUint64(header[0:8], uint64(turn))
	binary.LittleEndian.PutUint64(header[8:16], sequence)
	binary.LittleEndian.PutUint64(header[16:24], uint64(w.now().UTC().UnixNano()))
	binary.LittleEndian.PutUint32(header[24:28], uint32(len(payload)))
	if _, err := w.frameStream.Write(header); err != nil {
		return err
	}
	if _, err := w.frameStream.Write(payload); err != nil {
		return err
	}
	w.frames++
	//1.- Flush every turn so a crashed run still leaves readable frames.
	if err := w.frameStream.Flush(); err != nil {
		return err
	}
	return w.eventStream.Flush()
}

// Flush forces buffered events to disk.
func (w *Writer) Flush() error {
	if w == nil {
		return fmt.Errorf("writer not initialised")
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	if err := w.eventStream.Flush(); err != nil {
		return err
	}
	return w.frameStream.Flush()
}

// Counts reports how many events and turn frames were written.
func (w *Writer) Counts() (events, frames int) {
	if w == nil {
		return 0, 0
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.events, w.frames
}

// Close writes the header, flushes every sink and releases file handles.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	//1.- Attempt every close and surface the first failure.
	var firstErr error
	keep := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	w.header.Events = w.events
	w.header.Turns = w.frames
	keep(WriteHeader(filepath.Join(w.dir, HeaderFile), w.header))
	keep(w.eventStream.Close())
	keep(w.eventFile.Close())
	keep(w.frameStream.Close())
	keep(w.frameFile.Close())
	return firstErr
}

func cloneRules(rules map[string]int) map[string]int {
	if len(rules) == 0 {
		return nil
	}
	out := make(map[string]int, len(rules))
	for k, v := range rules {
		out[k] = v
	}
	return out
}
