package replay

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"squadfire/battlecore/internal/battle"
	"squadfire/battlecore/internal/logging"
	"squadfire/battlecore/internal/unit"
)

func fixedClock() func() time.Time {
	now := time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(time.Second)
		return now
	}
}

func TestRecorderWritesEventsAndTurnFrames(t *testing.T) {
	root := t.TempDir()
	writer, manifest, err := NewWriter(root, "op/night fall", fixedClock())
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if manifest.MissionID != "op/night fall" || manifest.EventsPath != EventsFile {
		t.Fatalf("unexpected manifest %+v", manifest)
	}
	if filepath.Base(writer.Directory()) != "opnightfall-20240715T120001Z" {
		t.Fatalf("unexpected bundle directory %s", writer.Directory())
	}
	writer.SetHeader(99, "skirmish", map[string]int{"turn_limit": 12})

	turn := 1
	recorder := NewRecorder(writer, func() any { return map[string]int{"turn": turn} }, logging.NewTestLogger())

	//1.- Two ordinary notices, then a turn boundary.
	recorder.Publish(battle.Notice{Mission: "m", Turn: 1, Kind: battle.NoticeShot, Actor: 1})
	recorder.Publish(battle.Notice{Mission: "m", Turn: 1, Kind: battle.NoticeCasualty, Fields: map[string]any{"victim_side": unit.FactionHostile}})
	turn = 2
	recorder.Publish(battle.Notice{Mission: "m", Turn: 2, Kind: battle.NoticeTurnEnded, Side: unit.FactionHostile})
	recorder.Publish(battle.Notice{Mission: "m", Turn: 2, Kind: battle.NoticeShot})

	location, err := recorder.FlushReplay(context.Background())
	if err != nil || location != writer.Directory() {
		t.Fatalf("flush: %q %v", location, err)
	}
	if stats := recorder.Snapshot(); stats.Events != 4 || stats.Turns != 1 || stats.Failures != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if err := recorder.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	//2.- Read it back.
	bundle, err := LoadBundle(writer.Directory())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !bundle.HasHeader || bundle.Header.Seed != 99 || bundle.Header.Turns != 1 || bundle.Header.Events != 4 {
		t.Fatalf("unexpected header %+v", bundle.Header)
	}
	if bundle.Header.Rules["turn_limit"] != 12 {
		t.Fatalf("rules lost: %+v", bundle.Header.Rules)
	}
	if len(bundle.Events) != 4 || bundle.Events[2].Kind != string(battle.NoticeTurnEnded) {
		t.Fatalf("unexpected events %+v", bundle.Events)
	}
	var casualty map[string]any
	if err := json.Unmarshal(bundle.Events[1].Payload, &casualty); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if casualty["victim_side"] != unit.FactionHostile.String() {
		t.Fatalf("expected faction to be written by name, got %v", casualty["victim_side"])
	}
	if len(bundle.Turns) != 1 || bundle.Turns[0].Turn != 2 || bundle.Turns[0].Sequence != 3 {
		t.Fatalf("unexpected turn frames %+v", bundle.Turns)
	}
	if string(bundle.Turns[0].State) != `{"turn":2}` {
		t.Fatalf("unexpected state %s", bundle.Turns[0].State)
	}

	//3.- Replay interleaves the frame right after the event that closed it.
	var order []string
	err = bundle.Replay(
		func(e EventRecord) error { order = append(order, e.Kind); return nil },
		func(f TurnFrame) error { order = append(order, "frame"); return nil },
	)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	want := []string{"shot", "casualty", "turn-ended", "frame", "shot"}
	if len(order) != len(want) {
		t.Fatalf("unexpected order %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("unexpected order %v", order)
		}
	}
}

func TestWriterRejectsWritesAfterClose(t *testing.T) {
	writer, _, err := NewWriter(t.TempDir(), "m", nil)
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := writer.AppendEvent(EventRecord{Kind: "shot"}); err == nil {
		t.Fatal("expected append after close to fail")
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("second close should be a no-op: %v", err)
	}
}

func TestHeaderValidation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", HeaderFile)
	if err := WriteHeader(path, Header{SchemaVersion: 1}); err == nil {
		t.Fatal("expected missing file pointer to be rejected")
	}
	if err := WriteHeader(path, Header{SchemaVersion: 1, MissionID: "m", FilePointer: ManifestFile}); err != nil {
		t.Fatalf("write header: %v", err)
	}
	header, err := ReadHeader(path)
	if err != nil || header.MissionID != "m" {
		t.Fatalf("read header: %+v %v", header, err)
	}
}

func TestLoadBundleRejectsUnknownVersion(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), []byte(`{"version":1}`), 0o644); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	if _, err := LoadBundle(dir); err == nil {
		t.Fatal("expected version 1 bundles to be rejected")
	}
}

func TestCleanerEnforcesRetention(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)
	//1.- Seed four bundles of increasing age plus a stray directory.
	for i, name := range []string{"alpha", "bravo", "charlie", "delta"} {
		dir := filepath.Join(root, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		manifest := filepath.Join(dir, ManifestFile)
		if err := os.WriteFile(manifest, []byte(`{}`), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		mod := now.Add(-time.Duration(i+1) * time.Hour)
		if name == "delta" {
			mod = now.Add(-72 * time.Hour)
		}
		if err := os.Chtimes(manifest, mod, mod); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}
	if err := os.MkdirAll(filepath.Join(root, "scratch"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	cleaner := NewCleaner(root, RetentionPolicy{MaxBundles: 2, MaxAge: 24 * time.Hour}, logging.NewTestLogger())
	cleaner.now = func() time.Time { return now }
	cleaner.Sweep()

	for name, kept := range map[string]bool{"alpha": true, "bravo": true, "charlie": false, "delta": false, "scratch": true} {
		_, err := os.Stat(filepath.Join(root, name))
		if kept != (err == nil) {
			t.Fatalf("%s: expected kept=%v, stat err=%v", name, kept, err)
		}
	}
	if stats := cleaner.Stats(); stats.Bundles != 2 || stats.Removed != 2 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}

func TestCleanerSkipsProtectedBundle(t *testing.T) {
	root := t.TempDir()
	now := time.Date(2024, 7, 15, 12, 0, 0, 0, time.UTC)
	for i, name := range []string{"live", "done"} {
		dir := filepath.Join(root, name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		manifest := filepath.Join(dir, ManifestFile)
		if err := os.WriteFile(manifest, []byte(`{}`), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
		mod := now.Add(-time.Duration(48+i) * time.Hour)
		if err := os.Chtimes(manifest, mod, mod); err != nil {
			t.Fatalf("chtimes: %v", err)
		}
	}

	cleaner := NewCleaner(root, RetentionPolicy{MaxAge: 24 * time.Hour}, logging.NewTestLogger())
	cleaner.now = func() time.Time { return now }
	cleaner.Protect(filepath.Join(root, "live"))
	cleaner.Sweep()

	if _, err := os.Stat(filepath.Join(root, "live")); err != nil {
		t.Fatalf("expected the protected bundle to survive: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, "done")); !os.IsNotExist(err) {
		t.Fatalf("expected the stale bundle to be removed, stat err=%v", err)
	}
	if stats := cleaner.Stats(); stats.Bundles != 1 || stats.Removed != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
