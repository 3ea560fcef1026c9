package replaycatalog

import (
	"os"
	"path/filepath"
	"testing"

	"squadfire/battlecore/internal/replay"
)

func writeHeader(t *testing.T, root, name string, seed int64) string {
	t.Helper()
	dir := filepath.Join(root, name)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	header := replay.Header{
		SchemaVersion: replay.HeaderSchemaVersion,
		MissionID:     name,
		Seed:          seed,
		Scenario:      "farmland",
		Rules:         map[string]int{"turn_limit": 20},
		Events:        12,
		Turns:         3,
		FilePointer:   replay.ManifestFile,
	}
	if err := replay.WriteHeader(filepath.Join(dir, replay.HeaderFile), header); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	return dir
}

func TestListCollectsHeadersBySeed(t *testing.T) {
	root := t.TempDir()
	late := writeHeader(t, root, "bravo", 90)
	early := writeHeader(t, root, "alpha", 7)
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("ignored"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	entries, err := List(root)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected two entries, got %d", len(entries))
	}
	if entries[0].Header.Seed != 7 || entries[1].Header.Seed != 90 {
		t.Fatalf("unexpected order: %+v", entries)
	}
	if entries[0].ReplayPath != filepath.Join(early, replay.ManifestFile) {
		t.Fatalf("unexpected replay path: %q", entries[0].ReplayPath)
	}
	if entries[1].HeaderPath != filepath.Join(late, replay.HeaderFile) {
		t.Fatalf("unexpected header path: %q", entries[1].HeaderPath)
	}

	payload, err := MarshalEntries(entries)
	if err != nil {
		t.Fatalf("MarshalEntries: %v", err)
	}
	if len(payload) == 0 {
		t.Fatalf("expected JSON payload to be non-empty")
	}
}

func TestListRejectsBadRoots(t *testing.T) {
	if _, err := List(" "); err == nil {
		t.Fatal("expected blank root to fail")
	}
	file := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(file, nil, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := List(file); err == nil {
		t.Fatal("expected a file root to fail")
	}
}
