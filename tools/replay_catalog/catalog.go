package replaycatalog

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"squadfire/battlecore/internal/replay"
)

// Entry pairs a replay header with the bundle it describes.
type Entry struct {
	HeaderPath string        `json:"header_path"`
	ReplayPath string        `json:"replay_path"`
	Header     replay.Header `json:"header"`
}

// List walks root and returns every battle header it finds, ordered by seed.
func List(root string) ([]Entry, error) {
	if strings.TrimSpace(root) == "" {
		return nil, fmt.Errorf("root directory must be provided")
	}
	info, err := os.Stat(root)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root must be a directory")
	}

	var entries []Entry
	//1.- Headers are only written when a battle closes, so unfinished bundles are skipped.
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || d.Name() != replay.HeaderFile {
			return nil
		}
		header, err := replay.ReadHeader(path)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		pointer := header.FilePointer
		if !filepath.IsAbs(pointer) {
			pointer = filepath.Join(filepath.Dir(path), pointer)
		}
		entries = append(entries, Entry{HeaderPath: path, ReplayPath: pointer, Header: header})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Header.Seed == entries[j].Header.Seed {
			return entries[i].ReplayPath < entries[j].ReplayPath
		}
		return entries[i].Header.Seed < entries[j].Header.Seed
	})
	return entries, nil
}

// MarshalEntries renders the catalog as indented JSON.
func MarshalEntries(entries []Entry) ([]byte, error) {
	return json.MarshalIndent(entries, "", "  ")
}
