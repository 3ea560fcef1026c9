package replay

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/zstd"
)

// TurnFrame is a decoded state frame.
type TurnFrame struct {
	Turn       int
	Sequence   uint64
	CapturedAt time.Time
	State      json.RawMessage
}

// Bundle is a fully decoded replay.
type Bundle struct {
	Dir      string
	Manifest Manifest
	Header   Header
	// HasHeader is false for bundles whose writer never closed.
	HasHeader bool
	Events    []EventRecord
	Turns     []TurnFrame
}

// LoadBundle reads a bundle from its directory or its manifest path.
func LoadBundle(path string) (*Bundle, error) {
	if path == "" {
		return nil, fmt.Errorf("replay path must be provided")
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	dir := path
	if !info.IsDir() {
		dir = filepath.Dir(path)
	}

	//1.- The manifest locates the other artefacts.
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, err
	}
	bundle := &Bundle{Dir: dir}
	if err := json.Unmarshal(data, &bundle.Manifest); err != nil {
		return nil, fmt.Errorf("decode manifest: %w", err)
	}
	if bundle.Manifest.Version != ManifestVersion {
		return nil, fmt.Errorf("unsupported manifest version %d", bundle.Manifest.Version)
	}

	header, err := ReadHeader(filepath.Join(dir, HeaderFile))
	switch {
	case err == nil:
		bundle.Header = header
		bundle.HasHeader = true
	case !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("read header: %w", err)
	}

	if bundle.Events, err = loadEvents(filepath.Join(dir, bundle.Manifest.EventsPath)); err != nil {
		return nil, fmt.Errorf("read events: %w", err)
	}
	if bundle.Turns, err = loadTurns(filepath.Join(dir, bundle.Manifest.FramesPath)); err != nil {
		return nil, fmt.Errorf("read turns: %w", err)
	}
	return bundle, nil
}

// Replay visits the events in order, handing each turn frame over right after the event
// that closed it.
func (b *Bundle) Replay(onEvent func(EventRecord) error, onTurn func(TurnFrame) error) error {
	if b == nil {
		return fmt.Errorf("bundle not loaded")
	}
	next := 0
	for _, event := range b.Events {
		if onEvent != nil {
			if err := onEvent(event); err != nil {
				return err
			}
		}
		for next < len(b.Turns) && b.Turns[next].Sequence == event.Sequence {
			if onTurn != nil {
				if err := onTurn(b.Turns[next]); err != nil {
					return err
				}
			}
			next++
		}
	}
	return nil
}

func loadEvents(path string) ([]EventRecord, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(snappy.NewReader(file))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	var out []EventRecord
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var record EventRecord
		if err := json.Unmarshal([]byte(line), &record); err != nil {
			return nil, err
		}
		out = append(out, record)
	}
	return out, scanner.Err()
}

func loadTurns(path string) ([]TurnFrame, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	reader, err := zstd.NewReader(file)
	if err != nil {
		return nil, err
	}
	defer reader.Close()
	payload, err := io.ReadAll(reader)
	if err != nil {
		return nil, err
	}

	var frames []TurnFrame
	offset := 0
	for offset+frameHeaderSize <= len(payload) {
		//1.- Fixed header, then the state bytes.
		turn := binary.LittleEndian.Uint64(payload[offset : offset+8])
		seq := binary.LittleEndian.Uint64(payload[offset+8 : offset+16])
		captured := int64(binary.LittleEndian.Uint64(payload[offset+16 : offset+24]))
		size := int(binary.LittleEndian.Uint32(payload[offset+24 : offset+28]))
		offset += frameHeaderSize
		if offset+size > len(payload) {
			return nil, fmt.Errorf("turn frame truncated")
		}
		frames = append(frames, TurnFrame{
			Turn:       int(turn),
			Sequence:   seq,
			CapturedAt: time.Unix(0, captured).UTC(),
			State:      append(json.RawMessage(nil), payload[offset:offset+size]...),
		})
		offset += size
	}
	if offset != len(payload) {
		return nil, fmt.Errorf("trailing %d bytes in turn frames", len(payload)-offset)
	}
	return frames, nil
}
