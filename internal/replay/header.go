package replay

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// HeaderSchemaVersion is the version of the header document.
const HeaderSchemaVersion = 1

// Header is the metadata persisted alongside a bundle once the battle closes.
type Header struct {
	SchemaVersion int            `json:"schema_version"`
	MissionID     string         `json:"mission_id"`
	Seed          int64          `json:"seed"`
	Scenario      string         `json:"scenario,omitempty"`
	Rules         map[string]int `json:"rules,omitempty"`
	Events        int            `json:"events"`
	Turns         int            `json:"turns"`
	FilePointer   string         `json:"file_pointer"`
}

// Validate checks what the catalog tool relies on.
func (h Header) Validate() error {
	if h.SchemaVersion <= 0 {
		return fmt.Errorf("schema_version must be positive")
	}
	if strings.TrimSpace(h.FilePointer) == "" {
		return fmt.Errorf("file_pointer must not be empty")
	}
	return nil
}

// WriteHeader writes the header next to its bundle. The file is replaced atomically so
// catalog scans never see half a header.
func WriteHeader(path string, header Header) error {
	if err := header.Validate(); err != nil {
		return err
	}
	payload, err := json.MarshalIndent(header, "", "  ")
	if err != nil {
		return err
	}
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".header-*")
	if err != nil {
		return err
	}
	_, writeErr := tmp.Write(append(payload, '\n'))
	if err := errors.Join(writeErr, tmp.Close()); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadHeader loads and validates the header at path.
func ReadHeader(path string) (Header, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Header{}, err
	}
	var header Header
	if err := json.Unmarshal(data, &header); err != nil {
		return Header{}, fmt.Errorf("decode header %s: %w", path, err)
	}
	if err := header.Validate(); err != nil {
		return Header{}, fmt.Errorf("header %s: %w", path, err)
	}
	return header, nil
}
