package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/klauspost/compress/gzip"

	"squadfire/battlecore/internal/config"
)

// rotatingFile appends to one log file and moves it aside once it outgrows maxSize.
// Backups are named <path>.<utc stamp>, gzipped when compress is set, and pruned by
// count and age after every rotation.
type rotatingFile struct {
	mu         sync.Mutex
	path       string
	maxSize    int64
	maxBackups int
	maxAge     time.Duration
	compress   bool
	now        func() time.Time

	file *os.File
	size int64
}

func openRotating(cfg config.LoggingConfig) (*rotatingFile, error) {
	switch {
	case cfg.MaxSizeMB <= 0:
		return nil, errors.New("log max size must be positive")
	case cfg.MaxBackups < 0:
		return nil, errors.New("log max backups must be non-negative")
	case cfg.MaxAgeDays < 0:
		return nil, errors.New("log max age must be non-negative")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, err
	}
	r := &rotatingFile{
		path:       cfg.Path,
		maxSize:    int64(cfg.MaxSizeMB) << 20,
		maxBackups: cfg.MaxBackups,
		maxAge:     time.Duration(cfg.MaxAgeDays) * 24 * time.Hour,
		compress:   cfg.Compress,
		now:        time.Now,
	}
	if err := r.open(os.O_APPEND); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *rotatingFile) open(mode int) error {
	file, err := os.OpenFile(r.path, os.O_CREATE|os.O_WRONLY|mode, 0o644)
	if err != nil {
		return err
	}
	info, err := file.Stat()
	if err != nil {
		_ = file.Close()
		return err
	}
	r.file, r.size = file, info.Size()
	return nil
}

func (r *rotatingFile) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return 0, errors.New("log file closed")
	}
	if r.size > 0 && r.size+int64(len(p)) > r.maxSize {
		if err := r.rotate(); err != nil {
			return 0, err
		}
	}
	n, err := r.file.Write(p)
	r.size += int64(n)
	return n, err
}

func (r *rotatingFile) Sync() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.file == nil {
		return nil
	}
	return r.file.Sync()
}

// rotate runs with mu held.
func (r *rotatingFile) rotate() error {
	if err := r.file.Close(); err != nil {
		return err
	}
	r.file = nil
	backup := fmt.Sprintf("%s.%s", r.path, r.now().UTC().Format("20060102T150405.000000000"))
	if err := os.Rename(r.path, backup); err != nil {
		return err
	}
	if r.compress {
		if err := gzipFile(backup); err != nil {
			return err
		}
	}
	r.prune()
	return r.open(os.O_TRUNC)
}

// prune drops backups beyond maxBackups, newest kept, and any older than maxAge.
func (r *rotatingFile) prune() {
	backups, _ := filepath.Glob(r.path + ".*")
	type backup struct {
		path string
		mod  time.Time
	}
	list := make([]backup, 0, len(backups))
	for _, path := range backups {
		if info, err := os.Stat(path); err == nil {
			list = append(list, backup{path: path, mod: info.ModTime()})
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].mod.After(list[j].mod) })
	cutoff := r.now().Add(-r.maxAge)
	for i, b := range list {
		if (r.maxBackups > 0 && i >= r.maxBackups) || (r.maxAge > 0 && b.mod.Before(cutoff)) {
			_ = os.Remove(b.path)
		}
	}
}

// gzipFile replaces path with path.gz.
func gzipFile(path string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(path + ".gz")
	if err != nil {
		return err
	}
	gz := gzip.NewWriter(out)
	_, copyErr := io.Copy(gz, in)
	if err := errors.Join(copyErr, gz.Close(), out.Close()); err != nil {
		_ = os.Remove(path + ".gz")
		return err
	}
	return os.Remove(path)
}
