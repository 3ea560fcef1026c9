package replay

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"squadfire/battlecore/internal/logging"
)

// RetentionPolicy bounds the bundles kept under the replay root. Zero fields disable a bound.
type RetentionPolicy struct {
	MaxBundles int
	MaxAge     time.Duration
}

// StorageStats describes the root after the last sweep.
type StorageStats struct {
	Bundles   int
	Bytes     int64
	Removed   int
	LastSweep time.Time
}

// Cleaner prunes finished bundles from the replay root on a schedule.
type Cleaner struct {
	dir    string
	policy RetentionPolicy
	log    *logging.Logger
	now    func() time.Time

	mu        sync.Mutex
	protected map[string]bool
	stats     StorageStats
}

// NewCleaner prepares a cleaner for dir.
func NewCleaner(dir string, policy RetentionPolicy, logger *logging.Logger) *Cleaner {
	if logger == nil {
		logger = logging.L()
	}
	return &Cleaner{dir: dir, policy: policy, log: logger, now: time.Now, protected: make(map[string]bool)}
}

// Protect keeps the bundle at path out of every sweep, typically the one being recorded.
func (c *Cleaner) Protect(path string) {
	if c == nil || path == "" {
		return
	}
	c.mu.Lock()
	c.protected[filepath.Clean(path)] = true
	c.mu.Unlock()
}

// Run sweeps now and then every interval until ctx is done.
func (c *Cleaner) Run(ctx context.Context, interval time.Duration) {
	if c == nil {
		return
	}
	if interval <= 0 {
		interval = time.Hour
	}
	c.Sweep()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Sweep()
		}
	}
}

// Stats reports the last sweep.
func (c *Cleaner) Stats() StorageStats {
	if c == nil {
		return StorageStats{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

type bundleInfo struct {
	path    string
	bytes   int64
	created time.Time
}

// Sweep removes bundles older than MaxAge, then the oldest beyond MaxBundles. Only
// directories holding a manifest count as bundles.
func (c *Cleaner) Sweep() {
	if c == nil || c.dir == "" {
		return
	}
	bundles, err := c.scan()
	if err != nil {
		c.log.Warn("replay retention scan failed", logging.Error(err), logging.String("directory", c.dir))
		return
	}

	c.mu.Lock()
	protected := make(map[string]bool, len(c.protected))
	for path := range c.protected {
		protected[path] = true
	}
	c.mu.Unlock()

	now := c.now()
	stats := StorageStats{LastSweep: now}
	for _, b := range bundles {
		reason := c.expired(b, stats.Bundles, now)
		if reason == "" || protected[b.path] {
			stats.Bundles++
			stats.Bytes += b.bytes
			continue
		}
		if err := os.RemoveAll(b.path); err != nil {
			c.log.Warn("replay retention removal failed", logging.Error(err), logging.String("path", b.path))
			stats.Bundles++
			stats.Bytes += b.bytes
			continue
		}
		c.log.Info("replay bundle pruned", logging.String("path", b.path), logging.String("reason", reason))
		stats.Removed++
	}

	c.mu.Lock()
	c.stats = stats
	c.mu.Unlock()
}

// expired names the bound a bundle breaks given how many newer bundles are kept.
func (c *Cleaner) expired(b bundleInfo, kept int, now time.Time) string {
	switch {
	case c.policy.MaxAge > 0 && now.Sub(b.created) > c.policy.MaxAge:
		return "max-age"
	case c.policy.MaxBundles > 0 && kept >= c.policy.MaxBundles:
		return "max-bundles"
	}
	return ""
}

// scan lists the bundles under the root, newest first, dated by their manifest.
func (c *Cleaner) scan() ([]bundleInfo, error) {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, err
	}
	var bundles []bundleInfo
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(c.dir, entry.Name())
		manifest, err := os.Stat(filepath.Join(path, ManifestFile))
		if err != nil {
			continue
		}
		var size int64
		walkErr := filepath.WalkDir(path, func(_ string, d fs.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return err
			}
			info, err := d.Info()
			if err == nil {
				size += info.Size()
			}
			return err
		})
		if walkErr != nil {
			c.log.Warn("replay bundle size failed", logging.Error(walkErr), logging.String("path", path))
			continue
		}
		bundles = append(bundles, bundleInfo{path: filepath.Clean(path), bytes: size, created: manifest.ModTime()})
	}
	sort.Slice(bundles, func(i, j int) bool { return bundles[i].created.After(bundles[j].created) })
	return bundles, nil
}
