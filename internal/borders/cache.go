package borders

import (
	"cmp"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	cacheExt    = ".geojson"
	digestChars = 16
)

// Cache keeps downloaded datasets on disk so the globe can start offline.
//
// Entries are named <unix>-<digest>.geojson where digest is a truncated
// SHA-256 of the content. A download identical to the newest entry only
// moves that entry's timestamp forward, and LoadLatest passes over entries
// whose content no longer matches their digest.
type Cache struct {
	dir      string
	maxFiles int
}

// NewCache creates a Cache that stores files in dir and keeps at most maxFiles.
func NewCache(dir string, maxFiles int) *Cache {
	if maxFiles <= 0 {
		maxFiles = 3
	}
	return &Cache{dir: dir, maxFiles: maxFiles}
}

type cacheEntry struct {
	ts     time.Time
	digest string
}

func (e cacheEntry) name() string {
	return strconv.FormatInt(e.ts.Unix(), 10) + "-" + e.digest + cacheExt
}

func parseEntry(name string) (cacheEntry, bool) {
	base, ok := strings.CutSuffix(name, cacheExt)
	if !ok {
		return cacheEntry{}, false
	}
	unix, digest, ok := strings.Cut(base, "-")
	if !ok || len(digest) != digestChars {
		return cacheEntry{}, false
	}
	if _, err := hex.DecodeString(digest); err != nil {
		return cacheEntry{}, false
	}
	sec, err := strconv.ParseInt(unix, 10, 64)
	if err != nil {
		return cacheEntry{}, false
	}
	return cacheEntry{ts: time.Unix(sec, 0), digest: digest}, true
}

func digestOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:digestChars]
}

// Write stores data as of ts and prunes entries beyond maxFiles. The file
// appears under its final name only once fully written.
func (c *Cache) Write(data []byte, ts time.Time) error {
	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}

	entries, err := c.entries()
	if err != nil {
		return err
	}
	e := cacheEntry{ts: ts, digest: digestOf(data)}

	if n := len(entries); n > 0 && entries[n-1].digest == e.digest {
		newest := entries[n-1]
		if !e.ts.After(newest.ts) {
			return nil
		}
		if err := os.Rename(c.path(newest), c.path(e)); err != nil {
			return fmt.Errorf("refreshing cache entry: %w", err)
		}
		return nil
	}

	tmp, err := os.CreateTemp(c.dir, ".partial-*")
	if err != nil {
		return fmt.Errorf("creating cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path(e)); err != nil {
		return fmt.Errorf("committing cache file: %w", err)
	}

	return c.prune(append(entries, e))
}

// LoadLatest returns the newest entry whose content still matches its digest,
// along with the time it was cached.
func (c *Cache) LoadLatest() ([]byte, time.Time, error) {
	entries, err := c.entries()
	if err != nil {
		return nil, time.Time{}, err
	}
	if len(entries) == 0 {
		return nil, time.Time{}, fmt.Errorf("no cached datasets in %s", c.dir)
	}

	var errs []error
	for _, e := range slices.Backward(entries) {
		data, err := os.ReadFile(c.path(e))
		if err != nil {
			errs = append(errs, fmt.Errorf("reading %s: %w", e.name(), err))
			continue
		}
		if digestOf(data) != e.digest {
			errs = append(errs, fmt.Errorf("%s: content does not match digest", e.name()))
			continue
		}
		return data, e.ts, nil
	}
	return nil, time.Time{}, fmt.Errorf("no usable cached dataset: %w", errors.Join(errs...))
}

func (c *Cache) path(e cacheEntry) string {
	return filepath.Join(c.dir, e.name())
}

// entries lists cache entries oldest first.
func (c *Cache) entries() ([]cacheEntry, error) {
	dirents, err := os.ReadDir(c.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("listing cache dir: %w", err)
	}

	var out []cacheEntry
	for _, d := range dirents {
		if d.IsDir() {
			continue
		}
		if e, ok := parseEntry(d.Name()); ok {
			out = append(out, e)
		}
	}
	slices.SortFunc(out, func(a, b cacheEntry) int {
		if n := a.ts.Compare(b.ts); n != 0 {
			return n
		}
		return cmp.Compare(a.digest, b.digest)
	})
	return out, nil
}

func (c *Cache) prune(entries []cacheEntry) error {
	slices.SortFunc(entries, func(a, b cacheEntry) int { return a.ts.Compare(b.ts) })
	if len(entries) <= c.maxFiles {
		return nil
	}
	var errs []error
	for _, e := range entries[:len(entries)-c.maxFiles] {
		if err := os.Remove(c.path(e)); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("pruning cache: %w", err)
	}
	return nil
}
