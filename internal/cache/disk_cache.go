package cache

import (
	"container/list"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const tempPrefix = ".tmp-"

// ErrInvalidKey is returned for keys that would resolve outside the cache directory
var ErrInvalidKey = errors.New("invalid cache key")

type diskEntry struct {
	key  string
	size int64
}

// DiskCache implements GenericCache on disk, bounded by total size with
// least-recently-used eviction.
type DiskCache struct {
	cacheDir string
	maxBytes int64

	mu    sync.Mutex
	lru   *list.List // front is most recently used
	index map[string]*list.Element
	size  int64
}

// NewGenericDisk creates a new disk cache. maxBytes of 0 disables storage.
func NewGenericDisk(cacheDir string, maxBytes int64) *DiskCache {
	return &DiskCache{
		cacheDir: cacheDir,
		maxBytes: maxBytes,
		lru:      list.New(),
		index:    make(map[string]*list.Element),
	}
}

func (d *DiskCache) Dir() string {
	return d.cacheDir
}

func (d *DiskCache) MaxBytes() int64 {
	return d.maxBytes
}

func (d *DiskCache) path(key string) (string, error) {
	if key == "" {
		return "", ErrInvalidKey
	}
	clean := filepath.Clean(key)
	if filepath.IsAbs(clean) || clean == "." || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(d.cacheDir, clean), nil
}

// Get retrieves cached data. A miss returns nil, nil.
func (d *DiskCache) Get(key string) ([]byte, error) {
	cachePath, err := d.path(key)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(cachePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			d.forget(key)
			return nil, nil
		}
		return nil, err
	}

	d.mu.Lock()
	if el, ok := d.index[key]; ok {
		d.lru.MoveToFront(el)
	}
	d.mu.Unlock()

	// recency survives restarts through the file mtime
	now := time.Now()
	if err := os.Chtimes(cachePath, now, now); err != nil {
		logrus.Debugf("Failed to touch cache file %s: %v", cachePath, err)
	}
	return data, nil
}

// Set stores data under key. The file is written to a temporary name and
// renamed into place, so readers never observe a partial entry.
func (d *DiskCache) Set(key string, data []byte) error {
	cachePath, err := d.path(key)
	if err != nil {
		return err
	}
	size := int64(len(data))
	if size > d.maxBytes {
		logrus.Debugf("Not caching %s: %d bytes exceeds cache size %d", key, size, d.maxBytes)
		return d.Delete(key)
	}

	dir := filepath.Dir(cachePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.Rename(tmpName, cachePath); err != nil {
		_ = os.Remove(tmpName)
		return err
	}
	if el, ok := d.index[key]; ok {
		d.size -= el.Value.(*diskEntry).size
		d.lru.Remove(el)
	}
	d.index[key] = d.lru.PushFront(&diskEntry{key: key, size: size})
	d.size += size
	d.evictLocked()

	logrus.Debugf("Cached response: %s", cachePath)
	return nil
}

// Delete removes the entry for key.
func (d *DiskCache) Delete(key string) error {
	cachePath, err := d.path(key)
	if err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	d.dropLocked(key)
	if err := os.Remove(cachePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

func (d *DiskCache) Size() int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.size
}

// Init ensures the cache directory exists and indexes entries left by
// previous runs, oldest first.
func (d *DiskCache) Init() error {
	if err := os.MkdirAll(d.cacheDir, 0755); err != nil {
		return err
	}

	type found struct {
		key     string
		size    int64
		modTime time.Time
	}
	var entries []found

	err := filepath.WalkDir(d.cacheDir, func(p string, de fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if de.IsDir() {
			return nil
		}
		if strings.HasPrefix(de.Name(), tempPrefix) {
			// interrupted write
			return os.Remove(p)
		}
		info, err := de.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(d.cacheDir, p)
		if err != nil {
			return err
		}
		entries = append(entries, found{key: rel, size: info.Size(), modTime: info.ModTime()})
		return nil
	})
	if err != nil {
		return fmt.Errorf("indexing cache directory: %w", err)
	}

	sort.Slice(entries, func(i, j int) bool {
		return entries[i].modTime.Before(entries[j].modTime)
	})

	d.mu.Lock()
	defer d.mu.Unlock()

	d.lru.Init()
	d.index = make(map[string]*list.Element, len(entries))
	d.size = 0
	for _, e := range entries {
		d.index[e.key] = d.lru.PushFront(&diskEntry{key: e.key, size: e.size})
		d.size += e.size
	}
	d.evictLocked()

	logrus.Debugf("Indexed %d cache entries (%d bytes) in %s", len(entries), d.size, d.cacheDir)
	return nil
}

func (d *DiskCache) evictLocked() {
	for d.size > d.maxBytes {
		el := d.lru.Back()
		if el == nil {
			return
		}
		e := el.Value.(*diskEntry)
		d.dropLocked(e.key)
		cachePath, err := d.path(e.key)
		if err != nil {
			continue
		}
		if err := os.Remove(cachePath); err != nil && !errors.Is(err, fs.ErrNotExist) {
			logrus.Errorf("Failed to evict cache file %s: %v", cachePath, err)
		}
		logrus.Debugf("Evicted cache entry %s (%d bytes)", e.key, e.size)
	}
}

func (d *DiskCache) dropLocked(key string) {
	el, ok := d.index[key]
	if !ok {
		return
	}
	d.size -= el.Value.(*diskEntry).size
	d.lru.Remove(el)
	delete(d.index, key)
}

func (d *DiskCache) forget(key string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dropLocked(key)
}
