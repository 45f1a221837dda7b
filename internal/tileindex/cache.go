package tileindex

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/paulmach/orb"
	"golang.org/x/sync/singleflight"

	"github.com/wegman-software/lidarqc-go/internal/vector"
)

// LoadFunc builds a reference index from a vector file
type LoadFunc func(path string) (*ReferenceIndex, error)

// Cache holds the reference indexes built during one run, keyed by path.
// It is safe for concurrent use; simultaneous first loads of the same path
// share a single build.
type Cache struct {
	load    LoadFunc
	group   singleflight.Group
	mu      sync.RWMutex
	indexes map[string]*ReferenceIndex
}

// NewCache creates an empty cache. A nil load uses LoadReferenceIndex.
func NewCache(load LoadFunc) *Cache {
	if load == nil {
		load = LoadReferenceIndex
	}
	return &Cache{
		load:    load,
		indexes: make(map[string]*ReferenceIndex),
	}
}

// Get returns the index for path, building it on first use
func (c *Cache) Get(path string) (*ReferenceIndex, error) {
	key := filepath.Clean(path)

	c.mu.RLock()
	idx, ok := c.indexes[key]
	c.mu.RUnlock()
	if ok {
		return idx, nil
	}

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		c.mu.RLock()
		idx, ok := c.indexes[key]
		c.mu.RUnlock()
		if ok {
			return idx, nil
		}

		idx, err := c.load(key)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.indexes[key] = idx
		c.mu.Unlock()
		return idx, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*ReferenceIndex), nil
}

// Len returns the number of cached indexes
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.indexes)
}

// LoadReferenceIndex reads every polygon of a vector file into an index
func LoadReferenceIndex(path string) (*ReferenceIndex, error) {
	features, err := vector.ReadFile(path, "")
	if err != nil {
		return nil, fmt.Errorf("failed to load supplied tile index: %w", err)
	}
	geoms := make([]orb.Geometry, len(features))
	for i, f := range features {
		geoms[i] = f.Geometry
	}
	return NewReferenceIndex(geoms), nil
}
