package config

import (
	"sync/atomic"
	"time"
)

// Snapshot is one immutable, validated view of the catalogue.
type Snapshot struct {
	Version  uint64
	LoadedAt time.Time
	Catalog  *Catalog
	Location *time.Location
}

// Store publishes catalogue snapshots copy-on-write. Readers that grabbed a
// snapshot keep it for as long as they need; Reload never touches it.
type Store struct {
	path    string
	current atomic.Pointer[Snapshot]
	version atomic.Uint64
}

func NewStore(path string) *Store {
	return &Store{path: path}
}

// Reload reads the file again. On error the active snapshot stays in place.
func (s *Store) Reload() (*Snapshot, error) {
	c, err := LoadFile(s.path)
	if err != nil {
		return nil, err
	}
	return s.Publish(c)
}

// Publish swaps in an already validated catalogue.
func (s *Store) Publish(c *Catalog) (*Snapshot, error) {
	loc, err := c.Location()
	if err != nil {
		return nil, err
	}
	snap := &Snapshot{
		Version:  s.version.Add(1),
		LoadedAt: time.Now(),
		Catalog:  c,
		Location: loc,
	}
	s.current.Store(snap)
	return snap, nil
}

// Current returns the active snapshot, or nil before the first load.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

func (s *Store) Path() string { return s.path }
