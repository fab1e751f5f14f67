// Package store implements the durable Deployment Store: a single JSON
// snapshot file mapping deployment identifier to record, written with
// write-temp-then-rename semantics after every mutation.
package store

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/alephdeploy/control-plane/internal/models"
	"github.com/alephdeploy/control-plane/internal/pkg/atomic"
)

// Store is the Deployment Store. All access is serialized through a
// single mutex; there are no cross-record consistency guarantees beyond
// that.
type Store struct {
	mu           sync.Mutex
	snapshotPath string
	deployments  map[string]*models.Deployment
}

// Open loads an existing snapshot from path, tolerating a missing or
// malformed file by starting empty.
func Open(path string) (*Store, error) {
	s := &Store{
		snapshotPath: path,
		deployments:  make(map[string]*models.Deployment),
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return s, nil
	}

	var loaded map[string]*models.Deployment
	if err := json.Unmarshal(raw, &loaded); err != nil {
		return s, nil
	}
	if loaded != nil {
		s.deployments = loaded
	}
	return s, nil
}

// Add inserts a new deployment record. CreatedAt/UpdatedAt are stamped
// to now if zero.
func (s *Store) Add(d *models.Deployment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	if d.CreatedAt.IsZero() {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	s.deployments[d.ID] = d
	return s.snapshotLocked()
}

// Update applies fn to the stored record for id under the store's lock,
// stamps UpdatedAt, and snapshots. Returns nil, nil if id is unknown.
func (s *Store) Update(id string, fn func(d *models.Deployment)) (*models.Deployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deployments[id]
	if !ok {
		return nil, nil
	}
	fn(d)
	d.UpdatedAt = time.Now().UTC()
	if err := s.snapshotLocked(); err != nil {
		return nil, err
	}
	return d.Clone(), nil
}

// Get returns a copy of the record for id, or nil if absent.
func (s *Store) Get(id string) *models.Deployment {
	s.mu.Lock()
	defer s.mu.Unlock()

	d, ok := s.deployments[id]
	if !ok {
		return nil
	}
	return d.Clone()
}

// ListByOwner returns copies of every record owned by address, newest first.
func (s *Store) ListByOwner(address string) []*models.Deployment {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Deployment, 0)
	for _, d := range s.deployments {
		if d.Owner == address {
			out = append(out, d.Clone())
		}
	}
	sortByCreatedDesc(out)
	return out
}

// ListAll returns copies of every record, newest first.
func (s *Store) ListAll() []*models.Deployment {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*models.Deployment, 0, len(s.deployments))
	for _, d := range s.deployments {
		out = append(out, d.Clone())
	}
	sortByCreatedDesc(out)
	return out
}

// Remove deletes the record for id, if present, and snapshots.
func (s *Store) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.deployments[id]; !ok {
		return nil
	}
	delete(s.deployments, id)
	return s.snapshotLocked()
}

func (s *Store) snapshotLocked() error {
	raw, err := json.MarshalIndent(s.deployments, "", "  ")
	if err != nil {
		return fmt.Errorf("store: marshal snapshot: %w", err)
	}
	return atomic.WriteFile(s.snapshotPath, raw, 0o644)
}

func sortByCreatedDesc(ds []*models.Deployment) {
	for i := 1; i < len(ds); i++ {
		for j := i; j > 0 && ds[j].CreatedAt.After(ds[j-1].CreatedAt); j-- {
			ds[j], ds[j-1] = ds[j-1], ds[j]
		}
	}
}
