package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// SeedTargets is the membership used when no usable persisted list exists.
var SeedTargets = []string{"8.8.8.8", "1.1.1.1", "8.8.4.4"}

var (
	// ErrExists is returned when adding a target that is already registered.
	ErrExists = errors.New("target already exists")
	// ErrNotFound is returned when removing or renaming an unknown target.
	ErrNotFound = errors.New("target not found")
	// ErrPersist means a mutation was applied in memory but could not be
	// written to disk; the persisted list may be stale.
	ErrPersist = errors.New("target list not persisted")
)

// Registry is the set of monitored targets, backed by a JSON array on disk.
// Membership is keyed by the exact address string. All methods are safe for
// concurrent use; List returns a copy so the collection loop always iterates
// a stable snapshot.
type Registry struct {
	mu      sync.Mutex
	path    string
	targets map[string]struct{}
}

// Load builds a registry from the persisted list at path. A missing or
// unparseable file falls back to the seed targets.
func Load(path string) *Registry {
	r := &Registry{path: path, targets: make(map[string]struct{})}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logrus.WithField("path", path).Info("no target list on disk, starting with seed targets")
		} else {
			logrus.WithError(err).Warn("cannot read target list, starting with seed targets")
		}
		r.seed()
		return r
	}

	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		logrus.WithError(err).Warn("corrupt target list, starting with seed targets")
		r.seed()
		return r
	}

	for _, target := range list {
		if target != "" {
			r.targets[target] = struct{}{}
		}
	}
	return r
}

func (r *Registry) seed() {
	for _, target := range SeedTargets {
		r.targets[target] = struct{}{}
	}
}

// List returns the current targets, sorted.
func (r *Registry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sortedLocked()
}

// Has reports whether target is currently registered.
func (r *Registry) Has(target string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.targets[target]
	return ok
}

// Add registers a new target and persists the list.
func (r *Registry) Add(target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.targets[target]; ok {
		return ErrExists
	}
	r.targets[target] = struct{}{}
	return r.persistLocked()
}

// Remove deletes a target and persists the list.
func (r *Registry) Remove(target string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.targets[target]; !ok {
		return ErrNotFound
	}
	delete(r.targets, target)
	return r.persistLocked()
}

// Rename replaces oldTarget with newTarget in one mutation. When newTarget is
// already registered the removal of oldTarget still proceeds, so renaming
// onto an existing address collapses the two entries.
func (r *Registry) Rename(oldTarget, newTarget string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.targets[oldTarget]; !ok {
		return ErrNotFound
	}
	delete(r.targets, oldTarget)
	r.targets[newTarget] = struct{}{}
	return r.persistLocked()
}

func (r *Registry) sortedLocked() []string {
	list := make([]string, 0, len(r.targets))
	for target := range r.targets {
		list = append(list, target)
	}
	sort.Strings(list)
	return list
}

// persistLocked writes the sorted list as a JSON array, replacing the backing
// file atomically so a crash mid-write cannot truncate it.
func (r *Registry) persistLocked() error {
	data, err := json.MarshalIndent(r.sortedLocked(), "", "  ")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}

	tmp := r.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	if err := os.Rename(tmp, r.path); err != nil {
		return fmt.Errorf("%w: %v", ErrPersist, err)
	}
	return nil
}
