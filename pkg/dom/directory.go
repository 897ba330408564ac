package dom

import (
	"slices"
	"sync"

	"github.com/vango-dev/domcore/pkg/metrics"
)

// Directory maps manager ids to managers so that code holding only an id can
// reach the manager. It is safe for concurrent use.
type Directory struct {
	mu       sync.Mutex
	managers map[int32]*Manager
	metrics  *metrics.Metrics
}

// NewDirectory creates an empty directory. mtr may be nil.
func NewDirectory(mtr *metrics.Metrics) *Directory {
	return &Directory{
		managers: make(map[int32]*Manager),
		metrics:  mtr,
	}
}

// Insert registers m under its id, replacing any existing entry.
func (d *Directory) Insert(m *Manager) {
	if m == nil {
		return
	}
	d.mu.Lock()
	d.managers[m.ID()] = m
	n := len(d.managers)
	d.mu.Unlock()
	d.metrics.SetActiveManagers(n)
}

// Find returns the manager registered under id.
func (d *Directory) Find(id int32) (*Manager, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	m, ok := d.managers[id]
	return m, ok
}

// Erase removes the entry for id. It reports whether an entry was removed.
func (d *Directory) Erase(id int32) bool {
	d.mu.Lock()
	_, ok := d.managers[id]
	delete(d.managers, id)
	n := len(d.managers)
	d.mu.Unlock()
	if ok {
		d.metrics.SetActiveManagers(n)
	}
	return ok
}

// EraseManager removes m if it is the manager registered under its id.
func (d *Directory) EraseManager(m *Manager) bool {
	if m == nil {
		return false
	}
	d.mu.Lock()
	cur, ok := d.managers[m.ID()]
	if ok && cur == m {
		delete(d.managers, m.ID())
	}
	n := len(d.managers)
	d.mu.Unlock()
	if ok && cur == m {
		d.metrics.SetActiveManagers(n)
		return true
	}
	return false
}

// Len returns the number of registered managers.
func (d *Directory) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.managers)
}

// IDs returns the registered manager ids in ascending order.
func (d *Directory) IDs() []int32 {
	d.mu.Lock()
	ids := make([]int32, 0, len(d.managers))
	for id := range d.managers {
		ids = append(ids, id)
	}
	d.mu.Unlock()
	slices.Sort(ids)
	return ids
}
