package retrieval

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
)

// ErrInsufficientMemory is returned when an index cannot be loaded even
// after evicting every non-core index.
var ErrInsufficientMemory = errors.New("insufficient memory for index load")

// coreIndexes stay resident; eviction passes skip them.
var coreIndexes = map[string]bool{
	IndexScience:    true,
	IndexFoundation: true,
}

// exclusivePeer maps each heavy index to the one it cannot coexist with.
var exclusivePeer = map[string]string{
	IndexChemistry: IndexBranded,
	IndexBranded:   IndexChemistry,
}

// Default memory-cost estimates in MB, from offline profiling of the
// serialized index sizes.
var defaultCosts = map[string]int{
	IndexChemistry:  1800,
	IndexBranded:    2200,
	IndexScience:    300,
	IndexFoundation: 250,
	IndexRecipes:    400,
}

// LoadFunc materializes a named index.
type LoadFunc func(name string) (any, error)

// HeadroomFunc reports whether costMB of additional memory is safe to
// allocate right now.
type HeadroomFunc func(costMB int) bool

// Manager enforces the resident-set policy over named indexes.
type Manager struct {
	mu       sync.Mutex
	costs    map[string]int
	loaded   map[string]any
	load     LoadFunc
	headroom HeadroomFunc
}

// NewManager builds an index manager. headroom may be nil, in which case
// loads are always considered safe.
func NewManager(load LoadFunc, headroom HeadroomFunc) *Manager {
	if headroom == nil {
		headroom = func(int) bool { return true }
	}
	return &Manager{
		costs:    defaultCosts,
		loaded:   make(map[string]any),
		load:     load,
		headroom: headroom,
	}
}

// Ensure returns the named index, loading it under the resident-set policy:
// the heavy chemistry and branded indexes evict each other, and a failed
// memory-safety check evicts all non-core indexes and retries once.
func (m *Manager) Ensure(name string) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if idx, ok := m.loaded[name]; ok {
		return idx, nil
	}

	if peer, ok := exclusivePeer[name]; ok {
		if _, resident := m.loaded[peer]; resident {
			slog.Info("Evicting mutually exclusive index", "evicted", peer, "loading", name)
			m.unloadLocked(peer)
		}
	}

	cost := m.costs[name]
	if !m.headroom(cost) {
		m.evictNonCoreLocked()
		if !m.headroom(cost) {
			return nil, fmt.Errorf("%w: %s (%d MB)", ErrInsufficientMemory, name, cost)
		}
	}

	idx, err := m.load(name)
	if err != nil {
		return nil, fmt.Errorf("load index %s: %w", name, err)
	}
	m.loaded[name] = idx
	slog.Info("Index loaded", "index", name, "cost_mb", cost)
	return idx, nil
}

// Unload drops the named index and triggers a best-effort collection.
func (m *Manager) Unload(name string) {
	m.mu.Lock()
	m.unloadLocked(name)
	m.mu.Unlock()
	runtime.GC()
}

// Resident reports whether the named index is currently loaded.
func (m *Manager) Resident(name string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.loaded[name]
	return ok
}

func (m *Manager) unloadLocked(name string) {
	delete(m.loaded, name)
}

func (m *Manager) evictNonCoreLocked() {
	for name := range m.loaded {
		if !coreIndexes[name] {
			slog.Warn("Evicting index under memory pressure", "index", name)
			m.unloadLocked(name)
		}
	}
	runtime.GC()
}
