package monitor

import (
	"sync"
	"time"

	"github.com/vitalsentry/vitalsentry/internal/alert"
	"github.com/vitalsentry/vitalsentry/internal/conditions"
	"github.com/vitalsentry/vitalsentry/internal/risk"
)

// locationRegistry is the single owner of the tracked-location map. All
// mutation goes through its methods; callers only ever see copies.
type locationRegistry struct {
	mu        sync.RWMutex
	locations map[string]*TrackedLocation
}

func newLocationRegistry() *locationRegistry {
	return &locationRegistry{locations: make(map[string]*TrackedLocation)}
}

// track inserts or replaces the entry for id. Replacing discards previous
// conditions; the entry starts fresh.
func (r *locationRegistry) track(id string, spec LocationSpec) (*TrackedLocation, bool) {
	prefs := make(map[string]alert.Preferences, len(spec.Preferences))
	for k, v := range spec.Preferences {
		prefs[k] = v
	}

	loc := &TrackedLocation{
		ID:          id,
		Name:        spec.Name,
		Coordinates: spec.Coordinates,
		UserIDs:     dedupe(spec.UserIDs),
		DeviceIDs:   dedupe(spec.DeviceIDs),
		Preferences: prefs,
		TrackedAt:   time.Now().UTC(),
	}

	r.mu.Lock()
	_, replaced := r.locations[id]
	r.locations[id] = loc
	r.mu.Unlock()

	return copyLocation(loc), replaced
}

// untrack removes the entry for id, reporting whether it existed.
func (r *locationRegistry) untrack(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.locations[id]
	delete(r.locations, id)
	return ok
}

// get returns a copy of the entry for id.
func (r *locationRegistry) get(id string) (*TrackedLocation, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	loc, ok := r.locations[id]
	if !ok {
		return nil, false
	}
	return copyLocation(loc), true
}

// list returns copies of all entries.
func (r *locationRegistry) list() []*TrackedLocation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*TrackedLocation, 0, len(r.locations))
	for _, loc := range r.locations {
		out = append(out, copyLocation(loc))
	}
	return out
}

// ids returns the tracked location ids.
func (r *locationRegistry) ids() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.locations))
	for id := range r.locations {
		out = append(out, id)
	}
	return out
}

// storeResult swaps in the reading and derived alerts atomically relative to
// readers. Returns false when the location was untracked mid-update; the
// result is then discarded.
func (r *locationRegistry) storeResult(id string, reading *conditions.Reading, alerts []risk.Alert) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	loc, ok := r.locations[id]
	if !ok {
		return false
	}
	loc.CurrentConditions = reading
	loc.HealthAlerts = append([]risk.Alert(nil), alerts...)
	loc.UpdatedAt = time.Now().UTC()
	return true
}

// clear removes every entry and returns how many were removed.
func (r *locationRegistry) clear() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.locations)
	r.locations = make(map[string]*TrackedLocation)
	return n
}

// count returns the number of tracked entries.
func (r *locationRegistry) count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.locations)
}
