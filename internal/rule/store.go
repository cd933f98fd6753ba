package rule

import (
	"sync"

	"github.com/google/uuid"

	"ampfilter/internal/device"
	"ampfilter/internal/metrics"
)

// Handle is the opaque identity assigned to a rule at creation time.
// Removal and state updates operate on handles, never on rule text, so
// duplicate rule strings stay independent.
type Handle string

func newHandle() Handle {
	return Handle(uuid.New().String())
}

// View is a read-only copy of one stored rule, taken by Snapshot.
type View struct {
	Handle Handle `json:"handle"`
	Rule   Rule   `json:"rule"`
	Active bool   `json:"active"`
}

type entry struct {
	handle Handle
	rule   Rule
	active bool
}

// deviceRules is one synchronization domain: all mutation and snapshotting
// for a single device serializes on its mutex, devices never contend.
type deviceRules struct {
	mu      sync.Mutex
	entries []*entry
}

// Store owns the authoritative per-device rule lists.
type Store struct {
	devices map[device.ID]*deviceRules
}

// NewStore creates a store with an empty rule list per configured device.
func NewStore() *Store {
	s := &Store{devices: make(map[device.ID]*deviceRules)}
	for _, id := range device.All() {
		s.devices[id] = &deviceRules{}
	}
	return s
}

// Add validates ruleText, derives the owning device from the rule's
// channel, and appends the rule with initial state false. Returns a view
// of the stored rule (handle, parsed form, initial state) and the derived
// device id, so callers never re-parse the text.
func (s *Store) Add(ruleText string) (View, device.ID, error) {
	r, err := Parse(ruleText)
	if err != nil {
		metrics.RuleValidationErrors.Inc()
		return View{}, 0, err
	}

	id, err := device.ForChannel(r.Channel)
	if err != nil {
		metrics.RuleValidationErrors.Inc()
		return View{}, 0, err
	}

	dr := s.devices[id]
	e := &entry{handle: newHandle(), rule: r}

	dr.mu.Lock()
	dr.entries = append(dr.entries, e)
	dr.mu.Unlock()

	metrics.RulesActive.Inc()
	return View{Handle: e.handle, Rule: r}, id, nil
}

// Remove deletes exactly one rule by handle. Idempotent: a stale or
// unknown handle is a no-op, tolerating removal races with evaluation.
func (s *Store) Remove(id device.ID, h Handle) {
	dr, ok := s.devices[id]
	if !ok {
		return
	}

	dr.mu.Lock()
	defer dr.mu.Unlock()
	for i, e := range dr.entries {
		if e.handle == h {
			dr.entries = append(dr.entries[:i], dr.entries[i+1:]...)
			metrics.RulesActive.Dec()
			return
		}
	}
}

// Snapshot returns a consistent point-in-time copy of a device's rules,
// in insertion order. The copy never aliases internal state.
func (s *Store) Snapshot(id device.ID) []View {
	dr, ok := s.devices[id]
	if !ok {
		return nil
	}

	dr.mu.Lock()
	defer dr.mu.Unlock()
	views := make([]View, len(dr.entries))
	for i, e := range dr.entries {
		views[i] = View{Handle: e.handle, Rule: e.rule, Active: e.active}
	}
	return views
}

// UpdateState atomically overwrites one rule's active flag. A stale
// handle is a no-op: the rule was removed mid-evaluation.
func (s *Store) UpdateState(id device.ID, h Handle, active bool) {
	dr, ok := s.devices[id]
	if !ok {
		return
	}

	dr.mu.Lock()
	defer dr.mu.Unlock()
	for _, e := range dr.entries {
		if e.handle == h {
			e.active = active
			return
		}
	}
}

// State reports a rule's current active flag. ok is false when the
// handle is unknown for that device.
func (s *Store) State(id device.ID, h Handle) (active, ok bool) {
	dr, exists := s.devices[id]
	if !exists {
		return false, false
	}

	dr.mu.Lock()
	defer dr.mu.Unlock()
	for _, e := range dr.entries {
		if e.handle == h {
			return e.active, true
		}
	}
	return false, false
}

// Count returns the number of rules filed under a device.
func (s *Store) Count(id device.ID) int {
	dr, ok := s.devices[id]
	if !ok {
		return 0
	}

	dr.mu.Lock()
	defer dr.mu.Unlock()
	return len(dr.entries)
}
