package presence

import (
	"strings"
	"sync"
	"time"
)

// DebounceWindow is how long a device must be missing before it is
// reported away.
const DebounceWindow = 60 * time.Second

type State int

const (
	Unknown State = iota
	Home
	NotHome
)

func (s State) String() string {
	switch s {
	case Home:
		return "home"
	case NotHome:
		return "not_home"
	default:
		return "unknown"
	}
}

type record struct {
	lastSeen time.Time
	seen     bool
	state    State
}

// Tracker derives a debounced home/away state per device. Identity keys
// are compared case-insensitively.
type Tracker struct {
	mu      sync.Mutex
	records map[string]*record
}

func NewTracker() *Tracker {
	return &Tracker{
		records: make(map[string]*record),
	}
}

func NormalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// Observe records whether the device was seen at now. It returns the new
// state and true when the state changed.
func (t *Tracker) Observe(key string, present bool, now time.Time) (State, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key = NormalizeKey(key)
	r, ok := t.records[key]
	if !ok {
		r = &record{}
		t.records[key] = r
	}

	if present {
		r.lastSeen = now
		r.seen = true
		return r.transition(Home)
	}

	if !r.seen || now.Sub(r.lastSeen) >= DebounceWindow {
		return r.transition(NotHome)
	}
	return r.state, false
}

func (t *Tracker) State(key string) State {
	t.mu.Lock()
	defer t.mu.Unlock()

	if r, ok := t.records[NormalizeKey(key)]; ok {
		return r.state
	}
	return Unknown
}

// LastSeen reports when the device was last observed present.
func (t *Tracker) LastSeen(key string) (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if r, ok := t.records[NormalizeKey(key)]; ok && r.seen {
		return r.lastSeen, true
	}
	return time.Time{}, false
}

func (r *record) transition(next State) (State, bool) {
	if r.state == next {
		return r.state, false
	}
	r.state = next
	return next, true
}
