package chat

import (
	"sort"
	"sync"

	"github.com/samber/lo"
)

// Roster is the authoritative set of display names currently in use.
//
// Claim and Release are observed in total order across sessions: no two
// sessions ever hold the same name at once. The critical sections are map
// lookups only and never span I/O.
type Roster struct {
	mu    sync.Mutex
	names map[string]struct{}
}

// NewRoster constructs an empty roster.
func NewRoster() *Roster {
	return &Roster{names: make(map[string]struct{})}
}

// Claim atomically reserves name for one session. It returns ErrNameTaken
// when the name is held by a live session and ErrInvalidName for the empty
// string. The roster never retries; the caller decides what a failure means.
func (r *Roster) Claim(name string) error {
	if name == "" {
		return ErrInvalidName
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, taken := r.names[name]; taken {
		return ErrNameTaken
	}
	r.names[name] = struct{}{}
	return nil
}

// Release returns name to the pool. Releasing a name that is not held is a
// no-op so teardown paths may release unconditionally.
func (r *Roster) Release(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.names, name)
}

// Contains reports whether name is currently claimed.
func (r *Roster) Contains(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.names[name]
	return ok
}

// Len returns the number of claimed names.
func (r *Roster) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.names)
}

// Names returns a sorted snapshot of every claimed name.
func (r *Roster) Names() []string {
	r.mu.Lock()
	out := lo.Keys(r.names)
	r.mu.Unlock()

	sort.Strings(out)
	return out
}
