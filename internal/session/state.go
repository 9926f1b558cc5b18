package session

import "sync"

// ChangeKind says which part of the shared state moved
type ChangeKind int

const (
	IDChanged ChangeKind = iota + 1
	SnapshotChanged
	Cleared
)

// Change is delivered to subscribers after every mutation
type Change struct {
	Kind      ChangeKind
	SessionID string
	Phase     string
}

// State is the session identity, phase and snapshot shared by every surface.
// Mutations are serialized by the mutex and observers are notified outside it.
type State struct {
	mu       sync.RWMutex
	id       string
	phase    string
	snapshot Snapshot

	subMu  sync.Mutex
	nextID int
	subs   map[int]func(Change)
	// notifyMu keeps deliveries in mutation order
	notifyMu sync.Mutex
}

// NewState returns an empty state in the default phase
func NewState() *State {
	return &State{
		phase: DefaultPhase,
		subs:  make(map[int]func(Change)),
	}
}

// ID returns the current session identifier, empty when none
func (s *State) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id
}

// Phase returns the last phase applied
func (s *State) Phase() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase
}

// Snapshot returns the last snapshot applied
func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshot
}

// SetID replaces the session identifier
func (s *State) SetID(id string) {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	changed := s.id != id
	s.id = id
	phase := s.phase
	s.mu.Unlock()

	if changed {
		s.notify(Change{Kind: IDChanged, SessionID: id, Phase: phase})
	}
}

// Apply replaces phase and snapshot together, but only while sessionID is
// still the active session. It reports whether the snapshot was applied.
// Callers must only pass snapshots that carry a phase.
func (s *State) Apply(sessionID string, snap Snapshot) bool {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	if s.id != sessionID {
		s.mu.Unlock()
		return false
	}
	s.phase = snap.Phase
	s.snapshot = snap
	s.mu.Unlock()

	s.notify(Change{Kind: SnapshotChanged, SessionID: sessionID, Phase: snap.Phase})
	return true
}

// Reset clears identity, phase and snapshot
func (s *State) Reset() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.Lock()
	s.id = ""
	s.phase = DefaultPhase
	s.snapshot = Snapshot{}
	s.mu.Unlock()

	s.notify(Change{Kind: Cleared, Phase: DefaultPhase})
}

// Subscribe registers fn for every future change and returns a function that removes it.
// fn runs synchronously after the mutation and must not mutate the State.
func (s *State) Subscribe(fn func(Change)) func() {
	s.subMu.Lock()
	defer s.subMu.Unlock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()
		delete(s.subs, id)
	}
}

func (s *State) notify(c Change) {
	s.subMu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()

	for _, fn := range fns {
		fn(c)
	}
}
