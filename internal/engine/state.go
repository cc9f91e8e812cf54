package engine

import "sync"

// State is the engine's observable state. Owned by one Engine; read it
// through the accessors.
//
// Thread-safety: safe for concurrent use via internal mutex.
type State struct {
	mu        sync.RWMutex
	passing   bool
	scheduled bool
	autoSync  bool
	online    bool
	passes    int64
	lastPass  *PassResult
}

func newState() *State {
	return &State{autoSync: true, online: true}
}

// Passing reports whether a pass is in flight.
func (s *State) Passing() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.passing
}

// Scheduled reports whether the background loop is running.
func (s *State) Scheduled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.scheduled
}

// AutoSyncEnabled reports whether scheduled triggers may start passes.
func (s *State) AutoSyncEnabled() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.autoSync
}

// Online reports the last known connectivity.
func (s *State) Online() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.online
}

// Passes returns the number of completed, non-skipped passes.
func (s *State) Passes() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.passes
}

// LastPass returns the summary of the last completed pass.
func (s *State) LastPass() (PassResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastPass == nil {
		return PassResult{}, false
	}
	return *s.lastPass, true
}

// Status is a point-in-time copy of State for display.
type Status struct {
	Passing   bool        `json:"passing"`
	Scheduled bool        `json:"scheduled"`
	AutoSync  bool        `json:"auto_sync"`
	Online    bool        `json:"online"`
	Passes    int64       `json:"passes"`
	LastPass  *PassResult `json:"last_pass,omitempty"`
}

// Snapshot copies the state.
func (s *State) Snapshot() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{
		Passing:   s.passing,
		Scheduled: s.scheduled,
		AutoSync:  s.autoSync,
		Online:    s.online,
		Passes:    s.passes,
	}
	if s.lastPass != nil {
		lp := *s.lastPass
		st.LastPass = &lp
	}
	return st
}

// tryBeginPass marks a pass in flight. Returns false if one already is.
func (s *State) tryBeginPass() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.passing {
		return false
	}
	s.passing = true
	return true
}

func (s *State) endPass(r PassResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passing = false
	s.passes++
	s.lastPass = &r
}

func (s *State) abortPass() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.passing = false
}

func (s *State) setScheduled(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scheduled = v
}

func (s *State) setAutoSync(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.autoSync = v
}

// setOnline records connectivity and reports whether it changed.
func (s *State) setOnline(v bool) (changed bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	changed = s.online != v
	s.online = v
	return changed
}
