package auth

import "sync"

// Snapshot is a consistent read of State.
type Snapshot struct {
	User            *SessionUser
	IsAuthenticated bool
	IsLoading       bool
}

// State is the process wide auth state. The Reconciler and the logout action write it,
// everything else reads Snapshot.
type State struct {
	mu      sync.RWMutex
	user    *SessionUser
	loading bool
	// version counts user writes, so a bootstrap can tell it was overtaken by an event.
	version uint64
}

// NewState returns a state that is loading until the first bootstrap completes.
func NewState() *State {
	return &State{loading: true}
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		User:            s.user,
		IsAuthenticated: s.user != nil,
		IsLoading:       s.loading,
	}
}

// SetUser replaces the user; nil signs out.
func (s *State) SetUser(user *SessionUser) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.user = user
	s.version++
}

// begin marks a bootstrap in flight and returns the version its result applies to.
func (s *State) begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loading = true
	return s.version
}

// settle writes the bootstrap result in one step so readers never see a user with loading set.
// The user is only written if nothing else wrote it since begin returned since.
func (s *State) settle(user *SessionUser, since uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version == since {
		s.user = user
		s.version++
	}
	s.loading = false
}

// Logout clears the user.
func (s *State) Logout() {
	s.SetUser(nil)
}
