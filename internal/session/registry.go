package session

import (
	"log"
	"sync"
)

// Registry tracks which transport sessions belong to which users. A user may
// hold several concurrent sessions (tabs, devices); presence logic asks
// HasActiveSession before treating a user as gone.
type Registry struct {
	log *log.Logger

	// mu guards both indexes. They must always be mutated together so a
	// reader never observes one side updated without the other.
	mu           sync.Mutex
	sessionUser  map[string]string
	userSessions map[string]map[string]struct{}
}

func NewRegistry(logger *log.Logger) *Registry {
	return &Registry{
		log:          logger,
		sessionUser:  make(map[string]string),
		userSessions: make(map[string]map[string]struct{}),
	}
}

// AddSession registers sessionID as belonging to userID. Empty identifiers
// are logged and ignored; re-adding an existing pair is harmless.
func (r *Registry) AddSession(sessionID, userID string) {
	if sessionID == "" || userID == "" {
		r.log.Printf("session add skipped: sessionID=%q userID=%q", sessionID, userID)
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessionUser[sessionID] = userID
	if r.userSessions[userID] == nil {
		r.userSessions[userID] = make(map[string]struct{})
	}
	r.userSessions[userID][sessionID] = struct{}{}
	r.log.Printf("session registered: %s -> %s", sessionID, userID)
}

// RemoveSession drops the mapping for sessionID. Unknown sessions are a
// no-op.
func (r *Registry) RemoveSession(sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.sessionUser[sessionID]
	if !ok {
		return
	}

	delete(r.sessionUser, sessionID)
	if sessions, ok := r.userSessions[userID]; ok {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(r.userSessions, userID)
		}
	}
	r.log.Printf("session removed: %s (user %s)", sessionID, userID)
}

// UserIDFor returns the user owning sessionID.
func (r *Registry) UserIDFor(sessionID string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	userID, ok := r.sessionUser[sessionID]
	return userID, ok
}

// HasActiveSession reports whether any session is registered for userID.
// This gates removal from rooms: a user's last closing tab must not evict
// them while another tab is still connected.
func (r *Registry) HasActiveSession(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.userSessions[userID]) > 0
}

func (r *Registry) SessionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.sessionUser)
}
