// Package presence tracks which live session currently represents each online user.
//
// A user has at most one tracked session. Registering a new session for the same user
// supersedes the previous one (last connection wins); the registry hands the superseded
// session back so the transport can close it. State is process-local and starts empty.
package presence

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"

	"group-chat-service/internal/models"
)

// Session is a live connection bound to one authenticated user for its lifetime.
type Session interface {
	ID() string
	UserID() string
	// Send pushes an event to the client. It must give up when ctx is done.
	Send(ctx context.Context, event models.GroupEvent) error
	Close(code int, reason string)
}

type shard struct {
	mu       sync.RWMutex
	sessions map[string]Session
}

// Registry maps user ids to their current session. It is safe for concurrent use.
type Registry struct {
	shards []*shard
}

// NewRegistry creates an empty registry split into the given number of lock stripes.
func NewRegistry(shards int) *Registry {
	if shards <= 0 {
		shards = 1
	}
	r := &Registry{shards: make([]*shard, shards)}
	for i := range r.shards {
		r.shards[i] = &shard{sessions: make(map[string]Session)}
	}
	return r
}

func (r *Registry) shardFor(userID string) *shard {
	return r.shards[xxhash.Sum64String(userID)%uint64(len(r.shards))]
}

// Register binds session to userID and returns the session it superseded, if any.
func (r *Registry) Register(userID string, session Session) Session {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.sessions[userID]
	s.sessions[userID] = session
	if previous != nil && previous.ID() == session.ID() {
		return nil
	}
	return previous
}

// Lookup returns the current session of userID.
func (r *Registry) Lookup(userID string) (Session, bool) {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[userID]
	return session, ok
}

// Unregister removes the mapping only while it still points at session, so a late
// disconnect of a superseded connection cannot evict its replacement.
func (r *Registry) Unregister(userID string, session Session) bool {
	s := r.shardFor(userID)
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.sessions[userID]
	if !ok || current.ID() != session.ID() {
		return false
	}
	delete(s.sessions, userID)
	return true
}

// Count returns the number of users with a live session.
func (r *Registry) Count() int {
	total := 0
	for _, s := range r.shards {
		s.mu.RLock()
		total += len(s.sessions)
		s.mu.RUnlock()
	}
	return total
}
