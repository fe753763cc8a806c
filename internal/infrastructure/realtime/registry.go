package realtime

import (
	"hash/fnv"
	"sync"
)

const registryShards = 16

// Registry maps a user identifier to its live connection and is the sole
// source of truth for "is this user reachable right now". State is sharded by
// user id so operations on different users never contend on one lock.
//
// One active connection per user: a second Admit for the same user supersedes
// the previous connection (last wins), which is closed after the swap.
type Registry struct {
	shards [registryShards]registryShard

	// onTransition, when set, is invoked once per actual presence transition:
	// online when a user gains their first live connection, offline when they
	// lose their last. It runs outside the shard lock and must not block on
	// the caller's goroutine for long.
	onTransition func(userID string, online bool)
}

type registryShard struct {
	mu    sync.RWMutex
	conns map[string]*Connection
}

// NewRegistry constructs an initialized Registry.
func NewRegistry() *Registry {
	r := &Registry{}
	for i := range r.shards {
		r.shards[i].conns = make(map[string]*Connection)
	}
	return r
}

// OnTransition installs the presence transition hook. It must be set before
// connections are admitted.
func (r *Registry) OnTransition(fn func(userID string, online bool)) {
	r.onTransition = fn
}

func (r *Registry) shard(userID string) *registryShard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &r.shards[h.Sum32()%registryShards]
}

// Admit registers conn as the live connection for its user and returns the
// superseded connection, if any. The swap is atomic with respect to concurrent
// admits and removals for the same user; the superseded connection is closed
// after the swap and its own removal becomes a no-op.
func (r *Registry) Admit(conn *Connection) *Connection {
	s := r.shard(conn.UserID)

	s.mu.Lock()
	previous := s.conns[conn.UserID]
	s.conns[conn.UserID] = conn
	s.mu.Unlock()

	conn.Start()

	if previous != nil {
		previous.Close(4001, "session replaced")
		return previous
	}
	if r.onTransition != nil {
		r.onTransition(conn.UserID, true)
	}
	return nil
}

// Remove drops conn if it is still the live connection for its user and
// reports whether it was. A stale handle (already superseded) is ignored and
// triggers no presence event.
func (r *Registry) Remove(conn *Connection) bool {
	s := r.shard(conn.UserID)

	s.mu.Lock()
	current, ok := s.conns[conn.UserID]
	if !ok || current != conn {
		s.mu.Unlock()
		return false
	}
	delete(s.conns, conn.UserID)
	s.mu.Unlock()

	if r.onTransition != nil {
		r.onTransition(conn.UserID, false)
	}
	return true
}

// Lookup returns the live connection for userID, or nil.
func (r *Registry) Lookup(userID string) *Connection {
	s := r.shard(userID)
	s.mu.RLock()
	conn := s.conns[userID]
	s.mu.RUnlock()
	return conn
}

// NotifyUser delivers payload to the live connection of the given user.
// It reports false when the user is unreachable or the write was refused.
func (r *Registry) NotifyUser(userID string, payload []byte) bool {
	conn := r.Lookup(userID)
	if conn == nil {
		return false
	}
	return conn.Send(payload) == nil
}

// NotifyUsers delivers payload to every listed user with a live connection,
// skipping excludeUserID when non-empty, and returns the delivered count.
func (r *Registry) NotifyUsers(userIDs []string, payload []byte, excludeUserID string) int {
	delivered := 0
	for _, id := range userIDs {
		if excludeUserID != "" && id == excludeUserID {
			continue
		}
		if r.NotifyUser(id, payload) {
			delivered++
		}
	}
	return delivered
}

// Close terminates all tracked connections and clears registry state.
// No presence events fire during shutdown.
func (r *Registry) Close() {
	var conns []*Connection
	for i := range r.shards {
		s := &r.shards[i]
		s.mu.Lock()
		for _, conn := range s.conns {
			conns = append(conns, conn)
		}
		s.conns = make(map[string]*Connection)
		s.mu.Unlock()
	}
	for _, conn := range conns {
		conn.Close(1001, "registry shutdown")
	}
}
