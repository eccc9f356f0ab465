// Package presence is the live session registry. It is constructed once at
// service start and injected into the relay; presence is derived entirely
// from the set of sessions it holds.
package presence

import (
	"sync"
)

// Conn is one live connection as seen by the registry.
type Conn interface {
	ID() string
	// Send queues a frame for delivery and reports whether it was accepted.
	// It must not block.
	Send(frame []byte) bool
	Close()
}

// BindResult describes the presence transitions caused by Bind.
type BindResult struct {
	// Previous is the identity the connection was bound to before, if any.
	Previous string
	// PreviousOffline is set when rebinding left Previous with no sessions.
	PreviousOffline bool
}

type Registry struct {
	mu       sync.RWMutex
	conns    map[string]Conn
	bound    map[string]string          // conn id -> identity id
	sessions map[string]map[string]Conn // identity id -> conn id -> conn
}

func NewRegistry() *Registry {
	return &Registry{
		conns:    make(map[string]Conn),
		bound:    make(map[string]string),
		sessions: make(map[string]map[string]Conn),
	}
}

// Add registers an anonymous connection.
func (r *Registry) Add(c Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[c.ID()] = c
}

// Bind attaches c to identityID, detaching it from any previous identity.
func (r *Registry) Bind(c Conn, identityID string) BindResult {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[c.ID()] = c
	var res BindResult
	if prev, ok := r.bound[c.ID()]; ok {
		if prev == identityID {
			return res
		}
		res.Previous = prev
		res.PreviousOffline = r.detachLocked(c.ID(), prev)
	}
	r.bound[c.ID()] = identityID
	set, ok := r.sessions[identityID]
	if !ok {
		set = make(map[string]Conn)
		r.sessions[identityID] = set
	}
	set[c.ID()] = c
	return res
}

// Remove drops c entirely. It returns the identity c was bound to and whether
// that identity has no sessions left.
func (r *Registry) Remove(c Conn) (identityID string, offline bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.conns[c.ID()]; !ok {
		return "", false
	}
	delete(r.conns, c.ID())
	identityID, ok := r.bound[c.ID()]
	if !ok {
		return "", false
	}
	return identityID, r.detachLocked(c.ID(), identityID)
}

func (r *Registry) detachLocked(connID, identityID string) bool {
	delete(r.bound, connID)
	set := r.sessions[identityID]
	delete(set, connID)
	if len(set) == 0 {
		delete(r.sessions, identityID)
		return true
	}
	return false
}

// Identity returns the identity c is bound to.
func (r *Registry) Identity(c Conn) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.bound[c.ID()]
	return id, ok
}

// Sessions returns a snapshot of the live connections bound to identityID.
func (r *Registry) Sessions(identityID string) []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	set := r.sessions[identityID]
	out := make([]Conn, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// All returns a snapshot of every live connection, joined or not.
func (r *Registry) All() []Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Conn, 0, len(r.conns))
	for _, c := range r.conns {
		out = append(out, c)
	}
	return out
}

func (r *Registry) Online(identityID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions[identityID]) > 0
}

// Count returns the number of live connections and online identities.
func (r *Registry) Count() (conns, identities int) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns), len(r.sessions)
}
