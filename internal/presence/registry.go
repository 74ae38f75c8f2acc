// Package presence tracks which participants are reachable over the realtime
// transport right now. State is process-local and transient: populated on
// join, cleared on disconnect, gone after a restart. A multi-process
// deployment would need a shared presence store; single-process is assumed.
package presence

import (
	"sync"
	"time"
)

// Visitor is one live widget connection within a business.
type Visitor struct {
	SID         string    `json:"sid"`
	ConnID      string    `json:"conn_id"`
	UserAgent   string    `json:"user_agent"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Mirror receives best-effort copies of the per-business visitor roster.
type Mirror interface {
	VisitorOnline(businessID string, visitor Visitor)
	VisitorOffline(businessID, sid string)
}

// Registry maps logical participant keys to their latest transport
// connection id. Two namespaces share the map: business ids (an agent
// dashboard is open) and visitor sids. Registration is last-write-wins per
// key: when two connections register under the same key only the most recent
// connection id is retrievable. Known limitation, kept on purpose — a second
// dashboard tab for the same business steals the pushes.
type Registry struct {
	mu       sync.RWMutex
	conns    map[string]string
	visitors map[string]map[string]Visitor
	mirror   Mirror
}

// NewRegistry creates an empty registry. Registries are plain values meant
// to be injected, not shared through package state.
func NewRegistry(mirror Mirror) *Registry {
	return &Registry{
		conns:    make(map[string]string),
		visitors: make(map[string]map[string]Visitor),
		mirror:   mirror,
	}
}

// Register binds key to connID, displacing any previous connection.
func (r *Registry) Register(key, connID string) {
	r.mu.Lock()
	r.conns[key] = connID
	r.mu.Unlock()
}

// Unregister removes the binding for key, but only if connID is still the
// current one. A stale disconnect must not evict a newer connection.
func (r *Registry) Unregister(key, connID string) {
	r.mu.Lock()
	if current, ok := r.conns[key]; ok && current == connID {
		delete(r.conns, key)
	}
	r.mu.Unlock()
}

// Lookup returns the current connection id for key, if any.
func (r *Registry) Lookup(key string) (string, bool) {
	r.mu.RLock()
	connID, ok := r.conns[key]
	r.mu.RUnlock()
	return connID, ok
}

// RegisterVisitor records a live widget connection on the per-business
// roster and binds the sid in the connection map.
func (r *Registry) RegisterVisitor(businessID string, visitor Visitor) {
	r.mu.Lock()
	r.conns[visitor.SID] = visitor.ConnID
	roster, ok := r.visitors[businessID]
	if !ok {
		roster = make(map[string]Visitor)
		r.visitors[businessID] = roster
	}
	roster[visitor.SID] = visitor
	r.mu.Unlock()

	if r.mirror != nil {
		r.mirror.VisitorOnline(businessID, visitor)
	}
}

// UnregisterVisitor removes the visitor from roster and connection map when
// connID still matches.
func (r *Registry) UnregisterVisitor(businessID, sid, connID string) {
	removed := false
	r.mu.Lock()
	if roster, ok := r.visitors[businessID]; ok {
		if v, ok := roster[sid]; ok && v.ConnID == connID {
			delete(roster, sid)
			removed = true
			if len(roster) == 0 {
				delete(r.visitors, businessID)
			}
		}
	}
	if current, ok := r.conns[sid]; ok && current == connID {
		delete(r.conns, sid)
	}
	r.mu.Unlock()

	if removed && r.mirror != nil {
		r.mirror.VisitorOffline(businessID, sid)
	}
}

// LiveVisitors answers "who is online now" for one business.
func (r *Registry) LiveVisitors(businessID string) []Visitor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	roster := r.visitors[businessID]
	result := make([]Visitor, 0, len(roster))
	for _, visitor := range roster {
		result = append(result, visitor)
	}
	return result
}
