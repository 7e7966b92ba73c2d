// Package connreg holds the in-memory Name -> connection directories the
// broker keeps for registered applications, protocol clients, and event
// subscribers. The shape
// mirrors a standard concurrent map store: a RWMutex guarding a plain Go map,
// sized for lookup-heavy, write-light workloads.
package connreg

import (
	"sync"

	"goa.design/amby/wire"
)

// Registry is a concurrency-safe directory from a key to a wire.Conn. Apps
// are keyed by their declared wire.Name; event subscribers are keyed by a
// monotonically increasing decimal string minted by NextEventKey.
//
// Set under a key that already exists overwrites the previous entry; the
// broker never rejects a duplicate app name, it simply forgets the old
// connection. SetIfAbsent, used for protocol names, leaves an existing entry
// in place instead. The broker never removes stale entries: a connection
// that dies without deregistering stays in the map until the process
// restarts. This is an intentional, preserved behavior.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]wire.Conn
	next    uint64 // event-key counter, guarded by mu
}

// New returns an empty Registry.
func New() *Registry {
	return &Registry{entries: make(map[string]wire.Conn)}
}

// Set inserts or overwrites the connection registered under key.
func (r *Registry) Set(key string, conn wire.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[key] = conn
}

// Get returns the connection registered under key, if any.
func (r *Registry) Get(key string) (wire.Conn, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.entries[key]
	return conn, ok
}

// SetIfAbsent inserts conn under key and reports true only if key was not
// already present. The existence check and the insert happen under a
// single write lock, so concurrent callers racing on the same key never
// both observe absence — exactly one of them wins.
func (r *Registry) SetIfAbsent(key string, conn wire.Conn) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[key]; exists {
		return false
	}
	r.entries[key] = conn
	return true
}

// Delete removes the entry registered under key, if any.
func (r *Registry) Delete(key string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, key)
}

// Snapshot returns a shallow copy of the registry's current contents. Callers
// use this to fan a message out to every currently-registered connection
// without holding the registry lock for the duration of the I/O.
func (r *Registry) Snapshot() map[string]wire.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]wire.Conn, len(r.entries))
	for k, v := range r.entries {
		out[k] = v
	}
	return out
}

// Len returns the number of entries currently registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// NextEventKey mints the next event-subscriber key. Keys are decimal strings
// of a counter that only ever increases, so slots are never reused even
// after their connection has gone away; this is the event listener's
// indexing scheme and a known, preserved source of unbounded
// growth (see SPEC_FULL.md section 9).
func (r *Registry) NextEventKey() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := r.next
	r.next++
	return uintToString(key)
}

func uintToString(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}
