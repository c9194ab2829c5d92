package reqconf

import (
	"slices"
	"sort"
	"sync"
)

// AllEndpoints is the registry key whose interceptors and defaults apply to
// every endpoint. Its pre-call hooks run before endpoint-specific ones and
// its post-call hooks run after them.
const AllEndpoints = "*"

// registryEntry is immutable once published; writers replace it wholesale.
type registryEntry struct {
	preCall  []preCallHook
	postCall []PostCallFunc
	defaults *Defaults
}

func (e *registryEntry) clone() *registryEntry {
	if e == nil {
		return &registryEntry{}
	}

	return &registryEntry{
		preCall:  slices.Clone(e.preCall),
		postCall: slices.Clone(e.postCall),
		defaults: e.defaults,
	}
}

// Registry holds process-wide interceptors and defaults per endpoint key.
// Reads never block each other; a write is either fully visible to an
// Execute or not at all.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*registryEntry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*registryEntry),
	}
}

// Define creates an empty entry for key if none exists.
func (r *Registry) Define(key string) error {
	if key == "" {
		return ErrEndpointKeyRequired
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[key]; !ok {
		r.entries[key] = &registryEntry{}
	}

	return nil
}

// AddGlobalInterceptor appends interceptor to the global lists for key.
func (r *Registry) AddGlobalInterceptor(key string, interceptor Interceptor) error {
	if key == "" {
		return ErrEndpointKeyRequired
	}

	if interceptor.IsEmpty() {
		return ErrEmptyInterceptor
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.entries[key].clone()

	if interceptor.PreCall != nil {
		next.preCall = append(next.preCall, preCallHook{fn: interceptor.PreCall, abandon: interceptor.Abandon})
	}

	if interceptor.PostCall != nil {
		next.postCall = append(next.postCall, interceptor.PostCall)
	}

	r.entries[key] = next

	return nil
}

// SetGlobalDefaults replaces the global defaults for key.
func (r *Registry) SetGlobalDefaults(key string, defaults Defaults) error {
	if key == "" {
		return ErrEndpointKeyRequired
	}

	normalized := defaults.normalized()

	r.mu.Lock()
	defer r.mu.Unlock()

	next := r.entries[key].clone()
	next.defaults = &normalized
	r.entries[key] = next

	return nil
}

// GlobalDefaults returns a copy of the defaults registered for key.
func (r *Registry) GlobalDefaults(key string) (Defaults, bool) {
	entry := r.lookup(key)
	if entry == nil || entry.defaults == nil {
		return Defaults{}, false
	}

	return entry.defaults.normalized(), true
}

// Clear removes the given keys, or every entry when called without keys.
// Intended for test harnesses.
func (r *Registry) Clear(keys ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(keys) == 0 {
		r.entries = make(map[string]*registryEntry)

		return
	}

	for _, key := range keys {
		delete(r.entries, key)
	}
}

// Keys returns the registered keys in sorted order.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	keys := make([]string, 0, len(r.entries))
	for key := range r.entries {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

// Has reports whether key has an entry.
func (r *Registry) Has(key string) bool {
	return r.lookup(key) != nil
}

func (r *Registry) lookup(key string) *registryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.entries[key]
}

// snapshot returns the published entries that apply to key, wildcard first.
func (r *Registry) snapshot(key string) []*registryEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*registryEntry, 0, 2)

	if wildcard, ok := r.entries[AllEndpoints]; ok && key != AllEndpoints {
		entries = append(entries, wildcard)
	}

	if entry, ok := r.entries[key]; ok {
		entries = append(entries, entry)
	}

	return entries
}
