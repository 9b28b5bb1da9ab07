package breaker

import "sync"

// TransitionHook observes state changes across all breakers in a registry.
type TransitionHook func(key string, from, to State, reason string)

// Registry holds one breaker per endpoint key. Breakers are created lazily
// on first use with the registry's config and live for the registry's
// lifetime; there is no eviction. The registry is an explicitly owned
// value, injected into whatever dispatches calls, never a package global.
type Registry struct {
	config Config

	mu       sync.RWMutex
	breakers map[string]*Breaker
	hooks    []TransitionHook
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithTransitionHook registers a hook observing every state change,
// annotated with the breaker key.
func WithTransitionHook(h TransitionHook) RegistryOption {
	return func(r *Registry) {
		r.hooks = append(r.hooks, h)
	}
}

// NewRegistry creates a registry whose breakers share config.
func NewRegistry(config Config, opts ...RegistryOption) *Registry {
	config.applyDefaults()
	r := &Registry{
		config:   config,
		breakers: make(map[string]*Breaker),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Subscribe adds a transition hook after construction. Hooks apply to all
// breakers, including ones created before the subscription.
func (r *Registry) Subscribe(h TransitionHook) {
	r.mu.Lock()
	r.hooks = append(r.hooks, h)
	r.mu.Unlock()
}

// Get returns the breaker for key, creating it on first use.
func (r *Registry) Get(key string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[key]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[key]; ok {
		return b
	}

	cfg := r.config
	inner := cfg.OnStateChange
	cfg.OnStateChange = func(from, to State, reason string) {
		if inner != nil {
			inner(from, to, reason)
		}
		r.notify(key, from, to, reason)
	}
	b = New(cfg)
	r.breakers[key] = b
	return b
}

// notify fans a transition out to all subscribed hooks. Called while the
// transitioning breaker's lock is held; hooks must not call back into that
// breaker.
func (r *Registry) notify(key string, from, to State, reason string) {
	r.mu.RLock()
	hooks := r.hooks
	r.mu.RUnlock()

	for _, h := range hooks {
		h(key, from, to, reason)
	}
}

// Len returns the number of keys seen so far.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.breakers)
}

// Snapshot returns current metrics for every known key.
func (r *Registry) Snapshot() map[string]Metrics {
	r.mu.RLock()
	keys := make([]string, 0, len(r.breakers))
	breakers := make([]*Breaker, 0, len(r.breakers))
	for k, b := range r.breakers {
		keys = append(keys, k)
		breakers = append(breakers, b)
	}
	r.mu.RUnlock()

	out := make(map[string]Metrics, len(keys))
	for i, k := range keys {
		out[k] = breakers[i].Metrics()
	}
	return out
}
