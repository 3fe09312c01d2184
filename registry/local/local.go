package local

import (
	"embed"
	"sort"
	"sync"

	"github.com/vinayprograms/rpckit/extension"
	"github.com/vinayprograms/rpckit/registry"
	"github.com/vinayprograms/rpckit/rpcurl"
)

//go:embed extensions
var manifests embed.FS

func init() {
	extension.Implement(NewFactory)
	extension.AddResources("registry/local", manifests)
}

// providerSet is the process-wide membership shared by every local
// registry.
type providerSet struct {
	mu        sync.RWMutex
	providers map[string]*rpcurl.URL
	listeners map[string]func()
}

var shared = &providerSet{
	providers: make(map[string]*rpcurl.URL),
	listeners: make(map[string]func()),
}

func (s *providerSet) add(u *rpcurl.URL) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.providers[u.Key()]; ok {
		return false
	}
	s.providers[u.Key()] = u
	return true
}

func (s *providerSet) remove(u *rpcurl.URL) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.providers[u.Key()]; !ok {
		return false
	}
	delete(s.providers, u.Key())
	return true
}

func (s *providerSet) snapshot() []*rpcurl.URL {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*rpcurl.URL, 0, len(s.providers))
	for _, u := range s.providers {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

func (s *providerSet) listen(id string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[id] = fn
}

func (s *providerSet) unlisten(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.listeners, id)
}

// changed runs every listener. Called without the lock held, since
// listeners read the set.
func (s *providerSet) changed() {
	s.mu.RLock()
	fns := make([]func(), 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.mu.RUnlock()

	for _, fn := range fns {
		fn()
	}
}

// Registry is an in-process registry. All local registries in a process
// share one provider set, so a provider registered through one is visible
// through all of them immediately.
type Registry struct {
	*registry.Base
	set *providerSet
}

// NewRegistry creates a local registry. The URL only identifies the
// registry; it carries no connection settings.
func NewRegistry(_ *rpcurl.URL) *Registry {
	r := &Registry{set: shared}
	r.Base = registry.NewBase(r, "registry.local")
	r.set.listen(r.ID(), func() { _ = r.RefreshAll() })
	return r
}

// DoRegister adds u to the shared set.
func (r *Registry) DoRegister(u *rpcurl.URL) error {
	if r.set.add(u) {
		r.set.changed()
	}
	return nil
}

// DoUnregister removes u from the shared set.
func (r *Registry) DoUnregister(u *rpcurl.URL) error {
	if r.set.remove(u) {
		r.set.changed()
	}
	return nil
}

// DoLookup returns every provider in the set. The condition is not used
// to filter.
func (r *Registry) DoLookup(_ *rpcurl.URL) ([]*rpcurl.URL, error) {
	return r.set.snapshot(), nil
}

// Close withdraws this registry's providers and stops refreshing it.
func (r *Registry) Close() error {
	err := r.Base.Close()
	r.set.unlisten(r.ID())
	return err
}

// Factory creates local registries, one per registry URL.
type Factory struct {
	cache *registry.Cache
}

// NewFactory creates a Factory.
func NewFactory() (*Factory, error) {
	return &Factory{cache: registry.NewCache()}, nil
}

// GetRegistry returns the local registry for u.
func (f *Factory) GetRegistry(u *rpcurl.URL) (registry.Registry, error) {
	return f.cache.GetOrCreate(u, func(u *rpcurl.URL) (registry.Registry, error) {
		return NewRegistry(u), nil
	})
}

// Close closes every registry created by f.
func (f *Factory) Close() error {
	return f.cache.CloseAll()
}

var (
	_ registry.Registry        = (*Registry)(nil)
	_ registry.Backend         = (*Registry)(nil)
	_ registry.RegistryFactory = (*Factory)(nil)
)
