package registry

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	rpcerrors "github.com/vinayprograms/rpckit/errors"
	"github.com/vinayprograms/rpckit/logging"
	"github.com/vinayprograms/rpckit/rpcurl"
)

// Backend is the storage-specific half of a registry. Base supplies the
// rest: validation, the local membership view, listeners and events.
type Backend interface {
	DoRegister(u *rpcurl.URL) error
	DoUnregister(u *rpcurl.URL) error
	DoLookup(condition *rpcurl.URL) ([]*rpcurl.URL, error)
}

// Base implements Registry on top of a Backend. Backends embed it and call
// Refresh from their change notifications.
type Base struct {
	id      string
	backend Backend
	logger  *logging.Logger

	mu         sync.RWMutex
	registered map[string]*rpcurl.URL
	providers  map[string][]*rpcurl.URL // service -> last known providers
	conditions map[string]*rpcurl.URL   // service -> condition used to refresh it
	listeners  map[string][]NotifyFunc
	watchers   []chan Event
	closed     bool

	// refreshLocks serializes lookups per service so that results are
	// applied in the order they were fetched.
	refreshLocks sync.Map
}

// NewBase creates a Base over backend. component tags its log lines.
func NewBase(backend Backend, component string) *Base {
	return &Base{
		id:         uuid.NewString(),
		backend:    backend,
		logger:     logging.Default().WithComponent(component),
		registered: make(map[string]*rpcurl.URL),
		providers:  make(map[string][]*rpcurl.URL),
		conditions: make(map[string]*rpcurl.URL),
		listeners:  make(map[string][]NotifyFunc),
	}
}

// ID returns the registry instance ID.
func (b *Base) ID() string {
	return b.id
}

// Logger returns the registry's component logger.
func (b *Base) Logger() *logging.Logger {
	return b.logger
}

// Register publishes u through the backend and records it locally.
func (b *Base) Register(u *rpcurl.URL) error {
	if err := ValidateURL(u); err != nil {
		return err
	}
	if b.isClosed() {
		return rpcerrors.Closed("registry closed", rpcerrors.WithURL(u.String()))
	}

	if err := b.backend.DoRegister(u); err != nil {
		b.logger.OperationFailed("register", err, map[string]interface{}{"url": u.String()})
		return rpcerrors.Wrap(err, "register failed",
			rpcerrors.WithURL(u.String()), rpcerrors.WithService(u.ServiceName()))
	}

	b.mu.Lock()
	if b.closed {
		// Close ran while the backend was registering; withdraw what it missed.
		b.mu.Unlock()
		if err := b.backend.DoUnregister(u); err != nil {
			b.logger.OperationFailed("unregister", err, map[string]interface{}{"url": u.String()})
		}
		return rpcerrors.Closed("registry closed", rpcerrors.WithURL(u.String()))
	}
	b.registered[u.Key()] = u
	b.notifyWatchers(Event{Type: EventRegistered, Service: u.ServiceName(), URL: u})
	b.mu.Unlock()

	b.logger.Registered(u.String())
	return nil
}

// Unregister withdraws u through the backend and forgets it locally.
func (b *Base) Unregister(u *rpcurl.URL) error {
	if err := ValidateURL(u); err != nil {
		return err
	}
	if b.isClosed() {
		return rpcerrors.Closed("registry closed", rpcerrors.WithURL(u.String()))
	}
	return b.unregister(u)
}

func (b *Base) unregister(u *rpcurl.URL) error {
	if err := b.backend.DoUnregister(u); err != nil {
		b.logger.OperationFailed("unregister", err, map[string]interface{}{"url": u.String()})
		return rpcerrors.Wrap(err, "unregister failed",
			rpcerrors.WithURL(u.String()), rpcerrors.WithService(u.ServiceName()))
	}

	b.mu.Lock()
	_, was := b.registered[u.Key()]
	delete(b.registered, u.Key())
	if was {
		b.notifyWatchers(Event{Type: EventUnregistered, Service: u.ServiceName(), URL: u})
	}
	b.mu.Unlock()

	b.logger.Unregistered(u.String())
	return nil
}

// Lookup queries the backend and updates the local view of the service.
func (b *Base) Lookup(condition *rpcurl.URL) ([]*rpcurl.URL, error) {
	if err := ValidateURL(condition); err != nil {
		return nil, err
	}
	if b.isClosed() {
		return nil, rpcerrors.Closed("registry closed", rpcerrors.WithURL(condition.String()))
	}

	service := condition.ServiceName()
	b.mu.Lock()
	b.conditions[service] = condition
	b.mu.Unlock()

	return b.lookup(service, condition)
}

// Refresh re-runs the lookup for u's service if this registry tracks it,
// notifying listeners and watchers of any change. Backends call it from
// their change notifications.
func (b *Base) Refresh(u *rpcurl.URL) error {
	if u == nil || b.isClosed() {
		return nil
	}
	service := u.ServiceName()

	b.mu.RLock()
	condition, tracked := b.conditions[service]
	b.mu.RUnlock()
	if !tracked {
		return nil
	}

	_, err := b.lookup(service, condition)
	if err != nil {
		b.logger.OperationFailed("refresh", err, map[string]interface{}{"service": service})
	}
	return err
}

// RefreshAll refreshes every tracked service.
func (b *Base) RefreshAll() error {
	b.mu.RLock()
	conditions := make([]*rpcurl.URL, 0, len(b.conditions))
	for _, c := range b.conditions {
		conditions = append(conditions, c)
	}
	b.mu.RUnlock()

	var errs []error
	for _, c := range conditions {
		if err := b.Refresh(c); err != nil {
			errs = append(errs, err)
		}
	}
	return rpcerrors.Join(errs...)
}

func (b *Base) lookup(service string, condition *rpcurl.URL) ([]*rpcurl.URL, error) {
	found, notify, err := b.fetch(service, condition)
	if err != nil {
		return nil, err
	}
	for _, fn := range notify {
		fn(service, copyURLs(found))
	}
	return copyURLs(found), nil
}

// fetch queries the backend and applies the result to the local view. It
// returns the listeners to call when the provider set changed; they run
// after the per-service lock is released so they may call back into b.
func (b *Base) fetch(service string, condition *rpcurl.URL) ([]*rpcurl.URL, []NotifyFunc, error) {
	lock := b.refreshLock(service)
	lock.Lock()
	defer lock.Unlock()

	start := time.Now()
	found, err := b.backend.DoLookup(condition)
	if err != nil {
		return nil, nil, rpcerrors.Wrap(err, "lookup failed",
			rpcerrors.WithURL(condition.String()), rpcerrors.WithService(service))
	}
	sortURLs(found)
	b.logger.LookedUp(service, len(found), time.Since(start))

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return found, nil, nil
	}
	previous := b.providers[service]
	b.providers[service] = found
	if !b.diff(service, previous, found) {
		return found, nil, nil
	}
	return found, append([]NotifyFunc(nil), b.listeners[service]...), nil
}

// diff sends added/removed events between two provider lists and reports
// whether they differ. Must be called with lock held.
func (b *Base) diff(service string, before, after []*rpcurl.URL) bool {
	old := make(map[string]*rpcurl.URL, len(before))
	for _, u := range before {
		old[u.Key()] = u
	}

	changed := false
	for _, u := range after {
		if _, ok := old[u.Key()]; ok {
			delete(old, u.Key())
			continue
		}
		changed = true
		b.notifyWatchers(Event{Type: EventAdded, Service: service, URL: u})
	}
	for _, u := range old {
		changed = true
		b.notifyWatchers(Event{Type: EventRemoved, Service: service, URL: u})
	}
	return changed
}

// Subscribe registers fn for condition's service and calls it once with the
// current providers.
func (b *Base) Subscribe(condition *rpcurl.URL, fn NotifyFunc) error {
	if err := ValidateURL(condition); err != nil {
		return err
	}
	if fn == nil {
		return rpcerrors.InvalidInput("nil listener", rpcerrors.WithURL(condition.String()))
	}

	if b.isClosed() {
		return rpcerrors.Closed("registry closed", rpcerrors.WithURL(condition.String()))
	}

	service := condition.ServiceName()
	b.mu.Lock()
	b.conditions[service] = condition
	b.mu.Unlock()

	if _, err := b.lookup(service, condition); err != nil {
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return rpcerrors.Closed("registry closed", rpcerrors.WithURL(condition.String()))
	}
	b.listeners[service] = append(b.listeners[service], fn)
	current := copyURLs(b.providers[service])
	b.mu.Unlock()

	fn(service, current)
	return nil
}

// Providers returns the last known providers of service without querying
// the backend.
func (b *Base) Providers(service string) []*rpcurl.URL {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return copyURLs(b.providers[service])
}

// Registered returns the descriptors registered through this registry.
func (b *Base) Registered() []*rpcurl.URL {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*rpcurl.URL, 0, len(b.registered))
	for _, u := range b.registered {
		out = append(out, u)
	}
	sortURLs(out)
	return out
}

// Watch returns a channel of registry events.
func (b *Base) Watch() (<-chan Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, rpcerrors.Closed("registry closed")
	}

	ch := make(chan Event, 64)
	b.watchers = append(b.watchers, ch)

	return ch, nil
}

// Close withdraws every registration made through b, then closes all
// watcher channels. It is safe to call more than once.
func (b *Base) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	pending := make([]*rpcurl.URL, 0, len(b.registered))
	for _, u := range b.registered {
		pending = append(pending, u)
	}
	b.mu.Unlock()

	var errs []error
	for _, u := range pending {
		if err := b.unregister(u); err != nil {
			errs = append(errs, err)
		}
	}

	b.mu.Lock()
	for _, ch := range b.watchers {
		close(ch)
	}
	b.watchers = nil
	b.listeners = make(map[string][]NotifyFunc)
	b.mu.Unlock()

	return rpcerrors.Join(errs...)
}

// IsClosed reports whether Close has been called.
func (b *Base) IsClosed() bool {
	return b.isClosed()
}

func (b *Base) isClosed() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.closed
}

func (b *Base) refreshLock(service string) *sync.Mutex {
	lock, _ := b.refreshLocks.LoadOrStore(service, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

// notifyWatchers sends an event to all watchers.
// Must be called with lock held.
func (b *Base) notifyWatchers(event Event) {
	for _, ch := range b.watchers {
		select {
		case ch <- event:
		default:
			// Channel full, skip
		}
	}
}

func sortURLs(urls []*rpcurl.URL) {
	sort.Slice(urls, func(i, j int) bool {
		return urls[i].String() < urls[j].String()
	})
}

func copyURLs(urls []*rpcurl.URL) []*rpcurl.URL {
	out := make([]*rpcurl.URL, len(urls))
	copy(out, urls)
	return out
}

var _ Registry = (*Base)(nil)
