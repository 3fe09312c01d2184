package extension

import (
	"sort"
	"strings"
	"sync"

	rpcerrors "github.com/vinayprograms/rpckit/errors"
	"github.com/vinayprograms/rpckit/logging"
)

// implementation is one row of a loader's name table.
type implementation struct {
	typeName string
	source   string
	ctor     Constructor
}

// Loader resolves extension names to lazily created singletons of
// capability T. Obtain one with ForType.
type Loader[T any] struct {
	cap    *capability
	logger *logging.Logger

	mu        sync.RWMutex
	instances map[string]T

	// locks holds one mutex per extension name so that creating one
	// extension never blocks creation of another.
	locks sync.Map

	classesMu sync.Mutex
	classes   map[string]implementation
}

func newLoader[T any](c *capability) *Loader[T] {
	return &Loader[T]{
		cap:       c,
		logger:    logging.Default().WithComponent("extension"),
		instances: make(map[string]T),
	}
}

// Capability returns the fully qualified name of T.
func (l *Loader[T]) Capability() string {
	return l.cap.name
}

// DefaultName returns the declared default extension name, possibly "".
func (l *Loader[T]) DefaultName() string {
	return l.cap.defaultName
}

// Get returns the singleton registered under name, creating it on first use.
// A blank name selects the default extension.
func (l *Loader[T]) Get(name string) (T, error) {
	if strings.TrimSpace(name) == "" {
		return l.Default()
	}

	if inst, ok := l.cached(name); ok {
		return inst, nil
	}

	lock := l.lockFor(name)
	lock.Lock()
	defer lock.Unlock()

	if inst, ok := l.cached(name); ok {
		return inst, nil
	}

	inst, err := l.create(name)
	if err != nil {
		var zero T
		return zero, err
	}

	l.mu.Lock()
	l.instances[name] = inst
	l.mu.Unlock()

	l.logger.ExtensionCreated(l.cap.name, name)
	return inst, nil
}

// Default returns the default extension.
func (l *Loader[T]) Default() (T, error) {
	if strings.TrimSpace(l.cap.defaultName) == "" {
		var zero T
		return zero, rpcerrors.Configuration(l.cap.name+" declares no default extension",
			rpcerrors.WithExtension(l.cap.name, ""))
	}
	return l.Get(l.cap.defaultName)
}

// Has reports whether name appears in any manifest for T.
func (l *Loader[T]) Has(name string) bool {
	classes, err := l.loadClasses()
	if err != nil {
		return false
	}
	_, ok := classes[name]
	return ok
}

// Names returns every extension name known for T, sorted.
func (l *Loader[T]) Names() ([]string, error) {
	classes, err := l.loadClasses()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(classes))
	for name := range classes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Instances returns a snapshot of the extensions created so far.
func (l *Loader[T]) Instances() map[string]T {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make(map[string]T, len(l.instances))
	for name, inst := range l.instances {
		out[name] = inst
	}
	return out
}

// Adaptive returns a dispatcher that picks the concrete extension per call
// from the URL argument.
func (l *Loader[T]) Adaptive() (T, error) {
	build, ok := l.cap.adaptive.(func(*Router[T]) T)
	if !ok {
		var zero T
		return zero, rpcerrors.Configuration(l.cap.name+" has no adaptive dispatcher",
			rpcerrors.WithExtension(l.cap.name, ""))
	}
	return build(&Router[T]{loader: l}), nil
}

func (l *Loader[T]) cached(name string) (T, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	inst, ok := l.instances[name]
	return inst, ok
}

func (l *Loader[T]) lockFor(name string) *sync.Mutex {
	lock, _ := l.locks.LoadOrStore(name, &sync.Mutex{})
	return lock.(*sync.Mutex)
}

func (l *Loader[T]) create(name string) (T, error) {
	var zero T

	classes, err := l.loadClasses()
	if err != nil {
		return zero, err
	}

	impl, ok := classes[name]
	if !ok {
		return zero, rpcerrors.Configuration("no extension "+name+" for "+l.cap.name,
			rpcerrors.WithExtension(l.cap.name, name))
	}

	v, err := instantiate(impl.ctor)
	if err != nil {
		return zero, rpcerrors.WrapWithCode(err, rpcerrors.ErrCodeConfiguration,
			"create extension "+name+" failed",
			rpcerrors.WithExtension(l.cap.name, name),
			rpcerrors.WithMetadata("implementation", impl.typeName))
	}

	inst, ok := v.(T)
	if !ok {
		return zero, rpcerrors.Configuration(impl.typeName+" does not implement "+l.cap.name,
			rpcerrors.WithExtension(l.cap.name, name),
			rpcerrors.WithMetadata("source", impl.source))
	}
	return inst, nil
}

// instantiate runs ctor, turning a panic into an error.
func instantiate(ctor Constructor) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = rpcerrors.RecoverPanic(r)
		}
	}()
	return ctor()
}

// loadClasses builds the name table on first use. A failed scan is not
// cached, so a later call retries it.
func (l *Loader[T]) loadClasses() (map[string]implementation, error) {
	l.classesMu.Lock()
	defer l.classesMu.Unlock()

	if l.classes != nil {
		return l.classes, nil
	}

	classes, err := scanManifests(l.cap)
	if err != nil {
		return nil, err
	}
	l.classes = classes
	return classes, nil
}
