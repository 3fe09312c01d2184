package extension

import (
	"reflect"
	"sort"
	"strings"
	"sync"

	rpcerrors "github.com/vinayprograms/rpckit/errors"
)

// Spec declares an interface type as a capability. Declaring is the marker
// that makes the type eligible for ForType.
type Spec[T any] struct {
	// Default is the extension name used when Get is called with "".
	Default string

	// Routes maps adaptive method names to the URL key whose value selects
	// the implementation. rpcurl.KeyProtocol routes on the URL protocol; any
	// other key routes on that parameter. An empty key falls back to
	// "<capability>.<method>".
	Routes map[string]string

	// Adaptive builds the dispatch shim returned by Loader.Adaptive. Each
	// adaptive method of the shim calls Router.Route and forwards the call.
	Adaptive func(*Router[T]) T
}

// capability is the type-erased form of a Spec.
type capability struct {
	typ         reflect.Type
	name        string
	defaultName string
	routes      map[string]string
	adaptive    any
}

// Constructor builds a new implementation instance.
type Constructor func() (any, error)

var (
	declMu   sync.RWMutex
	declared = make(map[reflect.Type]*capability)

	implMu          sync.RWMutex
	implementations = make(map[string]Constructor)

	loaders sync.Map // reflect.Type -> *Loader[T]
)

// Declare marks T as a capability interface. It fails if T is not an
// interface or was already declared.
func Declare[T any](spec Spec[T]) error {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	name := TypeName(typ)
	if typ.Kind() != reflect.Interface {
		return rpcerrors.Configuration(name+" is not an interface",
			rpcerrors.WithExtension(name, ""))
	}

	routes := make(map[string]string, len(spec.Routes))
	for method, key := range spec.Routes {
		if _, ok := typ.MethodByName(method); !ok {
			return rpcerrors.Configuration(name+" has no method "+method,
				rpcerrors.WithExtension(name, ""))
		}
		routes[method] = key
	}

	c := &capability{
		typ:         typ,
		name:        name,
		defaultName: spec.Default,
		routes:      routes,
	}
	if spec.Adaptive != nil {
		c.adaptive = spec.Adaptive
	}

	declMu.Lock()
	defer declMu.Unlock()
	if _, ok := declared[typ]; ok {
		return rpcerrors.Configuration(name+" is already declared",
			rpcerrors.WithExtension(name, ""))
	}
	declared[typ] = c
	return nil
}

// MustDeclare is like Declare but panics on error. Use it from init.
func MustDeclare[T any](spec Spec[T]) {
	if err := Declare(spec); err != nil {
		panic(err)
	}
}

// RegisterImplementation binds a fully qualified implementation name to its
// constructor. Manifest lines refer to implementations by this name.
func RegisterImplementation(name string, ctor Constructor) error {
	if name == "" || ctor == nil {
		return rpcerrors.Configuration("implementation needs a name and a constructor")
	}
	implMu.Lock()
	defer implMu.Unlock()
	if _, ok := implementations[name]; ok {
		return rpcerrors.Configuration("implementation "+name+" is already registered",
			rpcerrors.WithMetadata("implementation", name))
	}
	implementations[name] = ctor
	return nil
}

// Implement registers ctor under the fully qualified name of C and returns
// that name. It panics on duplicates, so call it from init.
func Implement[C any](ctor func() (C, error)) string {
	name := TypeName(reflect.TypeOf((*C)(nil)).Elem())
	err := RegisterImplementation(name, func() (any, error) {
		return ctor()
	})
	if err != nil {
		panic(err)
	}
	return name
}

func lookupImplementation(name string) (Constructor, bool) {
	implMu.RLock()
	defer implMu.RUnlock()
	ctor, ok := implementations[name]
	return ctor, ok
}

// TypeName returns "<import path>.<type name>" for a named type, looking
// through pointers.
func TypeName(t reflect.Type) string {
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.PkgPath() == "" {
		return t.String()
	}
	return t.PkgPath() + "." + t.Name()
}

// ManifestName returns the manifest file name for a capability type: its
// fully qualified name with path separators replaced by dots.
func ManifestName(t reflect.Type) string {
	return strings.ReplaceAll(TypeName(t), "/", ".")
}

// ForType returns the process-wide loader for capability T. Concurrent
// callers always observe the same loader.
func ForType[T any]() (*Loader[T], error) {
	typ := reflect.TypeOf((*T)(nil)).Elem()
	if typ.Kind() != reflect.Interface {
		return nil, rpcerrors.Configuration(TypeName(typ)+" is not an interface",
			rpcerrors.WithExtension(TypeName(typ), ""))
	}

	if l, ok := loaders.Load(typ); ok {
		return l.(*Loader[T]), nil
	}

	declMu.RLock()
	c, ok := declared[typ]
	declMu.RUnlock()
	if !ok {
		return nil, rpcerrors.Configuration(TypeName(typ)+" is not a declared capability",
			rpcerrors.WithExtension(TypeName(typ), ""))
	}

	l, _ := loaders.LoadOrStore(typ, newLoader[T](c))
	return l.(*Loader[T]), nil
}

// MustForType is like ForType but panics on error.
func MustForType[T any]() *Loader[T] {
	l, err := ForType[T]()
	if err != nil {
		panic(err)
	}
	return l
}

// Capabilities lists the names of all declared capabilities, sorted.
func Capabilities() []string {
	declMu.RLock()
	defer declMu.RUnlock()
	names := make([]string, 0, len(declared))
	for _, c := range declared {
		names = append(names, c.name)
	}
	sort.Strings(names)
	return names
}
