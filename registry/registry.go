package registry

import (
	rpcerrors "github.com/vinayprograms/rpckit/errors"
	"github.com/vinayprograms/rpckit/extension"
	"github.com/vinayprograms/rpckit/rpcurl"
)

// ProvidersDir is the path segment under a service that holds provider
// registrations.
const ProvidersDir = "providers"

// EventType represents the type of registry event.
type EventType string

const (
	// EventAdded is sent when a provider appears in a looked-up service.
	EventAdded EventType = "added"

	// EventRemoved is sent when a provider disappears from a looked-up service.
	EventRemoved EventType = "removed"

	// EventRegistered and EventUnregistered report this registry's own
	// registrations.
	EventRegistered   EventType = "registered"
	EventUnregistered EventType = "unregistered"
)

// Event represents a change in the registry.
type Event struct {
	// Type indicates what happened.
	Type EventType

	// Service is the logical service name.
	Service string

	// URL is the provider descriptor the event is about.
	URL *rpcurl.URL
}

// NotifyFunc receives the full provider list of a service each time it
// changes.
type NotifyFunc func(service string, providers []*rpcurl.URL)

// Registry provides service registration and discovery.
type Registry interface {
	// Register publishes a provider descriptor. Registering the same
	// descriptor twice is not an error.
	Register(u *rpcurl.URL) error

	// Unregister withdraws a provider descriptor. Withdrawing one that is
	// not registered is not an error.
	Unregister(u *rpcurl.URL) error

	// Lookup returns the providers currently known for the service named by
	// condition.
	Lookup(condition *rpcurl.URL) ([]*rpcurl.URL, error)

	// Subscribe calls fn with the current providers of condition's service,
	// then again every time that set changes.
	Subscribe(condition *rpcurl.URL, fn NotifyFunc) error

	// Watch returns a channel of registry events.
	// The channel is closed when the registry is closed.
	// Multiple watchers are supported.
	Watch() (<-chan Event, error)

	// Close shuts down the registry, withdrawing its registrations.
	Close() error
}

// RegistryFactory creates registries. It is a capability: implementations
// are selected by the protocol of the registry URL ("local", "zk", "nats").
type RegistryFactory interface {
	// GetRegistry returns the registry for u, creating it on first use.
	// Equal URLs yield the same registry.
	GetRegistry(u *rpcurl.URL) (Registry, error)
}

func init() {
	extension.MustDeclare(extension.Spec[RegistryFactory]{
		Default: "local",
		Routes:  map[string]string{"GetRegistry": rpcurl.KeyProtocol},
		Adaptive: func(r *extension.Router[RegistryFactory]) RegistryFactory {
			return &adaptiveFactory{router: r}
		},
	})
}

// adaptiveFactory forwards GetRegistry to the factory named by the URL's
// protocol, resolved again on every call.
type adaptiveFactory struct {
	router *extension.Router[RegistryFactory]
}

func (a *adaptiveFactory) GetRegistry(u *rpcurl.URL) (Registry, error) {
	f, err := a.router.Route("GetRegistry", u)
	if err != nil {
		return nil, err
	}
	return f.GetRegistry(u)
}

// Factory returns the adaptive RegistryFactory. Backends become available by
// importing their packages.
func Factory() (RegistryFactory, error) {
	loader, err := extension.ForType[RegistryFactory]()
	if err != nil {
		return nil, err
	}
	return loader.Adaptive()
}

// Get resolves the registry for u through the adaptive factory.
func Get(u *rpcurl.URL) (Registry, error) {
	f, err := Factory()
	if err != nil {
		return nil, err
	}
	return f.GetRegistry(u)
}

// CloseFactories closes every factory created so far that supports Close.
func CloseFactories() error {
	loader, err := extension.ForType[RegistryFactory]()
	if err != nil {
		return err
	}
	var errs []error
	for name, f := range loader.Instances() {
		c, ok := f.(interface{ Close() error })
		if !ok {
			continue
		}
		if err := c.Close(); err != nil {
			errs = append(errs, rpcerrors.Wrap(err, "close "+name+" factory failed",
				rpcerrors.WithExtension(loader.Capability(), name)))
		}
	}
	return rpcerrors.Join(errs...)
}

// ServicePath returns "<service>/providers".
func ServicePath(service string) string {
	return service + "/" + ProvidersDir
}

// ServicePathOf returns the providers path for u's service.
func ServicePathOf(u *rpcurl.URL) string {
	return ServicePath(u.ServiceName())
}

// ValidateURL checks that u can be registered or looked up.
func ValidateURL(u *rpcurl.URL) error {
	if u == nil {
		return rpcerrors.InvalidInput("nil url")
	}
	if u.ServiceName() == "" {
		return rpcerrors.InvalidInput("url names no service", rpcerrors.WithURL(u.String()))
	}
	return nil
}
