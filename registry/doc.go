// Package registry provides service registration and discovery.
//
// # Overview
//
// Providers register their descriptor (an *rpcurl.URL naming a service in
// its "interface" parameter) and consumers look up the live providers of a
// service. Both sides can subscribe to membership changes.
//
// # Available Implementations
//
// Backends are extensions of the RegistryFactory capability, selected by the
// protocol of the registry URL:
//
//   - local: in-process provider set for testing and single-process use (registry/local)
//   - zk: ZooKeeper ephemeral nodes with child watches (registry/zookeeper)
//   - nats: NATS JetStream KV entries kept alive by TTL refresh (registry/natskv)
//
// Import a backend package for its side effects to make it available:
//
//	import _ "github.com/vinayprograms/rpckit/registry/zookeeper"
//
// # Basic Usage
//
// Register a provider:
//
//	reg, err := registry.Get(rpcurl.MustParse("zk://127.0.0.1:2181"))
//	provider := rpcurl.New(rpcurl.ProtocolRPC, "10.0.0.5", 20880,
//	    rpcurl.WithParams(rpcurl.ServiceParams("com.example.Echo", "1.0.0")))
//	err = reg.Register(provider)
//
// Discover providers:
//
//	condition := rpcurl.New(rpcurl.ProtocolRPC, "0.0.0.0", 0,
//	    rpcurl.WithParam(rpcurl.KeyInterface, "com.example.Echo"))
//	providers, _ := reg.Lookup(condition)
//
// Watch for changes:
//
//	events, _ := reg.Watch()
//	for event := range events {
//	    switch event.Type {
//	    case registry.EventAdded:
//	        fmt.Printf("provider up: %s\n", event.URL)
//	    case registry.EventRemoved:
//	        fmt.Printf("provider down: %s\n", event.URL)
//	    }
//	}
//
// # Consistency
//
// Lookups always query the backend. The local backend is immediately
// consistent; the coordination backends converge after one watch
// notification. Services are tracked from their first Lookup or Subscribe;
// change notifications for untracked services are ignored.
//
// # Writing a Backend
//
// Implement Backend (DoRegister, DoUnregister, DoLookup), embed a *Base
// created with NewBase, and call Base.Refresh when the store reports a
// change. Expose a RegistryFactory that caches registries with a Cache and
// list it in an embedded manifest:
//
//	extensions/github.com.vinayprograms.rpckit.registry.RegistryFactory
//	mybackend=example.com/mybackend.Factory
package registry
