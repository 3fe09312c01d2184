// Package extension resolves named implementations of capability interfaces
// at runtime.
//
// A capability is an interface type declared with Declare. Implementations
// register a constructor with Implement and list themselves in a manifest
// file embedded by the implementing package:
//
//	extensions/github.com.vinayprograms.rpckit.registry.RegistryFactory
//
//	# name=implementation
//	zk=github.com/vinayprograms/rpckit/registry/zookeeper.Factory
//
// Loaders are per capability and process-wide. Each named extension is
// created once, on first Get, and shared after that:
//
//	loader, err := extension.ForType[registry.RegistryFactory]()
//	factory, err := loader.Get("zk")
//
// A capability may also declare adaptive methods. Loader.Adaptive returns a
// dispatcher whose adaptive methods pick the concrete extension on every
// call from the URL argument: its protocol, or a named parameter.
//
// Declarations, implementations and resources are registered from init, so
// a binary must import every package whose extensions it wants to load.
// Manifest defects (malformed lines, duplicate names, unknown
// implementations) are CONFIGURATION errors raised on first use.
package extension
