// Package local provides the in-process registry backend, published as
// the "local" extension of registry.RegistryFactory.
//
// Every local registry in a process shares one provider set. Lookup returns
// the whole set regardless of the condition's service; callers that need
// per-service filtering should use a coordination backend.
//
//	import _ "github.com/vinayprograms/rpckit/registry/local"
//
//	reg, _ := registry.Get(rpcurl.MustParse("local://127.0.0.1:0"))
package local
