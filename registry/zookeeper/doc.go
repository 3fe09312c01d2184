// Package zookeeper provides the ZooKeeper registry backend, published as
// the "zk" extension of registry.RegistryFactory.
//
// Each provider is an ephemeral node named by its URL-escaped descriptor:
//
//	/rpckit/com.example.Echo/providers/rpckit%3A%2F%2F10.0.0.1%3A20880%3F...
//
// The node lives as long as the registry's session, so a crashed provider
// disappears once its session expires. Registries watch the providers
// directory of every service they register or look up and refresh their
// view when its children change.
//
// Registry URLs look like
//
//	zk://user:secret@zk1:2181?backup=zk2:2181,zk3:2181&timeout=3000
//
// where "timeout" is the connect timeout and "zk.sessionTimeoutMs" the
// session timeout, both in milliseconds. Credentials are sent as a digest
// auth.
package zookeeper
