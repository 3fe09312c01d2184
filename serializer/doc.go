// Package serializer publishes value encodings as extensions of the
// Serializer capability: "json" (the default), "toml" and "yaml".
//
// Registry backends that store values pick a serializer from the
// "serializer" parameter of their registry URL:
//
//	s, err := serializer.ForURL(rpcurl.MustParse("nats://127.0.0.1:4222?serializer=yaml"))
package serializer
