package rpcurl

// Parameter keys understood by the registry layer.
const (
	KeyTimeout        = "timeout"
	KeySessionTimeout = "zk.sessionTimeoutMs"
	KeyDefaultPrefix  = "default."
	KeyDefault        = "default"
	KeyInterface      = "interface"
	KeyProtocol       = "protocol"
	KeyVersion        = "version"
	KeyAnyHost        = "anyHost"
	KeyBackup         = "backup"
	KeySerializer     = "serializer"
	KeyCategory       = "category"
)

// ProtocolRPC is the protocol of provider URLs published by rpckit servers.
const ProtocolRPC = "rpckit"

// ServiceParams returns the parameters that identify a service on a
// provider URL.
func ServiceParams(interfaceName, version string) map[string]string {
	return map[string]string{
		KeyInterface: interfaceName,
		KeyVersion:   version,
	}
}
