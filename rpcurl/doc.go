// Package rpcurl models the service descriptor passed between registry
// clients and backends.
//
// A URL carries a protocol, an address, optional credentials, a path and a
// parameter bag. It is immutable once built and renders a canonical string
// with parameters sorted by key, which is what the registry backends store:
//
//	u := rpcurl.New("rpckit", "10.0.0.5", 20880,
//	    rpcurl.WithParams(rpcurl.ServiceParams("com.example.Echo", "1.0.0")))
//	u.String() // rpckit://10.0.0.5:20880?interface=com.example.Echo&version=1.0.0
//
//	same, _ := rpcurl.Parse(u.String())
//	same.Equal(u) // true
//
// Derive variations with With; the original is never modified.
package rpcurl
