// Package errors provides the structured error taxonomy shared by the
// extension loader and the registry backends.
//
// # Error Categories
//
//   - Transient: coordination-service hiccups where a caller-side retry may succeed
//   - Permanent: deployment or input defects (bad manifest, unknown extension, missing URL)
//   - Internal: unexpected failures, including recovered panics
//
// # Error Codes
//
//   - CONFIGURATION: capability or manifest defect, fatal at first use
//   - ROUTING: adaptive dispatch could not find a routing URL
//   - COORDINATION: coordination-service failure surfaced to the caller
//   - TIMEOUT: session establishment did not finish in time
//   - CLOSED: operation on a closed registry
//
// # Usage
//
//	err := errors.Configuration("extension not found", errors.WithExtension("registry.RegistryFactory", "zk"))
//
//	if errors.Is(err, errors.ErrCodeConfiguration) {
//	    // deployment defect, do not retry
//	}
//
// Nothing above the coordination client retries automatically; IsRetryable
// tells a caller whether its own retry is worth attempting.
package errors
