// Package shutdown tears down registry state in a fixed order when a
// process stops.
//
// Providers are withdrawn first so consumers stop routing to the process,
// then watches stop, then registries and their coordination sessions are
// closed:
//
//	coord := shutdown.NewCoordinator(shutdown.DefaultConfig())
//	coord.HandleSignals() // SIGTERM, SIGINT
//
//	coord.RegisterProvider("echo", reg, echoURL)               // PhaseUnregister, PhaseSessions
//	coord.RegisterWithPhase("factories", shutdown.CloseFactories(), shutdown.PhaseSessions)
//
//	<-coord.Done()
//
// Handlers in the same phase run concurrently. A handler that fails or
// panics is reported in Result and in the error returned by Shutdown;
// later phases still run unless Config.ContinueOnError is false.
package shutdown
