package shutdown

import (
	"context"
	"time"

	"github.com/vinayprograms/rpckit/logging"
)

// Teardown phases. Lower phases run first.
const (
	// PhaseUnregister withdraws provider registrations so consumers stop
	// routing to this process.
	PhaseUnregister = 10

	// PhaseUnwatch stops subscriptions and watches.
	PhaseUnwatch = 20

	// PhaseSessions closes registries and their coordination sessions.
	PhaseSessions = 30
)

// Handler is implemented by components that take part in teardown.
type Handler interface {
	// OnShutdown releases the component. ctx is cancelled when the
	// shutdown timeout is reached.
	OnShutdown(ctx context.Context) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context) error

// OnShutdown implements Handler.
func (f HandlerFunc) OnShutdown(ctx context.Context) error {
	return f(ctx)
}

// HandlerResult contains the result of a single handler's shutdown.
type HandlerResult struct {
	Name     string
	Phase    int
	Duration time.Duration
	Err      error
}

// Result contains the complete shutdown result.
type Result struct {
	TotalDuration time.Duration
	Results       []HandlerResult

	// Err is the overall error (nil if all handlers succeeded).
	Err error
}

// Failed returns true if any handler failed.
func (r *Result) Failed() bool {
	return r.Err != nil
}

// FailedHandlers returns the names of handlers that failed.
func (r *Result) FailedHandlers() []string {
	var failed []string
	for _, hr := range r.Results {
		if hr.Err != nil {
			failed = append(failed, hr.Name)
		}
	}
	return failed
}

// Config configures the shutdown coordinator.
type Config struct {
	// Timeout bounds the whole teardown when it is started by a signal or
	// ShutdownWithTimeout(0).
	// Default: 30 seconds
	Timeout time.Duration

	// DefaultPhase is assigned to handlers registered without a phase.
	// Default: PhaseSessions
	DefaultPhase int

	// ContinueOnError runs later phases after a handler failed.
	// Default: true
	ContinueOnError bool

	// Logger receives progress lines. Default: logging.Default()
	Logger *logging.Logger
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:         30 * time.Second,
		DefaultPhase:    PhaseSessions,
		ContinueOnError: true,
	}
}

type registration struct {
	name    string
	handler Handler
	phase   int
}
