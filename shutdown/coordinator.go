package shutdown

import (
	"context"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"sync"
	"syscall"
	"time"

	rpcerrors "github.com/vinayprograms/rpckit/errors"
	"github.com/vinayprograms/rpckit/logging"
)

// Coordinator runs registered handlers phase by phase. Handlers in the same
// phase run concurrently.
type Coordinator struct {
	config Config
	logger *logging.Logger

	mu         sync.Mutex
	handlers   []registration
	started    bool
	once       sync.Once
	err        error
	result     *Result
	done       chan struct{}
	signalChan chan os.Signal
}

// NewCoordinator creates a new shutdown coordinator.
func NewCoordinator(config Config) *Coordinator {
	if config.Timeout <= 0 {
		config.Timeout = DefaultConfig().Timeout
	}
	if config.DefaultPhase == 0 {
		config.DefaultPhase = DefaultConfig().DefaultPhase
	}
	logger := config.Logger
	if logger == nil {
		logger = logging.Default()
	}

	return &Coordinator{
		config:     config,
		logger:     logger.WithComponent("shutdown"),
		done:       make(chan struct{}),
		signalChan: make(chan os.Signal, 1),
	}
}

// Register adds a handler in the default phase.
func (c *Coordinator) Register(name string, handler Handler) {
	c.RegisterWithPhase(name, handler, c.config.DefaultPhase)
}

// RegisterWithPhase adds a handler to phase. Handlers registered after
// shutdown started are ignored.
func (c *Coordinator) RegisterWithPhase(name string, handler Handler, phase int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		c.logger.Warn("handler registered after shutdown started", map[string]interface{}{"handler": name})
		return
	}
	c.handlers = append(c.handlers, registration{name: name, handler: handler, phase: phase})
}

// RegisterFunc registers fn in phase.
func (c *Coordinator) RegisterFunc(name string, phase int, fn func(ctx context.Context) error) {
	c.RegisterWithPhase(name, HandlerFunc(fn), phase)
}

// Shutdown runs every phase once. Later calls return a CLOSED error without
// running anything.
func (c *Coordinator) Shutdown(ctx context.Context) error {
	ran := false
	c.once.Do(func() {
		ran = true
		c.err = c.run(ctx)
		close(c.done)
	})
	if !ran {
		return rpcerrors.Closed("shutdown already initiated")
	}
	return c.err
}

// ShutdownWithTimeout runs Shutdown bounded by timeout, or by the configured
// timeout when it is zero.
func (c *Coordinator) ShutdownWithTimeout(timeout time.Duration) error {
	if timeout <= 0 {
		timeout = c.config.Timeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return c.Shutdown(ctx)
}

// HandleSignals starts teardown on SIGTERM or SIGINT.
func (c *Coordinator) HandleSignals() {
	signal.Notify(c.signalChan, syscall.SIGTERM, syscall.SIGINT)

	go func() {
		select {
		case sig := <-c.signalChan:
			c.logger.Info("signal received", map[string]interface{}{"signal": sig.String()})
			_ = c.ShutdownWithTimeout(c.config.Timeout)
		case <-c.done:
		}
		signal.Stop(c.signalChan)
	}()
}

// Trigger behaves like a received SIGTERM.
func (c *Coordinator) Trigger() {
	select {
	case c.signalChan <- syscall.SIGTERM:
	default:
	}
}

// Done is closed when shutdown has finished.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Err returns the shutdown error once Done is closed.
func (c *Coordinator) Err() error {
	select {
	case <-c.done:
		return c.err
	default:
		return nil
	}
}

// Result returns the per-handler results once Done is closed.
func (c *Coordinator) Result() *Result {
	select {
	case <-c.done:
		return c.result
	default:
		return nil
	}
}

func (c *Coordinator) run(ctx context.Context) error {
	start := time.Now()

	c.mu.Lock()
	c.started = true
	handlers := make([]registration, len(c.handlers))
	copy(handlers, c.handlers)
	c.mu.Unlock()

	sort.SliceStable(handlers, func(i, j int) bool {
		return handlers[i].phase < handlers[j].phase
	})

	result := &Result{Results: make([]HandlerResult, 0, len(handlers))}
	defer func() {
		result.TotalDuration = time.Since(start)
		c.result = result
		c.logger.Info("shutdown complete", map[string]interface{}{
			"handlers": len(result.Results),
			"failed":   len(result.FailedHandlers()),
			"duration": result.TotalDuration.String(),
		})
	}()

	var errs []error
	for _, group := range groupByPhase(handlers) {
		if err := ctx.Err(); err != nil {
			errs = append(errs, rpcerrors.New(rpcerrors.ErrCodeTimeout, "shutdown timeout exceeded",
				rpcerrors.WithCause(err),
				rpcerrors.WithMetadata("phase", strconv.Itoa(group[0].phase))))
			break
		}

		failed := false
		for _, hr := range c.runPhase(ctx, group) {
			result.Results = append(result.Results, hr)
			if hr.Err != nil {
				failed = true
				errs = append(errs, rpcerrors.Wrap(hr.Err, "shutdown handler "+hr.Name+" failed",
					rpcerrors.WithMetadata("handler", hr.Name)))
			}
		}
		if failed && !c.config.ContinueOnError {
			break
		}
	}

	result.Err = rpcerrors.Join(errs...)
	return result.Err
}

// runPhase runs the handlers of one phase concurrently.
func (c *Coordinator) runPhase(ctx context.Context, handlers []registration) []HandlerResult {
	results := make([]HandlerResult, len(handlers))
	var wg sync.WaitGroup

	for i, reg := range handlers {
		wg.Add(1)
		go func(idx int, r registration) {
			defer wg.Done()

			start := time.Now()
			err := callHandler(ctx, r.handler)
			results[idx] = HandlerResult{
				Name:     r.name,
				Phase:    r.phase,
				Duration: time.Since(start),
				Err:      err,
			}

			fields := map[string]interface{}{
				"handler":  r.name,
				"phase":    r.phase,
				"duration": results[idx].Duration.String(),
			}
			if err != nil {
				c.logger.OperationFailed("shutdown", err, fields)
			} else {
				c.logger.Debug("handler done", fields)
			}
		}(i, reg)
	}

	wg.Wait()
	return results
}

func callHandler(ctx context.Context, h Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = rpcerrors.RecoverPanic(r)
		}
	}()
	return h.OnShutdown(ctx)
}

// groupByPhase splits handlers, sorted by phase, into one group per phase.
func groupByPhase(handlers []registration) [][]registration {
	if len(handlers) == 0 {
		return nil
	}

	var groups [][]registration
	var current []registration
	phase := handlers[0].phase

	for _, h := range handlers {
		if h.phase != phase {
			groups = append(groups, current)
			current = nil
			phase = h.phase
		}
		current = append(current, h)
	}
	return append(groups, current)
}
