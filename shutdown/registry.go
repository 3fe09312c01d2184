package shutdown

import (
	"context"

	rpcerrors "github.com/vinayprograms/rpckit/errors"
	"github.com/vinayprograms/rpckit/registry"
	"github.com/vinayprograms/rpckit/rpcurl"
)

// Withdraw returns a handler that unregisters urls from r, stopping early
// when ctx expires.
func Withdraw(r registry.Registry, urls ...*rpcurl.URL) Handler {
	return HandlerFunc(func(ctx context.Context) error {
		var errs []error
		for _, u := range urls {
			if err := ctx.Err(); err != nil {
				errs = append(errs, err)
				break
			}
			if err := r.Unregister(u); err != nil {
				errs = append(errs, err)
			}
		}
		return rpcerrors.Join(errs...)
	})
}

// CloseRegistry returns a handler that closes r.
func CloseRegistry(r registry.Registry) Handler {
	return HandlerFunc(func(context.Context) error {
		return r.Close()
	})
}

// CloseFactories returns a handler that closes every registry factory and
// so every registry and session they created.
func CloseFactories() Handler {
	return HandlerFunc(func(context.Context) error {
		return registry.CloseFactories()
	})
}

// RegisterProvider arranges for urls to be withdrawn from r in
// PhaseUnregister and for r to be closed in PhaseSessions.
func (c *Coordinator) RegisterProvider(name string, r registry.Registry, urls ...*rpcurl.URL) {
	c.RegisterWithPhase(name+".unregister", Withdraw(r, urls...), PhaseUnregister)
	c.RegisterWithPhase(name+".close", CloseRegistry(r), PhaseSessions)
}
