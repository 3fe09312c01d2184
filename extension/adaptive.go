package extension

import (
	rpcerrors "github.com/vinayprograms/rpckit/errors"
	"github.com/vinayprograms/rpckit/rpcurl"
)

// Router selects a concrete extension for one call of an adaptive method.
// It holds no state besides its loader; every call resolves again.
type Router[T any] struct {
	loader *Loader[T]
}

// Route picks the extension for method from the first *rpcurl.URL in args.
func (r *Router[T]) Route(method string, args ...any) (T, error) {
	var zero T

	key, ok := r.loader.cap.routes[method]
	if !ok {
		return zero, rpcerrors.Routing(method+" is not adaptive on "+r.loader.cap.name,
			rpcerrors.WithExtension(r.loader.cap.name, ""))
	}

	u := findURL(args)
	if u == nil {
		return zero, rpcerrors.Routing(r.loader.cap.name+"."+method+" called without a url argument",
			rpcerrors.WithExtension(r.loader.cap.name, ""))
	}

	return r.loader.Get(r.Name(method, key, u))
}

// Name returns the extension name a call would route to. The "protocol"
// key reads the URL protocol; other keys read the parameter of that name,
// defaulting to "<capability>.<method>".
func (r *Router[T]) Name(method, key string, u *rpcurl.URL) string {
	if key == rpcurl.KeyProtocol {
		return u.Protocol()
	}
	return u.Param(key, r.loader.cap.name+"."+method)
}

func findURL(args []any) *rpcurl.URL {
	for _, arg := range args {
		if u, ok := arg.(*rpcurl.URL); ok && u != nil {
			return u
		}
	}
	return nil
}
