package zookeeper

import (
	"embed"
	"net/url"

	"github.com/vinayprograms/rpckit/extension"
	"github.com/vinayprograms/rpckit/registry"
	"github.com/vinayprograms/rpckit/rpcurl"
)

//go:embed extensions
var manifests embed.FS

func init() {
	extension.Implement(NewFactory)
	extension.AddResources("registry/zookeeper", manifests)
}

// Registry stores each provider as an ephemeral node
//
//	/rpckit/<service>/providers/<escaped provider url>
//
// and watches the providers directory of every service it touches.
type Registry struct {
	*registry.Base
	client Client
}

// NewRegistry creates a registry over client. The registry owns client and
// closes it on Close.
func NewRegistry(client Client) *Registry {
	r := &Registry{client: client}
	r.Base = registry.NewBase(r, "registry.zk")
	return r
}

// NodePath returns the node path of provider u, relative to RootPath.
func NodePath(u *rpcurl.URL) string {
	return registry.ServicePathOf(u) + "/" + url.QueryEscape(u.String())
}

// DoRegister creates u's ephemeral node and watches its service.
func (r *Registry) DoRegister(u *rpcurl.URL) error {
	if err := r.client.CreateEphemeralNode(NodePath(u)); err != nil {
		return err
	}
	return r.watch(u)
}

// DoUnregister removes u's node. The service stays watched.
func (r *Registry) DoUnregister(u *rpcurl.URL) error {
	if err := r.client.RemoveNode(NodePath(u)); err != nil {
		return err
	}
	return r.watch(u)
}

// DoLookup lists the providers of condition's service.
func (r *Registry) DoLookup(condition *rpcurl.URL) ([]*rpcurl.URL, error) {
	children, err := r.client.GetChildren(registry.ServicePathOf(condition))
	if err != nil {
		return nil, err
	}

	urls := make([]*rpcurl.URL, 0, len(children))
	for _, child := range children {
		raw, err := url.QueryUnescape(child)
		if err != nil {
			r.Logger().Warn("skipping undecodable node", map[string]interface{}{"node": child})
			continue
		}
		u, err := rpcurl.Parse(raw)
		if err != nil {
			r.Logger().Warn("skipping unparsable node", map[string]interface{}{"node": raw})
			continue
		}
		urls = append(urls, u)
		if err := r.watch(u); err != nil {
			return nil, err
		}
	}

	// Watch the service even when it has no providers yet.
	if err := r.watch(condition); err != nil {
		return nil, err
	}
	return urls, nil
}

func (r *Registry) watch(u *rpcurl.URL) error {
	return r.client.AddListener(registry.ServicePathOf(u), func(string) {
		_ = r.Refresh(u)
	})
}

// Close withdraws this registry's providers and ends its session.
func (r *Registry) Close() error {
	err := r.Base.Close()
	if cerr := r.client.Close(); err == nil {
		err = cerr
	}
	return err
}

// Factory creates ZooKeeper registries, one session per registry URL.
type Factory struct {
	cache   *registry.Cache
	connect func(u *rpcurl.URL) (Client, error)
}

// NewFactory creates a Factory that opens SessionClients.
func NewFactory() (*Factory, error) {
	return &Factory{
		cache: registry.NewCache(),
		connect: func(u *rpcurl.URL) (Client, error) {
			return NewSessionClient(u)
		},
	}, nil
}

// GetRegistry returns the registry for the ensemble at u, connecting on
// first use.
func (f *Factory) GetRegistry(u *rpcurl.URL) (registry.Registry, error) {
	return f.cache.GetOrCreate(u, func(u *rpcurl.URL) (registry.Registry, error) {
		client, err := f.connect(u)
		if err != nil {
			return nil, err
		}
		return NewRegistry(client), nil
	})
}

// Close closes every registry and session created by f.
func (f *Factory) Close() error {
	return f.cache.CloseAll()
}

var (
	_ registry.Registry        = (*Registry)(nil)
	_ registry.Backend         = (*Registry)(nil)
	_ registry.RegistryFactory = (*Factory)(nil)
)
