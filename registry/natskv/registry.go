package natskv

import (
	"context"
	"embed"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	rpcerrors "github.com/vinayprograms/rpckit/errors"
	"github.com/vinayprograms/rpckit/extension"
	"github.com/vinayprograms/rpckit/registry"
	"github.com/vinayprograms/rpckit/rpcurl"
)

//go:embed extensions
var manifests embed.FS

func init() {
	extension.Implement(NewFactory)
	extension.AddResources("registry/natskv", manifests)
}

var keyEncoding = base64.RawURLEncoding

// entry is the value stored under a provider key.
type entry struct {
	URL          string    `json:"url" toml:"url" yaml:"url"`
	Registry     string    `json:"registry" toml:"registry" yaml:"registry"`
	RegisteredAt time.Time `json:"registered_at" toml:"registered_at" yaml:"registered_at"`
}

// Key returns the KV key of provider u:
//
//	<base64url(service)>.providers.<base64url(url)>
func Key(u *rpcurl.URL) string {
	return servicePrefix(u.ServiceName()) + keyEncoding.EncodeToString([]byte(u.String()))
}

func servicePrefix(service string) string {
	return keyEncoding.EncodeToString([]byte(service)) + "." + registry.ProvidersDir + "."
}

// parseKey recovers the provider URL from a key built by Key.
func parseKey(key string) (*rpcurl.URL, error) {
	parts := strings.Split(key, ".")
	if len(parts) != 3 || parts[1] != registry.ProvidersDir {
		return nil, rpcerrors.InvalidInput("not a provider key", rpcerrors.WithMetadata("key", key))
	}
	raw, err := keyEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, rpcerrors.WrapWithCode(err, rpcerrors.ErrCodeInvalidInput, "bad provider key",
			rpcerrors.WithMetadata("key", key))
	}
	return rpcurl.Parse(string(raw))
}

// Registry stores providers in a JetStream KV bucket. Bucket TTL plus a
// keepalive loop makes entries behave like ephemeral nodes: they expire
// once the owning registry stops refreshing them.
type Registry struct {
	*registry.Base
	conn     *nats.Conn
	kv       jetstream.KeyValue
	config   Config
	ownsConn bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewRegistry creates a NATS registry from an existing connection. The
// connection stays open when the registry is closed.
func NewRegistry(conn *nats.Conn, cfg Config) (*Registry, error) {
	if conn == nil {
		return nil, rpcerrors.InvalidInput("nil connection")
	}
	if err := cfg.applyDefaults(); err != nil {
		return nil, err
	}

	js, err := jetstream.New(conn)
	if err != nil {
		return nil, rpcerrors.WrapWithCode(err, rpcerrors.ErrCodeCoordination, "create jetstream context failed")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.OpTimeout)
	defer cancel()

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:   cfg.Bucket,
		TTL:      cfg.TTL,
		Replicas: cfg.Replicas,
	})
	if err != nil {
		return nil, rpcerrors.WrapWithCode(err, rpcerrors.ErrCodeCoordination, "create kv bucket failed",
			rpcerrors.WithMetadata("bucket", cfg.Bucket))
	}

	watchCtx, stop := context.WithCancel(context.Background())
	r := &Registry{
		conn:   conn,
		kv:     kv,
		config: cfg,
		cancel: stop,
	}
	r.Base = registry.NewBase(r, "registry.nats")

	watcher, err := kv.WatchAll(watchCtx, jetstream.UpdatesOnly())
	if err != nil {
		stop()
		return nil, rpcerrors.WrapWithCode(err, rpcerrors.ErrCodeCoordination, "watch kv bucket failed",
			rpcerrors.WithMetadata("bucket", cfg.Bucket))
	}

	r.wg.Add(2)
	go r.watchKV(watchCtx, watcher)
	go r.keepalive(watchCtx)

	return r, nil
}

// Connect dials the servers named by u and creates a registry that owns the
// connection. Credentials in u are sent as user info.
func Connect(u *rpcurl.URL) (*Registry, error) {
	cfg, err := ConfigFromURL(u)
	if err != nil {
		return nil, err
	}

	servers := make([]string, 0, len(u.Addresses()))
	for _, addr := range u.Addresses() {
		servers = append(servers, "nats://"+addr)
	}

	opts := []nats.Option{
		nats.Name("rpckit-" + uuid.NewString()),
		nats.Timeout(cfg.OpTimeout),
	}
	if u.Username() != "" {
		opts = append(opts, nats.UserInfo(u.Username(), u.Password()))
	}

	conn, err := nats.Connect(strings.Join(servers, ","), opts...)
	if err != nil {
		return nil, rpcerrors.WrapWithCode(err, rpcerrors.ErrCodeUnavailable, "connect failed",
			rpcerrors.WithMetadata("servers", strings.Join(servers, ",")))
	}

	r, err := NewRegistry(conn, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	r.ownsConn = true
	return r, nil
}

func (r *Registry) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), r.config.OpTimeout)
}

// DoRegister puts u's entry.
func (r *Registry) DoRegister(u *rpcurl.URL) error {
	return r.put(u)
}

func (r *Registry) put(u *rpcurl.URL) error {
	data, err := r.config.Serializer.Marshal(entry{
		URL:          u.String(),
		Registry:     r.ID(),
		RegisteredAt: time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	ctx, cancel := r.opContext()
	defer cancel()
	if _, err := r.kv.Put(ctx, Key(u), data); err != nil {
		return rpcerrors.WrapWithCode(err, rpcerrors.ErrCodeCoordination, "put to kv failed",
			rpcerrors.WithURL(u.String()))
	}
	return nil
}

// DoUnregister deletes u's entry. A missing entry is not an error.
func (r *Registry) DoUnregister(u *rpcurl.URL) error {
	ctx, cancel := r.opContext()
	defer cancel()

	err := r.kv.Delete(ctx, Key(u))
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return rpcerrors.WrapWithCode(err, rpcerrors.ErrCodeCoordination, "delete from kv failed",
			rpcerrors.WithURL(u.String()))
	}
	return nil
}

// DoLookup lists the live entries of condition's service.
func (r *Registry) DoLookup(condition *rpcurl.URL) ([]*rpcurl.URL, error) {
	ctx, cancel := r.opContext()
	defer cancel()

	lister, err := r.kv.ListKeysFiltered(ctx, servicePrefix(condition.ServiceName())+"*")
	if err != nil {
		if errors.Is(err, jetstream.ErrNoKeysFound) {
			return []*rpcurl.URL{}, nil
		}
		return nil, rpcerrors.WrapWithCode(err, rpcerrors.ErrCodeCoordination, "list keys failed",
			rpcerrors.WithURL(condition.String()))
	}
	defer lister.Stop()

	var keys []string
	for key := range lister.Keys() {
		keys = append(keys, key)
	}

	urls := make([]*rpcurl.URL, 0, len(keys))
	for _, key := range keys {
		kve, err := r.kv.Get(ctx, key)
		if err != nil {
			continue // Key might have been deleted
		}

		var e entry
		if err := r.config.Serializer.Unmarshal(kve.Value(), &e); err != nil {
			r.Logger().Warn("skipping undecodable entry", map[string]interface{}{"key": key})
			continue
		}
		u, err := rpcurl.Parse(e.URL)
		if err != nil {
			r.Logger().Warn("skipping unparsable entry", map[string]interface{}{"key": key, "url": e.URL})
			continue
		}
		urls = append(urls, u)
	}
	return urls, nil
}

// watchKV refreshes the service of every key that changes in the bucket.
func (r *Registry) watchKV(ctx context.Context, watcher jetstream.KeyWatcher) {
	defer r.wg.Done()
	defer watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case kve, ok := <-watcher.Updates():
			if !ok {
				return
			}
			if kve == nil {
				continue
			}

			u, err := parseKey(kve.Key())
			if err != nil {
				r.Logger().Debug("ignoring foreign key", map[string]interface{}{"key": kve.Key()})
				continue
			}
			r.Logger().WatchEvent(kve.Key(), kve.Operation().String())
			_ = r.Refresh(u)
		}
	}
}

// keepalive re-puts this registry's entries every TTL/3 so they outlive
// the bucket TTL, and refreshes tracked services so expired entries of
// other registries are noticed.
func (r *Registry) keepalive(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.config.TTL / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, u := range r.Registered() {
				if err := r.put(u); err != nil {
					r.Logger().OperationFailed("keepalive", err, map[string]interface{}{"url": u.String()})
				}
			}
			_ = r.RefreshAll()
		}
	}
}

// Close withdraws this registry's entries and stops watching the bucket.
func (r *Registry) Close() error {
	err := r.Base.Close()
	r.cancel()
	r.wg.Wait()
	if r.ownsConn {
		r.conn.Close()
	}
	return err
}

// Conn returns the underlying NATS connection.
func (r *Registry) Conn() *nats.Conn {
	return r.conn
}

// Factory creates NATS registries, one connection per registry URL.
type Factory struct {
	cache   *registry.Cache
	connect func(u *rpcurl.URL) (registry.Registry, error)
}

// NewFactory creates a Factory that dials with Connect.
func NewFactory() (*Factory, error) {
	return &Factory{
		cache: registry.NewCache(),
		connect: func(u *rpcurl.URL) (registry.Registry, error) {
			return Connect(u)
		},
	}, nil
}

// GetRegistry returns the registry for the servers at u, connecting on
// first use.
func (f *Factory) GetRegistry(u *rpcurl.URL) (registry.Registry, error) {
	return f.cache.GetOrCreate(u, f.connect)
}

// Close closes every registry created by f.
func (f *Factory) Close() error {
	return f.cache.CloseAll()
}

var (
	_ registry.Registry        = (*Registry)(nil)
	_ registry.Backend         = (*Registry)(nil)
	_ registry.RegistryFactory = (*Factory)(nil)
)
