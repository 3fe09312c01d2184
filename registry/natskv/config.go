package natskv

import (
	"time"

	"github.com/vinayprograms/rpckit/rpcurl"
	"github.com/vinayprograms/rpckit/serializer"
)

// URL parameters understood by this backend, in addition to "timeout" and
// "serializer".
const (
	KeyBucket   = "nats.bucket"
	KeyTTL      = "nats.ttlMs"
	KeyReplicas = "nats.replicas"
)

const (
	DefaultBucket    = "rpckit-registry"
	DefaultTTL       = 30 * time.Second
	DefaultOpTimeout = 5 * time.Second
)

// Config configures the NATS registry.
type Config struct {
	// Bucket is the KV bucket name. Default: "rpckit-registry"
	Bucket string

	// TTL is how long an entry outlives its last keepalive. Entries are
	// re-put every TTL/3 while registered.
	TTL time.Duration

	// Replicas for the KV store (1-5). Default: 1
	Replicas int

	// OpTimeout bounds each KV operation.
	OpTimeout time.Duration

	// Serializer encodes entry values. Default: json
	Serializer serializer.Serializer
}

// DefaultConfig returns configuration with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Bucket:    DefaultBucket,
		TTL:       DefaultTTL,
		Replicas:  1,
		OpTimeout: DefaultOpTimeout,
	}
}

// ConfigFromURL reads the registry parameters of u over DefaultConfig.
func ConfigFromURL(u *rpcurl.URL) (Config, error) {
	cfg := DefaultConfig()
	cfg.Bucket = u.Param(KeyBucket, cfg.Bucket)
	cfg.TTL = u.MillisParam(KeyTTL, cfg.TTL)
	cfg.Replicas = u.IntParam(KeyReplicas, cfg.Replicas)
	cfg.OpTimeout = u.MillisParam(rpcurl.KeyTimeout, cfg.OpTimeout)

	s, err := serializer.ForURL(u)
	if err != nil {
		return Config{}, err
	}
	cfg.Serializer = s
	return cfg, nil
}

func (c *Config) applyDefaults() error {
	if c.Bucket == "" {
		c.Bucket = DefaultBucket
	}
	if c.TTL <= 0 {
		c.TTL = DefaultTTL
	}
	if c.Replicas < 1 {
		c.Replicas = 1
	}
	if c.OpTimeout <= 0 {
		c.OpTimeout = DefaultOpTimeout
	}
	if c.Serializer == nil {
		s, err := serializer.Default()
		if err != nil {
			return err
		}
		c.Serializer = s
	}
	return nil
}
