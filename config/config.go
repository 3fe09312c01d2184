// Package config loads rpckit.toml from standard locations.
package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"

	rpcerrors "github.com/vinayprograms/rpckit/errors"
	"github.com/vinayprograms/rpckit/logging"
	"github.com/vinayprograms/rpckit/rpcurl"
)

// FileName is the configuration file searched for by Load.
const FileName = "rpckit.toml"

// DefaultRegistry is used when no registry address is configured.
const DefaultRegistry = "local://127.0.0.1:0"

// Config holds the settings read from rpckit.toml.
type Config struct {
	Registry   RegistrySection   `toml:"registry"`
	Auth       AuthSection       `toml:"auth"`
	Log        LogSection        `toml:"log"`
	Serializer SerializerSection `toml:"serializer"`
}

// RegistrySection names the registry to use, e.g. "zk://zk1:2181?backup=zk2:2181".
type RegistrySection struct {
	Address string `toml:"address"`
}

// AuthSection holds credentials sent to the coordination service.
type AuthSection struct {
	Username string `toml:"username"`
	Password string `toml:"password"`
}

type LogSection struct {
	Level string `toml:"level"`
}

type SerializerSection struct {
	Name string `toml:"name"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	return &Config{
		Registry: RegistrySection{Address: DefaultRegistry},
		Log:      LogSection{Level: string(logging.LevelInfo)},
	}
}

// StandardPaths returns the config file locations in order of priority
func StandardPaths() []string {
	paths := []string{}

	// 1. Current directory
	paths = append(paths, FileName)

	// 2. ~/.config/rpckit/rpckit.toml
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "rpckit", FileName))
	}

	return paths
}

// Load loads the first config file found in StandardPaths. It returns the
// defaults and an empty path when there is none.
func Load() (*Config, string, error) {
	for _, path := range StandardPaths() {
		if _, err := os.Stat(path); err == nil {
			cfg, err := LoadFile(path)
			if err != nil {
				return nil, path, err
			}
			return cfg, path, nil
		}
	}
	return Default(), "", nil
}

// LoadFile loads configuration from a specific file. A file that holds a
// password must not be readable by group or others.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, rpcerrors.WrapWithCode(err, rpcerrors.ErrCodeConfiguration, "decode config failed",
			rpcerrors.WithPath(path))
	}

	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		logging.Default().WithComponent("config").Warn("unknown config keys", map[string]interface{}{
			"path": path,
			"keys": undecoded,
		})
	}

	if cfg.Auth.Password != "" && runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			return nil, rpcerrors.WrapWithCode(err, rpcerrors.ErrCodeConfiguration, "stat config failed",
				rpcerrors.WithPath(path))
		}
		if mode := info.Mode().Perm(); mode&0077 != 0 {
			return nil, rpcerrors.New(rpcerrors.ErrCodeConfiguration, "config file with password has insecure permissions",
				rpcerrors.WithPath(path), rpcerrors.WithMetadata("mode", mode.String()))
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, rpcerrors.Wrap(err, "invalid config", rpcerrors.WithPath(path))
	}
	return cfg, nil
}

// Validate checks the address and log level.
func (c *Config) Validate() error {
	if c.Registry.Address != "" {
		if _, err := rpcurl.Parse(c.Registry.Address); err != nil {
			return rpcerrors.WrapWithCode(err, rpcerrors.ErrCodeConfiguration, "bad registry address")
		}
	}
	if c.Log.Level != "" {
		if _, err := logging.ParseLevel(c.Log.Level); err != nil {
			return rpcerrors.WrapWithCode(err, rpcerrors.ErrCodeConfiguration, "bad log level")
		}
	}
	return nil
}

// RegistryURL returns the registry address with the configured credentials
// and serializer applied. Credentials and parameters already in the address
// win.
func (c *Config) RegistryURL() (*rpcurl.URL, error) {
	addr := c.Registry.Address
	if addr == "" {
		addr = DefaultRegistry
	}
	u, err := rpcurl.Parse(addr)
	if err != nil {
		return nil, rpcerrors.WrapWithCode(err, rpcerrors.ErrCodeConfiguration, "bad registry address")
	}

	var opts []rpcurl.Option
	if u.Username() == "" && u.Password() == "" && (c.Auth.Username != "" || c.Auth.Password != "") {
		opts = append(opts, rpcurl.WithCredentials(c.Auth.Username, c.Auth.Password))
	}
	if c.Serializer.Name != "" && !u.HasParam(rpcurl.KeySerializer) {
		opts = append(opts, rpcurl.WithParam(rpcurl.KeySerializer, c.Serializer.Name))
	}
	if len(opts) == 0 {
		return u, nil
	}
	return u.With(opts...), nil
}

// LogLevel returns the configured level, INFO if unset.
func (c *Config) LogLevel() logging.Level {
	level, err := logging.ParseLevel(c.Log.Level)
	if err != nil || c.Log.Level == "" {
		return logging.LevelInfo
	}
	return level
}
