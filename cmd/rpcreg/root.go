package main

import (
	"github.com/spf13/cobra"

	"github.com/vinayprograms/rpckit/config"
	"github.com/vinayprograms/rpckit/logging"
	"github.com/vinayprograms/rpckit/registry"
	"github.com/vinayprograms/rpckit/rpcurl"

	// Registry backends.
	_ "github.com/vinayprograms/rpckit/registry/local"
	_ "github.com/vinayprograms/rpckit/registry/natskv"
	_ "github.com/vinayprograms/rpckit/registry/zookeeper"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	registry   string
	logLevel   string

	cfg *config.Config
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "rpcreg",
		Short: "Inspect and drive rpckit service registries",
		Long: `rpcreg talks to a service registry through the same adaptive factory services use.
The registry is chosen by the protocol of its address: local://, zk:// or nats://.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			flags.cfg = cfg

			logger := logging.New()
			logger.SetLevel(cfg.LogLevel())
			logger.SetOutput(cmd.ErrOrStderr())
			logging.SetDefault(logger)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Path to rpckit.toml (default: search standard locations)")
	cmd.PersistentFlags().StringVarP(&flags.registry, "registry", "r", "", "Registry address, overrides the config file")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug, info, warn, error")

	cmd.AddCommand(newRegisterCommand(flags))
	cmd.AddCommand(newLookupCommand(flags))
	cmd.AddCommand(newWatchCommand(flags))
	cmd.AddCommand(newExtensionsCommand())

	return cmd
}

// load reads the config file and applies flag overrides.
func (f *globalFlags) load() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if f.configPath != "" {
		cfg, err = config.LoadFile(f.configPath)
	} else {
		cfg, _, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if f.registry != "" {
		cfg.Registry.Address = f.registry
	}
	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// open resolves the configured registry through the adaptive factory.
func (f *globalFlags) open() (registry.Registry, *rpcurl.URL, error) {
	if f.cfg == nil {
		cfg, err := f.load()
		if err != nil {
			return nil, nil, err
		}
		f.cfg = cfg
	}
	u, err := f.cfg.RegistryURL()
	if err != nil {
		return nil, nil, err
	}
	r, err := registry.Get(u)
	if err != nil {
		return nil, nil, err
	}
	return r, u, nil
}
