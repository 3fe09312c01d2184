package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/vinayprograms/rpckit/extension"
	"github.com/vinayprograms/rpckit/registry"
	"github.com/vinayprograms/rpckit/rpcurl"
	"github.com/vinayprograms/rpckit/serializer"
	"github.com/vinayprograms/rpckit/shutdown"
)

func newRegisterCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "register <provider-url>...",
		Short: "Register providers until interrupted",
		Long: `Register one or more provider URLs and keep them registered until SIGINT or SIGTERM.
On exit the providers are withdrawn before the registry session is closed.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			urls, err := parseURLs(args)
			if err != nil {
				return err
			}
			r, _, err := flags.open()
			if err != nil {
				return err
			}

			coord := shutdown.NewCoordinator(shutdown.DefaultConfig())
			coord.RegisterProvider("cli", r, urls...)

			for _, u := range urls {
				if err := r.Register(u); err != nil {
					_ = coord.ShutdownWithTimeout(0)
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "registered %s\n", u)
			}

			coord.HandleSignals()
			select {
			case <-coord.Done():
			case <-cmd.Context().Done():
				_ = coord.ShutdownWithTimeout(0)
			}
			return coord.Err()
		},
	}
}

func newLookupCommand(flags *globalFlags) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "lookup <service|condition-url>",
		Short: "List the providers of a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, _, err := flags.open()
			if err != nil {
				return err
			}
			defer r.Close()

			providers, err := r.Lookup(condition(args[0]))
			if err != nil {
				return err
			}
			return printProviders(cmd.OutOrStdout(), output, providers)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Output format: a serializer name (json, toml, yaml); default one URL per line")

	return cmd
}

func newWatchCommand(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch <service|condition-url>",
		Short: "Print provider changes of a service until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, _, err := flags.open()
			if err != nil {
				return err
			}

			coord := shutdown.NewCoordinator(shutdown.DefaultConfig())
			coord.RegisterWithPhase("registry", shutdown.CloseRegistry(r), shutdown.PhaseSessions)

			out := cmd.OutOrStdout()
			err = r.Subscribe(condition(args[0]), func(service string, providers []*rpcurl.URL) {
				fmt.Fprintf(out, "%s: %d provider(s)\n", service, len(providers))
				for _, u := range providers {
					fmt.Fprintf(out, "  %s\n", u)
				}
			})
			if err != nil {
				_ = coord.ShutdownWithTimeout(0)
				return err
			}

			coord.HandleSignals()
			select {
			case <-coord.Done():
			case <-cmd.Context().Done():
				_ = coord.ShutdownWithTimeout(0)
			}
			return coord.Err()
		},
	}
}

func newExtensionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "extensions",
		Short: "List available registry backends and serializers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()

			registries, err := extension.ForType[registry.RegistryFactory]()
			if err != nil {
				return err
			}
			if err := printNames(out, registries.Capability(), registries.DefaultName(), registries.Names); err != nil {
				return err
			}

			serializers, err := extension.ForType[serializer.Serializer]()
			if err != nil {
				return err
			}
			return printNames(out, serializers.Capability(), serializers.DefaultName(), serializers.Names)
		},
	}
}

func printNames(w io.Writer, capability, def string, names func() ([]string, error)) error {
	list, err := names()
	if err != nil {
		return err
	}
	fmt.Fprintln(w, capability)
	for _, name := range list {
		marker := ""
		if name == def {
			marker = " (default)"
		}
		fmt.Fprintf(w, "  %s%s\n", name, marker)
	}
	return nil
}

// providerList is the structured form printed by lookup --output.
type providerList struct {
	Providers []string `json:"providers" toml:"providers" yaml:"providers"`
}

func printProviders(w io.Writer, format string, providers []*rpcurl.URL) error {
	if format == "" {
		for _, u := range providers {
			fmt.Fprintln(w, u)
		}
		return nil
	}

	s, err := serializer.Get(format)
	if err != nil {
		return err
	}
	list := providerList{Providers: make([]string, 0, len(providers))}
	for _, u := range providers {
		list.Providers = append(list.Providers, u.String())
	}
	data, err := s.Marshal(list)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, strings.TrimRight(string(data), "\n"))
	return err
}

// condition turns a service name or a URL into a lookup condition.
func condition(arg string) *rpcurl.URL {
	if strings.Contains(arg, "://") {
		if u, err := rpcurl.Parse(arg); err == nil {
			return u
		}
	}
	return rpcurl.New(rpcurl.ProtocolRPC, "0.0.0.0", 0, rpcurl.WithParam(rpcurl.KeyInterface, arg))
}

func parseURLs(args []string) ([]*rpcurl.URL, error) {
	urls := make([]*rpcurl.URL, 0, len(args))
	for _, arg := range args {
		u, err := rpcurl.Parse(arg)
		if err != nil {
			return nil, err
		}
		urls = append(urls, u)
	}
	return urls, nil
}
