// Package cli implements the explorerctl commands. They run the registry
// pipeline directly against the configured RPC nodes.
package cli

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/orca-network/explorer/internal/chain"
	"github.com/orca-network/explorer/internal/circuitbreaker"
	"github.com/orca-network/explorer/internal/config"
	"github.com/orca-network/explorer/internal/logging"
	"github.com/orca-network/explorer/internal/network"
	"github.com/orca-network/explorer/internal/registry"
	"github.com/orca-network/explorer/internal/retry"
)

// ErrDegraded is returned under --strict when any chain read failed.
var ErrDegraded = errors.New("results are partial: some chain reads failed")

// Option configures the root command.
type Option func(*app)

// WithProvider runs commands against p instead of the configured nodes.
func WithProvider(p *chain.Provider) Option {
	return func(a *app) { a.provider = p }
}

// WithClock overrides the wall clock used for timestamps.
func WithClock(now func() time.Time) Option {
	return func(a *app) { a.now = now }
}

type app struct {
	networkFlag string
	formatFlag  string
	strict      bool
	logLevel    string

	provider *chain.Provider
	service  *registry.Service
	now      func() time.Time
}

// NewRootCmd builds the top-level command.
func NewRootCmd(opts ...Option) *cobra.Command {
	a := &app{}
	for _, opt := range opts {
		opt(a)
	}

	root := &cobra.Command{
		Use:           "explorerctl",
		Short:         "Query ERC-8004 agent registries from the command line",
		Long:          "Reads the identity, reputation and validation registries of a configured network and prints agents and registry activity.",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if a.formatFlag != "json" && a.formatFlag != "text" {
				return fmt.Errorf("--format must be json or text, got %q", a.formatFlag)
			}
			return nil
		},
	}

	root.PersistentFlags().StringVarP(&a.networkFlag, "network", "n", "", "Network: testnet (default), ganache, localnet or 1337")
	root.PersistentFlags().StringVarP(&a.formatFlag, "format", "f", "text", "Output format: json or text")
	root.PersistentFlags().BoolVar(&a.strict, "strict", false, "Exit non-zero when results are partial")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "error", "Log level for RPC diagnostics")

	root.AddCommand(
		newAgentsCmd(a),
		newAgentCmd(a),
		newRegistrationsCmd(a),
		newTransactionsCmd(a),
		newNetworksCmd(a),
	)
	return root
}

func (a *app) chainID() int64 {
	return network.Resolve(a.networkFlag)
}

// pipeline builds the registry service on first use so flag errors never dial.
func (a *app) pipeline() (*registry.Service, error) {
	if a.service != nil {
		return a.service, nil
	}
	if a.provider == nil {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		catalog, err := network.NewCatalog(cfg.Networks()...)
		if err != nil {
			return nil, err
		}
		a.provider = chain.NewProvider(catalog,
			chain.WithRetryPolicy(retry.Policy{
				Attempts:       cfg.RPCRetries,
				BaseDelay:      retry.DefaultPolicy().BaseDelay,
				AttemptTimeout: cfg.RPCTimeout,
			}),
			chain.WithBreaker(circuitbreaker.New(5, 30*time.Second)),
			chain.WithLogger(logging.New(a.logLevel, "text")),
		)
	}

	opts := []registry.ServiceOption{}
	if a.now != nil {
		opts = append(opts, registry.WithClock(a.now))
	}
	a.service = registry.NewService(a.provider, opts...)
	return a.service, nil
}

// finish reports partial results and applies --strict.
func (a *app) finish(cmd *cobra.Command, issues []registry.Issue) error {
	if len(issues) == 0 {
		return nil
	}
	w := cmd.ErrOrStderr()
	fmt.Fprintln(w, "warning: partial results")
	for _, is := range issues {
		fmt.Fprintf(w, "  %s (%s): %s\n", is.Scope, is.Kind, is.Message)
	}
	if a.strict {
		return ErrDegraded
	}
	return nil
}
