// Package cli implements remitctl, the operator command line for the
// transfer gateway.
package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const (
	defaultGateway = "http://localhost:8080"
	defaultTimeout = 15 * time.Second
)

// options are resolved from flags first, then REMITCTL_* variables.
type options struct {
	v *viper.Viper
}

func (o options) gateway() string        { return o.v.GetString("gateway") }
func (o options) output() string         { return strings.ToLower(o.v.GetString("output")) }
func (o options) timeout() time.Duration { return o.v.GetDuration("timeout") }

func (o options) client() *Client {
	return NewClient(o.gateway(), o.timeout())
}

// NewRootCmd builds the remitctl command tree.
func NewRootCmd(version string) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("remitctl")
	v.AutomaticEnv()
	opts := options{v: v}

	root := &cobra.Command{
		Use:   "remitctl",
		Short: "Inspect and operate cross-border transfers",
		Long: `remitctl talks to the transfer gateway to query transfer status,
trigger manual retries of failed payouts and show current exchange rates.

Flags can also be set as REMITCTL_GATEWAY, REMITCTL_OUTPUT and REMITCTL_TIMEOUT.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return validFormat(opts.output())
		},
	}

	flags := root.PersistentFlags()
	flags.String("gateway", defaultGateway, "Gateway base URL")
	flags.StringP("output", "o", FormatTable, "Output format: table, json or yaml")
	flags.Duration("timeout", defaultTimeout, "Request timeout")
	for _, name := range []string{"gateway", "output", "timeout"} {
		_ = v.BindPFlag(name, flags.Lookup(name))
	}

	root.AddCommand(statusCmd(opts))
	root.AddCommand(retryCmd(opts))
	root.AddCommand(ratesCmd(opts))

	return root
}

// Execute runs remitctl with the given arguments and writers.
func Execute(version string, args []string, stdout, stderr io.Writer) error {
	root := NewRootCmd(version)
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return err
	}
	return nil
}
