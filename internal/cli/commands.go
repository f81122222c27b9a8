package cli

import (
	"strings"

	"github.com/spf13/cobra"
)

func statusCmd(opts options) *cobra.Command {
	return &cobra.Command{
		Use:   "status <transaction-id>",
		Short: "Show a transfer's status and step progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			view, err := opts.client().Transfer(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output(), view, transferTable(view))
		},
	}
}

func retryCmd(opts options) *cobra.Command {
	return &cobra.Command{
		Use:   "retry <transaction-id>",
		Short: "Reopen a failed transfer that still has retry budget",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.client().Retry(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output(), resp, retryTable(resp))
		},
	}
}

func ratesCmd(opts options) *cobra.Command {
	return &cobra.Command{
		Use:     "rates <currency>",
		Short:   "Show the bridge-asset price and USD rate for a payout currency",
		Example: "  remitctl rates KES -o json",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := opts.client().Rates(cmd.Context(), strings.ToUpper(args[0]))
			if err != nil {
				return err
			}
			return render(cmd.OutOrStdout(), opts.output(), resp, ratesTable(resp))
		},
	}
}
