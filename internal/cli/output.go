package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/remitbridge-transfer-orchestrator/internal/api_gateway/handler"
	"github.com/remitbridge-transfer-orchestrator/internal/domain/transfer"
)

// Output formats accepted by -o.
const (
	FormatTable = "table"
	FormatJSON  = "json"
	FormatYAML  = "yaml"
)

func validFormat(f string) error {
	switch f {
	case FormatTable, FormatJSON, FormatYAML:
		return nil
	}
	return fmt.Errorf("unknown output format %q (want table, json or yaml)", f)
}

// render writes v as JSON or YAML, or hands off to table for the default
// format.
func render(w io.Writer, format string, v any, table func(*tabwriter.Writer)) error {
	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		return writeYAML(w, v)
	}

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	table(tw)
	return tw.Flush()
}

// writeYAML goes through JSON so keys and decimal values match the API.
func writeYAML(w io.Writer, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var node yaml.Node
	if err := yaml.Unmarshal(raw, &node); err != nil {
		return err
	}
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return err
	}
	return enc.Close()
}

func transferTable(v transfer.View) func(*tabwriter.Writer) {
	return func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "TRANSACTION\t%s\n", v.TransactionID)
		fmt.Fprintf(tw, "STATUS\t%s\n", v.Status)
		fmt.Fprintf(tw, "USD\t%s\n", v.Amounts.USD.StringFixed(2))
		if v.Amounts.LocalCurrency != "" {
			fmt.Fprintf(tw, "LOCAL\t%s %s\n", v.Amounts.Local.StringFixed(2), v.Amounts.LocalCurrency)
		}
		fmt.Fprintf(tw, "RETRIES\t%d/%d\n", v.RetryCount, v.MaxRetries)
		fmt.Fprintf(tw, "UPDATED\t%s\n", formatTime(&v.UpdatedAt))
		fmt.Fprintln(tw)

		fmt.Fprintln(tw, "STEP\tDONE\tREF\tAT\tERROR")
		stepRow(tw, "conversion", v.Steps.Conversion.Completed, v.Steps.Conversion.ProviderRef, v.Steps.Conversion.Timestamp, v.Steps.Conversion.Error)
		stepRow(tw, "ledger_transfer", v.Steps.LedgerTransfer.Completed, v.Steps.LedgerTransfer.ProviderRef, v.Steps.LedgerTransfer.Timestamp, v.Steps.LedgerTransfer.Error)
		payout := "payout"
		if v.Steps.Payout.Phase != transfer.PayoutPhaseNone {
			payout = fmt.Sprintf("payout (%s)", v.Steps.Payout.Phase)
		}
		stepRow(tw, payout, v.Steps.Payout.Completed, v.Steps.Payout.ProviderRef, v.Steps.Payout.Timestamp, v.Steps.Payout.Error)

		if v.LastError != nil {
			fmt.Fprintln(tw)
			fmt.Fprintf(tw, "LAST ERROR\t[%s] %s\n", v.LastError.Stage, v.LastError.Message)
		}
	}
}

func stepRow(tw *tabwriter.Writer, name string, done bool, ref string, at *time.Time, errMsg string) {
	fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", name, yesNo(done), dash(ref), formatTime(at), dash(errMsg))
}

func retryTable(r handler.TransferResponse) func(*tabwriter.Writer) {
	return func(tw *tabwriter.Writer) {
		fmt.Fprintf(tw, "TRANSACTION\t%s\n", r.TransactionID)
		fmt.Fprintf(tw, "STATUS\t%s\n", r.Status)
		fmt.Fprintln(tw, "RETRY\tqueued")
	}
}

func ratesTable(r handler.RateResponse) func(*tabwriter.Writer) {
	return func(tw *tabwriter.Writer) {
		fmt.Fprintln(tw, "PAIR\tRATE\tSOURCE\tFETCHED")
		fmt.Fprintf(tw, "BRIDGE/USD\t%s\t%s\t%s\n", r.BridgeUSD.Rate.String(), r.BridgeUSD.Source, formatTime(r.BridgeUSD.FetchedAt))
		fmt.Fprintf(tw, "USD/%s\t%s\t%s\t%s\n", strings.ToUpper(r.Currency), r.USDToLocal.Rate.String(), r.USDToLocal.Source, formatTime(r.USDToLocal.FetchedAt))
	}
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339)
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
