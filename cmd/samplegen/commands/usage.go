package commands

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/samplegen/ai/tracker"
	"github.com/teranos/samplegen/errors"
	"github.com/teranos/samplegen/logger"
)

// UsageCmd reports the inference usage ledger
var UsageCmd = &cobra.Command{
	Use:   "usage",
	Short: "Show inference usage recorded in the ledger",
	Long: `Show inference calls recorded in the usage ledger (database.path).

Examples:
  samplegen usage                 # Last 24 hours
  samplegen usage --since 168h    # Last week
  samplegen usage --json`,
	RunE: runUsage,
}

var (
	usageSince time.Duration
	usageJSON  bool
)

func init() {
	UsageCmd.Flags().DurationVar(&usageSince, "since", 24*time.Hour, "Window to summarize")
	UsageCmd.Flags().BoolVar(&usageJSON, "json", false, "Output as JSON")
}

func runUsage(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	database, err := openLedger(cfg, logger.ComponentLogger("db"))
	if err != nil {
		return err
	}
	defer database.Close()

	t := tracker.NewUsageTracker(database)
	since := time.Now().Add(-usageSince)
	summary, err := t.Summary(cmd.Context(), since)
	if err != nil {
		return err
	}
	models, err := t.ModelBreakdown(cmd.Context(), since)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if usageJSON {
		data, err := json.MarshalIndent(map[string]interface{}{
			"since":   since.UTC(),
			"summary": summary,
			"models":  models,
		}, "", "  ")
		if err != nil {
			return errors.Wrap(err, "marshal usage")
		}
		fmt.Fprintln(out, string(data))
		return nil
	}

	fmt.Fprintf(out, "Usage since %s\n", since.Format(time.RFC3339))
	fmt.Fprintf(out, "  calls:        %d (%.0f%% successful)\n", summary.TotalCalls, summary.SuccessRate*100)
	fmt.Fprintf(out, "  requests:     %d\n", summary.Requests)
	fmt.Fprintf(out, "  tokens:       %d\n", summary.TotalTokens)
	fmt.Fprintf(out, "  cost:         $%.4f\n", summary.TotalCost)
	fmt.Fprintf(out, "  avg duration: %.0fms\n\n", summary.AvgDurationMS)
	if len(models) == 0 {
		return nil
	}

	table := pterm.TableData{{"Provider", "Model", "Calls", "Failed", "Response chars", "Cost"}}
	for _, m := range models {
		table = append(table, []string{
			m.Provider, m.Model,
			fmt.Sprint(m.Calls), fmt.Sprint(m.FailedCalls),
			fmt.Sprint(m.ResponseChars), fmt.Sprintf("$%.4f", m.TotalCost),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(table).Render()
}
