package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/teranos/samplegen/cmd/samplegen/commands"
	"github.com/teranos/samplegen/logger"
)

var rootCmd = &cobra.Command{
	Use:   "samplegen",
	Short: "samplegen - schema-shaped sample data from a local language model",
	Long: `samplegen - generate realistic sample records from a sample JSON document.

Records are produced in batches by a local OpenAI-compatible inference server
(Ollama, llama.cpp server, LocalAI) or by OpenRouter, and assembled into one
JSON array.

Available commands:
  generate - Generate records on the command line
  serve    - Start the HTTP host
  am       - Manage samplegen configuration ("I am")
  usage    - Show the inference usage ledger
  version  - Show build information

Examples:
  samplegen generate -n 25 -s person.json     # 25 records shaped like person.json
  samplegen generate -n 5 -s '{"id":1}' -v    # Inline schema with progress
  samplegen serve --port 8080                 # HTTP host
  samplegen am show                           # Show current configuration`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs, _ := cmd.Flags().GetBool("json-logs")
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json-logs", false, "Write logs as JSON")

	rootCmd.AddCommand(commands.GenerateCmd)
	rootCmd.AddCommand(commands.ServeCmd)
	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.UsageCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
