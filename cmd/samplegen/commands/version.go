package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/samplegen/am"
	"github.com/teranos/samplegen/version"
)

// VersionCmd represents the version command
var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show samplegen version information",
	Long:  `Display version, build time, commit hash, platform, and the configured inference backend.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")
		info := version.Get()
		// A broken config must not hide the build info
		if cfg, err := am.Load(); err == nil {
			model := cfg.LocalInference.Model
			if cfg.Provider == am.ProviderOpenRouter {
				model = cfg.OpenRouter.Model
			}
			info = info.WithInference(cfg.Provider, model)
		}
		out := cmd.OutOrStdout()

		if jsonOutput {
			output, err := json.MarshalIndent(info, "", "  ")
			if err != nil {
				return fmt.Errorf("failed to format version info: %w", err)
			}
			fmt.Fprintln(out, string(output))
			return nil
		}
		fmt.Fprintln(out, info.String())
		fmt.Fprintf(out, "Platform: %s\n", info.Platform)
		fmt.Fprintf(out, "Go: %s\n", info.GoVersion)
		if inference := info.Inference(); inference != "" {
			fmt.Fprintf(out, "Inference: %s\n", inference)
		}
		return nil
	},
}

func init() {
	VersionCmd.Flags().BoolP("json", "j", false, "Output version info as JSON")
}
