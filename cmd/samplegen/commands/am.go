package commands

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/teranos/samplegen/am"
	"github.com/teranos/samplegen/errors"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Manage samplegen configuration",
	Long: `am - Manage samplegen configuration ("I am")

Configuration sources (in order of precedence):
1. Command line flags
2. Environment variables (SAMPLEGEN_* prefix, OPENROUTER_API_KEY)
3. Project config (./am.toml, searched up the directory tree)
4. User config (~/.samplegen/am.toml)
5. System config (/etc/samplegen/config.toml)
6. Default values

Examples:
  samplegen am show                    # Show current configuration
  samplegen am show --format json      # Show configuration in JSON format
  samplegen am get generation.batch_size
  samplegen am validate                # Validate current configuration
  samplegen am where                   # Show which source set each value`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  "Display the effective samplegen configuration from all sources. Secrets are redacted.",
	RunE:  runAmShow,
}

var amGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Get a specific configuration value",
	Long:  "Get a specific configuration value using dot notation (e.g., generation.batch_size, local_inference.model)",
	Args:  cobra.ExactArgs(1),
	RunE:  runAmGet,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where each configuration value comes from",
	RunE:  runAmWhere,
}

var configFormat string

// secretKeys are redacted by am show and am where
var secretKeys = map[string]bool{
	"openrouter.api_key": true,
}

func init() {
	amShowCmd.Flags().StringVar(&configFormat, "format", "toml", "Output format: toml, json, yaml")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amGetCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amWhereCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	settings := redact(am.GetViper().AllSettings(), "")
	out := cmd.OutOrStdout()

	switch configFormat {
	case "json":
		data, err := json.MarshalIndent(settings, "", "  ")
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to JSON")
		}
		fmt.Fprintln(out, string(data))
	case "yaml":
		data, err := yaml.Marshal(settings)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to YAML")
		}
		fmt.Fprintf(out, "# samplegen configuration\n%s", data)
	case "toml":
		data, err := toml.Marshal(settings)
		if err != nil {
			return errors.Wrap(err, "failed to marshal config to TOML")
		}
		fmt.Fprintf(out, "# samplegen configuration\n%s", data)
	default:
		return errors.Newf("unsupported format: %s (supported: toml, json, yaml)", configFormat)
	}
	return nil
}

func runAmGet(cmd *cobra.Command, args []string) error {
	key := args[0]
	v := am.GetViper()
	if !v.IsSet(key) {
		return errors.Newf("configuration key %q not found", key)
	}
	value := v.Get(key)
	if secretKeys[key] {
		value = mask(fmt.Sprint(value))
	}
	fmt.Fprintln(cmd.OutOrStdout(), value)
	return nil
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	if _, err := loadConfig(); err != nil {
		if hints := errors.FlattenHints(err); hints != "" {
			pterm.Info.WithWriter(cmd.ErrOrStderr()).Println(hints)
		}
		return err
	}
	pterm.Success.WithWriter(cmd.OutOrStdout()).Println("Configuration is valid")
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	paths := am.ConfigPaths()

	fmt.Fprintln(out, "Configuration cascade (later overrides earlier):")
	fmt.Fprintln(out, "  1. [DEFAULT]  Built-in defaults")
	for i, path := range paths {
		fmt.Fprintf(out, "  %d. [%s]  %s\n", i+2, strings.ToUpper(string(am.ClassifyPath(path))), path)
	}
	fmt.Fprintf(out, "  %d. [ENV]      SAMPLEGEN_* environment variables\n\n", len(paths)+2)

	table := pterm.TableData{{"Key", "Value", "Source", "From"}}
	for _, s := range am.Introspect(am.GetViper(), paths) {
		value := fmt.Sprintf("%v", s.Value)
		if secretKeys[s.Key] {
			value = mask(value)
		}
		if len(value) > 50 {
			value = value[:47] + "..."
		}
		table = append(table, []string{s.Key, value, string(s.Source), s.SourcePath})
	}
	return pterm.DefaultTable.WithHasHeader().WithWriter(out).WithData(table).Render()
}

// redact masks secret settings in a nested settings map
func redact(settings map[string]interface{}, prefix string) map[string]interface{} {
	out := make(map[string]interface{}, len(settings))
	for k, v := range settings {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		switch val := v.(type) {
		case map[string]interface{}:
			out[k] = redact(val, key)
		default:
			if secretKeys[key] {
				out[k] = mask(fmt.Sprint(val))
				continue
			}
			out[k] = v
		}
	}
	return out
}

func mask(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-2:]
}
