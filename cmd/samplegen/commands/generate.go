package commands

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/samplegen/ai/llm"
	"github.com/teranos/samplegen/am"
	"github.com/teranos/samplegen/errors"
	"github.com/teranos/samplegen/generate"
	"github.com/teranos/samplegen/logger"
	"github.com/teranos/samplegen/pulse"
)

// GenerateCmd generates sample records on the command line
var GenerateCmd = &cobra.Command{
	Use:     "generate",
	Aliases: []string{"gen"},
	Short:   "Generate sample records shaped like a sample document",
	Long: `Generate sample records shaped like a sample JSON (or YAML) document.

The schema can be a file path, an inline JSON document, or - for stdin.
Records are written to stdout as one JSON array; progress goes to stderr.

Examples:
  samplegen generate -n 25 -s person.json
  samplegen generate -n 5 -s '{"id":1,"email":"a@b.c"}' --compact
  cat person.yaml | samplegen generate -n 10 -s - --yaml
  samplegen generate -n 3 -s person.json --dry-run   # Show plan and prompts only`,
	RunE: runGenerate,
}

var (
	genCount        int
	genSchema       string
	genYAML         bool
	genOut          string
	genCompact      bool
	genStream       bool
	genJSONProgress bool
	genDryRun       bool
	genProvider     string
	genModel        string
	genBatchSize    int
)

func init() {
	GenerateCmd.Flags().IntVarP(&genCount, "count", "n", 0, "Number of records to generate")
	GenerateCmd.Flags().StringVarP(&genSchema, "schema", "s", "", "Sample document: file path, inline JSON, or - for stdin")
	GenerateCmd.Flags().BoolVar(&genYAML, "yaml", false, "Parse the sample document as YAML (implied by .yaml/.yml files)")
	GenerateCmd.Flags().StringVarP(&genOut, "out", "o", "", "Write records to a file instead of stdout")
	GenerateCmd.Flags().BoolVar(&genCompact, "compact", false, "Write compact JSON")
	GenerateCmd.Flags().BoolVar(&genStream, "stream", false, "Echo model output as it is generated")
	GenerateCmd.Flags().BoolVar(&genJSONProgress, "json-progress", false, "Write progress as JSON lines to stderr")
	GenerateCmd.Flags().BoolVar(&genDryRun, "dry-run", false, "Print the batch plan and prompts without calling the model")
	GenerateCmd.Flags().StringVar(&genProvider, "provider", "", "Override provider (local, openrouter)")
	GenerateCmd.Flags().StringVar(&genModel, "model", "", "Override the model of the selected provider")
	GenerateCmd.Flags().IntVar(&genBatchSize, "batch-size", 0, "Override generation.batch_size")
	_ = GenerateCmd.MarkFlagRequired("count")
	_ = GenerateCmd.MarkFlagRequired("schema")
}

func runGenerate(cmd *cobra.Command, args []string) error {
	verbosity, _ := cmd.Flags().GetCount("verbose")

	cfg, err := am.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load config")
	}
	applyGenerateOverrides(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid configuration")
	}

	schema, err := readSchema(genSchema, genYAML, cmd.InOrStdin())
	if err != nil {
		return err
	}

	if genDryRun {
		return printDryRun(cmd.OutOrStdout(), cfg, schema)
	}

	var emitter pulse.ProgressEmitter
	var observer llm.StreamObserver
	if genJSONProgress {
		emitter = pulse.NewJSONEmitter(cmd.ErrOrStderr())
	} else {
		cli := pulse.NewCLIEmitterTo(cmd.ErrOrStderr(), verbosity)
		emitter = cli
		if genStream || verbosity >= logger.VerbosityTrace {
			observer = cli
		}
	}

	e, err := newEngine(cfg, observer, emitter)
	if err != nil {
		return err
	}
	defer e.Close()

	result, err := e.gen.Generate(cmd.Context(), generate.Request{RecordCount: genCount, Schema: schema})
	if err != nil {
		if hints := errors.FlattenHints(err); hints != "" {
			pterm.Info.WithWriter(cmd.ErrOrStderr()).Println(hints)
		}
		return err
	}

	if len(result.Records) < genCount {
		pterm.Warning.WithWriter(cmd.ErrOrStderr()).Printfln("Produced %d of %d requested records (%d batches ignored)",
			len(result.Records), genCount, result.SkippedBatches())
	}
	return writeRecords(cmd.OutOrStdout(), cmd.ErrOrStderr(), genOut, result, genCompact)
}

// applyGenerateOverrides applies command-line flags on top of the config cascade
func applyGenerateOverrides(cmd *cobra.Command, cfg *am.Config) {
	flags := cmd.Flags()
	if flags.Changed("provider") {
		cfg.Provider = genProvider
	}
	if flags.Changed("model") {
		switch cfg.Provider {
		case am.ProviderOpenRouter:
			cfg.OpenRouter.Model = genModel
		default:
			cfg.LocalInference.Model = genModel
		}
	}
	if flags.Changed("batch-size") {
		cfg.Generation.BatchSize = genBatchSize
	}
}

// readSchema resolves --schema into a Schema
func readSchema(arg string, asYAML bool, stdin io.Reader) (generate.Schema, error) {
	var data []byte
	trimmed := strings.TrimSpace(arg)
	switch {
	case trimmed == "-":
		raw, err := io.ReadAll(stdin)
		if err != nil {
			return generate.Schema{}, errors.Wrap(err, "read schema from stdin")
		}
		data = raw
	case strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "["):
		data = []byte(trimmed)
	default:
		raw, err := os.ReadFile(arg)
		if err != nil {
			return generate.Schema{}, errors.WrapInvalidRequest(err, "read schema file")
		}
		data = raw
		ext := strings.ToLower(filepath.Ext(arg))
		asYAML = asYAML || ext == ".yaml" || ext == ".yml"
	}

	if asYAML {
		return generate.ParseSchemaYAML(data)
	}
	return generate.ParseSchema(data)
}

func writeRecords(stdout, stderr io.Writer, path string, result *generate.Result, compact bool) error {
	body, err := result.JSON()
	if err != nil {
		return errors.Wrap(err, "encode records")
	}
	if !compact {
		var indented bytes.Buffer
		if err := json.Indent(&indented, body, "", "  "); err != nil {
			return errors.Wrap(err, "indent records")
		}
		body = indented.Bytes()
	}
	body = append(body, '\n')

	if path == "" {
		_, err := stdout.Write(body)
		return err
	}
	if err := os.WriteFile(path, body, am.DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "write %s", path)
	}
	pterm.Success.WithWriter(stderr).Printfln("Wrote %d records to %s", len(result.Records), path)
	return nil
}

func printDryRun(w io.Writer, cfg *am.Config, schema generate.Schema) error {
	plan, err := generate.Plan(genCount, cfg.Generation.BatchSize)
	if err != nil {
		return err
	}
	prompts, err := generate.LoadPromptBuilder(cfg.Generation.PromptFormat, cfg.Generation.PromptTemplate)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "%d records in %d batches (provider %s)\n", plan.Total(), len(plan), cfg.Provider)
	for _, batch := range plan {
		text, err := prompts.Build(batch.StartingID, batch.Records, schema)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "\n--- batch %d: %d records from id %d ---\n%s\n", batch.Index+1, batch.Records, batch.StartingID, text)
	}
	return nil
}
