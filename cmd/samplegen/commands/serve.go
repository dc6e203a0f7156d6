package commands

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/samplegen/am"
	"github.com/teranos/samplegen/logger"
	"github.com/teranos/samplegen/pulse"
	"github.com/teranos/samplegen/server"
)

// ServeCmd starts the HTTP host
var ServeCmd = &cobra.Command{
	Use:     "serve",
	Aliases: []string{"server"},
	Short:   "Start the samplegen HTTP host",
	Long: `Start the HTTP host around the generation engine.

Endpoints:
  GET  /                                                  Greeting
  GET  /api/generate-sample-data?recordCount=&sampleJson= Generate from a query string
  POST /api/generate                                      Generate from {"record_count", "schema"}
  GET  /healthz                                           Liveness
  GET  /openapi.json                                      OpenAPI document`,
	RunE: runServe,
}

var servePort int

func init() {
	ServeCmd.Flags().IntVar(&servePort, "port", 0, "Port to listen on (overrides server.port)")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	port := cfg.Server.Port
	if cmd.Flags().Changed("port") {
		port = servePort
	}

	httpLog := logger.ComponentLogger("server")
	e, err := newEngine(cfg, nil, pulse.NewLogEmitter(logger.ComponentLogger("pulse")))
	if err != nil {
		return err
	}
	defer e.Close()

	srv := server.New(e.gen, server.Options{
		Port:           port,
		AllowedOrigins: cfg.GetServerAllowedOrigins(),
		Logger:         httpLog,
	})

	identity := e.pool.Identity()
	pterm.Info.Printfln("samplegen serving on :%d (%s %s, %d slot(s))",
		port, identity.Provider, identity.Model, e.pool.Slots())
	if cfg.Provider == am.ProviderLocal {
		pterm.Info.Printfln("inference server: %s", cfg.LocalInference.BaseURL)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return srv.Start(ctx)
}
