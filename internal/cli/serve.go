package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/emiliopalmerini/salespulse/internal/web"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	Long: `Start the HTTP API server. Events are dispatched on a queued bus, so
household promotion and metric credit run after the request returns.

Examples:
  salespulse serve              # Listen on SALESPULSE_HTTP_PORT (default 8080)
  salespulse serve --port 3000  # Listen on port 3000`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var servePort int

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "Port to listen on (overrides SALESPULSE_HTTP_PORT)")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	app, err := NewAppContext(ctx, cmd.ErrOrStderr(), appOptions{async: true, registry: reg})
	if err != nil {
		return err
	}
	defer func() { _ = app.Close(context.WithoutCancel(ctx)) }()

	port := app.Config.HTTP.Port
	if servePort > 0 {
		port = servePort
	}

	server, err := web.NewServer(web.Services{
		Store:      app.Store,
		Processor:  app.Processor,
		Engine:     app.Engine,
		Households: app.Households,
		Reconciler: app.Reconciler,
	}, port, app.Logger, reg)
	if err != nil {
		return err
	}
	return server.Start(ctx)
}
