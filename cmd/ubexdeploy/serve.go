package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Bidon15/ubexdeploy/internal/server"
)

// serveCmd exposes the deployment directory over HTTP.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the deployment directory over HTTP",
	Long: `Serve a read-only JSON API over the deployment directory:

  GET /healthz
  GET /v1/networks/{network}/deployments
  GET /v1/networks/{network}/deployments/{name}
  GET /metrics`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().String("listen", "", "Listen address (default from server.listen_addr)")
}

func runServe(cmd *cobra.Command, args []string) error {
	listen, _ := cmd.Flags().GetString("listen")

	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dir, err := a.openDirectory(ctx)
	if err != nil {
		return err
	}

	if listen == "" {
		listen = a.cfg.Server.ListenAddr
	}
	handler := server.NewHandler(dir, a.metrics.Handler(), a.logger)
	return server.Serve(ctx, listen, handler.Routes(), a.logger)
}
