package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/smallnest/tenantflow/app"
	"github.com/spf13/cobra"
)

const shutdownTimeout = 10 * time.Second

func (c *cli) newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server",
		Long: `Serve the chat, spam triage, ingestion and thread endpoints over HTTP,
plus /metrics when metrics are enabled. SIGINT or SIGTERM shuts the server
down after in-flight requests finish.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.Config().HTTP.Addr
			}
			var metrics http.Handler
			if m := a.Metrics(); m != nil {
				metrics = m.Handler()
			}

			srv := &http.Server{
				Addr:              addr,
				Handler:           app.NewHandler(a, metrics, a.Logger()),
				ReadHeaderTimeout: 10 * time.Second,
			}

			serverErrors := make(chan error, 1)
			go func() {
				a.Logger().Info("tenantflow listening on %s", srv.Addr)
				serverErrors <- srv.ListenAndServe()
			}()

			shutdown := make(chan os.Signal, 1)
			signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
			defer signal.Stop(shutdown)

			select {
			case err := <-serverErrors:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("server: %w", err)

			case sig := <-shutdown:
				a.Logger().Info("received %v, shutting down", sig)
			case <-cmd.Context().Done():
			}

			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				a.Logger().Warn("graceful shutdown did not complete in %v: %v", shutdownTimeout, err)
				return srv.Close()
			}
			a.Logger().Info("tenantflow stopped")
			return nil
		},
	}
	cmd.Flags().StringVarP(&addr, "addr", "a", "", "listen address (default http.addr from the config)")
	return cmd
}
