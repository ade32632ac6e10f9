package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hugo-lorenzo-mato/quorum-spec/internal/api"
	"github.com/hugo-lorenzo-mato/quorum-spec/internal/service/pipeline"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the session API and event stream over HTTP",
	Long: `Start an HTTP server exposing session management, provider health,
the tool catalog, host diagnostics, Prometheus metrics and a server-sent
event stream. When pipeline.personas_file is set, edits to it replace the
default roster without a restart.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

var serveAddr string

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides server.addr)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.close()

	addr := a.cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}

	srv := api.NewServer(a.manager, a.router, a.tools,
		api.WithLogger(a.logger),
		api.WithEventBus(a.bus),
		api.WithGatherer(a.gatherer),
		api.WithDefaultPersonas(a.personas),
		api.WithCORSOrigins(a.cfg.Server.CORSOrigins),
		api.WithSystemReporter(a.diag),
	)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if path := a.cfg.Pipeline.PersonasFile; path != "" {
		go func() {
			if err := pipeline.WatchPersonas(ctx, path, srv.SetDefaultPersonas, a.logger); err != nil {
				a.logger.Warn("persona roster will not reload", "path", path, "error", err)
			}
		}()
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Listening on http://%s\n", addr)
	if err := srv.ListenAndServe(ctx, addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serving: %w", err)
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		fmt.Fprintln(cmd.ErrOrStderr(), "Shutting down")
	}
	return nil
}
