package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	apphttp "dailyledger/internal/http"
	"dailyledger/internal/log"
	"dailyledger/internal/metrics"
	"dailyledger/internal/services"
)

func newServeCommand(o *globalOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the JSON and CSV API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := o.app(cmd)
			if err != nil {
				return err
			}
			defer app.Close()

			if addr == "" {
				addr = ":" + app.Config.Port
			}
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return err
			}
			return Serve(cmd.Context(), app, ln)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default :PORT)")
	return cmd
}

// Serve runs the HTTP server on ln until ctx ends, then drains in-flight
// requests within the configured shutdown timeout.
func Serve(ctx context.Context, app *App, ln net.Listener) error {
	logger := app.Logger
	deps := apphttp.Deps{
		Ledger:             app.Ledger,
		Users:              app.Users,
		Logger:             logger,
		Dates:              app.Dates,
		Amounts:            app.Amounts,
		RateLimitPerMinute: app.Config.RateLimitPerMinute,
		DocumentTitle:      app.Config.DocumentTitle,
	}
	if app.Config.MetricsEnabled {
		deps.Metrics = app.Metrics
	}
	srv := apphttp.NewServer(ln.Addr().String(), deps)

	var refresher *services.Refresher
	if app.Config.RefreshInterval > 0 {
		refresher = services.NewRefresher(app.Ledger, services.RefresherConfig{Interval: app.Config.RefreshInterval}, logger)
		if err := refresher.Start(ctx); err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting ledger server",
			"addr", ln.Addr().String(),
			"backend", app.Config.DataBackend,
			log.FieldOperation, log.OpStartup)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := ShutdownContext(app.Config.ShutdownTimeout)
		defer cancel()

		logger.Info("Shutting down ledger server", log.FieldOperation, log.OpShutdown)
		if refresher != nil {
			if err := refresher.Stop(shutdownCtx); err != nil {
				logger.Warn("Refresher stop failed", log.NewFields().WithError(err).ToSlice()...)
			}
		}
		return srv.Shutdown(shutdownCtx)
	})

	err := g.Wait()
	logger.Info("Server stopped")
	return err
}

// serveMetrics exposes m on addr until ctx ends.
func serveMetrics(ctx context.Context, addr string, m *metrics.Metrics, logger *log.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Serving worker metrics", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := ShutdownContext(0)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
