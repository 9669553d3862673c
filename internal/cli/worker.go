package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"dailyledger/internal/amqp"
	"dailyledger/internal/backend"
	"dailyledger/internal/config"
	"dailyledger/internal/log"
	"dailyledger/internal/metrics"
	"dailyledger/internal/storage"
	"dailyledger/internal/worker"
)

// NewWorkerCommand builds the ledger-worker command: it consumes row
// appended events and mirrors each row into a local SQLite file.
func NewWorkerCommand() *cobra.Command {
	o := &globalOptions{}
	cmd := &cobra.Command{
		Use:   "ledger-worker",
		Short: "Mirror appended ledger rows into SQLite",
		Long: `Consume row appended events from AMQP and copy each row into the
SQLite mirror at MIRROR_DB_PATH. Redelivered events are ignored. At startup
the mirror is compared with the primary store and drift is logged.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := o.config()
			if err != nil {
				return err
			}
			if cfg.AMQPURL == "" {
				return errors.New("AMQP_URL is required for the worker")
			}
			logger := SetupLogger(cfg, cmd.ErrOrStderr()).WithComponent(log.ComponentWorker)
			ctx := cmd.Context()

			mirror, err := storage.NewSQLiteStore(ctx, cfg.MirrorDBPath, cfg.Schema.StoreHeader)
			if err != nil {
				return fmt.Errorf("open mirror: %w", err)
			}
			defer mirror.Close()

			client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
			if err != nil {
				return fmt.Errorf("connect AMQP: %w", err)
			}
			defer client.Close()

			m := metrics.New()
			w := worker.NewMirrorWorker(mirror, m, logger)
			checkDrift(ctx, cfg, w, logger)

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				logger.Info("Starting ledger-worker", "queue", cfg.AMQPQueue, "mirror", cfg.MirrorDBPath)
				return client.ConsumeWithReconnect(gctx, w.HandleRowAppended)
			})
			if cfg.WorkerMetricsAddr != "" {
				g.Go(func() error {
					return serveMetrics(gctx, cfg.WorkerMetricsAddr, m, logger)
				})
			}

			err = g.Wait()
			logger.Info("Worker shutdown complete", log.FieldOperation, log.OpShutdown)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	o.bind(cmd)
	return cmd
}

// checkDrift compares the mirror with the primary store once. Failures are
// logged; the worker keeps consuming either way.
func checkDrift(ctx context.Context, cfg *config.Config, w *worker.MirrorWorker, logger *log.Logger) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err == nil {
		var res *backend.BackendResult
		if res, err = backend.NewFactory(logger).CreateBackend(ctx, bcfg); err == nil {
			defer res.Close()
			_, err = w.CheckDrift(ctx, res.Store)
		}
	}
	if err != nil {
		logger.Warn("Skipping startup drift check",
			log.NewFields().WithOperation(log.OpStartup).WithError(err).ToSlice()...)
	}
}

// WorkerMain is the entry point of cmd/ledger-worker.
func WorkerMain() {
	os.Exit(Run(NewWorkerCommand()))
}
