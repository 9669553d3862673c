// Package cli provides the ledger command line and the bootstrap shared by
// cmd/ledger and cmd/ledger-worker.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"dailyledger/internal/amqp"
	"dailyledger/internal/auth"
	"dailyledger/internal/backend"
	"dailyledger/internal/config"
	"dailyledger/internal/core"
	"dailyledger/internal/ledger"
	"dailyledger/internal/log"
	"dailyledger/internal/metrics"
	"dailyledger/internal/parse"
	"dailyledger/internal/schema"
	"dailyledger/internal/services"
)

// SetupLogger builds the process logger from configuration and sets it as
// the slog default. A nil out means stderr.
func SetupLogger(cfg *config.Config, out io.Writer) *log.Logger {
	if out == nil {
		out = os.Stderr
	}
	logger := log.New(log.Config{
		Level:     log.ParseLevel(cfg.LogLevel),
		Format:    cfg.LogFormat,
		Component: log.ComponentApp,
		Output:    out,
	})
	log.SetDefault(logger)
	return logger
}

// LoadEnvFile loads a .env file for local development. A missing file is not
// an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

// LoadAndValidateConfig loads configuration from the environment, applies the
// schema file and validates the result.
func LoadAndValidateConfig(apply func(*config.Config)) (*config.Config, error) {
	cfg := config.Load()
	if apply != nil {
		apply(cfg)
	}
	if err := cfg.LoadSchema(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// App holds everything a command needs to work with the ledger.
type App struct {
	Config  *config.Config
	Logger  *log.Logger
	Metrics *metrics.Metrics
	Ledger  *services.LedgerService
	Users   *auth.Directory
	Dates   *parse.DateParser
	Amounts *parse.AmountParser

	backend   *backend.BackendResult
	publisher *amqp.Client
}

// NewApp opens the configured store and wires the ledger service. Close
// releases the store and the AMQP connection.
func NewApp(ctx context.Context, cfg *config.Config, logger *log.Logger) (*App, error) {
	if logger == nil {
		logger = log.Discard()
	}
	a := &App{
		Config:  cfg,
		Logger:  logger,
		Metrics: metrics.New(),
		Dates:   parse.NewDateParser(cfg.Schema.DateLayouts),
		Amounts: parse.NewAmountParser(cfg.Schema.CurrencyMarkers),
	}

	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	a.backend, err = backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, err
	}

	a.Users, err = auth.NewDirectory(cfg.Schema.AuthUsers())
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("load users: %w", err)
	}

	var publisher services.Publisher
	if cfg.AMQPURL != "" {
		a.publisher, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, continuing without append events",
				log.NewFields().WithOperation(log.OpStartup).WithError(err).ToSlice()...)
			a.publisher = nil
		} else {
			publisher = a.publisher
			logger.Info("Initialized AMQP client", "exchange", cfg.AMQPExchange, "queue", cfg.AMQPQueue)
		}
	}

	materializer := ledger.NewMaterializer(ledger.Options{
		Normalizer: schema.NewNormalizer(cfg.Schema.SynonymTable()),
		Amounts:    a.Amounts,
		Dates:      a.Dates,
		Kinds:      cfg.Schema.Kinds(),
		Observer:   a.Metrics,
	})
	a.Ledger, err = services.NewLedgerService(services.Options{
		Store:        a.backend.Store,
		Materializer: materializer,
		Aggregator:   ledger.NewAggregator(cfg.Schema.Uncategorized),
		Projector:    ledger.NewProjector(cfg.Schema.DisplayColumns(), cfg.Schema.Format()),
		Rules:        EntryRules(cfg.Schema),
		Publisher:    publisher,
		Metrics:      a.Metrics,
		Logger:       logger,
		Clock:        core.SystemClock(cfg.Location()),
		CacheTTL:     cfg.CacheTTL,
		StoreTimeout: cfg.StoreTimeout,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// EntryRules converts the schema's entry vocabulary for the ledger service.
func EntryRules(s config.Schema) services.EntryRules {
	rules := services.EntryRules{
		Categories:          make(map[core.Kind][]string, 2),
		PaymentMethods:      append([]string(nil), s.PaymentMethods...),
		IncomePaymentMethod: s.IncomePaymentMethod,
		KindCells:           make(map[core.Kind]string, 2),
	}
	for _, k := range []core.Kind{core.Expense, core.Income} {
		rules.Categories[k] = append([]string(nil), s.CategoriesFor(k)...)
		rules.KindCells[k] = s.KindCell(k)
	}
	return rules
}

// Close releases the store and the AMQP client.
func (a *App) Close() error {
	var errs []error
	if a.publisher != nil {
		errs = append(errs, a.publisher.Close())
	}
	if a.backend != nil {
		errs = append(errs, a.backend.Close())
	}
	return errors.Join(errs...)
}

// GracefulShutdown returns a context cancelled on SIGINT or SIGTERM. The stop
// function releases the signal handler.
func GracefulShutdown(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}

// ShutdownContext bounds cleanup after the run context has ended.
func ShutdownContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return context.WithTimeout(context.Background(), timeout)
}
