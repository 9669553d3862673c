package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"dailyledger/internal/config"
)

// globalOptions are the flags every command shares.
type globalOptions struct {
	envFile    string
	schemaFile string
	backend    string
	logLevel   string
}

func (o *globalOptions) bind(cmd *cobra.Command) {
	f := cmd.PersistentFlags()
	f.StringVar(&o.envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	f.StringVar(&o.schemaFile, "config", "", "TOML schema file (overrides LEDGER_SCHEMA_FILE)")
	f.StringVar(&o.backend, "backend", "", "store backend: memory, sheets or sqlite (overrides DATA_BACKEND)")
	f.StringVar(&o.logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
}

func (o *globalOptions) apply(cfg *config.Config) {
	if o.schemaFile != "" {
		cfg.SchemaFile = o.schemaFile
	}
	if o.backend != "" {
		cfg.DataBackend = o.backend
	}
	if o.logLevel != "" {
		cfg.LogLevel = o.logLevel
	}
}

// config loads the env file and the validated configuration.
func (o *globalOptions) config() (*config.Config, error) {
	if err := LoadEnvFile(o.envFile); err != nil {
		return nil, err
	}
	return LoadAndValidateConfig(o.apply)
}

// app builds a fully wired App for a command. Logs go to the command's
// stderr so stdout stays clean for reports.
func (o *globalOptions) app(cmd *cobra.Command) (*App, error) {
	cfg, err := o.config()
	if err != nil {
		return nil, err
	}
	logger := SetupLogger(cfg, cmd.ErrOrStderr())
	return NewApp(cmd.Context(), cfg, logger)
}

// NewRootCommand builds the ledger command tree.
func NewRootCommand() *cobra.Command {
	o := &globalOptions{}
	root := &cobra.Command{
		Use:   "ledger",
		Short: "Daily ledger over a shared spreadsheet",
		Long: `Read, summarize and append to a household ledger kept in a spreadsheet.
The store is Google Sheets, a local SQLite file or an in-memory CSV seed,
selected with --backend or DATA_BACKEND.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	o.bind(root)

	root.AddCommand(
		newServeCommand(o),
		newReportCommand(o),
		newMonthlyCommand(o),
		newExportCommand(o),
		newAddCommand(o),
		newHashPasswordCommand(),
	)
	return root
}

// Run executes cmd with the process arguments and returns the exit code.
func Run(cmd *cobra.Command) int {
	ctx, stop := GracefulShutdown(context.Background())
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(cmd.ErrOrStderr(), "Error:", err)
		return 1
	}
	return 0
}

// Main is the entry point of cmd/ledger.
func Main() {
	os.Exit(Run(NewRootCommand()))
}
