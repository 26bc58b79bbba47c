// Package cmd defines and implements the CLI commands for the sellerguard executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/sellerguard/internal/app"
	"github.com/JakeFAU/sellerguard/internal/config"
	"github.com/JakeFAU/sellerguard/internal/logging"
	"github.com/JakeFAU/sellerguard/internal/scheduler"
)

// App defines the application interface that commands will use.
// This allows us to inject a mock app during tests.
type App interface {
	Close()
	GetLogger() *zap.Logger
	Serve(ctx context.Context) error
	RunOnce(ctx context.Context) (scheduler.Outcome, error)
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.New(ctx, cfg, logger, app.Options{})
}

// migrate is swapped out in tests.
var migrate = app.Migrate

// newLogger is swapped out in tests.
var newLogger = logging.New

// runtimeKey is the context key for the loaded configuration.
type runtimeKey struct{}

type runtime struct {
	cfg    config.Config
	logger *zap.Logger
}

// newRootCmd creates and configures the root command. Running it without a
// subcommand is the same as "serve".
func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "sellerguard",
		Short: "Watches seller policy pages and emails alerts about relevant changes.",
		Long: `sellerguard periodically scrapes the configured marketplace policy pages,
stores a snapshot of each, and when a page changes in a way that looks
relevant to sellers (fees, penalties, suspensions, ...) records a change
event and sends an email alert.`,
		SilenceUsage: true,

		// Load config and build the logger before any subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := newLogger(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), runtimeKey{}, &runtime{cfg: cfg, logger: logger})
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, ok := cmd.Context().Value(runtimeKey{}).(*runtime); ok && rt != nil {
				_ = rt.logger.Sync() //nolint:errcheck // stderr sync fails on some platforms
			}
		},

		RunE: runServeCommand,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, JSON or TOML); SELLERGUARD_* env vars override it")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newRunOnceCmd())
	cmd.AddCommand(newMigrateCmd())

	return cmd
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(runtimeKey{}).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("configuration not loaded")
	}
	return rt, nil
}

// withApp builds the application, runs fn, and closes it.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a App) error) error {
	rt, err := resolveRuntime(cmd.Context())
	if err != nil {
		return err
	}
	a, err := newApp(cmd.Context(), rt.cfg, rt.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize application services: %w", err)
	}
	defer a.Close()
	return fn(cmd.Context(), a)
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if args == nil {
		args = []string{}
	}
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	if err := root.ExecuteContext(ctx); err != nil {
		return 1
	}
	return 0
}
