// Package cmd defines and implements the CLI commands for the steparchiver executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/step-archiver/internal/app"
	"github.com/JakeFAU/step-archiver/internal/config"
	"github.com/JakeFAU/step-archiver/internal/logging"
	"github.com/JakeFAU/step-archiver/internal/runner"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is what subcommands need from the service container.
type App interface {
	Close()
	Logger() *zap.Logger
	Runner() *runner.Runner
	Config() config.Config
}

// newApp is the application factory. Tests replace it.
var newApp = func(ctx context.Context, cfg config.Config) (App, error) {
	return app.New(ctx, cfg)
}

type rootFlags struct {
	configFile string
	roots      []string
	// app is closed by PersistentPostRun, or by closeApp when RunE fails and cobra skips
	// the post-run hooks.
	app App
}

func (f *rootFlags) closeApp() {
	if f.app != nil {
		f.app.Close()
		f.app = nil
	}
}

func newRootCmd() (*cobra.Command, *rootFlags) {
	flags := &rootFlags{}
	cmd := &cobra.Command{
		Use:   "steparchiver",
		Short: "Mirror the CAD archives of a product catalog onto disk.",
		Long: `steparchiver walks a hierarchical product catalog, records every product page
below each configured root, and downloads each product's STEP archive into a directory
tree that mirrors the site's breadcrumbs.`,
		SilenceUsage: true,

		// Builds the application once config is known and before the subcommand runs.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(flags.configFile)
			if err != nil {
				return err
			}
			if len(flags.roots) > 0 {
				cfg.Catalog.Roots = append([]string(nil), flags.roots...)
			}
			appInstance, err := newApp(cmd.Context(), cfg)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			flags.app = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},

		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			flags.closeApp()
		},
	}

	cmd.PersistentFlags().StringVar(&flags.configFile, "config", "", "config file (YAML)")
	cmd.PersistentFlags().StringArrayVar(&flags.roots, "root", nil, "catalog root URL; repeat to walk several (overrides catalog.roots)")

	cmd.AddCommand(newDiscoverCmd(), newDownloadCmd(), newRunCmd())
	return cmd, flags
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

func execute(ctx context.Context, args []string) error {
	root, flags := newRootCmd()
	defer flags.closeApp()
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

// Execute is the main entry point.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := execute(ctx, os.Args[1:])
	stop()
	if err == nil {
		return
	}
	logger, logErr := logging.New(true)
	if logErr != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.Fatal("Command execution failed", zap.Error(err))
}
