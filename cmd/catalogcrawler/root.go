package main

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/catalog-crawler/internal/app"
	"github.com/JakeFAU/catalog-crawler/internal/config"
	"github.com/JakeFAU/catalog-crawler/internal/logging"
)

// appFactory builds the service container. Tests swap in one with stub
// collaborators.
type appFactory func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error)

func defaultAppFactory(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
	return app.New(ctx, cfg, logger, app.Options{})
}

// runtime is what every subcommand needs once the root pre-run has finished.
type runtime struct {
	cfg    config.Config
	logger *zap.Logger
	app    *app.App
}

func (r *runtime) close() {
	if r == nil {
		return
	}
	if r.app != nil {
		r.app.Close()
	}
	_ = r.logger.Sync()
}

type runtimeKey struct{}

func runtimeFrom(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(runtimeKey{}).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("application services not initialized")
	}
	return rt, nil
}

// run executes the CLI and releases the services it built, even when the
// subcommand fails.
func run(ctx context.Context, args []string, out io.Writer, factory appFactory) error {
	var rt *runtime
	root := newRootCmd(factory, func(r *runtime) { rt = r })
	root.SetArgs(args)
	root.SetOut(out)
	err := root.ExecuteContext(ctx)
	rt.close()
	return err
}

func newRootCmd(factory appFactory, onReady func(*runtime)) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "catalogcrawler",
		Short: "Crawls e-commerce catalog pages into normalized product records.",
		Long: `catalogcrawler fetches product listing pages, extracts product records from
JSON-LD or CSS selectors, follows pagination politely, and persists the results
together with a provenance record for every crawl job.`,
		SilenceUsage:  true,
		SilenceErrors: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.NewWithLevel(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)

			rt := &runtime{cfg: cfg, logger: logger}
			onReady(rt)
			a, err := factory(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			rt.app = a
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey{}, rt))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to a YAML config file")
	cmd.AddCommand(newServeCmd(), newCrawlCmd())
	return cmd
}
