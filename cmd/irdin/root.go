package main

import (
	"context"
	"fmt"
	"time"

	"irdin-archive/pkg/config"
	"irdin-archive/pkg/db"
	"irdin-archive/pkg/httpclient"
	"irdin-archive/pkg/logger"
	"irdin-archive/pkg/metrics"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// app holds what every subcommand shares. It is filled in by the root PersistentPreRunE.
type app struct {
	configFile string

	cfg     *config.Config
	logger  *zap.Logger
	metrics *metrics.Metrics
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "irdin",
		Short:         "Archive, transcribe and search the IRDIN lecture catalog",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.logger != nil {
				_ = a.logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&a.configFile, "config", "", "path to a config file (default ./irdin.yaml when present)")

	root.AddCommand(
		a.discoverCommand(),
		a.scrapeCommand(),
		a.downloadCommand(),
		a.transcribeCommand(),
		a.conceptsCommand(),
		a.verifyCommand(),
		a.resetCommand(),
		a.serveCommand(),
		a.mirrorCommand(),
	)
	return root
}

func (a *app) setup() error {
	boot, err := logger.NewLogger("production", "info")
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	cfg, err := config.Load(boot, a.configFile)
	if err != nil {
		return err
	}

	log, err := logger.NewLogger(cfg.Environment, cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	a.cfg = cfg
	a.logger = log
	a.metrics = metrics.New()
	return nil
}

// withStore opens the catalog database for the duration of fn
func (a *app) withStore(ctx context.Context, fn func(store *db.Store) error) error {
	store, err := db.Open(ctx, a.cfg.DB(), a.logger)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			a.logger.Warn("close database", zap.Error(err))
		}
	}()
	return fn(store)
}

// siteClient returns a client for the catalog site using the configured header profile
func (a *app) siteClient() *httpclient.HTTPClient {
	client := httpclient.New(httpclient.Config{
		Type:      a.siteProfile(),
		UserAgent: a.cfg.Site.UserAgent,
	})
	client.SetAfterResponseHook(a.metrics.OutboundHook())
	return client
}

// siteProfile is the header profile for catalog requests; Load has validated it
func (a *app) siteProfile() httpclient.ClientType {
	return httpclient.ClientType(a.cfg.Site.ClientProfile)
}

func seconds(f float64) time.Duration {
	if f <= 0 {
		return 0
	}
	return time.Duration(f * float64(time.Second))
}
