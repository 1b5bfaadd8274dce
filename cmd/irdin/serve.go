package main

import (
	"context"
	"fmt"
	"net"
	"time"

	"irdin-archive/pkg/api"
	"irdin-archive/pkg/db"
	"irdin-archive/pkg/mirror"
	"irdin-archive/pkg/search"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func (a *app) serveCommand() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the search API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if port == "" {
				port = a.cfg.API.Port
			}

			return a.withStore(cmd.Context(), func(store *db.Store) error {
				var limiter *rate.Limiter
				if a.cfg.API.RPSLimit > 0 {
					limiter = rate.NewLimiter(rate.Limit(a.cfg.API.RPSLimit), a.cfg.API.RPSBurst)
				}

				handler := api.NewCatalogHandler(search.NewEngine(store), store, a.cfg.API.CacheTTL, a.metrics)
				router := api.NewRouter(limiter, a.metrics, a.logger, []api.Handler{handler})
				return api.Serve(cmd.Context(), router.CreateServer(net.JoinHostPort("", port)), a.logger)
			})
		},
	}

	cmd.Flags().StringVar(&port, "port", "", "listen port (default from config)")
	return cmd
}

func (a *app) mirrorCommand() *cobra.Command {
	var (
		batchSize int
		workers   int
	)

	cmd := &cobra.Command{
		Use:   "mirror",
		Short: "Copy the scraped catalog into MongoDB",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mc := a.cfg.Mongo
			docs := db.NewMongoClient(mc.URI, mc.Database, mc.Collection)
			if err := docs.Connect(cmd.Context()); err != nil {
				return fmt.Errorf("connect to mongo: %w", err)
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := docs.Close(ctx); err != nil {
					a.logger.Warn("close mongo", zap.Error(err))
				}
			}()

			return a.withStore(cmd.Context(), func(store *db.Store) error {
				m, err := mirror.NewMirror(mirror.Config{
					Store:     store,
					Documents: docs,
					Logger:    a.logger,
					BatchSize: batchSize,
					Workers:   workers,
				})
				if err != nil {
					return err
				}

				summary, err := m.Run(cmd.Context())
				if err != nil {
					return err
				}
				cmd.Printf("mirrored %d sources (%d new, %d updated, %d stale)\n",
					summary.Processed, summary.Inserted, summary.Updated, len(summary.Stale))
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.IntVar(&batchSize, "batch-size", mirror.DefaultBatchSize, "sources per upsert batch")
	f.IntVar(&workers, "workers", mirror.DefaultWorkers, "concurrent batches")
	return cmd
}
