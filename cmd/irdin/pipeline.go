package main

import (
	"fmt"
	"strconv"

	"irdin-archive/pkg/concepts"
	"irdin-archive/pkg/db"
	"irdin-archive/pkg/discovery"
	"irdin-archive/pkg/downloader"
	"irdin-archive/pkg/httpclient"
	"irdin-archive/pkg/scraper"
	"irdin-archive/pkg/transcribe"
	"irdin-archive/pkg/urls"
	"irdin-archive/pkg/verify"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func (a *app) discoverCommand() *cobra.Command {
	var (
		source     string
		startPage  int
		delay      float64
		maxPages   int
		feedURL    string
		sitemapURL string
	)

	cmd := &cobra.Command{
		Use:   "discover",
		Short: "Record a stub for every catalog item link",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			site := a.cfg.Site
			if feedURL == "" {
				feedURL = site.FeedURL
			}
			if sitemapURL == "" {
				sitemapURL = site.SitemapURL
			}

			return a.withStore(cmd.Context(), func(store *db.Store) error {
				client := a.siteClient()
				defer client.Close()

				var (
					summary discovery.Summary
					err     error
				)
				switch source {
				case "listing":
					d := discovery.NewListing(store, client, site.ItemPathMarker, a.logger, a.metrics)
					summary, err = d.Paginate(cmd.Context(), site.ListingURL, discovery.Options{
						StartPage: startPage,
						Delay:     seconds(delay),
						MaxPages:  maxPages,
					})
				case "feed":
					d := discovery.New(store, urls.NewFeedFetcher(client), site.ItemPathMarker, a.logger, a.metrics)
					summary, err = d.Once(cmd.Context(), feedURL)
				case "sitemap":
					d := discovery.New(store, urls.NewSitemapFetcher(client, a.logger), site.ItemPathMarker, a.logger, a.metrics)
					summary, err = d.Once(cmd.Context(), sitemapURL)
				default:
					return fmt.Errorf("unknown source %q (want listing, feed or sitemap)", source)
				}
				if err != nil {
					return err
				}

				cmd.Printf("discovered %d new sources (%d links seen, %d pages, stop=%s)\n",
					summary.Created, summary.Seen, summary.Pages, summary.Stop)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.StringVar(&source, "source", "listing", "where to find item links: listing, feed or sitemap")
	f.IntVar(&startPage, "start-page", 1, "first listing page to visit")
	f.Float64Var(&delay, "delay", 1.0, "seconds to wait between listing pages")
	f.IntVar(&maxPages, "max-pages", 0, "stop after this many listing pages (0 = until the listing ends)")
	f.StringVar(&feedURL, "feed-url", "", "product feed URL (default from config)")
	f.StringVar(&sitemapURL, "sitemap-url", "", "product sitemap URL (default from config)")
	return cmd
}

func (a *app) scrapeCommand() *cobra.Command {
	var (
		delay   float64
		limit   int
		workers int
	)

	cmd := &cobra.Command{
		Use:   "scrape",
		Short: "Fetch detail pages of unscraped sources",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(store *db.Store) error {
				s := scraper.New(store, a.siteClient, a.logger, a.metrics)
				summary, err := s.Run(cmd.Context(), scraper.Options{
					Workers: workers,
					Delay:   seconds(delay),
					Limit:   limit,
				})
				if err != nil {
					return err
				}
				cmd.Printf("scraped %d/%d sources, %d errors, %d new tracks\n",
					summary.Done, summary.Total, summary.Errors, summary.NewTracks)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.Float64Var(&delay, "delay", 0.5, "seconds each worker waits between pages")
	f.IntVar(&limit, "limit", 0, "maximum sources to scrape (0 = all)")
	f.IntVar(&workers, "workers", scraper.DefaultWorkers, "concurrent workers")
	return cmd
}

func (a *app) downloadCommand() *cobra.Command {
	var (
		delay float64
		limit int
	)

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download audio for tracks that have none",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(store *db.Store) error {
				client := httpclient.New(httpclient.Config{
					Type:      a.siteProfile(),
					Timeout:   httpclient.MediaTimeout,
					Streaming: true,
					UserAgent: a.cfg.Site.UserAgent,
				})
				client.SetAfterResponseHook(a.metrics.OutboundHook())
				defer client.Close()

				d := downloader.New(store, client, a.cfg.Media.AudioDir(), a.logger, a.metrics)
				summary, err := d.Run(cmd.Context(), downloader.Options{Delay: seconds(delay), Limit: limit})
				if err != nil {
					return err
				}
				cmd.Printf("downloaded %d, already present %d, errors %d\n",
					summary.Downloaded, summary.Existing, summary.Errors)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.Float64Var(&delay, "delay", 0.5, "seconds to wait between downloads")
	f.IntVar(&limit, "limit", 0, "maximum tracks to download (0 = all)")
	return cmd
}

func (a *app) transcribeCommand() *cobra.Command {
	var (
		limit        int
		backendName  string
		model        string
		retranscribe bool
	)

	cmd := &cobra.Command{
		Use:   "transcribe",
		Short: "Transcribe downloaded audio",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tc := a.cfg.Transcribe
			backend, err := transcribe.New(backendName, model, transcribe.Settings{
				FasterWhisperBin: tc.FasterWhisperBin,
				MLXWhisperBin:    tc.MLXWhisperBin,
				WhisperCppBin:    tc.WhisperCppBin,
				FFmpegBin:        tc.FFmpegBin,
				ModelsDir:        tc.ModelsDir,
				Language:         tc.Language,
				Device:           tc.Device,
				RemoteBaseURL:    tc.RemoteBaseURL,
				RemoteAPIKey:     tc.RemoteAPIKey,
			})
			if err != nil {
				return err
			}

			return a.withStore(cmd.Context(), func(store *db.Store) error {
				t := transcribe.NewTranscriber(store, backend, a.cfg.Media.Root, a.logger, a.metrics)
				summary, err := t.Run(cmd.Context(), transcribe.Options{Limit: limit, Retranscribe: retranscribe})
				if err != nil {
					return err
				}
				cmd.Printf("transcribed %d, skipped %d, errors %d (%s)\n",
					summary.Transcribed, summary.Skipped, summary.Errors, transcribe.Fingerprint(backend))
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.IntVar(&limit, "limit", 0, "maximum tracks to transcribe (0 = all)")
	f.StringVar(&backendName, "backend", transcribe.PrecisionLocal, fmt.Sprintf("transcription backend %v", transcribe.Names()))
	f.StringVar(&model, "model", "", "model name (default depends on the backend)")
	f.BoolVar(&retranscribe, "retranscribe", false, "redo tracks transcribed with a different backend or model")
	return cmd
}

func (a *app) conceptsCommand() *cobra.Command {
	var (
		limit int
		model string
	)

	cmd := &cobra.Command{
		Use:   "concepts",
		Short: "Extract concept labels from transcriptions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(store *db.Store) error {
				llm := concepts.NewOllamaClient(a.cfg.Concepts.BaseURL, nil)
				e := concepts.NewExtractor(store, llm, a.logger, a.metrics)
				summary, err := e.Run(cmd.Context(), concepts.Options{Limit: limit, Model: model})
				if err != nil {
					return err
				}
				cmd.Printf("extracted %d, empty %d, errors %d\n", summary.Extracted, summary.Empty, summary.Errors)
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.IntVar(&limit, "limit", 0, "maximum tracks to process (0 = all)")
	f.StringVar(&model, "model", "baseline", "language model name")
	return cmd
}

func (a *app) verifyCommand() *cobra.Command {
	var (
		delay float64
		limit int
	)

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Compare downloaded files with the remote sizes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withStore(cmd.Context(), func(store *db.Store) error {
				client := a.siteClient()
				defer client.Close()

				v := verify.New(store, client, a.cfg.Media.AudioDir(), a.logger, a.metrics)
				report, err := v.Run(cmd.Context(), verify.Options{Delay: seconds(delay), Limit: limit})
				if err != nil {
					return err
				}
				cmd.Printf("checked %d: ok %d, missing %d, size mismatch %d, check errors %d\n",
					report.Checked, report.OK, len(report.Missing), len(report.SizeMismatch), len(report.CheckErrors))
				if ids := report.NeedsReset(); len(ids) > 0 {
					cmd.Printf("reset with: irdin reset%s\n", joinIDs(ids))
				}
				return nil
			})
		},
	}

	f := cmd.Flags()
	f.Float64Var(&delay, "delay", 0.3, "seconds to wait between remote checks")
	f.IntVar(&limit, "limit", 0, "maximum tracks to check (0 = all)")
	return cmd
}

func (a *app) resetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset <track-id>...",
		Short: "Forget downloads so the tracks are fetched again",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]uint, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseUint(arg, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid track id %q", arg)
				}
				ids = append(ids, uint(id))
			}

			return a.withStore(cmd.Context(), func(store *db.Store) error {
				n, err := verify.Reset(cmd.Context(), store, a.cfg.Media.Root, ids, a.logger)
				if err != nil {
					return err
				}
				a.logger.Info("downloads reset", zap.Int64("tracks", n))
				cmd.Printf("reset %d tracks\n", n)
				return nil
			})
		},
	}
}

func joinIDs(ids []uint) string {
	var s string
	for _, id := range ids {
		s += " " + strconv.FormatUint(uint64(id), 10)
	}
	return s
}
