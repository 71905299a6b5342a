package main

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel"

	"forum/internal/app"
	"forum/internal/cache"
	"forum/internal/search"
	"forum/internal/store"
	"forum/internal/taxonomy"
	"forum/internal/telemetry"
	"forum/internal/thread"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API.

On startup the tag taxonomy is rebuilt from $FORUM_TAXONOMY_FILE when that
file exists.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, opts)
		},
	}
}

// serverDeps is everything serve wires together before it starts listening.
type serverDeps struct {
	store   *store.Store
	handler http.Handler
	closers []func()
}

func (r *serverDeps) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		r.closers[i]()
	}
}

func bootstrap(ctx context.Context, opts *rootOptions) (_ *serverDeps, err error) {
	cfg, logger := opts.cfg, opts.logger
	rt := &serverDeps{}
	defer func() {
		if err != nil {
			rt.Close()
		}
	}()

	dataStore, db, err := openStore(ctx, cfg)
	if err != nil {
		return nil, err
	}
	rt.store = dataStore
	rt.closers = append(rt.closers, func() { _ = db.Close() })

	var descendantCache taxonomy.DescendantCache
	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisCache, err := cache.NewRedisCache(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, func() { _ = redisCache.Close() })
		descendantCache = redisCache
		logger.Info("using redis for taxonomy cache")
	}
	tags := taxonomy.NewService(dataStore, descendantCache, logger)
	if err := seedOnStartup(ctx, tags, cfg.TaxonomyFile, logger); err != nil {
		return nil, err
	}

	var meiliClient *search.Meili
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meiliClient = search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		rt.closers = append(rt.closers, meiliClient.Close)
	}
	searchService := search.NewService(meiliClient, search.NewDatabase(dataStore), logger)

	providers, err := telemetry.NewProviders("forumd", cfg.TelemetryExporter, cfg.MetricsInterval, os.Stdout)
	if err != nil {
		return nil, err
	}
	rt.closers = append(rt.closers, func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := providers.Shutdown(shutdownCtx); err != nil {
			logger.Warn("telemetry shutdown failed", "error", err)
		}
	})
	otel.SetTracerProvider(providers.Tracer)
	otel.SetMeterProvider(providers.Meter)
	instruments, err := telemetry.New(providers.Tracer, providers.Meter)
	if err != nil {
		return nil, err
	}

	threads := thread.NewAggregator(dataStore, thread.Limits{
		TopLevel:  cfg.ThreadLimits,
		SubThread: cfg.SubThreadLimits,
	}, thread.DefaultRanker)

	service := app.New(cfg, dataStore, tags, threads, searchService, instruments, logger)
	rt.handler = app.NewHTTPServer(service, cfg.CORSOrigin).Handler()
	return rt, nil
}

// seedOnStartup rebuilds the taxonomy from file. A missing file is logged and
// skipped; a malformed one stops startup.
func seedOnStartup(ctx context.Context, tags *taxonomy.Service, file string, logger *slog.Logger) error {
	if strings.TrimSpace(file) == "" {
		return nil
	}
	if _, err := os.Stat(file); errors.Is(err, fs.ErrNotExist) {
		logger.Warn("taxonomy file not found, keeping stored tags", "file", file)
		return nil
	}
	report, err := tags.SeedFile(ctx, file)
	if err != nil {
		return err
	}
	logger.Info("taxonomy rebuilt on startup", "file", file, "inserted", report.Inserted, "updated", report.Updated, "removed", report.Removed)
	return nil
}

func runServe(ctx context.Context, opts *rootOptions) error {
	cfg, logger := opts.cfg, opts.logger

	rt, err := bootstrap(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.Close()

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           rt.handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("forum API listening", "addr", cfg.Addr, "driver", cfg.DatabaseDriver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	return nil
}
