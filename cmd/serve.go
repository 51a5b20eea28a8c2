package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"imagegen/auth"
	"imagegen/cache"
	"imagegen/config"
	"imagegen/failures"
	"imagegen/imagegen"
	"imagegen/logger"
	"imagegen/metrics"
	"imagegen/objectsource"
	"imagegen/routes"
	"imagegen/transform"
)

// failureRetention is how long failure records are kept.
const failureRetention = 30 * 24 * time.Hour

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *config.Config) error {
	logger.Info("Starting imagegen server initialization")

	if cfg.Auth.Secret == "" {
		return errors.New("auth.secret is required (IMAGEGEN_AUTH_SECRET)")
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m, err := metrics.New(reg)
	if err != nil {
		return err
	}

	logger.Debugf("Opening %s result cache", cfg.Cache.Backend)
	store, err := cache.Open(cfg.Cache, cfg.DataDir)
	if err != nil {
		return fmt.Errorf("failed to open result cache: %w", err)
	}
	resultCache := cache.NewResultCache(store, cache.Options{
		TTL:       cfg.Cache.TTL,
		OpTimeout: cfg.Cache.OpTimeout,
		Metrics:   m,
	})
	defer resultCache.Close()
	logger.Infof("Result cache ready (backend=%s, ttl=%s)", cfg.Cache.Backend, cfg.Cache.TTL)

	logger.Debugf("Connecting %s object source", cfg.Storage.Backend)
	source, err := objectsource.New(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to create object source: %w", err)
	}
	defer source.Close()

	failuresPath := config.GetFailuresDBPath()
	if cfg.DataDir != "" {
		failuresPath = filepath.Join(cfg.DataDir, "failures.db")
	}
	failureStore, err := failures.Open(failuresPath)
	if err != nil {
		return err
	}
	defer failureStore.Close()
	logger.Info("Failures database initialized successfully")

	opts, err := imagegen.OptionsFromConfig(cfg.Image, cfg.Cache)
	if err != nil {
		return err
	}
	opts.FlightTimeout = cfg.Server.RequestTimeout
	svc, err := imagegen.NewService(opts, imagegen.Deps{
		Source: source,
		Cache:  resultCache,
		Engine: transform.NewEngine(transform.Options{
			MaxDimension:   cfg.Image.MaxDimension,
			DefaultQuality: cfg.Image.DefaultQuality,
		}, nil),
		Failures: failureStore,
		Metrics:  m,
	})
	if err != nil {
		return err
	}

	limiter := routes.NewRateLimiter(cfg.RateLimit.Requests, cfg.RateLimit.Window)
	server := routes.NewServer(routes.Deps{
		Service:  svc,
		Failures: failureStore,
		Verify: auth.VerifyConfig{
			SecretKey:      []byte(cfg.Auth.Secret),
			ExpectedIssuer: cfg.Auth.Issuer,
			ClockSkew:      cfg.Auth.ClockSkew,
		},
		Limiter:        limiter,
		Metrics:        promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		RequestTimeout: cfg.Server.RequestTimeout,
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
	})

	go limiter.Run(ctx)
	go cleanupRoutine(ctx, store, failureStore, cfg.Cache.PurgeInterval)

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("imagegen server listening on %s", cfg.Server.Addr)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down imagegen server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	logger.Info("Server stopped")
	return nil
}

// cleanupRoutine periodically purges expired cache entries from disk-backed
// stores and drops old failure records.
func cleanupRoutine(ctx context.Context, store cache.Store, failureStore *failures.Store, interval time.Duration) {
	if interval <= 0 {
		return
	}
	logger.Infof("Cleanup routine started - will run every %s", interval)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Cleanup routine stopped due to context cancellation")
			return
		case <-ticker.C:
			runCleanup(ctx, store, failureStore)
		}
	}
}

func runCleanup(ctx context.Context, store cache.Store, failureStore *failures.Store) {
	if pebbleStore, ok := store.(*cache.PebbleStore); ok {
		n, err := pebbleStore.Purge(ctx)
		if err != nil {
			logger.Errorf("Failed to purge expired cache entries: %v", err)
		} else {
			logger.Infof("Purged %d expired cache entries", n)
		}
	}

	n, err := failureStore.CleanupOldRecords(failureRetention)
	if err != nil {
		logger.Errorf("Failed to cleanup old failure records: %v", err)
		return
	}
	logger.Debugf("Removed %d failure records older than %v", n, failureRetention)
}
