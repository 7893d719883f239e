package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"auditmgt/blob"
	"auditmgt/config"
	"auditmgt/database"
	"auditmgt/handlers"
	"auditmgt/middleware"
	"auditmgt/routes"
	"auditmgt/store"
	"auditmgt/tracing"
	"auditmgt/utils"
	"auditmgt/websocket"
)

func main() {
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "optional YAML config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, errs := config.Load(configPath)
	if cfg == nil {
		return errors.Join(errs...)
	}
	logger := middleware.NewLogger(cfg.Env)
	slog.SetDefault(logger)
	if len(errs) > 0 {
		for _, err := range errs {
			logger.Error("invalid configuration", "error", err)
		}
		return fmt.Errorf("%d configuration errors", len(errs))
	}
	logger.Info("configuration loaded", "config", cfg.LogSummary())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	tp, err := tracing.NewProvider(ctx, tracing.Config{
		Enabled:      cfg.TracingEnabled,
		Environment:  cfg.Env,
		ExporterType: cfg.TracingExporter,
		OTLPEndpoint: cfg.OTLPEndpoint,
		SamplingRate: cfg.TracingSampleRate,
	})
	if err != nil {
		return fmt.Errorf("tracing: %w", err)
	}

	// Database connection
	client, err := database.Connect(ctx, cfg.MongoURI)
	if err != nil {
		return err
	}
	defer database.Disconnect(client)

	db := client.Database(cfg.MongoDatabase)
	if err := store.EnsureIndexes(ctx, db); err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := middleware.NewMetrics()
	if err := metrics.Register(registry); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	blobs, files, err := newBlobStore(cfg)
	if err != nil {
		return err
	}

	hub := websocket.NewHub(logger, metrics)
	hubCtx, stopHub := context.WithCancel(context.Background())
	defer stopHub()
	go hub.Run(hubCtx)

	tokens := utils.NewTokenIssuer([]byte(cfg.JWTSecret), cfg.JWTExpiration)

	// Router setup
	router := mux.NewRouter()
	routes.RegisterRoutes(router, routes.Deps{
		Audits:       handlers.NewAuditHandler(store.NewAuditStore(db, logger), cfg.OwnershipPolicy, hub, metrics, logger),
		Uploads:      handlers.NewUploadHandler(blobs, cfg.UploadMaxBytes, metrics, logger),
		Auth:         handlers.NewAuthHandler(store.NewUserStore(db), tokens, logger),
		Feed:         handlers.NewFeedHandler(hub, tokens, cfg.CORSOrigins, logger),
		Health:       handlers.HealthCheck(func(ctx context.Context) error { return database.Ping(ctx, client) }),
		Tokens:       tokens,
		LoginLimiter: middleware.NewIPRateLimiter(cfg.LoginRatePerMinute, metrics),
		Metrics:      promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Files:        files,
	})

	// Global middlewares (order matters!)
	router.Use(middleware.RequestID)
	router.Use(middleware.Logging(logger))
	router.Use(middleware.Recovery(logger))
	router.Use(metrics.Instrument)
	router.Use(middleware.CORS(cfg.CORSOrigins))

	var handler http.Handler = router
	if cfg.TracingEnabled {
		handler = otelhttp.NewHandler(router, tracing.ServiceName,
			otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
				if route := mux.CurrentRoute(r); route != nil {
					if tpl, err := route.GetPathTemplate(); err == nil {
						return r.Method + " " + tpl
					}
				}
				return r.Method + " " + r.URL.Path
			}),
		)
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("audit service listening", "addr", srv.Addr, "blob_backend", cfg.BlobBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced shutdown", "error", err)
	}
	stopHub()
	if err := tp.Shutdown(shutdownCtx); err != nil {
		logger.Error("tracer shutdown", "error", err)
	}
	logger.Info("server stopped")
	return nil
}

// newBlobStore picks the upload backend. The second return value serves
// local files and is nil for remote backends.
func newBlobStore(cfg *config.Config) (blob.Store, http.Handler, error) {
	switch cfg.BlobBackend {
	case "s3":
		s, err := blob.NewS3Store(blob.S3Config{
			Bucket:          cfg.S3Bucket,
			Endpoint:        cfg.S3Endpoint,
			Region:          cfg.S3Region,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PublicURL:       cfg.S3PublicURL,
		})
		return s, nil, err
	default:
		s, err := blob.NewLocalStore(cfg.BlobLocalDir, cfg.PublicBaseURL)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Handler(), nil
	}
}
