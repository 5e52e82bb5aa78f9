package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/yegors/adsb-tracker/internal/adsb"
	"github.com/yegors/adsb-tracker/internal/airports"
	"github.com/yegors/adsb-tracker/internal/api"
	"github.com/yegors/adsb-tracker/internal/config"
	"github.com/yegors/adsb-tracker/internal/physics"
	"github.com/yegors/adsb-tracker/internal/storage/sqlite"
	"github.com/yegors/adsb-tracker/internal/track"
	"github.com/yegors/adsb-tracker/internal/websocket"
	"github.com/yegors/adsb-tracker/pkg/logger"
)

var (
	// Version is injected at build time
	Version = "dev"
)

// Declination cache sizing
const (
	declinationCacheSize = 4096
	declinationCacheTTL  = 24 * time.Hour
	declinationPrecision = 4
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "Path to configuration file (optional - will search in configs/ and root directory)")
	flag.Parse()

	// Load configuration with fallback logic
	cfg, err := config.LoadWithFallback(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Logging.Level,
		Format:     cfg.Logging.Format,
		File:       cfg.Logging.File,
		MaxSizeMB:  cfg.Logging.MaxSizeMB,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAgeDays: cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("Starting ADS-B tracker",
		logger.String("version", Version),
		logger.String("config_path", *configPath),
		logger.String("source_type", cfg.Feed.SourceType),
	)

	if err := run(cfg, log); err != nil {
		log.Error("Server stopped with error", logger.Error(err))
		log.Sync()
		os.Exit(1)
	}

	log.Info("Server fully stopped")
}

func run(cfg *config.Config, log *logger.Logger) error {
	source, err := newSource(cfg.Feed, log)
	if err != nil {
		return err
	}

	// Trail storage is optional; keep the interfaces nil when it is off
	var (
		trailStore  adsb.TrailStore
		trailReader api.TrailReader
	)
	if cfg.Storage.Enabled {
		store, err := sqlite.NewTrailStorage(cfg.Storage.SQLitePath, log)
		if err != nil {
			return fmt.Errorf("failed to open trail storage: %w", err)
		}
		defer store.Close()
		trailStore = store
		trailReader = store
		log.Info("Using SQLite trail storage", logger.String("path", cfg.Storage.SQLitePath))
	} else {
		log.Info("Trail storage disabled")
	}

	airportDir, err := airports.Load(cfg.Airports.DBPath, cfg.Airports.Types)
	if err != nil {
		return err
	}
	log.Info("Loaded airports", logger.Int("count", airportDir.Len()))

	wsServer := websocket.NewServer(log)
	processor := track.NewProcessor(cfg.Tracking, log)
	declination := physics.NewDeclination(declinationCacheSize, declinationCacheTTL, declinationPrecision)

	service := adsb.NewService(source, processor, trailStore, wsServer, declination, cfg.Feed, cfg.Storage, log)

	wsHandler := adsb.NewWebSocketHandler(service, log)
	wsServer.SetMessageHandler(wsHandler)
	wsServer.SetConnectHandler(wsHandler)

	var static http.Handler
	if cfg.Server.StaticFilesDir != "" {
		staticHandler, err := api.NewStaticFileHandler(cfg.Server.StaticFilesDir, log)
		if err != nil {
			return fmt.Errorf("failed to create static file handler: %w", err)
		}
		static = staticHandler
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}

	handler := api.NewHandler(service, trailReader, airportDir, wsServer, cfg, log)
	router := api.NewRouter(handler, wsServer.HandleConnection, static, metricsPath)

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Routes(),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutSecs) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutSecs) * time.Second,
		IdleTimeout:  time.Duration(cfg.Server.IdleTimeoutSecs) * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		wsServer.Run(ctx)
		return nil
	})

	g.Go(func() error {
		err := service.Run(ctx)
		if errors.Is(err, adsb.ErrPlaybackComplete) {
			log.Info("Playback complete, shutting down")
		}
		return err
	})

	g.Go(func() error {
		log.Info("Starting HTTP server", logger.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down HTTP server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error("HTTP server shutdown error", logger.Error(err))
		}
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, adsb.ErrPlaybackComplete) {
		return err
	}
	return nil
}

// newSource builds the feed selected by the configuration
func newSource(feed config.FeedConfig, log *logger.Logger) (adsb.Source, error) {
	switch feed.SourceType {
	case adsb.SourcePlayback:
		reader, err := adsb.NewPlaybackReader(feed.PlaybackDir, feed.PlaybackLoop, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open playback directory: %w", err)
		}
		return reader, nil
	default:
		timeout := time.Duration(feed.RequestTimeoutSecs) * time.Second
		return adsb.NewClient(feed.LocalSourceURL, timeout, log), nil
	}
}
