// Package main is the entry point for the ScatterView server.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scatterview/server/internal/api"
	"github.com/scatterview/server/internal/bundle"
	"github.com/scatterview/server/internal/cache"
	"github.com/scatterview/server/internal/config"
	"github.com/scatterview/server/internal/events"
	"github.com/scatterview/server/internal/render"
	"github.com/scatterview/server/internal/scatter"
	"github.com/scatterview/server/internal/settings"
	"github.com/scatterview/server/internal/style"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "config/server.yaml", "Path to configuration file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting ScatterView server on port %d", cfg.Server.Port)

	ctx := context.Background()

	// Initialize cache manager (shared across all datasets)
	cacheManager, err := cache.NewManager(cache.Config{
		FrameCacheSizeMB: cfg.Cache.FrameSizeMB,
		FrameTTL:         time.Duration(cfg.Cache.FrameTTLMinutes) * time.Minute,
		QueryCacheSize:   cfg.Cache.QuerySize,
	})
	if err != nil {
		log.Fatalf("Failed to initialize cache: %v", err)
	}
	defer cacheManager.Close()

	// Initialize legend settings persistence (shared across all datasets)
	settingsStore, err := settings.NewStore(cfg.Settings.DBPath)
	if err != nil {
		log.Fatalf("Failed to initialize settings store: %v", err)
	}
	defer settingsStore.Close()

	// Event bus feeding the per-dataset websockets
	bus := events.NewBus()

	engineOpts := scatter.Options{
		Style:  styleConfig(cfg.Render),
		Render: renderConfig(cfg.Render),
		Cache:  cacheManager,
		Store:  settingsStore,
		Bus:    bus,
	}

	// Initialize dataset registry
	registry := api.NewDatasetRegistry(cfg.Data.DefaultDataset, cfg.Server.Title)

	datasetIDs := cfg.Data.DatasetIDs()
	log.Printf("Initializing %d dataset(s), default: %s", len(datasetIDs), cfg.Data.DefaultDataset)

	// Load each configured bundle. A bad bundle skips that dataset rather
	// than taking the server down.
	for _, datasetID := range datasetIDs {
		dsCfg := cfg.Data.Datasets[datasetID]

		raw, err := os.ReadFile(dsCfg.BundlePath)
		if err != nil {
			log.Printf("  [%s] Skipped: %v", datasetID, err)
			continue
		}
		ds, bundled, err := bundle.Parse(raw)
		if err != nil {
			log.Printf("  [%s] Skipped: %v", datasetID, err)
			continue
		}
		ds.Name = datasetID
		if err := ds.Build(ctx, 0); err != nil {
			log.Printf("  [%s] Skipped: %v", datasetID, err)
			continue
		}

		seedBundledSettings(settingsStore, datasetID, bundled)
		registry.Register(datasetID, scatter.New(datasetID, ds, engineOpts))
		log.Printf("  [%s] Loaded %d points from %s", datasetID, ds.NumPoints(), dsCfg.BundlePath)
	}

	// Initialize ingest manager for bundle uploads (SQLite persistence)
	ingestManager, err := api.NewIngestManager(api.IngestManagerConfig{
		MaxConcurrent: cfg.Ingest.MaxConcurrent,
		SQLitePath:    cfg.Ingest.DBPath,
		Retention:     time.Duration(cfg.Ingest.RetentionMinutes) * time.Minute,
		CleanupPeriod: 1 * time.Hour,
	}, registry, engineOpts)
	if err != nil {
		log.Fatalf("Failed to initialize ingest manager: %v", err)
	}
	log.Printf("Ingest manager: max_concurrent=%d, retention_minutes=%d, sqlite=%s",
		cfg.Ingest.MaxConcurrent, cfg.Ingest.RetentionMinutes, cfg.Ingest.DBPath)

	ingestManager.Start()
	defer ingestManager.Stop()

	// Set up HTTP router
	router := api.NewRouter(api.RouterConfig{
		Registry:      registry,
		CORSOrigins:   cfg.Server.CORSOrigins,
		IngestManager: ingestManager,
		Caches:        cacheManager,
		Bus:           bus,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Printf("Server listening on http://localhost:%d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed: %v", err)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}

	log.Println("Server stopped")
}

// renderConfig maps the file settings onto renderer tuning, keeping package
// defaults for anything unset.
func renderConfig(rc config.RenderConfig) render.Config {
	out := render.DefaultConfig()
	if rc.FrameWidth > 0 {
		out.Width = rc.FrameWidth
	}
	if rc.FrameHeight > 0 {
		out.Height = rc.FrameHeight
	}
	if rc.Margin > 0 {
		out.Margin = rc.Margin
	}
	if rc.SizeExponent > 0 {
		out.SizeExponent = rc.SizeExponent
	}
	out.ShowAxes = !rc.HideAxes
	out.ShowLegend = !rc.HideLegend
	return out
}

func styleConfig(rc config.RenderConfig) style.Config {
	out := style.DefaultConfig()
	if rc.PointSize > 0 {
		out.PointSize = rc.PointSize
	}
	if rc.SizeExponent > 0 {
		out.SizeExponent = rc.SizeExponent
	}
	if rc.BaseOpacity > 0 {
		out.BaseOpacity = rc.BaseOpacity
	}
	if rc.FadedOpacity > 0 {
		out.FadedOpacity = rc.FadedOpacity
	}
	if rc.SelectedOpacity > 0 {
		out.SelectedOpacity = rc.SelectedOpacity
	}
	out.ShapesEnabled = !rc.DisableShapes
	out.FailOpenHiding = !rc.StrictHiding
	return out
}

// seedBundledSettings persists legend settings shipped inside a configured
// bundle, unless the dataset already has saved settings from a previous run.
func seedBundledSettings(store *settings.Store, datasetID string, st *settings.Settings) {
	if store == nil || st.IsEmpty() {
		return
	}
	existing, err := store.Load(datasetID)
	if err != nil {
		log.Printf("  [%s] Failed to read saved settings: %v", datasetID, err)
		return
	}
	if existing != nil && !existing.IsEmpty() {
		return
	}
	for name, c := range st.Categories {
		if err := store.SaveCategory(datasetID, name, c); err != nil {
			log.Printf("  [%s] Failed to seed settings for %q: %v", datasetID, name, err)
		}
	}
}
