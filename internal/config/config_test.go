package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MultiDatasetFormat(t *testing.T) {
	content := `
server:
  port: 8080
data:
  pbmc:
    bundle_path: "/data/pbmc.bundle"
  liver: "/data/liver.bundle"
`
	cfg := loadFromString(t, content)

	if len(cfg.Data.Datasets) != 2 {
		t.Fatalf("expected 2 datasets, got %d", len(cfg.Data.Datasets))
	}

	// First dataset in YAML order should be default
	if cfg.Data.DefaultDataset != "pbmc" {
		t.Errorf("expected default dataset 'pbmc', got %q", cfg.Data.DefaultDataset)
	}

	pbmc, ok := cfg.Data.Datasets["pbmc"]
	if !ok {
		t.Fatal("expected 'pbmc' dataset")
	}
	if pbmc.BundlePath != "/data/pbmc.bundle" {
		t.Errorf("unexpected pbmc bundle_path: %s", pbmc.BundlePath)
	}

	liver, ok := cfg.Data.Datasets["liver"]
	if !ok {
		t.Fatal("expected 'liver' dataset")
	}
	if liver.BundlePath != "/data/liver.bundle" {
		t.Errorf("unexpected liver bundle_path: %s", liver.BundlePath)
	}

	// Check order preserved
	ids := cfg.Data.DatasetIDs()
	if len(ids) != 2 || ids[0] != "pbmc" || ids[1] != "liver" {
		t.Errorf("unexpected dataset order: %v", ids)
	}
}

func TestLoad_FlatBundlePath(t *testing.T) {
	content := `
data:
  bundle_path: "/data/retina.bundle"
`
	cfg := loadFromString(t, content)

	if cfg.Data.DefaultDataset != "default" {
		t.Errorf("expected default dataset 'default', got %q", cfg.Data.DefaultDataset)
	}
	ds, ok := cfg.Data.Datasets["default"]
	if !ok {
		t.Fatal("expected 'default' dataset")
	}
	if ds.BundlePath != "/data/retina.bundle" {
		t.Errorf("unexpected bundle_path: %s", ds.BundlePath)
	}
}

func TestLoad_ExplicitDefaultDataset(t *testing.T) {
	content := `
data:
  default_dataset: liver
  pbmc: "/data/pbmc.bundle"
  liver: "/data/liver.bundle"
`
	cfg := loadFromString(t, content)

	if cfg.Data.DefaultDataset != "liver" {
		t.Errorf("expected default dataset 'liver', got %q", cfg.Data.DefaultDataset)
	}
}

func TestLoad_DefaultsApplied(t *testing.T) {
	content := `
server:
  port: 0
render:
  point_size: 6.5
`
	cfg := loadFromString(t, content)

	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Cache.FrameSizeMB != 256 {
		t.Errorf("expected default frame cache size 256, got %d", cfg.Cache.FrameSizeMB)
	}
	if cfg.Render.FrameWidth != 800 || cfg.Render.FrameHeight != 600 {
		t.Errorf("expected default frame 800x600, got %dx%d", cfg.Render.FrameWidth, cfg.Render.FrameHeight)
	}
	if cfg.Render.PointSize != 6.5 {
		t.Errorf("expected configured point size 6.5, got %g", cfg.Render.PointSize)
	}
	if cfg.Render.SizeExponent != 1 {
		t.Errorf("expected default size exponent 1, got %g", cfg.Render.SizeExponent)
	}
	if cfg.Render.BaseOpacity != 0.8 {
		t.Errorf("expected default base opacity 0.8, got %g", cfg.Render.BaseOpacity)
	}
	if cfg.Ingest.MaxConcurrent != 2 {
		t.Errorf("expected default ingest concurrency 2, got %d", cfg.Ingest.MaxConcurrent)
	}
	if cfg.Settings.DBPath == "" {
		t.Error("expected default settings db path")
	}
}

func TestLoad_NoDataSection(t *testing.T) {
	content := `
server:
  port: 8080
`
	cfg := loadFromString(t, content)

	if len(cfg.Data.Datasets) != 0 {
		t.Errorf("expected no datasets, got %d", len(cfg.Data.Datasets))
	}
	if cfg.Data.DefaultDataset != "" {
		t.Errorf("expected no default dataset, got %q", cfg.Data.DefaultDataset)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("expected default port 8080, got %d", cfg.Server.Port)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("SCATTERVIEW_PORT", "9999")
	t.Setenv("SCATTERVIEW_CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("SCATTERVIEW_DEFAULT_DATASET", "liver")
	t.Setenv("SCATTERVIEW_SETTINGS_DB", "/tmp/settings.db")

	content := `
server:
  port: 9000
data:
  pbmc: "/data/pbmc.bundle"
  liver: "/data/liver.bundle"
`
	cfg := loadFromString(t, content)

	if cfg.Server.Port != 9999 {
		t.Errorf("expected env port 9999, got %d", cfg.Server.Port)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example" {
		t.Errorf("unexpected cors origins: %v", cfg.Server.CORSOrigins)
	}
	if cfg.Data.DefaultDataset != "liver" {
		t.Errorf("expected env default dataset 'liver', got %q", cfg.Data.DefaultDataset)
	}
	if cfg.Settings.DBPath != "/tmp/settings.db" {
		t.Errorf("unexpected settings db path: %s", cfg.Settings.DBPath)
	}
}

func loadFromString(t *testing.T, content string) *Config {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	return cfg
}
