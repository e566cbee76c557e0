// Package config handles configuration loading for the scatterview server.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Data     DataConfig     `yaml:"data"`
	Cache    CacheConfig    `yaml:"cache"`
	Render   RenderConfig   `yaml:"render"`
	Ingest   IngestConfig   `yaml:"ingest"`
	Settings SettingsConfig `yaml:"settings"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
	Title       string   `yaml:"title"`
}

// DatasetConfig describes one bundle-backed dataset.
type DatasetConfig struct {
	BundlePath string `yaml:"bundle_path"`
}

// DataConfig contains the datasets served at startup. Dataset names are the
// keys of the data section; the first one listed is the default unless
// default_dataset overrides it.
type DataConfig struct {
	Datasets       map[string]DatasetConfig
	DefaultDataset string

	order []string
}

// UnmarshalYAML accepts either a flat bundle_path (one dataset named
// "default") or a mapping of dataset names to bundle paths, keeping
// document order. Dataset entries may be a plain path or a mapping.
func (d *DataConfig) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("data section must be a mapping")
	}
	d.Datasets = make(map[string]DatasetConfig)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key := node.Content[i].Value
		val := node.Content[i+1]
		switch key {
		case "default_dataset":
			if err := val.Decode(&d.DefaultDataset); err != nil {
				return err
			}
		case "bundle_path":
			var path string
			if err := val.Decode(&path); err != nil {
				return err
			}
			d.Datasets["default"] = DatasetConfig{BundlePath: path}
			d.order = append(d.order, "default")
		default:
			var ds DatasetConfig
			if val.Kind == yaml.ScalarNode {
				ds.BundlePath = val.Value
			} else if err := val.Decode(&ds); err != nil {
				return err
			}
			d.Datasets[key] = ds
			d.order = append(d.order, key)
		}
	}
	if d.DefaultDataset == "" && len(d.order) > 0 {
		d.DefaultDataset = d.order[0]
	}
	return nil
}

// DatasetIDs returns dataset names in configuration order.
func (d *DataConfig) DatasetIDs() []string {
	return append([]string(nil), d.order...)
}

// CacheConfig contains caching settings.
type CacheConfig struct {
	FrameSizeMB     int `yaml:"frame_size_mb"`
	FrameTTLMinutes int `yaml:"frame_ttl_minutes"`
	QuerySize       int `yaml:"query_size"`
}

// RenderConfig contains rendering settings.
type RenderConfig struct {
	FrameWidth      int     `yaml:"frame_width"`
	FrameHeight     int     `yaml:"frame_height"`
	Margin          float64 `yaml:"margin"`
	PointSize       float64 `yaml:"point_size"`
	SizeExponent    float64 `yaml:"size_exponent"`
	BaseOpacity     float64 `yaml:"base_opacity"`
	FadedOpacity    float64 `yaml:"faded_opacity"`
	SelectedOpacity float64 `yaml:"selected_opacity"`
	// DisableShapes draws every group as circles regardless of legend
	// shape assignments.
	DisableShapes bool `yaml:"disable_shapes"`
	// StrictHiding keeps the hidden filter even when it would blank
	// every point of the category.
	StrictHiding bool `yaml:"strict_hiding"`
	HideAxes     bool `yaml:"hide_axes"`
	HideLegend   bool `yaml:"hide_legend"`
}

// IngestConfig contains ingestion job settings.
type IngestConfig struct {
	MaxConcurrent    int    `yaml:"max_concurrent"`
	DBPath           string `yaml:"db_path"`
	RetentionMinutes int    `yaml:"retention_minutes"`
}

// SettingsConfig contains legend settings persistence.
type SettingsConfig struct {
	DBPath string `yaml:"db_path"`
}

// Load reads configuration from a YAML file, then applies environment
// overrides.
func Load(path string) (*Config, error) {
	cfg, err := loadFile(path)
	if err != nil {
		return nil, err
	}
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		// Return default config if file doesn't exist
		return DefaultConfig(), nil
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Apply defaults for missing values
	applyDefaults(&cfg)

	return &cfg, nil
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:        8080,
			CORSOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
			Title:       "ScatterView",
		},
		Data: DataConfig{
			Datasets: map[string]DatasetConfig{},
		},
		Cache: CacheConfig{
			FrameSizeMB:     256,
			FrameTTLMinutes: 10,
			QuerySize:       1024,
		},
		Render: RenderConfig{
			FrameWidth:      800,
			FrameHeight:     600,
			Margin:          40,
			PointSize:       4,
			SizeExponent:    1,
			BaseOpacity:     0.8,
			FadedOpacity:    0.25,
			SelectedOpacity: 1,
		},
		Ingest: IngestConfig{
			MaxConcurrent:    2,
			DBPath:           "./data/ingest_jobs.db",
			RetentionMinutes: 60,
		},
		Settings: SettingsConfig{
			DBPath: "./data/legend_settings.db",
		},
	}
}

func applyDefaults(cfg *Config) {
	defaults := DefaultConfig()

	if cfg.Server.Port == 0 {
		cfg.Server.Port = defaults.Server.Port
	}
	if len(cfg.Server.CORSOrigins) == 0 {
		cfg.Server.CORSOrigins = defaults.Server.CORSOrigins
	}
	if cfg.Server.Title == "" {
		cfg.Server.Title = defaults.Server.Title
	}
	if cfg.Data.Datasets == nil {
		cfg.Data.Datasets = map[string]DatasetConfig{}
	}
	if cfg.Cache.FrameSizeMB == 0 {
		cfg.Cache.FrameSizeMB = defaults.Cache.FrameSizeMB
	}
	if cfg.Cache.FrameTTLMinutes == 0 {
		cfg.Cache.FrameTTLMinutes = defaults.Cache.FrameTTLMinutes
	}
	if cfg.Cache.QuerySize == 0 {
		cfg.Cache.QuerySize = defaults.Cache.QuerySize
	}
	if cfg.Render.FrameWidth == 0 {
		cfg.Render.FrameWidth = defaults.Render.FrameWidth
	}
	if cfg.Render.FrameHeight == 0 {
		cfg.Render.FrameHeight = defaults.Render.FrameHeight
	}
	if cfg.Render.Margin == 0 {
		cfg.Render.Margin = defaults.Render.Margin
	}
	if cfg.Render.PointSize == 0 {
		cfg.Render.PointSize = defaults.Render.PointSize
	}
	if cfg.Render.SizeExponent == 0 {
		cfg.Render.SizeExponent = defaults.Render.SizeExponent
	}
	if cfg.Render.BaseOpacity == 0 {
		cfg.Render.BaseOpacity = defaults.Render.BaseOpacity
	}
	if cfg.Render.FadedOpacity == 0 {
		cfg.Render.FadedOpacity = defaults.Render.FadedOpacity
	}
	if cfg.Render.SelectedOpacity == 0 {
		cfg.Render.SelectedOpacity = defaults.Render.SelectedOpacity
	}
	if cfg.Ingest.MaxConcurrent == 0 {
		cfg.Ingest.MaxConcurrent = defaults.Ingest.MaxConcurrent
	}
	if cfg.Ingest.DBPath == "" {
		cfg.Ingest.DBPath = defaults.Ingest.DBPath
	}
	if cfg.Ingest.RetentionMinutes == 0 {
		cfg.Ingest.RetentionMinutes = defaults.Ingest.RetentionMinutes
	}
	if cfg.Settings.DBPath == "" {
		cfg.Settings.DBPath = defaults.Settings.DBPath
	}
}

// envOverrides are the deployment knobs honored from the environment, all
// under the SCATTERVIEW_ prefix.
type envOverrides struct {
	Port           int    `envconfig:"PORT"`
	CORSOrigins    string `envconfig:"CORS_ORIGINS"`
	DefaultDataset string `envconfig:"DEFAULT_DATASET"`
	SettingsDB     string `envconfig:"SETTINGS_DB"`
	IngestDB       string `envconfig:"INGEST_DB"`
}

func applyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process("scatterview", &env); err != nil {
		return fmt.Errorf("failed to read environment overrides: %w", err)
	}
	if env.Port != 0 {
		cfg.Server.Port = env.Port
	}
	if env.CORSOrigins != "" {
		origins := strings.Split(env.CORSOrigins, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.Server.CORSOrigins = origins
	}
	if env.DefaultDataset != "" {
		cfg.Data.DefaultDataset = env.DefaultDataset
	}
	if env.SettingsDB != "" {
		cfg.Settings.DBPath = env.SettingsDB
	}
	if env.IngestDB != "" {
		cfg.Ingest.DBPath = env.IngestDB
	}
	return nil
}
