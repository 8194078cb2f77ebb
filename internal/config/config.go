package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all tool configuration.
type Config struct {
	API        APIConfig
	Report     ReportConfig
	Classifier ClassifierConfig
	Sync       SyncConfig
	Database   DatabaseConfig
}

// APIConfig is the configuration for the Fracttal API.
type APIConfig struct {
	BaseURL string
	AuthURL string
	// Key/Secret may be left empty when a stored profile is used instead.
	Key    string
	Secret string
	// TimezoneOffsetHours is the UTC offset used when stamping meter
	// readings. The fleet operates in Argentina, hence -3.
	TimezoneOffsetHours int
}

// ReportConfig describes how the activity report file is laid out.
type ReportConfig struct {
	// HeaderRow is the 1-based row holding the column headers in Excel
	// files. The RSV report has 8 preamble rows, so headers sit on row 9.
	HeaderRow      int
	AssetColumn    string
	CategoryColumn string
	DistanceColumn string
	RuntimeColumn  string
	StatusColumn   string
}

// ClassifierConfig drives the category -> counter kind decision.
type ClassifierConfig struct {
	DistanceCategories []string
	RuntimeCategories  []string
	// Strict makes unrecognized categories a per-row failure instead of
	// falling back to the runtime counter.
	Strict bool
}

// SyncConfig tunes the batch runner.
type SyncConfig struct {
	// PersistEachRow saves the report after every successful row, shrinking
	// the window where a confirmed update could lose its status mark.
	PersistEachRow bool
}

// DatabaseConfig is the configuration for run history storage.
type DatabaseConfig struct {
	URL string
}

// Load reads fracttalsync.yaml (optional) and FRACTTAL_* environment
// variables into a Config.
func Load() (*Config, error) {
	viper.SetConfigName("fracttalsync")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("$HOME/.config/fracttalsync")
	viper.AddConfigPath("/etc/fracttalsync/")

	viper.SetEnvPrefix("fracttal")
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	// Config file is optional; env vars and defaults cover everything.
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	cfg := &Config{}

	cfg.API.BaseURL = viper.GetString("api.base_url")
	cfg.API.AuthURL = viper.GetString("api.auth_url")
	cfg.API.Key = viper.GetString("api.key")
	cfg.API.Secret = viper.GetString("api.secret")
	cfg.API.TimezoneOffsetHours = viper.GetInt("api.timezone_offset_hours")

	cfg.Report.HeaderRow = viper.GetInt("report.header_row")
	cfg.Report.AssetColumn = viper.GetString("report.asset_column")
	cfg.Report.CategoryColumn = viper.GetString("report.category_column")
	cfg.Report.DistanceColumn = viper.GetString("report.distance_column")
	cfg.Report.RuntimeColumn = viper.GetString("report.runtime_column")
	cfg.Report.StatusColumn = viper.GetString("report.status_column")

	cfg.Classifier.DistanceCategories = viper.GetStringSlice("classifier.distance_categories")
	cfg.Classifier.RuntimeCategories = viper.GetStringSlice("classifier.runtime_categories")
	cfg.Classifier.Strict = viper.GetBool("classifier.strict")

	cfg.Sync.PersistEachRow = viper.GetBool("sync.persist_each_row")

	cfg.Database.URL = viper.GetString("database.url")

	if cfg.Report.HeaderRow < 1 {
		return nil, fmt.Errorf("report.header_row must be >= 1, got %d", cfg.Report.HeaderRow)
	}

	return cfg, nil
}

func setDefaults() {
	viper.SetDefault("api.base_url", "https://app.fracttal.com")
	viper.SetDefault("api.auth_url", "https://one.fracttal.com/oauth/token")
	viper.SetDefault("api.timezone_offset_hours", -3)

	// RSV activity report layout.
	viper.SetDefault("report.header_row", 9)
	viper.SetDefault("report.asset_column", "Interno")
	viper.SetDefault("report.category_column", "Categoría")
	viper.SetDefault("report.distance_column", "Km")
	viper.SetDefault("report.runtime_column", "Tiempo de marcha")
	viper.SetDefault("report.status_column", "Estado")

	viper.SetDefault("classifier.distance_categories", []string{"Flota Liviana", "Camiones", "Camión"})
	viper.SetDefault("classifier.runtime_categories", []string{"Maquinarias"})
	viper.SetDefault("classifier.strict", false)

	viper.SetDefault("sync.persist_each_row", true)

	viper.SetDefault("database.url", "")
}
