// Package config loads and validates mangaqueue configuration via Viper.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config captures every configuration knob loaded via Viper.
type Config struct {
	Library   LibraryConfig   `mapstructure:"library"`
	Downloads DownloadsConfig `mapstructure:"downloads"`
	Sources   SourcesConfig   `mapstructure:"sources"`
	Export    ExportConfig    `mapstructure:"export"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// LibraryConfig selects the database that stores downloaded mangas.
type LibraryConfig struct {
	Driver string `mapstructure:"driver"`
	Path   string `mapstructure:"path"`
}

// DownloadsConfig sets where fetched pages are written.
type DownloadsConfig struct {
	Dir string `mapstructure:"dir"`
}

type SourcesConfig struct {
	MangaDex MangaDexConfig `mapstructure:"mangadex"`
}

// MangaDexConfig configures the MangaDex catalog and fetcher.
type MangaDexConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Language          string  `mapstructure:"language"`
}

// ExportConfig toggles EPUB generation when a download finishes.
type ExportConfig struct {
	EPUB bool   `mapstructure:"epub"`
	Dir  string `mapstructure:"dir"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from defaults, the environment and an optional file.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("MANGAQUEUE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	home := homeDir()
	v.SetDefault("library.driver", "duckdb")
	v.SetDefault("library.path", filepath.Join(home, ".mangas", "library.db"))
	v.SetDefault("downloads.dir", filepath.Join(home, ".mangas", "downloads"))
	v.SetDefault("sources.mangadex.base_url", "https://api.mangadex.org")
	v.SetDefault("sources.mangadex.requests_per_second", 4.0)
	v.SetDefault("sources.mangadex.language", "en")
	v.SetDefault("export.epub", false)
	v.SetDefault("export.dir", filepath.Join(home, ".mangas", "epub"))
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("logging.development", false)
}

func homeDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return home
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	switch c.Library.Driver {
	case "duckdb", "sqlite":
	default:
		return fmt.Errorf("library.driver must be duckdb or sqlite, got %q", c.Library.Driver)
	}
	if c.Library.Path == "" {
		return fmt.Errorf("library.path must be set")
	}
	if c.Downloads.Dir == "" {
		return fmt.Errorf("downloads.dir must be set")
	}
	if c.Sources.MangaDex.BaseURL == "" {
		return fmt.Errorf("sources.mangadex.base_url must be set")
	}
	if c.Sources.MangaDex.RequestsPerSecond < 0 {
		return fmt.Errorf("sources.mangadex.requests_per_second must be >= 0")
	}
	if c.Export.EPUB && c.Export.Dir == "" {
		return fmt.Errorf("export.dir must be set when export.epub is enabled")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must be set")
	}
	return nil
}
