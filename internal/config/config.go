// Package config loads and validates archiver configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Browser modes.
const (
	BrowserHeadless = "headless"
	BrowserStatic   = "static"
)

// Link file providers.
const (
	LinksLocal  = "local"
	LinksGCS    = "gcs"
	LinksMemory = "memory"
)

// DefaultRoots are the catalog sections walked when no roots are configured.
var DefaultRoots = []string{
	"https://www.gobilda.com/structure/",
	"https://www.gobilda.com/motion/",
	"https://www.gobilda.com/electronics/",
	"https://www.gobilda.com/hardware/",
	"https://www.gobilda.com/kits/",
}

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Catalog  CatalogConfig  `mapstructure:"catalog"`
	Browser  BrowserConfig  `mapstructure:"browser"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	Output   OutputConfig   `mapstructure:"output"`
	Links    LinksConfig    `mapstructure:"links"`
	Manifest ManifestConfig `mapstructure:"manifest"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

// CatalogConfig describes what to walk and how to read pages.
type CatalogConfig struct {
	Roots               []string `mapstructure:"roots"`
	ProductLinkSelector string   `mapstructure:"product_link_selector"`
	BreadcrumbSelector  string   `mapstructure:"breadcrumb_selector"`
	TitleSelector       string   `mapstructure:"title_selector"`
	ArchiveLinkSelector string   `mapstructure:"archive_link_selector"`
	FileExtension       string   `mapstructure:"file_extension"`
	ArchiveExtension    string   `mapstructure:"archive_extension"`
	MaxDepth            int      `mapstructure:"max_depth"`
}

// BrowserConfig configures the page handle.
type BrowserConfig struct {
	Mode               string   `mapstructure:"mode"`
	ExecPath           string   `mapstructure:"exec_path"`
	NavTimeoutSeconds  int      `mapstructure:"nav_timeout_seconds"`
	UserAgent          string   `mapstructure:"user_agent"`
	WindowWidth        int      `mapstructure:"window_width"`
	WindowHeight       int      `mapstructure:"window_height"`
	BlockResourceTypes []string `mapstructure:"block_resource_types"`
}

// HTTPConfig configures archive and static page fetches.
type HTTPConfig struct {
	TimeoutSeconds int    `mapstructure:"timeout_seconds"`
	UserAgent      string `mapstructure:"user_agent"`
	MaxBodyBytes   int    `mapstructure:"max_body_bytes"`
}

// OutputConfig sets local output locations.
type OutputConfig struct {
	SaveDir  string `mapstructure:"save_dir"`
	LinksDir string `mapstructure:"links_dir"`
}

// LinksConfig selects where link files are persisted.
type LinksConfig struct {
	Provider  string `mapstructure:"provider"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// ManifestConfig controls the optional Postgres manifest.
type ManifestConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// MetricsConfig controls the metrics listener; an empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// EnvPrefix prefixes every environment override, e.g. STEPARCHIVER_OUTPUT_SAVE_DIR.
const EnvPrefix = "STEPARCHIVER"

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("catalog.roots", DefaultRoots)
	v.SetDefault("catalog.product_link_selector", "li.product a")
	v.SetDefault("catalog.breadcrumb_selector", ".breadcrumbs a")
	v.SetDefault("catalog.title_selector", ".productView-title")
	v.SetDefault("catalog.archive_link_selector", ".product-downloadsList-listItem-link.ext-zip")
	v.SetDefault("catalog.file_extension", ".step")
	v.SetDefault("catalog.archive_extension", ".zip")
	v.SetDefault("catalog.max_depth", 0)
	v.SetDefault("browser.mode", BrowserHeadless)
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.nav_timeout_seconds", 5)
	v.SetDefault("browser.user_agent", "step-archiver/0.1")
	v.SetDefault("browser.window_width", 1280)
	v.SetDefault("browser.window_height", 800)
	v.SetDefault("browser.block_resource_types", []string{"Stylesheet", "Font", "Image"})
	v.SetDefault("http.timeout_seconds", 60)
	v.SetDefault("http.user_agent", "step-archiver/0.1")
	v.SetDefault("http.max_body_bytes", 64<<20)
	v.SetDefault("output.save_dir", "files")
	v.SetDefault("output.links_dir", "links")
	v.SetDefault("links.provider", LinksLocal)
	v.SetDefault("links.gcs_bucket", "")
	v.SetDefault("links.prefix", "")
	v.SetDefault("manifest.enabled", false)
	v.SetDefault("manifest.dsn", "")
	v.SetDefault("manifest.table", "step_manifest")
	v.SetDefault("manifest.max_conns", 2)
	v.SetDefault("metrics.addr", "")
	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if len(c.Catalog.Roots) == 0 {
		return fmt.Errorf("catalog.roots must not be empty")
	}
	if c.Catalog.MaxDepth < 0 {
		return fmt.Errorf("catalog.max_depth must be >= 0")
	}
	switch c.Browser.Mode {
	case BrowserHeadless, BrowserStatic:
	default:
		return fmt.Errorf("browser.mode must be %q or %q, got %q", BrowserHeadless, BrowserStatic, c.Browser.Mode)
	}
	if c.Browser.NavTimeoutSeconds <= 0 {
		return fmt.Errorf("browser.nav_timeout_seconds must be > 0")
	}
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxBodyBytes < 0 {
		return fmt.Errorf("http.max_body_bytes must be >= 0")
	}
	if strings.TrimSpace(c.Output.SaveDir) == "" {
		return fmt.Errorf("output.save_dir is required")
	}
	switch c.Links.Provider {
	case LinksLocal:
		if strings.TrimSpace(c.Output.LinksDir) == "" {
			return fmt.Errorf("output.links_dir is required for the local links provider")
		}
	case LinksGCS:
		if c.Links.GCSBucket == "" {
			return fmt.Errorf("links.gcs_bucket must be set when links.provider is gcs")
		}
	case LinksMemory:
	default:
		return fmt.Errorf("links.provider %q is not supported", c.Links.Provider)
	}
	if c.Manifest.Enabled && c.Manifest.DSN == "" {
		return fmt.Errorf("manifest.dsn must be set when manifest is enabled")
	}
	return nil
}

// NavTimeout returns the per-navigation budget.
func (c Config) NavTimeout() time.Duration {
	return time.Duration(c.Browser.NavTimeoutSeconds) * time.Second
}

// FetchTimeout returns the per-archive fetch budget.
func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.HTTP.TimeoutSeconds) * time.Second
}
