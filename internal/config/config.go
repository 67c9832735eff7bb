// Package config loads application configuration with viper and sets up the
// global zap logger.
package config

import (
	"os"
	"strings"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

// Config holds the full application configuration.
type Config struct {
	Server   ServerConfig    `yaml:"server" mapstructure:"server"`
	Log      LogConfig       `yaml:"log" mapstructure:"log"`
	Data     DataConfig      `yaml:"data" mapstructure:"data"`
	Store    StoreConfig     `yaml:"store" mapstructure:"store"`
	Database DatabaseConfig  `yaml:"database" mapstructure:"database"`
	Fetch    FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Valhalla ValhallaConfig  `yaml:"valhalla" mapstructure:"valhalla"`
	Datasets []DatasetConfig `yaml:"datasets" mapstructure:"datasets"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port                int      `yaml:"port" mapstructure:"port"`
	CORSOrigins         []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	MaxBodyBytes        int64    `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	ShutdownTimeoutSecs int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DataConfig locates source data and controls dataset builds.
type DataConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
	// CatalogPath names an optional YAML file of extra datasets.
	CatalogPath string `yaml:"catalog_path" mapstructure:"catalog_path"`
	// SRID is the equal-area CRS all datasets are built in.
	SRID             int  `yaml:"srid" mapstructure:"srid"`
	Eager            bool `yaml:"eager" mapstructure:"eager"`
	BuildConcurrency int  `yaml:"build_concurrency" mapstructure:"build_concurrency"`
}

// StoreConfig selects the source manifest backend.
type StoreConfig struct {
	Driver     string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	SQLitePath string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// DatabaseConfig holds the Postgres/PostGIS connection.
type DatabaseConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
}

// FetchConfig configures source downloads.
type FetchConfig struct {
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts int    `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// ValhallaConfig points at an optional isochrone server.
type ValhallaConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// SourceConfig locates one dataset input.
type SourceConfig struct {
	Path   string `yaml:"path" mapstructure:"path"`
	URL    string `yaml:"url" mapstructure:"url"`
	Member string `yaml:"member" mapstructure:"member"`
	Sheet  string `yaml:"sheet" mapstructure:"sheet"`
	// Delimiter is a single CSV separator character, or "tab".
	Delimiter string `yaml:"delimiter" mapstructure:"delimiter"`
}

// DelimiterRune resolves Delimiter. Empty yields 0, the parser default.
func (s SourceConfig) DelimiterRune() (rune, error) {
	switch s.Delimiter {
	case "":
		return 0, nil
	case "tab", `\t`, "\t":
		return '\t', nil
	}
	r, size := utf8.DecodeRuneInString(s.Delimiter)
	if r == utf8.RuneError || size != len(s.Delimiter) || r == '"' || r == '\n' || r == '\r' {
		return 0, eris.Errorf("config: invalid delimiter %q", s.Delimiter)
	}
	return r, nil
}

// DatasetConfig declares one dataset.
type DatasetConfig struct {
	ID          string       `yaml:"id" mapstructure:"id"`
	Description string       `yaml:"description" mapstructure:"description"`
	KeyField    string       `yaml:"key_field" mapstructure:"key_field"`
	Fields      []string     `yaml:"fields" mapstructure:"fields"`
	Boundary    SourceConfig `yaml:"boundary" mapstructure:"boundary"`
	Statistics  SourceConfig `yaml:"statistics" mapstructure:"statistics"`
}

// AgeBandFields are the population columns of the LSOA age band table.
var AgeBandFields = []string{
	"Total",
	"F0-15", "F16-29", "F30-44", "F45-64", "F65+",
	"M0-15", "M16-29", "M30-44", "M45-64", "M65+",
}

// DefaultDatasets is used when no datasets are configured.
func DefaultDatasets() []DatasetConfig {
	return []DatasetConfig{{
		ID:          "simple_age_bins",
		Description: "Population by sex and age band, LSOA 2021",
		KeyField:    "LSOA21CD",
		Fields:      append([]string(nil), AgeBandFields...),
		Boundary:    SourceConfig{Path: "bounded/lsoa_2021.geojson"},
		Statistics:  SourceConfig{Path: "bounded/age_bands_lsoa21_year2024.csv"},
	}}
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("AREAL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.max_body_bytes", 10<<20)
	v.SetDefault("server.shutdown_timeout_secs", 15)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("data.dir", "data")
	v.SetDefault("data.catalog_path", "")
	v.SetDefault("data.srid", 27700)
	v.SetDefault("data.eager", true)
	v.SetDefault("data.build_concurrency", 2)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "data/manifest.db")
	v.SetDefault("database.url", "")
	v.SetDefault("fetch.user_agent", "areal/1.0")
	v.SetDefault("fetch.timeout_secs", 300)
	v.SetDefault("fetch.max_attempts", 3)
	v.SetDefault("valhalla.url", "")
	v.SetDefault("valhalla.timeout_secs", 30)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if cfg.Data.CatalogPath != "" {
		extra, err := LoadCatalog(cfg.Data.CatalogPath)
		if err != nil {
			return nil, err
		}
		cfg.Datasets = MergeDatasets(cfg.Datasets, extra)
	}
	if len(cfg.Datasets) == 0 {
		cfg.Datasets = DefaultDatasets()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// catalogFile is the layout of a dataset catalog file.
type catalogFile struct {
	Datasets []DatasetConfig `yaml:"datasets"`
}

// LoadCatalog reads a YAML dataset catalog.
func LoadCatalog(path string) ([]DatasetConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read catalog %s", path)
	}
	var cf catalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, eris.Wrapf(err, "config: parse catalog %s", path)
	}
	return cf.Datasets, nil
}

// MergeDatasets appends extra to base; an extra entry with an existing id
// replaces it in place.
func MergeDatasets(base, extra []DatasetConfig) []DatasetConfig {
	out := append([]DatasetConfig(nil), base...)
	pos := make(map[string]int, len(out))
	for i, d := range out {
		pos[d.ID] = i
	}
	for _, d := range extra {
		if i, ok := pos[d.ID]; ok {
			out[i] = d
			continue
		}
		pos[d.ID] = len(out)
		out = append(out, d)
	}
	return out
}

// Validate checks cross-field constraints.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return eris.Errorf("config: invalid server port %d", c.Server.Port)
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	if c.Store.Driver == "postgres" && c.Database.URL == "" {
		return eris.New("config: store driver postgres requires database.url")
	}

	seen := make(map[string]bool, len(c.Datasets))
	for i, d := range c.Datasets {
		if d.ID == "" {
			return eris.Errorf("config: dataset %d has no id", i)
		}
		if seen[d.ID] {
			return eris.Errorf("config: dataset %q declared twice", d.ID)
		}
		seen[d.ID] = true
		if d.KeyField == "" {
			return eris.Errorf("config: dataset %q has no key_field", d.ID)
		}
		if d.Boundary.Path == "" && d.Boundary.URL == "" {
			return eris.Errorf("config: dataset %q has no boundary source", d.ID)
		}
		if d.Statistics.Path == "" && d.Statistics.URL == "" {
			return eris.Errorf("config: dataset %q has no statistics source", d.ID)
		}
		if _, err := d.Statistics.DelimiterRune(); err != nil {
			return eris.Wrapf(err, "config: dataset %q", d.ID)
		}
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
