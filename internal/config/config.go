// Package config loads the YAML configuration of the faust tools.
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	apperrors "github.com/gremid/faust-app/core/errors"
)

// Config is the complete configuration.
type Config struct {
	// DataDir holds the databases unless their paths are absolute
	DataDir string `yaml:"data_dir"`
	GraphDB string `yaml:"graph_db"`
	IndexDB string `yaml:"index_db"`

	// XMLRoot is the directory faust://xml/ URIs resolve against
	XMLRoot          string `yaml:"xml_root"`
	ArchivesURI      string `yaml:"archives_uri"`
	DescriptorPrefix string `yaml:"descriptor_prefix"`

	// Workers bounds concurrent descriptor parsing and event handling
	Workers       int           `yaml:"workers"`
	EventBuffer   int           `yaml:"event_buffer"`
	QueryCacheTTL time.Duration `yaml:"query_cache_ttl"`

	Log     LogConfig     `yaml:"log"`
	SQLite  SQLiteConfig  `yaml:"sqlite"`
	Watch   WatchConfig   `yaml:"watch"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SQLiteConfig tunes both databases.
type SQLiteConfig struct {
	// BusyTimeout is how long a connection waits for a lock held elsewhere
	BusyTimeout time.Duration `yaml:"busy_timeout"`
	Synchronous string        `yaml:"synchronous"`
}

// WatchConfig configures the descriptor watcher.
type WatchConfig struct {
	Debounce   time.Duration `yaml:"debounce"`
	Extensions []string      `yaml:"extensions"`
}

// MetricsConfig configures the metrics endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

// Default returns the built-in defaults.
func Default() *Config {
	return &Config{
		DataDir:          "data",
		GraphDB:          "graph.db",
		IndexDB:          "index.db",
		XMLRoot:          "xml",
		ArchivesURI:      "faust://xml/archives.xml",
		DescriptorPrefix: "document",
		Workers:          runtime.NumCPU(),
		EventBuffer:      64,
		QueryCacheTTL:    time.Minute,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		SQLite: SQLiteConfig{
			BusyTimeout: 10 * time.Second,
			Synchronous: "NORMAL",
		},
		Watch: WatchConfig{
			Debounce:   500 * time.Millisecond,
			Extensions: []string{".xml", ".xz"},
		},
	}
}

// GraphPath returns the graph database path.
func (c *Config) GraphPath() string {
	return c.dataPath(c.GraphDB)
}

// IndexPath returns the index database path.
func (c *Config) IndexPath() string {
	return c.dataPath(c.IndexDB)
}

func (c *Config) dataPath(name string) string {
	if filepath.IsAbs(name) || name == ":memory:" {
		return name
	}
	return filepath.Join(c.DataDir, name)
}

// Validate checks required fields and bounds.
func (c *Config) Validate() error {
	for _, f := range []struct{ field, value string }{
		{"data_dir", c.DataDir},
		{"graph_db", c.GraphDB},
		{"index_db", c.IndexDB},
		{"xml_root", c.XMLRoot},
		{"descriptor_prefix", c.DescriptorPrefix},
	} {
		if f.value == "" {
			return apperrors.NewValidation(f.field, "is required")
		}
	}
	if c.Workers <= 0 {
		return apperrors.NewValidation("workers", "must be > 0")
	}
	if c.EventBuffer <= 0 {
		return apperrors.NewValidation("event_buffer", "must be > 0")
	}
	if c.QueryCacheTTL < 0 {
		return apperrors.NewValidation("query_cache_ttl", "must not be negative")
	}
	if c.SQLite.BusyTimeout < 0 {
		return apperrors.NewValidation("sqlite.busy_timeout", "must not be negative")
	}
	switch strings.ToUpper(c.SQLite.Synchronous) {
	case "OFF", "NORMAL", "FULL", "EXTRA":
	default:
		err := apperrors.NewValidation("sqlite.synchronous", "must be OFF, NORMAL, FULL or EXTRA")
		err.Value = c.SQLite.Synchronous
		return err
	}
	if c.Watch.Debounce < 0 {
		return apperrors.NewValidation("watch.debounce", "must not be negative")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		err := apperrors.NewValidation("log.format", "must be json or text")
		err.Value = c.Log.Format
		return err
	}
	return nil
}

// LoadFile decodes path over cfg. Keys absent from the file keep their
// current values.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return apperrors.NewNotFound("config file", path)
		}
		return apperrors.NewIO("read", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return apperrors.NewParse("YAML", path, err.Error())
	}
	return nil
}

// Save writes cfg to path, creating parent directories.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return apperrors.NewIO("mkdir", filepath.Dir(path), err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return apperrors.Wrap(err, "marshal config")
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return apperrors.NewIO("write", path, err)
	}
	return nil
}
