package config

import (
	"os"
	"path/filepath"
	"strconv"

	apperrors "github.com/gremid/faust-app/core/errors"
	"github.com/gremid/faust-app/internal/logging"
)

const (
	// ProjectConfigFile is the name of the project-level config file
	ProjectConfigFile = "faust.yaml"
	// UserConfigDir is the directory for user-level config, relative to home
	UserConfigDir = ".config/faust"
	// UserConfigFile is the name of the user-level config file
	UserConfigFile = "config.yaml"
)

// Environment overrides.
const (
	EnvDataDir  = "FAUST_DATA_DIR"
	EnvXMLRoot  = "FAUST_XML_ROOT"
	EnvLogLevel = "FAUST_LOG_LEVEL"
	EnvWorkers  = "FAUST_WORKERS"
)

// Loader resolves configuration with layered precedence:
//
//  1. built-in defaults
//  2. user config (~/.config/faust/config.yaml)
//  3. project config (faust.yaml in the working directory or a parent)
//  4. the explicit file, if any
//  5. environment variables
//
// Later layers override only the keys they set.
type Loader struct {
	// HomeDir and WorkDir default to the process's home and working
	// directory.
	HomeDir string
	WorkDir string
	// Getenv defaults to os.Getenv.
	Getenv func(string) string
}

// Load returns the validated configuration. explicit may be empty; when
// set, the file must exist.
func (l *Loader) Load(explicit string) (*Config, error) {
	cfg := Default()

	if path := l.userConfigPath(); path != "" {
		if err := l.loadOptional(path, cfg); err != nil {
			return nil, err
		}
	}
	if path := l.findProjectConfig(); path != "" {
		if err := l.loadOptional(path, cfg); err != nil {
			return nil, err
		}
	} else {
		logging.Debug("no project config found")
	}
	if explicit != "" {
		if err := LoadFile(explicit, cfg); err != nil {
			return nil, err
		}
		logging.Debug("loaded config", "path", explicit)
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *Loader) loadOptional(path string, cfg *Config) error {
	err := LoadFile(path, cfg)
	if apperrors.Is(err, apperrors.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	logging.Debug("loaded config", "path", path)
	return nil
}

func (l *Loader) applyEnv(cfg *Config) error {
	getenv := l.Getenv
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := getenv(EnvDataDir); v != "" {
		cfg.DataDir = v
	}
	if v := getenv(EnvXMLRoot); v != "" {
		cfg.XMLRoot = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		cfg.Log.Level = v
	}
	if v := getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return &apperrors.ValidationError{Field: EnvWorkers, Value: v, Message: "must be an integer"}
		}
		cfg.Workers = n
	}
	return nil
}

func (l *Loader) userConfigPath() string {
	home := l.HomeDir
	if home == "" {
		var err error
		if home, err = os.UserHomeDir(); err != nil {
			return ""
		}
	}
	return filepath.Join(home, UserConfigDir, UserConfigFile)
}

// findProjectConfig searches the working directory and its parents.
func (l *Loader) findProjectConfig() string {
	dir := l.WorkDir
	if dir == "" {
		var err error
		if dir, err = os.Getwd(); err != nil {
			return ""
		}
	}

	for {
		path := filepath.Join(dir, ProjectConfigFile)
		if _, err := os.Stat(path); err == nil {
			return path
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
