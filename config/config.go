// Package config loads the YAML configuration shared by the portal and the
// files service.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Log      Log      `yaml:"log"`
	Portal   Portal   `yaml:"portal"`
	Fichiers Fichiers `yaml:"fichiers"`
}

type Log struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

type Portal struct {
	Addr          string        `yaml:"addr"`
	ManifestPath  string        `yaml:"manifest"`
	SessionKey    string        `yaml:"session_key"`
	ForceSSL      bool          `yaml:"force_ssl"`
	FilesURLs     []string      `yaml:"files_urls"`
	ProbeSchedule string        `yaml:"probe_schedule"`
	Timeout       time.Duration `yaml:"timeout"`
}

type Fichiers struct {
	Addr           string `yaml:"addr"`
	StorageDir     string `yaml:"storage_dir"`
	DBPath         string `yaml:"db_path"`
	Watch          bool   `yaml:"watch"`
	MaxUploadBytes int64  `yaml:"max_upload_bytes"`
}

func Default() Config {
	return Config{
		Log: Log{Level: "info"},
		Portal: Portal{
			Addr:          ":4200",
			FilesURLs:     []string{"http://localhost:8081"},
			ProbeSchedule: "@every 30s",
			Timeout:       30 * time.Second,
		},
		Fichiers: Fichiers{
			Addr:           ":8081",
			StorageDir:     "uploads_files",
			DBPath:         "data/fichiers.db",
			Watch:          true,
			MaxUploadBytes: 32 << 20,
		},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path yields the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if len(path) > 0 {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.ApplyEnv(os.Getenv)
	return cfg, nil
}

// ApplyEnv overrides secrets and deployment-specific values from the
// environment.
func (c *Config) ApplyEnv(getenv func(string) string) {
	if v := getenv("SKILLFORGE_SESSION_KEY"); len(v) > 0 {
		c.Portal.SessionKey = v
	}
	if v := getenv("SKILLFORGE_FILES_URLS"); len(v) > 0 {
		var urls []string
		for _, u := range strings.Split(v, ",") {
			if u = strings.TrimSpace(u); len(u) > 0 {
				urls = append(urls, u)
			}
		}
		c.Portal.FilesURLs = urls
	}
	if v := getenv("SKILLFORGE_STORAGE_DIR"); len(v) > 0 {
		c.Fichiers.StorageDir = v
	}
}

func (c Config) Validate() error {
	var errs []error
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if len(c.Portal.Addr) == 0 {
		errs = append(errs, errors.New("portal.addr is required"))
	}
	if len(c.Portal.FilesURLs) == 0 {
		errs = append(errs, errors.New("portal.files_urls needs at least one URL"))
	}
	if n := len(c.Portal.SessionKey); n != 0 && n != 32 && n != 64 {
		errs = append(errs, errors.New("portal.session_key must be 32 or 64 bytes"))
	}
	if len(c.Fichiers.Addr) == 0 {
		errs = append(errs, errors.New("fichiers.addr is required"))
	}
	if len(c.Fichiers.StorageDir) == 0 {
		errs = append(errs, errors.New("fichiers.storage_dir is required"))
	}
	if c.Fichiers.MaxUploadBytes < 0 {
		errs = append(errs, errors.New("fichiers.max_upload_bytes must not be negative"))
	}
	return errors.Join(errs...)
}

// NewLogger builds the zap logger described by l. verbose forces debug.
func NewLogger(l Log, verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if l.Development {
		cfg = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return nil, err
	}
	if verbose {
		level = zapcore.DebugLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(level)
	return cfg.Build()
}
