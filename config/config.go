// Package config loads the server configuration from a JSON file.
package config

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/reviewboard/rb-browser/logging"
	"github.com/reviewboard/rb-browser/markdown"
	"github.com/reviewboard/rb-browser/repositories"
)

const (
	DefaultConfigPath = "config.json"

	DefaultPort      uint16 = 8888
	DefaultCacheSize        = 32
	DefaultLogLevel         = "info"
)

// The server configuration.
//
// A loaded Config is never mutated. Reloading produces a new value.
type Config struct {
	Port           uint16 `json:"port"`
	UseTLS         bool   `json:"useTLS"`
	SSLCertificate string `json:"sslCertificate"`
	SSLKey         string `json:"sslKey"`

	// The directory containing repositories or, in single-repository mode,
	// the repository itself.
	RepositoryRoot   string `json:"repositoryRoot"`
	SingleRepository bool   `json:"singleRepository"`

	// The number of commits listed on index pages.
	CommitLimit int `json:"commitLimit"`

	// The number of repository handles kept open. Zero disables caching.
	CacheSize int `json:"cacheSize"`

	// The chroma style used to highlight fenced code.
	HighlightStyle string `json:"highlightStyle"`

	// The URL that repository names are appended to in clone commands.
	CloneBaseURL string `json:"cloneBaseURL"`

	LogLevel string `json:"logLevel"`
}

// The on-disk form of the configuration.
//
// Pointers distinguish missing keys from zero values.
type rawConfig struct {
	Port             *uint16 `json:"port"`
	UseTLS           bool    `json:"useTLS"`
	SSLCertificate   string  `json:"sslCertificate"`
	SSLKey           string  `json:"sslKey"`
	RepositoryRoot   string  `json:"repositoryRoot"`
	SingleRepository bool    `json:"singleRepository"`
	CommitLimit      *int    `json:"commitLimit"`
	CacheSize        *int    `json:"cacheSize"`
	HighlightStyle   string  `json:"highlightStyle"`
	CloneBaseURL     string  `json:"cloneBaseURL"`
	LogLevel         string  `json:"logLevel"`
}

// Load and validate the configuration file at the given path.
//
// Relative paths in the file are resolved against the directory containing
// it.
func Load(path string) (*Config, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read configuration \"%s\"", path)
	}

	var raw rawConfig
	if err = json.Unmarshal(content, &raw); err != nil {
		return nil, errors.Wrapf(err, "could not parse configuration \"%s\"", path)
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrapf(err, "could not resolve configuration path \"%s\"", path)
	}

	cfg, err := raw.build(filepath.Dir(absPath))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid configuration \"%s\"", path)
	}

	return cfg, nil
}

// Return the configuration in its on-disk form.
func (cfg *Config) Serialize() ([]byte, error) {
	return json.MarshalIndent(cfg, "", "    ")
}

// Return the options for a repository store.
func (cfg *Config) StoreOptions() repositories.StoreOptions {
	return repositories.StoreOptions{
		Root:             cfg.RepositoryRoot,
		SingleRepository: cfg.SingleRepository,
		CacheSize:        cfg.CacheSize,
	}
}

func (raw *rawConfig) build(dir string) (*Config, error) {
	cfg := &Config{
		Port:             DefaultPort,
		UseTLS:           raw.UseTLS,
		RepositoryRoot:   resolvePath(dir, raw.RepositoryRoot),
		SingleRepository: raw.SingleRepository,
		CommitLimit:      repositories.DefaultCommitLimit,
		CacheSize:        DefaultCacheSize,
		HighlightStyle:   raw.HighlightStyle,
		CloneBaseURL:     raw.CloneBaseURL,
		LogLevel:         raw.LogLevel,
	}

	if raw.Port != nil {
		cfg.Port = *raw.Port
	}

	if raw.CommitLimit != nil {
		if *raw.CommitLimit <= 0 {
			return nil, errors.Errorf("commitLimit must be positive, got %d", *raw.CommitLimit)
		}

		cfg.CommitLimit = *raw.CommitLimit
	}

	if raw.CacheSize != nil {
		if *raw.CacheSize < 0 {
			return nil, errors.Errorf("cacheSize must not be negative, got %d", *raw.CacheSize)
		}

		cfg.CacheSize = *raw.CacheSize
	}

	if len(cfg.HighlightStyle) == 0 {
		cfg.HighlightStyle = markdown.DefaultStyle
	}

	if len(cfg.LogLevel) == 0 {
		cfg.LogLevel = DefaultLogLevel
	} else if _, err := logging.ParseLevel(cfg.LogLevel); err != nil {
		return nil, err
	}

	if len(raw.RepositoryRoot) == 0 {
		return nil, errors.New("repositoryRoot is required")
	}

	if cfg.UseTLS {
		if len(raw.SSLCertificate) == 0 || len(raw.SSLKey) == 0 {
			return nil, errors.New("useTLS requires both sslCertificate and sslKey")
		}

		cfg.SSLCertificate = resolvePath(dir, raw.SSLCertificate)
		cfg.SSLKey = resolvePath(dir, raw.SSLKey)
	}

	return cfg, nil
}

func resolvePath(dir, path string) string {
	if len(path) == 0 || filepath.IsAbs(path) {
		return path
	}

	return filepath.Join(dir, path)
}
