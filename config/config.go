// Package config loads algoviz.yaml. Files are discovered with first-match
// semantics: an explicit path, then ./algoviz.yaml, then
// ~/.algoviz/config.yaml. Missing files are not an error unless the path was
// given explicitly.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/petal-labs/algoviz/core"
)

const (
	projectConfigName = "algoviz.yaml"
	homeConfigName    = "config.yaml"
	homeConfigDir     = ".algoviz"
)

// Environment variables that override file values.
const (
	EnvSQLitePath = "ALGOVIZ_SQLITE_PATH"
	EnvServerURL  = "ALGOVIZ_SERVER_URL"
	EnvUserID     = "ALGOVIZ_USER_ID"
	EnvOTLP       = "ALGOVIZ_OTLP_ENDPOINT"
)

// File is the algoviz.yaml shape.
type File struct {
	Speed    SpeedConfig    `yaml:"speed"`
	Sequence SequenceConfig `yaml:"sequence"`
	Grid     GridConfig     `yaml:"grid"`
	Server   ServerConfig   `yaml:"server"`
	Client   ClientConfig   `yaml:"client"`
	Sound    SoundConfig    `yaml:"sound"`
}

// SpeedConfig holds the default step delays per category.
type SpeedConfig struct {
	Sorting     time.Duration `yaml:"sorting"`
	Searching   time.Duration `yaml:"searching"`
	Pathfinding time.Duration `yaml:"pathfinding"`
	PathTrace   time.Duration `yaml:"path_trace"`
}

// SequenceConfig sizes the sorting and searching boards.
type SequenceConfig struct {
	SortSize   int `yaml:"sort_size"`
	SearchSize int `yaml:"search_size"`
}

// GridConfig sizes the pathfinding board.
type GridConfig struct {
	Rows int `yaml:"rows"`
	Cols int `yaml:"cols"`
}

// ServerConfig configures algoviz serve.
type ServerConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	CORSOrigin string `yaml:"cors_origin"`
	SQLitePath string `yaml:"sqlite_path"`

	// SessionCleanup is a cron spec for expired-session cleanup.
	SessionCleanup string `yaml:"session_cleanup"`

	// EventRetention is how long stored run events are kept. Zero keeps
	// them forever.
	EventRetention time.Duration `yaml:"event_retention"`

	// EventRetentionCount caps the stored events per run. Zero disables it.
	EventRetentionCount int `yaml:"event_retention_count"`

	// OTLPEndpoint is the host:port of an OTLP/HTTP trace receiver.
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
}

// ClientConfig points the CLI at a server for activity logging and stats.
type ClientConfig struct {
	ServerURL string `yaml:"server_url"`
	UserID    string `yaml:"user_id"`
}

// SoundConfig holds the sound preferences.
type SoundConfig struct {
	Muted bool `yaml:"muted"`
}

// Default returns the built-in configuration.
func Default() File {
	return File{
		Speed: SpeedConfig{
			Sorting:     50 * time.Millisecond,
			Searching:   40 * time.Millisecond,
			Pathfinding: 18 * time.Millisecond,
			PathTrace:   30 * time.Millisecond,
		},
		Sequence: SequenceConfig{
			SortSize:   core.DefaultSortSize,
			SearchSize: core.DefaultSearchSize,
		},
		Grid: GridConfig{
			Rows: core.DefaultRows,
			Cols: core.DefaultCols,
		},
		Server: ServerConfig{
			Host:                "127.0.0.1",
			Port:                8080,
			CORSOrigin:          "*",
			SQLitePath:          "algoviz.db",
			SessionCleanup:      "@every 1h",
			EventRetention:      7 * 24 * time.Hour,
			EventRetentionCount: 50000,
		},
	}
}

// Delay returns the configured default delay for a category.
func (f File) Delay(c core.Category) time.Duration {
	switch c {
	case core.CategorySearching:
		return f.Speed.Searching
	case core.CategoryPathfinding:
		return f.Speed.Pathfinding
	default:
		return f.Speed.Sorting
	}
}

// DiscoverPath resolves the config location with first-match semantics.
func DiscoverPath(explicitPath string) (string, bool, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", false, fmt.Errorf("resolve working directory: %w", err)
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", false, fmt.Errorf("resolve user home: %w", err)
	}
	return DiscoverPathFrom(explicitPath, cwd, homeDir)
}

// DiscoverPathFrom is a testable variant of DiscoverPath.
func DiscoverPathFrom(explicitPath, cwd, homeDir string) (string, bool, error) {
	candidates := make([]string, 0, 2)
	if clean := strings.TrimSpace(explicitPath); clean != "" {
		candidates = append(candidates, filepath.Clean(clean))
	} else {
		candidates = append(candidates, filepath.Join(cwd, projectConfigName))
		candidates = append(candidates, filepath.Join(homeDir, homeConfigDir, homeConfigName))
	}

	for i, candidate := range candidates {
		info, err := os.Stat(candidate)
		if err == nil && !info.IsDir() {
			return candidate, true, nil
		}
		if errors.Is(err, os.ErrNotExist) {
			if i == 0 && strings.TrimSpace(explicitPath) != "" {
				return "", false, fmt.Errorf("config file %q not found", candidate)
			}
			continue
		}
		if err != nil {
			return "", false, fmt.Errorf("checking config path %q: %w", candidate, err)
		}
	}
	return "", false, nil
}

// Load discovers and reads the configuration. Values missing from the file
// keep their defaults, then environment overrides are applied. The returned
// path is empty when no file was found.
func Load(explicitPath string) (File, string, error) {
	path, found, err := DiscoverPath(explicitPath)
	if err != nil {
		return File{}, "", err
	}
	cfg := Default()
	if found {
		cfg, err = LoadFile(path)
		if err != nil {
			return File{}, "", err
		}
	}
	cfg.ApplyEnv(os.LookupEnv)
	return cfg, path, nil
}

// LoadFile reads a single YAML file on top of Default.
func LoadFile(path string) (File, error) {
	// #nosec G304 -- path resolved from explicit local config discovery.
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("reading config %q: %w", path, err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return File{}, fmt.Errorf("parsing config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return File{}, fmt.Errorf("config %q: %w", path, err)
	}
	if cfg.Server.SQLitePath != "" && cfg.Server.SQLitePath != ":memory:" {
		cfg.Server.SQLitePath = resolveConfigRelative(filepath.Dir(path), os.ExpandEnv(cfg.Server.SQLitePath))
	}
	return cfg, nil
}

// ApplyEnv overrides values from the environment. lookup is usually
// os.LookupEnv.
func (f *File) ApplyEnv(lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvSQLitePath); ok && strings.TrimSpace(v) != "" {
		f.Server.SQLitePath = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvServerURL); ok && strings.TrimSpace(v) != "" {
		f.Client.ServerURL = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvUserID); ok && strings.TrimSpace(v) != "" {
		f.Client.UserID = strings.TrimSpace(v)
	}
	if v, ok := lookup(EnvOTLP); ok && strings.TrimSpace(v) != "" {
		f.Server.OTLPEndpoint = strings.TrimSpace(v)
	}
}

// Validate rejects values no board can be built from.
func (f File) Validate() error {
	var errs []error
	if f.Grid.Rows < 2 || f.Grid.Cols < 2 {
		errs = append(errs, fmt.Errorf("grid must be at least 2x2, got %dx%d", f.Grid.Rows, f.Grid.Cols))
	}
	if f.Sequence.SortSize < 0 || f.Sequence.SearchSize < 0 {
		errs = append(errs, errors.New("sequence sizes must not be negative"))
	}
	if f.Server.Port < 0 || f.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("invalid server port %d", f.Server.Port))
	}
	if f.Server.EventRetention < 0 || f.Server.EventRetentionCount < 0 {
		errs = append(errs, errors.New("event retention must not be negative"))
	}
	return errors.Join(errs...)
}

func resolveConfigRelative(baseDir, p string) string {
	clean := filepath.Clean(p)
	if filepath.IsAbs(clean) {
		return clean
	}
	return filepath.Join(baseDir, clean)
}
