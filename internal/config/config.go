// Package config loads the engine's tunables from a JSONC file, with the
// same layered precedence the rest of this stack uses for its own
// configuration: defaults, then a global user config, then a project config,
// then explicit CLI overrides.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/tailscale/hujson"
)

var (
	errConfigFileNotFound = errors.New("config file not found")
	errConfigFileRead     = errors.New("cannot read config file")
	errConfigInvalid      = errors.New("invalid config file")

	// ErrDataFileEmpty is returned by [RequireDataFile] when no data file
	// path was configured.
	ErrDataFileEmpty = errors.New("data_file cannot be empty")
)

// Config holds every tunable the engine's lock manager, scanner, and data
// file path need. Durations are stored in milliseconds on disk to keep the
// JSONC file free of Go duration syntax.
type Config struct {
	DataFile        string `json:"data_file"`
	Charset         string `json:"charset,omitempty"`
	MaxLockCells    int    `json:"max_lock_cells,omitempty"`
	LockExpiryMS    int    `json:"lock_expiry_ms,omitempty"`
	LockRetryWaitMS int    `json:"lock_retry_wait_ms,omitempty"`
	WatchdogMS      int    `json:"watchdog_interval_ms,omitempty"`
	FindBlockSize   int    `json:"find_block_size,omitempty"`
}

// Sources tracks which config files were loaded, for diagnostics.
type Sources struct {
	Global  string
	Project string
}

// FileName is the default project config file name.
const FileName = ".reccore.json"

// Default returns the documented defaults: M=1000, L=60s, T=10s, B=1000,
// US-ASCII.
func Default() Config {
	return Config{
		Charset:         "US-ASCII",
		MaxLockCells:    1000,   //nolint:mnd
		LockExpiryMS:    60_000, //nolint:mnd
		LockRetryWaitMS: 10_000, //nolint:mnd
		WatchdogMS:      6_000,  //nolint:mnd
		FindBlockSize:   1000,   //nolint:mnd
	}
}

// LockExpiry returns the configured lock expiry as a [time.Duration].
func (c Config) LockExpiry() time.Duration { return time.Duration(c.LockExpiryMS) * time.Millisecond }

// LockRetryWait returns the configured lock retry wait as a [time.Duration].
func (c Config) LockRetryWait() time.Duration {
	return time.Duration(c.LockRetryWaitMS) * time.Millisecond
}

// WatchdogInterval returns the configured watchdog tick as a [time.Duration].
func (c Config) WatchdogInterval() time.Duration {
	return time.Duration(c.WatchdogMS) * time.Millisecond
}

func getGlobalConfigPath(env []string) string {
	for _, e := range env {
		if after, ok := strings.CutPrefix(e, "XDG_CONFIG_HOME="); ok {
			return filepath.Join(after, "reccore", "config.json")
		}
	}

	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "reccore", "config.json")
	}

	home, err := os.UserHomeDir()
	if err == nil {
		return filepath.Join(home, ".config", "reccore", "config.json")
	}

	return ""
}

// Load loads configuration with the following precedence (highest wins):
//  1. Defaults
//  2. Global user config (~/.config/reccore/config.json or $XDG_CONFIG_HOME/reccore/config.json)
//  3. Project config: the file at configPath if non-empty (it must exist),
//     otherwise workDir/.reccore.json if present; only one of the two is read
//  4. cliOverrides.DataFile, if hasDataFileOverride is set
func Load(workDir, configPath string, cliOverrides Config, hasDataFileOverride bool, env []string) (Config, Sources, error) {
	cfg := Default()

	var sources Sources

	globalCfg, globalPath, err := loadGlobalConfig(env)
	if err != nil {
		return Config{}, Sources{}, err
	}

	sources.Global = globalPath
	cfg = mergeConfig(cfg, globalCfg)

	projectCfg, projectPath, err := loadProjectConfig(workDir, configPath)
	if err != nil {
		return Config{}, Sources{}, err
	}

	sources.Project = projectPath
	cfg = mergeConfig(cfg, projectCfg)

	if hasDataFileOverride {
		cfg.DataFile = cliOverrides.DataFile
	}

	return cfg, sources, nil
}

func loadGlobalConfig(env []string) (Config, string, error) {
	path := getGlobalConfigPath(env)
	if path == "" {
		return Config{}, "", nil
	}

	cfg, loaded, err := loadConfigFile(path, false)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	return cfg, path, nil
}

func loadProjectConfig(workDir, configPath string) (Config, string, error) {
	var cfgFile string

	var mustExist bool

	if configPath != "" {
		cfgFile = configPath
		if !filepath.IsAbs(cfgFile) {
			cfgFile = filepath.Join(workDir, cfgFile)
		}

		mustExist = true

		if _, err := os.Stat(cfgFile); err != nil {
			return Config{}, "", fmt.Errorf("%w: %s", errConfigFileNotFound, configPath)
		}
	} else {
		cfgFile = filepath.Join(workDir, FileName)
		mustExist = false
	}

	cfg, loaded, err := loadConfigFile(cfgFile, mustExist)
	if err != nil {
		return Config{}, "", err
	}

	if !loaded {
		return Config{}, "", nil
	}

	return cfg, cfgFile, nil
}

func loadConfigFile(path string, mustExist bool) (Config, bool, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is intentionally caller-controlled
	if err != nil {
		if os.IsNotExist(err) && !mustExist {
			return Config{}, false, nil
		}

		if mustExist {
			return Config{}, false, fmt.Errorf("%w: %s", errConfigFileRead, path)
		}

		return Config{}, false, nil
	}

	cfg, err := parseConfig(data)
	if err != nil {
		return Config{}, false, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}

	return cfg, true, nil
}

func parseConfig(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return cfg, nil
}

func mergeConfig(base, overlay Config) Config {
	if overlay.DataFile != "" {
		base.DataFile = overlay.DataFile
	}

	if overlay.Charset != "" {
		base.Charset = overlay.Charset
	}

	if overlay.MaxLockCells != 0 {
		base.MaxLockCells = overlay.MaxLockCells
	}

	if overlay.LockExpiryMS != 0 {
		base.LockExpiryMS = overlay.LockExpiryMS
	}

	if overlay.LockRetryWaitMS != 0 {
		base.LockRetryWaitMS = overlay.LockRetryWaitMS
	}

	if overlay.WatchdogMS != 0 {
		base.WatchdogMS = overlay.WatchdogMS
	}

	if overlay.FindBlockSize != 0 {
		base.FindBlockSize = overlay.FindBlockSize
	}

	return base
}

// RequireDataFile returns [ErrDataFileEmpty] if cfg has no data file path
// set. Commands that don't touch the data file (e.g. print-config) skip this
// check; commands that open the engine call it first.
func RequireDataFile(cfg Config) error {
	if cfg.DataFile == "" {
		return ErrDataFileEmpty
	}

	return nil
}

// Format returns cfg as formatted JSON, for a CLI "show config" command.
func Format(cfg Config) (string, error) {
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to format config: %w", err)
	}

	return string(data), nil
}
